package protocol

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/conticomp/xprotect-export/internal/xmlutil"
)

func tagOrBad(body []byte, name string) (string, bool) {
	return xmlutil.Tag(body, name)
}

func tagAllOrNil(body []byte, name string) []string {
	vals := xmlutil.TagAll(body, name)
	if len(vals) == 0 {
		return nil
	}
	return vals
}

// maxHeaderBytes bounds how far we scan for a \r\n\r\n terminator before
// giving up and declaring the stream malformed — a well-formed peer
// never sends a header anywhere near this size.
const maxHeaderBytes = 1 << 20

// readUntilSeparator reads from br until the four-byte sequence
// "\r\n\r\n" is seen, returning everything read before it (the
// separator itself is consumed but not included).
func readUntilSeparator(br *bufio.Reader) ([]byte, error) {
	var buf []byte
	var tail [4]byte
	filled := 0
	for {
		b, err := br.ReadByte()
		if err != nil {
			if err == io.EOF {
				return nil, fmt.Errorf("%w: eof before separator", ErrShortRead)
			}
			return nil, fmt.Errorf("%w: %v", ErrShortRead, err)
		}
		buf = append(buf, b)
		// shift the 4-byte trailing window
		if filled < 4 {
			tail[filled] = b
			filled++
		} else {
			tail[0], tail[1], tail[2], tail[3] = tail[1], tail[2], tail[3], b
		}
		if filled == 4 && tail == [4]byte{'\r', '\n', '\r', '\n'} {
			return buf[:len(buf)-4], nil
		}
		if len(buf) > maxHeaderBytes {
			return nil, fmt.Errorf("%w: separator not found within %d bytes", ErrBadHeader, maxHeaderBytes)
		}
	}
}

// ResponseKind discriminates the two inbound shapes of spec.md §4.3.
type ResponseKind int

const (
	KindMethod ResponseKind = iota
	KindImage
)

// PeekKind inspects the first non-whitespace byte to discriminate an
// XML method response from a binary ImageResponse, without consuming
// input beyond whitespace.
func PeekKind(br *bufio.Reader) (ResponseKind, error) {
	for {
		b, err := br.Peek(1)
		if err != nil {
			return 0, fmt.Errorf("%w: %v", ErrShortRead, err)
		}
		switch b[0] {
		case ' ', '\t', '\r', '\n':
			if _, err := br.ReadByte(); err != nil {
				return 0, fmt.Errorf("%w: %v", ErrShortRead, err)
			}
			continue
		case '<':
			return KindMethod, nil
		default:
			return KindImage, nil
		}
	}
}

// ReadMethodResponse reads and parses one XML method response, requiring
// a <status> element equal to "success"; any other value, or its
// absence, is ErrUnexpectedStatus (spec.md Design Notes).
func ReadMethodResponse(br *bufio.Reader) (MethodResponse, error) {
	body, err := readUntilSeparator(br)
	if err != nil {
		return MethodResponse{}, err
	}
	idStr, ok := tagOrBad(body, "requestid")
	if !ok {
		return MethodResponse{}, fmt.Errorf("%w: missing requestid", ErrBadHeader)
	}
	reqID, err := strconv.ParseUint(strings.TrimSpace(idStr), 10, 32)
	if err != nil {
		return MethodResponse{}, fmt.Errorf("%w: bad requestid %q", ErrBadHeader, idStr)
	}
	status, ok := tagOrBad(body, "status")
	if !ok || strings.TrimSpace(strings.ToLower(status)) != "success" {
		return MethodResponse{}, fmt.Errorf("%w: status=%q", ErrUnexpectedStatus, status)
	}
	return MethodResponse{
		RequestID: uint32(reqID),
		Status:    status,
		Sequence:  tagAllOrNil(body, "sequence"),
	}, nil
}

// ReadImageResponse reads one binary ImageResponse: ASCII header lines,
// exactly Content-length bytes of payload, and the trailing four-byte
// separator (spec.md §4.3 — "the single most common implementation bug
// in this protocol" is failing to consume this trailer).
func ReadImageResponse(br *bufio.Reader) (Frame, error) {
	headerBlock, err := readUntilSeparator(br)
	if err != nil {
		return Frame{}, err
	}
	headers, err := parseHeaderLines(headerBlock)
	if err != nil {
		return Frame{}, err
	}
	contentType := headers["content-type"]
	contentLengthStr, ok := headers["content-length"]
	if !ok {
		return Frame{}, fmt.Errorf("%w: missing Content-length", ErrBadHeader)
	}
	contentLength, err := strconv.ParseUint(strings.TrimSpace(contentLengthStr), 10, 32)
	if err != nil {
		return Frame{}, fmt.Errorf("%w: bad Content-length %q", ErrBadHeader, contentLengthStr)
	}
	reqIDStr, ok := headers["requestid"]
	if !ok {
		return Frame{}, fmt.Errorf("%w: missing RequestId", ErrBadHeader)
	}
	reqID, err := strconv.ParseUint(strings.TrimSpace(reqIDStr), 10, 32)
	if err != nil {
		return Frame{}, fmt.Errorf("%w: bad RequestId %q", ErrBadHeader, reqIDStr)
	}
	current, err := parseOptionalInt64(headers, "current")
	if err != nil {
		return Frame{}, err
	}
	prev, err := parseOptionalInt64WithDefault(headers, "prev", -1)
	if err != nil {
		return Frame{}, err
	}
	next, err := parseOptionalInt64WithDefault(headers, "next", -1)
	if err != nil {
		return Frame{}, err
	}

	payload := make([]byte, contentLength)
	if _, err := io.ReadFull(br, payload); err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return Frame{}, fmt.Errorf("%w: declared %d bytes, stream ended early: %v", ErrContentLengthMismatch, contentLength, err)
		}
		return Frame{}, fmt.Errorf("%w: reading %d byte payload: %v", ErrShortRead, contentLength, err)
	}

	var trailer [4]byte
	if _, err := io.ReadFull(br, trailer[:]); err != nil {
		return Frame{}, fmt.Errorf("%w: %v", ErrMissingTrailer, err)
	}
	if trailer != [4]byte{'\r', '\n', '\r', '\n'} {
		return Frame{}, fmt.Errorf("%w: got %q", ErrMissingTrailer, trailer)
	}

	return Frame{
		RequestID:     uint32(reqID),
		ContentType:   contentType,
		ContentLength: uint32(contentLength),
		CurrentTSMs:   current,
		PrevTSMs:      prev,
		NextTSMs:      next,
		Payload:       payload,
	}, nil
}

func parseHeaderLines(block []byte) (map[string]string, error) {
	headers := make(map[string]string)
	for _, line := range strings.Split(string(block), "\r\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		idx := strings.Index(line, ":")
		if idx < 0 {
			return nil, fmt.Errorf("%w: malformed header line %q", ErrBadHeader, line)
		}
		key := strings.ToLower(strings.TrimSpace(line[:idx]))
		val := strings.TrimSpace(line[idx+1:])
		headers[key] = val
	}
	return headers, nil
}

func parseOptionalInt64(headers map[string]string, key string) (int64, error) {
	v, ok := headers[key]
	if !ok {
		return 0, fmt.Errorf("%w: missing %s", ErrBadHeader, key)
	}
	n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: bad %s %q", ErrBadHeader, key, v)
	}
	return n, nil
}

func parseOptionalInt64WithDefault(headers map[string]string, key string, def int64) (int64, error) {
	v, ok := headers[key]
	if !ok || v == "" {
		return def, nil
	}
	n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: bad %s %q", ErrBadHeader, key, v)
	}
	return n, nil
}
