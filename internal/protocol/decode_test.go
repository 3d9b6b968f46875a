package protocol

import (
	"bufio"
	"bytes"
	"errors"
	"strings"
	"testing"
)

func TestPeekKindSkipsWhitespace(t *testing.T) {
	br := bufio.NewReader(strings.NewReader("  \r\n<methodcall/>"))
	kind, err := PeekKind(br)
	if err != nil {
		t.Fatalf("PeekKind() error = %v", err)
	}
	if kind != KindMethod {
		t.Fatalf("PeekKind() = %v, want KindMethod", kind)
	}
	rest, _ := br.ReadString('>')
	if rest != "<methodcall/>" {
		t.Fatalf("remaining reader content = %q, want unconsumed tag", rest)
	}
}

func TestPeekKindImage(t *testing.T) {
	br := bufio.NewReader(bytes.NewReader([]byte{0x00, 0x0A}))
	kind, err := PeekKind(br)
	if err != nil {
		t.Fatalf("PeekKind() error = %v", err)
	}
	if kind != KindImage {
		t.Fatalf("PeekKind() = %v, want KindImage", kind)
	}
}

func TestReadMethodResponseSuccess(t *testing.T) {
	raw := "<?xml version=\"1.0\"?><methodcall><requestid>42</requestid><status>success</status></methodcall>\r\n\r\n"
	br := bufio.NewReader(strings.NewReader(raw))
	resp, err := ReadMethodResponse(br)
	if err != nil {
		t.Fatalf("ReadMethodResponse() error = %v", err)
	}
	if resp.RequestID != 42 {
		t.Fatalf("RequestID = %d, want 42", resp.RequestID)
	}
	if resp.Status != "success" {
		t.Fatalf("Status = %q, want success", resp.Status)
	}
}

func TestReadMethodResponseFailureStatus(t *testing.T) {
	raw := "<methodcall><requestid>1</requestid><status>failed</status></methodcall>\r\n\r\n"
	br := bufio.NewReader(strings.NewReader(raw))
	_, err := ReadMethodResponse(br)
	if !errors.Is(err, ErrUnexpectedStatus) {
		t.Fatalf("err = %v, want ErrUnexpectedStatus", err)
	}
}

func TestReadMethodResponseMissingRequestID(t *testing.T) {
	raw := "<methodcall><status>success</status></methodcall>\r\n\r\n"
	br := bufio.NewReader(strings.NewReader(raw))
	_, err := ReadMethodResponse(br)
	if !errors.Is(err, ErrBadHeader) {
		t.Fatalf("err = %v, want ErrBadHeader", err)
	}
}

func buildImageResponse(payload []byte, headers string) []byte {
	var buf bytes.Buffer
	buf.WriteString(headers)
	buf.WriteString("\r\n")
	buf.Write(payload)
	buf.WriteString("\r\n\r\n")
	return buf.Bytes()
}

func TestReadImageResponseRoundTrip(t *testing.T) {
	payload := []byte{0xFF, 0xD8, 0xFF, 0x01, 0x02}
	headers := "Content-type: image/jpeg\r\nContent-length: 5\r\nRequestId: 7\r\ncurrent: 1000\r\nprev: 500\r\nnext: 1500\r\n"
	raw := buildImageResponse(payload, headers)

	br := bufio.NewReader(bytes.NewReader(raw))
	frame, err := ReadImageResponse(br)
	if err != nil {
		t.Fatalf("ReadImageResponse() error = %v", err)
	}
	if frame.RequestID != 7 {
		t.Fatalf("RequestID = %d, want 7", frame.RequestID)
	}
	if !bytes.Equal(frame.Payload, payload) {
		t.Fatalf("Payload = %v, want %v", frame.Payload, payload)
	}
	if frame.CurrentTSMs != 1000 || frame.PrevTSMs != 500 || frame.NextTSMs != 1500 {
		t.Fatalf("timestamps = %d/%d/%d, want 1000/500/1500", frame.CurrentTSMs, frame.PrevTSMs, frame.NextTSMs)
	}
	if !frame.HasNext() || !frame.HasPrev() {
		t.Fatalf("HasNext/HasPrev = false, want true")
	}
}

func TestReadImageResponseMissingTrailer(t *testing.T) {
	payload := []byte{0x01, 0x02, 0x03}
	headers := "Content-type: image/jpeg\r\nContent-length: 3\r\nRequestId: 1\r\ncurrent: 1\r\n"
	var buf bytes.Buffer
	buf.WriteString(headers)
	buf.WriteString("\r\n")
	buf.Write(payload)
	buf.WriteString("XXXX") // wrong trailer instead of \r\n\r\n

	br := bufio.NewReader(bytes.NewReader(buf.Bytes()))
	_, err := ReadImageResponse(br)
	if !errors.Is(err, ErrMissingTrailer) {
		t.Fatalf("err = %v, want ErrMissingTrailer", err)
	}
}

func TestReadImageResponseContentLengthMismatch(t *testing.T) {
	headers := "Content-type: image/jpeg\r\nContent-length: 10\r\nRequestId: 1\r\ncurrent: 1\r\n"
	var buf bytes.Buffer
	buf.WriteString(headers)
	buf.WriteString("\r\n")
	buf.Write([]byte{0x01, 0x02}) // declares 10 bytes, stream ends after 2

	br := bufio.NewReader(bytes.NewReader(buf.Bytes()))
	_, err := ReadImageResponse(br)
	if !errors.Is(err, ErrContentLengthMismatch) {
		t.Fatalf("err = %v, want ErrContentLengthMismatch", err)
	}
}

func TestReadImageResponseMissingContentLength(t *testing.T) {
	headers := "Content-type: image/jpeg\r\nRequestId: 1\r\ncurrent: 1\r\n"
	var buf bytes.Buffer
	buf.WriteString(headers)
	buf.WriteString("\r\n\r\n")

	br := bufio.NewReader(bytes.NewReader(buf.Bytes()))
	_, err := ReadImageResponse(br)
	if !errors.Is(err, ErrBadHeader) {
		t.Fatalf("err = %v, want ErrBadHeader", err)
	}
}
