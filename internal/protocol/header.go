package protocol

import (
	"encoding/binary"
	"fmt"
)

// ProprietaryHeaderLen is the fixed size of the header Milestone prepends
// to RawH264 payloads (spec.md §3). JPEG payloads carry no such header.
const ProprietaryHeaderLen = 36

// ProprietaryHeader is the parsed form of the 36-byte envelope.
type ProprietaryHeader struct {
	CodecID       uint16
	PayloadLength uint32
	TimestampMs   int64
}

// ParseProprietaryHeader strips and parses the 36-byte header from a raw
// ImageResponse payload, returning the header and the remaining codec
// payload. It is the caller's responsibility to only invoke this when
// Classify has already identified the content as RawH264.
func ParseProprietaryHeader(raw []byte) (ProprietaryHeader, []byte, error) {
	if len(raw) < ProprietaryHeaderLen {
		return ProprietaryHeader{}, nil, fmt.Errorf("%w: payload of %d bytes shorter than %d-byte header", ErrBadHeader, len(raw), ProprietaryHeaderLen)
	}
	h := ProprietaryHeader{
		CodecID:       binary.BigEndian.Uint16(raw[0:2]),
		PayloadLength: binary.BigEndian.Uint32(raw[8:12]),
		TimestampMs:   int64(binary.BigEndian.Uint64(raw[12:20])),
	}
	return h, raw[ProprietaryHeaderLen:], nil
}
