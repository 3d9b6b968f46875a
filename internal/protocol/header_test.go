package protocol

import (
	"encoding/binary"
	"errors"
	"testing"
)

func TestParseProprietaryHeaderStripsEnvelope(t *testing.T) {
	body := []byte{0xDE, 0xAD, 0xBE, 0xEF}
	raw := rawH264Payload(0x000A, body)

	h, rest, err := ParseProprietaryHeader(raw)
	if err != nil {
		t.Fatalf("ParseProprietaryHeader() error = %v", err)
	}
	if h.CodecID != 0x000A {
		t.Fatalf("CodecID = %x, want 0x000A", h.CodecID)
	}
	if h.PayloadLength != uint32(len(body)) {
		t.Fatalf("PayloadLength = %d, want %d", h.PayloadLength, len(body))
	}
	if string(rest) != string(body) {
		t.Fatalf("rest = %v, want %v", rest, body)
	}
}

func TestParseProprietaryHeaderTooShort(t *testing.T) {
	_, _, err := ParseProprietaryHeader(make([]byte, ProprietaryHeaderLen-1))
	if !errors.Is(err, ErrBadHeader) {
		t.Fatalf("err = %v, want ErrBadHeader", err)
	}
}

func TestParseProprietaryHeaderTimestamp(t *testing.T) {
	header := make([]byte, ProprietaryHeaderLen)
	binary.BigEndian.PutUint64(header[12:20], 1700000000123)
	h, _, err := ParseProprietaryHeader(header)
	if err != nil {
		t.Fatalf("ParseProprietaryHeader() error = %v", err)
	}
	if h.TimestampMs != 1700000000123 {
		t.Fatalf("TimestampMs = %d, want 1700000000123", h.TimestampMs)
	}
}
