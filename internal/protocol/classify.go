package protocol

import "strings"

// Codec is the outcome of classifying a Frame's content (spec.md §3).
type Codec int

const (
	CodecJpeg Codec = iota
	CodecRawH264
	CodecUnsupported
)

func (c Codec) String() string {
	switch c {
	case CodecJpeg:
		return "jpeg"
	case CodecRawH264:
		return "rawh264"
	default:
		return "unsupported"
	}
}

// rawH264CodecID is the codec_id value the proprietary header carries
// for H.264 Annex-B payloads (spec.md §3).
const rawH264CodecID = 0x000A

// jpegMagic is the leading byte sequence of every JPEG payload.
var jpegMagic = []byte{0xFF, 0xD8, 0xFF}

// Classify inspects a Frame's Content-type and, for non-JPEG content,
// the leading proprietary header's codec_id to determine how the
// payload must be handled downstream (spec.md §3). It returns the
// numeric codec_id observed when the content is not JPEG, for use in
// Unsupported errors.
func Classify(f Frame) (Codec, uint16) {
	ct := strings.ToLower(strings.TrimSpace(f.ContentType))
	if ct == "image/jpeg" || hasPrefix(f.Payload, jpegMagic) {
		return CodecJpeg, 0
	}
	h, _, err := ParseProprietaryHeader(f.Payload)
	if err != nil {
		return CodecUnsupported, 0
	}
	if h.CodecID == rawH264CodecID {
		return CodecRawH264, h.CodecID
	}
	return CodecUnsupported, h.CodecID
}

func hasPrefix(payload, magic []byte) bool {
	if len(payload) < len(magic) {
		return false
	}
	for i, b := range magic {
		if payload[i] != b {
			return false
		}
	}
	return true
}
