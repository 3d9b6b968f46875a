// Package exporter implements the Exporter component (spec.md §4.6):
// the orchestration facade that ties AuthBroker, ConfigClient,
// Connection, Pipeliner, and EncoderPipe into one export job.
package exporter

import (
	"errors"
	"fmt"

	"github.com/conticomp/xprotect-export/internal/auth"
	"github.com/conticomp/xprotect-export/internal/encoder"
	"github.com/conticomp/xprotect-export/internal/imageserver"
	"github.com/conticomp/xprotect-export/internal/msconfig"
	"github.com/conticomp/xprotect-export/internal/protocol"
)

type policyError string

func (e policyError) Error() string { return string(e) }

const (
	// ErrRangeTooLarge is returned immediately by Start when t1-t0
	// exceeds MaxRangeSeconds (spec.md §4.6 — "larger ranges fail
	// immediately").
	ErrRangeTooLarge policyError = "policy: range too large"
	// ErrCancelled marks a job torn down by Cancel.
	ErrCancelled policyError = "policy: cancelled"
)

// Tag classifies a failure into the stable taxonomy spec.md §7 requires
// the HTTP layer to surface in error bodies.
type Tag string

const (
	TagAuthInvalidCredentials Tag = "Auth::InvalidCredentials"
	TagAuthSoapLoginFailed    Tag = "Auth::SoapLoginFailed"
	TagAuthExpired            Tag = "Auth::Expired"
	TagConfigCameraNotFound   Tag = "Config::CameraNotFound"
	TagConfigRecorderUnreach  Tag = "Config::RecorderUnreachable"
	TagProtoBadHeader         Tag = "Proto::BadHeader"
	TagProtoShortRead         Tag = "Proto::ShortRead"
	TagProtoContentLength     Tag = "Proto::ContentLengthMismatch"
	TagProtoMissingTrailer    Tag = "Proto::MissingTrailer"
	TagProtoUnexpectedStatus  Tag = "Proto::UnexpectedStatus"
	TagProtoConnectionBroken  Tag = "Proto::ConnectionBroken"
	TagCodecUnsupported       Tag = "Codec::Unsupported"
	TagPolicyRangeTooLarge    Tag = "Policy::RangeTooLarge"
	TagPolicyNoRecording      Tag = "Policy::NoRecordingInRange"
	TagEncoderSpawnFailed     Tag = "Encoder::SpawnFailed"
	TagEncoderNonZeroExit     Tag = "Encoder::NonZeroExit"
	TagCancelled              Tag = "Cancelled"
	TagUnknown                Tag = "Unknown"
)

// Classify maps an error returned anywhere in the export pipeline to
// its stable taxonomy tag, used for the registry's ErrorTag field and
// the HTTP layer's status-code mapping (spec.md §7).
func Classify(err error) Tag {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrCancelled):
		return TagCancelled
	case errors.Is(err, ErrRangeTooLarge):
		return TagPolicyRangeTooLarge
	case errors.Is(err, ErrNoRecordingInRange):
		return TagPolicyNoRecording
	case errors.Is(err, auth.ErrInvalidCredentials):
		return TagAuthInvalidCredentials
	case errors.Is(err, auth.ErrSoapLoginFailed):
		return TagAuthSoapLoginFailed
	case errors.Is(err, auth.ErrExpired):
		return TagAuthExpired
	case errors.Is(err, msconfig.ErrCameraNotFound):
		return TagConfigCameraNotFound
	case errors.Is(err, msconfig.ErrRecorderUnreachable):
		return TagConfigRecorderUnreach
	case errors.Is(err, protocol.ErrBadHeader):
		return TagProtoBadHeader
	case errors.Is(err, protocol.ErrShortRead):
		return TagProtoShortRead
	case errors.Is(err, protocol.ErrContentLengthMismatch):
		return TagProtoContentLength
	case errors.Is(err, protocol.ErrMissingTrailer):
		return TagProtoMissingTrailer
	case errors.Is(err, protocol.ErrUnexpectedStatus):
		return TagProtoUnexpectedStatus
	case errors.Is(err, protocol.ErrConnectionBroken), errors.Is(err, imageserver.ErrBroken):
		return TagProtoConnectionBroken
	case errors.Is(err, errUnsupportedCodec):
		return TagCodecUnsupported
	case errors.Is(err, encoder.ErrExitNonZero):
		return TagEncoderNonZeroExit
	default:
		return TagUnknown
	}
}

// ErrNoRecordingInRange means the server has no frames at all within
// [t0, t1] — the seek's first frame already lies past t1.
var ErrNoRecordingInRange = errors.New("policy: no recording in range")

// unsupportedCodecError wraps the numeric codec id observed on the first
// frame when it is neither JPEG nor RawH264 (spec.md §3).
type unsupportedCodecError struct {
	codecID uint16
}

func (e *unsupportedCodecError) Error() string {
	return fmt.Sprintf("codec: unsupported codec id 0x%04X", e.codecID)
}

func (e *unsupportedCodecError) Is(target error) bool {
	return target == errUnsupportedCodec
}

var errUnsupportedCodec = errors.New("codec: unsupported")

func newUnsupportedCodecError(codecID uint16) error {
	return &unsupportedCodecError{codecID: codecID}
}
