// Package encoder drives an external ffmpeg process as the MP4 muxing
// sink for exported frames (spec.md §4.6): H.264 passthrough copy when
// the source codec is already H.264, JPEG image-sequence encode
// otherwise.
package encoder

type encoderError string

func (e encoderError) Error() string { return string(e) }

const (
	// ErrExitNonZero means ffmpeg exited with a non-zero status; Finish
	// wraps it with the captured stderr tail in the error message.
	ErrExitNonZero encoderError = "encoder: process exited with error"
	// ErrAlreadyFinished is returned by Write on a pipe that has already
	// been finished or aborted.
	ErrAlreadyFinished encoderError = "encoder: already finished"
)
