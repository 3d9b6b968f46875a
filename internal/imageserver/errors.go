// Package imageserver implements the Connection and Pipeliner
// components (spec.md §4.4, §4.5): an authenticated, single-flight TCP
// session against a Milestone Recording Server, and the windowed
// request/response sequencer layered over it.
package imageserver

type connError string

func (e connError) Error() string { return string(e) }

const (
	// ErrBroken is returned by every method once the connection has
	// entered its terminal broken state (spec.md §4.4).
	ErrBroken connError = "imageserver: connection broken"
	// ErrNotConnected is returned when a call requires an established
	// connect() before it can proceed.
	ErrNotConnected connError = "imageserver: not connected"
	// ErrSequenceExhausted marks the end of a recorded range: next
	// returned next_ts_ms == -1 or current_ts_ms >= the requested end.
	ErrSequenceExhausted connError = "imageserver: sequence exhausted"
	// ErrUnexpectedEcho means a method response's requestid did not match
	// the request it was read in response to — IDs must be strictly
	// increasing and matched in send order (spec.md §4.5).
	ErrUnexpectedEcho connError = "imageserver: unexpected requestid echo"
)
