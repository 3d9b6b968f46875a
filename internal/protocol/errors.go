package protocol

type protoError string

func (e protoError) Error() string { return string(e) }

// Taxonomy per spec.md §7. ErrConnectionBroken names the terminal
// broken-connection kind; imageserver.Connection reports its sticky
// broken state with imageserver.ErrBroken, which the exporter maps to
// the same taxonomy tag.
const (
	ErrBadHeader             protoError = "proto: bad header"
	ErrShortRead             protoError = "proto: short read"
	ErrContentLengthMismatch protoError = "proto: content-length mismatch"
	ErrMissingTrailer        protoError = "proto: missing trailer"
	ErrUnexpectedStatus      protoError = "proto: unexpected status"
	ErrConnectionBroken      protoError = "proto: connection broken"
)
