package imageserver

import (
	"fmt"

	"github.com/conticomp/xprotect-export/internal/protocol"
	"github.com/conticomp/xprotect-export/internal/ring"
)

// DefaultWindowDepth is the target number of outstanding next requests
// Pipeliner keeps in flight (spec.md §4.5).
const DefaultWindowDepth = 8

// MinWindowDepth and MaxWindowDepth bound the configurable window.
const (
	MinWindowDepth = 1
	MaxWindowDepth = 32
)

// ClampWindowDepth constrains a configured depth to the supported range.
func ClampWindowDepth(depth int) int {
	if depth < MinWindowDepth {
		return MinWindowDepth
	}
	if depth > MaxWindowDepth {
		return MaxWindowDepth
	}
	return depth
}

// Pipeliner produces a lazy, ordered sequence of Frame values covering
// a timestamp range, driving a Connection already in the Open state
// after a successful connect (spec.md §4.5).
type Pipeliner struct {
	conn     *Connection
	ids      *IDCounter
	window   int
	t1       int64
	inFlight *ring.Queue[uint32]
	done     bool
}

// NewPipeliner builds a Pipeliner targeting window in-flight requests,
// emitting frames until current_ts_ms >= t1 (Unix milliseconds).
func NewPipeliner(conn *Connection, ids *IDCounter, window int, t1 int64) *Pipeliner {
	window = ClampWindowDepth(window)
	return &Pipeliner{
		conn:     conn,
		ids:      ids,
		window:   window,
		t1:       t1,
		inFlight: ring.New[uint32](window),
	}
}

// Seek issues goto(t0) and primes the in-flight window with window
// outstanding next requests (spec.md §4.5 steps 1-2).
func (p *Pipeliner) Seek(t0 int64) error {
	if err := p.conn.Goto(p.ids, t0); err != nil {
		return err
	}
	for i := 0; i < p.window; i++ {
		id, err := p.conn.SendNext(p.ids)
		if err != nil {
			return err
		}
		if _, evicted := p.inFlight.Push(id); evicted {
			return fmt.Errorf("imageserver: in-flight window overflowed its own capacity")
		}
	}
	return nil
}

// Next returns the next frame in timestamp order, or ok=false once the
// range has been fully consumed. It refills the window by one request
// per frame received, preserving target depth W until near the end of
// the range (spec.md §4.5 step 3, P4).
func (p *Pipeliner) Next() (protocol.Frame, bool, error) {
	if p.done {
		return protocol.Frame{}, false, nil
	}
	wantID, ok := p.inFlight.Pop()
	if !ok {
		p.done = true
		return protocol.Frame{}, false, nil
	}

	frame, err := p.conn.ReadImageResponse()
	if err != nil {
		return protocol.Frame{}, false, err
	}
	if frame.RequestID != wantID {
		return protocol.Frame{}, false, fmt.Errorf("expected requestid %d, got %d: %w", wantID, frame.RequestID, ErrUnexpectedEcho)
	}

	if frame.CurrentTSMs >= p.t1 || !frame.HasNext() {
		p.done = true
		return frame, true, nil
	}

	id, err := p.conn.SendNext(p.ids)
	if err != nil {
		return frame, true, err
	}
	p.inFlight.Push(id)

	return frame, true, nil
}

// InFlight reports the current depth of the outstanding-request window,
// exposed for the pipeline-depth gauge.
func (p *Pipeliner) InFlight() int {
	return p.inFlight.Len()
}

// Done reports whether the range has been fully consumed — no further
// Next calls will produce a frame and the window no longer needs
// refilling.
func (p *Pipeliner) Done() bool {
	return p.done
}

// Quiesce drains every outstanding next request without issuing
// refills, leaving the in-flight window empty. connectupdate must not
// be pipelined with image requests (spec.md §4.5 point 5): the server
// answers strictly in request order, so any method call response read
// while requests are still outstanding would be misparsed as an
// ImageResponse header. Callers send connectupdate only after Quiesce
// returns, then call Refill to resume streaming.
func (p *Pipeliner) Quiesce() ([]protocol.Frame, error) {
	var frames []protocol.Frame
	for {
		wantID, ok := p.inFlight.Pop()
		if !ok {
			break
		}
		frame, err := p.conn.ReadImageResponse()
		if err != nil {
			return frames, err
		}
		if frame.RequestID != wantID {
			return frames, fmt.Errorf("expected requestid %d, got %d: %w", wantID, frame.RequestID, ErrUnexpectedEcho)
		}
		frames = append(frames, frame)
		if frame.CurrentTSMs >= p.t1 || !frame.HasNext() {
			p.done = true
		}
	}
	return frames, nil
}

// Refill re-primes the in-flight window back up to its target depth
// after a Quiesce, a no-op once the range has been fully consumed.
func (p *Pipeliner) Refill() error {
	if p.done {
		return nil
	}
	for p.inFlight.Len() < p.window {
		id, err := p.conn.SendNext(p.ids)
		if err != nil {
			return err
		}
		if _, evicted := p.inFlight.Push(id); evicted {
			return fmt.Errorf("imageserver: in-flight window overflowed its own capacity")
		}
	}
	return nil
}
