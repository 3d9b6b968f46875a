package imageserver

import (
	"fmt"

	"github.com/conticomp/xprotect-export/internal/protocol"
)

// IDCounter hands out strictly increasing request ids for one
// Connection's lifetime (spec.md §4.5 requires them monotonic on the
// wire). One export job owns one Connection at a time, so a plain
// per-connection counter needs no further coordination.
type IDCounter struct {
	next uint32
}

// NewIDCounter builds a counter starting from 1.
func NewIDCounter() *IDCounter {
	return &IDCounter{}
}

func (c *IDCounter) take() uint32 {
	c.next++
	return c.next
}

// Connect issues the connect method call and waits for its response,
// requesting raw codec mode (spec.md §4.3 — alwaysstdjpeg=no).
func (c *Connection) Connect(ids *IDCounter, cameraID, imageServerToken string) error {
	id := ids.take()
	if err := c.Send(protocol.BuildConnect(id, cameraID, imageServerToken, false)); err != nil {
		return err
	}
	resp, err := c.ReadMethodResponse()
	if err != nil {
		return err
	}
	return checkEcho(id, resp)
}

// ConnectUpdate refreshes the ImageServer token bound to an already
// open connection, without reconnecting (spec.md §4.5 point 5).
func (c *Connection) ConnectUpdate(ids *IDCounter, imageServerToken string) error {
	id := ids.take()
	if err := c.Send(protocol.BuildConnectUpdate(id, imageServerToken)); err != nil {
		return err
	}
	resp, err := c.ReadMethodResponse()
	if err != nil {
		return err
	}
	return checkEcho(id, resp)
}

// Goto seeks the stream to unixMs and waits for acknowledgement.
func (c *Connection) Goto(ids *IDCounter, unixMs int64) error {
	id := ids.take()
	if err := c.Send(protocol.BuildGoto(id, unixMs)); err != nil {
		return err
	}
	resp, err := c.ReadMethodResponse()
	if err != nil {
		return err
	}
	return checkEcho(id, resp)
}

// SendNext writes one next request without waiting for its response,
// returning the request id so the caller (Pipeliner) can track it in
// the in-flight window.
func (c *Connection) SendNext(ids *IDCounter) (uint32, error) {
	id := ids.take()
	if err := c.Send(protocol.BuildNext(id)); err != nil {
		return 0, err
	}
	return id, nil
}

// Disconnect tears down the server-side session. Best-effort: callers
// close the socket regardless of its outcome.
func (c *Connection) Disconnect(ids *IDCounter) error {
	id := ids.take()
	if err := c.Send(protocol.BuildDisconnect(id)); err != nil {
		return err
	}
	_, err := c.ReadMethodResponse()
	return err
}

func checkEcho(wantID uint32, resp protocol.MethodResponse) error {
	if resp.RequestID != wantID {
		return fmt.Errorf("expected requestid %d, got %d: %w", wantID, resp.RequestID, ErrUnexpectedEcho)
	}
	return nil
}
