package imageserver

import (
	"bufio"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/conticomp/xprotect-export/internal/metrics"
	"github.com/conticomp/xprotect-export/internal/protocol"
	"github.com/conticomp/xprotect-export/internal/servicelog"
)

// Connection owns one TCP socket to an ImageServer Recording Server. It
// is single-writer, single-reader: concurrent callers must coordinate
// through Pipeliner (spec.md §4.4).
type Connection struct {
	logger servicelog.Logger

	mu        sync.Mutex
	conn      net.Conn
	br        *bufio.Reader
	broken    bool
	brokenErr error

	readTimeout time.Duration
}

// Dial opens a TCP connection to addr, applying connectTimeout to the
// dial itself. The connection starts in the Open state; no ImageServer
// handshake has been issued yet — the caller must still send connect.
func Dial(logger servicelog.Logger, addr string, connectTimeout, readTimeout time.Duration) (*Connection, error) {
	conn, err := net.DialTimeout("tcp", addr, connectTimeout)
	if err != nil {
		return nil, fmt.Errorf("imageserver: dial %s: %w", addr, err)
	}
	return &Connection{
		logger:      logger,
		conn:        conn,
		br:          bufio.NewReaderSize(conn, 64*1024),
		readTimeout: readTimeout,
	}, nil
}

func (c *Connection) fail(err error) error {
	if !c.broken {
		metrics.ConnectionsBroken.Inc()
	}
	c.broken = true
	c.brokenErr = err
	return err
}

// Send writes a framed request, applying the write half of the
// configured timeout.
func (c *Connection) Send(payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.broken {
		return ErrBroken
	}
	if err := c.conn.SetWriteDeadline(time.Now().Add(c.readTimeout)); err != nil {
		return c.fail(fmt.Errorf("%w: %v", ErrBroken, err))
	}
	if _, err := c.conn.Write(payload); err != nil {
		return c.fail(fmt.Errorf("%w: write failed: %v", ErrBroken, err))
	}
	return nil
}

// ReadMethodResponse reads one XML method-call response, breaking the
// connection on any protocol error (spec.md §4.4).
func (c *Connection) ReadMethodResponse() (protocol.MethodResponse, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.broken {
		return protocol.MethodResponse{}, ErrBroken
	}
	if err := c.conn.SetReadDeadline(time.Now().Add(c.readTimeout)); err != nil {
		return protocol.MethodResponse{}, c.fail(err)
	}
	resp, err := protocol.ReadMethodResponse(c.br)
	if err != nil {
		return protocol.MethodResponse{}, c.fail(err)
	}
	return resp, nil
}

// ReadImageResponse reads one binary ImageResponse frame, breaking the
// connection on any protocol error (spec.md §4.4 — "the connection
// transitions to a terminal Broken state").
func (c *Connection) ReadImageResponse() (protocol.Frame, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.broken {
		return protocol.Frame{}, ErrBroken
	}
	if err := c.conn.SetReadDeadline(time.Now().Add(c.readTimeout)); err != nil {
		return protocol.Frame{}, c.fail(err)
	}
	frame, err := protocol.ReadImageResponse(c.br)
	if err != nil {
		return protocol.Frame{}, c.fail(err)
	}
	return frame, nil
}

// PeekKind reports whether the next response is a method response or an
// image response, per spec.md §4.3's first-byte discrimination.
func (c *Connection) PeekKind() (protocol.ResponseKind, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.broken {
		return 0, ErrBroken
	}
	if err := c.conn.SetReadDeadline(time.Now().Add(c.readTimeout)); err != nil {
		return 0, c.fail(err)
	}
	kind, err := protocol.PeekKind(c.br)
	if err != nil {
		return 0, c.fail(err)
	}
	return kind, nil
}

// Broken reports whether the connection has entered its terminal state.
func (c *Connection) Broken() (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.broken, c.brokenErr
}

// Close tears down the socket. Safe to call on an already-broken
// connection; idempotent-ish (a second Close on a nil conn is a no-op).
func (c *Connection) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	return err
}
