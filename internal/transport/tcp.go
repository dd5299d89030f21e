// Package transport owns the raw TCP socket to a laser controller.
package transport

import (
	"bytes"
	"context"
	"net"
	"strconv"
	"time"
)

const readChunkSize = 4096

// TCP is a blocking, single-owner TCP byte stream with delimiter-based reads.
//
// It is not safe for concurrent use; one command is outstanding at a time.
type TCP struct {
	conn    net.Conn
	addr    string
	timeout time.Duration
	pending []byte
}

// NewTCP returns an unopened transport.
func NewTCP() *TCP {
	return &TCP{}
}

// Open dials host:port, bounding the attempt by timeout. The same timeout later bounds writes.
func (t *TCP) Open(ctx context.Context, host string, port int, timeout time.Duration) error {
	addr := net.JoinHostPort(host, strconv.Itoa(port))
	if t.conn != nil {
		return &OpError{Op: "dial", Addr: addr, Kind: ErrAlreadyOpen}
	}

	dialer := net.Dialer{Timeout: timeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return &OpError{Op: "dial", Addr: addr, Kind: classifyDial(err), Err: err}
	}

	t.conn = conn
	t.addr = addr
	t.timeout = timeout
	t.pending = nil
	return nil
}

// IsOpen reports whether a socket is currently held.
func (t *TCP) IsOpen() bool {
	return t.conn != nil
}

// Addr returns host:port of the open socket, or "" when closed.
func (t *TCP) Addr() string {
	return t.addr
}

// Write sends b in full.
func (t *TCP) Write(b []byte) error {
	if t.conn == nil {
		return &OpError{Op: "write", Addr: t.addr, Kind: ErrWriteFailed, Err: net.ErrClosed}
	}
	if t.timeout > 0 {
		if err := t.conn.SetWriteDeadline(time.Now().Add(t.timeout)); err != nil {
			return &OpError{Op: "write", Addr: t.addr, Kind: ErrWriteFailed, Err: err}
		}
	}
	if _, err := t.conn.Write(b); err != nil {
		return &OpError{Op: "write", Addr: t.addr, Kind: ErrWriteFailed, Err: err}
	}
	return nil
}

// ReadUntil blocks until delim is seen or timeout elapses and returns the bytes up to and including delim.
//
// Bytes received after delim stay buffered for the next call, and so does a partial response
// when the deadline passes. A timeout yields ErrReadTimeout; a closed or reset peer yields ErrPeerClosed.
func (t *TCP) ReadUntil(delim []byte, timeout time.Duration) ([]byte, error) {
	if len(delim) == 0 {
		return nil, &OpError{Op: "read", Addr: t.addr, Kind: ErrEmptyDelimiter}
	}
	if t.conn == nil {
		return nil, &OpError{Op: "read", Addr: t.addr, Kind: ErrPeerClosed, Err: net.ErrClosed}
	}

	if frame, ok := t.cut(delim); ok {
		return frame, nil
	}

	if err := t.conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return nil, &OpError{Op: "read", Addr: t.addr, Kind: ErrReadFailed, Err: err}
	}

	chunk := make([]byte, readChunkSize)
	for {
		n, err := t.conn.Read(chunk)
		if n > 0 {
			// Only rescan the tail that could contain a delimiter spanning the previous read.
			start := len(t.pending) - len(delim) + 1
			if start < 0 {
				start = 0
			}
			t.pending = append(t.pending, chunk[:n]...)
			if idx := bytes.Index(t.pending[start:], delim); idx >= 0 {
				return t.take(start + idx + len(delim)), nil
			}
		}
		if err != nil {
			return nil, &OpError{Op: "read", Addr: t.addr, Kind: classifyRead(err), Err: err}
		}
	}
}

// Close releases the socket. Closing a closed or never-opened transport is a no-op.
func (t *TCP) Close() error {
	if t.conn == nil {
		return nil
	}
	err := t.conn.Close()
	t.conn = nil
	t.addr = ""
	t.pending = nil
	return err
}

func (t *TCP) cut(delim []byte) ([]byte, bool) {
	idx := bytes.Index(t.pending, delim)
	if idx < 0 {
		return nil, false
	}
	return t.take(idx + len(delim)), true
}

func (t *TCP) take(n int) []byte {
	frame := make([]byte, n)
	copy(frame, t.pending[:n])
	t.pending = append(t.pending[:0], t.pending[n:]...)
	return frame
}
