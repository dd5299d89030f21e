package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"syscall"
)

// Failure kinds reported by the TCP transport. Match them with errors.Is.
var (
	ErrConnectRefused = errors.New("connection refused")
	ErrConnectTimeout = errors.New("connect timed out")
	ErrConnectFailed  = errors.New("connect failed")
	ErrAlreadyOpen    = errors.New("transport already open")
	ErrWriteFailed    = errors.New("write failed")
	ErrReadTimeout    = errors.New("read timed out")
	ErrPeerClosed     = errors.New("connection closed by peer")
	ErrReadFailed     = errors.New("read failed")
	ErrEmptyDelimiter = errors.New("empty delimiter")
)

// OpError describes one failed transport operation against a controller address.
type OpError struct {
	Op   string
	Addr string
	Kind error
	Err  error
}

// Error implements the error interface.
func (e *OpError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s %s: %v: %v", e.Op, e.Addr, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Op, e.Addr, e.Kind)
}

// Unwrap exposes both the failure kind and the underlying cause to errors.Is/As.
func (e *OpError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

func classifyDial(err error) error {
	if errors.Is(err, syscall.ECONNREFUSED) {
		return ErrConnectRefused
	}
	if isTimeout(err) || errors.Is(err, context.DeadlineExceeded) {
		return ErrConnectTimeout
	}
	return ErrConnectFailed
}

func classifyRead(err error) error {
	if isTimeout(err) {
		return ErrReadTimeout
	}
	if IsPeerClosed(err) {
		return ErrPeerClosed
	}
	return ErrReadFailed
}

func isTimeout(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// IsPeerClosed reports whether err means the socket is gone: EOF, reset, broken pipe or already closed.
func IsPeerClosed(err error) bool {
	return errors.Is(err, io.EOF) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.EPIPE) ||
		errors.Is(err, net.ErrClosed)
}
