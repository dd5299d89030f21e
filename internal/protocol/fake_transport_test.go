package protocol

import (
	"bytes"
	"context"
	"net"
	"time"

	"github.com/rbright/merion/internal/transport"
)

// fakeTransport replays scripted inbound fragments and records writes.
type fakeTransport struct {
	openErr   error
	writeErr  error
	fragments [][]byte
	// afterFragments is returned once the script is exhausted; nil means time out.
	afterFragments error

	open    bool
	opened  int
	closed  int
	written [][]byte
	pending []byte
}

func (f *fakeTransport) Open(_ context.Context, _ string, _ int, _ time.Duration) error {
	f.opened++
	if f.openErr != nil {
		return f.openErr
	}
	f.open = true
	return nil
}

func (f *fakeTransport) Write(b []byte) error {
	if f.writeErr != nil {
		return f.writeErr
	}
	f.written = append(f.written, append([]byte(nil), b...))
	return nil
}

func (f *fakeTransport) ReadUntil(delim []byte, timeout time.Duration) ([]byte, error) {
	for {
		if idx := bytes.Index(f.pending, delim); idx >= 0 {
			n := idx + len(delim)
			out := append([]byte(nil), f.pending[:n]...)
			f.pending = f.pending[n:]
			return out, nil
		}
		if len(f.fragments) == 0 {
			if f.afterFragments != nil {
				return nil, f.afterFragments
			}
			return nil, &transport.OpError{Op: "read", Kind: transport.ErrReadTimeout, Err: timeoutError{}}
		}
		f.pending = append(f.pending, f.fragments[0]...)
		f.fragments = f.fragments[1:]
	}
}

func (f *fakeTransport) Close() error {
	f.closed++
	f.open = false
	return nil
}

func (f *fakeTransport) script(fragments ...string) {
	for _, fragment := range fragments {
		f.fragments = append(f.fragments, []byte(fragment))
	}
}

type timeoutError struct{}

func (timeoutError) Error() string   { return "i/o timeout" }
func (timeoutError) Timeout() bool   { return true }
func (timeoutError) Temporary() bool { return true }

var _ net.Error = timeoutError{}

// rawReader returns a fixed result from ReadUntil, ignoring the delimiter.
type rawReader struct {
	raw []byte
	err error
}

func (r rawReader) ReadUntil([]byte, time.Duration) ([]byte, error) {
	return r.raw, r.err
}
