package protocol

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rbright/merion/internal/transport"
)

// UntilReader is the read half of a transport.
type UntilReader interface {
	ReadUntil(delim []byte, timeout time.Duration) ([]byte, error)
}

// ReadResponse reads one response delimited by terminator and returns its trimmed payload.
//
// A timeout or an empty payload yields ErrNoResponse. A closed or reset peer yields ErrConnectionLost
// so callers never mistake a dead socket for a slow controller.
func ReadResponse(r UntilReader, terminator []byte, timeout time.Duration) (string, error) {
	raw, err := r.ReadUntil(terminator, timeout)
	if err != nil {
		switch {
		case errors.Is(err, transport.ErrReadTimeout):
			return "", fmt.Errorf("%w: %w", ErrNoResponse, err)
		case errors.Is(err, transport.ErrPeerClosed):
			return "", fmt.Errorf("%w: %w", ErrConnectionLost, err)
		default:
			return "", fmt.Errorf("read response: %w", err)
		}
	}
	if len(raw) == 0 {
		return "", ErrNoResponse
	}

	payload, _, _ := bytes.Cut(raw, terminator)
	text := strings.TrimSpace(string(payload))
	if text == "" {
		return "", ErrNoResponse
	}
	return text, nil
}
