// Package protocol implements the Merion laser controller command/response protocol.
//
// Commands are ASCII lines terminated by CR LF:
//
//	propget /osc/diode/cpw limitmax\r\n
//	set /osc/diode/cpw 250\r\n
//	state\r\n
//
// The controller ends every response with a line break, a prompt marker and a space. Firmware variants
// differ on the line break, so the receive terminator is configurable:
//
//	00F2\n>    (lf, default)
//	00F2\r>    (cr)
package protocol

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

const (
	// SendTerminator ends every outbound command.
	SendTerminator = "\r\n"

	// TerminatorLF is the line-feed-led response prompt.
	TerminatorLF = "\n> "

	// TerminatorCR is the carriage-return-led response prompt.
	TerminatorCR = "\r> "

	// DefaultPort is the controller's TCP command port.
	DefaultPort = 10001

	// DefaultTimeout bounds connect attempts and each response read.
	DefaultTimeout = 5 * time.Second

	// UnknownState is returned by QueryState when no valid state could be read.
	// It is never a valid state bit pattern.
	UnknownState = -1
)

var (
	// ErrNoResponse covers both a read timeout and an empty response.
	ErrNoResponse = errors.New("no response")

	// ErrConnectionLost reports that the controller closed or reset the socket mid-session.
	ErrConnectionLost = errors.New("connection lost")

	// ErrNotConnected is the cause carried by ContractError when a disconnected client is used.
	ErrNotConnected = errors.New("client is not connected")
)

// ContractError is raised as a panic when the client is used outside its Connected state.
// It signals a programming error and is not meant to be handled as a network failure.
type ContractError struct {
	Op  string
	Err error
}

func (e *ContractError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *ContractError) Unwrap() error {
	return e.Err
}

// ParseTerminator resolves a configured receive terminator: "lf", "cr", a literal such as "\n> "
// (already decoded by the config format), or text carrying Go escape sequences such as `\n> `.
func ParseTerminator(raw string) ([]byte, error) {
	if raw == "" {
		return nil, errors.New("terminator must not be empty")
	}
	switch strings.ToLower(raw) {
	case "lf":
		return []byte(TerminatorLF), nil
	case "cr":
		return []byte(TerminatorCR), nil
	}
	if !strings.Contains(raw, `\`) {
		return []byte(raw), nil
	}

	unquoted, err := strconv.Unquote(`"` + raw + `"`)
	if err != nil {
		return nil, fmt.Errorf("terminator %q: invalid escape sequence", raw)
	}
	if unquoted == "" {
		return nil, errors.New("terminator must not be empty")
	}
	return []byte(unquoted), nil
}
