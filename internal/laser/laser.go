// Package laser holds caller-side procedures built on the protocol client.
package laser

import (
	"errors"
	"fmt"

	"github.com/rbright/merion/internal/protocol"
)

// Conn is the subset of *protocol.Client the procedures use.
type Conn interface {
	SendCommand(cmd protocol.Command) error
	ReadResponse() (string, error)
	QueryState() int
}

// Laser drives a Merion C laser over an open connection.
type Laser struct {
	conn Conn
}

func New(conn Conn) *Laser {
	return &Laser{conn: conn}
}

// CurrentState returns the state bits, or protocol.UnknownState.
func (l *Laser) CurrentState() int {
	return l.conn.QueryState()
}

// Get reads /tree/branch/function.
func (l *Laser) Get(tree, branch, function string) (string, error) {
	return l.query(protocol.Structured("get", tree, branch, function))
}

// Set writes value to /tree/branch/function and returns the controller's acknowledgement, which may be empty.
func (l *Laser) Set(tree, branch, function, value string) (string, error) {
	ack, err := l.query(protocol.Structured("set", tree, branch, function).WithValue(value))
	if err != nil && !isNoResponse(err) {
		return "", err
	}
	return ack, nil
}

// PropGet reads the named property of /tree/branch/function, e.g. limitmax.
func (l *Laser) PropGet(tree, branch, function, property string) (string, error) {
	return l.query(protocol.Structured("propget", tree, branch, function).WithParameter(property))
}

// GetThenSetMax reads the limitmax property and, when one was returned, sets the function to it.
// It returns the value that was set.
func (l *Laser) GetThenSetMax(tree, branch, function string) (string, error) {
	limit, err := l.PropGet(tree, branch, function, "limitmax")
	if err != nil {
		return "", fmt.Errorf("read limitmax of /%s/%s/%s: %w", tree, branch, function, err)
	}
	if _, err := l.Set(tree, branch, function, limit); err != nil {
		return "", fmt.Errorf("set /%s/%s/%s to %s: %w", tree, branch, function, limit, err)
	}
	return limit, nil
}

// SetDiodePulseWidthToMax sets the oscillator diode pulse width to its maximum.
func (l *Laser) SetDiodePulseWidthToMax() (string, error) {
	return l.GetThenSetMax("osc", "diode", "cpw")
}

func (l *Laser) query(cmd protocol.Command) (string, error) {
	if err := l.conn.SendCommand(cmd); err != nil {
		return "", err
	}
	return l.conn.ReadResponse()
}

// FormatState renders state bits as four hex digits, or "unknown".
func FormatState(state int) string {
	if state == protocol.UnknownState {
		return "unknown"
	}
	return fmt.Sprintf("%04X", state)
}

func isNoResponse(err error) bool {
	return errors.Is(err, protocol.ErrNoResponse)
}
