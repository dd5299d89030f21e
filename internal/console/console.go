// Package console runs an interactive prompt that forwards typed commands to the controller.
package console

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/rbright/merion/internal/fsm"
	"github.com/rbright/merion/internal/laser"
	"github.com/rbright/merion/internal/protocol"
)

const Prompt = "merion> "

// Session is an open controller connection.
type Session interface {
	laser.Conn
	State() fsm.State
}

// Console reads command lines and prints controller responses.
type Console struct {
	session Session
	laser   *laser.Laser
	in      LineReader
	out     io.Writer
}

func New(session Session, in LineReader, out io.Writer) *Console {
	return &Console{session: session, laser: laser.New(session), in: in, out: out}
}

// Run loops until .quit, end of input, or a lost connection (returned as an error).
func (c *Console) Run() error {
	fmt.Fprintln(c.out, "Type controller commands, or .help for console commands.")
	for {
		line, err := c.in.GetLine(Prompt)
		if err != nil {
			if errors.Is(err, io.EOF) {
				fmt.Fprintln(c.out)
				return nil
			}
			return err
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if line == ".quit" || line == ".exit" {
			return nil
		}

		if err := c.execute(line); err != nil {
			if errors.Is(err, protocol.ErrConnectionLost) {
				return err
			}
			fmt.Fprintf(c.out, "error: %v\n", err)
		}
		if c.session.State() != fsm.StateConnected {
			return protocol.ErrConnectionLost
		}
	}
}

func (c *Console) execute(line string) error {
	if strings.HasPrefix(line, ".") {
		return c.dotCommand(line)
	}

	cmd, err := protocol.ParseLine(line)
	if err != nil {
		return err
	}
	if err := c.session.SendCommand(cmd); err != nil {
		return err
	}
	resp, err := c.session.ReadResponse()
	if errors.Is(err, protocol.ErrNoResponse) {
		fmt.Fprintln(c.out, "(no response)")
		return nil
	}
	if err != nil {
		return err
	}
	fmt.Fprintln(c.out, resp)
	return nil
}

func (c *Console) dotCommand(line string) error {
	fields := strings.Fields(line)
	switch fields[0] {
	case ".help":
		fmt.Fprint(c.out, helpText)
		return nil
	case ".state":
		fmt.Fprintf(c.out, "state = %s\n", laser.FormatState(c.laser.CurrentState()))
		return nil
	case ".max":
		if len(fields) != 2 {
			return errors.New("usage: .max /tree/branch/function")
		}
		tree, branch, function, err := protocol.SplitPath(fields[1])
		if err != nil {
			return err
		}
		value, err := c.laser.GetThenSetMax(tree, branch, function)
		if err != nil {
			return err
		}
		fmt.Fprintf(c.out, "%s set to %s\n", fields[1], value)
		return nil
	default:
		return fmt.Errorf("unknown console command %s (try .help)", fields[0])
	}
}

const helpText = `Controller commands:
  <verb> /tree/branch/function [arg]   e.g. propget /osc/diode/cpw limitmax
  <alias> [value]                      e.g. state
Console commands:
  .state                               query and decode the state bits
  .max /tree/branch/function           set a function to its limitmax
  .help                                show this help
  .quit                                leave the console
`
