package protocol

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/rbright/merion/internal/fsm"
	"github.com/rbright/merion/internal/transport"
)

// Transport is the byte-stream the client drives. *transport.TCP satisfies it.
type Transport interface {
	Open(ctx context.Context, host string, port int, timeout time.Duration) error
	Write(b []byte) error
	ReadUntil(delim []byte, timeout time.Duration) ([]byte, error)
	Close() error
}

// Outcome classifies one response read for observers.
type Outcome string

const (
	OutcomeOK     Outcome = "ok"
	OutcomeNone   Outcome = "none"
	OutcomeClosed Outcome = "closed"
	OutcomeError  Outcome = "error"
)

// Observer receives client lifecycle callbacks, typically to record metrics.
type Observer interface {
	Connected(err error)
	CommandSent(cmd Command, err error)
	ResponseRead(outcome Outcome, elapsed time.Duration)
}

type nopObserver struct{}

func (nopObserver) Connected(error) {}

func (nopObserver) CommandSent(Command, error) {}

func (nopObserver) ResponseRead(Outcome, time.Duration) {}

// Options configures a Client.
type Options struct {
	Host       string
	Port       int
	Timeout    time.Duration
	Terminator []byte
	Transport  Transport
	Logger     *slog.Logger
	Observer   Observer
}

// Client runs synchronous request/response exchanges with one controller.
//
// A Client is Disconnected until Open succeeds. Sending or reading while Disconnected panics with a
// *ContractError. Network failures are returned as errors and never panic.
// A Client is not safe for concurrent use.
type Client struct {
	host       string
	port       int
	timeout    time.Duration
	terminator []byte
	transport  Transport
	logger     *slog.Logger
	observer   Observer

	state   fsm.State
	session string
}

// NewClient applies defaults for unset options and returns a Disconnected client.
func NewClient(opts Options) *Client {
	c := &Client{
		host:       opts.Host,
		port:       opts.Port,
		timeout:    opts.Timeout,
		terminator: opts.Terminator,
		transport:  opts.Transport,
		logger:     opts.Logger,
		observer:   opts.Observer,
		state:      fsm.StateDisconnected,
	}
	if c.port == 0 {
		c.port = DefaultPort
	}
	if c.timeout <= 0 {
		c.timeout = DefaultTimeout
	}
	if len(c.terminator) == 0 {
		c.terminator = []byte(TerminatorLF)
	}
	if c.transport == nil {
		c.transport = transport.NewTCP()
	}
	if c.logger == nil {
		c.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if c.observer == nil {
		c.observer = nopObserver{}
	}
	return c
}

func (c *Client) State() fsm.State { return c.state }

// SessionID identifies the current connection in logs; empty while Disconnected.
func (c *Client) SessionID() string { return c.session }

func (c *Client) Timeout() time.Duration { return c.timeout }

// Open connects to the controller. On failure the client stays Disconnected and the error is
// logged and returned; match it with transport.ErrConnectRefused or transport.ErrConnectTimeout.
func (c *Client) Open(ctx context.Context) error {
	if c.state == fsm.StateConnected {
		return transport.ErrAlreadyOpen
	}

	err := c.transport.Open(ctx, c.host, c.port, c.timeout)
	c.observer.Connected(err)
	if err != nil {
		switch {
		case errors.Is(err, transport.ErrConnectTimeout):
			c.logger.Error("controller not found", "host", c.host, "port", c.port, "error", err.Error())
		case errors.Is(err, transport.ErrConnectRefused):
			c.logger.Error("connection refused", "host", c.host, "port", c.port, "error", err.Error())
		default:
			c.logger.Error("connect failed", "host", c.host, "port", c.port, "error", err.Error())
		}
		return err
	}

	c.transition(fsm.EventOpen)
	c.session = uuid.NewString()
	c.logger.Info("connected", "session", c.session, "host", c.host, "port", c.port)
	return nil
}

// Close releases the connection. It may be called any number of times.
func (c *Client) Close() error {
	err := c.transport.Close()
	if c.state == fsm.StateConnected {
		c.logger.Info("disconnected", "session", c.session)
	}
	c.transition(fsm.EventClose)
	c.session = ""
	return err
}

// SendCommand encodes cmd and writes it. A write failure is logged and returned; the caller decides
// whether to abandon the session. A reset or closed socket yields ErrConnectionLost and leaves the
// client Disconnected, as in ReadResponse.
func (c *Client) SendCommand(cmd Command) error {
	c.mustBeConnected("send command")

	err := c.transport.Write(cmd.Encode())
	c.observer.CommandSent(cmd, err)
	if err != nil {
		if transport.IsPeerClosed(err) {
			c.logger.Error("connection lost", "session", c.session, "command", cmd.String(), "error", err.Error())
			c.drop()
			return fmt.Errorf("%w: %w", ErrConnectionLost, err)
		}
		c.logger.Error("write failed", "session", c.session, "command", cmd.String(), "error", err.Error())
		return err
	}
	c.logger.Debug("command sent", "session", c.session, "command", cmd.String())
	return nil
}

// ReadResponse reads the next response payload.
//
// ErrNoResponse covers both a timeout and an empty response; the two are not distinguished here.
// ErrConnectionLost means the peer went away, after which the client is Disconnected.
func (c *Client) ReadResponse() (string, error) {
	c.mustBeConnected("read response")

	start := time.Now()
	text, err := ReadResponse(c.transport, c.terminator, c.timeout)
	elapsed := time.Since(start)

	switch {
	case err == nil:
		c.observer.ResponseRead(OutcomeOK, elapsed)
		c.logger.Debug("response read", "session", c.session, "response", text, "elapsed_ms", elapsed.Milliseconds())
	case errors.Is(err, ErrNoResponse):
		c.observer.ResponseRead(OutcomeNone, elapsed)
		c.logger.Warn("no response", "session", c.session, "elapsed_ms", elapsed.Milliseconds())
	case errors.Is(err, ErrConnectionLost):
		c.observer.ResponseRead(OutcomeClosed, elapsed)
		c.logger.Error("connection lost", "session", c.session, "error", err.Error())
		c.drop()
	default:
		c.observer.ResponseRead(OutcomeError, elapsed)
		c.logger.Error("read failed", "session", c.session, "error", err.Error())
	}
	return text, err
}

// Query sends cmd and reads its response.
func (c *Client) Query(cmd Command) (string, error) {
	if err := c.SendCommand(cmd); err != nil {
		return "", err
	}
	return c.ReadResponse()
}

// QueryState sends the "state" alias and parses the reply as hexadecimal state bits.
//
// It returns UnknownState (-1) when nothing was read or the reply is not hexadecimal.
// -1 never collides with a real state value.
func (c *Client) QueryState() int {
	resp, err := c.Query(Alias("state"))
	if err != nil {
		return UnknownState
	}
	state, err := ParseState(resp)
	if err != nil {
		c.logger.Warn("unparseable state", "session", c.session, "response", resp)
		return UnknownState
	}
	return state
}

// ParseState parses hexadecimal state text such as "00F2" or "0x00f2".
func ParseState(text string) (int, error) {
	text = strings.TrimSpace(text)
	if lower := strings.ToLower(text); strings.HasPrefix(lower, "0x") {
		text = text[2:]
	}
	// One bit short of int so a parsed value can never be negative or equal UnknownState.
	v, err := strconv.ParseUint(text, 16, strconv.IntSize-1)
	if err != nil {
		return UnknownState, err
	}
	return int(v), nil
}

func (c *Client) mustBeConnected(op string) {
	if c.state != fsm.StateConnected {
		panic(&ContractError{Op: op, Err: ErrNotConnected})
	}
}

// drop releases a socket the peer has abandoned.
func (c *Client) drop() {
	_ = c.transport.Close()
	c.transition(fsm.EventDrop)
	c.session = ""
}

func (c *Client) transition(event fsm.Event) {
	next, err := fsm.Transition(c.state, event)
	if err != nil {
		panic(&ContractError{Op: string(event), Err: err})
	}
	c.state = next
}
