package protocol

import (
	"bytes"
	"context"
	"log/slog"
	"net"
	"strconv"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/rbright/merion/internal/fsm"
	"github.com/rbright/merion/internal/transport"
)

type recordingObserver struct {
	connects []error
	sent     []string
	outcomes []Outcome
}

func (r *recordingObserver) Connected(err error) { r.connects = append(r.connects, err) }

func (r *recordingObserver) CommandSent(cmd Command, err error) {
	if err == nil {
		r.sent = append(r.sent, cmd.String())
	}
}

func (r *recordingObserver) ResponseRead(outcome Outcome, _ time.Duration) {
	r.outcomes = append(r.outcomes, outcome)
}

func connectedClient(t *testing.T, f *fakeTransport) *Client {
	t.Helper()

	c := NewClient(Options{Host: "192.168.10.100", Transport: f, Timeout: 50 * time.Millisecond})
	require.NoError(t, c.Open(context.Background()))
	return c
}

func TestNewClientDefaults(t *testing.T) {
	c := NewClient(Options{Host: "laser"})
	require.Equal(t, fsm.StateDisconnected, c.State())
	require.Equal(t, DefaultTimeout, c.Timeout())
	require.Equal(t, DefaultPort, c.port)
	require.Equal(t, []byte(TerminatorLF), c.terminator)
	require.Empty(t, c.SessionID())
}

func TestOpenAndCloseLifecycle(t *testing.T) {
	f := &fakeTransport{}
	c := connectedClient(t, f)
	require.Equal(t, fsm.StateConnected, c.State())
	require.NotEmpty(t, c.SessionID())

	for i := 0; i < 3; i++ {
		require.NoError(t, c.Close())
		require.Equal(t, fsm.StateDisconnected, c.State())
	}
	require.Empty(t, c.SessionID())
}

func TestCloseNeverOpened(t *testing.T) {
	c := NewClient(Options{Transport: &fakeTransport{}})
	require.NoError(t, c.Close())
	require.NoError(t, c.Close())
	require.Equal(t, fsm.StateDisconnected, c.State())
}

func TestOpenFailureStaysDisconnectedAndLogs(t *testing.T) {
	var logs bytes.Buffer
	obs := &recordingObserver{}
	openErr := &transport.OpError{Op: "dial", Addr: "192.168.10.100:10001", Kind: transport.ErrConnectRefused}
	c := NewClient(Options{
		Host:      "192.168.10.100",
		Transport: &fakeTransport{openErr: openErr},
		Logger:    slog.New(slog.NewJSONHandler(&logs, nil)),
		Observer:  obs,
	})

	err := c.Open(context.Background())
	require.ErrorIs(t, err, transport.ErrConnectRefused)
	require.Equal(t, fsm.StateDisconnected, c.State())
	require.Contains(t, logs.String(), `"msg":"connection refused"`)
	require.Len(t, obs.connects, 1)
}

func TestOpenWhileConnectedRejected(t *testing.T) {
	f := &fakeTransport{}
	c := connectedClient(t, f)

	require.ErrorIs(t, c.Open(context.Background()), transport.ErrAlreadyOpen)
	require.Equal(t, 1, f.opened)
}

func TestSendAndReadWhileDisconnectedPanics(t *testing.T) {
	c := NewClient(Options{Transport: &fakeTransport{}})

	require.PanicsWithError(t, "send command: client is not connected", func() {
		_ = c.SendCommand(Alias("state"))
	})
	require.PanicsWithError(t, "read response: client is not connected", func() {
		_, _ = c.ReadResponse()
	})
}

func TestSendCommandWritesEncodedBytes(t *testing.T) {
	f := &fakeTransport{}
	obs := &recordingObserver{}
	c := NewClient(Options{Transport: f, Observer: obs})
	require.NoError(t, c.Open(context.Background()))

	require.NoError(t, c.SendCommand(Structured("propget", "osc", "diode", "cpw").WithParameter("limitmax")))
	require.Equal(t, [][]byte{[]byte("propget /osc/diode/cpw limitmax\r\n")}, f.written)
	require.Equal(t, []string{"propget /osc/diode/cpw limitmax"}, obs.sent)
}

func TestSendCommandWriteFailureReturnsError(t *testing.T) {
	f := &fakeTransport{writeErr: &transport.OpError{Op: "write", Kind: transport.ErrWriteFailed}}
	c := connectedClient(t, f)

	err := c.SendCommand(Alias("state"))
	require.ErrorIs(t, err, transport.ErrWriteFailed)
	require.Equal(t, fsm.StateConnected, c.State())
}

func TestSendCommandPeerResetDisconnects(t *testing.T) {
	for _, cause := range []error{net.ErrClosed, syscall.EPIPE, syscall.ECONNRESET} {
		t.Run(cause.Error(), func(t *testing.T) {
			f := &fakeTransport{writeErr: &transport.OpError{Op: "write", Kind: transport.ErrWriteFailed, Err: cause}}
			c := connectedClient(t, f)

			err := c.SendCommand(Alias("state"))
			require.ErrorIs(t, err, ErrConnectionLost)
			require.ErrorIs(t, err, transport.ErrWriteFailed)
			require.Equal(t, fsm.StateDisconnected, c.State())
			require.Empty(t, c.SessionID())
			require.Equal(t, 1, f.closed)

			require.NoError(t, c.Open(context.Background()))
			require.Equal(t, fsm.StateConnected, c.State())
		})
	}
}

func TestQueryStateAfterWriteResetDisconnects(t *testing.T) {
	f := &fakeTransport{writeErr: &transport.OpError{Op: "write", Kind: transport.ErrWriteFailed, Err: net.ErrClosed}}
	c := connectedClient(t, f)

	require.Equal(t, UnknownState, c.QueryState())
	require.Equal(t, fsm.StateDisconnected, c.State())
}

func TestParseStateNeverReturnsSentinel(t *testing.T) {
	for _, text := range []string{"FFFFFFFF", "7FFFFFFF", "FFFF", "FFFFFFFFFFFFFFFF"} {
		got, err := ParseState(text)
		if err != nil {
			require.Equal(t, UnknownState, got)
			continue
		}
		require.GreaterOrEqual(t, got, 0, text)
	}

	got, err := ParseState("FFFFFFFF")
	if strconv.IntSize == 64 {
		require.NoError(t, err)
		require.Equal(t, uint64(0xFFFFFFFF), uint64(got))
	} else {
		require.Error(t, err)
	}

	_, err = ParseState("FFFFFFFFFFFFFFFF")
	require.Error(t, err)
}

func TestReadResponseConnectionLostDisconnects(t *testing.T) {
	f := &fakeTransport{afterFragments: &transport.OpError{Op: "read", Kind: transport.ErrPeerClosed}}
	obs := &recordingObserver{}
	c := NewClient(Options{Transport: f, Observer: obs})
	require.NoError(t, c.Open(context.Background()))

	_, err := c.ReadResponse()
	require.ErrorIs(t, err, ErrConnectionLost)
	require.Equal(t, fsm.StateDisconnected, c.State())
	require.Equal(t, 1, f.closed)
	require.Equal(t, []Outcome{OutcomeClosed}, obs.outcomes)
}

func TestQueryStateScenarios(t *testing.T) {
	tests := []struct {
		name      string
		fragments []string
		want      int
	}{
		{name: "hex", fragments: []string{"00F2\n> "}, want: 242},
		{name: "split terminator", fragments: []string{"00F2\n", "> "}, want: 242},
		{name: "prefixed hex", fragments: []string{"0x00f2\n> "}, want: 242},
		{name: "zero", fragments: []string{"0000\n> "}, want: 0},
		{name: "not hex", fragments: []string{"zz\n> "}, want: UnknownState},
		{name: "negative rejected", fragments: []string{"-1\n> "}, want: UnknownState},
		{name: "empty", fragments: []string{"\n> "}, want: UnknownState},
		{name: "wider than int", fragments: []string{"FFFFFFFFFFFFFFFF\n> "}, want: UnknownState},
		{name: "timeout", want: UnknownState},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			f := &fakeTransport{}
			f.script(tc.fragments...)
			c := connectedClient(t, f)

			require.Equal(t, tc.want, c.QueryState())
			require.Equal(t, [][]byte{[]byte("state\r\n")}, f.written)
		})
	}
}

func TestQueryStateWriteFailure(t *testing.T) {
	f := &fakeTransport{writeErr: &transport.OpError{Op: "write", Kind: transport.ErrWriteFailed}}
	c := connectedClient(t, f)
	require.Equal(t, UnknownState, c.QueryState())
}

func TestClientOverLoopbackTCP(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = listener.Close() })

	received := make(chan string, 1)
	go func() {
		conn, acceptErr := listener.Accept()
		if acceptErr != nil {
			return
		}
		defer conn.Close()
		buf := make([]byte, 64)
		n, _ := conn.Read(buf)
		received <- string(buf[:n])
		_, _ = conn.Write([]byte("00F2\n"))
		time.Sleep(20 * time.Millisecond)
		_, _ = conn.Write([]byte("> "))
		time.Sleep(100 * time.Millisecond)
	}()

	addr := listener.Addr().(*net.TCPAddr)
	c := NewClient(Options{Host: addr.IP.String(), Port: addr.Port, Timeout: time.Second})
	require.NoError(t, c.Open(context.Background()))
	defer c.Close()

	require.Equal(t, 242, c.QueryState())
	require.Equal(t, "state\r\n", <-received)
}

func TestClientReadTimeoutElapsed(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = listener.Close() })

	release := make(chan struct{})
	defer close(release)
	go func() {
		conn, acceptErr := listener.Accept()
		if acceptErr != nil {
			return
		}
		defer conn.Close()
		<-release
	}()

	_, port, err := net.SplitHostPort(listener.Addr().String())
	require.NoError(t, err)
	portNum, err := strconv.Atoi(port)
	require.NoError(t, err)

	timeout := 120 * time.Millisecond
	c := NewClient(Options{Host: "127.0.0.1", Port: portNum, Timeout: timeout})
	require.NoError(t, c.Open(context.Background()))
	defer c.Close()

	start := time.Now()
	_, err = c.ReadResponse()
	elapsed := time.Since(start)

	require.ErrorIs(t, err, ErrNoResponse)
	require.GreaterOrEqual(t, elapsed, timeout)
	require.Less(t, elapsed, timeout+500*time.Millisecond)
	require.Equal(t, fsm.StateConnected, c.State())
}
