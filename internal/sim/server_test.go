package sim

import (
	"bufio"
	"context"
	"io"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/rbright/merion/internal/fsm"
	"github.com/rbright/merion/internal/laser"
	"github.com/rbright/merion/internal/protocol"
)

func startSim(t *testing.T, handler Handler, terminator string) (*net.TCPAddr, context.CancelFunc) {
	t.Helper()

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	serveDone := make(chan error, 1)
	go func() {
		serveDone <- Serve(ctx, listener, handler, []byte(terminator))
	}()
	t.Cleanup(func() {
		cancel()
		require.NoError(t, <-serveDone)
	})

	return listener.Addr().(*net.TCPAddr), cancel
}

func dialClient(t *testing.T, addr *net.TCPAddr, terminator string) *protocol.Client {
	t.Helper()

	c := protocol.NewClient(protocol.Options{
		Host:       addr.IP.String(),
		Port:       addr.Port,
		Timeout:    time.Second,
		Terminator: []byte(terminator),
	})
	require.NoError(t, c.Open(context.Background()))
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestServeRepliesWithTerminator(t *testing.T) {
	addr, _ := startSim(t, HandlerFunc(func(_ context.Context, line string) string {
		return "echo:" + line
	}), protocol.TerminatorLF)

	conn, err := net.Dial("tcp", addr.String())
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Write([]byte("state\r\n"))
	require.NoError(t, err)

	reply := make([]byte, len("echo:state\n> "))
	_, err = io.ReadFull(bufio.NewReader(conn), reply)
	require.NoError(t, err)
	require.Equal(t, "echo:state\n> ", string(reply))
}

func TestServeStopsOnCancel(t *testing.T) {
	addr, cancel := startSim(t, NewController(), protocol.TerminatorLF)
	c := dialClient(t, addr, protocol.TerminatorLF)

	cancel()
	require.Eventually(t, func() bool {
		probe, err := net.DialTimeout("tcp", addr.String(), 50*time.Millisecond)
		if err != nil {
			return true
		}
		_ = probe.Close()
		return false
	}, time.Second, 20*time.Millisecond)

	_, err := c.ReadResponse()
	require.ErrorIs(t, err, protocol.ErrConnectionLost)
	require.Equal(t, fsm.StateDisconnected, c.State())
}

func TestEndToEndSetDiodePulseWidthToMax(t *testing.T) {
	for _, terminator := range []string{protocol.TerminatorLF, protocol.TerminatorCR} {
		controller := NewController()
		addr, _ := startSim(t, controller, terminator)
		c := dialClient(t, addr, terminator)
		l := laser.New(c)

		value, err := l.SetDiodePulseWidthToMax()
		require.NoError(t, err)
		require.Equal(t, "250", value)
		require.Equal(t, "250", controller.Value("/osc/diode/cpw"))

		require.Equal(t, 0x00F2, l.CurrentState())
		require.Equal(t, []string{
			"propget /osc/diode/cpw limitmax",
			"set /osc/diode/cpw 250",
			"state",
		}, controller.Commands())
	}
}

func TestEndToEndStateUnknownForNonHexReply(t *testing.T) {
	addr, _ := startSim(t, HandlerFunc(func(context.Context, string) string { return "zz" }), protocol.TerminatorLF)
	c := dialClient(t, addr, protocol.TerminatorLF)

	require.Equal(t, protocol.UnknownState, c.QueryState())
}

func TestControllerHandle(t *testing.T) {
	c := NewController()
	ctx := context.Background()

	require.Equal(t, "00F2", c.Handle(ctx, "state"))
	require.Equal(t, "120", c.Handle(ctx, "get /osc/diode/cpw"))
	require.Equal(t, "10", c.Handle(ctx, "propget /osc/diode/cpw limitmin"))
	require.Equal(t, "", c.Handle(ctx, "set /osc/diode/cpw 42"))
	require.Equal(t, "42", c.Value("/osc/diode/cpw"))
	require.Contains(t, c.Handle(ctx, "get /osc/diode/xyz"), "unknown path")
	require.Contains(t, c.Handle(ctx, "bogus"), "unknown alias")
	require.Contains(t, c.Handle(ctx, "propget /osc/diode/cpw colour"), "unknown property")

	c.SetState(0x1234)
	require.Equal(t, "1234", c.Handle(ctx, "state"))
}
