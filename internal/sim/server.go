// Package sim serves a simulated laser controller for tests and offline development.
package sim

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
)

// Handler answers one command line (without its CR LF) with a response payload.
type Handler interface {
	Handle(context.Context, string) string
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(context.Context, string) string

func (f HandlerFunc) Handle(ctx context.Context, line string) string {
	return f(ctx, line)
}

// Serve accepts controller clients until context cancellation or listener close.
// Every reply is the handler payload followed by terminator.
func Serve(ctx context.Context, listener net.Listener, handler Handler, terminator []byte) error {
	var wg sync.WaitGroup

	go func() {
		<-ctx.Done()
		_ = listener.Close()
	}()

	for {
		conn, err := listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) || ctx.Err() != nil {
				wg.Wait()
				return nil
			}
			return fmt.Errorf("accept controller connection: %w", err)
		}

		wg.Add(1)
		go func(c net.Conn) {
			defer wg.Done()
			defer c.Close()

			stop := context.AfterFunc(ctx, func() { _ = c.Close() })
			defer stop()

			reader := bufio.NewReader(c)
			for {
				line, err := reader.ReadString('\n')
				if err != nil {
					return
				}
				resp := handler.Handle(ctx, strings.TrimRight(line, "\r\n"))
				if _, err := c.Write(append([]byte(resp), terminator...)); err != nil {
					return
				}
			}
		}(conn)
	}
}
