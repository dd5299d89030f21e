// Package monitor polls controller state and exposes it over HTTP.
package monitor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/rbright/merion/internal/fsm"
	"github.com/rbright/merion/internal/laser"
	"github.com/rbright/merion/internal/metrics"
	"github.com/rbright/merion/internal/protocol"
)

// Client is the part of *protocol.Client the poller drives.
type Client interface {
	Open(ctx context.Context) error
	Close() error
	State() fsm.State
	QueryState() int
}

// Snapshot is the last polled view of the controller.
type Snapshot struct {
	State     int       `json:"state"`
	Hex       string    `json:"hex"`
	Connected bool      `json:"connected"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Monitor owns its client; only the polling goroutine touches it.
type Monitor struct {
	client   Client
	recorder *metrics.Recorder
	interval time.Duration
	logger   *slog.Logger
	now      func() time.Time

	mu       sync.RWMutex
	snapshot Snapshot
}

func New(client Client, recorder *metrics.Recorder, interval time.Duration, logger *slog.Logger) *Monitor {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Monitor{
		client:   client,
		recorder: recorder,
		interval: interval,
		logger:   logger,
		now:      time.Now,
		snapshot: Snapshot{State: protocol.UnknownState, Hex: laser.FormatState(protocol.UnknownState)},
	}
}

// Poll runs one cycle: reconnect when disconnected, then query state.
func (m *Monitor) Poll(ctx context.Context) Snapshot {
	state := protocol.UnknownState
	if m.client.State() != fsm.StateConnected {
		if err := m.client.Open(ctx); err != nil {
			m.logger.Warn("monitor connect failed", "error", err.Error())
		}
	}
	if m.client.State() == fsm.StateConnected {
		state = m.client.QueryState()
	}
	m.recorder.ObserveState(state)

	snap := Snapshot{
		State:     state,
		Hex:       laser.FormatState(state),
		Connected: m.client.State() == fsm.StateConnected,
		UpdatedAt: m.now().UTC(),
	}
	m.mu.Lock()
	m.snapshot = snap
	m.mu.Unlock()
	return snap
}

// Snapshot returns the latest poll result.
func (m *Monitor) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.snapshot
}

// Run polls every interval until ctx is cancelled, then closes the client.
func (m *Monitor) Run(ctx context.Context) {
	defer func() { _ = m.client.Close() }()

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	m.Poll(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Poll(ctx)
		}
	}
}

// Router serves /metrics, /healthz and /state.
func (m *Monitor) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Handle("/metrics", m.recorder.Handler())
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})
	r.Get("/state", func(w http.ResponseWriter, _ *http.Request) {
		snap := m.Snapshot()
		w.Header().Set("Content-Type", "application/json")
		if !snap.Connected {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		_ = json.NewEncoder(w).Encode(snap)
	})
	return r
}

// Serve runs the poller and the HTTP listener until ctx is cancelled.
func (m *Monitor) Serve(ctx context.Context, listener net.Listener) error {
	server := &http.Server{
		Handler:           m.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	pollCtx, stopPolling := context.WithCancel(ctx)
	defer stopPolling()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		m.Run(pollCtx)
	}()

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- server.Serve(listener)
	}()

	var err error
	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		err = server.Shutdown(shutdownCtx)
		<-serveErr
	case err = <-serveErr:
	}
	stopPolling()
	wg.Wait()

	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("monitor http server: %w", err)
	}
	return nil
}
