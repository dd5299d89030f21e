// Package doctor runs readiness diagnostics for config and controller reachability.
package doctor

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/rbright/merion/internal/config"
	"github.com/rbright/merion/internal/laser"
	"github.com/rbright/merion/internal/protocol"
)

// Check is one doctor assertion result.
type Check struct {
	Name    string
	Pass    bool
	Message string
}

// Report is the full doctor output contract.
type Report struct {
	Checks []Check
}

// OK returns true when all checks pass.
func (r Report) OK() bool {
	for _, check := range r.Checks {
		if !check.Pass {
			return false
		}
	}
	return true
}

// String renders the report as user-facing text output.
func (r Report) String() string {
	var b strings.Builder
	for _, check := range r.Checks {
		status := "OK"
		if !check.Pass {
			status = "FAIL"
		}
		b.WriteString(fmt.Sprintf("[%s] %s: %s\n", status, check.Name, check.Message))
	}
	return strings.TrimSuffix(b.String(), "\n")
}

// Run executes config and controller checks for a loaded config.
func Run(ctx context.Context, loaded config.Loaded, logger *slog.Logger) Report {
	checks := []Check{}

	configMessage := fmt.Sprintf("loaded %q", loaded.Path)
	if !loaded.Exists {
		configMessage = fmt.Sprintf("%q not found; using defaults", loaded.Path)
	}
	checks = append(checks, Check{Name: "config", Pass: true, Message: configMessage})

	cfg := loaded.Config.Controller
	checks = append(checks, checkTerminator(cfg))

	host := checkHost(cfg)
	checks = append(checks, host)
	if !host.Pass {
		return Report{Checks: checks}
	}

	checks = append(checks, checkController(ctx, cfg, logger)...)
	return Report{Checks: checks}
}

// checkTerminator validates the configured receive terminator.
func checkTerminator(cfg config.ControllerConfig) Check {
	term, err := protocol.ParseTerminator(cfg.Terminator)
	if err != nil {
		return Check{Name: "controller.terminator", Pass: false, Message: err.Error()}
	}
	return Check{Name: "controller.terminator", Pass: true, Message: fmt.Sprintf("%q", term)}
}

// checkHost validates that a controller host is configured.
func checkHost(cfg config.ControllerConfig) Check {
	if strings.TrimSpace(cfg.Host) == "" {
		return Check{Name: "controller.host", Pass: false, Message: "no controller host configured"}
	}
	return Check{Name: "controller.host", Pass: true, Message: fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)}
}

// checkController connects and queries state to prove the framing settings match the firmware.
func checkController(ctx context.Context, cfg config.ControllerConfig, logger *slog.Logger) []Check {
	client := protocol.NewClient(protocol.Options{
		Host:       cfg.Host,
		Port:       cfg.Port,
		Timeout:    cfg.Timeout,
		Terminator: cfg.TerminatorBytes(),
		Logger:     logger,
	})
	defer func() { _ = client.Close() }()

	if err := client.Open(ctx); err != nil {
		return []Check{{Name: "controller.connect", Pass: false, Message: err.Error()}}
	}
	checks := []Check{{Name: "controller.connect", Pass: true, Message: "connected"}}

	state := client.QueryState()
	if state == protocol.UnknownState {
		return append(checks, Check{
			Name:    "controller.state",
			Pass:    false,
			Message: "no valid state reply; check controller.terminator against the firmware",
		})
	}
	return append(checks, Check{Name: "controller.state", Pass: true, Message: laser.FormatState(state)})
}
