// Package app wires config, logging and the controller client into the merion commands.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strings"

	"github.com/rbright/merion/internal/cli"
	"github.com/rbright/merion/internal/config"
	"github.com/rbright/merion/internal/console"
	"github.com/rbright/merion/internal/doctor"
	"github.com/rbright/merion/internal/laser"
	"github.com/rbright/merion/internal/logging"
	"github.com/rbright/merion/internal/metrics"
	"github.com/rbright/merion/internal/monitor"
	"github.com/rbright/merion/internal/protocol"
	"github.com/rbright/merion/internal/sim"
	"github.com/rbright/merion/internal/version"
)

var errNoHost = errors.New("no controller host configured; pass --host or set controller.host")

type Runner struct {
	Stdout io.Writer
	Stderr io.Writer
	// Stdin replaces the terminal for prompts and the console when set.
	Stdin  io.Reader
	Logger *slog.Logger
}

func Execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	r := Runner{Stdout: stdout, Stderr: stderr}
	return r.Execute(ctx, args)
}

// Execute parses args and runs one command. Usage errors exit 2, command failures exit 1.
func (r Runner) Execute(ctx context.Context, args []string) int {
	exitCode := 0
	root := cli.NewRoot(func(ctx context.Context, inv cli.Invocation) error {
		exitCode = r.run(ctx, inv)
		return nil
	})
	root.SetArgs(args)
	root.SetOut(r.Stdout)
	root.SetErr(r.Stderr)

	cmd, err := root.ExecuteContextC(ctx)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n\n", err)
		fmt.Fprint(r.Stderr, cmd.UsageString())
		return 2
	}
	return exitCode
}

func (r Runner) run(ctx context.Context, inv cli.Invocation) int {
	if inv.Command == cli.CommandVersion {
		fmt.Fprintln(r.Stdout, version.String())
		return 0
	}

	cfgLoaded, err := config.Load(inv.ConfigPath)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	cfg := inv.Overrides.Apply(cfgLoaded.Config)
	validated, err := config.Validate(cfg)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	cfgLoaded.Config = cfg

	logRuntime, err := logging.New(cfg.Logging.Level)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: setup logging: %v\n", err)
		return 1
	}
	defer func() { _ = logRuntime.Close() }()

	logger := r.Logger
	if logger == nil {
		logger = logRuntime.Logger
	}

	for _, w := range cfgLoaded.Warnings {
		fmt.Fprintf(r.Stderr, "warning: %s\n", w.Message)
		logger.Warn("config warning", "key", w.Key, "message", w.Message)
	}
	for _, w := range validated {
		logger.Debug("config warning", "key", w.Key, "message", w.Message)
	}

	logger.Info("command start",
		"command", inv.Command,
		"config", cfgLoaded.Path,
		"log", logRuntime.Path,
		"host", cfg.Controller.Host,
		"port", cfg.Controller.Port,
	)

	switch inv.Command {
	case cli.CommandDoctor:
		report := doctor.Run(ctx, cfgLoaded, logger)
		fmt.Fprintln(r.Stdout, report.String())
		if report.OK() {
			return 0
		}
		return 1
	case cli.CommandSimulate:
		return r.commandSimulate(ctx, inv, cfg, logger)
	case cli.CommandMonitor:
		return r.commandMonitor(ctx, inv, cfg, logger)
	case cli.CommandConnect:
		return r.commandConnect(ctx, cfg, logger)
	default:
		return r.withClient(ctx, cfg.Controller, logger, func(client *protocol.Client) error {
			return r.commandSession(inv, client)
		})
	}
}

// withClient opens one connection, runs fn, and closes it. There is no retry.
func (r Runner) withClient(ctx context.Context, cfg config.ControllerConfig, logger *slog.Logger, fn func(*protocol.Client) error) int {
	if strings.TrimSpace(cfg.Host) == "" {
		return r.fail(logger, errNoHost)
	}

	client := newClient(cfg, logger, nil)
	if err := client.Open(ctx); err != nil {
		return r.fail(logger, err)
	}
	defer func() { _ = client.Close() }()

	if err := fn(client); err != nil {
		return r.fail(logger, err)
	}
	return 0
}

func (r Runner) commandSession(inv cli.Invocation, client *protocol.Client) error {
	l := laser.New(client)

	switch inv.Command {
	case cli.CommandState:
		state := l.CurrentState()
		if state == protocol.UnknownState {
			return errors.New("no valid state reply from controller")
		}
		fmt.Fprintln(r.Stdout, laser.FormatState(state))
	case cli.CommandGet:
		tree, branch, function, err := protocol.SplitPath(inv.Args[0])
		if err != nil {
			return err
		}
		value, err := l.Get(tree, branch, function)
		if err != nil {
			return fmt.Errorf("get %s: %w", inv.Args[0], err)
		}
		fmt.Fprintln(r.Stdout, value)
	case cli.CommandSet:
		tree, branch, function, err := protocol.SplitPath(inv.Args[0])
		if err != nil {
			return err
		}
		ack, err := l.Set(tree, branch, function, inv.Args[1])
		if err != nil {
			return fmt.Errorf("set %s: %w", inv.Args[0], err)
		}
		if ack != "" {
			fmt.Fprintln(r.Stdout, ack)
		}
	case cli.CommandPropGet:
		tree, branch, function, err := protocol.SplitPath(inv.Args[0])
		if err != nil {
			return err
		}
		value, err := l.PropGet(tree, branch, function, inv.Args[1])
		if err != nil {
			return fmt.Errorf("propget %s %s: %w", inv.Args[0], inv.Args[1], err)
		}
		fmt.Fprintln(r.Stdout, value)
	case cli.CommandAlias:
		cmd := protocol.Alias(inv.Args[0])
		if len(inv.Args) > 1 {
			cmd = cmd.WithValue(inv.Args[1])
		}
		resp, err := client.Query(cmd)
		if errors.Is(err, protocol.ErrNoResponse) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("alias %s: %w", inv.Args[0], err)
		}
		fmt.Fprintln(r.Stdout, resp)
	case cli.CommandMax:
		tree, branch, function, err := protocol.SplitPath(inv.Args[0])
		if err != nil {
			return err
		}
		value, err := l.GetThenSetMax(tree, branch, function)
		if err != nil {
			return err
		}
		fmt.Fprintf(r.Stdout, "%s set to %s\n", inv.Args[0], value)
	case cli.CommandConsole:
		editor := r.lineReader(console.HistoryPath())
		defer editor.Close()
		return console.New(client, editor, r.Stdout).Run()
	default:
		return fmt.Errorf("unsupported command %q", inv.Command)
	}
	return nil
}

// commandConnect asks for the controller address when none is configured, sets the diode pulse
// width to its maximum, and reports the resulting state.
func (r Runner) commandConnect(ctx context.Context, cfg config.Config, logger *slog.Logger) int {
	controller := cfg.Controller
	if strings.TrimSpace(controller.Host) == "" {
		editor := r.lineReader("")
		line, err := editor.GetLine("Controller IP address: ")
		editor.Close()
		if err != nil && !errors.Is(err, io.EOF) {
			return r.fail(logger, err)
		}
		controller.Host = strings.TrimSpace(line)
	}

	return r.withClient(ctx, controller, logger, func(client *protocol.Client) error {
		fmt.Fprintf(r.Stdout, "connected to %s:%d\n", controller.Host, controller.Port)
		l := laser.New(client)
		value, err := l.SetDiodePulseWidthToMax()
		if err != nil {
			return err
		}
		fmt.Fprintf(r.Stdout, "/osc/diode/cpw set to %s\n", value)
		fmt.Fprintf(r.Stdout, "state: %s\n", laser.FormatState(l.CurrentState()))
		return nil
	})
}

func (r Runner) commandSimulate(ctx context.Context, inv cli.Invocation, cfg config.Config, logger *slog.Logger) int {
	listener, err := net.Listen("tcp", inv.Listen)
	if err != nil {
		return r.fail(logger, fmt.Errorf("listen %s: %w", inv.Listen, err))
	}

	fmt.Fprintf(r.Stdout, "simulated controller listening on %s (terminator %q)\n",
		listener.Addr(), cfg.Controller.TerminatorBytes())
	logger.Info("simulator start", "listen", listener.Addr().String())

	if err := sim.Serve(ctx, listener, sim.NewController(), cfg.Controller.TerminatorBytes()); err != nil {
		return r.fail(logger, err)
	}
	logger.Info("simulator stop")
	return 0
}

func (r Runner) commandMonitor(ctx context.Context, inv cli.Invocation, cfg config.Config, logger *slog.Logger) int {
	if strings.TrimSpace(cfg.Controller.Host) == "" {
		return r.fail(logger, errNoHost)
	}

	listen := cfg.Monitor.Listen
	if inv.Listen != "" {
		listen = inv.Listen
	}
	interval := cfg.Monitor.Interval
	if inv.Interval > 0 {
		interval = inv.Interval
	}

	listener, err := net.Listen("tcp", listen)
	if err != nil {
		return r.fail(logger, fmt.Errorf("listen %s: %w", listen, err))
	}

	recorder := metrics.New()
	client := newClient(cfg.Controller, logger, recorder)
	mon := monitor.New(client, recorder, interval, logger)

	fmt.Fprintf(r.Stdout, "monitoring %s:%d every %s on http://%s\n",
		cfg.Controller.Host, cfg.Controller.Port, interval, listener.Addr())
	if err := mon.Serve(ctx, listener); err != nil {
		return r.fail(logger, err)
	}
	return 0
}

func (r Runner) lineReader(historyPath string) console.LineReader {
	if r.Stdin != nil {
		return console.NewScannerEditor(r.Stdin, r.Stdout)
	}
	return console.NewLineEditor(historyPath)
}

func (r Runner) fail(logger *slog.Logger, err error) int {
	fmt.Fprintf(r.Stderr, "error: %v\n", err)
	logger.Error("command failed", "error", err.Error())
	return 1
}

func newClient(cfg config.ControllerConfig, logger *slog.Logger, observer protocol.Observer) *protocol.Client {
	opts := protocol.Options{
		Host:       strings.TrimSpace(cfg.Host),
		Port:       cfg.Port,
		Timeout:    cfg.Timeout,
		Terminator: cfg.TerminatorBytes(),
		Logger:     logger,
	}
	if observer != nil {
		opts.Observer = observer
	}
	return protocol.NewClient(opts)
}
