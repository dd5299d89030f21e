// Package cli defines the merion command tree and turns argv into an Invocation.
package cli

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/rbright/merion/internal/config"
	"github.com/rbright/merion/internal/protocol"
	"github.com/rbright/merion/internal/version"
)

type Command string

const (
	CommandConnect  Command = "connect"
	CommandState    Command = "state"
	CommandGet      Command = "get"
	CommandSet      Command = "set"
	CommandPropGet  Command = "propget"
	CommandAlias    Command = "alias"
	CommandMax      Command = "max"
	CommandConsole  Command = "console"
	CommandMonitor  Command = "monitor"
	CommandSimulate Command = "simulate"
	CommandDoctor   Command = "doctor"
	CommandVersion  Command = "version"
)

// DefaultSimulateListen is where `merion simulate` listens unless --listen is given.
const DefaultSimulateListen = "127.0.0.1:10001"

// Invocation is one parsed command line.
type Invocation struct {
	Command    Command
	Args       []string
	ConfigPath string
	Overrides  config.Overrides

	// Listen and Interval are set by monitor and simulate; zero values defer to config.
	Listen   string
	Interval time.Duration
}

// RunFunc executes a parsed invocation.
type RunFunc func(ctx context.Context, inv Invocation) error

type globalFlags struct {
	configPath string
	host       string
	port       int
	timeout    time.Duration
	terminator string
	logLevel   string
}

// NewRoot builds the command tree. Arity and path errors are reported by cobra before run is called.
func NewRoot(run RunFunc) *cobra.Command {
	g := &globalFlags{}

	root := &cobra.Command{
		Use:           "merion",
		Short:         "Talk to a Merion laser controller over TCP",
		Version:       version.String(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetVersionTemplate("{{.Version}}\n")
	root.CompletionOptions.DisableDefaultCmd = true

	pf := root.PersistentFlags()
	pf.StringVar(&g.configPath, "config", "", "config file path (default: $XDG_CONFIG_HOME/merion/config.toml)")
	pf.StringVar(&g.host, "host", "", "controller host or IP address")
	pf.IntVar(&g.port, "port", protocol.DefaultPort, "controller TCP port")
	pf.DurationVar(&g.timeout, "timeout", protocol.DefaultTimeout, "connect and response timeout")
	pf.StringVar(&g.terminator, "terminator", "lf", `response terminator: "lf", "cr", or a literal such as '\r> '`)
	pf.StringVar(&g.logLevel, "log-level", "info", "log level: debug, info, warn, error")

	invoke := func(name Command) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			inv := Invocation{
				Command:    name,
				Args:       args,
				ConfigPath: g.configPath,
				Overrides:  g.overrides(cmd),
			}
			if f := cmd.Flags().Lookup("listen"); f != nil && f.Changed {
				inv.Listen = f.Value.String()
			}
			if f := cmd.Flags().Lookup("interval"); f != nil && f.Changed {
				interval, err := cmd.Flags().GetDuration("interval")
				if err != nil {
					return err
				}
				inv.Interval = interval
			}
			if name == CommandSimulate && inv.Listen == "" {
				inv.Listen = DefaultSimulateListen
			}
			return run(cmd.Context(), inv)
		}
	}

	monitorCmd := &cobra.Command{
		Use:   "monitor",
		Short: "Poll controller state and serve it over HTTP with Prometheus metrics",
		Args:  cobra.NoArgs,
		RunE:  invoke(CommandMonitor),
	}
	monitorCmd.Flags().String("listen", "", "HTTP listen address (default: monitor.listen)")
	monitorCmd.Flags().Duration("interval", 0, "state poll interval (default: monitor.interval)")

	simulateCmd := &cobra.Command{
		Use:   "simulate",
		Short: "Run a simulated controller for local testing",
		Args:  cobra.NoArgs,
		RunE:  invoke(CommandSimulate),
	}
	simulateCmd.Flags().String("listen", DefaultSimulateListen, "TCP listen address")

	root.AddCommand(
		&cobra.Command{
			Use:   "connect",
			Short: "Connect, set the diode pulse width to its maximum, and print the state",
			Args:  cobra.NoArgs,
			RunE:  invoke(CommandConnect),
		},
		&cobra.Command{
			Use:   "state",
			Short: "Query and print the controller state bits",
			Args:  cobra.NoArgs,
			RunE:  invoke(CommandState),
		},
		&cobra.Command{
			Use:     "get PATH",
			Short:   "Read a function value",
			Example: "  merion get /osc/diode/cpw",
			Args:    pathArgs(1),
			RunE:    invoke(CommandGet),
		},
		&cobra.Command{
			Use:     "set PATH VALUE",
			Short:   "Write a function value",
			Example: "  merion set /osc/diode/cpw 250",
			Args:    pathArgs(2),
			RunE:    invoke(CommandSet),
		},
		&cobra.Command{
			Use:     "propget PATH PROPERTY",
			Short:   "Read a function property such as limitmax",
			Example: "  merion propget /osc/diode/cpw limitmax",
			Args:    pathArgs(2),
			RunE:    invoke(CommandPropGet),
		},
		&cobra.Command{
			Use:   "alias NAME [VALUE]",
			Short: "Send a named shortcut command",
			Args:  cobra.RangeArgs(1, 2),
			RunE:  invoke(CommandAlias),
		},
		&cobra.Command{
			Use:   "max PATH",
			Short: "Set a function to its limitmax",
			Args:  pathArgs(1),
			RunE:  invoke(CommandMax),
		},
		&cobra.Command{
			Use:   "console",
			Short: "Open an interactive command prompt",
			Args:  cobra.NoArgs,
			RunE:  invoke(CommandConsole),
		},
		monitorCmd,
		simulateCmd,
		&cobra.Command{
			Use:   "doctor",
			Short: "Run configuration and controller checks",
			Args:  cobra.NoArgs,
			RunE:  invoke(CommandDoctor),
		},
		&cobra.Command{
			Use:   "version",
			Short: "Print version information",
			Args:  cobra.NoArgs,
			RunE:  invoke(CommandVersion),
		},
	)

	return root
}

// overrides copies only the flags the user actually set.
func (g *globalFlags) overrides(cmd *cobra.Command) config.Overrides {
	var o config.Overrides
	flags := cmd.Flags()
	if flags.Changed("host") {
		o.Host = &g.host
	}
	if flags.Changed("port") {
		o.Port = &g.port
	}
	if flags.Changed("timeout") {
		o.Timeout = &g.timeout
	}
	if flags.Changed("terminator") {
		o.Terminator = &g.terminator
	}
	if flags.Changed("log-level") {
		o.LogLevel = &g.logLevel
	}
	return o
}

// pathArgs requires exactly n args, the first being a /tree/branch/function path.
func pathArgs(n int) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if err := cobra.ExactArgs(n)(cmd, args); err != nil {
			return err
		}
		_, _, _, err := protocol.SplitPath(args[0])
		return err
	}
}
