package commands

import (
	"io"
	"log/slog"
	"os"

	"github.com/alecthomas/kong"

	"git.home.luguber.info/inful/statebridge/internal/config"
)

// Global is shared by every subcommand.
type Global struct {
	Logger *slog.Logger
	Out    io.Writer
}

// NewGlobal returns a Global printing to out and logging through the default logger.
func NewGlobal(out io.Writer) *Global {
	if out == nil {
		out = os.Stdout
	}
	return &Global{Logger: slog.Default(), Out: out}
}

// CLI definition & global flags.
type CLI struct {
	Config  string           `short:"c" help:"Configuration file path" default:"statebridge.yaml"`
	Verbose bool             `short:"v" help:"Enable verbose logging"`
	Version kong.VersionFlag `name:"version" help:"Show version and exit"`

	Controller ControllerCmd `cmd:"" help:"Run the controller for the demo counter state and serve HTTP"`
	Peer       PeerCmd       `cmd:"" help:"Connect a peer, hydrate the counter, then apply patches and calls"`
	History    HistoryCmd    `cmd:"" help:"Print journal entries recorded by a controller"`
	Init       InitCmd       `cmd:"" help:"Initialize a new configuration file"`
}

// AfterApply runs after flag parsing; setup logging once. Commands that load a
// configuration replace the logger with the configured one.
// nolint:unparam // AfterApply currently never returns an error.
func (c *CLI) AfterApply() error {
	level := slog.LevelInfo
	if c.Verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
	return nil
}

// loadConfig reads the root configuration, pins the role to the running command and
// switches logging to the configured level and format.
func loadConfig(g *Global, root *CLI, role config.Role) (*config.Config, error) {
	cfg, err := config.Load(root.Config)
	if err != nil {
		return nil, err
	}
	if role != "" {
		if cfg.Role != "" && cfg.Role != role {
			g.Logger.Warn("Configured role ignored",
				slog.String("configured", string(cfg.Role)),
				slog.String("role", string(role)))
		}
		cfg.Role = role
	}

	g.Logger = newLogger(cfg.Logging, root.Verbose, os.Stderr)
	slog.SetDefault(g.Logger)
	return cfg, nil
}

func newLogger(lc config.LoggingConfig, verbose bool, w io.Writer) *slog.Logger {
	level := lc.Level.SlogLevel()
	if verbose {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}
	if lc.Format == config.LogFormatJSON {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
