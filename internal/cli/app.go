// Package cli builds the inboxsweep command line.
package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"aaronromeo.com/inboxsweep/internal/config"
	"aaronromeo.com/inboxsweep/pkg/base"
	"aaronromeo.com/inboxsweep/pkg/utils"
	"github.com/urfave/cli/v2"
)

const (
	flagConfig   = "config"
	flagEnvFile  = "env-file"
	flagLogLevel = "log-level"
)

// NewApp returns the command tree. opts are passed to every Build the commands make.
func NewApp(opts ...BuildOption) *cli.App {
	r := &runner{buildOpts: opts}
	return &cli.App{
		Name:    base.ServiceName,
		Usage:   "reliable trash, block and unsubscribe actions against a mailbox",
		Version: base.ServiceVersion,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    flagConfig,
				Aliases: []string{"c"},
				Usage:   "path to YAML config file",
				EnvVars: []string{config.EnvConfig},
			},
			&cli.StringFlag{
				Name:  flagEnvFile,
				Value: ".env",
				Usage: "dotenv file loaded before the config when it exists",
			},
			&cli.StringFlag{
				Name:  flagLogLevel,
				Value: "info",
				Usage: "debug, info, warn or error",
			},
		},
		Before: func(c *cli.Context) error {
			return config.LoadEnvFile(c.String(flagEnvFile))
		},
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "run the HTTP control surface, connectivity watcher and queue replay",
				Action: r.serve,
			},
			{
				Name:  "queue",
				Usage: "inspect or replay the durable action queue",
				Subcommands: []*cli.Command{
					{
						Name:   "list",
						Usage:  "print pending actions",
						Action: r.queueList,
					},
					{
						Name:   "flush",
						Usage:  "replay pending actions once",
						Action: r.queueFlush,
					},
				},
			},
			{
				Name:   "validate",
				Usage:  "load and validate the configuration",
				Action: r.validate,
			},
		},
	}
}

type runner struct {
	buildOpts []BuildOption
}

func (r *runner) loadConfig(c *cli.Context) (config.Config, error) {
	cfg, err := config.Load(c.String(flagConfig))
	if err != nil {
		return config.Config{}, err
	}
	if err := config.Validate(cfg); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

func (r *runner) logger(c *cli.Context, telemetry bool) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.ToUpper(c.String(flagLogLevel)))); err != nil {
		level = slog.LevelInfo
	}
	return utils.NewLogger(telemetry, c.App.ErrWriter, level)
}

func (r *runner) build(c *cli.Context, cfg config.Config, logger *slog.Logger) (*Graph, error) {
	return Build(c.Context, cfg, logger, r.buildOpts...)
}

func (r *runner) validate(c *cli.Context) error {
	cfg, err := r.loadConfig(c)
	if err != nil {
		return err
	}
	fmt.Fprintln(c.App.Writer, config.Summary(cfg))
	return nil
}

// Run executes the app with args and returns the process exit code.
func Run(ctx context.Context, app *cli.App, args []string, stderr io.Writer) int {
	if err := app.RunContext(ctx, args); err != nil {
		fmt.Fprintln(stderr, utils.WrapError(err))
		return 1
	}
	return 0
}
