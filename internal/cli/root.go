// Package cli implements the tngbot command line: serve, build, fetch and
// say.
package cli

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/MrWong99/tngbot/internal/config"
	"github.com/MrWong99/tngbot/internal/observe"
)

// Version is set at link time.
var Version = "dev"

// globals holds the persistent flags and the state derived from them.
type globals struct {
	configPath string
	logLevel   string

	// levelVar drives the installed log handler, so config reloads can
	// change the level.
	levelVar *slog.LevelVar
}

// NewRootCommand returns the tngbot command tree.
func NewRootCommand() *cobra.Command {
	g := &globals{levelVar: new(slog.LevelVar)}

	root := &cobra.Command{
		Use:   "tngbot",
		Short: "Talk like Star Trek characters",
		Long: `tngbot builds Markov chain models of what Star Trek characters say from
episode transcripts, and answers chat messages with generated lines.

Run "tngbot build" once to fetch transcripts and save the models, then
"tngbot serve" to start the Discord bot and HTTP API.`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			// .env is optional.
			if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
				return fmt.Errorf("load .env: %w", err)
			}
			handler := slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: g.levelVar})
			slog.SetDefault(slog.New(observe.NewLogHandler(handler)))
			if g.logLevel != "" {
				lvl := config.LogLevel(g.logLevel)
				if !lvl.IsValid() {
					return fmt.Errorf("invalid --log-level %q; valid values: debug, info, warn, error", g.logLevel)
				}
				g.levelVar.Set(lvl.Level())
			}
			return nil
		},
	}

	root.PersistentFlags().StringVarP(&g.configPath, "config", "c", "config.yaml", "path to the YAML configuration file")
	root.PersistentFlags().StringVar(&g.logLevel, "log-level", "", "log level: debug, info, warn, error (overrides the config)")

	root.AddCommand(
		newServeCommand(g),
		newBuildCommand(g),
		newFetchCommand(g),
		newSayCommand(g),
	)
	return root
}

// Execute runs the command tree with os.Args and returns the process exit
// code.
func Execute() int {
	if err := NewRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "tngbot: %v\n", err)
		return 1
	}
	return 0
}

// loadConfig reads the configuration. A missing file is only an error when
// --config was given explicitly; otherwise the defaults apply.
func (g *globals) loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(g.configPath)
	switch {
	case err == nil:
	case errors.Is(err, fs.ErrNotExist) && !cmd.Flags().Changed("config"):
		slog.Debug("cli: no config file, using defaults", "path", g.configPath)
		cfg = config.Default()
		config.ApplyEnv(cfg, os.LookupEnv)
	default:
		return nil, err
	}

	if g.logLevel == "" {
		g.levelVar.Set(cfg.Server.LogLevel.Level())
	} else {
		cfg.Server.LogLevel = config.LogLevel(g.logLevel)
	}
	return cfg, nil
}
