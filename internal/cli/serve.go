package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/MrWong99/tngbot/internal/app"
	"github.com/MrWong99/tngbot/internal/observe"
)

const shutdownTimeout = 15 * time.Second

func newServeCommand(g *globals) *cobra.Command {
	var noWatch bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Answer chat messages and serve the HTTP API",
		Long: `serve loads the saved character models and answers "./<bot_name>" messages
and slash commands on Discord (when a token is configured), and serves
/healthz, /readyz, /metrics and the /characters API over HTTP.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := g.loadConfig(cmd)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			shutdownOTel, err := observe.InitProvider(ctx, observe.ProviderConfig{ServiceVersion: Version})
			if err != nil {
				return fmt.Errorf("init telemetry: %w", err)
			}

			opts := []app.Option{app.WithLevelVar(g.levelVar)}
			if !noWatch {
				if _, err := os.Stat(g.configPath); err == nil {
					opts = append(opts, app.WithConfigPath(g.configPath))
				}
			}

			slog.Info("tngbot starting",
				"config", g.configPath,
				"listen_addr", cfg.Server.ListenAddr,
				"store", cfg.Store.Backend,
				"characters", len(cfg.Characters),
				"discord", cfg.Discord.Token != "",
			)

			application, err := app.New(ctx, cfg, opts...)
			if err != nil {
				return err
			}

			runErr := application.Run(ctx)

			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			slog.Info("shutdown signal received, stopping")
			if err := application.Shutdown(shutdownCtx); err != nil {
				slog.Error("shutdown error", "err", err)
			}
			if err := shutdownOTel(shutdownCtx); err != nil {
				slog.Warn("telemetry shutdown error", "err", err)
			}
			if runErr != nil {
				return runErr
			}
			slog.Info("goodbye")
			return nil
		},
	}
	cmd.Flags().BoolVar(&noWatch, "no-watch", false, "do not hot-reload the configuration file")
	return cmd
}
