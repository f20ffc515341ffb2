// Package app wires the reply service together.
//
// The App struct owns the full lifecycle: New opens the model store, loads
// the configured characters and prepares the HTTP and Discord surfaces, Run
// serves until the context is cancelled, and Shutdown tears everything down
// in order.
//
// For testing, inject doubles via functional options (WithStore,
// WithMetrics, WithRand). When an option is not provided, New creates real
// implementations from the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/tngbot/internal/command"
	"github.com/MrWong99/tngbot/internal/config"
	"github.com/MrWong99/tngbot/internal/discord"
	"github.com/MrWong99/tngbot/internal/discord/commands"
	"github.com/MrWong99/tngbot/internal/health"
	"github.com/MrWong99/tngbot/internal/modelstore"
	"github.com/MrWong99/tngbot/internal/observe"
	"github.com/MrWong99/tngbot/internal/roster"
	"github.com/MrWong99/tngbot/pkg/markov"
)

const (
	defaultModelDebounce = 500 * time.Millisecond
	readHeaderTimeout    = 10 * time.Second
	drainTimeout         = 10 * time.Second
)

// App owns all subsystem lifetimes of the reply service.
type App struct {
	mu  sync.RWMutex
	cfg *config.Config

	configPath    string
	levelVar      *slog.LevelVar
	modelDebounce time.Duration

	store      modelstore.Store
	metrics    *observe.Metrics
	rng        markov.Rand
	roster     *roster.Roster
	dispatcher *command.Dispatcher
	health     *health.Handler
	server     *http.Server
	bot        *discord.Bot

	// closers are called in order during Shutdown.
	closers []func() error

	// stopOnce guards the Shutdown path.
	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithStore injects a model store instead of opening one from config. The
// caller keeps ownership; Shutdown does not close it.
func WithStore(s modelstore.Store) Option {
	return func(a *App) { a.store = s }
}

// WithMetrics sets the metrics sink. The default is [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithRand sets the randomness source for generated lines.
func WithRand(r markov.Rand) Option {
	return func(a *App) { a.rng = r }
}

// WithConfigPath enables hot reload of the given configuration file.
func WithConfigPath(path string) Option {
	return func(a *App) { a.configPath = path }
}

// WithLevelVar lets config reloads change the log level of the installed
// handler.
func WithLevelVar(v *slog.LevelVar) Option {
	return func(a *App) { a.levelVar = v }
}

// WithModelDebounce sets how long model file changes settle before the
// roster is reloaded. Only the file backend is watched.
func WithModelDebounce(d time.Duration) Option {
	return func(a *App) { a.modelDebounce = d }
}

// New creates an App from cfg. Characters without a saved model are logged
// and left out; the service still starts so that models built later can be
// picked up by a reload.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*App, error) {
	a := &App{
		cfg:           cfg,
		modelDebounce: defaultModelDebounce,
	}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}

	if a.store == nil {
		store, err := modelstore.Open(ctx, cfg.Store)
		if err != nil {
			return nil, fmt.Errorf("app: open model store: %w", err)
		}
		a.store = store
		a.closers = append(a.closers, store.Close)
	}

	a.roster = roster.New(a.store, roster.WithMetrics(a.metrics))
	if err := a.roster.Reload(ctx, cfg.CharacterNames(), cfg.Generator.Options()...); err != nil {
		slog.Warn("app: some models failed to load", "err", err)
	}
	slog.Info("app: characters loaded", "loaded", a.roster.Len(), "configured", len(cfg.Characters))

	dispOpts := []command.Option{command.WithMetrics(a.metrics)}
	if a.rng != nil {
		dispOpts = append(dispOpts, command.WithRand(a.rng))
	}
	a.dispatcher = command.NewDispatcher(cfg.Discord.BotName, a.roster, dispOpts...)

	a.health = health.NewStarting(
		health.ModelsLoaded(a.roster.Len),
		health.StoreReachable(a.store),
	)
	a.server = &http.Server{
		Addr:              cfg.Server.ListenAddr,
		Handler:           a.Handler(),
		ReadHeaderTimeout: readHeaderTimeout,
	}

	if err := a.initWatchers(); err != nil {
		a.closeAll()
		return nil, err
	}
	return a, nil
}

// initWatchers starts the config file watcher and, for the file backend,
// the model directory watcher.
func (a *App) initWatchers() error {
	if a.configPath != "" {
		w, err := config.NewWatcher(a.configPath, a.onConfigChange)
		if err != nil {
			return fmt.Errorf("app: watch config: %w", err)
		}
		a.closers = append(a.closers, func() error { w.Stop(); return nil })
	}

	if fs, ok := a.store.(*modelstore.FileStore); ok {
		w, err := fs.Watch(a.reloadModels, a.modelDebounce)
		if err != nil {
			return fmt.Errorf("app: watch models: %w", err)
		}
		a.closers = append(a.closers, func() error { w.Stop(); return nil })
	}
	return nil
}

// Handler returns the HTTP handler serving health, metrics and the
// character API.
func (a *App) Handler() http.Handler {
	mux := http.NewServeMux()
	a.health.Register(mux)
	mux.Handle("GET /metrics", observe.MetricsHandler())
	newAPI(a.roster, a.dispatcher, a.rng).register(mux)
	return observe.Middleware(a.metrics)(mux)
}

// Roster returns the loaded characters.
func (a *App) Roster() *roster.Roster { return a.roster }

// Dispatcher returns the chat command dispatcher.
func (a *App) Dispatcher() *command.Dispatcher { return a.dispatcher }

// Config returns the configuration currently in effect.
func (a *App) Config() *config.Config {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.cfg
}

// Run serves HTTP and, when a token is configured, the Discord bot until ctx
// is cancelled. A cancelled context is not an error.
func (a *App) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", a.server.Addr)
	if err != nil {
		return fmt.Errorf("app: listen %s: %w", a.server.Addr, err)
	}
	return a.Serve(ctx, ln)
}

// Serve is Run on an existing listener.
func (a *App) Serve(ctx context.Context, ln net.Listener) error {
	cfg := a.Config()
	if cfg.Discord.Token != "" {
		bot, err := discord.New(ctx, cfg.Discord, discord.NewMessageHandler(a.dispatcher))
		if err != nil {
			_ = ln.Close()
			return fmt.Errorf("app: %w", err)
		}
		commands.NewQuoteCommands(a.dispatcher).Register(bot.Router())
		a.mu.Lock()
		a.bot = bot
		a.closers = append([]func() error{bot.Close}, a.closers...)
		a.mu.Unlock()
		slog.Info("app: discord connected", "guild_id", bot.GuildID(), "prefix", a.dispatcher.Prefix())
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("app: http listening", "addr", ln.Addr().String())
		if err := a.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("app: http: %w", err)
		}
		return nil
	})
	if a.bot != nil {
		g.Go(func() error { return a.bot.Run(gctx) })
	}
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), drainTimeout)
		defer cancel()
		return a.server.Shutdown(shutdownCtx)
	})

	a.health.MarkStarted()
	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// onConfigChange applies the parts of a new configuration that do not need
// a restart.
func (a *App) onConfigChange(old, new *config.Config) {
	d := config.Diff(old, new)
	if d.Empty() {
		return
	}

	a.mu.Lock()
	a.cfg = new
	a.mu.Unlock()

	if d.LogLevelChanged && a.levelVar != nil {
		a.levelVar.Set(d.NewLogLevel.Level())
		slog.Info("app: log level changed", "level", d.NewLogLevel)
	}
	for _, section := range d.RestartRequired {
		slog.Warn("app: config change needs a restart", "section", section)
	}
	if d.CharactersChanged || d.GeneratorChanged {
		for _, c := range d.CharacterChanges {
			slog.Info("app: character changed", "character", c.Name, "added", c.Added, "removed", c.Removed)
		}
		a.reloadModels()
	}
}

// reloadModels reloads every configured character from the store.
func (a *App) reloadModels() {
	cfg := a.Config()
	ctx, span := observe.StartSpan(context.Background(), "app.reload")
	defer span.End()
	if err := a.roster.Reload(ctx, cfg.CharacterNames(), cfg.Generator.Options()...); err != nil {
		observe.Logger(ctx).Warn("app: reload kept previous models", "err", err)
		return
	}
	observe.Logger(ctx).Info("app: models reloaded", "loaded", a.roster.Len())
}

// Shutdown stops the HTTP server and runs all closers in order. It is safe
// to call more than once.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("app: shutting down", "closers", len(a.closers))

		if err := a.server.Shutdown(ctx); err != nil {
			slog.Warn("app: http shutdown error", "err", err)
		}

		a.mu.RLock()
		closers := a.closers
		a.mu.RUnlock()
		for i, closer := range closers {
			select {
			case <-ctx.Done():
				slog.Warn("app: shutdown deadline exceeded", "remaining", len(closers)-i)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := closer(); err != nil {
				slog.Warn("app: closer error", "index", i, "err", err)
			}
		}
		slog.Info("app: shutdown complete")
	})
	return shutdownErr
}

func (a *App) closeAll() {
	for _, closer := range a.closers {
		_ = closer()
	}
}
