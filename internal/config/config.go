// Package config provides the configuration schema and loader for tngbot.
package config

import (
	"log/slog"
	"strings"

	"github.com/MrWong99/tngbot/pkg/markov"
)

// LogLevel controls log verbosity.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Level converts l to a [slog.Level]. Unknown values map to info.
func (l LogLevel) Level() slog.Level {
	switch l {
	case LogDebug:
		return slog.LevelDebug
	case LogWarn:
		return slog.LevelWarn
	case LogError:
		return slog.LevelError
	}
	return slog.LevelInfo
}

// Backend selects where character models are persisted.
type Backend string

const (
	// BackendFile stores one JSON document per character in a directory.
	BackendFile Backend = "file"

	// BackendPostgres stores models in a PostgreSQL table.
	BackendPostgres Backend = "postgres"

	// BackendSQLite stores models in a single SQLite database file.
	BackendSQLite Backend = "sqlite"
)

// IsValid reports whether b is a recognised backend.
func (b Backend) IsValid() bool {
	switch b {
	case BackendFile, BackendPostgres, BackendSQLite:
		return true
	}
	return false
}

// Defaults applied by [LoadFromReader] and [Default].
const (
	DefaultListenAddr  = ":8080"
	DefaultBotName     = "tng_bot"
	DefaultStoreDir    = "models"
	DefaultCacheDir    = "/tmp/tng_bot"
	DefaultBaseURL     = "http://www.chakoteya.net"
	DefaultConcurrency = 4
	DefaultSeries      = "TNG"
)

// DefaultCharacters are served when the configuration names none.
var DefaultCharacters = []string{
	"picard", "riker", "troi", "data", "crusher", "wesley", "laforge", "yar", "pulaski",
}

// Config is the root configuration structure. It is typically loaded from a
// YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server     ServerConfig      `yaml:"server"`
	Discord    DiscordConfig     `yaml:"discord"`
	Characters []CharacterConfig `yaml:"characters"`
	Store      StoreConfig       `yaml:"store"`
	Generator  GeneratorConfig   `yaml:"generator"`
	Scripts    ScriptsConfig     `yaml:"scripts"`
}

// ServerConfig holds the HTTP listener and logging settings.
type ServerConfig struct {
	// ListenAddr serves /healthz, /readyz, /metrics and the character API.
	ListenAddr string   `yaml:"listen_addr"`
	LogLevel   LogLevel `yaml:"log_level"`
}

// DiscordConfig holds the chat connection settings.
type DiscordConfig struct {
	// Token is the bot token. Overridden by DISCORD_TOKEN when empty.
	Token string `yaml:"token"`

	// GuildID registers slash commands for one guild only. Empty registers
	// them globally.
	GuildID string `yaml:"guild_id"`

	// BotName forms the message prefix "./<bot_name>".
	BotName string `yaml:"bot_name"`
}

// CharacterConfig names one character the bot can speak as.
type CharacterConfig struct {
	// Name is matched case-insensitively against speaker labels and is the
	// word users type after the prefix.
	Name string `yaml:"name"`

	// Series is the transcript series the corpus is built from. Default: TNG.
	Series string `yaml:"series"`
}

// Key returns the lower-cased name used as the model store key.
func (c CharacterConfig) Key() string {
	return strings.ToLower(c.Name)
}

// StoreConfig selects and configures the model store backend.
type StoreConfig struct {
	Backend     Backend `yaml:"backend"`
	Dir         string  `yaml:"dir"`
	PostgresDSN string  `yaml:"postgres_dsn"`
	SQLitePath  string  `yaml:"sqlite_path"`
}

// GeneratorConfig tunes sentence generation. Zero values keep the
// generator defaults.
type GeneratorConfig struct {
	MinTokens       int     `yaml:"min_tokens"`
	MaxTokens       int     `yaml:"max_tokens"`
	MaxAttempts     int     `yaml:"max_attempts"`
	MaxOverlapRatio float64 `yaml:"max_overlap_ratio"`
	MaxOverlapTotal int     `yaml:"max_overlap_total"`

	// OriginalityCheck defaults to true when omitted.
	OriginalityCheck *bool `yaml:"originality_check"`
}

// Options converts the settings into generator options.
func (g GeneratorConfig) Options() []markov.Option {
	opts := []markov.Option{
		markov.WithMinTokens(g.MinTokens),
		markov.WithMaxTokens(g.MaxTokens),
		markov.WithMaxAttempts(g.MaxAttempts),
		markov.WithMaxOverlapRatio(g.MaxOverlapRatio),
		markov.WithMaxOverlapTotal(g.MaxOverlapTotal),
	}
	if g.OriginalityCheck != nil {
		opts = append(opts, markov.WithOriginalityCheck(*g.OriginalityCheck))
	}
	return opts
}

// Equal reports whether g and o configure the same generator.
func (g GeneratorConfig) Equal(o GeneratorConfig) bool {
	check := func(p *bool) bool { return p == nil || *p }
	return g.MinTokens == o.MinTokens &&
		g.MaxTokens == o.MaxTokens &&
		g.MaxAttempts == o.MaxAttempts &&
		g.MaxOverlapRatio == o.MaxOverlapRatio &&
		g.MaxOverlapTotal == o.MaxOverlapTotal &&
		check(g.OriginalityCheck) == check(o.OriginalityCheck)
}

// ScriptsConfig configures transcript fetching and caching.
type ScriptsConfig struct {
	CacheDir    string `yaml:"cache_dir"`
	BaseURL     string `yaml:"base_url"`
	Concurrency int    `yaml:"concurrency"`
}

// Default returns a configuration with every default applied.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

// CharacterNames returns the configured names in configuration order.
func (c *Config) CharacterNames() []string {
	names := make([]string, len(c.Characters))
	for i, ch := range c.Characters {
		names[i] = ch.Name
	}
	return names
}

// Character returns the configuration of name, compared case-insensitively.
func (c *Config) Character(name string) (CharacterConfig, bool) {
	for _, ch := range c.Characters {
		if strings.EqualFold(ch.Name, name) {
			return ch, true
		}
	}
	return CharacterConfig{}, false
}

func applyDefaults(cfg *Config) {
	if cfg.Server.ListenAddr == "" {
		cfg.Server.ListenAddr = DefaultListenAddr
	}
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = LogInfo
	}
	if cfg.Discord.BotName == "" {
		cfg.Discord.BotName = DefaultBotName
	}
	if len(cfg.Characters) == 0 {
		for _, name := range DefaultCharacters {
			cfg.Characters = append(cfg.Characters, CharacterConfig{Name: name})
		}
	}
	for i := range cfg.Characters {
		if cfg.Characters[i].Series == "" {
			cfg.Characters[i].Series = DefaultSeries
		}
		cfg.Characters[i].Series = strings.ToUpper(cfg.Characters[i].Series)
	}
	if cfg.Store.Backend == "" {
		cfg.Store.Backend = BackendFile
	}
	if cfg.Store.Backend == BackendFile && cfg.Store.Dir == "" {
		cfg.Store.Dir = DefaultStoreDir
	}
	if cfg.Scripts.CacheDir == "" {
		cfg.Scripts.CacheDir = DefaultCacheDir
	}
	if cfg.Scripts.BaseURL == "" {
		cfg.Scripts.BaseURL = DefaultBaseURL
	}
	if cfg.Scripts.Concurrency == 0 {
		cfg.Scripts.Concurrency = DefaultConcurrency
	}
}
