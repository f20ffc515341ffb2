package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/MrWong99/tngbot/internal/source"
)

// Environment variables consulted by [ApplyEnv].
const (
	EnvDiscordToken = "DISCORD_TOKEN"
	EnvBotName      = "BOT_NAME"
)

// Load reads the YAML configuration file at path, applies defaults and
// environment overrides, and returns a validated [Config].
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	cfg, err := decode(data)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	ApplyEnv(cfg, os.LookupEnv)
	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config: %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, applies defaults and
// validates the result. The environment is not consulted.
func LoadFromReader(r io.Reader) (*Config, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("config: read: %w", err)
	}
	cfg, err := decode(data)
	if err != nil {
		return nil, err
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func decode(data []byte) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	// An empty file is a valid, all-defaults configuration.
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	applyDefaults(cfg)
	return cfg, nil
}

// ApplyEnv fills settings that are empty in cfg from the environment.
// lookup is usually [os.LookupEnv].
func ApplyEnv(cfg *Config, lookup func(string) (string, bool)) {
	if v, ok := lookup(EnvDiscordToken); ok && cfg.Discord.Token == "" {
		cfg.Discord.Token = v
	}
	if v, ok := lookup(EnvBotName); ok && v != "" && cfg.Discord.BotName == DefaultBotName {
		cfg.Discord.BotName = v
	}
}

// Validate checks that cfg contains a coherent set of values. It returns a
// joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	if strings.ContainsFunc(cfg.Discord.BotName, isSpace) {
		errs = append(errs, fmt.Errorf("discord.bot_name %q must be a single word", cfg.Discord.BotName))
	}

	seen := make(map[string]int, len(cfg.Characters))
	for i, ch := range cfg.Characters {
		prefix := fmt.Sprintf("characters[%d]", i)
		switch {
		case ch.Name == "":
			errs = append(errs, fmt.Errorf("%s.name is required", prefix))
		case strings.ContainsFunc(ch.Name, isSpace):
			errs = append(errs, fmt.Errorf("%s.name %q must be a single word", prefix, ch.Name))
		case isReserved(ch.Key()):
			errs = append(errs, fmt.Errorf("%s.name %q collides with a built-in command", prefix, ch.Name))
		default:
			if prev, ok := seen[ch.Key()]; ok {
				errs = append(errs, fmt.Errorf("%s.name %q is a duplicate of characters[%d]", prefix, ch.Name, prev))
			}
			seen[ch.Key()] = i
		}
		if _, err := source.Lookup(ch.Series); err != nil {
			errs = append(errs, fmt.Errorf("%s.series: %w", prefix, err))
		}
	}

	if cfg.Store.Backend != "" && !cfg.Store.Backend.IsValid() {
		errs = append(errs, fmt.Errorf("store.backend %q is invalid; valid values: file, postgres, sqlite", cfg.Store.Backend))
	}
	switch cfg.Store.Backend {
	case BackendFile:
		if cfg.Store.Dir == "" {
			errs = append(errs, errors.New("store.dir is required when backend is file"))
		}
	case BackendPostgres:
		if cfg.Store.PostgresDSN == "" {
			errs = append(errs, errors.New("store.postgres_dsn is required when backend is postgres"))
		}
	case BackendSQLite:
		if cfg.Store.SQLitePath == "" {
			errs = append(errs, errors.New("store.sqlite_path is required when backend is sqlite"))
		}
	}

	g := cfg.Generator
	for _, f := range []struct {
		name string
		v    int
	}{
		{"min_tokens", g.MinTokens},
		{"max_tokens", g.MaxTokens},
		{"max_attempts", g.MaxAttempts},
		{"max_overlap_total", g.MaxOverlapTotal},
	} {
		if f.v < 0 {
			errs = append(errs, fmt.Errorf("generator.%s %d must not be negative", f.name, f.v))
		}
	}
	if g.MinTokens > 0 && g.MaxTokens > 0 && g.MaxTokens < g.MinTokens {
		errs = append(errs, fmt.Errorf("generator.max_tokens %d is below min_tokens %d", g.MaxTokens, g.MinTokens))
	}
	if g.MaxOverlapRatio < 0 || g.MaxOverlapRatio > 1 {
		errs = append(errs, fmt.Errorf("generator.max_overlap_ratio %.2f is out of range [0, 1]", g.MaxOverlapRatio))
	}
	if g.OriginalityCheck != nil && !*g.OriginalityCheck && g.MaxOverlapRatio > 0 {
		slog.Warn("generator.max_overlap_ratio is set but originality_check is disabled")
	}

	if cfg.Scripts.Concurrency < 0 {
		errs = append(errs, fmt.Errorf("scripts.concurrency %d must not be negative", cfg.Scripts.Concurrency))
	}

	return errors.Join(errs...)
}

// reservedWords are command names that cannot double as character names.
var reservedWords = []string{"help", "list", "ping"}

func isReserved(key string) bool {
	return slices.Contains(reservedWords, key)
}

func isSpace(r rune) bool {
	return r == ' ' || r == '\t' || r == '\n' || r == '\r'
}
