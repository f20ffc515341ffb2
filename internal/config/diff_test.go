package config_test

import (
	"slices"
	"testing"

	"github.com/MrWong99/tngbot/internal/config"
)

func chars(pairs ...string) []config.CharacterConfig {
	out := make([]config.CharacterConfig, 0, len(pairs)/2)
	for i := 0; i+1 < len(pairs); i += 2 {
		out = append(out, config.CharacterConfig{Name: pairs[i], Series: pairs[i+1]})
	}
	return out
}

func TestDiff_NoChanges(t *testing.T) {
	t.Parallel()
	cfg := &config.Config{
		Server:     config.ServerConfig{LogLevel: config.LogInfo},
		Characters: chars("Picard", "TNG"),
	}
	d := config.Diff(cfg, cfg)
	if !d.Empty() {
		t.Errorf("expected empty diff for identical configs, got %+v", d)
	}
}

func TestDiff_LogLevelChanged(t *testing.T) {
	t.Parallel()
	old := &config.Config{Server: config.ServerConfig{LogLevel: config.LogInfo}}
	new := &config.Config{Server: config.ServerConfig{LogLevel: config.LogDebug}}

	d := config.Diff(old, new)
	if !d.LogLevelChanged {
		t.Error("expected LogLevelChanged=true")
	}
	if d.NewLogLevel != config.LogDebug {
		t.Errorf("expected NewLogLevel=debug, got %q", d.NewLogLevel)
	}
}

func TestDiff_Characters(t *testing.T) {
	t.Parallel()
	old := &config.Config{Characters: chars("Picard", "TNG", "Riker", "TNG", "Kira", "DS9")}
	new := &config.Config{Characters: chars("picard", "TNG", "Kira", "TNG", "Odo", "DS9")}

	d := config.Diff(old, new)
	if !d.CharactersChanged {
		t.Fatal("expected CharactersChanged=true")
	}
	want := []config.CharacterDiff{
		{Name: "Kira", SeriesChanged: true},
		{Name: "Odo", Added: true},
		{Name: "Riker", Removed: true},
	}
	if !slices.Equal(d.CharacterChanges, want) {
		t.Errorf("CharacterChanges = %+v, want %+v", d.CharacterChanges, want)
	}
}

func TestDiff_RenamedCaseIsNotAChange(t *testing.T) {
	t.Parallel()
	old := &config.Config{Characters: chars("DATA", "TNG")}
	new := &config.Config{Characters: chars("Data", "tng")}
	if d := config.Diff(old, new); d.CharactersChanged {
		t.Errorf("case-only change reported: %+v", d.CharacterChanges)
	}
}

func TestDiff_GeneratorChanged(t *testing.T) {
	t.Parallel()
	on, off := true, false

	base := &config.Config{Generator: config.GeneratorConfig{MaxTokens: 20}}
	same := &config.Config{Generator: config.GeneratorConfig{MaxTokens: 20, OriginalityCheck: &on}}
	if d := config.Diff(base, same); d.GeneratorChanged {
		t.Error("explicit originality_check=true equals the default")
	}

	changed := &config.Config{Generator: config.GeneratorConfig{MaxTokens: 20, OriginalityCheck: &off}}
	if d := config.Diff(base, changed); !d.GeneratorChanged {
		t.Error("expected GeneratorChanged=true")
	}
}

func TestDiff_RestartRequired(t *testing.T) {
	t.Parallel()
	old := &config.Config{
		Server: config.ServerConfig{ListenAddr: ":8080"},
		Store:  config.StoreConfig{Backend: config.BackendFile, Dir: "a"},
	}
	new := &config.Config{
		Server:  config.ServerConfig{ListenAddr: ":9090"},
		Discord: config.DiscordConfig{Token: "t"},
		Store:   config.StoreConfig{Backend: config.BackendFile, Dir: "b"},
	}
	d := config.Diff(old, new)
	want := []string{"server.listen_addr", "discord", "store"}
	if !slices.Equal(d.RestartRequired, want) {
		t.Errorf("RestartRequired = %v, want %v", d.RestartRequired, want)
	}
	if d.Empty() {
		t.Error("diff with restart-only changes must not be empty")
	}
}
