package config

import (
	"slices"
	"strings"
)

// ConfigDiff describes what changed between two configs. Characters and
// generator settings are applied without a restart; changes to the store,
// the Discord connection or the listen address need one.
type ConfigDiff struct {
	CharactersChanged bool
	CharacterChanges  []CharacterDiff

	GeneratorChanged bool

	LogLevelChanged bool
	NewLogLevel     LogLevel

	// RestartRequired lists the sections whose changes are ignored until the
	// process restarts.
	RestartRequired []string
}

// CharacterDiff describes what changed for a single character. Names are
// compared case-insensitively.
type CharacterDiff struct {
	Name          string
	Added         bool
	Removed       bool
	SeriesChanged bool
}

// Diff compares old and new configs.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}
	if !old.Generator.Equal(new.Generator) {
		d.GeneratorChanged = true
	}

	oldChars := make(map[string]CharacterConfig, len(old.Characters))
	for _, c := range old.Characters {
		oldChars[c.Key()] = c
	}
	newChars := make(map[string]CharacterConfig, len(new.Characters))
	for _, c := range new.Characters {
		newChars[c.Key()] = c
	}

	for key, oc := range oldChars {
		nc, ok := newChars[key]
		switch {
		case !ok:
			d.CharacterChanges = append(d.CharacterChanges, CharacterDiff{Name: oc.Name, Removed: true})
		case !strings.EqualFold(oc.Series, nc.Series):
			d.CharacterChanges = append(d.CharacterChanges, CharacterDiff{Name: nc.Name, SeriesChanged: true})
		}
	}
	for key, nc := range newChars {
		if _, ok := oldChars[key]; !ok {
			d.CharacterChanges = append(d.CharacterChanges, CharacterDiff{Name: nc.Name, Added: true})
		}
	}
	slices.SortFunc(d.CharacterChanges, func(a, b CharacterDiff) int {
		return strings.Compare(strings.ToLower(a.Name), strings.ToLower(b.Name))
	})
	d.CharactersChanged = len(d.CharacterChanges) > 0

	if old.Server.ListenAddr != new.Server.ListenAddr {
		d.RestartRequired = append(d.RestartRequired, "server.listen_addr")
	}
	if old.Discord != new.Discord {
		d.RestartRequired = append(d.RestartRequired, "discord")
	}
	if old.Store != new.Store {
		d.RestartRequired = append(d.RestartRequired, "store")
	}
	return d
}

// Empty reports whether nothing observable changed.
func (d ConfigDiff) Empty() bool {
	return !d.CharactersChanged && !d.GeneratorChanged && !d.LogLevelChanged && len(d.RestartRequired) == 0
}
