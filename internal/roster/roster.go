// Package roster holds the generator of every character the bot can speak
// as.
//
// The roster is a copy-on-write snapshot behind an atomic pointer. Readers
// never lock; a reload builds a complete new snapshot from the model store
// and swaps it in, so concurrent generations keep using the snapshot they
// started with.
package roster

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MrWong99/tngbot/internal/modelstore"
	"github.com/MrWong99/tngbot/internal/observe"
	"github.com/MrWong99/tngbot/pkg/markov"
)

// ErrUnknownCharacter is returned by [Roster.Generate] for a name that has
// no loaded model.
var ErrUnknownCharacter = errors.New("roster: unknown character")

// Character is one loaded character.
type Character struct {
	// Name is the display name as configured.
	Name      string
	Generator *markov.Generator
}

type snapshot struct {
	byKey map[string]Character
	names []string
}

var emptySnapshot = &snapshot{byKey: map[string]Character{}}

// Roster maps character names to generators. It is safe for concurrent use.
type Roster struct {
	store   modelstore.Store
	metrics *observe.Metrics

	snap     atomic.Pointer[snapshot]
	reloadMu sync.Mutex
}

// Option configures a [Roster].
type Option func(*Roster)

// WithMetrics sets the metrics sink. The default is [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(r *Roster) {
		if m != nil {
			r.metrics = m
		}
	}
}

// New returns an empty roster reading models from store. store may be nil
// when models are only installed with [Roster.Replace].
func New(store modelstore.Store, opts ...Option) *Roster {
	r := &Roster{store: store}
	for _, opt := range opts {
		opt(r)
	}
	if r.metrics == nil {
		r.metrics = observe.DefaultMetrics()
	}
	r.snap.Store(emptySnapshot)
	return r
}

// Reload loads the model of every named character from the store and swaps
// in a new snapshot. Characters without a stored model are logged and left
// out. When loading a model fails for another reason, the character keeps
// the generator of the previous snapshot if it had one; the failures are
// returned joined after the swap.
func (r *Roster) Reload(ctx context.Context, names []string, opts ...markov.Option) error {
	if r.store == nil {
		return errors.New("roster: reload without a model store")
	}
	r.reloadMu.Lock()
	defer r.reloadMu.Unlock()

	ctx, span := observe.StartSpan(ctx, "roster.reload")
	defer span.End()
	log := observe.Logger(ctx)

	prev := r.snap.Load()
	next := &snapshot{byKey: make(map[string]Character, len(names))}
	var errs []error
	for _, name := range names {
		key := modelstore.Key(name)
		m, err := r.store.Load(ctx, key)
		switch {
		case err == nil:
			next.byKey[key] = Character{Name: name, Generator: markov.NewGenerator(m, opts...)}
		case errors.Is(err, modelstore.ErrNotFound):
			log.Warn("roster: no model for character, leaving it out", "character", name)
		default:
			if old, ok := prev.byKey[key]; ok {
				next.byKey[key] = Character{Name: name, Generator: old.Generator}
			}
			errs = append(errs, fmt.Errorf("roster: load %q: %w", name, err))
		}
	}
	next.names = sortedNames(next.byKey)
	r.snap.Store(next)

	status := observe.StatusOK
	if len(errs) > 0 {
		status = observe.StatusError
	}
	r.metrics.RecordReload(ctx, status, len(next.byKey))
	log.Info("roster: reloaded", "loaded", len(next.byKey), "configured", len(names), "failed", len(errs))
	return errors.Join(errs...)
}

// Replace installs models directly, keyed by display name.
func (r *Roster) Replace(models map[string]*markov.Model, opts ...markov.Option) {
	r.reloadMu.Lock()
	defer r.reloadMu.Unlock()

	next := &snapshot{byKey: make(map[string]Character, len(models))}
	for name, m := range models {
		next.byKey[modelstore.Key(name)] = Character{Name: name, Generator: markov.NewGenerator(m, opts...)}
	}
	next.names = sortedNames(next.byKey)
	r.snap.Store(next)
	r.metrics.RecordReload(context.Background(), observe.StatusOK, len(next.byKey))
}

// Lookup returns the character whose name equals name, compared
// case-insensitively.
func (r *Roster) Lookup(name string) (Character, bool) {
	c, ok := r.snap.Load().byKey[modelstore.Key(name)]
	return c, ok
}

// Names returns the display names of the loaded characters, sorted
// case-insensitively.
func (r *Roster) Names() []string {
	return slices.Clone(r.snap.Load().names)
}

// Len returns the number of loaded characters.
func (r *Roster) Len() int {
	return len(r.snap.Load().byKey)
}

// Generate produces one sentence for the named character. rng may be nil.
// It returns [ErrUnknownCharacter] for a name that is not loaded and
// [markov.ErrNoSentence] when every attempt was rejected.
func (r *Roster) Generate(ctx context.Context, name string, rng markov.Rand) (Character, markov.Sentence, error) {
	c, ok := r.Lookup(name)
	if !ok {
		r.metrics.RecordGeneration(ctx, modelstore.Key(name), observe.StatusUnknown, 0, 0)
		return Character{}, markov.Sentence{}, fmt.Errorf("%w: %q", ErrUnknownCharacter, name)
	}

	start := time.Now()
	s, err := c.Generator.Generate(rng)
	status := observe.StatusOK
	attempts := s.Attempts
	if errors.Is(err, markov.ErrNoSentence) {
		status = observe.StatusExhausted
		attempts = c.Generator.MaxAttempts()
	} else if err != nil {
		status = observe.StatusError
	}
	r.metrics.RecordGeneration(ctx, modelstore.Key(name), status, attempts, time.Since(start))
	if err != nil {
		slog.Debug("roster: generation failed", "character", c.Name, "err", err)
	}
	return c, s, err
}

func sortedNames(byKey map[string]Character) []string {
	keys := slices.Sorted(maps.Keys(byKey))
	names := make([]string, len(keys))
	for i, k := range keys {
		names[i] = byKey[k].Name
	}
	return names
}

// String lists the loaded names; handy in logs.
func (r *Roster) String() string {
	return strings.Join(r.Names(), ", ")
}
