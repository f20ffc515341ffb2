package roster_test

import (
	"context"
	"errors"
	"math/rand/v2"
	"os"
	"slices"
	"sync"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/MrWong99/tngbot/internal/modelstore"
	"github.com/MrWong99/tngbot/internal/observe"
	"github.com/MrWong99/tngbot/internal/roster"
	"github.com/MrWong99/tngbot/pkg/markov"
)

func newMetrics(t *testing.T) (*observe.Metrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	m, err := observe.NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return m, reader
}

// generations returns the tngbot.generations count for status, or 0.
func generations(t *testing.T, reader *sdkmetric.ManualReader, status string) int64 {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != "tngbot.generations" {
				continue
			}
			var total int64
			for _, dp := range m.Data.(metricdata.Sum[int64]).DataPoints {
				if v, ok := dp.Attributes.Value(attribute.Key("status")); ok && v.AsString() == status {
					total += dp.Value
				}
			}
			return total
		}
	}
	return 0
}

func mustBuild(t *testing.T, text string) *markov.Model {
	t.Helper()
	m, err := markov.Build(text)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	return m
}

func newStore(t *testing.T, models map[string]*markov.Model) *modelstore.FileStore {
	t.Helper()
	s, err := modelstore.NewFileStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	for name, m := range models {
		if err := s.Save(context.Background(), name, m); err != nil {
			t.Fatal(err)
		}
	}
	return s
}

func TestReload_LoadsConfiguredCharacters(t *testing.T) {
	t.Parallel()
	store := newStore(t, map[string]*markov.Model{
		"picard": mustBuild(t, "Make it so now."),
		"riker":  mustBuild(t, "Shields up now."),
		"worf":   mustBuild(t, "Today is a good day to die."),
	})
	r := roster.New(store)

	err := r.Reload(context.Background(), []string{"Picard", "riker", "data"})
	if err != nil {
		t.Fatalf("Reload: %v", err)
	}
	if got := r.Names(); !slices.Equal(got, []string{"Picard", "riker"}) {
		t.Errorf("Names = %v, want [Picard riker]", got)
	}
	if r.Len() != 2 {
		t.Errorf("Len = %d, want 2", r.Len())
	}
	if _, ok := r.Lookup("worf"); ok {
		t.Error("unconfigured character was loaded")
	}
	if c, ok := r.Lookup("PICARD"); !ok || c.Name != "Picard" {
		t.Errorf("Lookup(PICARD) = %+v, %v", c, ok)
	}
}

// brokenStore fails Load for one key.
type brokenStore struct {
	modelstore.Store
	broken string
}

func (s brokenStore) Load(ctx context.Context, name string) (*markov.Model, error) {
	if name == s.broken {
		return nil, errors.New("disk on fire")
	}
	return s.Store.Load(ctx, name)
}

func TestReload_KeepsPreviousGeneratorOnError(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	fs := newStore(t, map[string]*markov.Model{
		"picard": mustBuild(t, "Make it so now."),
		"riker":  mustBuild(t, "Shields up now."),
	})

	broken := roster.New(brokenStore{Store: fs, broken: "riker"})
	if err := broken.Reload(ctx, []string{"picard", "riker"}); err == nil {
		t.Fatal("expected error from broken store")
	}
	if _, ok := broken.Lookup("riker"); ok {
		t.Error("riker loaded although its first load failed")
	}

	// Same roster: a later failure keeps the old generator.
	r2 := roster.New(fs)
	if err := r2.Reload(ctx, []string{"picard", "riker"}); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(fs.Path("riker"), []byte("garbage"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := r2.Reload(ctx, []string{"picard", "riker"}); err == nil {
		t.Fatal("expected decode error")
	}
	if _, ok := r2.Lookup("riker"); !ok {
		t.Error("riker dropped after a failed reload, want previous generator kept")
	}
}

func TestReload_WithoutStore(t *testing.T) {
	t.Parallel()
	if err := roster.New(nil).Reload(context.Background(), []string{"picard"}); err == nil {
		t.Fatal("expected error")
	}
}

func TestGenerate(t *testing.T) {
	t.Parallel()
	metrics, reader := newMetrics(t)
	r := roster.New(nil, roster.WithMetrics(metrics))
	r.Replace(map[string]*markov.Model{"Picard": mustBuild(t, "Make it so now.")},
		markov.WithOriginalityCheck(false))

	c, s, err := r.Generate(context.Background(), "picard", rand.New(rand.NewPCG(1, 2)))
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if c.Name != "Picard" {
		t.Errorf("Name = %q", c.Name)
	}
	if s.String() != "Make it so now." {
		t.Errorf("sentence = %q", s.String())
	}
	if got := generations(t, reader, observe.StatusOK); got != 1 {
		t.Errorf("ok generations = %d, want 1", got)
	}
}

func TestGenerate_UnknownCharacter(t *testing.T) {
	t.Parallel()
	metrics, reader := newMetrics(t)
	r := roster.New(nil, roster.WithMetrics(metrics))

	_, _, err := r.Generate(context.Background(), "q", nil)
	if !errors.Is(err, roster.ErrUnknownCharacter) {
		t.Fatalf("err = %v, want ErrUnknownCharacter", err)
	}
	if got := generations(t, reader, observe.StatusUnknown); got != 1 {
		t.Errorf("unknown generations = %d, want 1", got)
	}
}

func TestGenerate_Exhausted(t *testing.T) {
	t.Parallel()
	metrics, reader := newMetrics(t)
	r := roster.New(nil, roster.WithMetrics(metrics))
	// A single sentence can only be reproduced verbatim, which the
	// originality filter always rejects.
	r.Replace(map[string]*markov.Model{"data": mustBuild(t, "I am an android.")}, markov.WithMaxAttempts(3))

	_, _, err := r.Generate(context.Background(), "data", nil)
	if !errors.Is(err, markov.ErrNoSentence) {
		t.Fatalf("err = %v, want ErrNoSentence", err)
	}
	if got := generations(t, reader, observe.StatusExhausted); got != 1 {
		t.Errorf("exhausted generations = %d, want 1", got)
	}
}

func TestReplace_ConcurrentReaders(t *testing.T) {
	t.Parallel()
	r := roster.New(nil)
	a := map[string]*markov.Model{"picard": mustBuild(t, "Make it so now.")}
	b := map[string]*markov.Model{"riker": mustBuild(t, "Shields up now.")}
	r.Replace(a, markov.WithOriginalityCheck(false))

	var wg sync.WaitGroup
	for i := range 8 {
		wg.Go(func() {
			for range 200 {
				if i%2 == 0 {
					r.Replace(b, markov.WithOriginalityCheck(false))
					r.Replace(a, markov.WithOriginalityCheck(false))
					continue
				}
				// Whatever snapshot is current, it is complete.
				names := r.Names()
				if len(names) != 1 {
					t.Errorf("Names = %v, want exactly one", names)
					return
				}
			}
		})
	}
	wg.Wait()
}
