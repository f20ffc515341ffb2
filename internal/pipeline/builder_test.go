package pipeline_test

import (
	"context"
	"errors"
	"slices"
	"sync/atomic"
	"testing"

	"github.com/MrWong99/tngbot/internal/config"
	"github.com/MrWong99/tngbot/internal/modelstore"
	"github.com/MrWong99/tngbot/internal/pipeline"
	"github.com/MrWong99/tngbot/internal/script"
	"github.com/MrWong99/tngbot/pkg/markov"
)

// fakeSource serves fixed documents per series and counts calls.
type fakeSource struct {
	docs  map[string][]script.Document
	err   map[string]error
	calls atomic.Int32
}

func (f *fakeSource) Documents(_ context.Context, series string) ([]script.Document, error) {
	f.calls.Add(1)
	if err := f.err[series]; err != nil {
		return nil, err
	}
	return f.docs[series], nil
}

var tngDocs = []script.Document{
	{Name: "1", Format: script.FormatText, Text: "PICARD: Make it so. (smiles)\nRIKER: Aye, sir. Shields up now.\n"},
	{Name: "2", Format: script.FormatText, Text: "PICARD: Tea, Earl Grey, hot.\n\nDATA: I am an android.\n"},
}

func newStore(t *testing.T) *modelstore.FileStore {
	t.Helper()
	s, err := modelstore.NewFileStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func TestBuild_SavesModel(t *testing.T) {
	t.Parallel()
	store := newStore(t)
	b := pipeline.NewBuilder(&fakeSource{}, store)
	ctx := context.Background()

	res := b.Build(ctx, config.CharacterConfig{Name: "picard", Series: "TNG"}, tngDocs)
	if res.Err != nil {
		t.Fatalf("Build: %v", res.Err)
	}
	if res.Lines != 2 || res.Documents != 2 {
		t.Errorf("Result = %+v, want 2 lines from 2 documents", res)
	}

	got, err := store.Load(ctx, "picard")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	want, err := markov.Build("Make it so. Tea, Earl Grey, hot.")
	if err != nil {
		t.Fatal(err)
	}
	if !got.Equal(want) {
		t.Error("saved model differs from a model built from the same lines")
	}
}

func TestBuild_EmptyCorpus(t *testing.T) {
	t.Parallel()
	b := pipeline.NewBuilder(&fakeSource{}, newStore(t))

	res := b.Build(context.Background(), config.CharacterConfig{Name: "worf", Series: "TNG"}, tngDocs)
	if !errors.Is(res.Err, script.ErrEmptyCorpus) {
		t.Errorf("Err = %v, want ErrEmptyCorpus", res.Err)
	}
}

func TestBuild_NoUsableSentence(t *testing.T) {
	t.Parallel()
	b := pipeline.NewBuilder(&fakeSource{}, newStore(t))
	docs := []script.Document{{Format: script.FormatText, Text: "WORF: No.\n"}}

	res := b.Build(context.Background(), config.CharacterConfig{Name: "worf", Series: "TNG"}, docs)
	if !errors.Is(res.Err, markov.ErrNoSentences) {
		t.Errorf("Err = %v, want ErrNoSentences", res.Err)
	}
}

func TestBuildAll(t *testing.T) {
	t.Parallel()
	src := &fakeSource{docs: map[string][]script.Document{"TNG": tngDocs}}
	store := newStore(t)
	b := pipeline.NewBuilder(src, store, pipeline.WithConcurrency(2))

	chars := []config.CharacterConfig{
		{Name: "picard", Series: "TNG"},
		{Name: "worf", Series: "TNG"},
		{Name: "riker", Series: "TNG"},
	}
	results, err := b.BuildAll(context.Background(), chars)
	if !errors.Is(err, script.ErrEmptyCorpus) {
		t.Fatalf("err = %v, want ErrEmptyCorpus for worf", err)
	}
	if len(results) != 3 {
		t.Fatalf("len(results) = %d", len(results))
	}
	for i, c := range chars {
		if results[i].Character != c.Name {
			t.Errorf("results[%d] = %s, want %s", i, results[i].Character, c.Name)
		}
	}
	if results[0].Err != nil || results[2].Err != nil {
		t.Errorf("picard/riker failed: %v / %v", results[0].Err, results[2].Err)
	}
	if got := src.calls.Load(); got != 1 {
		t.Errorf("Documents calls = %d, want 1 per series", got)
	}

	keys, err := store.List(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if !slices.Equal(keys, []string{"picard", "riker"}) {
		t.Errorf("stored = %v, want [picard riker]", keys)
	}
}

func TestBuildAll_SourceError(t *testing.T) {
	t.Parallel()
	boom := errors.New("site down")
	src := &fakeSource{
		docs: map[string][]script.Document{"TNG": tngDocs},
		err:  map[string]error{"DS9": boom},
	}
	b := pipeline.NewBuilder(src, newStore(t))

	results, err := b.BuildAll(context.Background(), []config.CharacterConfig{
		{Name: "sisko", Series: "DS9"},
		{Name: "picard", Series: "TNG"},
	})
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want the source error", err)
	}
	if !errors.Is(results[0].Err, boom) {
		t.Errorf("sisko Err = %v", results[0].Err)
	}
	if results[1].Err != nil {
		t.Errorf("picard Err = %v, want success", results[1].Err)
	}
}

func TestBuildAll_Cancelled(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	src := &fakeSource{docs: map[string][]script.Document{"TNG": tngDocs}}
	b := pipeline.NewBuilder(src, newStore(t))

	_, err := b.BuildAll(ctx, []config.CharacterConfig{{Name: "picard", Series: "TNG"}})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}
