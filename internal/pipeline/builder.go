// Package pipeline runs the offline build: transcripts are mined for one
// character's lines, the lines are turned into a Markov model and the model
// is saved to the model store.
//
// Characters are built concurrently. A character whose build fails does not
// stop the others; every failure is reported in the joined error returned by
// [Builder.BuildAll].
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/tngbot/internal/config"
	"github.com/MrWong99/tngbot/internal/modelstore"
	"github.com/MrWong99/tngbot/internal/observe"
	"github.com/MrWong99/tngbot/internal/script"
	"github.com/MrWong99/tngbot/pkg/markov"
)

const defaultConcurrency = 4

// DocumentSource returns the transcripts of a series in episode order.
// *source.Fetcher implements it.
type DocumentSource interface {
	Documents(ctx context.Context, series string) ([]script.Document, error)
}

// Result describes the build of one character.
type Result struct {
	Character string
	Series    string

	// Documents is the number of transcripts searched.
	Documents int
	// Lines is the number of dialogue lines found.
	Lines int
	// Sentences is the number of sentences the model was trained on.
	Sentences int
	// States is the number of distinct chain states.
	States int

	Duration time.Duration
	Err      error
}

// Builder builds and saves character models.
type Builder struct {
	docs        DocumentSource
	store       modelstore.Store
	concurrency int
	order       int
	metrics     *observe.Metrics
}

// Option configures a [Builder].
type Option func(*Builder)

// WithConcurrency bounds how many characters are built at once. Default: 4.
func WithConcurrency(n int) Option {
	return func(b *Builder) {
		if n > 0 {
			b.concurrency = n
		}
	}
}

// WithOrder sets the chain order. Default: 2.
func WithOrder(k int) Option {
	return func(b *Builder) {
		if k > 0 {
			b.order = k
		}
	}
}

// WithMetrics sets the metrics sink. The default is [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(b *Builder) {
		if m != nil {
			b.metrics = m
		}
	}
}

// NewBuilder returns a builder reading transcripts from docs and saving
// models to store.
func NewBuilder(docs DocumentSource, store modelstore.Store, opts ...Option) *Builder {
	b := &Builder{
		docs:        docs,
		store:       store,
		concurrency: defaultConcurrency,
		order:       markov.DefaultOrder,
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.metrics == nil {
		b.metrics = observe.DefaultMetrics()
	}
	return b
}

// BuildAll builds every character. Transcripts are loaded once per series.
// Results are returned in the order of chars; the error joins the failures
// of all characters, so errors.Is(err, script.ErrEmptyCorpus) reports
// whether any character had no lines.
func (b *Builder) BuildAll(ctx context.Context, chars []config.CharacterConfig) ([]Result, error) {
	ctx, span := observe.StartSpan(ctx, "pipeline.build_all")
	defer span.End()

	docs, docErrs := b.loadSeries(ctx, chars)

	results := make([]Result, len(chars))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.concurrency)
	for i, c := range chars {
		g.Go(func() error {
			if err, failed := docErrs[c.Series]; failed {
				results[i] = Result{Character: c.Name, Series: c.Series, Err: err}
				b.metrics.RecordBuild(gctx, c.Key(), observe.StatusError, 0, 0)
				return nil
			}
			results[i] = b.Build(gctx, c, docs[c.Series])
			// Only cancellation aborts the remaining builds.
			return gctx.Err()
		})
	}
	if err := g.Wait(); err != nil {
		return results, fmt.Errorf("pipeline: build: %w", err)
	}

	var errs []error
	for _, r := range results {
		if r.Err != nil {
			errs = append(errs, r.Err)
		}
	}
	return results, errors.Join(errs...)
}

// loadSeries fetches the documents of every series the characters use.
// Series whose documents could not be loaded are returned in the error map.
func (b *Builder) loadSeries(ctx context.Context, chars []config.CharacterConfig) (map[string][]script.Document, map[string]error) {
	docs := make(map[string][]script.Document)
	errs := make(map[string]error)
	for _, c := range chars {
		if _, done := docs[c.Series]; done {
			continue
		}
		if _, done := errs[c.Series]; done {
			continue
		}
		d, err := b.docs.Documents(ctx, c.Series)
		if err != nil {
			errs[c.Series] = fmt.Errorf("pipeline: documents for %s: %w", c.Series, err)
			continue
		}
		docs[c.Series] = d
	}
	return docs, errs
}

// Build assembles one character's corpus from docs, builds the model and
// saves it.
func (b *Builder) Build(ctx context.Context, c config.CharacterConfig, docs []script.Document) Result {
	start := time.Now()
	res := Result{Character: c.Name, Series: c.Series, Documents: len(docs)}
	log := observe.Logger(ctx).With("character", c.Name, "series", c.Series)

	finish := func(err error) Result {
		res.Duration = time.Since(start)
		res.Err = err
		status := observe.StatusOK
		if err != nil {
			status = observe.StatusError
			log.Error("pipeline: build failed", "err", err)
		} else {
			log.Info("pipeline: model saved", "lines", res.Lines, "sentences", res.Sentences, "states", res.States, "duration", res.Duration)
		}
		b.metrics.RecordBuild(ctx, c.Key(), status, res.Lines, res.Duration)
		return res
	}

	corpus, err := script.Assemble(docs, c.Name)
	if err != nil {
		return finish(err)
	}
	res.Lines = len(corpus.Lines)

	m, err := markov.Build(corpus.Text(), markov.WithOrder(b.order))
	if err != nil {
		return finish(fmt.Errorf("pipeline: build %q: %w", c.Name, err))
	}
	res.Sentences = len(m.Sentences())
	res.States = m.Len()

	if err := b.store.Save(ctx, c.Name, m); err != nil {
		return finish(err)
	}
	return finish(nil)
}
