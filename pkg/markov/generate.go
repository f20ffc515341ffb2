package markov

import (
	"errors"
	"math"
	"math/rand/v2"
	"strings"
)

// ErrNoSentence is returned by [Generator.Generate] when every attempt was
// rejected.
var ErrNoSentence = errors.New("markov: no sentence available")

// Attempt outcomes that never leave the package.
var (
	errUnknownState = errors.New("markov: walk reached an unknown state")
	errTooLong      = errors.New("markov: walk exceeded the maximum length")
)

const (
	defaultMaxTokens       = 50
	defaultMaxAttempts     = 30
	defaultMaxOverlapRatio = 0.7
	defaultMaxOverlapTotal = 15
)

// Rand is the random source used for weighted draws. *rand.Rand from
// math/rand/v2 satisfies it.
type Rand interface {
	IntN(n int) int
}

// globalRand draws from the top-level math/rand/v2 functions, which are
// seeded from system entropy and safe for concurrent use.
type globalRand struct{}

func (globalRand) IntN(n int) int { return rand.IntN(n) }

// Sentence is a generated token sequence. The End sentinel is implied and
// not included in Tokens.
type Sentence struct {
	Tokens []string

	// Attempts is the number of walks it took to produce the sentence.
	Attempts int
}

// String joins the tokens with single spaces and closes the sentence with
// a full stop.
func (s Sentence) String() string {
	if len(s.Tokens) == 0 {
		return ""
	}
	return strings.Join(s.Tokens, " ") + "."
}

// Option configures a [Generator].
type Option func(*Generator)

// WithMinTokens sets the shortest acceptable sentence. Default: order+1.
func WithMinTokens(n int) Option {
	return func(g *Generator) {
		if n > 0 {
			g.minTokens = n
		}
	}
}

// WithMaxTokens sets the longest acceptable sentence. A walk that has not
// reached End after this many tokens is abandoned. Default: 50.
func WithMaxTokens(n int) Option {
	return func(g *Generator) {
		if n > 0 {
			g.maxTokens = n
		}
	}
}

// WithMaxAttempts sets how many walks are tried before giving up.
// Default: 30.
func WithMaxAttempts(n int) Option {
	return func(g *Generator) {
		if n > 0 {
			g.maxAttempts = n
		}
	}
}

// WithMaxOverlapRatio sets the longest run copied from the corpus as a
// fraction of the sentence length. Default: 0.7.
func WithMaxOverlapRatio(r float64) Option {
	return func(g *Generator) {
		if r > 0 {
			g.overlapRatio = r
		}
	}
}

// WithMaxOverlapTotal caps the run length derived from the ratio.
// Default: 15.
func WithMaxOverlapTotal(n int) Option {
	return func(g *Generator) {
		if n > 0 {
			g.overlapTotal = n
		}
	}
}

// WithOriginalityCheck enables or disables rejection of sentences that
// copy long runs from the training corpus. Enabled by default.
func WithOriginalityCheck(enabled bool) Option {
	return func(g *Generator) {
		g.checkOverlap = enabled
	}
}

// Generator samples sentences from a [Model]. It holds no mutable state;
// one Generator may serve any number of concurrent callers.
type Generator struct {
	model *Model

	minTokens    int
	maxTokens    int
	maxAttempts  int
	overlapRatio float64
	overlapTotal int
	checkOverlap bool

	// corpus holds every training sentence framed as " tok tok \n" so that
	// a framed run can only match within one sentence on token boundaries.
	corpus string
}

// NewGenerator returns a Generator for m.
func NewGenerator(m *Model, opts ...Option) *Generator {
	g := &Generator{
		model:        m,
		minTokens:    m.order + 1,
		maxTokens:    defaultMaxTokens,
		maxAttempts:  defaultMaxAttempts,
		overlapRatio: defaultMaxOverlapRatio,
		overlapTotal: defaultMaxOverlapTotal,
		checkOverlap: true,
	}
	for _, o := range opts {
		o(g)
	}
	if g.maxTokens < g.minTokens {
		g.maxTokens = g.minTokens
	}

	var b strings.Builder
	for _, s := range m.sentences {
		b.WriteByte(' ')
		b.WriteString(s)
		b.WriteString(" \n")
	}
	g.corpus = b.String()
	return g
}

// Model returns the model the generator samples from.
func (g *Generator) Model() *Model { return g.model }

// Bounds returns the accepted sentence length range.
func (g *Generator) Bounds() (minTokens, maxTokens int) {
	return g.minTokens, g.maxTokens
}

// MaxAttempts returns how many walks Generate tries before giving up.
func (g *Generator) MaxAttempts() int { return g.maxAttempts }

// Generate walks the chain until it produces a sentence that passes the
// length and originality filters, trying at most the configured number of
// attempts. rng supplies every random draw; nil uses an entropy-seeded
// source. A *rand.Rand must not be shared between concurrent calls.
func (g *Generator) Generate(rng Rand) (Sentence, error) {
	if rng == nil {
		rng = globalRand{}
	}
	for attempt := 1; attempt <= g.maxAttempts; attempt++ {
		tokens, err := g.walk(rng)
		if err != nil {
			continue
		}
		if len(tokens) < g.minTokens {
			continue
		}
		if g.checkOverlap && g.copiesCorpus(tokens) {
			continue
		}
		return Sentence{Tokens: tokens, Attempts: attempt}, nil
	}
	return Sentence{}, ErrNoSentence
}

// walk performs one random walk from the all-Begin state to End.
func (g *Generator) walk(rng Rand) ([]string, error) {
	state := make(State, g.model.order)
	for i := range state {
		state[i] = Begin
	}

	var out []string
	for {
		dist, ok := g.model.Next(state)
		if !ok || dist.Total() == 0 {
			return nil, errUnknownState
		}
		tok := dist.pick(rng)
		if tok == End {
			return out, nil
		}
		if len(out) == g.maxTokens {
			return nil, errTooLong
		}
		out = append(out, tok)
		copy(state, state[1:])
		state[len(state)-1] = tok
	}
}

// copiesCorpus reports whether the tokens repeat more than
// overlapRun(len(tokens)) consecutive tokens of one training sentence. A
// sentence no longer than the allowed run is checked as a whole.
func (g *Generator) copiesCorpus(tokens []string) bool {
	window := min(g.overlapRun(len(tokens))+1, len(tokens))
	for i := 0; i+window <= len(tokens); i++ {
		gram := " " + strings.Join(tokens[i:i+window], " ") + " "
		if strings.Contains(g.corpus, gram) {
			return true
		}
	}
	return false
}

// overlapRun returns the longest run that may be shared with the corpus.
func (g *Generator) overlapRun(n int) int {
	run := int(math.Round(g.overlapRatio * float64(n)))
	run = min(run, g.overlapTotal, n)
	return max(run, 1)
}
