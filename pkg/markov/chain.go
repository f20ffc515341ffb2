// Package markov implements an order-k Markov chain over word tokens.
//
// A [Model] maps a [State] (the k most recent tokens) to a weighted
// [Distribution] of the tokens observed to follow it. Every training
// sentence is padded with k [Begin] sentinels on the left and one [End]
// sentinel on the right, so a walk that starts at k Begins and stops at End
// reproduces the sentence structure of the corpus.
//
// Models are immutable once built. All read methods, and every method of
// [Generator], are safe for concurrent use without locking.
package markov

import (
	"errors"
	"fmt"
	"slices"
	"sort"
	"strconv"
	"strings"
	"unicode"
)

const (
	// Begin is the sentinel token that pads the start of every sentence.
	Begin = "___BEGIN__"

	// End is the sentinel token that terminates every sentence.
	End = "___END__"

	// DefaultOrder is the number of tokens that make up a state.
	DefaultOrder = 2
)

// ErrNoSentences is returned by [Build] when the corpus contains no
// sentence long enough to contribute a transition.
var ErrNoSentences = errors.New("markov: corpus has no usable sentences")

// State is an ordered window of exactly Order() tokens.
type State []string

// key encodes the state as a map key. Each token is prefixed with its
// byte length, so distinct states never share a key whatever bytes the
// tokens hold.
func (s State) key() string {
	var b strings.Builder
	for _, tok := range s {
		b.WriteString(strconv.Itoa(len(tok)))
		b.WriteByte(':')
		b.WriteString(tok)
	}
	return b.String()
}

// String renders the state for logs and test failures.
func (s State) String() string {
	return "(" + strings.Join(s, ", ") + ")"
}

// Choice is one candidate next token with its observed count.
type Choice struct {
	Token  string `json:"token"`
	Weight int    `json:"weight"`
}

// Distribution is the weighted set of tokens that follow a state. Choices
// are sorted by token.
type Distribution struct {
	choices    []Choice
	cumulative []int
}

func newDistribution(choices []Choice) Distribution {
	cum := make([]int, len(choices))
	total := 0
	for i, c := range choices {
		total += c.Weight
		cum[i] = total
	}
	return Distribution{choices: choices, cumulative: cum}
}

// Choices returns a copy of the candidate tokens and their weights.
func (d Distribution) Choices() []Choice {
	return slices.Clone(d.choices)
}

// Total returns the sum of all weights.
func (d Distribution) Total() int {
	if len(d.cumulative) == 0 {
		return 0
	}
	return d.cumulative[len(d.cumulative)-1]
}

// Weight returns the count observed for token, or 0.
func (d Distribution) Weight(token string) int {
	i, ok := slices.BinarySearchFunc(d.choices, token, func(c Choice, t string) int {
		return strings.Compare(c.Token, t)
	})
	if !ok {
		return 0
	}
	return d.choices[i].Weight
}

// pick draws a token with probability proportional to its weight.
func (d Distribution) pick(rng Rand) string {
	r := rng.IntN(d.Total())
	// First cumulative weight strictly greater than r.
	i := sort.SearchInts(d.cumulative, r+1)
	return d.choices[i].Token
}

// Entry is one state and its distribution in exported form. It is the unit
// used to persist and restore a model.
type Entry struct {
	State   State    `json:"state"`
	Choices []Choice `json:"choices"`
}

// Model is an immutable order-k Markov chain.
type Model struct {
	order     int
	chain     map[string]link
	sentences []string
}

// link is one state of the chain with the tokens that follow it.
type link struct {
	state State
	next  Distribution
}

// BuildOption configures [Build].
type BuildOption func(*buildConfig)

type buildConfig struct {
	order int
}

// WithOrder sets the state size k. Values below 1 are ignored.
func WithOrder(k int) BuildOption {
	return func(c *buildConfig) {
		if k > 0 {
			c.order = k
		}
	}
}

// Build constructs a model from corpus text. Sentences are delimited by
// terminal punctuation and tokenised on whitespace; sentences shorter than
// order+1 tokens are discarded. Building is deterministic: the same text and
// order always yield an [Model.Equal] model.
func Build(text string, opts ...BuildOption) (*Model, error) {
	cfg := buildConfig{order: DefaultOrder}
	for _, o := range opts {
		o(&cfg)
	}

	counts := make(map[string]map[string]int)
	states := make(map[string]State)
	var kept []string

	for _, sentence := range SplitSentences(text) {
		if len(sentence) < cfg.order+1 || containsSentinel(sentence) {
			continue
		}
		kept = append(kept, strings.Join(sentence, " "))

		padded := make([]string, 0, len(sentence)+cfg.order+1)
		for range cfg.order {
			padded = append(padded, Begin)
		}
		padded = append(padded, sentence...)
		padded = append(padded, End)

		for i := 0; i+cfg.order < len(padded); i++ {
			st := State(padded[i : i+cfg.order])
			k := st.key()
			next, ok := counts[k]
			if !ok {
				next = make(map[string]int)
				counts[k] = next
				states[k] = slices.Clone(st)
			}
			next[padded[i+cfg.order]]++
		}
	}

	if len(kept) == 0 {
		return nil, ErrNoSentences
	}

	chain := make(map[string]link, len(counts))
	for k, next := range counts {
		choices := make([]Choice, 0, len(next))
		for tok, n := range next {
			choices = append(choices, Choice{Token: tok, Weight: n})
		}
		slices.SortFunc(choices, func(a, b Choice) int { return strings.Compare(a.Token, b.Token) })
		chain[k] = link{state: states[k], next: newDistribution(choices)}
	}

	return &Model{order: cfg.order, chain: chain, sentences: kept}, nil
}

// FromEntries restores a model from persisted entries and the training
// sentences used by the originality filter. Entries are validated: every
// state must have exactly order tokens and at least one positive weight.
func FromEntries(order int, entries []Entry, sentences []string) (*Model, error) {
	if order < 1 {
		return nil, fmt.Errorf("markov: invalid order %d", order)
	}
	chain := make(map[string]link, len(entries))
	for i, e := range entries {
		if len(e.State) != order {
			return nil, fmt.Errorf("markov: entry %d: state %s has %d tokens, want %d", i, e.State, len(e.State), order)
		}
		if len(e.Choices) == 0 {
			return nil, fmt.Errorf("markov: entry %d: state %s has no choices", i, e.State)
		}
		choices := slices.Clone(e.Choices)
		slices.SortFunc(choices, func(a, b Choice) int { return strings.Compare(a.Token, b.Token) })
		for j, c := range choices {
			if c.Weight <= 0 {
				return nil, fmt.Errorf("markov: entry %d: token %q has weight %d", i, c.Token, c.Weight)
			}
			if j > 0 && choices[j-1].Token == c.Token {
				return nil, fmt.Errorf("markov: entry %d: duplicate token %q", i, c.Token)
			}
		}
		k := e.State.key()
		if _, dup := chain[k]; dup {
			return nil, fmt.Errorf("markov: entry %d: duplicate state %s", i, e.State)
		}
		chain[k] = link{state: slices.Clone(e.State), next: newDistribution(choices)}
	}
	return &Model{order: order, chain: chain, sentences: slices.Clone(sentences)}, nil
}

// Order returns the state size k.
func (m *Model) Order() int { return m.order }

// Len returns the number of distinct states.
func (m *Model) Len() int { return len(m.chain) }

// Sentences returns the training sentences, each rejoined with single
// spaces, in corpus order.
func (m *Model) Sentences() []string {
	return slices.Clone(m.sentences)
}

// Next returns the distribution for state.
func (m *Model) Next(state State) (Distribution, bool) {
	l, ok := m.chain[state.key()]
	return l.next, ok
}

// Entries returns every state with its distribution, sorted by state.
func (m *Model) Entries() []Entry {
	out := make([]Entry, 0, len(m.chain))
	for _, l := range m.chain {
		out = append(out, Entry{
			State:   slices.Clone(l.state),
			Choices: l.next.Choices(),
		})
	}
	slices.SortFunc(out, func(a, b Entry) int { return slices.Compare(a.State, b.State) })
	return out
}

// Equal reports whether m and other have the same order, the same states
// and the same weights for every state.
func (m *Model) Equal(other *Model) bool {
	if m == nil || other == nil {
		return m == other
	}
	if m.order != other.order || len(m.chain) != len(other.chain) {
		return false
	}
	for k, l := range m.chain {
		ol, ok := other.chain[k]
		if !ok || !slices.Equal(l.next.choices, ol.next.choices) {
			return false
		}
	}
	return true
}

// SplitSentences splits text on '.', '!' and '?' and each sentence on
// whitespace. Empty sentences are omitted.
func SplitSentences(text string) [][]string {
	parts := strings.FieldsFunc(text, func(r rune) bool {
		return r == '.' || r == '!' || r == '?'
	})
	out := make([][]string, 0, len(parts))
	for _, p := range parts {
		tokens := strings.FieldsFunc(p, unicode.IsSpace)
		if len(tokens) > 0 {
			out = append(out, tokens)
		}
	}
	return out
}

func containsSentinel(tokens []string) bool {
	return slices.Contains(tokens, Begin) || slices.Contains(tokens, End)
}
