package command

import (
	"strings"

	"github.com/antzucaro/matchr"
)

const (
	defaultPhoneticThreshold = 0.70
	defaultFuzzyThreshold    = 0.85
)

// Suggester picks the known name closest to a misspelt one.
//
// A name whose Double Metaphone code overlaps the input's is preferred if
// its Jaro-Winkler similarity reaches the phonetic threshold, so "reiker"
// finds "riker". Without a phonetic candidate, a name is only suggested when
// the plain similarity reaches the stricter fuzzy threshold.
type Suggester struct {
	phoneticThreshold float64
	fuzzyThreshold    float64
}

// SuggestOption configures a [Suggester].
type SuggestOption func(*Suggester)

// WithPhoneticThreshold sets the minimum similarity for a phonetic match.
// Default: 0.70.
func WithPhoneticThreshold(v float64) SuggestOption {
	return func(s *Suggester) { s.phoneticThreshold = v }
}

// WithFuzzyThreshold sets the minimum similarity without a phonetic match.
// Default: 0.85.
func WithFuzzyThreshold(v float64) SuggestOption {
	return func(s *Suggester) { s.fuzzyThreshold = v }
}

// NewSuggester returns a suggester with the default thresholds.
func NewSuggester(opts ...SuggestOption) *Suggester {
	s := &Suggester{
		phoneticThreshold: defaultPhoneticThreshold,
		fuzzyThreshold:    defaultFuzzyThreshold,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Suggest returns the name in names most similar to input, or false when
// nothing is close enough. An exact case-insensitive match is not a
// suggestion and is reported as false.
func (s *Suggester) Suggest(input string, names []string) (string, bool) {
	in := strings.ToLower(strings.TrimSpace(input))
	if in == "" {
		return "", false
	}
	inCodes := metaphones(in)

	var (
		best      string
		bestScore float64
		phonetic  bool
	)
	for _, name := range names {
		lower := strings.ToLower(name)
		if lower == in {
			return "", false
		}
		score := matchr.JaroWinkler(in, lower, false)
		if overlaps(inCodes, metaphones(lower)) {
			if score >= s.phoneticThreshold && (!phonetic || score > bestScore) {
				best, bestScore, phonetic = name, score, true
			}
			continue
		}
		if !phonetic && score >= s.fuzzyThreshold && score > bestScore {
			best, bestScore = name, score
		}
	}
	return best, best != ""
}

func metaphones(word string) [2]string {
	p, s := matchr.DoubleMetaphone(word)
	return [2]string{p, s}
}

func overlaps(a, b [2]string) bool {
	for _, x := range a {
		if x == "" {
			continue
		}
		for _, y := range b {
			if x == y {
				return true
			}
		}
	}
	return false
}
