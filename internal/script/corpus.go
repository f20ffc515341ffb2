package script

import (
	"errors"
	"fmt"
	"strings"
)

// ErrEmptyCorpus is returned by [Assemble] when no document contains a line
// for the character.
var ErrEmptyCorpus = errors.New("script: empty corpus")

// Corpus is the training text for one character.
type Corpus struct {
	Character string
	// Lines are in document order, and documents are in the order they were
	// passed to Assemble.
	Lines []string
	// Documents is the number of documents that were scanned.
	Documents int
}

// Text joins every line with a single space.
func (c *Corpus) Text() string {
	return strings.Join(c.Lines, " ")
}

// Assemble extracts the lines spoken by character from every document and
// concatenates them. It returns an error wrapping [ErrEmptyCorpus] when
// nothing was found.
func Assemble(docs []Document, character string) (*Corpus, error) {
	c := &Corpus{Character: character, Documents: len(docs)}
	for _, doc := range docs {
		c.Lines = append(c.Lines, ExtractLines(doc, character)...)
	}
	if len(c.Lines) == 0 {
		return nil, fmt.Errorf("script: assemble %q from %d documents: %w", character, len(docs), ErrEmptyCorpus)
	}
	return c, nil
}
