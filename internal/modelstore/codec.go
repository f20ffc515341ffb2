package modelstore

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/MrWong99/tngbot/pkg/markov"
)

// FormatVersion is the version written by [Encode].
const FormatVersion = 1

// document is the persisted form of a model.
type document struct {
	Version   int            `json:"version"`
	Character string         `json:"character"`
	Order     int            `json:"order"`
	Sentences []string       `json:"sentences"`
	Entries   []markov.Entry `json:"entries"`
}

// Encode serialises m for character. The output is deterministic: equal
// models encode to equal bytes.
func Encode(character string, m *markov.Model) ([]byte, error) {
	if m == nil {
		return nil, errors.New("modelstore: encode: nil model")
	}
	doc := document{
		Version:   FormatVersion,
		Character: Key(character),
		Order:     m.Order(),
		Sentences: m.Sentences(),
		Entries:   m.Entries(),
	}
	if doc.Sentences == nil {
		doc.Sentences = []string{}
	}
	data, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("modelstore: encode %q: %w", character, err)
	}
	return data, nil
}

// Decode parses data written by [Encode] and returns the character key and
// the model.
func Decode(data []byte) (string, *markov.Model, error) {
	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return "", nil, fmt.Errorf("modelstore: decode: %w", err)
	}
	if doc.Version != FormatVersion {
		return "", nil, fmt.Errorf("modelstore: decode: unsupported format version %d", doc.Version)
	}
	m, err := markov.FromEntries(doc.Order, doc.Entries, doc.Sentences)
	if err != nil {
		return "", nil, fmt.Errorf("modelstore: decode %q: %w", doc.Character, err)
	}
	return doc.Character, m, nil
}
