// Package modelstore persists built character models.
//
// A model is stored under its character key, the lower-cased character
// name, as a versioned JSON document (see [Encode]). Three backends are
// provided: a directory of JSON files, a PostgreSQL table and a SQLite
// database. Loading what was saved yields a model equal to the original.
package modelstore

import (
	"context"
	"errors"
	"strings"

	"github.com/MrWong99/tngbot/pkg/markov"
)

// ErrNotFound is returned by [Store.Load] when no model is stored for the
// character.
var ErrNotFound = errors.New("modelstore: model not found")

// Store saves and loads character models. Implementations must be safe for
// concurrent use.
type Store interface {
	// Save stores m under character, replacing any previous model.
	Save(ctx context.Context, character string, m *markov.Model) error

	// Load returns the model stored under character, or an error wrapping
	// [ErrNotFound].
	Load(ctx context.Context, character string) (*markov.Model, error)

	// List returns the keys of all stored models, sorted.
	List(ctx context.Context) ([]string, error)

	// Ping reports whether the backend is reachable.
	Ping(ctx context.Context) error

	// Close releases the resources held by the store.
	Close() error
}

// Key normalises a character name to its storage key.
func Key(character string) string {
	return strings.ToLower(strings.TrimSpace(character))
}
