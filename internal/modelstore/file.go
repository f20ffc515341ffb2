package modelstore

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/MrWong99/tngbot/internal/watch"
	"github.com/MrWong99/tngbot/pkg/markov"
)

const fileExt = ".json"

// FileStore keeps one <key>.json file per character in a directory. Saves
// write a temporary file and rename it into place, so a concurrent reader
// sees either the old or the new model.
type FileStore struct {
	dir string
}

var _ Store = (*FileStore)(nil)

// NewFileStore returns a store rooted at dir, creating the directory.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("modelstore: create %s: %w", dir, err)
	}
	return &FileStore{dir: dir}, nil
}

// Dir returns the directory holding the model files.
func (s *FileStore) Dir() string { return s.dir }

// Path returns the file a character's model is stored in.
func (s *FileStore) Path(character string) string {
	return filepath.Join(s.dir, Key(character)+fileExt)
}

func (s *FileStore) Save(_ context.Context, character string, m *markov.Model) error {
	data, err := Encode(character, m)
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(s.dir, "."+Key(character)+"-*.tmp")
	if err != nil {
		return fmt.Errorf("modelstore: save %q: %w", character, err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("modelstore: save %q: %w", character, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("modelstore: save %q: %w", character, err)
	}
	if err := os.Rename(tmp.Name(), s.Path(character)); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("modelstore: save %q: %w", character, err)
	}
	return nil
}

func (s *FileStore) Load(_ context.Context, character string) (*markov.Model, error) {
	data, err := os.ReadFile(s.Path(character))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, Key(character))
	}
	if err != nil {
		return nil, fmt.Errorf("modelstore: load %q: %w", character, err)
	}
	_, m, err := Decode(data)
	if err != nil {
		return nil, fmt.Errorf("modelstore: load %q: %w", character, err)
	}
	return m, nil
}

func (s *FileStore) List(_ context.Context) ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("modelstore: list: %w", err)
	}
	var keys []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || strings.HasPrefix(name, ".") || !strings.HasSuffix(name, fileExt) {
			continue
		}
		keys = append(keys, strings.TrimSuffix(name, fileExt))
	}
	slices.Sort(keys)
	return keys, nil
}

func (s *FileStore) Ping(_ context.Context) error {
	info, err := os.Stat(s.dir)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("%s is not a directory", s.dir)
	}
	return nil
}

func (s *FileStore) Close() error { return nil }

// Watch calls onChange after model files in the directory were written or
// removed. Bursts of writes, as produced by a build of several characters,
// are coalesced into one call after the directory has been quiet for
// debounce. Stop the returned watcher when done.
func (s *FileStore) Watch(onChange func(), debounce time.Duration) (*watch.Watcher, error) {
	return watch.New(s.dir, onChange,
		watch.WithDebounce(debounce),
		watch.WithFilter(func(p string) bool {
			base := filepath.Base(p)
			return !strings.HasPrefix(base, ".") && strings.HasSuffix(base, fileExt)
		}),
	)
}
