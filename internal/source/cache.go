package source

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/MrWong99/tngbot/internal/script"
)

const metaFile = "meta.json"

type meta struct {
	TotalScripts int `json:"total_scripts"`
}

// Cache is a directory of downloaded transcripts, one subdirectory per
// series code.
type Cache struct {
	root string
}

// NewCache returns a cache rooted at dir. The directory is created on the
// first download.
func NewCache(dir string) *Cache {
	return &Cache{root: dir}
}

// Dir returns the directory holding the transcripts of code.
func (c *Cache) Dir(code string) string {
	return filepath.Join(c.root, strings.ToUpper(code))
}

// Status describes the cached state of one series.
type Status struct {
	// Total is the transcript count recorded at download time, or 0 when
	// meta.json is missing or unreadable.
	Total int
	// Files is the number of transcripts present.
	Files int
}

// Valid reports whether the cache can be used without downloading again.
func (s Status) Valid() bool {
	return s.Total > 0 && s.Files == s.Total
}

// Status inspects the cache for code. A missing directory is not an error.
func (c *Cache) Status(code string) (Status, error) {
	dir := c.Dir(code)
	var st Status

	data, err := os.ReadFile(filepath.Join(dir, metaFile))
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return st, nil
	case err != nil:
		return st, fmt.Errorf("source: read meta for %s: %w", code, err)
	}
	var m meta
	if err := json.Unmarshal(data, &m); err == nil && m.TotalScripts > 0 {
		st.Total = m.TotalScripts
	}

	files, err := c.files(code)
	if err != nil {
		return st, err
	}
	st.Files = len(files)
	return st, nil
}

// Documents reads every cached transcript of code in episode order.
func (c *Cache) Documents(code string) ([]script.Document, error) {
	files, err := c.files(code)
	if err != nil {
		return nil, err
	}
	docs := make([]script.Document, 0, len(files))
	for _, f := range files {
		data, err := os.ReadFile(filepath.Join(c.Dir(code), f.name))
		if err != nil {
			return nil, fmt.Errorf("source: read %s/%s: %w", code, f.name, err)
		}
		docs = append(docs, script.Document{
			Name:   strings.ToUpper(code) + "/" + f.name,
			Text:   string(data),
			Format: script.FormatHTML,
		})
	}
	return docs, nil
}

type cachedFile struct {
	name    string
	episode int
}

// files lists the .html files of code sorted by their numeric name, so
// 10.html comes after 9.html.
func (c *Cache) files(code string) ([]cachedFile, error) {
	entries, err := os.ReadDir(c.Dir(code))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("source: list %s: %w", code, err)
	}
	var out []cachedFile
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".html") {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSuffix(name, ".html"))
		if err != nil {
			n = 0
		}
		out = append(out, cachedFile{name: name, episode: n})
	}
	slices.SortFunc(out, func(a, b cachedFile) int {
		if a.episode != b.episode {
			return a.episode - b.episode
		}
		return strings.Compare(a.name, b.name)
	})
	return out, nil
}

// reset prepares an empty series directory for a fresh download.
func (c *Cache) reset(code string) error {
	dir := c.Dir(code)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("source: create %s: %w", dir, err)
	}
	files, err := c.files(code)
	if err != nil {
		return err
	}
	for _, f := range files {
		if err := os.Remove(filepath.Join(dir, f.name)); err != nil {
			return fmt.Errorf("source: remove stale %s: %w", f.name, err)
		}
	}
	if err := os.Remove(filepath.Join(dir, metaFile)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("source: remove stale meta: %w", err)
	}
	return nil
}

func (c *Cache) writeMeta(code string, total int) error {
	data, err := json.Marshal(meta{TotalScripts: total})
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(c.Dir(code), metaFile), data, 0o644)
}
