package watch_test

import (
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/MrWong99/tngbot/internal/watch"
)

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}

func TestWatcher_DebouncesBursts(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	var calls atomic.Int32
	w, err := watch.New(dir, func() { calls.Add(1) }, watch.WithDebounce(100*time.Millisecond))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer w.Stop()

	path := filepath.Join(dir, "picard.json")
	for i := range 5 {
		if err := os.WriteFile(path, []byte{byte('a' + i)}, 0o644); err != nil {
			t.Fatalf("WriteFile: %v", err)
		}
	}

	waitFor(t, func() bool { return calls.Load() >= 1 })
	time.Sleep(250 * time.Millisecond)
	if got := calls.Load(); got != 1 {
		t.Errorf("onChange calls = %d, want 1 for one burst", got)
	}
}

func TestWatcher_Filter(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	var calls atomic.Int32
	w, err := watch.New(dir, func() { calls.Add(1) },
		watch.WithDebounce(20*time.Millisecond),
		watch.WithFilter(func(p string) bool { return strings.HasSuffix(p, ".json") }),
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer w.Stop()

	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	time.Sleep(150 * time.Millisecond)
	if got := calls.Load(); got != 0 {
		t.Fatalf("onChange calls = %d after unmatched write, want 0", got)
	}

	if err := os.WriteFile(filepath.Join(dir, "data.json"), []byte("{}"), 0o644); err != nil {
		t.Fatal(err)
	}
	waitFor(t, func() bool { return calls.Load() == 1 })
}

func TestWatcher_MissingDir(t *testing.T) {
	t.Parallel()
	if _, err := watch.New(filepath.Join(t.TempDir(), "missing"), func() {}); err == nil {
		t.Fatal("expected error for missing directory")
	}
}

func TestWatcher_StopIsIdempotent(t *testing.T) {
	t.Parallel()
	w, err := watch.New(t.TempDir(), func() {})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	w.Stop()
	w.Stop()
}
