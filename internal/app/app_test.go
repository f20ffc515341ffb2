package app_test

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/MrWong99/tngbot/internal/app"
	"github.com/MrWong99/tngbot/internal/config"
	"github.com/MrWong99/tngbot/internal/modelstore"
	"github.com/MrWong99/tngbot/pkg/markov"
)

// testConfig returns a config for three characters with the originality
// check off, so single-sentence models repeat their sentence.
func testConfig() *config.Config {
	cfg := config.Default()
	off := false
	cfg.Server.ListenAddr = "127.0.0.1:0"
	cfg.Generator.OriginalityCheck = &off
	cfg.Characters = []config.CharacterConfig{
		{Name: "picard", Series: "TNG"},
		{Name: "riker", Series: "TNG"},
		{Name: "data", Series: "TNG"},
	}
	return cfg
}

func saveModel(t *testing.T, s modelstore.Store, name, text string) {
	t.Helper()
	m, err := markov.Build(text)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Save(context.Background(), name, m); err != nil {
		t.Fatal(err)
	}
}

// newApp returns an app whose store holds picard and riker but not data.
func newApp(t *testing.T, opts ...app.Option) (*app.App, *modelstore.FileStore) {
	t.Helper()
	store, err := modelstore.NewFileStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	saveModel(t, store, "picard", "Make it so now.")
	saveModel(t, store, "riker", "Shields up now.")

	opts = append([]app.Option{app.WithStore(store)}, opts...)
	a, err := app.New(context.Background(), testConfig(), opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = a.Shutdown(ctx)
	})
	return a, store
}

func getJSON(t *testing.T, h http.Handler, path string, v any) int {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	if v != nil {
		if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
			t.Fatalf("%s: decode %q: %v", path, rec.Body.String(), err)
		}
	}
	return rec.Code
}

func TestNew_SkipsCharactersWithoutModel(t *testing.T) {
	t.Parallel()
	a, _ := newApp(t)

	if got := a.Roster().Len(); got != 2 {
		t.Errorf("loaded = %d, want 2", got)
	}
	if _, ok := a.Roster().Lookup("data"); ok {
		t.Error("data has no model and should not be loaded")
	}
}

func TestNew_OpensConfiguredStore(t *testing.T) {
	t.Parallel()
	cfg := testConfig()
	cfg.Store = config.StoreConfig{Backend: config.BackendFile, Dir: t.TempDir()}

	a, err := app.New(context.Background(), cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if a.Roster().Len() != 0 {
		t.Errorf("loaded = %d from an empty store", a.Roster().Len())
	}
	if err := a.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
}

func TestHandler_Characters(t *testing.T) {
	t.Parallel()
	a, _ := newApp(t)

	var body struct {
		Characters []string `json:"characters"`
	}
	if code := getJSON(t, a.Handler(), "/characters", &body); code != http.StatusOK {
		t.Fatalf("status = %d", code)
	}
	if len(body.Characters) != 2 || body.Characters[0] != "picard" || body.Characters[1] != "riker" {
		t.Errorf("characters = %v", body.Characters)
	}
}

func TestHandler_Quote(t *testing.T) {
	t.Parallel()
	a, _ := newApp(t)

	tests := []struct {
		path       string
		wantStatus int
		wantText   string
		wantSugg   string
	}{
		{"/characters/picard/quote", http.StatusOK, "Make it so now.", ""},
		{"/characters/RIKER/quote", http.StatusOK, "Shields up now.", ""},
		{"/characters/rikker/quote", http.StatusNotFound, "", "riker"},
		{"/characters/data/quote", http.StatusNotFound, "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			var body struct {
				Character  string `json:"character"`
				Text       string `json:"text"`
				Error      string `json:"error"`
				Suggestion string `json:"suggestion"`
			}
			if code := getJSON(t, a.Handler(), tt.path, &body); code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", code, tt.wantStatus)
			}
			if body.Text != tt.wantText {
				t.Errorf("text = %q, want %q", body.Text, tt.wantText)
			}
			if body.Suggestion != tt.wantSugg {
				t.Errorf("suggestion = %q, want %q", body.Suggestion, tt.wantSugg)
			}
		})
	}
}

func TestHandler_Health(t *testing.T) {
	t.Parallel()
	a, _ := newApp(t)

	if code := getJSON(t, a.Handler(), "/healthz", nil); code != http.StatusOK {
		t.Errorf("/healthz = %d", code)
	}
	var ready struct {
		Status string `json:"status"`
	}
	if code := getJSON(t, a.Handler(), "/readyz", &ready); code != http.StatusServiceUnavailable || ready.Status != "starting" {
		t.Errorf("/readyz before Run = %d %q, want 503 starting", code, ready.Status)
	}
}

func TestDispatcher_UsesBotName(t *testing.T) {
	t.Parallel()
	a, _ := newApp(t)

	reply, ok := a.Dispatcher().Handle(context.Background(), "./tng_bot picard")
	if !ok || reply != "picard: Make it so now." {
		t.Errorf("Handle = %q, %v", reply, ok)
	}
}

func TestApp_ReloadsRebuiltModels(t *testing.T) {
	t.Parallel()
	a, store := newApp(t, app.WithModelDebounce(20*time.Millisecond))

	saveModel(t, store, "data", "I am an android.")

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if _, ok := a.Roster().Lookup("data"); ok {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("data was not loaded after its model was saved")
}

func TestApp_ConfigReload(t *testing.T) {
	t.Parallel()
	store, err := modelstore.NewFileStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	saveModel(t, store, "picard", "Make it so now.")
	saveModel(t, store, "worf", "Today is a good day.")

	path := filepath.Join(t.TempDir(), "config.yaml")
	write := func(yaml string) {
		t.Helper()
		if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	write("characters:\n  - name: picard\n")

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatal(err)
	}
	a, err := app.New(context.Background(), cfg, app.WithStore(store), app.WithConfigPath(path))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer a.Shutdown(context.Background())

	write("characters:\n  - name: picard\n  - name: worf\n")

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if _, ok := a.Roster().Lookup("worf"); ok {
			if len(a.Config().Characters) != 2 {
				t.Errorf("Config().Characters = %v", a.Config().Characters)
			}
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("worf was not loaded after the config added him")
}

func TestApp_ServeAndShutdown(t *testing.T) {
	t.Parallel()
	a, _ := newApp(t)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- a.Serve(ctx, ln) }()

	url := "http://" + ln.Addr().String() + "/readyz"
	deadline := time.Now().Add(5 * time.Second)
	for {
		resp, err := http.Get(url)
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				break
			}
		}
		if time.Now().After(deadline) {
			t.Fatalf("/readyz never became ready: %v", err)
		}
		time.Sleep(20 * time.Millisecond)
	}

	cancel()
	select {
	case err := <-errCh:
		if err != nil {
			t.Fatalf("Serve: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after cancellation")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := a.Shutdown(shutdownCtx); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
}
