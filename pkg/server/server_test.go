package server

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/robert-malhotra/stac-composite/internal/config"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestServer(t *testing.T, opts Options) *Server {
	t.Helper()
	opts.BaseURL = "http://localhost:8080"
	opts.DataDir = "../../data"
	opts.CollectionsDir = "../../collections"
	opts.Logger = testLogger()

	s, err := New(opts)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	t.Cleanup(s.Close)
	return s
}

func get(s *Server, target string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, httptest.NewRequest(http.MethodGet, target, nil))
	return w
}

func TestNew_ServesBundledCollection(t *testing.T) {
	s := newTestServer(t, Options{})

	w := get(s, "/collections/modis-snow-cover/composites?window=1")
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", w.Code, w.Body.String())
	}

	var ic struct {
		Features []json.RawMessage `json:"features"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &ic); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(ic.Features) != 3 {
		t.Errorf("expected 3 composites, got %d", len(ic.Features))
	}

	w = get(s, "/collections/modis-snow-cover/cover?bbox=-120,38.98,-119.98,39&window=0")
	if w.Code != http.StatusOK {
		t.Errorf("expected cover status 200, got %d: %s", w.Code, w.Body.String())
	}
}

func TestNew_CachesFetches(t *testing.T) {
	s := newTestServer(t, Options{EnableMetrics: true})

	for i := 0; i < 2; i++ {
		if w := get(s, "/collections/modis-snow-cover/composites"); w.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", w.Code)
		}
	}

	body := get(s, "/metrics").Body.String()
	for _, want := range []string{
		"stac_composite_fetch_cache_hits_total 1",
		"stac_composite_fetch_cache_misses_total 1",
		`stac_composite_collection_service_calls_total{op="fetch",outcome="ok",service="memory"} 1`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("expected metrics to contain %s", want)
		}
	}
}

func TestNew_MetricsDisabled(t *testing.T) {
	s := newTestServer(t, Options{CacheSize: -1})

	if w := get(s, "/metrics"); w.Code != http.StatusNotFound {
		t.Errorf("expected status 404 without metrics, got %d", w.Code)
	}
	if s.Service().Name() != "memory" {
		t.Errorf("expected memory service, got %s", s.Service().Name())
	}
}

func TestNew_DisableCover(t *testing.T) {
	s := newTestServer(t, Options{DisableCover: true})

	if w := get(s, "/collections/modis-snow-cover/cover?bbox=-120,38.98,-119.98,39"); w.Code != http.StatusNotFound {
		t.Errorf("expected status 404, got %d", w.Code)
	}
}

func TestNew_RequiresBaseURL(t *testing.T) {
	if _, err := New(Options{Logger: testLogger()}); err == nil {
		t.Error("expected an error without a base URL")
	}
}

func TestNew_RemoteBackend(t *testing.T) {
	s := newTestServer(t, Options{Backend: BackendRemote, RemoteBaseURL: "http://127.0.0.1:1"})
	if s.Service().Name() != "remote" {
		t.Errorf("expected remote service, got %s", s.Service().Name())
	}
}

func TestFromConfig_UnknownBackend(t *testing.T) {
	cfg := &config.Config{
		Backend: config.BackendConfig{Type: "s3"},
		STAC:    config.STACConfig{BaseURL: "http://localhost"},
	}
	if _, err := FromConfig(cfg, testLogger()); err == nil {
		t.Error("expected an error for an unknown backend")
	}
}
