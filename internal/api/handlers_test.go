package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/robert-malhotra/stac-composite/internal/backend"
	"github.com/robert-malhotra/stac-composite/internal/composite"
	"github.com/robert-malhotra/stac-composite/internal/config"
	"github.com/robert-malhotra/stac-composite/internal/grid"
	"github.com/robert-malhotra/stac-composite/internal/metrics"
	"github.com/robert-malhotra/stac-composite/internal/translate"
)

const testDataset = "MODIS/006/MOD10A1"

var jan1 = time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)

func createTestConfig() *config.Config {
	return &config.Config{
		Composite: config.CompositeConfig{
			DefaultWindowDays: 1,
			MaxWindowDays:     30,
			MatchingProperty:  composite.DefaultMatchingProperty,
			NoDataPolicy:      "propagate",
			Reducer:           "local",
		},
		STAC: config.STACConfig{
			Version:     "1.0.0",
			BaseURL:     "http://test.example.com",
			Title:       "Test Composite API",
			Description: "Composites for tests",
		},
		Features: config.FeatureConfig{
			EnableCover:  true,
			DefaultLimit: 10,
			MaxLimit:     250,
		},
	}
}

// createTestCollections registers a MODIS-like collection with cover
// settings and a plain one without.
func createTestCollections() *config.CollectionRegistry {
	registry := config.NewCollectionRegistry()

	extent := config.Extent{
		Spatial:  config.SpatialExtent{BBox: [][]float64{{-180, -90, 180, 90}}},
		Temporal: config.TemporalExtent{Interval: [][]interface{}{{"2020-01-01T00:00:00Z", nil}}},
	}
	_ = registry.Add(&config.CollectionConfig{
		ID:          "modis-snow-cover",
		Title:       "MODIS Snow Cover",
		Description: "Test collection",
		Dataset:     testDataset,
		Cover:       config.MODISSnowCover(),
		License:     "proprietary",
		Extent:      extent,
	})
	_ = registry.Add(&config.CollectionConfig{
		ID:          "plain",
		Title:       "Plain",
		Description: "Test collection without cover settings",
		License:     "proprietary",
		Extent:      extent,
	})
	return registry
}

// createTestService holds five daily 3x3 records covering [0,0,3,3] with
// values 10..50 and cloud_cover 0..40.
func createTestService(t *testing.T) *backend.MemoryBackend {
	t.Helper()

	records := make([]composite.Record, 5)
	for i := range records {
		g := grid.New(3, 3, float64(i+1)*10)
		g.Transform = [6]float64{0, 1, 0, 3, 0, -1}
		g.CRS = "EPSG:4326"
		records[i] = composite.Record{
			Timestamp:  jan1.AddDate(0, 0, i).UnixMilli(),
			Grid:       g,
			Properties: map[string]any{"cloud_cover": float64(i * 10)},
		}
	}

	svc := backend.NewMemoryBackend(slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err := svc.Add(&composite.Collection{ID: testDataset, Records: records}); err != nil {
		t.Fatalf("failed to add collection: %v", err)
	}
	return svc
}

func newTestRouter(t *testing.T, cfg *config.Config, svc backend.CollectionService) chi.Router {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	collections := createTestCollections()
	m := metrics.New()
	translator := translate.NewTranslator(cfg, collections, logger)
	h := NewHandlers(cfg, svc, translator, collections, logger).WithMetrics(m)
	return NewRouter(h, logger, m)
}

func serve(t *testing.T, router http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

type testLink struct {
	Rel  string `json:"rel"`
	Href string `json:"href"`
}

type testItemCollection struct {
	Type     string `json:"type"`
	Features []struct {
		ID         string         `json:"id"`
		Properties map[string]any `json:"properties"`
	} `json:"features"`
	Links          []testLink `json:"links"`
	NumberMatched  *int       `json:"numberMatched"`
	NumberReturned int        `json:"numberReturned"`
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("failed to decode response: %v\n%s", err, w.Body.String())
	}
	return out
}

func findLink(links []testLink, rel string) string {
	for _, l := range links {
		if l.Rel == rel {
			return l.Href
		}
	}
	return ""
}

func TestHandlers_LandingPage(t *testing.T) {
	router := newTestRouter(t, createTestConfig(), createTestService(t))

	w := serve(t, router, "GET", "/", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}

	landing := decode[struct {
		Type       string     `json:"type"`
		Title      string     `json:"title"`
		ConformsTo []string   `json:"conformsTo"`
		Links      []testLink `json:"links"`
	}](t, w)

	if landing.Type != "Catalog" || landing.Title != "Test Composite API" {
		t.Errorf("unexpected landing page: %+v", landing)
	}
	if len(landing.ConformsTo) == 0 {
		t.Error("expected conformance classes")
	}
	if findLink(landing.Links, "data") != "http://test.example.com/collections" {
		t.Errorf("expected data link, got %+v", landing.Links)
	}
	if findLink(landing.Links, "child") == "" {
		t.Error("expected child collection links")
	}
}

func TestHandlers_Conformance(t *testing.T) {
	router := newTestRouter(t, createTestConfig(), createTestService(t))

	w := serve(t, router, "GET", "/conformance", "")
	conf := decode[struct {
		ConformsTo []string `json:"conformsTo"`
	}](t, w)
	if len(conf.ConformsTo) == 0 {
		t.Error("expected conformance classes")
	}
}

func TestHandlers_Collections(t *testing.T) {
	router := newTestRouter(t, createTestConfig(), createTestService(t))

	w := serve(t, router, "GET", "/collections", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}

	resp := decode[struct {
		Collections []struct {
			ID    string     `json:"id"`
			Links []testLink `json:"links"`
		} `json:"collections"`
		Links []testLink `json:"links"`
	}](t, w)

	if len(resp.Collections) != 2 {
		t.Fatalf("expected 2 collections, got %d", len(resp.Collections))
	}
	for _, coll := range resp.Collections {
		items := findLink(coll.Links, "items")
		if !strings.HasSuffix(items, "/collections/"+coll.ID+"/composites") {
			t.Errorf("unexpected items link for %s: %s", coll.ID, items)
		}
		cover := findLink(coll.Links, "cover")
		if coll.ID == "modis-snow-cover" && cover == "" {
			t.Error("expected cover link on modis-snow-cover")
		}
		if coll.ID == "plain" && cover != "" {
			t.Error("unexpected cover link on a collection without cover settings")
		}
	}
	if findLink(resp.Links, "self") != "http://test.example.com/collections" {
		t.Errorf("unexpected self link: %+v", resp.Links)
	}
}

func TestHandlers_Collection(t *testing.T) {
	router := newTestRouter(t, createTestConfig(), createTestService(t))

	w := serve(t, router, "GET", "/collections/modis-snow-cover", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}
	coll := decode[struct {
		ID string `json:"id"`
	}](t, w)
	if coll.ID != "modis-snow-cover" {
		t.Errorf("expected modis-snow-cover, got %s", coll.ID)
	}

	w = serve(t, router, "GET", "/collections/unknown", "")
	if w.Code != http.StatusNotFound {
		t.Errorf("expected status 404, got %d", w.Code)
	}
}

func TestHandlers_Composites_Get(t *testing.T) {
	router := newTestRouter(t, createTestConfig(), createTestService(t))

	w := serve(t, router, "GET", "/collections/modis-snow-cover/composites?window=1&limit=2", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", w.Code, w.Body.String())
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/geo+json" {
		t.Errorf("expected application/geo+json, got %s", ct)
	}

	ic := decode[testItemCollection](t, w)
	if ic.NumberReturned != 2 || ic.NumberMatched == nil || *ic.NumberMatched != 5 {
		t.Fatalf("unexpected counts: returned=%d matched=%v", ic.NumberReturned, ic.NumberMatched)
	}

	first := ic.Features[0].Properties
	if first["datetime"] != "2020-01-01T00:00:00Z" {
		t.Errorf("expected first composite on 2020-01-01, got %v", first["datetime"])
	}
	if first[composite.PropCount] != 2.0 {
		t.Errorf("expected 2 records in the first window, got %v", first[composite.PropCount])
	}
	if first[translate.PropMean] != 15.0 {
		t.Errorf("expected mean 15, got %v", first[translate.PropMean])
	}
	second := ic.Features[1].Properties
	if second[composite.PropCount] != 3.0 || second[translate.PropMean] != 20.0 {
		t.Errorf("unexpected second composite: %v", second)
	}

	next := findLink(ic.Links, "next")
	if next == "" {
		t.Fatal("expected next link")
	}
	u, err := url.Parse(next)
	if err != nil {
		t.Fatalf("invalid next link: %v", err)
	}
	if u.Query().Get("page") != "2" || u.Query().Get("window") != "1" {
		t.Errorf("unexpected next link: %s", next)
	}
}

func TestHandlers_Composites_Post(t *testing.T) {
	router := newTestRouter(t, createTestConfig(), createTestService(t))

	body := `{
		"datetime": "2020-01-02/2020-01-04",
		"window": 0,
		"sortby": [{"field": "datetime", "direction": "desc"}]
	}`
	w := serve(t, router, "POST", "/collections/modis-snow-cover/composites", body)
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", w.Code, w.Body.String())
	}

	ic := decode[testItemCollection](t, w)
	if len(ic.Features) != 2 {
		t.Fatalf("expected 2 composites in [01-02, 01-04), got %d", len(ic.Features))
	}
	if ic.Features[0].Properties["datetime"] != "2020-01-03T00:00:00Z" {
		t.Errorf("expected newest first, got %v", ic.Features[0].Properties["datetime"])
	}
	if ic.Features[0].Properties[composite.PropWindow] != 0.0 {
		t.Errorf("expected window 0, got %v", ic.Features[0].Properties[composite.PropWindow])
	}
}

func TestHandlers_Composites_Filter(t *testing.T) {
	router := newTestRouter(t, createTestConfig(), createTestService(t))

	params := url.Values{}
	params.Set("window", "30")
	params.Set("filter", `{"op":"<","args":[{"property":"cloud_cover"},25]}`)
	w := serve(t, router, "GET", "/collections/modis-snow-cover/composites?"+params.Encode(), "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", w.Code, w.Body.String())
	}

	ic := decode[testItemCollection](t, w)
	if len(ic.Features) != 3 {
		t.Fatalf("expected 3 filtered composites, got %d", len(ic.Features))
	}
	for _, f := range ic.Features {
		if f.Properties[translate.PropMean] != 20.0 || f.Properties[composite.PropCount] != 3.0 {
			t.Errorf("expected the mean of the three clear records, got %v", f.Properties)
		}
	}
}

func TestHandlers_Composites_IncludeGrid(t *testing.T) {
	router := newTestRouter(t, createTestConfig(), createTestService(t))

	w := serve(t, router, "GET", "/collections/modis-snow-cover/composites?window=0&grid=true&limit=1", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}
	ic := decode[testItemCollection](t, w)
	g, ok := ic.Features[0].Properties[translate.PropGrid].(map[string]any)
	if !ok {
		t.Fatalf("expected inline grid, got %v", ic.Features[0].Properties[translate.PropGrid])
	}
	if g["rows"] != 3.0 || g["cols"] != 3.0 {
		t.Errorf("unexpected grid shape: %v", g)
	}
}

func TestHandlers_Composites_EmptyRange(t *testing.T) {
	router := newTestRouter(t, createTestConfig(), createTestService(t))

	w := serve(t, router, "GET", "/collections/modis-snow-cover/composites?datetime=2021-01-01/2021-02-01", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", w.Code, w.Body.String())
	}
	ic := decode[testItemCollection](t, w)
	if len(ic.Features) != 0 || ic.NumberMatched == nil || *ic.NumberMatched != 0 {
		t.Errorf("expected an empty collection, got %d features", len(ic.Features))
	}
}

func TestHandlers_Composites_Errors(t *testing.T) {
	router := newTestRouter(t, createTestConfig(), createTestService(t))

	tests := []struct {
		name   string
		method string
		target string
		body   string
		status int
		code   string
	}{
		{"unknown collection", "GET", "/collections/unknown/composites", "", http.StatusNotFound, ErrCodeNotFound},
		{"window over max", "GET", "/collections/modis-snow-cover/composites?window=31", "", http.StatusBadRequest, ErrCodeInvalidParameter},
		{"negative window", "GET", "/collections/modis-snow-cover/composites?window=-1", "", http.StatusBadRequest, ErrCodeInvalidParameter},
		{"bad window", "GET", "/collections/modis-snow-cover/composites?window=wide", "", http.StatusBadRequest, ErrCodeInvalidParameter},
		{"bad nodata", "GET", "/collections/modis-snow-cover/composites?nodata=skip", "", http.StatusBadRequest, ErrCodeInvalidParameter},
		{"missing property", "GET", "/collections/modis-snow-cover/composites?property=doy", "", http.StatusBadRequest, ErrCodeInvalidParameter},
		{"bad body", "POST", "/collections/modis-snow-cover/composites", "{", http.StatusBadRequest, ErrCodeInvalidParameter},
		{"unknown route", "GET", "/collections/modis-snow-cover/items", "", http.StatusNotFound, ErrCodeNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := serve(t, router, tt.method, tt.target, tt.body)
			if w.Code != tt.status {
				t.Fatalf("expected status %d, got %d: %s", tt.status, w.Code, w.Body.String())
			}
			resp := decode[STACError](t, w)
			if resp.Code != tt.code {
				t.Errorf("expected code %s, got %s", tt.code, resp.Code)
			}
		})
	}
}

// failingService fails every call with a backend failure.
type failingService struct{}

func (failingService) Name() string { return "failing" }

func (failingService) Fetch(context.Context, backend.FetchParams) (*composite.Collection, error) {
	return nil, fmt.Errorf("%w: connection refused", composite.ErrBackendFailure)
}

func (failingService) ReduceMean(context.Context, []composite.Record) (composite.Record, error) {
	return composite.Record{}, composite.ErrBackendFailure
}

func (failingService) AggregateScalar(context.Context, []composite.Record, string) ([]float64, error) {
	return nil, composite.ErrBackendFailure
}

func TestHandlers_Composites_BackendFailure(t *testing.T) {
	router := newTestRouter(t, createTestConfig(), failingService{})

	w := serve(t, router, "GET", "/collections/modis-snow-cover/composites", "")
	if w.Code != http.StatusBadGateway {
		t.Fatalf("expected status 502, got %d", w.Code)
	}
	if resp := decode[STACError](t, w); resp.Code != ErrCodeUpstreamError {
		t.Errorf("expected code %s, got %s", ErrCodeUpstreamError, resp.Code)
	}
}

// reduceFailing fetches from memory but fails reductions.
type reduceFailing struct {
	*backend.MemoryBackend
}

func (reduceFailing) ReduceMean(context.Context, []composite.Record) (composite.Record, error) {
	return composite.Record{}, fmt.Errorf("%w: reducer down", composite.ErrBackendFailure)
}

func TestHandlers_Composites_RemoteReducer(t *testing.T) {
	cfg := createTestConfig()
	cfg.Composite.Reducer = "remote"

	router := newTestRouter(t, cfg, createTestService(t))
	w := serve(t, router, "GET", "/collections/modis-snow-cover/composites?window=1", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", w.Code, w.Body.String())
	}
	ic := decode[testItemCollection](t, w)
	if ic.Features[0].Properties[translate.PropMean] != 15.0 {
		t.Errorf("expected service mean 15, got %v", ic.Features[0].Properties[translate.PropMean])
	}

	router = newTestRouter(t, cfg, reduceFailing{createTestService(t)})
	w = serve(t, router, "GET", "/collections/modis-snow-cover/composites?window=1", "")
	if w.Code != http.StatusBadGateway {
		t.Errorf("expected status 502 when the service reducer fails, got %d", w.Code)
	}
}

type coverResponse struct {
	Collection string  `json:"collection"`
	Window     float64 `json:"window"`
	Series     []struct {
		Datetime string  `json:"datetime"`
		Fraction float64 `json:"fraction"`
		Area     float64 `json:"area"`
		Count    int     `json:"count"`
	} `json:"series"`
	FractionSummary *struct {
		Count int     `json:"count"`
		Mean  float64 `json:"mean"`
	} `json:"fraction_summary"`
	Links []testLink `json:"links"`
}

func TestHandlers_Cover(t *testing.T) {
	router := newTestRouter(t, createTestConfig(), createTestService(t))

	w := serve(t, router, "GET", "/collections/modis-snow-cover/cover?bbox=0,0,3,3&window=1", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", w.Code, w.Body.String())
	}

	resp := decode[coverResponse](t, w)
	if resp.Collection != "modis-snow-cover" || resp.Window != 1 {
		t.Errorf("unexpected response header fields: %+v", resp)
	}

	// Smoothed values are 15, 20, 30, 40 and 45 over nine pixels.
	means := []float64{15, 20, 30, 40, 45}
	if len(resp.Series) != len(means) {
		t.Fatalf("expected %d points, got %d", len(means), len(resp.Series))
	}
	for i, mean := range means {
		want := 9 * (mean*0.0145 - 0.01)
		p := resp.Series[i]
		if math.Abs(p.Fraction-want) > 1e-9 {
			t.Errorf("point %d: expected fraction %v, got %v", i, want, p.Fraction)
		}
		if math.Abs(p.Area-want*250000) > 1e-6 {
			t.Errorf("point %d: expected area %v, got %v", i, want*250000, p.Area)
		}
		if p.Datetime != jan1.AddDate(0, 0, i).Format(time.RFC3339) {
			t.Errorf("point %d: unexpected datetime %s", i, p.Datetime)
		}
	}
	if resp.Series[0].Count != 2 || resp.Series[2].Count != 3 {
		t.Errorf("unexpected window counts: %d, %d", resp.Series[0].Count, resp.Series[2].Count)
	}
	if resp.FractionSummary == nil || resp.FractionSummary.Count != 5 {
		t.Errorf("expected a fraction summary over 5 points, got %+v", resp.FractionSummary)
	}
	if !strings.HasPrefix(findLink(resp.Links, "self"), "http://test.example.com/collections/modis-snow-cover/cover?") {
		t.Errorf("unexpected self link: %+v", resp.Links)
	}
}

func TestHandlers_Cover_Mask(t *testing.T) {
	router := newTestRouter(t, createTestConfig(), createTestService(t))

	body := `{
		"bbox": [0, 0, 3, 3],
		"window": 0,
		"mask": {"type": "Polygon", "coordinates": [[[0, 0], [1, 0], [1, 3], [0, 3], [0, 0]]]}
	}`
	w := serve(t, router, "POST", "/collections/modis-snow-cover/cover", body)
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", w.Code, w.Body.String())
	}

	resp := decode[coverResponse](t, w)
	want := 6 * (10*0.0145 - 0.01)
	if math.Abs(resp.Series[0].Fraction-want) > 1e-9 {
		t.Errorf("expected six unmasked pixels (%v), got %v", want, resp.Series[0].Fraction)
	}
}

func TestHandlers_Cover_EmptyRange(t *testing.T) {
	router := newTestRouter(t, createTestConfig(), createTestService(t))

	w := serve(t, router, "GET", "/collections/modis-snow-cover/cover?bbox=0,0,3,3&datetime=2021-01-01/2021-02-01", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", w.Code, w.Body.String())
	}
	resp := decode[coverResponse](t, w)
	if len(resp.Series) != 0 || resp.FractionSummary != nil {
		t.Errorf("expected an empty series, got %+v", resp)
	}
}

func TestHandlers_Cover_Errors(t *testing.T) {
	router := newTestRouter(t, createTestConfig(), createTestService(t))

	tests := []struct {
		name   string
		target string
		status int
	}{
		{"no region", "/collections/modis-snow-cover/cover", http.StatusBadRequest},
		{"no cover settings", "/collections/plain/cover?bbox=0,0,3,3", http.StatusNotFound},
		{"unknown collection", "/collections/unknown/cover?bbox=0,0,3,3", http.StatusNotFound},
		{"filter", "/collections/modis-snow-cover/cover?bbox=0,0,3,3&filter=" +
			url.QueryEscape(`{"op":"=","args":[{"property":"cloud_cover"},0]}`), http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := serve(t, router, "GET", tt.target, "")
			if w.Code != tt.status {
				t.Errorf("expected status %d, got %d: %s", tt.status, w.Code, w.Body.String())
			}
		})
	}
}

func TestHandlers_Cover_Disabled(t *testing.T) {
	cfg := createTestConfig()
	cfg.Features.EnableCover = false
	router := newTestRouter(t, cfg, createTestService(t))

	w := serve(t, router, "GET", "/collections/modis-snow-cover/cover?bbox=0,0,3,3", "")
	if w.Code != http.StatusNotFound {
		t.Errorf("expected status 404, got %d", w.Code)
	}
}

func TestHandlers_Health(t *testing.T) {
	router := newTestRouter(t, createTestConfig(), createTestService(t))

	w := serve(t, router, "GET", "/health", "")
	resp := decode[map[string]any](t, w)
	if resp["status"] != "ok" || resp["service"] != "memory" || resp["collections"] != 2.0 {
		t.Errorf("unexpected health response: %v", resp)
	}
}

func TestHandlers_Metrics(t *testing.T) {
	router := newTestRouter(t, createTestConfig(), createTestService(t))

	serve(t, router, "GET", "/collections/modis-snow-cover/composites", "")
	w := serve(t, router, "GET", "/metrics", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}

	body := w.Body.String()
	for _, want := range []string{
		`stac_composite_compositor_runs_total{kind="composites",outcome="ok"} 1`,
		`route="/collections/{collectionId}/composites"`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("expected metrics to contain %s", want)
		}
	}
}
