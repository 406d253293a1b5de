package translate

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/robert-malhotra/stac-composite/internal/backend"
	"github.com/robert-malhotra/stac-composite/internal/composite"
	"github.com/robert-malhotra/stac-composite/internal/config"
	"github.com/robert-malhotra/stac-composite/internal/stac"
)

func newTestTranslator(t *testing.T) *Translator {
	t.Helper()

	cfg := &config.Config{
		Composite: config.CompositeConfig{
			DefaultWindowDays: 5,
			MaxWindowDays:     30,
			MatchingProperty:  composite.DefaultMatchingProperty,
			NoDataPolicy:      "propagate",
		},
		STAC: config.STACConfig{
			Version: "1.0.0",
			BaseURL: "https://example.com",
		},
		Features: config.FeatureConfig{
			DefaultLimit: 2,
			MaxLimit:     10,
		},
	}

	registry := config.NewCollectionRegistry()
	if err := registry.Add(&config.CollectionConfig{
		ID:      "modis-snow-cover",
		Dataset: "MODIS/006/MOD10A1",
		Cover:   config.MODISSnowCover(),
	}); err != nil {
		t.Fatalf("failed to add collection: %v", err)
	}

	return NewTranslator(cfg, registry, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestTranslateCompositeRequest_Defaults(t *testing.T) {
	tr := newTestTranslator(t)

	q, err := tr.TranslateCompositeRequest(&stac.CompositeRequest{}, "modis-snow-cover")
	if err != nil {
		t.Fatalf("TranslateCompositeRequest failed: %v", err)
	}

	if q.Fetch.CollectionID != "MODIS/006/MOD10A1" {
		t.Errorf("expected dataset ID, got %s", q.Fetch.CollectionID)
	}
	if q.Window.Size != 5 || q.Window.Unit != composite.Days || q.Window.Property != composite.DefaultMatchingProperty {
		t.Errorf("unexpected default window: %+v", q.Window)
	}
	if q.Policy != composite.Propagate {
		t.Errorf("expected propagate policy, got %s", q.Policy)
	}
	if q.Limit != 2 || q.Page != 1 {
		t.Errorf("expected limit 2 page 1, got %d %d", q.Limit, q.Page)
	}
	if q.SortField != "datetime" || q.SortDesc {
		t.Errorf("expected ascending datetime sort, got %s desc=%v", q.SortField, q.SortDesc)
	}
	if q.Fetch.Region != nil || q.Fetch.Start != nil || q.HasFilter {
		t.Errorf("expected no region, time or filter: %+v", q)
	}
}

func TestTranslateCompositeRequest_AllParameters(t *testing.T) {
	tr := newTestTranslator(t)
	window := 0.0

	req := &stac.CompositeRequest{
		BBox:        []float64{-120, 38, -119, 39},
		DateTime:    "2020-01-01/2020-02-01",
		Window:      &window,
		Property:    "doy",
		NoData:      "filter",
		Mask:        json.RawMessage(`{"type":"Polygon","coordinates":[[[-120,38],[-119.5,38],[-119.5,39],[-120,39],[-120,38]]]}`),
		Limit:       50,
		Page:        2,
		Sortby:      []stac.SortbyItem{{Field: "composite:count", Direction: "desc"}},
		IncludeGrid: true,
		Filter:      map[string]any{"op": "<", "args": []any{map[string]any{"property": "cloud_cover"}, 20.0}},
	}

	q, err := tr.TranslateCompositeRequest(req, "modis-snow-cover")
	if err != nil {
		t.Fatalf("TranslateCompositeRequest failed: %v", err)
	}

	if q.Fetch.Region == nil || q.Fetch.Region.Type != "Polygon" {
		t.Errorf("expected polygon region, got %+v", q.Fetch.Region)
	}
	if q.Mask == nil {
		t.Error("expected mask")
	}
	if !q.Fetch.Start.Equal(time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)) ||
		!q.Fetch.End.Equal(time.Date(2020, 2, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("unexpected range: %v - %v", q.Fetch.Start, q.Fetch.End)
	}
	if q.Window.Size != 0 || q.Window.Property != "doy" {
		t.Errorf("unexpected window: %+v", q.Window)
	}
	if q.Policy != composite.Filter {
		t.Errorf("expected filter policy, got %s", q.Policy)
	}
	if q.Limit != 10 {
		t.Errorf("expected limit clamped to 10, got %d", q.Limit)
	}
	if q.SortField != composite.PropCount || !q.SortDesc {
		t.Errorf("unexpected sort: %s desc=%v", q.SortField, q.SortDesc)
	}
	if !q.HasFilter || !q.IncludeGrid {
		t.Errorf("expected filter and grid flags: %+v", q)
	}
}

func TestTranslateCompositeRequest_Errors(t *testing.T) {
	tr := newTestTranslator(t)
	tooWide := 31.0

	tests := []struct {
		name string
		req  *stac.CompositeRequest
	}{
		{"window over max", &stac.CompositeRequest{Window: &tooWide}},
		{"bad datetime", &stac.CompositeRequest{DateTime: "yesterday-ish/never"}},
		{"bad nodata", &stac.CompositeRequest{NoData: "ignore"}},
		{"bad intersects", &stac.CompositeRequest{Intersects: json.RawMessage(`{"type":"Point","coordinates":[0,0]}`)}},
		{"bad filter", &stac.CompositeRequest{Filter: map[string]any{"op": "like"}}},
		{"bad sort", &stac.CompositeRequest{Sortby: []stac.SortbyItem{{Field: "platform", Direction: "asc"}}}},
		{"bad bbox", &stac.CompositeRequest{BBox: []float64{10, 0, 0, 1}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tr.TranslateCompositeRequest(tt.req, "modis-snow-cover")
			if !errors.Is(err, composite.ErrInvalidConfiguration) {
				t.Errorf("expected ErrInvalidConfiguration, got %v", err)
			}
		})
	}

	if _, err := tr.TranslateCompositeRequest(&stac.CompositeRequest{}, "unknown"); !errors.Is(err, backend.ErrCollectionNotFound) {
		t.Errorf("expected ErrCollectionNotFound, got %v", err)
	}
}

func TestCompositeQuery_ApplyFilter(t *testing.T) {
	tr := newTestTranslator(t)
	coll := &composite.Collection{ID: "x", Records: []composite.Record{
		{Timestamp: 1, Properties: map[string]any{"cloud_cover": 5.0}},
		{Timestamp: 2, Properties: map[string]any{"cloud_cover": 50.0}},
	}}

	q, err := tr.TranslateCompositeRequest(&stac.CompositeRequest{}, "modis-snow-cover")
	if err != nil {
		t.Fatalf("TranslateCompositeRequest failed: %v", err)
	}
	if got := q.ApplyFilter(coll); got != coll {
		t.Error("expected the collection unchanged without a filter")
	}

	q, err = tr.TranslateCompositeRequest(&stac.CompositeRequest{
		Filter: map[string]any{"op": "<", "args": []any{map[string]any{"property": "cloud_cover"}, 20.0}},
	}, "modis-snow-cover")
	if err != nil {
		t.Fatalf("TranslateCompositeRequest failed: %v", err)
	}
	if got := q.ApplyFilter(coll); got.Len() != 1 || got.Records[0].Timestamp != 1 {
		t.Errorf("unexpected filtered collection: %+v", got)
	}
}

func TestTranslateComposites_Paging(t *testing.T) {
	tr := newTestTranslator(t)
	base := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)

	records := make([]composite.Record, 5)
	for i := range records {
		records[i] = testComposite(base.AddDate(0, 0, i), float64(i))
	}
	coll := &composite.Collection{ID: "MODIS/006/MOD10A1", Records: records}

	window := 1.0
	req := &stac.CompositeRequest{Window: &window, Page: 2}
	q, err := tr.TranslateCompositeRequest(req, "modis-snow-cover")
	if err != nil {
		t.Fatalf("TranslateCompositeRequest failed: %v", err)
	}

	ic, err := tr.TranslateComposites(coll, q, req)
	if err != nil {
		t.Fatalf("TranslateComposites failed: %v", err)
	}

	if ic.NumberReturned != 2 || ic.NumberMatched == nil || *ic.NumberMatched != 5 {
		t.Errorf("unexpected counts: returned=%d matched=%v", ic.NumberReturned, ic.NumberMatched)
	}
	if ic.Features[0].Properties["datetime"] != "2020-01-03T00:00:00Z" {
		t.Errorf("expected page 2 to start at day 3, got %v", ic.Features[0].Properties["datetime"])
	}
	if !strings.HasSuffix(ic.Features[0].Id, "_2") {
		t.Errorf("expected sequence 2 in ID, got %s", ic.Features[0].Id)
	}

	rels := map[string]string{}
	for _, link := range ic.Links {
		rels[link.Rel] = link.Href
	}
	for _, rel := range []string{"self", "root", "collection", "prev", "next"} {
		if rels[rel] == "" {
			t.Errorf("missing %s link", rel)
		}
	}
	next, err := url.Parse(rels["next"])
	if err != nil {
		t.Fatalf("invalid next link: %v", err)
	}
	if next.Query().Get("page") != "3" || next.Query().Get("window") != "1" {
		t.Errorf("unexpected next link: %s", rels["next"])
	}
}

func TestTranslateComposites_SortDescending(t *testing.T) {
	tr := newTestTranslator(t)
	base := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	coll := &composite.Collection{Records: []composite.Record{
		testComposite(base, 1),
		testComposite(base.AddDate(0, 0, 1), 2),
		testComposite(base.AddDate(0, 0, 2), 3),
	}}

	req := &stac.CompositeRequest{Sortby: []stac.SortbyItem{{Field: "datetime", Direction: "desc"}}, Limit: 10}
	q, err := tr.TranslateCompositeRequest(req, "modis-snow-cover")
	if err != nil {
		t.Fatalf("TranslateCompositeRequest failed: %v", err)
	}

	ic, err := tr.TranslateComposites(coll, q, req)
	if err != nil {
		t.Fatalf("TranslateComposites failed: %v", err)
	}
	if len(ic.Features) != 3 || ic.Features[0].Properties["datetime"] != "2020-01-03T00:00:00Z" {
		t.Errorf("expected newest first, got %v", ic.Features[0].Properties["datetime"])
	}
	for _, link := range ic.Links {
		if link.Rel == "next" || link.Rel == "prev" {
			t.Errorf("unexpected %s link on a single page", link.Rel)
		}
	}
}
