// Package translate converts between STAC API requests and responses and
// the compositor's records and parameters.
package translate

import (
	"fmt"
	"log/slog"
	"sort"

	"github.com/robert-malhotra/stac-composite/internal/backend"
	"github.com/robert-malhotra/stac-composite/internal/composite"
	"github.com/robert-malhotra/stac-composite/internal/config"
	"github.com/robert-malhotra/stac-composite/internal/stac"
	"github.com/robert-malhotra/stac-composite/pkg/geojson"
)

// Translator handles conversion between STAC requests and compositor inputs.
type Translator struct {
	cfg         *config.Config
	collections *config.CollectionRegistry
	logger      *slog.Logger
}

// NewTranslator creates a new translator instance.
func NewTranslator(cfg *config.Config, collections *config.CollectionRegistry, logger *slog.Logger) *Translator {
	return &Translator{
		cfg:         cfg,
		collections: collections,
		logger:      logger,
	}
}

// CompositeQuery is a validated composite request, ready to run.
type CompositeQuery struct {
	Collection *config.CollectionConfig
	Fetch      backend.FetchParams
	Window     composite.Window
	Policy     composite.NoDataPolicy

	// Filter selects input records before compositing.
	Filter    Predicate
	HasFilter bool

	// Mask is removed from the region in cover requests.
	Mask *geojson.Geometry

	Limit       int
	Page        int
	SortField   string
	SortDesc    bool
	IncludeGrid bool
}

// TranslateCompositeRequest converts a STAC composite request for a
// collection into a CompositeQuery. Invalid requests fail with
// composite.ErrInvalidConfiguration; unknown collections with
// backend.ErrCollectionNotFound.
func (t *Translator) TranslateCompositeRequest(req *stac.CompositeRequest, collectionID string) (*CompositeQuery, error) {
	coll := t.collections.Get(collectionID)
	if coll == nil {
		return nil, fmt.Errorf("%w: %s", backend.ErrCollectionNotFound, collectionID)
	}

	if err := stac.ValidateCompositeRequest(req, t.cfg.Composite.MaxWindowDays); err != nil {
		return nil, fmt.Errorf("%w: %v", composite.ErrInvalidConfiguration, err)
	}

	q := &CompositeQuery{
		Collection:  coll,
		Fetch:       backend.FetchParams{CollectionID: coll.DatasetID()},
		Limit:       req.Limit,
		Page:        req.Page,
		SortField:   "datetime",
		IncludeGrid: req.IncludeGrid,
	}

	// Spatial filters
	region, err := ParseRegion(req.BBox, req.Intersects)
	if err != nil {
		t.logger.Error("failed to parse region", "error", err)
		return nil, fmt.Errorf("%w: %w", composite.ErrInvalidConfiguration, err)
	}
	q.Fetch.Region = region

	if len(req.Mask) > 0 {
		mask, err := ParseGeometry(req.Mask)
		if err != nil {
			return nil, fmt.Errorf("%w: mask: %w", composite.ErrInvalidConfiguration, err)
		}
		q.Mask = mask
	}

	// Temporal filters
	if req.DateTime != "" {
		start, end, err := ParseDateTimeInterval(req.DateTime)
		if err != nil {
			t.logger.Error("failed to parse datetime", "error", err)
			return nil, fmt.Errorf("%w: %w", composite.ErrInvalidConfiguration, err)
		}
		q.Fetch.Start = start
		q.Fetch.End = end
	}

	// Window
	size := t.cfg.Composite.DefaultWindowDays
	if req.Window != nil {
		size = *req.Window
	}
	property := req.Property
	if property == "" {
		property = t.cfg.Composite.MatchingProperty
	}
	q.Window = composite.Window{Size: size, Unit: composite.Days, Property: property}
	if err := q.Window.Validate(); err != nil {
		return nil, err
	}

	policyName := req.NoData
	if policyName == "" {
		policyName = t.cfg.Composite.NoDataPolicy
	}
	if q.Policy, err = composite.ParseNoDataPolicy(policyName); err != nil {
		return nil, err
	}

	// CQL2 filter on input record properties
	if q.Filter, err = CompileCQL2Filter(req.Filter); err != nil {
		t.logger.Error("failed to compile CQL2 filter", "error", err)
		return nil, fmt.Errorf("%w: %w", composite.ErrInvalidConfiguration, err)
	}
	q.HasFilter = req.Filter != nil

	// Paging
	if q.Limit <= 0 {
		q.Limit = t.cfg.Features.DefaultLimit
	}
	if q.Limit > t.cfg.Features.MaxLimit {
		q.Limit = t.cfg.Features.MaxLimit
	}
	if q.Page < 1 {
		q.Page = 1
	}

	// Only the first sort key is used; composites have one natural order.
	if len(req.Sortby) > 0 {
		field, err := stac.CompositeSortField(req.Sortby[0].Field)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", composite.ErrInvalidConfiguration, err)
		}
		q.SortField = field
		q.SortDesc = req.Sortby[0].Direction == string(stac.SortDesc)
	}

	return q, nil
}

// ApplyFilter returns the input collection restricted to records matching
// the query filter.
func (q *CompositeQuery) ApplyFilter(coll *composite.Collection) *composite.Collection {
	if !q.HasFilter {
		return coll
	}
	return &composite.Collection{ID: coll.ID, Records: FilterRecords(coll.Records, q.Filter)}
}

// TranslateComposites renders one page of composites as a STAC ItemCollection.
func (t *Translator) TranslateComposites(
	composites *composite.Collection,
	q *CompositeQuery,
	req *stac.CompositeRequest,
) (*stac.ItemCollection, error) {
	order := sortComposites(composites.Records, q.SortField, q.SortDesc)
	total := len(order)
	start, end := stac.PageBounds(q.Page, q.Limit, total)

	opts := ItemOptions{
		CollectionID: q.Collection.ID,
		BaseURL:      t.cfg.STAC.BaseURL,
		StacVersion:  t.cfg.STAC.Version,
		Property:     q.Window.Property,
		NoData:       q.Policy,
		IncludeGrid:  q.IncludeGrid,
	}

	items := make([]*stac.Item, 0, end-start)
	for _, idx := range order[start:end] {
		item, err := TranslateCompositeToItem(composites.Records[idx], idx, opts)
		if err != nil {
			return nil, fmt.Errorf("failed to translate composite %d: %w", idx, err)
		}
		items = append(items, item)
	}

	itemCollection := stac.NewItemCollection(items)
	itemCollection.SetContext(len(items), q.Limit, &total)

	baseURL := t.cfg.STAC.BaseURL
	compositesURL := fmt.Sprintf("%s/collections/%s/composites", baseURL, q.Collection.ID)

	params := req.ToQueryParams()
	selfURL := compositesURL
	if len(params) > 0 {
		selfURL += "?" + params.Encode()
	}
	itemCollection.AddLink("self", selfURL, "application/geo+json")
	itemCollection.AddLink("root", baseURL+"/", "application/json")
	itemCollection.AddLink("collection", fmt.Sprintf("%s/collections/%s", baseURL, q.Collection.ID), "application/json")

	itemCollection.Links = append(itemCollection.Links, stac.BuildPaginationLinks(stac.PaginationInfo{
		BaseURL:       compositesURL,
		CurrentPage:   q.Page,
		Limit:         q.Limit,
		TotalCount:    &total,
		ReturnedCount: len(items),
		QueryParams:   params,
	})...)

	return itemCollection, nil
}

// sortComposites returns record indices in the requested order. Ties keep
// collection order.
func sortComposites(records []composite.Record, field string, desc bool) []int {
	order := make([]int, len(records))
	for i := range order {
		order[i] = i
	}

	key := func(i int) float64 {
		if field == composite.PropCount {
			v, err := records[i].Value(composite.PropCount)
			if err != nil {
				return 0
			}
			return v
		}
		return float64(records[i].Timestamp)
	}

	sort.SliceStable(order, func(a, b int) bool {
		ka, kb := key(order[a]), key(order[b])
		if desc {
			return ka > kb
		}
		return ka < kb
	})
	return order
}
