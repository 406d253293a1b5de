// Package backend provides the collection services the compositor reads
// from: an in-process store, a remote HTTP service and an LRU cache that
// can front either.
package backend

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/robert-malhotra/stac-composite/internal/composite"
	"github.com/robert-malhotra/stac-composite/pkg/geojson"
)

// ErrCollectionNotFound is returned when a collection ID is unknown.
var ErrCollectionNotFound = errors.New("collection not found")

// CollectionService defines the interface for collection backends.
// Both the memory and remote backends implement this interface.
type CollectionService interface {
	// Fetch returns the records of a collection, filtered by time and region.
	Fetch(ctx context.Context, params FetchParams) (*composite.Collection, error)

	// ReduceMean returns the pixel-wise mean of records, propagating NoData.
	ReduceMean(ctx context.Context, records []composite.Record) (composite.Record, error)

	// AggregateScalar returns the named numeric property of every record,
	// in timestamp order.
	AggregateScalar(ctx context.Context, records []composite.Record, field string) ([]float64, error)

	// Name returns the backend name (e.g., "memory", "remote").
	Name() string
}

// FetchParams selects records from a collection.
type FetchParams struct {
	// CollectionID is the backend dataset ID (e.g., "MODIS/006/MOD10A1").
	CollectionID string

	// Temporal filters: Start is inclusive, End is exclusive.
	Start *time.Time
	End   *time.Time

	// Region keeps records whose grid footprint intersects its bbox.
	Region *geojson.Geometry
}

// Validate checks the fetch parameters.
func (p FetchParams) Validate() error {
	if p.CollectionID == "" {
		return fmt.Errorf("%w: collection ID is required", composite.ErrInvalidConfiguration)
	}
	if p.Start != nil && p.End != nil && !p.End.After(*p.Start) {
		return fmt.Errorf("%w: end %s must be after start %s",
			composite.ErrInvalidConfiguration, p.End.Format(time.RFC3339), p.Start.Format(time.RFC3339))
	}
	return nil
}

// CacheKey identifies the parameters for caching.
func (p FetchParams) CacheKey() string {
	key := p.CollectionID
	if p.Start != nil {
		key += "|s=" + p.Start.UTC().Format(time.RFC3339Nano)
	}
	if p.End != nil {
		key += "|e=" + p.End.UTC().Format(time.RFC3339Nano)
	}
	if p.Region != nil {
		if wkt, err := geojson.ToWKT(p.Region); err == nil {
			key += "|r=" + wkt
		} else {
			key += "|r=" + string(p.Region.Coordinates)
		}
	}
	return key
}

// aggregate reads field from every record, in timestamp order. Ties keep
// input order.
func aggregate(records []composite.Record, field string) ([]float64, error) {
	if field == "" {
		return nil, fmt.Errorf("%w: aggregate field is required", composite.ErrInvalidConfiguration)
	}

	order := make([]int, len(records))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return records[order[a]].Timestamp < records[order[b]].Timestamp
	})

	values := make([]float64, len(records))
	for i, idx := range order {
		v, err := records[idx].Value(field)
		if err != nil {
			return nil, fmt.Errorf("record %d: %w", idx, err)
		}
		values[i] = v
	}
	return values, nil
}
