package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/araddon/dateparse"

	"github.com/robert-malhotra/stac-composite/internal/composite"
	"github.com/robert-malhotra/stac-composite/internal/grid"
	"github.com/robert-malhotra/stac-composite/pkg/geojson"
)

// MemoryBackend implements CollectionService over collections held in
// process memory. Stored grids are shared with callers and must be
// treated as read-only.
type MemoryBackend struct {
	mu          sync.RWMutex
	collections map[string]*composite.Collection
	logger      *slog.Logger
}

var _ CollectionService = (*MemoryBackend)(nil)

// NewMemoryBackend creates an empty memory backend.
func NewMemoryBackend(logger *slog.Logger) *MemoryBackend {
	if logger == nil {
		logger = slog.Default()
	}
	return &MemoryBackend{
		collections: make(map[string]*composite.Collection),
		logger:      logger,
	}
}

// Name returns the backend name.
func (b *MemoryBackend) Name() string {
	return "memory"
}

// Add stores a collection, replacing any collection with the same ID.
// Records are kept sorted by timestamp.
func (b *MemoryBackend) Add(coll *composite.Collection) error {
	if coll == nil || coll.ID == "" {
		return fmt.Errorf("%w: collection ID is required", composite.ErrInvalidConfiguration)
	}

	records := make([]composite.Record, len(coll.Records))
	copy(records, coll.Records)
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].Timestamp < records[j].Timestamp
	})

	b.mu.Lock()
	b.collections[coll.ID] = &composite.Collection{ID: coll.ID, Records: records}
	b.mu.Unlock()
	return nil
}

// IDs returns the stored collection IDs, sorted.
func (b *MemoryBackend) IDs() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()

	ids := make([]string, 0, len(b.collections))
	for id := range b.collections {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// fileRecord is the on-disk shape of a record. Either timestamp (ms since
// epoch) or date must be set; date accepts any layout dateparse knows,
// YYYY-MM-DD included, and is read as UTC.
type fileRecord struct {
	Timestamp  *int64         `json:"timestamp,omitempty"`
	Date       string         `json:"date,omitempty"`
	Grid       *grid.Grid     `json:"grid"`
	Properties map[string]any `json:"properties,omitempty"`
}

type fileCollection struct {
	ID      string       `json:"id"`
	Records []fileRecord `json:"records"`
}

// LoadFile reads one collection from a JSON file.
func (b *MemoryBackend) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read collection file: %w", err)
	}

	var fc fileCollection
	if err := json.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("failed to parse collection file %s: %w", path, err)
	}
	if fc.ID == "" {
		fc.ID = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}

	coll := &composite.Collection{ID: fc.ID, Records: make([]composite.Record, 0, len(fc.Records))}
	for i, fr := range fc.Records {
		rec, err := fr.toRecord()
		if err != nil {
			return fmt.Errorf("%s: record %d: %w", path, i, err)
		}
		coll.Records = append(coll.Records, rec)
	}

	if err := b.Add(coll); err != nil {
		return err
	}

	b.logger.Debug("loaded collection",
		slog.String("collection", coll.ID),
		slog.String("file", path),
		slog.Int("records", len(coll.Records)),
	)
	return nil
}

// LoadDir loads every *.json file in dir. A missing directory is not an error.
func (b *MemoryBackend) LoadDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read data directory: %w", err)
	}

	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".json" {
			continue
		}
		if err := b.LoadFile(filepath.Join(dir, entry.Name())); err != nil {
			return err
		}
	}
	return nil
}

func (fr fileRecord) toRecord() (composite.Record, error) {
	if fr.Grid == nil {
		return composite.Record{}, fmt.Errorf("grid is required")
	}

	var ts int64
	switch {
	case fr.Timestamp != nil:
		ts = *fr.Timestamp
	case fr.Date != "":
		t, err := dateparse.ParseIn(fr.Date, time.UTC)
		if err != nil {
			return composite.Record{}, fmt.Errorf("invalid date %q: %w", fr.Date, err)
		}
		ts = t.UnixMilli()
	default:
		return composite.Record{}, fmt.Errorf("timestamp or date is required")
	}

	return composite.Record{Timestamp: ts, Grid: fr.Grid, Properties: fr.Properties}, nil
}

// Fetch returns the records of a collection within the time range whose
// footprint intersects the region.
func (b *MemoryBackend) Fetch(ctx context.Context, params FetchParams) (*composite.Collection, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := params.Validate(); err != nil {
		return nil, err
	}

	b.mu.RLock()
	stored, ok := b.collections[params.CollectionID]
	b.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrCollectionNotFound, params.CollectionID)
	}

	var regionBBox []float64
	if params.Region != nil {
		bbox, err := geojson.ComputeBBox(params.Region)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid region: %v", composite.ErrInvalidConfiguration, err)
		}
		regionBBox = bbox
	}

	out := &composite.Collection{ID: stored.ID, Records: make([]composite.Record, 0, len(stored.Records))}
	for _, rec := range stored.Records {
		if !inRange(rec.Timestamp, params.Start, params.End) {
			continue
		}
		if regionBBox != nil && !geojson.BBoxIntersects(rec.Grid.Bounds(), regionBBox) {
			continue
		}
		out.Records = append(out.Records, rec)
	}

	b.logger.DebugContext(ctx, "fetched records",
		slog.String("collection", params.CollectionID),
		slog.Int("matched", len(out.Records)),
		slog.Int("total", len(stored.Records)),
	)

	return out, nil
}

// ReduceMean returns the mean of records anchored on the first record.
func (b *MemoryBackend) ReduceMean(ctx context.Context, records []composite.Record) (composite.Record, error) {
	if len(records) == 0 {
		return composite.Record{}, composite.ErrEmptyInput
	}
	return composite.MeanReducer{Policy: composite.Propagate}.Reduce(ctx, records[0], records)
}

// AggregateScalar implements CollectionService.
func (b *MemoryBackend) AggregateScalar(ctx context.Context, records []composite.Record, field string) ([]float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return aggregate(records, field)
}

func inRange(ts int64, start, end *time.Time) bool {
	if start != nil && ts < start.UnixMilli() {
		return false
	}
	if end != nil && ts >= end.UnixMilli() {
		return false
	}
	return true
}
