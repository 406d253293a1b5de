package cover

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robert-malhotra/stac-composite/internal/backend"
	"github.com/robert-malhotra/stac-composite/internal/composite"
)

// Property keys written on composites by the pipeline.
const (
	PropFraction = "snow_cover_fraction"
	PropArea     = "snow_cover_area"
)

// Request describes one cover series computation.
type Request struct {
	CollectionID string
	// Start is inclusive, End exclusive.
	Start *time.Time
	End   *time.Time

	Region    Region
	Window    composite.Window
	Extractor Extractor

	// NoDataValue, when set, is masked to NoData before compositing.
	NoDataValue *float64
}

// Result is a cover series: one entry per composite, in timestamp order.
// Counts holds the neighbor group size of every composite.
type Result struct {
	CollectionID string    `json:"collection"`
	Window       float64   `json:"window"`
	Timestamps   []int64   `json:"timestamps"`
	Fraction     []float64 `json:"fraction"`
	Area         []float64 `json:"area"`
	Counts       []int     `json:"counts"`

	// Composites carries the smoothed records with the cover properties set.
	Composites *composite.Collection `json:"-"`
}

// Pipeline fetches a collection, smooths it and extracts cover series.
type Pipeline struct {
	service    backend.CollectionService
	compositor *composite.Compositor
	logger     *slog.Logger
}

// NewPipeline creates a cover pipeline.
func NewPipeline(service backend.CollectionService, compositor *composite.Compositor, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		service:    service,
		compositor: compositor,
		logger:     logger,
	}
}

// Run computes the snow cover fraction (unweighted sum) and area (weighted
// sum) of every composite in the requested range.
func (p *Pipeline) Run(ctx context.Context, req Request) (*Result, error) {
	start := time.Now()

	loc, err := req.Region.locate()
	if err != nil {
		return nil, err
	}

	coll, err := p.service.Fetch(ctx, backend.FetchParams{
		CollectionID: req.CollectionID,
		Start:        req.Start,
		End:          req.End,
		Region:       req.Region.Include,
	})
	if err != nil {
		return nil, err
	}

	if req.NoDataValue != nil {
		coll = maskCollection(coll, *req.NoDataValue)
	}

	smoothed, err := p.compositor.MovingAverage(ctx, coll, req.Window)
	if err != nil {
		return nil, err
	}

	for i, rec := range smoothed.Records {
		fraction := req.Extractor.sum(rec.Grid, loc, false)
		area := req.Extractor.sum(rec.Grid, loc, true)
		smoothed.Records[i] = rec.WithProperty(PropFraction, fraction).WithProperty(PropArea, area)
	}

	fractions, err := p.service.AggregateScalar(ctx, smoothed.Records, PropFraction)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate %s: %w", PropFraction, err)
	}
	areas, err := p.service.AggregateScalar(ctx, smoothed.Records, PropArea)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate %s: %w", PropArea, err)
	}

	counts, err := p.service.AggregateScalar(ctx, smoothed.Records, composite.PropCount)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate %s: %w", composite.PropCount, err)
	}
	timestamps, err := p.service.AggregateScalar(ctx, smoothed.Records, composite.DefaultMatchingProperty)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate timestamps: %w", err)
	}

	result := &Result{
		CollectionID: req.CollectionID,
		Window:       req.Window.Size,
		Timestamps:   make([]int64, len(timestamps)),
		Fraction:     fractions,
		Area:         areas,
		Counts:       make([]int, len(counts)),
		Composites:   smoothed,
	}
	for i, ts := range timestamps {
		result.Timestamps[i] = int64(ts)
	}
	for i, n := range counts {
		result.Counts[i] = int(n)
	}

	p.logger.InfoContext(ctx, "cover series computed",
		slog.String("collection", req.CollectionID),
		slog.Int("composites", len(fractions)),
		slog.Float64("window", req.Window.Size),
		slog.Duration("duration", time.Since(start)),
	)

	return result, nil
}

func maskCollection(coll *composite.Collection, sentinel float64) *composite.Collection {
	out := &composite.Collection{ID: coll.ID, Records: make([]composite.Record, len(coll.Records))}
	for i, rec := range coll.Records {
		g := rec.Grid.Clone()
		g.MaskValue(sentinel)
		rec.Grid = g
		out.Records[i] = rec
	}
	return out
}
