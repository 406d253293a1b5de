// Package cover extracts per-composite region statistics such as snow
// cover fraction and area from smoothed collections.
package cover

import (
	"fmt"

	"github.com/robert-malhotra/stac-composite/internal/composite"
	"github.com/robert-malhotra/stac-composite/internal/config"
	"github.com/robert-malhotra/stac-composite/internal/grid"
	"github.com/robert-malhotra/stac-composite/pkg/geojson"
)

// Transform maps raw samples to physical values.
type Transform struct {
	Scale  float64
	Offset float64
}

// Apply returns v*Scale + Offset.
func (t Transform) Apply(v float64) float64 {
	return v*t.Scale + t.Offset
}

// Region is an area of interest, optionally with a masked-out part.
type Region struct {
	Include *geojson.Geometry
	Exclude *geojson.Geometry
}

// locate decodes the region for repeated pixel-center queries.
func (r Region) locate() (*regionLocator, error) {
	if r.Include == nil {
		return nil, fmt.Errorf("%w: region is required", composite.ErrInvalidConfiguration)
	}

	include, err := geojson.NewLocator(r.Include)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid region: %v", composite.ErrInvalidConfiguration, err)
	}
	loc := &regionLocator{include: include}

	if r.Exclude != nil {
		exclude, err := geojson.NewLocator(r.Exclude)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid mask: %v", composite.ErrInvalidConfiguration, err)
		}
		loc.exclude = exclude
	}
	return loc, nil
}

type regionLocator struct {
	include *geojson.Locator
	exclude *geojson.Locator
}

func (l *regionLocator) contains(x, y float64) bool {
	if !l.include.Contains(x, y) {
		return false
	}
	return l.exclude == nil || !l.exclude.Contains(x, y)
}

// Extractor sums transformed pixel values over a region.
type Extractor struct {
	Transform Transform
	// PixelArea weights each pixel in weighted sums (square meters).
	PixelArea float64
	// ValidMax drops raw samples above it. Zero disables the check.
	ValidMax float64
}

// NewExtractor builds an extractor from collection cover settings.
func NewExtractor(s *config.CoverSettings) Extractor {
	if s == nil {
		s = config.MODISSnowCover()
	}
	return Extractor{
		Transform: Transform{Scale: s.Scale, Offset: s.Offset},
		PixelArea: s.PixelArea,
		ValidMax:  s.ValidMax,
	}
}

// Sum adds up the transformed value of every valid pixel whose center lies
// in the region. Weighted sums multiply each value by PixelArea.
func (e Extractor) Sum(rec composite.Record, region Region, weighted bool) (float64, error) {
	if rec.Grid == nil {
		return 0, fmt.Errorf("%w: record has no grid", composite.ErrInvalidConfiguration)
	}
	loc, err := region.locate()
	if err != nil {
		return 0, err
	}
	return e.sum(rec.Grid, loc, weighted), nil
}

func (e Extractor) sum(g *grid.Grid, loc *regionLocator, weighted bool) float64 {
	var total float64
	for r := 0; r < g.Rows; r++ {
		for c := 0; c < g.Cols; c++ {
			v := g.At(r, c)
			if grid.IsNoData(v) || (e.ValidMax > 0 && v > e.ValidMax) {
				continue
			}
			if !loc.contains(g.PixelCenter(r, c)) {
				continue
			}
			total += e.Transform.Apply(v)
		}
	}
	if weighted {
		total *= e.PixelArea
	}
	return total
}
