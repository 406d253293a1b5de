package geojson

import (
	"encoding/json"
	"fmt"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
)

// Orb decodes the geometry into its orb equivalent. Positions with fewer
// than two values are skipped; a geometry left without any position is an
// error.
func (g *Geometry) Orb() (orb.Geometry, error) {
	if g == nil {
		return nil, fmt.Errorf("geometry is nil")
	}

	var (
		geom orb.Geometry
		n    int
	)
	switch g.Type {
	case "Point":
		var coords []float64
		if err := json.Unmarshal(g.Coordinates, &coords); err != nil {
			return nil, fmt.Errorf("failed to unmarshal Point coordinates: %w", err)
		}
		if len(coords) < 2 {
			return nil, fmt.Errorf("invalid Point coordinates: expected at least 2 values, got %d", len(coords))
		}
		geom, n = orb.Point{coords[0], coords[1]}, 1
	case "LineString":
		var coords [][]float64
		if err := json.Unmarshal(g.Coordinates, &coords); err != nil {
			return nil, fmt.Errorf("failed to unmarshal LineString coordinates: %w", err)
		}
		ls := orb.LineString(toPoints(coords))
		geom, n = ls, len(ls)
	case "Polygon":
		rings, err := g.Polygon()
		if err != nil {
			return nil, err
		}
		poly := toPolygon(rings)
		geom, n = poly, countPolygon(poly)
	case "MultiPolygon":
		polygons, err := g.MultiPolygon()
		if err != nil {
			return nil, err
		}
		mp := make(orb.MultiPolygon, len(polygons))
		for i, rings := range polygons {
			mp[i] = toPolygon(rings)
			n += countPolygon(mp[i])
		}
		geom = mp
	default:
		return nil, fmt.Errorf("unsupported geometry type: %s", g.Type)
	}

	if n == 0 {
		return nil, fmt.Errorf("%s has no valid coordinates", g.Type)
	}
	return geom, nil
}

func toPoints(coords [][]float64) []orb.Point {
	points := make([]orb.Point, 0, len(coords))
	for _, c := range coords {
		if len(c) < 2 {
			continue
		}
		points = append(points, orb.Point{c[0], c[1]})
	}
	return points
}

func toPolygon(rings [][][]float64) orb.Polygon {
	poly := make(orb.Polygon, 0, len(rings))
	for _, ring := range rings {
		poly = append(poly, orb.Ring(toPoints(ring)))
	}
	return poly
}

func countPolygon(poly orb.Polygon) int {
	n := 0
	for _, ring := range poly {
		n += len(ring)
	}
	return n
}

// Locator answers repeated containment queries against one Polygon or
// MultiPolygon. Holes are honored.
type Locator struct {
	polygons orb.MultiPolygon
	bound    orb.Bound
}

// NewLocator decodes a Polygon or MultiPolygon for containment queries.
func NewLocator(g *Geometry) (*Locator, error) {
	geom, err := g.Orb()
	if err != nil {
		return nil, err
	}

	switch geom := geom.(type) {
	case orb.Polygon:
		return &Locator{polygons: orb.MultiPolygon{geom}, bound: geom.Bound()}, nil
	case orb.MultiPolygon:
		return &Locator{polygons: geom, bound: geom.Bound()}, nil
	default:
		return nil, fmt.Errorf("geometry type %s cannot contain points", g.Type)
	}
}

// Contains reports whether the point (x, y) lies inside the geometry.
func (l *Locator) Contains(x, y float64) bool {
	p := orb.Point{x, y}
	if !l.bound.Contains(p) {
		return false
	}
	return planar.MultiPolygonContains(l.polygons, p)
}

// BBoxIntersects reports whether two [west, south, east, north] boxes overlap.
// Touching edges count as overlap.
func BBoxIntersects(a, b []float64) bool {
	if len(a) < 4 || len(b) < 4 {
		return false
	}
	return toBound(a).Intersects(toBound(b))
}

func toBound(bbox []float64) orb.Bound {
	return orb.Bound{Min: orb.Point{bbox[0], bbox[1]}, Max: orb.Point{bbox[2], bbox[3]}}
}
