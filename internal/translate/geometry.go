package translate

import (
	"encoding/json"
	"fmt"

	"github.com/robert-malhotra/stac-composite/pkg/geojson"
)

// BBoxToGeometry converts a STAC bbox to a GeoJSON polygon.
// For 6-value bbox (3D), the elevation values are ignored.
func BBoxToGeometry(bbox []float64) (*geojson.Geometry, error) {
	if len(bbox) != 4 && len(bbox) != 6 {
		return nil, fmt.Errorf("%w: bbox must have 4 or 6 values, got %d", ErrInvalidGeometry, len(bbox))
	}
	if len(bbox) == 6 {
		bbox = []float64{bbox[0], bbox[1], bbox[3], bbox[4]}
	}

	polygon, err := geojson.NewPolygonFromBBox(bbox)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidGeometry, err)
	}
	return polygon, nil
}

// ParseGeometry decodes a GeoJSON geometry. Only area geometries (Polygon,
// MultiPolygon) can select pixels.
func ParseGeometry(raw json.RawMessage) (*geojson.Geometry, error) {
	var g geojson.Geometry
	if err := json.Unmarshal(raw, &g); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidGeometry, err)
	}

	switch g.Type {
	case "Polygon", "MultiPolygon":
	default:
		return nil, fmt.Errorf("%w: unsupported geometry type %q, must be Polygon or MultiPolygon", ErrInvalidGeometry, g.Type)
	}

	if _, err := geojson.ComputeBBox(&g); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidGeometry, err)
	}
	return &g, nil
}

// ParseRegion resolves the area of interest from a bbox or an intersects
// geometry. Both empty means no region.
func ParseRegion(bbox []float64, intersects json.RawMessage) (*geojson.Geometry, error) {
	switch {
	case len(bbox) > 0 && len(intersects) > 0:
		return nil, fmt.Errorf("%w: cannot specify both bbox and intersects", ErrInvalidGeometry)
	case len(bbox) > 0:
		return BBoxToGeometry(bbox)
	case len(intersects) > 0:
		return ParseGeometry(intersects)
	default:
		return nil, nil
	}
}
