package stac

import (
	"fmt"
	"math"
)

// ValidateCompositeRequest validates a composite request against the
// server's window limit.
func ValidateCompositeRequest(req *CompositeRequest, maxWindowDays float64) error {
	if req == nil {
		return fmt.Errorf("composite request cannot be nil")
	}

	if len(req.BBox) > 0 {
		if err := ValidateBBox(req.BBox); err != nil {
			return fmt.Errorf("invalid bbox: %w", err)
		}
	}

	if len(req.BBox) > 0 && len(req.Intersects) > 0 {
		return fmt.Errorf("cannot specify both bbox and intersects")
	}

	if len(req.Mask) > 0 && len(req.BBox) == 0 && len(req.Intersects) == 0 {
		return fmt.Errorf("mask requires a bbox or intersects region")
	}

	if req.Limit < 0 {
		return fmt.Errorf("limit must be non-negative, got %d", req.Limit)
	}

	if req.Page < 0 {
		return fmt.Errorf("page must be non-negative, got %d", req.Page)
	}

	if req.Window != nil {
		w := *req.Window
		if math.IsNaN(w) || math.IsInf(w, 0) || w < 0 {
			return fmt.Errorf("window must be a non-negative number of days, got %v", w)
		}
		if maxWindowDays > 0 && w > maxWindowDays {
			return fmt.Errorf("window must be at most %v days, got %v", maxWindowDays, w)
		}
	}

	for _, item := range req.Sortby {
		if _, err := CompositeSortField(item.Field); err != nil {
			return err
		}
		if item.Direction != string(SortAsc) && item.Direction != string(SortDesc) {
			return fmt.Errorf("sort direction must be asc or desc, got %q", item.Direction)
		}
	}

	return nil
}

// ValidateBBox validates a 2D [west, south, east, north] or 3D
// [west, south, min_elev, east, north, max_elev] bounding box.
func ValidateBBox(bbox []float64) error {
	var west, south, east, north float64
	switch len(bbox) {
	case 4:
		west, south, east, north = bbox[0], bbox[1], bbox[2], bbox[3]
	case 6:
		west, south, east, north = bbox[0], bbox[1], bbox[3], bbox[4]
		if bbox[2] > bbox[5] {
			return fmt.Errorf("minimum elevation (%f) must be less than or equal to maximum elevation (%f)", bbox[2], bbox[5])
		}
	default:
		return fmt.Errorf("bbox must have 4 or 6 coordinates, got %d", len(bbox))
	}

	if west < -180 || west > 180 {
		return fmt.Errorf("west longitude must be between -180 and 180, got %f", west)
	}
	if east < -180 || east > 180 {
		return fmt.Errorf("east longitude must be between -180 and 180, got %f", east)
	}
	if south < -90 || south > 90 {
		return fmt.Errorf("south latitude must be between -90 and 90, got %f", south)
	}
	if north < -90 || north > 90 {
		return fmt.Errorf("north latitude must be between -90 and 90, got %f", north)
	}

	if west > east {
		return fmt.Errorf("west longitude (%f) must be less than or equal to east longitude (%f)", west, east)
	}
	if south > north {
		return fmt.Errorf("south latitude (%f) must be less than or equal to north latitude (%f)", south, north)
	}

	return nil
}
