package stac

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

// SortbyItem represents a single sort criterion
type SortbyItem struct {
	Field     string `json:"field"`
	Direction string `json:"direction"` // "asc" or "desc"
}

// CompositeRequest represents a request for moving-window composites of a
// collection. Core STAC item parameters select the input records; the
// window parameters control compositing.
type CompositeRequest struct {
	BBox       []float64       `json:"bbox,omitempty"`
	DateTime   string          `json:"datetime,omitempty"`
	Intersects json.RawMessage `json:"intersects,omitempty"`
	Limit      int             `json:"limit,omitempty"`
	Page       int             `json:"page,omitempty"`
	Sortby     []SortbyItem    `json:"sortby,omitempty"`

	// Window is the half-width of the moving window in days. Nil means the
	// server default.
	Window   *float64 `json:"window,omitempty"`
	Property string   `json:"property,omitempty"`
	NoData   string   `json:"nodata,omitempty"`

	// Mask is a geometry removed from the region (cover requests only).
	Mask json.RawMessage `json:"mask,omitempty"`

	// IncludeGrid inlines the composite grid in each item.
	IncludeGrid bool `json:"grid,omitempty"`

	// CQL2-JSON filter applied to input record properties before compositing.
	Filter     any    `json:"filter,omitempty"`
	FilterLang string `json:"filter-lang,omitempty"`
}

// ParseCompositeRequest parses a composite request from GET query parameters
func ParseCompositeRequest(r *http.Request) (*CompositeRequest, error) {
	query := r.URL.Query()
	req := &CompositeRequest{}

	if bboxStr := query.Get("bbox"); bboxStr != "" {
		bbox, err := parseBBoxParam(bboxStr)
		if err != nil {
			return nil, err
		}
		req.BBox = bbox
	}

	req.DateTime = query.Get("datetime")

	if intersects := query.Get("intersects"); intersects != "" {
		if !json.Valid([]byte(intersects)) {
			return nil, fmt.Errorf("intersects must be valid GeoJSON geometry")
		}
		req.Intersects = json.RawMessage(intersects)
	}

	if mask := query.Get("mask"); mask != "" {
		if !json.Valid([]byte(mask)) {
			return nil, fmt.Errorf("mask must be valid GeoJSON geometry")
		}
		req.Mask = json.RawMessage(mask)
	}

	if limitStr := query.Get("limit"); limitStr != "" {
		limit, err := strconv.Atoi(limitStr)
		if err != nil {
			return nil, fmt.Errorf("invalid limit parameter: %w", err)
		}
		if limit < 0 {
			return nil, fmt.Errorf("limit must be non-negative, got %d", limit)
		}
		req.Limit = limit
	}

	if pageStr := query.Get("page"); pageStr != "" {
		page, err := strconv.Atoi(pageStr)
		if err != nil {
			return nil, fmt.Errorf("invalid page parameter: %w", err)
		}
		if page < 1 {
			return nil, fmt.Errorf("page must be at least 1, got %d", page)
		}
		req.Page = page
	}

	if sortbyStr := query.Get("sortby"); sortbyStr != "" {
		sortbyItems, err := parseSortbyParam(sortbyStr)
		if err != nil {
			return nil, fmt.Errorf("invalid sortby parameter: %w", err)
		}
		req.Sortby = sortbyItems
	}

	if windowStr := query.Get("window"); windowStr != "" {
		window, err := strconv.ParseFloat(strings.TrimSpace(windowStr), 64)
		if err != nil {
			return nil, fmt.Errorf("invalid window parameter: %w", err)
		}
		req.Window = &window
	}

	req.Property = strings.TrimSpace(query.Get("property"))
	req.NoData = strings.TrimSpace(query.Get("nodata"))

	if gridStr := query.Get("grid"); gridStr != "" {
		include, err := strconv.ParseBool(gridStr)
		if err != nil {
			return nil, fmt.Errorf("invalid grid parameter: %w", err)
		}
		req.IncludeGrid = include
	}

	if filter := query.Get("filter"); filter != "" {
		filterLang := query.Get("filter-lang")
		if filterLang != "" && filterLang != "cql2-json" {
			return nil, fmt.Errorf("unsupported filter-lang %q, only cql2-json is supported", filterLang)
		}
		var filterObj any
		if err := json.Unmarshal([]byte(filter), &filterObj); err != nil {
			return nil, fmt.Errorf("filter must be CQL2-JSON: %w", err)
		}
		req.Filter = filterObj
		req.FilterLang = "cql2-json"
	}

	return req, nil
}

func parseBBoxParam(bboxStr string) ([]float64, error) {
	bboxParts := strings.Split(bboxStr, ",")
	if len(bboxParts) != 4 && len(bboxParts) != 6 {
		return nil, fmt.Errorf("bbox must have 4 or 6 coordinates, got %d", len(bboxParts))
	}

	bbox := make([]float64, len(bboxParts))
	for i, part := range bboxParts {
		val, err := strconv.ParseFloat(strings.TrimSpace(part), 64)
		if err != nil {
			return nil, fmt.Errorf("invalid bbox coordinate at position %d: %w", i, err)
		}
		bbox[i] = val
	}
	return bbox, nil
}

// parseSortbyParam parses the sortby query parameter
// Format: sortby=+datetime or sortby=-datetime (+ is asc, - is desc)
func parseSortbyParam(sortbyStr string) ([]SortbyItem, error) {
	fields := strings.Split(sortbyStr, ",")
	items := make([]SortbyItem, 0, len(fields))

	for _, field := range fields {
		field = strings.TrimSpace(field)
		if field == "" {
			continue
		}

		direction := string(SortAsc)
		fieldName := field
		switch field[0] {
		case '+':
			fieldName = field[1:]
		case '-':
			direction = string(SortDesc)
			fieldName = field[1:]
		}

		if fieldName == "" {
			return nil, fmt.Errorf("empty field name in sortby")
		}

		items = append(items, SortbyItem{
			Field:     fieldName,
			Direction: direction,
		})
	}

	return items, nil
}

// ParseCompositeRequestBody parses a composite request from a POST JSON body
func ParseCompositeRequestBody(body io.Reader) (*CompositeRequest, error) {
	var req CompositeRequest

	decoder := json.NewDecoder(body)
	if err := decoder.Decode(&req); err != nil {
		return nil, fmt.Errorf("failed to parse composite request body: %w", err)
	}

	return &req, nil
}

// ToQueryParams converts a CompositeRequest to URL query parameters.
// Paging fields are left to the link builder.
func (req *CompositeRequest) ToQueryParams() url.Values {
	params := url.Values{}

	if len(req.BBox) >= 4 {
		bboxStrs := make([]string, len(req.BBox))
		for i, v := range req.BBox {
			bboxStrs[i] = strconv.FormatFloat(v, 'f', -1, 64)
		}
		params.Set("bbox", strings.Join(bboxStrs, ","))
	}

	if req.DateTime != "" {
		params.Set("datetime", req.DateTime)
	}

	if len(req.Intersects) > 0 {
		params.Set("intersects", string(req.Intersects))
	}

	if len(req.Mask) > 0 {
		params.Set("mask", string(req.Mask))
	}

	if len(req.Sortby) > 0 {
		sortbyStrs := make([]string, 0, len(req.Sortby))
		for _, item := range req.Sortby {
			prefix := "+"
			if item.Direction == string(SortDesc) {
				prefix = "-"
			}
			sortbyStrs = append(sortbyStrs, prefix+item.Field)
		}
		params.Set("sortby", strings.Join(sortbyStrs, ","))
	}

	if req.Window != nil {
		params.Set("window", strconv.FormatFloat(*req.Window, 'f', -1, 64))
	}

	if req.Property != "" {
		params.Set("property", req.Property)
	}

	if req.NoData != "" {
		params.Set("nodata", req.NoData)
	}

	if req.IncludeGrid {
		params.Set("grid", "true")
	}

	if req.Filter != nil {
		filterBytes, err := json.Marshal(req.Filter)
		if err == nil && string(filterBytes) != "null" {
			params.Set("filter", string(filterBytes))
			params.Set("filter-lang", "cql2-json")
		}
	}

	return params
}
