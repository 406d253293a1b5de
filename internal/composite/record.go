// Package composite implements moving-window temporal compositing over
// collections of time-stamped grids.
package composite

import (
	"encoding/json"
	"fmt"
	"math"

	"github.com/robert-malhotra/stac-composite/internal/grid"
)

// DefaultMatchingProperty names the record timestamp (ms since epoch).
const DefaultMatchingProperty = "system:time_start"

// Property keys written on composite records.
const (
	PropCount  = "composite:count"
	PropWindow = "composite:window"
)

// Record is one observation: an instant, a grid and auxiliary scalars.
type Record struct {
	Timestamp  int64          `json:"timestamp"`
	Grid       *grid.Grid     `json:"grid"`
	Properties map[string]any `json:"properties,omitempty"`
}

// Value returns the numeric value of the named property. The default
// matching property (or an empty name) resolves to the record timestamp.
func (r Record) Value(property string) (float64, error) {
	if property == "" || property == DefaultMatchingProperty {
		if v, ok := r.Properties[DefaultMatchingProperty]; ok {
			return toFloat(v, DefaultMatchingProperty)
		}
		return float64(r.Timestamp), nil
	}

	v, ok := r.Properties[property]
	if !ok {
		return 0, fmt.Errorf("%w: property %q is missing", ErrInvalidConfiguration, property)
	}
	return toFloat(v, property)
}

// WithProperty returns a copy of the record with key set to value.
// The grid is shared.
func (r Record) WithProperty(key string, value any) Record {
	props := make(map[string]any, len(r.Properties)+1)
	for k, v := range r.Properties {
		props[k] = v
	}
	props[key] = value
	r.Properties = props
	return r
}

func toFloat(v any, property string) (float64, error) {
	var f float64
	switch n := v.(type) {
	case float64:
		f = n
	case float32:
		f = float64(n)
	case int:
		f = float64(n)
	case int32:
		f = float64(n)
	case int64:
		f = float64(n)
	case json.Number:
		parsed, err := n.Float64()
		if err != nil {
			return 0, fmt.Errorf("%w: property %q is not numeric: %v", ErrInvalidConfiguration, property, err)
		}
		f = parsed
	default:
		return 0, fmt.Errorf("%w: property %q is not numeric (%T)", ErrInvalidConfiguration, property, v)
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("%w: property %q is not finite: %v", ErrInvalidConfiguration, property, f)
	}
	return f, nil
}

// Collection is a multiset of records sharing grid shape and spatial reference.
type Collection struct {
	ID      string   `json:"id,omitempty"`
	Records []Record `json:"records"`
}

// Len returns the number of records.
func (c *Collection) Len() int {
	if c == nil {
		return 0
	}
	return len(c.Records)
}

// Validate checks the collection invariants.
func (c *Collection) Validate() error {
	if c.Len() == 0 {
		return ErrEmptyInput
	}

	first := c.Records[0].Grid
	for i, rec := range c.Records {
		if rec.Grid == nil {
			return fmt.Errorf("%w: record %d has no grid", ErrInvalidConfiguration, i)
		}
		if err := rec.Grid.Validate(); err != nil {
			return fmt.Errorf("%w: record %d: %v", ErrInvalidConfiguration, i, err)
		}
		if !rec.Grid.SameShape(first) {
			return fmt.Errorf("%w: record %d grid is %dx%d, expected %dx%d",
				ErrInvalidConfiguration, i, rec.Grid.Rows, rec.Grid.Cols, first.Rows, first.Cols)
		}
		if !rec.Grid.SameReference(first) {
			return fmt.Errorf("%w: record %d has a different spatial reference", ErrInvalidConfiguration, i)
		}
	}
	return nil
}

// Timestamps returns the record timestamps in collection order.
func (c *Collection) Timestamps() []int64 {
	out := make([]int64, c.Len())
	for i, rec := range c.Records {
		out[i] = rec.Timestamp
	}
	return out
}
