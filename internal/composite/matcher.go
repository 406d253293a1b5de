package composite

import (
	"fmt"
	"math"
	"sort"
)

// Unit converts a window size into the units of the matching property.
type Unit float64

const (
	// Milliseconds takes the window size in raw property units.
	Milliseconds Unit = 1
	// Days takes the window size in days against millisecond timestamps.
	Days Unit = 86_400_000
)

// Window configures neighbor matching.
type Window struct {
	// Size is the half-width of the window; records match when their
	// values differ by at most Size*Unit.
	Size float64
	// Unit defaults to Days.
	Unit Unit
	// Property defaults to the record timestamp.
	Property string
}

// Span returns the maximum allowed difference in property units.
func (w Window) Span() float64 {
	unit := w.Unit
	if unit == 0 {
		unit = Days
	}
	return w.Size * float64(unit)
}

// Validate checks the window parameters.
func (w Window) Validate() error {
	if math.IsNaN(w.Size) || w.Size < 0 {
		return fmt.Errorf("%w: window size must be non-negative, got %v", ErrInvalidConfiguration, w.Size)
	}
	if math.IsInf(w.Size, 0) {
		return fmt.Errorf("%w: window size must be finite", ErrInvalidConfiguration)
	}
	if w.Unit < 0 || math.IsNaN(float64(w.Unit)) || math.IsInf(float64(w.Unit), 0) {
		return fmt.Errorf("%w: window unit must be positive and finite, got %v", ErrInvalidConfiguration, w.Unit)
	}
	if span := w.Span(); math.IsNaN(span) || math.IsInf(span, 0) {
		return fmt.Errorf("%w: window span %v*%v is not finite", ErrInvalidConfiguration, w.Size, w.Unit)
	}
	return nil
}

// NeighborGroup associates an anchor record with every record inside its
// window, the anchor included. Members are indices into the source slice,
// ordered by matching value with ties broken by index.
type NeighborGroup struct {
	Anchor  int
	Members []int
}

// WindowMatcher computes the neighbor group of every record.
// Groups are returned in input order: groups[i].Anchor == i.
type WindowMatcher interface {
	Match(records []Record, w Window) ([]NeighborGroup, error)
}

// NaiveMatcher compares every pair of records.
type NaiveMatcher struct{}

var _ WindowMatcher = NaiveMatcher{}

// Match implements WindowMatcher.
func (NaiveMatcher) Match(records []Record, w Window) ([]NeighborGroup, error) {
	values, err := matchValues(records, w)
	if err != nil {
		return nil, err
	}

	span := w.Span()
	groups := make([]NeighborGroup, len(records))
	for i := range records {
		members := make([]int, 0, 1)
		for j := range records {
			if within(values[i], values[j], span) {
				members = append(members, j)
			}
		}
		sort.SliceStable(members, func(a, b int) bool {
			return values[members[a]] < values[members[b]]
		})
		groups[i] = NeighborGroup{Anchor: i, Members: members}
	}
	return groups, nil
}

// SweepMatcher sorts records by matching value and slides a two-pointer
// window across them.
type SweepMatcher struct{}

var _ WindowMatcher = SweepMatcher{}

// Match implements WindowMatcher.
func (SweepMatcher) Match(records []Record, w Window) ([]NeighborGroup, error) {
	values, err := matchValues(records, w)
	if err != nil {
		return nil, err
	}

	order := make([]int, len(records))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return values[order[a]] < values[order[b]]
	})

	span := w.Span()
	groups := make([]NeighborGroup, len(records))
	lo, hi := 0, 0
	for p, anchor := range order {
		v := values[anchor]
		for !within(values[order[lo]], v, span) {
			lo++
		}
		if hi < p {
			hi = p
		}
		for hi+1 < len(order) && within(values[order[hi+1]], v, span) {
			hi++
		}

		members := make([]int, hi-lo+1)
		copy(members, order[lo:hi+1])
		groups[anchor] = NeighborGroup{Anchor: anchor, Members: members}
	}
	return groups, nil
}

func within(a, b, span float64) bool {
	return math.Abs(a-b) <= span
}

func matchValues(records []Record, w Window) ([]float64, error) {
	if len(records) == 0 {
		return nil, ErrEmptyInput
	}
	if err := w.Validate(); err != nil {
		return nil, err
	}

	values := make([]float64, len(records))
	for i, rec := range records {
		v, err := rec.Value(w.Property)
		if err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
		values[i] = v
	}
	return values, nil
}
