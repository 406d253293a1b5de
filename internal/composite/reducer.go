package composite

import (
	"context"
	"fmt"
	"strings"

	"github.com/robert-malhotra/stac-composite/internal/grid"
)

// NoDataPolicy selects how the mean treats NoData samples.
type NoDataPolicy string

const (
	// Propagate averages every sample; a NoData member makes the pixel NoData.
	Propagate NoDataPolicy = "propagate"
	// Filter averages only the valid samples of each pixel independently.
	Filter NoDataPolicy = "filter"
)

// ParseNoDataPolicy parses a policy name. An empty name means Propagate.
func ParseNoDataPolicy(s string) (NoDataPolicy, error) {
	switch NoDataPolicy(strings.ToLower(strings.TrimSpace(s))) {
	case "", Propagate:
		return Propagate, nil
	case Filter:
		return Filter, nil
	default:
		return "", fmt.Errorf("%w: unknown nodata policy %q, must be one of: propagate, filter", ErrInvalidConfiguration, s)
	}
}

// GroupReducer reduces a neighbor group into a composite record.
type GroupReducer interface {
	Reduce(ctx context.Context, anchor Record, members []Record) (Record, error)
}

// MeanReducer computes the pixel-wise arithmetic mean of a group.
type MeanReducer struct {
	Policy NoDataPolicy
}

var _ GroupReducer = MeanReducer{}

// Reduce implements GroupReducer. The result carries the anchor timestamp
// and a copy of the anchor properties plus the group size.
func (m MeanReducer) Reduce(_ context.Context, anchor Record, members []Record) (Record, error) {
	if len(members) == 0 {
		return Record{}, fmt.Errorf("%w: neighbor group is empty", ErrInvalidConfiguration)
	}
	if anchor.Grid == nil {
		return Record{}, fmt.Errorf("%w: anchor record has no grid", ErrInvalidConfiguration)
	}
	for i, rec := range members {
		if rec.Grid == nil || !rec.Grid.SameShape(anchor.Grid) {
			return Record{}, fmt.Errorf("%w: member %d grid does not match anchor shape", ErrInvalidConfiguration, i)
		}
	}

	var out *grid.Grid
	switch m.Policy {
	case "", Propagate:
		out = meanPropagate(anchor.Grid, members)
	case Filter:
		out = meanFilter(anchor.Grid, members)
	default:
		return Record{}, fmt.Errorf("%w: unknown nodata policy %q", ErrInvalidConfiguration, m.Policy)
	}

	return Record{
		Timestamp:  anchor.Timestamp,
		Grid:       out,
		Properties: anchor.Properties,
	}.WithProperty(PropCount, len(members)), nil
}

func meanPropagate(like *grid.Grid, members []Record) *grid.Grid {
	out := like.EmptyLike()
	n := float64(len(members))
	for i := range out.Data {
		var sum float64
		for _, m := range members {
			sum += m.Grid.Data[i]
		}
		out.Data[i] = sum / n
	}
	return out
}

func meanFilter(like *grid.Grid, members []Record) *grid.Grid {
	out := like.EmptyLike()
	for i := range out.Data {
		var sum float64
		n := 0
		for _, m := range members {
			v := m.Grid.Data[i]
			if grid.IsNoData(v) {
				continue
			}
			sum += v
			n++
		}
		if n == 0 {
			out.Data[i] = grid.NoData
			continue
		}
		out.Data[i] = sum / float64(n)
	}
	return out
}
