// Package grid provides the two-dimensional sample grid carried by every record.
package grid

import (
	"encoding/json"
	"fmt"
	"math"
)

// NoData is the sentinel used for missing samples.
var NoData = math.NaN()

// IsNoData reports whether v is the no-data sentinel.
func IsNoData(v float64) bool {
	return math.IsNaN(v)
}

// Grid is a row-major raster of float64 samples with its spatial reference.
//
// Transform follows the GDAL geotransform layout:
// [originX, pixelWidth, rowRotation, originY, columnRotation, pixelHeight].
// pixelHeight is negative for north-up rasters.
type Grid struct {
	Rows      int        `json:"rows"`
	Cols      int        `json:"cols"`
	Data      []float64  `json:"-"`
	Transform [6]float64 `json:"transform"`
	CRS       string     `json:"crs,omitempty"`
}

// New creates a grid of the given shape with every sample set to fill.
func New(rows, cols int, fill float64) *Grid {
	data := make([]float64, rows*cols)
	for i := range data {
		data[i] = fill
	}
	return &Grid{
		Rows:      rows,
		Cols:      cols,
		Data:      data,
		Transform: [6]float64{0, 1, 0, 0, 0, -1},
	}
}

// FromRows builds a grid from a slice of equally sized rows.
func FromRows(rows [][]float64) (*Grid, error) {
	if len(rows) == 0 {
		return nil, fmt.Errorf("grid must have at least one row")
	}
	cols := len(rows[0])
	if cols == 0 {
		return nil, fmt.Errorf("grid must have at least one column")
	}

	g := New(len(rows), cols, 0)
	for r, row := range rows {
		if len(row) != cols {
			return nil, fmt.Errorf("row %d has %d columns, expected %d", r, len(row), cols)
		}
		copy(g.Data[r*cols:(r+1)*cols], row)
	}
	return g, nil
}

// At returns the sample at row r, column c.
func (g *Grid) At(r, c int) float64 {
	return g.Data[r*g.Cols+c]
}

// Set stores v at row r, column c.
func (g *Grid) Set(r, c int, v float64) {
	g.Data[r*g.Cols+c] = v
}

// Len returns the number of samples.
func (g *Grid) Len() int {
	return g.Rows * g.Cols
}

// Validate checks that the sample buffer matches the declared shape.
func (g *Grid) Validate() error {
	if g.Rows <= 0 || g.Cols <= 0 {
		return fmt.Errorf("grid shape must be positive, got %dx%d", g.Rows, g.Cols)
	}
	if len(g.Data) != g.Rows*g.Cols {
		return fmt.Errorf("grid has %d samples, expected %d for shape %dx%d", len(g.Data), g.Rows*g.Cols, g.Rows, g.Cols)
	}
	return nil
}

// SameShape reports whether both grids have identical dimensions.
func (g *Grid) SameShape(o *Grid) bool {
	return g.Rows == o.Rows && g.Cols == o.Cols
}

// SameReference reports whether both grids share geotransform and CRS.
func (g *Grid) SameReference(o *Grid) bool {
	return g.Transform == o.Transform && g.CRS == o.CRS
}

// Clone returns a deep copy.
func (g *Grid) Clone() *Grid {
	out := *g
	out.Data = make([]float64, len(g.Data))
	copy(out.Data, g.Data)
	return &out
}

// EmptyLike returns a zero-filled grid with the same shape and reference.
func (g *Grid) EmptyLike() *Grid {
	out := *g
	out.Data = make([]float64, len(g.Data))
	return &out
}

// MaskValue replaces every sample equal to sentinel with NoData, in place.
func (g *Grid) MaskValue(sentinel float64) {
	for i, v := range g.Data {
		if v == sentinel {
			g.Data[i] = NoData
		}
	}
}

// PixelCenter returns the georeferenced coordinates of the center of pixel (r, c).
func (g *Grid) PixelCenter(r, c int) (x, y float64) {
	px := float64(c) + 0.5
	py := float64(r) + 0.5
	t := g.Transform
	x = t[0] + px*t[1] + py*t[2]
	y = t[3] + px*t[4] + py*t[5]
	return x, y
}

// Bounds returns the footprint as [minX, minY, maxX, maxY].
func (g *Grid) Bounds() []float64 {
	xs := make([]float64, 0, 4)
	ys := make([]float64, 0, 4)
	t := g.Transform
	for _, corner := range [][2]float64{{0, 0}, {float64(g.Cols), 0}, {0, float64(g.Rows)}, {float64(g.Cols), float64(g.Rows)}} {
		xs = append(xs, t[0]+corner[0]*t[1]+corner[1]*t[2])
		ys = append(ys, t[3]+corner[0]*t[4]+corner[1]*t[5])
	}
	return []float64{minOf(xs), minOf(ys), maxOf(xs), maxOf(ys)}
}

// Stats returns the minimum, maximum and mean of the valid samples.
// ok is false when every sample is NoData.
func (g *Grid) Stats() (min, max, mean float64, ok bool) {
	min, max = math.Inf(1), math.Inf(-1)
	var sum float64
	n := 0
	for _, v := range g.Data {
		if IsNoData(v) {
			continue
		}
		min = math.Min(min, v)
		max = math.Max(max, v)
		sum += v
		n++
	}
	if n == 0 {
		return 0, 0, 0, false
	}
	return min, max, sum / float64(n), true
}

// wireGrid is the JSON shape of a grid. Samples are nested rows and
// NoData is written as null, since JSON has no NaN.
type wireGrid struct {
	Rows      int          `json:"rows"`
	Cols      int          `json:"cols"`
	Values    [][]*float64 `json:"values"`
	Transform [6]float64   `json:"transform"`
	CRS       string       `json:"crs,omitempty"`
}

// MarshalJSON implements json.Marshaler.
func (g *Grid) MarshalJSON() ([]byte, error) {
	w := wireGrid{
		Rows:      g.Rows,
		Cols:      g.Cols,
		Transform: g.Transform,
		CRS:       g.CRS,
		Values:    make([][]*float64, g.Rows),
	}
	for r := 0; r < g.Rows; r++ {
		row := make([]*float64, g.Cols)
		for c := 0; c < g.Cols; c++ {
			v := g.At(r, c)
			if IsNoData(v) {
				continue
			}
			row[c] = &v
		}
		w.Values[r] = row
	}
	return json.Marshal(w)
}

// UnmarshalJSON implements json.Unmarshaler.
func (g *Grid) UnmarshalJSON(b []byte) error {
	var w wireGrid
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}

	rows, cols := w.Rows, w.Cols
	if rows == 0 && cols == 0 && len(w.Values) > 0 {
		rows, cols = len(w.Values), len(w.Values[0])
	}
	if len(w.Values) != rows {
		return fmt.Errorf("grid declares %d rows but has %d", rows, len(w.Values))
	}

	data := make([]float64, rows*cols)
	for r, row := range w.Values {
		if len(row) != cols {
			return fmt.Errorf("grid row %d has %d columns, expected %d", r, len(row), cols)
		}
		for c, v := range row {
			if v == nil {
				data[r*cols+c] = NoData
				continue
			}
			data[r*cols+c] = *v
		}
	}

	g.Rows = rows
	g.Cols = cols
	g.Data = data
	g.Transform = w.Transform
	g.CRS = w.CRS
	return nil
}

func minOf(vs []float64) float64 {
	m := vs[0]
	for _, v := range vs[1:] {
		m = math.Min(m, v)
	}
	return m
}

func maxOf(vs []float64) float64 {
	m := vs[0]
	for _, v := range vs[1:] {
		m = math.Max(m, v)
	}
	return m
}
