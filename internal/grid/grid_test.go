package grid

import (
	"encoding/json"
	"math"
	"strings"
	"testing"
)

func TestFromRows(t *testing.T) {
	g, err := FromRows([][]float64{{1, 2, 3}, {4, 5, 6}})
	if err != nil {
		t.Fatalf("FromRows failed: %v", err)
	}

	if g.Rows != 2 || g.Cols != 3 {
		t.Fatalf("expected 2x3 grid, got %dx%d", g.Rows, g.Cols)
	}
	if g.At(1, 2) != 6 {
		t.Errorf("expected At(1,2) = 6, got %v", g.At(1, 2))
	}
	if err := g.Validate(); err != nil {
		t.Errorf("Validate failed: %v", err)
	}
}

func TestFromRows_Ragged(t *testing.T) {
	_, err := FromRows([][]float64{{1, 2}, {3}})
	if err == nil {
		t.Fatal("expected error for ragged rows")
	}
}

func TestValidate_BufferMismatch(t *testing.T) {
	g := &Grid{Rows: 2, Cols: 2, Data: []float64{1, 2, 3}}
	if err := g.Validate(); err == nil {
		t.Fatal("expected error for short sample buffer")
	}
}

func TestMaskValue(t *testing.T) {
	g, _ := FromRows([][]float64{{-9999, 1}, {2, -9999}})
	g.MaskValue(-9999)

	if !IsNoData(g.At(0, 0)) || !IsNoData(g.At(1, 1)) {
		t.Errorf("expected sentinel samples to become NoData, got %v", g.Data)
	}
	if g.At(0, 1) != 1 {
		t.Errorf("expected untouched sample 1, got %v", g.At(0, 1))
	}
}

func TestClone_Independent(t *testing.T) {
	g := New(2, 2, 1)
	c := g.Clone()
	c.Set(0, 0, 42)

	if g.At(0, 0) != 1 {
		t.Errorf("mutating the clone changed the original: %v", g.Data)
	}
}

func TestPixelCenterAndBounds(t *testing.T) {
	g := New(2, 4, 0)
	g.Transform = [6]float64{100, 10, 0, 50, 0, -10}

	x, y := g.PixelCenter(0, 0)
	if x != 105 || y != 45 {
		t.Errorf("expected center (105, 45), got (%v, %v)", x, y)
	}

	bounds := g.Bounds()
	want := []float64{100, 30, 140, 50}
	for i := range want {
		if bounds[i] != want[i] {
			t.Errorf("bounds[%d] = %v, want %v", i, bounds[i], want[i])
		}
	}
}

func TestStats_SkipsNoData(t *testing.T) {
	g, _ := FromRows([][]float64{{1, math.NaN()}, {3, 5}})

	min, max, mean, ok := g.Stats()
	if !ok {
		t.Fatal("expected ok stats")
	}
	if min != 1 || max != 5 || mean != 3 {
		t.Errorf("expected (1, 5, 3), got (%v, %v, %v)", min, max, mean)
	}

	allMissing := New(1, 2, NoData)
	if _, _, _, ok := allMissing.Stats(); ok {
		t.Error("expected ok=false for an all-NoData grid")
	}
}

func TestJSON_NoDataAsNull(t *testing.T) {
	g, _ := FromRows([][]float64{{1, math.NaN()}})
	g.CRS = "EPSG:4326"

	b, err := json.Marshal(g)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	if !strings.Contains(string(b), `"values":[[1,null]]`) {
		t.Errorf("expected NoData encoded as null, got %s", b)
	}

	var back Grid
	if err := json.Unmarshal(b, &back); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if back.At(0, 0) != 1 || !IsNoData(back.At(0, 1)) {
		t.Errorf("unexpected decoded samples: %v", back.Data)
	}
	if back.CRS != "EPSG:4326" {
		t.Errorf("expected CRS to survive, got %q", back.CRS)
	}
}

func TestUnmarshalJSON_InfersShape(t *testing.T) {
	var g Grid
	if err := json.Unmarshal([]byte(`{"values":[[1,2],[3,4]]}`), &g); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if g.Rows != 2 || g.Cols != 2 {
		t.Errorf("expected inferred 2x2 shape, got %dx%d", g.Rows, g.Cols)
	}
}

func TestUnmarshalJSON_RowMismatch(t *testing.T) {
	var g Grid
	err := json.Unmarshal([]byte(`{"rows":2,"cols":2,"values":[[1,2]]}`), &g)
	if err == nil {
		t.Fatal("expected error for missing row")
	}
}
