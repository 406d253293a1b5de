package geojson

import "testing"

func TestContains_Polygon(t *testing.T) {
	loc, err := NewLocator(mustGeometry(t, "Polygon", squareWithHole))
	if err != nil {
		t.Fatalf("NewLocator() error: %v", err)
	}

	tests := []struct {
		name string
		x, y float64
		want bool
	}{
		{"inside ring", -119.9, 38.1, true},
		{"inside hole", -119.5, 38.5, false},
		{"outside", -121, 38.5, false},
		{"above", -119.5, 39.5, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := loc.Contains(tt.x, tt.y); got != tt.want {
				t.Errorf("Contains(%v, %v) = %v, want %v", tt.x, tt.y, got, tt.want)
			}
		})
	}
}

func TestContains_MultiPolygon(t *testing.T) {
	g := mustGeometry(t, "MultiPolygon", [][][][]float64{
		square,
		{{{-118, 40}, {-117, 40}, {-117, 41}, {-118, 41}, {-118, 40}}},
	})

	loc, err := NewLocator(g)
	if err != nil {
		t.Fatalf("NewLocator() error: %v", err)
	}

	if !loc.Contains(-117.5, 40.5) {
		t.Error("expected point in second polygon to be contained")
	}
	if !loc.Contains(-119.5, 38.5) {
		t.Error("expected point in first polygon to be contained")
	}
	if loc.Contains(-118.5, 39.5) {
		t.Error("expected point between polygons to be outside")
	}
}

func TestContains_Triangle(t *testing.T) {
	loc, err := NewLocator(mustGeometry(t, "Polygon", [][][]float64{{{0, 0}, {10, 0}, {0, 10}, {0, 0}}}))
	if err != nil {
		t.Fatalf("NewLocator() error: %v", err)
	}

	if !loc.Contains(2, 2) {
		t.Error("expected (2,2) inside triangle")
	}
	if loc.Contains(6, 6) {
		t.Error("expected (6,6) outside triangle")
	}
}

func TestContains_Errors(t *testing.T) {
	if _, err := NewLocator(nil); err == nil {
		t.Error("expected error for nil geometry")
	}
	if _, err := NewLocator(mustGeometry(t, "Point", []float64{0, 0})); err == nil {
		t.Error("expected error for Point geometry")
	}
	if _, err := NewLocator(mustGeometry(t, "Polygon", [][][]float64{{}})); err == nil {
		t.Error("expected error for empty polygon")
	}
	if _, err := NewLocator(mustGeometry(t, "LineString", [][]float64{{0, 0}, {1, 1}})); err == nil {
		t.Error("expected error for LineString geometry")
	}
}

func TestContains_ConcavePolygon(t *testing.T) {
	// U shape opening north; the notch is outside.
	loc, err := NewLocator(mustGeometry(t, "Polygon", [][][]float64{{
		{0, 0}, {3, 0}, {3, 3}, {2, 3}, {2, 1}, {1, 1}, {1, 3}, {0, 3}, {0, 0},
	}}))
	if err != nil {
		t.Fatalf("NewLocator() error: %v", err)
	}

	tests := []struct {
		name string
		x, y float64
		want bool
	}{
		{"left arm", 0.5, 2.5, true},
		{"right arm", 2.5, 2.5, true},
		{"base", 1.5, 0.5, true},
		{"notch", 1.5, 2, false},
		{"outside bound", 4, 1, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := loc.Contains(tt.x, tt.y); got != tt.want {
				t.Errorf("Contains(%v, %v) = %v, want %v", tt.x, tt.y, got, tt.want)
			}
		})
	}
}

func TestBBoxIntersects(t *testing.T) {
	a := []float64{-120, 38, -119, 39}

	tests := []struct {
		name string
		b    []float64
		want bool
	}{
		{"overlap", []float64{-119.5, 38.5, -118, 40}, true},
		{"contained", []float64{-119.8, 38.2, -119.2, 38.8}, true},
		{"touching edge", []float64{-119, 38, -118, 39}, true},
		{"disjoint", []float64{-110, 30, -100, 35}, false},
		{"short bbox", []float64{-119}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := BBoxIntersects(a, tt.b); got != tt.want {
				t.Errorf("BBoxIntersects() = %v, want %v", got, tt.want)
			}
		})
	}
}
