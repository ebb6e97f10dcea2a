package coords

import "testing"

func TestMapSameSizeFlipsY(t *testing.T) {
	in := Rect{X: 10, Y: 20, Width: 30, Height: 40}
	got := Map(in, 100, 100, 100, 100)
	want := Rect{X: 10, Y: 100 - 20 - 40, Width: 30, Height: 40}
	if got != want {
		t.Fatalf("Map() = %+v, want %+v", got, want)
	}
}

func TestMapIndependentAxes(t *testing.T) {
	in := Rect{X: 100, Y: 50, Width: 200, Height: 100}
	got := Map(in, 1000, 500, 500, 1000)
	// scaleX 0.5, scaleY 2
	want := Rect{X: 50, Y: 1000 - 100 - 200, Width: 100, Height: 200}
	if got != want {
		t.Fatalf("Map() = %+v, want %+v", got, want)
	}
}

func TestMapTopStripMovesToHighY(t *testing.T) {
	got := Map(Rect{X: 0, Y: 0, Width: 10, Height: 10}, 10, 10, 10, 10)
	if got.Y != 0 {
		t.Fatalf("full box Y = %v, want 0", got.Y)
	}
	got = Map(Rect{X: 0, Y: 0, Width: 10, Height: 2}, 10, 10, 10, 10)
	if got.Y != 8 {
		t.Fatalf("top strip Y = %v, want 8", got.Y)
	}
}

func TestMapZeroSourceUsesUnitScale(t *testing.T) {
	got := Map(Rect{X: 1, Y: 1, Width: 2, Height: 2}, 0, 0, 10, 10)
	want := Rect{X: 1, Y: 7, Width: 2, Height: 2}
	if got != want {
		t.Fatalf("Map() = %+v, want %+v", got, want)
	}
}

func TestMapAllKeepsOrder(t *testing.T) {
	in := []Rect{{X: 1}, {X: 2}, {X: 3}}
	out := MapAll(in, 1, 1, 2, 2)
	for i := range out {
		if out[i].X != in[i].X*2 {
			t.Fatalf("rect %d out of order: %+v", i, out[i])
		}
	}
}

func TestUnion(t *testing.T) {
	a := Rect{X: 0, Y: 0, Width: 2, Height: 2}
	b := Rect{X: 5, Y: 1, Width: 1, Height: 4}
	got := a.Union(b)
	want := Rect{X: 0, Y: 0, Width: 6, Height: 5}
	if got != want {
		t.Fatalf("Union() = %+v, want %+v", got, want)
	}
	if (Rect{}).Union(b) != b {
		t.Fatalf("empty rect should be ignored")
	}
}
