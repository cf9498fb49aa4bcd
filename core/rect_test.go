package core

import "testing"

func TestIntersection(t *testing.T) {
	tests := []struct {
		name string
		a, b Rect
		want Rect
	}{
		{"contained", NDCRect, Rect{-0.5, -0.5, 0.5, 0.5}, Rect{-0.5, -0.5, 0.5, 0.5}},
		{"overlap", Rect{-1, -1, 0.5, 0.5}, Rect{0, 0, 1, 1}, Rect{0, 0, 0.5, 0.5}},
		{"disjoint", Rect{-1, -1, -0.5, -0.5}, Rect{0.5, 0.5, 1, 1}, EmptyRect},
		{"touching edge", Rect{-1, -1, 0, 1}, Rect{0, -1, 1, 1}, EmptyRect},
		{"off screen", NDCRect, Rect{2, 2, 3, 3}, EmptyRect},
	}
	for _, tt := range tests {
		got := Intersection(tt.a, tt.b)
		if got != tt.want {
			t.Errorf("%s: Intersection = %+v, want %+v", tt.name, got, tt.want)
		}
		if got.Width() < 0 || got.Height() < 0 {
			t.Errorf("%s: negative extent %+v", tt.name, got)
		}
	}
}

func TestUnion(t *testing.T) {
	a := Rect{-1, -1, 0, 0}
	b := Rect{0.5, 0.5, 1, 1}
	if got, want := Union(a, b), (Rect{-1, -1, 1, 1}); got != want {
		t.Errorf("Union = %+v, want %+v", got, want)
	}
	if got := Union(EmptyRect, b); got != b {
		t.Errorf("Union with empty = %+v, want %+v", got, b)
	}
}

func TestToPixels(t *testing.T) {
	vp := RectI{W: 100, H: 50}
	tests := []struct {
		name string
		r    Rect
		want RectI
	}{
		{"full", NDCRect, vp},
		{"right half", Rect{0, -1, 1, 1}, RectI{X: 50, W: 50, H: 50}},
		{"rounds outward", Rect{-0.005, -1, 0.005, 1}, RectI{X: 49, W: 2, H: 50}},
		{"clamped", Rect{-3, -3, 3, 3}, vp},
		{"empty", EmptyRect, RectI{}},
	}
	for _, tt := range tests {
		if got := tt.r.ToPixels(vp); got != tt.want {
			t.Errorf("%s: ToPixels = %+v, want %+v", tt.name, got, tt.want)
		}
	}
}

func TestRectIClip(t *testing.T) {
	r := RectI{X: -5, Y: 10, W: 20, H: 20}
	got := r.Clip(RectI{W: 10, H: 15})
	if want := (RectI{X: 0, Y: 10, W: 10, H: 5}); got != want {
		t.Errorf("Clip = %+v, want %+v", got, want)
	}
	if !(RectI{X: 20, W: 5, H: 5}).Clip(RectI{W: 10, H: 10}).Empty() {
		t.Error("disjoint clip not empty")
	}
}
