package colormap

import (
	"image/color"
	"testing"
)

func TestCategoricalWraps(t *testing.T) {
	t.Parallel()

	first := Categorical.AtIndex(0)
	if first != (color.RGBA{R: 31, G: 119, B: 180, A: 255}) {
		t.Fatalf("unexpected Categorical.AtIndex(0): %#v", first)
	}
	if Categorical.AtIndex(Categorical.Len()) != first {
		t.Fatalf("expected AtIndex to wrap at %d", Categorical.Len())
	}
	if Categorical.AtIndex(-1) != Neutral {
		t.Fatalf("expected Neutral for negative slot")
	}
}

func TestShapeAtIndexWraps(t *testing.T) {
	t.Parallel()

	if ShapeAtIndex(0) != ShapeCircle {
		t.Fatalf("expected circle at slot 0, got %s", ShapeAtIndex(0))
	}
	if ShapeAtIndex(len(Shapes)) != ShapeCircle {
		t.Fatalf("expected shape vocabulary to wrap at %d", len(Shapes))
	}
	if ShapeAtIndex(-3) != ShapeCircle {
		t.Fatalf("expected circle for negative slot")
	}
}

func TestParseHexRoundTrip(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want color.RGBA
	}{
		{"#1f77b4", color.RGBA{31, 119, 180, 255}},
		{"#ff7f0e", color.RGBA{255, 127, 14, 255}},
		{"#00000080", color.RGBA{0, 0, 0, 128}},
	}
	for _, tt := range tests {
		got, err := ParseHex(tt.in)
		if err != nil {
			t.Fatalf("ParseHex(%q): %v", tt.in, err)
		}
		if got != tt.want {
			t.Errorf("ParseHex(%q) = %#v, want %#v", tt.in, got, tt.want)
		}
	}

	if Hex(color.RGBA{31, 119, 180, 255}) != "#1f77b4" {
		t.Fatalf("unexpected Hex output: %s", Hex(color.RGBA{31, 119, 180, 255}))
	}

	for _, bad := range []string{"", "1f77b4", "#12345", "#gggggg"} {
		if _, err := ParseHex(bad); err == nil {
			t.Errorf("ParseHex(%q): expected error", bad)
		}
	}
}
