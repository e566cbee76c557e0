package style

import (
	"context"
	"image/color"
	"testing"

	"github.com/scatterview/server/internal/dataset"
	"github.com/scatterview/server/internal/legend"
	"github.com/scatterview/server/pkg/colormap"
)

func strptr(s string) *string { return &s }

func styleDataset(t *testing.T) *dataset.Dataset {
	t.Helper()
	ds := &dataset.Dataset{
		Name: "test",
		IDs:  []string{"p0", "p1", "p2", "p3", "p4", "p5", "p6"},
		Projections: []dataset.Projection{
			{Name: "umap", Dims: 2, Points: make([][3]float64, 7)},
		},
		Categories: map[string]*dataset.CategoryTable{
			"type": {
				Values: []*string{strptr("alpha"), strptr("beta"), strptr("gamma"), nil, strptr("delta")},
			},
		},
		CategoryData: map[string][][]int{
			"type": {
				{0},     // alpha
				{1},     // beta
				{2},     // gamma, bucketed into Other
				{0, 1},  // multilabel
				{-1},    // unresolved
				{3},     // N/A value
				{0, 4},  // multilabel, same color twice
			},
		},
	}
	if err := ds.Build(context.Background(), 0); err != nil {
		t.Fatalf("build failed: %v", err)
	}
	return ds
}

func styleSnapshot() *legend.Snapshot {
	return &legend.Snapshot{
		Category: "type",
		Ranks: map[string]int{
			"alpha": 0, "beta": 1, "delta": 2,
			legend.NAValue: 3, legend.OtherValue: 4,
		},
		Colors: map[string]string{
			"alpha": "#1f77b4",
			"beta":  "#ff7f0e",
			"delta": "#1f77b4",
		},
		Shapes: map[string]string{
			"alpha": "square",
			"beta":  "triangle",
			"delta": "diamond",
		},
		Hidden:   map[string]bool{},
		OtherSet: map[string]bool{"gamma": true},
	}
}

func newResolver(t *testing.T, mutate func(*Inputs)) *Resolver {
	t.Helper()
	in := Inputs{
		Dataset:  styleDataset(t),
		Category: "type",
		Legend:   styleSnapshot(),
		Config:   DefaultConfig(),
	}
	if mutate != nil {
		mutate(&in)
	}
	return NewResolver(in)
}

func TestResolveColorChain(t *testing.T) {
	r := newResolver(t, nil)

	t.Run("mapped value", func(t *testing.T) {
		st := r.Resolve(0)
		if len(st.Colors) != 1 || st.Colors[0] != (color.RGBA{31, 119, 180, 255}) {
			t.Fatalf("unexpected colors: %v", st.Colors)
		}
		if st.Shape != colormap.ShapeSquare {
			t.Fatalf("expected mapped square, got %s", st.Shape)
		}
	})

	t.Run("other maps to neutral circle", func(t *testing.T) {
		st := r.Resolve(2)
		if len(st.Colors) != 1 || st.Colors[0] != colormap.Neutral {
			t.Fatalf("expected neutral for bucketed value, got %v", st.Colors)
		}
		if st.Shape != colormap.ShapeCircle {
			t.Fatalf("expected circle for bucketed value, got %s", st.Shape)
		}
	})

	t.Run("multilabel keeps all colors and a circle", func(t *testing.T) {
		st := r.Resolve(3)
		if len(st.Colors) != 2 || !st.Multilabel {
			t.Fatalf("expected two-color multilabel, got %+v", st)
		}
		if st.Shape != colormap.ShapeCircle {
			t.Fatalf("expected circle for multilabel point, got %s", st.Shape)
		}
	})

	t.Run("duplicate colors are de-duplicated", func(t *testing.T) {
		st := r.Resolve(6)
		if len(st.Colors) != 1 {
			t.Fatalf("expected de-duplicated single color, got %v", st.Colors)
		}
		if st.Multilabel {
			t.Fatalf("single resolved color is not multilabel")
		}
	})

	t.Run("unresolved and nil values take the N/A color", func(t *testing.T) {
		for _, row := range []int{4, 5} {
			st := r.Resolve(row)
			if len(st.Colors) != 1 || st.Colors[0] != colormap.NoValue {
				t.Fatalf("row %d: expected N/A color, got %v", row, st.Colors)
			}
			if st.Shape != colormap.ShapeCircle {
				t.Fatalf("row %d: expected circle, got %s", row, st.Shape)
			}
		}
	})
}

func TestHiddenFilter(t *testing.T) {
	r := newResolver(t, func(in *Inputs) {
		in.Legend.Hidden["beta"] = true
	})

	if st := r.Resolve(1); st.Opacity != 0 {
		t.Fatalf("expected hidden point at opacity 0, got %v", st.Opacity)
	}
	if r.Visible(1) {
		t.Fatalf("expected hidden point to be invisible to the index")
	}

	// The multilabel point keeps its remaining visible color.
	st := r.Resolve(3)
	if len(st.Colors) != 1 || st.Colors[0] != (color.RGBA{31, 119, 180, 255}) {
		t.Fatalf("expected only alpha to survive the hidden filter, got %v", st.Colors)
	}
}

func TestFailOpenWhenEverythingHidden(t *testing.T) {
	hideAll := func(in *Inputs) {
		for _, v := range []string{"alpha", "beta", "delta", legend.NAValue, legend.OtherValue} {
			in.Legend.Hidden[v] = true
		}
	}

	t.Run("fail-open enabled", func(t *testing.T) {
		r := newResolver(t, hideAll)
		for row := 0; row < 7; row++ {
			if st := r.Resolve(row); st.Opacity == 0 {
				t.Fatalf("row %d: expected fail-open to ignore the hidden filter", row)
			}
		}
	})

	t.Run("fail-open disabled", func(t *testing.T) {
		r := newResolver(t, func(in *Inputs) {
			hideAll(in)
			in.Config.FailOpenHiding = false
		})
		for row := 0; row < 7; row++ {
			if st := r.Resolve(row); st.Opacity != 0 {
				t.Fatalf("row %d: expected opacity 0 with fail-open disabled, got %v", row, st.Opacity)
			}
		}
	})
}

func TestOpacityLadder(t *testing.T) {
	cfg := DefaultConfig()

	t.Run("no selection", func(t *testing.T) {
		r := newResolver(t, nil)
		if st := r.Resolve(0); st.Opacity != cfg.BaseOpacity {
			t.Fatalf("expected base opacity, got %v", st.Opacity)
		}
	})

	t.Run("selection fades the rest", func(t *testing.T) {
		r := newResolver(t, func(in *Inputs) {
			in.Selection = map[string]bool{"p0": true}
		})
		if st := r.Resolve(0); st.Opacity != cfg.SelectedOpacity {
			t.Fatalf("expected selected opacity, got %v", st.Opacity)
		}
		if st := r.Resolve(1); st.Opacity != cfg.FadedOpacity {
			t.Fatalf("expected faded opacity, got %v", st.Opacity)
		}
	})

	t.Run("highlight alone does not fade others", func(t *testing.T) {
		r := newResolver(t, func(in *Inputs) {
			in.Highlight = "p2"
		})
		if st := r.Resolve(2); st.Opacity != cfg.SelectedOpacity {
			t.Fatalf("expected highlighted opacity, got %v", st.Opacity)
		}
		if st := r.Resolve(0); st.Opacity != cfg.BaseOpacity {
			t.Fatalf("expected base opacity for non-highlighted point, got %v", st.Opacity)
		}
	})
}

func TestDepthOrdering(t *testing.T) {
	r := newResolver(t, func(in *Inputs) {
		in.Selection = map[string]bool{"p1": true}
	})

	selected := r.Resolve(1)
	faded := r.Resolve(0)
	if selected.Depth >= faded.Depth {
		t.Fatalf("expected opacity to dominate depth: selected %v, faded %v",
			selected.Depth, faded.Depth)
	}

	// Equal opacity: z-order rank breaks the tie.
	r = newResolver(t, nil)
	alpha := r.Resolve(0)
	beta := r.Resolve(1)
	if alpha.Opacity != beta.Opacity {
		t.Fatalf("expected equal opacities")
	}
	if alpha.Depth >= beta.Depth {
		t.Fatalf("expected rank 0 to carry the smaller depth: %v vs %v", alpha.Depth, beta.Depth)
	}
	if beta.Depth-alpha.Depth >= 0.01 {
		t.Fatalf("rank tie-break must stay below any opacity gap, got %v", beta.Depth-alpha.Depth)
	}
}

func TestNoCategoryUniformStyle(t *testing.T) {
	r := newResolver(t, func(in *Inputs) {
		in.Category = ""
		in.Legend = nil
	})
	st := r.Resolve(0)
	if len(st.Colors) != 1 || st.Colors[0] != colormap.Categorical.AtIndex(0) {
		t.Fatalf("expected uniform default color, got %v", st.Colors)
	}
	if !r.Visible(0) {
		t.Fatalf("expected all points visible without a category")
	}
}
