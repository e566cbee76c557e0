package dataset

import (
	"context"
	"errors"
	"reflect"
	"testing"
)

func strptr(s string) *string { return &s }

func testDataset() *Dataset {
	return &Dataset{
		Name: "test",
		IDs:  []string{"p0", "p1", "p2", "p3"},
		Projections: []Projection{
			{
				Name: "umap",
				Dims: 2,
				Points: [][3]float64{
					{0, 0, 0},
					{1, 2, 0},
					{-3, 4, 0},
					{2, -1, 0},
				},
			},
		},
		Categories: map[string]*CategoryTable{
			"tissue": {
				Values: []*string{strptr("heart"), strptr("lung"), nil},
			},
		},
		CategoryData: map[string][][]int{
			"tissue": {
				{0},
				{1},
				{0, 1},
				{-1},
			},
		},
	}
}

func TestValidateAcceptsWellFormedData(t *testing.T) {
	ds := testDataset()
	if err := ds.Validate(); err != nil {
		t.Fatalf("expected valid dataset, got %v", err)
	}
}

func TestValidateRejectsViolations(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Dataset)
		rule   string
	}{
		{
			name: "misaligned projection",
			mutate: func(d *Dataset) {
				d.Projections[0].Points = d.Projections[0].Points[:2]
			},
			rule: "projection-length",
		},
		{
			name: "bad dimensionality",
			mutate: func(d *Dataset) {
				d.Projections[0].Dims = 5
			},
			rule: "projection-dims",
		},
		{
			name: "duplicate value",
			mutate: func(d *Dataset) {
				d.Categories["tissue"].Values = []*string{strptr("heart"), strptr("heart")}
			},
			rule: "value-uniqueness",
		},
		{
			name: "misaligned category rows",
			mutate: func(d *Dataset) {
				d.CategoryData["tissue"] = d.CategoryData["tissue"][:1]
			},
			rule: "category-data-length",
		},
		{
			name: "value index out of range",
			mutate: func(d *Dataset) {
				d.CategoryData["tissue"][1] = []int{17}
			},
			rule: "value-index-range",
		},
		{
			name: "data for unknown category",
			mutate: func(d *Dataset) {
				d.CategoryData["celltype"] = [][]int{{0}, {0}, {0}, {0}}
			},
			rule: "category-reference",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ds := testDataset()
			tt.mutate(ds)
			err := ds.Validate()
			if err == nil {
				t.Fatalf("expected contract violation, got nil")
			}
			var ce *ContractError
			if !errors.As(err, &ce) {
				t.Fatalf("expected *ContractError, got %T", err)
			}
			if ce.Rule != tt.rule {
				t.Errorf("expected rule %q, got %q (%s)", tt.rule, ce.Rule, ce.Detail)
			}
		})
	}
}

func TestBuildComputesBoundsAndIndex(t *testing.T) {
	ds := testDataset()
	if err := ds.Build(context.Background(), 2); err != nil {
		t.Fatalf("build failed: %v", err)
	}

	b, ok := ds.Bounds("umap")
	if !ok {
		t.Fatalf("expected bounds for umap")
	}
	want := Bounds{MinX: -3, MaxX: 2, MinY: -1, MaxY: 4}
	if b != want {
		t.Fatalf("expected bounds %+v, got %+v", want, b)
	}

	i, ok := ds.IndexOf("p2")
	if !ok || i != 2 {
		t.Fatalf("expected p2 at row 2, got %d (ok=%v)", i, ok)
	}
}

func TestBuildHonorsCancellation(t *testing.T) {
	ds := testDataset()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := ds.Build(ctx, 1); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestSubsetNarrowsAllColumns(t *testing.T) {
	ds := testDataset()
	if err := ds.Build(context.Background(), 0); err != nil {
		t.Fatalf("build failed: %v", err)
	}

	sub := ds.Subset([]string{"p1", "p3", "missing"})
	if !reflect.DeepEqual(sub.IDs, []string{"p1", "p3"}) {
		t.Fatalf("unexpected subset ids: %v", sub.IDs)
	}
	if got := sub.Projections[0].Points; len(got) != 2 || got[0] != ([3]float64{1, 2, 0}) {
		t.Fatalf("unexpected subset coordinates: %v", got)
	}
	if !reflect.DeepEqual(sub.CategoryData["tissue"], [][]int{{1}, {-1}}) {
		t.Fatalf("unexpected subset category rows: %v", sub.CategoryData["tissue"])
	}
	if sub.Built() {
		t.Fatalf("expected subset to require its own build")
	}

	// Original untouched.
	if len(ds.IDs) != 4 || len(ds.Projections[0].Points) != 4 {
		t.Fatalf("subset mutated the source dataset")
	}
}
