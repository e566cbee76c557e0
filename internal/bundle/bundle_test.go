package bundle

import (
	"bytes"
	"errors"
	"reflect"
	"sort"
	"strings"
	"testing"

	"github.com/scatterview/server/internal/dataset"
	"github.com/scatterview/server/internal/legend"
	"github.com/scatterview/server/internal/settings"
)

func testDataset(t *testing.T) *dataset.Dataset {
	t.Helper()
	heart := "heart"
	lung := "lung"
	ds := &dataset.Dataset{
		Name: "embryo",
		IDs:  []string{"c1", "c2", "c3"},
		Projections: []dataset.Projection{
			{Name: "umap", Dims: 2, Info: "umap of all cells", Points: [][3]float64{
				{0.125, -3.5, 0}, {1.625, 2.25, 0}, {-0.0625, 0.875, 0},
			}},
			{Name: "spatial", Dims: 3, Points: [][3]float64{
				{10, 20, 1.5}, {30, 40, -2.25}, {50, 60, 0},
			}},
		},
		Categories: map[string]*dataset.CategoryTable{
			"tissue": {
				Values: []*string{&heart, &lung, nil},
				Colors: []string{"#ff0000", "#00ff00", ""},
				Shapes: []string{"circle", "square", ""},
			},
		},
		CategoryData: map[string][][]int{
			"tissue": {{0}, {1}, {}},
		},
	}
	if err := ds.Validate(); err != nil {
		t.Fatalf("test dataset invalid: %v", err)
	}
	return ds
}

func testSettings() *settings.Settings {
	z := 1
	st := &settings.Settings{}
	st.Set("tissue", settings.Category{
		SortMode:   "alpha-asc",
		MaxVisible: 5,
		Hidden:     []string{"lung"},
		Overrides: map[string]legend.Override{
			"heart": {ZOrder: &z, Color: "#123456", Shape: "star"},
		},
	})
	return st
}

func valueSet(table *dataset.CategoryTable) map[string]int {
	set := make(map[string]int)
	for _, v := range table.Values {
		if v == nil {
			set["<nil>"]++
		} else {
			set[*v]++
		}
	}
	return set
}

func TestRoundTrip(t *testing.T) {
	in := testDataset(t)
	st := testSettings()

	data, err := Write(in, st)
	if err != nil {
		t.Fatalf("write: %v", err)
	}
	if got := bytes.Count(data, []byte(Delimiter)); got != 3 {
		t.Fatalf("expected 3 delimiters with settings present, got %d", got)
	}

	out, outSt, err := Parse(data)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}

	if !reflect.DeepEqual(out.IDs, in.IDs) {
		t.Fatalf("expected ids %v, got %v", in.IDs, out.IDs)
	}
	if !reflect.DeepEqual(out.ProjectionNames(), in.ProjectionNames()) {
		t.Fatalf("expected projections %v, got %v", in.ProjectionNames(), out.ProjectionNames())
	}
	for _, p := range in.Projections {
		got := out.Projection(p.Name)
		if got == nil {
			t.Fatalf("projection %q missing after round trip", p.Name)
		}
		if got.Dims != p.Dims || got.Info != p.Info {
			t.Fatalf("projection %q metadata changed: %+v", p.Name, got)
		}
		if !reflect.DeepEqual(got.Points, p.Points) {
			t.Fatalf("projection %q coordinates changed:\n  in  %v\n  out %v", p.Name, p.Points, got.Points)
		}
	}
	inSet := valueSet(in.Categories["tissue"])
	outSet := valueSet(out.Categories["tissue"])
	if !reflect.DeepEqual(outSet, inSet) {
		t.Fatalf("expected category value set %v, got %v", inSet, outSet)
	}
	if !reflect.DeepEqual(out.CategoryData, in.CategoryData) {
		t.Fatalf("expected category data %v, got %v", in.CategoryData, out.CategoryData)
	}
	if !reflect.DeepEqual(outSt, st) {
		t.Fatalf("expected settings %+v, got %+v", st, outSt)
	}
}

func TestWriteWithoutSettingsHasThreeParts(t *testing.T) {
	data, err := Write(testDataset(t), nil)
	if err != nil {
		t.Fatalf("write: %v", err)
	}
	if got := bytes.Count(data, []byte(Delimiter)); got != 2 {
		t.Fatalf("expected 2 delimiters without settings, got %d", got)
	}

	_, st, err := Parse(data)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if st != nil {
		t.Fatalf("expected nil settings for a three-part bundle, got %+v", st)
	}
}

func TestDelimiterCountRejectedBeforeParsing(t *testing.T) {
	junk := []byte("not a sub-document")
	cases := []struct {
		name  string
		parts int
	}{
		{"noDelimiters", 1},
		{"oneDelimiter", 2},
		{"fourDelimiters", 5},
		{"sixDelimiters", 7},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			segments := make([][]byte, tc.parts)
			for i := range segments {
				segments[i] = junk
			}
			data := bytes.Join(segments, []byte(Delimiter))

			_, _, err := Parse(data)
			var fe *FormatError
			if !errors.As(err, &fe) {
				t.Fatalf("expected FormatError, got %v", err)
			}
			if fe.Found != tc.parts-1 {
				t.Fatalf("expected found=%d, got %d", tc.parts-1, fe.Found)
			}
			if !strings.Contains(err.Error(), "expected 2 or 3 delimiters") {
				t.Fatalf("expected message to name the expected count, got %q", err.Error())
			}
		})
	}
}

func TestTruncatedSubDocument(t *testing.T) {
	data, err := Write(testDataset(t), testSettings())
	if err != nil {
		t.Fatalf("write: %v", err)
	}

	truncated := data[:len(data)-4]
	_, _, err = Parse(truncated)
	if err == nil {
		t.Fatalf("expected error for truncated sub-document")
	}
	var fe *FormatError
	if errors.As(err, &fe) {
		t.Fatalf("truncation inside a sub-document must not be a delimiter-count error, got %v", err)
	}
	if !strings.Contains(err.Error(), "settings document") {
		t.Fatalf("expected error to name the failing document, got %q", err.Error())
	}
}

func TestParseRejectsDanglingCoordinates(t *testing.T) {
	cols, err := encodePart(columnsDoc{IDs: []string{"c1", "c2"}})
	if err != nil {
		t.Fatalf("encode columns: %v", err)
	}
	projs, err := encodePart(projectionsDoc{Projections: []projectionMeta{{Name: "umap", Dims: 2}}})
	if err != nil {
		t.Fatalf("encode projections: %v", err)
	}
	coords, err := encodePart(coordsDoc{Rows: []coordRow{
		{Projection: "umap", ID: "c1", X: 1, Y: 2},
		{Projection: "umap", ID: "ghost", X: 3, Y: 4},
	}})
	if err != nil {
		t.Fatalf("encode coordinates: %v", err)
	}
	data := bytes.Join([][]byte{cols, projs, coords}, []byte(Delimiter))

	_, _, err = Parse(data)
	var ce *dataset.ContractError
	if !errors.As(err, &ce) {
		t.Fatalf("expected contract error, got %v", err)
	}
	if ce.Rule != "coordinate-reference" {
		t.Fatalf("expected coordinate-reference violation, got %q", ce.Rule)
	}
}

func TestParseRejectsMissingCoordinates(t *testing.T) {
	cols, err := encodePart(columnsDoc{IDs: []string{"c1", "c2"}})
	if err != nil {
		t.Fatalf("encode columns: %v", err)
	}
	projs, err := encodePart(projectionsDoc{Projections: []projectionMeta{{Name: "umap", Dims: 2}}})
	if err != nil {
		t.Fatalf("encode projections: %v", err)
	}
	coords, err := encodePart(coordsDoc{Rows: []coordRow{
		{Projection: "umap", ID: "c1", X: 1, Y: 2},
	}})
	if err != nil {
		t.Fatalf("encode coordinates: %v", err)
	}
	data := bytes.Join([][]byte{cols, projs, coords}, []byte(Delimiter))

	_, _, err = Parse(data)
	var ce *dataset.ContractError
	if !errors.As(err, &ce) {
		t.Fatalf("expected contract error, got %v", err)
	}
	if ce.Rule != "coordinate-coverage" {
		t.Fatalf("expected coordinate-coverage violation, got %q", ce.Rule)
	}
	if !strings.Contains(ce.Error(), "1 of 2") {
		t.Fatalf("expected detail to count missing points, got %q", ce.Error())
	}
}

func TestParseRejectsDuplicateIDs(t *testing.T) {
	cols, err := encodePart(columnsDoc{IDs: []string{"c1", "c1"}})
	if err != nil {
		t.Fatalf("encode columns: %v", err)
	}
	projs, err := encodePart(projectionsDoc{})
	if err != nil {
		t.Fatalf("encode projections: %v", err)
	}
	coords, err := encodePart(coordsDoc{})
	if err != nil {
		t.Fatalf("encode coordinates: %v", err)
	}
	data := bytes.Join([][]byte{cols, projs, coords}, []byte(Delimiter))

	_, _, err = Parse(data)
	var ce *dataset.ContractError
	if !errors.As(err, &ce) {
		t.Fatalf("expected contract error, got %v", err)
	}
	if ce.Rule != "id-uniqueness" {
		t.Fatalf("expected id-uniqueness violation, got %q", ce.Rule)
	}
}

func TestCategoryValueSetOrderInsensitive(t *testing.T) {
	in := testDataset(t)
	data, err := Write(in, nil)
	if err != nil {
		t.Fatalf("write: %v", err)
	}
	out, _, err := Parse(data)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}

	var inNames, outNames []string
	for name := range in.Categories {
		inNames = append(inNames, name)
	}
	for name := range out.Categories {
		outNames = append(outNames, name)
	}
	sort.Strings(inNames)
	sort.Strings(outNames)
	if !reflect.DeepEqual(outNames, inNames) {
		t.Fatalf("expected categories %v, got %v", inNames, outNames)
	}
}
