// Package bundle reads and writes the portable scatter data container: three
// or four self-describing sub-documents joined by a fixed ASCII delimiter.
// Each sub-document is a zstd frame holding a JSON payload.
package bundle

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/klauspost/compress/zstd"

	"github.com/scatterview/server/internal/dataset"
	"github.com/scatterview/server/internal/settings"
)

// Delimiter separates the sub-documents of a container.
const Delimiter = "---PARQUET_DELIMITER---"

// FormatError reports a container whose framing is wrong. It is returned
// before any sub-document is parsed.
type FormatError struct {
	Found int
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("invalid bundle: expected 2 or 3 delimiters, found %d", e.Found)
}

// columnsDoc is sub-document 1: point identifiers plus category columns.
type columnsDoc struct {
	IDs          []string               `json:"ids"`
	Categories   map[string]categoryDoc `json:"categories,omitempty"`
	CategoryData map[string][][]int     `json:"category_data,omitempty"`
}

type categoryDoc struct {
	Values []*string `json:"values"`
	Colors []string  `json:"colors,omitempty"`
	Shapes []string  `json:"shapes,omitempty"`
}

// projectionsDoc is sub-document 2: per-projection metadata.
type projectionsDoc struct {
	Projections []projectionMeta `json:"projections"`
}

type projectionMeta struct {
	Name string `json:"name"`
	Dims int    `json:"dims"`
	Info string `json:"info,omitempty"`
}

// coordsDoc is sub-document 3: per-projection per-point coordinates.
type coordsDoc struct {
	Rows []coordRow `json:"rows"`
}

type coordRow struct {
	Projection string   `json:"projection"`
	ID         string   `json:"id"`
	X          float64  `json:"x"`
	Y          float64  `json:"y"`
	Z          *float64 `json:"z,omitempty"`
}

// Write serializes a dataset (and optional legend settings) into a
// container. With nil or empty settings the container has three parts,
// otherwise four.
func Write(ds *dataset.Dataset, st *settings.Settings) ([]byte, error) {
	if err := ds.Validate(); err != nil {
		return nil, err
	}
	cols := columnsDoc{
		IDs:          ds.IDs,
		CategoryData: ds.CategoryData,
	}
	if len(ds.Categories) > 0 {
		cols.Categories = make(map[string]categoryDoc, len(ds.Categories))
		for name, table := range ds.Categories {
			cols.Categories[name] = categoryDoc{
				Values: table.Values,
				Colors: table.Colors,
				Shapes: table.Shapes,
			}
		}
	}

	projs := projectionsDoc{}
	coords := coordsDoc{}
	for _, p := range ds.Projections {
		projs.Projections = append(projs.Projections, projectionMeta{
			Name: p.Name,
			Dims: p.Dims,
			Info: p.Info,
		})
		for i, pt := range p.Points {
			row := coordRow{
				Projection: p.Name,
				ID:         ds.IDs[i],
				X:          pt[0],
				Y:          pt[1],
			}
			if p.Dims == 3 {
				z := pt[2]
				row.Z = &z
			}
			coords.Rows = append(coords.Rows, row)
		}
	}

	parts := make([][]byte, 0, 4)
	for _, doc := range []struct {
		name string
		v    interface{}
	}{
		{"columns", cols},
		{"projections", projs},
		{"coordinates", coords},
	} {
		part, err := encodePart(doc.v)
		if err != nil {
			return nil, fmt.Errorf("failed to encode %s document: %w", doc.name, err)
		}
		parts = append(parts, part)
	}
	if !st.IsEmpty() {
		part, err := encodePart(st)
		if err != nil {
			return nil, fmt.Errorf("failed to encode settings document: %w", err)
		}
		parts = append(parts, part)
	}

	return bytes.Join(parts, []byte(Delimiter)), nil
}

// Parse decodes a container into a dataset and, when the fourth
// sub-document is present, legend settings. The delimiter count is checked
// before any sub-document is touched.
func Parse(data []byte) (*dataset.Dataset, *settings.Settings, error) {
	parts := bytes.Split(data, []byte(Delimiter))
	found := len(parts) - 1
	if found != 2 && found != 3 {
		return nil, nil, &FormatError{Found: found}
	}

	var cols columnsDoc
	if err := decodePart(parts[0], &cols); err != nil {
		return nil, nil, fmt.Errorf("failed to parse columns document: %w", err)
	}
	var projs projectionsDoc
	if err := decodePart(parts[1], &projs); err != nil {
		return nil, nil, fmt.Errorf("failed to parse projections document: %w", err)
	}
	var coords coordsDoc
	if err := decodePart(parts[2], &coords); err != nil {
		return nil, nil, fmt.Errorf("failed to parse coordinates document: %w", err)
	}

	ds, err := assemble(&cols, &projs, &coords)
	if err != nil {
		return nil, nil, err
	}

	var st *settings.Settings
	if found == 3 {
		st = &settings.Settings{}
		if err := decodePart(parts[3], st); err != nil {
			return nil, nil, fmt.Errorf("failed to parse settings document: %w", err)
		}
	}

	return ds, st, nil
}

func assemble(cols *columnsDoc, projs *projectionsDoc, coords *coordsDoc) (*dataset.Dataset, error) {
	ds := &dataset.Dataset{
		IDs:          cols.IDs,
		CategoryData: cols.CategoryData,
	}
	if len(cols.Categories) > 0 {
		ds.Categories = make(map[string]*dataset.CategoryTable, len(cols.Categories))
		for name, doc := range cols.Categories {
			ds.Categories[name] = &dataset.CategoryTable{
				Values: doc.Values,
				Colors: doc.Colors,
				Shapes: doc.Shapes,
			}
		}
	}

	index := make(map[string]int, len(cols.IDs))
	for i, id := range cols.IDs {
		if _, dup := index[id]; dup {
			return nil, &dataset.ContractError{
				Rule:   "id-uniqueness",
				Detail: fmt.Sprintf("identifier %q appears more than once", id),
			}
		}
		index[id] = i
	}

	byName := make(map[string]int, len(projs.Projections))
	filled := make([][]bool, len(projs.Projections))
	for i, meta := range projs.Projections {
		byName[meta.Name] = i
		filled[i] = make([]bool, len(cols.IDs))
		ds.Projections = append(ds.Projections, dataset.Projection{
			Name:   meta.Name,
			Dims:   meta.Dims,
			Info:   meta.Info,
			Points: make([][3]float64, len(cols.IDs)),
		})
	}

	for _, row := range coords.Rows {
		pi, ok := byName[row.Projection]
		if !ok {
			return nil, &dataset.ContractError{
				Rule:   "coordinate-reference",
				Detail: fmt.Sprintf("coordinates reference unknown projection %q", row.Projection),
			}
		}
		ri, ok := index[row.ID]
		if !ok {
			return nil, &dataset.ContractError{
				Rule:   "coordinate-reference",
				Detail: fmt.Sprintf("coordinates reference unknown identifier %q", row.ID),
			}
		}
		pt := [3]float64{row.X, row.Y, 0}
		if row.Z != nil {
			pt[2] = *row.Z
		}
		ds.Projections[pi].Points[ri] = pt
		filled[pi][ri] = true
	}

	for i, f := range filled {
		missing := 0
		for _, ok := range f {
			if !ok {
				missing++
			}
		}
		if missing > 0 {
			return nil, &dataset.ContractError{
				Rule: "coordinate-coverage",
				Detail: fmt.Sprintf("projection %q missing coordinates for %d of %d points",
					ds.Projections[i].Name, missing, len(cols.IDs)),
			}
		}
	}

	if err := ds.Validate(); err != nil {
		return nil, err
	}
	return ds, nil
}

func encodePart(v interface{}) ([]byte, error) {
	payload, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd encoder: %w", err)
	}
	defer enc.Close()
	return enc.EncodeAll(payload, nil), nil
}

func decodePart(part []byte, v interface{}) error {
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return fmt.Errorf("failed to create zstd decoder: %w", err)
	}
	defer dec.Close()

	payload, err := dec.DecodeAll(part, nil)
	if err != nil {
		return fmt.Errorf("zstd decompress failed: %w", err)
	}
	return json.Unmarshal(payload, v)
}
