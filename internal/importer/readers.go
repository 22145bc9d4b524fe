package importer

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/jonas-p/go-shp"
	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"
	"go.uber.org/zap"
)

// readFile dispatches on the file extension.
func readFile(ctx context.Context, path string) ([]record, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv", ".txt":
		f, err := os.Open(path)
		if err != nil {
			return nil, eris.Wrapf(err, "importer: open %s", path)
		}
		defer func() { _ = f.Close() }()
		return readCSV(ctx, f)
	case ".xlsx":
		return readXLSX(path)
	case ".shp":
		return readShapefile(path)
	case ".geojson", ".json":
		f, err := os.Open(path)
		if err != nil {
			return nil, eris.Wrapf(err, "importer: open %s", path)
		}
		defer func() { _ = f.Close() }()
		return readGeoJSON(f)
	default:
		return nil, eris.Errorf("importer: unsupported file type %q", filepath.Ext(path))
	}
}

// readCSV reads a headed CSV stream.
func readCSV(ctx context.Context, r io.Reader) ([]record, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "importer: csv: read header")
	}
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\ufeff")
	}
	idx := headerIndex(header)

	var out []record
	for line := 2; ; line++ {
		if ctx.Err() != nil {
			return nil, eris.Wrap(ctx.Err(), "importer: csv: context cancelled")
		}
		row, err := reader.Read()
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return nil, eris.Wrapf(err, "importer: csv: read line %d", line)
		}
		out = append(out, recordFromRow(line, idx, row))
	}
}

// readXLSX reads the first sheet; its first row is the header.
func readXLSX(path string) ([]record, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "importer: xlsx: open %s", path)
	}
	if len(f.Sheets) == 0 {
		return nil, eris.Errorf("importer: xlsx: %s has no sheets", path)
	}
	sheet := f.Sheets[0]

	var (
		idx map[string]int
		out []record
	)
	for i, row := range sheet.Rows {
		if row == nil {
			continue
		}
		cells := make([]string, len(row.Cells))
		for j, cell := range row.Cells {
			cells[j] = cell.String()
		}
		if idx == nil {
			idx = headerIndex(cells)
			continue
		}
		out = append(out, recordFromRow(i+1, idx, cells))
	}
	return out, nil
}

// readShapefile reads point shapes and their attribute table.
func readShapefile(path string) ([]record, error) {
	reader, err := shp.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "importer: open shapefile %s", path)
	}
	defer func() { _ = reader.Close() }()

	fields := reader.Fields()
	idx := make(map[string]int, len(fields))
	for i, f := range fields {
		name := canonicalField(f.String())
		if name == "" {
			continue
		}
		if _, dup := idx[name]; !dup {
			idx[name] = i
		}
	}

	var (
		out     []record
		skipped int
	)
	for reader.Next() {
		n, shape := reader.Shape()

		rec := record{line: n + 1, fields: make(map[string]string, len(idx)+2)}
		for f, i := range idx {
			v := strings.TrimSpace(strings.TrimRight(reader.Attribute(i), "\x00"))
			if v != "" {
				rec.fields[f] = v
			}
		}

		switch p := shape.(type) {
		case *shp.Point:
			rec.fields[fieldLng] = formatFloat(p.X)
			rec.fields[fieldLat] = formatFloat(p.Y)
		case *shp.PointZ:
			rec.fields[fieldLng] = formatFloat(p.X)
			rec.fields[fieldLat] = formatFloat(p.Y)
		default:
			if _, ok := idx[fieldLat]; !ok {
				skipped++
				continue
			}
		}
		out = append(out, rec)
	}

	if skipped > 0 {
		zap.L().Debug("importer: skipped non-point shapes",
			zap.String("path", path),
			zap.Int("skipped", skipped),
		)
	}
	return out, nil
}

// readGeoJSON reads a FeatureCollection of Point features. Feature
// properties are mapped like column headers.
func readGeoJSON(r io.Reader) ([]record, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, eris.Wrap(err, "importer: geojson: read")
	}
	var fc geojson.FeatureCollection
	if err := json.Unmarshal(data, &fc); err != nil {
		return nil, eris.Wrap(err, "importer: geojson: decode")
	}

	out := make([]record, 0, len(fc.Features))
	for i, feat := range fc.Features {
		rec := record{line: i + 1, fields: make(map[string]string, len(feat.Properties)+3)}
		for k, v := range feat.Properties {
			name := canonicalField(k)
			if name == "" {
				continue
			}
			if s := propertyString(v); s != "" {
				rec.fields[name] = s
			}
		}
		if feat.ID != "" {
			if _, ok := rec.fields[fieldID]; !ok {
				rec.fields[fieldID] = feat.ID
			}
		}
		if p, ok := feat.Geometry.(*geom.Point); ok && !p.Empty() {
			rec.fields[fieldLng] = formatFloat(p.X())
			rec.fields[fieldLat] = formatFloat(p.Y())
		}
		out = append(out, rec)
	}
	return out, nil
}

func propertyString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(t)
	case float64:
		return formatFloat(t)
	case []any:
		parts := make([]string, 0, len(t))
		for _, e := range t {
			if s := propertyString(e); s != "" {
				parts = append(parts, s)
			}
		}
		return strings.Join(parts, ";")
	default:
		return fmt.Sprint(t)
	}
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
