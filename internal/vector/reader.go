// Package vector reads polygon features from GeoJSON and GeoPackage files.
package vector

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	_ "modernc.org/sqlite"

	"github.com/wegman-software/lidarqc-go/internal/wkb"
)

// Feature is a geometry with its attribute values
type Feature struct {
	Geometry   orb.Geometry
	Properties map[string]any
}

// String returns a property as a string, formatting numbers without exponent
func (f Feature) String(key string) (string, bool) {
	v, ok := f.Properties[key]
	if !ok || v == nil {
		return "", false
	}
	switch t := v.(type) {
	case string:
		return t, true
	case []byte:
		return string(t), true
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), true
	case int64:
		return strconv.FormatInt(t, 10), true
	default:
		return fmt.Sprint(t), true
	}
}

// Int returns a property as an integer
func (f Feature) Int(key string) (int, bool) {
	v, ok := f.Properties[key]
	if !ok || v == nil {
		return 0, false
	}
	switch t := v.(type) {
	case int64:
		return int(t), true
	case int:
		return t, true
	case float64:
		return int(t), true
	case bool:
		if t {
			return 1, true
		}
		return 0, true
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(t))
		return n, err == nil
	case []byte:
		n, err := strconv.Atoi(strings.TrimSpace(string(t)))
		return n, err == nil
	default:
		return 0, false
	}
}

// ReadFile reads every feature of a vector file. The format is picked from
// the extension. layer selects a GeoPackage table; empty means the first
// feature table registered in the package.
func ReadFile(path, layer string) ([]Feature, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".geojson", ".json":
		return readGeoJSON(path)
	case ".gpkg":
		return readGeoPackage(path, layer)
	default:
		return nil, fmt.Errorf("unsupported vector format %q (want .geojson or .gpkg)", filepath.Ext(path))
	}
}

// Fields returns the attribute names of a vector file's features
func Fields(path, layer string) ([]string, error) {
	features, err := ReadFile(path, layer)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool)
	var fields []string
	for _, f := range features {
		for k := range f.Properties {
			if !seen[k] {
				seen[k] = true
				fields = append(fields, k)
			}
		}
	}
	return fields, nil
}

func readGeoJSON(path string) ([]Feature, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read vector file: %w", err)
	}

	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse GeoJSON %s: %w", path, err)
	}

	features := make([]Feature, 0, len(fc.Features))
	for _, f := range fc.Features {
		if f.Geometry == nil {
			continue
		}
		features = append(features, Feature{Geometry: f.Geometry, Properties: f.Properties})
	}
	return features, nil
}

func readGeoPackage(path, layer string) ([]Feature, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("failed to open GeoPackage: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open GeoPackage: %w", err)
	}
	defer db.Close()

	var table, geomCol string
	query := `SELECT table_name, column_name FROM gpkg_geometry_columns`
	args := []any{}
	if layer != "" {
		query += ` WHERE table_name = ?`
		args = append(args, layer)
	}
	query += ` ORDER BY table_name LIMIT 1`
	if err := db.QueryRow(query, args...).Scan(&table, &geomCol); err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("no feature layer %q in %s", layer, path)
		}
		return nil, fmt.Errorf("failed to read gpkg_geometry_columns: %w", err)
	}

	rows, err := db.Query(fmt.Sprintf(`SELECT * FROM "%s"`, strings.ReplaceAll(table, `"`, `""`)))
	if err != nil {
		return nil, fmt.Errorf("failed to query layer %s: %w", table, err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	var features []Feature
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("failed to scan feature: %w", err)
		}

		f := Feature{Properties: make(map[string]any, len(cols)-1)}
		for i, col := range cols {
			if col == geomCol {
				blob, _ := values[i].([]byte)
				if blob == nil {
					continue
				}
				geom, _, err := wkb.DecodeGeoPackage(blob)
				if err != nil {
					return nil, fmt.Errorf("layer %s: %w", table, err)
				}
				f.Geometry = geom
				continue
			}
			f.Properties[col] = values[i]
		}
		if f.Geometry != nil {
			features = append(features, f)
		}
	}
	return features, rows.Err()
}
