package tileindex

import (
	"fmt"

	"github.com/wegman-software/lidarqc-go/internal/vector"
)

// SchemeFields names the attributes that carry the tile identifiers
type SchemeFields struct {
	SheetCode string
	TileID    string
}

// DefaultSchemeFields matches the LINZ tile index attribute names
func DefaultSchemeFields() SchemeFields {
	return SchemeFields{SheetCode: "sheet_code", TileID: "tile"}
}

// LoadScheme builds a scheme from a vector file of official tiles
func LoadScheme(path, layer string, scale Scale, fields SchemeFields) (*Scheme, error) {
	features, err := vector.ReadFile(path, layer)
	if err != nil {
		return nil, fmt.Errorf("failed to load tile scheme: %w", err)
	}

	tiles := make([]Tile, 0, len(features))
	for i, f := range features {
		sheet, ok := f.String(fields.SheetCode)
		if !ok {
			return nil, fmt.Errorf("tile scheme feature %d has no %q attribute", i, fields.SheetCode)
		}
		id, ok := f.String(fields.TileID)
		if !ok {
			return nil, fmt.Errorf("tile scheme feature %d has no %q attribute", i, fields.TileID)
		}
		tiles = append(tiles, Tile{
			SheetCode: sheet,
			ID:        id,
			Scale:     scale,
			Bound:     f.Geometry.Bound(),
		})
	}
	if len(tiles) == 0 {
		return nil, fmt.Errorf("tile scheme %s has no features", path)
	}
	return NewScheme(scale, tiles), nil
}
