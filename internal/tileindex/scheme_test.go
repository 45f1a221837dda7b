package tileindex

import (
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func grid() []Tile {
	// Two adjacent 480x720 tiles sharing the x=1480 edge
	return []Tile{
		{SheetCode: "CB11", ID: "4233", Bound: orb.Bound{Min: orb.Point{1000, 5000}, Max: orb.Point{1480, 5720}}},
		{SheetCode: "CB11", ID: "4234", Bound: orb.Bound{Min: orb.Point{1480, 5000}, Max: orb.Point{1960, 5720}}},
	}
}

func TestParseScale(t *testing.T) {
	tests := []struct {
		in      string
		want    Scale
		wantErr bool
	}{
		{"500", Scale500, false},
		{"1000", Scale1000, false},
		{"5000", Scale5000, false},
		{"10000", Scale10000, false},
		{"2000", 0, true},
		{"abc", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseScale(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseScale(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseScale(%q) = %d, want %d", tt.in, got, tt.want)
			}
		})
	}
}

func TestGetTile(t *testing.T) {
	s := NewScheme(Scale1000, grid())
	assert.Equal(t, 2, s.Len())
	assert.Equal(t, Scale1000, s.Scale())

	tests := []struct {
		name   string
		pt     orb.Point
		wantID string
	}{
		{"inside first", orb.Point{1240, 5360}, "4233"},
		{"inside second", orb.Point{1700, 5360}, "4234"},
		{"shared edge goes to min side", orb.Point{1480, 5360}, "4234"},
		{"outer max edge", orb.Point{1960, 5720}, "4234"},
		{"min corner", orb.Point{1000, 5000}, "4233"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tile, err := s.GetTile(tt.pt)
			require.NoError(t, err)
			assert.Equal(t, tt.wantID, tile.ID)
			assert.Equal(t, "CB11", tile.SheetCode)
		})
	}
}

func TestGetTileOutOfScheme(t *testing.T) {
	s := NewScheme(Scale1000, grid())

	_, err := s.GetTile(orb.Point{0, 0})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrOutOfScheme))
}

func TestTileName(t *testing.T) {
	s := NewScheme(Scale1000, grid())
	tile, err := s.GetTile(orb.Point{1100, 5100})
	require.NoError(t, err)
	assert.Equal(t, "CB11_1000_4233", tile.Name())
}

func TestReferenceIndexPositiveArea(t *testing.T) {
	idx := NewReferenceIndex([]orb.Geometry{
		orb.Bound{Min: orb.Point{0, 0}, Max: orb.Point{10, 10}}.ToPolygon(),
		nil,
	})
	assert.Equal(t, 1, idx.Count())

	tests := []struct {
		name string
		b    orb.Bound
		want bool
	}{
		{"overlap", orb.Bound{Min: orb.Point{5, 5}, Max: orb.Point{15, 15}}, true},
		{"inside", orb.Bound{Min: orb.Point{2, 2}, Max: orb.Point{3, 3}}, true},
		{"touching edge", orb.Bound{Min: orb.Point{10, 0}, Max: orb.Point{20, 10}}, false},
		{"touching corner", orb.Bound{Min: orb.Point{10, 10}, Max: orb.Point{20, 20}}, false},
		{"disjoint", orb.Bound{Min: orb.Point{30, 30}, Max: orb.Point{40, 40}}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, idx.IntersectsPositiveArea(tt.b))
		})
	}
}

func TestCacheLoadsOnce(t *testing.T) {
	var calls int32
	c := NewCache(func(path string) (*ReferenceIndex, error) {
		atomic.AddInt32(&calls, 1)
		return NewReferenceIndex(nil), nil
	})

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := c.Get("/data/index.geojson")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	_, err := c.Get("/data/../data/index.geojson")
	require.NoError(t, err)

	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	assert.Equal(t, 1, c.Len())
}

func TestCacheLoadError(t *testing.T) {
	c := NewCache(func(path string) (*ReferenceIndex, error) {
		return nil, errors.New("boom")
	})
	_, err := c.Get("missing.geojson")
	assert.Error(t, err)
	assert.Equal(t, 0, c.Len())
}

const schemeGeoJSON = `{
  "type": "FeatureCollection",
  "features": [
    {"type": "Feature", "properties": {"sheet_code": "CB11", "tile": "4233"},
     "geometry": {"type": "Polygon", "coordinates": [[[1000,5000],[1480,5000],[1480,5720],[1000,5720],[1000,5000]]]}},
    {"type": "Feature", "properties": {"sheet_code": "CB11", "tile": 4234},
     "geometry": {"type": "Polygon", "coordinates": [[[1480,5000],[1960,5000],[1960,5720],[1480,5720],[1480,5000]]]}}
  ]
}`

func TestLoadScheme(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tiles.geojson")
	require.NoError(t, os.WriteFile(path, []byte(schemeGeoJSON), 0644))

	s, err := LoadScheme(path, "", Scale1000, DefaultSchemeFields())
	require.NoError(t, err)
	assert.Equal(t, 2, s.Len())

	tile, err := s.GetTile(orb.Point{1700, 5100})
	require.NoError(t, err)
	assert.Equal(t, "4234", tile.ID)
}

func TestLoadSchemeMissingField(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tiles.geojson")
	require.NoError(t, os.WriteFile(path, []byte(schemeGeoJSON), 0644))

	_, err := LoadScheme(path, "", Scale1000, SchemeFields{SheetCode: "sheet", TileID: "tile"})
	assert.Error(t, err)
}

func TestLoadReferenceIndex(t *testing.T) {
	path := filepath.Join(t.TempDir(), "supplied.geojson")
	require.NoError(t, os.WriteFile(path, []byte(schemeGeoJSON), 0644))

	idx, err := LoadReferenceIndex(path)
	require.NoError(t, err)
	assert.Equal(t, 2, idx.Count())
	assert.True(t, idx.IntersectsPositiveArea(orb.Bound{Min: orb.Point{1400, 5100}, Max: orb.Point{1500, 5200}}))
}
