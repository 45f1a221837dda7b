package vector

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const tilesGeoJSON = `{
  "type": "FeatureCollection",
  "features": [
    {
      "type": "Feature",
      "properties": {"sheet_code": "CB11", "tile": "4233", "flight_id": 12},
      "geometry": {"type": "Polygon", "coordinates": [[[0,0],[480,0],[480,720],[0,720],[0,0]]]}
    },
    {
      "type": "Feature",
      "properties": {"sheet_code": "CB11", "tile": 4234, "flight_id": "13"},
      "geometry": {"type": "Polygon", "coordinates": [[[480,0],[960,0],[960,720],[480,720],[480,0]]]}
    }
  ]
}`

func TestReadGeoJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tiles.geojson")
	require.NoError(t, os.WriteFile(path, []byte(tilesGeoJSON), 0644))

	features, err := ReadFile(path, "")
	require.NoError(t, err)
	require.Len(t, features, 2)

	assert.Equal(t, orb.Bound{Min: orb.Point{0, 0}, Max: orb.Point{480, 720}}, features[0].Geometry.Bound())

	s, ok := features[1].String("tile")
	assert.True(t, ok)
	assert.Equal(t, "4234", s)

	n, ok := features[1].Int("flight_id")
	assert.True(t, ok)
	assert.Equal(t, 13, n)

	_, ok = features[0].String("missing")
	assert.False(t, ok)
}

func TestFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tiles.json")
	require.NoError(t, os.WriteFile(path, []byte(tilesGeoJSON), 0644))

	fields, err := Fields(path, "")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"sheet_code", "tile", "flight_id"}, fields)
}

func TestReadFileUnsupported(t *testing.T) {
	_, err := ReadFile("tiles.shp", "")
	assert.Error(t, err)
}
