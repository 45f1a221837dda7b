package validate

import (
	"errors"
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wegman-software/lidarqc-go/internal/record"
	"github.com/wegman-software/lidarqc-go/internal/standard"
	"github.com/wegman-software/lidarqc-go/internal/tileindex"
)

const (
	goodWKT = `COMPD_CS["NZGD2000 / New Zealand Transverse Mercator 2000 + NZVD2016 height",` +
		`PROJCS["NZGD2000 / New Zealand Transverse Mercator 2000",GEOGCS["NZGD2000",DATUM["New_Zealand_Geodetic_Datum_2000"]],` +
		`AUTHORITY["EPSG","2193"]],VERT_CS["NZVD2016 height",VERT_DATUM["New Zealand Vertical Datum 2016",2005]]]`
	epsgOnlyWKT = `PROJCS["unnamed",AUTHORITY["EPSG","2193"]]`
)

func ptr[T any](v T) *T { return &v }

func testValidator(t *testing.T) *Validator {
	t.Helper()
	scheme := tileindex.NewScheme(tileindex.Scale1000, []tileindex.Tile{
		{SheetCode: "CB11", ID: "4233", Bound: orb.Bound{Min: orb.Point{1000, 5000}, Max: orb.Point{1480, 5720}}},
		{SheetCode: "CB11", ID: "4234", Bound: orb.Bound{Min: orb.Point{1480, 5000}, Max: orb.Point{1960, 5720}}},
	})
	supplied := tileindex.NewReferenceIndex([]orb.Geometry{
		orb.Bound{Min: orb.Point{1000, 5000}, Max: orb.Point{1480, 5720}}.ToPolygon(),
	})
	cache := tileindex.NewCache(func(path string) (*tileindex.ReferenceIndex, error) {
		if path == "supplied.geojson" {
			return supplied, nil
		}
		return nil, errors.New("not found")
	})
	v := New(scheme, cache, standard.Default())
	v.Log = nil
	return v
}

func raster(name string, minX, minY, maxX, maxY float64) *record.RasterRecord {
	return &record.RasterRecord{
		Base:        record.Base{FileName: name, FileExtension: ".tif", WKT: ptr(goodWKT), SuppliedIndexPath: "supplied.geojson"},
		ProductType: record.ProductDEM,
		Size:        &record.XY{X: 480, Y: 720},
		Origin:      &record.XY{X: minX, Y: maxY},
		PixelSize:   &record.XY{X: 1, Y: -1},
		UpperLeft:   &record.XY{X: minX, Y: maxY},
		LowerRight:  &record.XY{X: maxX, Y: minY},
		NoData:      ptr(-9999.0),
		DataType:    ptr("Float32"),
	}
}

func TestNameFormat(t *testing.T) {
	v := testValidator(t)

	tests := []struct {
		name    string
		product record.ProductType
		want    Outcome
	}{
		{"DEM_CB11_2021_1000_4233", record.ProductDEM, Pass},
		{"DEM_CB11_2021_1000_423", record.ProductDEM, Fail},
		{"DEM_CB11_2021_1000", record.ProductDEM, Fail},
		{"DEM_CB11_2021_1000_4233_x", record.ProductDEM, Fail},
		{"DEM_CB11_2100_1000_4233", record.ProductDEM, Fail},
		{"DEM_CB11_2000_1000_4233", record.ProductDEM, Fail},
		{"DEM_CB11_2021_5000_4233", record.ProductDEM, Fail},
		{"DEM_C111_2021_1000_4233", record.ProductDEM, Fail},
		{"DSM_CB11_2021_1000_4233", record.ProductDEM, Fail},
		{"DSM_CB11_2021_1000_4233", record.ProductUnknown, Pass},
		{"XYZ_CB11_2021_1000_4233", record.ProductUnknown, Fail},
		{"DEM_CB11_20a1_1000_4233", record.ProductDEM, Fail},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := raster(tt.name, 1000, 5000, 1480, 5720)
			r.ProductType = tt.product
			assert.Equal(t, tt.want, v.NameFormat(r))
		})
	}
}

func TestNameFormatPointCloud(t *testing.T) {
	v := testValidator(t)

	assert.Equal(t, Pass, v.NameFormat(&record.PointCloudRecord{Base: record.Base{FileName: "CL2_BP31_2021_1000_3248"}}))
	assert.Equal(t, Fail, v.NameFormat(&record.PointCloudRecord{Base: record.Base{FileName: "DEM_BP31_2021_1000_3248"}}))
	assert.Equal(t, Unknown, v.NameFormat(&record.PointCloudRecord{}))
}

func TestTileMatch(t *testing.T) {
	v := testValidator(t)

	assert.Equal(t, Pass, v.TileMatch(raster("DEM_CB11_2021_1000_4233", 1000, 5000, 1480, 5720)))
	assert.Equal(t, Fail, v.TileMatch(raster("DEM_CB11_2021_1000_4234", 1000, 5000, 1480, 5720)))
	assert.Equal(t, Fail, v.TileMatch(raster("DEM_CB12_2021_1000_4233", 1000, 5000, 1480, 5720)))
	// Outside the scheme is a failure, not an error
	assert.Equal(t, Fail, v.TileMatch(raster("DEM_CB11_2021_1000_4233", 0, 0, 480, 720)))
	// Missing geometry is unknown
	assert.Equal(t, Unknown, v.TileMatch(&record.RasterRecord{Base: record.Base{FileName: "DEM_CB11_2021_1000_4233"}}))
}

func TestTiling(t *testing.T) {
	v := testValidator(t)

	tests := []struct {
		name                   string
		minX, minY, maxX, maxY float64
		want                   Outcome
	}{
		{"exact", 1000, 5000, 1480, 5720, Pass},
		{"min x 0.01 below", 999.99, 5000, 1480, 5720, Pass},
		{"min x 0.02 below", 999.98, 5000, 1480, 5720, Fail},
		{"min x inside", 1000.01, 5000, 1480, 5720, Fail},
		{"max y 0.015 above", 1000, 5000, 1480, 5720.015, Pass},
		{"max x clipped", 1000, 5000, 1479.99, 5720, Fail},
		{"outside scheme", 0, 0, 480, 720, Fail},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := raster("DEM_CB11_2021_1000_4233", tt.minX, tt.minY, tt.maxX, tt.maxY)
			assert.Equal(t, tt.want, v.Tiling(r))
		})
	}
}

func TestTilingWithoutScheme(t *testing.T) {
	v := New(nil, nil, nil)
	assert.Equal(t, Unknown, v.Tiling(raster("DEM_CB11_2021_1000_4233", 1000, 5000, 1480, 5720)))
}

// The legacy expression only ever tested the EPSG code. Both behaviours are
// pinned so the difference stays visible.
func TestProjection(t *testing.T) {
	v := testValidator(t)

	tests := []struct {
		name       string
		wkt        *string
		want       Outcome
		wantLegacy Outcome
	}{
		{"full wkt", ptr(goodWKT), Pass, Pass},
		{"spaced names", ptr(`PROJCS["NZGD2000 / New Zealand Transverse Mercator 2000",DATUM["New Zealand Geodetic Datum 2000"],ID["EPSG",2193]]`), Pass, Pass},
		{"epsg only", ptr(epsgOnlyWKT), Fail, Pass},
		{"wrong epsg", ptr(`PROJCS["NZGD2000 / New Zealand Transverse Mercator 2000",DATUM["New_Zealand_Geodetic_Datum_2000"],AUTHORITY["EPSG","4326"]]`), Fail, Fail},
		{"missing", nil, Unknown, Unknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := raster("DEM_CB11_2021_1000_4233", 1000, 5000, 1480, 5720)
			r.WKT = tt.wkt
			assert.Equal(t, tt.want, v.Projection(r))
			assert.Equal(t, tt.wantLegacy, v.ProjectionLegacy(r))
		})
	}
}

func TestVerticalDatum(t *testing.T) {
	v := testValidator(t)

	assert.Equal(t, Pass, v.VerticalDatum(&record.PointCloudRecord{Base: record.Base{WKT: ptr(goodWKT)}}))
	assert.Equal(t, Fail, v.VerticalDatum(&record.PointCloudRecord{Base: record.Base{WKT: ptr(epsgOnlyWKT)}}))
	assert.Equal(t, Unknown, v.VerticalDatum(&record.PointCloudRecord{}))
}

func TestSuppliedIndex(t *testing.T) {
	v := testValidator(t)

	in := raster("DEM_CB11_2021_1000_4233", 1000, 5000, 1480, 5720)
	assert.Equal(t, Pass, v.SuppliedIndex(in))

	touching := raster("DEM_CB11_2021_1000_4234", 1480, 5000, 1960, 5720)
	assert.Equal(t, Fail, v.SuppliedIndex(touching))

	none := raster("DEM_CB11_2021_1000_4233", 1000, 5000, 1480, 5720)
	none.SuppliedIndexPath = ""
	assert.Equal(t, Unknown, v.SuppliedIndex(none))

	broken := raster("DEM_CB11_2021_1000_4233", 1000, 5000, 1480, 5720)
	broken.SuppliedIndexPath = "missing.geojson"
	assert.Equal(t, Unknown, v.SuppliedIndex(broken))
}

func pointCloud() *record.PointCloudRecord {
	return &record.PointCloudRecord{
		Base:            record.Base{FileName: "CL2_CB11_2021_1000_4233", WKT: ptr(goodWKT)},
		FileSourceID:    ptr(0),
		GlobalEncoding:  ptr(17),
		VersionMajor:    ptr(1),
		VersionMinor:    ptr(4),
		PointDataFormat: ptr(6),
		ScaleFactor:     &record.XYZ{X: 0.001, Y: 0.001, Z: 0.001},
		Offset:          &record.XYZ{X: 1000, Y: 5000, Z: 0},
		HeaderMin:       &record.XYZ{X: 1000, Y: 5000, Z: 1},
		HeaderMax:       &record.XYZ{X: 1479.999, Y: 5719.999, Z: 2},
		X:               &record.MinMax{Min: 0, Max: 479999},
		Y:               &record.MinMax{Min: 0, Max: 719999},
	}
}

func TestPointCloudHeaderChecks(t *testing.T) {
	v := testValidator(t)

	r := pointCloud()
	assert.Equal(t, Pass, v.PointCoordinates(r))
	assert.Equal(t, Pass, v.ScaleFactor(r))
	assert.Equal(t, Pass, v.PointDataFormat(r))
	assert.Equal(t, Pass, v.GlobalEncoding(r))
	assert.Equal(t, Pass, v.FileSourceID(r))
	assert.Equal(t, Pass, v.Version(r))

	r.ScaleFactor = &record.XYZ{X: 0.01, Y: 0.01, Z: 0.001}
	assert.Equal(t, Pass, v.ScaleFactor(r))
	r.ScaleFactor = &record.XYZ{X: 0.001, Y: 0.01, Z: 0.001}
	assert.Equal(t, Fail, v.ScaleFactor(r))
	// Scale factor now disagrees with the header extent
	assert.Equal(t, Fail, v.PointCoordinates(r))

	r = pointCloud()
	r.PointDataFormat = ptr(3)
	r.GlobalEncoding = ptr(1)
	r.FileSourceID = ptr(12)
	r.VersionMinor = ptr(2)
	assert.Equal(t, Fail, v.PointDataFormat(r))
	assert.Equal(t, Fail, v.GlobalEncoding(r))
	assert.Equal(t, Fail, v.FileSourceID(r))
	assert.Equal(t, Fail, v.Version(r))

	empty := &record.PointCloudRecord{}
	assert.Equal(t, Unknown, v.PointCoordinates(empty))
	assert.Equal(t, Unknown, v.ScaleFactor(empty))
	assert.Equal(t, Unknown, v.PointDataFormat(empty))
	assert.Equal(t, Unknown, v.GlobalEncoding(empty))
	assert.Equal(t, Unknown, v.FileSourceID(empty))
	assert.Equal(t, Unknown, v.Version(empty))
}

func TestEvaluateRaster(t *testing.T) {
	v := testValidator(t)

	r := raster("DEM_CB11_2021_1000_4233", 1000, 5000, 1480, 5720)
	r.Origin = &record.XY{X: 1000, Y: 5720.5}
	res := v.Evaluate(r)

	assert.Equal(t, Pass, res.NameFormat)
	assert.Equal(t, Pass, res.TileMatch)
	assert.Equal(t, Pass, res.Tiling)
	assert.Equal(t, Pass, res.Projection)
	assert.Equal(t, Pass, res.SuppliedIndex)
	assert.Equal(t, Pass, res.NoData)
	assert.Equal(t, Pass, res.Width)
	assert.Equal(t, Pass, res.Height)
	assert.Equal(t, Pass, res.PixelX)
	assert.Equal(t, Pass, res.PixelY)
	assert.Equal(t, Pass, res.OriginX)
	assert.Equal(t, Fail, res.OriginY)
	assert.Equal(t, Pass, res.DataType)
	assert.Equal(t, Unknown, res.VerticalDatum)
}

func TestEvaluateAllKeepsOrder(t *testing.T) {
	v := testValidator(t)

	recs := []record.Record{
		raster("DEM_CB11_2021_1000_4233", 1000, 5000, 1480, 5720),
		pointCloud(),
	}
	out := v.EvaluateAll(recs)
	require.Len(t, out, 2)
	assert.Same(t, recs[0], out[0].Record)
	assert.Same(t, recs[1], out[1].Record)
	assert.Equal(t, Pass, out[1].Results.Version)
}

func TestOutcome(t *testing.T) {
	assert.True(t, Pass.OK())
	assert.False(t, Fail.OK())
	assert.False(t, Unknown.OK())

	assert.Nil(t, Unknown.Bool())
	require.NotNil(t, Pass.Bool())
	assert.True(t, *Pass.Bool())
	assert.False(t, *Fail.Bool())
}
