package extract

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wegman-software/lidarqc-go/internal/record"
)

const sampleGdalinfo = `{
  "description": "DEM_CB11_2021_1000_4233.tif",
  "size": [480, 720],
  "coordinateSystem": {"wkt": "PROJCRS[\"NZGD2000 / New Zealand Transverse Mercator 2000\",ID[\"EPSG\",2193]]"},
  "geoTransform": [1000.0, 1.0, 0.0, 5720.0, 0.0, -1.0],
  "cornerCoordinates": {
    "upperLeft": [1000.0, 5720.0],
    "lowerLeft": [1000.0, 5000.0],
    "lowerRight": [1480.0, 5000.0],
    "upperRight": [1480.0, 5720.0],
    "center": [1240.0, 5360.0]
  },
  "bands": [{"band": 1, "type": "Float32", "computedMin": 12.5, "computedMax": 310.25, "noDataValue": -9999.0}]
}`

type fakeRunner struct {
	stdout []byte
	stderr []byte
	err    error
	calls  []Cmd
	onRun  func(cmd Cmd)
}

func (f *fakeRunner) Run(_ context.Context, cmd Cmd) (Result, error) {
	f.calls = append(f.calls, cmd)
	if f.onRun != nil {
		f.onRun(cmd)
	}
	return Result{Stdout: f.stdout, Stderr: f.stderr}, f.err
}

func TestParseGdalinfo(t *testing.T) {
	r, err := ParseGdalinfo([]byte(sampleGdalinfo))
	require.NoError(t, err)

	assert.Equal(t, &record.XY{X: 480, Y: 720}, r.Size)
	assert.Equal(t, &record.XY{X: 1000, Y: 5720}, r.Origin)
	assert.Equal(t, &record.XY{X: 1, Y: -1}, r.PixelSize)
	assert.Equal(t, &record.XY{X: 1240, Y: 5360}, r.Centre)
	require.NotNil(t, r.DataType)
	assert.Equal(t, "Float32", *r.DataType)
	assert.Equal(t, -9999.0, *r.NoData)
	assert.Equal(t, 12.5, *r.MinPixel)
	assert.Equal(t, 310.25, *r.MaxPixel)
	require.NotNil(t, r.WKT)
	assert.Contains(t, *r.WKT, "2193")
}

func TestParseGdalinfoMissingKeys(t *testing.T) {
	r, err := ParseGdalinfo([]byte(`{"size": [480, 720], "bands": [{"noDataValue": "nan"}]}`))
	require.NoError(t, err)

	assert.NotNil(t, r.Size)
	assert.Nil(t, r.WKT)
	assert.Nil(t, r.Origin)
	assert.Nil(t, r.UpperLeft)
	assert.Nil(t, r.DataType)
	require.NotNil(t, r.NoData)
}

func TestParseGdalinfoInvalidJSON(t *testing.T) {
	_, err := ParseGdalinfo([]byte(`not json`))
	assert.Error(t, err)
}

func TestRasterExtractor(t *testing.T) {
	runner := &fakeRunner{stdout: []byte(sampleGdalinfo)}
	e := ForKind(record.KindRaster, runner, DefaultTools())

	path := filepath.Join("data", "02_DEM_1m", "DEM_CB11_2021_1000_4233.tif")
	rec, err := e.Extract(context.Background(), path, Options{SuppliedTileIndex: "index.geojson"})
	require.NoError(t, err)

	r := rec.(*record.RasterRecord)
	assert.Equal(t, "DEM_CB11_2021_1000_4233", r.Name())
	assert.Equal(t, ".tif", r.Extension())
	assert.Equal(t, "index.geojson", r.SuppliedTileIndex())
	assert.Equal(t, record.ProductDEM, r.ProductType)

	require.Len(t, runner.calls, 1)
	assert.Equal(t, "gdalinfo", runner.calls[0].Name)
	assert.Equal(t, []string{"-stats", "-mm", "-json", path}, runner.calls[0].Args)
}

func TestRasterExtractorErrors(t *testing.T) {
	tests := []struct {
		name      string
		runner    *fakeRunner
		wantParse bool
	}{
		{"tool failure", &fakeRunner{err: errors.New("exit status 1"), stderr: []byte("ERROR 4: not recognized")}, false},
		{"empty output", &fakeRunner{}, false},
		{"missing corners", &fakeRunner{stdout: []byte(`{"size": [1, 1]}`)}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := ForKind(record.KindRaster, tt.runner, DefaultTools())
			_, err := e.Extract(context.Background(), "x.tif", Options{})
			require.Error(t, err)

			var pe *ParseError
			var ee *ExtractionError
			if tt.wantParse {
				require.True(t, errors.As(err, &pe))
				assert.Equal(t, []string{"upperLeft", "lowerRight"}, pe.Fields)
			} else {
				assert.True(t, errors.As(err, &ee))
			}
		})
	}
}

func TestPointCloudExtractorStdout(t *testing.T) {
	runner := &fakeRunner{
		stdout: []byte(sampleLasinfo),
		stderr: []byte("Please note that LAStools is not \"free\" (see http://lastools.org/LICENSE.txt)"),
	}
	e := ForKind(record.KindPointCloud, runner, DefaultTools())

	rec, err := e.Extract(context.Background(), "CL2_BP31_2021_1000_3248.laz", Options{})
	require.NoError(t, err)

	r := rec.(*record.PointCloudRecord)
	assert.Equal(t, "CL2_BP31_2021_1000_3248", r.Name())
	assert.Equal(t, ".laz", r.Extension())
	assert.Equal(t, []string{"-cd", "-repair_counters", "-i", "CL2_BP31_2021_1000_3248.laz", "-stdout"}, runner.calls[0].Args)
}

func TestPointCloudExtractorStderr(t *testing.T) {
	runner := &fakeRunner{stdout: []byte(sampleLasinfo), stderr: []byte("ERROR: cannot open file")}
	e := ForKind(record.KindPointCloud, runner, DefaultTools())

	_, err := e.Extract(context.Background(), "broken.laz", Options{})
	var ee *ExtractionError
	require.True(t, errors.As(err, &ee))
	assert.Equal(t, "lasinfo", ee.Tool)
	assert.Contains(t, err.Error(), "cannot open file")
}

func TestPointCloudExtractorMissingHeader(t *testing.T) {
	runner := &fakeRunner{stdout: []byte("  file source ID: 0\n")}
	e := ForKind(record.KindPointCloud, runner, DefaultTools())

	_, err := e.Extract(context.Background(), "x.laz", Options{})
	var pe *ParseError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, []string{"min x y z", "max x y z"}, pe.Fields)
}

func TestPointCloudExtractorKeepsReports(t *testing.T) {
	dir := t.TempDir()
	tile := filepath.Join(dir, "CL2_BP31_2021_1000_3248.laz")

	runner := &fakeRunner{}
	runner.onRun = func(cmd Cmd) {
		// lasinfo writes the report to the -o argument
		for i, a := range cmd.Args {
			if a == "-o" {
				require.NoError(t, os.WriteFile(cmd.Args[i+1], []byte(sampleLasinfo), 0644))
			}
		}
	}
	e := ForKind(record.KindPointCloud, runner, DefaultTools())

	_, err := e.Extract(context.Background(), tile, Options{KeepReports: true})
	require.NoError(t, err)
	assert.FileExists(t, ReportPath(tile))
	assert.Equal(t, filepath.Join(dir, ReportDirName, "CL2_BP31_2021_1000_3248.txt"), ReportPath(tile))

	// Second extraction reuses the kept report
	_, err = e.Extract(context.Background(), tile, Options{KeepReports: true})
	require.NoError(t, err)
	assert.Len(t, runner.calls, 1)
}

func TestIsToolNotice(t *testing.T) {
	assert.True(t, IsToolNotice([]byte("\nPlease note that LAStools is not \"free\" ...")))
	assert.False(t, IsToolNotice([]byte("ERROR: file not found")))
	assert.False(t, IsToolNotice(nil))
}
