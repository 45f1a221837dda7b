package psid

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wegman-software/lidarqc-go/internal/extract"
)

const pdalInfo = `{
  "file_size": 1048576,
  "filename": "CL2_CB11_2021_1000_4233.laz",
  "pdal_version": "2.6.0",
  "stats": {
    "statistic": [
      {
        "average": 1003.2,
        "count": 120000,
        "maximum": 1005,
        "minimum": 1001,
        "name": "PointSourceId",
        "position": 0,
        "values": [1005, 1001, 1003]
      }
    ]
  }
}`

type fakeRunner struct {
	res extract.Result
	err error
	cmd extract.Cmd
}

func (f *fakeRunner) Run(_ context.Context, cmd extract.Cmd) (extract.Result, error) {
	f.cmd = cmd
	return f.res, f.err
}

func TestParsePdalStats(t *testing.T) {
	ids, err := ParsePdalStats([]byte(pdalInfo))
	require.NoError(t, err)
	assert.Equal(t, []int{1001, 1003, 1005}, ids)

	_, err = ParsePdalStats([]byte(`{"stats": {"statistic": []}}`))
	assert.Error(t, err)
	_, err = ParsePdalStats([]byte(`not json`))
	assert.Error(t, err)
}

func TestExtract(t *testing.T) {
	r := &fakeRunner{res: extract.Result{Stdout: []byte(pdalInfo)}}
	e := &Extractor{Runner: r, Tool: "pdal"}

	got, err := e.Extract(context.Background(), "/data/CL2_CB11_2021_1000_4233.laz")
	require.NoError(t, err)
	assert.Equal(t, TileIDs{Tile: "CL2_CB11_2021_1000_4233", IDs: []int{1001, 1003, 1005}}, got)
	assert.Equal(t, "info", r.cmd.Args[0])
	assert.Contains(t, r.cmd.Args, "--enumerate=PointSourceId")
}

func TestExtractErrors(t *testing.T) {
	tests := []struct {
		name string
		r    *fakeRunner
	}{
		{"exit status", &fakeRunner{err: errors.New("exit status 1")}},
		{"stderr", &fakeRunner{res: extract.Result{Stdout: []byte(pdalInfo), Stderr: []byte("readers.las: Invalid LAS header")}}},
		{"bad json", &fakeRunner{res: extract.Result{Stdout: []byte("{")}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := &Extractor{Runner: tt.r, Tool: "pdal"}
			got, err := e.Extract(context.Background(), "/data/a.laz")
			var ee *extract.ExtractionError
			require.ErrorAs(t, err, &ee)
			assert.Equal(t, "a", got.Tile)
		})
	}
}

func TestDatasetIDs(t *testing.T) {
	s := DatasetIDs([]TileIDs{
		{Tile: "a", IDs: []int{1, 2}},
		{Tile: "b"},
		{Tile: "c", IDs: []int{2, 7}},
	})
	assert.Equal(t, []int{1, 2, 7}, s.Sorted())
}

func TestCompare(t *testing.T) {
	issues := Compare(NewSet(1, 2, 3, 4), NewSet(2, 3, 9))
	require.Len(t, issues, 2)
	assert.Equal(t, "Extra Flightlines", issues[0].Key)
	assert.Equal(t, "There are more flightline id's than point source id's by 2", issues[0].Message)
	assert.Equal(t, []int{1, 4}, issues[0].IDs.Sorted())
	assert.Equal(t, "Extra psids", issues[1].Key)
	assert.Equal(t, []int{9}, issues[1].IDs.Sorted())

	assert.Empty(t, Compare(NewSet(1, 2), NewSet(2, 1)))
}

func TestFlightlineIDs(t *testing.T) {
	path := filepath.Join(t.TempDir(), "flightlines.geojson")
	doc := `{"type":"FeatureCollection","features":[
	  {"type":"Feature","properties":{"flight_id":1001},"geometry":{"type":"LineString","coordinates":[[0,0],[10,10]]}},
	  {"type":"Feature","properties":{"flight_id":"1002"},"geometry":{"type":"LineString","coordinates":[[0,5],[10,15]]}}
	]}`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0644))

	ids, err := FlightlineIDs(path, "flight_id")
	require.NoError(t, err)
	assert.Equal(t, []int{1001, 1002}, ids.Sorted())

	_, err = FlightlineIDs(path, "line_no")
	assert.Error(t, err)
}

func TestReport(t *testing.T) {
	r := &Report{
		Tiles:    []TileIDs{{Tile: "a", IDs: []int{1, 2}}, {Tile: "b", IDs: []int{2}}},
		Compared: true,
		Issues:   Compare(NewSet(1, 2, 3), NewSet(1, 2)),
	}
	var buf bytes.Buffer
	_, err := r.WriteTo(&buf)
	require.NoError(t, err)

	want := "Point Source ID Check\n\n" +
		"ERROR    Extra Flightlines: There are more flightline id's than point source id's by 1\nID's: [3]\n\n" +
		"LAS Files: Point Source ID's\nNumber of Files: 2\n\n" +
		"a: [1, 2]\n" +
		"b: [2]\n"
	assert.Equal(t, want, buf.String())

	ok := &Report{Compared: true}
	buf.Reset()
	_, err = ok.WriteTo(&buf)
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "Point source ID's match Flightline ID's")
}

func TestWriteReportAppends(t *testing.T) {
	path := filepath.Join(t.TempDir(), ReportName)
	r := &Report{Tiles: []TileIDs{{Tile: "a", IDs: []int{1}}}}
	require.NoError(t, WriteReport(path, r))
	require.NoError(t, WriteReport(path, r))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 2, bytes.Count(data, []byte("Point Source ID Check")))
}

// pathRunner answers pdal calls by file name and fails the rest
type pathRunner struct {
	mu  sync.Mutex
	out map[string]string
}

func (p *pathRunner) Run(_ context.Context, cmd extract.Cmd) (extract.Result, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if out, ok := p.out[filepath.Base(cmd.Args[2])]; ok {
		return extract.Result{Stdout: []byte(out)}, nil
	}
	return extract.Result{Stderr: []byte("readers.las: Unable to open stream")}, errors.New("exit status 1")
}

func TestCheck(t *testing.T) {
	dir := t.TempDir()
	flightlines := filepath.Join(dir, "flightlines.geojson")
	doc := `{"type":"FeatureCollection","features":[
	  {"type":"Feature","properties":{"fid":1001},"geometry":{"type":"LineString","coordinates":[[0,0],[10,10]]}},
	  {"type":"Feature","properties":{"fid":1002},"geometry":{"type":"LineString","coordinates":[[0,5],[10,15]]}}
	]}`
	require.NoError(t, os.WriteFile(flightlines, []byte(doc), 0644))

	runner := &pathRunner{out: map[string]string{
		"a.laz": `{"stats": {"statistic": [{"name": "PointSourceId", "values": [1001]}]}}`,
		"b.laz": `{"stats": {"statistic": [{"name": "PointSourceId", "values": [1001, 1003]}]}}`,
	}}
	c := NewChecker(runner, "pdal", 2)
	files := []string{filepath.Join(dir, "a.laz"), filepath.Join(dir, "b.laz"), filepath.Join(dir, "c.laz")}

	res, err := c.Check(context.Background(), files, Options{
		Flightlines:   flightlines,
		FlightIDField: "fid",
		OutputDir:     dir,
	})
	require.NoError(t, err)
	require.Len(t, res.Report.Tiles, 2)
	assert.Equal(t, "a", res.Report.Tiles[0].Tile)
	require.Len(t, res.Errors, 1)
	assert.Equal(t, files[2], res.Errors[0].Item)
	assert.FileExists(t, filepath.Join(dir, ErrorsCSV))

	require.Len(t, res.Report.Issues, 2)
	assert.Equal(t, []int{1002}, res.Report.Issues[0].IDs.Sorted())
	assert.Equal(t, []int{1003}, res.Report.Issues[1].IDs.Sorted())

	data, err := os.ReadFile(filepath.Join(dir, ReportName))
	require.NoError(t, err)
	assert.Contains(t, string(data), "Number of Files: 2")
	assert.Contains(t, string(data), "b: [1001, 1003]")
}
