package density

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/wegman-software/lidarqc-go/internal/extract"
	"github.com/wegman-software/lidarqc-go/internal/parallel"
)

func TestExpandFilters(t *testing.T) {
	got, err := ExpandFilters([]string{"common", "ground", "bridge"})
	require.NoError(t, err)
	assert.Equal(t, []Filter{Pulse, Ground, LowVeg, Buildings, Unclassified, Noise, Intensity, Bridge}, got)

	got, err = ExpandFilters([]string{"Common_No_Flag"})
	require.NoError(t, err)
	assert.Equal(t, CommonNoFlagFilters, got)

	_, err = ExpandFilters([]string{"trees"})
	assert.ErrorContains(t, err, `unknown density filter "trees"`)
}

func TestFilterProperties(t *testing.T) {
	tests := []struct {
		f          Filter
		where      string
		dimension  string
		outputType string
	}{
		{Ground, "(Classification == 2)", "Z", "count"},
		{NoiseNoFlag, "((Classification == 7 || Classification == 18) && Withheld == 0)", "Z", "count"},
		{Point, "", "Z", "count"},
		{Intensity, "", "Intensity", "stdev"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.where, tt.f.Where(), tt.f)
		assert.Equal(t, tt.dimension, tt.f.Dimension(), tt.f)
		assert.Equal(t, tt.outputType, tt.f.OutputType(), tt.f)
	}
	assert.Equal(t, "low_veg_raster", LowVeg.OutputDir())
	assert.True(t, Pulse.UsesLasgrid())
	assert.False(t, Ground.UsesLasgrid())
}

func TestPipelineJSON(t *testing.T) {
	data, err := PipelineJSON(Ground, "in.laz", "out/in.tif")
	require.NoError(t, err)

	var stages []map[string]string
	require.NoError(t, json.Unmarshal(data, &stages))
	require.Len(t, stages, 2)
	assert.Equal(t, map[string]string{"type": "readers.las", "filename": "in.laz"}, stages[0])
	assert.Equal(t, "writers.gdal", stages[1]["type"])
	assert.Equal(t, "(Classification == 2)", stages[1]["where"])
	assert.Equal(t, "count", stages[1]["output_type"])
	assert.Equal(t, "out/in.tif", stages[1]["filename"])

	data, err = PipelineJSON(Point, "in.laz", "out.tif")
	require.NoError(t, err)
	assert.NotContains(t, string(data), `"where"`)
}

func TestNames(t *testing.T) {
	names := Names()
	assert.Equal(t, []string{"common", "common_no_flag", "pulse"}, names[:3])
	assert.Contains(t, names, "noise_with_withheld")
	assert.Len(t, names, 22)
}

// recordingRunner fakes pdal and lasgrid by writing the output raster
type recordingRunner struct {
	mu    sync.Mutex
	calls []extract.Cmd
	fail  string
}

func (r *recordingRunner) Run(_ context.Context, cmd extract.Cmd) (extract.Result, error) {
	r.mu.Lock()
	r.calls = append(r.calls, cmd)
	r.mu.Unlock()

	var output, input string
	if cmd.Stdin != nil {
		data, _ := io.ReadAll(cmd.Stdin)
		var stages []map[string]string
		if err := json.Unmarshal(data, &stages); err != nil {
			return extract.Result{}, err
		}
		input, output = stages[0]["filename"], stages[1]["filename"]
	} else {
		for i, a := range cmd.Args {
			if a == "-i" {
				input = cmd.Args[i+1]
			}
			if a == "-o" {
				output = cmd.Args[i+1]
			}
		}
	}
	if r.fail != "" && strings.Contains(input, r.fail) {
		return extract.Result{Stderr: []byte("readers.las: Unable to open")}, errors.New("exit status 1")
	}
	if err := os.WriteFile(output, []byte("tif"), 0644); err != nil {
		return extract.Result{}, err
	}
	if cmd.Stdin == nil {
		os.WriteFile(strings.TrimSuffix(output, ".tif")+".tfw", []byte("1"), 0644)
		return extract.Result{Stderr: []byte(`Please note that LAStools is not "free"`)}, nil
	}
	return extract.Result{}, nil
}

func laz(t *testing.T, dir string, names ...string) []string {
	t.Helper()
	var files []string
	for _, n := range names {
		p := filepath.Join(dir, n+".laz")
		require.NoError(t, os.WriteFile(p, []byte("laz"), 0644))
		files = append(files, p)
	}
	return files
}

func TestRenderResumes(t *testing.T) {
	dir := t.TempDir()
	files := laz(t, dir, "t1", "t2", "t3")
	runner := &recordingRunner{}
	r := &Renderer{Runner: runner, Tools: extract.DefaultTools(), Workers: 2, Log: zap.NewNop()}

	res, err := r.Render(context.Background(), Ground, files, dir)
	require.NoError(t, err)
	assert.Len(t, res.Rendered, 3)
	assert.Empty(t, res.Errors)
	assert.Len(t, runner.calls, 3)
	assert.Equal(t, "pdal", runner.calls[0].Name)
	assert.DirExists(t, filepath.Join(dir, "ground_raster", parallel.DefaultSentinel))

	res, err = r.Render(context.Background(), Ground, files, dir)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Pending)
	assert.Len(t, runner.calls, 3)
}

func TestRenderPartialFailure(t *testing.T) {
	dir := t.TempDir()
	files := laz(t, dir, "t1", "t2", "bad")
	runner := &recordingRunner{fail: "bad"}
	r := &Renderer{Runner: runner, Tools: extract.DefaultTools(), Workers: 3, Log: zap.NewNop()}

	res, err := r.Render(context.Background(), Pulse, files, dir)
	require.NoError(t, err)
	assert.Len(t, res.Rendered, 2)
	require.Len(t, res.Errors, 1)
	assert.Equal(t, files[2], res.Errors[0].Item)
	assert.FileExists(t, filepath.Join(dir, "pulse_raster", "pulse_errors.csv"))
	assert.NoDirExists(t, filepath.Join(dir, "pulse_raster", parallel.DefaultSentinel))

	// Only the failed tile is retried
	runner.fail = ""
	res, err = r.Render(context.Background(), Pulse, files, dir)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Pending)
	assert.Len(t, runner.calls, 4)
	assert.Equal(t, "lasgrid", runner.calls[3].Name)
}
