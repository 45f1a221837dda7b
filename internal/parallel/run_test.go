package parallel

import (
	"context"
	"encoding/csv"
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestRunPartialFailure(t *testing.T) {
	items := []string{"a", "b", "c", "d", "e"}
	boom := errors.New("tool exited 1")

	results, errs := Run(context.Background(), items, func(_ context.Context, s string) (string, error) {
		if s == "c" {
			return "", boom
		}
		return s + s, nil
	}, Options{Workers: 3, ExtraArgs: map[string]string{"output_dir": "out"}, Log: zap.NewNop()})

	assert.Equal(t, []string{"aa", "bb", "dd", "ee"}, results)
	require.Len(t, errs, 1)
	assert.Equal(t, "c", errs[0].Item)
	assert.ErrorIs(t, errs[0], boom)
	assert.Equal(t, "out", errs[0].ExtraArgs["output_dir"])
}

func TestRunRecoversPanic(t *testing.T) {
	results, errs := Run(context.Background(), []int{1, 2, 3}, func(_ context.Context, n int) (int, error) {
		if n == 2 {
			panic("index out of range")
		}
		return n * 10, nil
	}, Options{Workers: 2, Log: zap.NewNop()})

	assert.Equal(t, []int{10, 30}, results)
	require.Len(t, errs, 1)
	assert.Equal(t, 2, errs[0].Item)
	assert.Contains(t, errs[0].Err.Error(), "panic: index out of range")
}

func TestRunCancelledBeforeDispatch(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var calls atomic.Int32
	results, errs := Run(ctx, []int{1, 2, 3}, func(_ context.Context, n int) (int, error) {
		calls.Add(1)
		return n, nil
	}, Options{Workers: 1, Log: zap.NewNop()})

	assert.Empty(t, results)
	require.Len(t, errs, 3)
	assert.Equal(t, int32(0), calls.Load())
	for _, e := range errs {
		assert.ErrorIs(t, e, context.Canceled)
	}
}

func TestRunProgressCallback(t *testing.T) {
	var last Progress
	var count int
	Run(context.Background(), []int{1, 2, 3, 4}, func(_ context.Context, n int) (int, error) {
		return n, nil
	}, Options{Workers: 2, Log: zap.NewNop(), OnProgress: func(p Progress) {
		count++
		last = p
	}})

	assert.Equal(t, 4, count)
	assert.Equal(t, int64(4), last.Current)
	assert.Equal(t, 100.0, last.Percentage)
}

func TestRunEmpty(t *testing.T) {
	results, errs := Run(context.Background(), nil, func(_ context.Context, n int) (int, error) {
		return n, nil
	}, Options{Log: zap.NewNop()})
	assert.Empty(t, results)
	assert.Empty(t, errs)
}

func TestWriteErrorsCSV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dem_errors.csv")
	errs := []ErrorInfo[string]{
		{Item: "/data/DEM_CB11_2021_1000_4233.tif", ExtraArgs: map[string]string{"tile_index": "x.gpkg", "b": "1"}, Err: errors.New("gdalinfo failed")},
		{Item: "/data/DEM_CB11_2021_1000_4234.tif", Err: errors.New("could not parse, really")},
	}
	require.NoError(t, WriteErrorsCSV(path, errs))

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)

	require.Len(t, rows, 3)
	assert.Equal(t, []string{"item", "extra_kwargs", "error"}, rows[0])
	assert.Equal(t, []string{"/data/DEM_CB11_2021_1000_4233.tif", "{b: 1, tile_index: x.gpkg}", "gdalinfo failed"}, rows[1])
	assert.Equal(t, "{}", rows[2][1])
	assert.Equal(t, "could not parse, really", rows[2][2])
}

func TestWriteErrorsCSVNothingToWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "none.csv")
	require.NoError(t, WriteErrorsCSV[string](path, nil))
	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}
