// Package parallel fans per-tile work out over a bounded worker pool and
// keeps going when individual tiles fail.
package parallel

import (
	"context"
	"fmt"
	"runtime"
	"runtime/debug"
	"sort"
	"sync/atomic"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/wegman-software/lidarqc-go/internal/logger"
)

// Op processes one item
type Op[T, R any] func(ctx context.Context, item T) (R, error)

// Options control a Run
type Options struct {
	// Workers is the pool size; zero means one per CPU
	Workers int
	// ExtraArgs are the parameters shared by every invocation, recorded
	// with each failure
	ExtraArgs map[string]string
	// Label names the batch in progress logs
	Label string
	// OnProgress is called from the collecting goroutine after each item
	OnProgress func(Progress)
	Log        *zap.Logger
}

// ErrorInfo describes one failed item
type ErrorInfo[T any] struct {
	Item      T
	ExtraArgs map[string]string
	Err       error
}

func (e ErrorInfo[T]) Error() string {
	return fmt.Sprintf("%v: %v", e.Item, e.Err)
}

func (e ErrorInfo[T]) Unwrap() error { return e.Err }

type itemResult[R any] struct {
	index int
	value R
	err   error
}

// Run calls op once per item across a fixed pool of workers. Every item
// ends up in exactly one of the returned slices, both kept in input order.
// Once ctx is cancelled no further items are dispatched; those items are
// reported as failed with the context error.
func Run[T, R any](ctx context.Context, items []T, op Op[T, R], opts Options) ([]R, []ErrorInfo[T]) {
	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	log := opts.Log
	if log == nil {
		log = logger.Get()
	}

	tracker := NewProgressTracker(int64(len(items)), opts.Label)
	done := make(chan itemResult[R], workers)

	var inFlight atomic.Int64
	go func() {
		defer close(done)
		var g errgroup.Group
		g.SetLimit(workers)
		for i, item := range items {
			if err := ctx.Err(); err != nil {
				done <- itemResult[R]{index: i, err: err}
				continue
			}
			i, item := i, item
			g.Go(func() error {
				inFlight.Add(1)
				defer inFlight.Add(-1)
				v, err := call(ctx, op, item)
				done <- itemResult[R]{index: i, value: v, err: err}
				return nil
			})
		}
		g.Wait()
	}()

	type indexed struct {
		index int
		value R
	}
	var ok []indexed
	var failed []itemResult[R]

	step := len(items) / 20
	if step < 1 {
		step = 1
	}
	var count int64
	for res := range done {
		count++
		if res.err != nil {
			failed = append(failed, res)
			log.Warn("Item failed",
				zap.String("batch", opts.Label),
				zap.String("item", fmt.Sprint(items[res.index])),
				zap.Error(res.err))
		} else {
			ok = append(ok, indexed{index: res.index, value: res.value})
		}

		p := tracker.Calculate(count)
		if opts.OnProgress != nil {
			opts.OnProgress(p)
		}
		if count%int64(step) == 0 || count == int64(len(items)) {
			log.Info("Progress",
				zap.String("batch", opts.Label),
				zap.Int64("done", p.Current),
				zap.Int64("total", p.Total),
				zap.String("percent", fmt.Sprintf("%.0f%%", p.Percentage)),
				zap.Int64("running", inFlight.Load()),
				zap.String("rate", FormatThroughput(p.Throughput)),
				zap.String("eta", FormatETA(p.ETA)))
		}
	}

	sort.Slice(ok, func(i, j int) bool { return ok[i].index < ok[j].index })
	sort.Slice(failed, func(i, j int) bool { return failed[i].index < failed[j].index })

	results := make([]R, len(ok))
	for i, r := range ok {
		results[i] = r.value
	}
	errs := make([]ErrorInfo[T], len(failed))
	for i, f := range failed {
		errs[i] = ErrorInfo[T]{Item: items[f.index], ExtraArgs: opts.ExtraArgs, Err: f.err}
	}
	return results, errs
}

// call runs op, turning a panic into that item's error
func call[T, R any](ctx context.Context, op Op[T, R], item T) (v R, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v\n%s", r, debug.Stack())
		}
	}()
	return op(ctx, item)
}
