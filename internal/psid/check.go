package psid

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/wegman-software/lidarqc-go/internal/extract"
	"github.com/wegman-software/lidarqc-go/internal/logger"
	"github.com/wegman-software/lidarqc-go/internal/parallel"
)

// ErrorsCSV is written next to the report when tiles fail
const ErrorsCSV = "point_source_ids_errors.csv"

// Checker enumerates point source ids across a folder of tiles
type Checker struct {
	Extractor *Extractor
	Workers   int
	Log       *zap.Logger
}

// NewChecker creates a checker running pdal through runner
func NewChecker(runner extract.Runner, pdal string, workers int) *Checker {
	return &Checker{
		Extractor: &Extractor{Runner: runner, Tool: pdal},
		Workers:   workers,
		Log:       logger.Named("psid"),
	}
}

// Options select the optional flightline comparison and output folder
type Options struct {
	Flightlines   string
	FlightIDField string
	OutputDir     string
}

// Result is the outcome of a check
type Result struct {
	Report     *Report
	ReportPath string
	Errors     []parallel.ErrorInfo[string]
	ErrorsCSV  string // Set when errors were written
}

// Check extracts the ids of every file, compares them with the flightlines
// when given, and appends the report to point_source_ids.txt
func (c *Checker) Check(ctx context.Context, files []string, opts Options) (*Result, error) {
	log := c.Log
	if log == nil {
		log = logger.Named("psid")
	}
	start := time.Now()

	var flightIDs Set
	if opts.Flightlines != "" {
		var err error
		if flightIDs, err = FlightlineIDs(opts.Flightlines, opts.FlightIDField); err != nil {
			return nil, err
		}
	}

	log.Info("Extracting point source ID's now...", zap.Int("tiles", len(files)))
	tiles, errs := parallel.Run(ctx, files, c.Extractor.Extract, parallel.Options{
		Workers: c.Workers,
		Label:   "psid",
		Log:     log,
	})

	res := &Result{
		Report:     &Report{Tiles: tiles},
		ReportPath: filepath.Join(opts.OutputDir, ReportName),
		Errors:     errs,
	}

	if flightIDs != nil {
		res.Report.Compared = true
		res.Report.Issues = Compare(flightIDs, DatasetIDs(tiles))
		if len(res.Report.Issues) > 0 {
			log.Error(fmt.Sprintf("Flightline and point source ID's do not match. Check for info:\n%s", res.ReportPath))
		} else {
			log.Info("Flightline and point source ID's match")
		}
	}

	if err := WriteReport(res.ReportPath, res.Report); err != nil {
		return nil, err
	}

	if len(errs) > 0 {
		res.ErrorsCSV = filepath.Join(opts.OutputDir, ErrorsCSV)
		if err := parallel.WriteErrorsCSV(res.ErrorsCSV, errs); err != nil {
			return res, err
		}
		log.Error(fmt.Sprintf("%d of %d files failed, writing errors to %s", len(errs), len(files), ErrorsCSV))
	}

	log.Info("Point source ID check finished",
		zap.Int("tiles", len(tiles)),
		zap.Int("errors", len(errs)),
		zap.Duration("duration", time.Since(start).Round(time.Second)))
	return res, nil
}
