package pipeline

import (
	"time"

	"github.com/wegman-software/lidarqc-go/internal/parallel"
	"github.com/wegman-software/lidarqc-go/internal/record"
	"github.com/wegman-software/lidarqc-go/internal/report"
	"github.com/wegman-software/lidarqc-go/internal/summary"
	"github.com/wegman-software/lidarqc-go/internal/validate"
)

// SuppliedIndexProduct is the summary key of the supplied tile index rows
const SuppliedIndexProduct = "supplied_tile_index"

// ProductResult holds one product folder's outcome
type ProductResult struct {
	Product   string
	Kind      record.Kind
	Dir       string
	Files     int
	Evaluated []validate.Evaluated
	Errors    []parallel.ErrorInfo[string]
	ErrorsCSV string // Set when errors were written
	Summary   []summary.Row
	Duration  time.Duration
}

// Report holds the outcome of a QC run
type Report struct {
	RunID      string
	Started    time.Time
	Finished   time.Time
	Products   []*ProductResult
	Summaries  []report.ProductSummary
	GeoPackage string
	ParquetDir string
	DBStats    *report.LoadStats
}

// Tiles returns the number of tiles parsed across products
func (r *Report) Tiles() int {
	n := 0
	for _, p := range r.Products {
		n += len(p.Evaluated)
	}
	return n
}

// ErrorCount returns the number of tiles that failed extraction
func (r *Report) ErrorCount() int {
	n := 0
	for _, p := range r.Products {
		n += len(p.Errors)
	}
	return n
}
