// Package extract turns external tool output into tile metadata records.
package extract

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/wegman-software/lidarqc-go/internal/logger"
	"github.com/wegman-software/lidarqc-go/internal/record"
)

// ReportDirName is the folder, next to the tiles, holding kept lasinfo reports
const ReportDirName = "las_info_reports"

// Options control a single extraction
type Options struct {
	// SuppliedTileIndex is carried into the record for containment checks
	SuppliedTileIndex string
	// KeepReports writes lasinfo text reports and reuses existing ones
	KeepReports bool
}

// Extractor produces a record for one tile file
type Extractor interface {
	Extract(ctx context.Context, path string, opts Options) (record.Record, error)
}

// ForKind returns the extractor for a tile kind
func ForKind(kind record.Kind, runner Runner, tools Tools) Extractor {
	if kind == record.KindPointCloud {
		return &PointCloudExtractor{Runner: runner, Tool: tools.Lasinfo}
	}
	return &RasterExtractor{Runner: runner, Tool: tools.Gdalinfo}
}

func stem(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// RasterExtractor reads gdalinfo JSON
type RasterExtractor struct {
	Runner Runner
	Tool   string
}

func (e *RasterExtractor) Extract(ctx context.Context, path string, opts Options) (record.Record, error) {
	res, err := e.Runner.Run(ctx, Cmd{Name: e.Tool, Args: []string{"-stats", "-mm", "-json", path}})
	if err != nil {
		return nil, &ExtractionError{Path: path, Tool: e.Tool, Stderr: string(res.Stderr), Err: err}
	}
	if len(strings.TrimSpace(string(res.Stdout))) == 0 {
		return nil, &ExtractionError{Path: path, Tool: e.Tool, Stderr: string(res.Stderr), Err: errors.New("no output")}
	}

	rec, err := ParseGdalinfo(res.Stdout)
	if err != nil {
		return nil, &ExtractionError{Path: path, Tool: e.Tool, Err: err}
	}
	rec.FileName = stem(path)
	rec.FileExtension = filepath.Ext(path)
	rec.SuppliedIndexPath = opts.SuppliedTileIndex
	rec.ProductType = record.ProductTypeFromDir(filepath.Base(filepath.Dir(path)))

	var missing []string
	if rec.UpperLeft == nil {
		missing = append(missing, "upperLeft")
	}
	if rec.LowerRight == nil {
		missing = append(missing, "lowerRight")
	}
	if len(missing) > 0 {
		return nil, &ParseError{Path: path, Fields: missing}
	}
	return rec, nil
}

// PointCloudExtractor reads lasinfo text reports
type PointCloudExtractor struct {
	Runner Runner
	Tool   string
}

// ReportPath is where the kept lasinfo report for a tile lives
func ReportPath(tilePath string) string {
	return filepath.Join(filepath.Dir(tilePath), ReportDirName, stem(tilePath)+".txt")
}

func (e *PointCloudExtractor) Extract(ctx context.Context, path string, opts Options) (record.Record, error) {
	text, err := e.report(ctx, path, opts)
	if err != nil {
		return nil, err
	}

	rec := ParseLasinfo(text)
	rec.FileName = stem(path)
	rec.FileExtension = filepath.Ext(path)
	rec.SuppliedIndexPath = opts.SuppliedTileIndex

	var missing []string
	if rec.HeaderMin == nil {
		missing = append(missing, "min x y z")
	}
	if rec.HeaderMax == nil {
		missing = append(missing, "max x y z")
	}
	if len(missing) > 0 {
		return nil, &ParseError{Path: path, Fields: missing}
	}
	return rec, nil
}

func (e *PointCloudExtractor) report(ctx context.Context, path string, opts Options) (string, error) {
	args := []string{"-cd", "-repair_counters", "-i", path}

	var reportPath string
	if opts.KeepReports {
		reportPath = ReportPath(path)
		if data, err := os.ReadFile(reportPath); err == nil && len(data) > 0 {
			logger.Get().Debug("Reusing lasinfo report", zap.String("report", reportPath))
			return string(data), nil
		}
		if err := os.MkdirAll(filepath.Dir(reportPath), 0755); err != nil {
			return "", fmt.Errorf("failed to create report directory: %w", err)
		}
		args = append(args, "-o", reportPath)
	} else {
		args = append(args, "-stdout")
	}

	res, err := e.Runner.Run(ctx, Cmd{Name: e.Tool, Args: args})
	if err != nil {
		return "", &ExtractionError{Path: path, Tool: e.Tool, Stderr: string(res.Stderr), Err: err}
	}
	if len(res.Stderr) > 0 && !IsToolNotice(res.Stderr) {
		return "", &ExtractionError{Path: path, Tool: e.Tool, Stderr: string(res.Stderr)}
	}

	var text string
	if reportPath != "" {
		data, err := os.ReadFile(reportPath)
		if err != nil {
			return "", &ExtractionError{Path: path, Tool: e.Tool, Err: err}
		}
		text = string(data)
	} else {
		text = string(res.Stdout)
	}
	if strings.TrimSpace(text) == "" {
		return "", &ExtractionError{Path: path, Tool: e.Tool, Err: errors.New("no output")}
	}
	return text, nil
}
