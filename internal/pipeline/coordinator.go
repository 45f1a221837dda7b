// Package pipeline runs a full dataset check: extraction, validation,
// summaries and report output for every product folder.
package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/wegman-software/lidarqc-go/internal/config"
	"github.com/wegman-software/lidarqc-go/internal/extract"
	"github.com/wegman-software/lidarqc-go/internal/logger"
	"github.com/wegman-software/lidarqc-go/internal/metrics"
	"github.com/wegman-software/lidarqc-go/internal/parallel"
	"github.com/wegman-software/lidarqc-go/internal/record"
	"github.com/wegman-software/lidarqc-go/internal/report"
	"github.com/wegman-software/lidarqc-go/internal/standard"
	"github.com/wegman-software/lidarqc-go/internal/summary"
	"github.com/wegman-software/lidarqc-go/internal/tileindex"
	"github.com/wegman-software/lidarqc-go/internal/validate"
)

// Coordinator orchestrates a dataset check
type Coordinator struct {
	cfg    *config.Config
	runner extract.Runner

	std       *standard.Standard
	cache     *tileindex.Cache
	validator *validate.Validator
	log       *zap.Logger
}

// NewCoordinator loads the QC standard and tile scheme. A nil runner
// executes the configured tools.
func NewCoordinator(cfg *config.Config, runner extract.Runner) (*Coordinator, error) {
	if runner == nil {
		runner = extract.ExecRunner{}
	}
	log := logger.Get()

	std := standard.Default()
	if cfg.StandardFile != "" {
		var err error
		if std, err = standard.Load(cfg.StandardFile); err != nil {
			return nil, err
		}
	}

	schemeStart := time.Now()
	scheme, err := tileindex.LoadScheme(cfg.SchemeFile, cfg.SchemeLayer, cfg.SchemeScale, tileindex.DefaultSchemeFields())
	if err != nil {
		return nil, err
	}
	log.Info("Tile scheme loaded",
		zap.String("file", cfg.SchemeFile),
		zap.Int("tiles", scheme.Len()),
		zap.Duration("duration", time.Since(schemeStart).Round(time.Millisecond)))

	cache := tileindex.NewCache(nil)
	v := validate.New(scheme, cache, std)
	v.LegacyProjection = cfg.LegacyProjection

	return &Coordinator{
		cfg:       cfg,
		runner:    runner,
		std:       std,
		cache:     cache,
		validator: v,
		log:       log,
	}, nil
}

// Run checks every product folder and writes the reports
func (c *Coordinator) Run(ctx context.Context) (*Report, error) {
	log := c.log
	rep := &Report{
		RunID:      uuid.NewString(),
		Started:    time.Now(),
		GeoPackage: c.cfg.OutputGpkg,
	}
	log.Info("Script Started", zap.String("run_id", rep.RunID), zap.Time("at", rep.Started))

	// Start metrics collection in background if interval is set
	if c.cfg.MetricsInterval > 0 {
		metricsCtx, cancelMetrics := context.WithCancel(ctx)
		defer cancelMetrics()

		collector := metrics.NewCollector(c.cfg.MetricsInterval, log)
		go collector.Start(metricsCtx)
		log.Info("System metrics collection started",
			zap.Duration("interval", c.cfg.MetricsInterval))
	}

	dirs, err := config.FindDataSubdirs(c.cfg.InputDir, c.cfg.RasterFolders, c.cfg.PointCloudFolders)
	if err != nil {
		return nil, err
	}
	if len(dirs) == 0 {
		log.Warn("No product folders found", zap.String("input", c.cfg.InputDir))
	}

	used := make(map[string]bool)
	for _, dir := range dirs {
		product := dir.Name()
		if used[product] {
			product = product + "_" + dir.Kind.String()
		}
		used[product] = true

		res, err := c.checkProduct(ctx, dir, product)
		if err != nil {
			return nil, err
		}
		if res == nil {
			continue
		}
		rep.Products = append(rep.Products, res)
		if len(res.Evaluated) > 0 {
			rep.Summaries = append(rep.Summaries, report.ProductSummary{Product: product, Rows: res.Summary})
		}
	}

	if c.cfg.TileIndex != "" {
		idx, err := c.cache.Get(c.cfg.TileIndex)
		if err != nil {
			return nil, err
		}
		rep.Summaries = append(rep.Summaries, report.ProductSummary{
			Product: SuppliedIndexProduct,
			Rows:    summary.SuppliedIndex(idx.Count()),
		})
	}

	if err := c.writeGeoPackage(ctx, rep); err != nil {
		return nil, err
	}

	if c.cfg.ParquetDir != "" || c.cfg.ExportDB {
		if err := c.export(ctx, rep); err != nil {
			return nil, err
		}
	}

	rep.Finished = time.Now()
	log.Info("Script Finished",
		zap.Time("at", rep.Finished),
		zap.Int("tiles", rep.Tiles()),
		zap.Int("errors", rep.ErrorCount()),
		zap.Duration("duration", rep.Finished.Sub(rep.Started).Round(time.Second)))
	return rep, nil
}

// checkProduct extracts, validates and summarises one product folder. It
// returns nil when the folder holds no matching tiles.
func (c *Coordinator) checkProduct(ctx context.Context, dir config.ProductDir, product string) (*ProductResult, error) {
	log := c.log
	start := time.Now()

	files, err := dir.Files()
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", dir.Path, err)
	}
	if len(files) == 0 {
		log.Error(fmt.Sprintf("No files matching %s found in %s", strings.Join(dir.Kind.Patterns(), " or "), dir.Path))
		return nil, nil
	}

	extractor := extract.ForKind(dir.Kind, c.runner, c.cfg.Tools)
	opts := extract.Options{SuppliedTileIndex: c.cfg.TileIndex, KeepReports: c.cfg.KeepReports}

	extraArgs := map[string]string{"supplied_tile_index_file": c.cfg.TileIndex}
	if dir.Kind == record.KindPointCloud {
		extraArgs["keep_reports"] = fmt.Sprint(c.cfg.KeepReports)
	}

	log.Info(fmt.Sprintf("Starting '%s' processing...", product), zap.Int("tiles", len(files)))
	records, errs := parallel.Run(ctx, files, func(ctx context.Context, path string) (record.Record, error) {
		return extractor.Extract(ctx, path, opts)
	}, parallel.Options{
		Workers:   c.cfg.Workers,
		ExtraArgs: extraArgs,
		Label:     product,
		Log:       log,
	})

	res := &ProductResult{
		Product:   product,
		Kind:      dir.Kind,
		Dir:       dir.Path,
		Files:     len(files),
		Evaluated: c.validator.EvaluateAll(records),
		Errors:    errs,
	}
	if len(res.Evaluated) > 0 {
		res.Summary = summary.Summarise(dir.Kind, res.Evaluated, c.std)
	}

	if len(errs) > 0 {
		log.Error(fmt.Sprintf("%d files were unable to be parsed from %d files found in %s",
			len(errs), len(files), dir.Path))
		res.ErrorsCSV = filepath.Join(filepath.Dir(c.cfg.OutputGpkg), product+"_errors.csv")
		if err := parallel.WriteErrorsCSV(res.ErrorsCSV, errs); err != nil {
			return nil, err
		}
	}

	res.Duration = time.Since(start)
	log.Info("Product checked",
		zap.String("product", product),
		zap.Int("tiles", len(res.Evaluated)),
		zap.Int("errors", len(errs)),
		zap.Duration("duration", res.Duration.Round(time.Second)))
	return res, nil
}

func (c *Coordinator) writeGeoPackage(ctx context.Context, rep *Report) error {
	gpkg, err := report.CreateGeoPackage(ctx, c.cfg.OutputGpkg, c.std)
	if err != nil {
		return err
	}
	if err := c.fillGeoPackage(ctx, gpkg, rep); err != nil {
		gpkg.Close()
		return err
	}
	if err := gpkg.Close(); err != nil {
		return err
	}
	c.log.Info("GeoPackage written", zap.String("path", c.cfg.OutputGpkg))
	return nil
}

func (c *Coordinator) fillGeoPackage(ctx context.Context, gpkg *report.GeoPackage, rep *Report) error {
	for _, p := range rep.Products {
		if len(p.Evaluated) > 0 {
			if _, err := gpkg.WriteTiles(ctx, p.Product, p.Kind, p.Evaluated); err != nil {
				return err
			}
		}
		if err := gpkg.WriteErrors(ctx, p.Product, p.Errors); err != nil {
			return err
		}
	}
	if err := gpkg.WriteSummary(ctx, rep.Summaries); err != nil {
		return fmt.Errorf("failed to write summary table: %w", err)
	}
	if err := gpkg.WriteRun(ctx, report.Run{
		ID:       rep.RunID,
		InputDir: c.cfg.InputDir,
		Started:  rep.Started,
		Finished: time.Now(),
		Tiles:    rep.Tiles(),
		Errors:   rep.ErrorCount(),
	}); err != nil {
		return fmt.Errorf("failed to write run metadata: %w", err)
	}
	return nil
}

// export writes the Parquet files and loads them into PostGIS when asked
func (c *Coordinator) export(ctx context.Context, rep *Report) error {
	dir := c.cfg.ParquetDir
	if dir == "" {
		tmp, err := os.MkdirTemp("", "lidarqc-export-*")
		if err != nil {
			return fmt.Errorf("failed to create export directory: %w", err)
		}
		defer os.RemoveAll(tmp)
		dir = tmp
	} else {
		rep.ParquetDir = dir
	}

	var footprints []report.Footprint
	for _, p := range rep.Products {
		footprints = append(footprints, report.Footprints(rep.RunID, p.Product, p.Evaluated)...)
	}
	if err := report.WriteParquet(dir, report.FlattenSummaries(rep.RunID, rep.Summaries), footprints); err != nil {
		return fmt.Errorf("failed to write parquet export: %w", err)
	}
	c.log.Info("Parquet export written", zap.String("dir", dir), zap.Int("footprints", len(footprints)))

	if !c.cfg.ExportDB {
		return nil
	}
	loader, err := report.NewLoader(ctx, c.cfg.ConnectionString(), c.cfg.DBSchema, c.cfg.Workers)
	if err != nil {
		return err
	}
	defer loader.Close()

	stats, err := loader.Load(ctx, dir)
	if err != nil {
		return err
	}
	rep.DBStats = stats
	return nil
}
