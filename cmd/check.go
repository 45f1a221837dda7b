package cmd

import (
	"context"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"go.uber.org/zap"

	"github.com/spf13/cobra"
	"github.com/wegman-software/lidarqc-go/internal/logger"
	"github.com/wegman-software/lidarqc-go/internal/pipeline"
	"github.com/wegman-software/lidarqc-go/internal/tileindex"
)

var (
	schemeScale  int
	noLasinfoTxt bool
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Check a dataset and write the results to a GeoPackage",
	Long: `Gather metadata from every raster and point cloud tile of a delivery, run
the LINZ specification checks and write the results to a GeoPackage:

  - one polygon layer per product folder with per-tile attributes and checks
  - <product>_errors layers and CSV files for tiles that could not be read
  - a summary table with one row per product and check

Product folders are found by name (DEM, DSM, point cloud) unless named
explicitly with --ras-folder and --pc-folder.`,
	Args: cobra.NoArgs,
	Run:  runCheck,
}

func init() {
	rootCmd.AddCommand(checkCmd)

	checkCmd.Flags().StringVarP(&cfg.InputDir, "input", "i", "", "Directory containing the product folders")
	checkCmd.Flags().StringVarP(&cfg.OutputGpkg, "output", "o", "", "Output GeoPackage (.gpkg)")
	checkCmd.Flags().StringVarP(&cfg.TileIndex, "tile-index", "t", "", "Supplied project tile index (GeoJSON or GeoPackage)")
	checkCmd.Flags().StringSliceVarP(&cfg.RasterFolders, "ras-folder", "r", nil, "Raster product folder name (repeatable)")
	checkCmd.Flags().StringSliceVarP(&cfg.PointCloudFolders, "pc-folder", "p", nil, "Point cloud product folder name (repeatable)")
	checkCmd.Flags().StringVarP(&cfg.SchemeFile, "scheme", "s", "", "Official tile scheme (GeoJSON or GeoPackage)")
	checkCmd.Flags().StringVar(&cfg.SchemeLayer, "scheme-layer", "", "GeoPackage layer of the tile scheme")
	checkCmd.Flags().IntVar(&schemeScale, "scale", int(cfg.SchemeScale), "Tile scheme scale (500, 1000, 5000 or 10000)")
	checkCmd.Flags().StringVar(&cfg.StandardFile, "standard", "", "QC standard YAML, defaults to the LINZ specification")
	checkCmd.Flags().BoolVar(&noLasinfoTxt, "no-otxt", false, "Do not keep lasinfo reports in las_info_reports/")
	checkCmd.Flags().BoolVar(&cfg.LegacyProjection, "legacy-projection", false, "Only check the EPSG code of the projection")
	checkCmd.Flags().StringVar(&cfg.ParquetDir, "parquet-dir", "", "Also write summary and footprint Parquet files here")
	checkCmd.Flags().BoolVar(&cfg.ExportDB, "export-db", false, "Also load the summary and footprints into PostGIS")
}

func runCheck(cmd *cobra.Command, args []string) {
	log := logger.Get()

	scale, err := tileindex.ParseScale(strconv.Itoa(schemeScale))
	if err != nil {
		exitWithError("invalid scale", err)
	}
	cfg.SchemeScale = scale
	cfg.KeepReports = !noLasinfoTxt

	if err := cfg.Validate(); err != nil {
		exitWithError("invalid configuration", err)
	}

	log.Info("Starting dataset check",
		zap.String("input", cfg.InputDir),
		zap.String("output", cfg.OutputGpkg),
		zap.String("scheme", cfg.SchemeFile),
		zap.Int("scale", int(cfg.SchemeScale)),
		zap.Int("workers", cfg.Workers))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	coordinator, err := pipeline.NewCoordinator(cfg, nil)
	if err != nil {
		exitWithError("failed to prepare check", err)
	}

	rep, err := coordinator.Run(ctx)
	if err != nil {
		exitWithError("check failed", err)
	}

	for _, p := range rep.Products {
		log.Info("Product summary",
			zap.String("product", p.Product),
			zap.Int("files", p.Files),
			zap.Int("checked", len(p.Evaluated)),
			zap.Int("errors", len(p.Errors)))
	}
	if rep.DBStats != nil {
		log.Info("PostGIS export complete",
			zap.Int64("summary_rows", rep.DBStats.SummaryRows),
			zap.Int64("tile_rows", rep.DBStats.TileRows))
	}
}
