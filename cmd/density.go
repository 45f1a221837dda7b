package cmd

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"syscall"

	"go.uber.org/zap"

	"github.com/spf13/cobra"
	"github.com/wegman-software/lidarqc-go/internal/config"
	"github.com/wegman-software/lidarqc-go/internal/density"
	"github.com/wegman-software/lidarqc-go/internal/extract"
	"github.com/wegman-software/lidarqc-go/internal/logger"
)

var densityCfg config.DensityConfig

var densityCmd = &cobra.Command{
	Use:   "density",
	Short: "Render density rasters for a folder of point cloud tiles",
	Long: `Render one density raster per tile and filter into <input>/<filter>_raster,
to help find data voids. Tiles rendered by an earlier run are skipped, so an
interrupted run can be restarted with the same arguments.

Filters:
` + density.Describe(),
	Args: cobra.NoArgs,
	Run:  runDensity,
}

func init() {
	rootCmd.AddCommand(densityCmd)

	densityCmd.Flags().StringVarP(&densityCfg.InputDir, "input", "i", "", "Folder of LAS/LAZ files")
	densityCmd.Flags().StringSliceVarP(&densityCfg.Filters, "density-filter", "f", []string{string(density.Common)}, "Density filter (repeatable)")
}

func runDensity(cmd *cobra.Command, args []string) {
	log := logger.Get()

	densityCfg.Workers = cfg.Workers
	densityCfg.Pdal = cfg.Tools.Pdal
	densityCfg.Lasgrid = cfg.Tools.Lasgrid
	if err := densityCfg.Validate(); err != nil {
		exitWithError("invalid configuration", err)
	}

	filters, err := density.ExpandFilters(densityCfg.Filters)
	if err != nil {
		exitWithError("invalid density filter", err)
	}

	files, err := filepath.Glob(filepath.Join(densityCfg.InputDir, "*.la[sz]"))
	if err != nil {
		exitWithError("failed to list point cloud files", err)
	}
	sort.Strings(files)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	renderer := density.NewRenderer(extract.ExecRunner{}, cfg.Tools, densityCfg.Workers)
	failed := 0
	for _, f := range filters {
		res, err := renderer.Render(ctx, f, files, densityCfg.InputDir)
		if err != nil {
			exitWithError("density rasters failed", err)
		}
		if len(res.Rendered) == 0 && res.Pending > 0 {
			log.Error("No density raster files created", zap.String("filter", string(f)))
		}
		failed += len(res.Errors)
	}

	log.Info("Density rasters complete",
		zap.Int("filters", len(filters)),
		zap.Int("tiles", len(files)),
		zap.Int("errors", failed))
}
