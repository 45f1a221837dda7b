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
	"github.com/wegman-software/lidarqc-go/internal/extract"
	"github.com/wegman-software/lidarqc-go/internal/logger"
	"github.com/wegman-software/lidarqc-go/internal/psid"
)

var psidCfg config.PsidConfig

var psidCmd = &cobra.Command{
	Use:   "psid",
	Short: "List point source ids per tile and compare them with flightlines",
	Long: `Enumerate the point source ids of every LAS/LAZ file in a folder with
pdal and append them to point_source_ids.txt. With --flightline and
--fid-field the dataset ids are compared with the flightline ids and any
mismatch is reported.`,
	Args: cobra.NoArgs,
	Run:  runPsid,
}

func init() {
	rootCmd.AddCommand(psidCmd)

	psidCmd.Flags().StringVarP(&psidCfg.InputDir, "input", "i", "", "Folder of LAS/LAZ files")
	psidCmd.Flags().StringVarP(&psidCfg.OutputDir, "output", "o", "", "Folder for point_source_ids.txt, defaults to the input folder")
	psidCmd.Flags().StringVarP(&psidCfg.Flightlines, "flightline", "f", "", "Flightline vector file (GeoJSON or GeoPackage)")
	psidCmd.Flags().StringVar(&psidCfg.FlightIDField, "fid-field", "", "Flightline attribute holding the flight id")
}

func runPsid(cmd *cobra.Command, args []string) {
	log := logger.Get()

	psidCfg.Workers = cfg.Workers
	psidCfg.Pdal = cfg.Tools.Pdal
	if psidCfg.OutputDir == "" {
		psidCfg.OutputDir = psidCfg.InputDir
	}
	if err := psidCfg.Validate(); err != nil {
		exitWithError("invalid configuration", err)
	}

	files, err := filepath.Glob(filepath.Join(psidCfg.InputDir, "*.la[sz]"))
	if err != nil {
		exitWithError("failed to list point cloud files", err)
	}
	sort.Strings(files)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	checker := psid.NewChecker(extract.ExecRunner{}, psidCfg.Pdal, psidCfg.Workers)
	res, err := checker.Check(ctx, files, psid.Options{
		Flightlines:   psidCfg.Flightlines,
		FlightIDField: psidCfg.FlightIDField,
		OutputDir:     psidCfg.OutputDir,
	})
	if err != nil {
		exitWithError("point source id check failed", err)
	}

	log.Info("Report written",
		zap.String("path", res.ReportPath),
		zap.Int("ids", len(psid.DatasetIDs(res.Report.Tiles))),
		zap.Int("issues", len(res.Report.Issues)))
}
