package cmd

import (
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/spf13/cobra"
	"github.com/wegman-software/lidarqc-go/internal/config"
	"github.com/wegman-software/lidarqc-go/internal/logger"
)

var (
	cfg             = config.DefaultConfig()
	verbose         bool
	logFile         string
	metricsInterval time.Duration
)

var rootCmd = &cobra.Command{
	Use:   "lidarqc",
	Short: "Quality checks for LiDAR point cloud and elevation raster deliveries",
	Long: `lidarqc checks a delivered LiDAR dataset against the LINZ specification.

Features:
  - Parallel metadata extraction with gdalinfo and lasinfo
  - Tile scheme, naming, projection and raster/point cloud checks
  - Per-product summaries written to a GeoPackage, Parquet and PostGIS
  - Point source id enumeration and flightline comparison
  - Resumable density raster rendering with pdal and lasgrid`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		cfg.Verbose = verbose
		cfg.LogFile = logFile
		cfg.MetricsInterval = metricsInterval

		// Initialize logger with optional file output
		if logFile != "" {
			logger.InitWithFile(verbose, logFile)
		} else {
			logger.Init(verbose)
		}
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logger.Sync()
	},
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().IntVarP(&cfg.Workers, "workers", "j", cfg.Workers, "Number of parallel workers")

	// Logging and metrics flags
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "", "Path to log file for persistent logging (JSON format)")
	rootCmd.PersistentFlags().DurationVar(&metricsInterval, "metrics-interval", 30*time.Second, "Interval for system metrics logging (e.g., 10s, 1m), 0 to disable")

	// External tools
	rootCmd.PersistentFlags().StringVar(&cfg.Tools.Gdalinfo, "gdalinfo", cfg.Tools.Gdalinfo, "gdalinfo executable")
	rootCmd.PersistentFlags().StringVar(&cfg.Tools.Lasinfo, "lasinfo", cfg.Tools.Lasinfo, "lasinfo executable")
	rootCmd.PersistentFlags().StringVar(&cfg.Tools.Pdal, "pdal", cfg.Tools.Pdal, "pdal executable")
	rootCmd.PersistentFlags().StringVar(&cfg.Tools.Lasgrid, "lasgrid", cfg.Tools.Lasgrid, "lasgrid executable")

	// Database flags (persistent so they're available to all subcommands)
	rootCmd.PersistentFlags().StringVar(&cfg.DBHost, "db-host", cfg.DBHost, "PostgreSQL host")
	rootCmd.PersistentFlags().IntVar(&cfg.DBPort, "db-port", cfg.DBPort, "PostgreSQL port")
	rootCmd.PersistentFlags().StringVarP(&cfg.DBName, "db-name", "d", cfg.DBName, "PostgreSQL database name")
	rootCmd.PersistentFlags().StringVarP(&cfg.DBUser, "db-user", "U", cfg.DBUser, "PostgreSQL user")
	rootCmd.PersistentFlags().StringVarP(&cfg.DBPassword, "db-password", "W", cfg.DBPassword, "PostgreSQL password")
	rootCmd.PersistentFlags().StringVar(&cfg.DBSchema, "db-schema", cfg.DBSchema, "PostgreSQL schema")
}

func exitWithError(msg string, err error) {
	log := logger.Get()
	if err != nil {
		log.Error(msg, zap.Error(err))
	} else {
		log.Error(msg)
	}
	logger.Sync()
	os.Exit(1)
}
