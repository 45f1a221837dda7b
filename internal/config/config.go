package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"time"

	"github.com/wegman-software/lidarqc-go/internal/extract"
	"github.com/wegman-software/lidarqc-go/internal/record"
	"github.com/wegman-software/lidarqc-go/internal/tileindex"
)

// FatalError aborts a run before any tile is processed
type FatalError struct {
	Msg string
}

func (e *FatalError) Error() string { return e.Msg }

func fatalf(format string, args ...any) error {
	return &FatalError{Msg: fmt.Sprintf(format, args...)}
}

// IsFatal reports whether err is, or wraps, a FatalError
func IsFatal(err error) bool {
	var fe *FatalError
	return errors.As(err, &fe)
}

// ProductDir is a product folder paired with the kind of tiles it holds
type ProductDir struct {
	Path string
	Kind record.Kind
}

// Name returns the folder name, used as the product key in reports
func (d ProductDir) Name() string {
	return filepath.Base(d.Path)
}

// Files returns the tiles in the folder matching the kind's patterns, sorted
func (d ProductDir) Files() ([]string, error) {
	var files []string
	for _, pattern := range d.Kind.Patterns() {
		matches, err := filepath.Glob(filepath.Join(d.Path, pattern))
		if err != nil {
			return nil, err
		}
		files = append(files, matches...)
	}
	sort.Strings(files)
	return files, nil
}

// FindDataSubdirs resolves the product folders to process. Named folders
// must exist; with none named, every sub-directory whose name looks like a
// raster or point cloud product is picked up.
func FindDataSubdirs(inputDir string, rasterFolders, pointCloudFolders []string) ([]ProductDir, error) {
	var dirs []ProductDir

	if len(rasterFolders) > 0 || len(pointCloudFolders) > 0 {
		add := func(names []string, kind record.Kind) error {
			for _, name := range names {
				p := filepath.Join(inputDir, name)
				info, err := os.Stat(p)
				if err != nil || !info.IsDir() {
					return fatalf("'%s' is not a folder/directory", p)
				}
				dirs = append(dirs, ProductDir{Path: p, Kind: kind})
			}
			return nil
		}
		if err := add(rasterFolders, record.KindRaster); err != nil {
			return nil, err
		}
		if err := add(pointCloudFolders, record.KindPointCloud); err != nil {
			return nil, err
		}
		return dirs, nil
	}

	entries, err := os.ReadDir(inputDir)
	if err != nil {
		return nil, fatalf("cannot read input directory: %v", err)
	}
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		p := filepath.Join(inputDir, e.Name())
		if record.IsRasterDir(e.Name()) {
			dirs = append(dirs, ProductDir{Path: p, Kind: record.KindRaster})
		}
		if record.IsPointCloudDir(e.Name()) {
			dirs = append(dirs, ProductDir{Path: p, Kind: record.KindPointCloud})
		}
	}
	return dirs, nil
}

// Config holds the global configuration for a QC run
type Config struct {
	// Input settings
	InputDir          string
	RasterFolders     []string // Explicit raster product folder names
	PointCloudFolders []string // Explicit point cloud product folder names
	TileIndex         string   // Supplied tile index (GeoJSON or GeoPackage)

	// Tile scheme settings
	SchemeFile   string // Official tile scheme vector file
	SchemeLayer  string // GeoPackage layer name, empty for the first layer
	SchemeScale  tileindex.Scale
	StandardFile string // QC standard YAML, empty for the built-in defaults

	// Output settings
	OutputGpkg       string
	ParquetDir       string // Directory for summary Parquet export, empty to skip
	KeepReports      bool   // Keep lasinfo text reports in las_info_reports/
	LegacyProjection bool   // Check only the EPSG code in raster WKT

	// Database settings (summary export)
	ExportDB   bool
	DBHost     string
	DBPort     int
	DBName     string
	DBUser     string
	DBPassword string
	DBSchema   string

	// Processing settings
	Workers int
	Tools   extract.Tools

	Verbose bool

	// Logging and metrics
	LogFile         string        // Path to log file (empty = no file logging)
	MetricsInterval time.Duration // Interval for system metrics logging
}

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		SchemeScale:     tileindex.Scale1000,
		KeepReports:     true,
		DBHost:          "localhost",
		DBPort:          5432,
		DBName:          "lidar_qc",
		DBUser:          "postgres",
		DBSchema:        "public",
		Workers:         runtime.NumCPU(),
		Tools:           extract.DefaultTools(),
		LogFile:         "",
		MetricsInterval: 30 * time.Second,
	}
}

// ConnectionString returns a PostgreSQL connection string
func (c *Config) ConnectionString() string {
	connStr := fmt.Sprintf(
		"host=%s port=%d dbname=%s user=%s sslmode=disable",
		c.DBHost, c.DBPort, c.DBName, c.DBUser,
	)
	if c.DBPassword != "" {
		connStr += fmt.Sprintf(" password=%s", c.DBPassword)
	}
	return connStr
}

// Validate checks that the configuration is valid. Problems with the
// inputs a run depends on are returned as FatalError.
func (c *Config) Validate() error {
	if c.InputDir == "" {
		return fmt.Errorf("input directory is required")
	}
	if info, err := os.Stat(c.InputDir); err != nil || !info.IsDir() {
		return fatalf("'%s' is not a folder/directory", c.InputDir)
	}
	if err := ValidateOutputGpkg(c.OutputGpkg); err != nil {
		return err
	}
	if c.SchemeFile == "" {
		return fatalf("tile scheme file is required")
	}
	if _, err := os.Stat(c.SchemeFile); err != nil {
		return fatalf("tile scheme file %s not found", c.SchemeFile)
	}
	if c.TileIndex != "" {
		if _, err := os.Stat(c.TileIndex); err != nil {
			return fatalf("tile index %s not found", c.TileIndex)
		}
	}
	if c.Workers < 1 {
		return fmt.Errorf("workers must be at least 1")
	}
	return nil
}

// ValidateOutputGpkg requires a .gpkg path in an existing, writable folder
func ValidateOutputGpkg(path string) error {
	if path == "" {
		return fmt.Errorf("output geopackage is required")
	}
	if filepath.Ext(path) != ".gpkg" {
		return fatalf("output %s must end in .gpkg", path)
	}
	return validateParent(path)
}

func validateParent(path string) error {
	parent := filepath.Dir(path)
	info, err := os.Stat(parent)
	if err != nil || !info.IsDir() {
		return fatalf("output %s must be in a folder that exists", path)
	}
	probe, err := os.CreateTemp(parent, ".lidarqc-*")
	if err != nil {
		return fatalf("output %s must be in a folder that is writable", path)
	}
	probe.Close()
	os.Remove(probe.Name())
	return nil
}

// PsidConfig holds settings for the point source id check
type PsidConfig struct {
	InputDir      string
	OutputDir     string // Report folder, empty for the input folder
	Flightlines   string // Flightline vector file, empty to skip comparison
	FlightIDField string
	Workers       int
	Pdal          string
}

// Validate checks the point source id settings
func (c *PsidConfig) Validate() error {
	if err := requireDir(c.InputDir, "*.la[sz]", "LAS or LAZ"); err != nil {
		return err
	}
	if c.Flightlines != "" {
		ext := strings.ToLower(filepath.Ext(c.Flightlines))
		if ext != ".gpkg" && ext != ".geojson" && ext != ".json" {
			return fatalf("flightlines %s must end in .gpkg or .geojson", c.Flightlines)
		}
		if _, err := os.Stat(c.Flightlines); err != nil {
			return fatalf("flightlines %s not found", c.Flightlines)
		}
		if c.FlightIDField == "" {
			return fmt.Errorf("flight id field is required with flightlines")
		}
	} else if c.FlightIDField != "" {
		return fmt.Errorf("flightlines are required with a flight id field")
	}
	if c.OutputDir != "" {
		if info, err := os.Stat(c.OutputDir); err != nil || !info.IsDir() {
			return fatalf("'%s' is not a folder/directory", c.OutputDir)
		}
	}
	if c.Workers < 1 {
		return fmt.Errorf("workers must be at least 1")
	}
	return nil
}

// DensityConfig holds settings for density raster rendering
type DensityConfig struct {
	InputDir string
	Filters  []string
	Workers  int
	Pdal     string
	Lasgrid  string
}

// Validate checks the density settings
func (c *DensityConfig) Validate() error {
	if err := requireDir(c.InputDir, "*.la[sz]", "LAS or LAZ"); err != nil {
		return err
	}
	if len(c.Filters) == 0 {
		return fmt.Errorf("at least one filter is required")
	}
	if c.Workers < 1 {
		return fmt.Errorf("workers must be at least 1")
	}
	return nil
}

func requireDir(dir, pattern, what string) error {
	if dir == "" {
		return fmt.Errorf("input directory is required")
	}
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		return fatalf("'%s' is not a folder/directory", dir)
	}
	matches, _ := filepath.Glob(filepath.Join(dir, pattern))
	if len(matches) == 0 {
		return fatalf("input directory does not contain %s files", what)
	}
	return nil
}
