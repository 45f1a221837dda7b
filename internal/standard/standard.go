// Package standard holds the expected values a dataset is checked against.
package standard

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Standard is the full set of QC expectations. Fields left out of a YAML
// file keep their LINZ defaults.
type Standard struct {
	// Tiling controls the geometric tile checks
	Tiling Tiling `yaml:"tiling"`
	// Naming controls the file name grammar
	Naming Naming `yaml:"naming"`
	// Projection lists the required coordinate system tokens
	Projection Projection `yaml:"projection"`
	// Raster holds the elevation raster expectations
	Raster Raster `yaml:"raster"`
	// PointCloud holds the LAS header and content expectations
	PointCloud PointCloud `yaml:"point_cloud"`
}

type Tiling struct {
	// Tolerance is how far a tile edge may sit outside the official tile
	Tolerance float64 `yaml:"tolerance"`
}

type Naming struct {
	RasterProducts     []string `yaml:"raster_products"`
	PointCloudProducts []string `yaml:"point_cloud_products"`
	ScaleToken         string   `yaml:"scale_token"`
	// Years must lie strictly between MinYear and MaxYear
	MinYear int `yaml:"min_year"`
	MaxYear int `yaml:"max_year"`
}

type Projection struct {
	// Any spelling of the CRS name is accepted
	CRSNames []string `yaml:"crs_names"`
	// Any spelling of the datum name is accepted
	DatumNames []string `yaml:"datum_names"`
	EPSG       string   `yaml:"epsg"`
	// All vertical tokens must be present
	VerticalTokens []string `yaml:"vertical_tokens"`
	Label          string   `yaml:"label"`
	VerticalLabel  string   `yaml:"vertical_label"`
}

type Raster struct {
	NoData   float64 `yaml:"nodata"`
	Width    float64 `yaml:"width"`
	Height   float64 `yaml:"height"`
	PixelX   float64 `yaml:"pixel_x"`
	PixelY   float64 `yaml:"pixel_y"`
	DataType string  `yaml:"data_type"`
}

type PointCloud struct {
	FileSourceID     int          `yaml:"file_source_id"`
	GlobalEncoding   int          `yaml:"global_encoding"`
	Version          string       `yaml:"version"`
	PointDataFormats []int        `yaml:"point_data_formats"`
	ScaleFactors     [][3]float64 `yaml:"scale_factors"`
	// CoordinateTolerance bounds the point data vs header extent difference
	CoordinateTolerance float64 `yaml:"coordinate_tolerance"`
	CommonClasses       []int   `yaml:"common_classes"`
	NoiseClasses        []int   `yaml:"noise_classes"`
	PulseDensity        string  `yaml:"pulse_density"`
}

// Default returns the LINZ elevation data standard
func Default() *Standard {
	return &Standard{
		Tiling: Tiling{Tolerance: 0.015},
		Naming: Naming{
			RasterProducts:     []string{"DEM", "DSM"},
			PointCloudProducts: []string{"CL2"},
			ScaleToken:         "1000",
			MinYear:            2000,
			MaxYear:            2100,
		},
		Projection: Projection{
			CRSNames: []string{
				"NZGD2000 / New Zealand Transverse Mercator 2000",
				"NZGD2000_New_Zealand_Transverse_Mercator_2000",
			},
			DatumNames: []string{
				"New Zealand Geodetic Datum 2000",
				"New_Zealand_Geodetic_Datum_2000",
			},
			EPSG:           "2193",
			VerticalTokens: []string{"NZVD2016", "New Zealand Vertical Datum 2016"},
			Label:          "NZGD 2000 / New Zealand Transverse Mercator 2000, New Zealand Geodetic Datum 2000, 2193",
			VerticalLabel:  "NZVD2016, New Zealand Vertical Datum 2016",
		},
		Raster: Raster{
			NoData:   -9999,
			Width:    480,
			Height:   720,
			PixelX:   1,
			PixelY:   -1,
			DataType: "Float32",
		},
		PointCloud: PointCloud{
			FileSourceID:     0,
			GlobalEncoding:   17,
			Version:          "1.4",
			PointDataFormats: []int{6, 7, 8, 9, 10},
			ScaleFactors: [][3]float64{
				{0.001, 0.001, 0.001},
				{0.01, 0.01, 0.01},
				{0.01, 0.01, 0.001},
			},
			CoordinateTolerance: 0.001,
			CommonClasses:       []int{1, 2, 3, 4, 5, 6, 7, 9, 18},
			NoiseClasses:        []int{7, 18},
			PulseDensity:        "4 or 8",
		},
	}
}

// Load reads a standard from YAML on top of the defaults
func Load(path string) (*Standard, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read standard file: %w", err)
	}

	std := Default()
	if err := yaml.Unmarshal(data, std); err != nil {
		return nil, fmt.Errorf("failed to parse standard YAML: %w", err)
	}
	if err := std.Validate(); err != nil {
		return nil, fmt.Errorf("invalid standard %s: %w", path, err)
	}
	return std, nil
}

// Validate checks the standard is usable
func (s *Standard) Validate() error {
	if s.Tiling.Tolerance < 0 {
		return fmt.Errorf("tiling tolerance must not be negative")
	}
	if len(s.Naming.RasterProducts) == 0 && len(s.Naming.PointCloudProducts) == 0 {
		return fmt.Errorf("at least one product token is required")
	}
	if s.Naming.MinYear >= s.Naming.MaxYear {
		return fmt.Errorf("min_year (%d) must be below max_year (%d)", s.Naming.MinYear, s.Naming.MaxYear)
	}
	if s.Projection.EPSG == "" {
		return fmt.Errorf("projection epsg is required")
	}
	if s.Raster.Width <= 0 || s.Raster.Height <= 0 {
		return fmt.Errorf("raster width and height must be positive")
	}
	if s.PointCloud.CoordinateTolerance <= 0 {
		return fmt.Errorf("point cloud coordinate tolerance must be positive")
	}
	return nil
}

// FormatNumber renders a number the way the summary table shows it: rounded
// to four decimals without trailing zeros.
func FormatNumber(v float64) string {
	s := strconv.FormatFloat(v, 'f', 4, 64)
	s = strings.TrimRight(s, "0")
	s = strings.TrimSuffix(s, ".")
	if s == "-0" || s == "" {
		return "0"
	}
	return s
}

// JoinOr renders a list as "a, b, or c"
func JoinOr(items []string) string {
	switch len(items) {
	case 0:
		return ""
	case 1:
		return items[0]
	case 2:
		return items[0] + " or " + items[1]
	}
	return strings.Join(items[:len(items)-1], ", ") + ", or " + items[len(items)-1]
}

// ScaleFactorLabel renders the accepted scale factors
func (p PointCloud) ScaleFactorLabel() string {
	items := make([]string, len(p.ScaleFactors))
	for i, sf := range p.ScaleFactors {
		items[i] = fmt.Sprintf("[%s,%s,%s]", FormatNumber(sf[0]), FormatNumber(sf[1]), FormatNumber(sf[2]))
	}
	return JoinOr(items)
}

// PointDataFormatLabel renders the accepted point data formats
func (p PointCloud) PointDataFormatLabel() string {
	items := make([]string, len(p.PointDataFormats))
	for i, f := range p.PointDataFormats {
		items[i] = strconv.Itoa(f)
	}
	return JoinOr(items)
}

// CommonClassesLabel renders the expected classification codes as "1,2,3"
func (p PointCloud) CommonClassesLabel() string {
	return JoinInts(p.CommonClasses, ",")
}

// JoinInts joins integers with sep
func JoinInts(values []int, sep string) string {
	items := make([]string, len(values))
	for i, v := range values {
		items[i] = strconv.Itoa(v)
	}
	return strings.Join(items, sep)
}

// NameFormatLabel is the human readable file name pattern
func (n Naming) NameFormatLabel() string {
	return "product_sheet_date_scale_tile"
}
