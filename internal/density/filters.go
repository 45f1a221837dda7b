// Package density renders per-tile point density rasters used to find data
// voids in a point cloud delivery.
package density

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// Filter selects which points are counted into a density raster
type Filter string

const (
	Common             Filter = "common"
	CommonNoFlag       Filter = "common_no_flag"
	Pulse              Filter = "pulse"
	Ground             Filter = "ground"
	LowVeg             Filter = "low_veg"
	Buildings          Filter = "buildings"
	Unclassified       Filter = "unclassified"
	Noise              Filter = "noise"
	Point              Filter = "point"
	Withheld           Filter = "withheld"
	Overlap            Filter = "overlap"
	GroundNoFlag       Filter = "ground_no_flag"
	LowVegNoFlag       Filter = "low_veg_no_flag"
	BuildingsNoFlag    Filter = "buildings_no_flag"
	UnclassifiedNoFlag Filter = "unclassified_no_flag"
	NoiseNoFlag        Filter = "noise_no_flag"
	NoiseWithWithheld  Filter = "noise_with_withheld"
	AllVeg             Filter = "all_veg"
	MediumVeg          Filter = "medium_veg"
	HighVeg            Filter = "high_veg"
	Intensity          Filter = "intensity"
	Bridge             Filter = "bridge"
)

// CommonFilters is what "common" expands to
var CommonFilters = []Filter{Pulse, Ground, LowVeg, Buildings, Unclassified, Noise, Intensity}

// CommonNoFlagFilters is what "common_no_flag" expands to
var CommonNoFlagFilters = []Filter{GroundNoFlag, LowVegNoFlag, BuildingsNoFlag, UnclassifiedNoFlag, NoiseNoFlag}

// whereStatements are pdal expressions; || is OR and && is AND.
// Filters mapped to "" keep every point.
var whereStatements = map[Filter]string{
	Ground:             "(Classification == 2)",
	LowVeg:             "(Classification == 3)",
	Buildings:          "(Classification == 6)",
	Unclassified:       "(Classification == 1)",
	Noise:              "(Classification == 7 || Classification == 18)",
	Point:              "",
	Withheld:           "(Withheld == 1)",
	Overlap:            "(Overlap == 1)",
	GroundNoFlag:       "(Classification == 2 && Overlap == 0)",
	LowVegNoFlag:       "(Classification == 3 && Overlap == 0)",
	BuildingsNoFlag:    "(Classification == 6 && Overlap == 0)",
	UnclassifiedNoFlag: "(Classification == 1 && Withheld == 0 && Overlap == 0)",
	NoiseNoFlag:        "((Classification == 7 || Classification == 18) && Withheld == 0)",
	NoiseWithWithheld:  "((Classification == 7 || Classification == 18) && Withheld == 1)",
	AllVeg:             "(Classification == 3 || Classification == 4 || Classification == 5)",
	MediumVeg:          "(Classification == 4)",
	HighVeg:            "(Classification == 5)",
	Bridge:             "(Classification == 17)",
	Intensity:          "",
}

// ParseFilter validates a filter name
func ParseFilter(s string) (Filter, error) {
	f := Filter(strings.ToLower(strings.TrimSpace(s)))
	if f == Common || f == CommonNoFlag || f == Pulse {
		return f, nil
	}
	if _, ok := whereStatements[f]; ok {
		return f, nil
	}
	return "", fmt.Errorf("unknown density filter %q (valid: %s)", s, strings.Join(Names(), ", "))
}

// Names lists every accepted filter name
func Names() []string {
	names := []string{string(Common), string(CommonNoFlag), string(Pulse)}
	for f := range whereStatements {
		names = append(names, string(f))
	}
	sort.Strings(names[3:])
	return names
}

// ExpandFilters parses names and replaces the group filters with their
// members. Duplicates are dropped, first occurrence wins.
func ExpandFilters(names []string) ([]Filter, error) {
	var out []Filter
	seen := make(map[Filter]bool)
	add := func(f Filter) {
		if !seen[f] {
			seen[f] = true
			out = append(out, f)
		}
	}

	for _, n := range names {
		f, err := ParseFilter(n)
		if err != nil {
			return nil, err
		}
		switch f {
		case Common:
			for _, c := range CommonFilters {
				add(c)
			}
		case CommonNoFlag:
			for _, c := range CommonNoFlagFilters {
				add(c)
			}
		default:
			add(f)
		}
	}
	return out, nil
}

// Where returns the pdal expression for a filter, empty for none
func (f Filter) Where() string {
	return whereStatements[f]
}

// Dimension is the point dimension rasterised
func (f Filter) Dimension() string {
	if f == Intensity {
		return "Intensity"
	}
	return "Z"
}

// OutputType is the writers.gdal statistic per cell
func (f Filter) OutputType() string {
	if f == Intensity {
		return "stdev"
	}
	return "count"
}

// UsesLasgrid reports whether the filter is rendered by lasgrid instead of pdal
func (f Filter) UsesLasgrid() bool {
	return f == Pulse
}

// OutputDir is the folder, inside the point cloud folder, for this filter's rasters
func (f Filter) OutputDir() string {
	return string(f) + "_raster"
}

type stage map[string]string

// PipelineJSON builds the pdal pipeline rendering input into output
func PipelineJSON(f Filter, input, output string) ([]byte, error) {
	writer := stage{
		"type":        "writers.gdal",
		"resolution":  "1",
		"radius":      "1",
		"data_type":   "Uint16",
		"nodata":      "0",
		"dimension":   f.Dimension(),
		"output_type": f.OutputType(),
		"filename":    output,
	}
	if w := f.Where(); w != "" {
		writer["where"] = w
	}
	return json.Marshal([]stage{
		{"type": "readers.las", "filename": input},
		writer,
	})
}

// LasgridArgs renders first-return pulse density with lasgrid
func LasgridArgs(input, output string) []string {
	return []string{
		"-i", input,
		"-density",
		"-step", "1",
		"-nodata", "9999",
		"-o", output,
		"-first_only",
		"-drop_withheld",
		"-drop_synthetic",
		"-drop_keypoint",
		"-quiet",
	}
}
