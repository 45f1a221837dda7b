package report

import (
	"strings"

	"github.com/wegman-software/lidarqc-go/internal/record"
	"github.com/wegman-software/lidarqc-go/internal/standard"
	"github.com/wegman-software/lidarqc-go/internal/validate"
)

// column is one attribute of a tile feature layer
type column struct {
	name    string
	sqlType string
	value   func(e validate.Evaluated) any
}

func str(s string) any { return s }

func optString(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

func optFloat(f *float64) any {
	if f == nil {
		return nil
	}
	return *f
}

func optInt(i *int) any {
	if i == nil {
		return nil
	}
	return int64(*i)
}

func optInt64(i *int64) any {
	if i == nil {
		return nil
	}
	return *i
}

// outcome stores Unknown as NULL
func outcome(o validate.Outcome) any {
	b := o.Bool()
	if b == nil {
		return nil
	}
	if *b {
		return int64(1)
	}
	return int64(0)
}

func raster(e validate.Evaluated) *record.RasterRecord {
	r, _ := e.Record.(*record.RasterRecord)
	return r
}

func cloud(e validate.Evaluated) *record.PointCloudRecord {
	p, _ := e.Record.(*record.PointCloudRecord)
	return p
}

func commonChecks() []column {
	return []column{
		{"is_tiling_correct", "BOOLEAN", func(e validate.Evaluated) any { return outcome(e.Results.Tiling) }},
		{"is_file_name_correct_format", "BOOLEAN", func(e validate.Evaluated) any { return outcome(e.Results.NameFormat) }},
		{"is_file_name_correct_tile", "BOOLEAN", func(e validate.Evaluated) any { return outcome(e.Results.TileMatch) }},
		{"is_projection_correct", "BOOLEAN", func(e validate.Evaluated) any { return outcome(e.Results.Projection) }},
	}
}

func rasterColumns() []column {
	xy := func(pick func(*record.RasterRecord) *record.XY, y bool) func(validate.Evaluated) any {
		return func(e validate.Evaluated) any {
			v := pick(raster(e))
			if v == nil {
				return nil
			}
			if y {
				return v.Y
			}
			return v.X
		}
	}
	size := func(r *record.RasterRecord) *record.XY { return r.Size }
	pixel := func(r *record.RasterRecord) *record.XY { return r.PixelSize }
	origin := func(r *record.RasterRecord) *record.XY { return r.Origin }

	cols := []column{
		{"name", "TEXT", func(e validate.Evaluated) any { return str(e.Record.Name()) }},
		{"width", "REAL", xy(size, false)},
		{"height", "REAL", xy(size, true)},
		{"resolution_x", "REAL", xy(pixel, false)},
		{"resolution_y", "REAL", xy(pixel, true)},
		{"nodata", "REAL", func(e validate.Evaluated) any { return optFloat(raster(e).NoData) }},
		{"filetype", "TEXT", func(e validate.Evaluated) any { return optString(raster(e).DataType) }},
		{"min_pixel_value", "REAL", func(e validate.Evaluated) any { return optFloat(raster(e).MinPixel) }},
		{"max_pixel_value", "REAL", func(e validate.Evaluated) any { return optFloat(raster(e).MaxPixel) }},
		{"origin_x", "REAL", xy(origin, false)},
		{"origin_y", "REAL", xy(origin, true)},
	}
	cols = append(cols, commonChecks()...)
	return append(cols,
		column{"is_in_supplied_tile_index", "BOOLEAN", func(e validate.Evaluated) any { return outcome(e.Results.SuppliedIndex) }},
	)
}

func flagList(f *record.FlagHistogram) any {
	if !record.HasFlag(f) {
		return nil
	}
	return f.Classes.String()
}

func pointCloudColumns(std *standard.Standard) []column {
	minmax := func(pick func(*record.PointCloudRecord) *record.MinMax, max bool) func(validate.Evaluated) any {
		return func(e validate.Evaluated) any {
			m := pick(cloud(e))
			if m == nil {
				return nil
			}
			if max {
				return m.Max
			}
			return m.Min
		}
	}
	header := func(max bool, axis int) func(validate.Evaluated) any {
		return func(e validate.Evaluated) any {
			p := cloud(e)
			v := p.HeaderMin
			if max {
				v = p.HeaderMax
			}
			if v == nil {
				return nil
			}
			return [3]float64{v.X, v.Y, v.Z}[axis]
		}
	}
	class := func(code int) func(validate.Evaluated) any {
		return func(e validate.Evaluated) any { return optInt64(cloud(e).ClassCount(code)) }
	}
	intensity := func(p *record.PointCloudRecord) *record.MinMax { return p.Intensity }
	returns := func(p *record.PointCloudRecord) *record.MinMax { return p.ReturnNumber }
	angle := func(p *record.PointCloudRecord) *record.MinMax { return p.ScanAngleRank }
	psid := func(p *record.PointCloudRecord) *record.MinMax { return p.PointSourceID }

	cols := []column{
		{"filename", "TEXT", func(e validate.Evaluated) any { return str(e.Record.Name()) }},
		{"file_source_id", "INTEGER", func(e validate.Evaluated) any { return optInt(cloud(e).FileSourceID) }},
		{"encoding", "INTEGER", func(e validate.Evaluated) any { return optInt(cloud(e).GlobalEncoding) }},
		{"las_version", "TEXT", func(e validate.Evaluated) any {
			v, ok := cloud(e).Version()
			if !ok {
				return nil
			}
			return v
		}},
		{"point_data_format", "INTEGER", func(e validate.Evaluated) any { return optInt(cloud(e).PointDataFormat) }},
		{"scale_factor", "TEXT", func(e validate.Evaluated) any {
			if sf := cloud(e).ScaleFactor; sf != nil {
				return sf.String()
			}
			return "None"
		}},
		{"header_min_x", "REAL", header(false, 0)},
		{"header_max_x", "REAL", header(true, 0)},
		{"header_min_y", "REAL", header(false, 1)},
		{"header_max_y", "REAL", header(true, 1)},
		{"header_min_z", "REAL", header(false, 2)},
		{"header_max_z", "REAL", header(true, 2)},
		{"point_coordinates_match_header", "BOOLEAN", func(e validate.Evaluated) any { return outcome(e.Results.PointCoordinates) }},
		{"intensity_min", "INTEGER", minmax(intensity, false)},
		{"intensity_max", "INTEGER", minmax(intensity, true)},
		{"return_number_min", "INTEGER", minmax(returns, false)},
		{"return_number_max", "INTEGER", minmax(returns, true)},
		{"scan_angle_min", "INTEGER", minmax(angle, false)},
		{"scan_angle_max", "INTEGER", minmax(angle, true)},
		{"point_source_id_min", "REAL", minmax(psid, false)},
		{"point_source_id_max", "REAL", minmax(psid, true)},
		{"gps_time_min", "REAL", func(e validate.Evaluated) any {
			if g := cloud(e).GPSTime; g != nil {
				return g.Min
			}
			return nil
		}},
		{"gps_time_max", "REAL", func(e validate.Evaluated) any {
			if g := cloud(e).GPSTime; g != nil {
				return g.Max
			}
			return nil
		}},
	}
	cols = append(cols, commonChecks()...)
	return append(cols,
		column{"is_vertical_datum_correct", "BOOLEAN", func(e validate.Evaluated) any { return outcome(e.Results.VerticalDatum) }},
		column{"is_in_supplied_tile_index", "BOOLEAN", func(e validate.Evaluated) any { return outcome(e.Results.SuppliedIndex) }},
		column{"classifications", "TEXT", func(e validate.Evaluated) any { return cloud(e).Classifications.String() }},
		column{"unclassified", "INTEGER", class(1)},
		column{"ground", "INTEGER", class(2)},
		column{"low_veg", "INTEGER", class(3)},
		column{"med_veg", "INTEGER", class(4)},
		column{"high_veg", "INTEGER", class(5)},
		column{"building", "INTEGER", class(6)},
		column{"low_noise", "INTEGER", class(7)},
		column{"water", "INTEGER", class(9)},
		column{"high_noise", "INTEGER", class(18)},
		column{"other_classes", "TEXT", func(e validate.Evaluated) any {
			return cloud(e).ExtraClasses(std.PointCloud.CommonClasses)
		}},
		column{"overlap_flag", "TEXT", func(e validate.Evaluated) any { return flagList(cloud(e).Overlap) }},
		column{"withheld_flag", "TEXT", func(e validate.Evaluated) any { return flagList(cloud(e).Withheld) }},
		column{"synthetic_flag", "TEXT", func(e validate.Evaluated) any { return flagList(cloud(e).Synthetic) }},
		column{"keypoints_flag", "TEXT", func(e validate.Evaluated) any { return flagList(cloud(e).Keypoints) }},
		column{"extended_classes", "TEXT", func(e validate.Evaluated) any {
			if h := cloud(e).ExtendedClassifications; len(h) > 0 {
				return h.String()
			}
			return nil
		}},
		column{"point_density", "REAL", func(e validate.Evaluated) any { return optFloat(cloud(e).PointDensity()) }},
		column{"pulse_density_first", "REAL", func(e validate.Evaluated) any { return optFloat(cloud(e).PulseDensityFirst()) }},
		column{"pulse_density_last", "REAL", func(e validate.Evaluated) any { return optFloat(cloud(e).PulseDensityLast()) }},
		column{"warnings", "TEXT", func(e validate.Evaluated) any { return joinNonEmpty(cloud(e).Warnings) }},
		column{"errors", "TEXT", func(e validate.Evaluated) any { return joinNonEmpty(cloud(e).Errors) }},
	)
}

func joinNonEmpty(lines []string) any {
	if len(lines) == 0 {
		return nil
	}
	return strings.Join(lines, "; ")
}

// columnsFor returns the feature attribute schema of a tile kind
func columnsFor(kind record.Kind, std *standard.Standard) []column {
	if kind == record.KindPointCloud {
		return pointCloudColumns(std)
	}
	return rasterColumns()
}
