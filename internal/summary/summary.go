// Package summary rolls per-tile check results up into product level rows.
package summary

import (
	"math"
	"sort"
	"strconv"

	"github.com/wegman-software/lidarqc-go/internal/record"
	"github.com/wegman-software/lidarqc-go/internal/standard"
	"github.com/wegman-software/lidarqc-go/internal/validate"
)

// Row is one line of the summary table
type Row struct {
	Check    string
	Standard string
	Value    string
}

const (
	yes  = "Yes"
	no   = "No"
	none = "None"
)

// FeatureCountCheck is always the last row of a product summary
const FeatureCountCheck = "Feature count"

// Ratio divides a by b, reporting 0 when either side is zero
func Ratio(a, b float64) float64 {
	if a == 0 || b == 0 {
		return 0
	}
	return a / b
}

// Summarise dispatches on the product kind
func Summarise(kind record.Kind, evaluated []validate.Evaluated, std *standard.Standard) []Row {
	if std == nil {
		std = standard.Default()
	}
	if kind == record.KindPointCloud {
		return PointCloud(evaluated, std)
	}
	return Raster(evaluated, std)
}

// SuppliedIndex is the single row describing the supplied tile index
func SuppliedIndex(featureCount int) []Row {
	return []Row{{Check: FeatureCountCheck, Value: strconv.Itoa(featureCount)}}
}

// allOK is "Yes" when the selected outcome passes for every record
func allOK(evaluated []validate.Evaluated, pick func(validate.Results) validate.Outcome) string {
	for _, ev := range evaluated {
		if !pick(ev.Results).OK() {
			return no
		}
	}
	return yes
}

func yesNo(b bool) string {
	if b {
		return yes
	}
	return no
}

// floatRange tracks min and max over values that may be missing
type floatRange struct {
	min, max float64
	lo, hi   bool
}

func (r *floatRange) addMin(v float64) {
	if !r.lo || v < r.min {
		r.min, r.lo = v, true
	}
}

func (r *floatRange) addMax(v float64) {
	if !r.hi || v > r.max {
		r.max, r.hi = v, true
	}
}

func (r *floatRange) minString() string {
	if !r.lo {
		return none
	}
	return standard.FormatNumber(r.min)
}

func (r *floatRange) maxString() string {
	if !r.hi {
		return none
	}
	return standard.FormatNumber(r.max)
}

func (r *floatRange) String() string {
	return r.minString() + " - " + r.maxString()
}

// mean averages the non-nil values using the zero-division policy
type mean struct {
	sum   float64
	count int
}

func (m *mean) add(v *float64) {
	if v == nil {
		return
	}
	m.sum += *v
	m.count++
}

func (m *mean) String() string {
	return standard.FormatNumber(Ratio(m.sum, float64(m.count)))
}

func featureCount(n int) Row {
	return Row{Check: FeatureCountCheck, Value: strconv.Itoa(n)}
}

// Raster summarises an elevation raster product
func Raster(evaluated []validate.Evaluated, std *standard.Standard) []Row {
	var pixels floatRange
	for _, ev := range evaluated {
		r, ok := ev.Record.(*record.RasterRecord)
		if !ok {
			continue
		}
		if r.MinPixel != nil && !math.IsNaN(*r.MinPixel) {
			pixels.addMin(*r.MinPixel)
		}
		if r.MaxPixel != nil && !math.IsNaN(*r.MaxPixel) {
			pixels.addMax(*r.MaxPixel)
		}
	}

	rs := std.Raster
	return []Row{
		{"Is the nodata value correct?", standard.FormatNumber(rs.NoData), allOK(evaluated, func(r validate.Results) validate.Outcome { return r.NoData })},
		{"Is width correct?", standard.FormatNumber(rs.Width), allOK(evaluated, func(r validate.Results) validate.Outcome { return r.Width })},
		{"Is height correct?", standard.FormatNumber(rs.Height), allOK(evaluated, func(r validate.Results) validate.Outcome { return r.Height })},
		{"Is pixel x correct?", standard.FormatNumber(rs.PixelX), allOK(evaluated, func(r validate.Results) validate.Outcome { return r.PixelX })},
		{"Is pixel y correct?", standard.FormatNumber(rs.PixelY), allOK(evaluated, func(r validate.Results) validate.Outcome { return r.PixelY })},
		{"Is origin x whole metre?", "no decimal values", allOK(evaluated, func(r validate.Results) validate.Outcome { return r.OriginX })},
		{"Is origin y whole metre?", "no decimal values", allOK(evaluated, func(r validate.Results) validate.Outcome { return r.OriginY })},
		{"Is file type correct?", rs.DataType, allOK(evaluated, func(r validate.Results) validate.Outcome { return r.DataType })},
		{"Minimum pixel value for dataset", "", pixels.minString()},
		{"Maximum pixel value for dataset", "", pixels.maxString()},
		{"Is the name format correct?", std.Naming.NameFormatLabel(), allOK(evaluated, func(r validate.Results) validate.Outcome { return r.NameFormat })},
		{"Does the tile name match LINZ official tiles?", "sheet and tile number", allOK(evaluated, func(r validate.Results) validate.Outcome { return r.TileMatch })},
		{"Does the coordinates match LINZ official tiles?", "", allOK(evaluated, func(r validate.Results) validate.Outcome { return r.Tiling })},
		{"Are all tiles within the supplied tile index?", "", allOK(evaluated, func(r validate.Results) validate.Outcome { return r.SuppliedIndex })},
		{"Does WKT have correct projection and horizontal datum flags?", std.Projection.Label, allOK(evaluated, func(r validate.Results) validate.Outcome { return r.Projection })},
		featureCount(len(evaluated)),
	}
}

// PointCloud summarises a classified point cloud product
func PointCloud(evaluated []validate.Evaluated, std *standard.Standard) []Row {
	var z, intensity, returns, scanAngle, psid, gps floatRange
	var pulseDensity, pointDensity mean
	var zeroClass, overlap, withheld bool
	var overlapPoints, totalPoints, noisePoints float64
	classes := make(map[int]bool)

	noise := make(map[int]bool, len(std.PointCloud.NoiseClasses))
	for _, c := range std.PointCloud.NoiseClasses {
		noise[c] = true
	}

	for _, ev := range evaluated {
		p, ok := ev.Record.(*record.PointCloudRecord)
		if !ok {
			continue
		}
		if p.HeaderMin != nil {
			z.addMin(p.HeaderMin.Z)
		}
		if p.HeaderMax != nil {
			z.addMax(p.HeaderMax.Z)
		}
		addIntRange(&intensity, p.Intensity)
		addIntRange(&returns, p.ReturnNumber)
		addIntRange(&scanAngle, p.ScanAngleRank)
		addIntRange(&psid, p.PointSourceID)
		if p.GPSTime != nil {
			gps.addMin(p.GPSTime.Min)
			gps.addMax(p.GPSTime.Max)
		}

		for code, c := range p.Classifications {
			classes[code] = true
			if noise[code] {
				noisePoints += float64(c.Count)
			}
		}
		if _, ok := p.Classifications[0]; ok {
			zeroClass = true
		}
		overlap = overlap || record.HasFlag(p.Overlap)
		withheld = withheld || record.HasFlag(p.Withheld)
		if p.Overlap != nil {
			overlapPoints += float64(p.Overlap.Total)
		}
		if p.ExtendedNumberOfPoints != nil {
			totalPoints += float64(*p.ExtendedNumberOfPoints)
		}

		pulseDensity.add(p.PulseDensityFirst())
		pointDensity.add(p.PointDensity())
	}

	codes := make([]int, 0, len(classes))
	for c := range classes {
		codes = append(codes, c)
	}
	sort.Ints(codes)

	pc := std.PointCloud
	pick := func(f func(validate.Results) validate.Outcome) string { return allOK(evaluated, f) }
	return []Row{
		{"Is file source ID correct?", strconv.Itoa(pc.FileSourceID), pick(func(r validate.Results) validate.Outcome { return r.FileSourceID })},
		{"Is global encoding correct?", strconv.Itoa(pc.GlobalEncoding), pick(func(r validate.Results) validate.Outcome { return r.GlobalEncoding })},
		{"Is LAS file version correct?", "LAS " + pc.Version, pick(func(r validate.Results) validate.Outcome { return r.Version })},
		{"Is point data format correct?", pc.PointDataFormatLabel(), pick(func(r validate.Results) validate.Outcome { return r.PointDataFormat })},
		{"Is scale factor correct?", pc.ScaleFactorLabel(), pick(func(r validate.Results) validate.Outcome { return r.ScaleFactor })},
		{"What is the Z value range?", "", z.String()},
		{"What is the intensity range?", "", intensity.String()},
		{"What is the return number range?", "", returns.String()},
		{"What is the scan angle range?", "", scanAngle.String()},
		{"What is the point source ID range?", "", psid.String()},
		{"What is the gps time range?", "", gps.String()},
		{"Dataset classification IDs", pc.CommonClassesLabel(), standard.JoinInts(codes, ",")},
		{"Are there any tiles with class 0?", "Class 0 points must be withheld", yesNo(zeroClass)},
		{"Pulse density for dataset by first returns", pc.PulseDensity, pulseDensity.String()},
		{"Point density for dataset", "", pointDensity.String()},
		{"Are there overlap points?", "", yesNo(overlap)},
		{"Are there withheld points?", "", yesNo(withheld)},
		{"Is the name format correct?", std.Naming.NameFormatLabel(), pick(func(r validate.Results) validate.Outcome { return r.NameFormat })},
		{"Does the tile name match LINZ official tiles?", "sheet and tile number", pick(func(r validate.Results) validate.Outcome { return r.TileMatch })},
		{"Are all tiles within the supplied tile index?", "", pick(func(r validate.Results) validate.Outcome { return r.SuppliedIndex })},
		{"Does the coordinates match LINZ official tiles?", "", pick(func(r validate.Results) validate.Outcome { return r.Tiling })},
		{"Does WKT have correct projection and horizontal datum flags?", std.Projection.Label, pick(func(r validate.Results) validate.Outcome { return r.Projection })},
		{"Does WKT have correct vertical datum flags?", std.Projection.VerticalLabel, pick(func(r validate.Results) validate.Outcome { return r.VerticalDatum })},
		{"Percent of total overlap points in dataset", "", standard.FormatNumber(Ratio(overlapPoints, totalPoints) * 100)},
		{"Percent of noise points in dataset", "", standard.FormatNumber(Ratio(noisePoints, totalPoints) * 100)},
		featureCount(len(evaluated)),
	}
}

func addIntRange(r *floatRange, mm *record.MinMax) {
	if mm == nil {
		return
	}
	r.addMin(float64(mm.Min))
	r.addMax(float64(mm.Max))
}
