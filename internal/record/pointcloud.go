package record

import (
	"fmt"
	"strings"

	"github.com/paulmach/orb"
)

// FlagHistogram is a "+-> flagged as ..." block: total flagged points
// and the per-class breakdown that follows it.
type FlagHistogram struct {
	Total   int64
	Classes Histogram
}

// PointCloudRecord is the metadata of one LAS/LAZ tile as reported by lasinfo
type PointCloudRecord struct {
	Base

	FileSourceID          *int
	GlobalEncoding        *int
	VersionMajor          *int
	VersionMinor          *int
	HeaderSize            *int
	PointDataFormat       *int
	PointDataRecordLength *int
	NumberOfPoints        *int64
	PointsByReturn        []int64
	ScaleFactor           *XYZ
	Offset                *XYZ
	HeaderMin             *XYZ
	HeaderMax             *XYZ

	ExtendedNumberOfPoints *int64
	ExtendedPointsByReturn []int64

	X                 *MinMax
	Y                 *MinMax
	Z                 *MinMax
	Intensity         *MinMax
	ReturnNumber      *MinMax
	ScanDirectionFlag *MinMax
	ScanAngleRank     *MinMax
	PointSourceID     *MinMax
	GPSTime           *MinMaxFloat

	FirstReturns    *int64
	LastReturns     *int64
	AreaM           *float64
	ReportedDensity *Returns
	Spacing         *Returns

	PointsHeaderCorrect                 *bool
	ExtendedPointsHeaderCorrect         *bool
	PointsByReturnHeaderCorrect         *bool
	ExtendedPointsByReturnHeaderCorrect *bool

	PulsesByNumberOfReturns []int64

	Classifications         Histogram
	ExtendedClassifications Histogram

	Overlap   *FlagHistogram
	Withheld  *FlagHistogram
	Synthetic *FlagHistogram
	Keypoints *FlagHistogram

	Warnings []string
	Errors   []string
}

func (p *PointCloudRecord) Kind() Kind { return KindPointCloud }

// Bounds is the header min/max box
func (p *PointCloudRecord) Bounds() (orb.Bound, bool) {
	if p.HeaderMin == nil || p.HeaderMax == nil {
		return orb.Bound{}, false
	}
	return orb.Bound{
		Min: orb.Point{p.HeaderMin.X, p.HeaderMin.Y},
		Max: orb.Point{p.HeaderMax.X, p.HeaderMax.Y},
	}, true
}

// PointDataBounds reconstructs the extent of the stored integer coordinates
// through scale and offset. Falls back to the header box when either is missing.
func (p *PointCloudRecord) PointDataBounds() (orb.Bound, bool) {
	if p.ScaleFactor == nil || p.Offset == nil || p.X == nil || p.Y == nil {
		return p.Bounds()
	}
	return orb.Bound{
		Min: orb.Point{
			float64(p.X.Min)*p.ScaleFactor.X + p.Offset.X,
			float64(p.Y.Min)*p.ScaleFactor.Y + p.Offset.Y,
		},
		Max: orb.Point{
			float64(p.X.Max)*p.ScaleFactor.X + p.Offset.X,
			float64(p.Y.Max)*p.ScaleFactor.Y + p.Offset.Y,
		},
	}, true
}

// Version returns "major.minor", or false when either part is missing
func (p *PointCloudRecord) Version() (string, bool) {
	if p.VersionMajor == nil || p.VersionMinor == nil {
		return "", false
	}
	return fmt.Sprintf("%d.%d", *p.VersionMajor, *p.VersionMinor), true
}

// PointDensity is the number of points per square metre. The extended
// by-return counts are preferred; the legacy counts are used only when the
// extended ones are absent.
func (p *PointCloudRecord) PointDensity() *float64 {
	if p.AreaM == nil || *p.AreaM == 0 {
		return nil
	}
	counts := p.ExtendedPointsByReturn
	if len(counts) == 0 {
		counts = p.PointsByReturn
	}
	if len(counts) == 0 {
		return nil
	}
	var total int64
	for _, c := range counts {
		total += c
	}
	d := float64(total) / *p.AreaM
	return &d
}

// PulseDensityFirst uses first returns as a proxy for emitted pulses
func (p *PointCloudRecord) PulseDensityFirst() *float64 {
	return perArea(p.FirstReturns, p.AreaM)
}

// PulseDensityLast is the last-return counterpart of PulseDensityFirst
func (p *PointCloudRecord) PulseDensityLast() *float64 {
	return perArea(p.LastReturns, p.AreaM)
}

func perArea(count *int64, area *float64) *float64 {
	if count == nil || *count == 0 || area == nil || *area == 0 {
		return nil
	}
	d := float64(*count) / *area
	return &d
}

// ClassCount returns the point count for a class code, nil when absent
func (p *PointCloudRecord) ClassCount(code int) *int64 {
	c, ok := p.Classifications[code]
	if !ok {
		return nil
	}
	n := c.Count
	return &n
}

// ExtraClasses lists the classes outside the common set as "(id) name: count"
func (p *PointCloudRecord) ExtraClasses(common []int) string {
	known := make(map[int]bool, len(common))
	for _, c := range common {
		known[c] = true
	}
	var parts []string
	for _, code := range p.Classifications.Codes() {
		if known[code] {
			continue
		}
		c := p.Classifications[code]
		parts = append(parts, fmt.Sprintf("(%d) %s: %d", code, c.Name, c.Count))
	}
	return strings.Join(parts, ", ")
}

// HasFlag reports whether a flag block was present and flagged at least one class
func HasFlag(f *FlagHistogram) bool {
	return f != nil && len(f.Classes) > 0
}
