package record

import (
	"fmt"
	"sort"
	"strings"

	"github.com/paulmach/orb"
)

// Kind identifies which tile variant a product directory holds
type Kind int

const (
	KindRaster Kind = iota
	KindPointCloud
)

func (k Kind) String() string {
	switch k {
	case KindRaster:
		return "raster"
	case KindPointCloud:
		return "point_cloud"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Patterns returns the file globs for tiles of this kind
func (k Kind) Patterns() []string {
	if k == KindPointCloud {
		return []string{"*.las", "*.laz"}
	}
	return []string{"*.tif"}
}

// IsRasterDir reports whether a product folder name looks like an elevation raster product
func IsRasterDir(name string) bool {
	n := strings.ToLower(name)
	return strings.Contains(n, "dem") || strings.Contains(n, "dsm")
}

// IsPointCloudDir reports whether a product folder name looks like a point cloud product
func IsPointCloudDir(name string) bool {
	n := strings.ToLower(name)
	return strings.Contains(n, "point") || strings.Contains(n, "laz") || strings.Contains(n, "las")
}

// Record is the common view over a parsed tile.
// Nil values mean the field was not present in the tool output.
type Record interface {
	Kind() Kind
	Name() string
	Extension() string
	Projection() *string
	SuppliedTileIndex() string
	Bounds() (orb.Bound, bool)
}

// XY is a planar pair
type XY struct {
	X, Y float64
}

// XYZ is a coordinate triple
type XYZ struct {
	X, Y, Z float64
}

func (v XYZ) String() string {
	return fmt.Sprintf("%g, %g, %g", v.X, v.Y, v.Z)
}

// MinMax is an integer range reported by lasinfo
type MinMax struct {
	Min, Max int64
}

// MinMaxFloat is a decimal range reported by lasinfo
type MinMaxFloat struct {
	Min, Max float64
}

// Returns holds the "all returns" and "last only" figures
type Returns struct {
	All, Last float64
}

// Classification is one histogram line
type Classification struct {
	ID    int
	Name  string
	Count int64
}

// Histogram maps ASPRS class code to its histogram line
type Histogram map[int]Classification

// Codes returns the class codes in ascending order
func (h Histogram) Codes() []int {
	codes := make([]int, 0, len(h))
	for code := range h {
		codes = append(codes, code)
	}
	sort.Ints(codes)
	return codes
}

// String formats the codes as "[1, 2, 3]"
func (h Histogram) String() string {
	codes := h.Codes()
	parts := make([]string, len(codes))
	for i, c := range codes {
		parts[i] = fmt.Sprint(c)
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

// Base carries the fields shared by both variants
type Base struct {
	FileName          string
	FileExtension     string
	WKT               *string
	SuppliedIndexPath string
}

func (b *Base) Name() string { return b.FileName }
func (b *Base) Extension() string { return b.FileExtension }
func (b *Base) Projection() *string { return b.WKT }
func (b *Base) SuppliedTileIndex() string { return b.SuppliedIndexPath }
