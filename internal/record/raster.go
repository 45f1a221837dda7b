package record

import (
	"strings"

	"github.com/paulmach/orb"
)

// ProductType is the elevation product a raster belongs to
type ProductType string

const (
	ProductDEM     ProductType = "DEM"
	ProductDSM     ProductType = "DSM"
	ProductUnknown ProductType = "unknown"
)

// ProductTypeFromDir derives the product type from the parent folder name
func ProductTypeFromDir(dir string) ProductType {
	upper := strings.ToUpper(dir)
	switch {
	case strings.Contains(upper, "DEM"):
		return ProductDEM
	case strings.Contains(upper, "DSM"):
		return ProductDSM
	default:
		return ProductUnknown
	}
}

// RasterRecord is the metadata of one elevation raster tile
type RasterRecord struct {
	Base

	ProductType ProductType
	Size        *XY
	Origin      *XY
	PixelSize   *XY

	UpperLeft  *XY
	LowerLeft  *XY
	LowerRight *XY
	UpperRight *XY
	Centre     *XY

	NoData   *float64
	DataType *string
	MinPixel *float64
	MaxPixel *float64
}

func (r *RasterRecord) Kind() Kind { return KindRaster }

// Bounds is the box spanned by the upper left and lower right corners
func (r *RasterRecord) Bounds() (orb.Bound, bool) {
	if r.UpperLeft == nil || r.LowerRight == nil {
		return orb.Bound{}, false
	}
	return orb.Bound{
		Min: orb.Point{r.UpperLeft.X, r.LowerRight.Y},
		Max: orb.Point{r.LowerRight.X, r.UpperLeft.Y},
	}, true
}
