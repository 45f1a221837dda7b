package validate

import (
	"errors"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/paulmach/orb"
	"go.uber.org/zap"

	"github.com/wegman-software/lidarqc-go/internal/logger"
	"github.com/wegman-software/lidarqc-go/internal/record"
	"github.com/wegman-software/lidarqc-go/internal/standard"
	"github.com/wegman-software/lidarqc-go/internal/tileindex"
)

// edgeEpsilon absorbs float representation error in extent comparisons
const edgeEpsilon = 1e-9

var (
	sheetPattern = regexp.MustCompile(`^[A-Z]{2}\d{2}$`)
	yearPattern  = regexp.MustCompile(`^\d{4}$`)
	tilePattern  = regexp.MustCompile(`^\d{4}$`)
)

// Name is a file stem split into its five parts
type Name struct {
	Product string
	Sheet   string
	Year    string
	Scale   string
	Tile    string
}

// ParseName splits "DEM_CB11_2021_1000_4233". It only checks the part count.
func ParseName(stem string) (Name, bool) {
	parts := strings.Split(stem, "_")
	if len(parts) != 5 {
		return Name{}, false
	}
	return Name{
		Product: parts[0],
		Sheet:   parts[1],
		Year:    parts[2],
		Scale:   parts[3],
		Tile:    parts[4],
	}, true
}

// Validator evaluates records. Scheme and Cache may be nil, in which case
// the checks that need them report Unknown.
type Validator struct {
	Scheme   *tileindex.Scheme
	Cache    *tileindex.Cache
	Standard *standard.Standard
	Log      *zap.Logger
	// LegacyProjection makes Evaluate use ProjectionLegacy
	LegacyProjection bool
}

// New creates a validator with the default standard when std is nil
func New(scheme *tileindex.Scheme, cache *tileindex.Cache, std *standard.Standard) *Validator {
	if std == nil {
		std = standard.Default()
	}
	return &Validator{
		Scheme:   scheme,
		Cache:    cache,
		Standard: std,
		Log:      logger.Get(),
	}
}

func (v *Validator) log() *zap.Logger {
	if v.Log == nil {
		return zap.NewNop()
	}
	return v.Log
}

// NameFormat checks {PRODUCT}_{SHEET}_{YEAR}_{SCALE}_{TILE}
func (v *Validator) NameFormat(rec record.Record) Outcome {
	if rec.Name() == "" {
		return Unknown
	}
	n, ok := ParseName(rec.Name())
	if !ok {
		return Fail
	}

	naming := v.Standard.Naming
	var productOK bool
	switch r := rec.(type) {
	case *record.RasterRecord:
		if r.ProductType != record.ProductUnknown {
			productOK = n.Product == string(r.ProductType)
		} else {
			productOK = contains(naming.RasterProducts, n.Product)
		}
	case *record.PointCloudRecord:
		productOK = contains(naming.PointCloudProducts, n.Product)
	}
	if !productOK {
		return Fail
	}

	if !sheetPattern.MatchString(n.Sheet) || !yearPattern.MatchString(n.Year) || !tilePattern.MatchString(n.Tile) {
		return Fail
	}
	year, _ := strconv.Atoi(n.Year)
	if year <= naming.MinYear || year >= naming.MaxYear {
		return Fail
	}
	return of(n.Scale == naming.ScaleToken)
}

// officialTile looks up the tile under the record's centroid
func (v *Validator) officialTile(rec record.Record) (tileindex.Tile, Outcome) {
	b, ok := rec.Bounds()
	if !ok || v.Scheme == nil {
		return tileindex.Tile{}, Unknown
	}
	tile, err := v.Scheme.GetTile(b.Center())
	if err != nil {
		if errors.Is(err, tileindex.ErrOutOfScheme) {
			v.log().Error("Tile is outside tile scheme", zap.String("file", rec.Name()), zap.Error(err))
		}
		return tileindex.Tile{}, Fail
	}
	return tile, Pass
}

// TileMatch checks the sheet and tile named in the file against the
// official tile at the record's centroid
func (v *Validator) TileMatch(rec record.Record) Outcome {
	tile, o := v.officialTile(rec)
	if o != Pass {
		return o
	}
	n, ok := ParseName(rec.Name())
	if !ok {
		return Fail
	}
	return of(n.Sheet == tile.SheetCode && n.Tile == tile.ID)
}

// Tiling checks the record extent against the official tile. Each edge may
// lie outside the official tile by at most the tolerance and never inside it.
func (v *Validator) Tiling(rec record.Record) Outcome {
	tile, o := v.officialTile(rec)
	if o != Pass {
		return o
	}
	b, _ := rec.Bounds()
	return of(tiledCorrectly(b, tile.Bound, v.Standard.Tiling.Tolerance))
}

func tiledCorrectly(rec, official orb.Bound, tol float64) bool {
	within := func(d float64) bool {
		return d >= -edgeEpsilon && d <= tol+edgeEpsilon
	}
	return within(official.Min[0]-rec.Min[0]) &&
		within(official.Min[1]-rec.Min[1]) &&
		within(rec.Max[0]-official.Max[0]) &&
		within(rec.Max[1]-official.Max[1])
}

// Projection requires the CRS name, the horizontal datum name and the EPSG
// code to all appear in the WKT
func (v *Validator) Projection(rec record.Record) Outcome {
	wkt := rec.Projection()
	if wkt == nil {
		return Unknown
	}
	p := v.Standard.Projection
	return of(containsAny(*wkt, p.CRSNames) &&
		containsAny(*wkt, p.DatumNames) &&
		strings.Contains(*wkt, p.EPSG))
}

// ProjectionLegacy is the permissive check older reports were produced
// with, where only the EPSG code was effectively tested
func (v *Validator) ProjectionLegacy(rec record.Record) Outcome {
	wkt := rec.Projection()
	if wkt == nil {
		return Unknown
	}
	return of(strings.Contains(*wkt, v.Standard.Projection.EPSG))
}

// VerticalDatum requires every vertical datum token in the WKT
func (v *Validator) VerticalDatum(rec record.Record) Outcome {
	wkt := rec.Projection()
	if wkt == nil {
		return Unknown
	}
	for _, tok := range v.Standard.Projection.VerticalTokens {
		if !strings.Contains(*wkt, tok) {
			return Fail
		}
	}
	return Pass
}

// SuppliedIndex checks the record overlaps the supplied tile index with a
// positive area
func (v *Validator) SuppliedIndex(rec record.Record) Outcome {
	path := rec.SuppliedTileIndex()
	b, ok := rec.Bounds()
	if path == "" || v.Cache == nil || !ok {
		return Unknown
	}
	idx, err := v.Cache.Get(path)
	if err != nil {
		v.log().Error("Failed to load supplied tile index", zap.String("path", path), zap.Error(err))
		return Unknown
	}
	return of(idx.IntersectsPositiveArea(b))
}

// PointCoordinates compares the extent of the stored point coordinates
// against the header min/max
func (v *Validator) PointCoordinates(rec *record.PointCloudRecord) Outcome {
	if rec.ScaleFactor == nil || rec.Offset == nil || rec.X == nil || rec.Y == nil ||
		rec.HeaderMin == nil || rec.HeaderMax == nil {
		return Unknown
	}
	pts, _ := rec.PointDataBounds()
	hdr, _ := rec.Bounds()
	tol := v.Standard.PointCloud.CoordinateTolerance
	return of(math.Abs(pts.Min[0]-hdr.Min[0]) < tol &&
		math.Abs(pts.Max[0]-hdr.Max[0]) < tol &&
		math.Abs(pts.Min[1]-hdr.Min[1]) < tol &&
		math.Abs(pts.Max[1]-hdr.Max[1]) < tol)
}

// ScaleFactor checks the header scale against the accepted triples
func (v *Validator) ScaleFactor(rec *record.PointCloudRecord) Outcome {
	sf := rec.ScaleFactor
	if sf == nil {
		return Unknown
	}
	for _, want := range v.Standard.PointCloud.ScaleFactors {
		if nearly(sf.X, want[0]) && nearly(sf.Y, want[1]) && nearly(sf.Z, want[2]) {
			return Pass
		}
	}
	return Fail
}

func (v *Validator) PointDataFormat(rec *record.PointCloudRecord) Outcome {
	if rec.PointDataFormat == nil {
		return Unknown
	}
	for _, f := range v.Standard.PointCloud.PointDataFormats {
		if *rec.PointDataFormat == f {
			return Pass
		}
	}
	return Fail
}

func (v *Validator) GlobalEncoding(rec *record.PointCloudRecord) Outcome {
	return intEquals(rec.GlobalEncoding, v.Standard.PointCloud.GlobalEncoding)
}

func (v *Validator) FileSourceID(rec *record.PointCloudRecord) Outcome {
	return intEquals(rec.FileSourceID, v.Standard.PointCloud.FileSourceID)
}

func (v *Validator) Version(rec *record.PointCloudRecord) Outcome {
	ver, ok := rec.Version()
	if !ok {
		return Unknown
	}
	return of(ver == v.Standard.PointCloud.Version)
}

// Raster header checks

func (v *Validator) NoData(rec *record.RasterRecord) Outcome {
	if rec.NoData == nil {
		return Unknown
	}
	return of(nearly(*rec.NoData, v.Standard.Raster.NoData))
}

func (v *Validator) Width(rec *record.RasterRecord) Outcome {
	if rec.Size == nil {
		return Unknown
	}
	return of(nearly(rec.Size.X, v.Standard.Raster.Width))
}

func (v *Validator) Height(rec *record.RasterRecord) Outcome {
	if rec.Size == nil {
		return Unknown
	}
	return of(nearly(rec.Size.Y, v.Standard.Raster.Height))
}

func (v *Validator) PixelX(rec *record.RasterRecord) Outcome {
	if rec.PixelSize == nil {
		return Unknown
	}
	return of(nearly(rec.PixelSize.X, v.Standard.Raster.PixelX))
}

func (v *Validator) PixelY(rec *record.RasterRecord) Outcome {
	if rec.PixelSize == nil {
		return Unknown
	}
	return of(nearly(rec.PixelSize.Y, v.Standard.Raster.PixelY))
}

// OriginWhole checks both origin coordinates have no decimal part
func (v *Validator) OriginWhole(rec *record.RasterRecord) (x, y Outcome) {
	if rec.Origin == nil {
		return Unknown, Unknown
	}
	return of(rec.Origin.X == math.Trunc(rec.Origin.X)), of(rec.Origin.Y == math.Trunc(rec.Origin.Y))
}

func (v *Validator) DataType(rec *record.RasterRecord) Outcome {
	if rec.DataType == nil {
		return Unknown
	}
	return of(*rec.DataType == v.Standard.Raster.DataType)
}

func intEquals(got *int, want int) Outcome {
	if got == nil {
		return Unknown
	}
	return of(*got == want)
}

func nearly(a, b float64) bool {
	return math.Abs(a-b) <= edgeEpsilon
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if sub != "" && strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
