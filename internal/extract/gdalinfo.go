package extract

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/wegman-software/lidarqc-go/internal/record"
)

type gdalinfoBand struct {
	Type        *string         `json:"type"`
	ComputedMin *float64        `json:"computedMin"`
	ComputedMax *float64        `json:"computedMax"`
	NoDataValue json.RawMessage `json:"noDataValue"`
}

type gdalinfoCRS struct {
	WKT *string `json:"wkt"`
}

type gdalinfoDoc struct {
	Size              []float64            `json:"size"`
	CoordinateSystem  *gdalinfoCRS         `json:"coordinateSystem"`
	GeoTransform      []float64            `json:"geoTransform"`
	CornerCoordinates map[string][]float64 `json:"cornerCoordinates"`
	Bands             []gdalinfoBand       `json:"bands"`
}

// ParseGdalinfo maps a `gdalinfo -json` document onto a raster record.
// Absent keys leave the matching fields nil.
func ParseGdalinfo(data []byte) (*record.RasterRecord, error) {
	var doc gdalinfoDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to decode gdalinfo output: %w", err)
	}

	rec := &record.RasterRecord{}
	if len(doc.Size) >= 2 {
		rec.Size = &record.XY{X: doc.Size[0], Y: doc.Size[1]}
	}
	if doc.CoordinateSystem != nil && doc.CoordinateSystem.WKT != nil {
		rec.WKT = doc.CoordinateSystem.WKT
	}
	if len(doc.GeoTransform) >= 6 {
		rec.Origin = &record.XY{X: doc.GeoTransform[0], Y: doc.GeoTransform[3]}
		rec.PixelSize = &record.XY{X: doc.GeoTransform[1], Y: doc.GeoTransform[5]}
	}

	rec.UpperLeft = corner(doc.CornerCoordinates, "upperLeft")
	rec.LowerLeft = corner(doc.CornerCoordinates, "lowerLeft")
	rec.LowerRight = corner(doc.CornerCoordinates, "lowerRight")
	rec.UpperRight = corner(doc.CornerCoordinates, "upperRight")
	rec.Centre = corner(doc.CornerCoordinates, "center")

	if len(doc.Bands) > 0 {
		b := doc.Bands[0]
		rec.DataType = b.Type
		rec.MinPixel = b.ComputedMin
		rec.MaxPixel = b.ComputedMax
		rec.NoData = noData(b.NoDataValue)
	}
	return rec, nil
}

func corner(corners map[string][]float64, key string) *record.XY {
	c, ok := corners[key]
	if !ok || len(c) < 2 {
		return nil
	}
	return &record.XY{X: c[0], Y: c[1]}
}

// noData accepts both numeric and string encodings ("nan", "-inf")
func noData(raw json.RawMessage) *float64 {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return &f
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil
	}
	return &f
}
