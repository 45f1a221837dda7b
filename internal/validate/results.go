package validate

import (
	"github.com/wegman-software/lidarqc-go/internal/record"
)

// Results holds every check evaluated for one record. Checks that do not
// apply to the record's kind stay Unknown.
type Results struct {
	NameFormat    Outcome
	TileMatch     Outcome
	Tiling        Outcome
	Projection    Outcome
	SuppliedIndex Outcome

	// Raster only
	NoData   Outcome
	Width    Outcome
	Height   Outcome
	PixelX   Outcome
	PixelY   Outcome
	OriginX  Outcome
	OriginY  Outcome
	DataType Outcome

	// Point cloud only
	VerticalDatum    Outcome
	PointCoordinates Outcome
	ScaleFactor      Outcome
	PointDataFormat  Outcome
	GlobalEncoding   Outcome
	FileSourceID     Outcome
	Version          Outcome
}

// Evaluated pairs a record with its results
type Evaluated struct {
	Record  record.Record
	Results Results
}

// Evaluate runs every applicable check once
func (v *Validator) Evaluate(rec record.Record) Results {
	res := Results{
		NameFormat:    v.NameFormat(rec),
		TileMatch:     v.TileMatch(rec),
		Tiling:        v.Tiling(rec),
		Projection:    v.Projection(rec),
		SuppliedIndex: v.SuppliedIndex(rec),
	}

	if v.LegacyProjection {
		res.Projection = v.ProjectionLegacy(rec)
	}

	switch r := rec.(type) {
	case *record.RasterRecord:
		res.NoData = v.NoData(r)
		res.Width = v.Width(r)
		res.Height = v.Height(r)
		res.PixelX = v.PixelX(r)
		res.PixelY = v.PixelY(r)
		res.OriginX, res.OriginY = v.OriginWhole(r)
		res.DataType = v.DataType(r)
	case *record.PointCloudRecord:
		res.VerticalDatum = v.VerticalDatum(r)
		res.PointCoordinates = v.PointCoordinates(r)
		res.ScaleFactor = v.ScaleFactor(r)
		res.PointDataFormat = v.PointDataFormat(r)
		res.GlobalEncoding = v.GlobalEncoding(r)
		res.FileSourceID = v.FileSourceID(r)
		res.Version = v.Version(r)
	}
	return res
}

// EvaluateAll evaluates records in order
func (v *Validator) EvaluateAll(recs []record.Record) []Evaluated {
	out := make([]Evaluated, len(recs))
	for i, rec := range recs {
		out[i] = Evaluated{Record: rec, Results: v.Evaluate(rec)}
	}
	return out
}
