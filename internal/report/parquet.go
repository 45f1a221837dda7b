package report

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/apache/arrow/go/v14/arrow"
	"github.com/apache/arrow/go/v14/arrow/array"
	"github.com/apache/arrow/go/v14/arrow/memory"
	"github.com/apache/arrow/go/v14/parquet"
	"github.com/apache/arrow/go/v14/parquet/compress"
	"github.com/apache/arrow/go/v14/parquet/file"
	"github.com/apache/arrow/go/v14/parquet/pqarrow"
	"github.com/paulmach/orb"

	"github.com/wegman-software/lidarqc-go/internal/validate"
	"github.com/wegman-software/lidarqc-go/internal/wkb"
)

// Parquet file names inside the export directory
const (
	SummaryParquet    = "summary.parquet"
	FootprintsParquet = "footprints.parquet"
)

// SummaryRecord is one summary row tagged with its run
type SummaryRecord struct {
	RunID    string
	Product  string
	Check    string
	Standard string
	Value    string
}

// Footprint is one tile outline with its overall verdict
type Footprint struct {
	RunID   string
	Product string
	Name    string
	Passed  bool
	Bound   orb.Bound
}

// Passed reports whether every evaluated check passed
func Passed(r validate.Results) bool {
	for _, o := range []validate.Outcome{r.NameFormat, r.TileMatch, r.Tiling, r.Projection} {
		if !o.OK() {
			return false
		}
	}
	for _, o := range []validate.Outcome{
		r.NoData, r.Width, r.Height, r.PixelX, r.PixelY, r.OriginX, r.OriginY, r.DataType,
		r.VerticalDatum, r.PointCoordinates, r.ScaleFactor, r.PointDataFormat, r.GlobalEncoding,
		r.FileSourceID, r.Version,
	} {
		if o == validate.Fail {
			return false
		}
	}
	return true
}

// FlattenSummaries tags summary rows with a run id
func FlattenSummaries(runID string, summaries []ProductSummary) []SummaryRecord {
	var out []SummaryRecord
	for _, s := range summaries {
		for _, r := range s.Rows {
			out = append(out, SummaryRecord{RunID: runID, Product: s.Product, Check: r.Check, Standard: r.Standard, Value: r.Value})
		}
	}
	return out
}

// Footprints collects the outlines of evaluated tiles that have bounds
func Footprints(runID, product string, evaluated []validate.Evaluated) []Footprint {
	out := make([]Footprint, 0, len(evaluated))
	for _, e := range evaluated {
		b, ok := e.Record.Bounds()
		if !ok {
			continue
		}
		out = append(out, Footprint{RunID: runID, Product: product, Name: e.Record.Name(), Passed: Passed(e.Results), Bound: b})
	}
	return out
}

var summarySchema = arrow.NewSchema([]arrow.Field{
	{Name: "run_id", Type: arrow.BinaryTypes.String, Nullable: false},
	{Name: "product", Type: arrow.BinaryTypes.String, Nullable: false},
	{Name: "check", Type: arrow.BinaryTypes.String, Nullable: false},
	{Name: "standard", Type: arrow.BinaryTypes.String, Nullable: false},
	{Name: "value", Type: arrow.BinaryTypes.String, Nullable: false},
}, nil)

var footprintSchema = arrow.NewSchema([]arrow.Field{
	{Name: "run_id", Type: arrow.BinaryTypes.String, Nullable: false},
	{Name: "product", Type: arrow.BinaryTypes.String, Nullable: false},
	{Name: "name", Type: arrow.BinaryTypes.String, Nullable: false},
	{Name: "passed", Type: arrow.FixedWidthTypes.Boolean, Nullable: false},
	{Name: "geom_wkb", Type: arrow.BinaryTypes.Binary, Nullable: false},
}, nil)

// parquetWriter batches rows into record batches
type parquetWriter struct {
	file      *os.File
	writer    *pqarrow.FileWriter
	builder   *array.RecordBuilder
	batchSize int
	count     int
}

func newParquetWriter(path string, schema *arrow.Schema, batchSize int) (*parquetWriter, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}

	writerProps := parquet.NewWriterProperties(
		parquet.WithCompression(compress.Codecs.Zstd),
		parquet.WithDictionaryDefault(false),
	)

	writer, err := pqarrow.NewFileWriter(schema, f, writerProps, pqarrow.DefaultWriterProps())
	if err != nil {
		f.Close()
		return nil, err
	}

	return &parquetWriter{
		file:      f,
		writer:    writer,
		builder:   array.NewRecordBuilder(memory.DefaultAllocator, schema),
		batchSize: batchSize,
	}, nil
}

func (w *parquetWriter) rowAdded() error {
	w.count++
	if w.count >= w.batchSize {
		return w.flush()
	}
	return nil
}

func (w *parquetWriter) flush() error {
	if w.count == 0 {
		return nil
	}
	rec := w.builder.NewRecord()
	defer rec.Release()
	err := w.writer.Write(rec)
	w.count = 0
	return err
}

// Close flushes remaining rows and closes the file
func (w *parquetWriter) Close() error {
	defer w.builder.Release()
	if err := w.flush(); err != nil {
		return err
	}
	// FileWriter.Close also closes the underlying file
	return w.writer.Close()
}

// WriteSummaryParquet writes summary records to path
func WriteSummaryParquet(path string, rows []SummaryRecord) error {
	w, err := newParquetWriter(path, summarySchema, 1000)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	for _, r := range rows {
		w.builder.Field(0).(*array.StringBuilder).Append(r.RunID)
		w.builder.Field(1).(*array.StringBuilder).Append(r.Product)
		w.builder.Field(2).(*array.StringBuilder).Append(r.Check)
		w.builder.Field(3).(*array.StringBuilder).Append(r.Standard)
		w.builder.Field(4).(*array.StringBuilder).Append(r.Value)
		if err := w.rowAdded(); err != nil {
			w.Close()
			return err
		}
	}
	return w.Close()
}

// WriteFootprintsParquet writes tile outlines as EWKB polygons in NZTM
func WriteFootprintsParquet(path string, rows []Footprint) error {
	w, err := newParquetWriter(path, footprintSchema, 1000)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	enc := wkb.NewEncoder(wkb.FormatEWKB, wkb.SRID2193)
	for _, r := range rows {
		w.builder.Field(0).(*array.StringBuilder).Append(r.RunID)
		w.builder.Field(1).(*array.StringBuilder).Append(r.Product)
		w.builder.Field(2).(*array.StringBuilder).Append(r.Name)
		w.builder.Field(3).(*array.BooleanBuilder).Append(r.Passed)
		w.builder.Field(4).(*array.BinaryBuilder).Append(enc.EncodeBound(r.Bound))
		if err := w.rowAdded(); err != nil {
			w.Close()
			return err
		}
	}
	return w.Close()
}

// WriteParquet writes both export files into dir
func WriteParquet(dir string, summaries []SummaryRecord, footprints []Footprint) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create parquet directory: %w", err)
	}
	if err := WriteSummaryParquet(filepath.Join(dir, SummaryParquet), summaries); err != nil {
		return err
	}
	return WriteFootprintsParquet(filepath.Join(dir, FootprintsParquet), footprints)
}

func readTable(ctx context.Context, path string) (arrow.Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open parquet file: %w", err)
	}
	defer f.Close()

	pf, err := file.NewParquetReader(f)
	if err != nil {
		return nil, fmt.Errorf("failed to create parquet reader: %w", err)
	}
	defer pf.Close()

	arrowReader, err := pqarrow.NewFileReader(pf, pqarrow.ArrowReadProperties{}, memory.DefaultAllocator)
	if err != nil {
		return nil, fmt.Errorf("failed to create arrow reader: %w", err)
	}

	tbl, err := arrowReader.ReadTable(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read table: %w", err)
	}
	return tbl, nil
}

// ReadSummaryParquet reads summary records back
func ReadSummaryParquet(ctx context.Context, path string) ([]SummaryRecord, error) {
	tbl, err := readTable(ctx, path)
	if err != nil {
		return nil, err
	}
	defer tbl.Release()

	cols := make([]*arrow.Chunked, 5)
	for i := range cols {
		cols[i] = tbl.Column(i).Data()
	}

	var out []SummaryRecord
	for c := range cols[0].Chunks() {
		s := func(i int) *array.String { return cols[i].Chunk(c).(*array.String) }
		for i := 0; i < s(0).Len(); i++ {
			out = append(out, SummaryRecord{
				RunID:    s(0).Value(i),
				Product:  s(1).Value(i),
				Check:    s(2).Value(i),
				Standard: s(3).Value(i),
				Value:    s(4).Value(i),
			})
		}
	}
	return out, nil
}

// footprintRow is a footprint as stored, with its encoded geometry
type footprintRow struct {
	runID, product, name string
	passed               bool
	geom                 []byte
}

func readFootprintRows(ctx context.Context, path string) ([]footprintRow, error) {
	tbl, err := readTable(ctx, path)
	if err != nil {
		return nil, err
	}
	defer tbl.Release()

	cols := make([]*arrow.Chunked, 5)
	for i := range cols {
		cols[i] = tbl.Column(i).Data()
	}

	var out []footprintRow
	for c := range cols[0].Chunks() {
		runs := cols[0].Chunk(c).(*array.String)
		products := cols[1].Chunk(c).(*array.String)
		names := cols[2].Chunk(c).(*array.String)
		passed := cols[3].Chunk(c).(*array.Boolean)
		geoms := cols[4].Chunk(c).(*array.Binary)
		for i := 0; i < runs.Len(); i++ {
			out = append(out, footprintRow{
				runID:   runs.Value(i),
				product: products.Value(i),
				name:    names.Value(i),
				passed:  passed.Value(i),
				geom:    append([]byte(nil), geoms.Value(i)...),
			})
		}
	}
	return out, nil
}
