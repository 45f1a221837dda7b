// Package report persists QC results: a GeoPackage for analysts, plus
// optional Parquet and PostGIS exports of the same results.
package report

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/paulmach/orb"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/wegman-software/lidarqc-go/internal/logger"
	"github.com/wegman-software/lidarqc-go/internal/parallel"
	"github.com/wegman-software/lidarqc-go/internal/record"
	"github.com/wegman-software/lidarqc-go/internal/standard"
	"github.com/wegman-software/lidarqc-go/internal/summary"
	"github.com/wegman-software/lidarqc-go/internal/validate"
	"github.com/wegman-software/lidarqc-go/internal/wkb"
)

// SummaryTable holds every product's summary rows
const SummaryTable = "summary"

// RunsTable holds one row per QC run
const RunsTable = "qc_runs"

const (
	gpkgApplicationID = 0x47504B47 // "GPKG"
	gpkgUserVersion   = 10300
)

const nztmDefinition = `PROJCS["NZGD2000 / New Zealand Transverse Mercator 2000",` +
	`GEOGCS["NZGD2000",DATUM["New_Zealand_Geodetic_Datum_2000",` +
	`SPHEROID["GRS 1980",6378137,298.257222101,AUTHORITY["EPSG","7019"]],` +
	`TOWGS84[0,0,0,0,0,0,0],AUTHORITY["EPSG","6167"]],` +
	`PRIMEM["Greenwich",0,AUTHORITY["EPSG","8901"]],` +
	`UNIT["degree",0.0174532925199433,AUTHORITY["EPSG","9122"]],AUTHORITY["EPSG","4167"]],` +
	`PROJECTION["Transverse_Mercator"],PARAMETER["latitude_of_origin",0],` +
	`PARAMETER["central_meridian",173],PARAMETER["scale_factor",0.9996],` +
	`PARAMETER["false_easting",1600000],PARAMETER["false_northing",10000000],` +
	`UNIT["metre",1,AUTHORITY["EPSG","9001"]],AXIS["Northing",NORTH],AXIS["Easting",EAST],` +
	`AUTHORITY["EPSG","2193"]]`

var bootstrapSQL = []string{
	fmt.Sprintf(`PRAGMA application_id = %d`, gpkgApplicationID),
	fmt.Sprintf(`PRAGMA user_version = %d`, gpkgUserVersion),
	`CREATE TABLE gpkg_spatial_ref_sys (
		srs_name TEXT NOT NULL,
		srs_id INTEGER NOT NULL PRIMARY KEY,
		organization TEXT NOT NULL,
		organization_coordsys_id INTEGER NOT NULL,
		definition TEXT NOT NULL,
		description TEXT
	)`,
	`CREATE TABLE gpkg_contents (
		table_name TEXT NOT NULL PRIMARY KEY,
		data_type TEXT NOT NULL,
		identifier TEXT UNIQUE,
		description TEXT DEFAULT '',
		last_change DATETIME NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ','now')),
		min_x DOUBLE,
		min_y DOUBLE,
		max_x DOUBLE,
		max_y DOUBLE,
		srs_id INTEGER,
		CONSTRAINT fk_gc_r_srs_id FOREIGN KEY (srs_id) REFERENCES gpkg_spatial_ref_sys(srs_id)
	)`,
	`CREATE TABLE gpkg_geometry_columns (
		table_name TEXT NOT NULL,
		column_name TEXT NOT NULL,
		geometry_type_name TEXT NOT NULL,
		srs_id INTEGER NOT NULL,
		z TINYINT NOT NULL,
		m TINYINT NOT NULL,
		CONSTRAINT pk_geom_cols PRIMARY KEY (table_name, column_name),
		CONSTRAINT fk_gc_tn FOREIGN KEY (table_name) REFERENCES gpkg_contents(table_name),
		CONSTRAINT fk_gc_srs FOREIGN KEY (srs_id) REFERENCES gpkg_spatial_ref_sys(srs_id)
	)`,
	`INSERT INTO gpkg_spatial_ref_sys VALUES
		('Undefined Cartesian SRS', -1, 'NONE', -1, 'undefined', 'undefined Cartesian coordinate reference system'),
		('Undefined geographic SRS', 0, 'NONE', 0, 'undefined', 'undefined geographic coordinate reference system'),
		('WGS 84 geodetic', 4326, 'EPSG', 4326, 'GEOGCS["WGS 84",DATUM["WGS_1984",SPHEROID["WGS 84",6378137,298.257223563]],PRIMEM["Greenwich",0],UNIT["degree",0.0174532925199433],AUTHORITY["EPSG","4326"]]', 'longitude/latitude coordinates in decimal degrees on the WGS 84 spheroid')`,
	`CREATE TABLE summary (
		product TEXT NOT NULL,
		"check" TEXT NOT NULL,
		standard TEXT,
		"value" TEXT,
		PRIMARY KEY (product, "check")
	)`,
	`CREATE TABLE qc_runs (
		run_id TEXT NOT NULL PRIMARY KEY,
		input_dir TEXT,
		started TEXT NOT NULL,
		finished TEXT NOT NULL,
		tiles INTEGER NOT NULL,
		errors INTEGER NOT NULL
	)`,
	`INSERT INTO gpkg_contents (table_name, data_type, identifier, description, srs_id) VALUES
		('summary', 'attributes', 'summary', '', 0),
		('qc_runs', 'attributes', 'qc_runs', '', 0)`,
}

// ProductSummary is one product's summary rows
type ProductSummary struct {
	Product string
	Rows    []summary.Row
}

// Run describes a finished QC run
type Run struct {
	ID       string
	InputDir string
	Started  time.Time
	Finished time.Time
	Tiles    int
	Errors   int
}

// GeoPackage writes QC results into a new GeoPackage file
type GeoPackage struct {
	db       *sql.DB
	path     string
	enc      *wkb.Encoder
	std      *standard.Standard
	srid     int
	log      *zap.Logger
	features map[string]int
}

// CreateGeoPackage creates path, replacing any previous report
func CreateGeoPackage(ctx context.Context, path string, std *standard.Standard) (*GeoPackage, error) {
	if std == nil {
		std = standard.Default()
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to replace %s: %w", path, err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to create GeoPackage: %w", err)
	}
	db.SetMaxOpenConns(1)

	g := &GeoPackage{
		db:       db,
		path:     path,
		enc:      wkb.NewEncoder(wkb.FormatGeoPackage, wkb.SRID2193),
		std:      std,
		srid:     wkb.SRID2193,
		log:      logger.Get(),
		features: make(map[string]int),
	}

	if err := g.inTx(ctx, func(tx *sql.Tx) error {
		for _, stmt := range bootstrapSQL {
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				return err
			}
		}
		_, err := tx.ExecContext(ctx,
			`INSERT INTO gpkg_spatial_ref_sys VALUES (?, ?, 'EPSG', ?, ?, ?)`,
			"NZGD2000 / New Zealand Transverse Mercator 2000", g.srid, g.srid, nztmDefinition,
			"New Zealand Transverse Mercator 2000")
		return err
	}); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialise GeoPackage: %w", err)
	}
	return g, nil
}

// Path returns the GeoPackage file path
func (g *GeoPackage) Path() string { return g.path }

func (g *GeoPackage) inTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := g.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

func quoteIdent(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

// createLayer creates a feature table and registers it
func (g *GeoPackage) createLayer(ctx context.Context, tx *sql.Tx, table, geomType string, cols []column, extent *orb.Bound) error {
	defs := []string{"fid INTEGER PRIMARY KEY AUTOINCREMENT NOT NULL", "geom " + geomType}
	for _, c := range cols {
		defs = append(defs, quoteIdent(c.name)+" "+c.sqlType)
	}
	if _, err := tx.ExecContext(ctx, fmt.Sprintf("CREATE TABLE %s (%s)", quoteIdent(table), strings.Join(defs, ", "))); err != nil {
		return fmt.Errorf("failed to create layer %s: %w", table, err)
	}

	var minX, minY, maxX, maxY any
	if extent != nil {
		minX, minY, maxX, maxY = extent.Min[0], extent.Min[1], extent.Max[0], extent.Max[1]
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO gpkg_contents (table_name, data_type, identifier, description, min_x, min_y, max_x, max_y, srs_id)
		 VALUES (?, 'features', ?, '', ?, ?, ?, ?, ?)`,
		table, table, minX, minY, maxX, maxY, g.srid); err != nil {
		return fmt.Errorf("failed to register layer %s: %w", table, err)
	}
	_, err := tx.ExecContext(ctx,
		`INSERT INTO gpkg_geometry_columns (table_name, column_name, geometry_type_name, srs_id, z, m)
		 VALUES (?, 'geom', ?, ?, 0, 0)`,
		table, geomType, g.srid)
	return err
}

func insertSQL(table string, cols []column) string {
	names := []string{"geom"}
	marks := []string{"?"}
	for _, c := range cols {
		names = append(names, quoteIdent(c.name))
		marks = append(marks, "?")
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", quoteIdent(table), strings.Join(names, ", "), strings.Join(marks, ", "))
}

// WriteTiles writes one polygon feature per tile into a layer named after
// the product. Tiles without a bounding box are logged and skipped.
func (g *GeoPackage) WriteTiles(ctx context.Context, product string, kind record.Kind, evaluated []validate.Evaluated) (int, error) {
	cols := columnsFor(kind, g.std)

	var extent *orb.Bound
	for _, e := range evaluated {
		if b, ok := e.Record.Bounds(); ok {
			if extent == nil {
				extent = &b
			} else {
				u := extent.Union(b)
				extent = &u
			}
		}
	}

	written := 0
	err := g.inTx(ctx, func(tx *sql.Tx) error {
		if err := g.createLayer(ctx, tx, product, "POLYGON", cols, extent); err != nil {
			return err
		}
		stmt, err := tx.PrepareContext(ctx, insertSQL(product, cols))
		if err != nil {
			return err
		}
		defer stmt.Close()

		args := make([]any, len(cols)+1)
		for _, e := range evaluated {
			b, ok := e.Record.Bounds()
			if !ok {
				g.log.Error("No bounding box information", zap.String("tile", e.Record.Name()))
				continue
			}
			args[0] = g.enc.EncodeBound(b)
			for i, c := range cols {
				args[i+1] = c.value(e)
			}
			if _, err := stmt.ExecContext(ctx, args...); err != nil {
				return fmt.Errorf("failed to write %s: %w", e.Record.Name(), err)
			}
			written++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	g.features[product] = written
	g.log.Info("Wrote tiles to GeoPackage", zap.String("layer", product), zap.Int("features", written))
	return written, nil
}

var errorColumns = []column{
	{"file", "TEXT", nil},
	{"errors", "TEXT", nil},
}

// WriteErrors records a product's failed tiles in <product>_errors, one
// feature with an empty geometry per failure
func (g *GeoPackage) WriteErrors(ctx context.Context, product string, errs []parallel.ErrorInfo[string]) error {
	if len(errs) == 0 {
		return nil
	}
	table := product + "_errors"
	empty := g.enc.EncodeEmptyCollection()

	return g.inTx(ctx, func(tx *sql.Tx) error {
		if err := g.createLayer(ctx, tx, table, "GEOMETRYCOLLECTION", errorColumns, nil); err != nil {
			return err
		}
		stmt, err := tx.PrepareContext(ctx, insertSQL(table, errorColumns))
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, e := range errs {
			if _, err := stmt.ExecContext(ctx, empty, e.Item, e.Err.Error()); err != nil {
				return fmt.Errorf("failed to write error for %s: %w", e.Item, err)
			}
		}
		g.log.Info("Wrote errors to GeoPackage", zap.String("layer", table), zap.Int("errors", len(errs)))
		return nil
	})
}

// WriteSummary writes summary rows, replacing rows with the same product and check
func (g *GeoPackage) WriteSummary(ctx context.Context, summaries []ProductSummary) error {
	return g.inTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx,
			`INSERT OR REPLACE INTO summary (product, "check", standard, "value") VALUES (?, ?, ?, ?)`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, s := range summaries {
			for _, r := range s.Rows {
				if _, err := stmt.ExecContext(ctx, s.Product, r.Check, r.Standard, r.Value); err != nil {
					return fmt.Errorf("failed to write summary row %q: %w", r.Check, err)
				}
			}
		}
		return nil
	})
}

// WriteRun records the run metadata
func (g *GeoPackage) WriteRun(ctx context.Context, run Run) error {
	_, err := g.db.ExecContext(ctx,
		`INSERT INTO qc_runs (run_id, input_dir, started, finished, tiles, errors) VALUES (?, ?, ?, ?, ?, ?)`,
		run.ID, run.InputDir, run.Started.UTC().Format(time.RFC3339), run.Finished.UTC().Format(time.RFC3339),
		run.Tiles, run.Errors)
	return err
}

// Features returns how many features were written per product layer
func (g *GeoPackage) Features() map[string]int {
	return g.features
}

// Close closes the database
func (g *GeoPackage) Close() error {
	return g.db.Close()
}
