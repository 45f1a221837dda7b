package report

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/wegman-software/lidarqc-go/internal/logger"
)

// LoadStats holds loader statistics
type LoadStats struct {
	SummaryRows int64
	TileRows    int64
}

// Loader loads the Parquet export into PostGIS
type Loader struct {
	pool   *pgxpool.Pool
	schema string
	log    *zap.Logger
}

// NewLoader connects to PostgreSQL
func NewLoader(ctx context.Context, connString, schema string, maxConns int) (*Loader, error) {
	poolConfig, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}
	if maxConns > 0 {
		poolConfig.MaxConns = int32(maxConns)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL: %w", err)
	}
	if schema == "" {
		schema = "public"
	}
	return &Loader{pool: pool, schema: schema, log: logger.Named("postgis")}, nil
}

// Close closes connections
func (l *Loader) Close() error {
	l.pool.Close()
	return nil
}

func (l *Loader) table(name string) string {
	return pgx.Identifier{l.schema, name}.Sanitize()
}

// Load appends the summary and footprint files in dir to qc_summary and
// qc_tiles. Rows are keyed by run id so earlier runs are kept.
func (l *Loader) Load(ctx context.Context, dir string) (*LoadStats, error) {
	if _, err := l.pool.Exec(ctx, "CREATE EXTENSION IF NOT EXISTS postgis"); err != nil {
		return nil, fmt.Errorf("failed to create PostGIS extension: %w", err)
	}
	if l.schema != "public" {
		if _, err := l.pool.Exec(ctx, "CREATE SCHEMA IF NOT EXISTS "+pgx.Identifier{l.schema}.Sanitize()); err != nil {
			return nil, fmt.Errorf("failed to create schema: %w", err)
		}
	}
	if err := l.createTables(ctx); err != nil {
		return nil, err
	}

	stats := &LoadStats{}
	var err error

	summaryPath := filepath.Join(dir, SummaryParquet)
	if _, statErr := os.Stat(summaryPath); statErr == nil {
		if stats.SummaryRows, err = l.loadSummary(ctx, summaryPath); err != nil {
			return nil, fmt.Errorf("failed to load qc_summary: %w", err)
		}
		l.log.Info("Table loaded", zap.String("table", "qc_summary"), zap.Int64("rows", stats.SummaryRows))
	} else {
		l.log.Debug("Skipping table (no source file)", zap.String("table", "qc_summary"))
	}

	tilesPath := filepath.Join(dir, FootprintsParquet)
	if _, statErr := os.Stat(tilesPath); statErr == nil {
		if stats.TileRows, err = l.loadTiles(ctx, tilesPath); err != nil {
			return nil, fmt.Errorf("failed to load qc_tiles: %w", err)
		}
		l.log.Info("Table loaded", zap.String("table", "qc_tiles"), zap.Int64("rows", stats.TileRows))
	} else {
		l.log.Debug("Skipping table (no source file)", zap.String("table", "qc_tiles"))
	}
	return stats, nil
}

func (l *Loader) createTables(ctx context.Context) error {
	stmts := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			run_id TEXT NOT NULL,
			product TEXT NOT NULL,
			"check" TEXT NOT NULL,
			standard TEXT,
			value TEXT,
			PRIMARY KEY (run_id, product, "check")
		)`, l.table("qc_summary")),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			run_id TEXT NOT NULL,
			product TEXT NOT NULL,
			name TEXT NOT NULL,
			passed BOOLEAN NOT NULL,
			geom GEOMETRY(Polygon, 2193)
		)`, l.table("qc_tiles")),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS qc_tiles_geom_idx ON %s USING GIST (geom)`, l.table("qc_tiles")),
	}
	for _, stmt := range stmts {
		if _, err := l.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create tables: %w", err)
		}
	}
	return nil
}

func (l *Loader) loadSummary(ctx context.Context, path string) (int64, error) {
	rows, err := ReadSummaryParquet(ctx, path)
	if err != nil {
		return 0, err
	}
	if len(rows) == 0 {
		return 0, nil
	}

	rowChan := make(chan []any, 1000)
	go func() {
		defer close(rowChan)
		for _, r := range rows {
			rowChan <- []any{r.RunID, r.Product, r.Check, r.Standard, r.Value}
		}
	}()

	return l.pool.CopyFrom(ctx,
		pgx.Identifier{l.schema, "qc_summary"},
		[]string{"run_id", "product", "check", "standard", "value"},
		&rowSource{rows: rowChan},
	)
}

func (l *Loader) loadTiles(ctx context.Context, path string) (int64, error) {
	rows, err := readFootprintRows(ctx, path)
	if err != nil {
		return 0, err
	}
	if len(rows) == 0 {
		return 0, nil
	}

	conn, err := l.pool.Acquire(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to acquire connection: %w", err)
	}
	defer conn.Release()

	tx, err := conn.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	const tempTable = "qc_tiles_tmp"
	if _, err := tx.Exec(ctx, `CREATE TEMP TABLE `+tempTable+` (
		run_id TEXT,
		product TEXT,
		name TEXT,
		passed BOOLEAN,
		geom_wkb BYTEA
	) ON COMMIT DROP`); err != nil {
		return 0, fmt.Errorf("failed to create temp table: %w", err)
	}

	rowChan := make(chan []any, 1000)
	go func() {
		defer close(rowChan)
		for _, r := range rows {
			rowChan <- []any{r.runID, r.product, r.name, r.passed, r.geom}
		}
	}()

	count, err := tx.CopyFrom(ctx,
		pgx.Identifier{tempTable},
		[]string{"run_id", "product", "name", "passed", "geom_wkb"},
		&rowSource{rows: rowChan},
	)
	if err != nil {
		return 0, fmt.Errorf("COPY failed: %w", err)
	}

	// EWKB already carries the SRID
	if _, err := tx.Exec(ctx, fmt.Sprintf(`
		INSERT INTO %s (run_id, product, name, passed, geom)
		SELECT run_id, product, name, passed, ST_GeomFromEWKB(geom_wkb)
		FROM %s
		WHERE geom_wkb IS NOT NULL
	`, l.table("qc_tiles"), tempTable)); err != nil {
		return 0, fmt.Errorf("failed to insert from temp table: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("failed to commit: %w", err)
	}
	return count, nil
}

// rowSource implements pgx.CopyFromSource for streaming rows
type rowSource struct {
	rows    <-chan []any
	current []any
}

func (r *rowSource) Next() bool {
	row, ok := <-r.rows
	if !ok {
		return false
	}
	r.current = row
	return true
}

func (r *rowSource) Values() ([]any, error) {
	return r.current, nil
}

func (r *rowSource) Err() error {
	return nil
}
