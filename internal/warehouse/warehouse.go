// Package warehouse runs aggregate queries over the judgments metadata
// dataset with an in-process DuckDB.
package warehouse

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	_ "github.com/marcboeker/go-duckdb" // registers the "duckdb" driver
)

// DefaultSource is the public parquet export of the Indian high court
// judgments metadata.
const DefaultSource = "s3://indian-high-court-judgments/metadata/parquet/year=*/court=*/bench=*/metadata.parquet?s3_region=ap-south-1"

// ErrNoRows is returned when a query matches nothing.
var ErrNoRows = errors.New("warehouse: no rows")

// Options configures Open.
type Options struct {
	// Source is a parquet path or glob; remote schemes load httpfs.
	Source string
	// Hive enables hive partition columns (year=, court=) from the path.
	Hive bool
	// Threads caps DuckDB worker threads; 0 keeps the engine default.
	Threads int
}

// Store is an open DuckDB database bound to one parquet source.
type Store struct {
	db     *sql.DB
	source string
	hive   bool
}

// CourtCount is the number of judgments attributed to a court.
type CourtCount struct {
	Court string
	Cases int64
}

// YearDelay is the mean registration-to-decision delay in days for a year.
type YearDelay struct {
	Year         int
	AvgDelayDays float64
}

// Open starts an in-memory DuckDB and prepares it to read opt.Source.
func Open(ctx context.Context, opt Options) (*Store, error) {
	if opt.Source == "" {
		opt.Source = DefaultSource
		opt.Hive = true
	}
	db, err := sql.Open("duckdb", "")
	if err != nil {
		return nil, fmt.Errorf("open duckdb: %w", err)
	}
	// parquet is linked into the driver; only remote access needs an extension
	var setup []string
	if isRemote(opt.Source) {
		setup = append(setup, "INSTALL httpfs", "LOAD httpfs")
	}
	if opt.Threads > 0 {
		setup = append(setup, fmt.Sprintf("SET threads TO %d", opt.Threads))
	}
	for _, stmt := range setup {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("duckdb %q: %w", stmt, err)
		}
	}
	return &Store{db: db, source: opt.Source, hive: opt.Hive}, nil
}

// Close releases the database.
func (s *Store) Close() error { return s.db.Close() }

// TopCourt returns the court with the most judgments in years [from, to].
func (s *Store) TopCourt(ctx context.Context, from, to int) (CourtCount, error) {
	q := `SELECT court, COUNT(*) AS cases FROM ` + s.relation() + `
WHERE year BETWEEN ? AND ?
GROUP BY court
ORDER BY cases DESC, court
LIMIT 1`
	var out CourtCount
	err := s.db.QueryRowContext(ctx, q, from, to).Scan(&out.Court, &out.Cases)
	if errors.Is(err, sql.ErrNoRows) {
		return CourtCount{}, ErrNoRows
	}
	if err != nil {
		return CourtCount{}, fmt.Errorf("top court: %w", err)
	}
	return out, nil
}

// DelayByYear returns the average days between registration and decision for
// court, one row per year in ascending order. Registration dates are stored
// as text, either ISO or dd-mm-yyyy.
func (s *Store) DelayByYear(ctx context.Context, court string) ([]YearDelay, error) {
	q := `WITH j AS (
  SELECT year, decision_date,
         COALESCE(TRY_CAST(date_of_registration AS DATE),
                  CAST(TRY_STRPTIME(date_of_registration, '%d-%m-%Y') AS DATE)) AS registered
  FROM ` + s.relation() + `
  WHERE court = ?
)
SELECT year, AVG(decision_date - registered) AS avg_delay_days
FROM j
WHERE decision_date IS NOT NULL AND registered IS NOT NULL
GROUP BY year
ORDER BY year`
	rows, err := s.db.QueryContext(ctx, q, court)
	if err != nil {
		return nil, fmt.Errorf("delay by year: %w", err)
	}
	defer rows.Close()
	var out []YearDelay
	for rows.Next() {
		var (
			year  int64
			delay sql.NullFloat64
		)
		if err := rows.Scan(&year, &delay); err != nil {
			return nil, fmt.Errorf("scan delay row: %w", err)
		}
		if !delay.Valid {
			continue
		}
		out = append(out, YearDelay{Year: int(year), AvgDelayDays: delay.Float64})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("delay by year: %w", err)
	}
	if len(out) == 0 {
		return nil, ErrNoRows
	}
	return out, nil
}

func (s *Store) relation() string {
	return fmt.Sprintf("read_parquet(%s, hive_partitioning = %t)", quote(s.source), s.hive)
}

// quote renders s as a SQL string literal.
func quote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

func isRemote(source string) bool {
	for _, p := range []string{"s3://", "http://", "https://", "gcs://", "gs://", "r2://"} {
		if strings.HasPrefix(source, p) {
			return true
		}
	}
	return false
}
