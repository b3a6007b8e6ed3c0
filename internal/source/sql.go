package source

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"

	"github.com/dennisdiepolder/monti/cdrinsight/internal/cdr"
	"github.com/dennisdiepolder/monti/cdrinsight/internal/config"
	"github.com/dennisdiepolder/monti/cdrinsight/internal/tracing"
)

// CallDateLayout is the textual calldate format the pipeline parses
const CallDateLayout = "02/01/06, 15:04"

// sqliteTimeLayout matches how calldate text is stored in sqlite tables
const sqliteTimeLayout = "2006-01-02 15:04:05"

var tableRE = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)?$`)

// SQLSource queries a CDR table through database/sql
type SQLSource struct {
	db     *sql.DB
	driver string
	table  string
	logger zerolog.Logger
}

// Open connects to dsn and verifies the connection
func Open(ctx context.Context, driver, dsn, table string, logger zerolog.Logger) (*SQLSource, error) {
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", driver, err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to connect to %s: %w", driver, err)
	}

	s, err := NewSQLSource(db, driver, table, logger)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// NewSQLSource wraps an open database
func NewSQLSource(db *sql.DB, driver, table string, logger zerolog.Logger) (*SQLSource, error) {
	if driver != config.QueryDriverSQLite && driver != config.QueryDriverPostgres {
		return nil, fmt.Errorf("unsupported query driver %q", driver)
	}
	if !tableRE.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	return &SQLSource{
		db:     db,
		driver: driver,
		table:  table,
		logger: logger.With().Str("component", "source").Str("driver", driver).Logger(),
	}, nil
}

// Close closes the database
func (s *SQLSource) Close() error {
	return s.db.Close()
}

// Fetch runs q and returns the rows in the remote schema, ordered by calldate
func (s *SQLSource) Fetch(ctx context.Context, q Query) (_ cdr.Dataset, err error) {
	if err := q.Validate(); err != nil {
		return cdr.Dataset{}, err
	}

	ctx, endSpan := tracing.StartDBSpan(ctx, s.driver, s.table)
	defer func() { endSpan(err) }()

	query, args := s.buildQuery(q)
	start := time.Now()

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return cdr.Dataset{}, fmt.Errorf("failed to query calls: %w", err)
	}
	defer rows.Close()

	out := cdr.Dataset{Header: cdr.RemoteSchema}
	for rows.Next() {
		row, err := s.scanRow(rows)
		if err != nil {
			return cdr.Dataset{}, err
		}
		out.Rows = append(out.Rows, row)
	}
	if err := rows.Err(); err != nil {
		return cdr.Dataset{}, fmt.Errorf("failed to read calls: %w", err)
	}

	s.logger.Info().
		Int("rows", len(out.Rows)).
		Dur("elapsed", time.Since(start)).
		Msg("remote query completed")
	return out, nil
}

func (s *SQLSource) buildQuery(q Query) (string, []any) {
	cols := make([]string, len(cdr.RemoteSchema))
	for i, c := range cdr.RemoteSchema {
		cols[i] = pq.QuoteIdentifier(c)
	}

	var (
		where []string
		args  []any
	)
	add := func(cond string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(cond, s.placeholder(len(args))))
	}
	if !q.From.IsZero() {
		add(`"calldate" >= %s`, s.bindTime(q.From))
	}
	if !q.To.IsZero() {
		add(`"calldate" < %s`, s.bindTime(q.To))
	}
	if q.Source != "" {
		add(`"src" = %s`, q.Source)
	}
	if q.Destination != "" {
		add(`"dst" = %s`, q.Destination)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "SELECT %s FROM %s", strings.Join(cols, ", "), quoteTable(s.table))
	if len(where) > 0 {
		b.WriteString(" WHERE ")
		b.WriteString(strings.Join(where, " AND "))
	}
	args = append(args, q.Limit)
	fmt.Fprintf(&b, ` ORDER BY "calldate" LIMIT %s`, s.placeholder(len(args)))
	return b.String(), args
}

func (s *SQLSource) placeholder(n int) string {
	if s.driver == config.QueryDriverPostgres {
		return "$" + strconv.Itoa(n)
	}
	return "?"
}

func (s *SQLSource) bindTime(t time.Time) any {
	if s.driver == config.QueryDriverSQLite {
		return t.UTC().Format(sqliteTimeLayout)
	}
	return t
}

func (s *SQLSource) scanRow(rows *sql.Rows) ([]any, error) {
	n := len(cdr.RemoteSchema)
	cells := make([]sql.NullString, n)
	var calldate sql.NullTime

	dest := make([]any, n)
	for i, c := range cdr.RemoteSchema {
		if c == cdr.ColCallDate {
			dest[i] = &calldate
		} else {
			dest[i] = &cells[i]
		}
	}
	if err := rows.Scan(dest...); err != nil {
		return nil, fmt.Errorf("failed to scan call: %w", err)
	}

	row := make([]any, n)
	for i, c := range cdr.RemoteSchema {
		switch {
		case c == cdr.ColCallDate:
			if calldate.Valid {
				row[i] = calldate.Time.Format(CallDateLayout)
			}
		case cells[i].Valid:
			row[i] = cells[i].String
		}
	}
	return row, nil
}

func quoteTable(table string) string {
	parts := strings.Split(table, ".")
	for i, p := range parts {
		parts[i] = pq.QuoteIdentifier(p)
	}
	return strings.Join(parts, ".")
}
