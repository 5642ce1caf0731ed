package sink

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/ghalamif/TelemetryLogger/internal/domain"
	"github.com/ghalamif/TelemetryLogger/internal/ports"
)

// Dialect selects placeholder style and column types.
type Dialect string

const (
	DialectSQLite   Dialect = "sqlite"
	DialectPostgres Dialect = "postgres"
)

var identRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// ValidTable reports whether name can be interpolated as a table identifier.
func ValidTable(name string) bool { return identRe.MatchString(name) }

// ParseDialect maps a configured driver name onto a Dialect.
func ParseDialect(driver string) (Dialect, error) {
	switch strings.ToLower(driver) {
	case "sqlite", "sqlite3":
		return DialectSQLite, nil
	case "postgres", "postgresql", "pq":
		return DialectPostgres, nil
	default:
		return "", fmt.Errorf("unsupported relational driver %q", driver)
	}
}

// sqlitePragmas are appended to SQLite DSNs: WAL so the viewer can read
// while we write, FULL sync because every record commits on its own.
const sqlitePragmas = "_pragma=journal_mode(WAL)&_pragma=synchronous(FULL)&_pragma=busy_timeout(5000)"

// OpenDB opens the relational store for the given dialect and checks it is
// reachable.
func OpenDB(ctx context.Context, dialect Dialect, dsn string) (*sql.DB, error) {
	driver := string(dialect)
	if dialect == DialectSQLite {
		if !strings.HasPrefix(dsn, "file:") && dsn != ":memory:" {
			if err := os.MkdirAll(filepath.Dir(dsn), 0o755); err != nil {
				return nil, err
			}
		}
		sep := "?"
		if strings.Contains(dsn, "?") {
			sep = "&"
		}
		dsn = dsn + sep + sqlitePragmas
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, err
	}
	if dialect == DialectSQLite {
		// SQLite serializes writers anyway; one connection keeps the
		// per-connection pragmas stable.
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// SQLSink inserts one row per record and commits it before returning.
type SQLSink struct {
	db        *sql.DB
	dialect   Dialect
	tableName string
	insert    string
}

func NewSQLSink(db *sql.DB, dialect Dialect, table string) *SQLSink {
	return &SQLSink{
		db:        db,
		dialect:   dialect,
		tableName: table,
		insert:    insertQuery(dialect, table),
	}
}

// OpenSQLSink opens the database, creates the table if it is absent and
// returns a sink that owns the connection.
func OpenSQLSink(ctx context.Context, driver, dsn, table string) (*SQLSink, error) {
	dialect, err := ParseDialect(driver)
	if err != nil {
		return nil, err
	}
	if !ValidTable(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	db, err := OpenDB(ctx, dialect, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", dialect, err)
	}
	s := NewSQLSink(db, dialect, table)
	if err := s.EnsureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLSink) Name() string { return string(s.dialect) }

// DB exposes the underlying handle for read-only consumers.
func (s *SQLSink) DB() *sql.DB { return s.db }

func (s *SQLSink) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schemaQuery(s.dialect, s.tableName)); err != nil {
		return fmt.Errorf("create table %s: %w", s.tableName, err)
	}
	return nil
}

func (s *SQLSink) Write(ctx context.Context, r domain.TelemetryRecord) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}

	if _, err := tx.ExecContext(ctx, s.insert,
		r.Timestamp,
		r.Speed,
		r.RPM,
		r.Fuel,
		r.Lat,
		r.Lon,
		r.Throttle,
		r.Temp,
	); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("insert: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (s *SQLSink) Close() error { return s.db.Close() }

func schemaQuery(dialect Dialect, table string) string {
	idType, realType := "INTEGER PRIMARY KEY AUTOINCREMENT", "REAL"
	if dialect == DialectPostgres {
		idType, realType = "BIGSERIAL PRIMARY KEY", "DOUBLE PRECISION"
	}

	var b strings.Builder
	b.WriteString("CREATE TABLE IF NOT EXISTS ")
	b.WriteString(table)
	b.WriteString(" (id ")
	b.WriteString(idType)
	b.WriteString(", timestamp TEXT")
	for _, col := range []string{"speed", "rpm", "fuel", "lat", "lon", "throttle", "temp"} {
		b.WriteString(", ")
		b.WriteString(col)
		b.WriteString(" ")
		b.WriteString(realType)
	}
	b.WriteString(")")
	return b.String()
}

func insertQuery(dialect Dialect, table string) string {
	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(table)
	b.WriteString(" (timestamp, speed, rpm, fuel, lat, lon, throttle, temp) VALUES (")
	for i := 1; i <= 8; i++ {
		if i > 1 {
			b.WriteString(",")
		}
		b.WriteString(placeholder(dialect, i))
	}
	b.WriteString(")")
	return b.String()
}

func placeholder(dialect Dialect, n int) string {
	if dialect == DialectPostgres {
		return fmt.Sprintf("$%d", n)
	}
	return "?"
}

var _ ports.Sink = (*SQLSink)(nil)
