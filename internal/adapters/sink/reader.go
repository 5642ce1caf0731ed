package sink

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/ghalamif/TelemetryLogger/internal/domain"
)

// StoredRecord is a persisted row together with its primary key.
type StoredRecord struct {
	ID int64
	domain.TelemetryRecord
}

// SQLReader is the read-only view used by inspection tools. It never
// writes to the table.
type SQLReader struct {
	db        *sql.DB
	dialect   Dialect
	tableName string
}

func NewSQLReader(db *sql.DB, dialect Dialect, table string) *SQLReader {
	return &SQLReader{db: db, dialect: dialect, tableName: table}
}

const selectColumns = "id, timestamp, speed, rpm, fuel, lat, lon, throttle, temp"

// Recent returns up to limit of the newest rows, oldest first.
func (r *SQLReader) Recent(ctx context.Context, limit int) ([]StoredRecord, error) {
	q := fmt.Sprintf("SELECT %s FROM %s ORDER BY id DESC LIMIT %s",
		selectColumns, r.tableName, placeholder(r.dialect, 1))
	rows, err := r.query(ctx, q, limit)
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(rows)-1; i < j; i, j = i+1, j-1 {
		rows[i], rows[j] = rows[j], rows[i]
	}
	return rows, nil
}

// Range returns rows whose timestamp lies in [start, stop], ascending.
func (r *SQLReader) Range(ctx context.Context, start, stop string) ([]StoredRecord, error) {
	q := fmt.Sprintf("SELECT %s FROM %s WHERE timestamp BETWEEN %s AND %s ORDER BY timestamp ASC, id ASC",
		selectColumns, r.tableName, placeholder(r.dialect, 1), placeholder(r.dialect, 2))
	return r.query(ctx, q, start, stop)
}

// Count returns the number of persisted rows.
func (r *SQLReader) Count(ctx context.Context) (int64, error) {
	var n int64
	err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+r.tableName).Scan(&n)
	return n, err
}

func (r *SQLReader) query(ctx context.Context, q string, args ...any) ([]StoredRecord, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", r.tableName, err)
	}
	defer rows.Close()

	var out []StoredRecord
	for rows.Next() {
		var s StoredRecord
		if err := rows.Scan(&s.ID, &s.Timestamp, &s.Speed, &s.RPM, &s.Fuel, &s.Lat, &s.Lon, &s.Throttle, &s.Temp); err != nil {
			return nil, fmt.Errorf("scan %s: %w", r.tableName, err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
