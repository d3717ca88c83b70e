package d1

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "modernc.org/sqlite"
)

// LocalExecutor runs the D1 dialect against an embedded SQLite database.
type LocalExecutor struct {
	db *sql.DB
}

// OpenLocal opens (or creates) a SQLite database. Use ":memory:" for tests.
func OpenLocal(dsn string) (*LocalExecutor, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite: %w", err)
	}
	// a single connection keeps in-memory databases alive and serialises writes
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping sqlite: %w", err)
	}
	return &LocalExecutor{db: db}, nil
}

func (e *LocalExecutor) Close() error {
	return e.db.Close()
}

func (e *LocalExecutor) Execute(ctx context.Context, query string, params ...any) ([]Row, error) {
	if !returnsRows(query) {
		if _, err := e.db.ExecContext(ctx, query, params...); err != nil {
			return nil, fmt.Errorf("sqlite exec: %w", err)
		}
		return nil, nil
	}

	rows, err := e.db.QueryContext(ctx, query, params...)
	if err != nil {
		return nil, fmt.Errorf("sqlite query: %w", err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	var out []Row
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("sqlite scan: %w", err)
		}
		row := make(Row, len(cols))
		for i, c := range cols {
			row[c] = values[i]
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

func returnsRows(query string) bool {
	q := strings.ToUpper(strings.TrimSpace(query))
	return strings.HasPrefix(q, "SELECT") ||
		strings.HasPrefix(q, "WITH") ||
		strings.HasPrefix(q, "PRAGMA") ||
		strings.Contains(q, "RETURNING")
}
