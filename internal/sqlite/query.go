package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
)

const (
	queryTimeout   = 5 * time.Second
	defaultMaxRows = 1000
)

var (
	// ErrEmptyQuery is returned for a blank ad-hoc query.
	ErrEmptyQuery = errors.New("empty query")
	// ErrRestrictedQuery is returned for statements that could escape the read-only connection.
	ErrRestrictedQuery = errors.New("query contains restricted operations")
)

//nolint:gochecknoglobals // compiled once.
var restrictedStatements = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\bATTACH\b`),
	regexp.MustCompile(`(?i)\bDETACH\b`),
	regexp.MustCompile(`(?i)\bPRAGMA\b`),
}

// QueryResult holds the rows of an ad-hoc query. Truncated is set when more than the requested number of rows
// matched.
type QueryResult struct {
	Columns   []string `json:"columns"`
	Rows      [][]any  `json:"rows"`
	Truncated bool     `json:"truncated"`
}

// Query runs a read-only ad-hoc SQL statement against the read-only pool and returns at most maxRows rows.
// A non-positive maxRows uses the default limit.
func (db *Database) Query(ctx context.Context, query string, maxRows int) (_ QueryResult, err error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return QueryResult{}, ErrEmptyQuery
	}
	for _, pattern := range restrictedStatements {
		if pattern.MatchString(query) {
			return QueryResult{}, ErrRestrictedQuery
		}
	}
	if maxRows <= 0 {
		maxRows = defaultMaxRows
	}

	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	rows, err := db.ReadOnly.QueryContext(ctx, query)
	if err != nil {
		return QueryResult{}, fmt.Errorf("query: %w", err)
	}
	defer func() {
		err = errors.Join(err, rows.Close())
	}()

	columns, err := rows.Columns()
	if err != nil {
		return QueryResult{}, fmt.Errorf("get columns: %w", err)
	}
	result := QueryResult{Columns: columns, Rows: [][]any{}, Truncated: false}
	for rows.Next() {
		if len(result.Rows) == maxRows {
			result.Truncated = true
			break
		}
		var row []any
		if row, err = scanAny(rows, len(columns)); err != nil {
			return QueryResult{}, err
		}
		result.Rows = append(result.Rows, row)
	}
	if err = rows.Err(); err != nil {
		return QueryResult{}, fmt.Errorf("iterate rows: %w", err)
	}
	return result, nil
}

// scanAny scans a row of unknown shape. Text comes back from the driver as bytes and is converted to strings.
func scanAny(rows *sql.Rows, columnCount int) ([]any, error) {
	values := make([]any, columnCount)
	dest := make([]any, columnCount)
	for i := range values {
		dest[i] = &values[i]
	}
	if err := rows.Scan(dest...); err != nil {
		return nil, fmt.Errorf("scan row: %w", err)
	}
	for i, v := range values {
		if b, ok := v.([]byte); ok {
			values[i] = string(b)
		}
	}
	return values, nil
}
