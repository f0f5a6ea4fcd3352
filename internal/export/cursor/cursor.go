// Package cursor implements the Cursor Reader (spec §4.1): it opens a
// transaction, declares a server-side cursor over a projected SELECT,
// and yields fixed-size batches of rows, guaranteeing cursor closure,
// transaction commit, and connection release on every exit path —
// expressed here as a scoped resource (*Session) with a single Close
// method rather than try/finally scattered through callers, per the
// design note in spec §9.
package cursor

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/column-stream/exportd/internal/export/domain"
	"github.com/column-stream/exportd/internal/export/project"
)

// DefaultBatchSize is used for the three text formats; columnar
// exports use ColumnarBatchSize to match the 50,000-row row-group
// target in spec §4.7.
const (
	DefaultBatchSize  = 10_000
	ColumnarBatchSize = 50_000
)

// txBeginner is the subset of shared/postgresql.Client the Cursor
// Reader depends on, kept narrow so tests can supply a fake.
type txBeginner interface {
	BeginTx(ctx context.Context) (*sqlx.Tx, error)
}

// tx is the subset of *sqlx.Tx the Cursor Reader depends on.
type tx interface {
	QueryxContext(ctx context.Context, query string, args ...interface{}) (*sqlx.Rows, error)
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	Commit() error
	Rollback() error
}

// Session is one open server-side cursor, scoped to a single export
// invocation.
type Session struct {
	tx         tx
	cursorName string
	batchSize  int
	closed     bool
}

// Open begins a transaction, declares a uniquely named server-side
// cursor for the SELECT projected from mapping's sources, and returns
// a Session ready to be Fetched from. rowLimit caps the scan to that
// many rows when positive (EXPORT_ROW_LIMIT); zero means unbounded.
func Open(ctx context.Context, db txBeginner, cursorName string, mapping []domain.ColumnMapping, rowLimit int, batchSize int) (*Session, error) {
	sources := distinctSources(mapping)

	sqlText, err := buildSelect(sources, rowLimit)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrCursorFailed, err)
	}

	t, err := db.BeginTx(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: begin transaction: %v", domain.ErrCursorFailed, err)
	}

	declare := fmt.Sprintf("DECLARE %s CURSOR FOR %s", cursorName, sqlText)
	if _, err := t.ExecContext(ctx, declare); err != nil {
		_ = t.Rollback()
		return nil, fmt.Errorf("%w: declare cursor: %v", domain.ErrCursorFailed, err)
	}

	return &Session{tx: t, cursorName: cursorName, batchSize: batchSize}, nil
}

// Fetch returns the next batch of rows, or a zero-length batch with a
// nil error when the cursor is exhausted. Each row is scanned by
// column name into a project.Row, ready for the projector.
func (s *Session) Fetch(ctx context.Context) ([]project.Row, error) {
	if s.closed {
		return nil, fmt.Errorf("%w: fetch on closed cursor", domain.ErrCursorFailed)
	}

	query := fmt.Sprintf("FETCH FORWARD %d FROM %s", s.batchSize, s.cursorName)
	rows, err := s.tx.QueryxContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%w: fetch: %v", domain.ErrCursorFailed, err)
	}
	defer rows.Close()

	var batch []project.Row
	for rows.Next() {
		raw := make(map[string]interface{})
		if err := rows.MapScan(raw); err != nil {
			return nil, fmt.Errorf("%w: scan row: %v", domain.ErrCursorFailed, err)
		}
		batch = append(batch, project.Row(raw))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: row iteration: %v", domain.ErrCursorFailed, err)
	}

	return batch, nil
}

// Close releases the cursor, commits the transaction, and returns the
// connection to the pool. It is safe to call more than once and is the
// single action the driver must guarantee on every exit path,
// including iterator abandonment on client disconnect.
func (s *Session) Close(ctx context.Context) error {
	if s.closed {
		return nil
	}
	s.closed = true

	_, closeErr := s.tx.ExecContext(ctx, fmt.Sprintf("CLOSE %s", s.cursorName))
	commitErr := s.tx.Commit()

	if closeErr != nil {
		_ = s.tx.Rollback()
		return fmt.Errorf("%w: close cursor: %v", domain.ErrCursorFailed, closeErr)
	}
	if commitErr != nil {
		return fmt.Errorf("%w: commit: %v", domain.ErrCursorFailed, commitErr)
	}
	return nil
}

func distinctSources(mapping []domain.ColumnMapping) []string {
	seen := make(map[string]struct{}, len(mapping))
	var sources []string
	for _, col := range mapping {
		if _, ok := seen[col.Source]; ok {
			continue
		}
		seen[col.Source] = struct{}{}
		sources = append(sources, col.Source)
	}
	return sources
}

// buildSelect composes the projected SELECT, validating every source
// against the Record allow-list before interpolation — no user-supplied
// text is ever passed through as SQL (spec §9).
func buildSelect(sources []string, rowLimit int) (string, error) {
	if len(sources) == 0 {
		return "", fmt.Errorf("no columns to select")
	}

	query := "SELECT "
	for i, s := range sources {
		if !domain.ValidSource(s) {
			return "", fmt.Errorf("unrecognized source column %q", s)
		}
		if i > 0 {
			query += ", "
		}
		query += s
	}
	query += " FROM records"

	if rowLimit > 0 {
		query += fmt.Sprintf(" LIMIT %d", rowLimit)
	}

	return query, nil
}
