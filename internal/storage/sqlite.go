package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"

	ports "dailyledger/internal/sheets"

	_ "modernc.org/sqlite"
)

var _ ports.Store = (*SQLiteStore)(nil)

// SQLiteStore keeps the ledger as raw rows in a local SQLite file. It serves
// as a standalone backend and as the mirror target of the worker.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens dbPath, applies migrations and writes header when the
// store has none yet.
func NewSQLiteStore(ctx context.Context, dbPath string, header []string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// One writer at a time keeps SQLite from returning SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	s := &SQLiteStore{db: db}
	if len(header) > 0 {
		if err := s.EnsureHeader(ctx, header); err != nil {
			db.Close()
			return nil, err
		}
	}
	return s, nil
}

func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// EnsureHeader stores header unless one is already present.
func (s *SQLiteStore) EnsureHeader(ctx context.Context, header []string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin header tx: %w", err)
	}
	defer tx.Rollback()

	var n int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM ledger_header`).Scan(&n); err != nil {
		return fmt.Errorf("count header: %w", err)
	}
	if n > 0 {
		return nil
	}
	for i, name := range header {
		if _, err := tx.ExecContext(ctx, `INSERT INTO ledger_header (position, name) VALUES (?, ?)`, i, name); err != nil {
			return fmt.Errorf("insert header column %d: %w", i, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit header: %w", err)
	}
	slog.InfoContext(ctx, "Ledger header initialized", "columns", len(header))
	return nil
}

// ReadAll returns the header followed by every row in insertion order.
func (s *SQLiteStore) ReadAll(ctx context.Context) ([][]string, error) {
	header, err := s.header(ctx)
	if err != nil {
		return nil, err
	}
	out := [][]string{header}

	rows, err := s.db.QueryContext(ctx, `SELECT id, cells FROM ledger_rows ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("query rows: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			id  int64
			raw string
		)
		if err := rows.Scan(&id, &raw); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		var cells []string
		if err := json.Unmarshal([]byte(raw), &cells); err != nil {
			return nil, fmt.Errorf("decode row %d: %w", id, err)
		}
		out = append(out, cells)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}
	return out, nil
}

func (s *SQLiteStore) header(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name FROM ledger_header ORDER BY position`)
	if err != nil {
		return nil, fmt.Errorf("query header: %w", err)
	}
	defer rows.Close()
	var header []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan header: %w", err)
		}
		header = append(header, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate header: %w", err)
	}
	return header, nil
}

// AppendRow stores cells and returns "sqlite:<id>".
func (s *SQLiteStore) AppendRow(ctx context.Context, cells []any) (string, error) {
	id, _, err := s.insert(ctx, ports.Cells(cells), nil)
	if err != nil {
		return "", err
	}
	return "sqlite:" + strconv.FormatInt(id, 10), nil
}

// MirrorRow stores a row appended elsewhere. sourceRef identifies the
// original append; a redelivered event with the same reference is a no-op.
func (s *SQLiteStore) MirrorRow(ctx context.Context, sourceRef string, cells []string) (bool, error) {
	_, inserted, err := s.insert(ctx, cells, &sourceRef)
	if err != nil {
		return false, err
	}
	if !inserted {
		slog.DebugContext(ctx, "Mirror row already present", "source_ref", sourceRef)
	}
	return inserted, nil
}

func (s *SQLiteStore) insert(ctx context.Context, cells []string, sourceRef *string) (int64, bool, error) {
	if cells == nil {
		cells = []string{}
	}
	raw, err := json.Marshal(cells)
	if err != nil {
		return 0, false, fmt.Errorf("encode row: %w", err)
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO ledger_rows (cells, source_ref) VALUES (?, ?) ON CONFLICT(source_ref) DO NOTHING`,
		string(raw), sourceRef)
	if err != nil {
		return 0, false, fmt.Errorf("insert row: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, false, fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return 0, false, nil
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, false, fmt.Errorf("last insert id: %w", err)
	}
	return id, true, nil
}

// Count returns the number of stored data rows.
func (s *SQLiteStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM ledger_rows`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count rows: %w", err)
	}
	return n, nil
}

// Ping checks the database connection.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}
