package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/docuflow/invoice-extractor/internal/entity"
)

// SQLiteStore is the embedded-database row sink, used for local runs and
// tests.
type SQLiteStore struct {
	db  *sql.DB
	log *slog.Logger
}

// OpenSQLite opens (or creates) the database at path. Use ":memory:" for an
// ephemeral store.
func OpenSQLite(path string, log *slog.Logger) (*SQLiteStore, error) {
	if log == nil {
		log = slog.Default()
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	log.Info("store.sqlite.open", "path", path)
	return &SQLiteStore{db: db, log: log}, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) InsertRecords(ctx context.Context, table string, records []entity.ExtractionRecord) (*Report, error) {
	if err := validIdent(table); err != nil {
		return &Report{Status: StatusError, Message: err.Error()}, err
	}

	exists, err := s.tableExists(ctx, table)
	if err != nil {
		return &Report{Status: StatusError, Message: err.Error()}, err
	}

	if exists {
		diff, err := s.schemaDiff(ctx, table)
		if err != nil {
			return &Report{Status: StatusError, Message: err.Error()}, err
		}
		if len(diff) > 0 {
			s.log.Warn("store.sqlite.schema_mismatch", "table", table, "differences", diff)
			return &Report{
				Status:      StatusSchemaMismatch,
				Message:     fmt.Sprintf("schema mismatch for table %q", table),
				Differences: diff,
			}, nil
		}
	} else {
		if err := s.createTable(ctx, table); err != nil {
			return &Report{Status: StatusError, Message: err.Error()}, err
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return &Report{Status: StatusError, Message: err.Error()}, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, insertSQL(table))
	if err != nil {
		return &Report{Status: StatusError, Message: err.Error()}, fmt.Errorf("prepare insert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for _, r := range records {
		args := make([]any, 0, len(entity.RecordColumns))
		for _, v := range r.Values() {
			args = append(args, v)
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return &Report{Status: StatusError, Message: err.Error()}, fmt.Errorf("insert row: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return &Report{Status: StatusError, Message: err.Error()}, fmt.Errorf("commit: %w", err)
	}

	s.log.Info("store.sqlite.insert.ok", "table", table, "rows", len(records))
	return &Report{
		Status:       StatusSuccess,
		Message:      fmt.Sprintf("inserted %d rows into %q", len(records), table),
		RowsInserted: len(records),
	}, nil
}

func (s *SQLiteStore) ReadRecords(ctx context.Context, table string) ([]entity.ExtractionRecord, error) {
	if err := validIdent(table); err != nil {
		return nil, err
	}
	cols := strings.Join(quoteAll(entity.RecordColumns), ", ")
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`SELECT %s FROM "%s"`, cols, table))
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", table, err)
	}
	defer func() { _ = rows.Close() }()

	var out []entity.ExtractionRecord
	for rows.Next() {
		values := make([]string, len(entity.RecordColumns))
		dest := make([]any, len(values))
		for i := range values {
			dest[i] = &values[i]
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		out = append(out, entity.RecordFromRow(entity.RecordColumns, values))
	}
	return out, rows.Err()
}

func (s *SQLiteStore) tableExists(ctx context.Context, table string) (bool, error) {
	var name string
	err := s.db.QueryRowContext(ctx,
		`SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?`, table,
	).Scan(&name)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check table: %w", err)
	}
	return true, nil
}

// schemaDiff compares the live table's columns against the record layout.
func (s *SQLiteStore) schemaDiff(ctx context.Context, table string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`PRAGMA table_info("%s")`, table))
	if err != nil {
		return nil, fmt.Errorf("table info: %w", err)
	}
	defer func() { _ = rows.Close() }()

	existing := make(map[string]struct{})
	for rows.Next() {
		var (
			cid     int
			name    string
			ctype   string
			notnull int
			dflt    sql.NullString
			pk      int
		)
		if err := rows.Scan(&cid, &name, &ctype, &notnull, &dflt, &pk); err != nil {
			return nil, fmt.Errorf("scan table info: %w", err)
		}
		existing[name] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return columnDiff(existing), nil
}

func (s *SQLiteStore) createTable(ctx context.Context, table string) error {
	s.log.Info("store.sqlite.create_table", "table", table)
	if _, err := s.db.ExecContext(ctx, createSQL(table)); err != nil {
		return fmt.Errorf("create table: %w", err)
	}
	return nil
}

func createSQL(table string) string {
	defs := make([]string, 0, len(entity.RecordColumns))
	for _, c := range entity.RecordColumns {
		defs = append(defs, fmt.Sprintf("%q TEXT", c))
	}
	return fmt.Sprintf(`CREATE TABLE "%s" (%s)`, table, strings.Join(defs, ", "))
}

func insertSQL(table string) string {
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(entity.RecordColumns)), ", ")
	return fmt.Sprintf(`INSERT INTO "%s" (%s) VALUES (%s)`,
		table, strings.Join(quoteAll(entity.RecordColumns), ", "), placeholders)
}

func quoteAll(cols []string) []string {
	out := make([]string, len(cols))
	for i, c := range cols {
		out[i] = fmt.Sprintf("%q", c)
	}
	return out
}

// columnDiff reports columns missing from either side of the comparison.
func columnDiff(existing map[string]struct{}) []string {
	var diff []string
	want := make(map[string]struct{}, len(entity.RecordColumns))
	for _, c := range entity.RecordColumns {
		want[c] = struct{}{}
		if _, ok := existing[c]; !ok {
			diff = append(diff, "missing column: "+c)
		}
	}
	for c := range existing {
		if _, ok := want[c]; !ok {
			diff = append(diff, "unexpected column: "+c)
		}
	}
	return diff
}
