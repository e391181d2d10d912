package store

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/docuflow/invoice-extractor/internal/entity"
)

// PostgresConfig mirrors the pool knobs exposed through the environment.
type PostgresConfig struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
	DialTimeout     time.Duration
}

// PostgresStore is the production row sink backed by a pgx pool.
type PostgresStore struct {
	pool *pgxpool.Pool
	log  *slog.Logger
}

// OpenPostgres creates a configured pgx pool and verifies connectivity.
func OpenPostgres(ctx context.Context, cfg PostgresConfig, log *slog.Logger) (*PostgresStore, error) {
	if log == nil {
		log = slog.Default()
	}
	pc, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		pc.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		pc.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		pc.MaxConnLifetime = cfg.MaxConnLifetime
	}
	if cfg.MaxConnIdleTime > 0 {
		pc.MaxConnIdleTime = cfg.MaxConnIdleTime
	}
	pc.ConnConfig.RuntimeParams["application_name"] = "invoice-extractor"

	if cfg.DialTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.DialTimeout)
		defer cancel()
	}
	pool, err := pgxpool.NewWithConfig(ctx, pc)
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}

	log.Info("store.postgres.open", "max_conns", pc.MaxConns)
	return &PostgresStore{pool: pool, log: log}, nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) InsertRecords(ctx context.Context, table string, records []entity.ExtractionRecord) (*Report, error) {
	if err := validIdent(table); err != nil {
		return &Report{Status: StatusError, Message: err.Error()}, err
	}

	existing, err := s.existingColumns(ctx, table)
	if err != nil {
		return &Report{Status: StatusError, Message: err.Error()}, err
	}

	if existing != nil {
		if diff := columnDiff(existing); len(diff) > 0 {
			s.log.Warn("store.postgres.schema_mismatch", "table", table, "differences", diff)
			return &Report{
				Status:      StatusSchemaMismatch,
				Message:     fmt.Sprintf("schema mismatch for table %q", table),
				Differences: diff,
			}, nil
		}
	} else {
		s.log.Info("store.postgres.create_table", "table", table)
		if _, err := s.pool.Exec(ctx, createSQL(table)); err != nil {
			wrapped := fmt.Errorf("create table: %w", err)
			return &Report{Status: StatusError, Message: wrapped.Error()}, wrapped
		}
	}

	rows := make([][]any, 0, len(records))
	for _, r := range records {
		row := make([]any, 0, len(entity.RecordColumns))
		for _, v := range r.Values() {
			row = append(row, v)
		}
		rows = append(rows, row)
	}
	n, err := s.pool.CopyFrom(ctx, pgx.Identifier{table}, entity.RecordColumns, pgx.CopyFromRows(rows))
	if err != nil {
		wrapped := fmt.Errorf("copy rows: %w", err)
		return &Report{Status: StatusError, Message: wrapped.Error()}, wrapped
	}

	s.log.Info("store.postgres.insert.ok", "table", table, "rows", n)
	return &Report{
		Status:       StatusSuccess,
		Message:      fmt.Sprintf("inserted %d rows into %q", n, table),
		RowsInserted: int(n),
	}, nil
}

func (s *PostgresStore) ReadRecords(ctx context.Context, table string) ([]entity.ExtractionRecord, error) {
	if err := validIdent(table); err != nil {
		return nil, err
	}
	cols := strings.Join(quoteAll(entity.RecordColumns), ", ")
	rows, err := s.pool.Query(ctx, fmt.Sprintf(`SELECT %s FROM %q`, cols, table))
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", table, err)
	}
	defer rows.Close()

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

// existingColumns returns the live column set, or nil when the table does
// not exist yet.
func (s *PostgresStore) existingColumns(ctx context.Context, table string) (map[string]struct{}, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT column_name FROM information_schema.columns
         WHERE table_schema = current_schema() AND table_name = $1`, table)
	if err != nil {
		return nil, fmt.Errorf("inspect table: %w", err)
	}
	defer rows.Close()

	cols := make(map[string]struct{})
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan column: %w", err)
		}
		cols[name] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(cols) == 0 {
		return nil, nil
	}
	return cols, nil
}
