// Package postgres provides Postgres-backed persistence implementations.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/harvestiq/siteingest/internal/domain"
	"github.com/harvestiq/siteingest/internal/store"
)

// dbPool is the pool surface the stores use; pgxmock satisfies it.
type dbPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// RecordStoreConfig controls the Postgres connection pool for web
// records.
type RecordStoreConfig struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

// RecordStore persists reconciled web records keyed by normalized URL.
type RecordStore struct {
	pool dbPool
}

// NewRecordStore creates a Postgres-backed RecordStore.
func NewRecordStore(ctx context.Context, cfg RecordStoreConfig) (*RecordStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("database.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}
	return &RecordStore{pool: pool}, nil
}

// NewRecordStoreWithPool wraps an existing pool, for tests.
func NewRecordStoreWithPool(pool dbPool) *RecordStore {
	return &RecordStore{pool: pool}
}

// Close closes the underlying connection pool.
func (s *RecordStore) Close() {
	s.pool.Close()
}

// EnsureSchema creates the web_records table when it does not exist.
func (s *RecordStore) EnsureSchema(ctx context.Context) error {
	ddl := `
		CREATE TABLE IF NOT EXISTS web_records (
			url              TEXT PRIMARY KEY,
			event_date       TIMESTAMPTZ NOT NULL,
			title            TEXT NOT NULL DEFAULT '',
			twitter          TEXT NOT NULL DEFAULT '',
			facebook         TEXT NOT NULL DEFAULT '',
			instagram        TEXT NOT NULL DEFAULT '',
			linkedin         TEXT NOT NULL DEFAULT '',
			youtube          TEXT NOT NULL DEFAULT '',
			pinterest        TEXT NOT NULL DEFAULT '',
			email            TEXT NOT NULL DEFAULT '',
			postcode         TEXT NOT NULL DEFAULT '',
			status_code      TEXT NOT NULL DEFAULT '',
			redirect_url     TEXT NOT NULL DEFAULT '',
			meta_description TEXT NOT NULL DEFAULT '',
			phones           TEXT[] NOT NULL DEFAULT '{}',
			is_blacklisted   BOOLEAN NOT NULL DEFAULT FALSE
		);
	`
	if _, err := s.pool.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("ensure web_records schema: %w", err)
	}
	return nil
}

// recordColumns is the insert column order; argsPerRecord placeholders
// are bound per row in the same order.
const (
	recordColumns = `url, event_date, title, twitter, facebook, instagram, linkedin,
		youtube, pinterest, email, postcode, status_code, redirect_url,
		meta_description, phones, is_blacklisted`
	argsPerRecord = 16
)

// upsertConflictClause applies the reconciliation policy in SQL: scalars
// keep the stored value unless it is empty, the event date keeps its
// maximum, the blacklist flag only turns on, and phones are unioned in
// first-seen order, deduplicated, and capped at three.
const upsertConflictClause = `
	ON CONFLICT (url) DO UPDATE SET
		event_date       = GREATEST(web_records.event_date, EXCLUDED.event_date),
		title            = COALESCE(NULLIF(web_records.title, ''), EXCLUDED.title),
		twitter          = COALESCE(NULLIF(web_records.twitter, ''), EXCLUDED.twitter),
		facebook         = COALESCE(NULLIF(web_records.facebook, ''), EXCLUDED.facebook),
		instagram        = COALESCE(NULLIF(web_records.instagram, ''), EXCLUDED.instagram),
		linkedin         = COALESCE(NULLIF(web_records.linkedin, ''), EXCLUDED.linkedin),
		youtube          = COALESCE(NULLIF(web_records.youtube, ''), EXCLUDED.youtube),
		pinterest        = COALESCE(NULLIF(web_records.pinterest, ''), EXCLUDED.pinterest),
		email            = COALESCE(NULLIF(web_records.email, ''), EXCLUDED.email),
		postcode         = COALESCE(NULLIF(web_records.postcode, ''), EXCLUDED.postcode),
		status_code      = COALESCE(NULLIF(web_records.status_code, ''), EXCLUDED.status_code),
		redirect_url     = COALESCE(NULLIF(web_records.redirect_url, ''), EXCLUDED.redirect_url),
		meta_description = COALESCE(NULLIF(web_records.meta_description, ''), EXCLUDED.meta_description),
		is_blacklisted   = web_records.is_blacklisted OR EXCLUDED.is_blacklisted,
		phones = (
			SELECT COALESCE(array_agg(p ORDER BY first_ord), '{}')
			FROM (
				SELECT p, min(ord) AS first_ord
				FROM unnest(web_records.phones || EXCLUDED.phones) WITH ORDINALITY AS t(p, ord)
				WHERE p <> ''
				GROUP BY p
				ORDER BY min(ord)
				LIMIT 3
			) d
		)
	RETURNING (xmax = 0) AS inserted;
`

// buildUpsertQuery renders the multi-row insert for n records.
func buildUpsertQuery(n int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "INSERT INTO web_records (%s)\nVALUES ", recordColumns)
	for i := 0; i < n; i++ {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteByte('(')
		for j := 0; j < argsPerRecord; j++ {
			if j > 0 {
				b.WriteString(", ")
			}
			fmt.Fprintf(&b, "$%d", i*argsPerRecord+j+1)
		}
		b.WriteByte(')')
	}
	b.WriteString(upsertConflictClause)
	return b.String()
}

func recordArgs(rec domain.Record) []any {
	phones := rec.Phones
	if phones == nil {
		phones = []string{}
	}
	return []any{
		rec.URL, rec.Date, rec.Title, rec.Twitter, rec.Facebook,
		rec.Instagram, rec.LinkedIn, rec.YouTube, rec.Pinterest,
		rec.Email, rec.Postcode, rec.StatusCode, rec.RedirectURL,
		rec.MetaDescription, phones, rec.IsBlacklisted,
	}
}

// BulkUpsert implements store.RecordRepository with one multi-row
// round trip. Duplicate-key-class failures surface wrapping
// store.ErrDuplicateKey so callers can split the batch.
func (s *RecordStore) BulkUpsert(ctx context.Context, records []domain.Record) (store.BulkResult, error) {
	if len(records) == 0 {
		return store.BulkResult{}, nil
	}
	args := make([]any, 0, len(records)*argsPerRecord)
	for _, rec := range records {
		args = append(args, recordArgs(rec)...)
	}

	rows, err := s.pool.Query(ctx, buildUpsertQuery(len(records)), args...)
	if err != nil {
		return store.BulkResult{}, classifyWriteError("bulk upsert", err)
	}
	defer rows.Close()

	var res store.BulkResult
	for rows.Next() {
		var inserted bool
		if err := rows.Scan(&inserted); err != nil {
			return store.BulkResult{}, fmt.Errorf("scan upsert outcome: %w", err)
		}
		if inserted {
			res.Created++
		} else {
			res.Updated++
		}
	}
	if err := rows.Err(); err != nil {
		return store.BulkResult{}, classifyWriteError("bulk upsert", err)
	}
	return res, nil
}

// UpsertOne implements store.RecordRepository for the fallback path.
func (s *RecordStore) UpsertOne(ctx context.Context, record domain.Record) (store.UpsertOutcome, error) {
	var inserted bool
	err := s.pool.QueryRow(ctx, buildUpsertQuery(1), recordArgs(record)...).Scan(&inserted)
	if err != nil {
		return "", classifyWriteError("upsert record", err)
	}
	if inserted {
		return store.OutcomeCreated, nil
	}
	return store.OutcomeUpdated, nil
}

// GetRecord implements store.RecordRepository.
func (s *RecordStore) GetRecord(ctx context.Context, url string) (domain.Record, error) {
	query := fmt.Sprintf(`SELECT %s FROM web_records WHERE url = $1;`, recordColumns)
	var rec domain.Record
	err := s.pool.QueryRow(ctx, query, url).Scan(
		&rec.URL, &rec.Date, &rec.Title, &rec.Twitter, &rec.Facebook,
		&rec.Instagram, &rec.LinkedIn, &rec.YouTube, &rec.Pinterest,
		&rec.Email, &rec.Postcode, &rec.StatusCode, &rec.RedirectURL,
		&rec.MetaDescription, &rec.Phones, &rec.IsBlacklisted,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Record{}, store.ErrNotFound
		}
		return domain.Record{}, fmt.Errorf("get record: %w", err)
	}
	if len(rec.Phones) == 0 {
		rec.Phones = nil
	}
	return rec, nil
}

// Duplicate-key-class SQLSTATEs: unique_violation plus the cardinality
// violation raised when one statement touches a conflicting row twice.
const (
	codeUniqueViolation      = "23505"
	codeCardinalityViolation = "21000"
)

func classifyWriteError(op string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case codeUniqueViolation, codeCardinalityViolation:
			return fmt.Errorf("%s: %w: %s", op, store.ErrDuplicateKey, pgErr.Message)
		}
	}
	return fmt.Errorf("%s: %w", op, err)
}
