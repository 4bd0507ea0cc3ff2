package postgres

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/oabdelghanydev-eng/AzafcoSys-sub000/internal/domain"
	"github.com/oabdelghanydev-eng/AzafcoSys-sub000/internal/store"
)

//go:embed schema.sql
var schemaSQL string

const defaultLockWait = 5 * time.Second

type Store struct {
	db       *sql.DB
	lockWait time.Duration
}

// New opens the pool and pings the database. lockWait bounds how long a
// transaction waits for a row lock before failing with store.ErrContention.
func New(ctx context.Context, databaseURL string, lockWait time.Duration) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	if lockWait <= 0 {
		lockWait = defaultLockWait
	}
	return &Store{db: db, lockWait: lockWait}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Migrate applies the embedded schema. Every statement is idempotent.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

func (s *Store) WithTx(ctx context.Context, fn func(tx store.Tx) error) error {
	pgTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return mapError(err)
	}
	defer func() { _ = pgTx.Rollback() }()

	// SET does not take bind parameters.
	if _, err := pgTx.ExecContext(ctx, fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", s.lockWait.Milliseconds())); err != nil {
		return mapError(err)
	}

	if err := fn(&txn{q: pgTx}); err != nil {
		return mapError(err)
	}
	if err := pgTx.Commit(); err != nil {
		return mapError(err)
	}
	return nil
}

func (s *Store) View(ctx context.Context, fn func(r store.Reader) error) error {
	pgTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true})
	if err != nil {
		return mapError(err)
	}
	defer func() { _ = pgTx.Rollback() }()

	if err := fn(&txn{q: pgTx}); err != nil {
		return mapError(err)
	}
	return pgTx.Commit()
}

func (s *Store) CreateAuditLog(ctx context.Context, entry domain.AuditLog) error {
	if !entry.Entity.Kind.Valid() || entry.Entity.ID == "" {
		return store.ErrInvalidTransaction
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_logs (id, actor_username, actor_role, action, entity_kind, entity_id, detail, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, entry.ID, entry.ActorUsername, entry.ActorRole, entry.Action, string(entry.Entity.Kind), entry.Entity.ID, entry.Detail, entry.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrInvalidTransaction
		}
		return err
	}
	return nil
}

func (s *Store) ListAuditLogs(ctx context.Context, ref domain.EntityRef, limit int) ([]domain.AuditLog, error) {
	if limit < 1 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, actor_username, actor_role, action, entity_kind, entity_id, detail, created_at
		FROM audit_logs
		WHERE entity_kind = $1 AND entity_id = $2
		ORDER BY created_at DESC, id DESC
		LIMIT $3
	`, string(ref.Kind), ref.ID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	logs := make([]domain.AuditLog, 0, limit)
	for rows.Next() {
		var entry domain.AuditLog
		if err := rows.Scan(&entry.ID, &entry.ActorUsername, &entry.ActorRole, &entry.Action,
			&entry.Entity.Kind, &entry.Entity.ID, &entry.Detail, &entry.CreatedAt); err != nil {
			return nil, err
		}
		entry.CreatedAt = entry.CreatedAt.UTC()
		logs = append(logs, entry)
	}
	return logs, rows.Err()
}

// mapError turns lock waits, deadlocks and serialization failures into
// store.ErrContention and constraint violations into
// store.ErrInvalidTransaction. Everything else passes through.
func mapError(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	switch pgErr.Code {
	case "55P03", "40001", "40P01":
		return fmt.Errorf("%w: %s", store.ErrContention, pgErr.Message)
	case "23505", "23503", "23514":
		return fmt.Errorf("%w: %s", store.ErrInvalidTransaction, pgErr.Message)
	}
	return err
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

func dateUTC(t time.Time) time.Time {
	return time.Date(t.UTC().Year(), t.UTC().Month(), t.UTC().Day(), 0, 0, 0, 0, time.UTC)
}

func nullTime(val *time.Time) any {
	if val == nil {
		return nil
	}
	return *val
}

func nullIfZero(val time.Time) any {
	if val.IsZero() {
		return nil
	}
	return val
}

func nullDate(val *time.Time) any {
	if val == nil {
		return nil
	}
	return dateUTC(*val)
}

func nullInt64(val int64) any {
	if val == 0 {
		return nil
	}
	return val
}

func timePtr(val sql.NullTime) *time.Time {
	if !val.Valid {
		return nil
	}
	t := val.Time.UTC()
	return &t
}
