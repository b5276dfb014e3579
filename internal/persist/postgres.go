package persist

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"time"
)

const createRecordsTable = `
		CREATE TABLE IF NOT EXISTS credential_records (
			namespace  TEXT NOT NULL,
			field      TEXT NOT NULL,
			value      TEXT NOT NULL,
			expires_at TIMESTAMPTZ,
			PRIMARY KEY (namespace, field)
		)
	`

// Postgres keeps each record as one row per field in credential_records.
type Postgres struct {
	db  *sql.DB
	now func() time.Time
}

// NewPostgres wraps db. Call Migrate once before use.
func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db, now: time.Now}
}

// Migrate creates the records table if it does not exist.
func (s *Postgres) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, createRecordsTable); err != nil {
		return fmt.Errorf("failed to create credential_records: %w", err)
	}
	return nil
}

// Save deletes the old rows and inserts the new ones in one transaction.
func (s *Postgres) Save(ctx context.Context, ns string, fields map[string]string, ttl time.Duration) error {
	var expiresAt sql.NullTime
	if ttl > 0 {
		expiresAt = sql.NullTime{Time: s.now().Add(ttl), Valid: true}
	}

	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)

	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM credential_records WHERE namespace = $1`, ns); err != nil {
			return fmt.Errorf("failed to clear record: %w", err)
		}
		for _, name := range names {
			_, err := tx.ExecContext(ctx, `
		INSERT INTO credential_records (namespace, field, value, expires_at)
		VALUES ($1, $2, $3, $4)
	`, ns, name, fields[name], expiresAt)
			if err != nil {
				return fmt.Errorf("failed to save field %s: %w", name, err)
			}
		}
		return nil
	})
}

func (s *Postgres) Load(ctx context.Context, ns string) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT field, value
		FROM credential_records
		WHERE namespace = $1 AND (expires_at IS NULL OR expires_at > $2)
	`, ns, s.now())
	if err != nil {
		return nil, fmt.Errorf("failed to load record: %w", err)
	}
	defer rows.Close()

	fields := make(map[string]string)
	for rows.Next() {
		var name, value string
		if err := rows.Scan(&name, &value); err != nil {
			return nil, fmt.Errorf("failed to scan field: %w", err)
		}
		fields[name] = value
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate fields: %w", err)
	}
	if len(fields) == 0 {
		return nil, ErrNotFound
	}
	return fields, nil
}

func (s *Postgres) Remove(ctx context.Context, ns string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM credential_records WHERE namespace = $1`, ns); err != nil {
		return fmt.Errorf("failed to remove record: %w", err)
	}
	return nil
}

// DeleteExpired removes rows past their expiry and returns how many went.
func (s *Postgres) DeleteExpired(ctx context.Context) (int64, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM credential_records WHERE expires_at <= $1`, s.now())
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired records: %w", err)
	}
	count, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return count, nil
}

func (s *Postgres) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Postgres) withTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("tx err: %v, rb err: %v", err, rbErr)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}
