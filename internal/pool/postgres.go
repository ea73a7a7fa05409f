package pool

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
)

// PostgresStore implements Store on the caller_ids table.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const callerIDColumns = `number, COALESCE(area_code, ''), COALESCE(carrier, ''),
       hourly_cap, daily_cap, last_used_at, active, COALESCE(metadata::text, ''), created_at, updated_at`

func scanCallerID(row interface{ Scan(dest ...any) error }) (CallerID, error) {
	var c CallerID
	var lastUsed sql.NullTime
	if err := row.Scan(
		&c.Number,
		&c.AreaCode,
		&c.Carrier,
		&c.HourlyCap,
		&c.DailyCap,
		&lastUsed,
		&c.Active,
		&c.Metadata,
		&c.CreatedAt,
		&c.UpdatedAt,
	); err != nil {
		return CallerID{}, err
	}
	if lastUsed.Valid {
		t := lastUsed.Time
		c.LastUsedAt = &t
	}
	return c, nil
}

func (s *PostgresStore) QueryCandidates(ctx context.Context, areaCode string, limit int) ([]CallerID, error) {
	const q = `
SELECT ` + callerIDColumns + `
FROM caller_ids
WHERE active = TRUE AND ($1 = '' OR area_code = $1)
ORDER BY last_used_at ASC NULLS FIRST, number ASC
LIMIT $2
`
	rows, err := s.db.QueryContext(ctx, q, areaCode, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []CallerID
	for rows.Next() {
		c, err := scanCallerID(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *PostgresStore) UpdateLastUsed(ctx context.Context, number string, at time.Time) error {
	// GREATEST keeps the column monotonic under out-of-order writes.
	const q = `
UPDATE caller_ids
SET last_used_at = GREATEST(COALESCE(last_used_at, 'epoch'::timestamptz), $2),
    updated_at = now()
WHERE number = $1
`
	res, err := s.db.ExecContext(ctx, q, number, at.UTC())
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) GetByNumber(ctx context.Context, number string) (CallerID, error) {
	const q = `
SELECT ` + callerIDColumns + `
FROM caller_ids
WHERE number = $1
`
	c, err := scanCallerID(s.db.QueryRowContext(ctx, q, number))
	if errors.Is(err, sql.ErrNoRows) {
		return CallerID{}, ErrNotFound
	}
	if err != nil {
		return CallerID{}, err
	}
	return c, nil
}

func (s *PostgresStore) Create(ctx context.Context, c CallerID) error {
	if err := validate(c); err != nil {
		return err
	}
	const q = `
INSERT INTO caller_ids (number, area_code, carrier, hourly_cap, daily_cap, last_used_at, active, metadata, created_at, updated_at)
VALUES ($1, NULLIF($2, ''), NULLIF($3, ''), $4, $5, $6, $7, NULLIF($8, '')::jsonb, $9, $9)
`
	var lastUsed any
	if c.LastUsedAt != nil {
		lastUsed = c.LastUsedAt.UTC()
	}
	_, err := s.db.ExecContext(ctx, q,
		c.Number,
		c.AreaCode,
		c.Carrier,
		c.HourlyCap,
		c.DailyCap,
		lastUsed,
		c.Active,
		c.Metadata,
		c.CreatedAt.UTC(),
	)
	if isUniqueViolation(err) {
		return ErrExists
	}
	return err
}

func (s *PostgresStore) Update(ctx context.Context, number string, u Update) (CallerID, error) {
	// COALESCE against the current row keeps the statement a single
	// round-trip; NULL params mean "unchanged".
	const q = `
UPDATE caller_ids
SET carrier = COALESCE($2, carrier),
    area_code = COALESCE($3, area_code),
    hourly_cap = COALESCE($4, hourly_cap),
    daily_cap = COALESCE($5, daily_cap),
    active = COALESCE($6, active),
    metadata = COALESCE($7::jsonb, metadata),
    updated_at = now()
WHERE number = $1
RETURNING ` + callerIDColumns + `
`
	c, err := scanCallerID(s.db.QueryRowContext(ctx, q, number,
		u.Carrier, u.AreaCode, u.HourlyCap, u.DailyCap, u.Active, u.Metadata))
	if errors.Is(err, sql.ErrNoRows) {
		return CallerID{}, ErrNotFound
	}
	if isCheckViolation(err) {
		return CallerID{}, ErrInvalid
	}
	if err != nil {
		return CallerID{}, err
	}
	return c, nil
}

func (s *PostgresStore) Deactivate(ctx context.Context, number string) error {
	const q = `
UPDATE caller_ids
SET active = FALSE, updated_at = now()
WHERE number = $1
`
	res, err := s.db.ExecContext(ctx, q, number)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) List(ctx context.Context) ([]CallerID, error) {
	const q = `
SELECT ` + callerIDColumns + `
FROM caller_ids
ORDER BY number ASC
`
	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []CallerID
	for rows.Next() {
		c, err := scanCallerID(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func isCheckViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23514"
}
