package history

import (
	"context"
	"database/sql"
	"time"
)

// PostgresRepo appends to the allocation_log table.
type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo {
	return &PostgresRepo{db: db}
}

func (r *PostgresRepo) Append(ctx context.Context, rec Record) error {
	const q = `
INSERT INTO allocation_log (id, at, number, destination, campaign, agent, outcome, latency_ms)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
`
	_, err := r.db.ExecContext(ctx, q,
		rec.ID,
		rec.At.UTC(),
		rec.Number,
		rec.Destination,
		rec.Campaign,
		rec.Agent,
		rec.Outcome,
		rec.LatencyMS,
	)
	return err
}

func (r *PostgresRepo) CountByOutcome(ctx context.Context, since time.Time) (map[string]int64, error) {
	const q = `
SELECT outcome, COUNT(*)
FROM allocation_log
WHERE at >= $1
GROUP BY outcome
`
	rows, err := r.db.QueryContext(ctx, q, since.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := map[string]int64{}
	for rows.Next() {
		var outcome string
		var n int64
		if err := rows.Scan(&outcome, &n); err != nil {
			return nil, err
		}
		out[outcome] = n
	}
	return out, rows.Err()
}
