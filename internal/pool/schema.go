package pool

import (
	"context"
	"database/sql"
	_ "embed"

	"callerid-rotation/pkg/utils"
)

//go:embed schema.sql
var schemaSQL string

// EnsureSchema applies the embedded schema inside one transaction so a
// partially applied schema never commits. Statements are idempotent
// (IF NOT EXISTS), so running it on every start is safe.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	return utils.WithTx(ctx, db, nil, func(ctx context.Context, tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, schemaSQL)
		return err
	})
}
