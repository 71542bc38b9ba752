package tenants

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
)

//go:embed schema.sql
var schemaSQL string

// Schema returns the reference DDL for the tables PostgresStore uses
func Schema() string {
	return schemaSQL
}

// ApplySchema creates the tables if they do not exist. It is meant for
// tests and local development, not for migrating production databases.
func ApplySchema(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}
