package schema

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
)

// Execer is the slice of the ClickHouse connection the loader needs.
type Execer interface {
	Exec(ctx context.Context, query string, args ...any) error
}

// Qualify prefixes the table name in a CREATE statement with a database.
// The loader connects to the server's default database, so the target
// database may not exist yet and cannot be part of the connection config.
func Qualify(ddl, database string) string {
	return strings.Replace(ddl, "CREATE TABLE IF NOT EXISTS ", "CREATE TABLE IF NOT EXISTS "+database+".", 1)
}

// Apply creates the database and every table. All statements use
// IF NOT EXISTS, so reapplying on a populated instance is safe.
func Apply(ctx context.Context, conn Execer, database string, log zerolog.Logger) error {
	if err := conn.Exec(ctx, "CREATE DATABASE IF NOT EXISTS "+database); err != nil {
		return fmt.Errorf("creating database %s: %w", database, err)
	}
	for i, ddl := range Tables {
		if err := conn.Exec(ctx, Qualify(ddl, database)); err != nil {
			return fmt.Errorf("applying table definition %d/%d: %w", i+1, len(Tables), err)
		}
	}
	log.Info().Str("database", database).Int("tables", len(Tables)).Msg("schema applied")
	return nil
}
