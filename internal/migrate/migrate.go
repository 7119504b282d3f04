// Package migrate copies tables between two ClickHouse instances, renaming
// the database on the way. It is a one-time tool: check row counts, copy,
// report. No retry or conflict handling — a mismatch is reported, not
// resolved.
package migrate

import (
	"context"
	"fmt"
	"strings"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/rs/zerolog"
)

// Conn is the slice of the ClickHouse connection the migrator needs.
// Satisfied by driver.Conn.
type Conn interface {
	Exec(ctx context.Context, query string, args ...any) error
	Query(ctx context.Context, query string, args ...any) (driver.Rows, error)
	QueryRow(ctx context.Context, query string, args ...any) driver.Row
}

// Options configures one migration run.
type Options struct {
	// SourceAddr is the source's native-protocol address as reachable
	// FROM the destination: the copy runs server-side via remote().
	SourceAddr     string
	SourceUser     string
	SourcePassword string

	// SourceDB is copied into DestDB on the destination — this is the
	// schema rename.
	SourceDB string
	DestDB   string

	// Tables limits the run; empty means every table in SourceDB.
	Tables []string
}

// TableResult is the per-table outcome of a run.
type TableResult struct {
	Table      string
	SourceRows uint64
	DestRows   uint64
	Err        error
}

// Match reports whether the copy arrived complete.
func (r TableResult) Match() bool {
	return r.Err == nil && r.SourceRows == r.DestRows
}

// Migrator drives the copy.
type Migrator struct {
	src  Conn
	dst  Conn
	opts Options
	log  zerolog.Logger
}

// New creates a migrator over open connections to both instances.
func New(src, dst Conn, opts Options, log zerolog.Logger) *Migrator {
	return &Migrator{src: src, dst: dst, opts: opts, log: log}
}

// Run migrates every selected table and returns the per-table results.
// Table-level failures are recorded in the result, not returned: the rest
// of the tables still get their chance.
func (m *Migrator) Run(ctx context.Context) ([]TableResult, error) {
	tables := m.opts.Tables
	if len(tables) == 0 {
		var err error
		tables, err = m.listTables(ctx)
		if err != nil {
			return nil, err
		}
	}
	if len(tables) == 0 {
		return nil, fmt.Errorf("source database %s has no tables", m.opts.SourceDB)
	}

	if err := m.dst.Exec(ctx, "CREATE DATABASE IF NOT EXISTS "+m.opts.DestDB); err != nil {
		return nil, fmt.Errorf("creating destination database %s: %w", m.opts.DestDB, err)
	}

	results := make([]TableResult, 0, len(tables))
	for _, table := range tables {
		res := m.migrateTable(ctx, table)
		if res.Err != nil {
			m.log.Error().Err(res.Err).Str("table", table).Msg("table migration failed")
		} else if !res.Match() {
			m.log.Warn().Str("table", table).
				Uint64("source_rows", res.SourceRows).Uint64("dest_rows", res.DestRows).
				Msg("row count mismatch after copy")
		} else {
			m.log.Info().Str("table", table).Uint64("rows", res.DestRows).Msg("table migrated")
		}
		results = append(results, res)
	}
	return results, nil
}

// listTables enumerates the source database.
func (m *Migrator) listTables(ctx context.Context) ([]string, error) {
	rows, err := m.src.Query(ctx, "SHOW TABLES FROM "+m.opts.SourceDB)
	if err != nil {
		return nil, fmt.Errorf("listing tables in %s: %w", m.opts.SourceDB, err)
	}
	defer rows.Close()

	var tables []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scanning table name: %w", err)
		}
		tables = append(tables, name)
	}
	return tables, rows.Err()
}

func (m *Migrator) migrateTable(ctx context.Context, table string) TableResult {
	res := TableResult{Table: table}
	srcTable := m.opts.SourceDB + "." + table
	dstTable := m.opts.DestDB + "." + table

	if err := m.src.QueryRow(ctx, "SELECT count() FROM "+srcTable).Scan(&res.SourceRows); err != nil {
		res.Err = fmt.Errorf("counting source rows: %w", err)
		return res
	}

	var ddl string
	if err := m.src.QueryRow(ctx, "SHOW CREATE TABLE "+srcTable).Scan(&ddl); err != nil {
		res.Err = fmt.Errorf("fetching table definition: %w", err)
		return res
	}
	if err := m.dst.Exec(ctx, RewriteDatabase(ddl, m.opts.SourceDB, m.opts.DestDB)); err != nil {
		res.Err = fmt.Errorf("creating destination table: %w", err)
		return res
	}

	insert := fmt.Sprintf(
		"INSERT INTO %s SELECT * FROM remote('%s', '%s', '%s', '%s', '%s')",
		dstTable, m.opts.SourceAddr, m.opts.SourceDB, table,
		m.opts.SourceUser, m.opts.SourcePassword,
	)
	if err := m.dst.Exec(ctx, insert); err != nil {
		res.Err = fmt.Errorf("copying rows: %w", err)
		return res
	}

	if err := m.dst.QueryRow(ctx, "SELECT count() FROM "+dstTable).Scan(&res.DestRows); err != nil {
		res.Err = fmt.Errorf("counting destination rows: %w", err)
		return res
	}
	return res
}

// RewriteDatabase retargets a SHOW CREATE TABLE statement from one
// database to another and makes it idempotent. Handles both the plain and
// backtick-quoted forms ClickHouse emits.
func RewriteDatabase(ddl, from, to string) string {
	ddl = strings.Replace(ddl, "CREATE TABLE "+from+".", "CREATE TABLE "+to+".", 1)
	ddl = strings.Replace(ddl, "CREATE TABLE `"+from+"`.", "CREATE TABLE `"+to+"`.", 1)
	ddl = strings.Replace(ddl, "CREATE TABLE ", "CREATE TABLE IF NOT EXISTS ", 1)
	return ddl
}
