// Package clickhouse wraps the native-protocol ClickHouse client used by
// the schema loader, the migration tool, and the bridge's buffered writer.
package clickhouse

import (
	"context"
	"fmt"
	"strings"
	"time"

	ch "github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
)

// Config identifies one ClickHouse instance.
type Config struct {
	Host     string
	Port     int
	Database string
	Username string
	Password string
}

// Addr returns the native-protocol address of the instance.
func (c Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Open connects to the instance and verifies the connection with a ping.
func Open(ctx context.Context, cfg Config) (driver.Conn, error) {
	conn, err := ch.Open(&ch.Options{
		Addr: []string{cfg.Addr()},
		Auth: ch.Auth{
			Database: cfg.Database,
			Username: cfg.Username,
			Password: cfg.Password,
		},
		DialTimeout: 10 * time.Second,
		Compression: &ch.Compression{Method: ch.CompressionLZ4},
	})
	if err != nil {
		return nil, fmt.Errorf("connecting to clickhouse at %s: %w", cfg.Addr(), err)
	}
	if err := conn.Ping(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("pinging clickhouse at %s: %w", cfg.Addr(), err)
	}
	return conn, nil
}

// Inserter abstracts batch insertion so the buffered writer can be tested
// without a server.
type Inserter interface {
	Insert(ctx context.Context, table string, columns []string, rows [][]any) error
}

// NewInserter adapts a driver connection to the Inserter interface.
func NewInserter(conn driver.Conn) Inserter {
	return connInserter{conn: conn}
}

type connInserter struct {
	conn driver.Conn
}

func (c connInserter) Insert(ctx context.Context, table string, columns []string, rows [][]any) error {
	query := fmt.Sprintf("INSERT INTO %s (%s)", table, strings.Join(columns, ", "))
	batch, err := c.conn.PrepareBatch(ctx, query)
	if err != nil {
		return fmt.Errorf("preparing batch for %s: %w", table, err)
	}
	for _, row := range rows {
		if err := batch.Append(row...); err != nil {
			return fmt.Errorf("appending row to %s batch: %w", table, err)
		}
	}
	if err := batch.Send(); err != nil {
		return fmt.Errorf("sending %s batch: %w", table, err)
	}
	return nil
}
