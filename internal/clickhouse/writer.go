package clickhouse

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Buffering defaults. Sensor readings are small and frequent; batching
// keeps the MergeTree part count sane.
const (
	DefaultMaxRows       = 1000
	DefaultFlushInterval = 10 * time.Second
)

// Writer buffers rows and flushes them to one table in batches, either
// when the buffer fills or on a timer. Safe for concurrent Append.
type Writer struct {
	inserter Inserter
	table    string
	columns  []string

	maxRows  int
	interval time.Duration
	log      zerolog.Logger

	mu      sync.Mutex
	rows    [][]any
	started bool

	stop chan struct{}
	done chan struct{}
}

// WriterOption adjusts a Writer.
type WriterOption func(*Writer)

// WithMaxRows sets the buffer size that triggers a flush.
func WithMaxRows(n int) WriterOption {
	return func(w *Writer) { w.maxRows = n }
}

// WithFlushInterval sets the timer-based flush period.
func WithFlushInterval(d time.Duration) WriterOption {
	return func(w *Writer) { w.interval = d }
}

// WithLogger sets the writer's logger.
func WithLogger(log zerolog.Logger) WriterOption {
	return func(w *Writer) { w.log = log }
}

// NewWriter creates a buffered writer for table with the given column
// order. Call Start to enable timer flushes and Close to drain.
func NewWriter(inserter Inserter, table string, columns []string, opts ...WriterOption) *Writer {
	w := &Writer{
		inserter: inserter,
		table:    table,
		columns:  columns,
		maxRows:  DefaultMaxRows,
		interval: DefaultFlushInterval,
		log:      zerolog.Nop(),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Append buffers one row. Flushes synchronously when the buffer is full, so
// a failing server surfaces as an Append error rather than silent loss.
func (w *Writer) Append(row []any) error {
	if len(row) != len(w.columns) {
		return fmt.Errorf("row has %d values, table %s has %d columns", len(row), w.table, len(w.columns))
	}

	w.mu.Lock()
	w.rows = append(w.rows, row)
	full := len(w.rows) >= w.maxRows
	w.mu.Unlock()

	if full {
		return w.Flush(context.Background())
	}
	return nil
}

// Flush sends all buffered rows. No-op on an empty buffer. On error the
// rows are put back so a later flush can retry them.
func (w *Writer) Flush(ctx context.Context) error {
	w.mu.Lock()
	rows := w.rows
	w.rows = nil
	w.mu.Unlock()

	if len(rows) == 0 {
		return nil
	}

	if err := w.inserter.Insert(ctx, w.table, w.columns, rows); err != nil {
		w.mu.Lock()
		w.rows = append(rows, w.rows...)
		w.mu.Unlock()
		return fmt.Errorf("flushing %d rows to %s: %w", len(rows), w.table, err)
	}
	w.log.Debug().Int("rows", len(rows)).Str("table", w.table).Msg("batch flushed")
	return nil
}

// Buffered returns the number of rows waiting for a flush.
func (w *Writer) Buffered() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.rows)
}

// Start launches the timer flush loop.
func (w *Writer) Start() {
	w.mu.Lock()
	if w.started {
		w.mu.Unlock()
		return
	}
	w.started = true
	w.mu.Unlock()

	go func() {
		defer close(w.done)
		ticker := time.NewTicker(w.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if err := w.Flush(context.Background()); err != nil {
					w.log.Error().Err(err).Msg("periodic flush failed, rows retained for retry")
				}
			case <-w.stop:
				return
			}
		}
	}()
}

// Close stops the flush loop and drains the buffer.
func (w *Writer) Close() error {
	w.mu.Lock()
	started := w.started
	w.started = false
	w.mu.Unlock()

	if started {
		close(w.stop)
		<-w.done
	}
	return w.Flush(context.Background())
}
