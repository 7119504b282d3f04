package schema

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeExecer struct {
	queries []string
	failOn  int
}

func (f *fakeExecer) Exec(_ context.Context, query string, _ ...any) error {
	f.queries = append(f.queries, query)
	if f.failOn > 0 && len(f.queries) == f.failOn {
		return errors.New("syntax error")
	}
	return nil
}

func TestApply(t *testing.T) {
	exec := &fakeExecer{}
	require.NoError(t, Apply(context.Background(), exec, "wesense", zerolog.Nop()))

	require.Len(t, exec.queries, 1+len(Tables))
	assert.Equal(t, "CREATE DATABASE IF NOT EXISTS wesense", exec.queries[0])
	assert.Contains(t, exec.queries[1], "CREATE TABLE IF NOT EXISTS wesense.readings")
	assert.Contains(t, exec.queries[2], "CREATE TABLE IF NOT EXISTS wesense.device_registry")
}

func TestApplyStopsOnError(t *testing.T) {
	exec := &fakeExecer{failOn: 2}
	err := Apply(context.Background(), exec, "wesense", zerolog.Nop())
	require.Error(t, err)
	assert.Len(t, exec.queries, 2, "no statements after the failing one")
}

func TestReadingsColumnsMatchDDL(t *testing.T) {
	require.Len(t, ReadingsColumns, 25)

	// Every insert column must appear in the table definition, in order.
	pos := 0
	for _, col := range ReadingsColumns {
		idx := strings.Index(ReadingsTable[pos:], col+" ")
		require.GreaterOrEqual(t, idx, 0, "column %s missing or out of order in DDL", col)
		pos += idx
	}
}

func TestQualify(t *testing.T) {
	got := Qualify("CREATE TABLE IF NOT EXISTS readings (x String)", "wesense")
	assert.Equal(t, "CREATE TABLE IF NOT EXISTS wesense.readings (x String)", got)
}
