package bridge

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wesense/internal/schema"
	"wesense/internal/trust"
)

type fakeRowWriter struct {
	rows [][]any
	err  error
}

func (f *fakeRowWriter) Append(row []any) error {
	if f.err != nil {
		return f.err
	}
	f.rows = append(f.rows, row)
	return nil
}

func newTestBridge(t *testing.T) (*Bridge, *fakeRowWriter, ed25519.PrivateKey) {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	trustJSON, err := json.Marshal(map[string]any{
		"ingesters": map[string]any{
			"station-01": map[string]any{
				"public_key":  hex.EncodeToString(pub),
				"key_version": 1,
			},
		},
	})
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "trust_list.json")
	require.NoError(t, os.WriteFile(path, trustJSON, 0644))

	store, err := trust.Load(path)
	require.NoError(t, err)

	writer := &fakeRowWriter{}
	b := New(Config{BrokerURL: "tcp://localhost:1883"}, store, writer, zerolog.Nop())
	return b, writer, priv
}

func signedPayload(t *testing.T, priv ed25519.PrivateKey, reading Reading) []byte {
	t.Helper()
	raw, err := json.Marshal(reading)
	require.NoError(t, err)
	env := Envelope{
		Reading:    raw,
		Signature:  hex.EncodeToString(ed25519.Sign(priv, raw)),
		IngesterID: "station-01",
		KeyVersion: 1,
	}
	payload, err := json.Marshal(env)
	require.NoError(t, err)
	return payload
}

func testReading() Reading {
	return Reading{
		Timestamp:   1700000000.250,
		DeviceID:    "dev-1",
		ReadingType: "temperature",
		Value:       21.4,
		Unit:        "C",
		Latitude:    52.37,
		Longitude:   4.89,
	}
}

func TestHandleVerifiedReading(t *testing.T) {
	b, writer, priv := newTestBridge(t)

	b.Handle(signedPayload(t, priv, testReading()))

	snap := b.Stats()
	assert.Equal(t, uint64(1), snap.Received)
	assert.Equal(t, uint64(1), snap.Written)
	assert.Equal(t, uint64(0), snap.Rejected)

	require.Len(t, writer.rows, 1)
	row := writer.rows[0]
	require.Len(t, row, len(schema.ReadingsColumns))

	ts, ok := row[0].(time.Time)
	require.True(t, ok)
	assert.Equal(t, time.Unix(1700000000, 250_000_000).UTC(), ts)
	assert.Equal(t, "dev-1", row[1])
	assert.Equal(t, "temperature", row[5])
	assert.Equal(t, 21.4, row[6])
	assert.Equal(t, "station-01", row[23], "ingester preserved, not re-signed")
	assert.Equal(t, uint32(1), row[24])
	assert.NotEmpty(t, row[22], "original signature preserved")
}

func TestHandleUnsignedReadingStoredFlagged(t *testing.T) {
	b, writer, _ := newTestBridge(t)

	raw, err := json.Marshal(testReading())
	require.NoError(t, err)
	payload, err := json.Marshal(Envelope{Reading: raw})
	require.NoError(t, err)

	b.Handle(payload)

	snap := b.Stats()
	assert.Equal(t, uint64(1), snap.Written)
	assert.Equal(t, uint64(1), snap.Unsigned)

	require.Len(t, writer.rows, 1)
	assert.Equal(t, "", writer.rows[0][22], "empty signature flags the row")
	assert.Equal(t, "", writer.rows[0][23])
	assert.Equal(t, uint32(0), writer.rows[0][24])
}

func TestHandleBadSignatureRejected(t *testing.T) {
	b, writer, _ := newTestBridge(t)
	_, otherPriv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	b.Handle(signedPayload(t, otherPriv, testReading()))

	snap := b.Stats()
	assert.Equal(t, uint64(1), snap.Rejected)
	assert.Equal(t, uint64(0), snap.Written)
	assert.Empty(t, writer.rows, "rejected readings are not stored")
}

func TestHandleDuplicateDropped(t *testing.T) {
	b, writer, priv := newTestBridge(t)
	payload := signedPayload(t, priv, testReading())

	b.Handle(payload)
	b.Handle(payload)

	snap := b.Stats()
	assert.Equal(t, uint64(2), snap.Received)
	assert.Equal(t, uint64(1), snap.Written)
	assert.Equal(t, uint64(1), snap.Duplicates)
	assert.Len(t, writer.rows, 1)
}

func TestHandleRejectedReadingDoesNotClaimDedupKey(t *testing.T) {
	b, writer, priv := newTestBridge(t)
	_, attackerPriv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	// A forgery with the same device, type, and timestamp arrives first.
	b.Handle(signedPayload(t, attackerPriv, testReading()))
	b.Handle(signedPayload(t, priv, testReading()))

	snap := b.Stats()
	assert.Equal(t, uint64(1), snap.Rejected)
	assert.Equal(t, uint64(0), snap.Duplicates)
	assert.Equal(t, uint64(1), snap.Written, "legitimate reading must be stored")
	require.Len(t, writer.rows, 1)
	assert.Equal(t, "station-01", writer.rows[0][23])
}

func TestHandleMalformedPayload(t *testing.T) {
	b, writer, _ := newTestBridge(t)

	b.Handle([]byte("not json"))
	b.Handle([]byte(`{"signature":"aa"}`)) // envelope without a reading

	snap := b.Stats()
	assert.Equal(t, uint64(2), snap.Received)
	assert.Equal(t, uint64(2), snap.Failed)
	assert.Empty(t, writer.rows)
}

func TestHandleWriterFailureCounted(t *testing.T) {
	b, writer, priv := newTestBridge(t)
	writer.err = assert.AnError

	b.Handle(signedPayload(t, priv, testReading()))

	snap := b.Stats()
	assert.Equal(t, uint64(1), snap.Failed)
	assert.Equal(t, uint64(0), snap.Written)
}

func TestParseInterval(t *testing.T) {
	tests := []struct {
		in   string
		want time.Duration
	}{
		{"90s", 90 * time.Second},
		{"2m", 2 * time.Minute},
		{"60", 60 * time.Second}, // bare seconds, the container contract form
		{"5", 5 * time.Second},
		{"", DefaultStatsInterval},
		{"-5", DefaultStatsInterval},
		{"soon", DefaultStatsInterval},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ParseInterval(tt.in), "input %q", tt.in)
	}
}

func TestTimestampFallback(t *testing.T) {
	before := time.Now().UTC()
	got := timestampTime(0)
	after := time.Now().UTC()
	assert.False(t, got.Before(before))
	assert.False(t, got.After(after))
}
