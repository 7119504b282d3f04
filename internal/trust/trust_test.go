package trust

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTrustList(t *testing.T, entries map[string]Entry) string {
	t.Helper()
	data, err := json.Marshal(trustFile{Ingesters: entries})
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "trust_list.json")
	require.NoError(t, os.WriteFile(path, data, 0644))
	return path
}

func newKeyPair(t *testing.T) (ed25519.PublicKey, ed25519.PrivateKey) {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	return pub, priv
}

func TestVerify(t *testing.T) {
	pub, priv := newKeyPair(t)
	path := writeTrustList(t, map[string]Entry{
		"station-01": {PublicKey: hex.EncodeToString(pub), KeyVersion: 2},
	})

	store, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 1, store.Len())

	payload := []byte(`{"device_id":"dev-1","reading_type":"temperature","value":21.4}`)
	sig := ed25519.Sign(priv, payload)

	assert.NoError(t, store.Verify("station-01", 2, payload, sig))
}

func TestVerifyUnknownIngester(t *testing.T) {
	pub, _ := newKeyPair(t)
	path := writeTrustList(t, map[string]Entry{
		"station-01": {PublicKey: hex.EncodeToString(pub), KeyVersion: 1},
	})
	store, err := Load(path)
	require.NoError(t, err)

	err = store.Verify("station-99", 1, []byte("x"), []byte("y"))
	assert.ErrorIs(t, err, ErrUnknownIngester)
}

func TestVerifyKeyVersionMismatch(t *testing.T) {
	pub, priv := newKeyPair(t)
	path := writeTrustList(t, map[string]Entry{
		"station-01": {PublicKey: hex.EncodeToString(pub), KeyVersion: 3},
	})
	store, err := Load(path)
	require.NoError(t, err)

	payload := []byte("payload")
	err = store.Verify("station-01", 2, payload, ed25519.Sign(priv, payload))
	assert.ErrorIs(t, err, ErrKeyVersion)
}

func TestVerifyBadSignature(t *testing.T) {
	pub, _ := newKeyPair(t)
	_, otherPriv := newKeyPair(t)
	path := writeTrustList(t, map[string]Entry{
		"station-01": {PublicKey: hex.EncodeToString(pub), KeyVersion: 1},
	})
	store, err := Load(path)
	require.NoError(t, err)

	payload := []byte("payload")
	err = store.Verify("station-01", 1, payload, ed25519.Sign(otherPriv, payload))
	assert.ErrorIs(t, err, ErrBadSignature)
}

func TestLoadRejectsMalformedKey(t *testing.T) {
	path := writeTrustList(t, map[string]Entry{
		"station-01": {PublicKey: "not-hex", KeyVersion: 1},
	})
	_, err := Load(path)
	assert.Error(t, err)

	path = writeTrustList(t, map[string]Entry{
		"station-01": {PublicKey: "abcd", KeyVersion: 1},
	})
	_, err = Load(path)
	assert.Error(t, err, "truncated key must be rejected")
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}

func TestReload(t *testing.T) {
	pub, _ := newKeyPair(t)
	path := writeTrustList(t, map[string]Entry{
		"station-01": {PublicKey: hex.EncodeToString(pub), KeyVersion: 1},
	})
	store, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 1, store.Len())

	pub2, _ := newKeyPair(t)
	data, err := json.Marshal(trustFile{Ingesters: map[string]Entry{
		"station-01": {PublicKey: hex.EncodeToString(pub), KeyVersion: 1},
		"station-02": {PublicKey: hex.EncodeToString(pub2), KeyVersion: 1},
	}})
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0644))

	require.NoError(t, store.Reload())
	assert.Equal(t, 2, store.Len())
}
