// Package trust verifies reading signatures against the node's trust list.
//
// The trust list is a JSON file mapping ingester IDs to ed25519 public
// keys. The bridge preserves the original ingester's signature instead of
// re-signing, so an observer's store holds the same verifiable rows as the
// station that produced them.
package trust

import (
	"crypto/ed25519"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"
)

var (
	ErrUnknownIngester = errors.New("ingester not in trust list")
	ErrKeyVersion      = errors.New("key version mismatch")
	ErrBadSignature    = errors.New("signature verification failed")
)

// Entry is one trusted ingester.
type Entry struct {
	PublicKey  string `json:"public_key"` // hex-encoded ed25519 public key
	KeyVersion int    `json:"key_version"`
}

type trustFile struct {
	Ingesters map[string]Entry `json:"ingesters"`
}

// Store holds the parsed trust list.
type Store struct {
	path string

	mu   sync.RWMutex
	keys map[string]trustedKey
}

type trustedKey struct {
	key     ed25519.PublicKey
	version int
}

// Load reads and parses the trust list at path.
func Load(path string) (*Store, error) {
	s := &Store{path: path, keys: make(map[string]trustedKey)}
	if err := s.Reload(); err != nil {
		return nil, err
	}
	return s, nil
}

// Reload re-reads the trust list from disk, replacing the key set.
func (s *Store) Reload() error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return fmt.Errorf("reading trust list: %w", err)
	}

	var tf trustFile
	if err := json.Unmarshal(data, &tf); err != nil {
		return fmt.Errorf("parsing trust list %s: %w", s.path, err)
	}

	keys := make(map[string]trustedKey, len(tf.Ingesters))
	for id, entry := range tf.Ingesters {
		raw, err := hex.DecodeString(entry.PublicKey)
		if err != nil {
			return fmt.Errorf("ingester %s: decoding public key: %w", id, err)
		}
		if len(raw) != ed25519.PublicKeySize {
			return fmt.Errorf("ingester %s: public key is %d bytes, want %d", id, len(raw), ed25519.PublicKeySize)
		}
		keys[id] = trustedKey{key: ed25519.PublicKey(raw), version: entry.KeyVersion}
	}

	s.mu.Lock()
	s.keys = keys
	s.mu.Unlock()
	return nil
}

// Verify checks an ed25519 signature over payload for the given ingester.
func (s *Store) Verify(ingesterID string, keyVersion int, payload, signature []byte) error {
	s.mu.RLock()
	tk, ok := s.keys[ingesterID]
	s.mu.RUnlock()

	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownIngester, ingesterID)
	}
	if tk.version != keyVersion {
		return fmt.Errorf("%w: ingester %s has version %d, reading claims %d",
			ErrKeyVersion, ingesterID, tk.version, keyVersion)
	}
	if !ed25519.Verify(tk.key, payload, signature) {
		return fmt.Errorf("%w: ingester %s", ErrBadSignature, ingesterID)
	}
	return nil
}

// Len returns the number of trusted ingesters.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.keys)
}
