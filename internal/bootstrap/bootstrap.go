// Package bootstrap provisions the broker's one-time credential import file
// and hands the container over to the real EMQX entrypoint under an
// unprivileged identity.
//
// The wrapper runs as root (the container's entrypoint override), writes a
// single salted-hash record for the broker's built-in user database, points
// the broker's authentication config at it via environment overrides, then
// replaces itself with the broker process. A detached watcher removes the
// file once the broker reports healthy. The plaintext password never touches
// disk.
package bootstrap

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/csv"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
)

// Fixed paths inside the EMQX image.
const (
	// InstallDir is the broker's installation tree. Runtime-generated
	// files (the Erlang cookie among them) land here, so the tree must be
	// writable by the unprivileged identity and HOME must point at it.
	InstallDir = "/opt/emqx"

	// BootstrapFile is where the broker's importer expects the credential
	// file. Lives under the configuration directory.
	BootstrapFile = "/opt/emqx/etc/bootstrap_users.csv"

	// BrokerEntrypoint is the real entrypoint of the EMQX image that the
	// wrapper execs into.
	BrokerEntrypoint = "/usr/bin/docker-entrypoint.sh"
)

// saltBytes is the size of the random salt before hex encoding.
const saltBytes = 16

// fileHeader is the mandatory first row of the import file. The broker's
// importer treats the first row as field names; without it the data row is
// misread as a header and zero users are imported.
var fileHeader = []string{"user_id", "password_hash", "salt", "is_superuser"}

// Credential is the bootstrap user supplied through MQTT_USER and
// MQTT_PASSWORD.
type Credential struct {
	Username string
	Password string
}

// Configured reports whether both halves of the credential pair are set.
// A partially set pair is not an error: the broker starts with anonymous
// access, same as an unset pair.
func (c Credential) Configured() bool {
	return c.Username != "" && c.Password != ""
}

// Record is one line of the broker's built-in-database import file. Only
// the salted hash is stored, never the plaintext password.
type Record struct {
	UserID       string
	PasswordHash string
	Salt         string
	Superuser    bool
}

// HashPassword hashes a password with a fresh random salt using the
// broker's convention: hash = sha256(password || salt), suffix salt, both
// hex-encoded. Every call draws a new salt.
func HashPassword(password string) (hash, salt string, err error) {
	raw := make([]byte, saltBytes)
	if _, err := rand.Read(raw); err != nil {
		return "", "", fmt.Errorf("generating salt: %w", err)
	}
	salt = hex.EncodeToString(raw)
	sum := sha256.Sum256([]byte(password + salt))
	return hex.EncodeToString(sum[:]), salt, nil
}

// NewRecord converts a credential into an import record. The bootstrap
// user is always a superuser: it is the operator's initial login.
func NewRecord(c Credential) (Record, error) {
	hash, salt, err := HashPassword(c.Password)
	if err != nil {
		return Record{}, err
	}
	return Record{
		UserID:       c.Username,
		PasswordHash: hash,
		Salt:         salt,
		Superuser:    true,
	}, nil
}

// WriteFile writes the import file: header row plus one row per record,
// mode 0600, owned by the target identity. The broker reads it exactly once
// at startup.
func WriteFile(path string, records []Record, id Identity) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating bootstrap directory: %w", err)
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("creating bootstrap file: %w", err)
	}

	w := csv.NewWriter(f)
	if err := w.Write(fileHeader); err != nil {
		f.Close()
		return fmt.Errorf("writing bootstrap header: %w", err)
	}
	for _, r := range records {
		row := []string{r.UserID, r.PasswordHash, r.Salt, strconv.FormatBool(r.Superuser)}
		if err := w.Write(row); err != nil {
			f.Close()
			return fmt.Errorf("writing bootstrap record: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		f.Close()
		return fmt.Errorf("flushing bootstrap file: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("closing bootstrap file: %w", err)
	}

	if err := chownFunc(path, id.UID, id.GID); err != nil {
		return fmt.Errorf("setting bootstrap file ownership: %w", err)
	}
	return nil
}

// AuthEnv returns the environment overrides that switch the broker to
// password-based authentication against its built-in user database, with
// usernames as identities and sha256 suffix-salt hashing, seeded from the
// bootstrap file at path.
func AuthEnv(path string) []string {
	return []string{
		"EMQX_AUTHENTICATION__1__MECHANISM=password_based",
		"EMQX_AUTHENTICATION__1__BACKEND=built_in_database",
		"EMQX_AUTHENTICATION__1__USER_ID_TYPE=username",
		"EMQX_AUTHENTICATION__1__PASSWORD_HASH_ALGORITHM__NAME=sha256",
		"EMQX_AUTHENTICATION__1__PASSWORD_HASH_ALGORITHM__SALT_POSITION=suffix",
		"EMQX_AUTHENTICATION__1__BOOTSTRAP_FILE=" + path,
	}
}
