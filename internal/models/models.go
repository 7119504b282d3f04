package models

import (
	"time"

	"wesense/internal/bootstrap"
)

// Credential is a broker account managed by the registry. The stored
// hash is the exportable form the broker's bootstrap importer expects,
// not a one-way-only KDF.
type Credential struct {
	ID           uint       `gorm:"primarykey" json:"id"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
	Username     string     `gorm:"uniqueIndex;not null" json:"username"`
	PasswordHash string     `gorm:"not null" json:"-"`
	Salt         string     `gorm:"not null" json:"-"`
	Superuser    bool       `gorm:"default:true" json:"superuser"`
	Enabled      bool       `gorm:"default:true" json:"enabled"`
	LastExported *time.Time `json:"last_exported,omitempty"`
}

// SetPassword hashes the password with a fresh salt and stores both.
func (c *Credential) SetPassword(password string) error {
	hash, salt, err := bootstrap.HashPassword(password)
	if err != nil {
		return err
	}
	c.PasswordHash = hash
	c.Salt = salt
	return nil
}

// Record returns the credential as a bootstrap file row.
func (c *Credential) Record() bootstrap.Record {
	return bootstrap.Record{
		UserID:       c.Username,
		PasswordHash: c.PasswordHash,
		Salt:         c.Salt,
		Superuser:    c.Superuser,
	}
}

// Device is a sensor node known to the deployment. Rows are advisory;
// ingest does not consult them, the trust list does authentication.
type Device struct {
	ID         uint       `gorm:"primarykey" json:"id"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
	DeviceID   string     `gorm:"uniqueIndex;not null" json:"device_id"`
	Name       string     `json:"name"`
	Location   string     `json:"location,omitempty"`
	IngesterID string     `gorm:"index" json:"ingester_id,omitempty"`
	Enabled    bool       `gorm:"default:true" json:"enabled"`
	LastSeen   *time.Time `json:"last_seen,omitempty"`
}
