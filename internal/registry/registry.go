// Package registry persists broker credentials and known devices. It
// backs the credentials CLI and the bootstrap file export. SQLite is
// the default for single-host installs; Postgres is available for
// shared deployments.
package registry

import (
	"time"

	"wesense/internal/models"

	"gorm.io/gorm"
)

// Store is the registry surface the CLI works against.
type Store interface {
	AutoMigrate() error
	Close() error

	ListCredentials() ([]*models.Credential, error)
	GetCredential(username string) (*models.Credential, error)
	CreateCredential(cred *models.Credential) error
	UpdateCredential(username string, cred *models.Credential) error
	DeleteCredential(username string) error
	MarkExported(usernames []string) error

	ListDevices() ([]*models.Device, error)
	GetDevice(deviceID string) (*models.Device, error)
	CreateDevice(device *models.Device) error
	UpdateDevice(deviceID string, device *models.Device) error
	DeleteDevice(deviceID string) error
	TouchDevice(deviceID string) error
}

// gormStore holds the operations shared by both backends.
type gormStore struct {
	db *gorm.DB
}

func (s *gormStore) AutoMigrate() error {
	return s.db.AutoMigrate(&models.Credential{}, &models.Device{})
}

func (s *gormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Credential operations
func (s *gormStore) ListCredentials() ([]*models.Credential, error) {
	var creds []*models.Credential
	if err := s.db.Order("username").Find(&creds).Error; err != nil {
		return nil, err
	}
	return creds, nil
}

func (s *gormStore) GetCredential(username string) (*models.Credential, error) {
	var cred models.Credential
	if err := s.db.Where("username = ?", username).First(&cred).Error; err != nil {
		return nil, err
	}
	return &cred, nil
}

func (s *gormStore) CreateCredential(cred *models.Credential) error {
	return s.db.Create(cred).Error
}

func (s *gormStore) UpdateCredential(username string, cred *models.Credential) error {
	return s.db.Model(&models.Credential{}).Where("username = ?", username).Updates(cred).Error
}

func (s *gormStore) DeleteCredential(username string) error {
	return s.db.Where("username = ?", username).Delete(&models.Credential{}).Error
}

// MarkExported stamps the credentials that were just written to a
// bootstrap file.
func (s *gormStore) MarkExported(usernames []string) error {
	if len(usernames) == 0 {
		return nil
	}
	now := time.Now()
	return s.db.Model(&models.Credential{}).
		Where("username IN ?", usernames).
		Update("last_exported", now).Error
}

// Device operations
func (s *gormStore) ListDevices() ([]*models.Device, error) {
	var devices []*models.Device
	if err := s.db.Order("device_id").Find(&devices).Error; err != nil {
		return nil, err
	}
	return devices, nil
}

func (s *gormStore) GetDevice(deviceID string) (*models.Device, error) {
	var device models.Device
	if err := s.db.Where("device_id = ?", deviceID).First(&device).Error; err != nil {
		return nil, err
	}
	return &device, nil
}

func (s *gormStore) CreateDevice(device *models.Device) error {
	return s.db.Create(device).Error
}

func (s *gormStore) UpdateDevice(deviceID string, device *models.Device) error {
	return s.db.Model(&models.Device{}).Where("device_id = ?", deviceID).Updates(device).Error
}

func (s *gormStore) DeleteDevice(deviceID string) error {
	return s.db.Where("device_id = ?", deviceID).Delete(&models.Device{}).Error
}

func (s *gormStore) TouchDevice(deviceID string) error {
	now := time.Now()
	return s.db.Model(&models.Device{}).Where("device_id = ?", deviceID).Update("last_seen", now).Error
}
