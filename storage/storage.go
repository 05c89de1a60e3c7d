package storage

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/atomic"
	"veo3.app/license/models"
)

var (
	ErrDuplicateKey = errors.New("license key already exists")
	ErrClosed       = errors.New("storage is closed")
	// ErrContention means a conditional update kept losing to concurrent
	// writers and gave up without deciding.
	ErrContention = errors.New("license update contended")
)

// Storage is the license record store. Lookups return (nil, nil) when the
// key is unknown.
type Storage interface {
	FindLicenseByKey(ctx context.Context, key string) (*models.License, error)
	// InsertLicense stores a new license and fails with ErrDuplicateKey if
	// the key is taken.
	InsertLicense(ctx context.Context, license *models.License) error
	// SaveLicense stores license, replacing any record with the same key.
	SaveLicense(ctx context.Context, license *models.License) error
	// CompareAndSwapLicense replaces the stored record only if its status is
	// still expectedStatus. It reports false when the record changed or is gone.
	CompareAndSwapLicense(ctx context.Context, expectedStatus string, license *models.License) (bool, error)

	Close() error
}

type Database map[string]models.License

type MemoryStorage struct {
	mu       sync.RWMutex
	licenses Database
	closed   atomic.Bool
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{licenses: make(Database)}
}

func (m *MemoryStorage) FindLicenseByKey(ctx context.Context, key string) (*models.License, error) {
	if m.closed.Load() {
		return nil, ErrClosed
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	license, exists := m.licenses[key]
	if !exists {
		return nil, nil
	}
	return &license, nil
}

func (m *MemoryStorage) InsertLicense(ctx context.Context, license *models.License) error {
	if m.closed.Load() {
		return ErrClosed
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.licenses[license.Key]; exists {
		return ErrDuplicateKey
	}
	m.licenses[license.Key] = *license
	return nil
}

func (m *MemoryStorage) SaveLicense(ctx context.Context, license *models.License) error {
	if m.closed.Load() {
		return ErrClosed
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	m.licenses[license.Key] = *license
	return nil
}

func (m *MemoryStorage) CompareAndSwapLicense(ctx context.Context, expectedStatus string, license *models.License) (bool, error) {
	if m.closed.Load() {
		return false, ErrClosed
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	current, exists := m.licenses[license.Key]
	if !exists || current.Status != expectedStatus {
		return false, nil
	}
	m.licenses[license.Key] = *license
	return true, nil
}

func (m *MemoryStorage) Close() error {
	m.closed.Store(true)
	return nil
}
