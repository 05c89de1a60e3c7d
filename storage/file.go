package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"go.uber.org/atomic"
	"veo3.app/license/internal/logger"
	"veo3.app/license/models"
)

type LicenseList []models.License

// FileStorage keeps every license in memory and rewrites the whole JSON
// file after each change.
type FileStorage struct {
	mu       sync.RWMutex
	filepath string
	licenses Database
	closed   atomic.Bool
}

func NewFileStorage(filepath string) (*FileStorage, error) {
	fs := &FileStorage{
		filepath: filepath,
		licenses: make(Database),
	}
	err := fs.loadFromFile()
	return fs, err
}

func (f *FileStorage) loadFromFile() error {
	licenses, err := readLicenseList(f.filepath)
	if err != nil {
		if os.IsNotExist(err) {
			logger.Info("license file does not exist, starting with empty database", map[string]interface{}{
				"path": f.filepath,
			})
			return nil
		}
		return err
	}

	for _, license := range licenses {
		f.licenses[license.Key] = license
	}

	return nil
}

func readLicenseList(path string) (LicenseList, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := file.Close(); err != nil {
			logger.Warn("Failed to close file", map[string]interface{}{"error": err.Error()})
		}
	}()

	var licenses LicenseList
	if err := json.NewDecoder(file).Decode(&licenses); err != nil {
		return nil, fmt.Errorf("failed to parse JSON: %w", err)
	}
	return licenses, nil
}

// writeToFile must be called with f.mu held.
func (f *FileStorage) writeToFile() error {
	licenses := make(LicenseList, 0, len(f.licenses))
	for _, license := range f.licenses {
		licenses = append(licenses, license)
	}
	sort.Slice(licenses, func(i, j int) bool {
		return licenses[i].CreatedAt.Before(licenses[j].CreatedAt)
	})

	data, err := json.MarshalIndent(licenses, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode licenses: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(f.filepath), ".licenses-*.json")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write licenses: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync licenses: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	if err := os.Rename(tmpName, f.filepath); err != nil {
		return fmt.Errorf("failed to replace license file: %w", err)
	}
	return nil
}

func (f *FileStorage) FindLicenseByKey(ctx context.Context, key string) (*models.License, error) {
	if f.closed.Load() {
		return nil, ErrClosed
	}
	f.mu.RLock()
	defer f.mu.RUnlock()

	license, exists := f.licenses[key]
	if !exists {
		return nil, nil
	}
	return &license, nil
}

func (f *FileStorage) InsertLicense(ctx context.Context, license *models.License) error {
	if f.closed.Load() {
		return ErrClosed
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, exists := f.licenses[license.Key]; exists {
		return ErrDuplicateKey
	}
	return f.put(license)
}

func (f *FileStorage) SaveLicense(ctx context.Context, license *models.License) error {
	if f.closed.Load() {
		return ErrClosed
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.put(license)
}

func (f *FileStorage) CompareAndSwapLicense(ctx context.Context, expectedStatus string, license *models.License) (bool, error) {
	if f.closed.Load() {
		return false, ErrClosed
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	current, exists := f.licenses[license.Key]
	if !exists || current.Status != expectedStatus {
		return false, nil
	}
	if err := f.put(license); err != nil {
		return false, err
	}
	return true, nil
}

// put stores license and persists, rolling the map back if the write fails.
func (f *FileStorage) put(license *models.License) error {
	previous, existed := f.licenses[license.Key]
	f.licenses[license.Key] = *license

	if err := f.writeToFile(); err != nil {
		if existed {
			f.licenses[license.Key] = previous
		} else {
			delete(f.licenses, license.Key)
		}
		return err
	}
	return nil
}

func (f *FileStorage) Close() error {
	f.closed.Store(true)
	return nil
}
