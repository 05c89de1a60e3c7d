package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/atomic"
	"veo3.app/license/internal/logger"
	"veo3.app/license/models"
)

//go:embed migrations/*.sql
var migrations embed.FS

type SQLiteStorage struct {
	db     *sql.DB
	path   string
	closed atomic.Bool
}

func NewSQLiteStorage(path string) (*SQLiteStorage, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One connection serialises writers so CAS updates never see SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	storage := &SQLiteStorage{
		db:   db,
		path: path,
	}

	if err := storage.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return storage, nil
}

func (s *SQLiteStorage) migrate() error {
	source, err := iofs.New(migrations, "migrations")
	if err != nil {
		return fmt.Errorf("failed to read migrations: %w", err)
	}

	driver, err := migratesqlite.WithInstance(s.db, &migratesqlite.Config{})
	if err != nil {
		return fmt.Errorf("failed to create sqlite driver instance: %w", err)
	}

	// The migrate instance is not closed: closing it would close s.db.
	m, err := migrate.NewWithInstance("iofs", source, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("failed to create migration instance: %w", err)
	}

	if err := m.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			logger.Debug("No new migrations found")
			return nil
		}

		var dirtyErr migrate.ErrDirty
		if errors.As(err, &dirtyErr) {
			return fmt.Errorf("migration failed: dirty database version %d", dirtyErr.Version)
		}

		return fmt.Errorf("migration failed: %w", err)
	}

	return nil
}

const licenseColumns = `key, email, type, status, check_frequency, created_at, activated_at, expires_at`

func (s *SQLiteStorage) FindLicenseByKey(ctx context.Context, key string) (*models.License, error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}
	query := `SELECT ` + licenseColumns + ` FROM licenses WHERE key = ?`

	var (
		license     models.License
		activatedAt sql.NullTime
		expiresAt   sql.NullTime
	)
	err := s.db.QueryRowContext(ctx, query, key).Scan(
		&license.Key,
		&license.Email,
		&license.Type,
		&license.Status,
		&license.CheckFrequency,
		&license.CreatedAt,
		&activatedAt,
		&expiresAt,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find license: %w", err)
	}

	license.CreatedAt = license.CreatedAt.UTC()
	license.ActivatedAt = nullTimePtr(activatedAt)
	license.ExpiresAt = nullTimePtr(expiresAt)

	return &license, nil
}

func (s *SQLiteStorage) InsertLicense(ctx context.Context, license *models.License) error {
	if s.closed.Load() {
		return ErrClosed
	}
	query := `INSERT INTO licenses (` + licenseColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?) ON CONFLICT(key) DO NOTHING`

	result, err := s.db.ExecContext(ctx, query, licenseArgs(license)...)
	if err != nil {
		return fmt.Errorf("failed to insert license: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to insert license: %w", err)
	}
	if rows == 0 {
		return ErrDuplicateKey
	}

	return nil
}

func (s *SQLiteStorage) SaveLicense(ctx context.Context, license *models.License) error {
	if s.closed.Load() {
		return ErrClosed
	}
	query := `INSERT OR REPLACE INTO licenses (` + licenseColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	if _, err := s.db.ExecContext(ctx, query, licenseArgs(license)...); err != nil {
		return fmt.Errorf("failed to save license: %w", err)
	}

	return nil
}

func (s *SQLiteStorage) CompareAndSwapLicense(ctx context.Context, expectedStatus string, license *models.License) (bool, error) {
	if s.closed.Load() {
		return false, ErrClosed
	}
	query := `UPDATE licenses
		SET email = ?, type = ?, status = ?, check_frequency = ?, created_at = ?, activated_at = ?, expires_at = ?
		WHERE key = ? AND status = ?`

	result, err := s.db.ExecContext(ctx, query,
		license.Email,
		license.Type,
		license.Status,
		license.CheckFrequency,
		license.CreatedAt.UTC(),
		timePtrArg(license.ActivatedAt),
		timePtrArg(license.ExpiresAt),
		license.Key,
		expectedStatus,
	)
	if err != nil {
		return false, fmt.Errorf("failed to update license: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to update license: %w", err)
	}

	return rows == 1, nil
}

func (s *SQLiteStorage) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	return s.db.Close()
}

func licenseArgs(license *models.License) []interface{} {
	return []interface{}{
		license.Key,
		license.Email,
		license.Type,
		license.Status,
		license.CheckFrequency,
		license.CreatedAt.UTC(),
		timePtrArg(license.ActivatedAt),
		timePtrArg(license.ExpiresAt),
	}
}

func timePtrArg(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return t.UTC()
}

func nullTimePtr(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time.UTC()
	return &t
}
