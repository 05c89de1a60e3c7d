package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
	"go.uber.org/atomic"
	"veo3.app/license/models"
)

const (
	redisKeyPrefix = "license:"
	// maxSwapAttempts bounds retries when a watched key is touched by an
	// unrelated write between WATCH and EXEC.
	maxSwapAttempts = 3
)

// RedisStorage stores each license as a JSON value under license:<key>.
type RedisStorage struct {
	client *redis.Client
	closed atomic.Bool
}

// ConnectRedis accepts a redis:// URL or a bare host:port address.
func ConnectRedis(ctx context.Context, redisURL string) (*RedisStorage, error) {
	var client *redis.Client
	if strings.HasPrefix(redisURL, "redis://") || strings.HasPrefix(redisURL, "rediss://") {
		opt, err := redis.ParseURL(redisURL)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		client = redis.NewClient(opt)
	} else {
		client = redis.NewClient(&redis.Options{Addr: redisURL})
	}

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return NewRedisStorage(client), nil
}

func NewRedisStorage(client *redis.Client) *RedisStorage {
	return &RedisStorage{client: client}
}

func redisKey(key string) string {
	return redisKeyPrefix + key
}

func (s *RedisStorage) FindLicenseByKey(ctx context.Context, key string) (*models.License, error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}

	raw, err := s.client.Get(ctx, redisKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find license: %w", err)
	}

	return decodeLicense(raw)
}

func (s *RedisStorage) InsertLicense(ctx context.Context, license *models.License) error {
	if s.closed.Load() {
		return ErrClosed
	}

	data, err := json.Marshal(license)
	if err != nil {
		return fmt.Errorf("failed to encode license: %w", err)
	}

	ok, err := s.client.SetNX(ctx, redisKey(license.Key), data, 0).Result()
	if err != nil {
		return fmt.Errorf("failed to insert license: %w", err)
	}
	if !ok {
		return ErrDuplicateKey
	}

	return nil
}

func (s *RedisStorage) SaveLicense(ctx context.Context, license *models.License) error {
	if s.closed.Load() {
		return ErrClosed
	}

	data, err := json.Marshal(license)
	if err != nil {
		return fmt.Errorf("failed to encode license: %w", err)
	}

	if err := s.client.Set(ctx, redisKey(license.Key), data, 0).Err(); err != nil {
		return fmt.Errorf("failed to save license: %w", err)
	}

	return nil
}

func (s *RedisStorage) CompareAndSwapLicense(ctx context.Context, expectedStatus string, license *models.License) (bool, error) {
	if s.closed.Load() {
		return false, ErrClosed
	}

	data, err := json.Marshal(license)
	if err != nil {
		return false, fmt.Errorf("failed to encode license: %w", err)
	}

	key := redisKey(license.Key)
	swapped := false

	txf := func(tx *redis.Tx) error {
		raw, err := tx.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return nil
		}
		if err != nil {
			return err
		}

		current, err := decodeLicense(raw)
		if err != nil {
			return err
		}
		if current.Status != expectedStatus {
			return nil
		}

		_, err = tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
			p.Set(ctx, key, data, 0)
			return nil
		})
		if err != nil {
			return err
		}
		swapped = true
		return nil
	}

	for attempt := 0; attempt < maxSwapAttempts; attempt++ {
		err = s.client.Watch(ctx, txf, key)
		if errors.Is(err, redis.TxFailedErr) {
			// The key changed under us; re-read and re-check the status.
			continue
		}
		if err != nil {
			return false, fmt.Errorf("failed to update license: %w", err)
		}
		return swapped, nil
	}

	return false, fmt.Errorf("failed to update license after %d attempts: %w", maxSwapAttempts, ErrContention)
}

func (s *RedisStorage) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	return s.client.Close()
}

func decodeLicense(raw []byte) (*models.License, error) {
	var license models.License
	if err := json.Unmarshal(raw, &license); err != nil {
		return nil, fmt.Errorf("failed to decode license: %w", err)
	}
	return &license, nil
}
