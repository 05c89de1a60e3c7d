package testutil

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"veo3.app/license/license"
	"veo3.app/license/models"
	"veo3.app/license/storage"
)

const AdminKey = "test-admin-key"

// Now is the fixed clock used by registries built here.
var Now = time.Date(2025, 3, 15, 12, 0, 0, 0, time.UTC)

// TestStorage creates an empty memory storage
func TestStorage() *storage.MemoryStorage {
	return storage.NewMemoryStorage()
}

// TestRegistry builds a registry over store with the fixed clock and AdminKey.
func TestRegistry(store storage.Storage, opts ...license.Option) *license.Registry {
	opts = append([]license.Option{license.WithClock(func() time.Time { return Now })}, opts...)
	return license.NewRegistry(store, license.NewSecretAuthorizer(AdminKey), opts...)
}

// CreateTestLicense creates a license with the given key and status. Active
// licenses expire 30 days after Now.
func CreateTestLicense(key, status string) models.License {
	l := models.License{
		Key:            key,
		Type:           models.TypeMonthly,
		Status:         status,
		CheckFrequency: models.DefaultCheckFrequency,
		CreatedAt:      Now.Add(-24 * time.Hour),
	}
	if status == models.StatusActive {
		activatedAt := Now.Add(-time.Hour)
		expiresAt := activatedAt.AddDate(0, 0, 30)
		l.Email = "customer@example.com"
		l.ActivatedAt = &activatedAt
		l.ExpiresAt = &expiresAt
	}
	return l
}

// SetupTestData stores one license per status plus an expired one.
func SetupTestData(store storage.Storage) error {
	ctx := context.Background()

	expired := CreateTestLicense("EXPD-0000-0000-0001", models.StatusActive)
	past := Now.Add(-time.Minute)
	expired.ExpiresAt = &past

	licenses := []models.License{
		CreateTestLicense("ACTV-0000-0000-0001", models.StatusActive),
		CreateTestLicense("PEND-0000-0000-0001", models.StatusPending),
		CreateTestLicense("SUSP-0000-0000-0001", models.StatusSuspended),
		expired,
	}

	for i := range licenses {
		if err := store.SaveLicense(ctx, &licenses[i]); err != nil {
			return err
		}
	}
	return nil
}

// DoJSON sends body (marshalled unless it is a string) to handler and
// returns the recorder.
func DoJSON(t *testing.T, handler http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		data, err := json.Marshal(b)
		if err != nil {
			t.Fatalf("failed to marshal request body: %v", err)
		}
		reader = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	return w
}

// DecodeBody decodes the recorder body into a generic map.
func DecodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()

	var body map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to decode response %q: %v", w.Body.String(), err)
	}
	return body
}

// AssertErrorResponse checks the status code and the "error" field.
func AssertErrorResponse(t *testing.T, w *httptest.ResponseRecorder, expectedStatus int, expectedError string) map[string]interface{} {
	t.Helper()

	if w.Code != expectedStatus {
		t.Errorf("expected status %d, got %d", expectedStatus, w.Code)
	}

	body := DecodeBody(t, w)
	if body["error"] != expectedError {
		t.Errorf("expected error %q, got %v", expectedError, body["error"])
	}
	return body
}

// AssertKeys fails unless body has exactly the given keys.
func AssertKeys(t *testing.T, body map[string]interface{}, keys ...string) {
	t.Helper()

	if len(body) != len(keys) {
		t.Errorf("expected keys %v, got %v", keys, body)
	}
	for _, k := range keys {
		if _, ok := body[k]; !ok {
			t.Errorf("expected key %q in %v", k, body)
		}
	}
}

// RunStorageTestSuite runs the behaviour every Storage implementation must
// share. newStore must return a fresh, empty store.
func RunStorageTestSuite(t *testing.T, newStore func(t *testing.T) storage.Storage) {
	ctx := context.Background()

	t.Run("find missing returns nil", func(t *testing.T) {
		store := newStore(t)
		got, err := store.FindLicenseByKey(ctx, "MISS-MISS-MISS-MISS")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got != nil {
			t.Errorf("expected nil, got %+v", got)
		}
	})

	t.Run("insert and find pending", func(t *testing.T) {
		store := newStore(t)
		l := CreateTestLicense("PEND-1111-2222-3333", models.StatusPending)
		if err := store.InsertLicense(ctx, &l); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		got, err := store.FindLicenseByKey(ctx, l.Key)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		AssertLicenseEqual(t, l, got)
	})

	t.Run("insert and find active", func(t *testing.T) {
		store := newStore(t)
		l := CreateTestLicense("ACTV-1111-2222-3333", models.StatusActive)
		if err := store.InsertLicense(ctx, &l); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		got, err := store.FindLicenseByKey(ctx, l.Key)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		AssertLicenseEqual(t, l, got)
	})

	t.Run("insert duplicate keeps original", func(t *testing.T) {
		store := newStore(t)
		original := CreateTestLicense("DUPE-1111-2222-3333", models.StatusActive)
		if err := store.InsertLicense(ctx, &original); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		duplicate := CreateTestLicense("DUPE-1111-2222-3333", models.StatusPending)
		err := store.InsertLicense(ctx, &duplicate)
		if !errors.Is(err, storage.ErrDuplicateKey) {
			t.Fatalf("expected ErrDuplicateKey, got %v", err)
		}

		got, err := store.FindLicenseByKey(ctx, original.Key)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		AssertLicenseEqual(t, original, got)
	})

	t.Run("save overwrites", func(t *testing.T) {
		store := newStore(t)
		l := CreateTestLicense("SAVE-1111-2222-3333", models.StatusPending)
		if err := store.SaveLicense(ctx, &l); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		l.Status = models.StatusSuspended
		l.Email = "changed@example.com"
		if err := store.SaveLicense(ctx, &l); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		got, err := store.FindLicenseByKey(ctx, l.Key)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		AssertLicenseEqual(t, l, got)
	})

	t.Run("compare and swap", func(t *testing.T) {
		store := newStore(t)
		l := CreateTestLicense("SWAP-1111-2222-3333", models.StatusPending)
		if err := store.InsertLicense(ctx, &l); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		updated := l
		updated.Activate("buyer@example.com", Now)

		swapped, err := store.CompareAndSwapLicense(ctx, models.StatusPending, &updated)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !swapped {
			t.Fatal("expected first swap to succeed")
		}

		again := l
		again.Activate("other@example.com", Now.Add(time.Hour))
		swapped, err = store.CompareAndSwapLicense(ctx, models.StatusPending, &again)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if swapped {
			t.Error("expected second swap to fail")
		}

		got, err := store.FindLicenseByKey(ctx, l.Key)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		AssertLicenseEqual(t, updated, got)
	})

	t.Run("compare and swap missing key", func(t *testing.T) {
		store := newStore(t)
		l := CreateTestLicense("GONE-1111-2222-3333", models.StatusActive)

		swapped, err := store.CompareAndSwapLicense(ctx, models.StatusPending, &l)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if swapped {
			t.Error("expected swap on missing key to fail")
		}

		got, err := store.FindLicenseByKey(ctx, l.Key)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got != nil {
			t.Errorf("swap must not create a record, got %+v", got)
		}
	})

	t.Run("concurrent compare and swap succeeds once", func(t *testing.T) {
		store := newStore(t)
		l := CreateTestLicense("RACE-1111-2222-3333", models.StatusPending)
		if err := store.InsertLicense(ctx, &l); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		const workers = 16
		var (
			wg       sync.WaitGroup
			mu       sync.Mutex
			swaps    int
			failures []error
		)
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				updated := l
				updated.Activate("buyer@example.com", Now)
				ok, err := store.CompareAndSwapLicense(ctx, models.StatusPending, &updated)
				mu.Lock()
				defer mu.Unlock()
				if err != nil {
					failures = append(failures, err)
					return
				}
				if ok {
					swaps++
				}
			}()
		}
		wg.Wait()

		for _, err := range failures {
			t.Errorf("unexpected error: %v", err)
		}
		if swaps != 1 {
			t.Errorf("expected exactly one successful swap, got %d", swaps)
		}
	})

	t.Run("closed store rejects calls", func(t *testing.T) {
		store := newStore(t)
		if err := store.Close(); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		l := CreateTestLicense("SHUT-1111-2222-3333", models.StatusPending)
		if _, err := store.FindLicenseByKey(ctx, l.Key); !errors.Is(err, storage.ErrClosed) {
			t.Errorf("find: expected ErrClosed, got %v", err)
		}
		if err := store.InsertLicense(ctx, &l); !errors.Is(err, storage.ErrClosed) {
			t.Errorf("insert: expected ErrClosed, got %v", err)
		}
		if err := store.SaveLicense(ctx, &l); !errors.Is(err, storage.ErrClosed) {
			t.Errorf("save: expected ErrClosed, got %v", err)
		}
		if _, err := store.CompareAndSwapLicense(ctx, models.StatusPending, &l); !errors.Is(err, storage.ErrClosed) {
			t.Errorf("swap: expected ErrClosed, got %v", err)
		}
		if err := store.Close(); err != nil {
			t.Errorf("second close: unexpected error: %v", err)
		}
	})
}

// AssertLicenseEqual compares licenses field by field, comparing times by
// instant rather than representation.
func AssertLicenseEqual(t *testing.T, expected models.License, got *models.License) {
	t.Helper()

	if got == nil {
		t.Fatalf("expected license %s, got nil", expected.Key)
	}
	if got.Key != expected.Key || got.Email != expected.Email || got.Type != expected.Type ||
		got.Status != expected.Status || got.CheckFrequency != expected.CheckFrequency {
		t.Errorf("expected %+v, got %+v", expected, *got)
	}
	if !got.CreatedAt.Equal(expected.CreatedAt) {
		t.Errorf("createdAt: expected %v, got %v", expected.CreatedAt, got.CreatedAt)
	}
	assertTimePtrEqual(t, "activatedAt", expected.ActivatedAt, got.ActivatedAt)
	assertTimePtrEqual(t, "expiresAt", expected.ExpiresAt, got.ExpiresAt)
}

func assertTimePtrEqual(t *testing.T, field string, expected, got *time.Time) {
	t.Helper()

	switch {
	case expected == nil && got == nil:
	case expected == nil || got == nil:
		t.Errorf("%s: expected %v, got %v", field, expected, got)
	case !expected.Equal(*got):
		t.Errorf("%s: expected %v, got %v", field, *expected, *got)
	}
}
