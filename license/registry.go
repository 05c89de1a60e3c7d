// Package license holds the license lifecycle: admin creation, one-time
// activation and read-only verification.
//
// Verification has no side effects. Nothing about the caller or the call is
// recorded, logged or counted.
package license

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"
	"time"

	"veo3.app/license/internal/logger"
	"veo3.app/license/models"
	"veo3.app/license/storage"
)

const (
	DefaultServiceName = "VEO3 License API"
	PrivacyStatement   = "No tracking, no analytics, no user data collection"

	// maxKeyAttempts bounds key regeneration when a generated key collides
	// with a stored one.
	maxKeyAttempts = 5
)

// Authorizer decides whether an admin token may create licenses.
type Authorizer interface {
	Authorize(token string) bool
}

// SecretAuthorizer accepts exactly one shared secret. An empty secret
// accepts nothing.
type SecretAuthorizer struct {
	secret string
}

func NewSecretAuthorizer(secret string) SecretAuthorizer {
	return SecretAuthorizer{secret: secret}
}

func (a SecretAuthorizer) Authorize(token string) bool {
	if a.secret == "" || token == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(token), []byte(a.secret)) == 1
}

type VerifyResult struct {
	Valid          bool
	Reason         string
	Type           string
	ExpiresAt      *time.Time
	CheckFrequency string
}

type ActivateResult struct {
	Type           string
	ExpiresAt      time.Time
	CheckFrequency string
}

type CreateResult struct {
	Key  string
	Type string
}

type HealthResult struct {
	Status  string
	Service string
	Privacy string
}

type Registry struct {
	store       storage.Storage
	auth        Authorizer
	generateKey KeyGenerator
	nowFn       func() time.Time
	serviceName string
}

type Option func(*Registry)

func WithClock(now func() time.Time) Option {
	return func(r *Registry) { r.nowFn = now }
}

func WithKeyGenerator(gen KeyGenerator) Option {
	return func(r *Registry) { r.generateKey = gen }
}

func WithServiceName(name string) Option {
	return func(r *Registry) { r.serviceName = name }
}

func NewRegistry(store storage.Storage, auth Authorizer, opts ...Option) *Registry {
	r := &Registry{
		store:       store,
		auth:        auth,
		generateKey: GenerateKey,
		nowFn:       time.Now,
		serviceName: DefaultServiceName,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Registry) now() time.Time {
	return r.nowFn().UTC()
}

// Verify answers whether key is currently usable. Expired and non-active
// licenses are a negative verdict, not an error.
func (r *Registry) Verify(ctx context.Context, key string) (VerifyResult, error) {
	// Keys match exactly; surrounding whitespace is not stripped.
	if strings.TrimSpace(key) == "" {
		return VerifyResult{}, ErrMissingKey
	}

	license, err := r.store.FindLicenseByKey(ctx, key)
	if err != nil {
		return VerifyResult{}, fmt.Errorf("failed to verify license: %w", err)
	}
	if license == nil {
		return VerifyResult{}, ErrNotFound
	}

	if license.IsExpired(r.now()) {
		return VerifyResult{Valid: false, Reason: "expired"}, nil
	}

	if license.Status != models.StatusActive {
		return VerifyResult{Valid: false, Reason: license.Status}, nil
	}

	return VerifyResult{
		Valid:          true,
		Type:           license.Type,
		ExpiresAt:      license.ExpiresAt,
		CheckFrequency: license.CheckFrequency,
	}, nil
}

// Activate binds a pending license to email and starts its term. A license
// activates once; any later attempt fails with ErrAlreadyActivated.
func (r *Registry) Activate(ctx context.Context, key, email string) (ActivateResult, error) {
	email = strings.TrimSpace(email)
	if strings.TrimSpace(key) == "" || email == "" {
		return ActivateResult{}, ErrMissingFields
	}

	license, err := r.store.FindLicenseByKey(ctx, key)
	if err != nil {
		return ActivateResult{}, fmt.Errorf("failed to activate license: %w", err)
	}
	if license == nil {
		return ActivateResult{}, ErrInvalidKey
	}
	if license.Status != models.StatusPending {
		return ActivateResult{}, ErrAlreadyActivated
	}

	license.Activate(email, r.now())

	swapped, err := r.store.CompareAndSwapLicense(ctx, models.StatusPending, license)
	if err != nil {
		return ActivateResult{}, fmt.Errorf("failed to activate license: %w", err)
	}
	if !swapped {
		// Another activation won the race.
		return ActivateResult{}, ErrAlreadyActivated
	}

	return ActivateResult{
		Type:           license.Type,
		ExpiresAt:      *license.ExpiresAt,
		CheckFrequency: license.CheckFrequency,
	}, nil
}

// Create issues a new pending license. adminToken must match the
// configured admin secret.
func (r *Registry) Create(ctx context.Context, adminToken, licenseType, email string) (CreateResult, error) {
	if r.auth == nil || !r.auth.Authorize(adminToken) {
		return CreateResult{}, ErrUnauthorized
	}
	return r.issue(ctx, licenseType, email)
}

// Provision issues a new pending license for a completed purchase. The
// caller is responsible for having authenticated the purchase.
func (r *Registry) Provision(ctx context.Context, licenseType, email string) (CreateResult, error) {
	return r.issue(ctx, licenseType, email)
}

func (r *Registry) issue(ctx context.Context, licenseType, email string) (CreateResult, error) {
	licenseType = strings.TrimSpace(licenseType)
	if licenseType == "" {
		licenseType = models.DefaultType
	}
	if !models.IsKnownType(licenseType) {
		logger.Warn("Creating license with unrecognised type", map[string]interface{}{
			"license_type": licenseType,
		})
	}

	for attempt := 0; attempt < maxKeyAttempts; attempt++ {
		key, err := r.generateKey()
		if err != nil {
			return CreateResult{}, fmt.Errorf("failed to generate license key: %w", err)
		}

		license := &models.License{
			Key:            key,
			Email:          strings.TrimSpace(email),
			Type:           licenseType,
			Status:         models.StatusPending,
			CheckFrequency: models.DefaultCheckFrequency,
			CreatedAt:      r.now(),
		}

		err = r.store.InsertLicense(ctx, license)
		if errors.Is(err, storage.ErrDuplicateKey) {
			continue
		}
		if err != nil {
			return CreateResult{}, fmt.Errorf("failed to create license: %w", err)
		}

		return CreateResult{Key: key, Type: licenseType}, nil
	}

	return CreateResult{}, fmt.Errorf("failed to create license: no unused key after %d attempts", maxKeyAttempts)
}

func (r *Registry) Health() HealthResult {
	return HealthResult{
		Status:  "ok",
		Service: r.serviceName,
		Privacy: PrivacyStatement,
	}
}
