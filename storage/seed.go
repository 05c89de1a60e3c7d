package storage

import (
	"context"
	"fmt"
	"strings"

	"veo3.app/license/models"
)

// LoadSeed copies the licenses listed in the JSON file at path into store,
// overwriting records with the same key. Missing type, status and check
// frequency fields get the defaults a freshly created license would have.
func LoadSeed(ctx context.Context, store Storage, path string) (int, error) {
	licenses, err := readLicenseList(path)
	if err != nil {
		return 0, fmt.Errorf("failed to read seed file: %w", err)
	}

	for i := range licenses {
		license := &licenses[i]
		if strings.TrimSpace(license.Key) == "" {
			return i, fmt.Errorf("seed entry %d has no key", i)
		}
		if license.Type == "" {
			license.Type = models.DefaultType
		}
		if license.Status == "" {
			license.Status = models.StatusPending
		}
		if license.CheckFrequency == "" {
			license.CheckFrequency = models.DefaultCheckFrequency
		}

		if err := store.SaveLicense(ctx, license); err != nil {
			return i, fmt.Errorf("failed to seed license %d: %w", i, err)
		}
	}

	return len(licenses), nil
}
