package version

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Version is overridden at build time with -ldflags "-X veo3.app/license/internal/version.Version=1.2.3".
var Version = "dev"

const releasePrefix = "veo3-license@"

// Resolve returns the build version, or the contents of the VERSION file at
// path when the binary was built without one.
func Resolve(path string) string {
	if Version != "dev" {
		return Version
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Version
	}
	if v := strings.TrimSpace(string(data)); v != "" {
		return v
	}
	return Version
}

// Release names v the way error reports group it. Anything that is not a
// numeric version is reported as the dev release.
func Release(v string) string {
	if _, err := ExtractMajorVersion(strings.TrimPrefix(v, "v")); err != nil {
		return releasePrefix + "dev"
	}
	return releasePrefix + strings.TrimPrefix(v, "v")
}

func ExtractMajorVersion(version string) (int, error) {
	if version == "" {
		return 0, fmt.Errorf("empty version string")
	}

	parts := strings.Split(version, ".")

	major, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, fmt.Errorf("invalid major version: %v", err)
	}

	if major < 0 {
		return 0, fmt.Errorf("major version cannot be negative")
	}

	return major, nil
}
