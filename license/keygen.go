package license

import (
	"crypto/rand"
	"fmt"
	"io"
	"regexp"
	"strings"
)

const (
	keyCharset       = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	keySegments      = 4
	keySegmentLength = 4
)

var keyPattern = regexp.MustCompile(`^[A-Z0-9]{4}-[A-Z0-9]{4}-[A-Z0-9]{4}-[A-Z0-9]{4}$`)

// KeyGenerator produces a new license key.
type KeyGenerator func() (string, error)

// GenerateKey returns a key of the form XXXX-XXXX-XXXX-XXXX drawn from
// crypto/rand.
func GenerateKey() (string, error) {
	return generateKeyFrom(rand.Reader)
}

func generateKeyFrom(r io.Reader) (string, error) {
	// Bytes at or above this bound are rejected so every character is
	// equally likely.
	const bound = 256 - 256%len(keyCharset)

	var sb strings.Builder
	sb.Grow(keySegments*keySegmentLength + keySegments - 1)

	buf := make([]byte, keySegments*keySegmentLength)
	written := 0
	for written < keySegments*keySegmentLength {
		if _, err := io.ReadFull(r, buf); err != nil {
			return "", fmt.Errorf("failed to read random bytes: %w", err)
		}
		for _, b := range buf {
			if int(b) >= bound {
				continue
			}
			if written > 0 && written%keySegmentLength == 0 {
				sb.WriteByte('-')
			}
			sb.WriteByte(keyCharset[int(b)%len(keyCharset)])
			written++
			if written == keySegments*keySegmentLength {
				break
			}
		}
	}

	return sb.String(), nil
}

// ValidKeyFormat reports whether key has the XXXX-XXXX-XXXX-XXXX shape.
func ValidKeyFormat(key string) bool {
	return keyPattern.MatchString(key)
}
