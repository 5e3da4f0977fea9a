// Package id generates and checks compression job identifiers.
package id

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"regexp"
	"time"
)

// pattern matches IDs produced by Generate, including the timestamp-only fallback.
var pattern = regexp.MustCompile(`^job-\d+(-[0-9a-f]{8})?$`)

// Generate creates a new unique job ID.
// Format: job-<unix seconds>-<8 hex chars>, e.g. job-1701432000-a1b2c3d4.
func Generate() string {
	timestamp := time.Now().Unix()
	random := make([]byte, 4)
	if _, err := rand.Read(random); err != nil {
		return fmt.Sprintf("job-%d", timestamp)
	}
	return fmt.Sprintf("job-%d-%s", timestamp, hex.EncodeToString(random))
}

// IsValid reports whether s has the shape of a generated job ID.
func IsValid(s string) bool {
	return pattern.MatchString(s)
}
