// Package sanitize normalizes names that reach external systems.
//
// JetStream bucket names must match ^[a-zA-Z0-9_-]+$. Bucket maps any
// configured name onto that alphabet.
package sanitize

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

const (
	// MaxBucketLength bounds bucket names; longer names are truncated with a
	// hash suffix.
	MaxBucketLength = 64

	// HashSuffixLength is the length of the hash suffix added to truncated names.
	// Format: _<8-char-hash> = 9 characters total
	HashSuffixLength = 9

	// DefaultBucket is used when sanitization produces an empty result.
	DefaultBucket = "clustereval_evaluations"
)

// Bucket sanitizes a string for use as a JetStream key-value bucket name.
//
// Rules applied:
//   - Replaces characters outside [A-Za-z0-9_-] with underscores
//   - Collapses multiple underscores
//   - Trims leading/trailing underscores
//   - Truncates to MaxBucketLength with hash suffix if too long
//   - Returns DefaultBucket if result would be empty
//
// Examples:
//
//	"team.eval"       -> "team_eval"
//	"run 2024/03"     -> "run_2024_03"
//	"" or "..."       -> "clustereval_evaluations"
func Bucket(s string) string {
	var result strings.Builder
	result.Grow(len(s))
	for _, r := range s {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '_' || r == '-' {
			result.WriteRune(r)
		} else {
			result.WriteRune('_')
		}
	}

	sanitized := result.String()
	for strings.Contains(sanitized, "__") {
		sanitized = strings.ReplaceAll(sanitized, "__", "_")
	}
	sanitized = strings.Trim(sanitized, "_")

	if sanitized == "" {
		return DefaultBucket
	}
	if len(sanitized) > MaxBucketLength {
		sanitized = truncateWithHash(sanitized)
	}
	return sanitized
}

// truncateWithHash truncates a string to fit within MaxBucketLength,
// appending a hash suffix to preserve uniqueness.
//
// Format: <truncated>_<8-char-hash>
func truncateWithHash(s string) string {
	hash := sha256.Sum256([]byte(s))
	hashSuffix := "_" + hex.EncodeToString(hash[:])[:8]

	truncated := s[:MaxBucketLength-HashSuffixLength]
	truncated = strings.TrimRight(truncated, "_")

	return truncated + hashSuffix
}
