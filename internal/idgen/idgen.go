// Package idgen provides cryptographically random ID generation for
// non-deterministic identifiers (audit events, analysis requests).
// Threat IDs are NOT generated here: they are content-addressed hashes
// computed by the detector so the same call attempt always maps to the
// same ID in the audit trail.
package idgen

import (
	"crypto/rand"
	"encoding/hex"
)

// WithPrefix generates a random ID with a prefix (e.g. "evt_", "req_").
// Result is prefix + 24 hex chars (12 random bytes).
func WithPrefix(prefix string) string {
	b := make([]byte, 12)
	if _, err := rand.Read(b); err != nil {
		panic("crypto/rand failed: " + err.Error())
	}
	return prefix + hex.EncodeToString(b)
}
