package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for derived identifiers.
// Version suffix enables future algorithm migration.
const (
	DomainPredicate = "stead/predicate/v1"
	DomainSnapshot  = "stead/snapshot/v1"
)

// hashWithDomain computes SHA-256 hash with domain separation.
// Format: SHA256(domain + 0x00 + data)
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// PredicateHash hashes the canonical form of a collection query.
// Equal queries (after canonicalization) always hash equal, so the value
// is usable as a cache key across processes.
func PredicateHash(canonical IRObject) (string, error) {
	data, err := MarshalCanonical(canonical)
	if err != nil {
		return "", fmt.Errorf("PredicateHash: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainPredicate, data), nil
}

// SnapshotDigest hashes a serialized snapshot document.
func SnapshotDigest(text []byte) string {
	return hashWithDomain(DomainSnapshot, text)
}
