package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for digests.
// Version suffix enables future algorithm migration.
const (
	DomainBody  = "fhirkit/body/v1"
	DomainState = "fhirkit/state/v1"
)

// hashWithDomain computes SHA-256 hash with domain separation.
// Format: SHA256(domain + 0x00 + data)
// The null byte separator prevents domain/data boundary ambiguity.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// BodyHash computes the content hash of a resource body.
func BodyHash(body IRObject) (string, error) {
	canonical, err := MarshalCanonical(body)
	if err != nil {
		return "", fmt.Errorf("BodyHash: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainBody, canonical), nil
}

// StateHash computes the digest of a canonical store dump.
func StateHash(state IRValue) (string, error) {
	canonical, err := MarshalCanonical(state)
	if err != nil {
		return "", fmt.Errorf("StateHash: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainState, canonical), nil
}

// MustBodyHash is like BodyHash but panics on error.
// Use only in tests or when inputs are known to be valid.
func MustBodyHash(body IRObject) string {
	h, err := BodyHash(body)
	if err != nil {
		panic(err)
	}
	return h
}
