package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"slices"
)

// Domain prefixes for content-addressed identity.
// The version suffix allows migrating the encoding later.
const (
	DomainQuery       = "graphc/query/v1"
	DomainCompilation = "graphc/compilation/v1"
)

// hashWithDomain computes SHA256(domain + 0x00 + data).
// The null byte keeps the domain/data boundary unambiguous.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// QueryFingerprint hashes the canonical form of an IR block list. Two block
// lists built independently but structurally equal share a fingerprint.
func QueryFingerprint(blocks []Block) (string, error) {
	canonical, err := CanonicalBlocks(blocks)
	if err != nil {
		return "", fmt.Errorf("QueryFingerprint: %w", err)
	}
	data, err := MarshalCanonical(canonical)
	if err != nil {
		return "", fmt.Errorf("QueryFingerprint: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainQuery, data), nil
}

// CompilationKey identifies one compilation: the query fingerprint plus every
// input that changes the emitted text.
func CompilationKey(queryFingerprint, backend string, hints map[string][]string, schemaVersion string) (string, error) {
	h := make(map[string]any, len(hints))
	for k, v := range hints {
		members := slices.Clone(v)
		slices.Sort(members)
		h[k] = members
	}
	obj := map[string]any{
		"query":          queryFingerprint,
		"backend":        backend,
		"hints":          h,
		"schema_version": schemaVersion,
	}
	data, err := MarshalCanonical(obj)
	if err != nil {
		return "", fmt.Errorf("CompilationKey: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainCompilation, data), nil
}
