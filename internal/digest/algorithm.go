package digest

import (
	"crypto/sha256"
	"fmt"
	"hash"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// Algorithm names a hash primitive.
type Algorithm string

// Supported algorithms.
const (
	// SHA256 is the default, cryptographic primitive.
	SHA256 Algorithm = "sha256"
	// XXHash is the fast 64-bit non-cryptographic primitive.
	XXHash Algorithm = "xxhash"
)

type hashFunc func() hash.Hash

// ParseAlgorithm converts a config value into an Algorithm.
func ParseAlgorithm(s string) (Algorithm, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "sha256", "sha-256":
		return SHA256, nil
	case "xxhash", "xxh64", "xxhash64":
		return XXHash, nil
	default:
		return "", fmt.Errorf("unknown digest algorithm %q (valid: sha256, xxhash)", s)
	}
}

// String implements fmt.Stringer.
func (a Algorithm) String() string {
	return string(a)
}

func (a Algorithm) newFunc() (hashFunc, error) {
	switch a {
	case SHA256:
		return sha256.New, nil
	case XXHash:
		return func() hash.Hash { return xxhash.New() }, nil
	default:
		return nil, fmt.Errorf("unknown digest algorithm %q (valid: sha256, xxhash)", string(a))
	}
}
