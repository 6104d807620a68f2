// Package crypto provides keyed signing and verification for registry
// records and tailored responses.
package crypto

import (
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"golang.org/x/crypto/blake2b"
)

// Signer computes deterministic keyed signatures over canonically
// serialized payloads. Identical payload and key always yield the same
// signature; there is no randomness involved.
type Signer struct {
	key []byte
}

// NewSigner creates a signer with the given shared signing key. Keys longer
// than the blake2b limit are folded down to a 32-byte digest.
func NewSigner(key string) *Signer {
	k := []byte(key)
	if len(k) > blake2b.Size {
		sum := blake2b.Sum256(k)
		k = sum[:]
	}
	return &Signer{key: k}
}

// canonicalize serializes a payload with stable field ordering and the
// top-level signature field removed. Round-tripping through a map gives
// sorted keys, which encoding/json guarantees for map marshaling.
func canonicalize(payload interface{}) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize payload: %w", err)
	}

	var m map[string]interface{}
	if err := json.Unmarshal(raw, &m); err != nil {
		// Non-object payloads (arrays, scalars) are signed as-is.
		return raw, nil
	}
	delete(m, "signature")

	canonical, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("failed to canonicalize payload: %w", err)
	}
	return canonical, nil
}

// Sign returns a hex-encoded keyed blake2b-256 digest over the canonical
// serialization of payload.
func (s *Signer) Sign(payload interface{}) (string, error) {
	data, err := canonicalize(payload)
	if err != nil {
		return "", err
	}

	h, err := blake2b.New256(s.key)
	if err != nil {
		return "", fmt.Errorf("failed to create keyed digest: %w", err)
	}
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Verify recomputes the signature for payload and compares it against the
// supplied one in constant time.
func (s *Signer) Verify(payload interface{}, signature string) bool {
	expected, err := s.Sign(payload)
	if err != nil {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(expected), []byte(signature)) == 1
}
