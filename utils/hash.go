package utils

import (
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// StableJSON re-encodes an arbitrary JSON document into a normalized form with
// object keys sorted at every nesting level, so that two documents that differ
// only in key order produce identical bytes.
func StableJSON(raw json.RawMessage) ([]byte, error) {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, fmt.Errorf("stable json: decode: %w", err)
	}
	// encoding/json marshals map keys in sorted order.
	out, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("stable json: encode: %w", err)
	}
	return out, nil
}

// SHA1Hex returns the lowercase hex SHA-1 digest of b.
func SHA1Hex(b []byte) string {
	sum := sha1.Sum(b)
	return hex.EncodeToString(sum[:])
}
