package hashutil

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// ETag returns a content hash of the JSON encoding of v.
func ETag(v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("hash %T: %w", v, err)
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// Changed reports whether v hashes differently from previous and returns the
// new hash. A value that cannot be hashed always counts as changed.
func Changed(previous string, v any) (bool, string) {
	etag, err := ETag(v)
	if err != nil {
		return true, ""
	}
	return etag != previous || previous == "", etag
}
