package core

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
)

// Hash represents a cryptographic hash
type Hash string

// NewHash creates a new hash from data
func NewHash(data []byte) Hash {
	sum := sha256.Sum256(data)
	return Hash(hex.EncodeToString(sum[:]))
}

// String returns the string representation
func (h Hash) String() string {
	return string(h)
}

// IsEmpty checks if the hash is empty
func (h Hash) IsEmpty() bool {
	return h == ""
}

// Short returns the first n hex characters, or the whole hash when shorter.
func (h Hash) Short(n int) string {
	if n <= 0 || n >= len(h) {
		return string(h)
	}
	return string(h[:n])
}

// HashParts hashes an ordered tuple of strings. Parts are length-prefixed so
// ("ab","c") and ("a","bc") never collide.
func HashParts(parts ...string) Hash {
	var data strings.Builder
	for _, part := range parts {
		data.WriteString(strconv.Itoa(len(part)))
		data.WriteByte(':')
		data.WriteString(part)
		data.WriteByte('|')
	}
	return NewHash([]byte(data.String()))
}
