package types

import (
	"crypto/subtle"
	"strings"
)

// ContentHash is a 40-hex-character git-object SHA-1 digest. It is always
// computed over the raw stored (wrapped) form of a file's content - see
// internal/hashutil.
type ContentHash string

// Empty reports whether h carries no hash (the "no baseline" / first-write
// case).
func (h ContentHash) Empty() bool { return h == "" }

// Equal compares two hashes case-insensitively in constant time. Hex case
// is the only normalization git digests ever need; the constant-time
// comparison keeps the hash path free of timing side channels.
func (h ContentHash) Equal(other ContentHash) bool {
	a := []byte(strings.ToLower(string(h)))
	b := []byte(strings.ToLower(string(other)))
	return subtle.ConstantTimeCompare(a, b) == 1
}

func (h ContentHash) String() string { return string(h) }
