// Package hashutil computes the content hash used throughout the sync
// pipeline to detect remote-vs-local drift. The
// hash is deliberately identical to `git hash-object`'s blob SHA-1 so that a
// project's cached hashes line up byte-for-byte with its git history and
// tools like `git hash-object` can be used to cross-check a discrepancy by
// hand.
package hashutil

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"

	"github.com/gasdevtools/gas-sync/internal/types"
)

// Compute returns the git blob hash of content: sha1("blob "+len+"\0"+content).
func Compute(content []byte) types.ContentHash {
	header := fmt.Sprintf("blob %d\x00", len(content))
	h := sha1.New()
	h.Write([]byte(header))
	h.Write(content)
	return types.ContentHash(hex.EncodeToString(h.Sum(nil)))
}

// ComputeString is a convenience wrapper over Compute for in-memory source
// text, which is how every caller in this module actually holds file
// content.
func ComputeString(content string) types.ContentHash {
	return Compute([]byte(content))
}

// Equal reports whether a and b name the same content, case-insensitively.
func Equal(a, b types.ContentHash) bool {
	return a.Equal(b)
}
