package store

import (
	"crypto/sha256"
	"fmt"
)

// HashHandoff computes SHA-256 of thread id + record JSON.
//
// Including the thread id means the same request from two conversations is
// stored as two rows with different fingerprints.
func HashHandoff(threadID, record string) string {
	h := sha256.New()
	h.Write([]byte(threadID))
	h.Write([]byte{0}) // separator
	h.Write([]byte(record))
	return fmt.Sprintf("%x", h.Sum(nil))
}
