// Package integrity computes and compares content checksums for uploaded
// parts and assembled objects. SHA256 hex digests are used throughout; the
// same digest a storage backend records at write time can be re-checked here
// at commit time to catch corruption between write and assembly.
package integrity

import (
	"crypto/sha256"
	"encoding/hex"
	"hash"
)

// Digest returns the SHA256 hex digest of the given payload.
func Digest(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Verify reports whether two digests refer to the same content. Comparison is
// exact byte equality; digests are not secrets, so no constant-time handling
// is required.
func Verify(expected, actual string) bool {
	return expected == actual
}

// Aggregator computes the digest of a byte stream fed in pieces, used for the
// assembled object so parts never need to be concatenated twice.
type Aggregator struct {
	h    hash.Hash
	size int64
}

// NewAggregator returns an empty aggregator.
func NewAggregator() *Aggregator {
	return &Aggregator{h: sha256.New()}
}

// Write feeds the next piece of the stream. It never returns an error.
func (a *Aggregator) Write(p []byte) (int, error) {
	n, _ := a.h.Write(p)
	a.size += int64(n)
	return n, nil
}

// Sum returns the hex digest of everything written so far.
func (a *Aggregator) Sum() string {
	return hex.EncodeToString(a.h.Sum(nil))
}

// Size returns the number of bytes written so far.
func (a *Aggregator) Size() int64 {
	return a.size
}
