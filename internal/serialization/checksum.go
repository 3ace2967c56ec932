package serialization

import (
	"crypto/sha256"
)

// ComputeChecksum computes the SHA-256 checksum of the header JSON followed by
// the tensor data section.
func ComputeChecksum(header, data []byte) [32]byte {
	h := sha256.New()
	h.Write(header)
	h.Write(data)
	var sum [32]byte
	copy(sum[:], h.Sum(nil))
	return sum
}

// ValidateChecksum compares computed checksum against stored checksum.
// Returns ErrChecksumMismatch if they don't match.
func ValidateChecksum(computed, stored [32]byte) error {
	if computed != stored {
		return ErrChecksumMismatch
	}
	return nil
}
