package bytestore

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
)

// Checksum is a SHA-256 digest of a payload.
type Checksum [sha256.Size]byte

// String returns the hex encoding of the digest.
func (c Checksum) String() string {
	return hex.EncodeToString(c[:])
}

// ComputeChecksum computes SHA-256 checksum of data.
func ComputeChecksum(data []byte) Checksum {
	return sha256.Sum256(data)
}

// ComputeChecksumReader computes SHA-256 checksum from an io.Reader.
// This is useful for computing checksums of large stores without loading them entirely into memory.
func ComputeChecksumReader(r io.Reader) (Checksum, error) {
	h := sha256.New()
	if _, err := io.Copy(h, r); err != nil {
		return Checksum{}, err
	}
	var sum Checksum
	copy(sum[:], h.Sum(nil))
	return sum, nil
}

// ValidateChecksum compares computed checksum against expected checksum.
// Returns ErrChecksum if they don't match.
func ValidateChecksum(computed, expected Checksum) error {
	if computed != expected {
		return ErrChecksum
	}
	return nil
}
