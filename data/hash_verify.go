package data

import (
	"crypto/sha256"
	"crypto/sha512"
	"crypto/subtle"

	"github.com/pkg/errors"
)

// verifyHashes recomputes every algorithm named in want against data and
// requires every one of them to match (I4, §4.8). An empty want map is
// considered satisfied -- some callers have already confirmed length is
// the only available check for this role/spec-version combination.
func verifyHashes(data []byte, want Hashes) error {
	for algo, expected := range want {
		actual, err := digest(algo, data)
		if err != nil {
			return err
		}
		if subtle.ConstantTimeCompare(actual, expected) != 1 {
			return errors.Errorf("hash mismatch for algorithm %s", algo)
		}
	}
	return nil
}

// digest computes the named hash algorithm's digest of data. Supported
// algorithms are sha256 and sha512 (C2).
func digest(algo string, data []byte) ([]byte, error) {
	switch algo {
	case "sha256":
		sum := sha256.Sum256(data)
		return sum[:], nil
	case "sha512":
		sum := sha512.Sum512(data)
		return sum[:], nil
	default:
		return nil, errors.Errorf("unsupported hash algorithm %q", algo)
	}
}

// PreferredHashAlgo picks sha256 if present in the set, otherwise the
// strongest available, for streaming verification where only one digest
// should be computed as bytes are read (§4.8).
func PreferredHashAlgo(hashes Hashes) (string, bool) {
	if _, ok := hashes["sha256"]; ok {
		return "sha256", true
	}
	if _, ok := hashes["sha512"]; ok {
		return "sha512", true
	}
	return "", false
}

// Digest exposes digest computation to other packages (targetfile's
// streaming verifier computes it incrementally instead of buffering, but
// shares this algorithm set).
func Digest(algo string, data []byte) ([]byte, error) {
	return digest(algo, data)
}
