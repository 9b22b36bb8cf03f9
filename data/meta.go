package data

import (
	"encoding/json"

	"github.com/pkg/errors"
)

// Hashes maps a hash algorithm name ("sha256", "sha512") to the hex-encoded
// digest of a file's contents.
type Hashes map[string]HexBytes

// Equal reports whether two hash maps agree on every algorithm both have
// in common. It returns true when either map is empty, and false when both
// are non-empty but share no algorithm.
func (h Hashes) Equal(other Hashes) bool {
	if len(h) == 0 || len(other) == 0 {
		return true // nothing to compare; caller checks presence separately
	}
	overlap := false
	for algo, digest := range h {
		od, ok := other[algo]
		if !ok {
			continue
		}
		overlap = true
		if digest.String() != od.String() {
			return false
		}
	}
	return overlap
}

// MetaFiles is the {version, length?, hashes?} entry timestamp.json uses
// for snapshot.json, and snapshot.json uses for each role file it lists.
type MetaFiles struct {
	Version int64  `json:"version"`
	Length  *int64 `json:"length,omitempty"`
	Hashes  Hashes `json:"hashes,omitempty"`
}

// TargetFiles is the {length, hashes, custom?} entry a targets role
// records for a named target path. Length is optional per spec.md §9's
// Open Question resolution: TUF spec versions disagree on whether it is
// mandatory, so it is nil when this entry omits it. Only this entry's own
// Length is enforced; lengths recorded for the same target by other roles
// in the delegation chain are not consulted.
type TargetFiles struct {
	Length *int64          `json:"length,omitempty"`
	Hashes Hashes          `json:"hashes"`
	Custom json.RawMessage `json:"custom,omitempty"`
}

// VerifyLengthHashes checks data against this entry's declared length and
// hashes, enforcing length only when it was provided.
func (t TargetFiles) VerifyLengthHashes(data []byte) error {
	if t.Length != nil && int64(len(data)) != *t.Length {
		return errors.Errorf("length mismatch: want %d, got %d", *t.Length, len(data))
	}
	return verifyHashes(data, t.Hashes)
}

// VerifyContent checks raw against this MetaFiles entry's declared length
// and hashes, when present (both are optional depending on spec version,
// per spec.md §3, but enforced whenever supplied).
func (m MetaFiles) VerifyContent(raw []byte) error {
	if m.Length != nil && int64(len(raw)) != *m.Length {
		return errors.Errorf("length mismatch: want %d, got %d", *m.Length, len(raw))
	}
	return verifyHashes(raw, m.Hashes)
}
