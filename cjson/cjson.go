// Package cjson is the canonical JSON signing pre-image used across every
// role body in this module. It wraps github.com/docker/go/canonical/json,
// which already implements the OLPC canonical-JSON rules this module's
// signatures depend on: UTF-8, no insignificant whitespace, object keys
// sorted by UTF-16 code unit, minimal string escaping, and integer-only
// numbers (floating point is rejected). See kolide-updater/tuf/roles.go and
// kolide-updater/tuf/persistence.go for the teacher's use of the same
// dependency for exactly this purpose.
package cjson

import (
	"crypto/sha256"
	"encoding/hex"

	canonicaljson "github.com/docker/go/canonical/json"
	"github.com/pkg/errors"

	"github.com/kolide/tuf/tuferr"
)

// Marshal produces the canonical JSON encoding of v, the byte sequence that
// is actually signed and verified. Any value containing a non-integer
// number, a non-string map key, or invalid UTF-8 fails canonicalization.
func Marshal(v interface{}) ([]byte, error) {
	b, err := canonicaljson.MarshalCanonical(v)
	if err != nil {
		return nil, tuferr.New(tuferr.KindCanonicalization, tuferr.WithCause(errors.Wrap(err, "canonicalizing value")))
	}
	return b, nil
}

// KeyID computes the TUF keyid for a public key object: the hex-encoded
// SHA-256 of the canonical JSON encoding of that key object (P2). keyObj
// must be the exact object type that appears under root.json's "keys" map
// (or delegations.keys) -- changing any byte of it changes the keyid.
func KeyID(keyObj interface{}) (string, error) {
	b, err := Marshal(keyObj)
	if err != nil {
		return "", errors.Wrap(err, "computing keyid")
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:]), nil
}

// Equal reports whether two values canonicalize to byte-identical JSON,
// e.g. to check determinism between two sessions with the same logical
// inputs.
func Equal(a, b interface{}) (bool, error) {
	ab, err := Marshal(a)
	if err != nil {
		return false, err
	}
	bb, err := Marshal(b)
	if err != nil {
		return false, err
	}
	if len(ab) != len(bb) {
		return false, nil
	}
	for i := range ab {
		if ab[i] != bb[i] {
			return false, nil
		}
	}
	return true, nil
}
