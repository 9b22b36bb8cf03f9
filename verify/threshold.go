package verify

import (
	"github.com/pkg/errors"

	"github.com/kolide/tuf/data"
	"github.com/kolide/tuf/tuferr"
)

// Threshold checks that at least roleKeys.Threshold distinct keyids named
// in roleKeys verify canonicalSigned under one of sigs, per I1/I2 and the
// P3 duplicate-keyid fix (data.UniqueByKeyID). keys resolves a keyid to the
// Key object carrying its scheme and public material; a keyid with no
// entry in keys is simply not counted rather than treated as fatal, since
// a role may list keys the caller hasn't fetched yet.
func Threshold(keys map[string]data.Key, roleKeys data.RoleKeys, canonicalSigned []byte, sigs []data.Signature) error {
	if err := roleKeys.Verify(); err != nil {
		return tuferr.New(tuferr.KindThreshold, tuferr.WithCause(err))
	}

	valid := 0
	for _, sig := range data.UniqueByKeyID(sigs) {
		if !roleKeys.HasKeyID(sig.KeyID) {
			continue
		}
		key, ok := keys[sig.KeyID]
		if !ok {
			continue
		}
		if err := Verify(key, canonicalSigned, sig.Sig); err != nil {
			continue
		}
		valid++
	}
	if valid < roleKeys.Threshold {
		return tuferr.New(tuferr.KindThreshold, tuferr.WithCause(
			errors.Errorf("got %d valid signatures, need %d", valid, roleKeys.Threshold)))
	}
	return nil
}
