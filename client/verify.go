package client

import (
	"github.com/pkg/errors"

	"github.com/kolide/tuf/data"
	"github.com/kolide/tuf/tuferr"
	"github.com/kolide/tuf/verify"
)

// verifyRootSelfConsistent checks a root document against its own listed
// root-role keys and threshold, the "trust on first use" check from
// spec.md §4.6 step 1.
func verifyRootSelfConsistent(root *data.Root) error {
	rk, ok := root.RoleKeysFor(data.RoleRoot)
	if !ok {
		return tuferr.New(tuferr.KindParse, tuferr.WithRole(string(data.RoleRoot)),
			tuferr.WithCause(errors.New("root document does not declare its own root role")))
	}
	signed, err := root.CanonicalSigned()
	if err != nil {
		return err
	}
	if err := verify.Threshold(root.Signed.Keys, rk, signed, root.Signatures); err != nil {
		return err
	}
	return nil
}

// verifyRootChainLink checks that next (version prev.Version+1) is signed
// by enough distinct keys from BOTH prev's and next's own root-role key
// sets, spec.md §4.6 step 2's "both thresholds must be satisfied" rule.
func verifyRootChainLink(prev, next *data.Root) error {
	signed, err := next.CanonicalSigned()
	if err != nil {
		return err
	}

	prevRK, ok := prev.RoleKeysFor(data.RoleRoot)
	if !ok {
		return tuferr.New(tuferr.KindParse, tuferr.WithRole(string(data.RoleRoot)),
			tuferr.WithCause(errors.New("previous root does not declare its own root role")))
	}
	if err := verify.Threshold(prev.Signed.Keys, prevRK, signed, next.Signatures); err != nil {
		return errors.Wrap(err, "verifying new root against previous root's keys")
	}

	nextRK, ok := next.RoleKeysFor(data.RoleRoot)
	if !ok {
		return tuferr.New(tuferr.KindParse, tuferr.WithRole(string(data.RoleRoot)),
			tuferr.WithCause(errors.New("new root does not declare its own root role")))
	}
	if err := verify.Threshold(next.Signed.Keys, nextRK, signed, next.Signatures); err != nil {
		return errors.Wrap(err, "verifying new root against its own keys")
	}
	return nil
}

// verifyRoleThreshold checks a signed document against the {keyids,
// threshold} root declares for role, resolving keys from root's own keys
// map -- used for timestamp, snapshot, and top-level targets (all of which
// are authorized directly by root, unlike delegated-targets).
func verifyRoleThreshold(root *data.Root, role data.Role, canonicalSigned []byte, sigs []data.Signature) error {
	rk, ok := root.RoleKeysFor(role)
	if !ok {
		return tuferr.New(tuferr.KindThreshold, tuferr.WithRole(string(role)),
			tuferr.WithCause(errors.Errorf("root does not declare a %q role", role)))
	}
	if err := verify.Threshold(root.Signed.Keys, rk, canonicalSigned, sigs); err != nil {
		return err
	}
	return nil
}
