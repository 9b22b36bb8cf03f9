package data

import (
	"github.com/pkg/errors"
)

// Role names the four fixed top-level roles. Delegated-targets roles are
// named by their own arbitrary string instead of one of these constants.
type Role string

const (
	RoleRoot      Role = "root"
	RoleTimestamp Role = "timestamp"
	RoleSnapshot  Role = "snapshot"
	RoleTargets   Role = "targets"
)

// RoleKeys is root.json's per-role {keyids, threshold} entry: the set of
// keys authorized to sign for a role and how many distinct ones are
// required.
type RoleKeys struct {
	KeyIDs    []string `json:"keyids"`
	Threshold int      `json:"threshold"`
}

// Verify enforces the Open Question resolution in spec.md §9: threshold==0
// is always invalid, regardless of what historical writers permitted.
func (r RoleKeys) Verify() error {
	if r.Threshold < 1 {
		return errors.Errorf("role threshold must be >= 1, got %d", r.Threshold)
	}
	if len(r.KeyIDs) == 0 {
		return errors.New("role has no keyids")
	}
	return nil
}

// HasKeyID reports whether keyid is authorized for this role.
func (r RoleKeys) HasKeyID(keyid string) bool {
	for _, k := range r.KeyIDs {
		if k == keyid {
			return true
		}
	}
	return false
}
