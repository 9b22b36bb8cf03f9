package data

import (
	"time"

	"github.com/pkg/errors"

	"github.com/kolide/tuf/tuferr"
)

// SignedTargets is a targets.json (or delegated NAME.json) signed body:
// the map from target path to {length, hashes, custom?}, plus an optional
// delegations object naming further roles.
type SignedTargets struct {
	Type        string                 `json:"_type"`
	SpecVersion string                 `json:"spec_version"`
	Version     int                    `json:"version"`
	Expires     time.Time              `json:"expires"`
	Targets     map[string]TargetFiles `json:"targets"`
	Delegations *Delegations           `json:"delegations,omitempty"`
}

// DelegatedRole is one entry in delegations.roles: a grant of authority
// over a subset of target paths to another role.
type DelegatedRole struct {
	RoleKeys
	Name             string   `json:"name"`
	Paths            []string `json:"paths,omitempty"`
	PathHashPrefixes []string `json:"path_hash_prefixes,omitempty"`
	Terminating      bool     `json:"terminating"`
}

// Verify enforces "exactly one of paths/path_hash_prefixes may be present"
// (spec.md §4.7) on top of the embedded RoleKeys.Verify.
func (d DelegatedRole) Verify() error {
	if err := d.RoleKeys.Verify(); err != nil {
		return errors.Wrapf(err, "delegation %q", d.Name)
	}
	hasPaths := len(d.Paths) > 0
	hasPrefixes := len(d.PathHashPrefixes) > 0
	if hasPaths == hasPrefixes {
		return errors.Errorf("delegation %q must set exactly one of paths/path_hash_prefixes", d.Name)
	}
	return nil
}

// Delegations is a targets role's {keys, roles} delegation block.
type Delegations struct {
	Keys  map[string]Key  `json:"keys"`
	Roles []DelegatedRole `json:"roles"`
}

// Targets is the {signed, signatures} envelope for the targets role and
// any delegated-targets role (they share a schema).
type Targets struct {
	Signed     SignedTargets
	Signatures []Signature

	// RoleName is the role this document was fetched/saved as: "targets"
	// for the top-level role, or the delegation's Name for a delegate.
	// It is bookkeeping, not part of the wire format.
	RoleName string

	signedMap map[string]interface{}
}

func ParseTargets(raw []byte, roleName string) (*Targets, error) {
	var st SignedTargets
	m, sigs, err := decodeEnvelope(raw, &st)
	if err != nil {
		return nil, err
	}
	if st.Type != "targets" {
		return nil, tuferr.New(tuferr.KindParse, tuferr.WithCause(errors.Errorf("expected _type targets, got %q", st.Type)))
	}
	return &Targets{Signed: st, Signatures: sigs, RoleName: roleName, signedMap: m}, nil
}

func (t *Targets) CanonicalSigned() ([]byte, error) { return canonicalSigned(t.signedMap) }
func (t *Targets) Encode() ([]byte, error)          { return encodeEnvelope(t.Signed, t.Signatures) }
func (t *Targets) IsExpired(now time.Time) bool     { return now.After(t.Signed.Expires) }

// Lookup returns the target entry for path if this role (not its
// delegates) declares it directly.
func (t *Targets) Lookup(path string) (TargetFiles, bool) {
	tf, ok := t.Signed.Targets[path]
	return tf, ok
}

// DelegatedRoles returns the ordered list of child delegations, or nil if
// this role declares none.
func (t *Targets) DelegatedRoles() []DelegatedRole {
	if t.Signed.Delegations == nil {
		return nil
	}
	return t.Signed.Delegations.Roles
}

// DelegationKeys returns the keyid->key map backing this role's
// delegations, used to verify a child's signatures against keys the
// parent names.
func (t *Targets) DelegationKeys() map[string]Key {
	if t.Signed.Delegations == nil {
		return nil
	}
	return t.Signed.Delegations.Keys
}
