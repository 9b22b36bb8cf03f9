package data

import (
	"time"

	"github.com/pkg/errors"

	"github.com/kolide/tuf/tuferr"
)

// SignedRoot is root.json's signed body: the mapping from role name to
// {keyids, threshold} and from keyid to public key (spec.md §3).
type SignedRoot struct {
	Type               string              `json:"_type"`
	SpecVersion        string              `json:"spec_version"`
	ConsistentSnapshot bool                `json:"consistent_snapshot"`
	Version            int                 `json:"version"`
	Expires            time.Time           `json:"expires"`
	Keys               map[string]Key      `json:"keys"`
	Roles              map[Role]RoleKeys   `json:"roles"`
}

// Root is the {signed, signatures} envelope for the root role.
type Root struct {
	Signed     SignedRoot
	Signatures []Signature

	signedMap map[string]interface{}
}

// ParseRoot decodes raw bytes as a root.json document.
func ParseRoot(raw []byte) (*Root, error) {
	var sr SignedRoot
	m, sigs, err := decodeEnvelope(raw, &sr)
	if err != nil {
		return nil, err
	}
	if sr.Type != "root" {
		return nil, tuferr.New(tuferr.KindParse, tuferr.WithCause(errors.Errorf("expected _type root, got %q", sr.Type)))
	}
	return &Root{Signed: sr, Signatures: sigs, signedMap: m}, nil
}

// CanonicalSigned returns the exact bytes that were (or should be) signed.
func (r *Root) CanonicalSigned() ([]byte, error) {
	return canonicalSigned(r.signedMap)
}

// Encode serializes a freshly built (non-parsed) root document.
func (r *Root) Encode() ([]byte, error) {
	return encodeEnvelope(r.Signed, r.Signatures)
}

// IsExpired reports whether now is after this root's expiry.
func (r *Root) IsExpired(now time.Time) bool {
	return now.After(r.Signed.Expires)
}

// RoleKeysFor resolves the {keyids, threshold} entry root.json declares
// for the named role, including "root" itself.
func (r *Root) RoleKeysFor(role Role) (RoleKeys, bool) {
	rk, ok := r.Signed.Roles[role]
	return rk, ok
}
