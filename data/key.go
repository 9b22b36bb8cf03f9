package data

import (
	"github.com/pkg/errors"

	"github.com/kolide/tuf/cjson"
)

// Key types and signing schemes this module understands (C2's verifier
// capability set: rsassa-pss-sha256, ed25519, ecdsa-sha2-nistp256).
const (
	KeyTypeRSA     = "rsa"
	KeyTypeED25519 = "ed25519"
	KeyTypeECDSA   = "ecdsa"

	SchemeRSASSAPSSSHA256  = "rsassa-pss-sha256"
	SchemeED25519          = "ed25519"
	SchemeECDSASHA2NistP256 = "ecdsa-sha2-nistp256"
)

// KeyVal carries the public (and, for a signer's own records, private) key
// material. Public is PEM/SPKI for RSA/ECDSA or the raw 32 bytes for
// Ed25519, always hex-encoded on the wire (HexBytes).
type KeyVal struct {
	Public  HexBytes `json:"public"`
	Private HexBytes `json:"private,omitempty"`
}

// Key is a public-key object as it appears in root.json's "keys" map or a
// targets delegation's "delegations.keys" map.
type Key struct {
	KeyType string `json:"keytype"`
	Scheme  string `json:"scheme"`
	KeyVal  KeyVal `json:"keyval"`
}

// keyForID is the subset of Key that participates in the keyid hash. Per
// P2, a keyid is the hex sha256 of the canonical JSON of the key *object*;
// we canonicalize the same Key struct used on the wire (minus any private
// material, which never appears in a public keys map) so the keyid a
// verifier computes from root.json matches what the signer computed.
type keyForID struct {
	KeyType string `json:"keytype"`
	Scheme  string `json:"scheme"`
	KeyVal  struct {
		Public HexBytes `json:"public"`
	} `json:"keyval"`
}

// ID computes the keyid for this key per P2: hex(sha256(canonical_json(key))).
func (k Key) ID() (string, error) {
	obj := keyForID{KeyType: k.KeyType, Scheme: k.Scheme}
	obj.KeyVal.Public = k.KeyVal.Public
	id, err := cjson.KeyID(obj)
	if err != nil {
		return "", errors.Wrap(err, "computing keyid")
	}
	return id, nil
}
