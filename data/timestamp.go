package data

import (
	"time"

	"github.com/pkg/errors"

	"github.com/kolide/tuf/tuferr"
)

// SignedTimestamp is timestamp.json's signed body: a reference to exactly
// one file, snapshot.json, by {version, length?, hashes?}.
type SignedTimestamp struct {
	Type        string    `json:"_type"`
	SpecVersion string    `json:"spec_version"`
	Version     int       `json:"version"`
	Expires     time.Time `json:"expires"`
	Meta        map[string]MetaFiles `json:"meta"`
}

// Timestamp is the {signed, signatures} envelope for the timestamp role.
type Timestamp struct {
	Signed     SignedTimestamp
	Signatures []Signature

	signedMap map[string]interface{}
}

func ParseTimestamp(raw []byte) (*Timestamp, error) {
	var st SignedTimestamp
	m, sigs, err := decodeEnvelope(raw, &st)
	if err != nil {
		return nil, err
	}
	if st.Type != "timestamp" {
		return nil, tuferr.New(tuferr.KindParse, tuferr.WithCause(errors.Errorf("expected _type timestamp, got %q", st.Type)))
	}
	return &Timestamp{Signed: st, Signatures: sigs, signedMap: m}, nil
}

func (t *Timestamp) CanonicalSigned() ([]byte, error) { return canonicalSigned(t.signedMap) }
func (t *Timestamp) Encode() ([]byte, error)          { return encodeEnvelope(t.Signed, t.Signatures) }
func (t *Timestamp) IsExpired(now time.Time) bool     { return now.After(t.Signed.Expires) }

// SnapshotMeta returns the {version, length?, hashes?} reference this
// timestamp carries for snapshot.json.
func (t *Timestamp) SnapshotMeta() (MetaFiles, bool) {
	m, ok := t.Signed.Meta["snapshot.json"]
	return m, ok
}

// IdenticalTo reports whether two timestamps carry the same version and
// the same canonical signed bytes -- used by the rollback check's "if
// equal, require byte-identical" rule (§4.6 step 3).
func (t *Timestamp) IdenticalTo(other *Timestamp) (bool, error) {
	a, err := t.CanonicalSigned()
	if err != nil {
		return false, err
	}
	b, err := other.CanonicalSigned()
	if err != nil {
		return false, err
	}
	if len(a) != len(b) {
		return false, nil
	}
	for i := range a {
		if a[i] != b[i] {
			return false, nil
		}
	}
	return true, nil
}
