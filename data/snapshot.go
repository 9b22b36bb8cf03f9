package data

import (
	"time"

	"github.com/pkg/errors"

	"github.com/kolide/tuf/tuferr"
)

// SignedSnapshot is snapshot.json's signed body: the version of every
// other metadata file (targets.json plus each delegated-targets NAME.json),
// excluding timestamp.json itself.
type SignedSnapshot struct {
	Type        string               `json:"_type"`
	SpecVersion string               `json:"spec_version"`
	Version     int                  `json:"version"`
	Expires     time.Time            `json:"expires"`
	Meta        map[string]MetaFiles `json:"meta"`
}

// Snapshot is the {signed, signatures} envelope for the snapshot role.
type Snapshot struct {
	Signed     SignedSnapshot
	Signatures []Signature

	signedMap map[string]interface{}
}

func ParseSnapshot(raw []byte) (*Snapshot, error) {
	var ss SignedSnapshot
	m, sigs, err := decodeEnvelope(raw, &ss)
	if err != nil {
		return nil, err
	}
	if ss.Type != "snapshot" {
		return nil, tuferr.New(tuferr.KindParse, tuferr.WithCause(errors.Errorf("expected _type snapshot, got %q", ss.Type)))
	}
	return &Snapshot{Signed: ss, Signatures: sigs, signedMap: m}, nil
}

func (s *Snapshot) CanonicalSigned() ([]byte, error) { return canonicalSigned(s.signedMap) }
func (s *Snapshot) Encode() ([]byte, error)          { return encodeEnvelope(s.Signed, s.Signatures) }
func (s *Snapshot) IsExpired(now time.Time) bool     { return now.After(s.Signed.Expires) }

// FileMeta returns the {version, length?, hashes?} entry for a named
// metadata file, e.g. "targets.json" or "team-a/web.json".
func (s *Snapshot) FileMeta(filename string) (MetaFiles, bool) {
	m, ok := s.Signed.Meta[filename]
	return m, ok
}

// VerifyNoRollback enforces §4.6 step 4's rollback rule: every file this
// snapshot lists must have a version >= the version the previous trusted
// snapshot recorded for that same file. Files the previous snapshot didn't
// know about (newly added delegated roles) are exempt.
func (s *Snapshot) VerifyNoRollback(previous *Snapshot) error {
	if previous == nil {
		return nil
	}
	for filename, meta := range previous.Signed.Meta {
		cur, ok := s.Signed.Meta[filename]
		if !ok {
			continue
		}
		if cur.Version < meta.Version {
			return tuferr.New(tuferr.KindRollback, tuferr.WithFile(filename), tuferr.WithVersion(int(cur.Version)),
				tuferr.WithCause(errors.Errorf("version regressed from %d to %d", meta.Version, cur.Version)))
		}
	}
	return nil
}
