package editor

import (
	"context"
	"crypto/sha256"
	"fmt"
	"sort"

	"github.com/pkg/errors"

	"github.com/kolide/tuf/cjson"
	"github.com/kolide/tuf/data"
	"github.com/kolide/tuf/sign"
)

// RoleSigners maps a file name -- "targets", a delegated role's own name,
// "snapshot", or "timestamp" -- to the key sources that should sign it
// during SignAndEmit. Root is signed separately via SignRoot/CrossSignRoot
// before SignAndEmit is called, since its signature requirements (possible
// cross-signing against two key sets) don't fit this simpler map.
type RoleSigners map[string][]sign.KeySource

// Manifest is the set of encoded documents SignAndEmit produced, keyed by
// file name ("root.json", "1.root.json", "targets.json", "team-a.json",
// "snapshot.json", "timestamp.json").
type Manifest struct {
	Files map[string][]byte
}

// SignAndEmit signs every open document with the signers given, computes
// each parent's {version, length, hashes} reference to its children from
// the actual encoded bytes, and encodes the full repository. Documents are
// processed in a fixed order -- root, then every targets role in sorted
// name order, then snapshot, then timestamp -- so that two editor sessions
// built from identical inputs emit byte-identical output (spec.md §4.9
// P9).
//
// If the editor was constructed with a non-nil Store, every emitted file
// is also written through it via a write-to-temp-then-rename commit.
func (e *Editor) SignAndEmit(ctx context.Context, signers RoleSigners) (*Manifest, error) {
	m := &Manifest{Files: map[string][]byte{}}

	if len(e.rootSigs) > 0 {
		e.rootSigs = data.UniqueByKeyID(e.rootSigs)
		raw, err := (&data.Root{Signed: e.root, Signatures: e.rootSigs}).Encode()
		if err != nil {
			return nil, errors.Wrap(err, "encoding root")
		}
		m.Files["root.json"] = raw
		m.Files[fmt.Sprintf("%d.root.json", e.root.Version)] = raw
		if err := e.writeFile(ctx, "root.json", raw); err != nil {
			return nil, err
		}
		if err := e.writeFile(ctx, fmt.Sprintf("%d.root.json", e.root.Version), raw); err != nil {
			return nil, err
		}
	}

	names := make([]string, 0, len(e.targets))
	for name := range e.targets {
		names = append(names, name)
	}
	sort.Strings(names)

	targetsMeta := make(map[string]data.MetaFiles, len(names))
	for _, name := range names {
		doc := e.targets[name]

		canonical, err := cjson.Marshal(doc.signed)
		if err != nil {
			return nil, err
		}
		sigs, err := sign.SignEnvelope(ctx, canonical, signers[name])
		if err != nil {
			return nil, errors.Wrapf(err, "signing %q", name)
		}
		doc.sigs = append(doc.sigs, sigs...)

		raw, err := (&data.Targets{Signed: doc.signed, Signatures: data.UniqueByKeyID(doc.sigs)}).Encode()
		if err != nil {
			return nil, errors.Wrapf(err, "encoding %q", name)
		}

		fileName := name + ".json"
		m.Files[fileName] = raw
		if err := e.writeFile(ctx, fileName, raw); err != nil {
			return nil, err
		}

		digest := sha256.Sum256(raw)
		length := int64(len(raw))
		targetsMeta[fileName] = data.MetaFiles{
			Version: int64(doc.signed.Version),
			Length:  &length,
			Hashes:  data.Hashes{"sha256": data.HexBytes(digest[:])},
		}
	}

	e.snapshot.Meta = targetsMeta
	snapshotCanonical, err := cjson.Marshal(e.snapshot)
	if err != nil {
		return nil, err
	}
	snapshotSigs, err := sign.SignEnvelope(ctx, snapshotCanonical, signers["snapshot"])
	if err != nil {
		return nil, errors.Wrap(err, "signing snapshot")
	}
	e.snapshotSigs = data.UniqueByKeyID(append(e.snapshotSigs, snapshotSigs...))
	snapshotRaw, err := (&data.Snapshot{Signed: e.snapshot, Signatures: e.snapshotSigs}).Encode()
	if err != nil {
		return nil, errors.Wrap(err, "encoding snapshot")
	}
	m.Files["snapshot.json"] = snapshotRaw
	if err := e.writeFile(ctx, "snapshot.json", snapshotRaw); err != nil {
		return nil, err
	}

	snapshotDigest := sha256.Sum256(snapshotRaw)
	snapshotLength := int64(len(snapshotRaw))
	e.timestamp.Meta = map[string]data.MetaFiles{
		"snapshot.json": {
			Version: int64(e.snapshot.Version),
			Length:  &snapshotLength,
			Hashes:  data.Hashes{"sha256": data.HexBytes(snapshotDigest[:])},
		},
	}
	timestampCanonical, err := cjson.Marshal(e.timestamp)
	if err != nil {
		return nil, err
	}
	timestampSigs, err := sign.SignEnvelope(ctx, timestampCanonical, signers["timestamp"])
	if err != nil {
		return nil, errors.Wrap(err, "signing timestamp")
	}
	e.timestampSigs = data.UniqueByKeyID(append(e.timestampSigs, timestampSigs...))
	timestampRaw, err := (&data.Timestamp{Signed: e.timestamp, Signatures: e.timestampSigs}).Encode()
	if err != nil {
		return nil, errors.Wrap(err, "encoding timestamp")
	}
	m.Files["timestamp.json"] = timestampRaw
	if err := e.writeFile(ctx, "timestamp.json", timestampRaw); err != nil {
		return nil, err
	}

	return m, nil
}

func (e *Editor) writeFile(ctx context.Context, name string, raw []byte) error {
	if e.st == nil {
		return nil
	}
	w, err := e.st.Writer(ctx, name)
	if err != nil {
		return errors.Wrapf(err, "opening writer for %q", name)
	}
	defer w.Close()
	if _, err := w.Write(raw); err != nil {
		return errors.Wrapf(err, "writing %q", name)
	}
	if err := w.Commit(); err != nil {
		return errors.Wrapf(err, "committing %q", name)
	}
	return nil
}
