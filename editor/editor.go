// Package editor implements the repository editor (C9): a modal session
// that builds, modifies, and signs TUF metadata, the write path of
// spec.md §4.9. It generalizes kolide-updater/tuf/persistence.go's
// save/backup flow and follows other_examples/53a3d8a9_kipz-go-tuf-metadata
// __metadata-metadata.go.go's AddKey/RevokeKey/Sign conventions for the
// operations the teacher never needed (the teacher only ever read a
// Notary repository, never wrote one).
package editor

import (
	"context"
	"time"

	"github.com/WatchBeam/clock"
	"github.com/go-kit/kit/log"
	"github.com/pkg/errors"

	"github.com/kolide/tuf/cjson"
	"github.com/kolide/tuf/data"
	"github.com/kolide/tuf/sign"
	"github.com/kolide/tuf/store"
)

const specVersion = "1.0.0"

// Mode names the role currently open for editing: one of the three
// singleton roles, or a targets role's own name ("targets" for the
// top-level role, or a delegated role's name).
type Mode string

const (
	ModeRoot      Mode = "root"
	ModeSnapshot  Mode = "snapshot"
	ModeTimestamp Mode = "timestamp"
	ModeTargets   Mode = "targets"
)

// Settings configures an Editor.
type Settings struct {
	// Jobs bounds AddTargetsFromDir's hashing worker pool. 0 means
	// runtime.GOMAXPROCS(0) (spec.md §5.2).
	Jobs int

	Clock  clock.Clock
	Logger log.Logger
}

func (s *Settings) verify() {
	if s.Clock == nil {
		s.Clock = clock.New()
	}
	if s.Logger == nil {
		s.Logger = log.NewNopLogger()
	}
}

// targetsDoc is one targets role (top-level or delegated) being built.
type targetsDoc struct {
	signed data.SignedTargets
	sigs   []data.Signature
}

// Editor is a single-owner, modal session over a repository's metadata.
// Only the role named by mode may be mutated by AddTarget, SetVersion, and
// the delegation operations; Open switches which role that is. A single
// Editor must not be used from more than one goroutine at a time (spec.md
// §5 "Locking").
type Editor struct {
	settings Settings
	st       store.Store

	mode Mode

	root     data.SignedRoot
	rootSigs []data.Signature

	targets map[string]*targetsDoc

	snapshot     data.SignedSnapshot
	snapshotSigs []data.Signature

	timestamp     data.SignedTimestamp
	timestampSigs []data.Signature
}

// New starts an editor session with empty metadata for every role, the
// "create" CLI path (spec.md §6). st may be nil if the caller only wants
// SignAndEmit's returned Manifest bytes without persisting them (e.g. a
// test).
func New(settings Settings, st store.Store) *Editor {
	settings.verify()
	return &Editor{
		settings: settings,
		st:       st,
		mode:     ModeTargets,
		root: data.SignedRoot{
			Type: "root", SpecVersion: specVersion,
			Keys: map[string]data.Key{}, Roles: map[data.Role]data.RoleKeys{},
		},
		targets: map[string]*targetsDoc{
			"targets": newTargetsDoc(),
		},
		snapshot:  data.SignedSnapshot{Type: "snapshot", SpecVersion: specVersion, Meta: map[string]data.MetaFiles{}},
		timestamp: data.SignedTimestamp{Type: "timestamp", SpecVersion: specVersion, Meta: map[string]data.MetaFiles{}},
	}
}

func newTargetsDoc() *targetsDoc {
	return &targetsDoc{signed: data.SignedTargets{Type: "targets", SpecVersion: specVersion, Targets: map[string]data.TargetFiles{}}}
}

// LoadRoot seeds the editor's in-progress root from a previously parsed
// document, for the "update" CLI path over an existing repository.
func (e *Editor) LoadRoot(r *data.Root) {
	e.root = r.Signed
	e.rootSigs = append([]data.Signature(nil), r.Signatures...)
}

// LoadTargets seeds a targets role (top-level or delegated) from a
// previously parsed document.
func (e *Editor) LoadTargets(name string, t *data.Targets) {
	e.targets[name] = &targetsDoc{signed: t.Signed, sigs: append([]data.Signature(nil), t.Signatures...)}
}

// LoadSnapshot seeds the in-progress snapshot from a previously parsed
// document.
func (e *Editor) LoadSnapshot(s *data.Snapshot) {
	e.snapshot = s.Signed
	e.snapshotSigs = append([]data.Signature(nil), s.Signatures...)
}

// LoadTimestamp seeds the in-progress timestamp from a previously parsed
// document.
func (e *Editor) LoadTimestamp(t *data.Timestamp) {
	e.timestamp = t.Signed
	e.timestampSigs = append([]data.Signature(nil), t.Signatures...)
}

// Mode reports the role currently open for editing.
func (e *Editor) Mode() Mode { return e.mode }

// Open switches the editing session to mode, clearing that role's version
// and expiry so they must be set again before the role is signed (spec.md
// §4.9 "Opening clears version and expires"). It does not sign or discard
// whatever the previously open role was; call Close first if the spec's
// "sign and install before switching" behavior is wanted.
func (e *Editor) Open(mode Mode) {
	e.mode = mode
	switch mode {
	case ModeRoot:
		e.root.Version = 0
		e.root.Expires = time.Time{}
	case ModeSnapshot:
		e.snapshot.Version = 0
		e.snapshot.Expires = time.Time{}
	case ModeTimestamp:
		e.timestamp.Version = 0
		e.timestamp.Expires = time.Time{}
	default:
		doc := e.targetsDocFor(string(mode))
		doc.signed.Version = 0
		doc.signed.Expires = time.Time{}
	}
}

// Close signs the currently open role with signers and installs the
// resulting signatures onto it in place, the "switching roles first signs
// the in-progress role" half of spec.md §4.9's mode-change bullet. Pass no
// signers to leave the role's existing signatures untouched (e.g. when a
// later SignAndEmit call will supply them instead).
func (e *Editor) Close(ctx context.Context, signers ...sign.KeySource) error {
	if len(signers) == 0 {
		return nil
	}
	switch e.mode {
	case ModeRoot:
		return e.SignRoot(ctx, signers...)
	case ModeSnapshot:
		canonical, err := cjson.Marshal(e.snapshot)
		if err != nil {
			return err
		}
		sigs, err := sign.SignEnvelope(ctx, canonical, signers)
		if err != nil {
			return err
		}
		e.snapshotSigs = append(e.snapshotSigs, sigs...)
		return nil
	case ModeTimestamp:
		canonical, err := cjson.Marshal(e.timestamp)
		if err != nil {
			return err
		}
		sigs, err := sign.SignEnvelope(ctx, canonical, signers)
		if err != nil {
			return err
		}
		e.timestampSigs = append(e.timestampSigs, sigs...)
		return nil
	default:
		doc := e.targetsDocFor(string(e.mode))
		canonical, err := cjson.Marshal(doc.signed)
		if err != nil {
			return err
		}
		sigs, err := sign.SignEnvelope(ctx, canonical, signers)
		if err != nil {
			return err
		}
		doc.sigs = append(doc.sigs, sigs...)
		return nil
	}
}

// SetVersion sets the currently open role's version.
func (e *Editor) SetVersion(v int) {
	switch e.mode {
	case ModeRoot:
		e.root.Version = v
	case ModeSnapshot:
		e.snapshot.Version = v
	case ModeTimestamp:
		e.timestamp.Version = v
	default:
		e.targetsDocFor(string(e.mode)).signed.Version = v
	}
}

// SetExpires sets the currently open role's expiry.
func (e *Editor) SetExpires(t time.Time) {
	switch e.mode {
	case ModeRoot:
		e.root.Expires = t
	case ModeSnapshot:
		e.snapshot.Expires = t
	case ModeTimestamp:
		e.timestamp.Expires = t
	default:
		e.targetsDocFor(string(e.mode)).signed.Expires = t
	}
}

// SetThreshold sets root.json's threshold for role, creating an empty
// {keyids, threshold} entry if role was not yet declared. Only valid in
// root mode.
func (e *Editor) SetThreshold(role data.Role, threshold int) error {
	if e.mode != ModeRoot {
		return errors.New("editor: set-threshold requires root mode")
	}
	rk := e.root.Roles[role]
	rk.Threshold = threshold
	e.root.Roles[role] = rk
	return nil
}

// currentTargetsDoc resolves the targets document the open mode names,
// rejecting the call if a singleton role (root/snapshot/timestamp) is open.
func (e *Editor) currentTargetsDoc() (*targetsDoc, error) {
	switch e.mode {
	case ModeRoot, ModeSnapshot, ModeTimestamp:
		return nil, errors.Errorf("editor: mode %q is not a targets role", e.mode)
	default:
		return e.targetsDocFor(string(e.mode)), nil
	}
}

// targetsDocFor returns (creating if absent) the working doc for a named
// targets role.
func (e *Editor) targetsDocFor(name string) *targetsDoc {
	doc, ok := e.targets[name]
	if !ok {
		doc = newTargetsDoc()
		e.targets[name] = doc
	}
	return doc
}
