package editor

import (
	"context"
	"fmt"

	"github.com/kolide/tuf/data"
)

// Save persists whichever role is currently open to the store as-is,
// without touching any other role's cross-references -- the single-role
// write path the CLI's incremental `root init`/`root sign`/delegation
// commands need between full SignAndEmit passes. It is a no-op if the
// editor has no Store.
func (e *Editor) Save(ctx context.Context) error {
	if e.st == nil {
		return nil
	}
	switch e.mode {
	case ModeRoot:
		raw, err := (&data.Root{Signed: e.root, Signatures: e.rootSigs}).Encode()
		if err != nil {
			return err
		}
		if err := e.writeFile(ctx, "root.json", raw); err != nil {
			return err
		}
		return e.writeFile(ctx, fmt.Sprintf("%d.root.json", e.root.Version), raw)
	case ModeSnapshot:
		raw, err := (&data.Snapshot{Signed: e.snapshot, Signatures: e.snapshotSigs}).Encode()
		if err != nil {
			return err
		}
		return e.writeFile(ctx, "snapshot.json", raw)
	case ModeTimestamp:
		raw, err := (&data.Timestamp{Signed: e.timestamp, Signatures: e.timestampSigs}).Encode()
		if err != nil {
			return err
		}
		return e.writeFile(ctx, "timestamp.json", raw)
	default:
		doc := e.targetsDocFor(string(e.mode))
		raw, err := (&data.Targets{Signed: doc.signed, Signatures: doc.sigs}).Encode()
		if err != nil {
			return err
		}
		return e.writeFile(ctx, string(e.mode)+".json", raw)
	}
}
