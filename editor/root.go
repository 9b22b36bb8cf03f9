package editor

import (
	"context"

	"github.com/pkg/errors"

	"github.com/kolide/tuf/cjson"
	"github.com/kolide/tuf/sign"
)

// SignRoot signs the in-progress root document (mode must be ModeRoot)
// with signers and appends their signatures, without closing the mode.
func (e *Editor) SignRoot(ctx context.Context, signers ...sign.KeySource) error {
	if e.mode != ModeRoot {
		return errors.New("editor: sign-root requires root mode")
	}
	canonical, err := cjson.Marshal(e.root)
	if err != nil {
		return err
	}
	sigs, err := sign.SignEnvelope(ctx, canonical, signers)
	if err != nil {
		return err
	}
	e.rootSigs = append(e.rootSigs, sigs...)
	return nil
}

// CrossSignRoot signs the in-progress root (a new version) with both the
// previous root's threshold-satisfying signers and the new root's own
// signers, producing the chain link client.verifyRootChainLink checks
// (spec.md §4.6 step 2, §4.9 "Cross-signing a new root").
func (e *Editor) CrossSignRoot(ctx context.Context, previousSigners, newSigners []sign.KeySource) error {
	all := make([]sign.KeySource, 0, len(previousSigners)+len(newSigners))
	all = append(all, previousSigners...)
	all = append(all, newSigners...)
	return e.SignRoot(ctx, all...)
}
