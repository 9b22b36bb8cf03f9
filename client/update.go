package client

import (
	"context"
	"io"

	"github.com/go-kit/kit/log/level"
	"github.com/pkg/errors"

	"github.com/kolide/tuf/data"
	"github.com/kolide/tuf/tuferr"
)

// Update runs the full staged client workflow from spec.md §4.6: root
// chain update, then timestamp, snapshot, and top-level targets, each
// strictly after the previous has committed. It returns the freshly
// verified State, any non-fatal warnings (expiry downgrades under
// AllowExpiredRepo), and a fatal error that leaves the client's previously
// committed State untouched.
func (c *Client) Update(ctx context.Context) (*State, []error, error) {
	var warnings []error

	// Every stage works on a copy; the previous State is put back unless
	// the whole sequence commits.
	prev := c.state
	c.state = &State{Root: prev.Root, Timestamp: prev.Timestamp, Snapshot: prev.Snapshot, Targets: prev.Targets, Delegates: prev.Delegates}
	committed := false
	defer func() {
		if !committed {
			c.state = prev
		}
	}()

	if err := c.updateRootChain(ctx); err != nil {
		return nil, warnings, errors.Wrap(err, "updating root chain")
	}

	ts, warn, err := c.updateTimestamp(ctx)
	if err != nil {
		return nil, warnings, errors.Wrap(err, "updating timestamp")
	}
	if warn != nil {
		warnings = append(warnings, warn)
	}

	ss, warn, err := c.updateSnapshot(ctx, ts)
	if err != nil {
		return nil, warnings, errors.Wrap(err, "updating snapshot")
	}
	if warn != nil {
		warnings = append(warnings, warn)
	}

	targets, warn, err := c.updateTargets(ctx, ss)
	if err != nil {
		return nil, warnings, errors.Wrap(err, "updating targets")
	}
	if warn != nil {
		warnings = append(warnings, warn)
	}

	state := &State{
		Root:      c.state.Root,
		Timestamp: ts,
		Snapshot:  ss,
		Targets:   targets,
		Delegates: map[string]*data.Targets{},
	}
	c.state = state
	committed = true
	return state, warnings, nil
}

// updateRootChain implements spec.md §4.6 step 2: walk forward from the
// currently trusted root version, installing each new root only once it
// chain-verifies against both the previous and new root's key sets.
func (c *Client) updateRootChain(ctx context.Context) error {
	for i := c.state.Root.Signed.Version + 1; ; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		url := rootURL(c.settings.MetadataBaseURL, i)
		rc, _, err := c.fetcher.Fetch(ctx, url, c.settings.MaxRootSize)
		if err != nil {
			if terr, ok := err.(*tuferr.Error); ok && terr.Kind == tuferr.KindNotFound {
				break
			}
			return err
		}
		raw, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return errors.Wrap(err, "reading root chain document")
		}

		next, err := data.ParseRoot(raw)
		if err != nil {
			return err
		}
		if next.Signed.Type != "root" {
			return tuferr.New(tuferr.KindParse, tuferr.WithURL(url), tuferr.WithVersion(i),
				tuferr.WithCause(errors.Errorf("expected _type root, got %q", next.Signed.Type)))
		}
		if next.Signed.Version != i {
			return tuferr.New(tuferr.KindRollback, tuferr.WithURL(url), tuferr.WithVersion(i),
				tuferr.WithCause(errors.Errorf("root document declares version %d, fetched as %d", next.Signed.Version, i)))
		}
		if err := verifyRootChainLink(c.state.Root, next); err != nil {
			return errors.Wrapf(err, "chain-verifying root version %d", i)
		}

		level.Debug(c.logger()).Log("msg", "installed root", "version", i)
		c.state.Root = next
	}

	if c.state.Root.IsExpired(c.settings.Clock.Now()) {
		return tuferr.New(tuferr.KindExpired, tuferr.WithRole(string(data.RoleRoot)),
			tuferr.WithVersion(c.state.Root.Signed.Version))
	}
	return nil
}

// updateTimestamp implements spec.md §4.6 step 3.
func (c *Client) updateTimestamp(ctx context.Context) (*data.Timestamp, error, error) {
	url := timestampURL(c.settings.MetadataBaseURL)
	rc, _, err := c.fetcher.Fetch(ctx, url, c.settings.MaxTimestampSize)
	if err != nil {
		return nil, nil, err
	}
	raw, err := io.ReadAll(rc)
	rc.Close()
	if err != nil {
		return nil, nil, errors.Wrap(err, "reading timestamp")
	}

	ts, err := data.ParseTimestamp(raw)
	if err != nil {
		return nil, nil, err
	}

	signed, err := ts.CanonicalSigned()
	if err != nil {
		return nil, nil, err
	}
	if err := verifyRoleThreshold(c.state.Root, data.RoleTimestamp, signed, ts.Signatures); err != nil {
		return nil, nil, err
	}

	if prev := c.state.Timestamp; prev != nil {
		if ts.Signed.Version < prev.Signed.Version {
			return nil, nil, tuferr.New(tuferr.KindRollback, tuferr.WithRole(string(data.RoleTimestamp)),
				tuferr.WithVersion(ts.Signed.Version))
		}
		if ts.Signed.Version == prev.Signed.Version {
			identical, err := ts.IdenticalTo(prev)
			if err != nil {
				return nil, nil, err
			}
			if !identical {
				return nil, nil, tuferr.New(tuferr.KindRollback, tuferr.WithRole(string(data.RoleTimestamp)),
					tuferr.WithVersion(ts.Signed.Version),
					tuferr.WithCause(errors.New("same version but different content")))
			}
		}
	}

	if ts.IsExpired(c.settings.Clock.Now()) {
		expiredErr := tuferr.New(tuferr.KindExpired, tuferr.WithRole(string(data.RoleTimestamp)), tuferr.WithVersion(ts.Signed.Version))
		if !c.settings.AllowExpiredRepo {
			return nil, nil, expiredErr
		}
		return ts, expiredErr, nil
	}
	return ts, nil, nil
}

// updateSnapshot implements spec.md §4.6 step 4.
func (c *Client) updateSnapshot(ctx context.Context, ts *data.Timestamp) (*data.Snapshot, error, error) {
	meta, ok := ts.SnapshotMeta()
	if !ok {
		return nil, nil, tuferr.New(tuferr.KindParse, tuferr.WithRole(string(data.RoleTimestamp)),
			tuferr.WithCause(errors.New("timestamp does not reference snapshot.json")))
	}

	maxBytes := c.settings.MaxSnapshotSize
	if meta.Length != nil {
		maxBytes = *meta.Length
	}
	url := metaURL(c.settings.MetadataBaseURL, "snapshot.json", int(meta.Version), c.state.Root.Signed.ConsistentSnapshot)
	rc, _, err := c.fetcher.Fetch(ctx, url, maxBytes)
	if err != nil {
		return nil, nil, err
	}
	raw, err := io.ReadAll(rc)
	rc.Close()
	if err != nil {
		return nil, nil, errors.Wrap(err, "reading snapshot")
	}
	if err := meta.VerifyContent(raw); err != nil {
		return nil, nil, tuferr.New(tuferr.KindIntegrity, tuferr.WithRole("snapshot"), tuferr.WithCause(err))
	}

	ss, err := data.ParseSnapshot(raw)
	if err != nil {
		return nil, nil, err
	}
	if int64(ss.Signed.Version) != meta.Version {
		return nil, nil, tuferr.New(tuferr.KindRollback, tuferr.WithRole(string(data.RoleSnapshot)),
			tuferr.WithVersion(ss.Signed.Version),
			tuferr.WithCause(errors.Errorf("snapshot version %d does not match timestamp's declared %d", ss.Signed.Version, meta.Version)))
	}

	signed, err := ss.CanonicalSigned()
	if err != nil {
		return nil, nil, err
	}
	if err := verifyRoleThreshold(c.state.Root, data.RoleSnapshot, signed, ss.Signatures); err != nil {
		return nil, nil, err
	}

	if err := ss.VerifyNoRollback(c.state.Snapshot); err != nil {
		return nil, nil, err
	}

	if ss.IsExpired(c.settings.Clock.Now()) {
		expiredErr := tuferr.New(tuferr.KindExpired, tuferr.WithRole(string(data.RoleSnapshot)), tuferr.WithVersion(ss.Signed.Version))
		if !c.settings.AllowExpiredRepo {
			return nil, nil, expiredErr
		}
		return ss, expiredErr, nil
	}
	return ss, nil, nil
}

// updateTargets implements spec.md §4.6 step 5.
func (c *Client) updateTargets(ctx context.Context, ss *data.Snapshot) (*data.Targets, error, error) {
	meta, ok := ss.FileMeta("targets.json")
	if !ok {
		return nil, nil, tuferr.New(tuferr.KindParse, tuferr.WithRole(string(data.RoleSnapshot)),
			tuferr.WithCause(errors.New("snapshot does not reference targets.json")))
	}

	maxBytes := c.settings.MaxTargetsSize
	if meta.Length != nil {
		maxBytes = *meta.Length
	}
	url := metaURL(c.settings.MetadataBaseURL, "targets.json", int(meta.Version), c.state.Root.Signed.ConsistentSnapshot)
	rc, _, err := c.fetcher.Fetch(ctx, url, maxBytes)
	if err != nil {
		return nil, nil, err
	}
	raw, err := io.ReadAll(rc)
	rc.Close()
	if err != nil {
		return nil, nil, errors.Wrap(err, "reading targets")
	}
	if err := meta.VerifyContent(raw); err != nil {
		return nil, nil, tuferr.New(tuferr.KindIntegrity, tuferr.WithRole("targets"), tuferr.WithCause(err))
	}

	tg, err := data.ParseTargets(raw, "targets")
	if err != nil {
		return nil, nil, err
	}
	if int64(tg.Signed.Version) != meta.Version {
		return nil, nil, tuferr.New(tuferr.KindRollback, tuferr.WithRole(string(data.RoleTargets)),
			tuferr.WithVersion(tg.Signed.Version),
			tuferr.WithCause(errors.Errorf("targets version %d does not match snapshot's declared %d", tg.Signed.Version, meta.Version)))
	}

	signed, err := tg.CanonicalSigned()
	if err != nil {
		return nil, nil, err
	}
	if err := verifyRoleThreshold(c.state.Root, data.RoleTargets, signed, tg.Signatures); err != nil {
		return nil, nil, err
	}

	if tg.IsExpired(c.settings.Clock.Now()) {
		expiredErr := tuferr.New(tuferr.KindExpired, tuferr.WithRole(string(data.RoleTargets)), tuferr.WithVersion(tg.Signed.Version))
		if !c.settings.AllowExpiredRepo {
			return nil, nil, expiredErr
		}
		return tg, expiredErr, nil
	}
	return tg, nil, nil
}
