package client

import (
	"context"
	"io"

	"github.com/pkg/errors"

	"github.com/kolide/tuf/data"
	"github.com/kolide/tuf/tuferr"
)

// snapshotFetcher implements delegation.ChildFetcher by loading a
// delegated-targets role's metadata through the snapshot-pinned URL and
// length/hash, exactly as updateSnapshot/updateTargets do for the
// top-level roles. It does not itself check signatures -- that authority
// check belongs to the delegation package, which verifies against the
// *parent's* listed keys (I5), not root's.
type snapshotFetcher struct {
	client *Client
}

func (f *snapshotFetcher) FetchChild(ctx context.Context, roleName string) (*data.Targets, error) {
	c := f.client
	if cached, ok := c.state.Delegates[roleName]; ok {
		return cached, nil
	}

	filename := roleName + ".json"
	meta, ok := c.state.Snapshot.FileMeta(filename)
	if !ok {
		return nil, tuferr.New(tuferr.KindParse, tuferr.WithRole(roleName),
			tuferr.WithCause(errors.Errorf("snapshot does not reference %s", filename)))
	}

	maxBytes := c.settings.MaxTargetsSize
	if meta.Length != nil {
		maxBytes = *meta.Length
	}
	url := metaURL(c.settings.MetadataBaseURL, filename, int(meta.Version), c.state.Root.Signed.ConsistentSnapshot)
	rc, _, err := c.fetcher.Fetch(ctx, url, maxBytes)
	if err != nil {
		return nil, err
	}
	raw, err := io.ReadAll(rc)
	rc.Close()
	if err != nil {
		return nil, errors.Wrapf(err, "reading delegated role %q", roleName)
	}
	if err := meta.VerifyContent(raw); err != nil {
		return nil, tuferr.New(tuferr.KindIntegrity, tuferr.WithRole(roleName), tuferr.WithCause(err))
	}

	child, err := data.ParseTargets(raw, roleName)
	if err != nil {
		return nil, err
	}
	if int64(child.Signed.Version) != meta.Version {
		return nil, tuferr.New(tuferr.KindRollback, tuferr.WithRole(roleName), tuferr.WithVersion(child.Signed.Version),
			tuferr.WithCause(errors.Errorf("delegated role version %d does not match snapshot's declared %d", child.Signed.Version, meta.Version)))
	}
	if child.IsExpired(c.settings.Clock.Now()) {
		expiredErr := tuferr.New(tuferr.KindExpired, tuferr.WithRole(roleName), tuferr.WithVersion(child.Signed.Version))
		if !c.settings.AllowExpiredRepo {
			return nil, expiredErr
		}
	}

	c.state.Delegates[roleName] = child
	return child, nil
}
