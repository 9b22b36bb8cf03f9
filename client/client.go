// Package client implements the client update workflow (C6), the central
// algorithm of spec.md §4.6: staged, ordered loading and verification of
// root → timestamp → snapshot → targets, with rollback protection and
// delegation resolution on demand. It generalizes kolide-updater/tuf/tuf.go's
// Client/Settings and kolide-updater/tuf/repo.go's repoMan.refresSafe
// staging, replacing the teacher's single-role Notary-specific fetch with
// the general TUF sequence.
package client

import (
	"context"

	"github.com/go-kit/kit/log"
	"github.com/pkg/errors"

	"github.com/kolide/tuf/data"
	"github.com/kolide/tuf/delegation"
	"github.com/kolide/tuf/transport"
)

// State is the in-memory repository snapshot a successful Update produces:
// the full verified role set plus whatever delegated-targets roles have
// been resolved so far.
type State struct {
	Root      *data.Root
	Timestamp *data.Timestamp
	Snapshot  *data.Snapshot
	Targets   *data.Targets
	Delegates map[string]*data.Targets
}

// Client holds the trust cursor (current trusted root) and the
// last-committed State. A new State only replaces the old one after every
// stage in Update commits, so a cancelled or failed Update never leaves a
// torn state visible to callers (spec.md §5).
type Client struct {
	settings Settings
	fetcher  transport.Fetcher

	state *State
}

// New seeds a Client with a locally-supplied trusted root document (step 1
// of spec.md §4.6): "trust on first use" for the initial root only. Its
// self-consistency (≥ threshold signatures by its own listed root keys) is
// checked here; its expiry is deliberately not checked, per spec.md.
func New(settings Settings, fetcher transport.Fetcher, trustedRootBytes []byte) (*Client, error) {
	if err := settings.Verify(); err != nil {
		return nil, err
	}

	root, err := data.ParseRoot(trustedRootBytes)
	if err != nil {
		return nil, errors.Wrap(err, "parsing trusted root")
	}
	if err := verifyRootSelfConsistent(root); err != nil {
		return nil, err
	}

	return &Client{
		settings: settings,
		fetcher:  fetcher,
		state:    &State{Root: root, Delegates: map[string]*data.Targets{}},
	}, nil
}

// State returns the last successfully committed repository state. Before
// the first successful Update it holds only the trusted root passed to New.
func (c *Client) State() *State { return c.state }

func (c *Client) logger() log.Logger { return c.settings.Logger }

// ResolveTarget runs the delegation resolver (C7) over the currently
// committed State to find the authoritative metadata for path, fetching
// and snapshot-pinning any delegated-targets roles it needs to visit along
// the way (spec.md §4.7).
func (c *Client) ResolveTarget(ctx context.Context, path string) (*data.TargetFiles, []string, error) {
	return delegation.Resolve(ctx, c.state.Targets, path, &snapshotFetcher{client: c})
}
