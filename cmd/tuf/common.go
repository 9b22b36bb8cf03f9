// Command tuf is the companion repository editor and client CLI from
// spec.md §6, generalizing kolide-updater/example/cmd/main.go's flag-driven
// settings construction into a multi-verb github.com/spf13/cobra command
// tree, since the teacher's example only ever drove a single flat updater
// loop.
package main

import (
	"context"
	"io"
	"time"

	"github.com/go-kit/kit/log"
	"github.com/pkg/errors"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/kolide/tuf/data"
	"github.com/kolide/tuf/editor"
	"github.com/kolide/tuf/sign"
	"github.com/kolide/tuf/store"
)

// commonFlags are the flags shared across every subcommand, spec.md §6.
type commonFlags struct {
	repoDir         string
	keys            []string
	expires         string
	version         int
	threshold       int
	jobs            int
	ignoreThreshold bool
}

func addRepoFlag(cmd *cobra.Command, f *commonFlags) {
	cmd.Flags().StringVar(&f.repoDir, "repo", ".", "path to the local repository directory")
}

func addEditFlags(cmd *cobra.Command, f *commonFlags) {
	addRepoFlag(cmd, f)
	cmd.Flags().StringArrayVar(&f.keys, "key", nil,
		"key source uri (file:PATH, aws-kms://KEY_ID, aws-ssm://PARAMETER_NAME), may be repeated")
	cmd.Flags().StringVar(&f.expires, "expires", "", "expiry timestamp, RFC3339 (e.g. 2030-01-01T00:00:00Z)")
	cmd.Flags().IntVar(&f.version, "version", 0, "metadata version to assign")
	cmd.Flags().IntVar(&f.threshold, "threshold", 0, "signing threshold to assign")
	cmd.Flags().IntVar(&f.jobs, "jobs", 0, "hashing worker pool size for bulk target addition (0 = GOMAXPROCS)")
	cmd.Flags().BoolVar(&f.ignoreThreshold, "ignore-threshold", false, "accepted but has no effect: no subcommand reads it")
}

func openStore(f *commonFlags) (store.Store, error) {
	st, err := store.New(afero.NewOsFs(), f.repoDir)
	if err != nil {
		return nil, errors.Wrapf(err, "opening repository at %q", f.repoDir)
	}
	return st, nil
}

func resolveSigners(ctx context.Context, f *commonFlags) ([]sign.KeySource, error) {
	sources := make([]sign.KeySource, 0, len(f.keys))
	for _, uri := range f.keys {
		src, err := sign.ParseKeySourceURI(ctx, uri)
		if err != nil {
			return nil, errors.Wrapf(err, "loading key %q", uri)
		}
		sources = append(sources, src)
	}
	return sources, nil
}

func publicKeys(ctx context.Context, sources []sign.KeySource) ([]data.Key, error) {
	keys := make([]data.Key, 0, len(sources))
	for _, src := range sources {
		k, err := src.PublicKey(ctx)
		if err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, nil
}

func parseExpires(f *commonFlags) (time.Time, error) {
	if f.expires == "" {
		return time.Time{}, errors.New("--expires is required")
	}
	t, err := time.Parse(time.RFC3339, f.expires)
	if err != nil {
		return time.Time{}, errors.Wrap(err, "parsing --expires")
	}
	return t.UTC(), nil
}

func newEditor(f *commonFlags, st store.Store) *editor.Editor {
	return editor.New(editor.Settings{Jobs: f.jobs, Logger: log.NewNopLogger()}, st)
}

// loadRepo hydrates e with whatever metadata already exists under st,
// including every reachable delegated-targets role, so that incremental
// CLI invocations (one process per command) see the prior commands' work.
func loadRepo(ctx context.Context, st store.Store, e *editor.Editor) error {
	if raw, ok, err := tryRead(ctx, st, "root.json"); err != nil {
		return err
	} else if ok {
		root, err := data.ParseRoot(raw)
		if err != nil {
			return errors.Wrap(err, "parsing root.json")
		}
		e.LoadRoot(root)
	}

	if raw, ok, err := tryRead(ctx, st, "targets.json"); err != nil {
		return err
	} else if ok {
		targets, err := data.ParseTargets(raw, "targets")
		if err != nil {
			return errors.Wrap(err, "parsing targets.json")
		}
		e.LoadTargets("targets", targets)
		if err := loadDelegates(ctx, st, e, targets); err != nil {
			return err
		}
	}

	if raw, ok, err := tryRead(ctx, st, "snapshot.json"); err != nil {
		return err
	} else if ok {
		snapshot, err := data.ParseSnapshot(raw)
		if err != nil {
			return errors.Wrap(err, "parsing snapshot.json")
		}
		e.LoadSnapshot(snapshot)
	}

	if raw, ok, err := tryRead(ctx, st, "timestamp.json"); err != nil {
		return err
	} else if ok {
		timestamp, err := data.ParseTimestamp(raw)
		if err != nil {
			return errors.Wrap(err, "parsing timestamp.json")
		}
		e.LoadTimestamp(timestamp)
	}

	return nil
}

func loadDelegates(ctx context.Context, st store.Store, e *editor.Editor, parent *data.Targets) error {
	for _, role := range parent.DelegatedRoles() {
		raw, ok, err := tryRead(ctx, st, role.Name+".json")
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		child, err := data.ParseTargets(raw, role.Name)
		if err != nil {
			return errors.Wrapf(err, "parsing %s.json", role.Name)
		}
		e.LoadTargets(role.Name, child)
		if err := loadDelegates(ctx, st, e, child); err != nil {
			return err
		}
	}
	return nil
}

func tryRead(ctx context.Context, st store.Store, name string) ([]byte, bool, error) {
	exists, err := st.Exists(ctx, name)
	if err != nil {
		return nil, false, errors.Wrapf(err, "checking %q", name)
	}
	if !exists {
		return nil, false, nil
	}
	f, err := st.Open(ctx, name)
	if err != nil {
		return nil, false, errors.Wrapf(err, "opening %q", name)
	}
	defer f.Close()
	raw, err := io.ReadAll(f)
	if err != nil {
		return nil, false, errors.Wrapf(err, "reading %q", name)
	}
	return raw, true, nil
}
