// Package delegation implements the delegation resolver (C7) from
// spec.md §4.7: a constrained, cycle-free preorder traversal of the
// delegation DAG that finds the unique authoritative metadata for a
// target path. It generalizes kolide-updater/tuf/repo.go's
// targetTreeBuilder/getDelegatedTarget, replacing that code's
// "first-visited role wins" shortcut with real path/path-hash-prefix
// authority checks and terminating-delegation short-circuiting.
package delegation

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/pkg/errors"

	"github.com/kolide/tuf/data"
	"github.com/kolide/tuf/tuferr"
	"github.com/kolide/tuf/verify"
)

// ChildFetcher loads and parses (but does not verify) a delegated targets
// role's metadata, already pinned to the version the caller's snapshot
// names (C6's job). Resolve performs signature verification itself, since
// a delegate's authority is defined relative to its *parent's* listed
// keys, not a global trust root.
type ChildFetcher interface {
	FetchChild(ctx context.Context, roleName string) (*data.Targets, error)
}

// Resolve walks the delegation DAG rooted at top looking for path,
// returning the authoritative target entry and the chain of role names
// that produced it (e.g. []string{"targets", "team-a", "team-a-releases"}).
// A nil *data.TargetFiles with a nil error means the path is authoritatively
// absent. Only delegations whose paths or path_hash_prefixes match path
// are fetched, so non-matching branches are never loaded and cannot fail
// the search. An error in a visited branch (fetch or signature failure,
// cycle) ends the whole search and is returned as is; it is not recorded
// and skipped in favour of sibling delegations.
func Resolve(ctx context.Context, top *data.Targets, path string, fetch ChildFetcher) (*data.TargetFiles, []string, error) {
	if tf, ok := top.Lookup(path); ok {
		return &tf, []string{top.RoleName}, nil
	}

	visited := map[string]bool{top.RoleName: true}
	return search(ctx, top, path, fetch, visited, []string{top.RoleName})
}

func search(ctx context.Context, parent *data.Targets, path string, fetch ChildFetcher, visited map[string]bool, trail []string) (*data.TargetFiles, []string, error) {
	for _, entry := range parent.DelegatedRoles() {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}

		matched, err := authorized(entry, path)
		if err != nil {
			return nil, nil, err
		}
		if !matched {
			continue
		}

		if visited[entry.Name] {
			return nil, nil, tuferr.New(tuferr.KindDelegationCycle, tuferr.WithRole(entry.Name))
		}
		visited[entry.Name] = true

		child, err := fetch.FetchChild(ctx, entry.Name)
		if err != nil {
			return nil, nil, err
		}
		if child.RoleName == "" {
			child.RoleName = entry.Name
		}

		if err := verifyDelegate(parent, entry, child); err != nil {
			return nil, nil, err
		}

		childTrail := append(append([]string{}, trail...), entry.Name)

		if tf, ok := child.Lookup(path); ok {
			return &tf, childTrail, nil
		}

		tf, roleTrail, err := search(ctx, child, path, fetch, visited, childTrail)
		if err != nil {
			return nil, nil, err
		}
		if tf != nil {
			return tf, roleTrail, nil
		}

		if entry.Terminating {
			// This delegation claimed authority over path and neither it
			// nor its descendants contain it: absent, authoritatively.
			return nil, nil, nil
		}
	}
	return nil, nil, nil
}

// authorized reports whether entry's paths/path_hash_prefixes grant it
// authority over path, per spec.md §4.7.
func authorized(entry data.DelegatedRole, path string) (bool, error) {
	switch {
	case len(entry.Paths) > 0:
		for _, pattern := range entry.Paths {
			ok, err := doublestar.Match(pattern, path)
			if err != nil {
				return false, tuferr.New(tuferr.KindDelegationUnauthorized, tuferr.WithRole(entry.Name), tuferr.WithCause(err))
			}
			if ok {
				return true, nil
			}
		}
		return false, nil
	case len(entry.PathHashPrefixes) > 0:
		sum := sha256.Sum256([]byte(path))
		digest := hex.EncodeToString(sum[:])
		for _, prefix := range entry.PathHashPrefixes {
			if strings.HasPrefix(digest, strings.ToLower(prefix)) {
				return true, nil
			}
		}
		return false, nil
	default:
		return false, tuferr.New(tuferr.KindDelegationUnauthorized, tuferr.WithRole(entry.Name),
			tuferr.WithCause(errors.New("delegation declares neither paths nor path_hash_prefixes")))
	}
}

// verifyDelegate checks child's signatures against the threshold entry
// declares, resolving keyids against the keys the *parent* names in its
// own delegations.keys block (I5: authority flows down from the parent,
// a child cannot grant itself more trust than its parent extended).
func verifyDelegate(parent *data.Targets, entry data.DelegatedRole, child *data.Targets) error {
	signed, err := child.CanonicalSigned()
	if err != nil {
		return tuferr.New(tuferr.KindCanonicalization, tuferr.WithRole(entry.Name), tuferr.WithCause(err))
	}
	if err := verify.Threshold(parent.DelegationKeys(), entry.RoleKeys, signed, child.Signatures); err != nil {
		if terr, ok := err.(*tuferr.Error); ok {
			terr.Role = entry.Name
			return terr
		}
		return tuferr.New(tuferr.KindThreshold, tuferr.WithRole(entry.Name), tuferr.WithCause(err))
	}
	return nil
}
