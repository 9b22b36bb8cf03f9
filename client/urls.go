package client

import (
	"fmt"
	"strings"
)

// rootURL names a root chain document, always version-prefixed regardless
// of consistent_snapshot -- root versioning is how the chain-update loop
// walks forward, independent of that flag (spec.md §4.6 step 2).
func rootURL(base string, version int) string {
	return joinURL(base, fmt.Sprintf("%d.root.json", version))
}

// timestampURL never carries a version prefix (spec.md §4.6 "Consistent
// snapshots").
func timestampURL(base string) string {
	return joinURL(base, "timestamp.json")
}

// metaURL names snapshot.json, targets.json, or a delegated role's
// NAME.json, version-prefixed only when consistentSnapshot is set.
func metaURL(base, name string, version int, consistentSnapshot bool) string {
	if consistentSnapshot {
		return joinURL(base, fmt.Sprintf("%d.%s", version, name))
	}
	return joinURL(base, name)
}

// targetURL composes a target artifact's URL, hash-prefixed only when
// consistentSnapshot is set (spec.md §4.8).
func targetURL(base, path, hash string, consistentSnapshot bool) string {
	if consistentSnapshot && hash != "" {
		dir, file := splitPath(path)
		return joinURL(base, joinPath(dir, hash+"."+file))
	}
	return joinURL(base, path)
}

func joinURL(base, suffix string) string {
	return strings.TrimRight(base, "/") + "/" + strings.TrimLeft(suffix, "/")
}

func splitPath(p string) (dir, file string) {
	i := strings.LastIndex(p, "/")
	if i < 0 {
		return "", p
	}
	return p[:i+1], p[i+1:]
}

func joinPath(dir, file string) string {
	return dir + file
}
