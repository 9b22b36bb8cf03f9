// Package transport implements the pluggable fetch abstraction from
// spec.md §4.4, generalizing kolide-updater/tuf/remote_repo.go's
// getRole/getClient (size-bounded net/http GET) and
// kolide-updater/tuf/local_repo.go's file-based role source into a single
// Fetcher interface with an HTTP and a file:// implementation.
package transport

import (
	"context"
	"io"

	"github.com/kolide/tuf/tuferr"
)

// Fetcher is the pluggable transport interface named by spec.md §4.4.
// Fetch returns a reader that yields at most maxBytes (0 means
// unbounded) and the content length: the server-reported length when
// known, otherwise the number of bytes actually read.
type Fetcher interface {
	Fetch(ctx context.Context, url string, maxBytes int64) (io.ReadCloser, int64, error)
}

// boundedReader wraps an io.ReadCloser so that reading past max bytes
// fails with tuferr.KindOversized instead of silently truncating, per
// spec.md §4.4 ("reading beyond fails with Oversized").
type boundedReader struct {
	rc     io.ReadCloser
	remain int64
	url    string
}

// NewBoundedReader enforces maxBytes (<=0 means unbounded) over rc.
func NewBoundedReader(rc io.ReadCloser, maxBytes int64, url string) io.ReadCloser {
	if maxBytes <= 0 {
		return rc
	}
	return &boundedReader{rc: rc, remain: maxBytes, url: url}
}

func (b *boundedReader) Read(p []byte) (int, error) {
	if b.remain <= 0 {
		return 0, tuferr.New(tuferr.KindOversized, tuferr.WithURL(b.url))
	}
	if int64(len(p)) > b.remain+1 {
		p = p[:b.remain+1]
	}
	n, err := b.rc.Read(p)
	b.remain -= int64(n)
	if b.remain < 0 {
		return n, tuferr.New(tuferr.KindOversized, tuferr.WithURL(b.url))
	}
	return n, err
}

func (b *boundedReader) Close() error { return b.rc.Close() }
