package transport

import (
	"context"
	"io"
	"net/url"
	"os"

	"github.com/pkg/errors"

	"github.com/kolide/tuf/tuferr"
)

// FileFetcher implements Fetcher for file:// URLs, for offline repositories
// (spec.md §4.4), generalizing kolide-updater/tuf/local_repo.go's
// os.Open-based role loading to the same Fetcher interface HTTPFetcher
// implements.
type FileFetcher struct{}

func (FileFetcher) Fetch(ctx context.Context, rawURL string, maxBytes int64) (io.ReadCloser, int64, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, 0, tuferr.New(tuferr.KindTransport, tuferr.WithURL(rawURL), tuferr.WithCause(errors.Wrap(err, "parsing file url")))
	}
	path := u.Path
	if path == "" {
		path = u.Opaque
	}
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, 0, tuferr.New(tuferr.KindNotFound, tuferr.WithURL(rawURL))
		}
		return nil, 0, tuferr.New(tuferr.KindTransport, tuferr.WithURL(rawURL), tuferr.WithCause(err))
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, 0, tuferr.New(tuferr.KindTransport, tuferr.WithURL(rawURL), tuferr.WithCause(err))
	}
	if maxBytes > 0 && info.Size() > maxBytes {
		f.Close()
		return nil, 0, tuferr.New(tuferr.KindOversized, tuferr.WithURL(rawURL))
	}
	return f, info.Size(), nil
}
