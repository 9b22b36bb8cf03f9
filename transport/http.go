package transport

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"
	"github.com/pkg/errors"

	"github.com/kolide/tuf/tuferr"
)

// HTTPFetcher fetches metadata and target files over HTTPS, generalizing
// kolide-updater/tuf/remote_repo.go's notaryRepo.getRole (size-bounded
// net/http GET with a LimitedReader) and kolide-updater/transport.go's
// getTransport (dialer/TLS timeouts) into a reusable Fetcher with retry.
type HTTPFetcher struct {
	Client *http.Client
	Policy RetryPolicy
	Logger log.Logger
}

// NewHTTPFetcher builds a fetcher with a TLS handshake timeout and an
// overall per-request timeout; no separate dial timeout is set.
func NewHTTPFetcher(policy RetryPolicy, logger log.Logger) *HTTPFetcher {
	if logger == nil {
		logger = log.NewNopLogger()
	}
	return &HTTPFetcher{
		Client: &http.Client{
			Transport: &http.Transport{
				TLSHandshakeTimeout: 10 * time.Second,
			},
			Timeout: 30 * time.Second,
		},
		Policy: policy,
		Logger: logger,
	}
}

// Fetch implements transport.Fetcher. It buffers the full (bounded) body
// in memory so that a mid-stream failure can be retried by reopening the
// connection -- matching the retry-on-partial-read contract in spec.md
// §4.4 (resume via Range when the server advertises Accept-Ranges,
// otherwise restart from zero).
func (f *HTTPFetcher) Fetch(ctx context.Context, url string, maxBytes int64) (io.ReadCloser, int64, error) {
	var buf bytes.Buffer
	var total int64 = -1
	var acceptRanges bool

	attempt := 0
	operation := func() error {
		attempt++
		offset := int64(buf.Len())
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return backoff.Permanent(errors.Wrap(err, "building request"))
		}
		if offset > 0 && f.Policy.RetryOnPartialRead && acceptRanges {
			req.Header.Set("Range", fmt.Sprintf("bytes=%d-", offset))
		} else if offset > 0 {
			buf.Reset()
		}

		resp, err := f.Client.Do(req)
		if err != nil {
			level.Debug(f.Logger).Log("msg", "fetch attempt failed", "url", url, "attempt", attempt, "err", err)
			return errors.Wrap(err, "performing request")
		}
		defer resp.Body.Close()

		if resp.StatusCode == http.StatusNotFound {
			return backoff.Permanent(tuferr.New(tuferr.KindNotFound, tuferr.WithURL(url)))
		}
		if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusPartialContent {
			if f.Policy.RetryableStatus[resp.StatusCode] {
				return errors.Errorf("retryable status %d", resp.StatusCode)
			}
			return backoff.Permanent(tuferr.New(tuferr.KindTransport, tuferr.WithURL(url),
				tuferr.WithCause(errors.Errorf("unexpected status %d", resp.StatusCode))))
		}
		acceptRanges = resp.Header.Get("Accept-Ranges") == "bytes"
		if cl := resp.ContentLength; cl >= 0 {
			if resp.StatusCode == http.StatusPartialContent {
				total = offset + cl
			} else {
				total = cl
			}
		}

		reader := io.Reader(resp.Body)
		if maxBytes > 0 {
			reader = io.LimitReader(resp.Body, maxBytes-int64(buf.Len())+1)
		}
		n, err := io.Copy(&buf, reader)
		if err != nil {
			level.Debug(f.Logger).Log("msg", "partial read", "url", url, "bytes", n, "err", err)
			if !f.Policy.RetryOnPartialRead {
				return backoff.Permanent(tuferr.New(tuferr.KindTransport, tuferr.WithURL(url), tuferr.WithCause(err)))
			}
			return errors.Wrap(err, "reading response body")
		}
		if maxBytes > 0 && int64(buf.Len()) > maxBytes {
			return backoff.Permanent(tuferr.New(tuferr.KindOversized, tuferr.WithURL(url)))
		}
		return nil
	}

	boff := backoff.NewExponentialBackOff()
	boff.InitialInterval = f.Policy.InitialBackoff
	boff.MaxInterval = f.Policy.MaxBackoff
	boff.Multiplier = f.Policy.BackoffMultiplier
	retryCtx := backoff.WithContext(boff, ctx)

	maxAttempts := f.Policy.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	err := backoff.Retry(operation, backoff.WithMaxRetries(retryCtx, uint64(maxAttempts-1)))
	if err != nil {
		if terr, ok := err.(*tuferr.Error); ok {
			return nil, 0, terr
		}
		return nil, 0, tuferr.New(tuferr.KindTransport, tuferr.WithURL(url), tuferr.WithCause(err))
	}

	length := total
	if length < 0 {
		length = int64(buf.Len())
	}
	return io.NopCloser(bytes.NewReader(buf.Bytes())), length, nil
}
