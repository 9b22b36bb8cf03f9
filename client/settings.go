package client

import (
	"net/url"

	"github.com/WatchBeam/clock"
	"github.com/go-kit/kit/log"
	"github.com/pkg/errors"
)

const (
	defaultMaxRootSize      = 1 << 20  // 1 MiB
	defaultMaxTimestampSize = 16 << 10 // 16 KiB
	defaultMaxSnapshotSize  = 2 << 20  // 2 MiB
	defaultMaxTargetsSize   = 5 << 20  // 5 MiB, this module's own default; spec.md leaves it to the caller
)

// Settings configures a Client, following kolide-updater/tuf/tuf.go's
// Settings/validatePath/validateURL pattern generalized to the full TUF
// role set rather than a single Notary GUN.
type Settings struct {
	// MetadataBaseURL serves root/timestamp/snapshot/targets/delegated
	// metadata documents.
	MetadataBaseURL string
	// TargetsBaseURL serves the actual target artifacts.
	TargetsBaseURL string

	MaxRootSize      int64
	MaxTimestampSize int64
	MaxSnapshotSize  int64
	MaxTargetsSize   int64

	// AllowExpiredRepo downgrades an expiry failure on timestamp, snapshot,
	// or top-level targets to a warning, per spec.md §4.6 Failure semantics.
	// Signature, threshold, and rollback checks stay fatal regardless.
	AllowExpiredRepo bool

	Clock  clock.Clock
	Logger log.Logger
}

// Verify fills in defaults and rejects a malformed configuration, the way
// kolide-updater/tuf/repo.go's validateURL/validatePath do for the
// teacher's narrower Notary-only settings.
func (s *Settings) Verify() error {
	if s.MetadataBaseURL == "" {
		return errors.New("client: MetadataBaseURL is required")
	}
	if s.TargetsBaseURL == "" {
		return errors.New("client: TargetsBaseURL is required")
	}
	if _, err := url.Parse(s.MetadataBaseURL); err != nil {
		return errors.Wrap(err, "client: invalid MetadataBaseURL")
	}
	if _, err := url.Parse(s.TargetsBaseURL); err != nil {
		return errors.Wrap(err, "client: invalid TargetsBaseURL")
	}
	if s.MaxRootSize == 0 {
		s.MaxRootSize = defaultMaxRootSize
	}
	if s.MaxTimestampSize == 0 {
		s.MaxTimestampSize = defaultMaxTimestampSize
	}
	if s.MaxSnapshotSize == 0 {
		s.MaxSnapshotSize = defaultMaxSnapshotSize
	}
	if s.MaxTargetsSize == 0 {
		s.MaxTargetsSize = defaultMaxTargetsSize
	}
	if s.Clock == nil {
		s.Clock = clock.New()
	}
	if s.Logger == nil {
		s.Logger = log.NewNopLogger()
	}
	return nil
}
