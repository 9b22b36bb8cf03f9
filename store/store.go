// Package store provides crash-safe, filesystem-backed storage for
// metadata and target files, used by targetfile (C8) and editor (C9). It
// generalizes kolide-updater/tuf/persistence.go's saveRole/backupTUFRepo
// write pattern: every write lands in a temp file first and is only
// renamed into place once it's fully flushed, so a crash mid-write never
// leaves a truncated file at the final path. Storage is abstracted over
// github.com/spf13/afero so tests can swap in an in-memory filesystem.
package store

import (
	"context"
	"io"
	"path/filepath"

	"github.com/spf13/afero"

	"github.com/pkg/errors"
)

// Store persists named blobs (metadata documents or target files) under a
// root directory.
type Store interface {
	// Writer returns a CommitWriter that buffers into a temp file; Commit
	// flushes and atomically renames the temp file onto name. Closing
	// without calling Commit discards the write.
	Writer(ctx context.Context, name string) (CommitWriter, error)
	// Open opens name for reading.
	Open(ctx context.Context, name string) (afero.File, error)
	// Exists reports whether name is present.
	Exists(ctx context.Context, name string) (bool, error)
	// Remove deletes name, if present.
	Remove(ctx context.Context, name string) error
}

// CommitWriter is an io.WriteCloser whose Close only takes effect on the
// underlying name if Commit was called first.
type CommitWriter interface {
	io.WriteCloser
	Commit() error
}

// FileStore is the default afero-backed Store, rooted at a directory on
// the underlying filesystem (real or in-memory).
type FileStore struct {
	fs   afero.Fs
	root string
}

// New returns a Store rooted at root on fs. Callers typically pass
// afero.NewOsFs() in production and afero.NewMemMapFs() in tests.
func New(fs afero.Fs, root string) (*FileStore, error) {
	if err := fs.MkdirAll(root, 0755); err != nil {
		return nil, errors.Wrapf(err, "creating store root %q", root)
	}
	return &FileStore{fs: fs, root: root}, nil
}

func (s *FileStore) path(name string) string {
	return filepath.Join(s.root, name)
}

func (s *FileStore) Writer(ctx context.Context, name string) (CommitWriter, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	dest := s.path(name)
	if err := s.fs.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return nil, errors.Wrapf(err, "creating parent dir for %q", name)
	}
	tmp, err := afero.TempFile(s.fs, filepath.Dir(dest), ".tmp-"+filepath.Base(dest)+"-")
	if err != nil {
		return nil, errors.Wrapf(err, "creating temp file for %q", name)
	}
	return &commitWriter{fs: s.fs, file: tmp, dest: dest}, nil
}

func (s *FileStore) Open(ctx context.Context, name string) (afero.File, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, err := s.fs.Open(s.path(name))
	if err != nil {
		return nil, errors.Wrapf(err, "opening %q", name)
	}
	return f, nil
}

func (s *FileStore) Exists(ctx context.Context, name string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	return afero.Exists(s.fs, s.path(name))
}

func (s *FileStore) Remove(ctx context.Context, name string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.fs.Remove(s.path(name)); err != nil {
		return errors.Wrapf(err, "removing %q", name)
	}
	return nil
}

type commitWriter struct {
	fs        afero.Fs
	file      afero.File
	dest      string
	committed bool
}

func (w *commitWriter) Write(p []byte) (int, error) { return w.file.Write(p) }

func (w *commitWriter) Commit() error {
	if err := w.file.Sync(); err != nil {
		return errors.Wrap(err, "syncing temp file")
	}
	if err := w.fs.Rename(w.file.Name(), w.dest); err != nil {
		return errors.Wrapf(err, "renaming into place %q", w.dest)
	}
	w.committed = true
	return nil
}

func (w *commitWriter) Close() error {
	err := w.file.Close()
	if !w.committed {
		_ = w.fs.Remove(w.file.Name())
	}
	return err
}
