package editor

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"runtime"
	"sync"

	"github.com/pkg/errors"
	"github.com/spf13/afero"

	"github.com/kolide/tuf/data"
	"github.com/kolide/tuf/verify"
)

var defaultHashAlgos = []string{"sha256"}

// AddTarget hashes content with every algorithm in algos (sha256 if none
// given, sha512 may additionally be requested) and records it under path
// in the currently open targets role, preserving any previously attached
// custom blob when custom is nil (spec.md §4.9).
func (e *Editor) AddTarget(path string, content []byte, algos []string, custom json.RawMessage) error {
	doc, err := e.currentTargetsDoc()
	if err != nil {
		return err
	}
	if len(algos) == 0 {
		algos = defaultHashAlgos
	}
	hashes, err := hashAll(content, algos)
	if err != nil {
		return err
	}
	length := int64(len(content))
	tf := data.TargetFiles{Length: &length, Hashes: hashes}
	if custom != nil {
		tf.Custom = custom
	} else if existing, ok := doc.signed.Targets[path]; ok {
		tf.Custom = existing.Custom
	}
	doc.signed.Targets[path] = tf
	return nil
}

// RemoveTarget drops path from the currently open targets role.
func (e *Editor) RemoveTarget(path string) error {
	doc, err := e.currentTargetsDoc()
	if err != nil {
		return err
	}
	delete(doc.signed.Targets, path)
	return nil
}

// AddTargetsFromDir hashes every regular file under dir (on fsys) and adds
// it to the currently open targets role, keyed by its slash-separated path
// relative to dir. Hashing is parallelized across a worker pool sized by
// Settings.Jobs (runtime.GOMAXPROCS(0) when unset), workers writing into a
// concurrent map keyed by target path, per spec.md §5.2.
func (e *Editor) AddTargetsFromDir(ctx context.Context, fsys afero.Fs, dir string, algos []string) error {
	doc, err := e.currentTargetsDoc()
	if err != nil {
		return err
	}
	if len(algos) == 0 {
		algos = defaultHashAlgos
	}

	var paths []string
	err = afero.Walk(fsys, dir, func(p string, info os.FileInfo, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if info.IsDir() {
			return nil
		}
		paths = append(paths, p)
		return nil
	})
	if err != nil {
		return errors.Wrap(err, "walking target directory")
	}

	jobs := e.settings.Jobs
	if jobs <= 0 {
		jobs = runtime.GOMAXPROCS(0)
	}

	var results sync.Map
	sem := make(chan struct{}, jobs)
	var wg sync.WaitGroup
	var mu sync.Mutex
	var firstErr error

	setErr := func(err error) {
		mu.Lock()
		if firstErr == nil {
			firstErr = err
		}
		mu.Unlock()
	}

	for _, p := range paths {
		p := p
		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()
			if err := ctx.Err(); err != nil {
				setErr(err)
				return
			}
			content, err := afero.ReadFile(fsys, p)
			if err != nil {
				setErr(errors.Wrapf(err, "reading %q", p))
				return
			}
			hashes, err := hashAll(content, algos)
			if err != nil {
				setErr(err)
				return
			}
			rel, err := filepath.Rel(dir, p)
			if err != nil {
				setErr(errors.Wrapf(err, "relativizing %q", p))
				return
			}
			length := int64(len(content))
			results.Store(filepath.ToSlash(rel), data.TargetFiles{Length: &length, Hashes: hashes})
		}()
	}
	wg.Wait()
	if firstErr != nil {
		return firstErr
	}

	results.Range(func(k, v interface{}) bool {
		doc.signed.Targets[k.(string)] = v.(data.TargetFiles)
		return true
	})
	return nil
}

func hashAll(content []byte, algos []string) (data.Hashes, error) {
	hashes := make(data.Hashes, len(algos))
	for _, algo := range algos {
		digest, err := verify.Digest(algo, content)
		if err != nil {
			return nil, err
		}
		hashes[algo] = data.HexBytes(digest)
	}
	return hashes, nil
}
