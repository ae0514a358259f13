package common

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"io"
	"os"
	"path/filepath"
)

type Hasher struct {
	h hash.Hash
}

func NewHasher() *Hasher {
	return &Hasher{h: sha256.New()}
}

func (h *Hasher) Write(p []byte) (int, error) {
	return h.h.Write(p)
}

func (h *Hasher) Sum() string {
	return hex.EncodeToString(h.h.Sum(nil))
}

func Sha256OfFile(path string) (string, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", 0, err
	}
	defer f.Close()
	h := sha256.New()
	n, err := io.Copy(h, f)
	if err != nil {
		return "", 0, err
	}
	return fmt.Sprintf("%x", h.Sum(nil)), n, nil
}

// AtomicFile is written next to its destination and only becomes visible
// under the final name once Commit succeeds.
type AtomicFile struct {
	f      *os.File
	dest   string
	done   bool
	hasher *Hasher
	w      io.Writer
}

// CreateAtomic opens a temporary file in the directory of dest.
func CreateAtomic(dest string) (*AtomicFile, error) {
	dir := filepath.Dir(dest)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	f, err := os.CreateTemp(dir, "."+filepath.Base(dest)+".tmp-*")
	if err != nil {
		return nil, err
	}
	h := NewHasher()
	return &AtomicFile{f: f, dest: dest, hasher: h, w: io.MultiWriter(f, h)}, nil
}

func (a *AtomicFile) Write(p []byte) (int, error) {
	if a.done {
		return 0, errors.New("write on finished atomic file")
	}
	return a.w.Write(p)
}

// Path returns the final destination.
func (a *AtomicFile) Path() string { return a.dest }

// Sha256 returns the digest of everything written so far.
func (a *AtomicFile) Sha256() string { return a.hasher.Sum() }

// Commit flushes the temporary file to disk and renames it over dest.
func (a *AtomicFile) Commit() error {
	if err := a.seal(); err != nil {
		return err
	}
	if err := os.Rename(a.f.Name(), a.dest); err != nil {
		os.Remove(a.f.Name())
		return err
	}
	return nil
}

func (a *AtomicFile) seal() error {
	if a.done {
		return errors.New("atomic file already finished")
	}
	a.done = true
	if err := a.f.Sync(); err != nil {
		a.f.Close()
		os.Remove(a.f.Name())
		return err
	}
	if err := a.f.Close(); err != nil {
		os.Remove(a.f.Name())
		return err
	}
	if err := os.Chmod(a.f.Name(), 0o644); err != nil {
		os.Remove(a.f.Name())
		return err
	}
	return nil
}

// Publication is a set of committed files that can still be reverted to
// what their destinations held before. Finish it with Keep or Revert.
type Publication struct {
	done []renamed
}

type renamed struct {
	dest   string
	backup string
}

// CommitAll commits files as one unit. When any commit fails the files
// already renamed are reverted and the remaining ones aborted.
func CommitAll(files []*AtomicFile) (*Publication, error) {
	p := &Publication{}
	for i, a := range files {
		if err := p.commit(a); err != nil {
			for _, rest := range files[i+1:] {
				rest.Abort()
			}
			p.Revert()
			return nil, fmt.Errorf("publish %s: %w", a.dest, err)
		}
	}
	return p, nil
}

func (p *Publication) commit(a *AtomicFile) error {
	if err := a.seal(); err != nil {
		return err
	}
	var backup string
	if fi, err := os.Lstat(a.dest); err == nil && fi.Mode().IsRegular() {
		backup = a.f.Name() + ".prev"
		if err := os.Rename(a.dest, backup); err != nil {
			os.Remove(a.f.Name())
			return err
		}
	}
	if err := os.Rename(a.f.Name(), a.dest); err != nil {
		os.Remove(a.f.Name())
		if backup != "" {
			os.Rename(backup, a.dest)
		}
		return err
	}
	p.done = append(p.done, renamed{dest: a.dest, backup: backup})
	return nil
}

// Keep drops the saved previous contents.
func (p *Publication) Keep() {
	for _, r := range p.done {
		if r.backup != "" {
			os.Remove(r.backup)
		}
	}
	p.done = nil
}

// Revert puts every destination back to its state before CommitAll.
func (p *Publication) Revert() error {
	var errs []error
	for i := len(p.done) - 1; i >= 0; i-- {
		r := p.done[i]
		var err error
		if r.backup != "" {
			err = os.Rename(r.backup, r.dest)
		} else {
			err = os.Remove(r.dest)
		}
		if err != nil {
			errs = append(errs, err)
		}
	}
	p.done = nil
	return errors.Join(errs...)
}

// Abort discards the temporary file. It is a no-op after Commit.
func (a *AtomicFile) Abort() {
	if a == nil || a.done {
		return
	}
	a.done = true
	a.f.Close()
	os.Remove(a.f.Name())
}

// WriteFileAtomic writes data to path through an AtomicFile.
func WriteFileAtomic(path string, data []byte) error {
	af, err := CreateAtomic(path)
	if err != nil {
		return err
	}
	if _, err := af.Write(data); err != nil {
		af.Abort()
		return err
	}
	return af.Commit()
}
