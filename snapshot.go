package kvfs

import (
	"io/fs"
	"os"
	"time"

	"github.com/pkg/errors"
)

// Snapshot is a read-only point-in-time copy of a Storage's mirror. Later
// changes to the Storage are not visible through it.
type Snapshot struct {
	m        *mirror
	depth    int
	created  time.Time
	released bool
}

// Snapshot copies the current mirror.
func (s *Storage) Snapshot() *Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m := newMirror()
	m.Replace(s.mirror.Copy())
	return &Snapshot{
		m:       m,
		depth:   s.symlinkDepth,
		created: time.Now(),
	}
}

// Created returns the time the snapshot was taken.
func (s *Snapshot) Created() time.Time {
	return s.created
}

// Release drops the copied inodes. The snapshot cannot be used afterwards.
func (s *Snapshot) Release() {
	s.released = true
	s.m = nil
}

func (s *Snapshot) lookup(p Path) (ID, Inode, Code) {
	id, node, code := s.m.Lookup(p)
	if code != CodeOK {
		return ID{}, nil, code
	}
	return id, node.Clone(), CodeOK
}

func (s *Snapshot) maxSymlinks() int {
	return s.depth
}

// Len returns the number of inodes in the snapshot.
func (s *Snapshot) Len() int {
	if s.released {
		return 0
	}
	return s.m.Len()
}

// Stat describes the inode at name, following symlinks.
func (s *Snapshot) Stat(name string) (*FileInfo, error) {
	if s.released {
		return nil, os.ErrClosed
	}
	return stat(s, "stat", ParsePath(name))
}

// Lstat describes the inode at name without following a final symlink.
func (s *Snapshot) Lstat(name string) (*FileInfo, error) {
	if s.released {
		return nil, os.ErrClosed
	}
	return lstat(s, "lstat", ParsePath(name))
}

// ReadDir lists the directory at name as absolute paths.
func (s *Snapshot) ReadDir(name string) ([]string, error) {
	if s.released {
		return nil, os.ErrClosed
	}
	return readDir(s, "readdir", ParsePath(name))
}

// ReadFile returns the contents of the file at name.
func (s *Snapshot) ReadFile(name string) ([]byte, error) {
	if s.released {
		return nil, os.ErrClosed
	}
	return readFile(s, "readfile", ParsePath(name))
}

// Readlink returns the target of the symlink at name.
func (s *Snapshot) Readlink(name string) (string, error) {
	if s.released {
		return "", os.ErrClosed
	}
	return readlink(s, "readlink", ParsePath(name))
}

// WalkFunc is called by Walk for every visited path. Returning fs.SkipDir
// from a directory skips its contents.
type WalkFunc func(name string, info *FileInfo, err error) error

// Walk visits root and everything beneath it in pre-order, children in
// directory order. Symlinks are reported, not followed.
func (s *Snapshot) Walk(root string, fn WalkFunc) error {
	if s.released {
		return os.ErrClosed
	}
	return s.walk(ParsePath(root), fn)
}

func (s *Snapshot) walk(p Path, fn WalkFunc) error {
	info, err := lstat(s, "walk", p)
	err = fn(p.String(), info, err)
	if err != nil {
		if info != nil && info.IsDir() && errors.Is(err, fs.SkipDir) {
			return nil
		}
		return err
	}
	if info == nil || !info.IsDir() {
		return nil
	}

	dir, _ := s.m.directory(info.ID())
	for _, e := range dir.Entries {
		if err := s.walk(p.Join(e.Name), fn); err != nil {
			return err
		}
	}
	return nil
}
