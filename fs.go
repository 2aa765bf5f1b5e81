package kvfs

import (
	"context"
	"os"
)

// FS is the synchronous face of a Storage. Every call returns as soon as
// the mirror reflects it; backend writes are deferred, and their failures
// go to the Storage's logger, metrics and error handler. Call Flush to wait
// for durability.
type FS struct {
	s *Storage
}

// NewFS returns an FS over s.
func NewFS(s *Storage) *FS {
	return &FS{s: s}
}

// Storage returns the underlying Storage.
func (fs *FS) Storage() *Storage {
	return fs.s
}

// Flush waits until all deferred writes have reached the backend.
func (fs *FS) Flush(ctx context.Context) error {
	return fs.s.Flush(ctx)
}

// ReadFile returns the contents of the file at name, following symlinks.
func (fs *FS) ReadFile(name string) ([]byte, error) {
	return readFile(fs.s, "readfile", ParsePath(name))
}

// WriteFile replaces the contents of name, creating it if needed. An
// existing inode keeps its identifier.
func (fs *FS) WriteFile(name string, data []byte) error {
	_, err := fs.s.commit(true, func() ([]*write, error) {
		return fs.s.stageSet("writefile", ParsePath(name), NewFile(data))
	})
	return err
}

// Unlink removes name. It is interchangeable with Rmdir.
func (fs *FS) Unlink(name string) error {
	return fs.remove("unlink", name)
}

// Rmdir removes name and everything beneath it. It does not require the
// directory to be empty, nor name to be a directory.
func (fs *FS) Rmdir(name string) error {
	return fs.remove("rmdir", name)
}

func (fs *FS) remove(op, name string) error {
	_, err := fs.s.commit(true, func() ([]*write, error) {
		return fs.s.stageDelete(op, ParsePath(name))
	})
	return err
}

// ReadDir lists the directory at name. Each entry is returned as an
// absolute path, in the order entries were created.
func (fs *FS) ReadDir(name string) ([]string, error) {
	return readDir(fs.s, "readdir", ParsePath(name))
}

// Mkdir stores an empty directory at name.
func (fs *FS) Mkdir(name string) error {
	_, err := fs.s.commit(true, func() ([]*write, error) {
		return fs.s.stageSet("mkdir", ParsePath(name), NewDirectory())
	})
	return err
}

// MkdirAll creates name and any missing parents. Existing directories are
// left untouched.
func (fs *FS) MkdirAll(name string) error {
	_, err := fs.s.commit(true, func() ([]*write, error) {
		return fs.s.stageMkdirAll("mkdir", ParsePath(name))
	})
	return err
}

// Stat describes the inode at name, following symlinks.
func (fs *FS) Stat(name string) (*FileInfo, error) {
	return stat(fs.s, "stat", ParsePath(name))
}

// Lstat describes the inode at name without following a final symlink.
func (fs *FS) Lstat(name string) (*FileInfo, error) {
	return lstat(fs.s, "lstat", ParsePath(name))
}

// Exists reports whether name resolves.
func (fs *FS) Exists(name string) bool {
	return exists(fs.s, ParsePath(name))
}

// Readlink returns the target of the symlink at name.
func (fs *FS) Readlink(name string) (string, error) {
	return readlink(fs.s, "readlink", ParsePath(name))
}

// Symlink stores a symlink at name pointing to target. The target is not
// checked.
func (fs *FS) Symlink(target, name string) error {
	_, err := fs.s.commit(true, func() ([]*write, error) {
		return fs.s.stageSet("symlink", ParsePath(name), NewSymlink(target))
	})
	return err
}

// Chmod sets the permission bits of the inode at name.
func (fs *FS) Chmod(name string, mode os.FileMode) error {
	return fs.s.ModifyDeferred("chmod", ParsePath(name), chmod(mode))
}

func chmod(mode os.FileMode) func(Inode) error {
	return func(n Inode) error {
		n.meta().Mode = mode &^ os.ModeType
		return nil
	}
}
