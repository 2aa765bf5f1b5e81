package kvfs

import (
	"context"
	"os"
)

// AsyncFS offers the operations of FS, plus Rename, with every mutation
// waiting until the backend has acknowledged it. Backend failures are
// returned to the caller. Reads never touch the backend.
type AsyncFS struct {
	s *Storage
}

// NewAsyncFS returns an AsyncFS over s.
func NewAsyncFS(s *Storage) *AsyncFS {
	return &AsyncFS{s: s}
}

// Storage returns the underlying Storage.
func (fs *AsyncFS) Storage() *Storage {
	return fs.s
}

// ReadFile returns the contents of the file at name, following symlinks.
func (fs *AsyncFS) ReadFile(ctx context.Context, name string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return readFile(fs.s, "readfile", ParsePath(name))
}

// WriteFile replaces the contents of name, creating it if needed.
func (fs *AsyncFS) WriteFile(ctx context.Context, name string, data []byte) error {
	return fs.apply(ctx, func() ([]*write, error) {
		return fs.s.stageSet("writefile", ParsePath(name), NewFile(data))
	})
}

// Unlink removes name. It is interchangeable with Rmdir.
func (fs *AsyncFS) Unlink(ctx context.Context, name string) error {
	return fs.apply(ctx, func() ([]*write, error) {
		return fs.s.stageDelete("unlink", ParsePath(name))
	})
}

// Rmdir removes name and everything beneath it.
func (fs *AsyncFS) Rmdir(ctx context.Context, name string) error {
	return fs.apply(ctx, func() ([]*write, error) {
		return fs.s.stageDelete("rmdir", ParsePath(name))
	})
}

// ReadDir lists the directory at name as absolute paths in creation order.
func (fs *AsyncFS) ReadDir(ctx context.Context, name string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return readDir(fs.s, "readdir", ParsePath(name))
}

// Mkdir stores an empty directory at name.
func (fs *AsyncFS) Mkdir(ctx context.Context, name string) error {
	return fs.apply(ctx, func() ([]*write, error) {
		return fs.s.stageSet("mkdir", ParsePath(name), NewDirectory())
	})
}

// MkdirAll creates name and any missing parents.
func (fs *AsyncFS) MkdirAll(ctx context.Context, name string) error {
	return fs.apply(ctx, func() ([]*write, error) {
		return fs.s.stageMkdirAll("mkdir", ParsePath(name))
	})
}

// Stat describes the inode at name, following symlinks.
func (fs *AsyncFS) Stat(ctx context.Context, name string) (*FileInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return stat(fs.s, "stat", ParsePath(name))
}

// Lstat describes the inode at name without following a final symlink.
func (fs *AsyncFS) Lstat(ctx context.Context, name string) (*FileInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return lstat(fs.s, "lstat", ParsePath(name))
}

// Exists reports whether name resolves.
func (fs *AsyncFS) Exists(ctx context.Context, name string) bool {
	return exists(fs.s, ParsePath(name))
}

// Readlink returns the target of the symlink at name.
func (fs *AsyncFS) Readlink(ctx context.Context, name string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return readlink(fs.s, "readlink", ParsePath(name))
}

// Symlink stores a symlink at name pointing to target.
func (fs *AsyncFS) Symlink(ctx context.Context, target, name string) error {
	return fs.apply(ctx, func() ([]*write, error) {
		return fs.s.stageSet("symlink", ParsePath(name), NewSymlink(target))
	})
}

// Chmod sets the permission bits of the inode at name.
func (fs *AsyncFS) Chmod(ctx context.Context, name string, mode os.FileMode) error {
	return fs.s.Modify(ctx, "chmod", ParsePath(name), chmod(mode))
}

// Rename moves oldname to newname, replacing whatever newname held. The
// inode keeps its identifier.
func (fs *AsyncFS) Rename(ctx context.Context, oldname, newname string) error {
	return fs.apply(ctx, func() ([]*write, error) {
		return fs.s.stageRename("rename", ParsePath(oldname), ParsePath(newname))
	})
}

func (fs *AsyncFS) apply(ctx context.Context, stage func() ([]*write, error)) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	ws, err := fs.s.commit(false, stage)
	if err != nil {
		return err
	}
	return awaitAll(ctx, ws)
}
