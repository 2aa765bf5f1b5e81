package kvfs

import (
	"os"

	"github.com/absfs/absfs"
	"github.com/pkg/errors"
)

// symlinker is implemented by absfs filesystems that support symlinks.
type symlinker interface {
	Symlink(oldname, newname string) error
}

// ExportTo copies the tree below the directory root into the root of dst.
// Symlinks are recreated when dst supports them and skipped otherwise.
func (s *Snapshot) ExportTo(dst absfs.Filer, root string) error {
	info, err := s.Stat(root)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return newPathError("export", ParsePath(root), CodeNotADirectory)
	}

	base := ParsePath(root)
	return s.Walk(root, func(name string, info *FileInfo, err error) error {
		if err != nil {
			return err
		}
		p := ParsePath(name)
		if len(p) == len(base) {
			return nil
		}
		target := p[len(base):].String()

		switch info.Type() {
		case TypeDir:
			err := dst.Mkdir(target, info.Mode().Perm())
			if err != nil && !os.IsExist(err) {
				return errors.Wrapf(err, "kvfs: export %s", name)
			}
		case TypeFile:
			data, err := s.ReadFile(name)
			if err != nil {
				return err
			}
			if err := exportFile(dst, target, data, info.Mode().Perm()); err != nil {
				return errors.Wrapf(err, "kvfs: export %s", name)
			}
		case TypeSymlink:
			sl, ok := dst.(symlinker)
			if !ok {
				return nil
			}
			link, err := s.Readlink(name)
			if err != nil {
				return err
			}
			if err := sl.Symlink(link, target); err != nil {
				return errors.Wrapf(err, "kvfs: export %s", name)
			}
		}
		return nil
	})
}

func exportFile(dst absfs.Filer, name string, data []byte, perm os.FileMode) error {
	f, err := dst.OpenFile(name, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, perm)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// ExportTo copies the tree below root into dst from a snapshot taken at
// the time of the call.
func (fs *FS) ExportTo(dst absfs.Filer, root string) error {
	snap := fs.s.Snapshot()
	defer snap.Release()
	return snap.ExportTo(dst, root)
}
