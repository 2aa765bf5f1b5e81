package kvfs

import (
	"io/fs"
	"os"
	"time"
)

// FileInfo describes an inode. It implements io/fs.FileInfo; Sys returns
// the inode ID.
type FileInfo struct {
	name string
	id   ID
	typ  FileType
	meta Metadata
}

func newFileInfo(p Path, id ID, node Inode) *FileInfo {
	_, name := p.Split()
	if p.IsRoot() {
		name = "/"
	}
	return &FileInfo{
		name: name,
		id:   id,
		typ:  TypeOf(node),
		meta: MetadataOf(node),
	}
}

func (i *FileInfo) Name() string { return i.name }
func (i *FileInfo) Size() int64  { return i.meta.Size }

// Mode returns the stored permission bits combined with the type bits.
func (i *FileInfo) Mode() fs.FileMode {
	mode := i.meta.Mode &^ os.ModeType
	switch i.typ {
	case TypeDir:
		mode |= os.ModeDir
	case TypeSymlink:
		mode |= os.ModeSymlink
	}
	return mode
}

// ModTime is always the zero time; kvfs keeps no timestamps.
func (i *FileInfo) ModTime() time.Time { return time.Time{} }
func (i *FileInfo) IsDir() bool        { return i.typ == TypeDir }
func (i *FileInfo) Sys() any           { return i.id }

// Type reports "file", "dir" or "symlink".
func (i *FileInfo) Type() FileType { return i.typ }

// ID returns the identifier of the described inode.
func (i *FileInfo) ID() ID { return i.id }
