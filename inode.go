package kvfs

import (
	"fmt"
	"os"
	"strings"
)

// DefaultMode is the permission set given to every inode kvfs creates.
const DefaultMode os.FileMode = 0o777

// Metadata is carried by every inode. Size is only ever set by WriteFile.
type Metadata struct {
	Mode os.FileMode
	Size int64
}

func (m *Metadata) meta() *Metadata { return m }

// Inode is a stored filesystem object: *File, *Directory or *Symlink. The
// set is closed; code consuming an Inode switches over all three.
type Inode interface {
	meta() *Metadata

	// Clone returns a deep copy.
	Clone() Inode
}

// File holds the complete contents of a regular file.
type File struct {
	Data []byte
	Metadata
}

// Directory links names to the identifiers of its children.
type Directory struct {
	Entries Dir
	Metadata
}

// Symlink stores its target path verbatim.
type Symlink struct {
	Target string
	Metadata
}

// NewFile returns a file holding data with the default mode.
func NewFile(data []byte) *File {
	if data == nil {
		data = []byte{}
	}
	return &File{
		Data:     data,
		Metadata: Metadata{Mode: DefaultMode, Size: int64(len(data))},
	}
}

// NewDirectory returns an empty directory with the default mode.
func NewDirectory() *Directory {
	return &Directory{
		Entries:  Dir{},
		Metadata: Metadata{Mode: DefaultMode},
	}
}

// NewSymlink returns a symlink to target with the default mode.
func NewSymlink(target string) *Symlink {
	return &Symlink{
		Target:   target,
		Metadata: Metadata{Mode: DefaultMode},
	}
}

func (f *File) Clone() Inode {
	data := make([]byte, len(f.Data))
	copy(data, f.Data)
	return &File{Data: data, Metadata: f.Metadata}
}

func (d *Directory) Clone() Inode {
	entries := make(Dir, len(d.Entries))
	copy(entries, d.Entries)
	return &Directory{Entries: entries, Metadata: d.Metadata}
}

func (s *Symlink) Clone() Inode {
	return &Symlink{Target: s.Target, Metadata: s.Metadata}
}

func (f *File) String() string {
	return fmt.Sprintf("File{%d bytes, %s}", len(f.Data), f.Mode)
}

func (d *Directory) String() string {
	return fmt.Sprintf("Directory{%s, %s}", d.Entries, d.Mode)
}

func (s *Symlink) String() string {
	return fmt.Sprintf("Symlink{%q, %s}", s.Target, s.Mode)
}

// MetadataOf returns a copy of n's metadata.
func MetadataOf(n Inode) Metadata {
	return *n.meta()
}

// FileType names the kind of an inode the way stat reports it.
type FileType string

const (
	TypeFile    FileType = "file"
	TypeDir     FileType = "dir"
	TypeSymlink FileType = "symlink"
)

// TypeOf reports the FileType of n.
func TypeOf(n Inode) FileType {
	switch n.(type) {
	case *File:
		return TypeFile
	case *Directory:
		return TypeDir
	case *Symlink:
		return TypeSymlink
	default:
		panic(fmt.Sprintf("kvfs: unknown inode type %T", n))
	}
}

// Entry is a single name -> ID link inside a Directory.
type Entry struct {
	Name string
	ID   ID
}

func (e *Entry) String() string {
	if e == nil {
		return "<nil>"
	}
	return fmt.Sprintf("%q: %s", e.Name, e.ID)
}

// Dir is the ordered entry list of a directory. Entries keep the order in
// which they were first linked.
type Dir []Entry

func (d Dir) String() string {
	var list []string
	for i := range d {
		list = append(list, "{"+d[i].String()+"}")
	}
	return "Dir{" + strings.Join(list, ",") + "}"
}

// Find returns the ID linked under name.
func (d Dir) Find(name string) (id ID, ok bool) {
	for _, e := range d {
		if e.Name == name {
			return e.ID, true
		}
	}
	return ID{}, false
}

// Link links name to id. If name was already linked the entry keeps its
// position and the previous ID is returned.
func (d *Dir) Link(name string, id ID) (old ID, replaced bool) {
	for i := range *d {
		if (*d)[i].Name == name {
			old = (*d)[i].ID
			(*d)[i].ID = id
			return old, true
		}
	}
	*d = append(*d, Entry{Name: name, ID: id})
	return ID{}, false
}

// Unlink removes name, returning the ID it pointed to.
func (d *Dir) Unlink(name string) (id ID, ok bool) {
	for i := range *d {
		if (*d)[i].Name == name {
			id = (*d)[i].ID
			*d = append((*d)[:i], (*d)[i+1:]...)
			return id, true
		}
	}
	return ID{}, false
}

// Contains reports whether any entry links to id.
func (d Dir) Contains(id ID) bool {
	for _, e := range d {
		if e.ID == id {
			return true
		}
	}
	return false
}
