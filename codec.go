package kvfs

import (
	"os"

	"github.com/fxamacker/cbor/v2"
	"github.com/pkg/errors"
)

type recordKind uint8

const (
	kindFile recordKind = iota + 1
	kindDirectory
	kindSymlink
)

// record is the stored form of an Inode.
type record struct {
	Kind    recordKind    `cbor:"1,keyasint"`
	Data    []byte        `cbor:"2,keyasint,omitempty"`
	Entries []entryRecord `cbor:"3,keyasint,omitempty"`
	Target  string        `cbor:"4,keyasint,omitempty"`
	Mode    uint32        `cbor:"5,keyasint"`
	Size    int64         `cbor:"6,keyasint"`
}

type entryRecord struct {
	Name string `cbor:"1,keyasint"`
	ID   []byte `cbor:"2,keyasint"`
}

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("kvfs: CBOR encoder initialization failed: " + err.Error())
	}
	decMode, err = cbor.DecOptions{}.DecMode()
	if err != nil {
		panic("kvfs: CBOR decoder initialization failed: " + err.Error())
	}
}

// EncodeInode serializes n as a tagged CBOR record.
func EncodeInode(n Inode) ([]byte, error) {
	m := MetadataOf(n)
	r := record{Mode: uint32(m.Mode), Size: m.Size}

	switch n := n.(type) {
	case *File:
		r.Kind = kindFile
		r.Data = n.Data
	case *Directory:
		r.Kind = kindDirectory
		r.Entries = make([]entryRecord, len(n.Entries))
		for i, e := range n.Entries {
			id := e.ID
			r.Entries[i] = entryRecord{Name: e.Name, ID: id[:]}
		}
	case *Symlink:
		r.Kind = kindSymlink
		r.Target = n.Target
	default:
		panic(errors.Errorf("kvfs: unknown inode type %T", n))
	}

	return encMode.Marshal(r)
}

// DecodeInode parses a record produced by EncodeInode.
func DecodeInode(data []byte) (Inode, error) {
	var r record
	if err := decMode.Unmarshal(data, &r); err != nil {
		return nil, errors.Wrap(err, "kvfs: decoding inode record")
	}
	meta := Metadata{Mode: os.FileMode(r.Mode), Size: r.Size}

	switch r.Kind {
	case kindFile:
		if r.Data == nil {
			r.Data = []byte{}
		}
		return &File{Data: r.Data, Metadata: meta}, nil
	case kindDirectory:
		entries := make(Dir, len(r.Entries))
		for i, e := range r.Entries {
			if len(e.ID) != len(ID{}) {
				return nil, errors.Errorf("kvfs: entry %q has a %d byte id", e.Name, len(e.ID))
			}
			entries[i].Name = e.Name
			copy(entries[i].ID[:], e.ID)
		}
		return &Directory{Entries: entries, Metadata: meta}, nil
	case kindSymlink:
		return &Symlink{Target: r.Target, Metadata: meta}, nil
	default:
		return nil, errors.Errorf("kvfs: unknown record kind %d", r.Kind)
	}
}
