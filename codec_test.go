package kvfs

import (
	"bytes"
	"reflect"
	"testing"

	"github.com/fxamacker/cbor/v2"
)

func TestCodec_Inodes(t *testing.T) {
	dir := NewDirectory()
	dir.Entries.Link("z", NewID())
	dir.Entries.Link("a", NewID())
	dir.Mode = 0o750

	file := NewFile([]byte("hello"))
	file.Mode = 0o600

	tests := []struct {
		name string
		node Inode
	}{
		{"file", file},
		{"empty file", NewFile(nil)},
		{"directory", dir},
		{"empty directory", NewDirectory()},
		{"symlink", NewSymlink("../target")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := EncodeInode(tt.node)
			if err != nil {
				t.Fatal(err)
			}
			got, err := DecodeInode(data)
			if err != nil {
				t.Fatal(err)
			}
			if !reflect.DeepEqual(got, tt.node) {
				t.Errorf("decoded %v, want %v", got, tt.node)
			}
		})
	}
}

func TestCodec_Deterministic(t *testing.T) {
	dir := NewDirectory()
	for _, name := range []string{"c", "b", "a"} {
		dir.Entries.Link(name, NewID())
	}

	first, _ := EncodeInode(dir)
	for i := 0; i < 10; i++ {
		again, _ := EncodeInode(dir.Clone())
		if !bytes.Equal(first, again) {
			t.Fatal("encoding is not stable")
		}
	}
}

func TestCodec_Rejects(t *testing.T) {
	badKind, _ := cbor.Marshal(record{Kind: 9})
	badID, _ := cbor.Marshal(record{
		Kind:    kindDirectory,
		Entries: []entryRecord{{Name: "short", ID: []byte{1, 2, 3}}},
	})

	tests := []struct {
		name string
		data []byte
	}{
		{"garbage", []byte("not cbor")},
		{"empty", nil},
		{"unknown kind", badKind},
		{"short id", badID},
	}
	for _, tt := range tests {
		if _, err := DecodeInode(tt.data); err == nil {
			t.Errorf("%s: expected an error", tt.name)
		}
	}
}
