package kvfs

import (
	"context"
	"testing"
)

func TestStorage_Resolve(t *testing.T) {
	s := openStorage(t, NewMemoryBackend())
	ctx := context.Background()

	if err := s.Set(ctx, ParsePath("/dir"), NewDirectory()); err != nil {
		t.Fatal(err)
	}
	if err := s.Set(ctx, ParsePath("/dir/file"), NewFile([]byte("x"))); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		path string
		code Code
	}{
		{"/", CodeOK},
		{"", CodeOK},
		{"/dir", CodeOK},
		{"dir/file", CodeOK},
		{"//dir///file/", CodeOK},
		{"/missing", CodeNotFound},
		{"/dir/missing", CodeNotFound},
		{"/dir/file/below", CodeNotADirectory},
	}
	for _, tt := range tests {
		id, code := s.Resolve(ParsePath(tt.path))
		if code != tt.code {
			t.Errorf("resolve(%q) = %s, want %s", tt.path, code, tt.code)
		}
		if tt.path == "/" && !id.IsRoot() {
			t.Error("root resolved to a non-root identifier")
		}
	}
}

func TestStorage_SetCreateAndOverwrite(t *testing.T) {
	backend := NewMemoryBackend()
	s := openStorage(t, backend)
	ctx := context.Background()

	p := ParsePath("/f")
	if err := s.Set(ctx, p, NewFile([]byte("v1"))); err != nil {
		t.Fatal(err)
	}
	id, _ := s.Resolve(p)

	if err := s.Set(ctx, p, NewSymlink("/elsewhere")); err != nil {
		t.Fatal(err)
	}
	id2, _ := s.Resolve(p)
	if id != id2 {
		t.Error("overwrite changed the identifier")
	}

	stored, err := backend.Get(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if link, ok := stored.(*Symlink); !ok || link.Target != "/elsewhere" {
		t.Errorf("backend holds %v", stored)
	}

	root, _ := backend.Get(ctx, RootID)
	if got := root.(*Directory).Entries; len(got) != 1 || got[0].ID != id {
		t.Errorf("root entries %v", got)
	}
}

func TestStorage_SetMissingParentWritesNothing(t *testing.T) {
	backend := newFaultyBackend()
	s := openStorage(t, backend)
	before := len(backend.ops())

	err := s.Set(context.Background(), ParsePath("/no/such/file"), NewFile(nil))
	wantCode(t, err, CodeNotFound)
	if err := s.SetDeferred(ParsePath("/no/file"), NewFile(nil)); CodeOf(err) != CodeNotFound {
		t.Errorf("deferred set = %v", err)
	}
	flush(t, s)

	if got := backend.ops(); len(got) != before {
		t.Errorf("failed set reached the backend: %v", got[before:])
	}
	if s.Stats().Size != 1 {
		t.Errorf("mirror grew to %d inodes", s.Stats().Size)
	}
}

func TestStorage_RootMustStayDirectory(t *testing.T) {
	s := openStorage(t, NewMemoryBackend())

	err := s.Set(context.Background(), nil, NewFile([]byte("oops")))
	wantCode(t, err, CodeInvalid)
	wantCode(t, s.Delete(context.Background(), nil), CodeInvalid)

	if err := s.Set(context.Background(), nil, NewDirectory()); err != nil {
		t.Errorf("replacing root with a directory: %v", err)
	}
}

func TestStorage_OverwriteDirectoryReclaims(t *testing.T) {
	backend := NewMemoryBackend()
	s := openStorage(t, backend)
	fsys := NewAsyncFS(s)
	ctx := context.Background()

	fsys.MkdirAll(ctx, "/a/b")
	fsys.WriteFile(ctx, "/a/b/f", []byte("x"))
	if backend.Len() != 4 {
		t.Fatalf("backend holds %d records", backend.Len())
	}

	// mkdir on an existing directory replaces it with an empty one.
	if err := fsys.Mkdir(ctx, "/a"); err != nil {
		t.Fatal(err)
	}
	if fsys.Exists(ctx, "/a/b") {
		t.Error("children survived")
	}
	if backend.Len() != 2 {
		t.Errorf("backend holds %d records, want 2", backend.Len())
	}
}

func TestStorage_Modify(t *testing.T) {
	s := openStorage(t, NewMemoryBackend())
	ctx := context.Background()
	p := ParsePath("/f")
	s.Set(ctx, p, NewFile([]byte("abc")))

	err := s.Modify(ctx, "append", p, func(n Inode) error {
		f := n.(*File)
		f.Data = append(f.Data, 'd')
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	node, _ := s.Get(p)
	if string(node.(*File).Data) != "abcd" {
		t.Errorf("data %q", node.(*File).Data)
	}

	stop := errBackendDown
	if err := s.Modify(ctx, "noop", p, func(Inode) error { return stop }); err != stop {
		t.Errorf("Modify returned %v", err)
	}
}

func TestStorage_GetReturnsCopy(t *testing.T) {
	s := openStorage(t, NewMemoryBackend())
	p := ParsePath("/d")
	s.SetDeferred(p, NewDirectory())
	s.SetDeferred(ParsePath("/d/x"), NewFile(nil))

	node, ok := s.Get(p)
	if !ok {
		t.Fatal("missing /d")
	}
	node.(*Directory).Entries = nil

	if _, code := s.Resolve(ParsePath("/d/x")); code != CodeOK {
		t.Error("mutating a returned inode changed the mirror")
	}
}

func TestStorage_SyncCreatesRoot(t *testing.T) {
	backend := NewMemoryBackend()
	s := NewStorage(backend)
	if backend.Len() != 0 {
		t.Fatal("NewStorage touched the backend")
	}
	if err := s.Sync(context.Background()); err != nil {
		t.Fatal(err)
	}
	root, err := backend.Get(context.Background(), RootID)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := root.(*Directory); !ok {
		t.Errorf("root record is %T", root)
	}
}

func TestStorage_SyncIdempotent(t *testing.T) {
	backend := NewMemoryBackend()
	s := openStorage(t, backend)
	fsys := NewFS(s)
	ctx := context.Background()

	fsys.MkdirAll("/a/b")
	fsys.WriteFile("/a/f", []byte("x"))
	fsys.Symlink("/a/f", "/l")

	snapshot := func() []string {
		var out []string
		snap := s.Snapshot()
		defer snap.Release()
		snap.Walk("/", func(name string, info *FileInfo, err error) error {
			if err != nil {
				return err
			}
			out = append(out, name+" "+string(info.Type())+" "+info.ID().String())
			return nil
		})
		return out
	}

	before := snapshot()
	for i := 0; i < 2; i++ {
		if err := s.Sync(ctx); err != nil {
			t.Fatal(err)
		}
		if after := snapshot(); !equalStrings(before, after) {
			t.Errorf("sync %d changed the tree:\n%v\n%v", i, before, after)
		}
	}
	if len(before) != 5 {
		t.Errorf("walked %d inodes", len(before))
	}
}

func TestStorage_SyncRejectsBadRoot(t *testing.T) {
	backend := NewMemoryBackend()
	backend.Set(context.Background(), RootID, NewFile([]byte("not a dir")))

	if _, err := Open(context.Background(), backend); err == nil {
		t.Error("expected an error for a file root")
	}
}

func TestStorage_UncoordinatedInstances(t *testing.T) {
	backend := NewMemoryBackend()
	ctx := context.Background()
	one := NewAsyncFS(openStorage(t, backend))
	two := NewAsyncFS(openStorage(t, backend))

	one.WriteFile(ctx, "/shared", []byte("one"))
	if two.Exists(ctx, "/shared") {
		t.Error("second mirror saw a write it never synced")
	}
	two.Storage().Sync(ctx)
	if !two.Exists(ctx, "/shared") {
		t.Error("sync did not pick up the write")
	}
}

func TestStorage_Allocator(t *testing.T) {
	var next byte
	alloc := func() ID {
		next++
		return ID{15: next}
	}
	s := openStorage(t, NewMemoryBackend(), WithAllocator(alloc))
	s.SetDeferred(ParsePath("/a"), NewDirectory())
	s.SetDeferred(ParsePath("/a/b"), NewFile(nil))

	if id, _ := s.Resolve(ParsePath("/a/b")); id != (ID{15: 2}) {
		t.Errorf("unexpected id %s", id)
	}
}
