// Package backendtest is a conformance suite for kvfs.Backend
// implementations.
package backendtest

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/absfs/kvfs"
)

// Run exercises b. It must start empty.
func Run(t *testing.T, b kvfs.Backend) {
	t.Helper()
	ctx := context.Background()

	t.Run("missing", func(t *testing.T) {
		_, err := b.Get(ctx, kvfs.NewID())
		require.True(t, errors.Is(err, kvfs.ErrNoRecord), "got %v", err)
	})

	t.Run("round trip", func(t *testing.T) {
		child := kvfs.NewID()
		nodes := map[kvfs.ID]kvfs.Inode{
			kvfs.NewID(): kvfs.NewFile([]byte("hello")),
			kvfs.NewID(): kvfs.NewFile(nil),
			kvfs.NewID(): &kvfs.Directory{
				Entries:  kvfs.Dir{{Name: "a", ID: child}, {Name: "b", ID: kvfs.NewID()}},
				Metadata: kvfs.Metadata{Mode: 0o755},
			},
			kvfs.NewID(): kvfs.NewSymlink("../target"),
		}
		for id, node := range nodes {
			require.NoError(t, b.Set(ctx, id, node))
		}
		for id, want := range nodes {
			got, err := b.Get(ctx, id)
			require.NoError(t, err)
			assert.Equal(t, want, got)
		}
		for id := range nodes {
			require.NoError(t, b.Delete(ctx, id))
		}
	})

	t.Run("overwrite", func(t *testing.T) {
		id := kvfs.NewID()
		require.NoError(t, b.Set(ctx, id, kvfs.NewFile([]byte("one"))))
		require.NoError(t, b.Set(ctx, id, kvfs.NewDirectory()))

		got, err := b.Get(ctx, id)
		require.NoError(t, err)
		assert.IsType(t, &kvfs.Directory{}, got)
		require.NoError(t, b.Delete(ctx, id))
	})

	t.Run("delete", func(t *testing.T) {
		id := kvfs.NewID()
		require.NoError(t, b.Set(ctx, id, kvfs.NewFile([]byte("x"))))
		require.NoError(t, b.Delete(ctx, id))

		_, err := b.Get(ctx, id)
		assert.True(t, errors.Is(err, kvfs.ErrNoRecord), "got %v", err)
		assert.NoError(t, b.Delete(ctx, id), "deleting a missing record")
	})

	t.Run("list", func(t *testing.T) {
		want := make(map[kvfs.ID]kvfs.Inode)
		for i := 0; i < 20; i++ {
			want[kvfs.NewID()] = kvfs.NewFile([]byte{byte(i)})
		}
		for id, node := range want {
			require.NoError(t, b.Set(ctx, id, node))
		}

		got := make(map[kvfs.ID]kvfs.Inode)
		err := b.List(ctx, func(id kvfs.ID, node kvfs.Inode) error {
			got[id] = node
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, want, got)

		stop := errors.New("stop")
		calls := 0
		err = b.List(ctx, func(kvfs.ID, kvfs.Inode) error {
			calls++
			return stop
		})
		assert.True(t, errors.Is(err, stop), "got %v", err)
		assert.Equal(t, 1, calls)

		for id := range want {
			require.NoError(t, b.Delete(ctx, id))
		}
	})

	t.Run("storage", func(t *testing.T) {
		s, err := kvfs.Open(ctx, b)
		require.NoError(t, err)
		fs := kvfs.NewAsyncFS(s)

		require.NoError(t, fs.MkdirAll(ctx, "/a/b"))
		require.NoError(t, fs.WriteFile(ctx, "/a/b/file", []byte("contents")))
		require.NoError(t, fs.Symlink(ctx, "b/file", "/a/link"))
		require.NoError(t, fs.Rename(ctx, "/a/b", "/a/c"))
		require.NoError(t, s.Close(ctx))

		reopened, err := kvfs.Open(ctx, b)
		require.NoError(t, err)
		fs = kvfs.NewAsyncFS(reopened)

		data, err := fs.ReadFile(ctx, "/a/c/file")
		require.NoError(t, err)
		assert.Equal(t, []byte("contents"), data)

		names, err := fs.ReadDir(ctx, "/a")
		require.NoError(t, err)
		assert.Equal(t, []string{"/a/link", "/a/c"}, names)

		_, err = fs.ReadFile(ctx, "/a/link")
		assert.Equal(t, kvfs.CodeNotFound, kvfs.CodeOf(err), "link target moved away")

		require.NoError(t, fs.Rmdir(ctx, "/a"))
		require.NoError(t, reopened.Close(ctx))

		n := 0
		require.NoError(t, b.List(ctx, func(kvfs.ID, kvfs.Inode) error {
			n++
			return nil
		}))
		assert.Equal(t, 1, n, "only the root should remain")
	})
}
