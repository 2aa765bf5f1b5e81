package boltkv

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	bolt "go.etcd.io/bbolt"

	"github.com/absfs/kvfs"
	"github.com/absfs/kvfs/backend/backendtest"
)

func TestBackend(t *testing.T) {
	b, err := Open(filepath.Join(t.TempDir(), "test.db"), "")
	require.NoError(t, err)
	defer b.Close()

	backendtest.Run(t, b)
}

func TestNestedBuckets(t *testing.T) {
	tests := []struct {
		name       string
		bucketpath string
		want       []string
	}{
		{name: "global bucket", bucketpath: "", want: nil},
		{name: "named bucket", bucketpath: "foo", want: []string{"foo"}},
		{name: "nested buckets", bucketpath: "/bar/baz/bat", want: []string{"bar", "baz", "bat"}},
		{name: "unclean", bucketpath: "bar//./baz/", want: []string{"bar", "baz"}},
	}

	db, err := bolt.Open(filepath.Join(t.TempDir(), "nested.db"), 0644, nil)
	require.NoError(t, err)
	defer db.Close()

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, splitBucketPath(tt.bucketpath))

			b, err := New(db, tt.bucketpath)
			require.NoError(t, err)

			err = db.View(func(tx *bolt.Tx) error {
				var parent bucketer = tx
				for _, name := range tt.want {
					bucket := parent.Bucket([]byte(name))
					require.NotNil(t, bucket, "bucket %s", name)
					parent = bucket
				}
				assert.NotNil(t, parent.Bucket(inodeBucket))
				return nil
			})
			require.NoError(t, err)

			id := kvfs.NewID()
			require.NoError(t, b.Set(context.Background(), id, kvfs.NewFile([]byte(tt.name))))
			n, err := b.Len()
			require.NoError(t, err)
			assert.Equal(t, 1, n)
		})
	}
}

func TestPersistsAcrossOpen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "persist.db")

	b, err := Open(path, "/fs")
	require.NoError(t, err)
	s, err := kvfs.Open(ctx, b)
	require.NoError(t, err)
	fs := kvfs.NewFS(s)
	require.NoError(t, fs.Mkdir("/docs"))
	require.NoError(t, fs.WriteFile("/docs/readme", []byte("hi")))
	require.NoError(t, s.Close(ctx))
	require.NoError(t, b.Close())

	b, err = Open(path, "/fs")
	require.NoError(t, err)
	defer b.Close()
	s, err = kvfs.Open(ctx, b)
	require.NoError(t, err)

	data, err := kvfs.NewFS(s).ReadFile("/docs/readme")
	require.NoError(t, err)
	assert.Equal(t, []byte("hi"), data)
}
