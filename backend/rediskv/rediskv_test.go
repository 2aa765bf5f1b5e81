package rediskv

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/absfs/kvfs"
	"github.com/absfs/kvfs/backend/backendtest"
)

func newTestBackend(t *testing.T, key string) (*Backend, *miniredis.Miniredis) {
	t.Helper()
	s, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(s.Close)

	b, err := Dial(context.Background(), s.Addr(), "", key)
	require.NoError(t, err)
	t.Cleanup(func() { b.Close() })
	return b, s
}

func TestBackend(t *testing.T) {
	b, _ := newTestBackend(t, "")
	backendtest.Run(t, b)
}

func TestHashLayout(t *testing.T) {
	ctx := context.Background()
	b, s := newTestBackend(t, "fs:test")

	st, err := kvfs.Open(ctx, b)
	require.NoError(t, err)
	require.NoError(t, kvfs.NewAsyncFS(st).WriteFile(ctx, "/a", []byte("x")))

	fields, err := s.HKeys("fs:test")
	require.NoError(t, err)
	assert.Len(t, fields, 2)
	assert.Contains(t, fields, kvfs.RootID.String())
	assert.False(t, s.Exists(DefaultKey))
}

func TestServerGone(t *testing.T) {
	ctx := context.Background()
	b, s := newTestBackend(t, "")

	st, err := kvfs.Open(ctx, b)
	require.NoError(t, err)
	s.Close()

	err = kvfs.NewAsyncFS(st).WriteFile(ctx, "/a", []byte("x"))
	require.Error(t, err)
	assert.True(t, kvfs.NewFS(st).Exists("/a"), "the mirror keeps the write")
}

func TestDialFailure(t *testing.T) {
	s, err := miniredis.Run()
	require.NoError(t, err)
	addr := s.Addr()
	s.Close()

	_, err = Dial(context.Background(), addr, "", "")
	assert.Error(t, err)
}
