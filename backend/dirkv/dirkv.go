// Package dirkv stores kvfs inodes as files in a host directory.
package dirkv

import (
	"context"
	"encoding/hex"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/absfs/kvfs"
)

const tmpSuffix = ".tmp"

// Backend is a kvfs.Backend keeping one file per inode. Files are spread
// over subdirectories named by the first two hex digits of the ID.
type Backend struct {
	basePath string

	// Readers bounds the number of files List reads concurrently.
	Readers int
}

// New returns a Backend rooted at basePath, creating it if needed.
func New(basePath string) (*Backend, error) {
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, errors.Wrap(err, "dirkv: creating store directory")
	}
	return &Backend{basePath: basePath, Readers: 8}, nil
}

// getPath returns basePath/XX/XXXXXXXX... for id.
func (b *Backend) getPath(id kvfs.ID) string {
	name := hex.EncodeToString(id[:])
	return filepath.Join(b.basePath, name[:2], name)
}

func (b *Backend) Get(ctx context.Context, id kvfs.ID) (kvfs.Inode, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(b.getPath(id))
	if os.IsNotExist(err) {
		return nil, kvfs.ErrNoRecord
	}
	if err != nil {
		return nil, errors.Wrapf(err, "dirkv: reading %s", id)
	}
	return kvfs.DecodeInode(data)
}

// Set writes the record to a temporary file and renames it into place.
func (b *Backend) Set(ctx context.Context, id kvfs.ID, node kvfs.Inode) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := kvfs.EncodeInode(node)
	if err != nil {
		return err
	}

	path := b.getPath(id)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return errors.Wrap(err, "dirkv: creating shard directory")
	}

	tmpPath := path + tmpSuffix
	f, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return errors.Wrap(err, "dirkv: creating temp file")
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return errors.Wrap(err, "dirkv: writing record")
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return errors.Wrap(err, "dirkv: syncing record")
	}
	if err := f.Close(); err != nil {
		os.Remove(tmpPath)
		return errors.Wrap(err, "dirkv: closing temp file")
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return errors.Wrap(err, "dirkv: renaming temp file")
	}
	return nil
}

func (b *Backend) Delete(ctx context.Context, id kvfs.ID) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	path := b.getPath(id)
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return errors.Wrapf(err, "dirkv: deleting %s", id)
	}
	// Fails unless the shard is empty.
	os.Remove(filepath.Dir(path))
	return nil
}

type listed struct {
	id   kvfs.ID
	node kvfs.Inode
}

// List reads records concurrently and then calls fn for each, one at a
// time.
func (b *Backend) List(ctx context.Context, fn func(kvfs.ID, kvfs.Inode) error) error {
	shards, err := os.ReadDir(b.basePath)
	if err != nil {
		return errors.Wrap(err, "dirkv: reading store directory")
	}

	var (
		mu      sync.Mutex
		records []listed
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.readers())

	for _, shard := range shards {
		if !shard.IsDir() || len(shard.Name()) != 2 {
			continue
		}
		files, err := os.ReadDir(filepath.Join(b.basePath, shard.Name()))
		if err != nil {
			return errors.Wrapf(err, "dirkv: reading shard %s", shard.Name())
		}
		for _, file := range files {
			name := file.Name()
			if strings.HasSuffix(name, tmpSuffix) {
				continue
			}
			raw, err := hex.DecodeString(name)
			if err != nil || len(raw) != len(kvfs.ID{}) {
				continue
			}
			var id kvfs.ID
			copy(id[:], raw)

			g.Go(func() error {
				node, err := b.Get(gctx, id)
				if errors.Is(err, kvfs.ErrNoRecord) {
					return nil
				}
				if err != nil {
					return err
				}
				mu.Lock()
				records = append(records, listed{id: id, node: node})
				mu.Unlock()
				return nil
			})
		}
	}
	if err := g.Wait(); err != nil {
		return err
	}

	for _, r := range records {
		if err := fn(r.id, r.node); err != nil {
			return err
		}
	}
	return nil
}

func (b *Backend) readers() int {
	if b.Readers <= 0 {
		return 1
	}
	return b.Readers
}
