// Package badgerkv stores kvfs inodes in a Badger database.
package badgerkv

import (
	"bytes"
	"context"

	badgerdb "github.com/dgraph-io/badger/v4"
	"github.com/pkg/errors"

	"github.com/absfs/kvfs"
)

// Key layout: "<prefix>inode:<16 byte id>".
const keyInode = "inode:"

// Backend is a kvfs.Backend over a Badger database. Several filesystems can
// share one database under different prefixes.
type Backend struct {
	db     *badgerdb.DB
	prefix []byte
	owned  bool
}

// New returns a Backend storing its keys under prefix in db. The caller
// keeps ownership of db.
func New(db *badgerdb.DB, prefix string) *Backend {
	return &Backend{db: db, prefix: []byte(prefix + keyInode)}
}

// Open opens or creates a Badger database in dir. An empty dir opens an
// in-memory database. Close closes it.
func Open(dir string) (*Backend, error) {
	opts := badgerdb.DefaultOptions(dir).WithLogger(nil)
	if dir == "" {
		opts = opts.WithInMemory(true)
	}
	db, err := badgerdb.Open(opts)
	if err != nil {
		return nil, errors.Wrap(err, "badgerkv: opening database")
	}
	b := New(db, "")
	b.owned = true
	return b, nil
}

// Close closes the database if it was opened by Open.
func (b *Backend) Close() error {
	if !b.owned {
		return nil
	}
	return b.db.Close()
}

func (b *Backend) key(id kvfs.ID) []byte {
	key := make([]byte, 0, len(b.prefix)+len(id))
	key = append(key, b.prefix...)
	return append(key, id[:]...)
}

func (b *Backend) Get(ctx context.Context, id kvfs.ID) (kvfs.Inode, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var node kvfs.Inode
	err := b.db.View(func(txn *badgerdb.Txn) error {
		item, err := txn.Get(b.key(id))
		if err == badgerdb.ErrKeyNotFound {
			return kvfs.ErrNoRecord
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			node, err = kvfs.DecodeInode(val)
			return err
		})
	})
	return node, err
}

func (b *Backend) Set(ctx context.Context, id kvfs.ID, node kvfs.Inode) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := kvfs.EncodeInode(node)
	if err != nil {
		return err
	}
	return b.db.Update(func(txn *badgerdb.Txn) error {
		return txn.Set(b.key(id), data)
	})
}

func (b *Backend) Delete(ctx context.Context, id kvfs.ID) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return b.db.Update(func(txn *badgerdb.Txn) error {
		err := txn.Delete(b.key(id))
		if err != nil && err != badgerdb.ErrKeyNotFound {
			return err
		}
		return nil
	})
}

func (b *Backend) List(ctx context.Context, fn func(kvfs.ID, kvfs.Inode) error) error {
	return b.db.View(func(txn *badgerdb.Txn) error {
		opts := badgerdb.DefaultIteratorOptions
		opts.Prefix = b.prefix

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(b.prefix); it.ValidForPrefix(b.prefix); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			item := it.Item()
			raw := bytes.TrimPrefix(item.Key(), b.prefix)
			if len(raw) != len(kvfs.ID{}) {
				return errors.Errorf("badgerkv: malformed key %x", item.Key())
			}
			var id kvfs.ID
			copy(id[:], raw)

			var node kvfs.Inode
			err := item.Value(func(val []byte) error {
				var err error
				node, err = kvfs.DecodeInode(val)
				return err
			})
			if err != nil {
				return errors.Wrapf(err, "badgerkv: record %s", id)
			}
			if err := fn(id, node); err != nil {
				return err
			}
		}
		return nil
	})
}
