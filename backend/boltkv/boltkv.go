// Package boltkv stores kvfs inodes in a bbolt database.
package boltkv

import (
	"context"
	"os"
	filepath "path"
	"strings"

	"github.com/pkg/errors"
	bolt "go.etcd.io/bbolt"

	"github.com/absfs/kvfs"
)

// inodeBucket holds one record per inode, keyed by the raw 16 byte ID.
var inodeBucket = []byte("inodes")

type bucketer interface {
	Bucket([]byte) *bolt.Bucket
	CreateBucketIfNotExists([]byte) (*bolt.Bucket, error)
}

// Backend is a kvfs.Backend over a bbolt database. The inodes bucket lives
// below an optional, possibly nested, bucket path such as "/tenants/alice".
type Backend struct {
	db         *bolt.DB
	bucketpath string
	owned      bool
}

// New returns a Backend using db. The caller keeps ownership of db.
func New(db *bolt.DB, bucketpath string) (*Backend, error) {
	err := db.Update(func(tx *bolt.Tx) error {
		return bucketInit(tx, bucketpath)
	})
	if err != nil {
		return nil, errors.Wrap(err, "boltkv: creating buckets")
	}
	return &Backend{db: db, bucketpath: bucketpath}, nil
}

// Open opens or creates the bbolt file at path. Close closes it.
func Open(path, bucketpath string) (*Backend, error) {
	db, err := bolt.Open(path, 0644, nil)
	if err != nil {
		return nil, errors.Wrapf(err, "boltkv: opening %s", path)
	}
	b, err := New(db, bucketpath)
	if err != nil {
		db.Close()
		return nil, err
	}
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

func (b *Backend) Get(ctx context.Context, id kvfs.ID) (kvfs.Inode, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var data []byte
	err := b.db.View(func(tx *bolt.Tx) error {
		bucket, err := b.inodes(tx)
		if err != nil {
			return err
		}
		v := bucket.Get(id[:])
		if v == nil {
			return kvfs.ErrNoRecord
		}
		// v is only valid for the life of the transaction.
		data = make([]byte, len(v))
		copy(data, v)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return kvfs.DecodeInode(data)
}

func (b *Backend) Set(ctx context.Context, id kvfs.ID, node kvfs.Inode) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := kvfs.EncodeInode(node)
	if err != nil {
		return err
	}
	return b.db.Update(func(tx *bolt.Tx) error {
		bucket, err := b.inodes(tx)
		if err != nil {
			return err
		}
		return bucket.Put(id[:], data)
	})
}

func (b *Backend) Delete(ctx context.Context, id kvfs.ID) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return b.db.Update(func(tx *bolt.Tx) error {
		bucket, err := b.inodes(tx)
		if err != nil {
			return err
		}
		return bucket.Delete(id[:])
	})
}

func (b *Backend) List(ctx context.Context, fn func(kvfs.ID, kvfs.Inode) error) error {
	return b.db.View(func(tx *bolt.Tx) error {
		bucket, err := b.inodes(tx)
		if err != nil {
			return err
		}
		return bucket.ForEach(func(k, v []byte) error {
			if err := ctx.Err(); err != nil {
				return err
			}
			if len(k) != len(kvfs.ID{}) {
				return errors.Errorf("boltkv: malformed key %x", k)
			}
			var id kvfs.ID
			copy(id[:], k)
			node, err := kvfs.DecodeInode(v)
			if err != nil {
				return errors.Wrapf(err, "boltkv: record %s", id)
			}
			return fn(id, node)
		})
	})
}

// Len returns the number of stored records.
func (b *Backend) Len() (int, error) {
	var n int
	err := b.db.View(func(tx *bolt.Tx) error {
		bucket, err := b.inodes(tx)
		if err != nil {
			return err
		}
		n = bucket.Stats().KeyN
		return nil
	})
	return n, err
}

func (b *Backend) inodes(tx *bolt.Tx) (*bolt.Bucket, error) {
	parent, err := openBucket(tx, b.bucketpath)
	if err != nil {
		return nil, err
	}
	bucket := parent.Bucket(inodeBucket)
	if bucket == nil {
		return nil, errors.Errorf("boltkv: bucket %q not found", inodeBucket)
	}
	return bucket, nil
}

func splitBucketPath(bucketpath string) []string {
	var names []string
	for _, name := range strings.Split(strings.Trim(filepath.Clean(bucketpath), "/"), "/") {
		if name == "" || name == "." {
			continue
		}
		names = append(names, name)
	}
	return names
}

func openBucket(tx *bolt.Tx, bucketpath string) (bucketer, error) {
	var b bucketer = tx
	for _, name := range splitBucketPath(bucketpath) {
		bucket := b.Bucket([]byte(name))
		if bucket == nil {
			return nil, os.ErrNotExist
		}
		b = bucket
	}
	return b, nil
}

func bucketInit(tx *bolt.Tx, bucketpath string) error {
	var b bucketer = tx
	for _, name := range splitBucketPath(bucketpath) {
		bucket, err := b.CreateBucketIfNotExists([]byte(name))
		if err != nil {
			return err
		}
		b = bucket
	}
	_, err := b.CreateBucketIfNotExists(inodeBucket)
	return err
}
