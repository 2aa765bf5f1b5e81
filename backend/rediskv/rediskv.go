// Package rediskv stores kvfs inodes as fields of a single Redis hash.
package rediskv

import (
	"context"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"github.com/absfs/kvfs"
)

// DefaultKey is the hash used when no key is given.
const DefaultKey = "kvfs:inodes"

// Backend is a kvfs.Backend keeping every inode in one Redis hash. Fields
// are the textual IDs and values the encoded records.
type Backend struct {
	rdb redis.UniversalClient
	key string
}

// New returns a Backend over rdb using the hash at key.
func New(rdb redis.UniversalClient, key string) *Backend {
	if key == "" {
		key = DefaultKey
	}
	return &Backend{rdb: rdb, key: key}
}

// Dial connects to the Redis server at addr and checks it with PING.
func Dial(ctx context.Context, addr, password, key string) (*Backend, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, errors.Wrapf(err, "rediskv: connecting to %s", addr)
	}
	return New(rdb, key), nil
}

// Close closes the Redis client.
func (b *Backend) Close() error {
	return b.rdb.Close()
}

func (b *Backend) Get(ctx context.Context, id kvfs.ID) (kvfs.Inode, error) {
	data, err := b.rdb.HGet(ctx, b.key, id.String()).Bytes()
	if err == redis.Nil {
		return nil, kvfs.ErrNoRecord
	}
	if err != nil {
		return nil, errors.Wrapf(err, "rediskv: get %s", id)
	}
	return kvfs.DecodeInode(data)
}

func (b *Backend) Set(ctx context.Context, id kvfs.ID, node kvfs.Inode) error {
	data, err := kvfs.EncodeInode(node)
	if err != nil {
		return err
	}
	if err := b.rdb.HSet(ctx, b.key, id.String(), data).Err(); err != nil {
		return errors.Wrapf(err, "rediskv: set %s", id)
	}
	return nil
}

func (b *Backend) Delete(ctx context.Context, id kvfs.ID) error {
	if err := b.rdb.HDel(ctx, b.key, id.String()).Err(); err != nil {
		return errors.Wrapf(err, "rediskv: delete %s", id)
	}
	return nil
}

func (b *Backend) List(ctx context.Context, fn func(kvfs.ID, kvfs.Inode) error) error {
	records, err := b.rdb.HGetAll(ctx, b.key).Result()
	if err != nil {
		return errors.Wrap(err, "rediskv: list")
	}
	for field, value := range records {
		id, err := kvfs.ParseID(field)
		if err != nil {
			return errors.Wrapf(err, "rediskv: malformed field %q", field)
		}
		node, err := kvfs.DecodeInode([]byte(value))
		if err != nil {
			return errors.Wrapf(err, "rediskv: record %s", id)
		}
		if err := fn(id, node); err != nil {
			return err
		}
	}
	return nil
}
