package kvfs

import (
	"context"
	"sync"
)

// Backend is the durable key-value store behind a Storage. Keys are inode
// IDs and values are inodes; implementations usually store the bytes
// produced by EncodeInode. Get returns ErrNoRecord when id is absent.
type Backend interface {
	Get(ctx context.Context, id ID) (Inode, error)
	Set(ctx context.Context, id ID, node Inode) error
	Delete(ctx context.Context, id ID) error

	// List calls fn for every stored inode, stopping at the first error.
	List(ctx context.Context, fn func(id ID, node Inode) error) error
}

// MemoryBackend is a Backend held in process memory. Records are kept in
// encoded form so values never alias the caller's inodes.
type MemoryBackend struct {
	mu      sync.RWMutex
	records map[ID][]byte
}

// NewMemoryBackend returns an empty MemoryBackend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{records: make(map[ID][]byte)}
}

func (b *MemoryBackend) Get(ctx context.Context, id ID) (Inode, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b.mu.RLock()
	data, ok := b.records[id]
	b.mu.RUnlock()
	if !ok {
		return nil, ErrNoRecord
	}
	return DecodeInode(data)
}

func (b *MemoryBackend) Set(ctx context.Context, id ID, node Inode) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := EncodeInode(node)
	if err != nil {
		return err
	}
	b.mu.Lock()
	b.records[id] = data
	b.mu.Unlock()
	return nil
}

func (b *MemoryBackend) Delete(ctx context.Context, id ID) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.mu.Lock()
	delete(b.records, id)
	b.mu.Unlock()
	return nil
}

func (b *MemoryBackend) List(ctx context.Context, fn func(ID, Inode) error) error {
	b.mu.RLock()
	snapshot := make(map[ID][]byte, len(b.records))
	for id, data := range b.records {
		snapshot[id] = data
	}
	b.mu.RUnlock()

	for id, data := range snapshot {
		if err := ctx.Err(); err != nil {
			return err
		}
		node, err := DecodeInode(data)
		if err != nil {
			return err
		}
		if err := fn(id, node); err != nil {
			return err
		}
	}
	return nil
}

// Len returns the number of stored records.
func (b *MemoryBackend) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.records)
}
