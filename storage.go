package kvfs

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// maxSymlinkDepth limits the number of symlinks followed by one operation.
const maxSymlinkDepth = 40

// Storage maps paths to inodes. Reads are answered from an in-memory mirror
// of the backend; writes update the mirror immediately and reach the
// backend through a per-identifier write queue.
//
// Every mutator comes in two forms. The awaited form (Set, Delete, Rename,
// Modify) returns once the backend has acknowledged every write it caused.
// The deferred form (SetDeferred, DeleteDeferred, ModifyDeferred) returns as
// soon as the mirror is updated; backend failures are then logged, counted
// and handed to the error handler but never returned.
//
// Several Storage values over one backend do not coordinate: the backend
// keeps whichever write lands last and each mirror goes stale.
type Storage struct {
	mu      sync.RWMutex
	mirror  *mirror
	backend Backend
	queue   *writeQueue

	newID        func() ID
	log          logrus.FieldLogger
	metrics      *Metrics
	onError      func(error)
	symlinkDepth int
}

// Option configures a Storage.
type Option func(*Storage)

// WithLogger sets the logger used for deferred write failures and sync.
func WithLogger(log logrus.FieldLogger) Option {
	return func(s *Storage) { s.log = log }
}

// WithMetrics records storage activity in m.
func WithMetrics(m *Metrics) Option {
	return func(s *Storage) { s.metrics = m }
}

// WithErrorHandler registers fn to receive every deferred write failure.
// fn runs on a queue goroutine and must not block for long.
func WithErrorHandler(fn func(error)) Option {
	return func(s *Storage) { s.onError = fn }
}

// WithSymlinkDepth changes how many symlinks one operation may follow.
func WithSymlinkDepth(depth int) Option {
	return func(s *Storage) { s.symlinkDepth = depth }
}

// WithAllocator replaces the identifier allocator. It must never return
// RootID or an ID already in use.
func WithAllocator(fn func() ID) Option {
	return func(s *Storage) { s.newID = fn }
}

// NewStorage returns a Storage over backend. Its mirror holds only an empty
// root until Sync is called.
func NewStorage(backend Backend, opts ...Option) *Storage {
	s := &Storage{
		mirror:       newMirror(),
		backend:      backend,
		newID:        NewID,
		log:          logrus.StandardLogger(),
		symlinkDepth: maxSymlinkDepth,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.mirror.Put(RootID, NewDirectory())
	s.queue = newWriteQueue(backend, s.writeDone)
	s.queue.onPending = s.metrics.setPending
	return s
}

// Open creates a Storage over backend and loads it with Sync.
func Open(ctx context.Context, backend Backend, opts ...Option) (*Storage, error) {
	s := NewStorage(backend, opts...)
	if err := s.Sync(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// Backend returns the backend the storage persists to.
func (s *Storage) Backend() Backend {
	return s.backend
}

// Sync waits for queued writes, makes sure the backend holds a root
// directory and then replaces the mirror with the backend's contents.
// Calling it repeatedly is harmless.
func (s *Storage) Sync(ctx context.Context) error {
	start := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.queue.Flush(ctx); err != nil {
		return err
	}

	_, err := s.backend.Get(ctx, RootID)
	if errors.Is(err, ErrNoRecord) {
		s.log.Debug("kvfs: creating root directory")
		err = s.backend.Set(ctx, RootID, NewDirectory())
		s.metrics.observeWrite(writeSet.String(), err)
	}
	if err != nil {
		return errors.Wrap(err, "kvfs: initializing root")
	}

	nodes := make(map[ID]Inode)
	err = s.backend.List(ctx, func(id ID, node Inode) error {
		nodes[id] = node
		return nil
	})
	if err != nil {
		return errors.Wrap(err, "kvfs: loading backend")
	}
	if _, ok := nodes[RootID].(*Directory); !ok {
		return errors.New("kvfs: root record is not a directory")
	}

	s.mirror.Replace(nodes)
	s.metrics.setInodes(len(nodes))
	s.metrics.observeSync(time.Since(start))
	s.log.WithFields(logrus.Fields{
		"inodes":   len(nodes),
		"duration": time.Since(start),
	}).Debug("kvfs: mirror synced")
	return nil
}

// Flush blocks until every queued backend write has been attempted.
func (s *Storage) Flush(ctx context.Context) error {
	return s.queue.Flush(ctx)
}

// Close flushes pending writes. The backend is owned by the caller and is
// not closed.
func (s *Storage) Close(ctx context.Context) error {
	return s.Flush(ctx)
}

// Pending returns the number of backend writes not yet completed.
func (s *Storage) Pending() int {
	return s.queue.Len()
}

// Stats describes the mirror.
func (s *Storage) Stats() MirrorStats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.mirror.Stats()
}

// Resolve walks p through the mirror. Failure is reported as a Code rather
// than an error so callers can frame it for their own operation.
func (s *Storage) Resolve(p Path) (ID, Code) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.mirror.Resolve(p)
}

// Get returns a copy of the inode at p.
func (s *Storage) Get(p Path) (Inode, bool) {
	_, node, code := s.lookup(p)
	return node, code == CodeOK
}

func (s *Storage) lookup(p Path) (ID, Inode, Code) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, node, code := s.mirror.Lookup(p)
	if code != CodeOK {
		return ID{}, nil, code
	}
	return id, node.Clone(), CodeOK
}

func (s *Storage) maxSymlinks() int {
	return s.symlinkDepth
}

// Set stores node at p and waits for the backend. An existing inode keeps
// its identifier and its parent is left alone; otherwise a new identifier
// is linked into the parent directory, which must exist.
func (s *Storage) Set(ctx context.Context, p Path, node Inode) error {
	ws, err := s.commit(false, func() ([]*write, error) {
		return s.stageSet("set", p, node)
	})
	if err != nil {
		return err
	}
	return awaitAll(ctx, ws)
}

// SetDeferred is Set without waiting for the backend.
func (s *Storage) SetDeferred(p Path, node Inode) error {
	_, err := s.commit(true, func() ([]*write, error) {
		return s.stageSet("set", p, node)
	})
	return err
}

// Delete removes the inode at p, everything beneath it and its entry in
// the parent directory, then waits for the backend. A missing path fails
// with CodeNotFound.
func (s *Storage) Delete(ctx context.Context, p Path) error {
	ws, err := s.commit(false, func() ([]*write, error) {
		return s.stageDelete("delete", p)
	})
	if err != nil {
		return err
	}
	return awaitAll(ctx, ws)
}

// DeleteDeferred is Delete without waiting for the backend.
func (s *Storage) DeleteDeferred(p Path) error {
	_, err := s.commit(true, func() ([]*write, error) {
		return s.stageDelete("delete", p)
	})
	return err
}

// Modify loads the inode at p, applies fn to a copy and stores the result
// at the same identifier, then waits for the backend.
func (s *Storage) Modify(ctx context.Context, op string, p Path, fn func(Inode) error) error {
	ws, err := s.commit(false, func() ([]*write, error) {
		return s.stageModify(op, p, fn)
	})
	if err != nil {
		return err
	}
	return awaitAll(ctx, ws)
}

// ModifyDeferred is Modify without waiting for the backend.
func (s *Storage) ModifyDeferred(op string, p Path, fn func(Inode) error) error {
	_, err := s.commit(true, func() ([]*write, error) {
		return s.stageModify(op, p, fn)
	})
	return err
}

// Rename moves the entry at oldpath to newpath in one step: the mirror
// never shows both or neither. An inode already at newpath is replaced and
// reclaimed. The new parent is persisted before the old one so a crash
// can leave an alias but never lose the inode.
func (s *Storage) Rename(ctx context.Context, oldpath, newpath Path) error {
	ws, err := s.commit(false, func() ([]*write, error) {
		return s.stageRename("rename", oldpath, newpath)
	})
	if err != nil {
		return err
	}
	return awaitAll(ctx, ws)
}

// commit runs stage under the write lock and queues its writes before the
// lock is released, so backend issue order matches mirror order.
func (s *Storage) commit(deferred bool, stage func() ([]*write, error)) ([]*write, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ws, err := stage()
	if err != nil {
		return nil, err
	}
	for _, w := range ws {
		w.deferred = deferred
	}
	s.queue.push(ws...)
	s.metrics.setInodes(s.mirror.Len())
	return ws, nil
}

func (s *Storage) stageSet(op string, p Path, node Inode) ([]*write, error) {
	node = node.Clone()

	id, code := s.mirror.Resolve(p)
	switch code {
	case CodeOK:
		if id.IsRoot() {
			if _, ok := node.(*Directory); !ok {
				return nil, newPathError(op, p, CodeInvalid)
			}
		}
		old, _ := s.mirror.Get(id)
		s.mirror.Put(id, node)
		ws := []*write{setWrite(id, node)}
		return append(ws, s.reclaim(old, node)...), nil

	case CodeNotFound:
		parentPath, name := p.Split()
		parentID, code := s.mirror.Resolve(parentPath)
		if code != CodeOK {
			return nil, newPathError(op, p, code)
		}
		parent, code := s.mirror.directory(parentID)
		if code != CodeOK {
			return nil, newPathError(op, p, code)
		}

		id = s.newID()
		s.mirror.Put(id, node)
		parent.Entries.Link(name, id)
		return []*write{setWrite(id, node), setWrite(parentID, parent)}, nil

	default:
		return nil, newPathError(op, p, code)
	}
}

func (s *Storage) stageModify(op string, p Path, fn func(Inode) error) ([]*write, error) {
	_, node, code := s.mirror.Lookup(p)
	if code != CodeOK {
		return nil, newPathError(op, p, code)
	}
	node = node.Clone()
	if err := fn(node); err != nil {
		return nil, err
	}
	return s.stageSet(op, p, node)
}

func (s *Storage) stageDelete(op string, p Path) ([]*write, error) {
	if p.IsRoot() {
		return nil, newPathError(op, p, CodeInvalid)
	}
	id, code := s.mirror.Resolve(p)
	if code != CodeOK {
		return nil, newPathError(op, p, code)
	}

	parentPath, name := p.Split()
	parentID, _ := s.mirror.Resolve(parentPath)
	parent, code := s.mirror.directory(parentID)
	if code != CodeOK {
		return nil, newPathError(op, p, code)
	}
	parent.Entries.Unlink(name)

	ws := []*write{setWrite(parentID, parent)}
	return append(ws, s.drop(id)...), nil
}

func (s *Storage) stageRename(op string, oldpath, newpath Path) ([]*write, error) {
	if oldpath.IsRoot() || newpath.IsRoot() {
		return nil, newPathError(op, oldpath, CodeInvalid)
	}
	id, code := s.mirror.Resolve(oldpath)
	if code != CodeOK {
		return nil, newPathError(op, oldpath, code)
	}
	if newpath.HasPrefix(oldpath) {
		if len(newpath) == len(oldpath) {
			return nil, nil
		}
		return nil, newPathError(op, newpath, CodeInvalid)
	}

	newParentPath, newName := newpath.Split()
	newParentID, code := s.mirror.Resolve(newParentPath)
	if code != CodeOK {
		return nil, newPathError(op, newpath, code)
	}
	newParent, code := s.mirror.directory(newParentID)
	if code != CodeOK {
		return nil, newPathError(op, newpath, code)
	}

	oldParentPath, oldName := oldpath.Split()
	oldParentID, _ := s.mirror.Resolve(oldParentPath)
	oldParent, code := s.mirror.directory(oldParentID)
	if code != CodeOK {
		return nil, newPathError(op, oldpath, code)
	}

	oldParent.Entries.Unlink(oldName)
	replaced, ok := newParent.Entries.Link(newName, id)

	ws := []*write{setWrite(newParentID, newParent)}
	if oldParentID != newParentID {
		ws = append(ws, setWrite(oldParentID, oldParent))
	}
	if ok && replaced != id {
		ws = append(ws, s.drop(replaced)...)
	}
	return ws, nil
}

// reclaim drops the subtrees of children linked by old but not by next.
func (s *Storage) reclaim(old, next Inode) []*write {
	oldDir, ok := old.(*Directory)
	if !ok {
		return nil
	}
	var keep Dir
	if nextDir, ok := next.(*Directory); ok {
		keep = nextDir.Entries
	}

	var ws []*write
	for _, e := range oldDir.Entries {
		if !keep.Contains(e.ID) {
			ws = append(ws, s.drop(e.ID)...)
		}
	}
	return ws
}

// drop removes id and its subtree from the mirror.
func (s *Storage) drop(id ID) []*write {
	var ws []*write
	for _, victim := range s.mirror.subtree(id) {
		if victim.IsRoot() {
			continue
		}
		s.mirror.Delete(victim)
		ws = append(ws, &write{kind: writeDelete, id: victim})
	}
	return ws
}

func setWrite(id ID, node Inode) *write {
	return &write{kind: writeSet, id: id, node: node.Clone()}
}

// writeDone runs on a queue goroutine after every backend write.
func (s *Storage) writeDone(w *write) {
	s.metrics.observeWrite(w.kind.String(), w.err)
	if w.err == nil || !w.deferred {
		return
	}

	s.metrics.deferredFailed()
	s.log.WithError(w.err).WithFields(logrus.Fields{
		"op": w.kind.String(),
		"id": w.id.String(),
	}).Error("kvfs: deferred backend write failed")
	if s.onError != nil {
		s.onError(w.err)
	}
}

// stageMkdirAll creates every missing directory along p.
func (s *Storage) stageMkdirAll(op string, p Path) ([]*write, error) {
	var ws []*write
	for i := 1; i <= len(p); i++ {
		prefix := p[:i]
		id, code := s.mirror.Resolve(prefix)
		switch code {
		case CodeOK:
			if _, code := s.mirror.directory(id); code != CodeOK {
				return nil, newPathError(op, prefix, code)
			}
		case CodeNotFound:
			created, err := s.stageSet(op, prefix, NewDirectory())
			if err != nil {
				return nil, err
			}
			ws = append(ws, created...)
		default:
			return nil, newPathError(op, prefix, code)
		}
	}
	return ws, nil
}
