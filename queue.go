package kvfs

import (
	"context"
	"sync"

	"github.com/pkg/errors"
)

type writeKind int

const (
	writeSet writeKind = iota
	writeDelete
)

func (k writeKind) String() string {
	switch k {
	case writeSet:
		return "set"
	case writeDelete:
		return "delete"
	default:
		return "unknown"
	}
}

// write is one backend operation waiting in the queue.
type write struct {
	kind     writeKind
	id       ID
	node     Inode  // owned copy, set writes only
	after    *write // must have completed before this one runs
	deferred bool

	done chan struct{}
	err  error
}

func (w *write) wait(ctx context.Context) error {
	select {
	case <-w.done:
		return w.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// writeQueue commits backend writes in issue order per identifier. Every
// ID with outstanding writes owns a lane drained by a single goroutine, so
// two writes to the same ID never reach the backend out of order. Writes
// pushed together are additionally chained: each waits for its predecessor.
// Queued writes are never cancelled.
type writeQueue struct {
	backend   Backend
	onDone    func(*write)
	onPending func(int)

	mu      sync.Mutex
	lanes   map[ID][]*write
	pending int
	idle    []chan struct{}
}

func newWriteQueue(backend Backend, onDone func(*write)) *writeQueue {
	return &writeQueue{
		backend: backend,
		onDone:  onDone,
		lanes:   make(map[ID][]*write),
	}
}

// push enqueues ws as one chained batch.
func (q *writeQueue) push(ws ...*write) {
	q.mu.Lock()
	defer q.mu.Unlock()

	var prev *write
	for _, w := range ws {
		w.done = make(chan struct{})
		w.after = prev
		prev = w

		q.pending++
		q.reportPending()
		lane := q.lanes[w.id]
		q.lanes[w.id] = append(lane, w)
		if len(lane) == 0 {
			go q.drain(w.id)
		}
	}
}

func (q *writeQueue) drain(id ID) {
	for {
		q.mu.Lock()
		w := q.lanes[id][0]
		q.mu.Unlock()

		q.run(w)

		q.mu.Lock()
		lane := q.lanes[id]
		lane[0] = nil
		lane = lane[1:]
		if len(lane) == 0 {
			delete(q.lanes, id)
		} else {
			q.lanes[id] = lane
		}
		q.pending--
		q.reportPending()
		if q.pending == 0 {
			for _, ch := range q.idle {
				close(ch)
			}
			q.idle = nil
		}
		q.mu.Unlock()

		if len(lane) == 0 {
			return
		}
	}
}

func (q *writeQueue) run(w *write) {
	if w.after != nil {
		<-w.after.done
	}

	ctx := context.Background()
	var err error
	switch w.kind {
	case writeSet:
		err = q.backend.Set(ctx, w.id, w.node)
	case writeDelete:
		err = q.backend.Delete(ctx, w.id)
	}
	if err != nil {
		w.err = errors.Wrapf(err, "kvfs: backend %s %s", w.kind, w.id)
	}
	if q.onDone != nil {
		q.onDone(w)
	}
	close(w.done)
}

// reportPending is called with q.mu held.
func (q *writeQueue) reportPending() {
	if q.onPending != nil {
		q.onPending(q.pending)
	}
}

// Len returns the number of writes not yet completed.
func (q *writeQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.pending
}

// Flush blocks until every write pushed so far, and any pushed while
// waiting, has completed.
func (q *writeQueue) Flush(ctx context.Context) error {
	q.mu.Lock()
	if q.pending == 0 {
		q.mu.Unlock()
		return nil
	}
	ch := make(chan struct{})
	q.idle = append(q.idle, ch)
	q.mu.Unlock()

	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// awaitAll waits for ws in order and returns the first failure.
func awaitAll(ctx context.Context, ws []*write) error {
	var first error
	for _, w := range ws {
		if err := w.wait(ctx); err != nil {
			if ctx.Err() != nil {
				return err
			}
			if first == nil {
				first = err
			}
		}
	}
	return first
}
