package kvfs

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
)

// recordingBackend remembers the order in which writes reached it and can
// hold back writes to chosen identifiers.
type recordingBackend struct {
	*MemoryBackend

	mu    sync.Mutex
	order []string
	block map[ID]chan struct{}
}

func newRecordingBackend() *recordingBackend {
	return &recordingBackend{
		MemoryBackend: NewMemoryBackend(),
		block:         make(map[ID]chan struct{}),
	}
}

func (b *recordingBackend) holdID(id ID) chan struct{} {
	ch := make(chan struct{})
	b.mu.Lock()
	b.block[id] = ch
	b.mu.Unlock()
	return ch
}

func (b *recordingBackend) Set(ctx context.Context, id ID, node Inode) error {
	b.mu.Lock()
	ch := b.block[id]
	b.mu.Unlock()
	if ch != nil {
		<-ch
	}

	label := id.String()
	if f, ok := node.(*File); ok {
		label = string(f.Data)
	}
	b.mu.Lock()
	b.order = append(b.order, label)
	b.mu.Unlock()
	return b.MemoryBackend.Set(ctx, id, node)
}

func (b *recordingBackend) writes() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.order...)
}

func TestWriteQueue_OrderPerID(t *testing.T) {
	backend := newRecordingBackend()
	q := newWriteQueue(backend, nil)
	id := NewID()

	var want []string
	for i := 0; i < 50; i++ {
		data := string(rune('a' + i%26))
		want = append(want, data)
		q.push(&write{kind: writeSet, id: id, node: NewFile([]byte(data))})
	}
	if err := q.Flush(context.Background()); err != nil {
		t.Fatal(err)
	}

	if got := backend.writes(); !equalStrings(got, want) {
		t.Errorf("writes reached the backend out of order:\n%v\n%v", got, want)
	}
	node, _ := backend.Get(context.Background(), id)
	if string(node.(*File).Data) != want[len(want)-1] {
		t.Errorf("backend kept %v", node)
	}
	if q.Len() != 0 {
		t.Errorf("%d writes pending after flush", q.Len())
	}
}

func TestWriteQueue_BatchIsChained(t *testing.T) {
	backend := newRecordingBackend()
	q := newWriteQueue(backend, nil)
	first, second := NewID(), NewID()

	gate := backend.holdID(first)
	a := &write{kind: writeSet, id: first, node: NewFile([]byte("first"))}
	b := &write{kind: writeSet, id: second, node: NewFile([]byte("second"))}
	q.push(a, b)

	select {
	case <-b.done:
		t.Fatal("second write finished before the first")
	case <-time.After(20 * time.Millisecond):
	}
	if q.Len() != 2 {
		t.Errorf("pending = %d, want 2", q.Len())
	}

	close(gate)
	if err := awaitAll(context.Background(), []*write{a, b}); err != nil {
		t.Fatal(err)
	}
	if got := backend.writes(); !equalStrings(got, []string{"first", "second"}) {
		t.Errorf("order %v", got)
	}
}

func TestWriteQueue_FlushDeadline(t *testing.T) {
	backend := newFaultyBackend()
	s := NewStorage(backend)

	backend.hold()
	if err := s.SetDeferred(ParsePath("/f"), NewFile(nil)); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := s.Flush(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("flush = %v", err)
	}
	if s.Pending() != 2 {
		t.Errorf("pending = %d, want 2", s.Pending())
	}

	backend.release()
	flush(t, s)
	if s.Pending() != 0 {
		t.Errorf("pending = %d after flush", s.Pending())
	}
	if backend.Len() != 2 {
		t.Errorf("backend holds %d records", backend.Len())
	}
}

func TestAwaitAll_FirstError(t *testing.T) {
	failed := errors.New("failed")
	done := func(err error) *write {
		w := &write{done: make(chan struct{}), err: err}
		close(w.done)
		return w
	}

	ws := []*write{done(nil), done(failed), done(errBackendDown)}
	if err := awaitAll(context.Background(), ws); err != failed {
		t.Errorf("awaitAll = %v", err)
	}
	if err := awaitAll(context.Background(), nil); err != nil {
		t.Errorf("empty awaitAll = %v", err)
	}
}

func TestStorage_DeferredFailure(t *testing.T) {
	log, hook := test.NewNullLogger()
	metrics := NewMetrics(prometheus.NewRegistry())

	var mu sync.Mutex
	var handled []error
	backend := newFaultyBackend()
	s := openStorage(t, backend,
		WithLogger(log),
		WithMetrics(metrics),
		WithErrorHandler(func(err error) {
			mu.Lock()
			handled = append(handled, err)
			mu.Unlock()
		}),
	)
	fsys := NewFS(s)

	backend.setFailing(true)
	if err := fsys.WriteFile("/f", []byte("x")); err != nil {
		t.Fatalf("deferred write returned %v", err)
	}
	flush(t, s)

	mu.Lock()
	defer mu.Unlock()
	if len(handled) != 2 {
		t.Fatalf("handler saw %d failures, want 2", len(handled))
	}
	for _, err := range handled {
		if !errors.Is(err, errBackendDown) {
			t.Errorf("handler got %v", err)
		}
	}

	if got := testutil.ToFloat64(metrics.deferredFailures); got != 2 {
		t.Errorf("deferred failures = %v", got)
	}
	if got := testutil.ToFloat64(metrics.backendWrites.WithLabelValues("set", ResultError)); got != 2 {
		t.Errorf("failed sets = %v", got)
	}
	if got := testutil.ToFloat64(metrics.pendingWrites); got != 0 {
		t.Errorf("pending gauge = %v", got)
	}

	entries := hook.AllEntries()
	if len(entries) != 2 {
		t.Fatalf("logged %d entries", len(entries))
	}
	for _, e := range entries {
		if e.Level != logrus.ErrorLevel || e.Data["op"] != "set" {
			t.Errorf("unexpected log entry %v %v", e.Level, e.Data)
		}
	}

	// The mirror keeps the write regardless.
	if !fsys.Exists("/f") {
		t.Error("mirror lost the failed write")
	}
}

func TestMetrics_Registered(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg)
	fsys := NewFS(openStorage(t, NewMemoryBackend(), WithMetrics(metrics)))

	fsys.MkdirAll("/a/b")
	flush(t, fsys.Storage())

	// root at open, then two directories each with its parent
	if got := testutil.ToFloat64(metrics.backendWrites.WithLabelValues("set", ResultOK)); got != 5 {
		t.Errorf("successful sets = %v", got)
	}
	if got := testutil.ToFloat64(metrics.mirrorInodes); got != 3 {
		t.Errorf("mirror gauge = %v", got)
	}
	if n, err := testutil.GatherAndCount(reg, "kvfs_storage_sync_duration_seconds"); err != nil || n != 1 {
		t.Errorf("sync histogram: %d, %v", n, err)
	}

	var none *Metrics
	none.observeWrite("set", nil)
	none.deferredFailed()
	none.setPending(1)
	none.setInodes(1)
	none.observeSync(time.Second)
}
