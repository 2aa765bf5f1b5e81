package kvfs

import (
	"context"
	"sync"
	"testing"

	"github.com/pkg/errors"
)

var errBackendDown = errors.New("backend down")

// faultyBackend wraps a MemoryBackend. While failing is set, Set and Delete
// return errBackendDown. While gate is non-nil, writes block until it is
// closed.
type faultyBackend struct {
	*MemoryBackend

	mu      sync.Mutex
	failing bool
	gate    chan struct{}
	log     []string
}

func newFaultyBackend() *faultyBackend {
	return &faultyBackend{MemoryBackend: NewMemoryBackend()}
}

func (b *faultyBackend) setFailing(v bool) {
	b.mu.Lock()
	b.failing = v
	b.mu.Unlock()
}

func (b *faultyBackend) hold() {
	b.mu.Lock()
	b.gate = make(chan struct{})
	b.mu.Unlock()
}

func (b *faultyBackend) release() {
	b.mu.Lock()
	if b.gate != nil {
		close(b.gate)
		b.gate = nil
	}
	b.mu.Unlock()
}

func (b *faultyBackend) before(op string, id ID) error {
	b.mu.Lock()
	gate := b.gate
	b.mu.Unlock()
	if gate != nil {
		<-gate
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.log = append(b.log, op+" "+id.String())
	if b.failing {
		return errBackendDown
	}
	return nil
}

func (b *faultyBackend) Set(ctx context.Context, id ID, node Inode) error {
	if err := b.before("set", id); err != nil {
		return err
	}
	return b.MemoryBackend.Set(ctx, id, node)
}

func (b *faultyBackend) Delete(ctx context.Context, id ID) error {
	if err := b.before("delete", id); err != nil {
		return err
	}
	return b.MemoryBackend.Delete(ctx, id)
}

func (b *faultyBackend) ops() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.log...)
}

// openStorage returns a synced Storage over backend.
func openStorage(t testing.TB, backend Backend, opts ...Option) *Storage {
	t.Helper()
	s, err := Open(context.Background(), backend, opts...)
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func flush(t testing.TB, s *Storage) {
	t.Helper()
	if err := s.Flush(context.Background()); err != nil {
		t.Fatal(err)
	}
}

func wantCode(t *testing.T, err error, code Code) {
	t.Helper()
	if got := CodeOf(err); got != code {
		t.Fatalf("expected %s, got %v", code, err)
	}
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
