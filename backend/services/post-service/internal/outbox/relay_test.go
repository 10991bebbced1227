package outbox

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/fathima-sithara/social-platform/backend/shared/eventbus"
)

type memStore struct {
	mu       sync.Mutex
	recs     map[string]Record
	attempts map[string]int
}

func newMemStore(recs ...Record) *memStore {
	s := &memStore{recs: map[string]Record{}, attempts: map[string]int{}}
	for _, r := range recs {
		s.recs[r.ID] = r
	}
	return s
}

func (s *memStore) Pending(_ context.Context, limit int) ([]Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Record, 0, len(s.recs))
	for _, r := range s.recs {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *memStore) MarkAttempt(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attempts[id]++
	return nil
}

func (s *memStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.recs, id)
	return nil
}

func (s *memStore) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.recs)
}

type flakyPublisher struct {
	mu     sync.Mutex
	sent   []string
	failOn string
	fails  int
}

func (p *flakyPublisher) PublishRaw(_ context.Context, key string, body []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if string(body) == p.failOn && p.fails > 0 {
		p.fails--
		return errors.New("broker nack")
	}
	p.sent = append(p.sent, string(body))
	return nil
}

func (p *flakyPublisher) bodies() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.sent...)
}

func mustRecord(t *testing.T, key string, payload any) Record {
	t.Helper()
	r, err := NewRecord(key, payload)
	if err != nil {
		t.Fatalf("new record: %v", err)
	}
	return r
}

func TestNewRecord_TimeOrderedIDs(t *testing.T) {
	var prev string
	for i := 0; i < 50; i++ {
		r := mustRecord(t, eventbus.PostCreated, map[string]int{"i": i})
		if r.ID <= prev {
			t.Fatalf("expected increasing ids, got %s after %s", r.ID, prev)
		}
		prev = r.ID
	}
}

func TestFlush_StopsAtFirstFailure(t *testing.T) {
	a := mustRecord(t, eventbus.PostCreated, "a")
	b := mustRecord(t, eventbus.PostDeleted, "b")
	c := mustRecord(t, eventbus.PostCreated, "c")
	store := newMemStore(a, b, c)
	pub := &flakyPublisher{failOn: `"b"`, fails: 1}
	r := NewRelay(store, pub, time.Millisecond, 10, zaptest.NewLogger(t))

	n, err := r.Flush(context.Background())
	if err == nil {
		t.Fatal("expected error from failed publish")
	}
	if n != 1 {
		t.Errorf("expected 1 relayed before failure, got %d", n)
	}
	if got := pub.bodies(); len(got) != 1 || got[0] != `"a"` {
		t.Errorf("expected only a published, got %v", got)
	}
	if store.len() != 2 {
		t.Errorf("expected b and c to stay in the outbox, got %d records", store.len())
	}
	if store.attempts[b.ID] != 1 {
		t.Errorf("expected the failed attempt to be recorded")
	}

	n, err = r.Flush(context.Background())
	if err != nil || n != 2 {
		t.Fatalf("expected retry to drain the outbox, got n=%d err=%v", n, err)
	}
	want := []string{`"a"`, `"b"`, `"c"`}
	got := pub.bodies()
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected order %v, got %v", want, got)
		}
	}
}

func TestRun_DeliversThroughBus(t *testing.T) {
	bus := eventbus.NewMemoryBroker()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	deliveries, _ := bus.Consume(ctx, "post.*")

	store := newMemStore(
		mustRecord(t, eventbus.PostCreated, eventbus.PostCreatedEvent{PostID: "p1", UserID: "u1", Content: "hello"}),
	)
	r := NewRelay(store, eventbus.NewPublisher(bus, zaptest.NewLogger(t)), 5*time.Millisecond, 10, zaptest.NewLogger(t))
	go r.Run(ctx)
	r.Kick()

	select {
	case d := <-deliveries:
		if d.RoutingKey != eventbus.PostCreated {
			t.Errorf("expected %s, got %s", eventbus.PostCreated, d.RoutingKey)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("relay did not publish")
	}

	deadline := time.Now().Add(time.Second)
	for store.len() != 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if store.len() != 0 {
		t.Error("expected record to be deleted after confirm")
	}
}
