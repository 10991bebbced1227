package eventbus

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/fathima-sithara/social-platform/backend/shared/apperr"
)

var fastRetry = RetryPolicy{
	MaxAttempts:     3,
	InitialInterval: time.Millisecond,
	MaxInterval:     5 * time.Millisecond,
	HandlerTimeout:  time.Second,
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestDispatcher_SerialInOrder(t *testing.T) {
	b := NewMemoryBroker()
	d := NewDispatcher(b, fastRetry, zaptest.NewLogger(t))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var (
		mu      sync.Mutex
		seen    []string
		running int32
		overlap int32
	)
	err := d.Bind(ctx, PostCreated, func(ctx context.Context, body []byte) error {
		if atomic.AddInt32(&running, 1) > 1 {
			atomic.StoreInt32(&overlap, 1)
		}
		time.Sleep(time.Millisecond)
		mu.Lock()
		seen = append(seen, string(body))
		mu.Unlock()
		atomic.AddInt32(&running, -1)
		return nil
	})
	if err != nil {
		t.Fatalf("bind: %v", err)
	}

	const n = 25
	for i := 0; i < n; i++ {
		if err := b.Publish(ctx, PostCreated, []byte(fmt.Sprint(i))); err != nil {
			t.Fatalf("publish: %v", err)
		}
	}
	waitFor(t, "all acks", func() bool { return b.Acked() == n })

	if atomic.LoadInt32(&overlap) != 0 {
		t.Error("expected handler invocations never to overlap")
	}
	mu.Lock()
	defer mu.Unlock()
	for i, body := range seen {
		if body != fmt.Sprint(i) {
			t.Fatalf("expected delivery %d to carry %d, got %s", i, i, body)
		}
	}
}

func TestDispatcher_RetriesThenAcks(t *testing.T) {
	b := NewMemoryBroker()
	d := NewDispatcher(b, fastRetry, zaptest.NewLogger(t))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var calls int32
	_ = d.Bind(ctx, PostDeleted, func(context.Context, []byte) error {
		if atomic.AddInt32(&calls, 1) < 3 {
			return errors.New("media store unavailable")
		}
		return nil
	})
	_ = b.Publish(ctx, PostDeleted, []byte(`{"postId":"p1"}`))

	waitFor(t, "ack", func() bool { return b.Acked() == 1 })
	if got := atomic.LoadInt32(&calls); got != 3 {
		t.Errorf("expected 3 attempts, got %d", got)
	}
	if n := len(b.DeadLetters()); n != 0 {
		t.Errorf("expected no dead letters, got %d", n)
	}
}

func TestDispatcher_DeadLettersAfterMaxAttempts(t *testing.T) {
	b := NewMemoryBroker()
	d := NewDispatcher(b, fastRetry, zaptest.NewLogger(t))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var calls int32
	_ = d.Bind(ctx, PostDeleted, func(context.Context, []byte) error {
		atomic.AddInt32(&calls, 1)
		return errors.New("boom")
	})
	_ = b.Publish(ctx, PostDeleted, []byte(`{"postId":"p1"}`))
	_ = b.Publish(ctx, PostDeleted, []byte(`{"postId":"p2"}`))

	waitFor(t, "dead letters", func() bool { return len(b.DeadLetters()) == 2 })
	if got := atomic.LoadInt32(&calls); got != 6 {
		t.Errorf("expected 3 attempts per event, got %d calls", got)
	}
	dl := b.DeadLetters()
	if string(dl[0].Body) != `{"postId":"p1"}` || dl[0].RoutingKey != PostDeleted {
		t.Errorf("unexpected dead letter %+v", dl[0])
	}
	if b.Acked() != 0 {
		t.Errorf("expected no acks, got %d", b.Acked())
	}
}

func TestDispatcher_PanicIsDeadLettered(t *testing.T) {
	b := NewMemoryBroker()
	d := NewDispatcher(b, fastRetry, zaptest.NewLogger(t))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var calls int32
	_ = d.Bind(ctx, PostDeleted, JSONHandler(func(_ context.Context, ev PostDeletedEvent) error {
		atomic.AddInt32(&calls, 1)
		if ev.PostID == "p1" {
			var m map[string]int
			m[ev.PostID]++
		}
		return nil
	}))
	_ = b.Publish(ctx, PostDeleted, []byte(`{"postId":"p1"}`))
	_ = b.Publish(ctx, PostDeleted, []byte(`{"postId":"p2"}`))

	waitFor(t, "second event acked", func() bool { return b.Acked() == 1 })
	dl := b.DeadLetters()
	if len(dl) != 1 || string(dl[0].Body) != `{"postId":"p1"}` {
		t.Fatalf("expected the panicking event dead-lettered, got %+v", dl)
	}
	if got := atomic.LoadInt32(&calls); got != 4 {
		t.Errorf("expected 3 attempts for p1 and 1 for p2, got %d calls", got)
	}
}

func TestDispatcher_MalformedSkipsRetry(t *testing.T) {
	b := NewMemoryBroker()
	d := NewDispatcher(b, fastRetry, zaptest.NewLogger(t))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var calls int32
	h := JSONHandler(func(context.Context, PostCreatedEvent) error {
		atomic.AddInt32(&calls, 1)
		return nil
	})
	_ = d.Bind(ctx, PostCreated, h)

	_ = b.Publish(ctx, PostCreated, []byte(`not json`))
	_ = b.Publish(ctx, PostCreated, []byte(`{"userId":"u1"}`))
	_ = b.Publish(ctx, PostCreated, []byte(`{"postId":"p1","userId":"u1","content":"hi"}`))

	waitFor(t, "settlement", func() bool { return len(b.DeadLetters()) == 2 && b.Acked() == 1 })
	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Errorf("expected handler to see only the valid event, got %d calls", got)
	}
}

func TestDispatcher_HandlerTimeout(t *testing.T) {
	b := NewMemoryBroker()
	policy := fastRetry
	policy.MaxAttempts = 2
	policy.HandlerTimeout = 10 * time.Millisecond
	d := NewDispatcher(b, policy, zaptest.NewLogger(t))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	_ = d.Bind(ctx, PostCreated, func(ctx context.Context, _ []byte) error {
		<-ctx.Done()
		return ctx.Err()
	})
	_ = b.Publish(ctx, PostCreated, []byte(`{"postId":"p1"}`))

	waitFor(t, "dead letter", func() bool { return len(b.DeadLetters()) == 1 })
}

func TestDispatcher_ShutdownLeavesUnacked(t *testing.T) {
	b := NewMemoryBroker()
	d := NewDispatcher(b, fastRetry, zaptest.NewLogger(t))
	ctx, cancel := context.WithCancel(context.Background())

	started := make(chan struct{})
	_ = d.Bind(ctx, PostCreated, func(ctx context.Context, _ []byte) error {
		close(started)
		<-ctx.Done()
		return ctx.Err()
	})
	_ = b.Publish(ctx, PostCreated, []byte(`{"postId":"p1"}`))
	<-started
	cancel()

	done := make(chan struct{})
	go func() { d.Wait(); close(done) }()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("dispatcher did not stop")
	}
	if b.Acked() != 0 || len(b.DeadLetters()) != 0 {
		t.Errorf("expected delivery to stay unsettled, acked=%d dead=%d", b.Acked(), len(b.DeadLetters()))
	}
}

func TestJSONHandler_ValidationErrors(t *testing.T) {
	h := JSONHandler(func(context.Context, PostDeletedEvent) error { return nil })
	err := h(context.Background(), []byte(`{"mediaIds":[]}`))
	if !errors.Is(err, apperr.ErrMalformedEvent) {
		t.Errorf("expected ErrMalformedEvent, got %v", err)
	}
	if err := h(context.Background(), []byte(`{"postId":"p1"}`)); err != nil {
		t.Errorf("expected tolerant decode of missing optional fields, got %v", err)
	}
}

func TestPublisher_EmitBareJSON(t *testing.T) {
	b := NewMemoryBroker()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ch, _ := b.Consume(ctx, PostDeleted)

	p := NewPublisher(b, zaptest.NewLogger(t))
	if err := p.Emit(ctx, PostDeleted, NewPostDeleted("p1", "u1", nil)); err != nil {
		t.Fatalf("emit: %v", err)
	}
	d := <-ch
	want := `{"postId":"p1","userId":"u1","mediaIds":[]}`
	if string(d.Body) != want {
		t.Errorf("expected %s, got %s", want, d.Body)
	}

	_ = b.Close()
	if err := p.Emit(ctx, PostDeleted, NewPostDeleted("p2", "u1", nil)); !errors.Is(err, apperr.ErrConnection) {
		t.Errorf("expected ErrConnection after close, got %v", err)
	}
}
