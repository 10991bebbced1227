package eventbus

import (
	"context"
	"errors"
	"slices"
	"sync"

	"github.com/fathima-sithara/social-platform/backend/shared/apperr"
)

var errBrokerClosed = errors.New("broker closed")

// DeadLetter is a message the memory broker received through Delivery.DeadLetter.
type DeadLetter struct {
	RoutingKey string
	Body       []byte
}

// MemoryBroker is an in-process topic exchange. Each Consume call gets its own
// unbounded queue, so every consumer sees every matching message, in publish order.
type MemoryBroker struct {
	mu     sync.Mutex
	queues []*memQueue
	dead   []DeadLetter
	acked  int
	closed bool
}

func NewMemoryBroker() *MemoryBroker {
	return &MemoryBroker{}
}

func (b *MemoryBroker) Connect(context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return apperr.Connection("connect memory broker", errBrokerClosed)
	}
	return nil
}

func (b *MemoryBroker) Publish(ctx context.Context, routingKey string, body []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return apperr.Connection("publish "+routingKey, errBrokerClosed)
	}
	for _, q := range b.queues {
		if MatchTopic(q.pattern, routingKey) {
			msg := append([]byte(nil), body...)
			q.push(b.delivery(routingKey, msg))
		}
	}
	return nil
}

func (b *MemoryBroker) Consume(ctx context.Context, routingKey string) (<-chan Delivery, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, apperr.Connection("consume "+routingKey, errBrokerClosed)
	}
	qctx, cancel := context.WithCancel(ctx)
	q := &memQueue{
		pattern: routingKey,
		signal:  make(chan struct{}, 1),
		out:     make(chan Delivery),
		cancel:  cancel,
	}
	b.queues = append(b.queues, q)
	go func() {
		q.pump(qctx)
		b.remove(q)
	}()
	return q.out, nil
}

// remove detaches a queue whose consumer went away so publishes stop buffering for it.
func (b *MemoryBroker) remove(q *memQueue) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.queues = slices.DeleteFunc(b.queues, func(x *memQueue) bool { return x == q })
}

func (b *MemoryBroker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	for _, q := range b.queues {
		q.cancel()
	}
	return nil
}

// DeadLetters returns a copy of everything dead-lettered so far.
func (b *MemoryBroker) DeadLetters() []DeadLetter {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]DeadLetter(nil), b.dead...)
}

// Acked returns how many deliveries were acknowledged.
func (b *MemoryBroker) Acked() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.acked
}

func (b *MemoryBroker) delivery(routingKey string, body []byte) Delivery {
	var once sync.Once
	settle := func(fn func()) error {
		once.Do(func() {
			b.mu.Lock()
			fn()
			b.mu.Unlock()
		})
		return nil
	}
	return NewDelivery(routingKey, body,
		func() error { return settle(func() { b.acked++ }) },
		func() error {
			return settle(func() { b.dead = append(b.dead, DeadLetter{RoutingKey: routingKey, Body: body}) })
		},
	)
}

type memQueue struct {
	pattern string
	mu      sync.Mutex
	items   []Delivery
	signal  chan struct{}
	out     chan Delivery
	cancel  context.CancelFunc
}

func (q *memQueue) push(d Delivery) {
	q.mu.Lock()
	q.items = append(q.items, d)
	q.mu.Unlock()
	select {
	case q.signal <- struct{}{}:
	default:
	}
}

// pump hands deliveries to the consumer one at a time; out is unbuffered, so the next
// message is only offered after the consumer came back for it.
func (q *memQueue) pump(ctx context.Context) {
	defer close(q.out)
	for {
		q.mu.Lock()
		if len(q.items) == 0 {
			q.mu.Unlock()
			select {
			case <-q.signal:
				continue
			case <-ctx.Done():
				return
			}
		}
		d := q.items[0]
		q.items = q.items[1:]
		q.mu.Unlock()

		select {
		case q.out <- d:
		case <-ctx.Done():
			return
		}
	}
}
