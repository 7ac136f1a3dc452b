// Package events delivers document lifecycle notifications from the
// ingestion side to index maintainers.
//
// Delivery contract:
//   - every subscriber receives every event published while it is subscribed;
//   - distinct events may be handled concurrently, by the same subscriber too;
//   - events naming the same document id are not ordered against each other;
//   - a handler error is logged and the event is dropped for that subscriber.
//     It is never retried and never blocks later events.
package events

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	apperrors "github.com/gremid/faust-app/core/errors"
	"github.com/gremid/faust-app/internal/logging"
)

// Kind distinguishes event types.
type Kind string

// Event kinds.
const (
	KindUpdated Kind = "updated"
	KindRemoved Kind = "removed"
)

// Event reports that a set of documents changed.
type Event struct {
	ID        string
	Kind      Kind
	IDs       []int64
	Published time.Time
}

// Updated returns an event for documents that were created or replaced.
func Updated(ids ...int64) Event {
	return Event{Kind: KindUpdated, IDs: ids}
}

// Removed returns an event for documents that were deleted.
func Removed(ids ...int64) Event {
	return Event{Kind: KindRemoved, IDs: ids}
}

// Handler processes one event.
type Handler func(ctx context.Context, ev Event) error

// ErrClosed is returned when publishing on a closed bus.
var ErrClosed = errors.New("event bus closed")

var deliveries = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "faust_event_deliveries_total",
		Help: "Event deliveries by kind and result",
	},
	[]string{"kind", "result"},
)

type subscriber struct {
	name    string
	handler Handler
}

type delivery struct {
	ev  Event
	sub subscriber
}

type outcome struct {
	delivery
	err error
}

// Options configures a Bus.
type Options struct {
	Workers int // concurrent handler invocations
	Buffer  int // queued deliveries before Publish blocks
}

// Bus is an in-process task queue of (event, subscriber) deliveries served
// by a fixed set of workers.
type Bus struct {
	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.RWMutex
	subs   map[uint64]subscriber
	nextID uint64
	closed bool

	pool *workerPool[delivery, outcome]
	done chan struct{}
}

// New starts a bus.
func New(opts Options) *Bus {
	ctx, cancel := context.WithCancel(context.Background())
	b := &Bus{
		ctx:    ctx,
		cancel: cancel,
		subs:   make(map[uint64]subscriber),
		pool:   newWorkerPool[delivery, outcome](opts.Workers, opts.Buffer),
		done:   make(chan struct{}),
	}
	b.pool.start(b.deliver)
	go b.collect()
	return b
}

// Subscribe registers h under name and returns a function that removes it.
func (b *Bus) Subscribe(name string, h Handler) (unsubscribe func()) {
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subs[id] = subscriber{name: name, handler: h}
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
		})
	}
}

// Publish queues ev for every current subscriber and returns its id. It
// blocks while the queue is full until ctx is done.
func (b *Bus) Publish(ctx context.Context, ev Event) (string, error) {
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if ev.Published.IsZero() {
		ev.Published = time.Now()
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return ev.ID, ErrClosed
	}

	ids := make([]uint64, 0, len(b.subs))
	for id := range b.subs {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	if len(ids) == 0 {
		logging.Debug("event without subscribers", "kind", ev.Kind, "event_id", ev.ID)
	}
	for _, id := range ids {
		if err := b.pool.submit(ctx, delivery{ev: ev, sub: b.subs[id]}); err != nil {
			return ev.ID, fmt.Errorf("publish %s event %s: %w", ev.Kind, ev.ID, err)
		}
	}
	return ev.ID, nil
}

// Close stops accepting events and waits until every queued delivery has
// been handled.
func (b *Bus) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		<-b.done
		return
	}
	b.closed = true
	b.pool.close()
	b.mu.Unlock()

	<-b.done
	b.cancel()
}

func (b *Bus) deliver(d delivery) (out outcome) {
	out.delivery = d
	defer func() {
		if r := recover(); r != nil {
			out.err = fmt.Errorf("%w: handler %s panicked: %v", apperrors.ErrInternal, d.sub.name, r)
		}
	}()
	out.err = d.sub.handler(b.ctx, d.ev)
	return out
}

func (b *Bus) collect() {
	defer close(b.done)
	for out := range b.pool.resultsChan() {
		kind := string(out.ev.Kind)
		if out.err != nil {
			deliveries.WithLabelValues(kind, "error").Inc()
			logging.EventError(kind, out.ev.ID, out.ev.IDs, out.err, "subscriber", out.sub.name)
			continue
		}
		deliveries.WithLabelValues(kind, "ok").Inc()
	}
}
