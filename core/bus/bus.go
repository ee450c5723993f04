// Package bus is the process-local publish/subscribe hub every component of a
// session talks through.
//
// Publish is synchronous: it returns after every subscriber ran. All machine
// logic is serialized on one dispatcher goroutine ([Bus.Run]); goroutines
// owned by network connections, timers and devices hand work to it with
// [Bus.Post] and [Bus.Enqueue] and never call Publish directly.
package bus

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/koscakluka/ema-face/core/events"
)

type Handler func(events.Event)

type Subscription struct {
	kind    events.Kind
	all     bool
	handler Handler
	active  atomic.Bool
}

type Bus struct {
	mu   sync.Mutex
	subs map[events.Kind][]*Subscription
	all  []*Subscription

	queueMu sync.Mutex
	queue   []func()
	notify  chan struct{}

	diagnostics    func(events.Event)
	onHandlerError func(events.Event, error)
}

type Option func(*Bus)

// WithDiagnostics mirrors every published event to sink before delivery.
func WithDiagnostics(sink func(events.Event)) Option {
	return func(b *Bus) { b.diagnostics = sink }
}

// WithHandlerErrorHook is called when a subscriber panics. The panic does not
// reach the publisher and remaining subscribers still run.
func WithHandlerErrorHook(hook func(events.Event, error)) Option {
	return func(b *Bus) { b.onHandlerError = hook }
}

func New(opts ...Option) *Bus {
	b := &Bus{
		subs:   map[events.Kind][]*Subscription{},
		notify: make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Subscribe registers handler for kind. A subscription added while an event
// is being delivered only sees later events.
func (b *Bus) Subscribe(kind events.Kind, handler Handler) *Subscription {
	sub := &Subscription{kind: kind, handler: handler}
	sub.active.Store(true)

	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs[kind] = append(b.subs[kind], sub)
	return sub
}

// SubscribeKinds subscribes handler to each of kinds, skipping kinds that
// are local to a single machine.
func (b *Bus) SubscribeKinds(kinds []events.Kind, handler Handler) []*Subscription {
	subs := make([]*Subscription, 0, len(kinds))
	for _, kind := range kinds {
		if kind.IsLocal() {
			continue
		}
		subs = append(subs, b.Subscribe(kind, handler))
	}
	return subs
}

// SubscribeAll registers an observer for every kind.
func (b *Bus) SubscribeAll(handler Handler) *Subscription {
	sub := &Subscription{all: true, handler: handler}
	sub.active.Store(true)

	b.mu.Lock()
	defer b.mu.Unlock()
	b.all = append(b.all, sub)
	return sub
}

// Unsubscribe removes sub. It takes effect immediately, also for an event that
// is currently being delivered. Unsubscribing twice or a nil subscription is a
// noop.
func (b *Bus) Unsubscribe(sub *Subscription) {
	if sub == nil || !sub.active.CompareAndSwap(true, false) {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	remove := func(list []*Subscription) []*Subscription {
		return slices.DeleteFunc(slices.Clone(list), func(s *Subscription) bool { return s == sub })
	}
	if sub.all {
		b.all = remove(b.all)
		return
	}
	b.subs[sub.kind] = remove(b.subs[sub.kind])
	if len(b.subs[sub.kind]) == 0 {
		delete(b.subs, sub.kind)
	}
}

func (b *Bus) UnsubscribeAll(subs []*Subscription) {
	for _, sub := range subs {
		b.Unsubscribe(sub)
	}
}

// Publish delivers ev to the subscribers of its kind in registration order,
// then to observers registered with SubscribeAll.
func (b *Bus) Publish(ev events.Event) {
	if ev == nil {
		return
	}

	if b.diagnostics != nil {
		b.diagnostics(ev)
	}

	b.mu.Lock()
	targets := make([]*Subscription, 0, len(b.subs[ev.Kind()])+len(b.all))
	targets = append(targets, b.subs[ev.Kind()]...)
	targets = append(targets, b.all...)
	b.mu.Unlock()

	for _, sub := range targets {
		if !sub.active.Load() {
			continue
		}
		b.deliver(sub, ev)
	}
}

func (b *Bus) deliver(sub *Subscription, ev events.Event) {
	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("subscriber for %s panicked: %v", ev.Kind(), r)
			logger.Error("Bus subscriber failed", "kind", ev.Kind().String(), "error", err)
			if b.onHandlerError != nil {
				b.onHandlerError(ev, err)
			}
		}
	}()

	sub.handler(ev)
}

// Post queues ev to be published on the dispatcher goroutine. It never
// blocks and is safe to call from any goroutine.
func (b *Bus) Post(ev events.Event) {
	b.Enqueue(func() { b.Publish(ev) })
}

// Enqueue queues fn to run on the dispatcher goroutine.
func (b *Bus) Enqueue(fn func()) {
	b.queueMu.Lock()
	b.queue = append(b.queue, fn)
	b.queueMu.Unlock()

	select {
	case b.notify <- struct{}{}:
	default:
	}
}

// Run executes queued work one item at a time until ctx is done.
func (b *Bus) Run(ctx context.Context) error {
	for {
		b.Drain()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-b.notify:
		}
	}
}

// Drain runs queued work on the calling goroutine until the queue is empty,
// including work queued while draining. It returns the number of items run.
func (b *Bus) Drain() int {
	ran := 0
	for {
		b.queueMu.Lock()
		if len(b.queue) == 0 {
			b.queueMu.Unlock()
			return ran
		}
		fn := b.queue[0]
		b.queue[0] = nil
		b.queue = b.queue[1:]
		b.queueMu.Unlock()

		b.run(fn)
		ran++
	}
}

func (b *Bus) run(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("Queued bus work failed", "error", fmt.Errorf("%v", r))
		}
	}()
	fn()
}
