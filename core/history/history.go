// Package history keeps the dialog transcript of a session.
package history

import (
	"slices"
	"sync"
	"time"

	"github.com/koscakluka/ema-face/core/bus"
	"github.com/koscakluka/ema-face/core/events"
	"github.com/koscakluka/ema-face/core/fsm"
)

type Entry struct {
	Direction events.Direction
	Text      string
	At        time.Time
}

type State int

const Active State = iota

func (s State) String() string { return "Active" }

// History appends every valid HistoryAdd event it sees. Entries are never
// reordered or changed once appended.
type History struct {
	bus  *bus.Bus
	fsm  *fsm.Machine[State]
	subs []*bus.Subscription

	mu      sync.RWMutex
	entries []Entry

	onAppend func(Entry)
}

type Option func(*History)

// WithAppendHook is called on the dispatcher goroutine after every append.
func WithAppendHook(hook func(Entry)) Option {
	return func(h *History) { h.onAppend = hook }
}

func New(b *bus.Bus, opts ...Option) *History {
	h := &History{bus: b}
	for _, opt := range opts {
		opt(h)
	}

	h.fsm = fsm.MustNew(fsm.Definition[State]{
		Name:    "history",
		Initial: Active,
		States: map[State]fsm.State[State]{
			Active: {
				On: map[events.Kind][]fsm.Transition[State]{
					events.KindHistoryAdd: {{Internal: true, Action: h.append}},
				},
			},
		},
	})
	return h
}

func (h *History) Start() {
	if h.subs == nil {
		h.subs = h.bus.SubscribeKinds(h.fsm.Kinds(), func(ev events.Event) { h.fsm.Send(ev) })
	}
}

func (h *History) Stop() {
	h.bus.UnsubscribeAll(h.subs)
	h.subs = nil
}

func (h *History) State() State { return h.fsm.State() }

// Entries returns a copy of the transcript in insertion order.
func (h *History) Entries() []Entry {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return slices.Clone(h.entries)
}

func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.entries)
}

func (h *History) append(ev events.Event) {
	add, ok := ev.(events.HistoryAdd)
	if !ok || !add.Direction.Valid() {
		logger.Warn("Dropping invalid history entry", "event", ev.Kind().String())
		return
	}

	entry := Entry{Direction: add.Direction, Text: add.Text, At: add.Timestamp()}
	h.mu.Lock()
	h.entries = append(h.entries, entry)
	h.mu.Unlock()

	if h.onAppend != nil {
		h.onAppend(entry)
	}
}
