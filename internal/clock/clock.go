// Package clock abstracts timers so state machine delays can be driven by tests.
package clock

import (
	"sort"
	"sync"
	"time"
)

// Timer is a scheduled callback that can be cancelled.
type Timer interface {
	// Stop prevents the callback from firing. It reports whether the call
	// stopped the timer before it fired.
	Stop() bool
}

type Clock interface {
	// AfterFunc calls f once after d on its own goroutine.
	AfterFunc(d time.Duration, f func()) Timer
	// Every calls f every d until the returned timer is stopped.
	Every(d time.Duration, f func()) Timer
}

// Real returns a Clock backed by the time package.
func Real() Clock { return realClock{} }

type realClock struct{}

func (realClock) AfterFunc(d time.Duration, f func()) Timer { return time.AfterFunc(d, f) }

func (realClock) Every(d time.Duration, f func()) Timer {
	ticker := time.NewTicker(d)
	done := make(chan struct{})
	go func() {
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				f()
			}
		}
	}()
	return &realTicker{ticker: ticker, done: done}
}

type realTicker struct {
	ticker *time.Ticker
	done   chan struct{}
	once   sync.Once
}

func (t *realTicker) Stop() bool {
	stopped := false
	t.once.Do(func() {
		t.ticker.Stop()
		close(t.done)
		stopped = true
	})
	return stopped
}

// Manual is a Clock whose time only moves on Advance. Callbacks run
// synchronously on the goroutine calling Advance, in deadline order.
type Manual struct {
	mu      sync.Mutex
	now     time.Duration
	seq     int
	pending []*manualTimer
}

func NewManual() *Manual { return &Manual{} }

type manualTimer struct {
	clock    *Manual
	seq      int
	deadline time.Duration
	period   time.Duration
	f        func()
	stopped  bool
}

func (t *manualTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()

	if t.stopped {
		return false
	}
	t.stopped = true
	return true
}

func (m *Manual) AfterFunc(d time.Duration, f func()) Timer {
	return m.schedule(d, 0, f)
}

func (m *Manual) Every(d time.Duration, f func()) Timer {
	return m.schedule(d, d, f)
}

func (m *Manual) schedule(d, period time.Duration, f func()) *manualTimer {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.seq++
	t := &manualTimer{clock: m, seq: m.seq, deadline: m.now + d, period: period, f: f}
	m.pending = append(m.pending, t)
	return t
}

// Pending returns the number of timers that have not fired or been stopped.
func (m *Manual) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	for _, t := range m.pending {
		if !t.stopped {
			n++
		}
	}
	return n
}

// Advance moves the clock forward by d, firing every timer whose deadline
// is reached on the way.
func (m *Manual) Advance(d time.Duration) {
	m.mu.Lock()
	target := m.now + d
	m.mu.Unlock()

	for {
		m.mu.Lock()
		next := m.nextDue(target)
		if next == nil {
			m.now = target
			m.mu.Unlock()
			return
		}
		m.now = next.deadline
		if next.period > 0 {
			next.deadline += next.period
		} else {
			next.stopped = true
		}
		m.mu.Unlock()

		next.f()
	}
}

func (m *Manual) nextDue(target time.Duration) *manualTimer {
	live := m.pending[:0]
	for _, t := range m.pending {
		if !t.stopped {
			live = append(live, t)
		}
	}
	m.pending = live

	sort.SliceStable(m.pending, func(i, j int) bool {
		if m.pending[i].deadline == m.pending[j].deadline {
			return m.pending[i].seq < m.pending[j].seq
		}
		return m.pending[i].deadline < m.pending[j].deadline
	})
	if len(m.pending) == 0 || m.pending[0].deadline > target {
		return nil
	}
	return m.pending[0]
}
