// Package fsm runs state tables: state × event kind → transition.
//
// States may name a parent. A transition declared on a parent applies to all
// of its children, and entry/exit hooks of a parent run only when a
// transition crosses its boundary, so resources held by a parent survive moves
// between its children. Transition targets are always leaf states.
package fsm

import (
	"fmt"
	"slices"
	"sync"

	"github.com/koscakluka/ema-face/core/events"
)

type Transition[S comparable] struct {
	Target S
	// Internal transitions run Action without leaving the current state.
	Internal bool
	Guard    func(events.Event) bool
	Action   func(events.Event)
}

type State[S comparable] struct {
	Parent *S
	Enter  func(events.Event)
	Exit   func()
	On     map[events.Kind][]Transition[S]
}

type Definition[S comparable] struct {
	Name    string
	Initial S
	States  map[S]State[S]
	// On holds transitions that apply in every state.
	On map[events.Kind][]Transition[S]
}

type Machine[S comparable] struct {
	def     Definition[S]
	parents map[S]S

	mu      sync.RWMutex
	current S

	busy    bool
	pending []events.Event

	onTransition func(from, to S, ev events.Event)
}

type Option[S comparable] func(*Machine[S])

// WithTransitionHook is called after every external transition.
func WithTransitionHook[S comparable](hook func(from, to S, ev events.Event)) Option[S] {
	return func(m *Machine[S]) { m.onTransition = hook }
}

// New validates def and returns a machine resting in def.Initial. The entry
// hook of the initial state is not run.
func New[S comparable](def Definition[S], opts ...Option[S]) (*Machine[S], error) {
	m := &Machine[S]{def: def, parents: map[S]S{}, current: def.Initial}
	for state, stateDef := range def.States {
		if stateDef.Parent != nil {
			if _, ok := def.States[*stateDef.Parent]; !ok {
				return nil, fmt.Errorf("%s: parent %v of %v is not defined", def.Name, *stateDef.Parent, state)
			}
			m.parents[state] = *stateDef.Parent
		}
	}
	if _, ok := def.States[def.Initial]; !ok {
		return nil, fmt.Errorf("%s: initial state %v is not defined", def.Name, def.Initial)
	}
	for state := range def.States {
		if err := m.checkCycle(state); err != nil {
			return nil, err
		}
	}

	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// MustNew is New for definitions built from constants.
func MustNew[S comparable](def Definition[S], opts ...Option[S]) *Machine[S] {
	m, err := New(def, opts...)
	if err != nil {
		panic(err)
	}
	return m
}

func (m *Machine[S]) checkCycle(state S) error {
	seen := map[S]bool{}
	for s, ok := state, true; ok; s, ok = m.parents[s] {
		if seen[s] {
			return fmt.Errorf("%s: parent cycle at %v", m.def.Name, s)
		}
		seen[s] = true
	}
	return nil
}

func (m *Machine[S]) State() S {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// In reports whether state is the current state or one of its ancestors.
func (m *Machine[S]) In(state S) bool {
	return slices.Contains(m.path(m.State()), state)
}

// Send feeds ev to the machine. Events sent while a transition is running,
// from hooks or actions, are queued and handled after it completes. It
// reports whether ev itself caused a transition.
func (m *Machine[S]) Send(ev events.Event) bool {
	if m.busy {
		m.pending = append(m.pending, ev)
		return false
	}

	m.busy = true
	defer func() { m.busy = false }()

	handled := m.process(ev)
	for len(m.pending) > 0 {
		next := m.pending[0]
		m.pending = m.pending[1:]
		m.process(next)
	}
	return handled
}

// Handles reports whether the current state reacts to kind at all.
func (m *Machine[S]) Handles(kind events.Kind) bool {
	for _, state := range m.path(m.State()) {
		if len(m.def.States[state].On[kind]) > 0 {
			return true
		}
	}
	return len(m.def.On[kind]) > 0
}

func (m *Machine[S]) process(ev events.Event) bool {
	for _, source := range m.path(m.State()) {
		if t, ok := pick(m.def.States[source].On[ev.Kind()], ev); ok {
			m.fire(&source, t, ev)
			return true
		}
	}
	if t, ok := pick(m.def.On[ev.Kind()], ev); ok {
		m.fire(nil, t, ev)
		return true
	}
	return false
}

func pick[S comparable](candidates []Transition[S], ev events.Event) (Transition[S], bool) {
	for _, t := range candidates {
		if t.Guard == nil || t.Guard(ev) {
			return t, true
		}
	}
	return Transition[S]{}, false
}

func (m *Machine[S]) fire(source *S, t Transition[S], ev events.Event) {
	if t.Internal {
		if t.Action != nil {
			t.Action(ev)
		}
		return
	}

	from := m.State()
	domain, hasDomain := m.domain(source, t.Target)

	for _, state := range m.path(from) {
		if hasDomain && state == domain {
			break
		}
		if exit := m.def.States[state].Exit; exit != nil {
			exit()
		}
	}

	if t.Action != nil {
		t.Action(ev)
	}

	m.mu.Lock()
	m.current = t.Target
	m.mu.Unlock()

	entering := []S{}
	for _, state := range m.path(t.Target) {
		if hasDomain && state == domain {
			break
		}
		entering = append(entering, state)
	}
	for i := len(entering) - 1; i >= 0; i-- {
		if enter := m.def.States[entering[i]].Enter; enter != nil {
			enter(ev)
		}
	}

	if m.onTransition != nil {
		m.onTransition(from, t.Target, ev)
	}
}

// domain returns the deepest state that the transition stays inside of. A
// transition declared on source that targets source or one of its children
// leaves and re-enters source.
func (m *Machine[S]) domain(source *S, target S) (S, bool) {
	if source == nil {
		var zero S
		return zero, false
	}

	targetPath := m.path(target)
	for _, state := range m.path(*source) {
		if !slices.Contains(targetPath, state) {
			continue
		}
		if state == *source {
			parent, ok := m.parents[state]
			return parent, ok
		}
		return state, true
	}

	var zero S
	return zero, false
}

// path returns state followed by its ancestors.
func (m *Machine[S]) path(state S) []S {
	path := []S{state}
	for parent, ok := m.parents[state]; ok; parent, ok = m.parents[parent] {
		path = append(path, parent)
	}
	return path
}

// Kinds returns every event kind the definition reacts to, in ascending
// order.
func (m *Machine[S]) Kinds() []events.Kind {
	kinds := []events.Kind{}
	add := func(on map[events.Kind][]Transition[S]) {
		for kind := range on {
			if !slices.Contains(kinds, kind) {
				kinds = append(kinds, kind)
			}
		}
	}
	for _, state := range m.def.States {
		add(state.On)
	}
	add(m.def.On)
	slices.Sort(kinds)
	return kinds
}
