package fsm

import (
	"slices"
	"testing"

	"github.com/koscakluka/ema-face/core/events"
	"github.com/koscakluka/ema-face/internal/utils"
)

type testState int

const (
	idle testState = iota
	active
	waiting
	playing
)

func (s testState) String() string {
	return [...]string{"idle", "active", "waiting", "playing"}[s]
}

type recorder struct{ log []string }

func (r *recorder) add(entry string) func() { return func() { r.log = append(r.log, entry) } }

func (r *recorder) enter(entry string) func(events.Event) {
	return func(events.Event) { r.log = append(r.log, entry) }
}

func newTestMachine(t *testing.T, r *recorder) *Machine[testState] {
	t.Helper()

	m, err := New(Definition[testState]{
		Name:    "test",
		Initial: idle,
		States: map[testState]State[testState]{
			idle: {
				On: map[events.Kind][]Transition[testState]{
					events.KindAudioLinkGranted: {{Target: waiting}},
				},
			},
			active: {
				Enter: r.enter("enter active"),
				Exit:  r.add("exit active"),
				On: map[events.Kind][]Transition[testState]{
					events.KindTransportDisconnected: {{Target: idle}},
				},
			},
			waiting: {
				Parent: utils.Ptr(active),
				Enter:  r.enter("enter waiting"),
				Exit:   r.add("exit waiting"),
				On: map[events.Kind][]Transition[testState]{
					events.KindPlaybackRequestReceived: {{Target: playing}},
				},
			},
			playing: {
				Parent: utils.Ptr(active),
				Enter:  r.enter("enter playing"),
				Exit:   r.add("exit playing"),
				On: map[events.Kind][]Transition[testState]{
					events.KindPlaybackFinished: {
						{Target: playing, Guard: func(ev events.Event) bool { return ev.(events.Local).Text == "again" }},
						{Target: waiting, Action: func(events.Event) { r.log = append(r.log, "action done") }},
					},
					events.KindPlaybackTick: {{Internal: true, Action: func(events.Event) { r.log = append(r.log, "tick") }}},
				},
			},
		},
	})
	if err != nil {
		t.Fatalf("expected valid definition, got %v", err)
	}
	return m
}

func TestSiblingTransitionKeepsParentEntered(t *testing.T) {
	r := &recorder{}
	m := newTestMachine(t, r)

	m.Send(events.NewCapabilityGranted("out.audio.link"))
	m.Send(events.NewLocal(events.KindPlaybackRequestReceived, 0))
	m.Send(events.NewLocal(events.KindPlaybackFinished, 0))

	want := []string{
		"enter active", "enter waiting",
		"exit waiting", "enter playing",
		"exit playing", "action done", "enter waiting",
	}
	if !slices.Equal(r.log, want) {
		t.Fatalf("expected %v, got %v", want, r.log)
	}
	if m.State() != waiting || !m.In(active) {
		t.Fatalf("expected waiting inside active, got %v", m.State())
	}
}

func TestParentTransitionExitsWholeChain(t *testing.T) {
	r := &recorder{}
	m := newTestMachine(t, r)
	m.Send(events.NewCapabilityGranted("out.audio.link"))
	m.Send(events.NewLocal(events.KindPlaybackRequestReceived, 0))
	r.log = nil

	m.Send(events.NewTransportDisconnected(nil))

	if want := []string{"exit playing", "exit active"}; !slices.Equal(r.log, want) {
		t.Fatalf("expected %v, got %v", want, r.log)
	}
	if m.State() != idle {
		t.Fatalf("expected idle, got %v", m.State())
	}
}

func TestGuardedSelfTransitionReentersState(t *testing.T) {
	r := &recorder{}
	m := newTestMachine(t, r)
	m.Send(events.NewCapabilityGranted("out.audio.link"))
	m.Send(events.NewLocal(events.KindPlaybackRequestReceived, 0))
	r.log = nil

	m.Send(events.NewLocal(events.KindPlaybackFinished, 0).WithText("again"))

	if want := []string{"exit playing", "enter playing"}; !slices.Equal(r.log, want) {
		t.Fatalf("expected %v, got %v", want, r.log)
	}
}

func TestInternalTransitionRunsActionOnly(t *testing.T) {
	r := &recorder{}
	m := newTestMachine(t, r)
	m.Send(events.NewCapabilityGranted("out.audio.link"))
	m.Send(events.NewLocal(events.KindPlaybackRequestReceived, 0))
	r.log = nil

	m.Send(events.NewLocal(events.KindPlaybackTick, 0))

	if want := []string{"tick"}; !slices.Equal(r.log, want) {
		t.Fatalf("expected %v, got %v", want, r.log)
	}
}

func TestUnhandledEventsAreIgnored(t *testing.T) {
	r := &recorder{}
	m := newTestMachine(t, r)

	if m.Send(events.NewLocal(events.KindPlaybackTick, 0)) {
		t.Fatalf("expected tick in idle to be ignored")
	}
	if m.Handles(events.KindPlaybackTick) {
		t.Fatalf("expected idle not to handle ticks")
	}
	if len(r.log) != 0 || m.State() != idle {
		t.Fatalf("expected no effects, got %v in %v", r.log, m.State())
	}
}

func TestEventsSentFromHooksAreQueued(t *testing.T) {
	var m *Machine[testState]
	order := []string{}
	m = MustNew(Definition[testState]{
		Name:    "queue",
		Initial: idle,
		States: map[testState]State[testState]{
			idle: {On: map[events.Kind][]Transition[testState]{
				events.KindAudioLinkGranted: {{Target: waiting}},
			}},
			waiting: {
				Enter: func(events.Event) {
					m.Send(events.NewLocal(events.KindPlaybackRequestReceived, 0))
					order = append(order, "entered waiting")
				},
				On: map[events.Kind][]Transition[testState]{
					events.KindPlaybackRequestReceived: {{Target: playing}},
				},
			},
			playing: {Enter: func(events.Event) { order = append(order, "entered playing") }},
		},
	})

	m.Send(events.NewCapabilityGranted("out.audio.link"))

	if want := []string{"entered waiting", "entered playing"}; !slices.Equal(order, want) {
		t.Fatalf("expected %v, got %v", want, order)
	}
}

func TestNewRejectsUnknownParent(t *testing.T) {
	_, err := New(Definition[testState]{
		Name:    "broken",
		Initial: idle,
		States: map[testState]State[testState]{
			idle: {Parent: utils.Ptr(active)},
		},
	})
	if err == nil {
		t.Fatalf("expected undefined parent to be rejected")
	}
}

func TestKindsListsEveryHandledKind(t *testing.T) {
	m := newTestMachine(t, &recorder{})
	kinds := m.Kinds()

	for _, kind := range []events.Kind{
		events.KindAudioLinkGranted,
		events.KindTransportDisconnected,
		events.KindPlaybackRequestReceived,
	} {
		if !slices.Contains(kinds, kind) {
			t.Fatalf("expected %s in %v", kind, kinds)
		}
	}
	if !slices.IsSorted(kinds) {
		t.Fatalf("expected kinds to be sorted, got %v", kinds)
	}
}
