// Package textinput turns typed commands into outbound text messages using
// whichever text capability the server granted.
package textinput

import (
	"github.com/koscakluka/ema-face/core/bus"
	"github.com/koscakluka/ema-face/core/events"
	"github.com/koscakluka/ema-face/core/fsm"
	"github.com/koscakluka/ema-face/core/protocol"
)

type State int

const (
	Inactive State = iota
	IndirectMode
	DirectMode
)

func (s State) String() string {
	return [...]string{"Inactive", "IndirectMode", "DirectMode"}[s]
}

type Machine struct {
	bus  *bus.Bus
	fsm  *fsm.Machine[State]
	subs []*bus.Subscription
}

func New(b *bus.Bus) *Machine {
	m := &Machine{bus: b}
	m.fsm = fsm.MustNew(fsm.Definition[State]{
		Name:    "textinput",
		Initial: Inactive,
		States: map[State]fsm.State[State]{
			Inactive: {},
			IndirectMode: {
				On: map[events.Kind][]fsm.Transition[State]{
					events.KindTextCommand: {{Internal: true, Action: m.sender(protocol.TextIndirect)}},
				},
			},
			DirectMode: {
				On: map[events.Kind][]fsm.Transition[State]{
					// Direct text wins over indirect regardless of grant order.
					events.KindTextIndirectGranted: {{Internal: true}},
					events.KindTextCommand:         {{Internal: true, Action: m.sender(protocol.TextDirect)}},
				},
			},
		},
		On: map[events.Kind][]fsm.Transition[State]{
			events.KindTransportDisconnected: {{Target: Inactive}},
			events.KindTextDirectGranted:     {{Target: DirectMode}},
			events.KindTextIndirectGranted:   {{Target: IndirectMode}},
			events.KindTextCommand:           {{Internal: true, Action: m.drop}},
		},
	})
	return m
}

func (m *Machine) Start() {
	if m.subs == nil {
		m.subs = m.bus.SubscribeKinds(m.fsm.Kinds(), func(ev events.Event) { m.fsm.Send(ev) })
	}
}

func (m *Machine) Stop() {
	m.bus.UnsubscribeAll(m.subs)
	m.subs = nil
}

func (m *Machine) State() State { return m.fsm.State() }

func (m *Machine) sender(capability protocol.Capability) func(events.Event) {
	return func(ev events.Event) {
		command := ev.(events.TextCommand)
		env, err := protocol.NewEnvelope(capability.Message("text"), protocol.Text{Text: command.Text})
		if err != nil {
			logger.Error("Failed to build text message", "error", err)
			return
		}
		m.bus.Publish(events.NewSendRequested(env))
		m.bus.Publish(events.NewHistoryAdd(events.DirectionIn, command.Text))
	}
}

func (m *Machine) drop(events.Event) {
	logger.Warn("Dropping text command, no text input capability granted")
}
