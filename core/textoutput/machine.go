// Package textoutput mirrors plain text replies of the assistant into the
// history.
package textoutput

import (
	"github.com/koscakluka/ema-face/core/bus"
	"github.com/koscakluka/ema-face/core/events"
	"github.com/koscakluka/ema-face/core/fsm"
	"github.com/koscakluka/ema-face/core/protocol"
)

type State int

const (
	Inactive State = iota
	Active
)

func (s State) String() string {
	return [...]string{"Inactive", "Active"}[s]
}

type Machine struct {
	bus  *bus.Bus
	fsm  *fsm.Machine[State]
	subs []*bus.Subscription
}

func New(b *bus.Bus) *Machine {
	m := &Machine{bus: b}
	m.fsm = fsm.MustNew(fsm.Definition[State]{
		Name:    "textoutput",
		Initial: Inactive,
		States: map[State]fsm.State[State]{
			Inactive: {
				On: map[events.Kind][]fsm.Transition[State]{
					events.KindTextPlainGranted: {{Target: Active}},
				},
			},
			Active: {
				On: map[events.Kind][]fsm.Transition[State]{
					events.KindTransportDisconnected: {{Target: Inactive}},
					events.KindTextPlainReceived:     {{Internal: true, Action: m.store}},
				},
			},
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

func (m *Machine) store(ev events.Event) {
	var text protocol.Text
	if err := ev.(events.MessageReceived).Envelope.Decode(&text); err != nil {
		logger.Warn("Dropping malformed text message", "error", err)
		return
	}
	m.bus.Publish(events.NewHistoryAdd(events.DirectionOut, text.Text))
}
