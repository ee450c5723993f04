// Package connection keeps the primary channel of a session alive and
// negotiates which capabilities are active on it.
//
// Every successful negotiation ends in one capability granted event per
// distinct granted capability. Every lost connection, at any stage, ends in a
// single transport disconnected event, after which the machine reconnects on
// a constant delay forever.
package connection

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/koscakluka/ema-face/core/bus"
	"github.com/koscakluka/ema-face/core/events"
	"github.com/koscakluka/ema-face/core/fsm"
	"github.com/koscakluka/ema-face/core/protocol"
	"github.com/koscakluka/ema-face/internal/clock"
	"github.com/koscakluka/ema-face/internal/utils"
)

const DefaultReconnectDelay = 1000 * time.Millisecond

type State int

const (
	Stopped State = iota
	Connecting
	Opening
	Negotiating
	Connected
	Disconnected
)

func (s State) String() string {
	switch s {
	case Stopped:
		return "Stopped"
	case Connecting:
		return "Connecting"
	case Opening:
		return "Connecting.Opening"
	case Negotiating:
		return "Connecting.Negotiating"
	case Connected:
		return "Connected"
	case Disconnected:
		return "Disconnected"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

type Machine struct {
	ctx     context.Context
	bus     *bus.Bus
	dialer  Dialer
	address string
	groups  []protocol.CapabilityGroup

	clock          clock.Clock
	reconnectDelay time.Duration

	fsm  *fsm.Machine[State]
	subs []*bus.Subscription

	link       Link
	timer      clock.Timer
	generation uint64
	outcome    protocol.Outcome
	lastErr    error

	attempts            metric.Int64Counter
	negotiationFailures metric.Int64Counter
}

type Option func(*Machine)

func WithClock(c clock.Clock) Option {
	return func(m *Machine) { m.clock = c }
}

func WithReconnectDelay(delay time.Duration) Option {
	return func(m *Machine) { m.reconnectDelay = delay }
}

func WithContext(ctx context.Context) Option {
	return func(m *Machine) { m.ctx = ctx }
}

// New creates a machine that will dial address and request groups once
// started. groups must not be modified afterwards.
func New(b *bus.Bus, dialer Dialer, address string, groups []protocol.CapabilityGroup, opts ...Option) *Machine {
	m := &Machine{
		ctx:            context.Background(),
		bus:            b,
		dialer:         dialer,
		address:        address,
		groups:         groups,
		clock:          clock.Real(),
		reconnectDelay: DefaultReconnectDelay,
	}
	for _, opt := range opts {
		opt(m)
	}

	var err error
	if m.attempts, err = meter.Int64Counter("connection.attempts",
		metric.WithDescription("Primary channel connection attempts")); err != nil {
		logger.Warn("Failed to create attempts counter", "error", err)
	}
	if m.negotiationFailures, err = meter.Int64Counter("connection.negotiation_failures",
		metric.WithDescription("Negotiation replies that could not be parsed")); err != nil {
		logger.Warn("Failed to create negotiation failures counter", "error", err)
	}

	m.fsm = fsm.MustNew(m.definition(), fsm.WithTransitionHook(func(from, to State, ev events.Event) {
		logger.Debug("Connection transition", "from", from.String(), "to", to.String(), "event", ev.Kind().String())
	}))
	return m
}

func (m *Machine) definition() fsm.Definition[State] {
	currentLink := func(ev events.Event) bool { return m.isCurrentLink(ev) }
	lost := []fsm.Transition[State]{{Target: Disconnected, Guard: currentLink}}

	return fsm.Definition[State]{
		Name:    "connection",
		Initial: Stopped,
		States: map[State]fsm.State[State]{
			Stopped: {
				On: map[events.Kind][]fsm.Transition[State]{
					events.KindReconnectDue: {{Target: Opening, Guard: m.isCurrentGeneration}},
				},
			},
			Connecting: {
				On: map[events.Kind][]fsm.Transition[State]{
					events.KindTransportFailed: lost,
					events.KindTransportClosed: lost,
				},
			},
			Opening: {
				Parent: utils.Ptr(Connecting),
				Enter:  m.open,
				On: map[events.Kind][]fsm.Transition[State]{
					events.KindTransportConnected: {{Target: Negotiating, Guard: currentLink}},
				},
			},
			Negotiating: {
				Parent: utils.Ptr(Connecting),
				Enter:  m.requestNegotiation,
				On: map[events.Kind][]fsm.Transition[State]{
					events.KindTransportMessage: {
						{Target: Connected, Guard: m.acceptAgreement},
						{Target: Disconnected, Guard: currentLink},
					},
				},
			},
			Connected: {
				Enter: m.publishGrants,
				On: map[events.Kind][]fsm.Transition[State]{
					events.KindTransportMessage: {{Internal: true, Guard: currentLink, Action: m.route}},
					events.KindSendRequested:    {{Internal: true, Action: m.send}},
					events.KindTransportFailed:  lost,
					events.KindTransportClosed:  lost,
				},
			},
			Disconnected: {
				Enter: m.disconnect,
				Exit:  m.stopTimer,
				On: map[events.Kind][]fsm.Transition[State]{
					events.KindReconnectDue: {{Target: Opening, Guard: m.isCurrentGeneration}},
				},
			},
		},
		On: map[events.Kind][]fsm.Transition[State]{
			events.KindSendRequested: {{Internal: true, Action: m.dropSend}},
		},
	}
}

// Start subscribes to the bus and opens the first connection. It must run on
// the dispatcher goroutine.
func (m *Machine) Start() {
	if len(m.subs) > 0 {
		return
	}
	for _, kind := range []events.Kind{
		events.KindTransportConnected,
		events.KindTransportFailed,
		events.KindTransportClosed,
		events.KindTransportMessage,
		events.KindSendRequested,
	} {
		m.subs = append(m.subs, m.bus.Subscribe(kind, func(ev events.Event) { m.fsm.Send(ev) }))
	}
	m.fsm.Send(events.NewLocal(events.KindReconnectDue, m.generation))
}

// Stop releases the connection and any pending reconnect. The machine does
// not publish a disconnect for it.
func (m *Machine) Stop() {
	for _, sub := range m.subs {
		m.bus.Unsubscribe(sub)
	}
	m.subs = nil
	m.generation++
	m.stopTimer()
	m.closeLink()
}

func (m *Machine) State() State { return m.fsm.State() }

// Outcome returns the outcome of the last successful negotiation.
func (m *Machine) Outcome() protocol.Outcome { return slices.Clone(m.outcome) }

func (m *Machine) Requirements() []protocol.CapabilityGroup { return m.groups }

func (m *Machine) isCurrentLink(ev events.Event) bool {
	if m.link == nil {
		return false
	}
	switch ev := ev.(type) {
	case events.TransportConnected:
		return ev.Link == m.link.ID()
	case events.TransportFailed:
		return ev.Link == m.link.ID()
	case events.TransportClosed:
		return ev.Link == m.link.ID()
	case events.TransportMessage:
		return ev.Link == m.link.ID()
	}
	return false
}

func (m *Machine) isCurrentGeneration(ev events.Event) bool {
	local, ok := ev.(events.Local)
	return ok && local.Generation == m.generation
}

func (m *Machine) open(events.Event) {
	m.lastErr = nil
	m.outcome = nil
	if m.attempts != nil {
		m.attempts.Add(m.ctx, 1)
	}
	m.link = m.dialer.Dial(m.ctx, m.address)
}

func (m *Machine) requestNegotiation(events.Event) {
	link := m.link
	err := func() error {
		request, err := protocol.NewNegotiationRequest(m.groups)
		if err != nil {
			return err
		}
		return link.Send(request)
	}()
	if err != nil {
		m.fsm.Send(events.NewTransportFailed(link.ID(), fmt.Errorf("failed to send negotiation request: %w", err)))
	}
}

// acceptAgreement parses the first message on the link as the negotiation
// reply. The outcome or the parse error is kept for the transition that
// follows.
func (m *Machine) acceptAgreement(ev events.Event) bool {
	if !m.isCurrentLink(ev) {
		return false
	}
	message := ev.(events.TransportMessage)

	outcome, err := func() (protocol.Outcome, error) {
		env, err := protocol.ParseEnvelope(message.Data)
		if err != nil {
			return nil, &protocol.NegotiationParseError{Reason: "reply is not an envelope", Err: err}
		}
		return protocol.ParseAgreement(env, m.groups)
	}()
	if err != nil {
		if m.negotiationFailures != nil {
			m.negotiationFailures.Add(m.ctx, 1)
		}
		m.lastErr = err
		m.recordError(fmt.Errorf("negotiation failed: %w", err))
		return false
	}

	m.outcome = outcome
	return true
}

func (m *Machine) publishGrants(events.Event) {
	logger.Info("Negotiated capabilities", "granted", m.outcome.Granted())
	for _, capability := range m.outcome.Granted() {
		m.bus.Publish(events.NewCapabilityGranted(capability))
	}
}

func (m *Machine) route(ev events.Event) {
	message := ev.(events.TransportMessage)
	env, err := protocol.ParseEnvelope(message.Data)
	if err != nil {
		logger.Warn("Dropping undecodable message", "error", err)
		return
	}
	m.bus.Publish(events.NewMessageReceived(env))
}

func (m *Machine) send(ev events.Event) {
	request, ok := ev.(events.SendRequested)
	if !ok {
		return
	}
	if err := m.link.Send(request.Envelope); err != nil {
		logger.Warn("Failed to send message", "type", string(request.Envelope.Type), "error", err)
	}
}

func (m *Machine) dropSend(ev events.Event) {
	request, ok := ev.(events.SendRequested)
	if !ok {
		return
	}
	logger.Warn("Dropping message sent while not connected", "type", string(request.Envelope.Type), "state", m.State().String())
}

func (m *Machine) disconnect(ev events.Event) {
	err := m.lastErr
	if failed, ok := ev.(events.TransportFailed); ok && failed.Err != nil {
		err = failed.Err
	}
	if err == nil {
		err = errors.New("connection closed")
	}

	m.closeLink()
	m.outcome = nil
	logger.Info("Disconnected", "error", err)
	m.bus.Publish(events.NewTransportDisconnected(err))

	m.generation++
	generation := m.generation
	m.timer = m.clock.AfterFunc(m.reconnectDelay, func() {
		m.bus.Enqueue(func() { m.fsm.Send(events.NewLocal(events.KindReconnectDue, generation)) })
	})
}

func (m *Machine) stopTimer() {
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
}

func (m *Machine) closeLink() {
	if m.link == nil {
		return
	}
	if err := m.link.Close(); err != nil {
		logger.Debug("Failed to close link", "error", err)
	}
	m.link = nil
}

func (m *Machine) recordError(err error) {
	span := trace.SpanFromContext(m.ctx)
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	logger.Warn("Connection error", "error", err)
}
