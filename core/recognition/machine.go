// Package recognition runs a client side speech recognizer and sends what it
// hears either as indirect text or as client side recognition results.
package recognition

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/koscakluka/ema-face/core/audio"
	"github.com/koscakluka/ema-face/core/bus"
	"github.com/koscakluka/ema-face/core/events"
	"github.com/koscakluka/ema-face/core/fsm"
	"github.com/koscakluka/ema-face/core/protocol"
	"github.com/koscakluka/ema-face/internal/utils"
)

type State int

const (
	Inactive State = iota
	Active
	StartingIndirect
	StartingSTTClientside
	IndirectMode
	STTClientsideMode
	Error
)

func (s State) String() string {
	return [...]string{
		"Inactive", "Active",
		"Active.StartingIndirect", "Active.StartingSTTClientside",
		"Active.IndirectMode", "Active.STTClientsideMode",
		"Error",
	}[s]
}

type Machine struct {
	ctx        context.Context
	bus        *bus.Bus
	engine     Engine
	sampleRate int

	fsm  *fsm.Machine[State]
	subs []*bus.Subscription

	playbacks   PlaybackCount
	recognizer  Recognizer
	cancelStart context.CancelFunc
	generation  uint64
	err         error
}

type Option func(*Machine)

func WithSampleRate(sampleRate int) Option {
	return func(m *Machine) { m.sampleRate = sampleRate }
}

func WithContext(ctx context.Context) Option {
	return func(m *Machine) { m.ctx = ctx }
}

func New(b *bus.Bus, engine Engine, opts ...Option) *Machine {
	m := &Machine{
		ctx:        context.Background(),
		bus:        b,
		engine:     engine,
		sampleRate: audio.DefaultSampleRate,
	}
	for _, opt := range opts {
		opt(m)
	}

	activation := map[events.Kind][]fsm.Transition[State]{
		events.KindTextIndirectGranted:  {{Target: StartingIndirect}},
		events.KindSTTClientsideGranted: {{Target: StartingSTTClientside}},
	}
	active := utils.Ptr(Active)
	m.fsm = fsm.MustNew(fsm.Definition[State]{
		Name:    "recognition",
		Initial: Inactive,
		States: map[State]fsm.State[State]{
			Inactive: {On: activation},
			Active: {
				Enter: m.startEngine,
				Exit:  m.stopEngine,
				On: map[events.Kind][]fsm.Transition[State]{
					events.KindRecognizerFailed: {{Target: Error, Guard: m.isCurrentGeneration, Action: m.storeError}},
					// Later grants of indirect text never downgrade.
					events.KindTextIndirectGranted:  {{Internal: true}},
					events.KindSTTClientsideGranted: {{Internal: true}},
				},
			},
			StartingIndirect: {
				Parent: active,
				On: map[events.Kind][]fsm.Transition[State]{
					events.KindRecognizerReady:      {{Target: IndirectMode, Guard: m.isCurrentGeneration}},
					events.KindSTTClientsideGranted: {{Target: StartingSTTClientside}},
				},
			},
			StartingSTTClientside: {
				Parent: active,
				On: map[events.Kind][]fsm.Transition[State]{
					events.KindRecognizerReady: {{Target: STTClientsideMode, Guard: m.isCurrentGeneration}},
				},
			},
			IndirectMode: {
				Parent: active,
				On: map[events.Kind][]fsm.Transition[State]{
					events.KindRecognized:           {{Internal: true, Guard: m.isCurrentGeneration, Action: m.sender(protocol.TypeTextIndirectText)}},
					events.KindSTTClientsideGranted: {{Target: STTClientsideMode}},
				},
			},
			STTClientsideMode: {
				Parent: active,
				On: map[events.Kind][]fsm.Transition[State]{
					events.KindRecognized:                     {{Internal: true, Guard: m.isCurrentGeneration, Action: m.sender(protocol.TypeSTTClientsideRecognized)}},
					events.KindSTTClientsideProcessedReceived: {{Internal: true, Action: m.storeProcessed}},
				},
			},
			Error: {
				Enter: m.recordError,
				On:    activation,
			},
		},
		On: map[events.Kind][]fsm.Transition[State]{
			events.KindTransportDisconnected: {{Target: Inactive}},
			events.KindPlaybackStarted:       {{Internal: true, Action: m.countPlayback(1)}},
			events.KindPlaybackEnded:         {{Internal: true, Action: m.countPlayback(-1)}},
		},
	})
	return m
}

func (m *Machine) Start() {
	if m.subs == nil {
		m.subs = m.bus.SubscribeKinds(m.fsm.Kinds(), func(ev events.Event) { m.fsm.Send(ev) })
	}
}

// Stop detaches from the bus and stops the recognizer, also one that is
// still starting.
func (m *Machine) Stop() {
	m.bus.UnsubscribeAll(m.subs)
	m.subs = nil
	m.stopEngine()
}

func (m *Machine) State() State { return m.fsm.State() }

// Err returns the failure that moved the machine to Error.
func (m *Machine) Err() error { return m.err }

// Playbacks is the number of assistant playbacks currently running.
func (m *Machine) Playbacks() *PlaybackCount { return &m.playbacks }

func (m *Machine) isCurrentGeneration(ev events.Event) bool {
	local, ok := ev.(events.Local)
	return ok && local.Generation == m.generation
}

func (m *Machine) post(ev events.Local) {
	m.bus.Enqueue(func() { m.fsm.Send(ev) })
}

func (m *Machine) startEngine(events.Event) {
	m.generation++
	generation := m.generation
	m.err = nil

	ctx, cancel := context.WithCancel(m.ctx)
	m.cancelStart = cancel

	go func() {
		ctx, span := tracer.Start(ctx, "start recognizer",
			trace.WithAttributes(attribute.Int("sample_rate", m.sampleRate)))
		defer span.End()

		recognizer, err := m.engine.Start(ctx, m.sampleRate, func(text string) {
			if text == "" {
				return
			}
			m.post(events.NewLocal(events.KindRecognized, generation).WithText(text))
		})
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			m.post(events.NewLocal(events.KindRecognizerFailed, generation).WithErr(err))
			return
		}

		m.bus.Enqueue(func() {
			if generation != m.generation {
				logger.Debug("Stopping recognizer that finished starting too late")
				if err := recognizer.Stop(); err != nil {
					logger.Warn("Failed to stop late recognizer", "error", err)
				}
				return
			}
			m.recognizer = recognizer
			recognizer.SetSuppressed(m.playbacks.Active())
			m.fsm.Send(events.NewLocal(events.KindRecognizerReady, generation))
		})
	}()
}

func (m *Machine) stopEngine() {
	m.generation++
	if m.cancelStart != nil {
		m.cancelStart()
		m.cancelStart = nil
	}
	if m.recognizer == nil {
		return
	}
	if err := m.recognizer.Stop(); err != nil {
		logger.Warn("Failed to stop recognizer", "error", err)
	}
	m.recognizer = nil
}

func (m *Machine) countPlayback(delta int) func(events.Event) {
	return func(events.Event) {
		count := m.playbacks.add(delta)
		if m.recognizer != nil {
			m.recognizer.SetSuppressed(count > 0)
		}
	}
}

func (m *Machine) sender(messageType protocol.MessageType) func(events.Event) {
	return func(ev events.Event) {
		env, err := protocol.NewEnvelope(messageType, protocol.Text{Text: ev.(events.Local).Text})
		if err != nil {
			logger.Error("Failed to build recognition message", "error", err)
			return
		}
		m.bus.Publish(events.NewSendRequested(env))
	}
}

func (m *Machine) storeProcessed(ev events.Event) {
	var text protocol.Text
	if err := ev.(events.MessageReceived).Envelope.Decode(&text); err != nil {
		logger.Warn("Dropping malformed recognition result", "error", err)
		return
	}
	m.bus.Publish(events.NewHistoryAdd(events.DirectionIn, text.Text))
}

func (m *Machine) storeError(ev events.Event) {
	m.err = ev.(events.Local).Err
}

func (m *Machine) recordError(events.Event) {
	err := fmt.Errorf("speech recognition failed: %w", m.err)
	span := trace.SpanFromContext(m.ctx)
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	logger.Error("Speech recognition stopped", "error", err)
}
