// Package audiostream streams microphone audio to the assistant over a
// dedicated binary connection for server side speech recognition.
package audiostream

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/koscakluka/ema-face/core/audio"
	"github.com/koscakluka/ema-face/core/bus"
	"github.com/koscakluka/ema-face/core/events"
	"github.com/koscakluka/ema-face/core/fsm"
	"github.com/koscakluka/ema-face/core/protocol"
	"github.com/koscakluka/ema-face/core/transport"
	"github.com/koscakluka/ema-face/internal/clock"
	"github.com/koscakluka/ema-face/internal/utils"
)

const DefaultRetryDelay = 10000 * time.Millisecond

// Stream is an open secondary connection.
type Stream interface {
	SendBinary(data []byte) error
	Close() error
}

type Dialer interface {
	OpenStream(ctx context.Context, path string, sampleRate int, handlers transport.Handlers) (Stream, error)
}

type DialerFunc func(ctx context.Context, path string, sampleRate int, handlers transport.Handlers) (Stream, error)

func (f DialerFunc) OpenStream(ctx context.Context, path string, sampleRate int, handlers transport.Handlers) (Stream, error) {
	return f(ctx, path, sampleRate, handlers)
}

type State int

const (
	Inactive State = iota
	Waiting
	Streaming
	Connecting
	Active
	Disconnected
	Error
)

func (s State) String() string {
	return [...]string{
		"Inactive", "Waiting", "Streaming",
		"Streaming.Connecting", "Streaming.Active", "Streaming.Disconnected",
		"Error",
	}[s]
}

type Machine struct {
	ctx        context.Context
	bus        *bus.Bus
	dialer     Dialer
	capture    audio.Capture
	clock      clock.Clock
	sampleRate int
	retryDelay time.Duration

	fsm  *fsm.Machine[State]
	subs []*bus.Subscription

	path       string
	stream     Stream
	session    audio.CaptureSession
	timer      clock.Timer
	muted      bool
	generation uint64
	err        error

	sentBytes metric.Int64Counter
}

type Option func(*Machine)

func WithClock(c clock.Clock) Option {
	return func(m *Machine) { m.clock = c }
}

func WithRetryDelay(delay time.Duration) Option {
	return func(m *Machine) { m.retryDelay = delay }
}

func WithSampleRate(sampleRate int) Option {
	return func(m *Machine) { m.sampleRate = sampleRate }
}

func WithContext(ctx context.Context) Option {
	return func(m *Machine) { m.ctx = ctx }
}

func New(b *bus.Bus, dialer Dialer, capture audio.Capture, opts ...Option) *Machine {
	m := &Machine{
		ctx:        context.Background(),
		bus:        b,
		dialer:     dialer,
		capture:    capture,
		clock:      clock.Real(),
		sampleRate: audio.DefaultSampleRate,
		retryDelay: DefaultRetryDelay,
	}
	for _, opt := range opts {
		opt(m)
	}

	var err error
	if m.sentBytes, err = meter.Int64Counter("audiostream.sent_bytes",
		metric.WithDescription("Audio bytes forwarded to the stream connection"),
		metric.WithUnit("By")); err != nil {
		logger.Warn("Failed to create sent bytes counter", "error", err)
	}

	streaming := utils.Ptr(Streaming)
	m.fsm = fsm.MustNew(fsm.Definition[State]{
		Name:    "audiostream",
		Initial: Inactive,
		States: map[State]fsm.State[State]{
			Inactive: {
				On: map[events.Kind][]fsm.Transition[State]{
					events.KindSTTServersideGranted: {{Target: Waiting}},
				},
			},
			Waiting: {
				On: map[events.Kind][]fsm.Transition[State]{
					events.KindSTTServersideReadyReceived: {{Target: Connecting, Guard: m.isValidReady, Action: m.storePath}},
				},
			},
			Streaming: {
				Exit: m.closeStream,
				On: map[events.Kind][]fsm.Transition[State]{
					events.KindSTTServersideProcessedReceived: {{Internal: true, Action: m.storeProcessed}},
					events.KindMuteReceived:                   {{Internal: true, Action: m.setMuted(true)}},
					events.KindUnmuteReceived:                 {{Internal: true, Action: m.setMuted(false)}},
					events.KindStreamFailed:                   {{Target: Error, Guard: m.isCurrentGeneration, Action: m.storeError}},
					events.KindStreamClosed:                   {{Target: Disconnected, Guard: m.isCurrentGeneration}},
				},
			},
			Connecting: {
				Parent: streaming,
				Enter:  m.openStream,
				On: map[events.Kind][]fsm.Transition[State]{
					events.KindStreamOpened: {{Target: Active, Guard: m.isCurrentGeneration}},
				},
			},
			Active: {
				Parent: streaming,
				Enter:  m.startCapture,
				Exit:   m.stopCapture,
				On: map[events.Kind][]fsm.Transition[State]{
					events.KindStreamChunk:   {{Internal: true, Guard: m.isCurrentGeneration, Action: m.forward}},
					events.KindCaptureFailed: {{Target: Error, Guard: m.isCurrentGeneration, Action: m.storeError}},
				},
			},
			Disconnected: {
				Parent: streaming,
				Enter:  m.scheduleRetry,
				Exit:   m.stopTimer,
				On: map[events.Kind][]fsm.Transition[State]{
					events.KindStreamRetryDue: {{Target: Connecting, Guard: m.isCurrentGeneration}},
				},
			},
			Error: {
				Enter: m.recordError,
			},
		},
		On: map[events.Kind][]fsm.Transition[State]{
			events.KindTransportDisconnected: {{Target: Inactive}},
		},
	})
	return m
}

func (m *Machine) Start() {
	if m.subs == nil {
		m.subs = m.bus.SubscribeKinds(m.fsm.Kinds(), func(ev events.Event) { m.fsm.Send(ev) })
	}
}

// Stop detaches from the bus and releases the stream, capture and timer.
func (m *Machine) Stop() {
	m.bus.UnsubscribeAll(m.subs)
	m.subs = nil
	m.stopCapture()
	m.stopTimer()
	m.closeStream()
}

func (m *Machine) State() State { return m.fsm.State() }

// Err returns the failure that moved the machine to Error.
func (m *Machine) Err() error { return m.err }

func (m *Machine) isCurrentGeneration(ev events.Event) bool {
	local, ok := ev.(events.Local)
	return ok && local.Generation == m.generation
}

func (m *Machine) post(ev events.Local) {
	m.bus.Enqueue(func() { m.fsm.Send(ev) })
}

func decodeReady(ev events.Event) (protocol.StreamReady, error) {
	var ready protocol.StreamReady
	if err := ev.(events.MessageReceived).Envelope.Decode(&ready); err != nil {
		return ready, err
	}
	if ready.Path == "" {
		return ready, fmt.Errorf("ready message has no path")
	}
	return ready, nil
}

func (m *Machine) isValidReady(ev events.Event) bool {
	_, err := decodeReady(ev)
	if err != nil {
		logger.Warn("Ignoring invalid stream ready message", "error", err)
	}
	return err == nil
}

func (m *Machine) storePath(ev events.Event) {
	ready, _ := decodeReady(ev)
	m.path = ready.Path
	m.muted = false
	m.err = nil
}

func (m *Machine) openStream(events.Event) {
	m.generation++
	generation := m.generation

	stream, err := m.dialer.OpenStream(m.ctx, m.path, m.sampleRate, transport.Handlers{
		OnOpen:  func() { m.post(events.NewLocal(events.KindStreamOpened, generation)) },
		OnError: func(err error) { m.post(events.NewLocal(events.KindStreamFailed, generation).WithErr(err)) },
		OnClose: func() { m.post(events.NewLocal(events.KindStreamClosed, generation)) },
	})
	if err != nil {
		m.fsm.Send(events.NewLocal(events.KindStreamFailed, generation).WithErr(err))
		return
	}
	m.stream = stream
}

func (m *Machine) closeStream() {
	m.generation++
	if m.stream == nil {
		return
	}
	if err := m.stream.Close(); err != nil {
		logger.Debug("Failed to close audio stream", "error", err)
	}
	m.stream = nil
}

func (m *Machine) startCapture(events.Event) {
	generation := m.generation
	session, err := m.capture.Start(m.ctx, m.sampleRate, func(chunk []byte) {
		m.post(events.NewLocal(events.KindStreamChunk, generation).WithData(chunk))
	})
	if err != nil {
		m.fsm.Send(events.NewLocal(events.KindCaptureFailed, generation).WithErr(err))
		return
	}
	session.SetMuted(m.muted)
	m.session = session
}

func (m *Machine) stopCapture() {
	if m.session == nil {
		return
	}
	if err := m.session.Stop(); err != nil {
		logger.Warn("Failed to stop capture", "error", err)
	}
	m.session = nil
}

func (m *Machine) forward(ev events.Event) {
	chunk := ev.(events.Local).Data
	if m.stream == nil || m.muted {
		return
	}
	if err := m.stream.SendBinary(chunk); err != nil {
		logger.Debug("Failed to forward audio chunk", "error", err)
		return
	}
	if m.sentBytes != nil {
		m.sentBytes.Add(m.ctx, int64(len(chunk)))
	}
}

func (m *Machine) setMuted(muted bool) func(events.Event) {
	return func(events.Event) {
		m.muted = muted
		if m.session != nil {
			m.session.SetMuted(muted)
		}
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

func (m *Machine) scheduleRetry(events.Event) {
	m.closeStream()
	generation := m.generation
	m.timer = m.clock.AfterFunc(m.retryDelay, func() {
		m.post(events.NewLocal(events.KindStreamRetryDue, generation))
	})
}

func (m *Machine) stopTimer() {
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
}

func (m *Machine) storeError(ev events.Event) {
	m.err = ev.(events.Local).Err
}

func (m *Machine) recordError(events.Event) {
	err := fmt.Errorf("audio streaming failed: %w", m.err)
	span := trace.SpanFromContext(m.ctx)
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	logger.Error("Audio streaming stopped", "error", err)
}
