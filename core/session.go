// Package face is a client of the assistant's face protocol. A Session keeps
// a connection to the assistant, negotiates what both sides support and runs
// one state machine per feature on a shared event bus.
package face

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/koscakluka/ema-face/core/audio"
	"github.com/koscakluka/ema-face/core/audiooutput"
	"github.com/koscakluka/ema-face/core/audiostream"
	"github.com/koscakluka/ema-face/core/bus"
	"github.com/koscakluka/ema-face/core/config"
	"github.com/koscakluka/ema-face/core/connection"
	"github.com/koscakluka/ema-face/core/events"
	"github.com/koscakluka/ema-face/core/history"
	"github.com/koscakluka/ema-face/core/protocol"
	"github.com/koscakluka/ema-face/core/recognition"
	"github.com/koscakluka/ema-face/core/textinput"
	"github.com/koscakluka/ema-face/core/textoutput"
	"github.com/koscakluka/ema-face/core/transport"
	"github.com/koscakluka/ema-face/internal/clock"
)

var (
	ErrMissingServerAddress = errors.New("server address is required")
	ErrAlreadyRunning       = errors.New("session is already running")
)

type Session struct {
	id           string
	address      string
	config       config.Config
	requirements []protocol.CapabilityGroup

	capture        audio.Capture
	sink           audio.Sink
	engine         recognition.Engine
	player         audiooutput.Player
	primaryDialer  connection.Dialer
	streamDialer   audiostream.Dialer
	clock          clock.Clock
	reconnectDelay time.Duration
	eventLog       bool
	callbacks      callbacks

	bus     *bus.Bus
	history *history.History
	running atomic.Bool

	mu       sync.RWMutex
	machines *machines
	granted  []protocol.Capability
}

type machines struct {
	connection  *connection.Machine
	textInput   *textinput.Machine
	textOutput  *textoutput.Machine
	audioOutput *audiooutput.Machine
	audioStream *audiostream.Machine
	recognition *recognition.Machine
}

func NewSession(opts ...SessionOption) (*Session, error) {
	s := &Session{
		id:             uuid.NewString(),
		config:         config.Default(),
		clock:          clock.Real(),
		reconnectDelay: connection.DefaultReconnectDelay,
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.address == "" {
		return nil, ErrMissingServerAddress
	}
	if u, err := url.Parse(s.address); err != nil || (u.Scheme != "ws" && u.Scheme != "wss") || u.Host == "" {
		return nil, fmt.Errorf("server address %q is not a websocket address", s.address)
	}
	if err := s.config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	if s.player == nil && s.sink != nil {
		player, err := audiooutput.NewHTTPPlayer(s.address, s.sink)
		if err != nil {
			return nil, fmt.Errorf("failed to create audio player: %w", err)
		}
		s.player = player
	}
	if s.requirements == nil {
		s.requirements = config.Requirements(s.effectiveConfig(), s.capture != nil)
	}

	busOpts := []bus.Option{}
	if s.eventLog {
		busOpts = append(busOpts, bus.WithDiagnostics(logEvent))
	}
	s.bus = bus.New(busOpts...)
	s.bus.SubscribeAll(s.observe(newCallbackObserver(s.callbacks)))
	s.history = history.New(s.bus, history.WithAppendHook(func(entry history.Entry) {
		if s.callbacks.onHistory != nil {
			s.callbacks.onHistory(entry)
		}
	}))

	return s, nil
}

// effectiveConfig turns off audio features the session has no device for.
func (s *Session) effectiveConfig() config.Config {
	cfg := s.config
	cfg.AudioOutputEnabled = cfg.AudioOutputEnabled && s.player != nil
	cfg.AudioInputEnabled = cfg.AudioInputEnabled && (s.capture != nil || s.engine != nil)
	return cfg
}

func (s *Session) observe(next bus.Handler) bus.Handler {
	return func(ev events.Event) {
		switch typedEvent := ev.(type) {
		case events.CapabilityGranted:
			s.mu.Lock()
			s.granted = append(s.granted, typedEvent.Capability)
			s.mu.Unlock()
		case events.TransportDisconnected:
			s.mu.Lock()
			s.granted = nil
			s.mu.Unlock()
		}
		next(ev)
	}
}

func (s *Session) ID() string { return s.id }

func (s *Session) Requirements() []protocol.CapabilityGroup { return s.requirements }

// Run connects and serves the session until ctx is done. It returns nil
// when ctx ends the session.
func (s *Session) Run(ctx context.Context) error {
	if !s.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}

	ctx, span := tracer.Start(ctx, "session", trace.WithAttributes(
		attribute.String("session.id", s.id),
		attribute.String("server.address", s.address),
	))
	defer span.End()
	logger.Info("Starting session", "session_id", s.id, "server", s.address)

	s.bus.Enqueue(func() { s.start(ctx) })
	err := s.bus.Run(ctx)
	s.stop()

	logger.Info("Session ended", "session_id", s.id)
	if ctx.Err() != nil {
		return nil
	}
	return err
}

func (s *Session) start(ctx context.Context) {
	primaryDialer := s.primaryDialer
	if primaryDialer == nil {
		primary := transport.NewPrimary(s.bus)
		primaryDialer = connection.DialerFunc(func(ctx context.Context, address string) connection.Link {
			return primary.Open(ctx, address)
		})
	}

	m := &machines{
		textInput:  textinput.New(s.bus),
		textOutput: textoutput.New(s.bus),
		connection: connection.New(s.bus, primaryDialer, s.address, s.requirements,
			connection.WithClock(s.clock),
			connection.WithReconnectDelay(s.reconnectDelay),
			connection.WithContext(ctx)),
	}
	if s.engine != nil {
		m.recognition = recognition.New(s.bus, s.engine,
			recognition.WithSampleRate(s.config.MicrophoneSampleRate),
			recognition.WithContext(ctx))
	}
	if s.player != nil {
		m.audioOutput = audiooutput.New(s.bus, s.player,
			audiooutput.WithClock(s.clock),
			audiooutput.WithContext(ctx))
	}
	if s.capture != nil {
		streamDialer := s.streamDialer
		if streamDialer == nil {
			stream := transport.NewStream(s.address)
			streamDialer = audiostream.DialerFunc(func(ctx context.Context, path string, sampleRate int, handlers transport.Handlers) (audiostream.Stream, error) {
				conn, err := stream.OpenStream(ctx, path, sampleRate, handlers)
				if err != nil {
					return nil, err
				}
				return conn, nil
			})
		}
		m.audioStream = audiostream.New(s.bus, streamDialer, s.capture,
			audiostream.WithClock(s.clock),
			audiostream.WithSampleRate(s.config.MicrophoneSampleRate),
			audiostream.WithContext(ctx))
	}

	s.mu.Lock()
	s.machines = m
	s.mu.Unlock()

	// Features subscribe before the connection can grant anything.
	s.history.Start()
	m.textInput.Start()
	m.textOutput.Start()
	if m.recognition != nil {
		m.recognition.Start()
	}
	if m.audioOutput != nil {
		m.audioOutput.Start()
	}
	if m.audioStream != nil {
		m.audioStream.Start()
	}
	m.connection.Start()
}

func (s *Session) stop() {
	s.mu.RLock()
	m := s.machines
	s.mu.RUnlock()
	if m == nil {
		return
	}

	m.connection.Stop()
	if m.audioStream != nil {
		m.audioStream.Stop()
	}
	if m.audioOutput != nil {
		m.audioOutput.Stop()
	}
	if m.recognition != nil {
		m.recognition.Stop()
	}
	m.textOutput.Stop()
	m.textInput.Stop()
	s.history.Stop()
}

// SendCommand sends text typed by the user. It is dropped with a warning
// when no text capability is granted.
func (s *Session) SendCommand(text string) {
	if text == "" {
		return
	}
	s.bus.Post(events.NewTextCommand(text))
}

// History returns a copy of the dialog so far.
func (s *Session) History() []history.Entry { return s.history.Entries() }

// Granted returns the capabilities of the current negotiation.
func (s *Session) Granted() []protocol.Capability {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.granted)
}

// Status names the state of every machine. Machines that do not run in this
// session are left empty.
type Status struct {
	Connection  string
	TextInput   string
	TextOutput  string
	AudioOutput string
	AudioStream string
	Recognition string
}

func (s *Session) Status() Status {
	s.mu.RLock()
	m := s.machines
	s.mu.RUnlock()

	status := Status{}
	if m == nil {
		return status
	}
	status.Connection = m.connection.State().String()
	status.TextInput = m.textInput.State().String()
	status.TextOutput = m.textOutput.State().String()
	if m.recognition != nil {
		status.Recognition = m.recognition.State().String()
	}
	if m.audioOutput != nil {
		status.AudioOutput = m.audioOutput.State().String()
	}
	if m.audioStream != nil {
		status.AudioStream = m.audioStream.State().String()
	}
	return status
}
