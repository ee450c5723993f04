package face

import (
	"time"

	"github.com/koscakluka/ema-face/core/audio"
	"github.com/koscakluka/ema-face/core/audiooutput"
	"github.com/koscakluka/ema-face/core/audiostream"
	"github.com/koscakluka/ema-face/core/config"
	"github.com/koscakluka/ema-face/core/connection"
	"github.com/koscakluka/ema-face/core/events"
	"github.com/koscakluka/ema-face/core/history"
	"github.com/koscakluka/ema-face/core/protocol"
	"github.com/koscakluka/ema-face/core/recognition"
	"github.com/koscakluka/ema-face/internal/clock"
)

type SessionOption func(*Session)

// WithServerAddress sets the websocket address of the primary channel, for
// example ws://localhost:8086/api/face_web/ws.
func WithServerAddress(address string) SessionOption {
	return func(s *Session) { s.address = address }
}

func WithConfig(cfg config.Config) SessionOption {
	return func(s *Session) { s.config = cfg }
}

// WithCapture enables streaming microphone audio to the server.
func WithCapture(capture audio.Capture) SessionOption {
	return func(s *Session) { s.capture = capture }
}

// WithSink enables playing assistant audio.
func WithSink(sink audio.Sink) SessionOption {
	return func(s *Session) { s.sink = sink }
}

// WithRecognitionEngine enables recognizing speech on the client.
func WithRecognitionEngine(engine recognition.Engine) SessionOption {
	return func(s *Session) { s.engine = engine }
}

// WithRequirements replaces the capability groups derived from the config.
func WithRequirements(groups []protocol.CapabilityGroup) SessionOption {
	return func(s *Session) { s.requirements = groups }
}

func WithClock(c clock.Clock) SessionOption {
	return func(s *Session) { s.clock = c }
}

func WithReconnectDelay(delay time.Duration) SessionOption {
	return func(s *Session) { s.reconnectDelay = delay }
}

// WithPrimaryDialer replaces the websocket dialer of the primary channel.
func WithPrimaryDialer(dialer connection.Dialer) SessionOption {
	return func(s *Session) { s.primaryDialer = dialer }
}

// WithStreamDialer replaces the websocket dialer of audio streams.
func WithStreamDialer(dialer audiostream.Dialer) SessionOption {
	return func(s *Session) { s.streamDialer = dialer }
}

// WithPlayer replaces the HTTP player built from the sink.
func WithPlayer(player audiooutput.Player) SessionOption {
	return func(s *Session) { s.player = player }
}

// WithEventLog mirrors every bus event to the debug log.
func WithEventLog() SessionOption {
	return func(s *Session) { s.eventLog = true }
}

// WithHistoryCallback is called on the dispatcher goroutine for each new
// history entry.
func WithHistoryCallback(callback func(history.Entry)) SessionOption {
	return func(s *Session) { s.callbacks.onHistory = callback }
}

// WithGrantedCallback is called for every capability the server agreed to.
func WithGrantedCallback(callback func(protocol.Capability)) SessionOption {
	return func(s *Session) { s.callbacks.onGranted = callback }
}

// WithDisconnectedCallback is called whenever the session loses the server.
func WithDisconnectedCallback(callback func(err error)) SessionOption {
	return func(s *Session) { s.callbacks.onDisconnected = callback }
}

// WithPlaybackCallback is called when assistant audio starts and stops.
func WithPlaybackCallback(callback func(playbackID string, playing bool)) SessionOption {
	return func(s *Session) { s.callbacks.onPlayback = callback }
}

// WithEventCallback observes every bus event.
func WithEventCallback(callback func(events.Event)) SessionOption {
	return func(s *Session) { s.callbacks.onEvent = callback }
}
