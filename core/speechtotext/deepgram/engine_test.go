package deepgram

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/koscakluka/ema-face/core/audio"
)

type fakeSession struct {
	mu      sync.Mutex
	stopped bool
}

func (s *fakeSession) SetMuted(bool) {}

func (s *fakeSession) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = true
	return nil
}

type fakeCapture struct {
	mu      sync.Mutex
	onChunk func([]byte)
	session *fakeSession
	err     error
}

func (c *fakeCapture) Start(_ context.Context, _ int, onChunk func([]byte)) (audio.CaptureSession, error) {
	if c.err != nil {
		return nil, c.err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onChunk = onChunk
	c.session = &fakeSession{}
	return c.session, nil
}

func (c *fakeCapture) send(chunk []byte) {
	c.mu.Lock()
	onChunk := c.onChunk
	c.mu.Unlock()
	onChunk(chunk)
}

// fakeListenServer answers every non silent audio chunk with a final result
// whose transcript is the chunk's text.
type fakeListenServer struct {
	*httptest.Server

	query  chan string
	header chan string
	audio  chan []byte
}

func newFakeListenServer(t *testing.T) *fakeListenServer {
	t.Helper()
	s := &fakeListenServer{
		query:  make(chan string, 1),
		header: make(chan string, 1),
		audio:  make(chan []byte, 16),
	}
	upgrader := websocket.Upgrader{}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.query <- r.URL.RawQuery
		s.header <- r.Header.Get("Authorization")
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		for {
			msgType, msg, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if msgType != websocket.BinaryMessage || len(bytes.Trim(msg, "\x00")) == 0 {
				continue
			}
			s.audio <- msg
			if err := conn.WriteMessage(websocket.TextMessage, results(string(msg), true, true)); err != nil {
				return
			}
		}
	}))
	t.Cleanup(s.Close)
	return s
}

func (s *fakeListenServer) listenURL() string {
	return "ws" + strings.TrimPrefix(s.URL, "http") + "/v1/listen"
}

func receive[T any](t *testing.T, ch <-chan T) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(2 * time.Second):
		t.Fatalf("expected a value in time")
		var zero T
		return zero
	}
}

func TestEngineRecognizesCapturedSpeech(t *testing.T) {
	server := newFakeListenServer(t)
	capture := &fakeCapture{}
	engine := NewEngine(capture, WithClientOptions(WithAPIKey("test-key"), WithListenURL(server.listenURL())))

	recognized := make(chan string, 4)
	recognizer, err := engine.Start(context.Background(), 16000, func(text string) { recognized <- text })
	if err != nil {
		t.Fatalf("expected engine to start, got %v", err)
	}
	defer recognizer.Stop()

	query := receive(t, server.query)
	for _, param := range []string{"encoding=linear16", "sample_rate=16000", "channels=1", "model=nova-3"} {
		if !strings.Contains(query, param) {
			t.Fatalf("expected %q in listen query %q", param, query)
		}
	}
	if got := receive(t, server.header); got != "Token test-key" {
		t.Fatalf("expected token authorization, got %q", got)
	}

	capture.send([]byte("hello there"))
	if got := receive(t, recognized); got != "hello there" {
		t.Fatalf("expected recognized text, got %q", got)
	}
}

func TestEngineDropsAudioWhileSuppressed(t *testing.T) {
	server := newFakeListenServer(t)
	capture := &fakeCapture{}
	engine := NewEngine(capture, WithClientOptions(WithAPIKey("test-key"), WithListenURL(server.listenURL())))

	recognized := make(chan string, 4)
	recognizer, err := engine.Start(context.Background(), 16000, func(text string) { recognized <- text })
	if err != nil {
		t.Fatalf("expected engine to start, got %v", err)
	}
	defer recognizer.Stop()

	recognizer.SetSuppressed(true)
	capture.send([]byte("assistant voice"))
	recognizer.SetSuppressed(false)
	capture.send([]byte("user voice"))

	if got := receive(t, server.audio); string(got) != "user voice" {
		t.Fatalf("expected suppressed audio to be dropped, got %q", got)
	}
	if got := receive(t, recognized); got != "user voice" {
		t.Fatalf("expected recognized user voice, got %q", got)
	}
}

func TestEngineStopReleasesCapture(t *testing.T) {
	server := newFakeListenServer(t)
	capture := &fakeCapture{}
	engine := NewEngine(capture, WithClientOptions(WithAPIKey("test-key"), WithListenURL(server.listenURL())))

	recognizer, err := engine.Start(context.Background(), 16000, func(string) {})
	if err != nil {
		t.Fatalf("expected engine to start, got %v", err)
	}

	if err := recognizer.Stop(); err != nil {
		t.Fatalf("expected clean stop, got %v", err)
	}
	if err := recognizer.Stop(); err != nil {
		t.Fatalf("expected second stop to be a noop, got %v", err)
	}
	capture.session.mu.Lock()
	defer capture.session.mu.Unlock()
	if !capture.session.stopped {
		t.Fatalf("expected capture session to be stopped")
	}
}

func TestEngineStartFailures(t *testing.T) {
	t.Run("missing api key", func(t *testing.T) {
		t.Setenv(apiKeyEnv, "")
		engine := NewEngine(&fakeCapture{}, WithClientOptions(WithListenURL("ws://127.0.0.1:1/v1/listen")))

		_, err := engine.Start(context.Background(), 16000, func(string) {})
		if !errors.Is(err, ErrMissingAPIKey) {
			t.Fatalf("expected missing key error, got %v", err)
		}
	})

	t.Run("capture unavailable", func(t *testing.T) {
		server := newFakeListenServer(t)
		deviceErr := &audio.CaptureDeviceError{Device: "default", Err: errors.New("busy")}
		engine := NewEngine(&fakeCapture{err: deviceErr},
			WithClientOptions(WithAPIKey("test-key"), WithListenURL(server.listenURL())))

		_, err := engine.Start(context.Background(), 16000, func(string) {})
		var captureErr *audio.CaptureDeviceError
		if !errors.As(err, &captureErr) {
			t.Fatalf("expected capture device error, got %v", err)
		}
	})
}
