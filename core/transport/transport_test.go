package transport

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/koscakluka/ema-face/core/events"
	"github.com/koscakluka/ema-face/core/protocol"
)

type chanPoster chan events.Event

func (c chanPoster) Post(ev events.Event) { c <- ev }

func newEchoServer(t *testing.T, greeting string) string {
	t.Helper()
	upgrader := websocket.Upgrader{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer ws.Close()

		if greeting != "" {
			if err := ws.WriteMessage(websocket.TextMessage, []byte(greeting)); err != nil {
				return
			}
		}
		for {
			messageType, data, err := ws.ReadMessage()
			if err != nil {
				return
			}
			if err := ws.WriteMessage(messageType, data); err != nil {
				return
			}
		}
	}))
	t.Cleanup(server.Close)
	return "ws" + strings.TrimPrefix(server.URL, "http")
}

func waitFor(t *testing.T, ch chanPoster, kind events.Kind) events.Event {
	t.Helper()
	timeout := time.After(5 * time.Second)
	for {
		select {
		case ev := <-ch:
			if ev.Kind() == kind {
				return ev
			}
		case <-timeout:
			t.Fatalf("expected %s event, got none", kind)
			return nil
		}
	}
}

func waitDone(t *testing.T, done <-chan struct{}) {
	t.Helper()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatalf("expected connection goroutine to exit")
	}
}

func TestPrimaryReportsLifecycleTaggedWithLink(t *testing.T) {
	address := newEchoServer(t, "hello")
	posted := make(chanPoster, 16)
	primary := NewPrimary(posted)

	link := primary.Open(context.Background(), address)

	connected := waitFor(t, posted, events.KindTransportConnected).(events.TransportConnected)
	if connected.Link != link.ID() {
		t.Fatalf("expected link %d, got %d", link.ID(), connected.Link)
	}

	greeting := waitFor(t, posted, events.KindTransportMessage).(events.TransportMessage)
	if string(greeting.Data) != "hello" {
		t.Fatalf("expected greeting %q, got %q", "hello", greeting.Data)
	}

	env, err := protocol.NewEnvelope(protocol.TypeTextDirectText, protocol.Text{Text: "hi"})
	if err != nil {
		t.Fatalf("expected envelope, got error: %v", err)
	}
	if err := link.Send(env); err != nil {
		t.Fatalf("expected send to succeed, got: %v", err)
	}

	echo := waitFor(t, posted, events.KindTransportMessage).(events.TransportMessage)
	parsed, err := protocol.ParseEnvelope(echo.Data)
	if err != nil {
		t.Fatalf("expected echoed envelope, got error: %v", err)
	}
	if parsed.Type != protocol.TypeTextDirectText {
		t.Fatalf("expected type %q, got %q", protocol.TypeTextDirectText, parsed.Type)
	}

	if err := link.Close(); err != nil {
		t.Fatalf("expected close to succeed, got: %v", err)
	}
	waitDone(t, link.Done())
}

func TestPrimaryLinksGetDistinctIDs(t *testing.T) {
	primary := NewPrimary(make(chanPoster, 16))
	first := primary.Open(context.Background(), "ws://127.0.0.1:1/ws")
	second := primary.Open(context.Background(), "ws://127.0.0.1:1/ws")
	defer first.Close()
	defer second.Close()

	if first.ID() == second.ID() {
		t.Fatalf("expected distinct link IDs, both are %d", first.ID())
	}
}

func TestDialFailureReportsFailedThenClosed(t *testing.T) {
	posted := make(chanPoster, 16)
	link := NewPrimary(posted).Open(context.Background(), "ws://127.0.0.1:1/ws")

	failed := waitFor(t, posted, events.KindTransportFailed).(events.TransportFailed)
	var transportErr *Error
	if !errors.As(failed.Err, &transportErr) || transportErr.Op != "dial" {
		t.Fatalf("expected dial transport error, got %v", failed.Err)
	}
	waitFor(t, posted, events.KindTransportClosed)
	waitDone(t, link.Done())

	env, _ := protocol.NewEnvelope(protocol.TypeTextDirectText, protocol.Text{Text: "hi"})
	if err := link.Send(env); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("expected ErrNotConnected, got %v", err)
	}
}

func TestCloseDetachesHandlersAndIsRepeatable(t *testing.T) {
	address := newEchoServer(t, "")
	opened := make(chan struct{})
	calls := make(chan string, 8)
	conn := Open(context.Background(), nil, address, nil, Handlers{
		OnOpen:  func() { close(opened) },
		OnError: func(error) { calls <- "error" },
		OnClose: func() { calls <- "close" },
	})

	select {
	case <-opened:
	case <-time.After(5 * time.Second):
		t.Fatalf("expected connection to open")
	}

	if err := conn.Close(); err != nil {
		t.Fatalf("expected first close to succeed, got: %v", err)
	}
	if err := conn.Close(); err != nil {
		t.Fatalf("expected second close to be a noop, got: %v", err)
	}
	waitDone(t, conn.Done())

	select {
	case call := <-calls:
		t.Fatalf("expected no handler after close, got %s", call)
	default:
	}
	if err := conn.SendBinary([]byte{1}); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("expected ErrNotConnected after close, got %v", err)
	}
}

func TestStreamForwardsBinaryFrames(t *testing.T) {
	address := newEchoServer(t, "")
	opened := make(chan struct{})
	received := make(chan []byte, 1)

	stream := NewStream(address + "/api/face_web/ws")
	conn, err := stream.OpenStream(context.Background(), "/stream", 16000, Handlers{
		OnOpen:   func() { close(opened) },
		OnBinary: func(data []byte) { received <- data },
	})
	if err != nil {
		t.Fatalf("expected stream to open, got: %v", err)
	}
	defer func() {
		conn.Close()
		waitDone(t, conn.Done())
	}()

	select {
	case <-opened:
	case <-time.After(5 * time.Second):
		t.Fatalf("expected stream to open")
	}
	if err := conn.SendBinary([]byte{1, 2, 3}); err != nil {
		t.Fatalf("expected binary send to succeed, got: %v", err)
	}

	select {
	case data := <-received:
		if string(data) != string([]byte{1, 2, 3}) {
			t.Fatalf("expected chunk to be echoed verbatim, got %v", data)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("expected echoed chunk")
	}
}

func TestStreamURL(t *testing.T) {
	testCases := []struct {
		name       string
		primary    string
		path       string
		sampleRate int
		expected   string
	}{
		{
			name:       "plain",
			primary:    "ws://localhost:8080/api/face_web/ws",
			path:       "/api/stt/stream",
			sampleRate: 16000,
			expected:   "ws://localhost:8080/api/stt/stream?sample_rate=16000",
		},
		{
			name:       "secure with query",
			primary:    "wss://ema.example/api/face_web/ws?token=a",
			path:       "/stream/1?session=b",
			sampleRate: 48000,
			expected:   "wss://ema.example/stream/1?sample_rate=48000&session=b",
		},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			got, err := StreamURL(testCase.primary, testCase.path, testCase.sampleRate)
			if err != nil {
				t.Fatalf("expected no error, got: %v", err)
			}
			if got != testCase.expected {
				t.Fatalf("expected %q, got %q", testCase.expected, got)
			}
		})
	}

	if _, err := StreamURL("not a url", "/stream", 16000); err == nil {
		t.Fatalf("expected error for address without host")
	}
}

func newClosingServer(t *testing.T, payload []byte) string {
	t.Helper()
	upgrader := websocket.Upgrader{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer ws.Close()

		if err := ws.WriteControl(websocket.CloseMessage, payload, time.Now().Add(time.Second)); err != nil {
			return
		}
		// Wait for the client to answer the close frame.
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				return
			}
		}
	}))
	t.Cleanup(server.Close)
	return "ws" + strings.TrimPrefix(server.URL, "http")
}

func TestCloseFrameFromPeerIsNotAnError(t *testing.T) {
	testCases := []struct {
		name    string
		payload []byte
	}{
		{name: "normal", payload: websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")},
		{name: "application code", payload: websocket.FormatCloseMessage(4000, "reconnect")},
		{name: "internal server error", payload: websocket.FormatCloseMessage(websocket.CloseInternalServerErr, "")},
		{name: "no status", payload: []byte{}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			address := newClosingServer(t, tc.payload)
			calls := make(chan string, 8)
			conn := Open(context.Background(), nil, address, nil, Handlers{
				OnError: func(err error) { calls <- "error: " + err.Error() },
				OnClose: func() { calls <- "close" },
			})
			waitDone(t, conn.Done())

			select {
			case call := <-calls:
				if call != "close" {
					t.Fatalf("expected only a close, got %s", call)
				}
			default:
				t.Fatalf("expected a close")
			}
			select {
			case call := <-calls:
				t.Fatalf("expected a single close, also got %s", call)
			default:
			}
		})
	}
}
