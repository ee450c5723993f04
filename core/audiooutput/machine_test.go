package audiooutput

import (
	"context"
	"errors"
	"math/rand"
	"strconv"
	"testing"
	"time"

	"github.com/koscakluka/ema-face/core/bus"
	"github.com/koscakluka/ema-face/core/events"
	"github.com/koscakluka/ema-face/core/protocol"
	"github.com/koscakluka/ema-face/internal/clock"
	"github.com/koscakluka/ema-face/internal/utils"
)

type fakePlayback struct {
	request protocol.PlaybackRequest
	done    func(error)
	stopped bool
}

type fakePlayer struct {
	plays []*fakePlayback
	err   error
}

func (p *fakePlayer) Play(_ context.Context, request protocol.PlaybackRequest, done func(error)) (func(), error) {
	if p.err != nil {
		return nil, p.err
	}
	playback := &fakePlayback{request: request, done: done}
	p.plays = append(p.plays, playback)
	return func() { playback.stopped = true }, nil
}

func (p *fakePlayer) last() *fakePlayback { return p.plays[len(p.plays)-1] }

type harness struct {
	bus    *bus.Bus
	clock  *clock.Manual
	player *fakePlayer
	m      *Machine

	sent    []protocol.Envelope
	history []events.HistoryAdd
	started int
	ended   int
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{bus: bus.New(), clock: clock.NewManual(), player: &fakePlayer{}}
	h.bus.Subscribe(events.KindSendRequested, func(ev events.Event) {
		h.sent = append(h.sent, ev.(events.SendRequested).Envelope)
	})
	h.bus.Subscribe(events.KindHistoryAdd, func(ev events.Event) {
		h.history = append(h.history, ev.(events.HistoryAdd))
	})
	h.bus.Subscribe(events.KindPlaybackStarted, func(events.Event) { h.started++ })
	h.bus.Subscribe(events.KindPlaybackEnded, func(events.Event) { h.ended++ })

	h.m = New(h.bus, h.player, WithClock(h.clock))
	h.m.Start()
	t.Cleanup(h.m.Stop)
	return h
}

func (h *harness) request(t *testing.T, id string, altText *string) {
	t.Helper()
	env, err := protocol.NewEnvelope(protocol.TypePlaybackRequest, protocol.PlaybackRequest{
		URL:        "/api/web-audio-link-output/files/" + id + ".wav",
		PlaybackID: id,
		AltText:    altText,
	})
	if err != nil {
		t.Fatalf("expected envelope, got error: %v", err)
	}
	h.bus.Publish(events.NewMessageReceived(env))
}

func (h *harness) sentOfType(messageType protocol.MessageType) []string {
	ids := []string{}
	for _, env := range h.sent {
		if env.Type != messageType {
			continue
		}
		var status protocol.PlaybackStatus
		if err := env.Decode(&status); err == nil {
			ids = append(ids, status.PlaybackID)
		}
	}
	return ids
}

func TestDisconnectWhilePlayingReleasesPlayback(t *testing.T) {
	h := newHarness(t)
	h.bus.Publish(events.NewCapabilityGranted(protocol.AudioLink))
	if h.m.State() != Waiting {
		t.Fatalf("expected Waiting, got %s", h.m.State())
	}

	h.request(t, "p1", nil)

	if len(h.history) != 1 || h.history[0].Direction != events.DirectionOut || h.history[0].Text != PlaceholderText {
		t.Fatalf("expected one placeholder history entry, got %+v", h.history)
	}
	if h.m.State() != Playing || h.started != 1 {
		t.Fatalf("expected Playing with one start, got %s with %d", h.m.State(), h.started)
	}
	if h.clock.Pending() != 1 {
		t.Fatalf("expected a progress ticker, got %d timers", h.clock.Pending())
	}

	h.bus.Publish(events.NewTransportDisconnected(nil))

	if h.m.State() != Inactive {
		t.Fatalf("expected Inactive, got %s", h.m.State())
	}
	if !h.player.last().stopped {
		t.Fatalf("expected playback to be stopped")
	}
	if h.clock.Pending() != 0 {
		t.Fatalf("expected ticker to be released, got %d timers", h.clock.Pending())
	}
	if h.ended != 1 {
		t.Fatalf("expected one end, got %d", h.ended)
	}
	if done := h.sentOfType(protocol.TypePlaybackDone); len(done) != 0 {
		t.Fatalf("expected no done message after disconnect, got %v", done)
	}

	h.player.last().done(nil)
	h.bus.Drain()
	if len(h.sent) != 0 || h.m.State() != Inactive {
		t.Fatalf("expected late completion to be ignored, got %v in %s", h.sent, h.m.State())
	}
}

func TestProgressAndCompletion(t *testing.T) {
	h := newHarness(t)
	h.bus.Publish(events.NewCapabilityGranted(protocol.AudioLink))
	h.request(t, "p1", utils.Ptr("Hello there"))

	if h.history[0].Text != "Hello there" {
		t.Fatalf("expected alt text in history, got %q", h.history[0].Text)
	}

	h.clock.Advance(DefaultProgressInterval - time.Millisecond)
	h.bus.Drain()
	if progress := h.sentOfType(protocol.TypePlaybackProgress); len(progress) != 0 {
		t.Fatalf("expected no progress before the interval, got %v", progress)
	}

	h.clock.Advance(2*DefaultProgressInterval + time.Millisecond)
	h.bus.Drain()
	if progress := h.sentOfType(protocol.TypePlaybackProgress); len(progress) != 3 || progress[0] != "p1" {
		t.Fatalf("expected three progress messages for p1, got %v", progress)
	}

	h.player.last().done(nil)
	h.bus.Drain()

	if h.m.State() != Waiting {
		t.Fatalf("expected Waiting after completion, got %s", h.m.State())
	}
	if done := h.sentOfType(protocol.TypePlaybackDone); len(done) != 1 || done[0] != "p1" {
		t.Fatalf("expected one done message for p1, got %v", done)
	}
	if h.started != 1 || h.ended != 1 {
		t.Fatalf("expected balanced start and end, got %d and %d", h.started, h.ended)
	}
	if h.clock.Pending() != 0 {
		t.Fatalf("expected ticker to be released, got %d timers", h.clock.Pending())
	}
}

func TestFailedPlaybackStillReportsDone(t *testing.T) {
	h := newHarness(t)
	h.player.err = errors.New("no audio device")
	h.bus.Publish(events.NewCapabilityGranted(protocol.AudioLink))
	h.request(t, "p1", nil)

	if h.m.State() != Waiting {
		t.Fatalf("expected Waiting after failed start, got %s", h.m.State())
	}
	if done := h.sentOfType(protocol.TypePlaybackDone); len(done) != 1 {
		t.Fatalf("expected done message for failed playback, got %v", done)
	}
	if h.started != 1 || h.ended != 1 {
		t.Fatalf("expected balanced start and end, got %d and %d", h.started, h.ended)
	}
}

func TestRequestsWhilePlayingAreQueued(t *testing.T) {
	h := newHarness(t)
	h.bus.Publish(events.NewCapabilityGranted(protocol.AudioLink))
	h.request(t, "p1", nil)
	h.request(t, "p2", utils.Ptr("second"))

	if len(h.history) != 2 || h.history[1].Text != "second" {
		t.Fatalf("expected queued request to be mirrored immediately, got %+v", h.history)
	}
	if len(h.player.plays) != 1 || h.m.Queued() != 1 {
		t.Fatalf("expected one playback and one queued, got %d and %d", len(h.player.plays), h.m.Queued())
	}

	h.player.last().done(nil)
	h.bus.Drain()

	if h.m.State() != Playing || len(h.player.plays) != 2 || h.player.last().request.PlaybackID != "p2" {
		t.Fatalf("expected p2 to start after p1, got %s with %d plays", h.m.State(), len(h.player.plays))
	}
	if h.started != 2 || h.ended != 1 {
		t.Fatalf("expected two starts and one end, got %d and %d", h.started, h.ended)
	}
}

func TestInvalidRequestIsIgnored(t *testing.T) {
	h := newHarness(t)
	h.bus.Publish(events.NewCapabilityGranted(protocol.AudioLink))

	env, _ := protocol.NewEnvelope(protocol.TypePlaybackRequest, map[string]any{"url": ""})
	h.bus.Publish(events.NewMessageReceived(env))

	if h.m.State() != Waiting || len(h.history) != 0 {
		t.Fatalf("expected invalid request to be ignored, got %s with %d entries", h.m.State(), len(h.history))
	}
}

func TestStartedAndEndedStayBalanced(t *testing.T) {
	h := newHarness(t)
	rng := rand.New(rand.NewSource(42))

	for i := range 500 {
		switch rng.Intn(5) {
		case 0:
			h.bus.Publish(events.NewCapabilityGranted(protocol.AudioLink))
		case 1, 2:
			h.request(t, "p"+strconv.Itoa(i), nil)
		case 3:
			if len(h.player.plays) > 0 {
				h.player.plays[rng.Intn(len(h.player.plays))].done(nil)
				h.bus.Drain()
			}
		case 4:
			h.bus.Publish(events.NewTransportDisconnected(nil))
		}

		running := h.started - h.ended
		if running < 0 || running > 1 {
			t.Fatalf("step %d: expected at most one running playback, got %d", i, running)
		}
		if (running == 1) != (h.m.State() == Playing) {
			t.Fatalf("step %d: expected running playbacks to match state %s, got %d", i, h.m.State(), running)
		}
	}

	h.bus.Publish(events.NewTransportDisconnected(nil))
	if h.started != h.ended {
		t.Fatalf("expected balanced counts after disconnect, got %d and %d", h.started, h.ended)
	}
}
