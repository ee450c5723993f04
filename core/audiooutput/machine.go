// Package audiooutput plays audio links sent by the assistant and reports
// playback progress back to it.
package audiooutput

import (
	"context"
	"fmt"
	"time"

	"github.com/koscakluka/ema-face/core/bus"
	"github.com/koscakluka/ema-face/core/events"
	"github.com/koscakluka/ema-face/core/fsm"
	"github.com/koscakluka/ema-face/core/protocol"
	"github.com/koscakluka/ema-face/internal/clock"
	"github.com/koscakluka/ema-face/internal/utils"
)

const (
	DefaultProgressInterval = 1000 * time.Millisecond
	// PlaceholderText stands in the history for playbacks without alt text.
	PlaceholderText = "🔊"
)

// Player plays one audio link. done is called at most once, from any
// goroutine, when playback ends on its own or fails. It is not called after
// stop.
type Player interface {
	Play(ctx context.Context, request protocol.PlaybackRequest, done func(error)) (stop func(), err error)
}

type State int

const (
	Inactive State = iota
	Active
	Waiting
	Playing
)

func (s State) String() string {
	return [...]string{"Inactive", "Active", "Active.Waiting", "Active.Playing"}[s]
}

type Machine struct {
	ctx    context.Context
	bus    *bus.Bus
	player Player
	clock  clock.Clock

	progressInterval time.Duration

	fsm  *fsm.Machine[State]
	subs []*bus.Subscription

	queue      []protocol.PlaybackRequest
	current    *protocol.PlaybackRequest
	stop       func()
	ticker     clock.Timer
	generation uint64
}

type Option func(*Machine)

func WithClock(c clock.Clock) Option {
	return func(m *Machine) { m.clock = c }
}

func WithProgressInterval(interval time.Duration) Option {
	return func(m *Machine) { m.progressInterval = interval }
}

func WithContext(ctx context.Context) Option {
	return func(m *Machine) { m.ctx = ctx }
}

func New(b *bus.Bus, player Player, opts ...Option) *Machine {
	m := &Machine{
		ctx:              context.Background(),
		bus:              b,
		player:           player,
		clock:            clock.Real(),
		progressInterval: DefaultProgressInterval,
	}
	for _, opt := range opts {
		opt(m)
	}

	m.fsm = fsm.MustNew(fsm.Definition[State]{
		Name:    "audiooutput",
		Initial: Inactive,
		States: map[State]fsm.State[State]{
			Inactive: {
				On: map[events.Kind][]fsm.Transition[State]{
					events.KindAudioLinkGranted: {{Target: Waiting}},
				},
			},
			Active: {
				Exit: m.discardQueue,
				On: map[events.Kind][]fsm.Transition[State]{
					events.KindTransportDisconnected: {{Target: Inactive}},
				},
			},
			Waiting: {
				Parent: utils.Ptr(Active),
				Enter:  m.startQueued,
				On: map[events.Kind][]fsm.Transition[State]{
					events.KindPlaybackRequestReceived: {
						{Target: Playing, Guard: m.isValidRequest, Action: m.accept},
						{Internal: true, Action: m.reject},
					},
					events.KindPlaybackNext: {{Target: Playing, Guard: m.isCurrentGeneration, Action: m.dequeue}},
				},
			},
			Playing: {
				Parent: utils.Ptr(Active),
				Enter:  m.play,
				Exit:   m.release,
				On: map[events.Kind][]fsm.Transition[State]{
					events.KindPlaybackRequestReceived: {
						{Internal: true, Guard: m.isValidRequest, Action: m.enqueue},
						{Internal: true, Action: m.reject},
					},
					events.KindPlaybackTick:     {{Internal: true, Guard: m.isCurrentGeneration, Action: m.sendProgress}},
					events.KindPlaybackFinished: {{Target: Waiting, Guard: m.isCurrentGeneration, Action: m.sendDone}},
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

// Stop detaches from the bus and releases a running playback without
// reporting it.
func (m *Machine) Stop() {
	m.bus.UnsubscribeAll(m.subs)
	m.subs = nil
	if m.fsm.In(Playing) {
		m.stopResources()
	}
	m.queue = nil
}

func (m *Machine) State() State { return m.fsm.State() }

// Queued returns the number of requests waiting for the current playback.
func (m *Machine) Queued() int { return len(m.queue) }

func (m *Machine) isCurrentGeneration(ev events.Event) bool {
	local, ok := ev.(events.Local)
	return ok && local.Generation == m.generation
}

func decodeRequest(ev events.Event) (protocol.PlaybackRequest, error) {
	var request protocol.PlaybackRequest
	received, ok := ev.(events.MessageReceived)
	if !ok {
		return request, fmt.Errorf("unexpected event %s", ev.Kind())
	}
	if err := received.Envelope.Decode(&request); err != nil {
		return request, err
	}
	if request.URL == "" || request.PlaybackID == "" {
		return request, fmt.Errorf("playback request needs url and playbackId")
	}
	return request, nil
}

func (m *Machine) isValidRequest(ev events.Event) bool {
	_, err := decodeRequest(ev)
	return err == nil
}

func (m *Machine) reject(ev events.Event) {
	_, err := decodeRequest(ev)
	logger.Warn("Ignoring invalid playback request", "error", err)
}

func (m *Machine) mirror(request protocol.PlaybackRequest) {
	m.bus.Publish(events.NewHistoryAdd(events.DirectionOut, utils.Deref(request.AltText, PlaceholderText)))
}

func (m *Machine) accept(ev events.Event) {
	request, _ := decodeRequest(ev)
	m.mirror(request)
	m.current = &request
}

func (m *Machine) enqueue(ev events.Event) {
	request, _ := decodeRequest(ev)
	m.mirror(request)
	m.queue = append(m.queue, request)
	logger.Debug("Queued playback request", "playbackId", request.PlaybackID, "queued", len(m.queue))
}

func (m *Machine) dequeue(events.Event) {
	request := m.queue[0]
	m.queue = m.queue[1:]
	m.current = &request
}

func (m *Machine) startQueued(events.Event) {
	if len(m.queue) > 0 {
		m.fsm.Send(events.NewLocal(events.KindPlaybackNext, m.generation))
	}
}

func (m *Machine) discardQueue() {
	if len(m.queue) > 0 {
		logger.Debug("Discarding queued playback requests", "count", len(m.queue))
	}
	m.queue = nil
	m.current = nil
}

func (m *Machine) post(ev events.Local) {
	m.bus.Enqueue(func() { m.fsm.Send(ev) })
}

func (m *Machine) play(events.Event) {
	m.generation++
	generation := m.generation
	request := *m.current

	m.bus.Publish(events.NewPlaybackStarted(request.PlaybackID))

	m.ticker = m.clock.Every(m.progressInterval, func() {
		m.post(events.NewLocal(events.KindPlaybackTick, generation))
	})

	stop, err := m.player.Play(m.ctx, request, func(err error) {
		m.post(events.NewLocal(events.KindPlaybackFinished, generation).WithErr(err))
	})
	if err != nil {
		m.fsm.Send(events.NewLocal(events.KindPlaybackFinished, generation).WithErr(err))
		return
	}
	m.stop = stop
}

func (m *Machine) stopResources() {
	if m.ticker != nil {
		m.ticker.Stop()
		m.ticker = nil
	}
	if m.stop != nil {
		m.stop()
		m.stop = nil
	}
	m.generation++
}

func (m *Machine) release() {
	m.stopResources()
	if m.current != nil {
		m.bus.Publish(events.NewPlaybackEnded(m.current.PlaybackID))
	}
}

func (m *Machine) sendStatus(messageType protocol.MessageType) {
	if m.current == nil {
		return
	}
	env, err := protocol.NewEnvelope(messageType, protocol.PlaybackStatus{PlaybackID: m.current.PlaybackID})
	if err != nil {
		logger.Error("Failed to build playback status", "error", err)
		return
	}
	m.bus.Publish(events.NewSendRequested(env))
}

func (m *Machine) sendProgress(events.Event) {
	m.sendStatus(protocol.TypePlaybackProgress)
}

func (m *Machine) sendDone(ev events.Event) {
	if local, ok := ev.(events.Local); ok && local.Err != nil {
		logger.Warn("Playback failed", "playbackId", m.current.PlaybackID, "error", local.Err)
	}
	m.sendStatus(protocol.TypePlaybackDone)
	m.current = nil
}
