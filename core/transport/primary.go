package transport

import (
	"context"
	"sync/atomic"

	"github.com/koscakluka/ema-face/core/events"
	"github.com/koscakluka/ema-face/core/protocol"
)

// Poster hands events to the dispatcher goroutine.
type Poster interface {
	Post(events.Event)
}

// Primary dials the JSON channel of a session. Every connection it opens
// reports its lifecycle as transport events tagged with the link ID, so
// consumers can ignore events of links they already dropped.
type Primary struct {
	poster  Poster
	options options
	lastID  atomic.Uint64
}

func NewPrimary(poster Poster, opts ...Option) *Primary {
	return &Primary{poster: poster, options: newOptions(opts)}
}

// PrimaryLink is one attempt at the primary channel.
type PrimaryLink struct {
	id   uint64
	conn *Conn
}

// Open starts dialing address. The result is reported as TransportConnected
// or TransportFailed followed by TransportClosed.
func (p *Primary) Open(ctx context.Context, address string) *PrimaryLink {
	id := p.lastID.Add(1)
	link := &PrimaryLink{id: id}
	link.conn = Open(ctx, p.options.dialer, address, p.options.header, Handlers{
		OnOpen:    func() { p.poster.Post(events.NewTransportConnected(id)) },
		OnError:   func(err error) { p.poster.Post(events.NewTransportFailed(id, err)) },
		OnClose:   func() { p.poster.Post(events.NewTransportClosed(id)) },
		OnMessage: func(data []byte) { p.poster.Post(events.NewTransportMessage(id, data)) },
	})
	return link
}

func (l *PrimaryLink) ID() uint64 { return l.id }

// Send writes env as a JSON text frame.
func (l *PrimaryLink) Send(env protocol.Envelope) error {
	return l.conn.SendJSON(env)
}

func (l *PrimaryLink) Close() error { return l.conn.Close() }

// Done is closed once the underlying connection goroutine exited.
func (l *PrimaryLink) Done() <-chan struct{} { return l.conn.Done() }
