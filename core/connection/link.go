package connection

import (
	"context"

	"github.com/koscakluka/ema-face/core/protocol"
)

// Link is one attempt at the primary channel. Its lifecycle is reported on
// the bus as transport events carrying ID.
type Link interface {
	ID() uint64
	Send(env protocol.Envelope) error
	Close() error
}

type Dialer interface {
	Dial(ctx context.Context, address string) Link
}

type DialerFunc func(ctx context.Context, address string) Link

func (f DialerFunc) Dial(ctx context.Context, address string) Link { return f(ctx, address) }
