package face

import (
	"github.com/koscakluka/ema-face/core/bus"
	"github.com/koscakluka/ema-face/core/events"
	"github.com/koscakluka/ema-face/core/history"
	"github.com/koscakluka/ema-face/core/protocol"
)

type callbacks struct {
	onHistory      func(history.Entry)
	onGranted      func(protocol.Capability)
	onDisconnected func(error)
	onPlayback     func(playbackID string, playing bool)
	onEvent        func(events.Event)
}

func newCallbackObserver(cb callbacks) bus.Handler {
	return func(event events.Event) {
		if cb.onEvent != nil {
			cb.onEvent(event)
		}

		switch typedEvent := event.(type) {
		case events.CapabilityGranted:
			if cb.onGranted != nil {
				cb.onGranted(typedEvent.Capability)
			}
		case events.TransportDisconnected:
			if cb.onDisconnected != nil {
				cb.onDisconnected(typedEvent.Err)
			}
		case events.PlaybackStarted:
			if cb.onPlayback != nil {
				cb.onPlayback(typedEvent.PlaybackID, true)
			}
		case events.PlaybackEnded:
			if cb.onPlayback != nil {
				cb.onPlayback(typedEvent.PlaybackID, false)
			}
		}
	}
}

// logEvent is the bus diagnostics sink.
func logEvent(event events.Event) {
	switch typedEvent := event.(type) {
	case events.TransportMessage:
		logger.Debug("Bus event", "kind", event.Kind().String(), "link", typedEvent.Link, "bytes", len(typedEvent.Data))
	case events.MessageReceived:
		logger.Debug("Bus event", "kind", event.Kind().String(), "type", string(typedEvent.Envelope.Type))
	case events.SendRequested:
		logger.Debug("Bus event", "kind", event.Kind().String(), "type", string(typedEvent.Envelope.Type))
	default:
		logger.Debug("Bus event", "kind", event.Kind().String())
	}
}
