package events

import "github.com/koscakluka/ema-face/core/protocol"

// TransportDisconnected tells every feature that the session ended.
type TransportDisconnected struct {
	Base
	Err error
}

func NewTransportDisconnected(err error) TransportDisconnected {
	return TransportDisconnected{Base: NewBase(KindTransportDisconnected), Err: err}
}

type CapabilityGranted struct {
	Base
	Capability protocol.Capability
}

func NewCapabilityGranted(c protocol.Capability) CapabilityGranted {
	return CapabilityGranted{Base: NewBase(GrantedKind(c)), Capability: c}
}

type MessageReceived struct {
	Base
	Envelope protocol.Envelope
}

func NewMessageReceived(env protocol.Envelope) MessageReceived {
	return MessageReceived{Base: NewBase(ReceivedKind(env.Type)), Envelope: env}
}
