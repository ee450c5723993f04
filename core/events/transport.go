package events

// TransportConnected reports that the primary connection identified by Link
// opened.
type TransportConnected struct {
	Base
	Link uint64
}

func NewTransportConnected(link uint64) TransportConnected {
	return TransportConnected{Base: NewBase(KindTransportConnected), Link: link}
}

// TransportFailed reports a connection level error on Link.
type TransportFailed struct {
	Base
	Link uint64
	Err  error
}

func NewTransportFailed(link uint64, err error) TransportFailed {
	return TransportFailed{Base: NewBase(KindTransportFailed), Link: link, Err: err}
}

// TransportClosed reports that Link closed.
type TransportClosed struct {
	Base
	Link uint64
}

func NewTransportClosed(link uint64) TransportClosed {
	return TransportClosed{Base: NewBase(KindTransportClosed), Link: link}
}

// TransportMessage carries one raw text frame received on Link.
type TransportMessage struct {
	Base
	Link uint64
	Data []byte
}

func NewTransportMessage(link uint64, data []byte) TransportMessage {
	return TransportMessage{Base: NewBase(KindTransportMessage), Link: link, Data: data}
}
