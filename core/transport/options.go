package transport

import (
	"net/http"

	"github.com/gorilla/websocket"
)

type options struct {
	dialer *websocket.Dialer
	header http.Header
}

type Option func(*options)

// WithDialer replaces websocket.DefaultDialer.
func WithDialer(dialer *websocket.Dialer) Option {
	return func(o *options) { o.dialer = dialer }
}

// WithHeader sets headers sent with the handshake.
func WithHeader(header http.Header) Option {
	return func(o *options) { o.header = header }
}

func newOptions(opts []Option) options {
	o := options{dialer: websocket.DefaultDialer}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
