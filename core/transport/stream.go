package transport

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
)

// Stream dials secondary binary connections next to a primary channel.
// Their events go to private handlers instead of the bus.
type Stream struct {
	primaryAddress string
	options        options
}

func NewStream(primaryAddress string, opts ...Option) *Stream {
	return &Stream{primaryAddress: primaryAddress, options: newOptions(opts)}
}

// OpenStream dials the stream the server announced at path.
func (s *Stream) OpenStream(ctx context.Context, path string, sampleRate int, handlers Handlers) (*Conn, error) {
	address, err := StreamURL(s.primaryAddress, path, sampleRate)
	if err != nil {
		return nil, err
	}
	logger.Debug("Opening audio stream", "address", address)
	return Open(ctx, s.options.dialer, address, s.options.header, handlers), nil
}

// StreamURL builds the address of a secondary stream: scheme and host of the
// primary channel, the announced path and the sample rate as query.
func StreamURL(primaryAddress, path string, sampleRate int) (string, error) {
	primary, err := url.Parse(primaryAddress)
	if err != nil {
		return "", fmt.Errorf("failed to parse primary address: %w", err)
	}
	if primary.Scheme == "" || primary.Host == "" {
		return "", fmt.Errorf("primary address %q has no scheme or host", primaryAddress)
	}

	announced, err := url.Parse(path)
	if err != nil {
		return "", fmt.Errorf("failed to parse stream path: %w", err)
	}

	query := announced.Query()
	query.Set("sample_rate", strconv.Itoa(sampleRate))

	stream := url.URL{
		Scheme:   primary.Scheme,
		Host:     primary.Host,
		Path:     announced.Path,
		RawQuery: query.Encode(),
	}
	return stream.String(), nil
}
