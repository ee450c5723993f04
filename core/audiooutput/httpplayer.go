package audiooutput

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/koscakluka/ema-face/core/audio"
	"github.com/koscakluka/ema-face/core/protocol"
)

const sendChunkDuration = 100 * time.Millisecond

// HTTPPlayer downloads WAV audio links relative to the assistant server and
// plays them on a Sink.
type HTTPPlayer struct {
	base   *url.URL
	client *http.Client
	sink   audio.Sink
}

type HTTPPlayerOption func(*HTTPPlayer)

func WithHTTPClient(client *http.Client) HTTPPlayerOption {
	return func(p *HTTPPlayer) { p.client = client }
}

// NewHTTPPlayer resolves playback URLs against serverAddress. Websocket
// addresses are mapped to their HTTP counterparts.
func NewHTTPPlayer(serverAddress string, sink audio.Sink, opts ...HTTPPlayerOption) (*HTTPPlayer, error) {
	base, err := HTTPBase(serverAddress)
	if err != nil {
		return nil, err
	}

	p := &HTTPPlayer{
		base:   base,
		client: &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)},
		sink:   sink,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// HTTPBase returns the HTTP origin of a server address.
func HTTPBase(address string) (*url.URL, error) {
	u, err := url.Parse(address)
	if err != nil {
		return nil, fmt.Errorf("failed to parse server address: %w", err)
	}
	switch u.Scheme {
	case "ws":
		u.Scheme = "http"
	case "wss":
		u.Scheme = "https"
	case "http", "https":
	default:
		return nil, fmt.Errorf("unsupported server address scheme %q", u.Scheme)
	}
	return &url.URL{Scheme: u.Scheme, Host: u.Host, Path: "/"}, nil
}

func (p *HTTPPlayer) Play(ctx context.Context, request protocol.PlaybackRequest, done func(error)) (func(), error) {
	target, err := p.base.Parse(request.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid playback url: %w", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	playback := &httpPlayback{id: uuid.NewString(), cancel: cancel, sink: p.sink, done: done}
	go playback.run(ctx, p.client, target.String(), request.PlaybackID)
	return playback.stop, nil
}

type httpPlayback struct {
	id     string
	cancel context.CancelFunc
	sink   audio.Sink
	done   func(error)

	stopped atomic.Bool
	once    sync.Once
}

func (p *httpPlayback) finish(err error) {
	if p.stopped.Load() {
		return
	}
	p.once.Do(func() { p.done(err) })
}

func (p *httpPlayback) stop() {
	if p.stopped.Swap(true) {
		return
	}
	p.cancel()
	p.sink.ClearBuffer()
}

func (p *httpPlayback) run(ctx context.Context, client *http.Client, target, playbackID string) {
	ctx, span := tracer.Start(ctx, "play audio link")
	defer span.End()
	span.SetAttributes(
		attribute.String("playback.id", playbackID),
		attribute.String("playback.element", p.id),
		attribute.String("url", target),
	)

	err := p.stream(ctx, client, target, playbackID)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		p.finish(err)
	}
}

func (p *httpPlayback) stream(ctx context.Context, client *http.Client, target, playbackID string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to fetch audio: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("failed to fetch audio: unexpected status %s", resp.Status)
	}

	wav, err := audio.DecodeWAV(resp.Body)
	if err != nil {
		contentType := resp.Header.Get("Content-Type")
		logger.Warn("Only WAV audio links can be played", "playbackId", playbackID, "content_type", contentType, "error", err)
		return fmt.Errorf("failed to decode audio of type %q: %w", contentType, err)
	}
	info := p.sink.EncodingInfo()
	pcm, err := wav.Linear16Mono(info.SampleRate)
	if err != nil {
		return fmt.Errorf("failed to convert audio: %w", err)
	}

	chunkSize := max(info.ChunkSize(sendChunkDuration), 2)
	for start := 0; start < len(pcm); start += chunkSize {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := p.sink.SendAudio(pcm[start:min(start+chunkSize, len(pcm))]); err != nil {
			return fmt.Errorf("failed to play audio: %w", err)
		}
	}

	return p.sink.Mark(playbackID, func(string) { p.finish(nil) })
}
