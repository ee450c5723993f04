package deepgram

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/koscakluka/ema-face/core/audio"
	"github.com/koscakluka/ema-face/core/speechtotext"
)

// Engine recognizes speech from a local capture device with Deepgram.
type Engine struct {
	capture       audio.Capture
	clientOptions []ClientOption
	language      string
}

type EngineOption func(*Engine)

func WithClientOptions(opts ...ClientOption) EngineOption {
	return func(e *Engine) { e.clientOptions = append(e.clientOptions, opts...) }
}

func WithLanguage(language string) EngineOption {
	return func(e *Engine) { e.language = language }
}

func NewEngine(capture audio.Capture, opts ...EngineOption) *Engine {
	engine := &Engine{capture: capture, language: defaultLanguage}
	for _, opt := range opts {
		opt(engine)
	}
	return engine
}

// Recognizer is a running recognition: one capture session feeding one
// listen stream.
type Recognizer struct {
	client     *TranscriptionClient
	session    audio.CaptureSession
	suppressed atomic.Bool
	stopped    atomic.Bool
}

// Start opens the listen stream, then the capture device. onRecognized
// receives one call per finished utterance.
func (e *Engine) Start(ctx context.Context, sampleRate int, onRecognized func(text string)) (*Recognizer, error) {
	r := &Recognizer{client: NewTranscriptionClient(e.clientOptions...)}

	if err := r.client.Transcribe(ctx,
		speechtotext.WithEncodingInfo(audio.EncodingInfo{SampleRate: sampleRate, Format: audio.EncodingLinear16}),
		speechtotext.WithLanguage(e.language),
		speechtotext.WithTranscriptionCallback(func(transcript string) {
			if r.suppressed.Load() || r.stopped.Load() {
				logger.Debug("Dropping transcript heard during playback")
				return
			}
			onRecognized(transcript)
		}),
	); err != nil {
		return nil, err
	}

	session, err := e.capture.Start(ctx, sampleRate, func(chunk []byte) {
		if r.suppressed.Load() {
			return
		}
		if err := r.client.SendAudio(chunk); err != nil {
			logger.Debug("Failed to send audio to deepgram", "error", err)
		}
	})
	if err != nil {
		return nil, errors.Join(err, r.client.Close())
	}
	r.session = session

	if err := ctx.Err(); err != nil {
		return nil, errors.Join(err, r.Stop())
	}
	return r, nil
}

// SetSuppressed stops forwarding audio. The stream is kept alive with
// silence and anything recognized meanwhile is dropped.
func (r *Recognizer) SetSuppressed(suppressed bool) {
	r.suppressed.Store(suppressed)
}

func (r *Recognizer) Stop() error {
	if !r.stopped.CompareAndSwap(false, true) {
		return nil
	}

	var errs []error
	if r.session != nil {
		if err := r.session.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("failed to stop capture: %w", err))
		}
	}
	if err := r.client.StopStream(); err != nil {
		errs = append(errs, err)
	}
	if err := r.client.Close(); err != nil {
		logger.Debug("Deepgram connection closed with error", "error", err)
	}
	return errors.Join(errs...)
}
