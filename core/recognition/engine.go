package recognition

import "context"

// Engine captures audio and recognizes speech on the client.
type Engine interface {
	// Start blocks until the recognizer is ready. It returns early with an
	// error when ctx is cancelled. onRecognized may be called from any
	// goroutine.
	Start(ctx context.Context, sampleRate int, onRecognized func(text string)) (Recognizer, error)
}

type Recognizer interface {
	// SetSuppressed pauses recognition while assistant audio is playing.
	SetSuppressed(suppressed bool)
	Stop() error
}

type EngineFunc func(ctx context.Context, sampleRate int, onRecognized func(text string)) (Recognizer, error)

func (f EngineFunc) Start(ctx context.Context, sampleRate int, onRecognized func(text string)) (Recognizer, error) {
	return f(ctx, sampleRate, onRecognized)
}
