// Package speechtotext holds the options shared by speech recognition
// clients.
package speechtotext

import "github.com/koscakluka/ema-face/core/audio"

type TranscriptionOptions struct {
	// TranscriptionCallback receives the full transcript of an utterance once
	// the speaker stops.
	TranscriptionCallback func(transcript string)
	// PartialTranscriptionCallback receives each finalized segment.
	PartialTranscriptionCallback func(transcript string)
	// InterimTranscriptionCallback receives the utterance so far, including
	// segments that may still change.
	InterimTranscriptionCallback func(transcript string)

	SpeechStartedCallback func()
	SpeechEndedCallback   func()

	EncodingInfo audio.EncodingInfo
	Language     string
}

type TranscriptionOption func(*TranscriptionOptions)

func WithTranscriptionCallback(callback func(transcript string)) TranscriptionOption {
	return func(o *TranscriptionOptions) {
		o.TranscriptionCallback = callback
	}
}

func WithPartialTranscriptionCallback(callback func(transcript string)) TranscriptionOption {
	return func(o *TranscriptionOptions) {
		o.PartialTranscriptionCallback = callback
	}
}

func WithInterimTranscriptionCallback(callback func(transcript string)) TranscriptionOption {
	return func(o *TranscriptionOptions) {
		o.InterimTranscriptionCallback = callback
	}
}

func WithSpeechStartedCallback(callback func()) TranscriptionOption {
	return func(o *TranscriptionOptions) {
		o.SpeechStartedCallback = callback
	}
}

func WithSpeechEndedCallback(callback func()) TranscriptionOption {
	return func(o *TranscriptionOptions) {
		o.SpeechEndedCallback = callback
	}
}

func WithEncodingInfo(encodingInfo audio.EncodingInfo) TranscriptionOption {
	return func(o *TranscriptionOptions) {
		o.EncodingInfo = encodingInfo
	}
}

// WithLanguage sets a BCP-47 language tag such as "en-US".
func WithLanguage(language string) TranscriptionOption {
	return func(o *TranscriptionOptions) {
		o.Language = language
	}
}
