package deepgram

import "github.com/koscakluka/ema-face/core/speechtotext"

type callbacks struct {
	transcriptionCallback        func(string)
	partialTranscriptionCallback func(string)
	interimTranscriptionCallback func(string)
	startSpeechCallback          func()
	endSpeechCallback            func()
}

// wsConfig holds the listen features worth paying for given the callbacks
// that are actually set.
type wsConfig struct {
	shouldDetectSpeechStart            bool
	shouldEnhanceSpeechEndingDetection bool
	shouldRequestInterimResults        bool
}

func newCallbackConfig(options speechtotext.TranscriptionOptions) (callbacks, wsConfig) {
	noopText := func(string) {}
	noop := func() {}

	cb := callbacks{
		transcriptionCallback:        noopText,
		partialTranscriptionCallback: noopText,
		interimTranscriptionCallback: noopText,
		startSpeechCallback:          noop,
		endSpeechCallback:            noop,
	}
	if options.TranscriptionCallback != nil {
		cb.transcriptionCallback = options.TranscriptionCallback
	}
	if options.PartialTranscriptionCallback != nil {
		cb.partialTranscriptionCallback = options.PartialTranscriptionCallback
	}
	if options.InterimTranscriptionCallback != nil {
		cb.interimTranscriptionCallback = options.InterimTranscriptionCallback
	}
	if options.SpeechStartedCallback != nil {
		cb.startSpeechCallback = options.SpeechStartedCallback
	}
	if options.SpeechEndedCallback != nil {
		cb.endSpeechCallback = options.SpeechEndedCallback
	}

	config := wsConfig{
		shouldDetectSpeechStart: options.SpeechStartedCallback != nil,
		shouldEnhanceSpeechEndingDetection: options.TranscriptionCallback != nil ||
			options.SpeechEndedCallback != nil,
		shouldRequestInterimResults: options.InterimTranscriptionCallback != nil,
	}
	return cb, config
}
