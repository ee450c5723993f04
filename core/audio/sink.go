package audio

// Sink plays raw audio on an output device.
type Sink interface {
	EncodingInfo() EncodingInfo
	SendAudio(audio []byte) error
	// Mark calls callback once everything sent before it has been played.
	Mark(name string, callback func(string)) error
	ClearBuffer()
}
