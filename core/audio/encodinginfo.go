package audio

import "time"

const (
	DefaultSampleRate = 16000
	DefaultFormat     = EncodingLinear16
)

func GetDefaultEncodingInfo() EncodingInfo {
	return EncodingInfo{SampleRate: DefaultSampleRate, Format: DefaultFormat}
}

// EncodingInfo describes mono audio exchanged with devices and services.
type EncodingInfo struct {
	SampleRate int
	Format     Format
}

func (e EncodingInfo) IsZero() bool {
	return e.SampleRate == 0 || e.Format.Name() == ""
}

func (e EncodingInfo) SilenceValue() byte {
	switch e.Format {
	case EncodingALaw:
		return 0x55
	case EncodingMulaw:
		return 0xFF
	}
	return 0
}

// ChunkSize returns the number of bytes holding d of audio.
func (e EncodingInfo) ChunkSize(d time.Duration) int {
	return int(int64(e.SampleRate) * int64(e.Format.ByteSize()) * d.Milliseconds() / 1000)
}

// Silence returns d of silence.
func (e EncodingInfo) Silence(d time.Duration) []byte {
	chunk := make([]byte, e.ChunkSize(d))
	if value := e.SilenceValue(); value != 0 {
		for i := range chunk {
			chunk[i] = value
		}
	}
	return chunk
}

type Format string

func (f Format) Name() string { return string(f) }

func (f Format) ByteSize() int {
	switch f {
	case EncodingMulaw, EncodingALaw:
		return 1
	case EncodingLinear16:
		return 2
	}
	return -1
}

const (
	EncodingMulaw    Format = "mulaw"
	EncodingALaw     Format = "alaw"
	EncodingLinear16 Format = "linear16"
)
