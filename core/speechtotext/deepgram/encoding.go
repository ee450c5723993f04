package deepgram

import (
	"fmt"

	"github.com/koscakluka/ema-face/core/audio"
)

type encodingInfo struct {
	SampleRate int
	Format     audio.Format
}

func convertEncoding(encoding audio.EncodingInfo) (*encodingInfo, error) {
	deepgramEncoding := encodingInfo{}
	switch encoding.SampleRate {
	case 8000, 16000, 24000, 32000, 44100, 48000:
		deepgramEncoding.SampleRate = encoding.SampleRate
	default:
		return nil, fmt.Errorf("unsupported sample rate %d", encoding.SampleRate)
	}

	switch encoding.Format {
	case audio.EncodingLinear16:
		deepgramEncoding.Format = audio.EncodingLinear16
	case audio.EncodingALaw, audio.EncodingMulaw:
		if deepgramEncoding.SampleRate != 8000 {
			return nil, fmt.Errorf("unsupported sample rate %d for %s encoding", encoding.SampleRate, encoding.Format)
		}
		deepgramEncoding.Format = encoding.Format
	default:
		return nil, fmt.Errorf("unsupported encoding %q", encoding.Format)
	}

	return &deepgramEncoding, nil
}
