package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

var ErrUnsupportedWAV = errors.New("unsupported wav data")

const wavFormatPCM = 1

// WAV is decoded RIFF/WAVE PCM audio.
type WAV struct {
	SampleRate    int
	Channels      int
	BitsPerSample int
	Data          []byte
}

func DecodeWAV(r io.Reader) (*WAV, error) {
	var header struct {
		RIFF [4]byte
		Size uint32
		WAVE [4]byte
	}
	if err := binary.Read(r, binary.LittleEndian, &header); err != nil {
		return nil, fmt.Errorf("failed to read wav header: %w", err)
	}
	if string(header.RIFF[:]) != "RIFF" || string(header.WAVE[:]) != "WAVE" {
		return nil, fmt.Errorf("%w: not a RIFF/WAVE stream", ErrUnsupportedWAV)
	}

	wav := &WAV{}
	hasFormat := false
	for {
		var chunk struct {
			ID   [4]byte
			Size uint32
		}
		if err := binary.Read(r, binary.LittleEndian, &chunk); err != nil {
			return nil, fmt.Errorf("failed to read wav chunk: %w", err)
		}

		switch string(chunk.ID[:]) {
		case "fmt ":
			var format struct {
				AudioFormat   uint16
				Channels      uint16
				SampleRate    uint32
				ByteRate      uint32
				BlockAlign    uint16
				BitsPerSample uint16
			}
			if chunk.Size < 16 {
				return nil, fmt.Errorf("%w: format chunk too short", ErrUnsupportedWAV)
			}
			if err := binary.Read(r, binary.LittleEndian, &format); err != nil {
				return nil, fmt.Errorf("failed to read wav format: %w", err)
			}
			if format.AudioFormat != wavFormatPCM {
				return nil, fmt.Errorf("%w: format %d is not PCM", ErrUnsupportedWAV, format.AudioFormat)
			}
			if format.Channels == 0 {
				return nil, fmt.Errorf("%w: no channels", ErrUnsupportedWAV)
			}
			wav.SampleRate = int(format.SampleRate)
			wav.Channels = int(format.Channels)
			wav.BitsPerSample = int(format.BitsPerSample)
			hasFormat = true
			if err := skip(r, int64(chunk.Size)-16+int64(chunk.Size%2)); err != nil {
				return nil, err
			}

		case "data":
			if !hasFormat {
				return nil, fmt.Errorf("%w: data before format", ErrUnsupportedWAV)
			}
			data, err := io.ReadAll(io.LimitReader(r, int64(chunk.Size)))
			if err != nil {
				return nil, fmt.Errorf("failed to read wav data: %w", err)
			}
			wav.Data = data
			return wav, nil

		default:
			if err := skip(r, int64(chunk.Size)+int64(chunk.Size%2)); err != nil {
				return nil, err
			}
		}
	}
}

func skip(r io.Reader, n int64) error {
	if n <= 0 {
		return nil
	}
	if _, err := io.CopyN(io.Discard, r, n); err != nil {
		return fmt.Errorf("failed to skip wav chunk: %w", err)
	}
	return nil
}

// Linear16Mono returns the audio as mono 16 bit samples at sampleRate.
// Channels are averaged and samples picked by nearest neighbour.
func (w *WAV) Linear16Mono(sampleRate int) ([]byte, error) {
	if w.BitsPerSample != 16 {
		return nil, fmt.Errorf("%w: %d bits per sample", ErrUnsupportedWAV, w.BitsPerSample)
	}
	if sampleRate <= 0 || w.SampleRate <= 0 {
		return nil, fmt.Errorf("%w: invalid sample rate", ErrUnsupportedWAV)
	}

	frameSize := 2 * w.Channels
	frames := len(w.Data) / frameSize
	mono := make([]int16, frames)
	for i := range frames {
		sum := 0
		for c := range w.Channels {
			offset := i*frameSize + c*2
			sum += int(int16(binary.LittleEndian.Uint16(w.Data[offset:])))
		}
		mono[i] = int16(sum / w.Channels)
	}

	outFrames := int(int64(frames) * int64(sampleRate) / int64(w.SampleRate))
	out := make([]byte, outFrames*2)
	for i := range outFrames {
		src := int(int64(i) * int64(w.SampleRate) / int64(sampleRate))
		binary.LittleEndian.PutUint16(out[i*2:], uint16(mono[src]))
	}
	return out, nil
}
