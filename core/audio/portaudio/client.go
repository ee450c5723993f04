// Package portaudio captures microphone audio through PortAudio.
package portaudio

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/gordonklaus/portaudio"

	"github.com/koscakluka/ema-face/core/audio"
)

const deviceName = "portaudio default input"

// Client is an audio.Capture reading the default input device in blocking
// mode.
type Client struct {
	bufferSize int
}

func NewClient(bufferSize int) (*Client, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize PortAudio: %w", err)
	}
	return &Client{bufferSize: bufferSize}, nil
}

func (c *Client) Close() {
	if err := portaudio.Terminate(); err != nil {
		logger.Warn("Failed to terminate PortAudio", "error", err)
	}
}

func (c *Client) Start(ctx context.Context, sampleRate int, onChunk func([]byte)) (audio.CaptureSession, error) {
	in := make([]int16, c.bufferSize)
	stream, err := portaudio.OpenDefaultStream(1, 0, float64(sampleRate), c.bufferSize, in)
	if err != nil {
		return nil, &audio.CaptureDeviceError{Device: deviceName, Err: err}
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		return nil, &audio.CaptureDeviceError{Device: deviceName, Err: err}
	}

	ctx, cancel := context.WithCancel(ctx)
	session := &captureSession{stream: stream, cancel: cancel, done: make(chan struct{})}
	go session.read(ctx, in, onChunk)
	return session, nil
}

type captureSession struct {
	stream *portaudio.Stream
	muted  atomic.Bool
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

func (s *captureSession) read(ctx context.Context, in []int16, onChunk func([]byte)) {
	defer close(s.done)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if err := s.stream.Read(); err != nil {
			if errors.Is(err, portaudio.InputOverflowed) {
				continue
			}
			logger.Warn("Failed to read from PortAudio stream", "error", err)
			return
		}
		if s.muted.Load() {
			continue
		}

		chunk := bytes.Buffer{}
		if err := binary.Write(&chunk, binary.LittleEndian, in); err != nil {
			logger.Warn("Failed to encode captured audio", "error", err)
			continue
		}
		onChunk(chunk.Bytes())
	}
}

func (s *captureSession) SetMuted(muted bool) { s.muted.Store(muted) }

func (s *captureSession) Stop() error {
	var err error
	s.once.Do(func() {
		s.cancel()
		<-s.done
		if stopErr := s.stream.Stop(); stopErr != nil {
			err = fmt.Errorf("failed to stop PortAudio stream: %w", stopErr)
		}
		s.stream.Close()
	})
	return err
}
