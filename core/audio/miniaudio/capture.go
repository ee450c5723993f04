package miniaudio

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/gen2brain/malgo"

	"github.com/koscakluka/ema-face/core/audio"
)

const captureDeviceName = "miniaudio default capture"

// Start opens the default capture device at sampleRate. Each call owns its
// own device, released by Stop.
func (c *Client) Start(_ context.Context, sampleRate int, onChunk func([]byte)) (audio.CaptureSession, error) {
	channels := 1
	format := malgo.FormatS16
	bytesPerFrame := malgo.SampleSizeInBytes(format) * channels

	config := malgo.DefaultDeviceConfig(malgo.Capture)
	config.SampleRate = uint32(sampleRate)
	config.Capture.Format = format
	config.Capture.Channels = uint32(channels)
	config.Alsa.NoMMap = 1
	config.PerformanceProfile = malgo.LowLatency
	config.PeriodSizeInFrames = uint32(sampleRate / 100 * 3)
	config.Periods = 3

	session := &captureSession{}
	device, err := malgo.InitDevice(c.audioContext.Context, config, malgo.DeviceCallbacks{
		Data: func(_, pInput []byte, frameCount uint32) {
			n := int(frameCount) * bytesPerFrame
			if len(pInput) < n || n == 0 || session.muted.Load() {
				return
			}
			chunk := make([]byte, n)
			copy(chunk, pInput[:n])
			onChunk(chunk)
		},
	})
	if err != nil {
		return nil, &audio.CaptureDeviceError{Device: captureDeviceName, Err: err}
	}

	if err := device.Start(); err != nil {
		device.Uninit()
		return nil, &audio.CaptureDeviceError{Device: captureDeviceName, Err: fmt.Errorf("failed to start: %w", err)}
	}

	session.device = device
	return session, nil
}

type captureSession struct {
	muted atomic.Bool

	mu     sync.Mutex
	device *malgo.Device
}

func (s *captureSession) SetMuted(muted bool) { s.muted.Store(muted) }

func (s *captureSession) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.device == nil {
		return nil
	}

	err := s.device.Stop()
	s.device.Uninit()
	s.device = nil
	if err != nil {
		return fmt.Errorf("failed to stop capture device: %w", err)
	}
	return nil
}
