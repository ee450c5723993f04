package audio

import (
	"context"
	"fmt"
)

// Capture records from an input device.
type Capture interface {
	// Start begins delivering raw chunks at sampleRate to onChunk, on a
	// goroutine owned by the device. Failures to acquire the device are
	// reported as *CaptureDeviceError.
	Start(ctx context.Context, sampleRate int, onChunk func([]byte)) (CaptureSession, error)
}

type CaptureSession interface {
	// SetMuted gates the capture. Muted sessions deliver nothing.
	SetMuted(muted bool)
	Stop() error
}

// CaptureDeviceError means a microphone or its codec is unavailable.
type CaptureDeviceError struct {
	Device string
	Err    error
}

func (e *CaptureDeviceError) Error() string {
	return fmt.Sprintf("capture device %s unavailable: %v", e.Device, e.Err)
}

func (e *CaptureDeviceError) Unwrap() error { return e.Err }
