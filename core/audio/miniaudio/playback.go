package miniaudio

import (
	"fmt"
	"sync"

	"github.com/gen2brain/malgo"

	"github.com/koscakluka/ema-face/core/audio"
)

// Playback is an output device fed with mono 16 bit audio. Marks placed
// between chunks fire once the device played up to them.
type Playback struct {
	sampleRate int
	device     *malgo.Device

	mu            sync.Mutex
	leftoverAudio []byte
	marks         []playbackMark
}

type playbackMark struct {
	name     string
	position int
	callback func(string)
}

func (p *Playback) init(audioContext *malgo.AllocatedContext) error {
	channels := 1
	format := malgo.FormatS16
	bytesPerFrame := malgo.SampleSizeInBytes(format) * channels

	config := malgo.DefaultDeviceConfig(malgo.Playback)
	config.SampleRate = uint32(p.sampleRate)
	config.Playback.Format = format
	config.Playback.Channels = uint32(channels)
	config.Alsa.NoMMap = 1
	config.PeriodSizeInFrames = uint32(p.sampleRate / 10) // ~100ms of audio
	config.Periods = 4

	device, err := malgo.InitDevice(audioContext.Context, config, malgo.DeviceCallbacks{
		Data: p.processAudio(bytesPerFrame),
	})
	if err != nil {
		return err
	}
	p.device = device
	return nil
}

func (p *Playback) start() error {
	if err := p.device.Start(); err != nil {
		return fmt.Errorf("failed to start playback device: %w", err)
	}
	return nil
}

func (p *Playback) uninit() {
	if p.device != nil {
		p.device.Uninit()
		p.device = nil
	}
}

func (p *Playback) EncodingInfo() audio.EncodingInfo {
	return audio.EncodingInfo{SampleRate: p.sampleRate, Format: audio.EncodingLinear16}
}

func (p *Playback) SendAudio(audio []byte) error {
	if p.device == nil || !p.device.IsStarted() {
		return fmt.Errorf("playback device not started")
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.leftoverAudio = append(p.leftoverAudio, audio...)
	return nil
}

func (p *Playback) Mark(name string, callback func(string)) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.marks = append(p.marks, playbackMark{name: name, position: len(p.leftoverAudio), callback: callback})
	return nil
}

// ClearBuffer drops queued audio and pending marks without calling them.
func (p *Playback) ClearBuffer() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.leftoverAudio = nil
	p.marks = nil
}

func (p *Playback) processAudio(bytesPerFrame int) malgo.DataProc {
	return func(pOutput, _ []byte, frameCount uint32) {
		need := min(int(frameCount)*bytesPerFrame, len(pOutput))

		p.mu.Lock()
		passed := p.advanceMarks(need)
		n := copy(pOutput[:need], p.leftoverAudio)
		p.leftoverAudio = p.leftoverAudio[n:]
		p.mu.Unlock()

		clear(pOutput[n:need])
		if len(passed) > 0 {
			go func() {
				for _, mark := range passed {
					mark.callback(mark.name)
				}
			}()
		}
	}
}

// advanceMarks moves marks by played bytes and returns the ones reached.
func (p *Playback) advanceMarks(played int) []playbackMark {
	passed := 0
	for i := range p.marks {
		if p.marks[i].position > played {
			p.marks[i].position -= played
		} else {
			passed++
		}
	}
	if passed == 0 {
		return nil
	}
	reached := p.marks[:passed]
	p.marks = p.marks[passed:]
	return reached
}
