package miniaudio

import (
	"testing"
	"time"
)

func TestProcessAudioCopiesQueuedAudioAndPadsWithSilence(t *testing.T) {
	p := &Playback{sampleRate: 16000, leftoverAudio: []byte{1, 2, 3, 4, 5, 6}}
	process := p.processAudio(2)

	out := []byte{9, 9, 9, 9}
	process(out, nil, 2)
	if string(out) != string([]byte{1, 2, 3, 4}) {
		t.Fatalf("expected first frames, got %v", out)
	}

	out = []byte{9, 9, 9, 9}
	process(out, nil, 2)
	if string(out) != string([]byte{5, 6, 0, 0}) {
		t.Fatalf("expected remaining frames padded with silence, got %v", out)
	}
}

func TestMarksFireOncePlayedThrough(t *testing.T) {
	p := &Playback{sampleRate: 16000, leftoverAudio: make([]byte, 6)}
	reached := make(chan string, 2)
	p.Mark("end", func(name string) { reached <- name })
	process := p.processAudio(2)

	process(make([]byte, 4), nil, 2)
	select {
	case name := <-reached:
		t.Fatalf("expected mark %q to wait for its audio", name)
	case <-time.After(20 * time.Millisecond):
	}

	process(make([]byte, 4), nil, 2)
	select {
	case name := <-reached:
		if name != "end" {
			t.Fatalf("expected mark %q, got %q", "end", name)
		}
	case <-time.After(time.Second):
		t.Fatalf("expected mark to fire after its audio was played")
	}
}

func TestClearBufferDropsMarks(t *testing.T) {
	p := &Playback{sampleRate: 16000, leftoverAudio: make([]byte, 6)}
	p.Mark("end", func(string) { t.Errorf("expected cleared mark to never fire") })
	p.ClearBuffer()

	p.processAudio(2)(make([]byte, 8), nil, 4)
	time.Sleep(20 * time.Millisecond)
}
