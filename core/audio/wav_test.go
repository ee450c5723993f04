package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"testing"
	"time"
)

func buildWAV(t *testing.T, sampleRate, channels int, samples []int16, extraChunk bool) []byte {
	t.Helper()
	data := &bytes.Buffer{}
	for _, sample := range samples {
		binary.Write(data, binary.LittleEndian, sample)
	}

	buf := &bytes.Buffer{}
	buf.WriteString("RIFF")
	binary.Write(buf, binary.LittleEndian, uint32(0))
	buf.WriteString("WAVE")
	if extraChunk {
		buf.WriteString("LIST")
		binary.Write(buf, binary.LittleEndian, uint32(3))
		buf.Write([]byte{1, 2, 3, 0})
	}
	buf.WriteString("fmt ")
	binary.Write(buf, binary.LittleEndian, uint32(16))
	binary.Write(buf, binary.LittleEndian, uint16(wavFormatPCM))
	binary.Write(buf, binary.LittleEndian, uint16(channels))
	binary.Write(buf, binary.LittleEndian, uint32(sampleRate))
	binary.Write(buf, binary.LittleEndian, uint32(sampleRate*channels*2))
	binary.Write(buf, binary.LittleEndian, uint16(channels*2))
	binary.Write(buf, binary.LittleEndian, uint16(16))
	buf.WriteString("data")
	binary.Write(buf, binary.LittleEndian, uint32(data.Len()))
	buf.Write(data.Bytes())
	return buf.Bytes()
}

func samplesOf(t *testing.T, pcm []byte) []int16 {
	t.Helper()
	samples := make([]int16, len(pcm)/2)
	if err := binary.Read(bytes.NewReader(pcm), binary.LittleEndian, samples); err != nil {
		t.Fatalf("expected readable samples, got: %v", err)
	}
	return samples
}

func TestDecodeWAVSkipsUnknownChunks(t *testing.T) {
	wav, err := DecodeWAV(bytes.NewReader(buildWAV(t, 16000, 1, []int16{1, -2, 3}, true)))
	if err != nil {
		t.Fatalf("expected wav to decode, got: %v", err)
	}
	if wav.SampleRate != 16000 || wav.Channels != 1 || wav.BitsPerSample != 16 {
		t.Fatalf("unexpected format %+v", wav)
	}
	if len(wav.Data) != 6 {
		t.Fatalf("expected 6 bytes of data, got %d", len(wav.Data))
	}
}

func TestDecodeWAVRejectsOtherData(t *testing.T) {
	_, err := DecodeWAV(bytes.NewReader([]byte("ID3\x04not a wav file at all")))
	if !errors.Is(err, ErrUnsupportedWAV) {
		t.Fatalf("expected ErrUnsupportedWAV, got %v", err)
	}
}

func TestLinear16MonoDownmixesAndResamples(t *testing.T) {
	wav, err := DecodeWAV(bytes.NewReader(buildWAV(t, 8000, 2, []int16{100, 300, -100, -300}, false)))
	if err != nil {
		t.Fatalf("expected wav to decode, got: %v", err)
	}

	pcm, err := wav.Linear16Mono(16000)
	if err != nil {
		t.Fatalf("expected conversion to succeed, got: %v", err)
	}

	want := []int16{200, 200, -200, -200}
	got := samplesOf(t, pcm)
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, got)
		}
	}
}

func TestSilenceMatchesEncoding(t *testing.T) {
	linear := EncodingInfo{SampleRate: 16000, Format: EncodingLinear16}
	if size := len(linear.Silence(50 * time.Millisecond)); size != 1600 {
		t.Fatalf("expected 1600 bytes, got %d", size)
	}

	mulaw := EncodingInfo{SampleRate: 8000, Format: EncodingMulaw}
	chunk := mulaw.Silence(10 * time.Millisecond)
	if len(chunk) != 80 || chunk[0] != 0xFF {
		t.Fatalf("expected 80 bytes of 0xFF, got %d bytes starting with %#x", len(chunk), chunk[0])
	}
}
