package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	face "github.com/koscakluka/ema-face/core"
	"github.com/koscakluka/ema-face/core/audio"
	"github.com/koscakluka/ema-face/core/audio/miniaudio"
	"github.com/koscakluka/ema-face/core/audio/portaudio"
	"github.com/koscakluka/ema-face/core/recognition"
	"github.com/koscakluka/ema-face/core/speechtotext/deepgram"
)

const portaudioBufferSize = 480

// devices owns the audio clients opened for a run.
type devices struct {
	closers []func()
	options []face.SessionOption
}

func (d *devices) Close() {
	for i := len(d.closers) - 1; i >= 0; i-- {
		d.closers[i]()
	}
}

func addDeviceFlags(cmd *cobra.Command) {
	cmd.Flags().String("capture", "miniaudio", "microphone backend: miniaudio, portaudio or none")
	cmd.Flags().Bool("speaker", true, "play assistant audio")
	cmd.Flags().Int("playback-rate", 24000, "sample rate of the playback device")
	cmd.Flags().String("recognizer", "none", "client side speech recognition: deepgram or none")
	cmd.Flags().String("language", "en-US", "language for client side speech recognition")
	cmd.Flags().Bool("stream-audio", true, "stream microphone audio to the server when it recognizes speech")
}

func openDevices(cmd *cobra.Command) (*devices, error) {
	d := &devices{}

	var miniaudioClient *miniaudio.Client
	openMiniaudio := func() (*miniaudio.Client, error) {
		if miniaudioClient != nil {
			return miniaudioClient, nil
		}
		client, err := miniaudio.NewClient()
		if err != nil {
			return nil, err
		}
		miniaudioClient = client
		d.closers = append(d.closers, client.Close)
		return client, nil
	}

	var capture audio.Capture
	switch backend, _ := cmd.Flags().GetString("capture"); backend {
	case "miniaudio":
		client, err := openMiniaudio()
		if err != nil {
			d.Close()
			return nil, err
		}
		capture = client
	case "portaudio":
		client, err := portaudio.NewClient(portaudioBufferSize)
		if err != nil {
			d.Close()
			return nil, err
		}
		d.closers = append(d.closers, client.Close)
		capture = client
	case "none", "":
	default:
		d.Close()
		return nil, fmt.Errorf("unknown capture backend %q", backend)
	}

	if speaker, _ := cmd.Flags().GetBool("speaker"); speaker {
		client, err := openMiniaudio()
		if err != nil {
			d.Close()
			return nil, err
		}
		rate, _ := cmd.Flags().GetInt("playback-rate")
		playback, err := client.NewPlayback(rate)
		if err != nil {
			d.Close()
			return nil, err
		}
		d.options = append(d.options, face.WithSink(playback))
	}

	if capture == nil {
		return d, nil
	}
	if stream, _ := cmd.Flags().GetBool("stream-audio"); stream {
		d.options = append(d.options, face.WithCapture(capture))
	}

	switch name, _ := cmd.Flags().GetString("recognizer"); name {
	case "deepgram":
		language, _ := cmd.Flags().GetString("language")
		engine := deepgram.NewEngine(capture, deepgram.WithLanguage(language))
		d.options = append(d.options, face.WithRecognitionEngine(recognition.EngineFunc(
			func(ctx context.Context, sampleRate int, onRecognized func(string)) (recognition.Recognizer, error) {
				recognizer, err := engine.Start(ctx, sampleRate, onRecognized)
				if err != nil {
					return nil, err
				}
				return recognizer, nil
			})))
	case "none", "":
	default:
		d.Close()
		return nil, fmt.Errorf("unknown recognizer %q", name)
	}

	return d, nil
}
