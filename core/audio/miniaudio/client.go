// Package miniaudio drives capture and playback devices through malgo.
package miniaudio

import (
	"fmt"
	"sync"

	"github.com/gen2brain/malgo"
)

type Client struct {
	// audioContext is only saved to be able to uninitialize it, it is an
	// ownership thing
	audioContext *malgo.AllocatedContext

	mu        sync.Mutex
	playbacks []*Playback
}

func NewClient() (*Client, error) {
	audioCtx, err := malgo.InitContext(nil, malgo.ContextConfig{}, func(message string) {
		logger.Debug("malgo", "message", message)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize audio context: %w", err)
	}

	return &Client{audioContext: audioCtx}, nil
}

// NewPlayback opens and starts a playback device at sampleRate.
func (c *Client) NewPlayback(sampleRate int) (*Playback, error) {
	playback := &Playback{sampleRate: sampleRate}
	if err := playback.init(c.audioContext); err != nil {
		return nil, fmt.Errorf("failed to initialize playback device: %w", err)
	}
	if err := playback.start(); err != nil {
		playback.uninit()
		return nil, err
	}

	c.mu.Lock()
	c.playbacks = append(c.playbacks, playback)
	c.mu.Unlock()
	return playback, nil
}

func (c *Client) Close() {
	c.mu.Lock()
	for _, playback := range c.playbacks {
		playback.uninit()
	}
	c.playbacks = nil
	c.mu.Unlock()

	_ = c.audioContext.Uninit()
	c.audioContext.Free()
}
