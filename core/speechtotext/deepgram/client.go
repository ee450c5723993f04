package deepgram

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/gorilla/websocket"
)

const (
	defaultListenURL = "wss://api.deepgram.com/v1/listen"
	defaultModel     = "nova-3"
	defaultLanguage  = "en-US"

	apiKeyEnv = "DEEPGRAM_API_KEY"
)

// TranscriptionClient streams audio to the Deepgram listen API and reports
// transcripts through the callbacks given to Transcribe.
type TranscriptionClient struct {
	listenURL string
	apiKey    string
	model     string
	dialer    *websocket.Dialer

	conn   *websocket.Conn
	connMu sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup

	lastMsgTs atomic.Int64

	// Only touched by the read loop.
	accumulatedTranscript string
	unendedSegment        bool
}

type ClientOption func(*TranscriptionClient)

// WithAPIKey overrides the key read from DEEPGRAM_API_KEY.
func WithAPIKey(apiKey string) ClientOption {
	return func(c *TranscriptionClient) { c.apiKey = apiKey }
}

func WithListenURL(listenURL string) ClientOption {
	return func(c *TranscriptionClient) { c.listenURL = listenURL }
}

func WithModel(model string) ClientOption {
	return func(c *TranscriptionClient) { c.model = model }
}

func WithDialer(dialer *websocket.Dialer) ClientOption {
	return func(c *TranscriptionClient) { c.dialer = dialer }
}

func NewTranscriptionClient(opts ...ClientOption) *TranscriptionClient {
	client := &TranscriptionClient{
		listenURL: defaultListenURL,
		model:     defaultModel,
		dialer:    websocket.DefaultDialer,
	}
	for _, opt := range opts {
		opt(client)
	}
	return client
}

// Close ends the stream and waits for its goroutines.
func (s *TranscriptionClient) Close() error {
	if s.cancel != nil {
		s.cancel()
	}

	s.connMu.Lock()
	var err error
	if s.conn != nil {
		err = s.conn.Close()
	}
	s.connMu.Unlock()

	s.wg.Wait()
	return err
}
