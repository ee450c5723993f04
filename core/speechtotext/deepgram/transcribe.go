package deepgram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	api "github.com/deepgram/deepgram-go-sdk/pkg/api/listen/v1/websocket/interfaces"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/koscakluka/ema-face/core/audio"
	"github.com/koscakluka/ema-face/core/speechtotext"
	"github.com/koscakluka/ema-face/internal/utils"
)

var ErrMissingAPIKey = errors.New("deepgram api key not found")

// Transcribe opens the listen stream. Audio is sent with SendAudio; results
// arrive on the callbacks until Close.
func (s *TranscriptionClient) Transcribe(ctx context.Context, opts ...speechtotext.TranscriptionOption) error {
	options := &speechtotext.TranscriptionOptions{EncodingInfo: audio.GetDefaultEncodingInfo(), Language: defaultLanguage}
	for _, opt := range opts {
		opt(options)
	}

	encoding, err := convertEncoding(options.EncodingInfo)
	if err != nil {
		return fmt.Errorf("invalid encoding: %w", err)
	}

	callbacks, config := newCallbackConfig(*options)
	conn, err := s.connectWebsocket(ctx, connectionOptions{
		sampleRate: encoding.SampleRate,
		encoding:   encoding.Format.Name(),
		language:   options.Language,
		wsConfig:   config,
	})
	if err != nil {
		return fmt.Errorf("failed to open websocket: %w", err)
	}

	ctx, s.cancel = context.WithCancel(context.WithoutCancel(ctx))
	s.connMu.Lock()
	s.conn = conn
	s.connMu.Unlock()
	s.lastMsgTs.Store(time.Now().UnixNano())

	s.wg.Add(2)
	go func() {
		defer s.wg.Done()
		s.readAndProcessMessages(ctx, conn, callbacks)
	}()
	go func() {
		defer s.wg.Done()
		s.generateSilence(ctx, options.EncodingInfo)
	}()

	return nil
}

type connectionOptions struct {
	sampleRate int
	encoding   string
	language   string

	wsConfig
}

func (s *TranscriptionClient) connectWebsocket(ctx context.Context, options connectionOptions) (*websocket.Conn, error) {
	apiKey := s.apiKey
	if apiKey == "" {
		apiKey = os.Getenv(apiKeyEnv)
	}
	if apiKey == "" {
		return nil, ErrMissingAPIKey
	}

	listenUrl, err := url.Parse(s.listenURL)
	if err != nil {
		return nil, fmt.Errorf("invalid listen url: %w", err)
	}
	queryParams := listenUrl.Query()
	queryParams.Set("encoding", options.encoding)
	queryParams.Set("sample_rate", strconv.Itoa(options.sampleRate))
	queryParams.Set("channels", "1")
	queryParams.Set("model", s.model)
	queryParams.Set("language", options.language)
	queryParams.Set("smart_format", "true")
	if options.shouldEnhanceSpeechEndingDetection {
		queryParams.Set("utterance_end_ms", "1000")
		queryParams.Set("interim_results", "true")
	} else if options.shouldRequestInterimResults {
		queryParams.Set("interim_results", "true")
	}
	queryParams.Set("endpointing", "300")
	if options.shouldDetectSpeechStart || options.shouldEnhanceSpeechEndingDetection {
		queryParams.Set("vad_events", "true")
	}
	listenUrl.RawQuery = queryParams.Encode()

	ctx, span := tracer.Start(ctx, "open deepgram listen stream",
		trace.WithAttributes(attribute.String("model", s.model), attribute.Int("sample_rate", options.sampleRate)))
	defer span.End()

	conn, _, err := s.dialer.DialContext(ctx, listenUrl.String(),
		http.Header{"Authorization": {"Token " + apiKey}})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to open socket connection to deepgram: %w", err)
	}

	return conn, nil
}

func (s *TranscriptionClient) sendKeepAlive() {
	s.connMu.Lock()
	defer s.connMu.Unlock()

	if s.conn == nil {
		return
	}
	if err := s.conn.WriteJSON(struct {
		Type string `json:"type"`
	}{Type: "KeepAlive"}); err != nil {
		logger.Debug("Failed to write keep alive to deepgram", "error", err)
	}
}

func (s *TranscriptionClient) SendAudio(audio []byte) error {
	s.lastMsgTs.Store(time.Now().UnixNano())
	return s.writeAudio(audio)
}

func (s *TranscriptionClient) writeAudio(audio []byte) error {
	s.connMu.Lock()
	defer s.connMu.Unlock()

	if s.conn == nil {
		return net.ErrClosed
	}
	if err := s.conn.WriteMessage(websocket.BinaryMessage, audio); err != nil {
		return fmt.Errorf("failed to write to deepgram client: %w", err)
	}
	return nil
}

// StopStream asks Deepgram to flush pending results and close the stream.
func (s *TranscriptionClient) StopStream() error {
	s.connMu.Lock()
	defer s.connMu.Unlock()

	if s.conn != nil {
		if err := s.conn.WriteJSON(struct {
			Type string `json:"type"`
		}{Type: string(api.TypeCloseStreamResponse)}); err != nil {
			return fmt.Errorf("failed to close deepgram stream: %w", err)
		}
	}
	return nil
}

func (s *TranscriptionClient) readAndProcessMessages(ctx context.Context, conn *websocket.Conn, cb callbacks) {
	defer func() {
		s.connMu.Lock()
		if s.conn == conn {
			s.conn = nil
		}
		s.connMu.Unlock()
		conn.Close()
	}()

	for {
		msgType, msg, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() == nil && !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				logger.Warn("Failed to read deepgram websocket message", "error", err)
			}
			return
		}
		if msgType != websocket.BinaryMessage {
			s.processMessage(msg, cb)
		}
	}
}

func (s *TranscriptionClient) processMessage(msg []byte, cb callbacks) {
	var parsedMsg struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(msg, &parsedMsg); err != nil {
		logger.Warn("Failed to unmarshal deepgram message", "error", err)
		return
	}

	switch api.TypeResponse(parsedMsg.Type) {
	case api.TypeMessageResponse:
		var msgResp api.MessageResponse
		if err := json.Unmarshal(msg, &msgResp); err != nil {
			logger.Warn("Failed to unmarshal deepgram results", "error", err)
			return
		}

		transcript := ""
		if len(msgResp.Channel.Alternatives) > 0 {
			transcript = strings.TrimSpace(msgResp.Channel.Alternatives[0].Transcript)
		}
		if msgResp.IsFinal {
			if len(transcript) > 0 {
				s.accumulatedTranscript += " " + transcript
				cb.partialTranscriptionCallback(transcript)
			}
			if msgResp.SpeechFinal {
				s.onSpeechEnded(cb)
			}
		} else if len(transcript) > 0 {
			cb.interimTranscriptionCallback(strings.TrimSpace(s.accumulatedTranscript + " " + transcript))
		}

	case api.TypeUtteranceEndResponse:
		if s.unendedSegment {
			s.onSpeechEnded(cb)
		}

	case api.TypeSpeechStartedResponse:
		s.unendedSegment = true
		cb.startSpeechCallback()
	}
}

func (s *TranscriptionClient) onSpeechEnded(cb callbacks) {
	s.unendedSegment = false
	fullTranscript := strings.TrimSpace(s.accumulatedTranscript)
	s.accumulatedTranscript = ""
	if len(fullTranscript) > 0 {
		cb.transcriptionCallback(fullTranscript)
	}
	cb.endSpeechCallback()
}

// generateSilence keeps the stream alive while no audio is sent: first with
// a second of silence so pending results are finalized, then with keep alive
// messages.
func (s *TranscriptionClient) generateSilence(ctx context.Context, encoding audio.EncodingInfo) {
	type silenceGeneratorState string
	const (
		silenceGeneratorStateWaiting   silenceGeneratorState = "waiting"
		silenceGeneratorStateSilence   silenceGeneratorState = "silence"
		silenceGeneratorStateKeepAlive silenceGeneratorState = "keepAlive"
	)

	const chunkDuration = 50 * time.Millisecond
	ticker := time.NewTicker(chunkDuration)
	defer ticker.Stop()

	chunk := encoding.Silence(chunkDuration)
	sinceAudio := func() time.Duration { return time.Since(time.Unix(0, s.lastMsgTs.Load())) }

	var state = silenceGeneratorStateWaiting
	var firstSilenceTime *time.Time
	var lastKeepAliveTime *time.Time
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			switch state {
			case silenceGeneratorStateWaiting:
				if sinceAudio() > chunkDuration {
					state = silenceGeneratorStateSilence
					firstSilenceTime = utils.Ptr(time.Now())
				}

			case silenceGeneratorStateSilence:
				if sinceAudio() < chunkDuration {
					state = silenceGeneratorStateWaiting
					firstSilenceTime = nil
					continue
				}
				if time.Since(*firstSilenceTime) >= time.Second {
					state = silenceGeneratorStateKeepAlive
					lastKeepAliveTime = utils.Ptr(time.Now())
					firstSilenceTime = nil
					continue
				}

				if err := s.writeAudio(chunk); err != nil {
					logger.Debug("Failed to send silence to deepgram", "error", err)
				}

			case silenceGeneratorStateKeepAlive:
				if sinceAudio() < chunkDuration {
					state = silenceGeneratorStateWaiting
					continue
				}

				if time.Since(*lastKeepAliveTime) >= 5*time.Second {
					lastKeepAliveTime = utils.Ptr(time.Now())
					s.sendKeepAlive()
				}
			}
		}
	}
}
