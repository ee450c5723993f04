package events

import "github.com/koscakluka/ema-face/core/protocol"

const (
	KindUnknown Kind = iota

	KindTransportConnected
	KindTransportFailed
	KindTransportClosed
	KindTransportMessage

	KindTransportDisconnected

	// KindCapabilityGranted is used for capabilities without a dedicated kind.
	KindCapabilityGranted
	KindTextDirectGranted
	KindTextIndirectGranted
	KindSTTServersideGranted
	KindSTTClientsideGranted
	KindMuteGranted
	KindTextPlainGranted
	KindAudioLinkGranted
	KindTTSServersideGranted

	// KindMessageUnrouted is used for message types without a dedicated kind.
	KindMessageUnrouted
	KindTextPlainReceived
	KindPlaybackRequestReceived
	KindSTTServersideReadyReceived
	KindSTTServersideProcessedReceived
	KindSTTClientsideProcessedReceived
	KindMuteReceived
	KindUnmuteReceived

	KindSendRequested
	KindHistoryAdd
	KindTextCommand
	KindPlaybackStarted
	KindPlaybackEnded

	KindReconnectDue
	KindPlaybackTick
	KindPlaybackFinished
	KindPlaybackNext
	KindStreamOpened
	KindStreamClosed
	KindStreamFailed
	KindStreamChunk
	KindStreamRetryDue
	KindCaptureFailed
	KindRecognizerReady
	KindRecognizerFailed
	KindRecognized
)

var grantedKinds = map[protocol.Capability]Kind{
	protocol.TextDirect:    KindTextDirectGranted,
	protocol.TextIndirect:  KindTextIndirectGranted,
	protocol.STTServerside: KindSTTServersideGranted,
	protocol.STTClientside: KindSTTClientsideGranted,
	protocol.Mute:          KindMuteGranted,
	protocol.TextPlain:     KindTextPlainGranted,
	protocol.AudioLink:     KindAudioLinkGranted,
	protocol.TTSServerside: KindTTSServersideGranted,
}

var receivedKinds = map[protocol.MessageType]Kind{
	protocol.TypeTextPlainText:          KindTextPlainReceived,
	protocol.TypePlaybackRequest:        KindPlaybackRequestReceived,
	protocol.TypeSTTServersideReady:     KindSTTServersideReadyReceived,
	protocol.TypeSTTServersideProcessed: KindSTTServersideProcessedReceived,
	protocol.TypeSTTClientsideProcessed: KindSTTClientsideProcessedReceived,
	protocol.TypeMute:                   KindMuteReceived,
	protocol.TypeUnmute:                 KindUnmuteReceived,
}

// GrantedKind returns the kind published when c is negotiated.
func GrantedKind(c protocol.Capability) Kind {
	if kind, ok := grantedKinds[c]; ok {
		return kind
	}
	return KindCapabilityGranted
}

// ReceivedKind returns the kind published when a message of type t arrives.
func ReceivedKind(t protocol.MessageType) Kind {
	if kind, ok := receivedKinds[t]; ok {
		return kind
	}
	return KindMessageUnrouted
}

var kindNames = map[Kind]string{
	KindUnknown:                        "unknown",
	KindTransportConnected:             "transport.connected",
	KindTransportFailed:                "transport.failed",
	KindTransportClosed:                "transport.closed",
	KindTransportMessage:               "transport.message",
	KindTransportDisconnected:          "session.transport_disconnected",
	KindCapabilityGranted:              "session.granted",
	KindTextDirectGranted:              "session.granted(in.text-direct)",
	KindTextIndirectGranted:            "session.granted(in.text-indirect)",
	KindSTTServersideGranted:           "session.granted(in.stt.serverside)",
	KindSTTClientsideGranted:           "session.granted(in.stt.clientside)",
	KindMuteGranted:                    "session.granted(in.mute)",
	KindTextPlainGranted:               "session.granted(out.text-plain)",
	KindAudioLinkGranted:               "session.granted(out.audio.link)",
	KindTTSServersideGranted:           "session.granted(out.tts.serverside)",
	KindMessageUnrouted:                "session.received",
	KindTextPlainReceived:              "session.received(out.text-plain/text)",
	KindPlaybackRequestReceived:        "session.received(out.audio.link/playback-request)",
	KindSTTServersideReadyReceived:     "session.received(in.stt.serverside/ready)",
	KindSTTServersideProcessedReceived: "session.received(in.stt.serverside/processed)",
	KindSTTClientsideProcessedReceived: "session.received(in.stt.clientside/processed)",
	KindMuteReceived:                   "session.received(in.mute/mute)",
	KindUnmuteReceived:                 "session.received(in.mute/unmute)",
	KindSendRequested:                  "dialog.send_requested",
	KindHistoryAdd:                     "dialog.history_add",
	KindTextCommand:                    "dialog.text_command",
	KindPlaybackStarted:                "dialog.playback_started",
	KindPlaybackEnded:                  "dialog.playback_ended",
	KindReconnectDue:                   "local.reconnect_due",
	KindPlaybackTick:                   "local.playback_tick",
	KindPlaybackFinished:               "local.playback_finished",
	KindPlaybackNext:                   "local.playback_next",
	KindStreamOpened:                   "local.stream_opened",
	KindStreamClosed:                   "local.stream_closed",
	KindStreamFailed:                   "local.stream_failed",
	KindStreamChunk:                    "local.stream_chunk",
	KindStreamRetryDue:                 "local.stream_retry_due",
	KindCaptureFailed:                  "local.capture_failed",
	KindRecognizerReady:                "local.recognizer_ready",
	KindRecognizerFailed:               "local.recognizer_failed",
	KindRecognized:                     "local.recognized",
}
