package protocol

// Text is the payload of every plain text message: typed commands, text
// output and recognition results.
type Text struct {
	Text string `json:"text" jsonschema:"title=Text"`
}

// PlaybackRequest asks the client to play an audio file.
type PlaybackRequest struct {
	URL        string  `json:"url" jsonschema:"title=URL,description=Address of the audio file to play"`
	PlaybackID string  `json:"playbackId" jsonschema:"title=Playback ID"`
	AltText    *string `json:"altText,omitempty" jsonschema:"title=Alternative text,description=Text shown in history instead of the audio"`
}

// PlaybackStatus reports progress or completion of a playback.
type PlaybackStatus struct {
	PlaybackID string `json:"playbackId" jsonschema:"title=Playback ID"`
}

// StreamReady tells the client where to open the audio stream connection.
type StreamReady struct {
	Path string `json:"path" jsonschema:"title=Path,description=Path of the secondary websocket"`
}

// NegotiationRequest is sent by the client right after connecting.
type NegotiationRequest struct {
	Protocols []CapabilityGroup `json:"protocols" jsonschema:"title=Protocols"`
}

// NegotiationAgreement is the single server reply to a NegotiationRequest.
// Null or empty entries mark groups without a common capability.
type NegotiationAgreement struct {
	Protocols []*string `json:"protocols" jsonschema:"title=Protocols"`
}

// Control is the empty payload of mute and unmute commands.
type Control struct{}
