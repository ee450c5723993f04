// Package protocol describes the wire contract between the client and the
// assistant server.
//
// Client and server exchange JSON text frames over one websocket. Every frame
// is an object with a mandatory "type" key and type specific fields. Types are
// namespaced "<capability>/<action>", except the negotiation pair
// "negotiate/request" and "negotiate/agree" which is exchanged once right after
// the connection opens.
package protocol

// Capability names an optional sub-protocol that client and server may agree
// to use for one connection.
type Capability string

// None marks a negotiation slot where client and server had nothing in common.
const None Capability = ""

const (
	TextDirect    Capability = "in.text-direct"
	TextIndirect  Capability = "in.text-indirect"
	STTServerside Capability = "in.stt.serverside"
	STTClientside Capability = "in.stt.clientside"
	Mute          Capability = "in.mute"
	TextPlain     Capability = "out.text-plain"
	AudioLink     Capability = "out.audio.link"
	TTSServerside Capability = "out.tts.serverside"
)

// MessageType is the value of the "type" key of a frame.
type MessageType string

const (
	TypeNegotiateRequest MessageType = "negotiate/request"
	TypeNegotiateAgree   MessageType = "negotiate/agree"

	TypeTextDirectText   MessageType = "in.text-direct/text"
	TypeTextIndirectText MessageType = "in.text-indirect/text"

	TypeTextPlainText MessageType = "out.text-plain/text"

	TypePlaybackRequest  MessageType = "out.audio.link/playback-request"
	TypePlaybackProgress MessageType = "out.audio.link/playback-progress"
	TypePlaybackDone     MessageType = "out.audio.link/playback-done"

	TypeSTTServersideReady     MessageType = "in.stt.serverside/ready"
	TypeSTTServersideProcessed MessageType = "in.stt.serverside/processed"

	TypeSTTClientsideRecognized MessageType = "in.stt.clientside/recognized"
	TypeSTTClientsideProcessed  MessageType = "in.stt.clientside/processed"

	TypeMute   MessageType = "in.mute/mute"
	TypeUnmute MessageType = "in.mute/unmute"
)

// Message returns the namespaced message type for an action of c.
func (c Capability) Message(action string) MessageType {
	return MessageType(string(c) + "/" + action)
}
