package events

import "github.com/koscakluka/ema-face/core/protocol"

type Direction string

const (
	// DirectionIn is user input going to the assistant.
	DirectionIn Direction = "in"
	// DirectionOut is assistant output shown to the user.
	DirectionOut Direction = "out"
)

func (d Direction) Valid() bool { return d == DirectionIn || d == DirectionOut }

type SendRequested struct {
	Base
	Envelope protocol.Envelope
}

func NewSendRequested(env protocol.Envelope) SendRequested {
	return SendRequested{Base: NewBase(KindSendRequested), Envelope: env}
}

type HistoryAdd struct {
	Base
	Direction Direction
	Text      string
}

func NewHistoryAdd(direction Direction, text string) HistoryAdd {
	return HistoryAdd{Base: NewBase(KindHistoryAdd), Direction: direction, Text: text}
}

// TextCommand is produced by a front end when the user types a command.
type TextCommand struct {
	Base
	Text string
}

func NewTextCommand(text string) TextCommand {
	return TextCommand{Base: NewBase(KindTextCommand), Text: text}
}

type PlaybackStarted struct {
	Base
	PlaybackID string
}

func NewPlaybackStarted(playbackID string) PlaybackStarted {
	return PlaybackStarted{Base: NewBase(KindPlaybackStarted), PlaybackID: playbackID}
}

type PlaybackEnded struct {
	Base
	PlaybackID string
}

func NewPlaybackEnded(playbackID string) PlaybackEnded {
	return PlaybackEnded{Base: NewBase(KindPlaybackEnded), PlaybackID: playbackID}
}
