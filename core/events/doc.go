// Package events defines the typed bus event contract.
//
// Every event carries a Kind from one stable enumeration. Kinds for
// capability grants and received messages are not built from strings at
// runtime: [GrantedKind] and [ReceivedKind] map protocol identifiers to kinds
// through fixed lookup tables, so producers and consumers agree on names
// without a shared registry.
//
// transport events (published by the primary transport adapter)
//
//   - TransportConnected: the primary connection opened.
//   - TransportFailed: the primary connection reported an error.
//   - TransportClosed: the primary connection closed.
//   - TransportMessage: one raw text frame arrived.
//
// session events (published by the connection machine)
//
//   - TransportDisconnected: the session is gone; every feature resets.
//   - CapabilityGranted: one negotiated capability, kind from [GrantedKind].
//   - MessageReceived: one envelope after negotiation, kind from [ReceivedKind].
//
// dialog events (published by feature machines and front ends)
//
//   - SendRequested: an envelope to transmit on the primary connection.
//   - HistoryAdd: a message to append to the history.
//   - TextCommand: the user typed a command.
//   - PlaybackStarted / PlaybackEnded: assistant audio playback boundaries.
//
// Machine-local events (ReconnectDue, PlaybackTick, StreamOpened, ...) share
// the enumeration but are only fed to the machine that scheduled them and are
// never published.
package events
