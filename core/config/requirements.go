package config

import "github.com/koscakluka/ema-face/core/protocol"

// Requirements picks the capability groups to negotiate. streamingSupported
// tells whether audio can be streamed to the server from this client.
func Requirements(cfg Config, streamingSupported bool) []protocol.CapabilityGroup {
	groups := []protocol.CapabilityGroup{
		{protocol.TextDirect, protocol.TextIndirect},
	}

	if cfg.AudioOutputEnabled {
		groups = append(groups,
			protocol.CapabilityGroup{protocol.AudioLink},
			// Speech through audio links, with text when the server cannot speak.
			protocol.CapabilityGroup{protocol.TTSServerside, protocol.TextPlain},
		)
	} else {
		groups = append(groups, protocol.CapabilityGroup{protocol.TextPlain})
	}

	if cfg.AudioInputEnabled {
		switch {
		case !streamingSupported:
			groups = append(groups, protocol.CapabilityGroup{protocol.STTClientside, protocol.TextIndirect})
		case cfg.PreferStreamingInput:
			groups = append(groups, protocol.CapabilityGroup{protocol.STTServerside, protocol.STTClientside, protocol.TextIndirect})
		default:
			groups = append(groups, protocol.CapabilityGroup{protocol.STTClientside, protocol.TextIndirect, protocol.STTServerside})
		}
		groups = append(groups, protocol.CapabilityGroup{protocol.Mute})
	}

	return groups
}
