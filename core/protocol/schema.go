package protocol

import (
	"github.com/invopop/jsonschema"
)

// Schemas returns the JSON schema of every payload the client exchanges,
// keyed by message type.
func Schemas() map[MessageType]*jsonschema.Schema {
	reflector := jsonschema.Reflector{DoNotReference: true, ExpandedStruct: true}

	payloads := map[MessageType]any{
		TypeNegotiateRequest:        NegotiationRequest{},
		TypeNegotiateAgree:          NegotiationAgreement{},
		TypeTextDirectText:          Text{},
		TypeTextIndirectText:        Text{},
		TypeTextPlainText:           Text{},
		TypePlaybackRequest:         PlaybackRequest{},
		TypePlaybackProgress:        PlaybackStatus{},
		TypePlaybackDone:            PlaybackStatus{},
		TypeSTTServersideReady:      StreamReady{},
		TypeSTTServersideProcessed:  Text{},
		TypeSTTClientsideRecognized: Text{},
		TypeSTTClientsideProcessed:  Text{},
		TypeMute:                    Control{},
		TypeUnmute:                  Control{},
	}

	schemas := make(map[MessageType]*jsonschema.Schema, len(payloads))
	for messageType, payload := range payloads {
		schema := reflector.Reflect(payload)
		if schema.Properties == nil {
			schema.Properties = jsonschema.NewProperties()
		}
		schema.Properties.Set("type", &jsonschema.Schema{Type: "string", Const: string(messageType)})
		schema.Required = append([]string{"type"}, schema.Required...)
		schema.Title = string(messageType)
		schemas[messageType] = schema
	}
	return schemas
}
