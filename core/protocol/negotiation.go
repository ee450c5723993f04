package protocol

import (
	"errors"
	"fmt"
	"slices"
)

// CapabilityGroup lists mutually exclusive alternatives, most preferred
// first. Negotiation picks at most one capability per group.
type CapabilityGroup []Capability

// Outcome holds one entry per requested group, either a member of that group
// or None.
type Outcome []Capability

// NegotiationParseError means the first message of a connection was not a
// valid agreement for the request that was sent.
type NegotiationParseError struct {
	Reason string
	Err    error
}

func (e *NegotiationParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("invalid negotiation response: %s: %v", e.Reason, e.Err)
	}
	return "invalid negotiation response: " + e.Reason
}

func (e *NegotiationParseError) Unwrap() error { return e.Err }

// NewNegotiationRequest builds the envelope opening every connection.
func NewNegotiationRequest(groups []CapabilityGroup) (Envelope, error) {
	if groups == nil {
		groups = []CapabilityGroup{}
	}
	return NewEnvelope(TypeNegotiateRequest, NegotiationRequest{Protocols: groups})
}

// Agree picks, for every group, the first capability accepted by supports.
// It is what a server does with a negotiation request.
func Agree(groups []CapabilityGroup, supports func(Capability) bool) Outcome {
	outcome := make(Outcome, len(groups))
	for i, group := range groups {
		for _, capability := range group {
			if capability != None && supports(capability) {
				outcome[i] = capability
				break
			}
		}
	}
	return outcome
}

// ParseAgreement interprets env strictly as the reply to a request for
// groups.
func ParseAgreement(env Envelope, groups []CapabilityGroup) (Outcome, error) {
	if env.Type != TypeNegotiateAgree {
		return nil, &NegotiationParseError{Reason: fmt.Sprintf("unexpected message type %q", env.Type)}
	}

	var agreement NegotiationAgreement
	if err := env.Decode(&agreement); err != nil {
		return nil, &NegotiationParseError{Reason: "malformed payload", Err: err}
	}
	if agreement.Protocols == nil {
		return nil, &NegotiationParseError{Reason: "missing protocols"}
	}

	outcome := make(Outcome, len(agreement.Protocols))
	for i, chosen := range agreement.Protocols {
		if chosen != nil {
			outcome[i] = Capability(*chosen)
		}
	}

	if err := outcome.Validate(groups); err != nil {
		return nil, &NegotiationParseError{Reason: "agreement does not match request", Err: err}
	}
	return outcome, nil
}

var errOutcomeLength = errors.New("outcome length differs from request")

// Validate checks positional correspondence with the request.
func (o Outcome) Validate(groups []CapabilityGroup) error {
	if len(o) != len(groups) {
		return fmt.Errorf("%w: %d entries for %d groups", errOutcomeLength, len(o), len(groups))
	}
	for i, chosen := range o {
		if chosen != None && !slices.Contains(groups[i], chosen) {
			return fmt.Errorf("entry %d: %q is not part of group %v", i, chosen, groups[i])
		}
	}
	return nil
}

// Granted returns the distinct agreed capabilities in request order.
func (o Outcome) Granted() []Capability {
	granted := make([]Capability, 0, len(o))
	for _, chosen := range o {
		if chosen != None && !slices.Contains(granted, chosen) {
			granted = append(granted, chosen)
		}
	}
	return granted
}

// Has reports whether c was agreed in any group.
func (o Outcome) Has(c Capability) bool {
	return c != None && slices.Contains(o, c)
}
