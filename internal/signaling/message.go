// Package signaling relays WebRTC negotiation messages and chat between room members.
package signaling

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/pion/webrtc/v3"
)

type MessageType string

const (
	TypeJoin         MessageType = "join"
	TypeOffer        MessageType = "offer"
	TypeAnswer       MessageType = "answer"
	TypeICECandidate MessageType = "ice-candidate"
	TypeLeave        MessageType = "leave"
)

// Targeted reports whether the type must be addressed to a single recipient.
func (t MessageType) Targeted() bool {
	return t == TypeOffer || t == TypeAnswer || t == TypeICECandidate
}

var (
	ErrInvalidMessage   = errors.New("invalid signaling message")
	ErrMissingRecipient = errors.New("signaling message requires a recipient")
	ErrInvalidPayload   = errors.New("invalid signaling payload")
)

var validate = validator.New()

// Message is one signaling frame. Payload is relayed verbatim once it has
// been checked against the shape its Type requires.
type Message struct {
	Type     MessageType     `json:"type" validate:"required,oneof=join offer answer ice-candidate leave"`
	From     string          `json:"from" validate:"required,uuid"`
	To       string          `json:"to,omitempty" validate:"omitempty,uuid"`
	RoomCode string          `json:"roomCode" validate:"required,len=8,alphanum,uppercase"`
	Payload  json.RawMessage `json:"payload,omitempty"`
}

// Decode parses a frame without validating it.
func Decode(data []byte) (*Message, error) {
	var m Message
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}
	return &m, nil
}

// Recipient returns the parsed To field.
func (m *Message) Recipient() (uuid.UUID, error) {
	return uuid.Parse(m.To)
}

// Validate checks the common fields and then the fields required by m.Type.
func (m *Message) Validate() error {
	if err := validate.Struct(m); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}
	if m.Type.Targeted() && m.To == "" {
		return ErrMissingRecipient
	}

	switch m.Type {
	case TypeOffer:
		return validateDescription(m.Payload, webrtc.SDPTypeOffer)
	case TypeAnswer:
		return validateDescription(m.Payload, webrtc.SDPTypeAnswer)
	case TypeICECandidate:
		return validateCandidate(m.Payload)
	}
	return nil
}

func validateDescription(payload json.RawMessage, want webrtc.SDPType) error {
	if len(payload) == 0 {
		return fmt.Errorf("%w: %s requires a session description", ErrInvalidPayload, want)
	}
	var desc webrtc.SessionDescription
	if err := json.Unmarshal(payload, &desc); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	if desc.Type != want {
		return fmt.Errorf("%w: description type %q does not match %s", ErrInvalidPayload, desc.Type, want)
	}
	if _, err := desc.Unmarshal(); err != nil {
		return fmt.Errorf("%w: sdp: %v", ErrInvalidPayload, err)
	}
	return nil
}

// An empty candidate string is the end-of-candidates marker and is allowed.
func validateCandidate(payload json.RawMessage) error {
	if len(payload) == 0 {
		return fmt.Errorf("%w: ice-candidate requires a candidate", ErrInvalidPayload)
	}
	var c webrtc.ICECandidateInit
	if err := json.Unmarshal(payload, &c); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	if c.Candidate != "" && c.SDPMid == nil && c.SDPMLineIndex == nil {
		return fmt.Errorf("%w: candidate needs sdpMid or sdpMLineIndex", ErrInvalidPayload)
	}
	return nil
}
