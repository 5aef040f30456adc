package model

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
)

// MessageTypeJoin is the only message type interpreted by the relay.
// Everything else is forwarded to the room as is.
const MessageTypeJoin = "join"

var (
	ErrMalformedMessage  = errors.New("malformed message")
	ErrMissingType       = errors.New("message type is missing")
	ErrMissingSessionID  = errors.New("join message has no session id")
	ErrEndpointClosed    = errors.New("endpoint is closed")
	ErrEndpointTimedOut  = errors.New("endpoint did not accept message in time")
	ErrUnsupportedFormat = errors.New("unsupported message format")
)

// Endpoint is one open bidirectional channel with a peer.
type Endpoint interface {
	ID() string
	Deliver(ctx context.Context, payload []byte) error
}

// RoomInfo is a read-only view of a room.
type RoomInfo struct {
	SessionID string `json:"session_id"`
	Members   int    `json:"members"`
}

// Envelope holds the only parts of an inbound message the relay looks at.
// Type is the decoded string for string types and the raw JSON text otherwise.
type Envelope struct {
	Type      string
	SessionID string
	join      bool
}

func (e Envelope) IsJoin() bool {
	return e.join
}

// ParseEnvelope decodes the type discriminator of a message and,
// for join messages, the session id. Keys are matched exactly.
// Payload fields are never decoded.
func ParseEnvelope(msg []byte) (Envelope, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(msg, &fields); err != nil {
		return Envelope{}, errors.Join(ErrMalformedMessage, err)
	}
	if fields == nil {
		return Envelope{}, ErrMalformedMessage
	}
	rawType, ok := fields["type"]
	if !ok {
		return Envelope{}, ErrMissingType
	}

	var env Envelope
	rawType = bytes.TrimSpace(rawType)
	if len(rawType) > 0 && rawType[0] == '"' {
		if err := json.Unmarshal(rawType, &env.Type); err != nil {
			return Envelope{}, errors.Join(ErrMalformedMessage, err)
		}
		env.join = env.Type == MessageTypeJoin
	} else {
		env.Type = string(rawType)
	}
	if !env.join {
		return env, nil
	}

	sessionID, err := parseSessionID(fields["sessionId"])
	if err != nil {
		return env, err
	}
	env.SessionID = sessionID
	return env, nil
}

// parseSessionID accepts a JSON string or a JSON number (used in its literal form).
func parseSessionID(raw json.RawMessage) (string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return "", ErrMissingSessionID
	}
	switch {
	case raw[0] == '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return "", errors.Join(ErrMalformedMessage, err)
		}
		if s == "" {
			return "", ErrMissingSessionID
		}
		return s, nil
	case raw[0] == '-' || (raw[0] >= '0' && raw[0] <= '9'):
		var n json.Number
		if err := json.Unmarshal(raw, &n); err != nil {
			return "", errors.Join(ErrMalformedMessage, err)
		}
		return n.String(), nil
	default:
		return "", ErrMissingSessionID
	}
}
