package message

import (
	"errors"
	"fmt"
)

// Kind marks an envelope as a request or a response.
type Kind string

const (
	KindRequest  Kind = "request"
	KindResponse Kind = "response"
)

// MaxIDLength bounds correlation ids accepted from a peer.
const MaxIDLength = 128

// ErrMalformed is wrapped by every decode and validation failure.
var ErrMalformed = errors.New("malformed envelope")

// Envelope is the unit actually written to a transport: a message plus the
// correlation id that ties a response to its request.
type Envelope struct {
	ID      string
	Kind    Kind
	Message Message
}

// Validate checks the envelope-level invariants shared by every codec.
func (e Envelope) Validate() error {
	if e.ID == "" {
		return fmt.Errorf("%w: missing id", ErrMalformed)
	}
	if len(e.ID) > MaxIDLength {
		return fmt.Errorf("%w: id longer than %d bytes", ErrMalformed, MaxIDLength)
	}
	if e.Message == nil {
		return fmt.Errorf("%w: missing message", ErrMalformed)
	}
	switch e.Kind {
	case KindRequest:
		if !e.Message.Type().IsRequest() {
			return fmt.Errorf("%w: %s is not a request", ErrMalformed, e.Message.Type())
		}
	case KindResponse:
		if e.Message.Type().IsRequest() {
			return fmt.Errorf("%w: %s is not a response", ErrMalformed, e.Message.Type())
		}
	default:
		return fmt.Errorf("%w: unknown kind %q", ErrMalformed, e.Kind)
	}
	if req, ok := e.Message.(CredentialCreationRequest); ok {
		if err := req.Data.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// wireMessage is the flat shape every variant is encoded through. Pointer
// fields distinguish "absent" from zero values so decoding can reject
// missing required fields instead of defaulting them.
type wireMessage struct {
	Type     Type                          `json:"type"`
	Data     *CredentialRegistrationParams `json:"data,omitempty"`
	Approved *bool                         `json:"approved,omitempty"`
	Error    *string                       `json:"error,omitempty"`
}

type wireEnvelope struct {
	ID      string       `json:"id"`
	Kind    Kind         `json:"kind"`
	Message *wireMessage `json:"message"`
}

func toWire(e Envelope) (wireEnvelope, error) {
	if err := e.Validate(); err != nil {
		return wireEnvelope{}, err
	}
	w := &wireMessage{Type: e.Message.Type()}
	switch m := e.Message.(type) {
	case CredentialCreationRequest:
		data := m.Data
		w.Data = &data
	case CredentialCreationResponse:
		approved := m.Approved
		w.Approved = &approved
	case ErrorResponse:
		text := m.Error
		w.Error = &text
	case CredentialGetRequest, CredentialGetResponse, AbortRequest, AbortResponse:
	default:
		return wireEnvelope{}, fmt.Errorf("%w: unsupported message %T", ErrMalformed, e.Message)
	}
	return wireEnvelope{ID: e.ID, Kind: e.Kind, Message: w}, nil
}

func fromWire(w wireEnvelope) (Envelope, error) {
	if w.Message == nil {
		return Envelope{}, fmt.Errorf("%w: missing message", ErrMalformed)
	}
	msg, err := decodeMessage(*w.Message)
	if err != nil {
		return Envelope{}, err
	}
	env := Envelope{ID: w.ID, Kind: w.Kind, Message: msg}
	if err := env.Validate(); err != nil {
		return Envelope{}, err
	}
	return env, nil
}

func decodeMessage(w wireMessage) (Message, error) {
	if !w.Type.Known() {
		return nil, fmt.Errorf("%w: unknown message type %q", ErrMalformed, w.Type)
	}
	var (
		wantData     = w.Type == TypeCredentialCreationRequest
		wantApproved = w.Type == TypeCredentialCreationResponse
		wantError    = w.Type == TypeErrorResponse
	)
	if err := fieldPresence("data", w.Type, w.Data != nil, wantData); err != nil {
		return nil, err
	}
	if err := fieldPresence("approved", w.Type, w.Approved != nil, wantApproved); err != nil {
		return nil, err
	}
	if err := fieldPresence("error", w.Type, w.Error != nil, wantError); err != nil {
		return nil, err
	}
	switch w.Type {
	case TypeCredentialCreationRequest:
		return CredentialCreationRequest{Data: *w.Data}, nil
	case TypeCredentialCreationResponse:
		return CredentialCreationResponse{Approved: *w.Approved}, nil
	case TypeCredentialGetRequest:
		return CredentialGetRequest{}, nil
	case TypeCredentialGetResponse:
		return CredentialGetResponse{}, nil
	case TypeAbortRequest:
		return AbortRequest{}, nil
	case TypeAbortResponse:
		return AbortResponse{}, nil
	default:
		return ErrorResponse{Error: *w.Error}, nil
	}
}

func fieldPresence(field string, typ Type, present, want bool) error {
	switch {
	case want && !present:
		return fmt.Errorf("%w: %s requires %q", ErrMalformed, typ, field)
	case !want && present:
		return fmt.Errorf("%w: %s does not carry %q", ErrMalformed, typ, field)
	}
	return nil
}
