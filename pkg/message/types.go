// Package message defines the closed set of messages exchanged between a
// page context and the privileged context that mediates its WebAuthn
// ceremonies, and the envelope that carries them on the wire.
package message

// Type is the wire tag selecting a message variant.
type Type string

const (
	TypeCredentialCreationRequest  Type = "CredentialCreationRequest"
	TypeCredentialCreationResponse Type = "CredentialCreationResponse"
	TypeCredentialGetRequest       Type = "CredentialGetRequest"
	TypeCredentialGetResponse      Type = "CredentialGetResponse"
	TypeAbortRequest               Type = "AbortRequest"
	TypeAbortResponse              Type = "AbortResponse"
	TypeErrorResponse              Type = "ErrorResponse"
)

// Known reports whether t is one of the taxonomy tags.
func (t Type) Known() bool {
	switch t {
	case TypeCredentialCreationRequest, TypeCredentialCreationResponse,
		TypeCredentialGetRequest, TypeCredentialGetResponse,
		TypeAbortRequest, TypeAbortResponse, TypeErrorResponse:
		return true
	}
	return false
}

// IsRequest reports whether t is a request variant.
func (t Type) IsRequest() bool {
	_, ok := t.ResponseType()
	return ok
}

// ResponseType returns the response variant paired with request variant t.
func (t Type) ResponseType() (Type, bool) {
	switch t {
	case TypeCredentialCreationRequest:
		return TypeCredentialCreationResponse, true
	case TypeCredentialGetRequest:
		return TypeCredentialGetResponse, true
	case TypeAbortRequest:
		return TypeAbortResponse, true
	}
	return "", false
}

// Message is implemented by every variant of the taxonomy and nothing else.
type Message interface {
	Type() Type
	isMessage()
}

// CredentialCreationRequest asks the privileged side to mediate a
// navigator.credentials.create call.
type CredentialCreationRequest struct {
	Data CredentialRegistrationParams
}

func (CredentialCreationRequest) Type() Type { return TypeCredentialCreationRequest }
func (CredentialCreationRequest) isMessage() {}

// CredentialCreationResponse carries the privileged side's decision.
type CredentialCreationResponse struct {
	Approved bool
}

func (CredentialCreationResponse) Type() Type { return TypeCredentialCreationResponse }
func (CredentialCreationResponse) isMessage() {}

// CredentialGetRequest asks the privileged side to mediate a
// navigator.credentials.get call.
type CredentialGetRequest struct{}

func (CredentialGetRequest) Type() Type { return TypeCredentialGetRequest }
func (CredentialGetRequest) isMessage() {}

// CredentialGetResponse answers a CredentialGetRequest.
type CredentialGetResponse struct{}

func (CredentialGetResponse) Type() Type { return TypeCredentialGetResponse }
func (CredentialGetResponse) isMessage() {}

// AbortRequest cancels the ceremony carried under the same envelope id.
type AbortRequest struct{}

func (AbortRequest) Type() Type { return TypeAbortRequest }
func (AbortRequest) isMessage() {}

// AbortResponse acknowledges an AbortRequest.
type AbortResponse struct{}

func (AbortResponse) Type() Type { return TypeAbortResponse }
func (AbortResponse) isMessage() {}

// ErrorResponse answers any request the responder could not serve.
type ErrorResponse struct {
	Error string
}

func (ErrorResponse) Type() Type { return TypeErrorResponse }
func (ErrorResponse) isMessage() {}

// CredentialRegistrationParams is the platform-neutral shape of
// credential creation options. An empty ExcludeCredentials or Transports
// list is omitted on the wire and decodes as nil.
type CredentialRegistrationParams struct {
	Origin                 string                  `json:"origin"`
	Challenge              string                  `json:"challenge"` // base64url
	RP                     RelyingParty            `json:"rp"`
	User                   User                    `json:"user"`
	PubKeyCredParams       []PubKeyCredParam       `json:"pubKeyCredParams"`
	ExcludeCredentials     []CredentialDescriptor  `json:"excludeCredentials,omitempty"`
	AuthenticatorSelection *AuthenticatorSelection `json:"authenticatorSelection,omitempty"`
	Attestation            string                  `json:"attestation,omitempty"`
	Extensions             *Extensions             `json:"extensions,omitempty"`
	Timeout                int                     `json:"timeout,omitempty"` // ms
}

// RelyingParty identifies the site asking for the credential.
type RelyingParty struct {
	ID   string `json:"id,omitempty"`
	Name string `json:"name"`
}

// User is the account the credential is created for.
type User struct {
	ID          string `json:"id"` // base64url
	Name        string `json:"name,omitempty"`
	DisplayName string `json:"displayName"`
}

// PubKeyCredParam is an acceptable credential algorithm.
type PubKeyCredParam struct {
	Type string `json:"type"` // always "public-key"
	Alg  int    `json:"alg"`  // COSE identifier, -7 for ES256
}

// CredentialDescriptor identifies an existing credential.
type CredentialDescriptor struct {
	Type       string   `json:"type"`
	ID         string   `json:"id"` // base64url
	Transports []string `json:"transports,omitempty"`
}

// AuthenticatorSelection narrows the authenticators the RP accepts.
type AuthenticatorSelection struct {
	AuthenticatorAttachment string `json:"authenticatorAttachment,omitempty"`
	RequireResidentKey      bool   `json:"requireResidentKey,omitempty"`
	ResidentKey             string `json:"residentKey,omitempty"`
	UserVerification        string `json:"userVerification,omitempty"`
}

// Extensions carries the client extensions that survive translation.
type Extensions struct {
	CredProps bool `json:"credProps,omitempty"`
}

// PublicKeyType is the only credential type WebAuthn defines.
const PublicKeyType = "public-key"
