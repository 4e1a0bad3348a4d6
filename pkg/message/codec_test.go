package message

import (
	"errors"
	"reflect"
	"testing"
)

func TestRoundTrip(t *testing.T) {
	envelopes := []Envelope{
		{ID: "01A", Kind: KindRequest, Message: CredentialCreationRequest{Data: newTestParams()}},
		{ID: "01B", Kind: KindResponse, Message: CredentialCreationResponse{Approved: true}},
		{ID: "01C", Kind: KindResponse, Message: CredentialCreationResponse{Approved: false}},
		{ID: "01D", Kind: KindRequest, Message: CredentialGetRequest{}},
		{ID: "01E", Kind: KindResponse, Message: CredentialGetResponse{}},
		{ID: "01F", Kind: KindRequest, Message: AbortRequest{}},
		{ID: "01G", Kind: KindResponse, Message: AbortResponse{}},
		{ID: "01H", Kind: KindResponse, Message: ErrorResponse{Error: "handler failed"}},
	}
	for _, codec := range []Codec{JSON, CBOR} {
		for _, env := range envelopes {
			t.Run(codec.Name()+"/"+string(env.Message.Type()), func(t *testing.T) {
				data, err := codec.Encode(env)
				if err != nil {
					t.Fatalf("encode: %v", err)
				}
				got, err := codec.Decode(data)
				if err != nil {
					t.Fatalf("decode: %v", err)
				}
				if !reflect.DeepEqual(got, env) {
					t.Fatalf("round trip mismatch:\n got  %#v\n want %#v", got, env)
				}
			})
		}
	}
}

func TestEmptyListsDecodeAsNil(t *testing.T) {
	params := newTestParams()
	params.ExcludeCredentials = []CredentialDescriptor{}
	env := Envelope{ID: "01A", Kind: KindRequest, Message: CredentialCreationRequest{Data: params}}
	for _, codec := range []Codec{JSON, CBOR} {
		t.Run(codec.Name(), func(t *testing.T) {
			data, err := codec.Encode(env)
			if err != nil {
				t.Fatalf("encode: %v", err)
			}
			got, err := codec.Decode(data)
			if err != nil {
				t.Fatalf("decode: %v", err)
			}
			decoded := got.Message.(CredentialCreationRequest).Data
			if decoded.ExcludeCredentials != nil {
				t.Fatalf("expected nil exclude list, got %#v", decoded.ExcludeCredentials)
			}
			again, err := codec.Encode(got)
			if err != nil || string(again) != string(data) {
				t.Fatalf("re-encoding changed the payload: %v", err)
			}
		})
	}
}

func TestJSONDecodeRejects(t *testing.T) {
	cases := map[string]string{
		"unknown type":        `{"id":"1","kind":"response","message":{"type":"Bogus"}}`,
		"missing approved":    `{"id":"1","kind":"response","message":{"type":"CredentialCreationResponse"}}`,
		"null approved":       `{"id":"1","kind":"response","message":{"type":"CredentialCreationResponse","approved":null}}`,
		"mistyped approved":   `{"id":"1","kind":"response","message":{"type":"CredentialCreationResponse","approved":"yes"}}`,
		"other variant field": `{"id":"1","kind":"response","message":{"type":"CredentialGetResponse","approved":true}}`,
		"unknown key":         `{"id":"1","kind":"response","message":{"type":"AbortResponse"},"sender":"x"}`,
		"missing id":          `{"kind":"response","message":{"type":"AbortResponse"}}`,
		"missing message":     `{"id":"1","kind":"response"}`,
		"unknown kind":        `{"id":"1","kind":"unsolicited","message":{"type":"AbortResponse"}}`,
		"request as response": `{"id":"1","kind":"response","message":{"type":"CredentialGetRequest"}}`,
		"response as request": `{"id":"1","kind":"request","message":{"type":"CredentialGetResponse"}}`,
		"missing data":        `{"id":"1","kind":"request","message":{"type":"CredentialCreationRequest"}}`,
		"invalid data":        `{"id":"1","kind":"request","message":{"type":"CredentialCreationRequest","data":{"origin":"https://a.example"}}}`,
		"trailing data":       `{"id":"1","kind":"response","message":{"type":"AbortResponse"}} {}`,
		"not json":            `hello`,
		"numeric tag":         `{"id":"1","kind":"response","message":{"type":1}}`,
		"duplicate approved":  `{"id":"1","kind":"response","message":{"type":"CredentialCreationResponse","approved":false,"approved":true}}`,
		"duplicate id":        `{"id":"a","id":"b","kind":"response","message":{"type":"AbortResponse"}}`,
		"case folded keys":    `{"ID":"1","KIND":"response","Message":{"TYPE":"CredentialCreationResponse","Approved":true}}`,
		"case folded nested":  `{"id":"1","kind":"request","message":{"type":"CredentialCreationRequest","data":{"origin":"https://a.example","challenge":"Y2g","rp":{"ID":"a.example","name":"A"},"user":{"id":"dQ","displayName":"U"},"pubKeyCredParams":[{"type":"public-key","alg":-7}]}}}`,
		"duplicate nested":    `{"id":"1","kind":"request","message":{"type":"CredentialCreationRequest","data":{"origin":"https://a.example","challenge":"Y2g","rp":{"name":"A"},"user":{"id":"dQ","displayName":"U"},"pubKeyCredParams":[{"type":"public-key","alg":-7,"alg":-257}]}}}`,
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := JSON.Decode([]byte(raw))
			if !errors.Is(err, ErrMalformed) {
				t.Fatalf("expected ErrMalformed, got %v", err)
			}
		})
	}
}

func TestCBORDecodeRejectsUnknownField(t *testing.T) {
	data, err := cborEnc.Marshal(map[string]any{
		"id":      "1",
		"kind":    "response",
		"message": map[string]any{"type": "AbortResponse"},
		"extra":   true,
	})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if _, err := CBOR.Decode(data); !errors.Is(err, ErrMalformed) {
		t.Fatalf("expected ErrMalformed, got %v", err)
	}
}

func TestEncodeRejectsInvalidEnvelope(t *testing.T) {
	_, err := JSON.Encode(Envelope{ID: "1", Kind: KindRequest, Message: CredentialCreationResponse{Approved: true}})
	if !errors.Is(err, ErrMalformed) {
		t.Fatalf("expected ErrMalformed, got %v", err)
	}
}

func TestResponseType(t *testing.T) {
	pairs := map[Type]Type{
		TypeCredentialCreationRequest: TypeCredentialCreationResponse,
		TypeCredentialGetRequest:      TypeCredentialGetResponse,
		TypeAbortRequest:              TypeAbortResponse,
	}
	for req, want := range pairs {
		got, ok := req.ResponseType()
		if !ok || got != want {
			t.Errorf("%s: expected %s, got %s (ok=%t)", req, want, got, ok)
		}
	}
	if _, ok := TypeErrorResponse.ResponseType(); ok {
		t.Error("ErrorResponse must not be a request")
	}
}

func TestLookupCodec(t *testing.T) {
	if c, err := LookupCodec("CBOR"); err != nil || c.Name() != "cbor" {
		t.Fatalf("expected cbor codec, got %v, %v", c, err)
	}
	if c, err := LookupCodec(""); err != nil || c.Name() != "json" {
		t.Fatalf("expected json default, got %v, %v", c, err)
	}
	if _, err := LookupCodec("xml"); err == nil {
		t.Fatal("expected error for unknown codec")
	}
}

func newTestParams() CredentialRegistrationParams {
	return CredentialRegistrationParams{
		Origin:    "https://example.com",
		Challenge: "dGVzdC1jaGFsbGVuZ2U",
		RP:        RelyingParty{ID: "example.com", Name: "Example"},
		User:      User{ID: "dXNlci0x", Name: "alice", DisplayName: "Alice"},
		PubKeyCredParams: []PubKeyCredParam{
			{Type: PublicKeyType, Alg: -7},
			{Type: PublicKeyType, Alg: -257},
		},
		ExcludeCredentials: []CredentialDescriptor{
			{Type: PublicKeyType, ID: "Y3JlZA", Transports: []string{"internal"}},
		},
		AuthenticatorSelection: &AuthenticatorSelection{ResidentKey: "required", UserVerification: "preferred"},
		Attestation:            "none",
		Extensions:             &Extensions{CredProps: true},
		Timeout:                60000,
	}
}
