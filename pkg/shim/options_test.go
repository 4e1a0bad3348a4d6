package shim

import (
	"errors"
	"reflect"
	"testing"

	"github.com/go-webauthn/webauthn/protocol"

	"github.com/rexliu/credrelay/pkg/message"
)

func TestMapCreationOptions(t *testing.T) {
	residentKey := true
	opts := creationOptions()
	opts.Response.Timeout = 60000
	opts.Response.Attestation = protocol.PreferNoAttestation
	opts.Response.CredentialExcludeList = []protocol.CredentialDescriptor{{
		Type:         protocol.PublicKeyCredentialType,
		CredentialID: protocol.URLEncodedBase64("old"),
		Transport:    []protocol.AuthenticatorTransport{protocol.Internal},
	}}
	opts.Response.AuthenticatorSelection = protocol.AuthenticatorSelection{
		RequireResidentKey: &residentKey,
		ResidentKey:        protocol.ResidentKeyRequirementRequired,
		UserVerification:   protocol.VerificationPreferred,
	}
	opts.Response.Extensions = protocol.AuthenticationExtensions{"credProps": true, "largeBlob": map[string]any{}}

	got, err := MapCreationOptions(opts, pageOrigin)
	if err != nil {
		t.Fatalf("map: %v", err)
	}
	want := message.CredentialRegistrationParams{
		Origin:             pageOrigin,
		Challenge:          "Y2hhbGxlbmdlLWJ5dGVz",
		RP:                 message.RelyingParty{ID: "shop.example", Name: "Shop"},
		User:               message.User{ID: "dXNlci03", Name: "carol", DisplayName: "Carol"},
		PubKeyCredParams:   []message.PubKeyCredParam{{Type: message.PublicKeyType, Alg: -7}},
		ExcludeCredentials: []message.CredentialDescriptor{{Type: message.PublicKeyType, ID: "b2xk", Transports: []string{"internal"}}},
		AuthenticatorSelection: &message.AuthenticatorSelection{
			RequireResidentKey: true,
			ResidentKey:        "required",
			UserVerification:   "preferred",
		},
		Attestation: "none",
		Extensions:  &message.Extensions{CredProps: true},
		Timeout:     60000,
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("mapping mismatch:\n got  %#v\n want %#v", got, want)
	}
}

func TestMapCreationOptionsDefaults(t *testing.T) {
	opts := creationOptions()
	opts.Response.Parameters = nil
	opts.Response.User.ID = "dXNlci03"
	opts.Response.CredentialExcludeList = []protocol.CredentialDescriptor{}

	got, err := MapCreationOptions(opts, pageOrigin)
	if err != nil {
		t.Fatalf("map: %v", err)
	}
	if !reflect.DeepEqual(got.PubKeyCredParams, defaultCredParams) {
		t.Fatalf("expected default algorithms, got %v", got.PubKeyCredParams)
	}
	if got.User.ID != "dXNlci03" || got.AuthenticatorSelection != nil || got.Extensions != nil || got.ExcludeCredentials != nil {
		t.Fatalf("unexpected mapping %#v", got)
	}
}

func TestMapCreationOptionsRejects(t *testing.T) {
	cases := map[string]func(*protocol.CredentialCreation){
		"user id type":      func(o *protocol.CredentialCreation) { o.Response.User.ID = 7 },
		"user id string":    func(o *protocol.CredentialCreation) { o.Response.User.ID = "not base64!" },
		"missing challenge": func(o *protocol.CredentialCreation) { o.Response.Challenge = nil },
		"missing rp name":   func(o *protocol.CredentialCreation) { o.Response.RelyingParty.Name = "" },
		"credProps type":    func(o *protocol.CredentialCreation) { o.Response.Extensions = protocol.AuthenticationExtensions{"credProps": "yes"} },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			opts := creationOptions()
			mutate(opts)
			if _, err := MapCreationOptions(opts, pageOrigin); !errors.Is(err, ErrUnsupportedOptions) {
				t.Fatalf("expected ErrUnsupportedOptions, got %v", err)
			}
		})
	}
	if _, err := MapCreationOptions(nil, pageOrigin); !errors.Is(err, ErrUnsupportedOptions) {
		t.Fatalf("expected ErrUnsupportedOptions for nil options, got %v", err)
	}
}
