package shim

import (
	"encoding/base64"
	"fmt"

	"github.com/go-webauthn/webauthn/protocol"

	"github.com/rexliu/credrelay/pkg/message"
)

// Browsers fall back to ES256 and RS256 when pubKeyCredParams is empty.
var defaultCredParams = []message.PubKeyCredParam{
	{Type: message.PublicKeyType, Alg: -7},
	{Type: message.PublicKeyType, Alg: -257},
}

// MapCreationOptions translates WebAuthn creation options into registration
// parameters for origin. Extensions other than credProps are not relayed.
func MapCreationOptions(opts *protocol.CredentialCreation, origin string) (message.CredentialRegistrationParams, error) {
	if opts == nil {
		return message.CredentialRegistrationParams{}, fmt.Errorf("%w: publicKey options required", ErrUnsupportedOptions)
	}
	pk := opts.Response
	userID, err := encodeUserID(pk.User.ID)
	if err != nil {
		return message.CredentialRegistrationParams{}, err
	}
	params := message.CredentialRegistrationParams{
		Origin:      origin,
		Challenge:   b64(pk.Challenge),
		RP:          message.RelyingParty{ID: pk.RelyingParty.ID, Name: pk.RelyingParty.Name},
		User:        message.User{ID: userID, Name: pk.User.Name, DisplayName: pk.User.DisplayName},
		Attestation: string(pk.Attestation),
		Timeout:     pk.Timeout,
	}
	for _, p := range pk.Parameters {
		params.PubKeyCredParams = append(params.PubKeyCredParams, message.PubKeyCredParam{
			Type: string(p.Type),
			Alg:  int(p.Algorithm),
		})
	}
	if len(params.PubKeyCredParams) == 0 {
		params.PubKeyCredParams = append([]message.PubKeyCredParam(nil), defaultCredParams...)
	}
	for _, c := range pk.CredentialExcludeList {
		desc := message.CredentialDescriptor{Type: string(c.Type), ID: b64(c.CredentialID)}
		for _, tr := range c.Transport {
			desc.Transports = append(desc.Transports, string(tr))
		}
		params.ExcludeCredentials = append(params.ExcludeCredentials, desc)
	}
	sel := pk.AuthenticatorSelection
	if sel.AuthenticatorAttachment != "" || sel.RequireResidentKey != nil || sel.ResidentKey != "" || sel.UserVerification != "" {
		params.AuthenticatorSelection = &message.AuthenticatorSelection{
			AuthenticatorAttachment: string(sel.AuthenticatorAttachment),
			RequireResidentKey:      sel.RequireResidentKey != nil && *sel.RequireResidentKey,
			ResidentKey:             string(sel.ResidentKey),
			UserVerification:        string(sel.UserVerification),
		}
	}
	if raw, ok := pk.Extensions["credProps"]; ok {
		credProps, ok := raw.(bool)
		if !ok {
			return message.CredentialRegistrationParams{}, fmt.Errorf("%w: extensions.credProps is %T", ErrUnsupportedOptions, raw)
		}
		if credProps {
			params.Extensions = &message.Extensions{CredProps: true}
		}
	}
	if err := params.Validate(); err != nil {
		return message.CredentialRegistrationParams{}, fmt.Errorf("%w: %w", ErrUnsupportedOptions, err)
	}
	return params, nil
}

// encodeUserID accepts the representations go-webauthn and decoded JSON
// options use for user.id.
func encodeUserID(id any) (string, error) {
	switch v := id.(type) {
	case []byte:
		return b64(v), nil
	case protocol.URLEncodedBase64:
		return b64(v), nil
	case string:
		if _, err := base64.RawURLEncoding.DecodeString(v); err != nil {
			return "", fmt.Errorf("%w: user.id string is not base64url", ErrUnsupportedOptions)
		}
		return v, nil
	default:
		return "", fmt.Errorf("%w: user.id of type %T", ErrUnsupportedOptions, id)
	}
}

func b64(b []byte) string {
	return base64.RawURLEncoding.EncodeToString(b)
}
