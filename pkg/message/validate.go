package message

import (
	"encoding/base64"
	"fmt"
)

// Validate checks the fields a registration ceremony cannot proceed without.
func (p CredentialRegistrationParams) Validate() error {
	if p.Origin == "" {
		return fmt.Errorf("%w: data.origin required", ErrMalformed)
	}
	if err := requireBase64URL("data.challenge", p.Challenge); err != nil {
		return err
	}
	if p.RP.Name == "" {
		return fmt.Errorf("%w: data.rp.name required", ErrMalformed)
	}
	if err := requireBase64URL("data.user.id", p.User.ID); err != nil {
		return err
	}
	if len(p.PubKeyCredParams) == 0 {
		return fmt.Errorf("%w: data.pubKeyCredParams required", ErrMalformed)
	}
	for i, param := range p.PubKeyCredParams {
		if param.Type != PublicKeyType {
			return fmt.Errorf("%w: data.pubKeyCredParams[%d].type %q", ErrMalformed, i, param.Type)
		}
	}
	for i, cred := range p.ExcludeCredentials {
		if cred.Type != PublicKeyType {
			return fmt.Errorf("%w: data.excludeCredentials[%d].type %q", ErrMalformed, i, cred.Type)
		}
		if err := requireBase64URL(fmt.Sprintf("data.excludeCredentials[%d].id", i), cred.ID); err != nil {
			return err
		}
	}
	if p.Timeout < 0 {
		return fmt.Errorf("%w: data.timeout negative", ErrMalformed)
	}
	return nil
}

func requireBase64URL(field, value string) error {
	if value == "" {
		return fmt.Errorf("%w: %s required", ErrMalformed, field)
	}
	if _, err := base64.RawURLEncoding.DecodeString(value); err != nil {
		return fmt.Errorf("%w: %s is not base64url", ErrMalformed, field)
	}
	return nil
}
