package tokens

import (
	domainauth "github.com/NordCoder/authd/internal/domain/auth"
)

// Validator resolves access tokens without touching the refresh store. An access token stays
// valid until its own expiry even if its family is later revoked.
type Validator struct {
	codec *Codec
}

func NewValidator(codec *Codec) *Validator {
	return &Validator{codec: codec}
}

func (v *Validator) Validate(accessToken string) (string, error) {
	userID, err := v.validate(accessToken)
	validationsTotal.WithLabelValues(resultLabel(err)).Inc()
	return userID, err
}

func (v *Validator) validate(accessToken string) (string, error) {
	cl, err := v.codec.Verify(accessToken)
	if err != nil {
		return "", err
	}
	if cl.Kind != domainauth.KindAccess {
		return "", domainauth.ErrWrongKind
	}
	return cl.Subject, nil
}
