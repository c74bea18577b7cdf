package runenv

import "fmt"

// CIProvider is a Provider/Authenticator stub standing in for a real CI
// OIDC integration: it always reports CI and validates against a
// caller-supplied issuer/audience pair.
type CIProvider struct {
	Issuer   string
	Audience string
}

func (p *CIProvider) Detect() (Environment, error) { return CI, nil }

// AuthenticateLocal is never called for a CI environment but is
// implemented to satisfy Authenticator.
func (p *CIProvider) AuthenticateLocal() (string, error) {
	return "", fmt.Errorf("runenv: AuthenticateLocal called on a CI provider")
}

func (p *CIProvider) ValidateCIOIDC() error {
	if p.Issuer == "" || p.Audience == "" {
		return fmt.Errorf("runenv: CI OIDC configuration missing issuer or audience")
	}
	return nil
}
