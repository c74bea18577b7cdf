package runenv

import "fmt"

// LocalProvider is a Provider/Authenticator stub for local development
// and tests: it always reports Local and authenticates with a
// caller-supplied token.
type LocalProvider struct {
	Token string
}

func (p *LocalProvider) Detect() (Environment, error) { return Local, nil }

func (p *LocalProvider) AuthenticateLocal() (string, error) {
	if p.Token == "" {
		return "", fmt.Errorf("no local auth token configured")
	}
	return p.Token, nil
}

// ValidateCIOIDC is never called for a Local environment but is
// implemented to satisfy Authenticator.
func (p *LocalProvider) ValidateCIOIDC() error {
	return fmt.Errorf("runenv: ValidateCIOIDC called on a local provider")
}
