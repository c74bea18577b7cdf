// Package runenv defines the narrow collaborator interfaces the
// Execution Context consults for facts and side effects that live
// outside this module's scope: which environment the runner is
// executing in, how to authenticate, and where to ship collected
// results. Real implementations (a codspeed.io client, a GitHub Actions
// OIDC exchange) are out of scope here; this package only fixes the
// seam and ships a local stub for tests.
package runenv

import "context"

// Environment is where the runner is executing.
type Environment int

const (
	Local Environment = iota
	CI
)

func (e Environment) String() string {
	if e == CI {
		return "ci"
	}
	return "local"
}

// Provider resolves which Environment the runner is executing in.
type Provider interface {
	Detect() (Environment, error)
}

// Authenticator supplies the credential the Execution Context needs for
// the resolved Environment: a local token for Local, or a validated
// OIDC configuration for CI.
type Authenticator interface {
	// AuthenticateLocal returns the local auth token, or an error if
	// none is configured.
	AuthenticateLocal() (string, error)

	// ValidateCIOIDC checks the ambient CI OIDC configuration (issuer,
	// audience) is usable, without returning a token: CI authenticates
	// per-request via the OIDC token exchange, not a static credential.
	ValidateCIOIDC() error
}

// Outcome mirrors the shape of executor.Outcome without importing the
// executor package, keeping this out-of-scope seam dependency-free in
// the direction that matters: executor and execctx may depend on
// runenv, not the reverse.
type Outcome struct {
	Name         string
	URI          string
	Succeeded    bool
	ArtifactPath string
}

// ResultsUploader ships collected Outcomes to the results service. Out
// of scope for this module's core; callers inject a real
// implementation at the CLI layer.
type ResultsUploader interface {
	Upload(ctx context.Context, outcomes []Outcome) error
}
