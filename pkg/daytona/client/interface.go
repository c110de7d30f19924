package client

import "context"

// FleetAPI defines the Daytona Admin API surface consumed by the runner
// fleet autoscaler. Implemented by Client and mocked in tests.
type FleetAPI interface {
	// ListRunners returns all runners registered in the given region
	ListRunners(ctx context.Context, regionID string) ([]Runner, error)
}

// AuthAPI defines the Daytona API surface consumed by the preview proxy
// authentication layer. Implemented by Client and mocked in tests.
type AuthAPI interface {
	// ValidateSandboxBearerToken reports whether the bearer token is
	// authorized for the sandbox
	ValidateSandboxBearerToken(ctx context.Context, sandboxID, token string) (bool, error)

	// ValidateSandboxAuthKey reports whether the auth key is authorized
	// for the sandbox
	ValidateSandboxAuthKey(ctx context.Context, sandboxID, authKey string) (bool, error)

	// ExchangeSignedPreviewToken resolves a signed preview URL token to the
	// sandbox id it grants access to
	ExchangeSignedPreviewToken(ctx context.Context, token string, port int) (string, error)

	// GetAuthURL returns the upstream auth URL to redirect unauthenticated
	// clients to
	GetAuthURL(ctx context.Context, sandboxIDOrToken string) (string, error)
}

// Ensure Client implements both interfaces
var (
	_ FleetAPI = (*Client)(nil)
	_ AuthAPI  = (*Client)(nil)
)
