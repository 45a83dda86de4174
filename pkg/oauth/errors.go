package oauth

import "errors"

var (
	// ErrProviderDisabled means the provider has no configuration.
	ErrProviderDisabled = errors.New("provider not configured")

	// ErrCSRFMismatch means the state parameter did not match the flow
	// cookie exactly.
	ErrCSRFMismatch = errors.New("CSRF token mismatch")

	// ErrMissingCSRF means no flow cookie was found for the state.
	ErrMissingCSRF = errors.New("CSRF token not found")

	// ErrMissingPKCE means the PKCE verifier cookie was absent for a
	// provider that requires it.
	ErrMissingPKCE = errors.New("PKCE verifier not found")

	// ErrTokenExchange means the code-for-token exchange failed.
	ErrTokenExchange = errors.New("token exchange failed")

	// ErrProfileFetch means the userinfo request failed or returned an
	// unusable body.
	ErrProfileFetch = errors.New("profile fetch failed")
)
