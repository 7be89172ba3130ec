package gbp

import "fmt"

// AuthError marks credential failures (401/403 from the API, invalid_grant from the
// token endpoint). Callers downgrade the tenant to needs_reconnection and surface
// requiresReauth.
type AuthError struct {
	StatusCode int
	Body       string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("gbp auth error %d: %s", e.StatusCode, e.Body)
}
