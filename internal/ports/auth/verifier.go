package auth

import "context"

// AuthVerifier valida un bearer token y devuelve sus claims. La
// implementación de producción es adapters/auth/jwtauth.
type AuthVerifier interface {
	Verify(ctx context.Context, token string) (Claims, error)
}
