package middleware

import (
	"context"
	jwtutil "fleetpush/backend/app/jwt"
)

func WithClaims(ctx context.Context, c *jwtutil.Claims) context.Context {
	return context.WithValue(ctx, ClaimsKey, c)
}

// GetClaims returns the authenticated caller, or nil outside RequireAuth.
func GetClaims(ctx context.Context) *jwtutil.Claims {
	if c, ok := ctx.Value(ClaimsKey).(*jwtutil.Claims); ok {
		return c
	}
	return nil
}
