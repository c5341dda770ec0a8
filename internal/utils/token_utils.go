package utils

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// AccessTokenExpiry reads the "exp" claim of a JWT access token without verifying
// its signature; the token is opaque to us and only the issuer can verify it.
// ok is false when the token is not a JWT or carries no expiry.
func AccessTokenExpiry(tokenString string) (expiry time.Time, ok bool) {
	claims := &jwt.RegisteredClaims{}
	_, _, err := jwt.NewParser().ParseUnverified(tokenString, claims)
	if err != nil || claims.ExpiresAt == nil {
		return time.Time{}, false
	}
	return claims.ExpiresAt.Time, true
}

// AccessTokenExpired reports whether the access token is known to be expired at now.
// Tokens whose expiry cannot be read count as expired so they get refreshed.
func AccessTokenExpired(tokenString string, now time.Time) bool {
	expiry, ok := AccessTokenExpiry(tokenString)
	if !ok {
		return true
	}
	return !now.Before(expiry)
}
