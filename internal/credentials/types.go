package credentials

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrNotFound is returned by Store.Get when no credentials are stored.
var ErrNotFound = errors.New("credentials not found")

// Pair is the access and refresh token pair issued by the backend's session
// endpoints.
type Pair struct {
	AccessToken  string `json:"token"`
	RefreshToken string `json:"refresh_token"`
}

// AccessExpiry returns the exp claim of a JWT access token. The signature is
// not verified; the result is informational only.
func (p Pair) AccessExpiry() (time.Time, bool) {
	if p.AccessToken == "" {
		return time.Time{}, false
	}
	claims := jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(p.AccessToken, &claims); err != nil {
		return time.Time{}, false
	}
	if claims.ExpiresAt == nil {
		return time.Time{}, false
	}
	return claims.ExpiresAt.Time, true
}
