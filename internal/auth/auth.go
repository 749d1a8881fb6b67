// Package auth resolves an optional user identity from a bearer token.
// The deployment works fine fully anonymous; when a signing secret is
// configured, authenticated visitors get a stable identity for rate
// limiting instead of sharing an IP bucket.
package auth

import (
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

// Claims is the token payload chattwin issues and accepts.
type Claims struct {
	jwt.RegisteredClaims
	UserID string `json:"user_id"`
}

// Verifier checks bearer tokens against a shared HS256 secret.
type Verifier struct {
	secret []byte
}

// NewVerifier returns a verifier for the given secret. An empty secret
// disables verification entirely.
func NewVerifier(secret string) *Verifier {
	trimmed := strings.TrimSpace(secret)
	if trimmed == "" {
		return &Verifier{}
	}
	return &Verifier{secret: []byte(trimmed)}
}

// Enabled reports whether token verification is configured.
func (v *Verifier) Enabled() bool {
	return len(v.secret) > 0
}

// UserID extracts the authenticated user ID from the request, or ""
// when the request carries no valid token. Authentication is optional,
// so a bad token downgrades the caller to anonymous rather than
// failing the request.
func (v *Verifier) UserID(r *http.Request) string {
	if !v.Enabled() || r == nil {
		return ""
	}

	header := r.Header.Get("Authorization")
	tokenString, found := strings.CutPrefix(header, "Bearer ")
	if !found || strings.TrimSpace(tokenString) == "" {
		return ""
	}

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return v.secret, nil
	})
	if err != nil || !token.Valid {
		return ""
	}

	claims, ok := token.Claims.(*Claims)
	if !ok {
		return ""
	}
	if claims.UserID != "" {
		return claims.UserID
	}
	return claims.Subject
}

// IssueToken mints a token for the given user, mainly for local
// testing against a secret-enabled deployment.
func (v *Verifier) IssueToken(userID string, lifetime time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(lifetime)),
		},
		UserID: userID,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(v.secret)
}
