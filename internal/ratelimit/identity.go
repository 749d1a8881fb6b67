package ratelimit

import (
	"net/http"
	"strings"
)

// AnonymousIdentifier is the fallback bucket when no user, session, or
// client address can be derived.
const AnonymousIdentifier = "anonymous"

// ipHeaders are checked in order of preference. x-forwarded-for comes
// first (CloudFront, ALB), then nginx's x-real-ip, then Cloudflare.
var ipHeaders = []string{
	"x-forwarded-for",
	"x-real-ip",
	"cf-connecting-ip",
}

// ClientIdentifier derives the rate-limit bucket key for a request.
//
// Precedence: authenticated user, then session, then client IP from
// proxy headers, then the shared anonymous bucket. The result is opaque
// to the limiter; it only needs to be stable for the same client.
func ClientIdentifier(r *http.Request, userID, sessionID string) string {
	if userID != "" {
		return "user:" + userID
	}

	if sessionID != "" {
		return "session:" + sessionID
	}

	if r != nil {
		for _, header := range ipHeaders {
			value := r.Header.Get(header)
			if value == "" {
				continue
			}
			// x-forwarded-for may be a comma-separated chain; the first
			// entry is the originating client.
			if idx := strings.Index(value, ","); idx >= 0 {
				value = value[:idx]
			}
			if addr := strings.TrimSpace(value); addr != "" {
				return "ip:" + addr
			}
		}
	}

	return AnonymousIdentifier
}
