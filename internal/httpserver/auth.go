package httpserver

import (
	"net/http"
	"strings"
)

// BearerOrCookie extracts the raw access token from the Authorization
// header, falling back to the named HTTPOnly cookie. Every endpoint that
// requires authentication accepts either form, per the dual-auth surface.
func BearerOrCookie(r *http.Request, cookieName string) string {
	if auth := r.Header.Get("Authorization"); auth != "" {
		if tok, ok := strings.CutPrefix(auth, "Bearer "); ok {
			return strings.TrimSpace(tok)
		}
	}
	if cookieName != "" {
		if c, err := r.Cookie(cookieName); err == nil {
			return c.Value
		}
	}
	return ""
}
