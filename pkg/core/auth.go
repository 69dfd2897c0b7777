package core

import (
	"crypto/subtle"
	"net/http"
	"strings"
	"time"
)

// Authentication schemes accepted by the HTTP surfaces.
const (
	AuthNone   = "none"
	AuthBearer = "bearer"
	AuthBasic  = "basic"
)

// MinAuthTokenLength is the shortest token ValidateAuthToken accepts.
const MinAuthTokenLength = 16

var weakTokenParts = []string{
	"password", "secret", "token", "admin", "test", "default",
	"overpass", "12345", "qwerty",
}

// SecureCompareString compares a and b in constant time.
func SecureCompareString(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// ValidateAuthToken rejects empty, short and obviously guessable tokens.
func ValidateAuthToken(token string) error {
	if token == "" {
		return NewError(ErrEmptyParameter, "Authentication token cannot be empty").
			WithGuidance("Set server.auth_token or disable authentication.")
	}
	if len(token) < MinAuthTokenLength {
		return NewError(ErrInvalidParameter, "Authentication token is too short").
			WithGuidance("Use a token with at least 16 characters.")
	}
	lower := strings.ToLower(token)
	for _, weak := range weakTokenParts {
		if strings.Contains(lower, weak) {
			return NewError(ErrInvalidParameter, "Authentication token appears to be weak").
				WithGuidance("Use a randomly generated token.")
		}
	}
	return nil
}

// AuthResult is the outcome of one authentication attempt.
type AuthResult struct {
	Authorized bool
	Error      string
	Duration   time.Duration
}

// Authenticate checks r against the configured scheme. For basic auth the
// secret is "user:password".
func Authenticate(r *http.Request, authType, secret string) AuthResult {
	start := time.Now()
	result := func(errMsg string) AuthResult {
		return AuthResult{Authorized: errMsg == "", Error: errMsg, Duration: time.Since(start)}
	}

	switch strings.ToLower(authType) {
	case "", AuthNone:
		return result("")
	case AuthBearer:
		return result(checkBearer(r.Header.Get("Authorization"), secret))
	case AuthBasic:
		user, pass, ok := r.BasicAuth()
		if !ok || user == "" || pass == "" {
			return result("Missing basic auth credentials")
		}
		if !SecureCompareString(user+":"+pass, secret) {
			return result("Invalid basic auth credentials")
		}
		return result("")
	}
	return result("Unknown auth type")
}

func checkBearer(header, token string) string {
	if header == "" {
		return "Missing Authorization header"
	}
	scheme, value, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "Invalid Authorization header format"
	}
	if !SecureCompareString(strings.TrimSpace(value), token) {
		return "Invalid bearer token"
	}
	return ""
}
