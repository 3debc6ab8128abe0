package relay

import (
	"crypto/subtle"
	"encoding/base64"
	"net/http"
	"strings"
)

// CredentialGate verifies a single username/password pair in constant
// time. When disabled, every check passes.
type CredentialGate struct {
	enabled  bool
	username string
	password string
}

// NewCredentialGate builds a gate for the given credentials
func NewCredentialGate(enabled bool, username, password string) *CredentialGate {
	return &CredentialGate{enabled: enabled, username: username, password: password}
}

// Enabled reports whether the gate checks credentials at all
func (g *CredentialGate) Enabled() bool {
	return g.enabled
}

// Verify compares the supplied credentials against the configured pair.
// Both comparisons run regardless of the first result so timing does not
// leak which half failed.
func (g *CredentialGate) Verify(username, password string) bool {
	userOK := subtle.ConstantTimeCompare([]byte(username), []byte(g.username)) == 1
	passOK := subtle.ConstantTimeCompare([]byte(password), []byte(g.password)) == 1
	return userOK && passOK
}

// CheckBasic verifies the HTTP Basic Authorization header on a request.
// Returns true when the gate is disabled or the credentials match.
func (g *CredentialGate) CheckBasic(r *http.Request) bool {
	if !g.enabled {
		return true
	}

	header := r.Header.Get("Authorization")
	if !strings.HasPrefix(header, "Basic ") {
		return false
	}

	decoded, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(header, "Basic "))
	if err != nil {
		return false
	}
	username, password, found := strings.Cut(string(decoded), ":")
	if !found {
		return false
	}
	return g.Verify(username, password)
}

// RequireBasic writes the 401 challenge response for a failed check
func RequireBasic(w http.ResponseWriter) {
	w.Header().Set("WWW-Authenticate", "Basic")
	http.Error(w, "authentication required", http.StatusUnauthorized)
}
