package relay

import (
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCredentialGate_Verify(t *testing.T) {
	gate := NewCredentialGate(true, "admin", "1234")

	assert.True(t, gate.Verify("admin", "1234"))
	assert.False(t, gate.Verify("admin", "wrong"))
	assert.False(t, gate.Verify("wrong", "1234"))
	assert.False(t, gate.Verify("", ""))
}

func TestCredentialGate_Disabled(t *testing.T) {
	gate := NewCredentialGate(false, "admin", "1234")

	assert.False(t, gate.Enabled())

	// A disabled gate admits every request, credentials or not.
	r := httptest.NewRequest(http.MethodGet, "/ws/ais", nil)
	assert.True(t, gate.CheckBasic(r))
}

func TestCredentialGate_CheckBasic(t *testing.T) {
	gate := NewCredentialGate(true, "admin", "1234")

	r := httptest.NewRequest(http.MethodGet, "/ws/ais", nil)
	r.SetBasicAuth("admin", "1234")
	assert.True(t, gate.CheckBasic(r))

	r = httptest.NewRequest(http.MethodGet, "/ws/ais", nil)
	r.SetBasicAuth("admin", "wrong")
	assert.False(t, gate.CheckBasic(r))

	r = httptest.NewRequest(http.MethodGet, "/ws/ais", nil)
	assert.False(t, gate.CheckBasic(r), "missing header")

	r = httptest.NewRequest(http.MethodGet, "/ws/ais", nil)
	r.Header.Set("Authorization", "Bearer token")
	assert.False(t, gate.CheckBasic(r), "wrong scheme")

	r = httptest.NewRequest(http.MethodGet, "/ws/ais", nil)
	r.Header.Set("Authorization", "Basic not-base64!!")
	assert.False(t, gate.CheckBasic(r), "undecodable payload")

	// Valid base64 but no colon separator.
	r = httptest.NewRequest(http.MethodGet, "/ws/ais", nil)
	r.Header.Set("Authorization", "Basic "+base64.StdEncoding.EncodeToString([]byte("admin1234")))
	assert.False(t, gate.CheckBasic(r))
}

func TestRequireBasic(t *testing.T) {
	rec := httptest.NewRecorder()
	RequireBasic(rec)

	resp := rec.Result()
	defer resp.Body.Close()

	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "Basic", resp.Header.Get("WWW-Authenticate"))
}
