package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func callWithAuth(key, header string) int {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	req := httptest.NewRequest(http.MethodPost, "/run/ingest", nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	rec := httptest.NewRecorder()
	APIKeyAuth(key)(next).ServeHTTP(rec, req)
	return rec.Code
}

func TestAPIKeyAuth(t *testing.T) {
	assert.Equal(t, http.StatusNoContent, callWithAuth("s3cret", "Bearer s3cret"))
	assert.Equal(t, http.StatusNoContent, callWithAuth("s3cret", "s3cret"), "bare key accepted")
	assert.Equal(t, http.StatusUnauthorized, callWithAuth("s3cret", "Bearer wrong"))
	assert.Equal(t, http.StatusUnauthorized, callWithAuth("s3cret", ""))
	assert.Equal(t, http.StatusNoContent, callWithAuth("", ""), "empty configured key disables auth")
}
