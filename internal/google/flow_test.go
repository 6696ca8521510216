package google

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seekmail/seekmail/internal/apierr"
)

func callbackStatus(t *testing.T, url string) int {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	return resp.StatusCode
}

func TestConsentHandlerDeliversFirstCode(t *testing.T) {
	results := make(chan consentResult, 1)
	srv := httptest.NewServer(consentHandler("state-1", results))
	defer srv.Close()

	status := callbackStatus(t, srv.URL+"/callback?state=state-1&code=code-1")
	assert.Equal(t, http.StatusOK, status)

	res := <-results
	require.NoError(t, res.err)
	assert.Equal(t, "code-1", res.code)
}

func TestConsentHandlerSecondCallbackDoesNotBlock(t *testing.T) {
	results := make(chan consentResult, 1)
	srv := httptest.NewServer(consentHandler("state-1", results))
	defer srv.Close()

	// First callback fills the single-slot channel; nothing drains it yet.
	callbackStatus(t, srv.URL+"/callback?state=state-1&code=code-1")

	done := make(chan struct{})
	go func() {
		defer close(done)
		resp, err := http.Get(srv.URL + "/callback?state=state-1&code=code-2")
		if err == nil {
			resp.Body.Close()
		}
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("second callback blocked on the results channel")
	}

	res := <-results
	require.NoError(t, res.err)
	assert.Equal(t, "code-1", res.code, "only the first callback counts")
}

func TestConsentHandlerRejectsBadRedirects(t *testing.T) {
	tests := []struct {
		name       string
		query      string
		wantStatus int
	}{
		{"state mismatch", "state=forged&code=code-1", http.StatusBadRequest},
		{"user declined", "state=state-1&error=access_denied", http.StatusOK},
		{"missing code", "state=state-1", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			results := make(chan consentResult, 1)
			srv := httptest.NewServer(consentHandler("state-1", results))
			defer srv.Close()

			status := callbackStatus(t, srv.URL+"/callback?"+tt.query)
			assert.Equal(t, tt.wantStatus, status)

			res := <-results
			require.Error(t, res.err)
			assert.Equal(t, apierr.KindAuthDenied, apierr.KindOf(res.err))
		})
	}
}
