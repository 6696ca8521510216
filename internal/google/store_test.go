package google

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

func TestStoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "token.json")
	store := NewStore(path)

	_, err := store.Load()
	assert.ErrorIs(t, err, ErrNoCredential)

	cred := &Credential{
		AccessToken:  "at-1",
		RefreshToken: "rt-1",
		TokenType:    "Bearer",
		Expiry:       time.Now().Add(time.Hour).Truncate(time.Second),
		Scopes:       DefaultScopes,
	}
	require.NoError(t, store.Save(cred))

	got, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, cred.AccessToken, got.AccessToken)
	assert.Equal(t, cred.RefreshToken, got.RefreshToken)
	assert.True(t, cred.Expiry.Equal(got.Expiry))
	assert.Equal(t, cred.Scopes, got.Scopes)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	require.NoError(t, store.Clear())
	_, err = store.Load()
	assert.ErrorIs(t, err, ErrNoCredential)
	// Clearing twice stays clean.
	assert.NoError(t, store.Clear())
}

func TestFromTokenKeepsPriorRefreshToken(t *testing.T) {
	prev := &Credential{RefreshToken: "rt-old"}
	// Google omits the refresh token on renewals.
	tok := &oauth2.Token{AccessToken: "at-2", Expiry: time.Now().Add(time.Hour)}

	got := FromToken(tok, DefaultScopes, prev)
	assert.Equal(t, "rt-old", got.RefreshToken)
	assert.Equal(t, "at-2", got.AccessToken)

	// A fresh grant carries its own refresh token.
	tok.RefreshToken = "rt-new"
	assert.Equal(t, "rt-new", FromToken(tok, DefaultScopes, prev).RefreshToken)
}
