package api

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateAPIKey(t *testing.T) {
	assert.True(t, ValidateAPIKey("secret", "secret"))
	assert.False(t, ValidateAPIKey("wrong", "secret"))
	assert.False(t, ValidateAPIKey("", "secret"))
	assert.False(t, ValidateAPIKey("secret", ""), "empty config key disables the API")
	assert.False(t, ValidateAPIKey("", ""))
}

func TestExtractAPIKey(t *testing.T) {
	req := func(header string) *http.Request {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		if header != "" {
			r.Header.Set("Authorization", header)
		}
		return r
	}

	key, err := ExtractAPIKey(req("Bearer abc123"))
	require.NoError(t, err)
	assert.Equal(t, "abc123", key)

	key, err = ExtractAPIKey(req("Bearer   spaced  "))
	require.NoError(t, err)
	assert.Equal(t, "spaced", key)

	_, err = ExtractAPIKey(req(""))
	assert.Error(t, err)

	_, err = ExtractAPIKey(req("Basic abc"))
	assert.Error(t, err)

	_, err = ExtractAPIKey(req("Bearer   "))
	assert.Error(t, err)
}
