package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChecksumRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "querydeck.yaml")
	require.NoError(t, os.WriteFile(path, []byte("service:\n  name: deck\n"), 0600))

	require.NoError(t, WriteChecksum(path))
	require.NoError(t, VerifyChecksum(path))
}

func TestChecksumDetectsTampering(t *testing.T) {
	path := filepath.Join(t.TempDir(), "querydeck.yaml")
	require.NoError(t, os.WriteFile(path, []byte("a: 1\n"), 0600))
	require.NoError(t, WriteChecksum(path))

	require.NoError(t, os.WriteFile(path, []byte("a: 2\n"), 0600))
	err := VerifyChecksum(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mismatch")
}

func TestChecksumMissingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "querydeck.yaml")
	require.NoError(t, os.WriteFile(path, []byte("a: 1\n"), 0600))

	err := VerifyChecksum(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "checksum file not found")
}

func TestComputeBlake3HashIsStable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "f")
	require.NoError(t, os.WriteFile(path, []byte("same bytes"), 0600))

	h1, err := ComputeBlake3Hash(path)
	require.NoError(t, err)
	h2, err := ComputeBlake3Hash(path)
	require.NoError(t, err)
	assert.Equal(t, h1, h2)
	assert.Len(t, h1, 64)
}
