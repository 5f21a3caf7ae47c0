package firebaseapp

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRejectsBadBase64(t *testing.T) {
	_, err := New(context.Background(), Options{EncodedCredentials: "%%%not-base64"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode base64")
}

func TestNewRequiresCredentialsFile(t *testing.T) {
	_, err := New(context.Background(), Options{CredentialsFile: t.TempDir() + "/missing.json"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "local firebase file not found")
}
