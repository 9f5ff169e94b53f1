package utils

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignDownloadWithServiceAccountKey(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	keyPEM := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)})
	creds, err := json.Marshal(serviceAccountJSON{ClientEmail: "sync@project.iam.gserviceaccount.com", PrivateKey: string(keyPEM)})
	require.NoError(t, err)
	t.Setenv("GCS_CREDENTIALS_JSON", string(creds))

	signed, err := SignDownload(context.Background(), "reports", "sync-reports/1/2.json", time.Minute)
	require.NoError(t, err)
	assert.Contains(t, signed.URL, "/reports/sync-reports/1/2.json")
	assert.Contains(t, signed.URL, "X-Goog-Signature=")
	assert.Equal(t, "sync-reports/1/2.json", signed.ObjectKey)
	assert.True(t, signed.ExpiresAt.After(time.Now()))
}

func TestSignDownloadRejects(t *testing.T) {
	_, err := SignDownload(context.Background(), "", "a.json", time.Minute)
	assert.Error(t, err)
	_, err = SignDownload(context.Background(), "reports", "", time.Minute)
	assert.Error(t, err)

	t.Setenv("GCS_CREDENTIALS_JSON", `{"client_email": ""}`)
	_, err = SignDownload(context.Background(), "reports", "a.json", time.Minute)
	assert.Error(t, err)
}
