package services

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"net/http"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/CyberwizD/fcm-push-dispatcher/internal/models"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

var (
	testKeyOnce sync.Once
	testKey     *rsa.PrivateKey
)

// testRSAKey returns a key shared by the whole package; generating one per
// test makes the suite slow.
func testRSAKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	testKeyOnce.Do(func() {
		key, err := rsa.GenerateKey(rand.Reader, 2048)
		if err != nil {
			panic(err)
		}
		testKey = key
	})
	return testKey
}

func pkcs8PEM(t *testing.T, key *rsa.PrivateKey) string {
	t.Helper()
	der, err := x509.MarshalPKCS8PrivateKey(key)
	require.NoError(t, err)
	return string(pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der}))
}

func testCredential(t *testing.T, tokenURI string) models.ServiceAccountCredential {
	t.Helper()
	return models.ServiceAccountCredential{
		Type:        "service_account",
		ProjectID:   "demo-project",
		PrivateKey:  pkcs8PEM(t, testRSAKey(t)),
		ClientEmail: "push@demo-project.iam.gserviceaccount.com",
		TokenURI:    tokenURI,
	}
}
