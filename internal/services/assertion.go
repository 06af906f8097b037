package services

import (
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"regexp"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"

	"github.com/CyberwizD/fcm-push-dispatcher/internal/models"
)

const (
	// MessagingScope is the OAuth2 scope required by the FCM HTTP v1 API.
	MessagingScope = "https://www.googleapis.com/auth/firebase.messaging"
	// AssertionLifetime is the validity of a signed assertion.
	AssertionLifetime = 3600 * time.Second
)

var pemMarker = regexp.MustCompile(`-----(BEGIN|END)[A-Z0-9 ]*-----`)

// AssertionBuilder signs OAuth2 JWT-bearer assertions for a service account.
type AssertionBuilder struct {
	scope string
}

func NewAssertionBuilder() *AssertionBuilder {
	return &AssertionBuilder{scope: MessagingScope}
}

// Build returns header.payload.signature for cred, issued at now.
func (b *AssertionBuilder) Build(cred models.ServiceAccountCredential, now time.Time) (string, error) {
	key, err := parsePrivateKey(cred.PrivateKey)
	if err != nil {
		return "", err
	}

	issuedAt := now.Unix()
	claims := jwt.MapClaims{
		"iss":   cred.ClientEmail,
		"sub":   cred.ClientEmail,
		"aud":   cred.TokenURI,
		"iat":   issuedAt,
		"exp":   issuedAt + int64(AssertionLifetime/time.Second),
		"scope": b.scope,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	signed, err := token.SignedString(key)
	if err != nil {
		return "", &CredentialError{Reason: "sign assertion", Err: err}
	}
	return signed, nil
}

// parsePrivateKey recovers a PKCS#8 RSA key from PEM text. Markers and every
// whitespace character are dropped before decoding, so CRLF and LF keys and
// keys with escaped "\n" sequences are all accepted.
func parsePrivateKey(pemText string) (*rsa.PrivateKey, error) {
	body := pemMarker.ReplaceAllString(pemText, "")
	body = strings.ReplaceAll(body, `\n`, "")
	body = strings.Join(strings.Fields(body), "")
	if body == "" {
		return nil, &CredentialError{Reason: "private key is empty"}
	}

	der, err := base64.StdEncoding.DecodeString(body)
	if err != nil {
		return nil, &CredentialError{Reason: "decode private key base64", Err: err}
	}

	parsed, err := x509.ParsePKCS8PrivateKey(der)
	if err != nil {
		return nil, &CredentialError{Reason: "parse pkcs8 private key", Err: err}
	}
	key, ok := parsed.(*rsa.PrivateKey)
	if !ok {
		return nil, &CredentialError{Reason: "private key is not RSA"}
	}
	return key, nil
}

// ParseCredential decodes a service account key file, raw or base64 encoded.
func ParseCredential(raw []byte) (models.ServiceAccountCredential, error) {
	cred, err := models.ParseServiceAccount(raw)
	if err != nil {
		return models.ServiceAccountCredential{}, &CredentialError{Reason: "parse service account", Err: err}
	}
	return cred, nil
}
