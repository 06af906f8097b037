package services

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenExchanger_ReturnsAccessToken(t *testing.T) {
	now := time.Unix(1700000000, 0)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/x-www-form-urlencoded", r.Header.Get("Content-Type"))
		assert.NoError(t, r.ParseForm())
		assert.Equal(t, JWTBearerGrantType, r.PostForm.Get("grant_type"))
		assert.Equal(t, "signed.jwt.value", r.PostForm.Get("assertion"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"access_token":"abc","token_type":"Bearer","expires_in":3599}`)
	}))
	defer srv.Close()

	exchanger := NewTokenExchanger(srv.Client(), func() time.Time { return now })
	token, err := exchanger.Exchange(context.Background(), "signed.jwt.value", srv.URL)
	require.NoError(t, err)

	assert.Equal(t, "abc", token.AccessToken)
	assert.Equal(t, "Bearer", token.Type())
	assert.Equal(t, now.Add(3599*time.Second), token.Expiry)
}

func TestTokenExchanger_MinimalBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"access_token":"abc"}`)
	}))
	defer srv.Close()

	token, err := NewTokenExchanger(srv.Client(), nil).Exchange(context.Background(), "a.b.c", srv.URL)
	require.NoError(t, err)
	assert.Equal(t, "abc", token.AccessToken)
	assert.Equal(t, "Bearer", token.TokenType)
	assert.True(t, token.Expiry.IsZero())
}

func TestTokenExchanger_NonSuccessKeepsStatusAndBody(t *testing.T) {
	const body = `{"error":"invalid_grant","error_description":"Invalid JWT Signature."}`
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = io.WriteString(w, body)
	}))
	defer srv.Close()

	_, err := NewTokenExchanger(srv.Client(), nil).Exchange(context.Background(), "a.b.c", srv.URL)
	require.Error(t, err)

	var exErr *ExchangeError
	require.True(t, errors.As(err, &exErr))
	assert.Equal(t, http.StatusUnauthorized, exErr.StatusCode)
	assert.Equal(t, body, exErr.Body)
	assert.Contains(t, err.Error(), "401")
}

func TestTokenExchanger_MissingAccessToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"token_type":"Bearer"}`)
	}))
	defer srv.Close()

	_, err := NewTokenExchanger(srv.Client(), nil).Exchange(context.Background(), "a.b.c", srv.URL)
	var exErr *ExchangeError
	require.True(t, errors.As(err, &exErr))
	assert.Equal(t, http.StatusOK, exErr.StatusCode)
	assert.Equal(t, `{"token_type":"Bearer"}`, exErr.Body)
}

func TestTokenExchanger_MalformedBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `<html>gateway</html>`)
	}))
	defer srv.Close()

	_, err := NewTokenExchanger(srv.Client(), nil).Exchange(context.Background(), "a.b.c", srv.URL)
	var exErr *ExchangeError
	require.True(t, errors.As(err, &exErr))
	assert.Equal(t, `<html>gateway</html>`, exErr.Body)
}

func TestTokenExchanger_TransportError(t *testing.T) {
	client := &http.Client{Transport: roundTripFunc(func(*http.Request) (*http.Response, error) {
		return nil, errors.New("connection reset by peer")
	})}

	_, err := NewTokenExchanger(client, nil).Exchange(context.Background(), "a.b.c", "https://oauth2.example.test/token")
	var exErr *ExchangeError
	require.True(t, errors.As(err, &exErr))
	assert.Zero(t, exErr.StatusCode)
	assert.Contains(t, err.Error(), "connection reset by peer")
}
