package services

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"
)

// JWTBearerGrantType is the grant used to trade a signed assertion for a token.
const JWTBearerGrantType = "urn:ietf:params:oauth:grant-type:jwt-bearer"

// maxErrorBody bounds how much of a failed response is kept for diagnostics.
const maxErrorBody = 64 << 10

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
}

// TokenExchanger trades signed assertions for bearer access tokens.
type TokenExchanger struct {
	client *http.Client
	now    func() time.Time
}

func NewTokenExchanger(client *http.Client, now func() time.Time) *TokenExchanger {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	if now == nil {
		now = time.Now
	}
	return &TokenExchanger{
		client: client,
		now:    now,
	}
}

// Exchange posts the assertion to tokenURI and returns the issued token.
func (e *TokenExchanger) Exchange(ctx context.Context, assertion, tokenURI string) (*oauth2.Token, error) {
	form := url.Values{}
	form.Set("grant_type", JWTBearerGrantType)
	form.Set("assertion", assertion)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, tokenURI, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, &ExchangeError{Err: err}
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, &ExchangeError{Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if err != nil {
		return nil, &ExchangeError{StatusCode: resp.StatusCode, Err: fmt.Errorf("read response: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &ExchangeError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	var payload tokenResponse
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, &ExchangeError{StatusCode: resp.StatusCode, Body: string(body), Err: fmt.Errorf("decode response: %w", err)}
	}
	if payload.AccessToken == "" {
		return nil, &ExchangeError{StatusCode: resp.StatusCode, Body: string(body), Err: fmt.Errorf("response has no access_token")}
	}

	token := &oauth2.Token{
		AccessToken: payload.AccessToken,
		TokenType:   payload.TokenType,
	}
	if token.TokenType == "" {
		token.TokenType = "Bearer"
	}
	if payload.ExpiresIn > 0 {
		token.Expiry = e.now().Add(time.Duration(payload.ExpiresIn) * time.Second)
	}
	return token, nil
}
