package models

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
)

// ServiceAccountCredential is the subset of a Google service account key file
// needed to mint FCM access tokens.
type ServiceAccountCredential struct {
	Type         string `json:"type"`
	ProjectID    string `json:"project_id"`
	PrivateKeyID string `json:"private_key_id"`
	PrivateKey   string `json:"private_key"`
	ClientEmail  string `json:"client_email"`
	ClientID     string `json:"client_id"`
	TokenURI     string `json:"token_uri"`
}

// ParseServiceAccount decodes a service account key. The input may be the raw
// JSON document or the same document base64 encoded.
func ParseServiceAccount(raw []byte) (ServiceAccountCredential, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return ServiceAccountCredential{}, fmt.Errorf("service account json is empty")
	}
	if raw[0] != '{' {
		decoded, err := base64.StdEncoding.DecodeString(string(raw))
		if err != nil {
			return ServiceAccountCredential{}, fmt.Errorf("service account is neither json nor base64: %w", err)
		}
		raw = decoded
	}

	var cred ServiceAccountCredential
	if err := json.Unmarshal(raw, &cred); err != nil {
		return ServiceAccountCredential{}, fmt.Errorf("decode service account json: %w", err)
	}
	if err := cred.Validate(); err != nil {
		return ServiceAccountCredential{}, err
	}
	return cred, nil
}

// Validate checks that the fields used for signing and dispatch are present.
func (c ServiceAccountCredential) Validate() error {
	var missing []string
	if strings.TrimSpace(c.ClientEmail) == "" {
		missing = append(missing, "client_email")
	}
	if strings.TrimSpace(c.PrivateKey) == "" {
		missing = append(missing, "private_key")
	}
	if strings.TrimSpace(c.TokenURI) == "" {
		missing = append(missing, "token_uri")
	}
	if strings.TrimSpace(c.ProjectID) == "" {
		missing = append(missing, "project_id")
	}
	if len(missing) > 0 {
		return fmt.Errorf("service account missing fields: %v", missing)
	}
	return nil
}
