package services

import (
	"fmt"
	"strings"
)

// ValidationError reports required request fields that were empty.
type ValidationError struct {
	Missing []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("missing required parameters: %s", strings.Join(e.Missing, ", "))
}

// CredentialError means the service account key could not be used for signing.
// It is raised before any network call.
type CredentialError struct {
	Reason string
	Err    error
}

func (e *CredentialError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("credential: %s: %v", e.Reason, e.Err)
	}
	return "credential: " + e.Reason
}

func (e *CredentialError) Unwrap() error { return e.Err }

// ExchangeError means the token endpoint rejected the assertion or returned
// an unusable body. Body is the response text, unmodified.
type ExchangeError struct {
	StatusCode int
	Body       string
	Err        error
}

func (e *ExchangeError) Error() string {
	switch {
	case e.Err != nil && e.StatusCode == 0:
		return fmt.Sprintf("token exchange failed: %v", e.Err)
	case e.Err != nil:
		return fmt.Sprintf("token exchange returned %d: %v: %s", e.StatusCode, e.Err, e.Body)
	default:
		return fmt.Sprintf("token exchange returned %d: %s", e.StatusCode, e.Body)
	}
}

func (e *ExchangeError) Unwrap() error { return e.Err }

// DirectoryError wraps a failed device token lookup.
type DirectoryError struct {
	UserID string
	Err    error
}

func (e *DirectoryError) Error() string {
	return fmt.Sprintf("lookup device tokens for user %s: %v", e.UserID, e.Err)
}

func (e *DirectoryError) Unwrap() error { return e.Err }
