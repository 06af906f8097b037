package services

import (
	"context"
	"time"

	"golang.org/x/oauth2"

	"github.com/CyberwizD/fcm-push-dispatcher/internal/models"
)

// TokenDirectory resolves a user to the devices registered for them.
// An empty result is not an error.
type TokenDirectory interface {
	Lookup(ctx context.Context, userID string) ([]models.DeviceTarget, error)
}

// PushSender delivers one message to one device.
type PushSender interface {
	Name() string
	Send(ctx context.Context, token *oauth2.Token, projectID string, target models.DeviceTarget, payload models.NotificationPayload) models.DeliveryOutcome
}

// SuppressionCache remembers registration ids that the provider reported as dead.
type SuppressionCache interface {
	IsTokenSuppressed(ctx context.Context, token string) (bool, error)
	SuppressToken(ctx context.Context, token string, ttl time.Duration) error
}
