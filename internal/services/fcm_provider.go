package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"github.com/CyberwizD/fcm-push-dispatcher/internal/models"
)

// DefaultFCMEndpoint is the host of the FCM HTTP v1 API.
const DefaultFCMEndpoint = "https://fcm.googleapis.com"

// FCMProvider sends notifications via the Firebase Cloud Messaging HTTP v1 API.
type FCMProvider struct {
	endpoint string
	client   *http.Client
	logger   *slog.Logger
}

func NewFCMProvider(endpoint string, timeout time.Duration, logger *slog.Logger) *FCMProvider {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return NewFCMProviderWithClient(endpoint, &http.Client{Timeout: timeout}, logger)
}

func NewFCMProviderWithClient(endpoint string, client *http.Client, logger *slog.Logger) *FCMProvider {
	if endpoint == "" {
		endpoint = DefaultFCMEndpoint
	}
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &FCMProvider{
		endpoint: strings.TrimRight(endpoint, "/"),
		client:   client,
		logger:   logger.With("component", "fcm"),
	}
}

func (p *FCMProvider) Name() string {
	return "fcm"
}

type fcmMessage struct {
	Message fcmMessageBody `json:"message"`
}

type fcmMessageBody struct {
	Token        string            `json:"token"`
	Notification fcmNotification   `json:"notification"`
	Data         map[string]string `json:"data,omitempty"`
}

type fcmNotification struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

// fcmErrorBody is the google.rpc.Status envelope returned on failure.
type fcmErrorBody struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
		Details []struct {
			Type      string `json:"@type"`
			ErrorCode string `json:"errorCode"`
		} `json:"details"`
	} `json:"error"`
}

// SendURL returns the messages:send URL for a project.
func (p *FCMProvider) SendURL(projectID string) string {
	return fmt.Sprintf("%s/v1/projects/%s/messages:send", p.endpoint, url.PathEscape(projectID))
}

// Send posts a single message. It never returns an error: every problem,
// including transport errors, becomes a failed outcome.
func (p *FCMProvider) Send(
	ctx context.Context,
	token *oauth2.Token,
	projectID string,
	target models.DeviceTarget,
	payload models.NotificationPayload,
) models.DeliveryOutcome {
	body, err := json.Marshal(fcmMessage{
		Message: fcmMessageBody{
			Token: target.RegistrationID,
			Notification: fcmNotification{
				Title: payload.Title,
				Body:  payload.Body,
			},
			Data: payload.Data,
		},
	})
	if err != nil {
		return models.Failed(&models.DeliveryFailure{Err: fmt.Errorf("fcm: encode message: %w", err)})
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.SendURL(projectID), bytes.NewReader(body))
	if err != nil {
		return models.Failed(&models.DeliveryFailure{Err: fmt.Errorf("fcm: build request: %w", err)})
	}
	req.Header.Set("Content-Type", "application/json")
	token.SetAuthHeader(req)

	resp, err := p.client.Do(req)
	if err != nil {
		p.logger.Warn("fcm send failed",
			slog.String("token", models.MaskToken(target.RegistrationID)),
			slog.String("platform_category", models.PlatformCategory(target.Platform)),
			slog.Any("error", err),
		)
		return models.Failed(&models.DeliveryFailure{Err: fmt.Errorf("fcm: %w", err)})
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if err != nil {
		return models.Failed(&models.DeliveryFailure{
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("fcm: read response: %w", err),
		})
	}

	if resp.StatusCode >= 200 && resp.StatusCode <= 299 {
		var parsed map[string]interface{}
		if len(bytes.TrimSpace(raw)) > 0 {
			if err := json.Unmarshal(raw, &parsed); err != nil {
				parsed = map[string]interface{}{"raw": string(raw)}
			}
		}
		return models.Delivered(parsed)
	}

	failure := &models.DeliveryFailure{StatusCode: resp.StatusCode}
	var detail interface{}
	if err := json.Unmarshal(raw, &detail); err == nil {
		failure.Detail = detail
		failure.ErrorCode = errorCode(raw)
	} else {
		failure.Detail = string(raw)
	}

	p.logger.Warn("fcm rejected message",
		slog.String("token", models.MaskToken(target.RegistrationID)),
		slog.String("platform_category", models.PlatformCategory(target.Platform)),
		slog.Int("status", resp.StatusCode),
		slog.String("error_code", failure.ErrorCode),
	)
	return models.Failed(failure)
}

// errorCode extracts the FCM error code, falling back to the rpc status.
func errorCode(raw []byte) string {
	var body fcmErrorBody
	if err := json.Unmarshal(raw, &body); err != nil {
		return ""
	}
	for _, detail := range body.Error.Details {
		if detail.ErrorCode != "" {
			return detail.ErrorCode
		}
	}
	return body.Error.Status
}
