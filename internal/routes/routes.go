package routes

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/CyberwizD/fcm-push-dispatcher/internal/models"
	"github.com/CyberwizD/fcm-push-dispatcher/internal/services"
	"github.com/CyberwizD/fcm-push-dispatcher/pkg/metrics"
)

// Processor runs one push request end to end.
type Processor interface {
	Process(ctx context.Context, req *models.SendRequest) (*services.Result, error)
}

// DeviceRegistrar stores device tokens for users.
type DeviceRegistrar interface {
	Register(ctx context.Context, userID, token string, platform models.Platform) error
}

// TokenReleaser lifts the suppression of a registration id.
type TokenReleaser interface {
	ReleaseToken(ctx context.Context, token string) error
}

// Options configures the router. Registrar may be nil to disable /v1/devices.
// Releaser may be nil when no suppression cache is configured.
type Options struct {
	Processor      Processor
	Registrar      DeviceRegistrar
	Releaser       TokenReleaser
	Metrics        *metrics.Metrics
	Logger         *slog.Logger
	Started        time.Time
	RequestTimeout time.Duration
}

type handler struct {
	opts Options
	log  *slog.Logger
}

// NewRouter wires the push endpoint plus health and metrics endpoints.
func NewRouter(opts Options) http.Handler {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.New()
	}
	h := &handler{opts: opts, log: opts.Logger.With("component", "http")}

	mux := http.NewServeMux()
	mux.HandleFunc("/health", h.health)
	mux.Handle("/metrics", opts.Metrics.Handler())
	mux.HandleFunc("/v1/notifications/push", h.push)
	if opts.Registrar != nil {
		mux.HandleFunc("/v1/devices", h.registerDevice)
	}
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			writeJSON(w, http.StatusNotFound, map[string]interface{}{"error": "not found"})
			return
		}
		h.push(w, r)
	})
	return mux
}

func (h *handler) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"message": "push service healthy",
		"meta": map[string]interface{}{
			"uptime_seconds": int(time.Since(h.opts.Started).Seconds()),
			"timestamp":      time.Now().UTC(),
		},
	})
}

func (h *handler) push(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req models.SendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]interface{}{"error": "invalid JSON body"})
		return
	}

	ctx := r.Context()
	if h.opts.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.opts.RequestTimeout)
		defer cancel()
	}

	result, err := h.opts.Processor.Process(ctx, &req)
	var validationErr *services.ValidationError
	if errors.As(err, &validationErr) {
		writeJSON(w, http.StatusBadRequest, map[string]interface{}{"error": err.Error()})
		return
	}

	// The whole operation is abandoned when the request deadline passed
	// mid-flight, whichever stage it was in.
	if ctxErr := ctx.Err(); ctxErr != nil {
		h.log.Warn("push request timed out", slog.Any("error", ctxErr), slog.Any("cause", err))
		writeJSON(w, http.StatusGatewayTimeout, map[string]interface{}{"error": "request timed out"})
		return
	}

	if err != nil {
		h.log.Error("push request failed", slog.Any("error", err))
		writeJSON(w, http.StatusInternalServerError, map[string]interface{}{"error": err.Error()})
		return
	}

	if result.NoTargets() {
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"message": "no device tokens found for user",
			"userId":  result.UserID,
		})
		return
	}

	report := result.Report
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message":    fmt.Sprintf("notifications sent: %d succeeded, %d failed", report.SuccessfulCount(), report.FailedCount()),
		"request_id": result.RequestID,
		"successful": report.SuccessfulCount(),
		"failed":     report.FailedCount(),
		"results":    report.Results(),
	})
}

type registerDeviceRequest struct {
	UserID   string `json:"userId"`
	Token    string `json:"token"`
	Platform string `json:"platform"`
}

func (h *handler) registerDevice(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req registerDeviceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]interface{}{"error": "invalid JSON body"})
		return
	}
	if strings.TrimSpace(req.UserID) == "" || strings.TrimSpace(req.Token) == "" {
		writeJSON(w, http.StatusBadRequest, map[string]interface{}{"error": "missing required parameters: userId, token"})
		return
	}

	platform := models.ParsePlatform(req.Platform)
	if err := h.opts.Registrar.Register(r.Context(), req.UserID, req.Token, platform); err != nil {
		h.log.Error("device registration failed", slog.Any("error", err))
		writeJSON(w, http.StatusInternalServerError, map[string]interface{}{"error": err.Error()})
		return
	}
	// A registered token is live again even if FCM rejected it before.
	if h.opts.Releaser != nil {
		if err := h.opts.Releaser.ReleaseToken(r.Context(), req.Token); err != nil {
			h.log.Warn("failed to release token suppression",
				slog.String("token", models.MaskToken(req.Token)),
				slog.Any("error", err),
			)
		}
	}
	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"userId":   req.UserID,
		"platform": platform,
	})
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
