package services

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/CyberwizD/fcm-push-dispatcher/internal/models"
	"github.com/CyberwizD/fcm-push-dispatcher/pkg/metrics"
)

// Stage names the step of a request, used in logs.
type Stage string

const (
	StageIdle              Stage = "idle"
	StageLookup            Stage = "lookup"
	StageBuildingAssertion Stage = "building_assertion"
	StageExchangingToken   Stage = "exchanging_token"
	StageDispatching       Stage = "dispatching"
	StageReported          Stage = "reported"
)

// Result is what a successful Process call produces. Report is nil when the
// user had no registered devices.
type Result struct {
	RequestID string
	UserID    string
	Report    *models.DeliveryReport
}

func (r *Result) NoTargets() bool {
	return r.Report == nil
}

type PushProcessor struct {
	credential     models.ServiceAccountCredential
	directory      TokenDirectory
	builder        *AssertionBuilder
	exchanger      *TokenExchanger
	dispatcher     *Dispatcher
	cache          SuppressionCache
	metrics        *metrics.Metrics
	logger         *slog.Logger
	now            func() time.Time
	suppressionTTL time.Duration
}

// NewPushProcessor wires a processor. cache may be nil to disable token suppression.
func NewPushProcessor(
	credential models.ServiceAccountCredential,
	directory TokenDirectory,
	builder *AssertionBuilder,
	exchanger *TokenExchanger,
	dispatcher *Dispatcher,
	cache SuppressionCache,
	counters *metrics.Metrics,
	logger *slog.Logger,
) *PushProcessor {
	if logger == nil {
		logger = slog.Default()
	}
	if counters == nil {
		counters = metrics.New()
	}
	return &PushProcessor{
		credential: credential,
		directory:  directory,
		builder:    builder,
		exchanger:  exchanger,
		dispatcher: dispatcher,
		cache:      cache,
		metrics:    counters,
		logger:     logger.With("component", "processor"),
		now:        time.Now,
	}
}

// WithClock replaces the clock used for assertion timestamps.
func (p *PushProcessor) WithClock(now func() time.Time) *PushProcessor {
	p.now = now
	return p
}

// WithSuppressionTTL sets how long dead tokens stay suppressed. Zero keeps the cache default.
func (p *PushProcessor) WithSuppressionTTL(ttl time.Duration) *PushProcessor {
	p.suppressionTTL = ttl
	return p
}

// Process runs lookup, token minting and dispatch for one request.
// Any returned error is fatal and no report is produced; per-device
// failures are only ever reported inside Result.Report.
func (p *PushProcessor) Process(ctx context.Context, req *models.SendRequest) (*Result, error) {
	if missing := req.Missing(); len(missing) > 0 {
		return nil, &ValidationError{Missing: missing}
	}
	p.metrics.IncRequests()

	result := &Result{
		RequestID: uuid.NewString(),
		UserID:    req.UserID,
	}
	log := p.logger.With(
		slog.String("request_id", result.RequestID),
		slog.String("user_id", req.UserID),
	)

	log.Debug("lookup device tokens", slog.String("stage", string(StageLookup)))
	targets, err := p.directory.Lookup(ctx, req.UserID)
	if err != nil {
		var dirErr *DirectoryError
		if !errors.As(err, &dirErr) {
			err = &DirectoryError{UserID: req.UserID, Err: err}
		}
		log.Error("device token lookup failed", slog.Any("error", err))
		return nil, err
	}

	targets = p.filterSuppressed(ctx, log, targets)
	if len(targets) == 0 {
		log.Info("no device tokens found for user")
		p.metrics.IncNoTargets()
		return result, nil
	}

	log.Debug("building assertion", slog.String("stage", string(StageBuildingAssertion)))
	assertion, err := p.builder.Build(p.credential, p.now())
	if err != nil {
		log.Error("failed to build assertion", slog.Any("error", err))
		return nil, err
	}

	log.Debug("exchanging assertion", slog.String("stage", string(StageExchangingToken)))
	p.metrics.IncTokenExchanges()
	token, err := p.exchanger.Exchange(ctx, assertion, p.credential.TokenURI)
	if err != nil {
		p.metrics.IncExchangeFailures()
		log.Error("token exchange failed", slog.Any("error", err))
		return nil, err
	}

	log.Debug("dispatching", slog.String("stage", string(StageDispatching)), slog.Int("targets", len(targets)))
	payload := req.Payload()
	report := p.dispatcher.Dispatch(ctx, token, p.credential.ProjectID, targets, payload)
	result.Report = report

	p.metrics.AddDelivered(report.SuccessfulCount())
	p.metrics.AddFailed(report.FailedCount())
	p.suppressDead(ctx, log, report)

	log.Info("notifications sent",
		slog.String("stage", string(StageReported)),
		slog.Int("successful", report.SuccessfulCount()),
		slog.Int("failed", report.FailedCount()),
	)
	return result, nil
}

// filterSuppressed drops targets known to be dead. Cache errors are logged
// and the target is kept.
func (p *PushProcessor) filterSuppressed(ctx context.Context, log *slog.Logger, targets []models.DeviceTarget) []models.DeviceTarget {
	filtered := make([]models.DeviceTarget, 0, len(targets))
	for _, target := range targets {
		if target.RegistrationID == "" {
			continue
		}
		if p.cache != nil {
			suppressed, err := p.cache.IsTokenSuppressed(ctx, target.RegistrationID)
			if err != nil {
				log.Warn("suppression lookup failed", slog.Any("error", err))
			} else if suppressed {
				continue
			}
		}
		filtered = append(filtered, target)
	}
	return filtered
}

func (p *PushProcessor) suppressDead(ctx context.Context, log *slog.Logger, report *models.DeliveryReport) {
	if p.cache == nil {
		return
	}
	for _, item := range report.Outcomes() {
		failure := item.Outcome.Failure()
		if failure == nil || !isTokenFatal(failure.ErrorCode) {
			continue
		}
		if err := p.cache.SuppressToken(ctx, item.Target.RegistrationID, p.suppressionTTL); err != nil {
			log.Warn("failed to suppress token", slog.Any("error", err))
			continue
		}
		p.metrics.IncSuppressed()
	}
}

// isTokenFatal reports FCM v1 error codes that mean the registration id will never work.
func isTokenFatal(code string) bool {
	switch code {
	case "UNREGISTERED", "SENDER_ID_MISMATCH":
		return true
	default:
		return false
	}
}
