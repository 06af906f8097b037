package services

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/sourcegraph/conc/pool"
	"golang.org/x/oauth2"

	"github.com/CyberwizD/fcm-push-dispatcher/internal/models"
)

// Dispatcher fans a payload out to every target and waits for all sends to settle.
type Dispatcher struct {
	sender PushSender
	logger *slog.Logger
}

func NewDispatcher(sender PushSender, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		sender: sender,
		logger: logger.With("component", "dispatcher"),
	}
}

// Dispatch sends payload to each target concurrently. Each send writes only
// its own slot, so the report keeps target order whatever the completion order.
// A failing or panicking send never affects its siblings.
func (d *Dispatcher) Dispatch(
	ctx context.Context,
	token *oauth2.Token,
	projectID string,
	targets []models.DeviceTarget,
	payload models.NotificationPayload,
) *models.DeliveryReport {
	outcomes := make([]models.DeliveryOutcome, len(targets))
	if len(targets) == 0 {
		return models.NewDeliveryReport(targets, outcomes)
	}

	p := pool.New().WithMaxGoroutines(len(targets))
	for i, target := range targets {
		i, target := i, target
		p.Go(func() {
			outcomes[i] = d.sendOne(ctx, token, projectID, target, payload)
		})
	}
	p.Wait()

	report := models.NewDeliveryReport(targets, outcomes)
	d.logger.Info("dispatch settled",
		slog.String("provider", d.sender.Name()),
		slog.Int("targets", report.Len()),
		slog.Int("successful", report.SuccessfulCount()),
		slog.Int("failed", report.FailedCount()),
	)
	return report
}

func (d *Dispatcher) sendOne(
	ctx context.Context,
	token *oauth2.Token,
	projectID string,
	target models.DeviceTarget,
	payload models.NotificationPayload,
) (outcome models.DeliveryOutcome) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("send panicked",
				slog.String("provider", d.sender.Name()),
				slog.String("token", models.MaskToken(target.RegistrationID)),
				slog.Any("panic", r),
			)
			outcome = models.Failed(&models.DeliveryFailure{Err: fmt.Errorf("send panicked: %v", r)})
		}
	}()
	return d.sender.Send(ctx, token, projectID, target, payload)
}
