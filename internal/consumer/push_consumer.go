package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/streadway/amqp"

	"github.com/CyberwizD/fcm-push-dispatcher/internal/models"
	"github.com/CyberwizD/fcm-push-dispatcher/internal/services"
)

// Processor runs one push request end to end.
type Processor interface {
	Process(ctx context.Context, req *models.SendRequest) (*services.Result, error)
}

// PushConsumer feeds queued push requests to the processor. Fatal errors
// dead-letter a message instead of requeueing it. Only requests interrupted by
// shutdown go back to the queue.
type PushConsumer struct {
	base      *BaseConsumer
	processor Processor
	logger    *slog.Logger
}

func NewPushConsumer(base *BaseConsumer, processor Processor, logger *slog.Logger) *PushConsumer {
	if logger == nil {
		logger = slog.Default()
	}
	return &PushConsumer{
		base:      base,
		processor: processor,
		logger:    logger.With("component", "push_consumer"),
	}
}

func (p *PushConsumer) Start(ctx context.Context) error {
	return p.base.Start(ctx, p.handleDelivery)
}

func (p *PushConsumer) handleDelivery(ctx context.Context, msg amqp.Delivery) error {
	var req models.SendRequest
	if err := json.Unmarshal(msg.Body, &req); err != nil {
		p.logger.Error("failed to unmarshal push request", slog.Any("error", err))
		_ = msg.Reject(false)
		return err
	}

	result, err := p.processor.Process(ctx, &req)
	if aborted(ctx, err) {
		p.logger.Warn("processing interrupted, message requeued", slog.String("user_id", req.UserID))
		_ = msg.Nack(false, true)
		if err == nil {
			err = ctx.Err()
		}
		return err
	}
	if err != nil {
		var validationErr *services.ValidationError
		if errors.As(err, &validationErr) {
			p.logger.Warn("invalid push request rejected", slog.String("user_id", req.UserID), slog.Any("error", err))
			_ = msg.Reject(false)
			return err
		}
		p.logger.Error("processing failed, message dead-lettered", slog.String("user_id", req.UserID), slog.Any("error", err))
		_ = msg.Nack(false, false)
		return err
	}

	if result.NoTargets() {
		p.logger.Info("no device tokens found for user", slog.String("user_id", req.UserID))
	} else {
		p.logger.Info("push request processed",
			slog.String("request_id", result.RequestID),
			slog.Int("successful", result.Report.SuccessfulCount()),
			slog.Int("failed", result.Report.FailedCount()),
		)
	}
	return msg.Ack(false)
}

// aborted reports whether the consumer was stopped while the request was in
// flight. Whatever was produced then is discarded and the message is retried
// by a later consumer.
func aborted(ctx context.Context, err error) bool {
	return ctx.Err() != nil || errors.Is(err, context.Canceled)
}
