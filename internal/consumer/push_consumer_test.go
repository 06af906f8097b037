package consumer

import (
	"context"
	"errors"
	"testing"

	"github.com/streadway/amqp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CyberwizD/fcm-push-dispatcher/internal/models"
	"github.com/CyberwizD/fcm-push-dispatcher/internal/services"
	"github.com/CyberwizD/fcm-push-dispatcher/pkg/logger"
)

type ackRecorder struct {
	acked    int
	nacked   int
	rejected int
	requeue  bool
}

func (a *ackRecorder) Ack(tag uint64, multiple bool) error {
	a.acked++
	return nil
}

func (a *ackRecorder) Nack(tag uint64, multiple bool, requeue bool) error {
	a.nacked++
	a.requeue = a.requeue || requeue
	return nil
}

func (a *ackRecorder) Reject(tag uint64, requeue bool) error {
	a.rejected++
	a.requeue = a.requeue || requeue
	return nil
}

type processorFunc func(ctx context.Context, req *models.SendRequest) (*services.Result, error)

func (f processorFunc) Process(ctx context.Context, req *models.SendRequest) (*services.Result, error) {
	return f(ctx, req)
}

func deliver(t *testing.T, p Processor, body string) (*ackRecorder, error) {
	t.Helper()
	acks := &ackRecorder{}
	c := NewPushConsumer(nil, p, logger.Discard())
	err := c.handleDelivery(context.Background(), amqp.Delivery{
		Acknowledger: acks,
		DeliveryTag:  7,
		Body:         []byte(body),
	})
	return acks, err
}

func TestHandleDelivery_AcksProcessedRequest(t *testing.T) {
	var seen *models.SendRequest
	acks, err := deliver(t, processorFunc(func(_ context.Context, req *models.SendRequest) (*services.Result, error) {
		seen = req
		report := models.NewDeliveryReport(
			[]models.DeviceTarget{{RegistrationID: "a"}},
			[]models.DeliveryOutcome{models.Delivered(nil)},
		)
		return &services.Result{RequestID: "r", UserID: req.UserID, Report: report}, nil
	}), `{"userId":"u1","title":"t","body":"b"}`)

	require.NoError(t, err)
	assert.Equal(t, 1, acks.acked)
	assert.Zero(t, acks.nacked+acks.rejected)
	require.NotNil(t, seen)
	assert.Equal(t, "u1", seen.UserID)
}

func TestHandleDelivery_AcksWhenNoTargets(t *testing.T) {
	acks, err := deliver(t, processorFunc(func(_ context.Context, req *models.SendRequest) (*services.Result, error) {
		return &services.Result{UserID: req.UserID}, nil
	}), `{"userId":"u1","title":"t","body":"b"}`)

	require.NoError(t, err)
	assert.Equal(t, 1, acks.acked)
}

func TestHandleDelivery_RejectsMalformedBody(t *testing.T) {
	acks, err := deliver(t, processorFunc(func(context.Context, *models.SendRequest) (*services.Result, error) {
		t.Fatal("processor must not run")
		return nil, nil
	}), `not json`)

	require.Error(t, err)
	assert.Equal(t, 1, acks.rejected)
	assert.False(t, acks.requeue)
}

func TestHandleDelivery_RejectsInvalidRequest(t *testing.T) {
	acks, err := deliver(t, processorFunc(func(_ context.Context, req *models.SendRequest) (*services.Result, error) {
		return nil, &services.ValidationError{Missing: req.Missing()}
	}), `{"userId":"u1"}`)

	var validationErr *services.ValidationError
	require.True(t, errors.As(err, &validationErr))
	assert.Equal(t, []string{"title", "body"}, validationErr.Missing)
	assert.Equal(t, 1, acks.rejected)
	assert.Zero(t, acks.acked)
}

func TestHandleDelivery_DeadLettersFatalErrors(t *testing.T) {
	acks, err := deliver(t, processorFunc(func(context.Context, *models.SendRequest) (*services.Result, error) {
		return nil, &services.ExchangeError{StatusCode: 401, Body: "denied"}
	}), `{"userId":"u1","title":"t","body":"b"}`)

	require.Error(t, err)
	assert.Equal(t, 1, acks.nacked)
	assert.False(t, acks.requeue)
	assert.Zero(t, acks.acked)
}

func TestNewBaseConsumer_Defaults(t *testing.T) {
	c := NewBaseConsumer(nil, "push.queue", "failed.queue", 0, 0, nil)

	assert.Equal(t, 50, c.prefetch)
	assert.Equal(t, 5, c.workerCount)
	assert.Equal(t, Topology{Exchange: DefaultExchange, Queue: "push.queue", DeadLetterQueue: "failed.queue"}, c.topology)
}

func TestHandleDelivery_RequeuesWhenStoppedMidDispatch(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	p := processorFunc(func(ctx context.Context, req *models.SendRequest) (*services.Result, error) {
		cancel()
		targets := []models.DeviceTarget{{RegistrationID: "a"}, {RegistrationID: "b"}}
		outcomes := []models.DeliveryOutcome{
			models.Failed(&models.DeliveryFailure{Err: ctx.Err()}),
			models.Failed(&models.DeliveryFailure{Err: ctx.Err()}),
		}
		return &services.Result{UserID: req.UserID, Report: models.NewDeliveryReport(targets, outcomes)}, nil
	})

	acks := &ackRecorder{}
	err := NewPushConsumer(nil, p, logger.Discard()).handleDelivery(ctx, amqp.Delivery{
		Acknowledger: acks,
		Body:         []byte(`{"userId":"u1","title":"t","body":"b"}`),
	})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, acks.acked)
	assert.Zero(t, acks.rejected)
	assert.Equal(t, 1, acks.nacked)
	assert.True(t, acks.requeue)
}

func TestHandleDelivery_RequeuesWhenStoppedMidExchange(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	p := processorFunc(func(context.Context, *models.SendRequest) (*services.Result, error) {
		cancel()
		return nil, &services.ExchangeError{Err: context.Canceled}
	})

	acks := &ackRecorder{}
	err := NewPushConsumer(nil, p, logger.Discard()).handleDelivery(ctx, amqp.Delivery{
		Acknowledger: acks,
		Body:         []byte(`{"userId":"u1","title":"t","body":"b"}`),
	})

	var exchangeErr *services.ExchangeError
	assert.True(t, errors.As(err, &exchangeErr))
	assert.Equal(t, 1, acks.nacked)
	assert.True(t, acks.requeue)
}
