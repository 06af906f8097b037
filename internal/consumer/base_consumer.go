package consumer

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/streadway/amqp"
)

// DefaultExchange is the direct exchange push requests are published to.
const DefaultExchange = "notifications.direct"

// RoutingKey binds the push queue to the exchange.
const RoutingKey = "push"

// Handler processes one delivery and settles it (ack, nack or reject).
type Handler func(ctx context.Context, msg amqp.Delivery) error

// Topology names the exchange and queues used for push requests.
type Topology struct {
	Exchange        string
	Queue           string
	DeadLetterQueue string
}

// Declare creates the exchange, the push queue bound to it and, when set,
// the dead letter queue rejected messages are routed to.
func (t Topology) Declare(ch *amqp.Channel) error {
	args := amqp.Table{}
	if t.DeadLetterQueue != "" {
		args["x-dead-letter-exchange"] = ""
		args["x-dead-letter-routing-key"] = t.DeadLetterQueue
	}

	if err := ch.ExchangeDeclare(t.Exchange, amqp.ExchangeDirect, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare exchange %s: %w", t.Exchange, err)
	}
	if _, err := ch.QueueDeclare(t.Queue, true, false, false, false, args); err != nil {
		return fmt.Errorf("declare queue %s: %w", t.Queue, err)
	}
	if err := ch.QueueBind(t.Queue, RoutingKey, t.Exchange, false, nil); err != nil {
		return fmt.Errorf("bind queue %s: %w", t.Queue, err)
	}
	if t.DeadLetterQueue != "" {
		if _, err := ch.QueueDeclare(t.DeadLetterQueue, true, false, false, false, nil); err != nil {
			return fmt.Errorf("declare queue %s: %w", t.DeadLetterQueue, err)
		}
	}
	return nil
}

// BaseConsumer wires RabbitMQ connectivity, queue declaration and worker handling.
type BaseConsumer struct {
	conn        *amqp.Connection
	topology    Topology
	prefetch    int
	workerCount int
	logger      *slog.Logger
}

func NewBaseConsumer(conn *amqp.Connection, queue, dlq string, prefetch, workerCount int, logger *slog.Logger) *BaseConsumer {
	if prefetch <= 0 {
		prefetch = 50
	}
	if workerCount <= 0 {
		workerCount = 5
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &BaseConsumer{
		conn: conn,
		topology: Topology{
			Exchange:        DefaultExchange,
			Queue:           queue,
			DeadLetterQueue: dlq,
		},
		prefetch:    prefetch,
		workerCount: workerCount,
		logger:      logger.With("component", "amqp"),
	}
}

// Start consumes until ctx is cancelled or the delivery channel closes,
// then waits for in-flight handlers.
func (c *BaseConsumer) Start(ctx context.Context, handler Handler) error {
	ch, err := c.conn.Channel()
	if err != nil {
		return err
	}
	defer ch.Close()

	if err := c.topology.Declare(ch); err != nil {
		return fmt.Errorf("queue setup failed: %w", err)
	}
	if err := ch.Qos(c.prefetch, 0, false); err != nil {
		return fmt.Errorf("qos configuration failed: %w", err)
	}

	deliveries, err := ch.Consume(c.topology.Queue, "", false, false, false, false, nil)
	if err != nil {
		return err
	}
	c.logger.Info("consuming push requests",
		slog.String("queue", c.topology.Queue),
		slog.Int("workers", c.workerCount),
	)

	var wg sync.WaitGroup
	for i := 0; i < c.workerCount; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			c.work(ctx, id, deliveries, handler)
		}(i)
	}
	wg.Wait()
	if ctx.Err() == nil {
		return fmt.Errorf("delivery channel for %s closed", c.topology.Queue)
	}
	return nil
}

func (c *BaseConsumer) work(ctx context.Context, id int, deliveries <-chan amqp.Delivery, handler Handler) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-deliveries:
			if !ok {
				return
			}
			if err := handler(ctx, msg); err != nil {
				c.logger.Error("handler returned error", slog.Int("worker", id), slog.Any("error", err))
			}
		}
	}
}
