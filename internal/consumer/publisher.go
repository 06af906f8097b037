package consumer

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/streadway/amqp"

	"github.com/CyberwizD/fcm-push-dispatcher/internal/models"
)

// Publish enqueues a push request on the push exchange.
func Publish(ctx context.Context, conn *amqp.Connection, topology Topology, req *models.SendRequest) error {
	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("encode push request: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	ch, err := conn.Channel()
	if err != nil {
		return err
	}
	defer ch.Close()

	if err := topology.Declare(ch); err != nil {
		return err
	}
	return ch.Publish(topology.Exchange, RoutingKey, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Body:         body,
	})
}
