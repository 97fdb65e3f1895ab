package rabbitmq

import (
	"context"
	"encoding/json"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"

	"hrassist/internal/ingest"
	"hrassist/internal/model"
)

// QueuePublisher publishes JSON payloads to a durable queue, declaring it on
// first use.
type QueuePublisher struct {
	conn      *amqp.Connection
	queueName string
}

func NewQueuePublisher(conn *amqp.Connection, queueName string) *QueuePublisher {
	return &QueuePublisher{
		conn:      conn,
		queueName: queueName,
	}
}

func (p *QueuePublisher) publish(ctx context.Context, payload any) error {
	ch, err := p.conn.Channel()
	if err != nil {
		return fmt.Errorf("open rabbitmq channel failed: %w", err)
	}
	defer ch.Close()

	_, err = ch.QueueDeclare(
		p.queueName,
		true,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return fmt.Errorf("declare queue failed: %w", err)
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal queue payload failed: %w", err)
	}

	if err := ch.PublishWithContext(
		ctx,
		"",
		p.queueName,
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			Body:         body,
			DeliveryMode: amqp.Persistent,
		},
	); err != nil {
		return fmt.Errorf("publish to queue %s failed: %w", p.queueName, err)
	}
	return nil
}

// Publish enqueues a chat message for async persistence.
func (p *QueuePublisher) Publish(ctx context.Context, msg model.Message) error {
	return p.publish(ctx, msg)
}

// PublishIngestJob enqueues a document for background indexing.
func (p *QueuePublisher) PublishIngestJob(ctx context.Context, job ingest.Job) error {
	return p.publish(ctx, job)
}
