package event

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/konektagri-development/paddy-ingestion-telegram-mini-app/internal/models"

	amqp "github.com/rabbitmq/amqp091-go"
)

// SyncPublisher publishes sync run summaries to RabbitMQ
type SyncPublisher struct {
	conn              *RabbitMQConnection
	messagesPublished int64
	messagesFailed    int64
	lastPublishTime   time.Time
}

// NewSyncPublisher creates a new sync event publisher
func NewSyncPublisher(conn *RabbitMQConnection) *SyncPublisher {
	return &SyncPublisher{
		conn:            conn,
		lastPublishTime: time.Now(),
	}
}

// PublishSyncCompleted publishes a run summary to the survey_sync_events queue
func (p *SyncPublisher) PublishSyncCompleted(ctx context.Context, result models.SyncResult) error {
	// Ensure the queue exists
	_, err := p.conn.Channel.QueueDeclare(
		SyncEventsQueue, // queue name
		true,            // durable
		false,           // delete when unused
		false,           // exclusive
		false,           // no-wait
		nil,             // arguments
	)
	if err != nil {
		p.messagesFailed++
		return fmt.Errorf("failed to declare queue: %w", err)
	}

	event := SyncCompletedEvent{
		Succeeded:  result.Succeeded,
		Failed:     result.Failed,
		OccurredAt: time.Now().UTC(),
	}

	body, err := json.Marshal(event)
	if err != nil {
		p.messagesFailed++
		return fmt.Errorf("failed to marshal sync event: %w", err)
	}

	err = p.conn.Channel.PublishWithContext(
		ctx,
		"",              // exchange
		SyncEventsQueue, // routing key (queue name)
		false,           // mandatory
		false,           // immediate
		amqp.Publishing{
			DeliveryMode: amqp.Persistent,
			ContentType:  "application/json",
			Body:         body,
			Timestamp:    time.Now(),
		},
	)
	if err != nil {
		p.messagesFailed++
		return fmt.Errorf("failed to publish sync event: %w", err)
	}

	p.messagesPublished++
	p.lastPublishTime = time.Now()

	slog.Info("Sync event published",
		"queue", SyncEventsQueue,
		"succeeded", result.Succeeded,
		"failed", result.Failed,
	)

	return nil
}

// GetMetrics returns publisher metrics
func (p *SyncPublisher) GetMetrics() map[string]any {
	return map[string]any{
		"messages_published": p.messagesPublished,
		"messages_failed":    p.messagesFailed,
		"last_publish_time":  p.lastPublishTime,
		"queue":              SyncEventsQueue,
	}
}
