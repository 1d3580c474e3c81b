package outbox

import (
	"context"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/robertarktes/hotel-booking-payments/internal/adapters/crdb"
	"github.com/robertarktes/hotel-booking-payments/internal/observability"
)

type Repository interface {
	GetUnpublishedOutbox(ctx context.Context, limit int) ([]crdb.OutboxRecord, error)
	MarkPublished(ctx context.Context, id uuid.UUID, publishedAt time.Time) error
}

type Broker interface {
	Publish(ctx context.Context, key string, msg amqp.Publishing) error
}

// Publisher relays booking events written to the outbox table to the broker.
// Delivery is at least once: a record is marked only after the broker
// accepted it, so consumers dedupe on MessageId.
type Publisher struct {
	repo      Repository
	broker    Broker
	logger    observability.Logger
	interval  time.Duration
	batchSize int
	now       func() time.Time
}

func NewPublisher(repo Repository, broker Broker, logger observability.Logger, interval time.Duration) *Publisher {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &Publisher{
		repo:      repo,
		broker:    broker,
		logger:    logger,
		interval:  interval,
		batchSize: 50,
		now:       time.Now,
	}
}

func (p *Publisher) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.logger.WithField("interval", p.interval.String()).Info("outbox publisher started")
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := p.PublishBatch(ctx); err != nil {
				p.logger.Error("outbox batch failed: ", err)
			}
		}
	}
}

// PublishBatch relays one batch of unpublished records and returns how many
// were marked published. Records the broker rejects stay for the next batch.
func (p *Publisher) PublishBatch(ctx context.Context) (int, error) {
	records, err := p.repo.GetUnpublishedOutbox(ctx, p.batchSize)
	if err != nil {
		return 0, err
	}

	published := 0
	var oldest time.Time
	for _, rec := range records {
		log := p.logger.WithFields(map[string]interface{}{
			"outbox_id":  rec.ID.String(),
			"event_type": rec.EventType,
		})
		msg := amqp.Publishing{
			MessageId:    rec.DedupeKey,
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Timestamp:    rec.CreatedAt,
			Type:         rec.EventType,
			Body:         rec.Payload,
		}
		if err := p.broker.Publish(ctx, rec.EventType, msg); err != nil {
			observability.RabbitPublishRetries.Inc()
			log.Warn("publish failed, will retry: ", err)
			continue
		}
		if err := p.repo.MarkPublished(ctx, rec.ID, p.now()); err != nil {
			log.Error("failed to mark outbox record published: ", err)
			continue
		}
		if oldest.IsZero() || rec.CreatedAt.Before(oldest) {
			oldest = rec.CreatedAt
		}
		published++
	}
	if !oldest.IsZero() {
		observability.OutboxLag.Set(p.now().Sub(oldest).Seconds())
	}
	return published, nil
}
