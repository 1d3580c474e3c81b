package audit

import (
	"context"
	"encoding/json"

	"github.com/cockroachdb/errors"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/robertarktes/hotel-booking-payments/internal/domain"
	"github.com/robertarktes/hotel-booking-payments/internal/observability"
)

// Store persists one audit entry per broker message.
type Store interface {
	LogBookingEvent(ctx context.Context, messageID, action string, ev domain.BookingEvent) error
}

// Projector writes booking events consumed from the broker into the audit
// log.
type Projector struct {
	store  Store
	logger observability.Logger
}

func NewProjector(store Store, logger observability.Logger) *Projector {
	return &Projector{store: store, logger: logger}
}

// Run handles deliveries until ctx is done or the channel closes.
func (p *Projector) Run(ctx context.Context, deliveries <-chan amqp.Delivery) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-deliveries:
			if !ok {
				return errors.New("delivery channel closed")
			}
			p.Handle(ctx, d)
		}
	}
}

// Handle stores a single delivery and settles it. Undecodable messages are
// dropped; store failures are requeued.
func (p *Projector) Handle(ctx context.Context, d amqp.Delivery) {
	log := p.logger.WithFields(map[string]interface{}{
		"message_id":  d.MessageId,
		"routing_key": d.RoutingKey,
	})

	var ev domain.BookingEvent
	if err := json.Unmarshal(d.Body, &ev); err != nil {
		log.Error("dropping undecodable booking event: ", err)
		if nerr := d.Nack(false, false); nerr != nil {
			log.Warn("nack failed: ", nerr)
		}
		return
	}

	messageID := d.MessageId
	if messageID == "" {
		messageID = d.RoutingKey + ":" + ev.BookingID.String() + ":" + ev.OccurredAt.String()
	}
	if err := p.store.LogBookingEvent(ctx, messageID, d.RoutingKey, ev); err != nil {
		log.Warn("audit write failed, requeueing: ", err)
		if nerr := d.Nack(false, true); nerr != nil {
			log.Warn("nack failed: ", nerr)
		}
		return
	}
	if err := d.Ack(false); err != nil {
		log.Warn("ack failed: ", err)
	}
}
