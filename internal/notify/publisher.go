package notify

import (
	"context"
	"time"

	kafkax "github.com/ariefcatur/go-shop-checkout/internal/kafka"
	"github.com/ariefcatur/go-shop-checkout/internal/shop"
	"github.com/google/uuid"
	kafkago "github.com/segmentio/kafka-go"
)

type Publisher interface {
	Publish(ctx context.Context, key, value []byte, headers ...kafkago.Header) error
}

// KafkaNotifier hands order mail off to the notifier worker.
type KafkaNotifier struct {
	Pub         Publisher
	ServiceName string
}

func (n *KafkaNotifier) SendOrderEmail(ctx context.Context, o *shop.Order) error {
	return n.publish(ctx, shop.EventOrderCompleted, o)
}

func (n *KafkaNotifier) ResendInvoice(ctx context.Context, o *shop.Order) error {
	return n.publish(ctx, shop.EventInvoiceResend, o)
}

func (n *KafkaNotifier) publish(ctx context.Context, eventType string, o *shop.Order) error {
	ev := shop.Envelope{
		EventID:       uuid.NewString(),
		EventType:     eventType,
		EventVersion:  1,
		OccurredAt:    time.Now().UTC(),
		Producer:      n.ServiceName,
		CorrelationID: o.Key,
		Payload: kafkax.MustMarshal(shop.OrderEmailPayload{
			OrderID: o.ID,
			Key:     o.Key,
			Email:   o.Billing.Email,
			Total:   o.Total.StringFixed(2),
			Express: o.Express,
		}),
	}
	return n.Pub.Publish(ctx, shop.PartitionKey(o.ID), kafkax.MustMarshal(ev), kafkax.EventHeaders(eventType, 1)...)
}
