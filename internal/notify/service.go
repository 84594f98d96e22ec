package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	kafkax "github.com/ariefcatur/go-shop-checkout/internal/kafka"
	"github.com/ariefcatur/go-shop-checkout/internal/redisx"
	"github.com/ariefcatur/go-shop-checkout/internal/shop"
	"github.com/redis/go-redis/v9"
	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

type OrderSource interface {
	GetByID(ctx context.Context, id int64) (*shop.Order, error)
}

// Service mails order receipts and invoice copies. It is the consumer
// handler of the notifier worker.
type Service struct {
	Orders      OrderSource
	Redis       *redis.Client
	Mailer      Mailer
	Log         *zap.Logger
	ServiceName string
	SiteName    string
	SiteURL     string
}

func (s *Service) HandleMessage(ctx context.Context, m kafkago.Message) error {
	var env shop.Envelope
	if err := json.Unmarshal(m.Value, &env); err != nil {
		// poison message, nothing to retry
		s.Log.Error("undecodable envelope", zap.Int64("offset", m.Offset), zap.Error(err))
		return nil
	}
	var subject string
	switch env.EventType {
	case shop.EventOrderCompleted:
		subject = "Order Receipt"
	case shop.EventInvoiceResend:
		subject = "Invoice"
	default:
		return nil
	}

	dkey := fmt.Sprintf(redisx.KeyDedup, s.ServiceName, env.EventID)
	claimed, err := redisx.Claim(ctx, s.Redis, dkey, redisx.TTLDedup)
	if err != nil {
		return fmt.Errorf("dedup claim: %w", err)
	}
	if !claimed {
		return nil
	}

	if err := s.send(ctx, env, subject); err != nil {
		if rerr := redisx.Release(ctx, s.Redis, dkey); rerr != nil {
			s.Log.Warn("dedup release failed", zap.String("key", dkey), zap.Error(rerr))
		}
		return err
	}
	return nil
}

func (s *Service) send(ctx context.Context, env shop.Envelope, subject string) error {
	p, err := kafkax.UnwrapPayload[shop.OrderEmailPayload](env.Payload)
	if err != nil {
		s.Log.Error("bad payload", zap.String("event_id", env.EventID), zap.Error(err))
		return nil
	}
	o, err := s.Orders.GetByID(ctx, p.OrderID)
	if errors.Is(err, shop.ErrNotFound) {
		s.Log.Warn("order gone", zap.Int64("order_id", p.OrderID))
		return nil
	}
	if err != nil {
		return fmt.Errorf("load order %d: %w", p.OrderID, err)
	}
	if o.Status != shop.StatusComplete {
		s.Log.Warn("order not complete, not mailing", zap.Int64("order_id", o.ID), zap.String("status", string(o.Status)))
		return nil
	}
	to := o.Billing.Email
	if to == "" || to == "n/a" {
		to = p.Email
	}
	if to == "" || to == "n/a" {
		s.Log.Warn("order has no email address", zap.Int64("order_id", o.ID))
		return nil
	}

	if s.SiteName != "" {
		subject = s.SiteName + " - " + subject
	}
	if err := s.Mailer.Send(ctx, Email{To: to, Subject: subject, Body: s.render(o)}); err != nil {
		return err
	}
	s.Log.Info("order email sent", zap.Int64("order_id", o.ID), zap.String("event", env.EventType))
	return nil
}

func (s *Service) render(o *shop.Order) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Dear %s %s,\n\n", o.Billing.FirstName, o.Billing.LastName)
	fmt.Fprintf(&b, "Thank you for your order #%d placed %s.\n\n", o.ID, o.CreatedAt.Format("2 Jan 2006"))
	for _, it := range o.Items {
		fmt.Fprintf(&b, "  %d x %s  %s\n", it.Quantity, it.Description, it.TotalPrice.StringFixed(2))
	}
	b.WriteString("\n")
	if !o.DiscountTotal.IsZero() {
		fmt.Fprintf(&b, "Discount (%s): -%s\n", o.DiscountCode, o.DiscountTotal.StringFixed(2))
	}
	if o.ShippingType != "" {
		fmt.Fprintf(&b, "%s: %s\n", o.ShippingType, o.ShippingTotal.StringFixed(2))
	}
	if o.TaxType != "" {
		fmt.Fprintf(&b, "%s: %s\n", o.TaxType, o.TaxTotal.StringFixed(2))
	}
	fmt.Fprintf(&b, "Total: %s\n", o.Total.StringFixed(2))
	if s.SiteURL != "" {
		fmt.Fprintf(&b, "\nView your invoice at %s/shop/invoice/%d\n", strings.TrimRight(s.SiteURL, "/"), o.ID)
	}
	return b.String()
}
