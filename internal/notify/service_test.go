package notify

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	kafkax "github.com/ariefcatur/go-shop-checkout/internal/kafka"
	"github.com/ariefcatur/go-shop-checkout/internal/shop"
	"github.com/redis/go-redis/v9"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeOrders map[int64]*shop.Order

func (f fakeOrders) GetByID(_ context.Context, id int64) (*shop.Order, error) {
	if o, ok := f[id]; ok {
		return o, nil
	}
	return nil, shop.ErrNotFound
}

type fakeMailer struct {
	sent []Email
	err  error
}

func (m *fakeMailer) Send(_ context.Context, e Email) error {
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, e)
	return nil
}

func setupService(t *testing.T, orders fakeOrders) (*Service, *fakeMailer, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	m := &fakeMailer{}
	return &Service{
		Orders:      orders,
		Redis:       rdb,
		Mailer:      m,
		Log:         zap.NewNop(),
		ServiceName: "notifier",
		SiteName:    "Print Shop",
		SiteURL:     "https://shop.test/",
	}, m, mr
}

func completedOrder() *shop.Order {
	return &shop.Order{
		ID:        7,
		Key:       "k-7",
		Status:    shop.StatusComplete,
		Billing:   shop.Address{FirstName: "Ada", LastName: "Lovelace", Email: "ada@example.com"},
		Items:     []shop.OrderItem{{SKU: "A", Description: "Print - A3", Quantity: 2, TotalPrice: decimal.NewFromInt(20)}},
		ItemTotal: decimal.NewFromInt(20),
		Total:     decimal.NewFromInt(20),
		CreatedAt: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
	}
}

func message(t *testing.T, eventID, eventType string, orderID int64) kafkago.Message {
	t.Helper()
	env := shop.Envelope{
		EventID:   eventID,
		EventType: eventType,
		Payload:   kafkax.MustMarshal(shop.OrderEmailPayload{OrderID: orderID}),
	}
	b, err := json.Marshal(env)
	require.NoError(t, err)
	return kafkago.Message{Value: b}
}

func TestHandleMessage_SendsReceiptOnce(t *testing.T) {
	svc, mailer, _ := setupService(t, fakeOrders{7: completedOrder()})
	ctx := context.Background()
	m := message(t, "ev-1", shop.EventOrderCompleted, 7)

	require.NoError(t, svc.HandleMessage(ctx, m))
	require.NoError(t, svc.HandleMessage(ctx, m))

	require.Len(t, mailer.sent, 1)
	e := mailer.sent[0]
	assert.Equal(t, "ada@example.com", e.To)
	assert.Equal(t, "Print Shop - Order Receipt", e.Subject)
	assert.Contains(t, e.Body, "2 x Print - A3  20.00")
	assert.Contains(t, e.Body, "Total: 20.00")
	assert.Contains(t, e.Body, "https://shop.test/shop/invoice/7")
}

func TestHandleMessage_InvoiceResendIsSeparateEvent(t *testing.T) {
	svc, mailer, _ := setupService(t, fakeOrders{7: completedOrder()})
	ctx := context.Background()

	require.NoError(t, svc.HandleMessage(ctx, message(t, "ev-1", shop.EventOrderCompleted, 7)))
	require.NoError(t, svc.HandleMessage(ctx, message(t, "ev-2", shop.EventInvoiceResend, 7)))

	require.Len(t, mailer.sent, 2)
	assert.Equal(t, "Print Shop - Invoice", mailer.sent[1].Subject)
}

func TestHandleMessage_MailFailureReleasesClaim(t *testing.T) {
	svc, mailer, mr := setupService(t, fakeOrders{7: completedOrder()})
	ctx := context.Background()
	m := message(t, "ev-1", shop.EventOrderCompleted, 7)
	mailer.err = errors.New("smtp down")

	require.Error(t, svc.HandleMessage(ctx, m))
	assert.False(t, mr.Exists("dedup:notifier:ev-1"))

	mailer.err = nil
	require.NoError(t, svc.HandleMessage(ctx, m))
	assert.Len(t, mailer.sent, 1)
	assert.True(t, mr.Exists("dedup:notifier:ev-1"))
}

func TestHandleMessage_SkipsWhatCannotBeMailed(t *testing.T) {
	draft := completedOrder()
	draft.ID = 8
	draft.Status = shop.StatusDraft
	svc, mailer, _ := setupService(t, fakeOrders{8: draft})
	ctx := context.Background()

	assert.NoError(t, svc.HandleMessage(ctx, kafkago.Message{Value: []byte("{nope")}))
	assert.NoError(t, svc.HandleMessage(ctx, message(t, "ev-1", "SomethingElse", 7)))
	assert.NoError(t, svc.HandleMessage(ctx, message(t, "ev-2", shop.EventOrderCompleted, 99)))
	assert.NoError(t, svc.HandleMessage(ctx, message(t, "ev-3", shop.EventOrderCompleted, 8)))
	assert.Empty(t, mailer.sent)
}
