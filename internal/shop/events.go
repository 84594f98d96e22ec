package shop

import (
	"encoding/json"
	"time"
)

const (
	EventOrderCompleted = "OrderCompleted"
	EventInvoiceResend  = "InvoiceResend"
)

type Envelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	EventVersion  int             `json:"event_version"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Producer      string          `json:"producer"`
	TraceID       string          `json:"trace_id,omitempty"`
	CorrelationID string          `json:"correlation_id,omitempty"` // order id
	Payload       json.RawMessage `json:"payload"`
}

// OrderEmailPayload asks the notifier to mail the order receipt.
type OrderEmailPayload struct {
	OrderID int64  `json:"order_id"`
	Key     string `json:"key"`
	Email   string `json:"email"`
	Total   string `json:"total"`
	Express bool   `json:"express"`
}
