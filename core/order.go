package core

import (
	"context"
	"fmt"
	"time"
)

// OrderFilter selects order records when querying the audit store.
type OrderFilter func(record OrderRecord) bool

// OrderStatusType represents the status of a submitted order.
type OrderStatusType string

const (
	OrderStatusTypeNew      OrderStatusType = "NEW"
	OrderStatusTypeFilled   OrderStatusType = "FILLED"
	OrderStatusTypeRejected OrderStatusType = "REJECTED"
	OrderStatusTypeCanceled OrderStatusType = "CANCELED"
)

// OrderRecord is the audit trail of one order submission, simulated or
// live. ClientID doubles as the idempotency key sent to the venue.
type OrderRecord struct {
	ClientID   string          `json:"client_id" gorm:"primaryKey"`
	Instrument string          `json:"instrument"`
	Side       SideType        `json:"side"`
	Status     OrderStatusType `json:"status"`
	Price      float64         `json:"price"`
	Quantity   float64         `json:"quantity"`
	Simulated  bool            `json:"simulated"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

func (o OrderRecord) String() string {
	return fmt.Sprintf("[%s] %s %s %.6f @ %.4f (%s)",
		o.Status, o.Side, o.Instrument, o.Quantity, o.Price, o.ClientID)
}

// IsFilled returns true if the order is completely filled.
func (o OrderRecord) IsFilled() bool { return o.Status == OrderStatusTypeFilled }

func WithStatus(status OrderStatusType) OrderFilter {
	return func(record OrderRecord) bool {
		return record.Status == status
	}
}

func WithInstrument(instrument string) OrderFilter {
	return func(record OrderRecord) bool {
		return record.Instrument == instrument
	}
}

func WithCreatedAfter(t time.Time) OrderFilter {
	return func(record OrderRecord) bool {
		return record.CreatedAt.After(t)
	}
}

// OrderStore persists order records.
type OrderStore interface {
	CreateOrder(ctx context.Context, record *OrderRecord) error
	UpdateOrder(ctx context.Context, record *OrderRecord) error
	Orders(ctx context.Context, filters ...OrderFilter) ([]*OrderRecord, error)
}
