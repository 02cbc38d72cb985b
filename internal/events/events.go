package events

import (
	"context"
	"time"
)

const (
	TypeSaleRecorded       = "sale.recorded"
	TypeAdjustmentRecorded = "adjustment.recorded"
	TypeMedicineDeleted    = "medicine.deleted"
)

// Event is one committed inventory mutation. Key groups events for the same
// medicine onto one partition.
type Event struct {
	ID        string    `json:"event_id"`
	Type      string    `json:"event_type"`
	Key       string    `json:"key"`
	Actor     string    `json:"actor"`
	Timestamp time.Time `json:"timestamp"`
	Payload   any       `json:"payload"`
}

// Publisher delivers events after the store has committed. Failures are
// reported but never roll back a mutation.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
	Close() error
}

type NoopPublisher struct{}

func (NoopPublisher) Publish(_ context.Context, _ Event) error {
	return nil
}

func (NoopPublisher) Close() error {
	return nil
}
