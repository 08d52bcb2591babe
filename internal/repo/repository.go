package repo

import (
	"context"
	"time"

	"github.com/hamed0406/portwatch/internal/domain"
)

// ReportStore keeps the reports produced by completed cycles. The monitoring
// core never reads it back; it exists for hosts that want history or a status API.
type ReportStore interface {
	Save(ctx context.Context, r domain.Report) error
	// Latest returns nil, nil before the first report is saved.
	Latest(ctx context.Context) (*domain.Report, error)
}

// AlertRecord holds the last time an alert was sent for a key (an endpoint).
type AlertRecord struct {
	Key        string
	LastSentAt *time.Time
	Sent       int
}

// AlertStore keeps per-endpoint alert state for repeat suppression.
type AlertStore interface {
	// Get returns nil, nil if there's no record yet.
	Get(ctx context.Context, key string) (*AlertRecord, error)
	// Set upserts the record with a new send time.
	Set(ctx context.Context, key string, sentAt time.Time) error
}
