package ports

import (
	"context"
	"time"

	"github.com/emiliopalmerini/salespulse/internal/domain"
)

// DailyMetricRepository persists DailyMetricRecords. Rows are never deleted.
type DailyMetricRepository interface {
	// Get returns the record for (member, date), or nil when none exists.
	Get(ctx context.Context, memberID string, workDate time.Time) (*domain.DailyMetricRecord, error)
	GetByID(ctx context.Context, id string) (*domain.DailyMetricRecord, error)
	Insert(ctx context.Context, rec *domain.DailyMetricRecord) error
	Update(ctx context.Context, rec *domain.DailyMetricRecord) error
	// ListRange returns the member's records in [from, to] ordered by date.
	ListRange(ctx context.Context, memberID string, from, to time.Time) ([]*domain.DailyMetricRecord, error)
	// UpdateStreak sets only the streak counter of a record.
	UpdateStreak(ctx context.Context, id string, streak int) error
}
