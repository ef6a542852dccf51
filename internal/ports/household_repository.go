package ports

import (
	"context"
	"time"

	"github.com/emiliopalmerini/salespulse/internal/domain"
)

type HouseholdRepository interface {
	GetByID(ctx context.Context, id string) (*domain.Household, error)
	// GetByKey returns the household with the normalized identity key in
	// the agency, or nil.
	GetByKey(ctx context.Context, agencyID, key string) (*domain.Household, error)
	Insert(ctx context.Context, h *domain.Household) error
	Update(ctx context.Context, h *domain.Household) error
	Delete(ctx context.Context, id string) error
	// ListStale returns households whose status is below what their linked
	// facts imply. An empty agencyID means every agency.
	ListStale(ctx context.Context, agencyID string) ([]*domain.Household, error)
	// ListGhosts returns lead households without facts created before cutoff.
	ListGhosts(ctx context.Context, agencyID string, cutoff time.Time) ([]*domain.Household, error)
}

// FactRepository is append-only. Inserts with a source_ref already stored
// are no-ops and report inserted=false.
type FactRepository interface {
	InsertQuote(ctx context.Context, fact *domain.QuoteFact) (inserted bool, err error)
	InsertSale(ctx context.Context, fact *domain.SaleFact) (inserted bool, err error)
	ListQuotes(ctx context.Context, householdID string) ([]*domain.QuoteFact, error)
	ListSales(ctx context.Context, householdID string) ([]*domain.SaleFact, error)
	Counts(ctx context.Context, householdID string) (domain.FactCounts, error)
}
