package ports

import (
	"context"

	"github.com/emiliopalmerini/salespulse/internal/domain"
)

type AgencyRepository interface {
	Upsert(ctx context.Context, agency *domain.Agency) error
	GetByID(ctx context.Context, id string) (*domain.Agency, error)
	List(ctx context.Context) ([]*domain.Agency, error)
}

type MemberRepository interface {
	Upsert(ctx context.Context, member *domain.TeamMember) error
	GetByID(ctx context.Context, id string) (*domain.TeamMember, error)
	ListByAgency(ctx context.Context, agencyID string) ([]*domain.TeamMember, error)
}

type LeadSourceRepository interface {
	Upsert(ctx context.Context, source *domain.LeadSource) error
	GetByID(ctx context.Context, id string) (*domain.LeadSource, error)
}

type FormRepository interface {
	Upsert(ctx context.Context, form *domain.Form) error
	GetByID(ctx context.Context, id string) (*domain.Form, error)
}

// RuleRepository stores immutable scoring rule versions. A rule change is
// a new version; records keep referencing the version they were scored with.
type RuleRepository interface {
	Create(ctx context.Context, rule *domain.ScoringRule) error
	GetByID(ctx context.Context, id string) (*domain.ScoringRule, error)
	// GetLatest returns the highest version for (agency, role), or nil.
	GetLatest(ctx context.Context, agencyID, role string) (*domain.ScoringRule, error)
}

type TargetRepository interface {
	Upsert(ctx context.Context, target *domain.Target) error
	// ListForMember returns agency defaults plus the member's overrides.
	ListForMember(ctx context.Context, agencyID, memberID string) ([]domain.Target, error)
}
