package ports

import "context"

// Repositories holds every repository bound to one connection or transaction.
type Repositories struct {
	Agencies    AgencyRepository
	Members     MemberRepository
	LeadSources LeadSourceRepository
	Forms       FormRepository
	Rules       RuleRepository
	Targets     TargetRepository
	Metrics     DailyMetricRepository
	Submissions SubmissionRepository
	Details     DetailRepository
	Audits      AuditRepository
	Households  HouseholdRepository
	Facts       FactRepository
}

// Store is the unit-of-work port.
type Store interface {
	// Repos returns repositories outside any transaction.
	Repos() *Repositories
	// WithinTx runs fn in one transaction and commits when fn returns nil.
	// fn must only use the repositories it is given.
	WithinTx(ctx context.Context, fn func(r *Repositories) error) error
}
