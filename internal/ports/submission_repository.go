package ports

import (
	"context"
	"time"

	"github.com/emiliopalmerini/salespulse/internal/domain"
)

type SubmissionRepository interface {
	Create(ctx context.Context, sub *domain.Submission) error
	GetByID(ctx context.Context, id string) (*domain.Submission, error)
	// GetLatestFinal returns the most recent final submission for
	// (form, member, date), or nil.
	GetLatestFinal(ctx context.Context, formID, memberID string, workDate time.Time) (*domain.Submission, error)
	SetMetricRecord(ctx context.Context, submissionID, recordID string) error
}

// DetailRepository stores the flattened quoted-household rows of a submission.
type DetailRepository interface {
	DeleteBySubmission(ctx context.Context, submissionID string) (int64, error)
	Insert(ctx context.Context, detail *domain.QuotedHouseholdDetail) error
	ListBySubmission(ctx context.Context, submissionID string) ([]*domain.QuotedHouseholdDetail, error)
}

type AuditRepository interface {
	Create(ctx context.Context, rec *domain.AuditRecord) error
	ListBySubmission(ctx context.Context, submissionID string) ([]*domain.AuditRecord, error)
}
