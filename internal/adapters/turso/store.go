package turso

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/emiliopalmerini/salespulse/internal/ports"
)

// NewRepositories binds every repository to db, which may be a transaction.
func NewRepositories(db DBTX) *ports.Repositories {
	return &ports.Repositories{
		Agencies:    NewAgencyRepository(db),
		Members:     NewMemberRepository(db),
		LeadSources: NewLeadSourceRepository(db),
		Forms:       NewFormRepository(db),
		Rules:       NewRuleRepository(db),
		Targets:     NewTargetRepository(db),
		Metrics:     NewDailyMetricRepository(db),
		Submissions: NewSubmissionRepository(db),
		Details:     NewDetailRepository(db),
		Audits:      NewAuditRepository(db),
		Households:  NewHouseholdRepository(db),
		Facts:       NewFactRepository(db),
	}
}

// Store implements ports.Store over a *sql.DB.
type Store struct {
	db    *sql.DB
	repos *ports.Repositories
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db, repos: NewRepositories(db)}
}

// DB returns the underlying connection pool.
func (s *Store) DB() *sql.DB {
	return s.db
}

func (s *Store) Repos() *ports.Repositories {
	return s.repos
}

// txRetries bounds how often a transaction is replayed after a stream error.
const txRetries = 2

// WithinTx runs fn in a transaction, rolling back when fn fails. A
// transaction that fails on a dropped remote stream is replayed, so fn must
// not keep state across calls.
func (s *Store) WithinTx(ctx context.Context, fn func(r *ports.Repositories) error) error {
	_, err := WithRetry(ctx, txRetries, func() (struct{}, error) {
		return struct{}{}, s.runTx(ctx, fn)
	})
	return err
}

func (s *Store) runTx(ctx context.Context, fn func(r *ports.Repositories) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	if err := fn(NewRepositories(tx)); err != nil {
		_ = tx.Rollback()
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}
