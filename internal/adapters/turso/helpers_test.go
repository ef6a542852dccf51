package turso_test

import (
	"context"
	"testing"

	"github.com/emiliopalmerini/salespulse/internal/adapters/turso"
	"github.com/emiliopalmerini/salespulse/internal/adapters/turso/tursotest"
	"github.com/emiliopalmerini/salespulse/internal/domain"
	"github.com/emiliopalmerini/salespulse/internal/ports"
)

func testStore(t *testing.T) *turso.Store {
	t.Helper()
	return tursotest.NewStore(t)
}

// seed creates agency ag-1, member m-1 and rule version rule-1.
func seed(t *testing.T, repos *ports.Repositories) {
	t.Helper()
	ctx := context.Background()

	if err := repos.Agencies.Upsert(ctx, &domain.Agency{ID: "ag-1", Name: "Acme Insurance"}); err != nil {
		t.Fatalf("failed to seed agency: %v", err)
	}
	if err := repos.Members.Upsert(ctx, &domain.TeamMember{ID: "m-1", AgencyID: "ag-1", Name: "Pat", Role: "sales"}); err != nil {
		t.Fatalf("failed to seed member: %v", err)
	}
	rule := &domain.ScoringRule{
		ID:           "rule-1",
		AgencyID:     "ag-1",
		Role:         "sales",
		SelectedKeys: []domain.MetricKey{domain.MetricOutboundCalls},
		RequiredHits: 1,
	}
	if err := repos.Rules.Create(ctx, rule); err != nil {
		t.Fatalf("failed to seed rule: %v", err)
	}
}
