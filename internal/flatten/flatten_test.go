package flatten_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/emiliopalmerini/salespulse/internal/adapters/otel"
	"github.com/emiliopalmerini/salespulse/internal/adapters/turso"
	"github.com/emiliopalmerini/salespulse/internal/adapters/turso/tursotest"
	"github.com/emiliopalmerini/salespulse/internal/domain"
	"github.com/emiliopalmerini/salespulse/internal/eventbus"
	"github.com/emiliopalmerini/salespulse/internal/extract"
	"github.com/emiliopalmerini/salespulse/internal/flatten"
	"github.com/emiliopalmerini/salespulse/internal/household"
)

var workDate = time.Date(2025, 9, 5, 0, 0, 0, 0, time.UTC)

func quiet() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func setup(t *testing.T) (*turso.Store, *flatten.Flattener) {
	t.Helper()
	ctx := context.Background()
	store := tursotest.NewStore(t)
	repos := store.Repos()

	steps := []error{
		repos.Agencies.Upsert(ctx, &domain.Agency{ID: "ag-1", Name: "Acme Insurance"}),
		repos.Members.Upsert(ctx, &domain.TeamMember{ID: "m-1", AgencyID: "ag-1", Name: "Pat", Role: "sales"}),
		repos.LeadSources.Upsert(ctx, &domain.LeadSource{ID: "ls-1", AgencyID: "ag-1", Label: "Referral"}),
		repos.Forms.Upsert(ctx, &domain.Form{ID: "form-1", AgencyID: "ag-1", Name: "Daily", Role: "sales"}),
	}
	for _, err := range steps {
		if err != nil {
			t.Fatalf("failed to seed: %v", err)
		}
	}

	logger := quiet()
	bus := eventbus.NewSync(logger)
	svc := household.NewService(store, bus, otel.NewNoOpExporter(), logger)
	bus.Subscribe("household-promotion", household.NewPromotionHandler(svc))

	return store, flatten.New(store, svc, extract.NewResolver(nil, logger), logger)
}

func createSubmission(t *testing.T, store *turso.Store, final bool, payload map[string]any) *domain.Submission {
	t.Helper()
	sub := &domain.Submission{
		ID:          "sub-1",
		AgencyID:    "ag-1",
		FormID:      "form-1",
		MemberID:    "m-1",
		WorkDate:    workDate,
		Final:       final,
		Payload:     payload,
		SubmittedAt: workDate.Add(17 * time.Hour),
	}
	if err := store.Repos().Submissions.Create(context.Background(), sub); err != nil {
		t.Fatalf("failed to create submission: %v", err)
	}
	return sub
}

func rows() []extract.Row {
	return []extract.Row{
		{Position: 0, FirstName: "Jane", LastName: "Doe", Zip: "30301", Items: 2},
		{Position: 1},
		{Position: 2, FirstName: "Ana", LastName: "Lopez", LeadSourceID: "ls-1", ProductType: "home"},
		{Position: 3, LastName: "Smith", Items: 1},
	}
}

func TestFlatten_IsIdempotent(t *testing.T) {
	store, f := setup(t)
	ctx := context.Background()
	sub := createSubmission(t, store, true, map[string]any{})

	first, err := f.Flatten(ctx, sub, rows())
	if err != nil {
		t.Fatalf("Flatten failed: %v", err)
	}
	if first.Details.Processed != 3 || first.Details.Skipped != 1 {
		t.Errorf("unexpected detail summary: %+v", first.Details)
	}
	if first.Facts.Processed != 2 || first.Facts.Skipped != 1 {
		t.Errorf("unexpected fact summary: %+v", first.Facts)
	}

	before, err := store.Repos().Details.ListBySubmission(ctx, sub.ID)
	if err != nil {
		t.Fatalf("ListBySubmission failed: %v", err)
	}

	second, err := f.Flatten(ctx, sub, rows())
	if err != nil {
		t.Fatalf("second Flatten failed: %v", err)
	}
	if second.Deleted != 3 {
		t.Errorf("expected 3 rows replaced, got %d", second.Deleted)
	}

	after, err := store.Repos().Details.ListBySubmission(ctx, sub.ID)
	if err != nil {
		t.Fatalf("ListBySubmission failed: %v", err)
	}
	if len(after) != len(before) {
		t.Fatalf("expected %d rows, got %d", len(before), len(after))
	}
	for i := range after {
		a, b := after[i], before[i]
		if a.Position != b.Position || a.FirstName != b.FirstName || a.LastName != b.LastName || a.Items != b.Items {
			t.Errorf("row %d differs after rerun: %+v vs %+v", i, a, b)
		}
	}

	key, _ := domain.HouseholdIdentity{AgencyID: "ag-1", FirstName: "Jane", LastName: "Doe", Zip: "30301"}.Key()
	h, err := store.Repos().Households.GetByKey(ctx, "ag-1", key)
	if err != nil || h == nil {
		t.Fatalf("expected household for Jane Doe, got %v (err %v)", h, err)
	}
	quotes, err := store.Repos().Facts.ListQuotes(ctx, h.ID)
	if err != nil {
		t.Fatalf("ListQuotes failed: %v", err)
	}
	if len(quotes) != 1 {
		t.Fatalf("expected one quote fact after two runs, got %d", len(quotes))
	}
	if !quotes[0].SkipMetricsIncrement {
		t.Error("flattened quote facts must skip the metrics increment")
	}
	if quotes[0].SourceRef == nil || *quotes[0].SourceRef != flatten.FactRef("sub-1", 0) {
		t.Errorf("unexpected source ref: %v", quotes[0].SourceRef)
	}
	if h.Status != domain.StatusQuoted {
		t.Errorf("expected quoted household, got %s", h.Status)
	}
}

func TestFlatten_ResolvesLeadSourceLabel(t *testing.T) {
	store, f := setup(t)
	ctx := context.Background()
	sub := createSubmission(t, store, true, map[string]any{})

	if _, err := f.Flatten(ctx, sub, rows()); err != nil {
		t.Fatalf("Flatten failed: %v", err)
	}
	details, err := store.Repos().Details.ListBySubmission(ctx, sub.ID)
	if err != nil {
		t.Fatalf("ListBySubmission failed: %v", err)
	}
	for _, d := range details {
		if d.Position != 2 {
			continue
		}
		if d.LeadSourceLabel == nil || *d.LeadSourceLabel != "Referral" {
			t.Errorf("expected label Referral, got %v", d.LeadSourceLabel)
		}
		return
	}
	t.Fatal("row at position 2 not stored")
}

func TestFlattenStored(t *testing.T) {
	store, f := setup(t)
	ctx := context.Background()
	createSubmission(t, store, true, map[string]any{
		"quoted_household_details": []any{
			map[string]any{"first_name": "Jane", "last_name": "Doe"},
			map[string]any{},
		},
	})

	res, err := f.FlattenStored(ctx, "sub-1")
	if err != nil {
		t.Fatalf("FlattenStored failed: %v", err)
	}
	if res.Details.Processed != 1 || res.Details.Skipped != 1 {
		t.Errorf("unexpected summary: %+v", res.Details)
	}

	if _, err := f.FlattenStored(ctx, "missing"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestFlattenStored_RejectsDrafts(t *testing.T) {
	store, f := setup(t)
	createSubmission(t, store, false, map[string]any{})

	_, err := f.FlattenStored(context.Background(), "sub-1")
	if !errors.Is(err, domain.ErrDraftSubmission) {
		t.Errorf("expected ErrDraftSubmission, got %v", err)
	}
}
