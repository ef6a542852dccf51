package household_test

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/emiliopalmerini/salespulse/internal/adapters/otel"
	"github.com/emiliopalmerini/salespulse/internal/adapters/turso"
	"github.com/emiliopalmerini/salespulse/internal/adapters/turso/tursotest"
	"github.com/emiliopalmerini/salespulse/internal/aggregation"
	"github.com/emiliopalmerini/salespulse/internal/domain"
	"github.com/emiliopalmerini/salespulse/internal/eventbus"
	"github.com/emiliopalmerini/salespulse/internal/household"
	"github.com/emiliopalmerini/salespulse/internal/ports"
)

var quoteDay = time.Date(2025, 9, 5, 0, 0, 0, 0, time.UTC)

type fixture struct {
	store *turso.Store
	svc   *household.Service
	bus   *eventbus.Bus
	logs  *bytes.Buffer
}

func setup(t *testing.T) *fixture {
	t.Helper()
	return setupWithBus(t, eventbus.NewSync)
}

func setupWithBus(t *testing.T, newBus func(*slog.Logger) *eventbus.Bus) *fixture {
	t.Helper()
	ctx := context.Background()
	store := tursotest.NewStore(t)
	repos := store.Repos()

	require.NoError(t, repos.Agencies.Upsert(ctx, &domain.Agency{ID: "ag-1", Name: "Acme Insurance"}))
	require.NoError(t, repos.Members.Upsert(ctx, &domain.TeamMember{ID: "m-1", AgencyID: "ag-1", Name: "Pat", Role: "sales"}))
	require.NoError(t, repos.LeadSources.Upsert(ctx, &domain.LeadSource{ID: "ls-1", AgencyID: "ag-1", Label: "Referral"}))
	require.NoError(t, repos.Rules.Create(ctx, &domain.ScoringRule{
		ID: "rule-1", AgencyID: "ag-1", Role: "sales",
		SelectedKeys: []domain.MetricKey{domain.MetricQuotedHouseholds}, RequiredHits: 1,
	}))

	logs := &bytes.Buffer{}
	logger := slog.New(slog.NewTextHandler(logs, nil))
	exporter := otel.NewNoOpExporter()
	bus := newBus(logger)
	engine := aggregation.NewEngine(store, exporter, slog.New(slog.NewTextHandler(io.Discard, nil)), 0)
	svc := household.NewService(store, bus, exporter, logger)
	bus.Subscribe("household-promotion", household.NewPromotionHandler(svc))
	bus.Subscribe("metrics-credit", household.NewMetricsCreditHandler(engine, logger))

	return &fixture{store: store, svc: svc, bus: bus, logs: logs}
}

func identity(first, last, zip string) domain.HouseholdIdentity {
	return domain.HouseholdIdentity{AgencyID: "ag-1", FirstName: first, LastName: last, Zip: zip}
}

func ref(s string) *string { return &s }

func (f *fixture) quote(t *testing.T, id domain.HouseholdIdentity, sourceRef string, skip bool) *household.RecordResult {
	t.Helper()
	fact := domain.QuoteFact{MemberID: "m-1", QuoteDate: quoteDay, ProductType: "auto", SkipMetricsIncrement: skip}
	if sourceRef != "" {
		fact.SourceRef = ref(sourceRef)
	}
	res, err := f.svc.RecordQuote(context.Background(), household.QuoteInput{Identity: id, Fact: fact})
	require.NoError(t, err)
	return res
}

func (f *fixture) quotedCount(t *testing.T) float64 {
	t.Helper()
	rec, err := f.store.Repos().Metrics.Get(context.Background(), "m-1", quoteDay)
	require.NoError(t, err)
	if rec == nil {
		return 0
	}
	return rec.Values[domain.MetricQuotedHouseholds]
}

func (f *fixture) status(t *testing.T, id string) *domain.Household {
	t.Helper()
	view, err := f.svc.Get(context.Background(), id)
	require.NoError(t, err)
	return view.Household
}

func TestRecordQuote_DeduplicatesIdentity(t *testing.T) {
	f := setup(t)

	a := f.quote(t, identity("Jane", "Doe", "30301"), "q-1", false)
	b := f.quote(t, identity("  JANE", "doe ", "30301-0001"), "q-2", false)

	assert.True(t, a.Created)
	assert.False(t, b.Created)
	assert.Equal(t, a.Household.ID, b.Household.ID)

	view, err := f.svc.Get(context.Background(), a.Household.ID)
	require.NoError(t, err)
	assert.Len(t, view.Quotes, 2)
}

func TestRecordQuote_PromotesAndCreditsOnce(t *testing.T) {
	f := setup(t)
	id := identity("Jane", "Doe", "30301")

	res := f.quote(t, id, "q-1", false)
	h := f.status(t, res.Household.ID)
	assert.Equal(t, domain.StatusQuoted, h.Status)
	require.NotNil(t, h.FirstQuoteDate)
	assert.True(t, quoteDay.Equal(*h.FirstQuoteDate))
	assert.Equal(t, 1.0, f.quotedCount(t))

	retry := f.quote(t, id, "q-1", false)
	assert.False(t, retry.Inserted)
	assert.Equal(t, 1.0, f.quotedCount(t), "retried fact must not credit again")

	f.quote(t, id, "q-2", false)
	assert.Equal(t, 1.0, f.quotedCount(t), "already quoted household is not credited")

	f.quote(t, identity("Ana", "Lopez", "30302"), "q-3", false)
	assert.Equal(t, 2.0, f.quotedCount(t))
}

func TestRecordQuote_QueuedBusCreditsEveryPromotion(t *testing.T) {
	f := setupWithBus(t, func(l *slog.Logger) *eventbus.Bus { return eventbus.New(1, l) })
	ctx, cancel := context.WithCancel(context.Background())
	f.bus.Start(ctx)

	f.quote(t, identity("Jane", "Doe", "30301"), "", false)
	f.quote(t, identity("John", "Roe", "30302"), "", false)
	cancel()
	f.quote(t, identity("Ann", "Poe", "30303"), "", false)
	f.bus.Stop()

	assert.Equal(t, 3.0, f.quotedCount(t))
	assert.NotContains(t, f.logs.String(), "eventbus handler failed")
}

func TestRecordQuote_SkipFlagSuppressesCredit(t *testing.T) {
	f := setup(t)

	res := f.quote(t, identity("Jane", "Doe", "30301"), "q-1", true)

	assert.Equal(t, domain.StatusQuoted, f.status(t, res.Household.ID).Status)
	assert.Equal(t, 0.0, f.quotedCount(t))
}

func TestRecordSale_PromotesToSold(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	id := identity("Jane", "Doe", "30301")

	sale, err := f.svc.RecordSale(ctx, household.SaleInput{
		Identity: id,
		Fact:     domain.SaleFact{MemberID: "m-1", SaleDate: quoteDay, Policies: 1, SourceRef: ref("s-1")},
	})
	require.NoError(t, err)
	h := f.status(t, sale.Household.ID)
	assert.Equal(t, domain.StatusSold, h.Status)
	require.NotNil(t, h.SoldDate)

	f.quote(t, id, "q-1", false)
	assert.Equal(t, domain.StatusSold, f.status(t, sale.Household.ID).Status, "sold is terminal")
	assert.Equal(t, 0.0, f.quotedCount(t))
}

func TestApplySignal(t *testing.T) {
	tests := []struct {
		name    string
		signal  domain.RetentionSignal
		want    domain.HouseholdStatus
		wantErr error
	}{
		{
			name:   "winback recovered",
			signal: domain.RetentionSignal{Source: domain.RetentionWinback, Outcome: domain.OutcomeRecovered},
			want:   domain.StatusSold,
		},
		{
			name:   "renewal successful",
			signal: domain.RetentionSignal{Source: domain.RetentionRenewal, Outcome: domain.OutcomeSuccessful},
			want:   domain.StatusSold,
		},
		{
			name:   "moved back into quoting",
			signal: domain.RetentionSignal{Source: domain.RetentionRenewal, Outcome: domain.OutcomeMovedToQuoting},
			want:   domain.StatusQuoted,
		},
		{
			name:    "unsupported outcome",
			signal:  domain.RetentionSignal{Source: domain.RetentionRenewal, Outcome: domain.OutcomeRecovered},
			wantErr: domain.ErrInvalidSignal,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := setup(t)
			ctx := context.Background()
			var hh *domain.Household
			err := f.store.WithinTx(ctx, func(r *ports.Repositories) error {
				var err error
				hh, _, err = household.Upsert(ctx, r, identity("Jane", "Doe", "30301"), domain.HouseholdContact{}, quoteDay)
				return err
			})
			require.NoError(t, err)

			sig := tt.signal
			sig.HouseholdID = hh.ID
			sig.OccurredAt = quoteDay
			err = f.svc.ApplySignal(ctx, sig)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, f.status(t, hh.ID).Status)
			assert.Equal(t, 0.0, f.quotedCount(t), "signals never credit the quoted count")
		})
	}
}

func TestApplySignal_UnknownHousehold(t *testing.T) {
	f := setup(t)

	err := f.svc.ApplySignal(context.Background(), domain.RetentionSignal{
		Source: domain.RetentionWinback, Outcome: domain.OutcomeRecovered, HouseholdID: "missing",
	})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestStatusIsMonotonic(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	id := identity("Jane", "Doe", "30301")

	res := f.quote(t, id, "q-1", false)
	_, err := f.svc.RecordSale(ctx, household.SaleInput{Identity: id, Fact: domain.SaleFact{MemberID: "m-1", SaleDate: quoteDay}})
	require.NoError(t, err)
	require.NoError(t, f.svc.ApplySignal(ctx, domain.RetentionSignal{
		Source: domain.RetentionWinback, Outcome: domain.OutcomeMovedToQuoting, HouseholdID: res.Household.ID,
	}))
	f.quote(t, id, "q-2", false)

	assert.Equal(t, domain.StatusSold, f.status(t, res.Household.ID).Status)
}

func TestSetStatus_LowersWithWarning(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	res := f.quote(t, identity("Jane", "Doe", "30301"), "q-1", false)

	h, err := f.svc.SetStatus(ctx, res.Household.ID, domain.StatusLead)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusLead, h.Status)
	assert.Nil(t, h.FirstQuoteDate)
	assert.Contains(t, f.logs.String(), "level=WARN")

	_, err = f.svc.SetStatus(ctx, res.Household.ID, "archived")
	assert.ErrorIs(t, err, domain.ErrInvalidStatus)
}

func TestRecordQuote_ResolvesLeadSourceLabel(t *testing.T) {
	f := setup(t)

	res, err := f.svc.RecordQuote(context.Background(), household.QuoteInput{
		Identity: identity("Jane", "Doe", "30301"),
		Contact:  domain.HouseholdContact{LeadSourceID: "ls-1"},
		Fact:     domain.QuoteFact{MemberID: "m-1", QuoteDate: quoteDay},
	})
	require.NoError(t, err)

	h := f.status(t, res.Household.ID)
	require.NotNil(t, h.LeadSourceLabel)
	assert.Equal(t, "Referral", *h.LeadSourceLabel)
	assert.False(t, h.NeedsAttention)
	require.NotNil(t, h.AssignedMemberID)
	assert.Equal(t, "m-1", *h.AssignedMemberID)
}

func TestResolveLeadSourceLabel_PrefersLiteral(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	sources := f.store.Repos().LeadSources

	label, err := household.ResolveLeadSourceLabel(ctx, sources, "ls-1", "Walk-in")
	require.NoError(t, err)
	assert.Equal(t, "Walk-in", label)

	label, err = household.ResolveLeadSourceLabel(ctx, sources, "ls-unknown", "")
	require.NoError(t, err)
	assert.Empty(t, label)
}

func TestRecordQuote_InvalidIdentity(t *testing.T) {
	f := setup(t)

	_, err := f.svc.RecordQuote(context.Background(), household.QuoteInput{
		Identity: identity("", "Doe", "30301"),
		Fact:     domain.QuoteFact{MemberID: "m-1", QuoteDate: quoteDay},
	})
	assert.ErrorIs(t, err, domain.ErrInvalidIdentity)
}
