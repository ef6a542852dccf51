package aggregation_test

import (
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
	"github.com/emiliopalmerini/salespulse/internal/ports"
)

// 2025-09-01 is a Monday.
var monday = time.Date(2025, 9, 1, 0, 0, 0, 0, time.UTC)

func day(offset int) time.Time { return monday.AddDate(0, 0, offset) }

func setup(t *testing.T) (*turso.Store, *aggregation.Engine) {
	t.Helper()
	ctx := context.Background()
	store := tursotest.NewStore(t)
	repos := store.Repos()

	require.NoError(t, repos.Agencies.Upsert(ctx, &domain.Agency{ID: "ag-1", Name: "Acme Insurance"}))
	require.NoError(t, repos.Members.Upsert(ctx, &domain.TeamMember{ID: "m-1", AgencyID: "ag-1", Name: "Pat", Role: "sales"}))
	require.NoError(t, repos.Members.Upsert(ctx, &domain.TeamMember{ID: "m-2", AgencyID: "ag-1", Name: "Sam", Role: "service"}))
	require.NoError(t, repos.Rules.Create(ctx, &domain.ScoringRule{
		ID:           "rule-1",
		AgencyID:     "ag-1",
		Role:         "sales",
		SelectedKeys: []domain.MetricKey{domain.MetricOutboundCalls, domain.MetricQuotedHouseholds},
		RequiredHits: 1,
	}))
	require.NoError(t, repos.Targets.Upsert(ctx, &domain.Target{AgencyID: "ag-1", Key: domain.MetricOutboundCalls, Value: 20}))
	require.NoError(t, repos.Targets.Upsert(ctx, &domain.Target{AgencyID: "ag-1", Key: domain.MetricQuotedHouseholds, Value: 3}))

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return store, aggregation.NewEngine(store, otel.NewNoOpExporter(), logger, 0)
}

func merge(t *testing.T, e *aggregation.Engine, date time.Time, producer domain.Producer, values domain.MetricValues) *aggregation.Result {
	t.Helper()
	res, err := e.Merge(context.Background(), aggregation.MergeRequest{
		AgencyID: "ag-1",
		MemberID: "m-1",
		WorkDate: date,
		Values:   values,
		Producer: producer,
	})
	require.NoError(t, err)
	return res
}

func TestMerge_CreatesAndScores(t *testing.T) {
	_, e := setup(t)

	res := merge(t, e, day(0), domain.ProducerScorecard, domain.MetricValues{domain.MetricOutboundCalls: 25})

	require.NotNil(t, res.Record)
	assert.True(t, res.Created)
	assert.Equal(t, "rule-1", res.Record.RuleVersionID)
	assert.Equal(t, 1, res.Record.Hits)
	assert.True(t, res.Record.Pass)
	assert.True(t, res.Record.CountedDay)
	assert.Equal(t, 1, res.Record.Streak)
	assert.False(t, res.Record.Values.Has(domain.MetricQuotedHouseholds), "absent key must stay absent")
}

func TestMerge_AdditiveCountersNeverDecrease(t *testing.T) {
	_, e := setup(t)

	merge(t, e, day(0), domain.ProducerScorecard, domain.MetricValues{domain.MetricQuotedHouseholds: 10})
	res := merge(t, e, day(0), domain.ProducerQuickAdd, domain.MetricValues{domain.MetricQuotedHouseholds: 4})
	assert.Equal(t, 10.0, res.Record.Values[domain.MetricQuotedHouseholds])

	res = merge(t, e, day(0), domain.ProducerCallCenterSync, domain.MetricValues{domain.MetricQuotedHouseholds: 12})
	assert.Equal(t, 12.0, res.Record.Values[domain.MetricQuotedHouseholds])
	assert.False(t, res.Created)
}

func TestMerge_ProducerOrderDoesNotMatter(t *testing.T) {
	_, e := setup(t)

	merge(t, e, day(0), domain.ProducerQuickAdd, domain.MetricValues{domain.MetricQuotedHouseholds: 7})
	merge(t, e, day(0), domain.ProducerScorecard, domain.MetricValues{domain.MetricQuotedHouseholds: 5, domain.MetricOutboundCalls: 30})

	merge(t, e, day(1), domain.ProducerScorecard, domain.MetricValues{domain.MetricQuotedHouseholds: 5, domain.MetricOutboundCalls: 30})
	merge(t, e, day(1), domain.ProducerQuickAdd, domain.MetricValues{domain.MetricQuotedHouseholds: 7})

	a := merge(t, e, day(0), domain.ProducerQuickAdd, nil).Record
	b := merge(t, e, day(1), domain.ProducerQuickAdd, nil).Record
	assert.Equal(t, a.Values, b.Values)
	assert.Equal(t, a.Pass, b.Pass)
}

func TestMerge_DropsOverwriteFieldsFromNonAuthoritativeProducer(t *testing.T) {
	_, e := setup(t)

	merge(t, e, day(0), domain.ProducerScorecard, domain.MetricValues{domain.MetricOutboundCalls: 25})
	res := merge(t, e, day(0), domain.ProducerQuickAdd, domain.MetricValues{domain.MetricOutboundCalls: 2})

	assert.Equal(t, []domain.MetricKey{domain.MetricOutboundCalls}, res.Dropped)
	assert.Equal(t, 25.0, res.Record.Values[domain.MetricOutboundCalls])

	res = merge(t, e, day(0), domain.ProducerScorecard, domain.MetricValues{domain.MetricOutboundCalls: 2})
	assert.Equal(t, 2.0, res.Record.Values[domain.MetricOutboundCalls], "authoritative producer overwrites")
	assert.False(t, res.Record.Pass)
}

func TestMerge_SkipsWithoutRuleVersion(t *testing.T) {
	store, e := setup(t)
	ctx := context.Background()

	res, err := e.Merge(ctx, aggregation.MergeRequest{
		MemberID: "m-2",
		WorkDate: day(0),
		Values:   domain.MetricValues{domain.MetricOutboundCalls: 5},
		Producer: domain.ProducerScorecard,
	})
	require.NoError(t, err)
	assert.True(t, res.Skipped)
	assert.Nil(t, res.Record)

	rec, err := store.Repos().Metrics.Get(ctx, "m-2", day(0))
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestMerge_UnknownMember(t *testing.T) {
	_, e := setup(t)

	_, err := e.Merge(context.Background(), aggregation.MergeRequest{
		MemberID: "nobody",
		WorkDate: day(0),
		Producer: domain.ProducerScorecard,
	})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestMerge_FormBindsRuleVersion(t *testing.T) {
	store, e := setup(t)
	ctx := context.Background()
	require.NoError(t, store.Repos().Rules.Create(ctx, &domain.ScoringRule{
		ID: "rule-2", AgencyID: "ag-1", Role: "sales",
		SelectedKeys: []domain.MetricKey{domain.MetricTalkMinutes}, RequiredHits: 1,
	}))

	pinned := "rule-1"
	res, err := e.Merge(ctx, aggregation.MergeRequest{
		MemberID: "m-1",
		WorkDate: day(0),
		Values:   domain.MetricValues{domain.MetricOutboundCalls: 25},
		Producer: domain.ProducerScorecard,
		Form:     &domain.Form{ID: "form-1", RuleVersionID: &pinned},
	})
	require.NoError(t, err)
	assert.Equal(t, "rule-1", res.Record.RuleVersionID)

	res = merge(t, e, day(1), domain.ProducerScorecard, domain.MetricValues{domain.MetricOutboundCalls: 25})
	assert.Equal(t, "rule-2", res.Record.RuleVersionID, "latest version binds new records")
}

func TestMerge_LatePolicy(t *testing.T) {
	store, e := setup(t)
	ctx := context.Background()
	late := true

	req := aggregation.MergeRequest{
		MemberID: "m-1",
		WorkDate: day(0),
		Values:   domain.MetricValues{domain.MetricOutboundCalls: 25},
		Producer: domain.ProducerScorecard,
		Late:     &late,
	}
	res, err := e.Merge(ctx, req)
	require.NoError(t, err)
	assert.True(t, res.Record.Late)
	assert.False(t, res.Record.Pass)
	assert.True(t, res.Score.Forced)

	require.NoError(t, store.Repos().Agencies.Upsert(ctx, &domain.Agency{ID: "ag-1", Name: "Acme Insurance", LateCountsForPass: true}))
	res, err = e.Merge(ctx, req)
	require.NoError(t, err)
	assert.True(t, res.Record.Pass)
}

func TestIncrement(t *testing.T) {
	_, e := setup(t)
	ctx := context.Background()

	inc := aggregation.IncrementRequest{
		MemberID: "m-1",
		WorkDate: day(0),
		Key:      domain.MetricQuotedHouseholds,
		Delta:    1,
		Producer: domain.ProducerHouseholdPromotion,
	}
	for i := 0; i < 3; i++ {
		_, err := e.Increment(ctx, inc)
		require.NoError(t, err)
	}

	res := merge(t, e, day(0), domain.ProducerQuickAdd, nil)
	assert.Equal(t, 3.0, res.Record.Values[domain.MetricQuotedHouseholds])
	assert.True(t, res.Record.Pass, "quoted target of 3 met")

	inc.Key = domain.MetricOutboundCalls
	_, err := e.Increment(ctx, inc)
	assert.Error(t, err)
}

// racingStore makes the first transaction miss an existing record, as happens
// when another writer inserts the same (member, date) between read and write.
type racingStore struct {
	ports.Store
	misses int
}

func (s *racingStore) WithinTx(ctx context.Context, fn func(r *ports.Repositories) error) error {
	return s.Store.WithinTx(ctx, func(r *ports.Repositories) error {
		repos := *r
		repos.Metrics = &missingMetrics{DailyMetricRepository: r.Metrics, store: s}
		return fn(&repos)
	})
}

type missingMetrics struct {
	ports.DailyMetricRepository
	store *racingStore
}

func (m *missingMetrics) Get(ctx context.Context, memberID string, workDate time.Time) (*domain.DailyMetricRecord, error) {
	if m.store.misses > 0 {
		m.store.misses--
		return nil, nil
	}
	return m.DailyMetricRepository.Get(ctx, memberID, workDate)
}

func TestIncrement_RetriesLostInsertRace(t *testing.T) {
	store, e := setup(t)
	merge(t, e, day(0), domain.ProducerScorecard, domain.MetricValues{domain.MetricQuotedHouseholds: 2, domain.MetricOutboundCalls: 25})

	racing := &racingStore{Store: store, misses: 1}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	raced := aggregation.NewEngine(racing, otel.NewNoOpExporter(), logger, 0)

	res, err := raced.Increment(context.Background(), aggregation.IncrementRequest{
		MemberID: "m-1",
		WorkDate: day(0),
		Key:      domain.MetricQuotedHouseholds,
		Delta:    1,
		Producer: domain.ProducerHouseholdPromotion,
	})
	require.NoError(t, err)
	assert.Zero(t, racing.misses)
	assert.False(t, res.Created, "retry must update the row the other writer inserted")
	assert.Equal(t, 3.0, res.Record.Values[domain.MetricQuotedHouseholds])
	assert.Equal(t, 25.0, res.Record.Values[domain.MetricOutboundCalls])

	records, err := store.Repos().Metrics.ListRange(context.Background(), "m-1", day(0), day(0))
	require.NoError(t, err)
	assert.Len(t, records, 1)
}

func TestMerge_PersistentConflictFails(t *testing.T) {
	store, e := setup(t)
	merge(t, e, day(0), domain.ProducerScorecard, domain.MetricValues{domain.MetricOutboundCalls: 25})

	racing := &racingStore{Store: store, misses: 100}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	raced := aggregation.NewEngine(racing, otel.NewNoOpExporter(), logger, 0)

	_, err := raced.Merge(context.Background(), aggregation.MergeRequest{
		MemberID: "m-1",
		WorkDate: day(0),
		Values:   domain.MetricValues{domain.MetricOutboundCalls: 30},
		Producer: domain.ProducerScorecard,
	})
	require.ErrorIs(t, err, domain.ErrConflict)
}

func TestMerge_RecalculatesFollowingStreaks(t *testing.T) {
	store, e := setup(t)
	ctx := context.Background()
	passing := domain.MetricValues{domain.MetricOutboundCalls: 25}

	for i := 0; i < 3; i++ {
		merge(t, e, day(i), domain.ProducerScorecard, passing)
	}
	wed, err := store.Repos().Metrics.Get(ctx, "m-1", day(2))
	require.NoError(t, err)
	assert.Equal(t, 3, wed.Streak)

	merge(t, e, day(1), domain.ProducerScorecard, domain.MetricValues{domain.MetricOutboundCalls: 5})

	wed, err = store.Repos().Metrics.Get(ctx, "m-1", day(2))
	require.NoError(t, err)
	assert.Equal(t, 1, wed.Streak)
}

func TestMerge_WeekendDoesNotBreakStreak(t *testing.T) {
	_, e := setup(t)
	passing := domain.MetricValues{domain.MetricOutboundCalls: 25}

	merge(t, e, day(4), domain.ProducerScorecard, passing) // Friday
	sat := merge(t, e, day(5), domain.ProducerScorecard, domain.MetricValues{domain.MetricOutboundCalls: 1})
	assert.False(t, sat.Record.CountedDay)

	mon := merge(t, e, day(7), domain.ProducerScorecard, passing)
	assert.Equal(t, 2, mon.Record.Streak)
}

func TestRecompute(t *testing.T) {
	store, e := setup(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		merge(t, e, day(i), domain.ProducerScorecard, domain.MetricValues{domain.MetricOutboundCalls: 25})
	}
	require.NoError(t, store.Repos().Rules.Create(ctx, &domain.ScoringRule{
		ID: "rule-2", AgencyID: "ag-1", Role: "sales",
		SelectedKeys: []domain.MetricKey{domain.MetricTalkMinutes}, RequiredHits: 1,
	}))

	summary, err := e.Recompute(ctx, aggregation.RecomputeRequest{MemberID: "m-1", From: day(0), To: day(2)})
	require.NoError(t, err)
	assert.Equal(t, 3, summary.Processed)
	rec, err := store.Repos().Metrics.Get(ctx, "m-1", day(2))
	require.NoError(t, err)
	assert.Equal(t, "rule-1", rec.RuleVersionID)
	assert.Equal(t, 3, rec.Streak)

	for i := 0; i < 2; i++ {
		_, err = e.Recompute(ctx, aggregation.RecomputeRequest{MemberID: "m-1", From: day(0), To: day(2), Rebind: true})
		require.NoError(t, err)
	}
	rec, err = store.Repos().Metrics.Get(ctx, "m-1", day(2))
	require.NoError(t, err)
	assert.Equal(t, "rule-2", rec.RuleVersionID)
	assert.False(t, rec.Pass)
	assert.Equal(t, 0, rec.Streak)
	assert.Equal(t, 25.0, rec.Values[domain.MetricOutboundCalls], "values are untouched")
}

func TestRecompute_InvalidRange(t *testing.T) {
	_, e := setup(t)

	_, err := e.Recompute(context.Background(), aggregation.RecomputeRequest{MemberID: "m-1", From: day(2), To: day(0)})
	assert.Error(t, err)
}
