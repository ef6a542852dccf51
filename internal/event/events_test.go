package event

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewQuoteRecorded_RoundTripsPayload(t *testing.T) {
	on := time.Date(2025, 9, 5, 0, 0, 0, 0, time.UTC)
	evt := NewQuoteRecorded(QuoteRecordedPayload{
		FactID:      "fact-123456789",
		HouseholdID: "hh-123456789",
		AgencyID:    "ag-1",
		MemberID:    "m-1",
		QuoteDate:   on,
	})

	assert.Equal(t, TypeQuoteRecorded, evt.EventType)
	assert.Equal(t, "ag-1", evt.AgencyID)
	assert.NotEmpty(t, evt.ID)
	assert.Len(t, evt.AffectedEntities, 3)
	assert.Contains(t, evt.Summary, "hh-12345")

	var p QuoteRecordedPayload
	require.NoError(t, evt.Decode(&p))
	assert.Equal(t, "hh-123456789", p.HouseholdID)
	assert.True(t, p.QuoteDate.Equal(on))
	assert.False(t, p.SkipMetricsIncrement)
}

func TestDecode_RejectsMismatchedPayload(t *testing.T) {
	evt := DomainEvent{EventType: TypeSaleRecorded, Payload: []byte(`[1,2]`)}
	var p SaleRecordedPayload
	assert.Error(t, evt.Decode(&p))
}

func TestShortIDs(t *testing.T) {
	evt := NewHouseholdPromoted(HouseholdPromotedPayload{HouseholdID: "abc", From: "lead", To: "quoted"})
	assert.Equal(t, "Household abc promoted lead -> quoted", evt.Summary)
}
