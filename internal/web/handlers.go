package web

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/emiliopalmerini/salespulse/internal/aggregation"
	"github.com/emiliopalmerini/salespulse/internal/domain"
)

const defaultMetricsRange = 30

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var body SubmitRequest
	if err := decodeJSON(r, &body, false); err != nil {
		s.writeError(w, r, err)
		return
	}
	req, err := body.Request()
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	out, err := s.svc.Processor.Submit(r.Context(), req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	status := http.StatusCreated
	if out.Draft {
		status = http.StatusAccepted
	}
	writeJSON(w, status, newSubmissionView(out))
}

func (s *Server) handleReprocess(w http.ResponseWriter, r *http.Request) {
	out, err := s.svc.Processor.Reprocess(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newSubmissionView(out))
}

func (s *Server) handleAudit(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	repos := s.svc.Store.Repos()
	sub, err := repos.Submissions.GetByID(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if sub == nil {
		s.writeError(w, r, fmt.Errorf("submission %s: %w", id, domain.ErrNotFound))
		return
	}
	audits, err := repos.Audits.ListBySubmission(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	views := make([]auditView, 0, len(audits))
	for _, a := range audits {
		views = append(views, newAuditView(a))
	}
	writeJSON(w, http.StatusOK, views)
}

func (s *Server) handleQuote(w http.ResponseWriter, r *http.Request) {
	var body FactRequest
	if err := decodeJSON(r, &body, false); err != nil {
		s.writeError(w, r, err)
		return
	}
	in, err := body.QuoteInput()
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	res, err := s.svc.Households.RecordQuote(r.Context(), in)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeFact(w, res.Household.ID, res.Created, res.FactID, res.Inserted)
}

func (s *Server) handleSale(w http.ResponseWriter, r *http.Request) {
	var body FactRequest
	if err := decodeJSON(r, &body, false); err != nil {
		s.writeError(w, r, err)
		return
	}
	in, err := body.SaleInput()
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	res, err := s.svc.Households.RecordSale(r.Context(), in)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeFact(w, res.Household.ID, res.Created, res.FactID, res.Inserted)
}

// writeFact answers 201 for a new fact and 200 for a replayed source ref.
func writeFact(w http.ResponseWriter, householdID string, created bool, factID string, inserted bool) {
	status := http.StatusOK
	if inserted {
		status = http.StatusCreated
	}
	writeJSON(w, status, factView{
		HouseholdID: householdID,
		Created:     created,
		FactID:      factID,
		Inserted:    inserted,
	})
}

func (s *Server) handleSignal(w http.ResponseWriter, r *http.Request) {
	var body SignalRequest
	if err := decodeJSON(r, &body, false); err != nil {
		s.writeError(w, r, err)
		return
	}
	sig, err := body.Signal()
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.svc.Households.ApplySignal(r.Context(), sig); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]bool{"accepted": true})
}

func (s *Server) handleHousehold(w http.ResponseWriter, r *http.Request) {
	view, err := s.svc.Households.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newHouseholdDetail(view))
}

func (s *Server) handleSetStatus(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Status string `json:"status"`
	}
	if err := decodeJSON(r, &body, false); err != nil {
		s.writeError(w, r, err)
		return
	}
	status, err := domain.ParseHouseholdStatus(body.Status)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	h, err := s.svc.Households.SetStatus(r.Context(), chi.URLParam(r, "id"), status)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newHouseholdView(h))
}

func (s *Server) handleMemberMetrics(w http.ResponseWriter, r *http.Request) {
	memberID := chi.URLParam(r, "id")
	from, to, err := s.dateRange(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	repos := s.svc.Store.Repos()
	member, err := repos.Members.GetByID(r.Context(), memberID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if member == nil {
		s.writeError(w, r, fmt.Errorf("member %s: %w", memberID, domain.ErrNotFound))
		return
	}
	records, err := repos.Metrics.ListRange(r.Context(), memberID, from, to)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	views := make([]*recordView, 0, len(records))
	for _, rec := range records {
		views = append(views, newRecordView(rec))
	}
	writeJSON(w, http.StatusOK, views)
}

// dateRange reads from and to query parameters. to defaults to today and
// from to the thirty days before it.
func (s *Server) dateRange(r *http.Request) (time.Time, time.Time, error) {
	to := domain.Day(s.now())
	if v := r.URL.Query().Get("to"); v != "" {
		t, err := parseDate("to", v)
		if err != nil {
			return time.Time{}, time.Time{}, err
		}
		to = t
	}
	from := to.AddDate(0, 0, -defaultMetricsRange)
	if v := r.URL.Query().Get("from"); v != "" {
		f, err := parseDate("from", v)
		if err != nil {
			return time.Time{}, time.Time{}, err
		}
		from = f
	}
	if to.Before(from) {
		return time.Time{}, time.Time{}, badRequest("from must not be after to")
	}
	return from, to, nil
}

type mergeView struct {
	Created bool        `json:"created"`
	Skipped bool        `json:"skipped"`
	Record  *recordView `json:"record,omitempty"`
}

func (s *Server) handleQuickQuote(w http.ResponseWriter, r *http.Request) {
	workDate, err := parseDate("date", chi.URLParam(r, "date"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	body := struct {
		Count int `json:"count"`
	}{Count: 1}
	if err := decodeJSON(r, &body, true); err != nil {
		s.writeError(w, r, err)
		return
	}
	if body.Count < 1 {
		s.writeError(w, r, badRequest("count must be at least 1"))
		return
	}

	res, err := s.svc.Engine.Increment(r.Context(), aggregation.IncrementRequest{
		MemberID: chi.URLParam(r, "id"),
		WorkDate: workDate,
		Key:      domain.MetricQuotedHouseholds,
		Delta:    float64(body.Count),
		Producer: domain.ProducerQuickAdd,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, mergeView{
		Created: res.Created,
		Skipped: res.Skipped,
		Record:  newRecordView(res.Record),
	})
}

func (s *Server) handleRecompute(w http.ResponseWriter, r *http.Request) {
	from, to, err := s.dateRange(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	summary, err := s.svc.Engine.Recompute(r.Context(), aggregation.RecomputeRequest{
		MemberID: chi.URLParam(r, "id"),
		From:     from,
		To:       to,
		Rebind:   r.URL.Query().Get("rules") == "current",
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (s *Server) handleReconcileHouseholds(w http.ResponseWriter, r *http.Request) {
	summary, err := s.svc.Reconciler.PromoteStale(r.Context(), r.URL.Query().Get("agency"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (s *Server) handleReconcileGhosts(w http.ResponseWriter, r *http.Request) {
	var cutoff time.Time
	if v := r.URL.Query().Get("before"); v != "" {
		t, err := parseCutoff(v)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		cutoff = t
	}
	summary, err := s.svc.Reconciler.PurgeGhosts(r.Context(), r.URL.Query().Get("agency"), cutoff)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// parseCutoff accepts an RFC3339 timestamp or a date.
func parseCutoff(v string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t.UTC(), nil
	}
	if t, err := domain.ParseDate(v); err == nil {
		return t, nil
	}
	return time.Time{}, badRequest("before must be RFC3339 or YYYY-MM-DD, got %q", v)
}
