package turso

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/emiliopalmerini/salespulse/internal/domain"
	"github.com/emiliopalmerini/salespulse/internal/util"
)

const householdColumns = `h.id, h.agency_id, h.household_key, h.first_name, h.last_name, h.zip,
	h.email, h.phone, h.status, h.first_quote_date, h.sold_date, h.assigned_member_id,
	h.lead_source_id, h.lead_source_label, h.needs_attention, h.created_at, h.updated_at`

type HouseholdRepository struct {
	db DBTX
}

func NewHouseholdRepository(db DBTX) *HouseholdRepository {
	return &HouseholdRepository{db: db}
}

func (r *HouseholdRepository) Insert(ctx context.Context, h *domain.Household) error {
	now := time.Now().UTC()
	if h.CreatedAt.IsZero() {
		h.CreatedAt = now
	}
	h.UpdatedAt = now
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO households (
			id, agency_id, household_key, first_name, last_name, zip, email, phone, status,
			first_quote_date, sold_date, assigned_member_id, lead_source_id, lead_source_label,
			needs_attention, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, h.ID, h.AgencyID, h.HouseholdKey, h.FirstName, h.LastName, h.Zip, h.Email, h.Phone,
		string(h.Status), util.NullDate(h.FirstQuoteDate), util.NullDate(h.SoldDate),
		nullString(h.AssignedMemberID), nullString(h.LeadSourceID), nullString(h.LeadSourceLabel),
		boolInt(h.NeedsAttention), formatTime(h.CreatedAt), formatTime(h.UpdatedAt))
	if err != nil {
		return fmt.Errorf("failed to insert household: %w", err)
	}
	return nil
}

func (r *HouseholdRepository) Update(ctx context.Context, h *domain.Household) error {
	h.UpdatedAt = time.Now().UTC()
	res, err := r.db.ExecContext(ctx, `
		UPDATE households SET
			email = ?, phone = ?, status = ?, first_quote_date = ?, sold_date = ?,
			assigned_member_id = ?, lead_source_id = ?, lead_source_label = ?,
			needs_attention = ?, updated_at = ?
		WHERE id = ?
	`, h.Email, h.Phone, string(h.Status), util.NullDate(h.FirstQuoteDate), util.NullDate(h.SoldDate),
		nullString(h.AssignedMemberID), nullString(h.LeadSourceID), nullString(h.LeadSourceLabel),
		boolInt(h.NeedsAttention), formatTime(h.UpdatedAt), h.ID)
	if err != nil {
		return fmt.Errorf("failed to update household: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("household %s: %w", h.ID, domain.ErrNotFound)
	}
	return nil
}

func (r *HouseholdRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM households WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete household: %w", err)
	}
	return nil
}

func (r *HouseholdRepository) GetByID(ctx context.Context, id string) (*domain.Household, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+householdColumns+` FROM households h WHERE h.id = ?`, id)
	return nilOnNoRows(scanHousehold(row))
}

func (r *HouseholdRepository) GetByKey(ctx context.Context, agencyID, key string) (*domain.Household, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+householdColumns+` FROM households h WHERE h.agency_id = ? AND h.household_key = ?
	`, agencyID, key)
	return nilOnNoRows(scanHousehold(row))
}

func (r *HouseholdRepository) ListStale(ctx context.Context, agencyID string) ([]*domain.Household, error) {
	return r.list(ctx, `
		SELECT `+householdColumns+` FROM households h
		WHERE (? = '' OR h.agency_id = ?)
		  AND (
			(h.status = 'lead' AND EXISTS (SELECT 1 FROM quote_facts q WHERE q.household_id = h.id))
			OR (h.status != 'sold' AND EXISTS (SELECT 1 FROM sale_facts s WHERE s.household_id = h.id))
		  )
		ORDER BY h.created_at, h.id
	`, agencyID, agencyID)
}

func (r *HouseholdRepository) ListGhosts(ctx context.Context, agencyID string, cutoff time.Time) ([]*domain.Household, error) {
	return r.list(ctx, `
		SELECT `+householdColumns+` FROM households h
		WHERE (? = '' OR h.agency_id = ?)
		  AND h.status = 'lead'
		  AND h.created_at < ?
		  AND NOT EXISTS (SELECT 1 FROM quote_facts q WHERE q.household_id = h.id)
		  AND NOT EXISTS (SELECT 1 FROM sale_facts s WHERE s.household_id = h.id)
		ORDER BY h.created_at, h.id
	`, agencyID, agencyID, formatTime(cutoff))
}

func (r *HouseholdRepository) list(ctx context.Context, query string, args ...any) ([]*domain.Household, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list households: %w", err)
	}
	defer rows.Close()

	var out []*domain.Household
	for rows.Next() {
		h, err := scanHousehold(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

func scanHousehold(s scanner) (*domain.Household, error) {
	var h domain.Household
	var status, createdAt, updatedAt string
	var firstQuote, sold, member, sourceID, sourceLabel sql.NullString
	var attention int64

	err := s.Scan(&h.ID, &h.AgencyID, &h.HouseholdKey, &h.FirstName, &h.LastName, &h.Zip,
		&h.Email, &h.Phone, &status, &firstQuote, &sold, &member, &sourceID, &sourceLabel,
		&attention, &createdAt, &updatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan household: %w", err)
	}

	st, err := domain.ParseHouseholdStatus(status)
	if err != nil {
		return nil, err
	}
	h.Status = st
	h.FirstQuoteDate = util.NullDateToPtr(firstQuote)
	h.SoldDate = util.NullDateToPtr(sold)
	h.AssignedMemberID = stringPtr(member)
	h.LeadSourceID = stringPtr(sourceID)
	h.LeadSourceLabel = stringPtr(sourceLabel)
	h.NeedsAttention = attention == 1
	h.CreatedAt = parseTime(createdAt)
	h.UpdatedAt = parseTime(updatedAt)
	return &h, nil
}
