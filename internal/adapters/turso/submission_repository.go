package turso

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/emiliopalmerini/salespulse/internal/domain"
)

const submissionColumns = `id, agency_id, form_id, member_id, work_date, final, late,
	payload, submitted_at, metric_record_id, supersedes_id`

type SubmissionRepository struct {
	db DBTX
}

func NewSubmissionRepository(db DBTX) *SubmissionRepository {
	return &SubmissionRepository{db: db}
}

func (r *SubmissionRepository) Create(ctx context.Context, s *domain.Submission) error {
	payload := s.Payload
	if payload == nil {
		payload = map[string]any{}
	}
	encoded, err := marshalJSON(payload)
	if err != nil {
		return err
	}
	if s.SubmittedAt.IsZero() {
		s.SubmittedAt = time.Now().UTC()
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO submissions (`+submissionColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, s.ID, s.AgencyID, s.FormID, s.MemberID, domain.FormatDate(s.WorkDate), boolInt(s.Final),
		boolInt(s.Late), encoded, formatTime(s.SubmittedAt), nullString(s.MetricRecordID), nullString(s.SupersedesID))
	if err != nil {
		return fmt.Errorf("failed to create submission: %w", err)
	}
	return nil
}

func (r *SubmissionRepository) GetByID(ctx context.Context, id string) (*domain.Submission, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+submissionColumns+` FROM submissions WHERE id = ?`, id)
	return nilOnNoRows(scanSubmission(row))
}

func (r *SubmissionRepository) GetLatestFinal(ctx context.Context, formID, memberID string, workDate time.Time) (*domain.Submission, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+submissionColumns+` FROM submissions
		WHERE form_id = ? AND member_id = ? AND work_date = ? AND final = 1
		ORDER BY submitted_at DESC, rowid DESC LIMIT 1
	`, formID, memberID, domain.FormatDate(workDate))
	return nilOnNoRows(scanSubmission(row))
}

func (r *SubmissionRepository) SetMetricRecord(ctx context.Context, submissionID, recordID string) error {
	_, err := r.db.ExecContext(ctx, `UPDATE submissions SET metric_record_id = ? WHERE id = ?`, recordID, submissionID)
	if err != nil {
		return fmt.Errorf("failed to link submission to metric record: %w", err)
	}
	return nil
}

func scanSubmission(s scanner) (*domain.Submission, error) {
	var sub domain.Submission
	var workDate, payload, submittedAt string
	var final, late int64
	var recordID, supersedes sql.NullString

	err := s.Scan(&sub.ID, &sub.AgencyID, &sub.FormID, &sub.MemberID, &workDate, &final, &late,
		&payload, &submittedAt, &recordID, &supersedes)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan submission: %w", err)
	}

	d, err := parseDate(workDate)
	if err != nil {
		return nil, err
	}
	sub.WorkDate = d
	sub.Final = final == 1
	sub.Late = late == 1
	if err := unmarshalJSON(payload, &sub.Payload); err != nil {
		return nil, err
	}
	sub.SubmittedAt = parseTime(submittedAt)
	sub.MetricRecordID = stringPtr(recordID)
	sub.SupersedesID = stringPtr(supersedes)
	return &sub, nil
}

type DetailRepository struct {
	db DBTX
}

func NewDetailRepository(db DBTX) *DetailRepository {
	return &DetailRepository{db: db}
}

func (r *DetailRepository) DeleteBySubmission(ctx context.Context, submissionID string) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM quoted_household_details WHERE submission_id = ?`, submissionID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete details: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

func (r *DetailRepository) Insert(ctx context.Context, d *domain.QuotedHouseholdDetail) error {
	if d.CreatedAt.IsZero() {
		d.CreatedAt = time.Now().UTC()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO quoted_household_details (
			id, submission_id, agency_id, member_id, work_date, position, first_name, last_name,
			zip, product_type, items, premium_cents, lead_source_id, lead_source_label, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, d.ID, d.SubmissionID, d.AgencyID, d.MemberID, domain.FormatDate(d.WorkDate), d.Position,
		d.FirstName, d.LastName, d.Zip, d.ProductType, d.Items, d.PremiumCents,
		nullString(d.LeadSourceID), nullString(d.LeadSourceLabel), formatTime(d.CreatedAt))
	if err != nil {
		return fmt.Errorf("failed to insert detail: %w", err)
	}
	return nil
}

func (r *DetailRepository) ListBySubmission(ctx context.Context, submissionID string) ([]*domain.QuotedHouseholdDetail, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, submission_id, agency_id, member_id, work_date, position, first_name, last_name,
			zip, product_type, items, premium_cents, lead_source_id, lead_source_label, created_at
		FROM quoted_household_details WHERE submission_id = ? ORDER BY position
	`, submissionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list details: %w", err)
	}
	defer rows.Close()

	var out []*domain.QuotedHouseholdDetail
	for rows.Next() {
		var d domain.QuotedHouseholdDetail
		var workDate, createdAt string
		var sourceID, sourceLabel sql.NullString
		if err := rows.Scan(&d.ID, &d.SubmissionID, &d.AgencyID, &d.MemberID, &workDate, &d.Position,
			&d.FirstName, &d.LastName, &d.Zip, &d.ProductType, &d.Items, &d.PremiumCents,
			&sourceID, &sourceLabel, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan detail: %w", err)
		}
		wd, err := parseDate(workDate)
		if err != nil {
			return nil, err
		}
		d.WorkDate = wd
		d.LeadSourceID = stringPtr(sourceID)
		d.LeadSourceLabel = stringPtr(sourceLabel)
		d.CreatedAt = parseTime(createdAt)
		out = append(out, &d)
	}
	return out, rows.Err()
}

type AuditRepository struct {
	db DBTX
}

func NewAuditRepository(db DBTX) *AuditRepository {
	return &AuditRepository{db: db}
}

func (r *AuditRepository) Create(ctx context.Context, a *domain.AuditRecord) error {
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	resolutions := a.Resolutions
	if resolutions == nil {
		resolutions = []domain.FieldResolution{}
	}
	encoded, err := marshalJSON(resolutions)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO audit_records (
			id, submission_id, form_id, mapping_configured, fields_extracted, resolutions,
			section_rows, section_rows_skipped, section_row_errors, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, a.ID, a.SubmissionID, a.FormID, boolInt(a.MappingConfigured), a.FieldsExtracted, encoded,
		a.SectionRows, a.SectionRowsSkipped, a.SectionRowErrors, formatTime(a.CreatedAt))
	if err != nil {
		return fmt.Errorf("failed to create audit record: %w", err)
	}
	return nil
}

func (r *AuditRepository) ListBySubmission(ctx context.Context, submissionID string) ([]*domain.AuditRecord, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, submission_id, form_id, mapping_configured, fields_extracted, resolutions,
			section_rows, section_rows_skipped, section_row_errors, created_at
		FROM audit_records WHERE submission_id = ? ORDER BY created_at, rowid
	`, submissionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list audit records: %w", err)
	}
	defer rows.Close()

	var out []*domain.AuditRecord
	for rows.Next() {
		var a domain.AuditRecord
		var mapping int64
		var resolutions, createdAt string
		if err := rows.Scan(&a.ID, &a.SubmissionID, &a.FormID, &mapping, &a.FieldsExtracted, &resolutions,
			&a.SectionRows, &a.SectionRowsSkipped, &a.SectionRowErrors, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan audit record: %w", err)
		}
		a.MappingConfigured = mapping == 1
		if err := unmarshalJSON(resolutions, &a.Resolutions); err != nil {
			return nil, err
		}
		a.CreatedAt = parseTime(createdAt)
		out = append(out, &a)
	}
	return out, rows.Err()
}
