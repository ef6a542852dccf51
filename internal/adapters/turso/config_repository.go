package turso

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/emiliopalmerini/salespulse/internal/domain"
)

type AgencyRepository struct {
	db DBTX
}

func NewAgencyRepository(db DBTX) *AgencyRepository {
	return &AgencyRepository{db: db}
}

func (r *AgencyRepository) Upsert(ctx context.Context, a *domain.Agency) error {
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO agencies (id, name, late_counts_for_pass, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			name = excluded.name,
			late_counts_for_pass = excluded.late_counts_for_pass
	`, a.ID, a.Name, boolInt(a.LateCountsForPass), formatTime(a.CreatedAt))
	if err != nil {
		return fmt.Errorf("failed to upsert agency: %w", err)
	}
	return nil
}

func (r *AgencyRepository) GetByID(ctx context.Context, id string) (*domain.Agency, error) {
	var a domain.Agency
	var late int64
	var createdAt string
	err := r.db.QueryRowContext(ctx, `
		SELECT id, name, late_counts_for_pass, created_at FROM agencies WHERE id = ?
	`, id).Scan(&a.ID, &a.Name, &late, &createdAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get agency: %w", err)
	}
	a.LateCountsForPass = late == 1
	a.CreatedAt = parseTime(createdAt)
	return &a, nil
}

func (r *AgencyRepository) List(ctx context.Context) ([]*domain.Agency, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, name, late_counts_for_pass, created_at FROM agencies ORDER BY name
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list agencies: %w", err)
	}
	defer rows.Close()

	var out []*domain.Agency
	for rows.Next() {
		var a domain.Agency
		var late int64
		var createdAt string
		if err := rows.Scan(&a.ID, &a.Name, &late, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan agency: %w", err)
		}
		a.LateCountsForPass = late == 1
		a.CreatedAt = parseTime(createdAt)
		out = append(out, &a)
	}
	return out, rows.Err()
}

type MemberRepository struct {
	db DBTX
}

func NewMemberRepository(db DBTX) *MemberRepository {
	return &MemberRepository{db: db}
}

func (r *MemberRepository) Upsert(ctx context.Context, m *domain.TeamMember) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO team_members (id, agency_id, name, role)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET name = excluded.name, role = excluded.role
	`, m.ID, m.AgencyID, m.Name, m.Role)
	if err != nil {
		return fmt.Errorf("failed to upsert member: %w", err)
	}
	return nil
}

func (r *MemberRepository) GetByID(ctx context.Context, id string) (*domain.TeamMember, error) {
	var m domain.TeamMember
	err := r.db.QueryRowContext(ctx, `
		SELECT id, agency_id, name, role FROM team_members WHERE id = ?
	`, id).Scan(&m.ID, &m.AgencyID, &m.Name, &m.Role)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get member: %w", err)
	}
	return &m, nil
}

func (r *MemberRepository) ListByAgency(ctx context.Context, agencyID string) ([]*domain.TeamMember, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, agency_id, name, role FROM team_members WHERE agency_id = ? ORDER BY name
	`, agencyID)
	if err != nil {
		return nil, fmt.Errorf("failed to list members: %w", err)
	}
	defer rows.Close()

	var out []*domain.TeamMember
	for rows.Next() {
		var m domain.TeamMember
		if err := rows.Scan(&m.ID, &m.AgencyID, &m.Name, &m.Role); err != nil {
			return nil, fmt.Errorf("failed to scan member: %w", err)
		}
		out = append(out, &m)
	}
	return out, rows.Err()
}

type LeadSourceRepository struct {
	db DBTX
}

func NewLeadSourceRepository(db DBTX) *LeadSourceRepository {
	return &LeadSourceRepository{db: db}
}

func (r *LeadSourceRepository) Upsert(ctx context.Context, s *domain.LeadSource) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO lead_sources (id, agency_id, label)
		VALUES (?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET label = excluded.label
	`, s.ID, s.AgencyID, s.Label)
	if err != nil {
		return fmt.Errorf("failed to upsert lead source: %w", err)
	}
	return nil
}

func (r *LeadSourceRepository) GetByID(ctx context.Context, id string) (*domain.LeadSource, error) {
	var s domain.LeadSource
	err := r.db.QueryRowContext(ctx, `
		SELECT id, agency_id, label FROM lead_sources WHERE id = ?
	`, id).Scan(&s.ID, &s.AgencyID, &s.Label)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get lead source: %w", err)
	}
	return &s, nil
}

type FormRepository struct {
	db DBTX
}

func NewFormRepository(db DBTX) *FormRepository {
	return &FormRepository{db: db}
}

func (r *FormRepository) Upsert(ctx context.Context, f *domain.Form) error {
	mappings := f.FieldMappings
	if mappings == nil {
		mappings = map[domain.MetricKey]string{}
	}
	encoded, err := marshalJSON(mappings)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO forms (id, agency_id, name, role, rule_version_id, field_mappings, section_key)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			name = excluded.name,
			role = excluded.role,
			rule_version_id = excluded.rule_version_id,
			field_mappings = excluded.field_mappings,
			section_key = excluded.section_key
	`, f.ID, f.AgencyID, f.Name, f.Role, nullString(f.RuleVersionID), encoded, f.SectionKey)
	if err != nil {
		return fmt.Errorf("failed to upsert form: %w", err)
	}
	return nil
}

func (r *FormRepository) GetByID(ctx context.Context, id string) (*domain.Form, error) {
	var f domain.Form
	var ruleVersion sql.NullString
	var mappings string
	err := r.db.QueryRowContext(ctx, `
		SELECT id, agency_id, name, role, rule_version_id, field_mappings, section_key
		FROM forms WHERE id = ?
	`, id).Scan(&f.ID, &f.AgencyID, &f.Name, &f.Role, &ruleVersion, &mappings, &f.SectionKey)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get form: %w", err)
	}
	f.RuleVersionID = stringPtr(ruleVersion)
	if err := unmarshalJSON(mappings, &f.FieldMappings); err != nil {
		return nil, err
	}
	return &f, nil
}
