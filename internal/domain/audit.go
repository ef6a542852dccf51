package domain

import "time"

// FieldSource records which resolution path produced a metric value.
type FieldSource string

const (
	SourceMapping   FieldSource = "mapping"
	SourceCanonical FieldSource = "canonical"
	SourceLegacy    FieldSource = "legacy"
	SourceAbsent    FieldSource = "absent"
	SourceInvalid   FieldSource = "invalid"
	// SourceSection marks a count derived from the repeated section rows.
	SourceSection FieldSource = "section"
)

// FieldResolution describes how one metric key was resolved.
type FieldResolution struct {
	Key        MetricKey   `json:"key"`
	Source     FieldSource `json:"source"`
	PayloadKey string      `json:"payload_key,omitempty"`
	RawValue   string      `json:"raw_value,omitempty"`
}

// AuditRecord is written once per extraction attempt. It is observational
// only; business logic never reads it.
type AuditRecord struct {
	ID                 string
	SubmissionID       string
	FormID             string
	MappingConfigured  bool
	FieldsExtracted    int
	Resolutions        []FieldResolution
	SectionRows        int
	SectionRowsSkipped int
	SectionRowErrors   int
	CreatedAt          time.Time
}
