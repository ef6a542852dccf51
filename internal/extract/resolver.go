package extract

import (
	"log/slog"
	"sort"
	"strings"

	"github.com/emiliopalmerini/salespulse/internal/domain"
	"github.com/emiliopalmerini/salespulse/internal/util"
)

// Row is one element of the repeated quoted-households section.
type Row struct {
	Position        int
	FirstName       string
	LastName        string
	Zip             string
	ProductType     string
	Items           int64
	PremiumCents    int64
	LeadSourceID    string
	LeadSourceLabel string
}

// HasName reports whether the row names a household.
func (r Row) HasName() bool {
	return r.FirstName != "" || r.LastName != ""
}

// IsBlank reports whether the row has no name and no non-zero business value.
func (r Row) IsBlank() bool {
	return !r.HasName() && r.Items == 0 && r.PremiumCents == 0 && r.ProductType == ""
}

// Result is the outcome of resolving one payload.
type Result struct {
	Values            domain.MetricValues
	Resolutions       []domain.FieldResolution
	MappingConfigured bool
	Rows              []Row
	BlankRows         int
	RowErrors         int
	// Section is the payload key the repeated section was read from.
	Section string
}

// Audit summarises the result as an audit record for a submission.
func (r *Result) Audit(id, submissionID, formID string) *domain.AuditRecord {
	return &domain.AuditRecord{
		ID:                 id,
		SubmissionID:       submissionID,
		FormID:             formID,
		MappingConfigured:  r.MappingConfigured,
		FieldsExtracted:    len(r.Values),
		Resolutions:        r.Resolutions,
		SectionRows:        len(r.Rows),
		SectionRowsSkipped: r.BlankRows,
		SectionRowErrors:   r.RowErrors,
	}
}

// NonBlankRows returns the rows that carry data.
func (r *Result) NonBlankRows() []Row {
	out := make([]Row, 0, len(r.Rows))
	for _, row := range r.Rows {
		if !row.IsBlank() {
			out = append(out, row)
		}
	}
	return out
}

// Resolver extracts canonical metric values from payloads.
type Resolver struct {
	schema *Schema
	logger *slog.Logger
}

// NewResolver creates a resolver over schema. A nil schema uses DefaultSchema.
func NewResolver(schema *Schema, logger *slog.Logger) *Resolver {
	if schema == nil {
		schema = DefaultSchema()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{schema: schema, logger: logger}
}

// Resolve extracts every known metric key from payload using form's field
// mapping. Per key the order is: explicit form mapping, canonical name,
// then legacy aliases. The first present value wins; a value that cannot
// be read as a number resolves to absent and is logged. form may be nil.
func (r *Resolver) Resolve(payload map[string]any, form *domain.Form) *Result {
	res := &Result{Values: make(domain.MetricValues)}

	var mappings map[domain.MetricKey]string
	var sectionKey string
	if form != nil {
		mappings = form.FieldMappings
		sectionKey = form.SectionKey
	}
	res.MappingConfigured = len(mappings) > 0

	for _, key := range r.keysFor(payload, mappings) {
		res.Resolutions = append(res.Resolutions, r.resolveKey(payload, key, mappings, res.Values))
	}

	r.resolveSection(payload, sectionKey, res)

	if !res.Values.Has(domain.MetricQuotedHouseholds) && res.Section != "" {
		if n := len(res.NonBlankRows()); n > 0 {
			res.Values[domain.MetricQuotedHouseholds] = float64(n)
			for i := range res.Resolutions {
				if res.Resolutions[i].Key == domain.MetricQuotedHouseholds {
					res.Resolutions[i].Source = domain.SourceSection
					res.Resolutions[i].PayloadKey = res.Section
				}
			}
		}
	}

	return res
}

// keysFor returns canonical keys, mapped custom keys and custom keys found
// in the payload's custom section, in a stable order.
func (r *Resolver) keysFor(payload map[string]any, mappings map[domain.MetricKey]string) []domain.MetricKey {
	keys := domain.CanonicalMetrics()
	seen := make(map[domain.MetricKey]bool, len(keys))
	for _, k := range keys {
		seen[k] = true
	}

	var extra []domain.MetricKey
	for k := range mappings {
		if !seen[k] {
			seen[k] = true
			extra = append(extra, k)
		}
	}
	if custom, ok := payload[CustomSection].(map[string]any); ok {
		for k := range custom {
			mk := domain.MetricKey(k)
			if !seen[mk] {
				seen[mk] = true
				extra = append(extra, mk)
			}
		}
	}
	sort.Slice(extra, func(i, j int) bool { return extra[i] < extra[j] })
	return append(keys, extra...)
}

func (r *Resolver) resolveKey(payload map[string]any, key domain.MetricKey, mappings map[domain.MetricKey]string, out domain.MetricValues) domain.FieldResolution {
	type candidate struct {
		path   string
		source domain.FieldSource
	}

	var candidates []candidate
	if mapped, ok := mappings[key]; ok && mapped != "" {
		candidates = append(candidates, candidate{mapped, domain.SourceMapping})
	}
	if key.IsCanonical() {
		candidates = append(candidates, candidate{string(key), domain.SourceCanonical})
		for _, alias := range r.schema.Aliases(key) {
			candidates = append(candidates, candidate{alias, domain.SourceLegacy})
		}
	} else {
		candidates = append(candidates, candidate{CustomSection + "." + string(key), domain.SourceCanonical})
	}

	for _, c := range candidates {
		raw, found := lookup(payload, c.path)
		if !found {
			continue
		}
		val, ok, err := util.ParseNumber(raw)
		if err != nil {
			r.logger.Warn("metric value coercion failed",
				slog.String("field", string(key)),
				slog.String("payload_key", c.path),
				slog.String("raw_value", util.ToString(raw)),
			)
			return domain.FieldResolution{Key: key, Source: domain.SourceInvalid, PayloadKey: c.path, RawValue: util.ToString(raw)}
		}
		if !ok {
			// Present but empty: keep looking, an older name may carry the value.
			continue
		}
		out[key] = val
		return domain.FieldResolution{Key: key, Source: c.source, PayloadKey: c.path}
	}
	return domain.FieldResolution{Key: key, Source: domain.SourceAbsent}
}

func (r *Resolver) resolveSection(payload map[string]any, formKey string, res *Result) {
	var elems []any
	for _, name := range r.schema.sectionNames(formKey) {
		raw, found := lookup(payload, name)
		if !found {
			continue
		}
		list, ok := raw.([]any)
		if !ok {
			r.logger.Warn("repeated section is not a list",
				slog.String("section", name),
				slog.String("raw_value", util.ToString(raw)),
			)
			res.RowErrors++
			return
		}
		elems = list
		res.Section = name
		break
	}

	for i, elem := range elems {
		row, err := r.extractRow(i, elem)
		if err != nil {
			r.logger.Warn("skipping repeated section element",
				slog.Int("position", i),
				slog.String("error", err.Error()),
				slog.String("raw_value", util.ToString(elem)),
			)
			res.RowErrors++
			continue
		}
		if row.IsBlank() {
			res.BlankRows++
		}
		res.Rows = append(res.Rows, row)
	}
}

func (r *Resolver) extractRow(position int, elem any) (row Row, err error) {
	obj, ok := elem.(map[string]any)
	if !ok {
		return Row{}, &domain.CoercionError{Field: "element", Raw: elem}
	}

	row = Row{
		Position:        position,
		FirstName:       r.rowString(obj, rowFirstName),
		LastName:        r.rowString(obj, rowLastName),
		Zip:             r.rowString(obj, rowZip),
		ProductType:     r.rowString(obj, rowProductType),
		LeadSourceID:    r.rowString(obj, rowLeadSourceID),
		LeadSourceLabel: r.rowString(obj, rowLeadSourceLabel),
	}
	if !row.HasName() {
		row.FirstName, row.LastName = splitName(r.rowString(obj, rowFullName))
	}

	if row.Items, err = r.rowInt(obj, rowItems); err != nil {
		return Row{}, err
	}
	if row.PremiumCents, err = r.rowInt(obj, rowPremiumCents); err != nil {
		return Row{}, err
	}
	return row, nil
}

func (r *Resolver) rowRaw(obj map[string]any, field rowField) (string, any, bool) {
	for _, name := range r.schema.rows[field] {
		if v, ok := obj[name]; ok && v != nil {
			return name, v, true
		}
	}
	return "", nil, false
}

func (r *Resolver) rowString(obj map[string]any, field rowField) string {
	_, v, ok := r.rowRaw(obj, field)
	if !ok {
		return ""
	}
	return strings.TrimSpace(util.ToString(v))
}

func (r *Resolver) rowInt(obj map[string]any, field rowField) (int64, error) {
	name, v, ok := r.rowRaw(obj, field)
	if !ok {
		return 0, nil
	}
	f, _, err := util.ParseNumber(v)
	if err != nil {
		return 0, &domain.CoercionError{Field: name, Raw: v}
	}
	return util.ToInt64(f), nil
}

// splitName splits "First Last" or "Last, First".
func splitName(full string) (first, last string) {
	full = strings.TrimSpace(full)
	if full == "" {
		return "", ""
	}
	if i := strings.Index(full, ","); i >= 0 {
		return strings.TrimSpace(full[i+1:]), strings.TrimSpace(full[:i])
	}
	if i := strings.LastIndex(full, " "); i >= 0 {
		return strings.TrimSpace(full[:i]), strings.TrimSpace(full[i+1:])
	}
	return "", full
}

// lookup resolves a dotted path into nested payload objects. A top-level
// key containing dots is matched before descending.
func lookup(payload map[string]any, path string) (any, bool) {
	if v, ok := payload[path]; ok {
		return v, true
	}
	head, rest, found := strings.Cut(path, ".")
	if !found {
		return nil, false
	}
	child, ok := payload[head].(map[string]any)
	if !ok {
		return nil, false
	}
	return lookup(child, rest)
}
