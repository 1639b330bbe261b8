// Package enrich defines the per-posting enrichment contract: the input fields
// the classifier consumes, the structured result it produces, and the error
// taxonomy the retry layer branches on.
package enrich

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

// Posting carries the row fields consumed by the classification prompt.
// Missing input columns map to empty strings.
type Posting struct {
	JobTitle    string
	Employer    string
	Description string
	Department  string
	JobType     string
	City        string
	State       string
	SalaryMin   string
	SalaryMax   string
	SalaryType  string
}

// PostingFromRecord extracts the prompt fields from a raw input row.
func PostingFromRecord(rec map[string]string) Posting {
	return Posting{
		JobTitle:    rec["job_title"],
		Employer:    rec["employer"],
		Description: rec["description"],
		Department:  rec["department"],
		JobType:     rec["job_type"],
		City:        rec["city"],
		State:       rec["state"],
		SalaryMin:   rec["salary_min"],
		SalaryMax:   rec["salary_max"],
		SalaryType:  rec["salary_type"],
	}
}

// Result is the structured classification output for one posting.
//
// Scalar fields stay strings to keep CSV output simple and stable; the three
// list fields are flattened to JSON arrays at write time.
type Result struct {
	JobFamily           string `json:"job_family"`
	JobSubfamily        string `json:"job_subfamily"`
	JobLevel            string `json:"job_level"`
	CompensationSummary string `json:"compensation_summary"`

	FTEManaged      string `json:"fte_managed"`
	BudgetAuthority string `json:"budget_authority"`
	ScopeOfImpact   string `json:"scope_of_impact"`

	LicensesRequired       []string `json:"licenses_required"`
	CertificationsRequired []string `json:"certifications_required"`
	EducationMinimum       string   `json:"education_minimum"`
	EducationField         string   `json:"education_field"`
	YearsExperience        string   `json:"years_experience"`
	SpecializedSystems     []string `json:"specialized_systems"`
	SpecializedKnowledge   string   `json:"specialized_knowledge"`

	SupervisionGiven    string `json:"supervision_given"`
	SupervisionReceived string `json:"supervision_received"`
	PhysicalContext     string `json:"physical_context"`
	FLSALikely          string `json:"flsa_likely"`
	WorkSchedule        string `json:"work_schedule"`

	ConsequenceOfError string `json:"consequence_of_error"`
	DecisionAuthority  string `json:"decision_authority"`

	// EnrichedAt is stamped by the engine after a successful call, never by the
	// model. RFC3339 UTC.
	EnrichedAt string `json:"-"`
}

// Enricher classifies a single job posting. Implementations must be safe for
// concurrent use; the worker pool does not serialize calls.
type Enricher interface {
	EnrichPosting(ctx context.Context, p Posting) (Result, error)
}

// Columns is the fixed output column order for enrichment fields.
func Columns() []string {
	return []string{
		"job_family",
		"job_subfamily",
		"job_level",
		"compensation_summary",
		"fte_managed",
		"budget_authority",
		"scope_of_impact",
		"licenses_required",
		"certifications_required",
		"education_minimum",
		"education_field",
		"years_experience",
		"specialized_systems",
		"specialized_knowledge",
		"supervision_given",
		"supervision_received",
		"physical_context",
		"flsa_likely",
		"work_schedule",
		"consequence_of_error",
		"decision_authority",
		"enriched_at",
	}
}

// Flatten renders the result as column -> cell text. List fields become JSON
// arrays, or "" when empty.
func (r Result) Flatten() map[string]string {
	return map[string]string{
		"job_family":               r.JobFamily,
		"job_subfamily":            r.JobSubfamily,
		"job_level":                r.JobLevel,
		"compensation_summary":     r.CompensationSummary,
		"fte_managed":              r.FTEManaged,
		"budget_authority":         r.BudgetAuthority,
		"scope_of_impact":          r.ScopeOfImpact,
		"licenses_required":        jsonArrayOrEmpty(r.LicensesRequired),
		"certifications_required":  jsonArrayOrEmpty(r.CertificationsRequired),
		"education_minimum":        r.EducationMinimum,
		"education_field":          r.EducationField,
		"years_experience":         r.YearsExperience,
		"specialized_systems":      jsonArrayOrEmpty(r.SpecializedSystems),
		"specialized_knowledge":    r.SpecializedKnowledge,
		"supervision_given":        r.SupervisionGiven,
		"supervision_received":     r.SupervisionReceived,
		"physical_context":         r.PhysicalContext,
		"flsa_likely":              r.FLSALikely,
		"work_schedule":            r.WorkSchedule,
		"consequence_of_error":     r.ConsequenceOfError,
		"decision_authority":       r.DecisionAuthority,
		"enriched_at":              r.EnrichedAt,
	}
}

// BlankFlattened is the soft-failure payload: every enrichment column present,
// every value empty.
func BlankFlattened() map[string]string {
	out := make(map[string]string, len(Columns()))
	for _, c := range Columns() {
		out[c] = ""
	}
	return out
}

// Stamp sets EnrichedAt to the current UTC time.
func (r *Result) Stamp(now time.Time) {
	r.EnrichedAt = now.UTC().Format(time.RFC3339)
}

// SchemaError reports a response that arrived without a transport error but
// could not be interpreted as the expected output schema. The cause is assumed
// systematic (a broken prompt/response contract), so it is never retried.
type SchemaError struct {
	Reason  string
	Snippet string
	Err     error
}

func (e *SchemaError) Error() string {
	if e.Snippet != "" {
		return "uninterpretable enrichment response: " + e.Reason + ": " + e.Snippet
	}
	return "uninterpretable enrichment response: " + e.Reason
}

func (e *SchemaError) Unwrap() error { return e.Err }

// Retryable is the retry predicate for enrichment calls: every failure is
// retried except a structural SchemaError.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	var se *SchemaError
	return !errors.As(err, &se)
}

func jsonArrayOrEmpty(vals []string) string {
	if len(vals) == 0 {
		return ""
	}
	b, err := json.Marshal(vals)
	if err != nil {
		// Should not happen for []string, but keep output stable.
		return ""
	}
	return string(b)
}
