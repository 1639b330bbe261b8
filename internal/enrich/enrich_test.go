package enrich

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"
)

func TestFlattenEncodesListsAsJSONArrays(t *testing.T) {
	t.Parallel()

	r := Result{
		JobFamily:          "Public Works/Utilities/Infrastructure",
		JobLevel:           "Manager",
		LicensesRequired:   []string{"CDL Class B", "Water Treatment Grade 4"},
		SpecializedSystems: []string{"SCADA"},
	}
	flat := r.Flatten()

	if got := flat["licenses_required"]; got != `["CDL Class B","Water Treatment Grade 4"]` {
		t.Fatalf("licenses_required = %q", got)
	}
	if got := flat["specialized_systems"]; got != `["SCADA"]` {
		t.Fatalf("specialized_systems = %q", got)
	}
	// Empty lists render as empty text, not "[]".
	if got := flat["certifications_required"]; got != "" {
		t.Fatalf("certifications_required = %q, want empty", got)
	}
	if got := flat["job_family"]; got != "Public Works/Utilities/Infrastructure" {
		t.Fatalf("job_family = %q", got)
	}
}

func TestFlattenCoversEveryColumn(t *testing.T) {
	t.Parallel()

	flat := Result{}.Flatten()
	for _, col := range Columns() {
		if _, ok := flat[col]; !ok {
			t.Fatalf("Flatten missing column %q", col)
		}
	}
	if len(flat) != len(Columns()) {
		t.Fatalf("Flatten has %d keys, Columns has %d", len(flat), len(Columns()))
	}
}

func TestBlankFlattenedIsAllEmpty(t *testing.T) {
	t.Parallel()

	blank := BlankFlattened()
	if len(blank) != len(Columns()) {
		t.Fatalf("blank has %d keys, want %d", len(blank), len(Columns()))
	}
	for col, v := range blank {
		if v != "" {
			t.Fatalf("blank[%q] = %q, want empty", col, v)
		}
	}
}

func TestStampUsesRFC3339UTC(t *testing.T) {
	t.Parallel()

	var r Result
	r.Stamp(time.Date(2026, 3, 14, 15, 9, 26, 0, time.FixedZone("CST", -6*3600)))
	if r.EnrichedAt != "2026-03-14T21:09:26Z" {
		t.Fatalf("EnrichedAt = %q", r.EnrichedAt)
	}
}

func TestRetryablePredicate(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"plain", errors.New("connection reset"), true},
		{"schema", &SchemaError{Reason: "invalid json"}, false},
		{"wrapped schema", fmt.Errorf("call: %w", &SchemaError{Reason: "bad"}), false},
		{"wrapped transport", fmt.Errorf("call: %w", errors.New("503")), true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := Retryable(tc.err); got != tc.want {
				t.Fatalf("Retryable(%v) = %t, want %t", tc.err, got, tc.want)
			}
		})
	}
}

func TestPostingFromRecord(t *testing.T) {
	t.Parallel()

	p := PostingFromRecord(map[string]string{
		"job_title":  "Water Systems Superintendent",
		"employer":   "City of Austin",
		"city":       "Austin",
		"state":      "TX",
		"salary_min": "85000",
	})
	if p.JobTitle != "Water Systems Superintendent" || p.Employer != "City of Austin" {
		t.Fatalf("unexpected posting: %#v", p)
	}
	if p.Department != "" || p.SalaryMax != "" {
		t.Fatalf("missing columns must map to empty strings: %#v", p)
	}
}

func TestBuildPromptSalaryFormats(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		p    Posting
		want string
	}{
		{"both", Posting{SalaryMin: "50000", SalaryMax: "70000", SalaryType: "yearly"}, "$50000 - $70000 yearly"},
		{"min only", Posting{SalaryMin: "50000", SalaryType: "yearly"}, "$50000+ yearly"},
		{"max only", Posting{SalaryMax: "70000", SalaryType: "yearly"}, "Up to $70000 yearly"},
		{"none", Posting{}, "Not specified"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			prompt := BuildPrompt(tc.p)
			if !strings.Contains(prompt, "SALARY RANGE: "+tc.want) {
				t.Fatalf("prompt missing salary line %q", tc.want)
			}
		})
	}
}

func TestBuildPromptTruncatesLongDescriptions(t *testing.T) {
	t.Parallel()

	p := Posting{Description: strings.Repeat("x", maxDescriptionChars+500)}
	prompt := BuildPrompt(p)
	if !strings.Contains(prompt, "[Description truncated due to length]") {
		t.Fatal("expected truncation marker")
	}
	if strings.Contains(prompt, strings.Repeat("x", maxDescriptionChars+1)) {
		t.Fatal("description not truncated")
	}
}

func TestBuildPromptCarriesConstrainedVocabulary(t *testing.T) {
	t.Parallel()

	prompt := BuildPrompt(Posting{JobTitle: "Clerk"})
	for _, f := range JobFamilies {
		if !strings.Contains(prompt, f) {
			t.Fatalf("prompt missing job family %q", f)
		}
	}
	for _, l := range JobLevels {
		if !strings.Contains(prompt, l) {
			t.Fatalf("prompt missing job level %q", l)
		}
	}
}

func TestResultJSONTagsMatchColumns(t *testing.T) {
	t.Parallel()

	// The model responds with column-named keys; Result must unmarshal them.
	payload := `{
		"job_family": "Finance/Budget/Accounting",
		"job_level": "Director",
		"licenses_required": ["CPA"],
		"flsa_likely": "Exempt"
	}`
	var r Result
	if err := json.Unmarshal([]byte(payload), &r); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if r.JobFamily != "Finance/Budget/Accounting" || r.JobLevel != "Director" {
		t.Fatalf("unexpected result: %#v", r)
	}
	if len(r.LicensesRequired) != 1 || r.LicensesRequired[0] != "CPA" {
		t.Fatalf("licenses = %#v", r.LicensesRequired)
	}
	if r.FLSALikely != "Exempt" {
		t.Fatalf("flsa_likely = %q", r.FLSALikely)
	}
}
