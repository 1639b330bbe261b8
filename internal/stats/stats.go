// Package stats implements the statistical layer of the metadata pipeline:
// data aging against the Employment Cost Index, salary normalization to a
// 40-hour week, and a composite data-quality confidence score.
package stats

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// ECIAnnualRate is the BLS Employment Cost Index average annual increase for
// state/local government compensation (https://www.bls.gov/eci/).
const ECIAnnualRate = 0.04

// daysPerMonth averages month lengths for age-in-months arithmetic.
const daysPerMonth = 30.44

// Freshness bands for salary data age.
const (
	FreshnessFresh   = "Fresh"
	FreshnessAging   = "Aging"
	FreshnessStale   = "Stale"
	FreshnessUnknown = "Unknown"
)

// Inputs are the row fields the statistical layer reads.
type Inputs struct {
	PostingDate string
	OpeningDate string
	ClosingDate string
	EnrichedAt  string

	SalaryMin    string
	SalaryMax    string
	HoursPerWeek string

	CompensationSummary string
	CensusConfidence    float64
	EmployerTypeUnknown bool
}

// Results are the computed statistical fields. Nil pointers mean the value
// could not be derived and renders as an empty cell.
type Results struct {
	DataAgeMonths *float64
	DataFreshness string

	SalaryMinECIAdjusted *float64
	SalaryMaxECIAdjusted *float64
	ECIAdjustmentPct     float64

	EffectiveHourlyRate  *float64
	Salary40hrEquivalent *float64

	DataConfidenceScore int
	DataQualityIssues   []string
}

// Process applies aging, normalization, and confidence scoring to one row.
// now anchors the age computation so tests stay deterministic.
func Process(in Inputs, now time.Time) Results {
	var r Results

	dateStr := firstNonEmpty(in.PostingDate, in.OpeningDate, in.ClosingDate, in.EnrichedAt)
	r.DataAgeMonths, r.DataFreshness = dataAge(dateStr, now)

	if min, ok := parseSalary(in.SalaryMin); ok {
		if adjusted, _, applied := eciAdjust(min, r.DataAgeMonths); applied {
			r.SalaryMinECIAdjusted = &adjusted
		}
	}
	if max, ok := parseSalary(in.SalaryMax); ok {
		if adjusted, pct, applied := eciAdjust(max, r.DataAgeMonths); applied {
			r.SalaryMaxECIAdjusted = &adjusted
			r.ECIAdjustmentPct = pct
		}
	}

	if salary, ok := parseSalary(firstNonEmpty(in.SalaryMax, in.SalaryMin)); ok {
		hourly, normalized := normalize(salary, in.HoursPerWeek)
		r.EffectiveHourlyRate = &hourly
		r.Salary40hrEquivalent = &normalized
	}

	r.DataConfidenceScore, r.DataQualityIssues = confidence(in, r.DataFreshness)
	return r
}

// dataAge parses the best available date and buckets its age.
func dataAge(dateStr string, now time.Time) (*float64, string) {
	if strings.TrimSpace(dateStr) == "" {
		return nil, FreshnessUnknown
	}

	parsed, err := parseDate(dateStr)
	if err != nil {
		return nil, FreshnessUnknown
	}

	ageDays := now.UTC().Sub(parsed).Hours() / 24
	months := round1(ageDays / daysPerMonth)

	switch {
	case months < 6:
		return &months, FreshnessFresh
	case months < 12:
		return &months, FreshnessAging
	default:
		return &months, FreshnessStale
	}
}

// parseDate accepts RFC3339/ISO with time, MM/DD/YYYY, and YYYY-MM-DD.
func parseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if strings.Contains(s, "T") {
		return time.Parse(time.RFC3339, strings.Replace(s, "Z", "+00:00", 1))
	}
	if strings.Contains(s, "/") {
		first := strings.Fields(s)
		if len(first) > 0 {
			s = first[0]
		}
		return time.Parse("01/02/2006", s)
	}
	return time.Parse("2006-01-02", s)
}

// eciAdjust compounds the salary to current dollars. No age means no
// adjustment can be applied.
func eciAdjust(salary float64, ageMonths *float64) (adjusted, pct float64, applied bool) {
	if ageMonths == nil {
		return 0, 0, false
	}
	factor := math.Pow(1+ECIAnnualRate, *ageMonths/12)
	return round2(salary * factor), round1((factor - 1) * 100), true
}

var hoursRe = regexp.MustCompile(`(\d+\.?\d*)`)

// ParseHours extracts weekly hours from free text, defaulting to standard
// full time (40).
func ParseHours(s string) float64 {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" || strings.Contains(s, "standard") {
		return 40
	}
	if m := hoursRe.FindString(s); m != "" {
		if v, err := strconv.ParseFloat(m, 64); err == nil {
			return v
		}
	}
	return 40
}

// normalize computes the effective hourly rate and the 40-hour-week annual
// equivalent.
func normalize(salary float64, hoursPerWeek string) (hourly, normalized float64) {
	hours := ParseHours(hoursPerWeek)
	raw := salary / (hours * 52)
	return round2(raw), math.Round(raw * 40 * 52)
}

// confidence starts from 100 and subtracts a penalty per quality issue.
func confidence(in Inputs, freshness string) (int, []string) {
	score := 100
	var issues []string

	if strings.TrimSpace(in.CompensationSummary) == "" {
		score -= 25
		issues = append(issues, "No compensation summary")
	}
	if in.CensusConfidence < 75 {
		score -= 15
		issues = append(issues, fmt.Sprintf("Low census match (%.0f%%)", in.CensusConfidence))
	}
	switch freshness {
	case FreshnessStale:
		score -= 15
		issues = append(issues, "Stale data (>12 months)")
	case FreshnessUnknown:
		score -= 10
		issues = append(issues, "Unknown data age")
	}
	if strings.TrimSpace(in.SalaryMin) == "" && strings.TrimSpace(in.SalaryMax) == "" {
		score -= 20
		issues = append(issues, "No salary data")
	}
	if in.EmployerTypeUnknown {
		score -= 10
		issues = append(issues, "Unknown employer type")
	}
	if score < 0 {
		score = 0
	}
	return score, issues
}

func parseSalary(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(strings.ReplaceAll(s, ",", ""), 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func round1(v float64) float64 { return math.Round(v*10) / 10 }
func round2(v float64) float64 { return math.Round(v*100) / 100 }
