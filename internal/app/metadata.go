package app

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/munistat/jobenrich/internal/budget"
	"github.com/munistat/jobenrich/internal/census"
	"github.com/munistat/jobenrich/internal/dataset"
	"github.com/munistat/jobenrich/internal/meta"
	"github.com/munistat/jobenrich/internal/stats"
)

// MetadataColumns is the set of columns the metadata pass appends, in order.
var MetadataColumns = []string{
	"employer_type_detected",
	"canonical_employer_name",
	"census_population",
	"census_median_household_income",
	"census_place_fips",
	"census_match_confidence",
	"census_matched_name",
	"population_band",
	"total_expenditure",
	"per_capita_expenditure",
	"budget_source",
	"employer_lat",
	"employer_lon",
	"data_age_months",
	"data_freshness",
	"salary_min_eci_adjusted",
	"salary_max_eci_adjusted",
	"eci_adjustment_pct",
	"effective_hourly_rate",
	"salary_40hr_equivalent",
	"data_confidence_score",
	"data_quality_issues",
}

// outputColumnRenames maps internal column names to their final CSV headers.
var outputColumnRenames = map[string]string{
	"total_expenditure":      "Total Expenditure",
	"per_capita_expenditure": "Per Capita Expenditure",
}

// MetadataOptions configures one metadata pass over an enriched CSV.
type MetadataOptions struct {
	InputPath  string
	OutputPath string
	Limit      int

	Census *census.Service
	Budget *budget.Registry

	// Now anchors the data-age computation.
	Now time.Time

	Log *slog.Logger
}

// MetadataSummary reports what the metadata pass did.
type MetadataSummary struct {
	Processed       int
	MeanConfidence  float64
	CensusMatches   int
	CensusMatchRate float64
}

// RunMetadata applies employer classification, census and budget lookups, and
// statistical processing to every row of an LLM-enriched CSV. Rows are
// processed sequentially; the census cache makes repeated lookups cheap.
func RunMetadata(ctx context.Context, opts MetadataOptions) (*MetadataSummary, error) {
	log := opts.Log
	if log == nil {
		log = slog.Default()
	}
	now := opts.Now
	if now.IsZero() {
		now = time.Now()
	}

	table, err := dataset.Load(opts.InputPath, opts.Limit)
	if err != nil {
		return nil, err
	}

	rawCols := table.OutputColumns(MetadataColumns)
	outCols := make([]string, len(rawCols))
	for i, c := range rawCols {
		if renamed, ok := outputColumnRenames[c]; ok {
			outCols[i] = renamed
		} else {
			outCols[i] = c
		}
	}

	if opts.Budget != nil && opts.Budget.Missing {
		log.Warn("budget registry missing, expenditure columns will be empty")
	}

	if opts.Census != nil {
		if err := warmCensus(ctx, opts.Census, table); err != nil {
			return nil, err
		}
	}

	w, err := dataset.OpenWriter(opts.OutputPath, outCols, false)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = w.Close()
	}()

	summary := &MetadataSummary{}
	var confidenceSum int
	for i, row := range table.Rows {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out, err := metadataRow(ctx, row, opts, now)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}

		rec := make(dataset.Record, len(outCols))
		for k, v := range row {
			if renamed, ok := outputColumnRenames[k]; ok {
				k = renamed
			}
			rec[k] = v
		}
		for k, v := range out {
			if renamed, ok := outputColumnRenames[k]; ok {
				k = renamed
			}
			rec[k] = v
		}
		if err := w.Append(rec); err != nil {
			return nil, fmt.Errorf("append row %d: %w", i, err)
		}

		summary.Processed++
		if score, err := strconv.Atoi(out["data_confidence_score"]); err == nil {
			confidenceSum += score
		}
		if out["census_population"] != "" {
			summary.CensusMatches++
		}
	}

	if summary.Processed > 0 {
		summary.MeanConfidence = float64(confidenceSum) / float64(summary.Processed)
		summary.CensusMatchRate = float64(summary.CensusMatches) / float64(summary.Processed)
	}
	log.Info("metadata pass finished",
		"processed", summary.Processed,
		"mean_confidence", fmt.Sprintf("%.1f", summary.MeanConfidence),
		"census_matches", summary.CensusMatches,
		"census_match_rate", fmt.Sprintf("%.1f%%", summary.CensusMatchRate*100))
	return summary, nil
}

// warmCensus prefetches every state that will need a place lookup, so the
// sequential row loop only ever hits the local cache.
func warmCensus(ctx context.Context, svc *census.Service, table *dataset.Table) error {
	var states []string
	seen := map[string]bool{}
	for _, row := range table.Rows {
		cls := meta.Classify(row["employer"])
		if cls.EmployerType != meta.TypeCity {
			continue
		}
		state := strings.ToUpper(strings.TrimSpace(row["state"]))
		if state == "" || seen[state] {
			continue
		}
		seen[state] = true
		states = append(states, state)
	}
	return svc.WarmStates(ctx, states)
}

// metadataRow computes the metadata cells for one row. Every metadata column
// gets a value; empty string stands for null.
func metadataRow(ctx context.Context, row dataset.Record, opts MetadataOptions, now time.Time) (map[string]string, error) {
	out := make(map[string]string, len(MetadataColumns))
	for _, c := range MetadataColumns {
		out[c] = ""
	}
	out["census_match_confidence"] = "0"
	out["population_band"] = "Unknown"

	cls := meta.Classify(row["employer"])
	out["employer_type_detected"] = cls.EmployerType
	out["canonical_employer_name"] = cls.CanonicalName

	state := strings.ToUpper(strings.TrimSpace(row["state"]))
	var censusMatch census.Match

	if cls.EmployerType == meta.TypeCity || cls.EmployerType == meta.TypeCounty {
		lookupCity := cls.CanonicalName
		if lookupCity == "" {
			lookupCity = row["city"]
		}
		if cls.EmployerType == meta.TypeCounty {
			lower := strings.ToLower(lookupCity)
			if !strings.HasSuffix(lower, " county") && !strings.HasSuffix(lower, " parish") {
				if state == "LA" {
					lookupCity += " Parish"
				} else {
					lookupCity += " County"
				}
			}
		}

		// Place queries only make sense for municipal employers; counties
		// rely on the registry's own population figures.
		if cls.EmployerType == meta.TypeCity && opts.Census != nil {
			m, err := opts.Census.Lookup(ctx, lookupCity, state)
			if err != nil {
				return nil, err
			}
			censusMatch = m
			if m.Population != nil {
				out["census_population"] = strconv.Itoa(*m.Population)
				out["population_band"] = meta.PopulationBand(m.Population)
			}
			if m.MedianIncome != nil {
				out["census_median_household_income"] = strconv.Itoa(*m.MedianIncome)
			}
			out["census_place_fips"] = m.PlaceFIPS
			out["census_match_confidence"] = formatFloat(m.Confidence, 1)
			out["census_matched_name"] = m.MatchedName
		}

		if opts.Budget != nil {
			b := opts.Budget.Lookup(lookupCity, state, censusMatch.Population)
			if b.TotalExpenditure != nil {
				out["total_expenditure"] = formatFloat(*b.TotalExpenditure, 2)
				out["budget_source"] = b.Source
			}
			if b.PerCapita != nil {
				out["per_capita_expenditure"] = formatFloat(*b.PerCapita, 2)
			}
			if b.Latitude != nil {
				out["employer_lat"] = formatFloat(*b.Latitude, -1)
			}
			if b.Longitude != nil {
				out["employer_lon"] = formatFloat(*b.Longitude, -1)
			}
		}
	}

	st := stats.Process(stats.Inputs{
		PostingDate:         row["posting_date"],
		OpeningDate:         row["opening_date"],
		ClosingDate:         row["closing_date"],
		EnrichedAt:          row["enriched_at"],
		SalaryMin:           row["salary_min"],
		SalaryMax:           row["salary_max"],
		HoursPerWeek:        row["hours_per_week"],
		CompensationSummary: row["compensation_summary"],
		CensusConfidence:    censusMatch.Confidence,
		EmployerTypeUnknown: cls.EmployerType == meta.TypeUnknown,
	}, now)

	if st.DataAgeMonths != nil {
		out["data_age_months"] = formatFloat(*st.DataAgeMonths, 1)
	}
	out["data_freshness"] = st.DataFreshness
	if st.SalaryMinECIAdjusted != nil {
		out["salary_min_eci_adjusted"] = formatFloat(*st.SalaryMinECIAdjusted, 2)
	}
	if st.SalaryMaxECIAdjusted != nil {
		out["salary_max_eci_adjusted"] = formatFloat(*st.SalaryMaxECIAdjusted, 2)
	}
	out["eci_adjustment_pct"] = formatFloat(st.ECIAdjustmentPct, 1)
	if st.EffectiveHourlyRate != nil {
		out["effective_hourly_rate"] = formatFloat(*st.EffectiveHourlyRate, 2)
	}
	if st.Salary40hrEquivalent != nil {
		out["salary_40hr_equivalent"] = formatFloat(*st.Salary40hrEquivalent, 0)
	}
	out["data_confidence_score"] = strconv.Itoa(st.DataConfidenceScore)

	issues := st.DataQualityIssues
	if issues == nil {
		issues = []string{}
	}
	encoded, err := json.Marshal(issues)
	if err != nil {
		return nil, err
	}
	out["data_quality_issues"] = string(encoded)

	return out, nil
}

// formatFloat renders a float cell; prec < 0 keeps the shortest exact form.
func formatFloat(v float64, prec int) string {
	s := strconv.FormatFloat(v, 'f', prec, 64)
	if prec > 0 && strings.Contains(s, ".") {
		s = strings.TrimRight(s, "0")
		s = strings.TrimSuffix(s, ".")
	}
	return s
}
