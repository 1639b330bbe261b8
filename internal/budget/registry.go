// Package budget matches municipalities against the local Census Survey of
// Governments expenditure registry and imports new registry rows from the
// survey's fixed-width release files.
package budget

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"regexp"
	"strconv"
	"strings"

	"github.com/munistat/jobenrich/internal/census"
)

// registryHeader is the registry CSV schema, in order.
var registryHeader = []string{
	"GOV_ID", "Name", "State", "Census_State",
	"Total_Expenditure", "Population", "Per_Capita", "Latitude", "Longitude",
}

// fuzzyThreshold is the minimum similarity (0-100) for a non-exact name match.
const fuzzyThreshold = 85

// Entry is one row of the budget registry.
type Entry struct {
	GovID            string
	Name             string
	State            string
	CensusState      string
	TotalExpenditure float64
	Population       float64
	Latitude         *float64
	Longitude        *float64

	cleanName string
}

// Result is the outcome of a budget lookup. Nil fields render as empty cells.
type Result struct {
	TotalExpenditure *float64
	PerCapita        *float64
	Source           string
	Latitude         *float64
	Longitude        *float64
}

// Registry is the in-memory budget table, indexed by state.
type Registry struct {
	byState map[string][]Entry

	// Missing is set when the registry file does not exist; every lookup
	// then returns an empty result.
	Missing bool
}

// LoadRegistry reads the registry CSV. A missing file is not an error: the
// pipeline still runs, with budget columns left empty.
func LoadRegistry(path string) (*Registry, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return &Registry{byState: map[string][]Entry{}, Missing: true}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open budget registry: %w", err)
	}
	defer func() {
		_ = f.Close()
	}()

	cr := csv.NewReader(f)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("budget registry %s: read header: %w", path, err)
	}
	col := make(map[string]int, len(header))
	for i, name := range header {
		col[strings.TrimSpace(name)] = i
	}
	for _, required := range []string{"GOV_ID", "Name", "State", "Total_Expenditure"} {
		if _, ok := col[required]; !ok {
			return nil, fmt.Errorf("budget registry %s: missing column %q", path, required)
		}
	}

	reg := &Registry{byState: map[string][]Entry{}}
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("budget registry %s: %w", path, err)
		}
		get := func(name string) string {
			i, ok := col[name]
			if !ok || i >= len(rec) {
				return ""
			}
			return strings.TrimSpace(rec[i])
		}

		e := Entry{
			GovID:       get("GOV_ID"),
			Name:        get("Name"),
			State:       strings.ToUpper(get("State")),
			CensusState: get("Census_State"),
		}
		e.TotalExpenditure, _ = strconv.ParseFloat(get("Total_Expenditure"), 64)
		e.Population, _ = strconv.ParseFloat(get("Population"), 64)
		if v, err := strconv.ParseFloat(get("Latitude"), 64); err == nil {
			e.Latitude = &v
		}
		if v, err := strconv.ParseFloat(get("Longitude"), 64); err == nil {
			e.Longitude = &v
		}
		e.cleanName = CleanName(e.Name)
		reg.byState[e.State] = append(reg.byState[e.State], e)
	}
	return reg, nil
}

// Lookup finds the expenditure record for a municipality in a state: exact
// cleaned-name match first, best fuzzy similarity above the threshold
// otherwise. Per-capita prefers the census population over the registry's.
func (r *Registry) Lookup(city, state string, censusPopulation *int) Result {
	if r.Missing || strings.TrimSpace(city) == "" {
		return Result{}
	}
	entries := r.byState[strings.ToUpper(strings.TrimSpace(state))]
	if len(entries) == 0 {
		return Result{}
	}

	cityClean := CleanName(city)
	var match *Entry
	for i := range entries {
		if entries[i].cleanName == cityClean {
			match = &entries[i]
			break
		}
	}
	if match == nil {
		bestScore := float64(fuzzyThreshold)
		for i := range entries {
			score := census.Similarity(cityClean, entries[i].cleanName)
			if score > bestScore {
				bestScore = score
				match = &entries[i]
			}
		}
	}
	if match == nil {
		return Result{}
	}

	total := match.TotalExpenditure
	out := Result{
		TotalExpenditure: &total,
		Source:           "Census Survey of Governments (Verified)",
		Latitude:         match.Latitude,
		Longitude:        match.Longitude,
	}
	switch {
	case censusPopulation != nil && *censusPopulation > 0:
		pc := total / float64(*censusPopulation)
		out.PerCapita = &pc
	case match.Population > 0:
		pc := total / match.Population
		out.PerCapita = &pc
	}
	return out
}

var nonAlnumSpaceRe = regexp.MustCompile(`[^A-Z0-9\s]`)

// CleanName canonicalizes a municipality name for registry matching: upper
// case, "SAINT" collapsed to "ST", form-of-government suffixes dropped, and
// punctuation stripped. "COUNTY" is kept so City of X and X County stay
// distinct.
func CleanName(name string) string {
	name = strings.ToUpper(strings.TrimSpace(name))
	name = strings.ReplaceAll(name, "SAINT ", "ST ")
	for _, suffix := range []string{" CITY", " TOWN", " VILLAGE", " BOROUGH", " TOWNSHIP", " MUNICIPALITY"} {
		name = strings.ReplaceAll(name, suffix, "")
	}
	return strings.TrimSpace(nonAlnumSpaceRe.ReplaceAllString(name, ""))
}
