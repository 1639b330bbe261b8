// Package meta provides rule-based employer classification and peer-group
// population bands for the metadata pipeline.
package meta

import (
	"regexp"
	"strings"
)

// Employer type labels produced by Classify.
const (
	TypeSchoolDistrict   = "School District (K-12)"
	TypeCommunityCollege = "Community College/University"
	TypeSpecialDistrict  = "Special District (Water/Sewer/Fire)"
	TypeTransit          = "Transit Authority"
	TypeHospital         = "Hospital/Healthcare District"
	TypeHousing          = "Housing Authority"
	TypeCounty           = "County Government"
	TypeState            = "State Government"
	TypeCity             = "City/Municipal Government"
	TypeUnknown          = "Unknown"
)

type employerPattern struct {
	re      *regexp.Regexp
	empType string
}

// Order matters: more specific patterns first, city forms last.
var employerPatterns = []employerPattern{
	// School districts
	{regexp.MustCompile(`(?i)(.+?)\s+(?:independent\s+school\s+district|isd)$`), TypeSchoolDistrict},
	{regexp.MustCompile(`(?i)(.+?)\s+(?:unified\s+school\s+district|usd)$`), TypeSchoolDistrict},
	{regexp.MustCompile(`(?i)(.+?)\s+school\s+district$`), TypeSchoolDistrict},
	{regexp.MustCompile(`(?i)(.+?)\s+public\s+schools$`), TypeSchoolDistrict},

	// Community college / university
	{regexp.MustCompile(`(?i)(.+?)\s+community\s+college$`), TypeCommunityCollege},
	{regexp.MustCompile(`(?i)(.+?)\s+college\s+district$`), TypeCommunityCollege},
	{regexp.MustCompile(`(?i)university\s+of\s+(.+)$`), TypeCommunityCollege},
	{regexp.MustCompile(`(?i)(.+?)\s+state\s+university$`), TypeCommunityCollege},

	// Special districts
	{regexp.MustCompile(`(?i)(.+?)\s+(?:water\s+district|mwd|water\s+authority)$`), TypeSpecialDistrict},
	{regexp.MustCompile(`(?i)(.+?)\s+(?:utility\s+district|mud|pud)$`), TypeSpecialDistrict},
	{regexp.MustCompile(`(?i)(.+?)\s+(?:fire\s+district|fire\s+department)$`), TypeSpecialDistrict},
	{regexp.MustCompile(`(?i)(.+?)\s+(?:sanitation\s+district|sewer\s+district)$`), TypeSpecialDistrict},

	// Transit
	{regexp.MustCompile(`(?i)(.+?)\s+(?:transit\s+authority|transit\s+district|metro|mta)$`), TypeTransit},
	{regexp.MustCompile(`(?i)(.+?)\s+transportation\s+authority$`), TypeTransit},

	// Hospital / healthcare
	{regexp.MustCompile(`(?i)(.+?)\s+(?:hospital\s+district|health\s+district|medical\s+center)$`), TypeHospital},

	// Housing
	{regexp.MustCompile(`(?i)(.+?)\s+housing\s+authority$`), TypeHousing},

	// County before city forms
	{regexp.MustCompile(`(?i)^county\s+of\s+(.+)$`), TypeCounty},
	{regexp.MustCompile(`(?i)^(.+?)\s+county(?:\s+government)?$`), TypeCounty},

	// State
	{regexp.MustCompile(`(?i)^state\s+of\s+(.+)$`), TypeState},

	// City/municipal, the most common, checked last
	{regexp.MustCompile(`(?i)^city\s+of\s+(.+)$`), TypeCity},
	{regexp.MustCompile(`(?i)^town\s+of\s+(.+)$`), TypeCity},
	{regexp.MustCompile(`(?i)^village\s+of\s+(.+)$`), TypeCity},
	{regexp.MustCompile(`(?i)^borough\s+of\s+(.+)$`), TypeCity},
	{regexp.MustCompile(`(?i)^municipality\s+of\s+(.+)$`), TypeCity},
}

var (
	parentheticalStateRe = regexp.MustCompile(`\s*\([A-Za-z\s.]+\)$`)
	fullStateSuffixRe    = regexp.MustCompile(`(?i),?\s+(Alabama|Alaska|Arizona|Arkansas|California|Colorado|Connecticut|Delaware|Florida|Georgia|Hawaii|Idaho|Illinois|Indiana|Iowa|Kansas|Kentucky|Louisiana|Maine|Maryland|Massachusetts|Michigan|Minnesota|Mississippi|Missouri|Montana|Nebraska|Nevada|New Hampshire|New Jersey|New Mexico|New York|North Carolina|North Dakota|Ohio|Oklahoma|Oregon|Pennsylvania|Rhode Island|South Carolina|South Dakota|Tennessee|Texas|Utah|Vermont|Virginia|Washington|West Virginia|Wisconsin|Wyoming)$`)
	abbrevStateSuffixRe  = regexp.MustCompile(`(?i),\s+(TX|CA|NY|FL|IL|PA|OH|GA|NC|MI|NJ|VA|WA|AZ|MA|TN|IN|MO|MD|WI|CO|MN|SC|AL|LA|KY|OR|OK|CT|UT|IA|NV|AR|MS|KS|NM|NE|ID|WV|HI|NH|ME|MT|RI|DE|SD|ND|AK|DC|VT|WY)$`)
)

// Classification is the employer metadata derived from the raw employer name.
type Classification struct {
	EmployerType  string
	CanonicalName string
}

// Classify parses an employer name into its government type and a canonical
// jurisdiction name usable for census and budget matching ("City of Austin"
// becomes "Austin"). Unmatched names come back as TypeUnknown with the name
// kept as given.
func Classify(employer string) Classification {
	clean := strings.TrimSpace(employer)
	if clean == "" {
		return Classification{EmployerType: TypeUnknown, CanonicalName: ""}
	}

	for _, p := range employerPatterns {
		m := p.re.FindStringSubmatch(clean)
		if m == nil {
			continue
		}
		canonical := strings.TrimSpace(m[1])
		canonical = parentheticalStateRe.ReplaceAllString(canonical, "")
		canonical = fullStateSuffixRe.ReplaceAllString(canonical, "")
		canonical = abbrevStateSuffixRe.ReplaceAllString(canonical, "")
		return Classification{
			EmployerType:  p.empType,
			CanonicalName: strings.TrimSpace(canonical),
		}
	}
	return Classification{EmployerType: TypeUnknown, CanonicalName: clean}
}

// PopulationBand buckets a census population for peer-group filtering.
// A nil population means no census match and bands as "Unknown".
func PopulationBand(population *int) string {
	if population == nil {
		return "Unknown"
	}
	switch p := *population; {
	case p < 5000:
		return "Very Small (<5K)"
	case p < 15000:
		return "Small (5K-15K)"
	case p < 50000:
		return "Medium (15K-50K)"
	case p < 150000:
		return "Large (50K-150K)"
	case p < 500000:
		return "Very Large (150K-500K)"
	default:
		return "Major City (500K+)"
	}
}
