package enrich

import (
	"fmt"
	"strings"
)

// JobFamilies is the constrained classification vocabulary for job_family.
// The model must pick exactly one.
var JobFamilies = []string{
	"Administration/Clerk",
	"Building/Code Enforcement",
	"Emergency Communications/Dispatch",
	"Engineering/Technical Services",
	"Executive/Leadership",
	"Finance/Budget/Accounting",
	"Fire/Emergency Services",
	"Human Resources/Personnel",
	"Human Services/Social Services",
	"Information Technology",
	"Legal/Court Services",
	"Library Services",
	"Parks/Recreation/Culture",
	"Planning/Community Development",
	"Police/Law Enforcement",
	"Public Health/Medical",
	"Public Works/Utilities/Infrastructure",
	"Transportation/Fleet/Traffic",
	"Other Municipal Services",
}

// JobLevels is the constrained vocabulary for job_level.
var JobLevels = []string{
	"Executive",
	"Director",
	"Manager",
	"Supervisor",
	"Senior Individual Contributor",
	"Individual Contributor",
	"Trainee/Entry-Level",
	"Seasonal/Temporary",
}

// maxDescriptionChars caps the posting description sent to the model, roughly
// 12.5k tokens, leaving room for the prompt and the response.
const maxDescriptionChars = 50000

// BuildPrompt renders the full prompt for one posting: analyst system
// instructions followed by the posting's details. Sent as a single text part;
// the output schema is enforced separately via structured-output config.
func BuildPrompt(p Posting) string {
	var b strings.Builder
	b.WriteString(systemPrompt())
	b.WriteString("\n\n")
	b.WriteString(userBlock(p))
	return b.String()
}

func systemPrompt() string {
	return fmt.Sprintf(`Role: You are an expert Municipal Compensation Analyst with 20 years of experience in public sector job classification, pay equity studies, and Hay Point evaluation methodology.

Task: Analyze the provided job posting and extract structured compensation factors. Your output will be used for vector-based job matching, so precision and consistency are critical.

CONSTRAINED FIELD REQUIREMENTS

1. job_family - You MUST choose EXACTLY ONE from this list:
%s

   Use "Other Municipal Services" ONLY if no other category fits. If using it, explain in job_subfamily.

2. job_level - You MUST choose EXACTLY ONE from this list:
%s

EXTRACTION RULES

1. IGNORE BOILERPLATE: Skip EEO statements, ADA text, benefits descriptions, application instructions, "other duties as assigned".

2. CONTEXTUALIZE PHYSICALITY: Never list generic physical requirements. Transform them:
   - BAD: "Must lift 50 lbs, stand for long periods"
   - GOOD: "Performs heavy manual labor for water infrastructure repair"

3. QUANTIFY WHEN POSSIBLE:
   - BAD: "Manages a team" -> GOOD: "Manages 12 FTEs"
   - BAD: "Budget responsibility" -> GOOD: "$2.5M operating budget"

4. DOMAIN-SPECIFIC TERMINOLOGY: Use precise municipal vocabulary.
   - "SCADA systems" not "computer systems"
   - "CDL Class A with tanker" not "driver's license"
   - "PE License" not "professional certification"

STRUCTURED COMPENSATION SUMMARY FORMAT

The compensation_summary field MUST follow this exact structure (this is what gets embedded for vector matching):

[DOMAIN]: {job_family} - {job_subfamily}
[LEVEL]: {job_level} ({specific role descriptor})
[SCOPE]: {geographic/organizational impact} serving {population/constituency if known}
[MANAGES]: {FTE count} staff, {budget amount} budget
[REQUIRES]: {key licenses}, {key certifications}, {education}, {years experience}
[CORE FUNCTION]: {2-3 sentence description of primary duties using domain terminology}
[DECIDES]: {types of decisions/authority level}
[RISK]: {consequence of error - what happens if they fail?}

FIELD VALUE GUIDANCE

- fte_managed: headcount as string: "0", "1-5", "6-20", "21-50", "50+", "100+", or the specific number if stated.
- budget_authority: dollar amount with context (e.g. "$500K operational", "$5M capital projects") or "None".
- scope_of_impact: one of "Individual tasks", "Team/Unit", "Division", "Department", "City-wide", "Regional/Multi-jurisdictional".
- education_minimum: highest required: "None specified", "High School/GED", "Some College", "Associate", "Bachelor", "Master", "Doctoral", "Professional (JD/MD)".
- years_experience: range "0", "1-2", "3-5", "6-10", "10+", or specific if stated.
- licenses_required / certifications_required / specialized_systems: arrays of specific items; empty array when none.
- flsa_likely: "Exempt" or "Non-Exempt" based on the duties test.
- work_schedule: "Standard weekday", "Shift work", "On-call required", "Seasonal", or "24/7 coverage rotation".
- consequence_of_error: "Minor rework", "Financial loss", "Service disruption", "Legal liability", "Public safety risk", or "Life safety critical".
- decision_authority: "Follows procedures", "Operational decisions", "Policy recommendations", "Policy-making", or "Strategic direction".

Respond with valid JSON only. No additional text or explanation.`,
		bulleted(JobFamilies), bulleted(JobLevels))
}

func userBlock(p Posting) string {
	description := p.Description
	if len(description) > maxDescriptionChars {
		description = description[:maxDescriptionChars] + "\n\n[Description truncated due to length]"
	}

	return fmt.Sprintf(`Analyze this municipal job posting and extract compensation factors:

JOB DETAILS
TITLE: %s
EMPLOYER: %s
DEPARTMENT: %s
JOB TYPE: %s
LOCATION: %s, %s
SALARY RANGE: %s

JOB DESCRIPTION
%s

Extract the compensation factors following the constrained enums and structured format. Return valid JSON only.`,
		orNotSpecified(p.JobTitle),
		orNotSpecified(p.Employer),
		orNotSpecified(p.Department),
		orNotSpecified(p.JobType),
		orNotSpecified(p.City),
		orNotSpecified(p.State),
		salaryInfo(p),
		description)
}

func salaryInfo(p Posting) string {
	switch {
	case p.SalaryMin != "" && p.SalaryMax != "":
		return fmt.Sprintf("$%s - $%s %s", p.SalaryMin, p.SalaryMax, p.SalaryType)
	case p.SalaryMin != "":
		return fmt.Sprintf("$%s+ %s", p.SalaryMin, p.SalaryType)
	case p.SalaryMax != "":
		return fmt.Sprintf("Up to $%s %s", p.SalaryMax, p.SalaryType)
	default:
		return "Not specified"
	}
}

func orNotSpecified(s string) string {
	if strings.TrimSpace(s) == "" {
		return "Not specified"
	}
	return s
}

func bulleted(vals []string) string {
	out := make([]string, len(vals))
	for i, v := range vals {
		out[i] = "  - " + v
	}
	return strings.Join(out, "\n")
}
