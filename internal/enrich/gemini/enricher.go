// Package gemini implements the enrichment contract against the Gemini API
// with schema-constrained JSON output.
package gemini

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/munistat/jobenrich/internal/enrich"
	"google.golang.org/genai"
)

type Config struct {
	APIKey string
	Model  string

	// BaseURL overrides the Gemini API base URL. Useful for proxies/testing.
	BaseURL string
}

type Enricher struct {
	client *genai.Client
	model  string
}

func New(ctx context.Context, cfg Config) (*Enricher, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("GEMINI_API_KEY is required")
	}
	if strings.TrimSpace(cfg.Model) == "" {
		return nil, fmt.Errorf("model is required")
	}

	cc := &genai.ClientConfig{
		APIKey:  strings.TrimSpace(cfg.APIKey),
		Backend: genai.BackendGeminiAPI,
	}
	if strings.TrimSpace(cfg.BaseURL) != "" {
		cc.HTTPOptions.BaseURL = strings.TrimSpace(cfg.BaseURL)
	}

	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, err
	}
	return &Enricher{
		client: client,
		model:  strings.TrimSpace(cfg.Model),
	}, nil
}

var outputSchema = &genai.Schema{
	Type: genai.TypeObject,
	Properties: map[string]*genai.Schema{
		"job_family":              {Type: genai.TypeString, Enum: enrich.JobFamilies},
		"job_subfamily":           {Type: genai.TypeString},
		"job_level":               {Type: genai.TypeString, Enum: enrich.JobLevels},
		"compensation_summary":    {Type: genai.TypeString},
		"fte_managed":             {Type: genai.TypeString},
		"budget_authority":        {Type: genai.TypeString},
		"scope_of_impact":         {Type: genai.TypeString},
		"licenses_required":       {Type: genai.TypeArray, Items: &genai.Schema{Type: genai.TypeString}},
		"certifications_required": {Type: genai.TypeArray, Items: &genai.Schema{Type: genai.TypeString}},
		"education_minimum":       {Type: genai.TypeString},
		"education_field":         {Type: genai.TypeString},
		"years_experience":        {Type: genai.TypeString},
		"specialized_systems":     {Type: genai.TypeArray, Items: &genai.Schema{Type: genai.TypeString}},
		"specialized_knowledge":   {Type: genai.TypeString},
		"supervision_given":       {Type: genai.TypeString},
		"supervision_received":    {Type: genai.TypeString},
		"physical_context":        {Type: genai.TypeString},
		"flsa_likely":             {Type: genai.TypeString},
		"work_schedule":           {Type: genai.TypeString},
		"consequence_of_error":    {Type: genai.TypeString},
		"decision_authority":      {Type: genai.TypeString},
	},
	Required: []string{
		"job_family",
		"job_level",
		"compensation_summary",
	},
}

// EnrichPosting classifies one posting. Transport and API failures return as
// ordinary errors for the retry layer; a response that arrives but cannot be
// interpreted returns an *enrich.SchemaError and is never retried.
func (e *Enricher) EnrichPosting(ctx context.Context, p enrich.Posting) (enrich.Result, error) {
	resp, err := e.client.Models.GenerateContent(
		ctx,
		e.model,
		genai.Text(enrich.BuildPrompt(p)),
		&genai.GenerateContentConfig{
			CandidateCount:   1,
			Temperature:      genai.Ptr(float32(0.1)),
			MaxOutputTokens:  2500,
			ResponseMIMEType: "application/json",
			ResponseSchema:   outputSchema,
		},
	)
	if err != nil {
		return enrich.Result{}, err
	}

	result, err := parseResponse(resp.Text())
	if err != nil {
		return enrich.Result{}, err
	}
	result.Stamp(time.Now())
	return result, nil
}

// parseResponse strips markdown code fences, then unmarshals the payload.
func parseResponse(text string) (enrich.Result, error) {
	body := stripCodeFences(text)
	if strings.TrimSpace(body) == "" {
		return enrich.Result{}, &enrich.SchemaError{Reason: "empty response"}
	}

	var result enrich.Result
	if err := json.Unmarshal([]byte(body), &result); err != nil {
		return enrich.Result{}, &enrich.SchemaError{
			Reason:  "invalid json",
			Snippet: snippet(body),
			Err:     err,
		}
	}
	if strings.TrimSpace(result.JobFamily) == "" {
		return enrich.Result{}, &enrich.SchemaError{
			Reason:  "missing job_family",
			Snippet: snippet(body),
		}
	}
	return result, nil
}

func stripCodeFences(text string) string {
	body := strings.TrimSpace(text)
	if !strings.HasPrefix(body, "```") {
		return body
	}
	lines := strings.Split(body, "\n")
	if strings.HasPrefix(lines[0], "```") {
		lines = lines[1:]
	}
	if len(lines) > 0 && strings.TrimSpace(lines[len(lines)-1]) == "```" {
		lines = lines[:len(lines)-1]
	}
	return strings.Join(lines, "\n")
}

func snippet(body string) string {
	const max = 200
	if len(body) > max {
		return body[:max]
	}
	return body
}
