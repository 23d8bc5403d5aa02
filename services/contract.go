package services

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"github.com/farmlean/agkaizen/taxonomy"
)

// Recommendation is one prescribed improvement with its expected impact and
// implementation effort, each one of low, medium or high.
type Recommendation struct {
	Action string `json:"action"`
	Impact string `json:"impact"`
	Effort string `json:"effort"`
}

// Analysis is the structured diagnosis contract. Every consultation ends
// with one, whether it came from the model or from the rules fallback.
type Analysis struct {
	Summary         string           `json:"summary"`
	Flow            string           `json:"flow"`
	Wastes          []string         `json:"wastes"`
	RootCauses      []string         `json:"root_causes"`
	Recommendations []Recommendation `json:"recommendations"`
	QuickTest       string           `json:"quick_test"`
	KPIs            []string         `json:"kpis"`
	NextCheckInDays int              `json:"next_check_in_days"`
}

// ClosingSummary is the compact five-key object a consultation closes with.
type ClosingSummary struct {
	IssueType       string   `json:"issue_type"`
	Wastes          []string `json:"wastes"`
	QuickTest       string   `json:"quick_test"`
	KPIs            []string `json:"kpis"`
	NextCheckInDays int      `json:"next_check_in_days"`
}

// Closing derives the five-key summary; issue_type carries the flow.
func (a *Analysis) Closing() ClosingSummary {
	return ClosingSummary{
		IssueType:       a.Flow,
		Wastes:          append([]string(nil), a.Wastes...),
		QuickTest:       a.QuickTest,
		KPIs:            append([]string(nil), a.KPIs...),
		NextCheckInDays: a.NextCheckInDays,
	}
}

const analysisSchemaJSON = `{
  "type": "object",
  "required": ["summary", "flow", "wastes", "root_causes", "recommendations", "quick_test", "kpis", "next_check_in_days"],
  "properties": {
    "summary": {"type": "string", "minLength": 1},
    "flow": {"type": "string", "minLength": 1},
    "wastes": {"type": "array", "minItems": 1, "items": {"type": "string"}},
    "root_causes": {"type": "array", "items": {"type": "string"}},
    "recommendations": {
      "type": "array",
      "minItems": 1,
      "items": {
        "type": "object",
        "required": ["action", "impact", "effort"],
        "properties": {
          "action": {"type": "string", "minLength": 1},
          "impact": {"type": "string", "enum": ["low", "medium", "high"]},
          "effort": {"type": "string", "enum": ["low", "medium", "high"]}
        }
      }
    },
    "quick_test": {"type": "string", "minLength": 1},
    "kpis": {"type": "array", "minItems": 1, "items": {"type": "string"}},
    "next_check_in_days": {"type": "integer", "minimum": 1, "maximum": 90}
  }
}`

var analysisSchema = gojsonschema.NewStringLoader(analysisSchemaJSON)

// ValidateAnalysisJSON checks a raw JSON document against the analysis
// contract schema.
func ValidateAnalysisJSON(raw []byte) error {
	result, err := gojsonschema.Validate(analysisSchema, gojsonschema.NewBytesLoader(raw))
	if err != nil {
		return fmt.Errorf("validate analysis: %w", err)
	}
	if result.Valid() {
		return nil
	}

	issues := make([]string, 0, len(result.Errors()))
	for _, issue := range result.Errors() {
		issues = append(issues, issue.String())
	}
	return fmt.Errorf("analysis violates contract: %s", strings.Join(issues, "; "))
}

// DecodeAnalysis parses model output into an Analysis. Flow and wastes are
// coerced onto the taxonomy before schema validation, matching the rule
// that an out-of-vocabulary classification degrades rather than fails.
func DecodeAnalysis(raw []byte, tax *taxonomy.Taxonomy) (*Analysis, error) {
	var analysis Analysis
	if err := json.Unmarshal(raw, &analysis); err != nil {
		return nil, fmt.Errorf("decode analysis: %w", err)
	}

	analysis.Flow = tax.CoerceFlow(analysis.Flow)
	analysis.Wastes = tax.CoerceWastes(analysis.Wastes)

	coerced, err := json.Marshal(&analysis)
	if err != nil {
		return nil, fmt.Errorf("re-encode analysis: %w", err)
	}
	if err := ValidateAnalysisJSON(coerced); err != nil {
		return nil, err
	}

	return &analysis, nil
}
