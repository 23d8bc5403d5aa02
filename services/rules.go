package services

import (
	"strings"

	"github.com/farmlean/agkaizen/taxonomy"
)

// Words below this count, with no taxonomy trigger hit, are treated as too
// thin to classify and earn clarifying questions instead of a diagnosis.
const clarifyWordThreshold = 6

var clarifyingQuestions = []string{
	"Which part of the operation does the problem show up in (field work, storage, transport, paperwork)?",
	"How often does it happen, and how do you notice or measure it today?",
	"What changed recently (weather, staffing, equipment, buyers)?",
}

// RulesEngine is the deterministic fallback diagnoser. It only ever uses
// the taxonomy trigger words plus a couple of coarse heuristics, so its
// output is safe when the model path is unavailable.
type RulesEngine struct {
	tax *taxonomy.Taxonomy
}

func NewRulesEngine(tax *taxonomy.Taxonomy) *RulesEngine {
	return &RulesEngine{tax: tax}
}

// DetectFlow picks the first flow whose trigger words appear in the text,
// with a post-harvest heuristic before the final field-ops default.
func (r *RulesEngine) DetectFlow(text string) string {
	lowered := strings.ToLower(text)

	for _, flow := range r.tax.Flows() {
		if containsAny(lowered, r.tax.Synonyms(flow)) {
			return flow
		}
	}

	if containsAny(lowered, []string{"harvest", "brown", "cool"}) {
		return "post_harvest"
	}
	return taxonomy.DefaultFlow
}

// DetectWastes collects waste categories whose trigger words appear in the
// text, capped at the taxonomy limit. Without a hit it guesses waiting for
// logistics vocabulary and motion otherwise.
func (r *RulesEngine) DetectWastes(text string) []string {
	lowered := strings.ToLower(text)

	hits := make([]string, 0, taxonomy.MaxWastes)
	for _, waste := range r.tax.Wastes() {
		if containsAny(lowered, r.tax.Synonyms(waste)) {
			hits = append(hits, waste)
			if len(hits) == taxonomy.MaxWastes {
				break
			}
		}
	}

	if len(hits) == 0 {
		if containsAny(lowered, []string{"truck", "delay", "late"}) {
			hits = []string{"waiting"}
		} else {
			hits = []string{taxonomy.DefaultWaste}
		}
	}

	return r.tax.CoerceWastes(hits)
}

// NeedsClarification reports whether the description is too thin to
// classify: no trigger word anywhere and fewer words than the threshold.
func (r *RulesEngine) NeedsClarification(text string) bool {
	lowered := strings.ToLower(text)

	if len(strings.Fields(lowered)) >= clarifyWordThreshold {
		return false
	}

	for _, flow := range r.tax.Flows() {
		if containsAny(lowered, r.tax.Synonyms(flow)) {
			return false
		}
	}
	for _, waste := range r.tax.Wastes() {
		if containsAny(lowered, r.tax.Synonyms(waste)) {
			return false
		}
	}
	return true
}

// ClarifyingQuestions returns the canned follow-up questions, most useful
// first.
func (r *RulesEngine) ClarifyingQuestions() []string {
	return append([]string(nil), clarifyingQuestions...)
}

// FallbackAnalysis produces a complete rules-only diagnosis: detected flow
// and wastes, the flow's default KPIs and a one-week PDCA pilot as the safe
// next step.
func (r *RulesEngine) FallbackAnalysis(text string) *Analysis {
	flow := r.tax.CoerceFlow(r.DetectFlow(text))

	return &Analysis{
		Summary:    "Preliminary diagnosis (rules-only).",
		Flow:       flow,
		Wastes:     r.DetectWastes(text),
		RootCauses: []string{"unverified_root_cause"},
		Recommendations: []Recommendation{
			{Action: "Run a 1-week PDCA pilot on one plot", Impact: "medium", Effort: "low"},
		},
		QuickTest:       "Pick one small change, measure daily, review after 7 days.",
		KPIs:            r.tax.KPIsFor(flow),
		NextCheckInDays: 7,
	}
}

func containsAny(haystack string, needles []string) bool {
	for _, needle := range needles {
		if needle != "" && strings.Contains(haystack, needle) {
			return true
		}
	}
	return false
}
