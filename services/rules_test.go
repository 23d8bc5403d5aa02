package services

import (
	"testing"

	"github.com/farmlean/agkaizen/taxonomy"
)

const testTaxonomyYAML = `
flows:
  - field_ops
  - post_harvest
  - livestock
  - inputs_logistics
  - back_office
wastes:
  - overproduction
  - waiting
  - transport
  - overprocessing
  - inventory
  - motion
  - defects
synonyms:
  field_ops: [irrigation, weeding, plot]
  post_harvest: [harvest, spoilage, cooling, storage, brown]
  livestock: [milking, barn, herd]
  inputs_logistics: [fertilizer, crates, truck, warehouse]
  back_office: [invoice, paperwork]
  waiting: [waiting, idle, delay, late]
  transport: [hauling, trips]
  motion: [walking, carrying, searching]
  defects: [bruised, rotten, rejected, spoiled]
default_kpis:
  post_harvest: [time_to_cool_min, storage_loss_pct, claim_rate_pct]
  inputs_logistics: [avg_steps_per_worker, crates_per_hour]
fallback_kpis: [cycle_time_min, throughput_units_per_hour]
`

func testTaxonomy(t *testing.T) *taxonomy.Taxonomy {
	t.Helper()
	tax, err := taxonomy.Parse([]byte(testTaxonomyYAML))
	if err != nil {
		t.Fatalf("parse test taxonomy: %v", err)
	}
	return tax
}

func TestDetectFlow(t *testing.T) {
	rules := NewRulesEngine(testTaxonomy(t))

	cases := []struct {
		name string
		text string
		want string
	}{
		{"synonym hit", "The cooling room is always full after harvest.", "post_harvest"},
		{"logistics hit", "We run out of crates at the warehouse.", "inputs_logistics"},
		{"heuristic brown", "Leaves turn brown two days after picking.", "post_harvest"},
		{"default", "Something feels slow around the farm generally.", "field_ops"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := rules.DetectFlow(tc.text); got != tc.want {
				t.Fatalf("DetectFlow(%q) = %q, want %q", tc.text, got, tc.want)
			}
		})
	}
}

func TestDetectWastes(t *testing.T) {
	rules := NewRulesEngine(testTaxonomy(t))

	got := rules.DetectWastes("Workers keep waiting while crates sit idle and half the tomatoes arrive bruised.")
	if len(got) == 0 || got[0] != "waiting" {
		t.Fatalf("expected waiting first, got %v", got)
	}
	if len(got) > 3 {
		t.Fatalf("expected at most 3 wastes, got %v", got)
	}

	if got := rules.DetectWastes("The truck shows up whenever it wants."); len(got) != 1 || got[0] != "waiting" {
		t.Fatalf("expected waiting heuristic for truck text, got %v", got)
	}

	if got := rules.DetectWastes("Nothing specific, just a vague feeling."); len(got) != 1 || got[0] != "motion" {
		t.Fatalf("expected motion default, got %v", got)
	}
}

func TestNeedsClarification(t *testing.T) {
	rules := NewRulesEngine(testTaxonomy(t))

	if !rules.NeedsClarification("things are bad") {
		t.Fatalf("short vague text should need clarification")
	}
	if rules.NeedsClarification("harvest issue") {
		t.Fatalf("a taxonomy trigger word should skip clarification")
	}
	if rules.NeedsClarification("every morning the team spends an hour moving boxes around") {
		t.Fatalf("long description should skip clarification")
	}
}

func TestFallbackAnalysis(t *testing.T) {
	rules := NewRulesEngine(testTaxonomy(t))

	analysis := rules.FallbackAnalysis("Spinach storage smells off and the truck is always late.")

	if analysis.Flow != "post_harvest" {
		t.Fatalf("expected post_harvest, got %q", analysis.Flow)
	}
	if analysis.NextCheckInDays != 7 {
		t.Fatalf("expected 7-day check-in, got %d", analysis.NextCheckInDays)
	}
	if len(analysis.KPIs) != 3 || analysis.KPIs[0] != "time_to_cool_min" {
		t.Fatalf("expected post_harvest KPIs, got %v", analysis.KPIs)
	}
	if len(analysis.Recommendations) == 0 {
		t.Fatalf("expected at least one recommendation")
	}

	raw, err := analysisJSON(analysis)
	if err != nil {
		t.Fatalf("marshal fallback analysis: %v", err)
	}
	if err := ValidateAnalysisJSON(raw); err != nil {
		t.Fatalf("fallback analysis must satisfy the contract: %v", err)
	}
}

func TestFallbackKPIsForUnmappedFlow(t *testing.T) {
	rules := NewRulesEngine(testTaxonomy(t))

	analysis := rules.FallbackAnalysis("Invoices pile up every Friday and paperwork gets lost.")
	if analysis.Flow != "back_office" {
		t.Fatalf("expected back_office, got %q", analysis.Flow)
	}
	if len(analysis.KPIs) != 2 || analysis.KPIs[0] != "cycle_time_min" {
		t.Fatalf("expected generic fallback KPIs, got %v", analysis.KPIs)
	}
}
