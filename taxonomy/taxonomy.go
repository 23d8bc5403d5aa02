// Package taxonomy loads the Lean-for-Ag vocabulary: process flows, the
// classic waste categories, trigger-word synonyms, and per-flow default KPIs.
package taxonomy

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	// DefaultFlow is used whenever a flow cannot be classified or an
	// upstream component returns one outside the vocabulary.
	DefaultFlow = "field_ops"

	// DefaultWaste backs the same coercion for waste categories.
	DefaultWaste = "motion"

	// MaxWastes caps how many waste categories a single analysis may carry.
	MaxWastes = 3
)

type fileSchema struct {
	Flows        []string            `yaml:"flows"`
	Wastes       []string            `yaml:"wastes"`
	Synonyms     map[string][]string `yaml:"synonyms"`
	DefaultKPIs  map[string][]string `yaml:"default_kpis"`
	FallbackKPIs []string            `yaml:"fallback_kpis"`
}

// Taxonomy is an immutable view over the loaded vocabulary.
type Taxonomy struct {
	flows        []string
	wastes       []string
	flowSet      map[string]struct{}
	wasteSet     map[string]struct{}
	synonyms     map[string][]string
	defaultKPIs  map[string][]string
	fallbackKPIs []string
}

// Load reads and validates a taxonomy YAML file.
func Load(path string) (*Taxonomy, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read taxonomy file: %w", err)
	}
	tax, err := Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return tax, nil
}

// Parse builds a Taxonomy from raw YAML.
func Parse(raw []byte) (*Taxonomy, error) {
	var schema fileSchema
	if err := yaml.Unmarshal(raw, &schema); err != nil {
		return nil, fmt.Errorf("unmarshal taxonomy: %w", err)
	}

	if len(schema.Flows) == 0 {
		return nil, fmt.Errorf("taxonomy defines no flows")
	}
	if len(schema.Wastes) == 0 {
		return nil, fmt.Errorf("taxonomy defines no wastes")
	}

	tax := &Taxonomy{
		flows:        normalizeList(schema.Flows),
		wastes:       normalizeList(schema.Wastes),
		flowSet:      make(map[string]struct{}, len(schema.Flows)),
		wasteSet:     make(map[string]struct{}, len(schema.Wastes)),
		synonyms:     make(map[string][]string, len(schema.Synonyms)),
		defaultKPIs:  make(map[string][]string, len(schema.DefaultKPIs)),
		fallbackKPIs: normalizeList(schema.FallbackKPIs),
	}

	for _, flow := range tax.flows {
		tax.flowSet[flow] = struct{}{}
	}
	for _, waste := range tax.wastes {
		tax.wasteSet[waste] = struct{}{}
	}

	if !tax.ValidFlow(DefaultFlow) {
		return nil, fmt.Errorf("taxonomy is missing the default flow %q", DefaultFlow)
	}
	if !tax.ValidWaste(DefaultWaste) {
		return nil, fmt.Errorf("taxonomy is missing the default waste %q", DefaultWaste)
	}

	for key, terms := range schema.Synonyms {
		key = normalizeTerm(key)
		if !tax.ValidFlow(key) && !tax.ValidWaste(key) {
			return nil, fmt.Errorf("synonym key %q is neither a flow nor a waste", key)
		}
		tax.synonyms[key] = normalizeList(terms)
	}

	for flow, kpis := range schema.DefaultKPIs {
		flow = normalizeTerm(flow)
		if !tax.ValidFlow(flow) {
			return nil, fmt.Errorf("default_kpis key %q is not a flow", flow)
		}
		tax.defaultKPIs[flow] = normalizeList(kpis)
	}

	if len(tax.fallbackKPIs) == 0 {
		return nil, fmt.Errorf("taxonomy defines no fallback_kpis")
	}

	return tax, nil
}

// Flows returns the flow vocabulary in file order.
func (t *Taxonomy) Flows() []string {
	return append([]string(nil), t.flows...)
}

// Wastes returns the waste vocabulary in file order.
func (t *Taxonomy) Wastes() []string {
	return append([]string(nil), t.wastes...)
}

func (t *Taxonomy) ValidFlow(flow string) bool {
	_, ok := t.flowSet[flow]
	return ok
}

func (t *Taxonomy) ValidWaste(waste string) bool {
	_, ok := t.wasteSet[waste]
	return ok
}

// Synonyms returns the trigger words registered for a flow or waste.
func (t *Taxonomy) Synonyms(key string) []string {
	return append([]string(nil), t.synonyms[normalizeTerm(key)]...)
}

// KPIsFor returns the KPI set suggested for a flow, falling back to the
// generic cycle-time KPIs when the flow has no dedicated entry.
func (t *Taxonomy) KPIsFor(flow string) []string {
	if kpis, ok := t.defaultKPIs[normalizeTerm(flow)]; ok && len(kpis) > 0 {
		return append([]string(nil), kpis...)
	}
	return append([]string(nil), t.fallbackKPIs...)
}

// CoerceFlow maps any string onto the flow vocabulary.
func (t *Taxonomy) CoerceFlow(flow string) string {
	flow = normalizeTerm(flow)
	if t.ValidFlow(flow) {
		return flow
	}
	return DefaultFlow
}

// CoerceWastes filters a candidate list down to known wastes, deduplicated
// and capped at MaxWastes. An empty result collapses to the default waste.
func (t *Taxonomy) CoerceWastes(candidates []string) []string {
	seen := make(map[string]struct{}, len(candidates))
	result := make([]string, 0, MaxWastes)
	for _, candidate := range candidates {
		waste := normalizeTerm(candidate)
		if !t.ValidWaste(waste) {
			continue
		}
		if _, dup := seen[waste]; dup {
			continue
		}
		seen[waste] = struct{}{}
		result = append(result, waste)
		if len(result) == MaxWastes {
			break
		}
	}
	if len(result) == 0 {
		return []string{DefaultWaste}
	}
	return result
}

func normalizeTerm(term string) string {
	return strings.ToLower(strings.TrimSpace(term))
}

func normalizeList(values []string) []string {
	result := make([]string, 0, len(values))
	for _, value := range values {
		term := normalizeTerm(value)
		if term == "" {
			continue
		}
		result = append(result, term)
	}
	return result
}
