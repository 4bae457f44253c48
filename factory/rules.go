/*
Package factory provides JSON to Go rule-table conversion.

PURPOSE:
  Converts a JSON eligibility configuration into a fiscal.RuleTable. This
  enables rule changes without code changes - an operator can adjust which
  client categories or periodicities a model admits, and which installment
  labels a fractioned model uses, in a config file.

JSON SCHEMA:
  {
    "models": {
      "303": {
        "allowed_categories": ["AUTONOMO", "EMPRESA"],
        "allowed_periodicities": ["MONTHLY", "QUARTERLY"]
      },
      "202": {
        "allowed_categories": ["EMPRESA"],
        "allowed_periodicities": ["SPECIAL_INSTALLMENT"],
        "installment_labels": ["Abril", "Octubre", "Diciembre"]
      }
    }
  }

VALIDATION:
  Unknown category or periodicity values fail at load time. An empty or
  missing "models" object falls back to the built-in AEAT table.

SEE ALSO:
  - fiscal/rules.go: RuleTable, Matcher and the built-in defaults
*/
package factory

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/gestora/fiscal-engine/fiscal"
)

// =============================================================================
// JSON SCHEMA TYPES
// =============================================================================

// RulesJSON is the on-disk representation of the eligibility rules.
type RulesJSON struct {
	Models map[string]ModelRuleJSON `json:"models"`
}

// ModelRuleJSON is the JSON form of one model's rule.
type ModelRuleJSON struct {
	AllowedCategories    []string `json:"allowed_categories"`
	AllowedPeriodicities []string `json:"allowed_periodicities"`
	InstallmentLabels    []string `json:"installment_labels,omitempty"`
}

var validCategories = map[string]fiscal.ClientCategory{
	string(fiscal.CategorySelfEmployed): fiscal.CategorySelfEmployed,
	string(fiscal.CategoryCompany):      fiscal.CategoryCompany,
	string(fiscal.CategoryIndividual):   fiscal.CategoryIndividual,
}

var validPeriodicities = map[string]fiscal.Periodicity{
	string(fiscal.Monthly):            fiscal.Monthly,
	string(fiscal.Quarterly):          fiscal.Quarterly,
	string(fiscal.Annual):             fiscal.Annual,
	string(fiscal.SpecialInstallment): fiscal.SpecialInstallment,
}

// =============================================================================
// PARSING
// =============================================================================

// ParseRules converts a JSON document into a RuleTable. An empty document
// (or one with no models) yields the built-in defaults.
func ParseRules(data []byte) (fiscal.RuleTable, error) {
	var doc RulesJSON
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("invalid rules JSON: %w", err)
	}
	if len(doc.Models) == 0 {
		return fiscal.DefaultRules(), nil
	}

	table := make(fiscal.RuleTable, len(doc.Models))
	for code, raw := range doc.Models {
		rule, err := parseModelRule(code, raw)
		if err != nil {
			return nil, err
		}
		table[code] = rule
	}
	return table, nil
}

// LoadRules reads and parses a rule file from disk.
func LoadRules(path string) (fiscal.RuleTable, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading rules file: %w", err)
	}
	return ParseRules(data)
}

func parseModelRule(code string, raw ModelRuleJSON) (fiscal.ModelRule, error) {
	var rule fiscal.ModelRule

	for _, c := range raw.AllowedCategories {
		category, ok := validCategories[c]
		if !ok {
			return rule, fmt.Errorf("model %s: unknown client category %q", code, c)
		}
		rule.AllowedCategories = append(rule.AllowedCategories, category)
	}

	if len(raw.AllowedPeriodicities) == 0 {
		return rule, fmt.Errorf("model %s: at least one periodicity is required", code)
	}
	for _, p := range raw.AllowedPeriodicities {
		periodicity, ok := validPeriodicities[p]
		if !ok {
			return rule, fmt.Errorf("model %s: unknown periodicity %q", code, p)
		}
		rule.AllowedPeriodicities = append(rule.AllowedPeriodicities, periodicity)
	}

	rule.InstallmentLabels = append(rule.InstallmentLabels, raw.InstallmentLabels...)
	return rule, nil
}
