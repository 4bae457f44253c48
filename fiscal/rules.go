/*
rules.go - Eligibility rule table and matcher

PURPOSE:
  Decides, for a (period, subscription) pair, whether an obligation must
  exist. Rules are a closed, typed table keyed by model code rather than
  free-form lookups, so unknown keys and typos fail loudly at config-load
  time instead of silently at match time.

MATCHING IS A FILTER, NOT A VALIDATION:
  A pair that fails any rule is skipped, never rejected. Bulk generation
  runs across heterogeneous clients; escalating a category mismatch to an
  error would abort the whole run.

SEE ALSO:
  - factory/rules.go: JSON rule-table loading for operators
  - generator.go: The only caller of Matcher during generation
*/
package fiscal

import "time"

// =============================================================================
// RULE TABLE
// =============================================================================

// ModelRule is the eligibility configuration for one tax model.
// Empty AllowedCategories means "no category restriction". Empty
// InstallmentLabels means any SPECIAL period matches an installment
// subscription.
type ModelRule struct {
	AllowedCategories    []ClientCategory
	AllowedPeriodicities []Periodicity
	InstallmentLabels    []string
}

// AllowsCategory reports whether the rule admits the given client category.
func (r ModelRule) AllowsCategory(c ClientCategory) bool {
	if len(r.AllowedCategories) == 0 {
		return true
	}
	for _, allowed := range r.AllowedCategories {
		if allowed == c {
			return true
		}
	}
	return false
}

// AllowsPeriodicity reports whether the rule admits the given periodicity.
// Used when validating new subscriptions, not during generation.
func (r ModelRule) AllowsPeriodicity(p Periodicity) bool {
	for _, allowed := range r.AllowedPeriodicities {
		if allowed == p {
			return true
		}
	}
	return false
}

func (r ModelRule) allowsInstallmentLabel(label string) bool {
	if len(r.InstallmentLabels) == 0 {
		return true
	}
	for _, l := range r.InstallmentLabels {
		if l == label {
			return true
		}
	}
	return false
}

// RuleTable maps model codes to their eligibility rules.
type RuleTable map[string]ModelRule

// Rule returns the rule for a model code. The second return is false for
// models outside the table; generation treats those as unrestricted.
func (rt RuleTable) Rule(modelCode string) (ModelRule, bool) {
	r, ok := rt[modelCode]
	return r, ok
}

// controlledModelOrder fixes the column order of the status matrix.
var controlledModelOrder = []string{
	"100", "111", "115", "130", "303", "349", "202", "200", "390", "347", "190", "180", "720",
}

// ControlledModels returns the model codes tracked by the status matrix,
// in display order.
func ControlledModels() []string {
	out := make([]string, len(controlledModelOrder))
	copy(out, controlledModelOrder)
	return out
}

// DefaultRules returns the built-in AEAT rule table. Operators can replace
// it with a JSON file via the factory package.
func DefaultRules() RuleTable {
	return RuleTable{
		"100": {
			AllowedCategories:    []ClientCategory{CategorySelfEmployed, CategoryIndividual},
			AllowedPeriodicities: []Periodicity{Annual},
		},
		"111": {
			AllowedCategories:    []ClientCategory{CategorySelfEmployed, CategoryCompany},
			AllowedPeriodicities: []Periodicity{Monthly, Quarterly},
		},
		"115": {
			AllowedCategories:    []ClientCategory{CategorySelfEmployed, CategoryCompany},
			AllowedPeriodicities: []Periodicity{Monthly, Quarterly},
		},
		"130": {
			AllowedCategories:    []ClientCategory{CategorySelfEmployed},
			AllowedPeriodicities: []Periodicity{Quarterly},
		},
		"131": {
			AllowedCategories:    []ClientCategory{CategorySelfEmployed},
			AllowedPeriodicities: []Periodicity{Quarterly},
		},
		"180": {
			AllowedCategories:    []ClientCategory{CategorySelfEmployed, CategoryCompany},
			AllowedPeriodicities: []Periodicity{Annual},
		},
		"190": {
			AllowedCategories:    []ClientCategory{CategorySelfEmployed, CategoryCompany},
			AllowedPeriodicities: []Periodicity{Annual},
		},
		"200": {
			AllowedCategories:    []ClientCategory{CategoryCompany},
			AllowedPeriodicities: []Periodicity{Annual},
		},
		"202": {
			AllowedCategories:    []ClientCategory{CategoryCompany},
			AllowedPeriodicities: []Periodicity{SpecialInstallment},
			InstallmentLabels:    []string{"Abril", "Octubre", "Diciembre"},
		},
		"303": {
			AllowedCategories:    []ClientCategory{CategorySelfEmployed, CategoryCompany},
			AllowedPeriodicities: []Periodicity{Monthly, Quarterly},
		},
		"347": {
			AllowedCategories:    []ClientCategory{CategorySelfEmployed, CategoryCompany},
			AllowedPeriodicities: []Periodicity{Annual},
		},
		"349": {
			AllowedCategories:    []ClientCategory{CategorySelfEmployed, CategoryCompany},
			AllowedPeriodicities: []Periodicity{Monthly, Quarterly},
		},
		"390": {
			AllowedCategories:    []ClientCategory{CategorySelfEmployed, CategoryCompany},
			AllowedPeriodicities: []Periodicity{Annual},
		},
		"720": {
			AllowedCategories:    []ClientCategory{CategorySelfEmployed, CategoryCompany},
			AllowedPeriodicities: []Periodicity{Annual},
		},
	}
}

// =============================================================================
// MATCHER
// =============================================================================

// Matcher decides whether a (period, subscription) pair requires an
// obligation. All rules must hold; any failure is a silent skip.
type Matcher struct {
	Rules RuleTable
}

// NewMatcher builds a matcher over the given rule table; nil falls back to
// the built-in AEAT table.
func NewMatcher(rules RuleTable) Matcher {
	if rules == nil {
		rules = DefaultRules()
	}
	return Matcher{Rules: rules}
}

// Matches applies the eligibility rules in order:
//  1. subscription is effective-active as of now
//  2. client category is allowed for the period's model
//  3. subscription periodicity maps to the period type; installment
//     subscriptions additionally honor declared installment labels
func (m Matcher) Matches(now time.Time, period FiscalPeriod, sub Subscription, category ClientCategory) bool {
	if !sub.EffectiveActive(now) {
		return false
	}

	// Category is enforced only when known on both sides: a client with no
	// recorded category passes, as does a model outside the rule table.
	rule, known := m.Rules.Rule(period.ModelCode)
	if known && category != "" && !rule.AllowsCategory(category) {
		return false
	}

	if !sub.Periodicity.MatchesPeriodType(period.PeriodType) {
		return false
	}
	if sub.Periodicity == SpecialInstallment && known && !rule.allowsInstallmentLabel(period.Label) {
		return false
	}

	return true
}
