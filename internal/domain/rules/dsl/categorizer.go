package dsl

import (
	"sort"

	"github.com/FACorreiaa/statement-parser/internal/domain/common"
)

// Categorizer applies a rule set to transactions in ascending priority
// order with first-writer-wins field semantics: once a field is set,
// either on the incoming transaction or by an earlier rule, later rules
// cannot overwrite it.
type Categorizer struct {
	rules []*CategorizationRule
}

// NewCategorizer sorts the rules ascending by priority. The sort is
// stable so ties keep parse order.
func NewCategorizer(rules []*CategorizationRule) *Categorizer {
	sorted := make([]*CategorizationRule, len(rules))
	copy(sorted, rules)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Priority < sorted[j].Priority
	})
	return &Categorizer{rules: sorted}
}

// Rules returns the rules in application order.
func (c *Categorizer) Rules() []*CategorizationRule { return c.rules }

// Categorize returns an enriched clone of tx. Rules are evaluated against
// the original record, so one rule's assignments never influence another
// rule's conditions.
func (c *Categorizer) Categorize(tx *common.Transaction) *common.Transaction {
	result := tx.Clone()
	assigned := tx.AssignedFields()

	for _, rule := range c.rules {
		if !EvaluateRule(rule, tx) {
			continue
		}
		for _, field := range rule.Assignment.Names() {
			if assigned[field] {
				continue
			}
			value, _ := rule.Assignment.Get(field)
			result.SetField(field, value.Interface())
			assigned[field] = true
		}
	}
	return result
}

// CategorizeBatch categorizes each transaction independently.
func (c *Categorizer) CategorizeBatch(txns []*common.Transaction) []*common.Transaction {
	out := make([]*common.Transaction, len(txns))
	for i, tx := range txns {
		out[i] = c.Categorize(tx)
	}
	return out
}

// MatchingRules lists every rule that matches tx, in application order.
func (c *Categorizer) MatchingRules(tx *common.Transaction) []*CategorizationRule {
	var matched []*CategorizationRule
	for _, rule := range c.rules {
		if EvaluateRule(rule, tx) {
			matched = append(matched, rule)
		}
	}
	return matched
}
