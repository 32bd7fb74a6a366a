package rules

import (
	"fmt"
	"strings"

	"chain-sentinel/internal/schema"
)

// Match implements Condition for ChainEquals.
func (c ChainEquals) Match(tx *schema.Transaction, _ []string) bool {
	return strings.EqualFold(c.Chain, tx.Blockchain)
}

// Describe implements Condition for ChainEquals.
func (c ChainEquals) Describe() string {
	return fmt.Sprintf("chain=%s", c.Chain)
}

// Match implements Condition for AddressMatches. Either side of the transfer
// satisfies the condition.
func (c AddressMatches) Match(tx *schema.Transaction, _ []string) bool {
	return strings.EqualFold(c.Address, tx.From) || strings.EqualFold(c.Address, tx.To)
}

// Describe implements Condition for AddressMatches.
func (c AddressMatches) Describe() string {
	return fmt.Sprintf("address=%s", c.Address)
}

// Match implements Condition for ValueAtLeast. A transaction without a
// numeric value fails the condition rather than erroring.
func (c ValueAtLeast) Match(tx *schema.Transaction, _ []string) bool {
	if tx.Value == nil {
		return false
	}
	return *tx.Value >= c.Threshold
}

// Describe implements Condition for ValueAtLeast.
func (c ValueAtLeast) Describe() string {
	return fmt.Sprintf("value>=%g", c.Threshold)
}

// Match implements Condition for PatternPresent. An absent pattern list fails
// the condition.
func (c PatternPresent) Match(_ *schema.Transaction, detectedPatterns []string) bool {
	for _, p := range detectedPatterns {
		if strings.EqualFold(p, c.Pattern) {
			return true
		}
	}
	return false
}

// Describe implements Condition for PatternPresent.
func (c PatternPresent) Describe() string {
	return fmt.Sprintf("pattern=%s", c.Pattern)
}

// Matches reports whether the transaction satisfies every condition of the
// rule. Conditions combine with AND semantics only; an empty condition set is
// vacuously satisfied. A rule whose stored conditions failed to parse
// (Conditions == nil while RawConditions is non-empty) never matches.
func Matches(rule *Rule, tx *schema.Transaction, detectedPatterns []string) bool {
	if tx == nil {
		return false
	}
	if rule.Conditions == nil && len(rule.RawConditions) > 0 {
		return false
	}
	for _, cond := range rule.Conditions {
		if !cond.Match(tx, detectedPatterns) {
			return false
		}
	}
	return true
}

// DescribeMatch builds the one-line human-readable explanation stored on a
// fired alert.
func DescribeMatch(rule *Rule, tx *schema.Transaction) string {
	if len(rule.Conditions) == 0 {
		return fmt.Sprintf("rule %q matched transaction %s on %s (matches all transactions)",
			rule.Name, tx.Hash, tx.Blockchain)
	}

	parts := make([]string, 0, len(rule.Conditions))
	for _, cond := range rule.Conditions {
		parts = append(parts, cond.Describe())
	}
	return fmt.Sprintf("rule %q matched transaction %s on %s (%s)",
		rule.Name, tx.Hash, tx.Blockchain, strings.Join(parts, " AND "))
}
