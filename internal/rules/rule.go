// Package rules provides the operator-authored rule model, the condition
// matching engine, and the PostgreSQL rule store read by the dispatcher.
package rules

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"chain-sentinel/internal/schema"
)

// Rule is an operator-authored matching specification. Rules are created and
// edited by an external CRUD layer; this core only reads them, except for the
// trigger counter which the dispatcher increments on every firing.
type Rule struct {
	ID            string          `json:"id"`
	Name          string          `json:"name"`
	Description   string          `json:"description"`
	Conditions    ConditionSet    `json:"-"`
	RawConditions json.RawMessage `json:"conditions"`
	Severity      schema.Severity `json:"severity"`
	Enabled       bool            `json:"enabled"`
	CreatedBy     string          `json:"created_by"`
	TriggerCount  int64           `json:"trigger_count"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// Condition is one clause of a rule's AND-combined condition set.
type Condition interface {
	// Match reports whether the transaction (plus any externally detected
	// behavioral patterns) satisfies this clause. Match is total: every
	// input produces a boolean, never an error.
	Match(tx *schema.Transaction, detectedPatterns []string) bool

	// Describe returns a short human-readable form used in alert detail lines.
	Describe() string
}

// ConditionSet is the parsed, AND-combined condition list of one rule.
// A nil or empty set matches every transaction; operators use empty sets
// deliberately for "alert on everything" rules.
type ConditionSet []Condition

// ChainEquals matches transactions observed on a specific blockchain,
// case-insensitively.
type ChainEquals struct {
	Chain string
}

// AddressMatches matches transactions where either the sender or the
// recipient equals the given address, case-insensitively.
type AddressMatches struct {
	Address string
}

// ValueAtLeast matches transactions whose numeric value is present and at
// least the threshold. A missing value fails the condition (fails closed).
type ValueAtLeast struct {
	Threshold float64
}

// PatternPresent matches when the named behavioral pattern was supplied by
// the external pattern detector for this transaction.
type PatternPresent struct {
	Pattern string
}

// Condition keys accepted in the stored JSON object.
const (
	condKeyChain   = "chain"
	condKeyAddress = "address_match"
	condKeyValue   = "value_gte"
	condKeyPattern = "pattern_type"
)

// ParseConditions parses the stored JSON condition object into typed clauses.
// Parsing happens once per rule load so the engine never does runtime key
// lookups. Unknown keys and malformed values are rejected here; the owning
// rule then fails closed (never matches) until the stored JSON is fixed.
func ParseConditions(raw json.RawMessage) (ConditionSet, error) {
	if len(raw) == 0 {
		return ConditionSet{}, nil
	}

	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil, fmt.Errorf("conditions must be a JSON object: %w", err)
	}

	set := make(ConditionSet, 0, len(obj))
	for key, val := range obj {
		switch key {
		case condKeyChain:
			var chain string
			if err := json.Unmarshal(val, &chain); err != nil {
				return nil, fmt.Errorf("condition %q: %w", key, err)
			}
			set = append(set, ChainEquals{Chain: chain})

		case condKeyAddress:
			var addr string
			if err := json.Unmarshal(val, &addr); err != nil {
				return nil, fmt.Errorf("condition %q: %w", key, err)
			}
			set = append(set, AddressMatches{Address: addr})

		case condKeyValue:
			threshold, err := parseThreshold(val)
			if err != nil {
				return nil, fmt.Errorf("condition %q: %w", key, err)
			}
			set = append(set, ValueAtLeast{Threshold: threshold})

		case condKeyPattern:
			var pattern string
			if err := json.Unmarshal(val, &pattern); err != nil {
				return nil, fmt.Errorf("condition %q: %w", key, err)
			}
			set = append(set, PatternPresent{Pattern: pattern})

		default:
			return nil, fmt.Errorf("unknown condition key %q", key)
		}
	}

	return set, nil
}

// parseThreshold accepts a JSON number or a numeric string.
func parseThreshold(raw json.RawMessage) (float64, error) {
	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return f, nil
	}

	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return 0, fmt.Errorf("threshold must be a number or numeric string")
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("threshold %q is not numeric", s)
	}
	return f, nil
}
