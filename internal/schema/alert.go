package schema

import (
	"time"

	"github.com/google/uuid"
)

// Severity levels for rules and fired alerts.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// IsValid checks if the severity is a valid value.
func (s Severity) IsValid() bool {
	switch s {
	case SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical:
		return true
	}
	return false
}

// FiredAlert is the immutable event produced when a transaction satisfies a
// rule's conditions. A fresh ID is generated per firing; the same rule firing
// twice produces two distinct alerts. Once created an alert is never updated,
// only read back for history queries.
type FiredAlert struct {
	ID              uuid.UUID `json:"id"`
	RuleID          string    `json:"rule_id"`
	RuleName        string    `json:"rule_name"`
	Severity        Severity  `json:"severity"`
	Detail          string    `json:"detail"`
	TransactionHash string    `json:"transaction_hash"`
	Blockchain      string    `json:"blockchain"`
	FromAddress     string    `json:"from_address"`
	ToAddress       string    `json:"to_address"`
	Value           *float64  `json:"value"`
	FiredAt         time.Time `json:"fired_at"`
}
