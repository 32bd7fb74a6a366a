// Package schema defines the canonical types shared by the alert pipeline.
// Chain-specific transaction representations are normalized to these
// structures before rule evaluation.
package schema

import (
	"time"
)

// Transaction is the canonical form of one observed chain transaction.
// It is ephemeral: owned by the chain monitor that produced it until handed
// to the dispatcher, and never mutated after normalization.
type Transaction struct {
	Hash       string     `json:"hash" validate:"required,max=256"`
	From       string     `json:"from" validate:"max=256"`
	To         string     `json:"to" validate:"max=256"`
	Value      *float64   `json:"value,omitempty"`
	Blockchain string     `json:"blockchain" validate:"required,max=64"`
	Timestamp  *time.Time `json:"timestamp,omitempty"`
}

// Block is the normalized result of one "fetch latest block" RPC call.
type Block struct {
	Number       uint64        `json:"number"`
	Hash         string        `json:"hash"`
	Timestamp    time.Time     `json:"timestamp"`
	Transactions []Transaction `json:"transactions"`
}
