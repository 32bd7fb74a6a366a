package schema

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// Validator checks normalized transactions before they enter rule evaluation.
type Validator struct {
	validate  *validator.Validate
	maxAge    time.Duration
	maxFuture time.Duration
}

// ValidatorConfig holds configuration for the validator.
type ValidatorConfig struct {
	MaxAge    time.Duration
	MaxFuture time.Duration
}

// DefaultValidatorConfig returns the default validator configuration.
func DefaultValidatorConfig() ValidatorConfig {
	return ValidatorConfig{
		MaxAge:    24 * time.Hour,
		MaxFuture: 5 * time.Minute,
	}
}

// NewValidator creates a new Validator with default configuration.
func NewValidator() *Validator {
	return NewValidatorWithConfig(DefaultValidatorConfig())
}

// NewValidatorWithConfig creates a new Validator with the specified configuration.
func NewValidatorWithConfig(cfg ValidatorConfig) *Validator {
	return &Validator{
		validate:  validator.New(),
		maxAge:    cfg.MaxAge,
		maxFuture: cfg.MaxFuture,
	}
}

// Validate validates a normalized transaction.
// Returns an error if validation fails.
func (v *Validator) Validate(tx *Transaction) error {
	if err := v.validate.Struct(tx); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	if strings.TrimSpace(tx.Hash) == "" {
		return fmt.Errorf("transaction hash is required")
	}

	// Chain-reported timestamps are optional, but when present they must be
	// plausibly recent. Chains with clock drift get the benefit of MaxFuture.
	if tx.Timestamp != nil {
		now := time.Now().UTC()
		if v.maxAge > 0 && tx.Timestamp.Before(now.Add(-v.maxAge)) {
			return fmt.Errorf("timestamp too old: %v (max age: %v)", tx.Timestamp, v.maxAge)
		}
		if v.maxFuture > 0 && tx.Timestamp.After(now.Add(v.maxFuture)) {
			return fmt.Errorf("timestamp in future: %v (max future: %v)", tx.Timestamp, v.maxFuture)
		}
	}

	return nil
}
