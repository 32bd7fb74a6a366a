// Package dispatch runs the alert pipeline's evaluation step: every observed
// transaction is matched against the enabled rules, and each match is
// persisted, counted, and fanned out as a fired alert.
package dispatch

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"chain-sentinel/internal/rules"
	"chain-sentinel/internal/schema"
)

// AlertWriter persists fired alerts. Implemented by the ClickHouse alert
// store.
type AlertWriter interface {
	InsertAlert(ctx context.Context, alert *schema.FiredAlert) error
}

// Broadcaster publishes serialized alerts on the broadcast channel consumed
// by live gateway subscribers.
type Broadcaster interface {
	Publish(ctx context.Context, payload []byte) error
}

// FeedProducer mirrors serialized alerts onto the durable alert feed for
// downstream consumers. Optional.
type FeedProducer interface {
	Produce(ctx context.Context, key string, payload []byte) error
}

// Outcome aggregates the independent side-effect results of one fired alert.
// Persistence, the trigger-counter update, and publication are attempted
// separately; any of them may fail without affecting the others or the
// alert's presence in the evaluation result.
type Outcome struct {
	Alert      *schema.FiredAlert
	PersistErr error
	CounterErr error
	PublishErr error
	FeedErr    error
}

// Dispatcher evaluates transactions against the rule store and fires alerts.
// It is constructed once at process start and shared by every chain monitor;
// it holds no mutable state of its own.
type Dispatcher struct {
	rules     rules.Store
	alerts    AlertWriter
	broadcast Broadcaster
	feed      FeedProducer
	logger    *slog.Logger
}

// New creates a Dispatcher. The feed producer may be nil.
func New(ruleStore rules.Store, alerts AlertWriter, broadcast Broadcaster, feed FeedProducer, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		rules:     ruleStore,
		alerts:    alerts,
		broadcast: broadcast,
		feed:      feed,
		logger:    logger,
	}
}

// Evaluate matches the transaction against every enabled rule and returns the
// fired alerts. Side-effect failures (persist, counter, publish, feed) are
// logged and swallowed: callers always see what matched even when the
// durability or fan-out leg degraded. Evaluate never returns an error.
func (d *Dispatcher) Evaluate(ctx context.Context, tx *schema.Transaction, detectedPatterns []string) []*schema.FiredAlert {
	outcomes := d.Dispatch(ctx, tx, detectedPatterns)
	alerts := make([]*schema.FiredAlert, 0, len(outcomes))
	for _, o := range outcomes {
		alerts = append(alerts, o.Alert)
	}
	return alerts
}

// Dispatch is Evaluate with per-alert side-effect results exposed, so tests
// and batch tooling can assert on each leg independently.
func (d *Dispatcher) Dispatch(ctx context.Context, tx *schema.Transaction, detectedPatterns []string) []Outcome {
	enabled, err := d.rules.ListEnabled(ctx)
	if err != nil {
		// A rule read failure means nothing can match this cycle. The
		// monitor retries on its next poll; returning nil keeps the
		// no-error contract.
		d.logger.Error("failed to load enabled rules", "error", err)
		return nil
	}

	var outcomes []Outcome
	for _, rule := range enabled {
		if !rules.Matches(rule, tx, detectedPatterns) {
			continue
		}
		outcomes = append(outcomes, d.fire(ctx, rule, tx))
	}

	return outcomes
}

// fire synthesizes the alert for one matching rule and attempts each side
// effect independently.
func (d *Dispatcher) fire(ctx context.Context, rule *rules.Rule, tx *schema.Transaction) Outcome {
	alert := &schema.FiredAlert{
		ID:              uuid.New(),
		RuleID:          rule.ID,
		RuleName:        rule.Name,
		Severity:        rule.Severity,
		Detail:          rules.DescribeMatch(rule, tx),
		TransactionHash: tx.Hash,
		Blockchain:      tx.Blockchain,
		FromAddress:     tx.From,
		ToAddress:       tx.To,
		Value:           tx.Value,
		FiredAt:         time.Now().UTC(),
	}

	outcome := Outcome{Alert: alert}

	if outcome.PersistErr = d.alerts.InsertAlert(ctx, alert); outcome.PersistErr != nil {
		d.logger.Error("failed to persist alert",
			"alert_id", alert.ID,
			"rule_id", rule.ID,
			"error", outcome.PersistErr,
		)
	}

	if outcome.CounterErr = d.rules.IncrementTriggerCount(ctx, rule.ID); outcome.CounterErr != nil {
		d.logger.Error("failed to increment trigger count",
			"rule_id", rule.ID,
			"error", outcome.CounterErr,
		)
	}

	payload, err := json.Marshal(alert)
	if err != nil {
		// Alerts are plain structs; marshalling only fails on NaN values.
		outcome.PublishErr = err
		d.logger.Error("failed to serialize alert", "alert_id", alert.ID, "error", err)
		return outcome
	}

	if outcome.PublishErr = d.broadcast.Publish(ctx, payload); outcome.PublishErr != nil {
		d.logger.Error("failed to publish alert",
			"alert_id", alert.ID,
			"rule_id", rule.ID,
			"error", outcome.PublishErr,
		)
	}

	if d.feed != nil {
		if outcome.FeedErr = d.feed.Produce(ctx, rule.ID, payload); outcome.FeedErr != nil {
			d.logger.Error("failed to produce alert to feed",
				"alert_id", alert.ID,
				"rule_id", rule.ID,
				"error", outcome.FeedErr,
			)
		}
	}

	d.logger.Info("alert fired",
		"alert_id", alert.ID,
		"rule_id", rule.ID,
		"rule_name", rule.Name,
		"severity", alert.Severity,
		"chain", alert.Blockchain,
		"tx_hash", alert.TransactionHash,
	)

	return outcome
}
