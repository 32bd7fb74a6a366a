package dispatch

import (
	"context"
	"errors"
	"sync"
	"testing"

	"chain-sentinel/internal/rules"
	"chain-sentinel/internal/schema"
)

type stubRuleStore struct {
	mu         sync.Mutex
	rules      []*rules.Rule
	listErr    error
	counterErr error
	increments map[string]int
}

func (s *stubRuleStore) ListEnabled(context.Context) ([]*rules.Rule, error) {
	return s.rules, s.listErr
}

func (s *stubRuleStore) IncrementTriggerCount(_ context.Context, ruleID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.increments == nil {
		s.increments = make(map[string]int)
	}
	s.increments[ruleID]++
	return s.counterErr
}

type stubWriter struct {
	mu      sync.Mutex
	alerts  []*schema.FiredAlert
	failErr error
}

func (w *stubWriter) InsertAlert(_ context.Context, alert *schema.FiredAlert) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.failErr != nil {
		return w.failErr
	}
	w.alerts = append(w.alerts, alert)
	return nil
}

type stubBroadcaster struct {
	mu       sync.Mutex
	payloads [][]byte
	failErr  error
}

func (b *stubBroadcaster) Publish(_ context.Context, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.failErr != nil {
		return b.failErr
	}
	b.payloads = append(b.payloads, payload)
	return nil
}

type stubFeed struct {
	mu      sync.Mutex
	keys    []string
	failErr error
}

func (f *stubFeed) Produce(_ context.Context, key string, _ []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failErr != nil {
		return f.failErr
	}
	f.keys = append(f.keys, key)
	return nil
}

func floatPtr(f float64) *float64 { return &f }

func whaleTx() *schema.Transaction {
	return &schema.Transaction{
		Hash:       "0xdeadbeef",
		From:       "0xaaaa",
		To:         "0xbbbb",
		Value:      floatPtr(500),
		Blockchain: "ethereum",
	}
}

func enabledRule(id, name string, conds rules.ConditionSet) *rules.Rule {
	return &rules.Rule{
		ID:         id,
		Name:       name,
		Severity:   schema.SeverityHigh,
		Enabled:    true,
		Conditions: conds,
	}
}

func TestEvaluateFiresOneAlertPerMatch(t *testing.T) {
	store := &stubRuleStore{rules: []*rules.Rule{
		enabledRule("r1", "eth txs", rules.ConditionSet{rules.ChainEquals{Chain: "ethereum"}}),
		enabledRule("r2", "whales", rules.ConditionSet{rules.ValueAtLeast{Threshold: 100}}),
		enabledRule("r3", "polygon only", rules.ConditionSet{rules.ChainEquals{Chain: "polygon"}}),
	}}
	writer := &stubWriter{}
	bcast := &stubBroadcaster{}
	feed := &stubFeed{}

	d := New(store, writer, bcast, feed, nil)
	alerts := d.Evaluate(context.Background(), whaleTx(), nil)

	if len(alerts) != 2 {
		t.Fatalf("Evaluate returned %d alerts, want 2", len(alerts))
	}

	// Two alerts for the same transaction carry distinct IDs.
	if alerts[0].ID == alerts[1].ID {
		t.Error("alerts from different rules must have distinct IDs")
	}
	for _, a := range alerts {
		if a.TransactionHash != "0xdeadbeef" {
			t.Errorf("alert tx hash = %q, want 0xdeadbeef", a.TransactionHash)
		}
		if a.Detail == "" {
			t.Error("alert detail must be populated")
		}
	}

	if len(writer.alerts) != 2 {
		t.Errorf("persisted %d alerts, want 2", len(writer.alerts))
	}
	if len(bcast.payloads) != 2 {
		t.Errorf("published %d payloads, want 2", len(bcast.payloads))
	}
	if len(feed.keys) != 2 {
		t.Errorf("feed received %d alerts, want 2", len(feed.keys))
	}
	if store.increments["r1"] != 1 || store.increments["r2"] != 1 {
		t.Errorf("trigger counts = %v, want one increment for r1 and r2", store.increments)
	}
	if store.increments["r3"] != 0 {
		t.Error("non-matching rule must not have its counter incremented")
	}
}

// Alerts must still be returned when every side effect fails.
func TestEvaluateSurvivesSinkFailures(t *testing.T) {
	sinkErr := errors.New("sink down")
	store := &stubRuleStore{
		rules:      []*rules.Rule{enabledRule("r1", "everything", rules.ConditionSet{})},
		counterErr: sinkErr,
	}
	writer := &stubWriter{failErr: sinkErr}
	bcast := &stubBroadcaster{failErr: sinkErr}
	feed := &stubFeed{failErr: sinkErr}

	d := New(store, writer, bcast, feed, nil)
	outcomes := d.Dispatch(context.Background(), whaleTx(), nil)

	if len(outcomes) != 1 {
		t.Fatalf("Dispatch returned %d outcomes, want 1", len(outcomes))
	}

	o := outcomes[0]
	if o.Alert == nil {
		t.Fatal("outcome must carry the fired alert even when every sink fails")
	}
	if !errors.Is(o.PersistErr, sinkErr) {
		t.Errorf("PersistErr = %v, want sink error", o.PersistErr)
	}
	if !errors.Is(o.CounterErr, sinkErr) {
		t.Errorf("CounterErr = %v, want sink error", o.CounterErr)
	}
	if !errors.Is(o.PublishErr, sinkErr) {
		t.Errorf("PublishErr = %v, want sink error", o.PublishErr)
	}
	if !errors.Is(o.FeedErr, sinkErr) {
		t.Errorf("FeedErr = %v, want sink error", o.FeedErr)
	}
}

// One failing leg must not prevent the others from being attempted.
func TestDispatchSideEffectsAreIndependent(t *testing.T) {
	store := &stubRuleStore{
		rules: []*rules.Rule{enabledRule("r1", "everything", rules.ConditionSet{})},
	}
	writer := &stubWriter{failErr: errors.New("clickhouse down")}
	bcast := &stubBroadcaster{}

	d := New(store, writer, bcast, nil, nil)
	outcomes := d.Dispatch(context.Background(), whaleTx(), nil)

	if len(outcomes) != 1 {
		t.Fatalf("Dispatch returned %d outcomes, want 1", len(outcomes))
	}
	o := outcomes[0]
	if o.PersistErr == nil {
		t.Error("expected persistence failure")
	}
	if o.PublishErr != nil {
		t.Errorf("publish should succeed despite persistence failure, got %v", o.PublishErr)
	}
	if len(bcast.payloads) != 1 {
		t.Errorf("published %d payloads, want 1", len(bcast.payloads))
	}
	if store.increments["r1"] != 1 {
		t.Error("trigger counter should be incremented despite persistence failure")
	}
}

func TestEvaluateRuleLoadFailure(t *testing.T) {
	store := &stubRuleStore{listErr: errors.New("postgres down")}
	d := New(store, &stubWriter{}, &stubBroadcaster{}, nil, nil)

	alerts := d.Evaluate(context.Background(), whaleTx(), nil)
	if alerts != nil && len(alerts) != 0 {
		t.Fatalf("rule load failure should yield no alerts, got %d", len(alerts))
	}
}

func TestEvaluateNilFeedProducer(t *testing.T) {
	store := &stubRuleStore{
		rules: []*rules.Rule{enabledRule("r1", "everything", rules.ConditionSet{})},
	}
	d := New(store, &stubWriter{}, &stubBroadcaster{}, nil, nil)

	outcomes := d.Dispatch(context.Background(), whaleTx(), nil)
	if len(outcomes) != 1 {
		t.Fatalf("Dispatch returned %d outcomes, want 1", len(outcomes))
	}
	if outcomes[0].FeedErr != nil {
		t.Errorf("nil feed producer must not record a feed error, got %v", outcomes[0].FeedErr)
	}
}

func TestEvaluatePatternRule(t *testing.T) {
	store := &stubRuleStore{rules: []*rules.Rule{
		enabledRule("r1", "wash trades", rules.ConditionSet{
			rules.PatternPresent{Pattern: "wash_trading"},
		}),
	}}
	d := New(store, &stubWriter{}, &stubBroadcaster{}, nil, nil)

	if got := d.Evaluate(context.Background(), whaleTx(), nil); len(got) != 0 {
		t.Errorf("no detected patterns should mean no match, got %d alerts", len(got))
	}
	if got := d.Evaluate(context.Background(), whaleTx(), []string{"wash_trading"}); len(got) != 1 {
		t.Errorf("detected pattern should fire the rule, got %d alerts", len(got))
	}
}
