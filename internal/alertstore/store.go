package alertstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"chain-sentinel/internal/schema"
)

// Store persists and reads back fired alerts. The dispatcher only writes;
// history queries serve the external reporting UI and the archive job.
type Store interface {
	InsertAlert(ctx context.Context, alert *schema.FiredAlert) error
	RecentAlerts(ctx context.Context, limit int) ([]*schema.FiredAlert, error)
	AlertsBetween(ctx context.Context, from, to time.Time) ([]*schema.FiredAlert, error)
}

const alertsTableDDL = `
CREATE TABLE IF NOT EXISTS alerts (
	id               UUID,
	rule_id          String,
	rule_name        String,
	severity         LowCardinality(String),
	detail           String,
	transaction_hash String,
	blockchain       LowCardinality(String),
	from_address     String,
	to_address       String,
	value            Nullable(Float64),
	fired_at         DateTime64(3, 'UTC')
) ENGINE = MergeTree()
PARTITION BY toYYYYMM(fired_at)
ORDER BY (fired_at, rule_id)`

// ClickHouseStore is the production alert store.
type ClickHouseStore struct {
	client *ClickHouseClient
}

// NewClickHouseStore creates an alert store over an existing client.
func NewClickHouseStore(client *ClickHouseClient) *ClickHouseStore {
	return &ClickHouseStore{client: client}
}

// Migrate ensures the alerts table exists.
func (s *ClickHouseStore) Migrate(ctx context.Context) error {
	if err := s.client.EnsureDatabase(ctx); err != nil {
		return &StoreError{Op: "Migrate", Err: err}
	}
	if err := s.client.Conn().Exec(ctx, alertsTableDDL); err != nil {
		return &StoreError{Op: "Migrate", Err: err}
	}
	return nil
}

const insertAlertQuery = `
	INSERT INTO alerts (
		id, rule_id, rule_name, severity, detail,
		transaction_hash, blockchain, from_address, to_address,
		value, fired_at
	)`

// InsertAlert persists one fired alert. Alerts are immutable; there is no
// update path.
func (s *ClickHouseStore) InsertAlert(ctx context.Context, alert *schema.FiredAlert) error {
	batch, err := s.client.Conn().PrepareBatch(ctx, insertAlertQuery)
	if err != nil {
		return &StoreError{Op: "Insert", Err: err}
	}

	if err := batch.Append(
		alert.ID,
		alert.RuleID,
		alert.RuleName,
		string(alert.Severity),
		alert.Detail,
		alert.TransactionHash,
		alert.Blockchain,
		alert.FromAddress,
		alert.ToAddress,
		alert.Value,
		alert.FiredAt,
	); err != nil {
		return &StoreError{Op: "Insert", Err: err}
	}

	if err := batch.Send(); err != nil {
		return &StoreError{Op: "Insert", Err: err}
	}

	return nil
}

const selectAlertColumns = `
	SELECT id, rule_id, rule_name, severity, detail,
	       transaction_hash, blockchain, from_address, to_address,
	       value, fired_at
	FROM alerts`

// RecentAlerts returns the most recent alerts, newest first.
func (s *ClickHouseStore) RecentAlerts(ctx context.Context, limit int) ([]*schema.FiredAlert, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.client.Conn().Query(ctx,
		selectAlertColumns+" ORDER BY fired_at DESC LIMIT ?", limit)
	if err != nil {
		return nil, &StoreError{Op: "RecentAlerts", Err: err}
	}
	defer rows.Close()

	return scanAlerts(rows)
}

// AlertsBetween returns alerts fired in [from, to), oldest first. Used by the
// archive exporter.
func (s *ClickHouseStore) AlertsBetween(ctx context.Context, from, to time.Time) ([]*schema.FiredAlert, error) {
	rows, err := s.client.Conn().Query(ctx,
		selectAlertColumns+" WHERE fired_at >= ? AND fired_at < ? ORDER BY fired_at", from, to)
	if err != nil {
		return nil, &StoreError{Op: "AlertsBetween", Err: err}
	}
	defer rows.Close()

	return scanAlerts(rows)
}

type alertRows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}

func scanAlerts(rows alertRows) ([]*schema.FiredAlert, error) {
	var alerts []*schema.FiredAlert
	for rows.Next() {
		var (
			alert    schema.FiredAlert
			severity string
		)
		if err := rows.Scan(
			&alert.ID,
			&alert.RuleID,
			&alert.RuleName,
			&severity,
			&alert.Detail,
			&alert.TransactionHash,
			&alert.Blockchain,
			&alert.FromAddress,
			&alert.ToAddress,
			&alert.Value,
			&alert.FiredAt,
		); err != nil {
			return nil, &StoreError{Op: "Scan", Err: err}
		}
		alert.Severity = schema.Severity(severity)
		alerts = append(alerts, &alert)
	}
	if err := rows.Err(); err != nil {
		return nil, &StoreError{Op: "Scan", Err: err}
	}
	return alerts, nil
}

// MemoryStore is an in-memory alert store used in tests and when ClickHouse
// storage is disabled in configuration.
type MemoryStore struct {
	mu     sync.RWMutex
	alerts []*schema.FiredAlert
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// InsertAlert stores a copy of the alert so later mutation by the caller
// cannot change history.
func (m *MemoryStore) InsertAlert(_ context.Context, alert *schema.FiredAlert) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored := *alert
	m.alerts = append(m.alerts, &stored)
	return nil
}

// RecentAlerts returns the most recent alerts, newest first.
func (m *MemoryStore) RecentAlerts(_ context.Context, limit int) ([]*schema.FiredAlert, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	sorted := make([]*schema.FiredAlert, len(m.alerts))
	copy(sorted, m.alerts)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].FiredAt.After(sorted[j].FiredAt)
	})

	if limit > 0 && len(sorted) > limit {
		sorted = sorted[:limit]
	}
	return sorted, nil
}

// AlertsBetween returns alerts fired in [from, to), oldest first.
func (m *MemoryStore) AlertsBetween(_ context.Context, from, to time.Time) ([]*schema.FiredAlert, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []*schema.FiredAlert
	for _, a := range m.alerts {
		if !a.FiredAt.Before(from) && a.FiredAt.Before(to) {
			result = append(result, a)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].FiredAt.Before(result[j].FiredAt)
	})
	return result, nil
}
