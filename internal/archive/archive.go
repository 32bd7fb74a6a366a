// Package archive exports aged alerts from the alert store to S3 as
// compressed JSON lines, one object per UTC day. Export only: deletion and
// retention of the source rows stay outside this core.
package archive

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"chain-sentinel/internal/schema"
)

// Config holds archival settings.
type Config struct {
	Enabled       bool          `yaml:"enabled"`
	CheckInterval time.Duration `yaml:"check_interval"`
	S3            S3Config      `yaml:"s3"`
}

// DefaultConfig returns the default archive configuration.
func DefaultConfig() Config {
	return Config{
		Enabled:       false,
		CheckInterval: time.Hour,
		S3:            DefaultS3Config(),
	}
}

// AlertSource provides the range query the exporter reads from.
type AlertSource interface {
	AlertsBetween(ctx context.Context, from, to time.Time) ([]*schema.FiredAlert, error)
}

// Uploader stores one finished archive object.
type Uploader interface {
	Upload(ctx context.Context, key string, body []byte, contentType string) error
}

// Archiver periodically exports each completed UTC day of alerts. The
// exported-day cursor is in memory only; a restart re-exports at most one
// day's object (uploads are idempotent by key).
type Archiver struct {
	config   Config
	source   AlertSource
	uploader Uploader
	logger   *slog.Logger

	lastDay time.Time
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

// New creates an Archiver.
func New(cfg Config, source AlertSource, uploader Uploader, logger *slog.Logger) *Archiver {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.CheckInterval <= 0 {
		cfg.CheckInterval = DefaultConfig().CheckInterval
	}
	return &Archiver{
		config:   cfg,
		source:   source,
		uploader: uploader,
		logger:   logger,
		stopCh:   make(chan struct{}),
	}
}

// Start begins the export loop.
func (a *Archiver) Start(ctx context.Context) {
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()

		ticker := time.NewTicker(a.config.CheckInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-a.stopCh:
				return
			case <-ticker.C:
				if err := a.ExportDue(ctx); err != nil {
					a.logger.Warn("alert archive export failed", "error", err)
				}
			}
		}
	}()

	a.logger.Info("alert archiver started", "interval", a.config.CheckInterval)
}

// Stop halts the export loop.
func (a *Archiver) Stop() {
	close(a.stopCh)
	a.wg.Wait()
}

// ExportDue exports the most recent completed UTC day, if it hasn't been
// exported by this process yet.
func (a *Archiver) ExportDue(ctx context.Context) error {
	day := time.Now().UTC().Truncate(24 * time.Hour).Add(-24 * time.Hour)
	if !day.After(a.lastDay) {
		return nil
	}

	if err := a.ExportDay(ctx, day); err != nil {
		return err
	}

	a.lastDay = day
	return nil
}

// ExportDay exports one UTC day of alerts as a gzip JSON-lines object.
// A day with no alerts produces no object.
func (a *Archiver) ExportDay(ctx context.Context, day time.Time) error {
	day = day.UTC().Truncate(24 * time.Hour)
	from, to := day, day.Add(24*time.Hour)

	alerts, err := a.source.AlertsBetween(ctx, from, to)
	if err != nil {
		return fmt.Errorf("archive: read alerts: %w", err)
	}
	if len(alerts) == 0 {
		a.logger.Debug("no alerts to archive", "day", day.Format("2006-01-02"))
		return nil
	}

	body, err := encodeAlerts(alerts)
	if err != nil {
		return fmt.Errorf("archive: encode alerts: %w", err)
	}

	key := fmt.Sprintf("alerts/%s.jsonl.gz", day.Format("2006/01/02"))
	if err := a.uploader.Upload(ctx, key, body, "application/gzip"); err != nil {
		return fmt.Errorf("archive: upload %s: %w", key, err)
	}

	a.logger.Info("alert archive exported",
		"day", day.Format("2006-01-02"),
		"alerts", len(alerts),
		"key", key,
		"bytes", len(body),
	)
	return nil
}

// encodeAlerts serializes alerts as gzip-compressed JSON lines.
func encodeAlerts(alerts []*schema.FiredAlert) ([]byte, error) {
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	enc := json.NewEncoder(gz)

	for _, alert := range alerts {
		if err := enc.Encode(alert); err != nil {
			return nil, err
		}
	}
	if err := gz.Close(); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}
