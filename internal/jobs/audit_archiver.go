// audit_archiver.go implements the AuditArchiver background job, which moves
// audit log rows past the retention window from the hot table into cold
// storage as gzipped JSONL objects.
package jobs

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/backoffice-platform/backoffice/internal/archive"
	"github.com/backoffice-platform/backoffice/internal/db/models"
	"github.com/backoffice-platform/backoffice/internal/db/repositories"
	"github.com/backoffice-platform/backoffice/internal/telemetry"
)

// archiveBatchSize bounds how many rows a single export transaction touches.
// Rows are selected FOR UPDATE SKIP LOCKED, so concurrent runs (e.g. the
// background job and the archive-audit subcommand) never export the same row twice.
const archiveBatchSize = 1000

// AuditArchiver periodically exports expired audit rows to an archive sink
// and deletes them from the hot table in the same transaction.
type AuditArchiver struct {
	db            *sqlx.DB
	audits        *repositories.AuditRepository
	sink          archive.Sink
	backend       string
	retentionDays int
	interval      time.Duration
	stopChan      chan struct{}
}

// NewAuditArchiver creates a new audit archiver job. intervalHours <= 0 means
// the caller only intends to invoke RunOnce and never Start.
func NewAuditArchiver(db *sqlx.DB, audits *repositories.AuditRepository, sink archive.Sink, backend string, retentionDays, intervalHours int) *AuditArchiver {
	if retentionDays <= 0 {
		retentionDays = 90
	}

	return &AuditArchiver{
		db:            db,
		audits:        audits,
		sink:          sink,
		backend:       backend,
		retentionDays: retentionDays,
		interval:      time.Duration(intervalHours) * time.Hour,
		stopChan:      make(chan struct{}),
	}
}

// Start begins the periodic archive loop
func (a *AuditArchiver) Start(ctx context.Context) {
	if a.interval <= 0 {
		slog.Info("audit archiver disabled (no interval configured)")
		return
	}

	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	slog.Info("audit archiver started", "interval", a.interval, "retention_days", a.retentionDays)

	// Run immediately on start
	if _, err := a.RunOnce(ctx); err != nil {
		slog.Error("audit archive run failed", "error", err)
	}

	for {
		select {
		case <-ticker.C:
			if _, err := a.RunOnce(ctx); err != nil {
				slog.Error("audit archive run failed", "error", err)
			}
		case <-a.stopChan:
			slog.Info("audit archiver stopped")
			return
		case <-ctx.Done():
			slog.Info("audit archiver context cancelled")
			return
		}
	}
}

// Stop stops the archive loop
func (a *AuditArchiver) Stop() {
	close(a.stopChan)
}

// RunOnce drains all rows older than the retention cutoff in batches and
// returns the total number of rows archived. Each batch is exported and
// deleted inside one transaction: if the sink write fails, the rows stay in
// the hot table and are retried on the next run.
func (a *AuditArchiver) RunOnce(ctx context.Context) (int64, error) {
	cutoff := time.Now().UTC().AddDate(0, 0, -a.retentionDays)

	var total int64
	for {
		n, err := a.archiveBatch(ctx, cutoff)
		if err != nil {
			return total, err
		}
		total += n
		if n < archiveBatchSize {
			break
		}
	}

	if total > 0 {
		slog.Info("audit archive run completed", "rows", total, "cutoff", cutoff, "backend", a.backend)
	}
	return total, nil
}

func (a *AuditArchiver) archiveBatch(ctx context.Context, cutoff time.Time) (int64, error) {
	tx, err := a.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin archive transaction: %w", err)
	}
	defer tx.Rollback()

	rows, err := a.audits.SelectOlderThanTx(ctx, tx, cutoff, archiveBatchSize)
	if err != nil {
		return 0, fmt.Errorf("failed to select expired audit rows: %w", err)
	}
	if len(rows) == 0 {
		return 0, nil
	}

	payload, err := encodeArchive(rows)
	if err != nil {
		return 0, err
	}

	key := archiveKey(rows[0].Timestamp, time.Now().UTC())
	if err := a.sink.Put(ctx, key, payload); err != nil {
		return 0, fmt.Errorf("failed to store archive object %s: %w", key, err)
	}

	ids := make([]string, len(rows))
	for i, row := range rows {
		ids[i] = row.ID
	}
	deleted, err := a.audits.DeleteByIDsTx(ctx, tx, ids)
	if err != nil {
		return 0, fmt.Errorf("failed to delete archived audit rows: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit archive transaction: %w", err)
	}

	telemetry.AuditArchivedRowsTotal.WithLabelValues(a.backend).Add(float64(deleted))
	return deleted, nil
}

// encodeArchive serializes audit rows as gzipped JSONL, one row per line
func encodeArchive(rows []*models.AuditLog) ([]byte, error) {
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	enc := json.NewEncoder(gz)
	for _, row := range rows {
		if err := enc.Encode(row); err != nil {
			gz.Close()
			return nil, fmt.Errorf("failed to encode audit row: %w", err)
		}
	}
	if err := gz.Close(); err != nil {
		return nil, fmt.Errorf("failed to finalize archive payload: %w", err)
	}
	return buf.Bytes(), nil
}

// archiveKey names an archive object after the oldest row it contains,
// partitioned by date so sinks with flat namespaces stay browsable.
func archiveKey(oldest, now time.Time) string {
	return fmt.Sprintf("%s/audit-%s.jsonl.gz",
		oldest.UTC().Format("2006/01/02"),
		now.Format("20060102T150405Z"))
}
