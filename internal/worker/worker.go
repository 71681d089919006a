// Package worker runs the background consumer: it mirrors transaction
// events into Google Sheets and writes periodic JSON snapshots of the
// whole database.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sync/errgroup"

	"kakeibo/internal/amqp"
	"kakeibo/internal/core"
	"kakeibo/internal/storage"
)

// TransactionExporter mirrors one row to an external sheet.
// *export.SheetsExporter satisfies it.
type TransactionExporter interface {
	AppendTransaction(ctx context.Context, d core.TransactionDetail) error
}

// EventConsumer delivers queued transaction events. *amqp.Client
// satisfies it.
type EventConsumer interface {
	ConsumeTransactionEvents(ctx context.Context, handler func(*amqp.TransactionEventMessage) error) error
}

type Config struct {
	BackupDir      string
	BackupInterval time.Duration
}

type Worker struct {
	store    storage.Store
	consumer EventConsumer       // nil disables event handling
	exporter TransactionExporter // nil disables sheet mirroring
	cfg      Config
}

func New(store storage.Store, consumer EventConsumer, exporter TransactionExporter, cfg Config) *Worker {
	if cfg.BackupInterval == 0 {
		cfg.BackupInterval = 6 * time.Hour
	}
	return &Worker{store: store, consumer: consumer, exporter: exporter, cfg: cfg}
}

// Run blocks until ctx is cancelled. Cancellation is a clean shutdown,
// not an error.
func (w *Worker) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	if w.consumer != nil {
		g.Go(func() error {
			return w.consumer.ConsumeTransactionEvents(ctx, func(msg *amqp.TransactionEventMessage) error {
				return w.handleEvent(ctx, msg)
			})
		})
	}
	if w.cfg.BackupDir != "" {
		g.Go(func() error { return w.snapshotLoop(ctx) })
	}

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (w *Worker) handleEvent(ctx context.Context, msg *amqp.TransactionEventMessage) error {
	if msg.Action == amqp.ActionDeleted {
		slog.InfoContext(ctx, "Transaction deleted, nothing to mirror", "id", msg.ID)
		return nil
	}
	if w.exporter == nil {
		return nil
	}

	detail, err := w.store.GetDetail(ctx, msg.ID)
	if errors.Is(err, core.ErrNotFound) {
		// The row can be gone by the time we process the event.
		slog.WarnContext(ctx, "Transaction vanished before export", "id", msg.ID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("load transaction %d: %w", msg.ID, err)
	}

	if err := w.exporter.AppendTransaction(ctx, detail); err != nil {
		return fmt.Errorf("mirror transaction %d: %w", msg.ID, err)
	}
	slog.InfoContext(ctx, "Mirrored transaction to sheet", "id", msg.ID, "action", msg.Action)
	return nil
}

func (w *Worker) snapshotLoop(ctx context.Context) error {
	if err := w.WriteSnapshot(ctx); err != nil {
		slog.ErrorContext(ctx, "Initial snapshot failed", "error", err)
	}

	ticker := time.NewTicker(w.cfg.BackupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := w.WriteSnapshot(ctx); err != nil {
				slog.ErrorContext(ctx, "Snapshot failed", "error", err)
			}
		}
	}
}

// WriteSnapshot dumps every table to a timestamped JSON file.
func (w *Worker) WriteSnapshot(ctx context.Context) error {
	dump, err := w.store.ExportAll(ctx)
	if err != nil {
		return fmt.Errorf("export data: %w", err)
	}

	if err := os.MkdirAll(w.cfg.BackupDir, 0o755); err != nil {
		return fmt.Errorf("create backup directory: %w", err)
	}

	payload, err := json.MarshalIndent(dump, "", "  ")
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}

	name := fmt.Sprintf("kakeibo-%s.json", time.Now().UTC().Format("20060102-150405"))
	path := filepath.Join(w.cfg.BackupDir, name)
	if err := os.WriteFile(path, payload, 0o644); err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}

	slog.InfoContext(ctx, "Wrote snapshot",
		"path", path,
		"transactions", len(dump.Transactions))
	return nil
}
