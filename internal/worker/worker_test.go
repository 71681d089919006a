package worker

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"kakeibo/internal/amqp"
	"kakeibo/internal/core"
	"kakeibo/internal/ledger"
	"kakeibo/internal/storage"
	"kakeibo/internal/storage/memory"
)

type fakeExporter struct {
	rows []core.TransactionDetail
	err  error
}

func (f *fakeExporter) AppendTransaction(ctx context.Context, d core.TransactionDetail) error {
	if f.err != nil {
		return f.err
	}
	f.rows = append(f.rows, d)
	return nil
}

func seededStore(t *testing.T) (*memory.Store, int64) {
	t.Helper()
	ctx := context.Background()
	store := memory.New()
	cat, err := store.CreateExpenseCategory(ctx, "Groceries")
	if err != nil {
		t.Fatal(err)
	}
	wallet, err := store.CreateWalletCategory(ctx, "Checking", 10_000)
	if err != nil {
		t.Fatal(err)
	}
	res, err := ledger.New(store).Create(ctx, ledger.CreateRequest{
		Date:              core.NewDate(2024, 3, 1),
		Amount:            core.Money{Cents: 1500},
		Kind:              core.KindExpense,
		ExpenseCategoryID: cat.ID,
		WalletCategoryID:  wallet.ID,
		Description:       "weekly shop",
	})
	if err != nil {
		t.Fatal(err)
	}
	return store, res.ID
}

func TestHandleEventMirrorsRow(t *testing.T) {
	store, id := seededStore(t)
	exporter := &fakeExporter{}
	w := New(store, nil, exporter, Config{})

	msg := &amqp.TransactionEventMessage{ID: id, Action: amqp.ActionCreated}
	if err := w.handleEvent(context.Background(), msg); err != nil {
		t.Fatalf("handleEvent: %v", err)
	}
	if len(exporter.rows) != 1 || exporter.rows[0].Description != "weekly shop" {
		t.Fatalf("rows = %+v", exporter.rows)
	}
}

func TestHandleEventSkipsDeletedAndVanished(t *testing.T) {
	store, _ := seededStore(t)
	exporter := &fakeExporter{}
	w := New(store, nil, exporter, Config{})
	ctx := context.Background()

	if err := w.handleEvent(ctx, &amqp.TransactionEventMessage{ID: 1, Action: amqp.ActionDeleted}); err != nil {
		t.Fatalf("deleted event must be a no-op: %v", err)
	}
	if err := w.handleEvent(ctx, &amqp.TransactionEventMessage{ID: 9999, Action: amqp.ActionCreated}); err != nil {
		t.Fatalf("vanished row must not error: %v", err)
	}
	if len(exporter.rows) != 0 {
		t.Fatalf("nothing should be mirrored, got %d rows", len(exporter.rows))
	}
}

func TestHandleEventExporterFailurePropagates(t *testing.T) {
	store, id := seededStore(t)
	exporter := &fakeExporter{err: errors.New("quota exceeded")}
	w := New(store, nil, exporter, Config{})

	err := w.handleEvent(context.Background(), &amqp.TransactionEventMessage{ID: id, Action: amqp.ActionCreated})
	if err == nil {
		t.Fatal("exporter failure must propagate so the message is requeued")
	}
}

func TestWriteSnapshot(t *testing.T) {
	store, _ := seededStore(t)
	dir := t.TempDir()
	w := New(store, nil, nil, Config{BackupDir: dir})

	if err := w.WriteSnapshot(context.Background()); err != nil {
		t.Fatalf("WriteSnapshot: %v", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected one snapshot file, got %d", len(entries))
	}

	payload, err := os.ReadFile(filepath.Join(dir, entries[0].Name()))
	if err != nil {
		t.Fatal(err)
	}
	var dump storage.Dump
	if err := json.Unmarshal(payload, &dump); err != nil {
		t.Fatalf("snapshot is not valid JSON: %v", err)
	}
	if len(dump.Transactions) != 1 || len(dump.ExpenseCategories) != 1 {
		t.Fatalf("unexpected snapshot contents: %+v", dump)
	}
}
