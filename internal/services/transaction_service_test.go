package services_test

import (
	"context"
	"errors"
	"testing"

	"kakeibo/internal/core"
	"kakeibo/internal/ledger"
	"kakeibo/internal/services"
	"kakeibo/internal/storage/memory"
)

type recordingPublisher struct {
	events []string
	err    error
}

func (p *recordingPublisher) PublishTransactionEvent(ctx context.Context, id int64, action string) error {
	p.events = append(p.events, action)
	return p.err
}

func setup(t *testing.T) (*services.TransactionService, *recordingPublisher, ledger.CreateRequest) {
	t.Helper()
	ctx := context.Background()
	store := memory.New()
	wallet, err := store.CreateWalletCategory(ctx, "Checking", 100_000)
	if err != nil {
		t.Fatal(err)
	}
	cat, err := store.CreateExpenseCategory(ctx, "Groceries")
	if err != nil {
		t.Fatal(err)
	}

	pub := &recordingPublisher{}
	svc := services.NewTransactionService(ledger.New(store), pub)
	req := ledger.CreateRequest{
		Date:              core.NewDate(2024, 3, 1),
		Amount:            core.Money{Cents: 1000},
		Kind:              core.KindExpense,
		ExpenseCategoryID: cat.ID,
		WalletCategoryID:  wallet.ID,
	}
	return svc, pub, req
}

func TestCreatePublishesEvent(t *testing.T) {
	svc, pub, req := setup(t)
	if _, err := svc.Create(context.Background(), req); err != nil {
		t.Fatalf("create: %v", err)
	}
	if len(pub.events) != 1 || pub.events[0] != "created" {
		t.Fatalf("events = %v", pub.events)
	}
}

func TestFailedPublishDoesNotFailRequest(t *testing.T) {
	svc, pub, req := setup(t)
	pub.err = errors.New("broker down")
	if _, err := svc.Create(context.Background(), req); err != nil {
		t.Fatalf("create must succeed despite publish failure: %v", err)
	}
}

func TestRejectedCreatePublishesNothing(t *testing.T) {
	svc, pub, req := setup(t)
	req.Amount = core.Money{}
	if _, err := svc.Create(context.Background(), req); !core.IsValidation(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if len(pub.events) != 0 {
		t.Fatalf("no events expected, got %v", pub.events)
	}
}

func TestDeletePublishesEvent(t *testing.T) {
	svc, pub, req := setup(t)
	res, err := svc.Create(context.Background(), req)
	if err != nil {
		t.Fatal(err)
	}
	if err := svc.Delete(context.Background(), res.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if pub.events[len(pub.events)-1] != "deleted" {
		t.Fatalf("events = %v", pub.events)
	}
}
