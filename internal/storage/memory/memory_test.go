package memory

import (
	"context"
	"errors"
	"testing"

	"kakeibo/internal/core"
	"kakeibo/internal/ledger"
)

func TestWithinTxRollsBackOnError(t *testing.T) {
	ctx := context.Background()
	s := New()
	w, err := s.CreateWalletCategory(ctx, "Checking", 1000)
	if err != nil {
		t.Fatal(err)
	}

	boom := errors.New("boom")
	err = s.WithinTx(ctx, func(tx ledger.Tx) error {
		if _, err := tx.InsertTransaction(ctx, core.Transaction{
			Date:             core.NewDate(2024, 1, 1),
			Amount:           core.Money{Cents: 100},
			Type:             core.RowExpense,
			Origin:           core.OriginUserEntry,
			WalletCategoryID: w.ID,
		}); err != nil {
			return err
		}
		if err := tx.AdjustWalletBalance(ctx, w.ID, -100); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}

	all, err := s.ListAll(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 0 {
		t.Fatalf("rolled-back insert still visible, %d rows", len(all))
	}
	wallets, err := s.ListWalletCategories(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if wallets[0].Balance != 1000 {
		t.Fatalf("rolled-back balance adjustment still visible: %d", wallets[0].Balance)
	}
}

func TestCategoryNameUniqueness(t *testing.T) {
	ctx := context.Background()
	s := New()
	if _, err := s.CreateExpenseCategory(ctx, "Groceries"); err != nil {
		t.Fatal(err)
	}
	if _, err := s.CreateExpenseCategory(ctx, "groceries"); !core.IsValidation(err) {
		t.Fatalf("expected validation error for duplicate name, got %v", err)
	}
}

func TestDeleteReferencedCategoryRejected(t *testing.T) {
	ctx := context.Background()
	s := New()
	cat, err := s.CreateExpenseCategory(ctx, "Groceries")
	if err != nil {
		t.Fatal(err)
	}
	err = s.WithinTx(ctx, func(tx ledger.Tx) error {
		_, err := tx.InsertTransaction(ctx, core.Transaction{
			Date:              core.NewDate(2024, 1, 1),
			Amount:            core.Money{Cents: 100},
			Type:              core.RowExpense,
			Origin:            core.OriginUserEntry,
			ExpenseCategoryID: cat.ID,
		})
		return err
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := s.DeleteExpenseCategory(ctx, cat.ID); !core.IsValidation(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestUpsertBudgetOverwrites(t *testing.T) {
	ctx := context.Background()
	s := New()
	cat, err := s.CreateExpenseCategory(ctx, "Groceries")
	if err != nil {
		t.Fatal(err)
	}

	first, err := s.UpsertBudget(ctx, core.MonthlyBudget{Year: 2024, Month: 3, ExpenseCategoryID: cat.ID, BudgetAmount: 10_000})
	if err != nil {
		t.Fatal(err)
	}
	second, err := s.UpsertBudget(ctx, core.MonthlyBudget{Year: 2024, Month: 3, ExpenseCategoryID: cat.ID, BudgetAmount: 20_000})
	if err != nil {
		t.Fatal(err)
	}
	if first.ID != second.ID {
		t.Fatalf("upsert created a second row: %d vs %d", first.ID, second.ID)
	}

	budgets, err := s.ListBudgets(ctx, 2024, 3)
	if err != nil {
		t.Fatal(err)
	}
	if len(budgets) != 1 || budgets[0].BudgetAmount != 20_000 {
		t.Fatalf("unexpected budgets: %+v", budgets)
	}

	if _, err := s.UpsertBudget(ctx, core.MonthlyBudget{Year: 2024, Month: 3, ExpenseCategoryID: 999, BudgetAmount: 1}); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown category, got %v", err)
	}
}

func TestExportAllAndCounts(t *testing.T) {
	ctx := context.Background()
	s := New()
	cat, _ := s.CreateExpenseCategory(ctx, "Groceries")
	w, _ := s.CreateWalletCategory(ctx, "Cash", 500)
	if err := s.WithinTx(ctx, func(tx ledger.Tx) error {
		_, err := tx.InsertTransaction(ctx, core.Transaction{
			Date:              core.NewDate(2024, 1, 2),
			Amount:            core.Money{Cents: 100},
			Type:              core.RowExpense,
			Origin:            core.OriginUserEntry,
			ExpenseCategoryID: cat.ID,
			WalletCategoryID:  w.ID,
		})
		return err
	}); err != nil {
		t.Fatal(err)
	}

	dump, err := s.ExportAll(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(dump.ExpenseCategories) != 1 || len(dump.WalletCategories) != 1 || len(dump.Transactions) != 1 {
		t.Fatalf("unexpected dump: %+v", dump)
	}

	counts, err := s.Counts(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if counts.Transactions != 1 || counts.ExpenseCategories != 1 || counts.WalletCategories != 1 {
		t.Fatalf("unexpected counts: %+v", counts)
	}
}
