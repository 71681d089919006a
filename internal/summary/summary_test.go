package summary_test

import (
	"context"
	"testing"

	"kakeibo/internal/core"
	"kakeibo/internal/ledger"
	"kakeibo/internal/storage/memory"
	"kakeibo/internal/summary"
)

func seed(t *testing.T) (*memory.Store, *summary.Service, context.Context) {
	t.Helper()
	ctx := context.Background()
	store := memory.New()
	engine := ledger.New(store)

	groceries, err := store.CreateExpenseCategory(ctx, "Groceries")
	if err != nil {
		t.Fatal(err)
	}
	dining, err := store.CreateExpenseCategory(ctx, "Dining")
	if err != nil {
		t.Fatal(err)
	}
	wallet, err := store.CreateWalletCategory(ctx, "Checking", 500_000)
	if err != nil {
		t.Fatal(err)
	}
	card, err := store.CreateCreditCategory(ctx, "Visa")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := store.UpsertBudget(ctx, core.MonthlyBudget{Year: 2024, Month: 3, ExpenseCategoryID: groceries.ID, BudgetAmount: 40_000}); err != nil {
		t.Fatal(err)
	}

	create := func(req ledger.CreateRequest) {
		t.Helper()
		if _, err := engine.Create(ctx, req); err != nil {
			t.Fatal(err)
		}
	}
	// March: two wallet expenses, one credit expense, one income.
	create(ledger.CreateRequest{Date: core.NewDate(2024, 3, 5), Amount: core.Money{Cents: 12_000}, Kind: core.KindExpense, ExpenseCategoryID: groceries.ID, WalletCategoryID: wallet.ID})
	create(ledger.CreateRequest{Date: core.NewDate(2024, 3, 9), Amount: core.Money{Cents: 8_000}, Kind: core.KindExpense, ExpenseCategoryID: dining.ID, WalletCategoryID: wallet.ID})
	create(ledger.CreateRequest{Date: core.NewDate(2024, 3, 15), Amount: core.Money{Cents: 6_000}, Kind: core.KindExpense, ExpenseCategoryID: groceries.ID, CreditCategoryID: card.ID})
	create(ledger.CreateRequest{Date: core.NewDate(2024, 3, 25), Amount: core.Money{Cents: 300_000}, Kind: core.KindIncome, WalletCategoryID: wallet.ID})
	// A withdrawal: must show up in budget consumption queries but not in stats.
	create(ledger.CreateRequest{Date: core.NewDate(2024, 3, 26), Amount: core.Money{Cents: 10_000}, Kind: core.KindTransfer, TransferFromWalletID: wallet.ID, TransferWithdrawal: true})
	// February noise to prove period filtering.
	create(ledger.CreateRequest{Date: core.NewDate(2024, 2, 1), Amount: core.Money{Cents: 9_999}, Kind: core.KindExpense, ExpenseCategoryID: groceries.ID, WalletCategoryID: wallet.ID})

	return store, summary.NewService(store), ctx
}

func TestMonthlySummary(t *testing.T) {
	_, svc, ctx := seed(t)

	got, err := svc.MonthlySummary(ctx, 2024, 3)
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	if len(got.Categories) != 2 {
		t.Fatalf("expected every expense category listed, got %d", len(got.Categories))
	}

	byName := map[string]int{}
	for i, line := range got.Categories {
		byName[line.CategoryName] = i
	}
	groceries := got.Categories[byName["Groceries"]]
	if groceries.Budget != 40_000 {
		t.Fatalf("groceries budget = %d", groceries.Budget)
	}
	if groceries.Spent != 18_000 { // 12000 wallet + 6000 credit
		t.Fatalf("groceries spent = %d, want 18000", groceries.Spent)
	}
	if groceries.Remaining != 22_000 {
		t.Fatalf("groceries remaining = %d, want 22000", groceries.Remaining)
	}
	dining := got.Categories[byName["Dining"]]
	if dining.Budget != 0 || dining.Spent != 8_000 || dining.Remaining != -8_000 {
		t.Fatalf("dining line = %+v", dining)
	}

	if got.TotalBudget != 40_000 || got.TotalSpent != 26_000 || got.TotalRemaining != 14_000 {
		t.Fatalf("totals = %d/%d/%d", got.TotalBudget, got.TotalSpent, got.TotalRemaining)
	}

	if len(got.Credits) != 1 || got.Credits[0].TotalAmount != 6_000 {
		t.Fatalf("credits = %+v", got.Credits)
	}
	if got.Credits[0].CreditCategoryName != "Visa" {
		t.Fatalf("credit name = %q", got.Credits[0].CreditCategoryName)
	}
}

func TestStatsMonthExcludesInternalMovements(t *testing.T) {
	_, svc, ctx := seed(t)

	got, err := svc.Stats(ctx, 2024, 3)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if got.TotalExpense != 26_000 { // withdrawal leg excluded
		t.Fatalf("total expense = %d, want 26000", got.TotalExpense)
	}
	if got.TotalIncome != 300_000 {
		t.Fatalf("total income = %d, want 300000", got.TotalIncome)
	}
	if got.Net != 274_000 {
		t.Fatalf("net = %d, want 274000", got.Net)
	}
	if len(got.Wallets) != 1 {
		t.Fatalf("wallets = %+v", got.Wallets)
	}
	if got.Wallets[0].Expense != 20_000 { // credit expense has no wallet
		t.Fatalf("wallet expense = %d, want 20000", got.Wallets[0].Expense)
	}
}

func TestStatsYearAggregates(t *testing.T) {
	_, svc, ctx := seed(t)

	got, err := svc.Stats(ctx, 2024, 0)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if got.TotalExpense != 35_999 { // March 26000 + February 9999
		t.Fatalf("total expense = %d, want 35999", got.TotalExpense)
	}
}

func TestPeriodValidation(t *testing.T) {
	_, svc, ctx := seed(t)

	if _, err := svc.MonthlySummary(ctx, 2024, 13); !core.IsValidation(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if _, err := svc.MonthlySummary(ctx, 2024, 0); !core.IsValidation(err) {
		t.Fatalf("summary requires a month, got %v", err)
	}
	if _, err := svc.Stats(ctx, 0, 1); !core.IsValidation(err) {
		t.Fatalf("expected validation error for year 0, got %v", err)
	}
}
