// Package storage declares the ports every data backend implements.
// Backends live in the subpackages memory, sqlite and postgres; the
// backend factory picks one from configuration.
package storage

import (
	"context"

	"kakeibo/internal/core"
	"kakeibo/internal/ledger"
	"kakeibo/internal/summary"
)

// CategoryKind selects which category table a transaction listing is
// filtered on.
type CategoryKind string

const (
	KindExpenseCategory CategoryKind = "expense"
	KindWalletCategory  CategoryKind = "wallet"
	KindCreditCategory  CategoryKind = "credit"
)

func (k CategoryKind) IsValid() bool {
	return k == KindExpenseCategory || k == KindWalletCategory || k == KindCreditCategory
}

// CategoryStore manages the three category tables. Deleting a category
// that transactions still reference fails with a validation error.
type CategoryStore interface {
	ListExpenseCategories(ctx context.Context) ([]core.ExpenseCategory, error)
	CreateExpenseCategory(ctx context.Context, name string) (core.ExpenseCategory, error)
	DeleteExpenseCategory(ctx context.Context, id int64) error
	FindExpenseCategoryByName(ctx context.Context, name string) (core.ExpenseCategory, error)

	ListWalletCategories(ctx context.Context) ([]core.WalletCategory, error)
	CreateWalletCategory(ctx context.Context, name string, initialBalance int64) (core.WalletCategory, error)
	DeleteWalletCategory(ctx context.Context, id int64) error
	FindWalletCategoryByName(ctx context.Context, name string) (core.WalletCategory, error)

	// SetWalletBalance overwrites the balance with an absolute value, the
	// manual override used to reconcile against the real account.
	SetWalletBalance(ctx context.Context, id int64, balance int64) error

	ListCreditCategories(ctx context.Context) ([]core.CreditCategory, error)
	CreateCreditCategory(ctx context.Context, name string) (core.CreditCategory, error)
	DeleteCreditCategory(ctx context.Context, id int64) error
	FindCreditCategoryByName(ctx context.Context, name string) (core.CreditCategory, error)
}

// BudgetStore manages the monthly per-category budget amounts.
type BudgetStore interface {
	ListBudgets(ctx context.Context, year, month int) ([]core.MonthlyBudget, error)
	UpsertBudget(ctx context.Context, b core.MonthlyBudget) (core.MonthlyBudget, error)
}

// TransactionReader serves the read endpoints with rows joined to their
// category names.
type TransactionReader interface {
	GetDetail(ctx context.Context, id int64) (core.TransactionDetail, error)
	ListByDate(ctx context.Context, date core.Date) ([]core.TransactionDetail, error)
	ListByMonth(ctx context.Context, year, month int) ([]core.TransactionDetail, error)
	ListAll(ctx context.Context) ([]core.TransactionDetail, error)
	ListByCategory(ctx context.Context, year, month int, categoryID int64, kind CategoryKind) ([]core.TransactionDetail, error)
	ListByWallet(ctx context.Context, year, month int, walletID int64) ([]core.TransactionDetail, error)
}

// Dump is a full copy of every table, used by the backup endpoints and
// the snapshot worker.
type Dump struct {
	ExpenseCategories      []core.ExpenseCategory
	WalletCategories       []core.WalletCategory
	CreditCategories       []core.CreditCategory
	Transactions           []core.Transaction
	MonthlyBudgets         []core.MonthlyBudget
	MonthlyCreditSummaries []core.MonthlyCreditSummary
}

// Counts holds per-table row counts for the status endpoint.
type Counts struct {
	ExpenseCategories      int64
	WalletCategories       int64
	CreditCategories       int64
	Transactions           int64
	MonthlyBudgets         int64
	MonthlyCreditSummaries int64
}

// Store is the full backend surface: the transactional ledger port, the
// summary read model and the management interfaces.
type Store interface {
	ledger.Store
	summary.Reader
	CategoryStore
	BudgetStore
	TransactionReader

	ExportAll(ctx context.Context) (Dump, error)
	Counts(ctx context.Context) (Counts, error)
	Close() error
}
