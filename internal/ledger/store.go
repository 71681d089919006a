package ledger

import (
	"context"

	"kakeibo/internal/core"
)

// Ports for the storage backends. Every logical ledger operation runs
// inside a single WithinTx call; the backend commits when fn returns nil
// and rolls back otherwise.
type (
	Store interface {
		WithinTx(ctx context.Context, fn func(tx Tx) error) error
	}

	Tx interface {
		// InsertTransaction stores a new row and returns its id.
		InsertTransaction(ctx context.Context, t core.Transaction) (int64, error)

		// GetTransaction returns core.ErrNotFound for unknown ids.
		GetTransaction(ctx context.Context, id int64) (core.Transaction, error)

		// UpdateTransaction rewrites all mutable fields of the row.
		UpdateTransaction(ctx context.Context, t core.Transaction) error

		DeleteTransaction(ctx context.Context, id int64) error

		// SetLink records the partner leg of a pair on an existing row.
		SetLink(ctx context.Context, id, linkedID int64) error

		// WalletBalance returns core.ErrNotFound for unknown wallets.
		WalletBalance(ctx context.Context, walletID int64) (int64, error)

		// AdjustWalletBalance applies a relative balance update
		// (UPDATE ... SET balance = balance + delta). Returns
		// core.ErrNotFound when the wallet does not exist.
		AdjustWalletBalance(ctx context.Context, walletID, delta int64) error

		// AddCreditUsage upserts the monthly credit summary row, seeding
		// it at delta on first insert.
		AddCreditUsage(ctx context.Context, year, month int, creditID, delta int64) error

		// RemainingBudget computes budget_amount minus the net expense
		// (expense − income) recorded against the category that month.
		RemainingBudget(ctx context.Context, year, month int, categoryID int64) (int64, error)
	}
)
