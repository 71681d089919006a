// Package ledger implements the ledger-mutation engine: it validates
// transaction operations and applies their side effects on wallet
// balances and monthly credit-usage summaries, keeping both consistent
// across creates, updates and deletes.
package ledger

import (
	"context"
	"fmt"
	"log/slog"

	"kakeibo/internal/core"
)

// Engine applies ledger operations through a Store. Each logical
// operation (create, update, delete) is one storage transaction: either
// all rows and balance adjustments land, or none do.
type Engine struct {
	store Store
}

func New(store Store) *Engine {
	return &Engine{store: store}
}

// CreateRequest describes a transaction-creation request. Only the
// fields relevant to Kind are consulted.
type CreateRequest struct {
	Date   core.Date
	Amount core.Money
	Kind   core.TransactionKind

	// expense / income
	ExpenseCategoryID int64
	WalletCategoryID  int64
	CreditCategoryID  int64

	// transfer
	TransferFromWalletID int64
	TransferToWalletID   int64
	TransferWithdrawal   bool // destination is the withdrawal sentinel

	// charge
	ChargeFromCreditID int64
	ChargeFromWalletID int64
	ChargeToWalletID   int64

	// budget_transfer
	BudgetFromCategoryID int64
	BudgetToCategoryID   int64

	Description     string
	Memo            string
	PaymentLocation string
	Notes           string
}

// CreateResult reports the rows written by a create. PairID is the id of
// the second leg for paired kinds, 0 otherwise.
type CreateResult struct {
	ID     int64
	PairID int64
	Kind   core.TransactionKind
}

// UpdateRequest carries the full new state for an existing row.
type UpdateRequest struct {
	Date              core.Date
	Amount            core.Money
	Type              core.RowType
	ExpenseCategoryID int64
	WalletCategoryID  int64
	CreditCategoryID  int64
	Description       string
	Memo              string
	PaymentLocation   string
	Notes             string
}

// Create validates the request and writes the rows and side effects for
// the requested kind, per the effect table in the package tests.
func (e *Engine) Create(ctx context.Context, req CreateRequest) (CreateResult, error) {
	if err := validateCreate(req); err != nil {
		return CreateResult{}, err
	}

	var res CreateResult
	res.Kind = req.Kind
	err := e.store.WithinTx(ctx, func(tx Tx) error {
		var err error
		switch req.Kind {
		case core.KindExpense, core.KindIncome:
			res.ID, err = e.createSingle(ctx, tx, req)
		case core.KindTransfer:
			res.ID, res.PairID, err = e.createTransfer(ctx, tx, req)
		case core.KindCharge:
			res.ID, res.PairID, err = e.createCharge(ctx, tx, req)
		case core.KindBudgetTransfer:
			res.ID, res.PairID, err = e.createBudgetTransfer(ctx, tx, req)
		}
		return err
	})
	if err != nil {
		return CreateResult{}, err
	}

	slog.InfoContext(ctx, "Transaction created",
		"kind", string(req.Kind),
		"id", res.ID,
		"pair_id", res.PairID,
		"amount_cents", req.Amount.Cents)
	return res, nil
}

// Update reverses the stored row's effect, rewrites the row, then
// applies the new effect. Legs of a linked pair cannot be edited
// individually; delete the pair and re-create it instead.
func (e *Engine) Update(ctx context.Context, id int64, req UpdateRequest) error {
	return e.store.WithinTx(ctx, func(tx Tx) error {
		old, err := tx.GetTransaction(ctx, id)
		if err != nil {
			return err
		}
		if old.Origin.IsPaired() {
			return core.Validationf("transaction %d is one leg of a pair; delete the pair and re-create it", id)
		}

		updated := old
		updated.Date = req.Date
		updated.Amount = req.Amount
		updated.Type = req.Type
		updated.ExpenseCategoryID = req.ExpenseCategoryID
		updated.WalletCategoryID = req.WalletCategoryID
		updated.CreditCategoryID = req.CreditCategoryID
		updated.Description = req.Description
		updated.Memo = req.Memo
		updated.PaymentLocation = req.PaymentLocation
		updated.Notes = req.Notes
		if err := updated.Validate(); err != nil {
			return err
		}
		if old.Origin == core.OriginUserEntry {
			if err := validateUserEntryRefs(updated); err != nil {
				return err
			}
		}

		if err := e.applyEffect(ctx, tx, old, -1); err != nil {
			return fmt.Errorf("reverse previous effect: %w", err)
		}
		if err := tx.UpdateTransaction(ctx, updated); err != nil {
			return fmt.Errorf("update transaction: %w", err)
		}
		if err := e.applyEffect(ctx, tx, updated, +1); err != nil {
			return fmt.Errorf("apply new effect: %w", err)
		}
		return nil
	})
}

// Delete reverses the stored row's effect and removes it. When the row
// is one leg of a linked pair, both legs are reversed and removed in the
// same transaction.
func (e *Engine) Delete(ctx context.Context, id int64) error {
	return e.store.WithinTx(ctx, func(tx Tx) error {
		t, err := tx.GetTransaction(ctx, id)
		if err != nil {
			return err
		}

		rows := []core.Transaction{t}
		if t.LinkedID != 0 {
			partner, err := tx.GetTransaction(ctx, t.LinkedID)
			if err != nil {
				return fmt.Errorf("load linked transaction %d: %w", t.LinkedID, err)
			}
			rows = append(rows, partner)
		}

		for _, row := range rows {
			if err := e.applyEffect(ctx, tx, row, -1); err != nil {
				return fmt.Errorf("reverse transaction %d: %w", row.ID, err)
			}
			if err := tx.DeleteTransaction(ctx, row.ID); err != nil {
				return fmt.Errorf("delete transaction %d: %w", row.ID, err)
			}
		}
		return nil
	})
}

// CreateAdjustment records a manual budget correction against an expense
// category: positive delta adds remaining budget (income row), negative
// delta removes it (expense row). No wallet or credit effects.
func (e *Engine) CreateAdjustment(ctx context.Context, year, month int, categoryID, deltaCents int64, description string) (int64, error) {
	if categoryID == 0 {
		return 0, core.Validationf("adjustment category is required")
	}
	if deltaCents == 0 {
		return 0, core.Validationf("adjustment amount cannot be zero")
	}
	if month < 1 || month > 12 {
		return 0, core.Validationf("invalid month %d", month)
	}

	rowType := core.RowIncome
	amount := deltaCents
	if deltaCents < 0 {
		rowType = core.RowExpense
		amount = -deltaCents
	}
	if description == "" {
		description = "budget balance adjustment"
	}

	row := core.Transaction{
		Date:              core.NewDate(year, month, 1),
		Amount:            core.Money{Cents: amount},
		Type:              rowType,
		Origin:            core.OriginManualAdjustment,
		ExpenseCategoryID: categoryID,
		Description:       description,
		Notes:             "manual adjustment: " + core.FormatCents(deltaCents),
	}
	if err := row.Validate(); err != nil {
		return 0, err
	}

	var id int64
	err := e.store.WithinTx(ctx, func(tx Tx) error {
		var err error
		id, err = tx.InsertTransaction(ctx, row)
		return err
	})
	if err != nil {
		return 0, err
	}
	slog.InfoContext(ctx, "Budget adjustment recorded",
		"id", id, "category_id", categoryID, "delta_cents", deltaCents)
	return id, nil
}

// applyEffect applies (sign=+1) or reverses (sign=-1) the wallet-balance
// and credit-summary side effects of one stored row. This is the single
// source of truth for the effect table: expense decrements its wallet,
// income increments it, and credit-referencing expenses move the monthly
// credit summary.
func (e *Engine) applyEffect(ctx context.Context, tx Tx, t core.Transaction, sign int64) error {
	delta := sign * t.Amount.Cents

	if t.WalletCategoryID != 0 {
		walletDelta := delta
		if t.Type == core.RowExpense {
			walletDelta = -delta
		}
		if err := tx.AdjustWalletBalance(ctx, t.WalletCategoryID, walletDelta); err != nil {
			return fmt.Errorf("adjust wallet %d: %w", t.WalletCategoryID, err)
		}
	}

	if t.CreditCategoryID != 0 && t.Type == core.RowExpense {
		if err := tx.AddCreditUsage(ctx, t.Date.Year(), t.Date.Month(), t.CreditCategoryID, delta); err != nil {
			return fmt.Errorf("adjust credit summary %d: %w", t.CreditCategoryID, err)
		}
	}
	return nil
}

func (e *Engine) createSingle(ctx context.Context, tx Tx, req CreateRequest) (int64, error) {
	rowType := core.RowExpense
	if req.Kind == core.KindIncome {
		rowType = core.RowIncome
	}
	row := core.Transaction{
		Date:              req.Date,
		Amount:            req.Amount,
		Type:              rowType,
		Origin:            core.OriginUserEntry,
		ExpenseCategoryID: req.ExpenseCategoryID,
		WalletCategoryID:  req.WalletCategoryID,
		CreditCategoryID:  req.CreditCategoryID,
		Description:       req.Description,
		Memo:              req.Memo,
		PaymentLocation:   req.PaymentLocation,
		Notes:             req.Notes,
	}
	id, err := tx.InsertTransaction(ctx, row)
	if err != nil {
		return 0, fmt.Errorf("insert %s: %w", rowType, err)
	}
	row.ID = id
	if err := e.applyEffect(ctx, tx, row, +1); err != nil {
		return 0, err
	}
	return id, nil
}

func (e *Engine) createTransfer(ctx context.Context, tx Tx, req CreateRequest) (outID, inID int64, err error) {
	balance, err := tx.WalletBalance(ctx, req.TransferFromWalletID)
	if err != nil {
		return 0, 0, fmt.Errorf("load source wallet %d: %w", req.TransferFromWalletID, err)
	}
	if balance < req.Amount.Cents {
		return 0, 0, core.Validationf("insufficient balance in transfer source wallet")
	}

	desc := req.Description

	out := core.Transaction{
		Date:             req.Date,
		Amount:           req.Amount,
		Type:             core.RowExpense,
		Origin:           core.OriginTransferLeg,
		WalletCategoryID: req.TransferFromWalletID,
		Memo:             req.Memo,
		PaymentLocation:  req.PaymentLocation,
		Notes:            req.Notes,
	}
	if req.TransferWithdrawal {
		// Withdrawal sentinel: funds leave the tracked system, so only
		// the outbound leg exists and there is nothing to link.
		if desc == "" {
			desc = "withdrawal"
		}
		out.Description = "Withdrawal: " + desc
		outID, err = tx.InsertTransaction(ctx, out)
		if err != nil {
			return 0, 0, fmt.Errorf("insert withdrawal leg: %w", err)
		}
		out.ID = outID
		return outID, 0, e.applyEffect(ctx, tx, out, +1)
	}

	if desc == "" {
		desc = "wallet transfer"
	}
	out.Description = "Transfer out: " + desc
	in := core.Transaction{
		Date:             req.Date,
		Amount:           req.Amount,
		Type:             core.RowIncome,
		Origin:           core.OriginTransferLeg,
		WalletCategoryID: req.TransferToWalletID,
		Description:      "Transfer in: " + desc,
		Memo:             req.Memo,
		PaymentLocation:  req.PaymentLocation,
		Notes:            req.Notes,
	}
	return e.insertPair(ctx, tx, out, in)
}

func (e *Engine) createCharge(ctx context.Context, tx Tx, req CreateRequest) (sourceID, destID int64, err error) {
	desc := req.Description
	source := core.Transaction{
		Date:            req.Date,
		Amount:          req.Amount,
		Type:            core.RowExpense,
		Origin:          core.OriginChargeLeg,
		Memo:            req.Memo,
		PaymentLocation: req.PaymentLocation,
		Notes:           req.Notes,
	}
	if req.ChargeFromCreditID != 0 {
		if desc == "" {
			desc = "credit charge"
		}
		source.CreditCategoryID = req.ChargeFromCreditID
	} else {
		if desc == "" {
			desc = "wallet charge"
		}
		source.WalletCategoryID = req.ChargeFromWalletID
	}
	source.Description = "Charge: " + desc

	dest := core.Transaction{
		Date:             req.Date,
		Amount:           req.Amount,
		Type:             core.RowIncome,
		Origin:           core.OriginChargeLeg,
		WalletCategoryID: req.ChargeToWalletID,
		Description:      "Charge deposit: " + desc,
		Memo:             req.Memo,
		PaymentLocation:  req.PaymentLocation,
		Notes:            req.Notes,
	}
	return e.insertPair(ctx, tx, source, dest)
}

func (e *Engine) createBudgetTransfer(ctx context.Context, tx Tx, req CreateRequest) (outID, inID int64, err error) {
	remaining, err := tx.RemainingBudget(ctx, req.Date.Year(), req.Date.Month(), req.BudgetFromCategoryID)
	if err != nil {
		return 0, 0, fmt.Errorf("load remaining budget for category %d: %w", req.BudgetFromCategoryID, err)
	}
	if remaining < req.Amount.Cents {
		return 0, 0, core.Validationf("insufficient remaining budget in source category")
	}

	desc := req.Description
	if desc == "" {
		desc = "budget reallocation"
	}
	out := core.Transaction{
		Date:              req.Date,
		Amount:            req.Amount,
		Type:              core.RowExpense,
		Origin:            core.OriginBudgetTransferLeg,
		ExpenseCategoryID: req.BudgetFromCategoryID,
		Description:       "Budget transfer out: " + desc,
		Memo:              req.Memo,
		PaymentLocation:   req.PaymentLocation,
		Notes:             req.Notes,
	}
	in := core.Transaction{
		Date:              req.Date,
		Amount:            req.Amount,
		Type:              core.RowIncome,
		Origin:            core.OriginBudgetTransferLeg,
		ExpenseCategoryID: req.BudgetToCategoryID,
		Description:       "Budget transfer in: " + desc,
		Memo:              req.Memo,
		PaymentLocation:   req.PaymentLocation,
		Notes:             req.Notes,
	}
	return e.insertPair(ctx, tx, out, in)
}

// insertPair writes both legs, links them to each other and applies both
// effects. Budget-transfer legs carry no wallet or credit reference, so
// applyEffect is a no-op for them.
func (e *Engine) insertPair(ctx context.Context, tx Tx, first, second core.Transaction) (firstID, secondID int64, err error) {
	firstID, err = tx.InsertTransaction(ctx, first)
	if err != nil {
		return 0, 0, fmt.Errorf("insert first leg: %w", err)
	}
	secondID, err = tx.InsertTransaction(ctx, second)
	if err != nil {
		return 0, 0, fmt.Errorf("insert second leg: %w", err)
	}
	if err = tx.SetLink(ctx, firstID, secondID); err != nil {
		return 0, 0, fmt.Errorf("link legs: %w", err)
	}
	if err = tx.SetLink(ctx, secondID, firstID); err != nil {
		return 0, 0, fmt.Errorf("link legs: %w", err)
	}

	first.ID = firstID
	if err = e.applyEffect(ctx, tx, first, +1); err != nil {
		return 0, 0, err
	}
	second.ID = secondID
	if err = e.applyEffect(ctx, tx, second, +1); err != nil {
		return 0, 0, err
	}
	return firstID, secondID, nil
}

// validateUserEntryRefs enforces the per-type reference rules on rows a
// person entered directly, mirroring the create-time rules for expense
// and income.
func validateUserEntryRefs(t core.Transaction) error {
	switch t.Type {
	case core.RowExpense:
		if (t.WalletCategoryID == 0) == (t.CreditCategoryID == 0) {
			return core.Validationf("an expense must reference exactly one of wallet or credit card")
		}
	case core.RowIncome:
		if t.WalletCategoryID == 0 {
			return core.Validationf("an income must reference a wallet")
		}
		if t.CreditCategoryID != 0 {
			return core.Validationf("an income cannot reference a credit card")
		}
	}
	return nil
}

func validateCreate(req CreateRequest) error {
	if !req.Kind.IsValid() {
		return core.Validationf("invalid transaction type %q", req.Kind)
	}
	if err := req.Date.Validate(); err != nil {
		return err
	}
	if err := req.Amount.Validate(); err != nil {
		return err
	}

	switch req.Kind {
	case core.KindExpense:
		if (req.WalletCategoryID == 0) == (req.CreditCategoryID == 0) {
			return core.Validationf("an expense must reference exactly one of wallet or credit card")
		}
	case core.KindIncome:
		if req.WalletCategoryID == 0 {
			return core.Validationf("an income must reference a wallet")
		}
		if req.CreditCategoryID != 0 {
			return core.Validationf("an income cannot reference a credit card")
		}
	case core.KindTransfer:
		if req.TransferFromWalletID == 0 {
			return core.Validationf("transfer source wallet is required")
		}
		if !req.TransferWithdrawal {
			if req.TransferToWalletID == 0 {
				return core.Validationf("transfer destination wallet is required")
			}
			if req.TransferFromWalletID == req.TransferToWalletID {
				return core.Validationf("transfer source and destination are the same wallet")
			}
		}
	case core.KindCharge:
		if req.ChargeToWalletID == 0 {
			return core.Validationf("charge destination wallet is required")
		}
		if (req.ChargeFromCreditID == 0) == (req.ChargeFromWalletID == 0) {
			return core.Validationf("a charge must come from exactly one of credit card or wallet")
		}
		if req.ChargeFromWalletID != 0 && req.ChargeFromWalletID == req.ChargeToWalletID {
			return core.Validationf("charge source and destination are the same wallet")
		}
	case core.KindBudgetTransfer:
		if req.BudgetFromCategoryID == 0 || req.BudgetToCategoryID == 0 {
			return core.Validationf("budget transfer source and destination categories are required")
		}
		if req.BudgetFromCategoryID == req.BudgetToCategoryID {
			return core.Validationf("budget transfer source and destination are the same category")
		}
	}
	return nil
}
