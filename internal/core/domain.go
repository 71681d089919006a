package core

import (
	"strings"
	"time"
)

const (
	KindExpense        TransactionKind = "expense"
	KindIncome         TransactionKind = "income"
	KindTransfer       TransactionKind = "transfer"
	KindCharge         TransactionKind = "charge"
	KindBudgetTransfer TransactionKind = "budget_transfer"
)

const (
	RowExpense RowType = "expense"
	RowIncome  RowType = "income"
)

const (
	OriginUserEntry         Origin = "user_entry"
	OriginTransferLeg       Origin = "transfer_leg"
	OriginChargeLeg         Origin = "charge_leg"
	OriginBudgetTransferLeg Origin = "budget_transfer_leg"
	OriginManualAdjustment  Origin = "manual_adjustment"
)

type (
	// TransactionKind is the logical operation requested by the caller.
	// transfer, charge and budget_transfer are stored as linked pairs of
	// expense/income rows rather than as first-class rows.
	TransactionKind string

	// RowType is the type actually stored on a transaction row.
	RowType string

	// Origin records how a row came to exist. Statistics filter on it
	// instead of matching description text.
	Origin string

	Date struct {
		time.Time
	}

	Money struct {
		Cents int64
	}

	ExpenseCategory struct {
		ID        int64
		Name      string
		CreatedAt time.Time
	}

	// WalletCategory is a balance-bearing category (bank account, cash
	// envelope, prepaid card). Balance is maintained by the ledger engine;
	// the only other writer is the manual override endpoint.
	WalletCategory struct {
		ID        int64
		Name      string
		Balance   int64 // minor units, signed
		CreatedAt time.Time
	}

	CreditCategory struct {
		ID        int64
		Name      string
		CreatedAt time.Time
	}

	// Transaction is a stored ledger row. Category references use 0 for
	// "not set". LinkedID points at the partner leg of a transfer, charge
	// or budget-transfer pair.
	Transaction struct {
		ID                int64
		Date              Date
		Amount            Money
		Type              RowType
		Origin            Origin
		ExpenseCategoryID int64
		WalletCategoryID  int64
		CreditCategoryID  int64
		LinkedID          int64
		Description       string
		Memo              string
		PaymentLocation   string
		Notes             string
		CreatedAt         time.Time
		UpdatedAt         time.Time
	}

	// TransactionDetail is a Transaction joined with its category names
	// for read endpoints.
	TransactionDetail struct {
		Transaction
		ExpenseCategoryName string
		WalletCategoryName  string
		CreditCategoryName  string
	}

	MonthlyBudget struct {
		ID                int64
		Year              int
		Month             int
		ExpenseCategoryID int64
		BudgetAmount      int64 // minor units
	}

	// MonthlyCreditSummary holds the incrementally-maintained usage total
	// for one credit card in one month.
	MonthlyCreditSummary struct {
		Year             int
		Month            int
		CreditCategoryID int64
		TotalAmount      int64 // minor units
	}
)

// IsValid reports whether the kind is one of the five supported kinds.
func (k TransactionKind) IsValid() bool {
	switch k {
	case KindExpense, KindIncome, KindTransfer, KindCharge, KindBudgetTransfer:
		return true
	}
	return false
}

func (t RowType) IsValid() bool {
	return t == RowExpense || t == RowIncome
}

func (o Origin) IsValid() bool {
	switch o {
	case OriginUserEntry, OriginTransferLeg, OriginChargeLeg, OriginBudgetTransferLeg, OriginManualAdjustment:
		return true
	}
	return false
}

// IsPaired reports whether rows with this origin belong to a linked pair.
func (o Origin) IsPaired() bool {
	switch o {
	case OriginTransferLeg, OriginChargeLeg, OriginBudgetTransferLeg:
		return true
	}
	return false
}

// NewDate creates a Date from year, month, day in UTC.
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// ParseDate parses a YYYY-MM-DD string.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse("2006-01-02", strings.TrimSpace(s))
	if err != nil {
		return Date{}, Validationf("invalid date %q: expected YYYY-MM-DD", s)
	}
	return Date{Time: t}, nil
}

func (d Date) Validate() error {
	if d.IsZero() {
		return Validationf("date is required")
	}
	return nil
}

// Year returns the calendar year.
func (d Date) Year() int { return d.Time.Year() }

// Month returns the calendar month as an int.
func (d Date) Month() int { return int(d.Time.Month()) }

// Day returns the day of the month.
func (d Date) Day() int { return d.Time.Day() }

// String formats the date as YYYY-MM-DD.
func (d Date) String() string { return d.Format("2006-01-02") }

func (m Money) Validate() error {
	if m.Cents <= 0 {
		return ErrInvalidAmount
	}
	return nil
}

// Validate checks the invariants every stored row must satisfy.
func (t Transaction) Validate() error {
	if err := t.Date.Validate(); err != nil {
		return err
	}
	if err := t.Amount.Validate(); err != nil {
		return err
	}
	if !t.Type.IsValid() {
		return Validationf("invalid row type %q", t.Type)
	}
	if !t.Origin.IsValid() {
		return Validationf("invalid origin %q", t.Origin)
	}
	if t.WalletCategoryID != 0 && t.CreditCategoryID != 0 {
		return Validationf("a transaction cannot reference both a wallet and a credit card")
	}
	if len(t.Description) > 200 {
		return Validationf("description too long (max 200 characters)")
	}
	return nil
}
