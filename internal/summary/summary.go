// Package summary builds the monthly budget summary and the statistics
// views from aggregated ledger data.
package summary

import (
	"context"
	"fmt"

	"kakeibo/internal/core"
)

// CategoryNet is the per-expense-category expense/income total for one
// period.
type CategoryNet struct {
	CategoryID   int64
	CategoryName string
	Expense      int64
	Income       int64
}

// WalletNet is the per-wallet expense/income total for one period.
type WalletNet struct {
	WalletID   int64
	WalletName string
	Expense    int64
	Income     int64
}

// CreditTotal is one maintained monthly credit-summary row joined with
// its card name.
type CreditTotal struct {
	CreditCategoryID   int64
	CreditCategoryName string
	TotalAmount        int64
}

// Reader is the aggregate-query port the storage backends implement.
// A month value of 0 widens the user-entry queries to the whole year.
type Reader interface {
	// MonthCategoryNets totals rows of every origin, so budget
	// consumption includes transfer legs and manual adjustments.
	MonthCategoryNets(ctx context.Context, year, month int) ([]CategoryNet, error)

	MonthCreditTotals(ctx context.Context, year, month int) ([]CreditTotal, error)

	ListBudgets(ctx context.Context, year, month int) ([]core.MonthlyBudget, error)

	ListExpenseCategories(ctx context.Context) ([]core.ExpenseCategory, error)

	// UserEntryTotals, UserEntryCategoryNets and UserEntryWalletNets
	// total only rows a person actually entered (origin user_entry),
	// keeping internal movements out of the statistics.
	UserEntryTotals(ctx context.Context, year, month int) (income, expense int64, err error)
	UserEntryCategoryNets(ctx context.Context, year, month int) ([]CategoryNet, error)
	UserEntryWalletNets(ctx context.Context, year, month int) ([]WalletNet, error)
}

// CategoryLine is one row of the monthly summary: budget, net spending
// and what is left.
type CategoryLine struct {
	CategoryID   int64
	CategoryName string
	Budget       int64
	Spent        int64 // expense minus income
	Remaining    int64
}

type MonthlySummary struct {
	Year           int
	Month          int
	Categories     []CategoryLine
	Credits        []CreditTotal
	TotalBudget    int64
	TotalSpent     int64
	TotalRemaining int64
}

type Stats struct {
	Year         int
	Month        int // 0 for a whole-year view
	TotalIncome  int64
	TotalExpense int64
	Net          int64
	Categories   []CategoryNet
	Wallets      []WalletNet
}

type Service struct {
	reader Reader
}

func NewService(reader Reader) *Service {
	return &Service{reader: reader}
}

// MonthlySummary assembles the per-category budget view for one month.
// Every expense category appears, including ones with no budget and no
// rows yet.
func (s *Service) MonthlySummary(ctx context.Context, year, month int) (MonthlySummary, error) {
	if err := validatePeriod(year, month, false); err != nil {
		return MonthlySummary{}, err
	}

	categories, err := s.reader.ListExpenseCategories(ctx)
	if err != nil {
		return MonthlySummary{}, fmt.Errorf("list expense categories: %w", err)
	}
	budgets, err := s.reader.ListBudgets(ctx, year, month)
	if err != nil {
		return MonthlySummary{}, fmt.Errorf("list budgets: %w", err)
	}
	nets, err := s.reader.MonthCategoryNets(ctx, year, month)
	if err != nil {
		return MonthlySummary{}, fmt.Errorf("total category spending: %w", err)
	}
	credits, err := s.reader.MonthCreditTotals(ctx, year, month)
	if err != nil {
		return MonthlySummary{}, fmt.Errorf("load credit totals: %w", err)
	}

	budgetByCat := make(map[int64]int64, len(budgets))
	for _, b := range budgets {
		budgetByCat[b.ExpenseCategoryID] = b.BudgetAmount
	}
	netByCat := make(map[int64]CategoryNet, len(nets))
	for _, n := range nets {
		netByCat[n.CategoryID] = n
	}

	out := MonthlySummary{Year: year, Month: month, Credits: credits}
	for _, cat := range categories {
		budget := budgetByCat[cat.ID]
		net := netByCat[cat.ID]
		spent := net.Expense - net.Income
		line := CategoryLine{
			CategoryID:   cat.ID,
			CategoryName: cat.Name,
			Budget:       budget,
			Spent:        spent,
			Remaining:    budget - spent,
		}
		out.Categories = append(out.Categories, line)
		out.TotalBudget += line.Budget
		out.TotalSpent += line.Spent
		out.TotalRemaining += line.Remaining
	}
	return out, nil
}

// Stats totals user-entered rows for a month, or for the whole year when
// month is 0.
func (s *Service) Stats(ctx context.Context, year, month int) (Stats, error) {
	if err := validatePeriod(year, month, true); err != nil {
		return Stats{}, err
	}

	income, expense, err := s.reader.UserEntryTotals(ctx, year, month)
	if err != nil {
		return Stats{}, fmt.Errorf("total user entries: %w", err)
	}
	categories, err := s.reader.UserEntryCategoryNets(ctx, year, month)
	if err != nil {
		return Stats{}, fmt.Errorf("total category stats: %w", err)
	}
	wallets, err := s.reader.UserEntryWalletNets(ctx, year, month)
	if err != nil {
		return Stats{}, fmt.Errorf("total wallet stats: %w", err)
	}

	return Stats{
		Year:         year,
		Month:        month,
		TotalIncome:  income,
		TotalExpense: expense,
		Net:          income - expense,
		Categories:   categories,
		Wallets:      wallets,
	}, nil
}

func validatePeriod(year, month int, monthOptional bool) error {
	if year < 1970 || year > 9999 {
		return core.Validationf("invalid year %d", year)
	}
	if month == 0 && monthOptional {
		return nil
	}
	if month < 1 || month > 12 {
		return core.Validationf("invalid month %d", month)
	}
	return nil
}
