package http

import (
	"encoding/json"
	"net/http"
	"strings"

	"kakeibo/internal/core"
	"kakeibo/internal/summary"
)

type budgetJSON struct {
	ID                int64   `json:"id"`
	Year              int     `json:"year"`
	Month             int     `json:"month"`
	ExpenseCategoryID int64   `json:"expense_category_id"`
	Amount            float64 `json:"amount"`
}

func toBudgetJSON(b core.MonthlyBudget) budgetJSON {
	return budgetJSON{
		ID:                b.ID,
		Year:              b.Year,
		Month:             b.Month,
		ExpenseCategoryID: b.ExpenseCategoryID,
		Amount:            core.Units(b.BudgetAmount),
	}
}

func (s *Server) handleListBudgets(w http.ResponseWriter, r *http.Request) {
	year, month, err := pathPeriod(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	budgets, err := s.store.ListBudgets(r.Context(), year, month)
	if err != nil {
		writeError(w, r, err)
		return
	}
	out := make([]budgetJSON, 0, len(budgets))
	for _, b := range budgets {
		out = append(out, toBudgetJSON(b))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleUpsertBudget(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Year              int         `json:"year"`
		Month             int         `json:"month"`
		ExpenseCategoryID int64       `json:"expense_category_id"`
		Amount            json.Number `json:"amount"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if req.Year < 1970 || req.Year > 9999 {
		writeError(w, r, core.Validationf("invalid year %d", req.Year))
		return
	}
	if req.Month < 1 || req.Month > 12 {
		writeError(w, r, core.Validationf("invalid month %d", req.Month))
		return
	}
	if req.ExpenseCategoryID <= 0 {
		writeError(w, r, core.Validationf("expense_category_id is required"))
		return
	}
	cents, err := core.ParseDecimalToCents(req.Amount.String())
	if err != nil {
		writeError(w, r, err)
		return
	}
	budget, err := s.store.UpsertBudget(r.Context(), core.MonthlyBudget{
		Year:              req.Year,
		Month:             req.Month,
		ExpenseCategoryID: req.ExpenseCategoryID,
		BudgetAmount:      cents,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toBudgetJSON(budget))
}

// handleCreateBudgetAdjustment books a signed correction row against a
// category for a given month.
func (s *Server) handleCreateBudgetAdjustment(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Year              int         `json:"year"`
		Month             int         `json:"month"`
		ExpenseCategoryID int64       `json:"expense_category_id"`
		Amount            json.Number `json:"amount"`
		Description       string      `json:"description"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	delta, err := core.ParseSignedDecimalToCents(strings.TrimSpace(req.Amount.String()))
	if err != nil {
		writeError(w, r, core.Validationf("invalid amount %q", req.Amount.String()))
		return
	}
	id, err := s.transactions.CreateAdjustment(r.Context(), req.Year, req.Month, req.ExpenseCategoryID, delta, req.Description)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"id": id, "amount": core.Units(delta)})
}

type categoryLineJSON struct {
	CategoryID   int64   `json:"category_id"`
	CategoryName string  `json:"category_name"`
	Budget       float64 `json:"budget"`
	Spent        float64 `json:"spent"`
	Remaining    float64 `json:"remaining"`
}

type creditTotalJSON struct {
	CreditCategoryID   int64   `json:"credit_category_id"`
	CreditCategoryName string  `json:"credit_category_name"`
	TotalAmount        float64 `json:"total_amount"`
}

type summaryJSON struct {
	Year           int                `json:"year"`
	Month          int                `json:"month"`
	Categories     []categoryLineJSON `json:"categories"`
	Credits        []creditTotalJSON  `json:"credits"`
	TotalBudget    float64            `json:"total_budget"`
	TotalSpent     float64            `json:"total_spent"`
	TotalRemaining float64            `json:"total_remaining"`
}

func (s *Server) handleMonthlySummary(w http.ResponseWriter, r *http.Request) {
	year, month, err := pathPeriod(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	sum, err := s.summaries.MonthlySummary(r.Context(), year, month)
	if err != nil {
		writeError(w, r, err)
		return
	}

	out := summaryJSON{
		Year:           sum.Year,
		Month:          sum.Month,
		Categories:     make([]categoryLineJSON, 0, len(sum.Categories)),
		Credits:        make([]creditTotalJSON, 0, len(sum.Credits)),
		TotalBudget:    core.Units(sum.TotalBudget),
		TotalSpent:     core.Units(sum.TotalSpent),
		TotalRemaining: core.Units(sum.TotalRemaining),
	}
	for _, line := range sum.Categories {
		out.Categories = append(out.Categories, categoryLineJSON{
			CategoryID:   line.CategoryID,
			CategoryName: line.CategoryName,
			Budget:       core.Units(line.Budget),
			Spent:        core.Units(line.Spent),
			Remaining:    core.Units(line.Remaining),
		})
	}
	for _, c := range sum.Credits {
		out.Credits = append(out.Credits, creditTotalJSON{
			CreditCategoryID:   c.CreditCategoryID,
			CreditCategoryName: c.CreditCategoryName,
			TotalAmount:        core.Units(c.TotalAmount),
		})
	}
	writeJSON(w, http.StatusOK, out)
}

type categoryNetJSON struct {
	CategoryID   int64   `json:"category_id"`
	CategoryName string  `json:"category_name"`
	Expense      float64 `json:"expense"`
	Income       float64 `json:"income"`
}

type walletNetJSON struct {
	WalletID   int64   `json:"wallet_id"`
	WalletName string  `json:"wallet_name"`
	Expense    float64 `json:"expense"`
	Income     float64 `json:"income"`
}

type statsJSON struct {
	Year         int               `json:"year"`
	Month        int               `json:"month,omitempty"`
	TotalIncome  float64           `json:"total_income"`
	TotalExpense float64           `json:"total_expense"`
	Net          float64           `json:"net"`
	Categories   []categoryNetJSON `json:"categories"`
	Wallets      []walletNetJSON   `json:"wallets"`
}

func (s *Server) handleMonthlyStats(w http.ResponseWriter, r *http.Request) {
	year, month, err := pathPeriod(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	s.writeStats(w, r, year, month)
}

func (s *Server) handleYearlyStats(w http.ResponseWriter, r *http.Request) {
	year, err := pathInt(r, "year")
	if err != nil {
		writeError(w, r, err)
		return
	}
	s.writeStats(w, r, year, 0)
}

func (s *Server) writeStats(w http.ResponseWriter, r *http.Request, year, month int) {
	stats, err := s.summaries.Stats(r.Context(), year, month)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toStatsJSON(stats))
}

func toStatsJSON(stats summary.Stats) statsJSON {
	out := statsJSON{
		Year:         stats.Year,
		Month:        stats.Month,
		TotalIncome:  core.Units(stats.TotalIncome),
		TotalExpense: core.Units(stats.TotalExpense),
		Net:          core.Units(stats.Net),
		Categories:   make([]categoryNetJSON, 0, len(stats.Categories)),
		Wallets:      make([]walletNetJSON, 0, len(stats.Wallets)),
	}
	for _, c := range stats.Categories {
		out.Categories = append(out.Categories, categoryNetJSON{
			CategoryID:   c.CategoryID,
			CategoryName: c.CategoryName,
			Expense:      core.Units(c.Expense),
			Income:       core.Units(c.Income),
		})
	}
	for _, wn := range stats.Wallets {
		out.Wallets = append(out.Wallets, walletNetJSON{
			WalletID:   wn.WalletID,
			WalletName: wn.WalletName,
			Expense:    core.Units(wn.Expense),
			Income:     core.Units(wn.Income),
		})
	}
	return out
}
