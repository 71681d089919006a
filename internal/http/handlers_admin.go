package http

import (
	"fmt"
	"net/http"
	"strings"

	"kakeibo/internal/storage"
)

// handleParseFuzzy sends free-form text through the language model and
// returns a structured transaction draft.
func (s *Server) handleParseFuzzy(w http.ResponseWriter, r *http.Request) {
	if s.parser == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "fuzzy parsing is not configured"})
		return
	}
	var req struct {
		Text string `json:"text"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	res, err := s.parser.Parse(r.Context(), req.Text)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// handleBackupJSON streams a full dump of every table as a download.
func (s *Server) handleBackupJSON(w http.ResponseWriter, r *http.Request) {
	dump, err := s.store.ExportAll(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Disposition", `attachment; filename="kakeibo-backup.json"`)
	writeJSON(w, http.StatusOK, dump)
}

// handleBackupSQL renders the dump as portable INSERT statements.
func (s *Server) handleBackupSQL(w http.ResponseWriter, r *http.Request) {
	dump, err := s.store.ExportAll(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/sql")
	w.Header().Set("Content-Disposition", `attachment; filename="kakeibo-backup.sql"`)
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte(renderSQLDump(dump))); err != nil {
		return
	}
}

func renderSQLDump(dump storage.Dump) string {
	var b strings.Builder
	b.WriteString("BEGIN;\n")

	for _, c := range dump.ExpenseCategories {
		fmt.Fprintf(&b, "INSERT INTO expense_categories (id, name, created_at) VALUES (%d, %s, %s);\n",
			c.ID, sqlString(c.Name), sqlString(c.CreatedAt.UTC().Format(timeLayout)))
	}
	for _, c := range dump.WalletCategories {
		fmt.Fprintf(&b, "INSERT INTO wallet_categories (id, name, balance, created_at) VALUES (%d, %s, %d, %s);\n",
			c.ID, sqlString(c.Name), c.Balance, sqlString(c.CreatedAt.UTC().Format(timeLayout)))
	}
	for _, c := range dump.CreditCategories {
		fmt.Fprintf(&b, "INSERT INTO credit_categories (id, name, created_at) VALUES (%d, %s, %s);\n",
			c.ID, sqlString(c.Name), sqlString(c.CreatedAt.UTC().Format(timeLayout)))
	}
	for _, t := range dump.Transactions {
		fmt.Fprintf(&b, "INSERT INTO transactions (id, date, amount, type, origin, expense_category_id, wallet_category_id, credit_category_id, linked_transaction_id, description, memo, payment_location, notes, created_at, updated_at) VALUES (%d, %s, %d, %s, %s, %s, %s, %s, %s, %s, %s, %s, %s, %s, %s);\n",
			t.ID,
			sqlString(t.Date.String()),
			t.Amount.Cents,
			sqlString(string(t.Type)),
			sqlString(string(t.Origin)),
			sqlNullableID(t.ExpenseCategoryID),
			sqlNullableID(t.WalletCategoryID),
			sqlNullableID(t.CreditCategoryID),
			sqlNullableID(t.LinkedID),
			sqlString(t.Description),
			sqlString(t.Memo),
			sqlString(t.PaymentLocation),
			sqlString(t.Notes),
			sqlString(t.CreatedAt.UTC().Format(timeLayout)),
			sqlString(t.UpdatedAt.UTC().Format(timeLayout)))
	}
	for _, mb := range dump.MonthlyBudgets {
		fmt.Fprintf(&b, "INSERT INTO monthly_budgets (id, year, month, expense_category_id, budget_amount) VALUES (%d, %d, %d, %d, %d);\n",
			mb.ID, mb.Year, mb.Month, mb.ExpenseCategoryID, mb.BudgetAmount)
	}
	for _, cs := range dump.MonthlyCreditSummaries {
		fmt.Fprintf(&b, "INSERT INTO monthly_credit_summary (year, month, credit_category_id, total_amount) VALUES (%d, %d, %d, %d);\n",
			cs.Year, cs.Month, cs.CreditCategoryID, cs.TotalAmount)
	}

	b.WriteString("COMMIT;\n")
	return b.String()
}

// sqlString quotes a literal, doubling embedded single quotes.
func sqlString(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

func sqlNullableID(id int64) string {
	if id == 0 {
		return "NULL"
	}
	return fmt.Sprintf("%d", id)
}

// handleDatabaseStatus reports the active backend and per-table counts.
func (s *Server) handleDatabaseStatus(w http.ResponseWriter, r *http.Request) {
	counts, err := s.store.Counts(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"backend": s.backendName,
		"tables": map[string]int64{
			"expense_categories":     counts.ExpenseCategories,
			"wallet_categories":      counts.WalletCategories,
			"credit_categories":      counts.CreditCategories,
			"transactions":           counts.Transactions,
			"monthly_budgets":        counts.MonthlyBudgets,
			"monthly_credit_summary": counts.MonthlyCreditSummaries,
		},
	})
}
