package http

import (
	"bytes"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"kakeibo/internal/core"
	"kakeibo/internal/ledger"
	"kakeibo/internal/storage"
)

// walletRef is a transfer destination: a wallet id, or the string
// "withdrawal" when the money leaves tracking as cash.
type walletRef struct {
	ID         int64
	Withdrawal bool
}

func (w *walletRef) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		if s != "withdrawal" {
			return core.Validationf("invalid wallet reference %q", s)
		}
		w.Withdrawal = true
		return nil
	}
	return json.Unmarshal(data, &w.ID)
}

type transactionRequest struct {
	Type   string      `json:"type"`
	Date   string      `json:"date"`
	Amount json.Number `json:"amount"`

	ExpenseCategoryID int64 `json:"expense_category_id"`
	WalletCategoryID  int64 `json:"wallet_category_id"`
	CreditCategoryID  int64 `json:"credit_category_id"`

	TransferFromWalletID int64     `json:"transfer_from_wallet_id"`
	TransferToWallet     walletRef `json:"transfer_to_wallet_id"`

	ChargeFromCreditID int64 `json:"charge_from_credit_id"`
	ChargeFromWalletID int64 `json:"charge_from_wallet_id"`
	ChargeToWalletID   int64 `json:"charge_to_wallet_id"`

	BudgetFromCategoryID int64 `json:"budget_from_category_id"`
	BudgetToCategoryID   int64 `json:"budget_to_category_id"`

	Description     string `json:"description"`
	Memo            string `json:"memo"`
	PaymentLocation string `json:"payment_location"`
	Notes           string `json:"notes"`
}

func (req transactionRequest) toCreateRequest() (ledger.CreateRequest, error) {
	date, err := core.ParseDate(req.Date)
	if err != nil {
		return ledger.CreateRequest{}, err
	}
	cents, err := core.ParseDecimalToCents(req.Amount.String())
	if err != nil {
		return ledger.CreateRequest{}, err
	}
	return ledger.CreateRequest{
		Date:                 date,
		Amount:               core.Money{Cents: cents},
		Kind:                 core.TransactionKind(req.Type),
		ExpenseCategoryID:    req.ExpenseCategoryID,
		WalletCategoryID:     req.WalletCategoryID,
		CreditCategoryID:     req.CreditCategoryID,
		TransferFromWalletID: req.TransferFromWalletID,
		TransferToWalletID:   req.TransferToWallet.ID,
		TransferWithdrawal:   req.TransferToWallet.Withdrawal,
		ChargeFromCreditID:   req.ChargeFromCreditID,
		ChargeFromWalletID:   req.ChargeFromWalletID,
		ChargeToWalletID:     req.ChargeToWalletID,
		BudgetFromCategoryID: req.BudgetFromCategoryID,
		BudgetToCategoryID:   req.BudgetToCategoryID,
		Description:          req.Description,
		Memo:                 req.Memo,
		PaymentLocation:      req.PaymentLocation,
		Notes:                req.Notes,
	}, nil
}

type transactionJSON struct {
	ID                  int64   `json:"id"`
	Date                string  `json:"date"`
	Amount              float64 `json:"amount"`
	Type                string  `json:"type"`
	Origin              string  `json:"origin"`
	ExpenseCategoryID   int64   `json:"expense_category_id,omitempty"`
	ExpenseCategoryName string  `json:"expense_category_name,omitempty"`
	WalletCategoryID    int64   `json:"wallet_category_id,omitempty"`
	WalletCategoryName  string  `json:"wallet_category_name,omitempty"`
	CreditCategoryID    int64   `json:"credit_category_id,omitempty"`
	CreditCategoryName  string  `json:"credit_category_name,omitempty"`
	LinkedTransactionID int64   `json:"linked_transaction_id,omitempty"`
	Description         string  `json:"description,omitempty"`
	Memo                string  `json:"memo,omitempty"`
	PaymentLocation     string  `json:"payment_location,omitempty"`
	Notes               string  `json:"notes,omitempty"`
	CreatedAt           string  `json:"created_at"`
	UpdatedAt           string  `json:"updated_at"`
}

func toTransactionJSON(d core.TransactionDetail) transactionJSON {
	return transactionJSON{
		ID:                  d.ID,
		Date:                d.Date.String(),
		Amount:              core.Units(d.Amount.Cents),
		Type:                string(d.Type),
		Origin:              string(d.Origin),
		ExpenseCategoryID:   d.ExpenseCategoryID,
		ExpenseCategoryName: d.ExpenseCategoryName,
		WalletCategoryID:    d.WalletCategoryID,
		WalletCategoryName:  d.WalletCategoryName,
		CreditCategoryID:    d.CreditCategoryID,
		CreditCategoryName:  d.CreditCategoryName,
		LinkedTransactionID: d.LinkedID,
		Description:         d.Description,
		Memo:                d.Memo,
		PaymentLocation:     d.PaymentLocation,
		Notes:               d.Notes,
		CreatedAt:           d.CreatedAt.Format(timeLayout),
		UpdatedAt:           d.UpdatedAt.Format(timeLayout),
	}
}

func toTransactionList(details []core.TransactionDetail) []transactionJSON {
	out := make([]transactionJSON, 0, len(details))
	for _, d := range details {
		out = append(out, toTransactionJSON(d))
	}
	return out
}

func (s *Server) handleCreateTransaction(w http.ResponseWriter, r *http.Request) {
	var req transactionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	createReq, err := req.toCreateRequest()
	if err != nil {
		writeError(w, r, err)
		return
	}
	res, err := s.transactions.Create(r.Context(), createReq)
	if err != nil {
		writeError(w, r, err)
		return
	}
	out := map[string]any{"id": res.ID, "type": string(res.Kind)}
	if res.PairID != 0 {
		out["linked_transaction_id"] = res.PairID
	}
	writeJSON(w, http.StatusCreated, out)
}

// handleListTransactions lists every row, or filters by ?date=YYYY-MM-DD
// or ?month=YYYY-MM.
func (s *Server) handleListTransactions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()

	var (
		details []core.TransactionDetail
		err     error
	)
	switch {
	case q.Get("date") != "":
		var date core.Date
		date, err = core.ParseDate(q.Get("date"))
		if err != nil {
			writeError(w, r, err)
			return
		}
		details, err = s.store.ListByDate(ctx, date)
	case q.Get("month") != "":
		var year, month int
		year, month, err = parseYearMonth(q.Get("month"))
		if err != nil {
			writeError(w, r, err)
			return
		}
		details, err = s.store.ListByMonth(ctx, year, month)
	default:
		details, err = s.store.ListAll(ctx)
	}
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toTransactionList(details))
}

// parseYearMonth parses a YYYY-MM string.
func parseYearMonth(s string) (year, month int, err error) {
	parts := strings.SplitN(s, "-", 2)
	if len(parts) != 2 {
		return 0, 0, core.Validationf("invalid month %q: expected YYYY-MM", s)
	}
	year, err1 := strconv.Atoi(parts[0])
	month, err2 := strconv.Atoi(parts[1])
	if err1 != nil || err2 != nil || year < 1970 || year > 9999 || month < 1 || month > 12 {
		return 0, 0, core.Validationf("invalid month %q: expected YYYY-MM", s)
	}
	return year, month, nil
}

func (s *Server) handleGetTransaction(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	detail, err := s.store.GetDetail(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toTransactionJSON(detail))
}

func (s *Server) handleUpdateTransaction(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req transactionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	date, err := core.ParseDate(req.Date)
	if err != nil {
		writeError(w, r, err)
		return
	}
	cents, err := core.ParseDecimalToCents(req.Amount.String())
	if err != nil {
		writeError(w, r, err)
		return
	}
	updateReq := ledger.UpdateRequest{
		Date:              date,
		Amount:            core.Money{Cents: cents},
		Type:              core.RowType(req.Type),
		ExpenseCategoryID: req.ExpenseCategoryID,
		WalletCategoryID:  req.WalletCategoryID,
		CreditCategoryID:  req.CreditCategoryID,
		Description:       req.Description,
		Memo:              req.Memo,
		PaymentLocation:   req.PaymentLocation,
		Notes:             req.Notes,
	}
	if err := s.transactions.Update(r.Context(), id, updateReq); err != nil {
		writeError(w, r, err)
		return
	}
	detail, err := s.store.GetDetail(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toTransactionJSON(detail))
}

// handleDeleteTransaction removes the row and, for linked pairs, its
// partner leg.
func (s *Server) handleDeleteTransaction(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.transactions.Delete(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (s *Server) handleListTransactionsByDate(w http.ResponseWriter, r *http.Request) {
	date, err := core.ParseDate(r.PathValue("date"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	details, err := s.store.ListByDate(r.Context(), date)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toTransactionList(details))
}

func (s *Server) handleListTransactionsByMonth(w http.ResponseWriter, r *http.Request) {
	year, month, err := pathPeriod(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	details, err := s.store.ListByMonth(r.Context(), year, month)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toTransactionList(details))
}

func (s *Server) handleListCategoryTransactions(w http.ResponseWriter, r *http.Request) {
	year, month, err := pathPeriod(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	categoryID, err := pathInt64(r, "categoryID")
	if err != nil {
		writeError(w, r, err)
		return
	}
	kind := storage.CategoryKind(r.PathValue("categoryType"))
	if !kind.IsValid() {
		writeError(w, r, core.Validationf("invalid category type %q", r.PathValue("categoryType")))
		return
	}
	details, err := s.store.ListByCategory(r.Context(), year, month, categoryID, kind)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toTransactionList(details))
}

func (s *Server) handleListWalletTransactions(w http.ResponseWriter, r *http.Request) {
	year, month, err := pathPeriod(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	walletID, err := pathInt64(r, "walletID")
	if err != nil {
		writeError(w, r, err)
		return
	}
	details, err := s.store.ListByWallet(r.Context(), year, month, walletID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toTransactionList(details))
}

// pathPeriod parses the {year}/{month} path segments.
func pathPeriod(r *http.Request) (year, month int, err error) {
	year, err = pathInt(r, "year")
	if err != nil {
		return 0, 0, err
	}
	month, err = pathInt(r, "month")
	if err != nil {
		return 0, 0, err
	}
	if month < 1 || month > 12 {
		return 0, 0, core.Validationf("invalid month %d", month)
	}
	return year, month, nil
}
