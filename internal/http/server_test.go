package http

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"kakeibo/internal/fuzzy"
	"kakeibo/internal/ledger"
	"kakeibo/internal/services"
	"kakeibo/internal/storage/memory"
	"kakeibo/internal/summary"
)

func newTestServer(t *testing.T) (*Server, *memory.Store) {
	t.Helper()
	store := memory.New()
	srv := NewServer(Config{
		Addr:         ":0",
		Store:        store,
		Transactions: services.NewTransactionService(ledger.New(store), nil),
		Summaries:    summary.NewService(store),
		BackendName:  "memory",
	})
	t.Cleanup(func() { srv.rateLimiter.stop() })
	return srv, store
}

func doRequest(t *testing.T, srv *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		reader = bytes.NewReader(payload)
	}
	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	srv.httpServer.Handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
	return v
}

func seedCategories(t *testing.T, store *memory.Store) (catID, walletID, creditID int64) {
	t.Helper()
	ctx := context.Background()
	cat, err := store.CreateExpenseCategory(ctx, "Groceries")
	if err != nil {
		t.Fatal(err)
	}
	wallet, err := store.CreateWalletCategory(ctx, "Checking", 100_000)
	if err != nil {
		t.Fatal(err)
	}
	credit, err := store.CreateCreditCategory(ctx, "Visa")
	if err != nil {
		t.Fatal(err)
	}
	return cat.ID, wallet.ID, credit.ID
}

func TestCreateAndGetTransaction(t *testing.T) {
	srv, store := newTestServer(t)
	catID, walletID, _ := seedCategories(t, store)

	rec := doRequest(t, srv, http.MethodPost, "/api/transactions", map[string]any{
		"type":                "expense",
		"date":                "2024-03-10",
		"amount":              12.5,
		"expense_category_id": catID,
		"wallet_category_id":  walletID,
		"description":         "weekly shop",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	created := decodeBody[map[string]any](t, rec)
	id := int64(created["id"].(float64))

	rec = doRequest(t, srv, http.MethodGet, "/api/transactions/"+jsonNumber(id), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get status = %d", rec.Code)
	}
	got := decodeBody[transactionJSON](t, rec)
	if got.Amount != 12.5 || got.Type != "expense" || got.ExpenseCategoryName != "Groceries" {
		t.Fatalf("got = %+v", got)
	}

	wallets, err := store.ListWalletCategories(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if wallets[0].Balance != 100_000-1250 {
		t.Fatalf("wallet balance = %d", wallets[0].Balance)
	}
}

func TestCreateTransferWithWithdrawalSentinel(t *testing.T) {
	srv, store := newTestServer(t)
	_, walletID, _ := seedCategories(t, store)

	rec := doRequest(t, srv, http.MethodPost, "/api/transactions", map[string]any{
		"type":                    "transfer",
		"date":                    "2024-03-10",
		"amount":                  "40.00",
		"transfer_from_wallet_id": walletID,
		"transfer_to_wallet_id":   "withdrawal",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	created := decodeBody[map[string]any](t, rec)
	if _, hasPair := created["linked_transaction_id"]; hasPair {
		t.Fatalf("withdrawal must not create a pair: %v", created)
	}

	wallets, err := store.ListWalletCategories(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if wallets[0].Balance != 96_000 {
		t.Fatalf("wallet balance = %d", wallets[0].Balance)
	}
}

func TestCreateTransferReturnsLinkedPair(t *testing.T) {
	srv, store := newTestServer(t)
	_, walletID, _ := seedCategories(t, store)
	cash, err := store.CreateWalletCategory(context.Background(), "Cash", 0)
	if err != nil {
		t.Fatal(err)
	}

	rec := doRequest(t, srv, http.MethodPost, "/api/transactions", map[string]any{
		"type":                    "transfer",
		"date":                    "2024-03-10",
		"amount":                  25,
		"transfer_from_wallet_id": walletID,
		"transfer_to_wallet_id":   cash.ID,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	created := decodeBody[map[string]any](t, rec)
	if created["linked_transaction_id"] == nil {
		t.Fatalf("expected a linked pair: %v", created)
	}
}

func TestCreateTransactionValidation(t *testing.T) {
	srv, store := newTestServer(t)
	catID, walletID, _ := seedCategories(t, store)

	cases := []struct {
		name string
		body map[string]any
	}{
		{"bad amount", map[string]any{"type": "expense", "date": "2024-03-10", "amount": -5, "expense_category_id": catID, "wallet_category_id": walletID}},
		{"bad date", map[string]any{"type": "expense", "date": "10/03/2024", "amount": 5, "expense_category_id": catID, "wallet_category_id": walletID}},
		{"unknown kind", map[string]any{"type": "loan", "date": "2024-03-10", "amount": 5}},
		{"missing wallet and credit", map[string]any{"type": "expense", "date": "2024-03-10", "amount": 5, "expense_category_id": catID}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := doRequest(t, srv, http.MethodPost, "/api/transactions", tc.body)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
			}
		})
	}
}

func TestListTransactionsFilters(t *testing.T) {
	srv, store := newTestServer(t)
	catID, walletID, _ := seedCategories(t, store)

	for _, date := range []string{"2024-03-10", "2024-03-20", "2024-04-01"} {
		rec := doRequest(t, srv, http.MethodPost, "/api/transactions", map[string]any{
			"type": "expense", "date": date, "amount": 5,
			"expense_category_id": catID, "wallet_category_id": walletID,
		})
		if rec.Code != http.StatusCreated {
			t.Fatalf("seed status = %d, body = %s", rec.Code, rec.Body.String())
		}
	}

	rec := doRequest(t, srv, http.MethodGet, "/api/transactions?month=2024-03", nil)
	if got := len(decodeBody[[]transactionJSON](t, rec)); got != 2 {
		t.Fatalf("month filter returned %d rows", got)
	}
	rec = doRequest(t, srv, http.MethodGet, "/api/transactions?date=2024-03-10", nil)
	if got := len(decodeBody[[]transactionJSON](t, rec)); got != 1 {
		t.Fatalf("date filter returned %d rows", got)
	}
	rec = doRequest(t, srv, http.MethodGet, "/api/transactions?month=march", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("bad month filter status = %d", rec.Code)
	}
	rec = doRequest(t, srv, http.MethodGet, "/api/transactions", nil)
	if got := len(decodeBody[[]transactionJSON](t, rec)); got != 3 {
		t.Fatalf("unfiltered returned %d rows", got)
	}
}

func TestGetUnknownTransactionIs404(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := doRequest(t, srv, http.MethodGet, "/api/transactions/999", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestDeleteTransactionRestoresBalance(t *testing.T) {
	srv, store := newTestServer(t)
	catID, walletID, _ := seedCategories(t, store)

	rec := doRequest(t, srv, http.MethodPost, "/api/transactions", map[string]any{
		"type": "expense", "date": "2024-03-10", "amount": 10,
		"expense_category_id": catID, "wallet_category_id": walletID,
	})
	created := decodeBody[map[string]any](t, rec)
	id := int64(created["id"].(float64))

	rec = doRequest(t, srv, http.MethodDelete, "/api/transactions/"+jsonNumber(id), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("delete status = %d", rec.Code)
	}

	wallets, err := store.ListWalletCategories(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if wallets[0].Balance != 100_000 {
		t.Fatalf("wallet balance = %d", wallets[0].Balance)
	}
}

func TestCategoryLifecycle(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := doRequest(t, srv, http.MethodPost, "/api/wallet-categories", map[string]any{
		"name": "Savings", "balance": 250.75,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d, body = %s", rec.Code, rec.Body.String())
	}
	created := decodeBody[walletCategoryJSON](t, rec)
	if created.Balance != 250.75 {
		t.Fatalf("balance = %v", created.Balance)
	}

	rec = doRequest(t, srv, http.MethodGet, "/api/wallet-categories", nil)
	listed := decodeBody[[]walletCategoryJSON](t, rec)
	if len(listed) != 1 || listed[0].Name != "Savings" {
		t.Fatalf("listed = %+v", listed)
	}

	// Duplicate name, case-insensitive
	rec = doRequest(t, srv, http.MethodPost, "/api/wallet-categories", map[string]any{"name": "savings"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("duplicate status = %d", rec.Code)
	}

	rec = doRequest(t, srv, http.MethodDelete, "/api/wallet-categories/"+jsonNumber(created.ID), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("delete status = %d", rec.Code)
	}
}

func TestDeleteReferencedCategoryIs400(t *testing.T) {
	srv, store := newTestServer(t)
	catID, walletID, _ := seedCategories(t, store)

	doRequest(t, srv, http.MethodPost, "/api/transactions", map[string]any{
		"type": "expense", "date": "2024-03-10", "amount": 10,
		"expense_category_id": catID, "wallet_category_id": walletID,
	})
	rec := doRequest(t, srv, http.MethodDelete, "/api/expense-categories/"+jsonNumber(catID), nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
}

func TestSetWalletBalanceOverride(t *testing.T) {
	srv, store := newTestServer(t)
	_, walletID, _ := seedCategories(t, store)

	rec := doRequest(t, srv, http.MethodPut, "/api/wallets/"+jsonNumber(walletID)+"/balance", map[string]any{
		"balance": "-12.30",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	wallets, err := store.ListWalletCategories(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if wallets[0].Balance != -1230 {
		t.Fatalf("balance = %d", wallets[0].Balance)
	}
}

func TestBudgetUpsertAndSummary(t *testing.T) {
	srv, store := newTestServer(t)
	catID, walletID, _ := seedCategories(t, store)

	rec := doRequest(t, srv, http.MethodPost, "/api/budgets", map[string]any{
		"year": 2024, "month": 3, "expense_category_id": catID, "amount": 400,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("budget status = %d, body = %s", rec.Code, rec.Body.String())
	}

	doRequest(t, srv, http.MethodPost, "/api/transactions", map[string]any{
		"type": "expense", "date": "2024-03-10", "amount": 120,
		"expense_category_id": catID, "wallet_category_id": walletID,
	})

	rec = doRequest(t, srv, http.MethodGet, "/api/summary/2024/3", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("summary status = %d", rec.Code)
	}
	sum := decodeBody[summaryJSON](t, rec)
	if sum.TotalBudget != 400 || sum.TotalSpent != 120 || sum.TotalRemaining != 280 {
		t.Fatalf("summary = %+v", sum)
	}
	if len(sum.Categories) != 1 || sum.Categories[0].CategoryName != "Groceries" {
		t.Fatalf("categories = %+v", sum.Categories)
	}
}

func TestBudgetAdjustmentEndpoint(t *testing.T) {
	srv, store := newTestServer(t)
	catID, _, _ := seedCategories(t, store)

	rec := doRequest(t, srv, http.MethodPost, "/api/budget-adjustments", map[string]any{
		"year": 2024, "month": 3, "expense_category_id": catID, "amount": "-15.00",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	created := decodeBody[map[string]any](t, rec)
	if created["amount"].(float64) != -15 {
		t.Fatalf("amount = %v", created["amount"])
	}
}

func TestStatsExcludeInternalMovements(t *testing.T) {
	srv, store := newTestServer(t)
	catID, walletID, _ := seedCategories(t, store)
	cash, err := store.CreateWalletCategory(context.Background(), "Cash", 0)
	if err != nil {
		t.Fatal(err)
	}

	doRequest(t, srv, http.MethodPost, "/api/transactions", map[string]any{
		"type": "expense", "date": "2024-03-10", "amount": 30,
		"expense_category_id": catID, "wallet_category_id": walletID,
	})
	doRequest(t, srv, http.MethodPost, "/api/transactions", map[string]any{
		"type": "transfer", "date": "2024-03-11", "amount": 50,
		"transfer_from_wallet_id": walletID, "transfer_to_wallet_id": cash.ID,
	})

	rec := doRequest(t, srv, http.MethodGet, "/api/stats/2024/3", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	stats := decodeBody[statsJSON](t, rec)
	if stats.TotalExpense != 30 || stats.TotalIncome != 0 {
		t.Fatalf("stats = %+v", stats)
	}

	rec = doRequest(t, srv, http.MethodGet, "/api/stats/2024", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("yearly status = %d", rec.Code)
	}
	yearly := decodeBody[statsJSON](t, rec)
	if yearly.TotalExpense != 30 || yearly.Month != 0 {
		t.Fatalf("yearly = %+v", yearly)
	}
}

func TestBackupSQLEscapesQuotes(t *testing.T) {
	srv, store := newTestServer(t)
	if _, err := store.CreateExpenseCategory(context.Background(), "Tom's Bar"); err != nil {
		t.Fatal(err)
	}

	rec := doRequest(t, srv, http.MethodGet, "/api/backup/sql", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, "'Tom''s Bar'") {
		t.Fatalf("quote not escaped:\n%s", body)
	}
	if !strings.HasPrefix(body, "BEGIN;\n") || !strings.HasSuffix(body, "COMMIT;\n") {
		t.Fatalf("dump not wrapped in a transaction:\n%s", body)
	}
}

func TestBackupJSONContainsAllTables(t *testing.T) {
	srv, store := newTestServer(t)
	seedCategories(t, store)

	rec := doRequest(t, srv, http.MethodGet, "/api/backup/json", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	dump := decodeBody[map[string]any](t, rec)
	for _, key := range []string{"ExpenseCategories", "WalletCategories", "CreditCategories"} {
		if dump[key] == nil {
			t.Fatalf("missing %s in dump: %v", key, dump)
		}
	}
}

func TestDatabaseStatus(t *testing.T) {
	srv, store := newTestServer(t)
	seedCategories(t, store)

	rec := doRequest(t, srv, http.MethodGet, "/api/database/status", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	status := decodeBody[map[string]any](t, rec)
	if status["backend"] != "memory" {
		t.Fatalf("backend = %v", status["backend"])
	}
	tables := status["tables"].(map[string]any)
	if tables["expense_categories"].(float64) != 1 {
		t.Fatalf("tables = %v", tables)
	}
}

func TestParseFuzzyNotConfigured(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := doRequest(t, srv, http.MethodPost, "/api/parse-fuzzy", map[string]any{"text": "lunch 12.50"})
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d", rec.Code)
	}
}

type stubProvider struct {
	reply string
	err   error
}

func (p *stubProvider) Complete(ctx context.Context, system, user string) (string, error) {
	if p.err != nil {
		return "", p.err
	}
	return p.reply, nil
}

func TestParseFuzzyEndToEnd(t *testing.T) {
	store := memory.New()
	if _, err := store.CreateExpenseCategory(context.Background(), "Groceries"); err != nil {
		t.Fatal(err)
	}
	provider := &stubProvider{reply: `{"type":"expense","amount":12.5,"expense_category":"Groceries"}`}
	parser := fuzzy.NewParser(provider, store)

	srv := NewServer(Config{
		Addr:         ":0",
		Store:        store,
		Transactions: services.NewTransactionService(ledger.New(store), nil),
		Summaries:    summary.NewService(store),
		Parser:       parser,
		BackendName:  "memory",
	})
	t.Cleanup(func() { srv.rateLimiter.stop() })

	rec := doRequest(t, srv, http.MethodPost, "/api/parse-fuzzy", map[string]any{"text": "groceries 12.50"})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	res := decodeBody[map[string]any](t, rec)
	if res["expense_category_id"].(float64) != 1 {
		t.Fatalf("result = %v", res)
	}
}

func TestSecurityHeadersAndRequestID(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := doRequest(t, srv, http.MethodGet, "/healthz", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if rec.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Fatal("missing X-Content-Type-Options")
	}
	if !strings.HasPrefix(rec.Header().Get("X-Request-ID"), "req_") {
		t.Fatalf("request id = %q", rec.Header().Get("X-Request-ID"))
	}
}

func TestRateLimitOnMutations(t *testing.T) {
	srv, _ := newTestServer(t)

	var last int
	for i := 0; i < 61; i++ {
		rec := doRequest(t, srv, http.MethodPost, "/api/expense-categories", map[string]any{
			"name": "cat-" + jsonNumber(int64(i)),
		})
		last = rec.Code
	}
	if last != http.StatusTooManyRequests {
		t.Fatalf("61st request status = %d", last)
	}
}

func jsonNumber(v int64) string {
	return strconv.FormatInt(v, 10)
}
