// Package fuzzy turns free-form text like "bought lunch at the corner
// shop, 12.50" into a structured transaction draft using a language
// model, then resolves the category names it picked back to ids.
package fuzzy

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"kakeibo/internal/core"
	"kakeibo/internal/llm"
)

// CategoryResolver is the slice of the store the parser needs: category
// listings for the prompt and name lookups for the reply.
type CategoryResolver interface {
	ListExpenseCategories(ctx context.Context) ([]core.ExpenseCategory, error)
	ListWalletCategories(ctx context.Context) ([]core.WalletCategory, error)
	ListCreditCategories(ctx context.Context) ([]core.CreditCategory, error)
	FindExpenseCategoryByName(ctx context.Context, name string) (core.ExpenseCategory, error)
	FindWalletCategoryByName(ctx context.Context, name string) (core.WalletCategory, error)
	FindCreditCategoryByName(ctx context.Context, name string) (core.CreditCategory, error)
}

// Result is the transaction draft handed back to the client. Name
// fields carry what the model chose; the matching *_id fields are 0
// when the name did not resolve to a known category.
type Result struct {
	Type            string   `json:"type"`
	Amount          float64  `json:"amount"`
	Date            string   `json:"date,omitempty"`
	ExpenseCategory string   `json:"expense_category,omitempty"`
	WalletCategory  string   `json:"wallet_category,omitempty"`
	CreditCategory  string   `json:"credit_category,omitempty"`
	TransferFrom    string   `json:"transfer_from_wallet,omitempty"`
	TransferTo      string   `json:"transfer_to_wallet,omitempty"`
	ChargeToWallet  string   `json:"charge_to_wallet,omitempty"`
	ChargeFrom      string   `json:"charge_from_credit,omitempty"`
	Description     string   `json:"description,omitempty"`
	PaymentLocation string   `json:"payment_location,omitempty"`
	Memo            string   `json:"memo,omitempty"`
	MissingFields   []string `json:"missing_fields,omitempty"`

	ExpenseCategoryID int64 `json:"expense_category_id,omitempty"`
	WalletCategoryID  int64 `json:"wallet_category_id,omitempty"`
	CreditCategoryID  int64 `json:"credit_category_id,omitempty"`
	TransferFromID    int64 `json:"transfer_from_wallet_id,omitempty"`
	TransferToID      int64 `json:"transfer_to_wallet_id,omitempty"`
	ChargeToWalletID  int64 `json:"charge_to_wallet_id,omitempty"`
	ChargeFromID      int64 `json:"charge_from_credit_id,omitempty"`
}

type Parser struct {
	provider llm.Provider
	store    CategoryResolver
	now      func() time.Time
}

func NewParser(provider llm.Provider, store CategoryResolver) *Parser {
	return &Parser{provider: provider, store: store, now: time.Now}
}

// Parse asks the model for a structured draft and resolves the category
// names it returned. Provider failures and unparseable replies surface
// as core.UpstreamError.
func (p *Parser) Parse(ctx context.Context, text string) (Result, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Result{}, core.Validationf("text is required")
	}

	system, err := p.systemPrompt(ctx)
	if err != nil {
		return Result{}, err
	}

	reply, err := p.provider.Complete(ctx, system, text)
	if err != nil {
		return Result{}, err
	}

	var res Result
	if err := json.Unmarshal([]byte(stripFences(reply)), &res); err != nil {
		return Result{}, &core.UpstreamError{Op: "parse model reply", Err: err}
	}

	p.resolve(ctx, &res)
	return res, nil
}

func (p *Parser) systemPrompt(ctx context.Context) (string, error) {
	expense, err := p.store.ListExpenseCategories(ctx)
	if err != nil {
		return "", fmt.Errorf("list expense categories: %w", err)
	}
	wallets, err := p.store.ListWalletCategories(ctx)
	if err != nil {
		return "", fmt.Errorf("list wallet categories: %w", err)
	}
	credits, err := p.store.ListCreditCategories(ctx)
	if err != nil {
		return "", fmt.Errorf("list credit categories: %w", err)
	}

	var expenseNames, walletNames, creditNames []string
	for _, c := range expense {
		expenseNames = append(expenseNames, c.Name)
	}
	for _, c := range wallets {
		walletNames = append(walletNames, c.Name)
	}
	for _, c := range credits {
		creditNames = append(creditNames, c.Name)
	}

	today := p.now()
	yesterday := today.AddDate(0, 0, -1)
	dayBefore := today.AddDate(0, 0, -2)

	var b strings.Builder
	b.WriteString("You are the assistant of a household budget tracker. ")
	b.WriteString("Extract transaction details from the user's natural-language input and reply with JSON only.\n\n")
	fmt.Fprintf(&b, "Today: %s\nYesterday: %s\nDay before yesterday: %s\n\n",
		today.Format("2006-01-02"), yesterday.Format("2006-01-02"), dayBefore.Format("2006-01-02"))
	fmt.Fprintf(&b, "Available categories:\nExpense categories: %s\nWallets: %s\nCredit cards: %s\n\n",
		strings.Join(expenseNames, ", "), strings.Join(walletNames, ", "), strings.Join(creditNames, ", "))
	b.WriteString(`Transaction type rules, checked in order:
1. The text mentions topping up or charging a wallet -> type "charge"
2. The text mentions moving money between wallets -> type "transfer"
3. The text mentions salary, income, a deposit or a bonus -> type "income"
4. Anything else that is a purchase or payment -> type "expense"

The type must be exactly one of "expense", "income", "transfer", "charge".

Required fields per type:
- expense: amount, expense_category, wallet_category OR credit_category, description
- income: amount, wallet_category, description (expense_category null)
- transfer: amount, transfer_from_wallet, transfer_to_wallet, description
- charge: amount, charge_to_wallet, charge_from_credit, description

Optional fields:
- date: YYYY-MM-DD, converted from phrases like "yesterday" or "March 3rd"; null when absent
- payment_location: shop or venue name
- memo: free-form note

Reply with this JSON shape and nothing else (no prose, no markdown):
{
  "type": "expense" | "income" | "transfer" | "charge",
  "amount": number,
  "date": "YYYY-MM-DD" or null,
  "expense_category": "name" or null,
  "wallet_category": "name" or null,
  "credit_category": "name" or null,
  "transfer_from_wallet": "name" or null,
  "transfer_to_wallet": "name" or null,
  "charge_to_wallet": "name" or null,
  "charge_from_credit": "name" or null,
  "description": "text",
  "payment_location": "name" or null,
  "memo": "text" or null,
  "missing_fields": ["names of required fields that could not be filled"]
}`)
	return b.String(), nil
}

// resolve maps category names back to ids. An unknown name leaves its
// id at 0 so the client can ask the user to pick one.
func (p *Parser) resolve(ctx context.Context, res *Result) {
	if res.ExpenseCategory != "" {
		if c, err := p.store.FindExpenseCategoryByName(ctx, res.ExpenseCategory); err == nil {
			res.ExpenseCategoryID = c.ID
		}
	}
	if res.WalletCategory != "" {
		if c, err := p.store.FindWalletCategoryByName(ctx, res.WalletCategory); err == nil {
			res.WalletCategoryID = c.ID
		}
	}
	if res.CreditCategory != "" {
		if c, err := p.store.FindCreditCategoryByName(ctx, res.CreditCategory); err == nil {
			res.CreditCategoryID = c.ID
		}
	}
	if res.TransferFrom != "" {
		if c, err := p.store.FindWalletCategoryByName(ctx, res.TransferFrom); err == nil {
			res.TransferFromID = c.ID
		}
	}
	if res.TransferTo != "" {
		if c, err := p.store.FindWalletCategoryByName(ctx, res.TransferTo); err == nil {
			res.TransferToID = c.ID
		}
	}
	if res.ChargeToWallet != "" {
		if c, err := p.store.FindWalletCategoryByName(ctx, res.ChargeToWallet); err == nil {
			res.ChargeToWalletID = c.ID
		}
	}
	if res.ChargeFrom != "" {
		if c, err := p.store.FindCreditCategoryByName(ctx, res.ChargeFrom); err == nil {
			res.ChargeFromID = c.ID
		}
	}
}

// stripFences removes a markdown code fence around the model reply.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	}
	return strings.TrimSpace(s)
}
