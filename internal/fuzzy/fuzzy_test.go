package fuzzy_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"kakeibo/internal/core"
	"kakeibo/internal/fuzzy"
	"kakeibo/internal/storage/memory"
)

type fakeProvider struct {
	reply      string
	err        error
	lastSystem string
	lastUser   string
}

func (f *fakeProvider) Complete(ctx context.Context, system, user string) (string, error) {
	f.lastSystem = system
	f.lastUser = user
	return f.reply, f.err
}

func seedStore(t *testing.T) *memory.Store {
	t.Helper()
	ctx := context.Background()
	s := memory.New()
	if _, err := s.CreateExpenseCategory(ctx, "Groceries"); err != nil {
		t.Fatal(err)
	}
	if _, err := s.CreateWalletCategory(ctx, "Checking", 0); err != nil {
		t.Fatal(err)
	}
	if _, err := s.CreateCreditCategory(ctx, "Visa"); err != nil {
		t.Fatal(err)
	}
	return s
}

func TestParseResolvesCategoryIDs(t *testing.T) {
	store := seedStore(t)
	provider := &fakeProvider{reply: "```json\n" + `{
		"type": "expense",
		"amount": 12.5,
		"expense_category": "Groceries",
		"wallet_category": "Checking",
		"description": "lunch"
	}` + "\n```"}
	p := fuzzy.NewParser(provider, store)

	res, err := p.Parse(context.Background(), "bought lunch for 12.50 from checking")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if res.Type != "expense" || res.Amount != 12.5 {
		t.Fatalf("unexpected draft: %+v", res)
	}
	if res.ExpenseCategoryID == 0 || res.WalletCategoryID == 0 {
		t.Fatalf("ids not resolved: %+v", res)
	}

	if !strings.Contains(provider.lastSystem, "Groceries") ||
		!strings.Contains(provider.lastSystem, "Checking") ||
		!strings.Contains(provider.lastSystem, "Visa") {
		t.Fatal("prompt must list the known categories")
	}
	if provider.lastUser != "bought lunch for 12.50 from checking" {
		t.Fatalf("user prompt = %q", provider.lastUser)
	}
}

func TestParseUnknownCategoryLeavesIDZero(t *testing.T) {
	store := seedStore(t)
	provider := &fakeProvider{reply: `{"type":"expense","amount":5,"expense_category":"Gifts","description":"x"}`}
	p := fuzzy.NewParser(provider, store)

	res, err := p.Parse(context.Background(), "gift for 5")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if res.ExpenseCategoryID != 0 {
		t.Fatalf("unknown category resolved to %d", res.ExpenseCategoryID)
	}
	if res.ExpenseCategory != "Gifts" {
		t.Fatalf("model's pick must be kept, got %q", res.ExpenseCategory)
	}
}

func TestParseEmptyTextIsValidation(t *testing.T) {
	p := fuzzy.NewParser(&fakeProvider{}, seedStore(t))
	if _, err := p.Parse(context.Background(), "   "); !core.IsValidation(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestParseProviderFailurePassesThrough(t *testing.T) {
	upstream := &core.UpstreamError{Op: "chat completion", Err: errors.New("timeout")}
	p := fuzzy.NewParser(&fakeProvider{err: upstream}, seedStore(t))
	_, err := p.Parse(context.Background(), "lunch 12.50")
	if !core.IsUpstream(err) {
		t.Fatalf("expected upstream error, got %v", err)
	}
}

func TestParseMalformedReplyIsUpstream(t *testing.T) {
	p := fuzzy.NewParser(&fakeProvider{reply: "sorry, I cannot help with that"}, seedStore(t))
	_, err := p.Parse(context.Background(), "lunch 12.50")
	if !core.IsUpstream(err) {
		t.Fatalf("expected upstream error, got %v", err)
	}
}
