package core

import (
	"testing"
)

func TestParseDate(t *testing.T) {
	d, err := ParseDate("2024-03-15")
	if err != nil {
		t.Fatalf("expected ok, got %v", err)
	}
	if d.Year() != 2024 || d.Month() != 3 || d.Day() != 15 {
		t.Fatalf("unexpected parts: %d-%d-%d", d.Year(), d.Month(), d.Day())
	}
	if d.String() != "2024-03-15" {
		t.Fatalf("unexpected String(): %s", d.String())
	}

	for _, bad := range []string{"", "2024/03/15", "15-03-2024", "2024-13-01"} {
		if _, err := ParseDate(bad); err == nil {
			t.Errorf("ParseDate(%q) expected error", bad)
		}
	}
}

func TestTransactionValidate(t *testing.T) {
	good := Transaction{
		Date:             NewDate(2024, 3, 1),
		Amount:           Money{Cents: 500},
		Type:             RowExpense,
		Origin:           OriginUserEntry,
		WalletCategoryID: 1,
		Description:      "groceries",
	}
	if err := good.Validate(); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}

	cases := []struct {
		name string
		mut  func(*Transaction)
	}{
		{"zero date", func(tx *Transaction) { tx.Date = Date{} }},
		{"zero amount", func(tx *Transaction) { tx.Amount = Money{} }},
		{"bad type", func(tx *Transaction) { tx.Type = "refund" }},
		{"bad origin", func(tx *Transaction) { tx.Origin = "imported" }},
		{"wallet and credit", func(tx *Transaction) { tx.CreditCategoryID = 2 }},
	}
	for _, tc := range cases {
		tx := good
		tc.mut(&tx)
		if err := tx.Validate(); err == nil {
			t.Errorf("%s: expected error", tc.name)
		}
	}
}

func TestOriginIsPaired(t *testing.T) {
	paired := []Origin{OriginTransferLeg, OriginChargeLeg, OriginBudgetTransferLeg}
	for _, o := range paired {
		if !o.IsPaired() {
			t.Errorf("%s should be paired", o)
		}
	}
	for _, o := range []Origin{OriginUserEntry, OriginManualAdjustment} {
		if o.IsPaired() {
			t.Errorf("%s should not be paired", o)
		}
	}
}

func TestErrorTaxonomy(t *testing.T) {
	if !IsValidation(Validationf("nope")) {
		t.Fatal("Validationf should yield a ValidationError")
	}
	if IsValidation(ErrNotFound) {
		t.Fatal("ErrNotFound must not be a ValidationError")
	}
	ue := &UpstreamError{Op: "parse", Err: ErrNotFound}
	if !IsUpstream(ue) {
		t.Fatal("IsUpstream should match UpstreamError")
	}
	if IsUpstream(Validationf("nope")) {
		t.Fatal("validation error must not look upstream")
	}
}
