// Package memory is an in-process storage backend. It backs the test
// suites and the DATA_BACKEND=memory mode; nothing survives a restart.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"kakeibo/internal/core"
	"kakeibo/internal/ledger"
	"kakeibo/internal/storage"
	"kakeibo/internal/summary"
)

type creditKey struct {
	year     int
	month    int
	creditID int64
}

type budgetKey struct {
	year       int
	month      int
	categoryID int64
}

// Store keeps every table in maps guarded by one RWMutex. WithinTx takes
// the write lock for the whole callback and rolls back by restoring a
// snapshot, which is plenty for a single-household workload.
type Store struct {
	mu  sync.RWMutex
	seq int64

	expenseCats  map[int64]core.ExpenseCategory
	walletCats   map[int64]core.WalletCategory
	creditCats   map[int64]core.CreditCategory
	transactions map[int64]core.Transaction
	budgets      map[budgetKey]core.MonthlyBudget
	creditSums   map[creditKey]int64

	now func() time.Time
}

func New() *Store {
	return &Store{
		expenseCats:  make(map[int64]core.ExpenseCategory),
		walletCats:   make(map[int64]core.WalletCategory),
		creditCats:   make(map[int64]core.CreditCategory),
		transactions: make(map[int64]core.Transaction),
		budgets:      make(map[budgetKey]core.MonthlyBudget),
		creditSums:   make(map[creditKey]int64),
		now:          time.Now,
	}
}

var _ storage.Store = (*Store)(nil)

func (s *Store) Close() error { return nil }

func (s *Store) nextID() int64 {
	s.seq++
	return s.seq
}

type snapshot struct {
	seq          int64
	expenseCats  map[int64]core.ExpenseCategory
	walletCats   map[int64]core.WalletCategory
	creditCats   map[int64]core.CreditCategory
	transactions map[int64]core.Transaction
	budgets      map[budgetKey]core.MonthlyBudget
	creditSums   map[creditKey]int64
}

func (s *Store) snapshot() snapshot {
	return snapshot{
		seq:          s.seq,
		expenseCats:  cloneMap(s.expenseCats),
		walletCats:   cloneMap(s.walletCats),
		creditCats:   cloneMap(s.creditCats),
		transactions: cloneMap(s.transactions),
		budgets:      cloneMap(s.budgets),
		creditSums:   cloneMap(s.creditSums),
	}
}

func (s *Store) restore(snap snapshot) {
	s.seq = snap.seq
	s.expenseCats = snap.expenseCats
	s.walletCats = snap.walletCats
	s.creditCats = snap.creditCats
	s.transactions = snap.transactions
	s.budgets = snap.budgets
	s.creditSums = snap.creditSums
}

func cloneMap[K comparable, V any](m map[K]V) map[K]V {
	out := make(map[K]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// WithinTx runs fn holding the write lock and restores the pre-call
// state when fn fails.
func (s *Store) WithinTx(ctx context.Context, fn func(tx ledger.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := s.snapshot()
	if err := fn(&memTx{s: s}); err != nil {
		s.restore(snap)
		return err
	}
	return nil
}

// memTx mutates the store directly; the caller already holds the lock.
type memTx struct {
	s *Store
}

func (t *memTx) InsertTransaction(ctx context.Context, tr core.Transaction) (int64, error) {
	tr.ID = t.s.nextID()
	now := t.s.now()
	tr.CreatedAt = now
	tr.UpdatedAt = now
	t.s.transactions[tr.ID] = tr
	return tr.ID, nil
}

func (t *memTx) GetTransaction(ctx context.Context, id int64) (core.Transaction, error) {
	tr, ok := t.s.transactions[id]
	if !ok {
		return core.Transaction{}, core.ErrNotFound
	}
	return tr, nil
}

func (t *memTx) UpdateTransaction(ctx context.Context, tr core.Transaction) error {
	old, ok := t.s.transactions[tr.ID]
	if !ok {
		return core.ErrNotFound
	}
	tr.CreatedAt = old.CreatedAt
	tr.UpdatedAt = t.s.now()
	t.s.transactions[tr.ID] = tr
	return nil
}

func (t *memTx) DeleteTransaction(ctx context.Context, id int64) error {
	if _, ok := t.s.transactions[id]; !ok {
		return core.ErrNotFound
	}
	delete(t.s.transactions, id)
	return nil
}

func (t *memTx) SetLink(ctx context.Context, id, linkedID int64) error {
	tr, ok := t.s.transactions[id]
	if !ok {
		return core.ErrNotFound
	}
	tr.LinkedID = linkedID
	t.s.transactions[id] = tr
	return nil
}

func (t *memTx) WalletBalance(ctx context.Context, walletID int64) (int64, error) {
	w, ok := t.s.walletCats[walletID]
	if !ok {
		return 0, core.ErrNotFound
	}
	return w.Balance, nil
}

func (t *memTx) AdjustWalletBalance(ctx context.Context, walletID, delta int64) error {
	w, ok := t.s.walletCats[walletID]
	if !ok {
		return core.ErrNotFound
	}
	w.Balance += delta
	t.s.walletCats[walletID] = w
	return nil
}

func (t *memTx) AddCreditUsage(ctx context.Context, year, month int, creditID, delta int64) error {
	if _, ok := t.s.creditCats[creditID]; !ok {
		return core.ErrNotFound
	}
	key := creditKey{year: year, month: month, creditID: creditID}
	t.s.creditSums[key] += delta
	return nil
}

func (t *memTx) RemainingBudget(ctx context.Context, year, month int, categoryID int64) (int64, error) {
	if _, ok := t.s.expenseCats[categoryID]; !ok {
		return 0, core.ErrNotFound
	}
	var budget int64
	if b, ok := t.s.budgets[budgetKey{year: year, month: month, categoryID: categoryID}]; ok {
		budget = b.BudgetAmount
	}
	var net int64
	for _, tr := range t.s.transactions {
		if tr.ExpenseCategoryID != categoryID || tr.Date.Year() != year || tr.Date.Month() != month {
			continue
		}
		if tr.Type == core.RowExpense {
			net += tr.Amount.Cents
		} else {
			net -= tr.Amount.Cents
		}
	}
	return budget - net, nil
}

// --- categories ---

func (s *Store) ListExpenseCategories(ctx context.Context) ([]core.ExpenseCategory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]core.ExpenseCategory, 0, len(s.expenseCats))
	for _, c := range s.expenseCats {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) CreateExpenseCategory(ctx context.Context, name string) (core.ExpenseCategory, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.expenseCats {
		if strings.EqualFold(c.Name, name) {
			return core.ExpenseCategory{}, core.Validationf("category %q already exists", name)
		}
	}
	c := core.ExpenseCategory{ID: s.nextID(), Name: name, CreatedAt: s.now()}
	s.expenseCats[c.ID] = c
	return c, nil
}

func (s *Store) DeleteExpenseCategory(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.expenseCats[id]; !ok {
		return core.ErrNotFound
	}
	for _, tr := range s.transactions {
		if tr.ExpenseCategoryID == id {
			return core.Validationf("category is still referenced by transactions")
		}
	}
	for key := range s.budgets {
		if key.categoryID == id {
			delete(s.budgets, key)
		}
	}
	delete(s.expenseCats, id)
	return nil
}

func (s *Store) FindExpenseCategoryByName(ctx context.Context, name string) (core.ExpenseCategory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, c := range s.expenseCats {
		if strings.EqualFold(c.Name, name) {
			return c, nil
		}
	}
	return core.ExpenseCategory{}, core.ErrNotFound
}

func (s *Store) ListWalletCategories(ctx context.Context) ([]core.WalletCategory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]core.WalletCategory, 0, len(s.walletCats))
	for _, c := range s.walletCats {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) CreateWalletCategory(ctx context.Context, name string, initialBalance int64) (core.WalletCategory, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.walletCats {
		if strings.EqualFold(c.Name, name) {
			return core.WalletCategory{}, core.Validationf("wallet %q already exists", name)
		}
	}
	c := core.WalletCategory{ID: s.nextID(), Name: name, Balance: initialBalance, CreatedAt: s.now()}
	s.walletCats[c.ID] = c
	return c, nil
}

func (s *Store) DeleteWalletCategory(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.walletCats[id]; !ok {
		return core.ErrNotFound
	}
	for _, tr := range s.transactions {
		if tr.WalletCategoryID == id {
			return core.Validationf("wallet is still referenced by transactions")
		}
	}
	delete(s.walletCats, id)
	return nil
}

func (s *Store) FindWalletCategoryByName(ctx context.Context, name string) (core.WalletCategory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, c := range s.walletCats {
		if strings.EqualFold(c.Name, name) {
			return c, nil
		}
	}
	return core.WalletCategory{}, core.ErrNotFound
}

func (s *Store) SetWalletBalance(ctx context.Context, id int64, balance int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.walletCats[id]
	if !ok {
		return core.ErrNotFound
	}
	w.Balance = balance
	s.walletCats[id] = w
	return nil
}

func (s *Store) ListCreditCategories(ctx context.Context) ([]core.CreditCategory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]core.CreditCategory, 0, len(s.creditCats))
	for _, c := range s.creditCats {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) CreateCreditCategory(ctx context.Context, name string) (core.CreditCategory, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.creditCats {
		if strings.EqualFold(c.Name, name) {
			return core.CreditCategory{}, core.Validationf("credit card %q already exists", name)
		}
	}
	c := core.CreditCategory{ID: s.nextID(), Name: name, CreatedAt: s.now()}
	s.creditCats[c.ID] = c
	return c, nil
}

func (s *Store) DeleteCreditCategory(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.creditCats[id]; !ok {
		return core.ErrNotFound
	}
	for _, tr := range s.transactions {
		if tr.CreditCategoryID == id {
			return core.Validationf("credit card is still referenced by transactions")
		}
	}
	for key := range s.creditSums {
		if key.creditID == id {
			delete(s.creditSums, key)
		}
	}
	delete(s.creditCats, id)
	return nil
}

func (s *Store) FindCreditCategoryByName(ctx context.Context, name string) (core.CreditCategory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, c := range s.creditCats {
		if strings.EqualFold(c.Name, name) {
			return c, nil
		}
	}
	return core.CreditCategory{}, core.ErrNotFound
}

// --- budgets ---

func (s *Store) ListBudgets(ctx context.Context, year, month int) ([]core.MonthlyBudget, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []core.MonthlyBudget
	for key, b := range s.budgets {
		if key.year == year && key.month == month {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ExpenseCategoryID < out[j].ExpenseCategoryID })
	return out, nil
}

func (s *Store) UpsertBudget(ctx context.Context, b core.MonthlyBudget) (core.MonthlyBudget, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.expenseCats[b.ExpenseCategoryID]; !ok {
		return core.MonthlyBudget{}, core.ErrNotFound
	}
	key := budgetKey{year: b.Year, month: b.Month, categoryID: b.ExpenseCategoryID}
	if existing, ok := s.budgets[key]; ok {
		existing.BudgetAmount = b.BudgetAmount
		s.budgets[key] = existing
		return existing, nil
	}
	b.ID = s.nextID()
	s.budgets[key] = b
	return b, nil
}

// --- transaction reads ---

func (s *Store) detail(tr core.Transaction) core.TransactionDetail {
	d := core.TransactionDetail{Transaction: tr}
	if c, ok := s.expenseCats[tr.ExpenseCategoryID]; ok {
		d.ExpenseCategoryName = c.Name
	}
	if c, ok := s.walletCats[tr.WalletCategoryID]; ok {
		d.WalletCategoryName = c.Name
	}
	if c, ok := s.creditCats[tr.CreditCategoryID]; ok {
		d.CreditCategoryName = c.Name
	}
	return d
}

func (s *Store) listWhere(keep func(core.Transaction) bool, newestFirst bool) []core.TransactionDetail {
	var out []core.TransactionDetail
	for _, tr := range s.transactions {
		if keep(tr) {
			out = append(out, s.detail(tr))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if !a.Date.Equal(b.Date.Time) {
			if newestFirst {
				return a.Date.After(b.Date.Time)
			}
			return a.Date.Before(b.Date.Time)
		}
		if newestFirst {
			return a.ID > b.ID
		}
		return a.ID < b.ID
	})
	return out
}

func (s *Store) GetDetail(ctx context.Context, id int64) (core.TransactionDetail, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	tr, ok := s.transactions[id]
	if !ok {
		return core.TransactionDetail{}, core.ErrNotFound
	}
	return s.detail(tr), nil
}

func (s *Store) ListByDate(ctx context.Context, date core.Date) ([]core.TransactionDetail, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	want := date.String()
	return s.listWhere(func(tr core.Transaction) bool {
		return tr.Date.String() == want
	}, false), nil
}

func (s *Store) ListByMonth(ctx context.Context, year, month int) ([]core.TransactionDetail, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.listWhere(func(tr core.Transaction) bool {
		return tr.Date.Year() == year && tr.Date.Month() == month
	}, false), nil
}

func (s *Store) ListAll(ctx context.Context) ([]core.TransactionDetail, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.listWhere(func(core.Transaction) bool { return true }, true), nil
}

func (s *Store) ListByCategory(ctx context.Context, year, month int, categoryID int64, kind storage.CategoryKind) ([]core.TransactionDetail, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.listWhere(func(tr core.Transaction) bool {
		if tr.Date.Year() != year || tr.Date.Month() != month {
			return false
		}
		switch kind {
		case storage.KindExpenseCategory:
			return tr.ExpenseCategoryID == categoryID
		case storage.KindWalletCategory:
			return tr.WalletCategoryID == categoryID
		case storage.KindCreditCategory:
			return tr.CreditCategoryID == categoryID
		}
		return false
	}, false), nil
}

func (s *Store) ListByWallet(ctx context.Context, year, month int, walletID int64) ([]core.TransactionDetail, error) {
	return s.ListByCategory(ctx, year, month, walletID, storage.KindWalletCategory)
}

// --- summary reads ---

func inPeriod(tr core.Transaction, year, month int) bool {
	if tr.Date.Year() != year {
		return false
	}
	return month == 0 || tr.Date.Month() == month
}

func (s *Store) MonthCategoryNets(ctx context.Context, year, month int) ([]summary.CategoryNet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.categoryNets(year, month, false), nil
}

func (s *Store) UserEntryCategoryNets(ctx context.Context, year, month int) ([]summary.CategoryNet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.categoryNets(year, month, true), nil
}

func (s *Store) categoryNets(year, month int, userEntryOnly bool) []summary.CategoryNet {
	byCat := make(map[int64]*summary.CategoryNet)
	for _, tr := range s.transactions {
		if tr.ExpenseCategoryID == 0 || !inPeriod(tr, year, month) {
			continue
		}
		if userEntryOnly && tr.Origin != core.OriginUserEntry {
			continue
		}
		n, ok := byCat[tr.ExpenseCategoryID]
		if !ok {
			n = &summary.CategoryNet{CategoryID: tr.ExpenseCategoryID}
			if c, found := s.expenseCats[tr.ExpenseCategoryID]; found {
				n.CategoryName = c.Name
			}
			byCat[tr.ExpenseCategoryID] = n
		}
		if tr.Type == core.RowExpense {
			n.Expense += tr.Amount.Cents
		} else {
			n.Income += tr.Amount.Cents
		}
	}
	out := make([]summary.CategoryNet, 0, len(byCat))
	for _, n := range byCat {
		out = append(out, *n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CategoryID < out[j].CategoryID })
	return out
}

func (s *Store) MonthCreditTotals(ctx context.Context, year, month int) ([]summary.CreditTotal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []summary.CreditTotal
	for key, total := range s.creditSums {
		if key.year != year || key.month != month {
			continue
		}
		ct := summary.CreditTotal{CreditCategoryID: key.creditID, TotalAmount: total}
		if c, ok := s.creditCats[key.creditID]; ok {
			ct.CreditCategoryName = c.Name
		}
		out = append(out, ct)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreditCategoryID < out[j].CreditCategoryID })
	return out, nil
}

func (s *Store) UserEntryTotals(ctx context.Context, year, month int) (income, expense int64, err error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, tr := range s.transactions {
		if tr.Origin != core.OriginUserEntry || !inPeriod(tr, year, month) {
			continue
		}
		if tr.Type == core.RowExpense {
			expense += tr.Amount.Cents
		} else {
			income += tr.Amount.Cents
		}
	}
	return income, expense, nil
}

func (s *Store) UserEntryWalletNets(ctx context.Context, year, month int) ([]summary.WalletNet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	byWallet := make(map[int64]*summary.WalletNet)
	for _, tr := range s.transactions {
		if tr.WalletCategoryID == 0 || tr.Origin != core.OriginUserEntry || !inPeriod(tr, year, month) {
			continue
		}
		n, ok := byWallet[tr.WalletCategoryID]
		if !ok {
			n = &summary.WalletNet{WalletID: tr.WalletCategoryID}
			if c, found := s.walletCats[tr.WalletCategoryID]; found {
				n.WalletName = c.Name
			}
			byWallet[tr.WalletCategoryID] = n
		}
		if tr.Type == core.RowExpense {
			n.Expense += tr.Amount.Cents
		} else {
			n.Income += tr.Amount.Cents
		}
	}
	out := make([]summary.WalletNet, 0, len(byWallet))
	for _, n := range byWallet {
		out = append(out, *n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].WalletID < out[j].WalletID })
	return out, nil
}

// --- backup and status ---

func (s *Store) ExportAll(ctx context.Context) (storage.Dump, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var dump storage.Dump
	for _, c := range s.expenseCats {
		dump.ExpenseCategories = append(dump.ExpenseCategories, c)
	}
	for _, c := range s.walletCats {
		dump.WalletCategories = append(dump.WalletCategories, c)
	}
	for _, c := range s.creditCats {
		dump.CreditCategories = append(dump.CreditCategories, c)
	}
	for _, tr := range s.transactions {
		dump.Transactions = append(dump.Transactions, tr)
	}
	for _, b := range s.budgets {
		dump.MonthlyBudgets = append(dump.MonthlyBudgets, b)
	}
	for key, total := range s.creditSums {
		dump.MonthlyCreditSummaries = append(dump.MonthlyCreditSummaries, core.MonthlyCreditSummary{
			Year:             key.year,
			Month:            key.month,
			CreditCategoryID: key.creditID,
			TotalAmount:      total,
		})
	}

	sort.Slice(dump.ExpenseCategories, func(i, j int) bool { return dump.ExpenseCategories[i].ID < dump.ExpenseCategories[j].ID })
	sort.Slice(dump.WalletCategories, func(i, j int) bool { return dump.WalletCategories[i].ID < dump.WalletCategories[j].ID })
	sort.Slice(dump.CreditCategories, func(i, j int) bool { return dump.CreditCategories[i].ID < dump.CreditCategories[j].ID })
	sort.Slice(dump.Transactions, func(i, j int) bool { return dump.Transactions[i].ID < dump.Transactions[j].ID })
	sort.Slice(dump.MonthlyBudgets, func(i, j int) bool { return dump.MonthlyBudgets[i].ID < dump.MonthlyBudgets[j].ID })
	sort.Slice(dump.MonthlyCreditSummaries, func(i, j int) bool {
		a, b := dump.MonthlyCreditSummaries[i], dump.MonthlyCreditSummaries[j]
		if a.Year != b.Year {
			return a.Year < b.Year
		}
		if a.Month != b.Month {
			return a.Month < b.Month
		}
		return a.CreditCategoryID < b.CreditCategoryID
	})
	return dump, nil
}

func (s *Store) Counts(ctx context.Context) (storage.Counts, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return storage.Counts{
		ExpenseCategories:      int64(len(s.expenseCats)),
		WalletCategories:       int64(len(s.walletCats)),
		CreditCategories:       int64(len(s.creditCats)),
		Transactions:           int64(len(s.transactions)),
		MonthlyBudgets:         int64(len(s.budgets)),
		MonthlyCreditSummaries: int64(len(s.creditSums)),
	}, nil
}
