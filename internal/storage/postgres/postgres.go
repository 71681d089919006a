// Package postgres is the PostgreSQL storage backend, built on the pgx
// connection pool.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"kakeibo/internal/core"
	"kakeibo/internal/ledger"
	"kakeibo/internal/storage"
	"kakeibo/internal/summary"
)

type Store struct {
	pool *pgxpool.Pool
}

var _ storage.Store = (*Store)(nil)

// Open connects the pool and applies pending migrations.
func Open(ctx context.Context, url string) (*Store, error) {
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if err := runMigrations(pool); err != nil {
		pool.Close()
		return nil, err
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

func nullID(id int64) *int64 {
	if id == 0 {
		return nil
	}
	return &id
}

func deref(p *int64) int64 {
	if p == nil {
		return 0
	}
	return *p
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// WithinTx wraps fn in a database transaction.
func (s *Store) WithinTx(ctx context.Context, fn func(tx ledger.Tx) error) error {
	dbTx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer dbTx.Rollback(ctx)

	if err := fn(&pgTx{tx: dbTx}); err != nil {
		return err
	}
	if err := dbTx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

type pgTx struct {
	tx pgx.Tx
}

const txColumns = `
	t.id, t.date, t.amount, t.type, t.origin,
	t.expense_category_id, t.wallet_category_id, t.credit_category_id,
	t.linked_transaction_id, t.description, t.memo, t.payment_location, t.notes,
	t.created_at, t.updated_at`

func scanTransaction(row pgx.Row) (core.Transaction, error) {
	var (
		tr                      core.Transaction
		expCat, walCat, credCat *int64
		linked                  *int64
	)
	err := row.Scan(
		&tr.ID, &tr.Date.Time, &tr.Amount.Cents, &tr.Type, &tr.Origin,
		&expCat, &walCat, &credCat,
		&linked, &tr.Description, &tr.Memo, &tr.PaymentLocation, &tr.Notes,
		&tr.CreatedAt, &tr.UpdatedAt)
	if err != nil {
		return core.Transaction{}, err
	}
	tr.ExpenseCategoryID = deref(expCat)
	tr.WalletCategoryID = deref(walCat)
	tr.CreditCategoryID = deref(credCat)
	tr.LinkedID = deref(linked)
	return tr, nil
}

func (t *pgTx) InsertTransaction(ctx context.Context, tr core.Transaction) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `
		INSERT INTO transactions (
			date, amount, type, origin,
			expense_category_id, wallet_category_id, credit_category_id,
			linked_transaction_id, description, memo, payment_location, notes
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING id`,
		tr.Date.Time, tr.Amount.Cents, string(tr.Type), string(tr.Origin),
		nullID(tr.ExpenseCategoryID), nullID(tr.WalletCategoryID), nullID(tr.CreditCategoryID),
		nullID(tr.LinkedID), tr.Description, tr.Memo, tr.PaymentLocation, tr.Notes).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert transaction: %w", err)
	}
	return id, nil
}

func (t *pgTx) GetTransaction(ctx context.Context, id int64) (core.Transaction, error) {
	row := t.tx.QueryRow(ctx, "SELECT"+txColumns+" FROM transactions t WHERE t.id = $1", id)
	tr, err := scanTransaction(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return core.Transaction{}, core.ErrNotFound
	}
	return tr, err
}

func (t *pgTx) UpdateTransaction(ctx context.Context, tr core.Transaction) error {
	tag, err := t.tx.Exec(ctx, `
		UPDATE transactions SET
			date = $1, amount = $2, type = $3, origin = $4,
			expense_category_id = $5, wallet_category_id = $6, credit_category_id = $7,
			description = $8, memo = $9, payment_location = $10, notes = $11,
			updated_at = now()
		WHERE id = $12`,
		tr.Date.Time, tr.Amount.Cents, string(tr.Type), string(tr.Origin),
		nullID(tr.ExpenseCategoryID), nullID(tr.WalletCategoryID), nullID(tr.CreditCategoryID),
		tr.Description, tr.Memo, tr.PaymentLocation, tr.Notes, tr.ID)
	if err != nil {
		return fmt.Errorf("update transaction: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return core.ErrNotFound
	}
	return nil
}

func (t *pgTx) DeleteTransaction(ctx context.Context, id int64) error {
	tag, err := t.tx.Exec(ctx, "DELETE FROM transactions WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("delete transaction: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return core.ErrNotFound
	}
	return nil
}

func (t *pgTx) SetLink(ctx context.Context, id, linkedID int64) error {
	tag, err := t.tx.Exec(ctx,
		"UPDATE transactions SET linked_transaction_id = $1 WHERE id = $2", nullID(linkedID), id)
	if err != nil {
		return fmt.Errorf("link transaction: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return core.ErrNotFound
	}
	return nil
}

func (t *pgTx) WalletBalance(ctx context.Context, walletID int64) (int64, error) {
	var balance int64
	err := t.tx.QueryRow(ctx,
		"SELECT balance FROM wallet_categories WHERE id = $1", walletID).Scan(&balance)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, core.ErrNotFound
	}
	return balance, err
}

func (t *pgTx) AdjustWalletBalance(ctx context.Context, walletID, delta int64) error {
	tag, err := t.tx.Exec(ctx,
		"UPDATE wallet_categories SET balance = balance + $1 WHERE id = $2", delta, walletID)
	if err != nil {
		return fmt.Errorf("adjust wallet balance: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return core.ErrNotFound
	}
	return nil
}

func (t *pgTx) AddCreditUsage(ctx context.Context, year, month int, creditID, delta int64) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO monthly_credit_summary (year, month, credit_category_id, total_amount)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (year, month, credit_category_id)
		DO UPDATE SET total_amount = monthly_credit_summary.total_amount + EXCLUDED.total_amount`,
		year, month, creditID, delta)
	if err != nil {
		return fmt.Errorf("update credit summary: %w", err)
	}
	return nil
}

func (t *pgTx) RemainingBudget(ctx context.Context, year, month int, categoryID int64) (int64, error) {
	var exists int
	err := t.tx.QueryRow(ctx,
		"SELECT 1 FROM expense_categories WHERE id = $1", categoryID).Scan(&exists)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, core.ErrNotFound
	}
	if err != nil {
		return 0, err
	}

	var remaining int64
	err = t.tx.QueryRow(ctx, `
		SELECT
			COALESCE((SELECT budget_amount FROM monthly_budgets
				WHERE year = $1 AND month = $2 AND expense_category_id = $3), 0)
			-
			COALESCE((SELECT SUM(CASE WHEN type = 'expense' THEN amount ELSE -amount END)
				FROM transactions
				WHERE expense_category_id = $3
				  AND EXTRACT(YEAR FROM date) = $1 AND EXTRACT(MONTH FROM date) = $2), 0)`,
		year, month, categoryID).Scan(&remaining)
	if err != nil {
		return 0, fmt.Errorf("compute remaining budget: %w", err)
	}
	return remaining, nil
}

// --- categories ---

func (s *Store) ListExpenseCategories(ctx context.Context) ([]core.ExpenseCategory, error) {
	rows, err := s.pool.Query(ctx,
		"SELECT id, name, created_at FROM expense_categories ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("list expense categories: %w", err)
	}
	defer rows.Close()

	var out []core.ExpenseCategory
	for rows.Next() {
		var c core.ExpenseCategory
		if err := rows.Scan(&c.ID, &c.Name, &c.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *Store) CreateExpenseCategory(ctx context.Context, name string) (core.ExpenseCategory, error) {
	var c core.ExpenseCategory
	err := s.pool.QueryRow(ctx,
		"INSERT INTO expense_categories (name) VALUES ($1) RETURNING id, name, created_at", name).
		Scan(&c.ID, &c.Name, &c.CreatedAt)
	if isUniqueViolation(err) {
		return core.ExpenseCategory{}, core.Validationf("category %q already exists", name)
	}
	if err != nil {
		return core.ExpenseCategory{}, fmt.Errorf("create expense category: %w", err)
	}
	return c, nil
}

func (s *Store) DeleteExpenseCategory(ctx context.Context, id int64) error {
	return s.deleteCategory(ctx, "expense_categories", "expense_category_id", id,
		"category is still referenced by transactions",
		"DELETE FROM monthly_budgets WHERE expense_category_id = $1")
}

func (s *Store) FindExpenseCategoryByName(ctx context.Context, name string) (core.ExpenseCategory, error) {
	var c core.ExpenseCategory
	err := s.pool.QueryRow(ctx,
		"SELECT id, name, created_at FROM expense_categories WHERE LOWER(name) = LOWER($1)", name).
		Scan(&c.ID, &c.Name, &c.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return core.ExpenseCategory{}, core.ErrNotFound
	}
	return c, err
}

func (s *Store) ListWalletCategories(ctx context.Context) ([]core.WalletCategory, error) {
	rows, err := s.pool.Query(ctx,
		"SELECT id, name, balance, created_at FROM wallet_categories ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("list wallet categories: %w", err)
	}
	defer rows.Close()

	var out []core.WalletCategory
	for rows.Next() {
		var c core.WalletCategory
		if err := rows.Scan(&c.ID, &c.Name, &c.Balance, &c.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *Store) CreateWalletCategory(ctx context.Context, name string, initialBalance int64) (core.WalletCategory, error) {
	var c core.WalletCategory
	err := s.pool.QueryRow(ctx, `
		INSERT INTO wallet_categories (name, balance) VALUES ($1, $2)
		RETURNING id, name, balance, created_at`, name, initialBalance).
		Scan(&c.ID, &c.Name, &c.Balance, &c.CreatedAt)
	if isUniqueViolation(err) {
		return core.WalletCategory{}, core.Validationf("wallet %q already exists", name)
	}
	if err != nil {
		return core.WalletCategory{}, fmt.Errorf("create wallet category: %w", err)
	}
	return c, nil
}

func (s *Store) DeleteWalletCategory(ctx context.Context, id int64) error {
	return s.deleteCategory(ctx, "wallet_categories", "wallet_category_id", id,
		"wallet is still referenced by transactions", "")
}

func (s *Store) FindWalletCategoryByName(ctx context.Context, name string) (core.WalletCategory, error) {
	var c core.WalletCategory
	err := s.pool.QueryRow(ctx,
		"SELECT id, name, balance, created_at FROM wallet_categories WHERE LOWER(name) = LOWER($1)", name).
		Scan(&c.ID, &c.Name, &c.Balance, &c.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return core.WalletCategory{}, core.ErrNotFound
	}
	return c, err
}

func (s *Store) SetWalletBalance(ctx context.Context, id int64, balance int64) error {
	tag, err := s.pool.Exec(ctx,
		"UPDATE wallet_categories SET balance = $1 WHERE id = $2", balance, id)
	if err != nil {
		return fmt.Errorf("set wallet balance: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return core.ErrNotFound
	}
	return nil
}

func (s *Store) ListCreditCategories(ctx context.Context) ([]core.CreditCategory, error) {
	rows, err := s.pool.Query(ctx,
		"SELECT id, name, created_at FROM credit_categories ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("list credit categories: %w", err)
	}
	defer rows.Close()

	var out []core.CreditCategory
	for rows.Next() {
		var c core.CreditCategory
		if err := rows.Scan(&c.ID, &c.Name, &c.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *Store) CreateCreditCategory(ctx context.Context, name string) (core.CreditCategory, error) {
	var c core.CreditCategory
	err := s.pool.QueryRow(ctx,
		"INSERT INTO credit_categories (name) VALUES ($1) RETURNING id, name, created_at", name).
		Scan(&c.ID, &c.Name, &c.CreatedAt)
	if isUniqueViolation(err) {
		return core.CreditCategory{}, core.Validationf("credit card %q already exists", name)
	}
	if err != nil {
		return core.CreditCategory{}, fmt.Errorf("create credit category: %w", err)
	}
	return c, nil
}

func (s *Store) DeleteCreditCategory(ctx context.Context, id int64) error {
	return s.deleteCategory(ctx, "credit_categories", "credit_category_id", id,
		"credit card is still referenced by transactions",
		"DELETE FROM monthly_credit_summary WHERE credit_category_id = $1")
}

func (s *Store) FindCreditCategoryByName(ctx context.Context, name string) (core.CreditCategory, error) {
	var c core.CreditCategory
	err := s.pool.QueryRow(ctx,
		"SELECT id, name, created_at FROM credit_categories WHERE LOWER(name) = LOWER($1)", name).
		Scan(&c.ID, &c.Name, &c.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return core.CreditCategory{}, core.ErrNotFound
	}
	return c, err
}

func (s *Store) deleteCategory(ctx context.Context, table, refColumn string, id int64, refMsg, cleanup string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var exists int
	err = tx.QueryRow(ctx, "SELECT 1 FROM "+table+" WHERE id = $1", id).Scan(&exists)
	if errors.Is(err, pgx.ErrNoRows) {
		return core.ErrNotFound
	}
	if err != nil {
		return err
	}

	var referenced int64
	err = tx.QueryRow(ctx,
		"SELECT COUNT(*) FROM transactions WHERE "+refColumn+" = $1", id).Scan(&referenced)
	if err != nil {
		return err
	}
	if referenced > 0 {
		return core.Validationf("%s", refMsg)
	}

	if cleanup != "" {
		if _, err := tx.Exec(ctx, cleanup, id); err != nil {
			return err
		}
	}
	if _, err := tx.Exec(ctx, "DELETE FROM "+table+" WHERE id = $1", id); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// --- budgets ---

func (s *Store) ListBudgets(ctx context.Context, year, month int) ([]core.MonthlyBudget, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, year, month, expense_category_id, budget_amount
		FROM monthly_budgets WHERE year = $1 AND month = $2
		ORDER BY expense_category_id`, year, month)
	if err != nil {
		return nil, fmt.Errorf("list budgets: %w", err)
	}
	defer rows.Close()

	var out []core.MonthlyBudget
	for rows.Next() {
		var b core.MonthlyBudget
		if err := rows.Scan(&b.ID, &b.Year, &b.Month, &b.ExpenseCategoryID, &b.BudgetAmount); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (s *Store) UpsertBudget(ctx context.Context, b core.MonthlyBudget) (core.MonthlyBudget, error) {
	var exists int
	err := s.pool.QueryRow(ctx,
		"SELECT 1 FROM expense_categories WHERE id = $1", b.ExpenseCategoryID).Scan(&exists)
	if errors.Is(err, pgx.ErrNoRows) {
		return core.MonthlyBudget{}, core.ErrNotFound
	}
	if err != nil {
		return core.MonthlyBudget{}, err
	}

	err = s.pool.QueryRow(ctx, `
		INSERT INTO monthly_budgets (year, month, expense_category_id, budget_amount)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (year, month, expense_category_id)
		DO UPDATE SET budget_amount = EXCLUDED.budget_amount
		RETURNING id`,
		b.Year, b.Month, b.ExpenseCategoryID, b.BudgetAmount).Scan(&b.ID)
	if err != nil {
		return core.MonthlyBudget{}, fmt.Errorf("upsert budget: %w", err)
	}
	return b, nil
}

// --- transaction reads ---

const detailQuery = `
	SELECT` + txColumns + `,
		COALESCE(ec.name, ''), COALESCE(wc.name, ''), COALESCE(cc.name, '')
	FROM transactions t
	LEFT JOIN expense_categories ec ON ec.id = t.expense_category_id
	LEFT JOIN wallet_categories wc ON wc.id = t.wallet_category_id
	LEFT JOIN credit_categories cc ON cc.id = t.credit_category_id`

func scanDetail(row pgx.Row) (core.TransactionDetail, error) {
	var (
		d                       core.TransactionDetail
		expCat, walCat, credCat *int64
		linked                  *int64
	)
	err := row.Scan(
		&d.ID, &d.Date.Time, &d.Amount.Cents, &d.Type, &d.Origin,
		&expCat, &walCat, &credCat,
		&linked, &d.Description, &d.Memo, &d.PaymentLocation, &d.Notes,
		&d.CreatedAt, &d.UpdatedAt,
		&d.ExpenseCategoryName, &d.WalletCategoryName, &d.CreditCategoryName)
	if err != nil {
		return core.TransactionDetail{}, err
	}
	d.ExpenseCategoryID = deref(expCat)
	d.WalletCategoryID = deref(walCat)
	d.CreditCategoryID = deref(credCat)
	d.LinkedID = deref(linked)
	return d, nil
}

func (s *Store) queryDetails(ctx context.Context, suffix string, args ...any) ([]core.TransactionDetail, error) {
	rows, err := s.pool.Query(ctx, detailQuery+" "+suffix, args...)
	if err != nil {
		return nil, fmt.Errorf("query transactions: %w", err)
	}
	defer rows.Close()

	var out []core.TransactionDetail
	for rows.Next() {
		d, err := scanDetail(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (s *Store) GetDetail(ctx context.Context, id int64) (core.TransactionDetail, error) {
	row := s.pool.QueryRow(ctx, detailQuery+" WHERE t.id = $1", id)
	d, err := scanDetail(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return core.TransactionDetail{}, core.ErrNotFound
	}
	return d, err
}

func (s *Store) ListByDate(ctx context.Context, date core.Date) ([]core.TransactionDetail, error) {
	return s.queryDetails(ctx, "WHERE t.date = $1 ORDER BY t.id", date.Time)
}

func (s *Store) ListByMonth(ctx context.Context, year, month int) ([]core.TransactionDetail, error) {
	return s.queryDetails(ctx, `
		WHERE EXTRACT(YEAR FROM t.date) = $1 AND EXTRACT(MONTH FROM t.date) = $2
		ORDER BY t.date, t.id`, year, month)
}

func (s *Store) ListAll(ctx context.Context) ([]core.TransactionDetail, error) {
	return s.queryDetails(ctx, "ORDER BY t.date DESC, t.id DESC")
}

func (s *Store) ListByCategory(ctx context.Context, year, month int, categoryID int64, kind storage.CategoryKind) ([]core.TransactionDetail, error) {
	var column string
	switch kind {
	case storage.KindExpenseCategory:
		column = "t.expense_category_id"
	case storage.KindWalletCategory:
		column = "t.wallet_category_id"
	case storage.KindCreditCategory:
		column = "t.credit_category_id"
	default:
		return nil, core.Validationf("invalid category type %q", kind)
	}
	return s.queryDetails(ctx, `
		WHERE `+column+` = $1
		  AND EXTRACT(YEAR FROM t.date) = $2 AND EXTRACT(MONTH FROM t.date) = $3
		ORDER BY t.date, t.id`, categoryID, year, month)
}

func (s *Store) ListByWallet(ctx context.Context, year, month int, walletID int64) ([]core.TransactionDetail, error) {
	return s.ListByCategory(ctx, year, month, walletID, storage.KindWalletCategory)
}

// --- summary reads ---

// periodFilter builds the date clause starting at placeholder $1; month 0
// widens to the whole year.
func periodFilter(year, month int) (string, []any) {
	if month == 0 {
		return "EXTRACT(YEAR FROM t.date) = $1", []any{year}
	}
	return "EXTRACT(YEAR FROM t.date) = $1 AND EXTRACT(MONTH FROM t.date) = $2", []any{year, month}
}

func (s *Store) categoryNets(ctx context.Context, year, month int, userEntryOnly bool) ([]summary.CategoryNet, error) {
	filter, args := periodFilter(year, month)
	q := `
		SELECT t.expense_category_id, COALESCE(c.name, ''),
			COALESCE(SUM(CASE WHEN t.type = 'expense' THEN t.amount ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN t.type = 'income' THEN t.amount ELSE 0 END), 0)
		FROM transactions t
		LEFT JOIN expense_categories c ON c.id = t.expense_category_id
		WHERE t.expense_category_id IS NOT NULL AND ` + filter
	if userEntryOnly {
		q += " AND t.origin = 'user_entry'"
	}
	q += " GROUP BY t.expense_category_id, c.name ORDER BY t.expense_category_id"

	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("total category spending: %w", err)
	}
	defer rows.Close()

	var out []summary.CategoryNet
	for rows.Next() {
		var n summary.CategoryNet
		if err := rows.Scan(&n.CategoryID, &n.CategoryName, &n.Expense, &n.Income); err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

func (s *Store) MonthCategoryNets(ctx context.Context, year, month int) ([]summary.CategoryNet, error) {
	return s.categoryNets(ctx, year, month, false)
}

func (s *Store) UserEntryCategoryNets(ctx context.Context, year, month int) ([]summary.CategoryNet, error) {
	return s.categoryNets(ctx, year, month, true)
}

func (s *Store) MonthCreditTotals(ctx context.Context, year, month int) ([]summary.CreditTotal, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT m.credit_category_id, COALESCE(c.name, ''), m.total_amount
		FROM monthly_credit_summary m
		LEFT JOIN credit_categories c ON c.id = m.credit_category_id
		WHERE m.year = $1 AND m.month = $2
		ORDER BY m.credit_category_id`, year, month)
	if err != nil {
		return nil, fmt.Errorf("load credit totals: %w", err)
	}
	defer rows.Close()

	var out []summary.CreditTotal
	for rows.Next() {
		var ct summary.CreditTotal
		if err := rows.Scan(&ct.CreditCategoryID, &ct.CreditCategoryName, &ct.TotalAmount); err != nil {
			return nil, err
		}
		out = append(out, ct)
	}
	return out, rows.Err()
}

func (s *Store) UserEntryTotals(ctx context.Context, year, month int) (income, expense int64, err error) {
	filter, args := periodFilter(year, month)
	err = s.pool.QueryRow(ctx, `
		SELECT
			COALESCE(SUM(CASE WHEN t.type = 'income' THEN t.amount ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN t.type = 'expense' THEN t.amount ELSE 0 END), 0)
		FROM transactions t
		WHERE t.origin = 'user_entry' AND `+filter, args...).Scan(&income, &expense)
	if err != nil {
		return 0, 0, fmt.Errorf("total user entries: %w", err)
	}
	return income, expense, nil
}

func (s *Store) UserEntryWalletNets(ctx context.Context, year, month int) ([]summary.WalletNet, error) {
	filter, args := periodFilter(year, month)
	rows, err := s.pool.Query(ctx, `
		SELECT t.wallet_category_id, COALESCE(w.name, ''),
			COALESCE(SUM(CASE WHEN t.type = 'expense' THEN t.amount ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN t.type = 'income' THEN t.amount ELSE 0 END), 0)
		FROM transactions t
		LEFT JOIN wallet_categories w ON w.id = t.wallet_category_id
		WHERE t.wallet_category_id IS NOT NULL AND t.origin = 'user_entry' AND `+filter+`
		GROUP BY t.wallet_category_id, w.name
		ORDER BY t.wallet_category_id`, args...)
	if err != nil {
		return nil, fmt.Errorf("total wallet stats: %w", err)
	}
	defer rows.Close()

	var out []summary.WalletNet
	for rows.Next() {
		var n summary.WalletNet
		if err := rows.Scan(&n.WalletID, &n.WalletName, &n.Expense, &n.Income); err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

// --- backup and status ---

func (s *Store) ExportAll(ctx context.Context) (storage.Dump, error) {
	var dump storage.Dump
	var err error

	if dump.ExpenseCategories, err = s.ListExpenseCategories(ctx); err != nil {
		return storage.Dump{}, err
	}
	if dump.WalletCategories, err = s.ListWalletCategories(ctx); err != nil {
		return storage.Dump{}, err
	}
	if dump.CreditCategories, err = s.ListCreditCategories(ctx); err != nil {
		return storage.Dump{}, err
	}

	rows, err := s.pool.Query(ctx, "SELECT"+txColumns+" FROM transactions t ORDER BY t.id")
	if err != nil {
		return storage.Dump{}, fmt.Errorf("dump transactions: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		tr, err := scanTransaction(rows)
		if err != nil {
			return storage.Dump{}, err
		}
		dump.Transactions = append(dump.Transactions, tr)
	}
	if err := rows.Err(); err != nil {
		return storage.Dump{}, err
	}

	budgetRows, err := s.pool.Query(ctx,
		"SELECT id, year, month, expense_category_id, budget_amount FROM monthly_budgets ORDER BY id")
	if err != nil {
		return storage.Dump{}, fmt.Errorf("dump budgets: %w", err)
	}
	defer budgetRows.Close()
	for budgetRows.Next() {
		var b core.MonthlyBudget
		if err := budgetRows.Scan(&b.ID, &b.Year, &b.Month, &b.ExpenseCategoryID, &b.BudgetAmount); err != nil {
			return storage.Dump{}, err
		}
		dump.MonthlyBudgets = append(dump.MonthlyBudgets, b)
	}
	if err := budgetRows.Err(); err != nil {
		return storage.Dump{}, err
	}

	sumRows, err := s.pool.Query(ctx, `
		SELECT year, month, credit_category_id, total_amount
		FROM monthly_credit_summary ORDER BY year, month, credit_category_id`)
	if err != nil {
		return storage.Dump{}, fmt.Errorf("dump credit summaries: %w", err)
	}
	defer sumRows.Close()
	for sumRows.Next() {
		var cs core.MonthlyCreditSummary
		if err := sumRows.Scan(&cs.Year, &cs.Month, &cs.CreditCategoryID, &cs.TotalAmount); err != nil {
			return storage.Dump{}, err
		}
		dump.MonthlyCreditSummaries = append(dump.MonthlyCreditSummaries, cs)
	}
	return dump, sumRows.Err()
}

func (s *Store) Counts(ctx context.Context) (storage.Counts, error) {
	var counts storage.Counts
	err := s.pool.QueryRow(ctx, `
		SELECT
			(SELECT COUNT(*) FROM expense_categories),
			(SELECT COUNT(*) FROM wallet_categories),
			(SELECT COUNT(*) FROM credit_categories),
			(SELECT COUNT(*) FROM transactions),
			(SELECT COUNT(*) FROM monthly_budgets),
			(SELECT COUNT(*) FROM monthly_credit_summary)`).
		Scan(&counts.ExpenseCategories, &counts.WalletCategories, &counts.CreditCategories,
			&counts.Transactions, &counts.MonthlyBudgets, &counts.MonthlyCreditSummaries)
	if err != nil {
		return storage.Counts{}, fmt.Errorf("count tables: %w", err)
	}
	return counts, nil
}
