// Package sqlite is the file-backed storage backend, built on the pure
// Go modernc.org/sqlite driver.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"kakeibo/internal/core"
	"kakeibo/internal/ledger"
	"kakeibo/internal/storage"
	"kakeibo/internal/summary"
)

type Store struct {
	db *sql.DB
}

var _ storage.Store = (*Store)(nil)

// Open runs migrations and opens the main connection. SQLite allows one
// writer at a time, so the pool is capped at a single connection.
func Open(dbPath string) (*Store, error) {
	if err := RunMigrations(dbPath); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

func fmtTime(t time.Time) string { return t.UTC().Format(time.RFC3339) }

func parseTime(s string) time.Time {
	for _, layout := range []string{time.RFC3339, "2006-01-02 15:04:05", "2006-01-02T15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

// nullID maps 0 to NULL for the optional category references.
func nullID(id int64) sql.NullInt64 {
	return sql.NullInt64{Int64: id, Valid: id != 0}
}

func monthArgs(year, month int) (string, string) {
	return fmt.Sprintf("%04d", year), fmt.Sprintf("%02d", month)
}

// WithinTx wraps fn in a database transaction.
func (s *Store) WithinTx(ctx context.Context, fn func(tx ledger.Tx) error) error {
	dbTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer dbTx.Rollback()

	if err := fn(&sqliteTx{tx: dbTx}); err != nil {
		return err
	}
	if err := dbTx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

type sqliteTx struct {
	tx *sql.Tx
}

func (t *sqliteTx) InsertTransaction(ctx context.Context, tr core.Transaction) (int64, error) {
	now := fmtTime(time.Now())
	res, err := t.tx.ExecContext(ctx, `
		INSERT INTO transactions (
			date, amount, type, origin,
			expense_category_id, wallet_category_id, credit_category_id,
			linked_transaction_id, description, memo, payment_location, notes,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		tr.Date.String(), tr.Amount.Cents, string(tr.Type), string(tr.Origin),
		nullID(tr.ExpenseCategoryID), nullID(tr.WalletCategoryID), nullID(tr.CreditCategoryID),
		nullID(tr.LinkedID), tr.Description, tr.Memo, tr.PaymentLocation, tr.Notes,
		now, now)
	if err != nil {
		return 0, fmt.Errorf("insert transaction: %w", err)
	}
	return res.LastInsertId()
}

const txColumns = `
	t.id, t.date, t.amount, t.type, t.origin,
	t.expense_category_id, t.wallet_category_id, t.credit_category_id,
	t.linked_transaction_id, t.description, t.memo, t.payment_location, t.notes,
	t.created_at, t.updated_at`

func scanTransaction(row interface{ Scan(...any) error }) (core.Transaction, error) {
	var (
		tr                   core.Transaction
		date, rowType        string
		origin               string
		expCat, walCat       sql.NullInt64
		credCat, linked      sql.NullInt64
		createdAt, updatedAt string
	)
	err := row.Scan(
		&tr.ID, &date, &tr.Amount.Cents, &rowType, &origin,
		&expCat, &walCat, &credCat,
		&linked, &tr.Description, &tr.Memo, &tr.PaymentLocation, &tr.Notes,
		&createdAt, &updatedAt)
	if err != nil {
		return core.Transaction{}, err
	}
	tr.Date, err = core.ParseDate(date)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("stored date %q: %w", date, err)
	}
	tr.Type = core.RowType(rowType)
	tr.Origin = core.Origin(origin)
	tr.ExpenseCategoryID = expCat.Int64
	tr.WalletCategoryID = walCat.Int64
	tr.CreditCategoryID = credCat.Int64
	tr.LinkedID = linked.Int64
	tr.CreatedAt = parseTime(createdAt)
	tr.UpdatedAt = parseTime(updatedAt)
	return tr, nil
}

func (t *sqliteTx) GetTransaction(ctx context.Context, id int64) (core.Transaction, error) {
	row := t.tx.QueryRowContext(ctx, "SELECT"+txColumns+" FROM transactions t WHERE t.id = ?", id)
	tr, err := scanTransaction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Transaction{}, core.ErrNotFound
	}
	return tr, err
}

func (t *sqliteTx) UpdateTransaction(ctx context.Context, tr core.Transaction) error {
	res, err := t.tx.ExecContext(ctx, `
		UPDATE transactions SET
			date = ?, amount = ?, type = ?, origin = ?,
			expense_category_id = ?, wallet_category_id = ?, credit_category_id = ?,
			description = ?, memo = ?, payment_location = ?, notes = ?,
			updated_at = ?
		WHERE id = ?`,
		tr.Date.String(), tr.Amount.Cents, string(tr.Type), string(tr.Origin),
		nullID(tr.ExpenseCategoryID), nullID(tr.WalletCategoryID), nullID(tr.CreditCategoryID),
		tr.Description, tr.Memo, tr.PaymentLocation, tr.Notes,
		fmtTime(time.Now()), tr.ID)
	if err != nil {
		return fmt.Errorf("update transaction: %w", err)
	}
	return requireRow(res)
}

func (t *sqliteTx) DeleteTransaction(ctx context.Context, id int64) error {
	res, err := t.tx.ExecContext(ctx, "DELETE FROM transactions WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete transaction: %w", err)
	}
	return requireRow(res)
}

func (t *sqliteTx) SetLink(ctx context.Context, id, linkedID int64) error {
	res, err := t.tx.ExecContext(ctx,
		"UPDATE transactions SET linked_transaction_id = ? WHERE id = ?", nullID(linkedID), id)
	if err != nil {
		return fmt.Errorf("link transaction: %w", err)
	}
	return requireRow(res)
}

func (t *sqliteTx) WalletBalance(ctx context.Context, walletID int64) (int64, error) {
	var balance int64
	err := t.tx.QueryRowContext(ctx,
		"SELECT balance FROM wallet_categories WHERE id = ?", walletID).Scan(&balance)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, core.ErrNotFound
	}
	return balance, err
}

func (t *sqliteTx) AdjustWalletBalance(ctx context.Context, walletID, delta int64) error {
	res, err := t.tx.ExecContext(ctx,
		"UPDATE wallet_categories SET balance = balance + ? WHERE id = ?", delta, walletID)
	if err != nil {
		return fmt.Errorf("adjust wallet balance: %w", err)
	}
	return requireRow(res)
}

func (t *sqliteTx) AddCreditUsage(ctx context.Context, year, month int, creditID, delta int64) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO monthly_credit_summary (year, month, credit_category_id, total_amount)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (year, month, credit_category_id)
		DO UPDATE SET total_amount = total_amount + excluded.total_amount`,
		year, month, creditID, delta)
	if err != nil {
		return fmt.Errorf("update credit summary: %w", err)
	}
	return nil
}

func (t *sqliteTx) RemainingBudget(ctx context.Context, year, month int, categoryID int64) (int64, error) {
	var exists int
	err := t.tx.QueryRowContext(ctx,
		"SELECT 1 FROM expense_categories WHERE id = ?", categoryID).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, core.ErrNotFound
	}
	if err != nil {
		return 0, err
	}

	y, m := monthArgs(year, month)
	var remaining int64
	err = t.tx.QueryRowContext(ctx, `
		SELECT
			COALESCE((SELECT budget_amount FROM monthly_budgets
				WHERE year = ? AND month = ? AND expense_category_id = ?), 0)
			-
			COALESCE((SELECT SUM(CASE WHEN type = 'expense' THEN amount ELSE -amount END)
				FROM transactions
				WHERE expense_category_id = ?
				  AND strftime('%Y', date) = ? AND strftime('%m', date) = ?), 0)`,
		year, month, categoryID, categoryID, y, m).Scan(&remaining)
	if err != nil {
		return 0, fmt.Errorf("compute remaining budget: %w", err)
	}
	return remaining, nil
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return core.ErrNotFound
	}
	return nil
}

// --- categories ---

func (s *Store) ListExpenseCategories(ctx context.Context) ([]core.ExpenseCategory, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, name, created_at FROM expense_categories ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("list expense categories: %w", err)
	}
	defer rows.Close()

	var out []core.ExpenseCategory
	for rows.Next() {
		var c core.ExpenseCategory
		var created string
		if err := rows.Scan(&c.ID, &c.Name, &created); err != nil {
			return nil, err
		}
		c.CreatedAt = parseTime(created)
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *Store) CreateExpenseCategory(ctx context.Context, name string) (core.ExpenseCategory, error) {
	res, err := s.db.ExecContext(ctx,
		"INSERT INTO expense_categories (name, created_at) VALUES (?, ?)", name, fmtTime(time.Now()))
	if err != nil {
		return core.ExpenseCategory{}, translateUnique(err, fmt.Sprintf("category %q already exists", name))
	}
	id, err := res.LastInsertId()
	if err != nil {
		return core.ExpenseCategory{}, err
	}
	return core.ExpenseCategory{ID: id, Name: name, CreatedAt: time.Now()}, nil
}

func (s *Store) DeleteExpenseCategory(ctx context.Context, id int64) error {
	return s.deleteCategory(ctx, "expense_categories", "expense_category_id", id,
		"category is still referenced by transactions",
		"DELETE FROM monthly_budgets WHERE expense_category_id = ?")
}

func (s *Store) FindExpenseCategoryByName(ctx context.Context, name string) (core.ExpenseCategory, error) {
	var c core.ExpenseCategory
	var created string
	err := s.db.QueryRowContext(ctx,
		"SELECT id, name, created_at FROM expense_categories WHERE name = ? COLLATE NOCASE", name).
		Scan(&c.ID, &c.Name, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return core.ExpenseCategory{}, core.ErrNotFound
	}
	if err != nil {
		return core.ExpenseCategory{}, err
	}
	c.CreatedAt = parseTime(created)
	return c, nil
}

func (s *Store) ListWalletCategories(ctx context.Context) ([]core.WalletCategory, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, name, balance, created_at FROM wallet_categories ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("list wallet categories: %w", err)
	}
	defer rows.Close()

	var out []core.WalletCategory
	for rows.Next() {
		var c core.WalletCategory
		var created string
		if err := rows.Scan(&c.ID, &c.Name, &c.Balance, &created); err != nil {
			return nil, err
		}
		c.CreatedAt = parseTime(created)
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *Store) CreateWalletCategory(ctx context.Context, name string, initialBalance int64) (core.WalletCategory, error) {
	res, err := s.db.ExecContext(ctx,
		"INSERT INTO wallet_categories (name, balance, created_at) VALUES (?, ?, ?)",
		name, initialBalance, fmtTime(time.Now()))
	if err != nil {
		return core.WalletCategory{}, translateUnique(err, fmt.Sprintf("wallet %q already exists", name))
	}
	id, err := res.LastInsertId()
	if err != nil {
		return core.WalletCategory{}, err
	}
	return core.WalletCategory{ID: id, Name: name, Balance: initialBalance, CreatedAt: time.Now()}, nil
}

func (s *Store) DeleteWalletCategory(ctx context.Context, id int64) error {
	return s.deleteCategory(ctx, "wallet_categories", "wallet_category_id", id,
		"wallet is still referenced by transactions", "")
}

func (s *Store) FindWalletCategoryByName(ctx context.Context, name string) (core.WalletCategory, error) {
	var c core.WalletCategory
	var created string
	err := s.db.QueryRowContext(ctx,
		"SELECT id, name, balance, created_at FROM wallet_categories WHERE name = ? COLLATE NOCASE", name).
		Scan(&c.ID, &c.Name, &c.Balance, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return core.WalletCategory{}, core.ErrNotFound
	}
	if err != nil {
		return core.WalletCategory{}, err
	}
	c.CreatedAt = parseTime(created)
	return c, nil
}

func (s *Store) SetWalletBalance(ctx context.Context, id int64, balance int64) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE wallet_categories SET balance = ? WHERE id = ?", balance, id)
	if err != nil {
		return fmt.Errorf("set wallet balance: %w", err)
	}
	return requireRow(res)
}

func (s *Store) ListCreditCategories(ctx context.Context) ([]core.CreditCategory, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, name, created_at FROM credit_categories ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("list credit categories: %w", err)
	}
	defer rows.Close()

	var out []core.CreditCategory
	for rows.Next() {
		var c core.CreditCategory
		var created string
		if err := rows.Scan(&c.ID, &c.Name, &created); err != nil {
			return nil, err
		}
		c.CreatedAt = parseTime(created)
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *Store) CreateCreditCategory(ctx context.Context, name string) (core.CreditCategory, error) {
	res, err := s.db.ExecContext(ctx,
		"INSERT INTO credit_categories (name, created_at) VALUES (?, ?)", name, fmtTime(time.Now()))
	if err != nil {
		return core.CreditCategory{}, translateUnique(err, fmt.Sprintf("credit card %q already exists", name))
	}
	id, err := res.LastInsertId()
	if err != nil {
		return core.CreditCategory{}, err
	}
	return core.CreditCategory{ID: id, Name: name, CreatedAt: time.Now()}, nil
}

func (s *Store) DeleteCreditCategory(ctx context.Context, id int64) error {
	return s.deleteCategory(ctx, "credit_categories", "credit_category_id", id,
		"credit card is still referenced by transactions",
		"DELETE FROM monthly_credit_summary WHERE credit_category_id = ?")
}

func (s *Store) FindCreditCategoryByName(ctx context.Context, name string) (core.CreditCategory, error) {
	var c core.CreditCategory
	var created string
	err := s.db.QueryRowContext(ctx,
		"SELECT id, name, created_at FROM credit_categories WHERE name = ? COLLATE NOCASE", name).
		Scan(&c.ID, &c.Name, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return core.CreditCategory{}, core.ErrNotFound
	}
	if err != nil {
		return core.CreditCategory{}, err
	}
	c.CreatedAt = parseTime(created)
	return c, nil
}

// deleteCategory removes a category row after checking nothing still
// references it. cleanup, when set, removes dependent rows first.
func (s *Store) deleteCategory(ctx context.Context, table, refColumn string, id int64, refMsg, cleanup string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	var exists int
	err = tx.QueryRowContext(ctx, "SELECT 1 FROM "+table+" WHERE id = ?", id).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return core.ErrNotFound
	}
	if err != nil {
		return err
	}

	var referenced int
	err = tx.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM transactions WHERE "+refColumn+" = ?", id).Scan(&referenced)
	if err != nil {
		return err
	}
	if referenced > 0 {
		return core.Validationf("%s", refMsg)
	}

	if cleanup != "" {
		if _, err := tx.ExecContext(ctx, cleanup, id); err != nil {
			return err
		}
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM "+table+" WHERE id = ?", id); err != nil {
		return err
	}
	return tx.Commit()
}

func translateUnique(err error, msg string) error {
	// modernc/sqlite reports constraint violations in the error text.
	if err != nil && strings.Contains(err.Error(), "constraint failed") {
		return core.Validationf("%s", msg)
	}
	return err
}

// --- budgets ---

func (s *Store) ListBudgets(ctx context.Context, year, month int) ([]core.MonthlyBudget, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, year, month, expense_category_id, budget_amount
		FROM monthly_budgets WHERE year = ? AND month = ?
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
	err := s.db.QueryRowContext(ctx,
		"SELECT 1 FROM expense_categories WHERE id = ?", b.ExpenseCategoryID).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return core.MonthlyBudget{}, core.ErrNotFound
	}
	if err != nil {
		return core.MonthlyBudget{}, err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO monthly_budgets (year, month, expense_category_id, budget_amount)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (year, month, expense_category_id)
		DO UPDATE SET budget_amount = excluded.budget_amount`,
		b.Year, b.Month, b.ExpenseCategoryID, b.BudgetAmount)
	if err != nil {
		return core.MonthlyBudget{}, fmt.Errorf("upsert budget: %w", err)
	}

	err = s.db.QueryRowContext(ctx, `
		SELECT id FROM monthly_budgets
		WHERE year = ? AND month = ? AND expense_category_id = ?`,
		b.Year, b.Month, b.ExpenseCategoryID).Scan(&b.ID)
	if err != nil {
		return core.MonthlyBudget{}, err
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

func scanDetail(row interface{ Scan(...any) error }) (core.TransactionDetail, error) {
	var (
		d                    core.TransactionDetail
		date, rowType        string
		origin               string
		expCat, walCat       sql.NullInt64
		credCat, linked      sql.NullInt64
		createdAt, updatedAt string
	)
	err := row.Scan(
		&d.ID, &date, &d.Amount.Cents, &rowType, &origin,
		&expCat, &walCat, &credCat,
		&linked, &d.Description, &d.Memo, &d.PaymentLocation, &d.Notes,
		&createdAt, &updatedAt,
		&d.ExpenseCategoryName, &d.WalletCategoryName, &d.CreditCategoryName)
	if err != nil {
		return core.TransactionDetail{}, err
	}
	d.Date, err = core.ParseDate(date)
	if err != nil {
		return core.TransactionDetail{}, fmt.Errorf("stored date %q: %w", date, err)
	}
	d.Type = core.RowType(rowType)
	d.Origin = core.Origin(origin)
	d.ExpenseCategoryID = expCat.Int64
	d.WalletCategoryID = walCat.Int64
	d.CreditCategoryID = credCat.Int64
	d.LinkedID = linked.Int64
	d.CreatedAt = parseTime(createdAt)
	d.UpdatedAt = parseTime(updatedAt)
	return d, nil
}

func (s *Store) queryDetails(ctx context.Context, where, order string, args ...any) ([]core.TransactionDetail, error) {
	q := detailQuery
	if where != "" {
		q += " WHERE " + where
	}
	q += " ORDER BY " + order
	rows, err := s.db.QueryContext(ctx, q, args...)
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
	row := s.db.QueryRowContext(ctx, detailQuery+" WHERE t.id = ?", id)
	d, err := scanDetail(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.TransactionDetail{}, core.ErrNotFound
	}
	return d, err
}

func (s *Store) ListByDate(ctx context.Context, date core.Date) ([]core.TransactionDetail, error) {
	return s.queryDetails(ctx, "t.date = ?", "t.id", date.String())
}

func (s *Store) ListByMonth(ctx context.Context, year, month int) ([]core.TransactionDetail, error) {
	y, m := monthArgs(year, month)
	return s.queryDetails(ctx,
		"strftime('%Y', t.date) = ? AND strftime('%m', t.date) = ?",
		"t.date, t.id", y, m)
}

func (s *Store) ListAll(ctx context.Context) ([]core.TransactionDetail, error) {
	return s.queryDetails(ctx, "", "t.date DESC, t.id DESC")
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
	y, m := monthArgs(year, month)
	return s.queryDetails(ctx,
		column+" = ? AND strftime('%Y', t.date) = ? AND strftime('%m', t.date) = ?",
		"t.date, t.id", categoryID, y, m)
}

func (s *Store) ListByWallet(ctx context.Context, year, month int, walletID int64) ([]core.TransactionDetail, error) {
	return s.ListByCategory(ctx, year, month, walletID, storage.KindWalletCategory)
}

// --- summary reads ---

// periodFilter builds the date clause; month 0 widens to the whole year.
func periodFilter(year, month int) (string, []any) {
	if month == 0 {
		return "strftime('%Y', t.date) = ?", []any{fmt.Sprintf("%04d", year)}
	}
	y, m := monthArgs(year, month)
	return "strftime('%Y', t.date) = ? AND strftime('%m', t.date) = ?", []any{y, m}
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

	rows, err := s.db.QueryContext(ctx, q, args...)
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
	rows, err := s.db.QueryContext(ctx, `
		SELECT m.credit_category_id, COALESCE(c.name, ''), m.total_amount
		FROM monthly_credit_summary m
		LEFT JOIN credit_categories c ON c.id = m.credit_category_id
		WHERE m.year = ? AND m.month = ?
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
	err = s.db.QueryRowContext(ctx, `
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
	rows, err := s.db.QueryContext(ctx, `
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

	rows, err := s.db.QueryContext(ctx, "SELECT"+txColumns+" FROM transactions t ORDER BY t.id")
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

	budgetRows, err := s.db.QueryContext(ctx,
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

	sumRows, err := s.db.QueryContext(ctx, `
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
	for _, q := range []struct {
		table string
		dst   *int64
	}{
		{"expense_categories", &counts.ExpenseCategories},
		{"wallet_categories", &counts.WalletCategories},
		{"credit_categories", &counts.CreditCategories},
		{"transactions", &counts.Transactions},
		{"monthly_budgets", &counts.MonthlyBudgets},
		{"monthly_credit_summary", &counts.MonthlyCreditSummaries},
	} {
		if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+q.table).Scan(q.dst); err != nil {
			return storage.Counts{}, fmt.Errorf("count %s: %w", q.table, err)
		}
	}
	return counts, nil
}
