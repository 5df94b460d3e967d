// Package storage persists accounts, categories, transactions and
// budgets in SQLite. Monetary amounts are stored as decimal strings so
// no precision is lost in the round trip; timestamps are stored as UTC
// RFC 3339 strings, which compare chronologically.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"bookkeep/internal/core"
	"bookkeep/internal/money"

	_ "modernc.org/sqlite"
)

const timeFormat = "2006-01-02T15:04:05Z"

type Repository struct {
	db *sql.DB
}

// Open creates the database file if needed, applies migrations and
// returns a ready repository.
func Open(dbPath string) (*Repository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	for _, pragma := range []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA journal_mode = WAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("apply %q: %w", pragma, err)
		}
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &Repository{db: db}, nil
}

func (r *Repository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// WithTx runs fn inside a database transaction, committing on nil and
// rolling back on error or panic.
func (r *Repository) WithTx(ctx context.Context, fn func(tx *Tx) error) error {
	sqlTx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	tx := &Tx{tx: sqlTx}
	defer func() {
		if p := recover(); p != nil {
			sqlTx.Rollback()
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		sqlTx.Rollback()
		return err
	}
	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// Tx exposes the write operations available inside a transaction.
type Tx struct {
	tx *sql.Tx
}

func encodeTime(t time.Time) string {
	return t.UTC().Format(timeFormat)
}

func encodeTimeOrEmpty(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return encodeTime(t)
}

func decodeTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(timeFormat, s)
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

type rowScanner interface {
	Scan(dest ...any) error
}

// ---- accounts ----

const accountColumns = "id, user_id, name, type, currency, balance, is_default, created_at, updated_at"

func scanAccount(row rowScanner) (*core.Account, error) {
	var (
		a                    core.Account
		balance              string
		isDefault            int
		createdAt, updatedAt string
	)
	err := row.Scan(&a.ID, &a.UserID, &a.Name, &a.Type, &a.Currency,
		&balance, &isDefault, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	if a.Balance, err = money.Parse(balance, a.Currency); err != nil {
		return nil, fmt.Errorf("decode balance %q: %w", balance, err)
	}
	a.IsDefault = isDefault != 0
	if a.CreatedAt, err = decodeTime(createdAt); err != nil {
		return nil, fmt.Errorf("decode created_at: %w", err)
	}
	if a.UpdatedAt, err = decodeTime(updatedAt); err != nil {
		return nil, fmt.Errorf("decode updated_at: %w", err)
	}
	return &a, nil
}

// CreateAccount inserts an account. The first account of a user becomes
// the default; when the new account is marked default the previous
// default is unset in the same transaction.
func (r *Repository) CreateAccount(ctx context.Context, a core.Account) error {
	return r.WithTx(ctx, func(tx *Tx) error {
		var count int
		if err := tx.tx.QueryRowContext(ctx,
			"SELECT COUNT(*) FROM accounts WHERE user_id = ?", a.UserID).Scan(&count); err != nil {
			return fmt.Errorf("count accounts: %w", err)
		}
		if count == 0 {
			a.IsDefault = true
		}
		if a.IsDefault {
			if _, err := tx.tx.ExecContext(ctx,
				"UPDATE accounts SET is_default = 0 WHERE user_id = ?", a.UserID); err != nil {
				return fmt.Errorf("unset previous default: %w", err)
			}
		}
		_, err := tx.tx.ExecContext(ctx, `
			INSERT INTO accounts (id, user_id, name, type, currency, balance, is_default, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			a.ID, a.UserID, a.Name, string(a.Type), a.Currency,
			a.Balance.Amount().String(), boolToInt(a.IsDefault),
			encodeTime(a.CreatedAt), encodeTime(a.UpdatedAt))
		if err != nil {
			return fmt.Errorf("insert account: %w", err)
		}
		return nil
	})
}

func (r *Repository) GetAccount(ctx context.Context, id string) (*core.Account, error) {
	row := r.db.QueryRowContext(ctx,
		"SELECT "+accountColumns+" FROM accounts WHERE id = ?", id)
	a, err := scanAccount(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &core.NotFoundError{Kind: "account", ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("get account: %w", err)
	}
	return a, nil
}

func (r *Repository) ListAccounts(ctx context.Context, userID string) ([]core.Account, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT "+accountColumns+" FROM accounts WHERE user_id = ? ORDER BY created_at, id", userID)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	defer rows.Close()

	var accounts []core.Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("scan account: %w", err)
		}
		accounts = append(accounts, *a)
	}
	return accounts, rows.Err()
}

// SetDefaultAccount atomically moves the single-default flag to the
// given account.
func (r *Repository) SetDefaultAccount(ctx context.Context, userID, accountID string) error {
	return r.WithTx(ctx, func(tx *Tx) error {
		if _, err := tx.tx.ExecContext(ctx,
			"UPDATE accounts SET is_default = 0 WHERE user_id = ?", userID); err != nil {
			return fmt.Errorf("unset previous default: %w", err)
		}
		res, err := tx.tx.ExecContext(ctx,
			"UPDATE accounts SET is_default = 1, updated_at = ? WHERE id = ? AND user_id = ?",
			encodeTime(time.Now()), accountID, userID)
		if err != nil {
			return fmt.Errorf("set default: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return &core.NotFoundError{Kind: "account", ID: accountID}
		}
		return nil
	})
}

// GetAccount reads an account inside the transaction.
func (t *Tx) GetAccount(ctx context.Context, id string) (*core.Account, error) {
	row := t.tx.QueryRowContext(ctx,
		"SELECT "+accountColumns+" FROM accounts WHERE id = ?", id)
	a, err := scanAccount(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &core.NotFoundError{Kind: "account", ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("get account: %w", err)
	}
	return a, nil
}

// UpdateAccountBalance writes a new balance. Callers serialize balance
// mutation per account; this is a plain overwrite.
func (t *Tx) UpdateAccountBalance(ctx context.Context, accountID string, balance money.Money) error {
	res, err := t.tx.ExecContext(ctx,
		"UPDATE accounts SET balance = ?, updated_at = ? WHERE id = ?",
		balance.Amount().String(), encodeTime(time.Now()), accountID)
	if err != nil {
		return fmt.Errorf("update balance: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return &core.NotFoundError{Kind: "account", ID: accountID}
	}
	return nil
}

// ---- categories ----

func (r *Repository) GetCategory(ctx context.Context, id string) (*core.Category, error) {
	var c core.Category
	err := r.db.QueryRowContext(ctx,
		"SELECT id, name, type FROM categories WHERE id = ?", id).
		Scan(&c.ID, &c.Name, &c.Type)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &core.NotFoundError{Kind: "category", ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("get category: %w", err)
	}
	return &c, nil
}

func (r *Repository) ListCategories(ctx context.Context) ([]core.Category, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT id, name, type FROM categories ORDER BY type, name")
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	defer rows.Close()

	var categories []core.Category
	for rows.Next() {
		var c core.Category
		if err := rows.Scan(&c.ID, &c.Name, &c.Type); err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		categories = append(categories, c)
	}
	return categories, rows.Err()
}

// ---- transactions ----

const transactionColumns = `id, account_id, user_id, type, amount, currency, category_id, description,
	occurred_at, is_recurring, recurring_interval, next_recurring_date, last_processed_at,
	is_split, participants, per_share, created_at, updated_at`

func scanTransaction(row rowScanner) (*core.Transaction, error) {
	var (
		txn                   core.Transaction
		amount, perShare      string
		currency              string
		isRecurring, isSplit  int
		interval              string
		nextDate, processedAt string
		occurredAt            string
		createdAt, updatedAt  string
	)
	err := row.Scan(&txn.ID, &txn.AccountID, &txn.UserID, &txn.Type, &amount, &currency,
		&txn.CategoryID, &txn.Description, &occurredAt, &isRecurring, &interval,
		&nextDate, &processedAt, &isSplit, &txn.Participants, &perShare,
		&createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	if txn.Amount, err = money.Parse(amount, currency); err != nil {
		return nil, fmt.Errorf("decode amount %q: %w", amount, err)
	}
	txn.IsRecurring = isRecurring != 0
	txn.RecurringInterval = core.RecurringInterval(interval)
	txn.IsSplitExpense = isSplit != 0
	if perShare != "" {
		if txn.PerShare, err = money.Parse(perShare, currency); err != nil {
			return nil, fmt.Errorf("decode per_share %q: %w", perShare, err)
		}
	}
	if txn.OccurredAt, err = decodeTime(occurredAt); err != nil {
		return nil, fmt.Errorf("decode occurred_at: %w", err)
	}
	if txn.NextRecurringDate, err = decodeTime(nextDate); err != nil {
		return nil, fmt.Errorf("decode next_recurring_date: %w", err)
	}
	if txn.LastProcessedAt, err = decodeTime(processedAt); err != nil {
		return nil, fmt.Errorf("decode last_processed_at: %w", err)
	}
	if txn.CreatedAt, err = decodeTime(createdAt); err != nil {
		return nil, fmt.Errorf("decode created_at: %w", err)
	}
	if txn.UpdatedAt, err = decodeTime(updatedAt); err != nil {
		return nil, fmt.Errorf("decode updated_at: %w", err)
	}
	return &txn, nil
}

// InsertTransaction persists a transaction record inside the
// transaction.
func (t *Tx) InsertTransaction(ctx context.Context, txn core.Transaction) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO transactions (id, account_id, user_id, type, amount, currency, category_id,
			description, occurred_at, is_recurring, recurring_interval, next_recurring_date,
			last_processed_at, is_split, participants, per_share, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		txn.ID, txn.AccountID, txn.UserID, string(txn.Type),
		txn.Amount.Amount().String(), txn.Amount.Currency(), txn.CategoryID,
		txn.Description, encodeTime(txn.OccurredAt),
		boolToInt(txn.IsRecurring), string(txn.RecurringInterval),
		encodeTimeOrEmpty(txn.NextRecurringDate), encodeTimeOrEmpty(txn.LastProcessedAt),
		boolToInt(txn.IsSplitExpense), txn.Participants, perShareString(txn),
		encodeTime(txn.CreatedAt), encodeTime(txn.UpdatedAt))
	if err != nil {
		return fmt.Errorf("insert transaction: %w", err)
	}
	return nil
}

func perShareString(txn core.Transaction) string {
	if !txn.IsSplitExpense {
		return ""
	}
	return txn.PerShare.Amount().String()
}

// GetTransaction reads a transaction inside the transaction scope.
func (t *Tx) GetTransaction(ctx context.Context, id string) (*core.Transaction, error) {
	row := t.tx.QueryRowContext(ctx,
		"SELECT "+transactionColumns+" FROM transactions WHERE id = ?", id)
	txn, err := scanTransaction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &core.NotFoundError{Kind: "transaction", ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("get transaction: %w", err)
	}
	return txn, nil
}

// DeleteTransaction removes a transaction record inside the transaction.
func (t *Tx) DeleteTransaction(ctx context.Context, id string) error {
	res, err := t.tx.ExecContext(ctx, "DELETE FROM transactions WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete transaction: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return &core.NotFoundError{Kind: "transaction", ID: id}
	}
	return nil
}

// AdvanceTemplate moves a recurring template from its current next date
// to the following one, recording the materialization time. The update
// is a compare-and-swap on the previous next date: it reports false when
// another invocation already advanced the template, which makes
// materialization idempotent per (template id, due date).
func (t *Tx) AdvanceTemplate(ctx context.Context, id string, prevNext, next, processedAt time.Time) (bool, error) {
	res, err := t.tx.ExecContext(ctx, `
		UPDATE transactions
		SET next_recurring_date = ?, last_processed_at = ?, updated_at = ?
		WHERE id = ? AND is_recurring = 1 AND next_recurring_date = ?`,
		encodeTime(next), encodeTime(processedAt), encodeTime(processedAt),
		id, encodeTime(prevNext))
	if err != nil {
		return false, fmt.Errorf("advance template: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (r *Repository) GetTransaction(ctx context.Context, id string) (*core.Transaction, error) {
	row := r.db.QueryRowContext(ctx,
		"SELECT "+transactionColumns+" FROM transactions WHERE id = ?", id)
	txn, err := scanTransaction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &core.NotFoundError{Kind: "transaction", ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("get transaction: %w", err)
	}
	return txn, nil
}

func (r *Repository) queryTransactions(ctx context.Context, query string, args ...any) ([]core.Transaction, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query transactions: %w", err)
	}
	defer rows.Close()

	var out []core.Transaction
	for rows.Next() {
		txn, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		out = append(out, *txn)
	}
	return out, rows.Err()
}

// ListTransactionsByAccount returns all transactions of an account,
// newest first, with the id as a stable tie-break for equal timestamps.
func (r *Repository) ListTransactionsByAccount(ctx context.Context, accountID string) ([]core.Transaction, error) {
	return r.queryTransactions(ctx,
		"SELECT "+transactionColumns+` FROM transactions
		WHERE account_id = ? ORDER BY occurred_at DESC, id DESC`, accountID)
}

// TransactionsInRange returns an account's transactions with
// occurred_at in [from, to), oldest first.
func (r *Repository) TransactionsInRange(ctx context.Context, accountID string, from, to time.Time) ([]core.Transaction, error) {
	return r.queryTransactions(ctx,
		"SELECT "+transactionColumns+` FROM transactions
		WHERE account_id = ? AND occurred_at >= ? AND occurred_at < ?
		ORDER BY occurred_at, id`, accountID, encodeTime(from), encodeTime(to))
}

// UserTransactionsInRange returns all of a user's transactions with
// occurred_at in [from, to), oldest first.
func (r *Repository) UserTransactionsInRange(ctx context.Context, userID string, from, to time.Time) ([]core.Transaction, error) {
	return r.queryTransactions(ctx,
		"SELECT "+transactionColumns+` FROM transactions
		WHERE user_id = ? AND occurred_at >= ? AND occurred_at < ?
		ORDER BY occurred_at, id`, userID, encodeTime(from), encodeTime(to))
}

// RecentTransactions returns a user's latest transactions, newest first
// with id tie-break.
func (r *Repository) RecentTransactions(ctx context.Context, userID string, limit int) ([]core.Transaction, error) {
	return r.queryTransactions(ctx,
		"SELECT "+transactionColumns+` FROM transactions
		WHERE user_id = ? ORDER BY occurred_at DESC, id DESC LIMIT ?`, userID, limit)
}

func (r *Repository) CountTransactions(ctx context.Context, accountID string) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM transactions WHERE account_id = ?", accountID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count transactions: %w", err)
	}
	return n, nil
}

// DueTemplates lists recurring templates whose next occurrence date is
// not after now.
func (r *Repository) DueTemplates(ctx context.Context, now time.Time) ([]core.Transaction, error) {
	return r.queryTransactions(ctx,
		"SELECT "+transactionColumns+` FROM transactions
		WHERE is_recurring = 1 AND next_recurring_date != '' AND next_recurring_date <= ?
		ORDER BY next_recurring_date, id`, encodeTime(now))
}

// ---- budgets ----

const budgetColumns = "id, user_id, amount, currency, last_alert_period, last_alert_threshold, created_at, updated_at"

func scanBudget(row rowScanner) (*core.Budget, error) {
	var (
		b                    core.Budget
		amount, currency     string
		createdAt, updatedAt string
	)
	err := row.Scan(&b.ID, &b.UserID, &amount, &currency,
		&b.LastAlertPeriod, &b.LastAlertThreshold, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	if b.Amount, err = money.Parse(amount, currency); err != nil {
		return nil, fmt.Errorf("decode amount %q: %w", amount, err)
	}
	if b.CreatedAt, err = decodeTime(createdAt); err != nil {
		return nil, fmt.Errorf("decode created_at: %w", err)
	}
	if b.UpdatedAt, err = decodeTime(updatedAt); err != nil {
		return nil, fmt.Errorf("decode updated_at: %w", err)
	}
	return &b, nil
}

func (r *Repository) GetBudget(ctx context.Context, userID string) (*core.Budget, error) {
	row := r.db.QueryRowContext(ctx,
		"SELECT "+budgetColumns+" FROM budgets WHERE user_id = ?", userID)
	b, err := scanBudget(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &core.NotFoundError{Kind: "budget", ID: userID}
	}
	if err != nil {
		return nil, fmt.Errorf("get budget: %w", err)
	}
	return b, nil
}

// ListBudgetUserIDs returns every user that has a budget configured.
func (r *Repository) ListBudgetUserIDs(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT user_id FROM budgets ORDER BY user_id")
	if err != nil {
		return nil, fmt.Errorf("list budget users: %w", err)
	}
	defer rows.Close()

	var userIDs []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan budget user: %w", err)
		}
		userIDs = append(userIDs, id)
	}
	return userIDs, rows.Err()
}

// UpsertBudget creates or replaces a user's budget limit. Alert state is
// preserved on update.
func (r *Repository) UpsertBudget(ctx context.Context, b core.Budget) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO budgets (id, user_id, amount, currency, last_alert_period, last_alert_threshold, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (user_id) DO UPDATE SET
			amount = excluded.amount,
			currency = excluded.currency,
			updated_at = excluded.updated_at`,
		b.ID, b.UserID, b.Amount.Amount().String(), b.Amount.Currency(),
		b.LastAlertPeriod, b.LastAlertThreshold,
		encodeTime(b.CreatedAt), encodeTime(b.UpdatedAt))
	if err != nil {
		return fmt.Errorf("upsert budget: %w", err)
	}
	return nil
}

// MarkAlertSent records that a threshold alert was emitted for a period,
// so it is not repeated within it.
func (r *Repository) MarkAlertSent(ctx context.Context, userID, period string, threshold int) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE budgets SET last_alert_period = ?, last_alert_threshold = ?, updated_at = ?
		WHERE user_id = ?`,
		period, threshold, encodeTime(time.Now()), userID)
	if err != nil {
		return fmt.Errorf("mark alert sent: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return &core.NotFoundError{Kind: "budget", ID: userID}
	}
	return nil
}
