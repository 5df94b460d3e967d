// Package ledger applies transactions atomically to account balances.
//
// It is the only writer of account balances. Balance mutation is
// serialized per account with a mutex map; the record insert and the
// balance adjustment happen inside one database transaction, so both
// apply or neither does.
package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"bookkeep/internal/core"
	"bookkeep/internal/log"
	"bookkeep/internal/money"
	"bookkeep/internal/storage"
)

// EventPublisher notifies downstream consumers of committed ledger
// changes. Publish failures never fail the commit; derived state catches
// up on the next recomputation.
type EventPublisher interface {
	PublishCommitted(ctx context.Context, txn core.Transaction) error
	PublishReversed(ctx context.Context, txn core.Transaction) error
}

type Ledger struct {
	repo      *storage.Repository
	publisher EventPublisher // may be nil
	events    *log.StructuredLogger

	muMap map[string]*sync.Mutex
	mapMu sync.Mutex
}

func New(repo *storage.Repository, publisher EventPublisher) *Ledger {
	return &Ledger{
		repo:      repo,
		publisher: publisher,
		events:    log.NewStructuredLogger(log.New(log.Config{Level: slog.LevelInfo, Component: log.ComponentLedger})),
		muMap:     make(map[string]*sync.Mutex),
	}
}

func (l *Ledger) accountLock(accountID string) *sync.Mutex {
	l.mapMu.Lock()
	defer l.mapMu.Unlock()
	if _, ok := l.muMap[accountID]; !ok {
		l.muMap[accountID] = &sync.Mutex{}
	}
	return l.muMap[accountID]
}

// signedDelta returns the balance effect of a transaction: +amount for
// INCOME, -amount for EXPENSE.
func signedDelta(txn core.Transaction) money.Money {
	if txn.Type == core.Expense {
		return txn.Amount.Neg()
	}
	return txn.Amount
}

// Commit persists a validated transaction and adjusts the owning
// account's balance as a single unit. The transaction's currency must
// match the account's; conversion happens before the ledger is reached.
func (l *Ledger) Commit(ctx context.Context, txn core.Transaction) (core.Transaction, error) {
	txn.Amount = txn.Amount.Round()

	mu := l.accountLock(txn.AccountID)
	mu.Lock()
	defer mu.Unlock()

	err := l.repo.WithTx(ctx, func(tx *storage.Tx) error {
		return l.applyCommit(ctx, tx, &txn)
	})
	if err != nil {
		return core.Transaction{}, err
	}

	l.publishCommitted(ctx, txn)
	return txn, nil
}

// applyCommit inserts the record and adjusts the balance inside tx.
// The caller holds the account lock.
func (l *Ledger) applyCommit(ctx context.Context, tx *storage.Tx, txn *core.Transaction) error {
	account, err := tx.GetAccount(ctx, txn.AccountID)
	if err != nil {
		return err
	}
	if txn.Amount.Currency() != account.Currency {
		return &core.ValidationError{Field: "currency", Err: money.ErrCurrencyMismatch}
	}

	newBalance, err := account.Balance.Add(signedDelta(*txn))
	if err != nil {
		return fmt.Errorf("apply balance delta: %w", err)
	}

	if err := tx.InsertTransaction(ctx, *txn); err != nil {
		return err
	}
	return tx.UpdateAccountBalance(ctx, txn.AccountID, newBalance)
}

// Reverse undoes a committed transaction: the record is deleted and its
// balance effect is subtracted, in one unit. A reversal may drive the
// balance negative; the ledger guarantees arithmetic, not solvency.
func (l *Ledger) Reverse(ctx context.Context, id string) error {
	// Read outside the lock to learn the account, then re-read inside
	// the transaction for the authoritative state.
	txn, err := l.repo.GetTransaction(ctx, id)
	if err != nil {
		return err
	}

	mu := l.accountLock(txn.AccountID)
	mu.Lock()
	defer mu.Unlock()

	var reversed core.Transaction
	err = l.repo.WithTx(ctx, func(tx *storage.Tx) error {
		current, err := tx.GetTransaction(ctx, id)
		if err != nil {
			return err
		}
		reversed = *current
		return l.applyReverse(ctx, tx, *current)
	})
	if err != nil {
		return err
	}

	l.publishReversed(ctx, reversed)
	return nil
}

// applyReverse deletes the record and subtracts its balance effect
// inside tx. The caller holds the account lock.
func (l *Ledger) applyReverse(ctx context.Context, tx *storage.Tx, txn core.Transaction) error {
	account, err := tx.GetAccount(ctx, txn.AccountID)
	if err != nil {
		return err
	}
	newBalance, err := account.Balance.Sub(signedDelta(txn))
	if err != nil {
		return fmt.Errorf("undo balance delta: %w", err)
	}
	if err := tx.DeleteTransaction(ctx, txn.ID); err != nil {
		return err
	}
	return tx.UpdateAccountBalance(ctx, txn.AccountID, newBalance)
}

// Edit replaces a committed transaction: reverse(old) followed by
// commit(new) inside one atomic unit. If applying the replacement fails,
// the reversal is rolled back too.
func (l *Ledger) Edit(ctx context.Context, oldID string, replacement core.Transaction) (core.Transaction, error) {
	replacement.Amount = replacement.Amount.Round()

	old, err := l.repo.GetTransaction(ctx, oldID)
	if err != nil {
		return core.Transaction{}, err
	}

	// The replacement may move the transaction to another account; lock
	// both in a fixed order to avoid deadlock.
	l.lockPair(old.AccountID, replacement.AccountID)
	defer l.unlockPair(old.AccountID, replacement.AccountID)

	var reversed core.Transaction
	err = l.repo.WithTx(ctx, func(tx *storage.Tx) error {
		current, err := tx.GetTransaction(ctx, oldID)
		if err != nil {
			return err
		}
		reversed = *current
		if err := l.applyReverse(ctx, tx, *current); err != nil {
			return err
		}
		return l.applyCommit(ctx, tx, &replacement)
	})
	if err != nil {
		return core.Transaction{}, err
	}

	l.publishReversed(ctx, reversed)
	l.publishCommitted(ctx, replacement)
	return replacement, nil
}

func (l *Ledger) lockPair(a, b string) {
	if a == b {
		l.accountLock(a).Lock()
		return
	}
	if a > b {
		a, b = b, a
	}
	l.accountLock(a).Lock()
	l.accountLock(b).Lock()
}

func (l *Ledger) unlockPair(a, b string) {
	if a == b {
		l.accountLock(a).Unlock()
		return
	}
	if a > b {
		a, b = b, a
	}
	l.accountLock(b).Unlock()
	l.accountLock(a).Unlock()
}

// Materialize commits one concrete transaction from a recurring template
// and advances the template's next occurrence date, all in one unit.
// The advance is a compare-and-swap on the previous next date, so a
// concurrent or repeated invocation for the same due window is a no-op
// and never double-materializes. It reports whether an occurrence was
// actually committed; false means another invocation already advanced
// the template past this due date.
func (l *Ledger) Materialize(ctx context.Context, tmpl core.Transaction, due, next, processedAt time.Time) (bool, error) {
	concrete := core.Transaction{
		ID:          uuid.NewString(),
		AccountID:   tmpl.AccountID,
		UserID:      tmpl.UserID,
		Type:        tmpl.Type,
		Amount:      tmpl.Amount.Round(),
		CategoryID:  tmpl.CategoryID,
		Description: tmpl.Description + " (Recurring)",
		OccurredAt:  due,
		CreatedAt:   processedAt,
		UpdatedAt:   processedAt,
	}

	mu := l.accountLock(tmpl.AccountID)
	mu.Lock()
	defer mu.Unlock()

	advanced := false
	err := l.repo.WithTx(ctx, func(tx *storage.Tx) error {
		ok, err := tx.AdvanceTemplate(ctx, tmpl.ID, due, next, processedAt)
		if err != nil {
			return err
		}
		if !ok {
			// Another invocation already processed this due window.
			return nil
		}
		advanced = true
		return l.applyCommit(ctx, tx, &concrete)
	})
	if err != nil {
		return false, err
	}

	if advanced {
		l.publishCommitted(ctx, concrete)
	} else {
		slog.InfoContext(ctx, "Template already advanced, skipping materialization",
			log.FieldOperation, log.OpMaterialize,
			"template_id", tmpl.ID,
			"due_date", due.Format("2006-01-02"))
	}
	return advanced, nil
}

func (l *Ledger) publishCommitted(ctx context.Context, txn core.Transaction) {
	l.events.LogTransactionCommitted(ctx, txn.ID, txn.AccountID, txn.Amount.Amount().String(), txn.Amount.Currency())
	if l.publisher == nil {
		return
	}
	if err := l.publisher.PublishCommitted(ctx, txn); err != nil {
		l.events.LogError(ctx, "Failed to publish committed event", err, log.ComponentLedger, log.OpCommit,
			log.NewFields().WithTransaction(txn.ID, txn.AccountID, txn.Amount.Amount().String(), txn.Amount.Currency()))
	}
}

func (l *Ledger) publishReversed(ctx context.Context, txn core.Transaction) {
	if l.publisher == nil {
		return
	}
	if err := l.publisher.PublishReversed(ctx, txn); err != nil {
		l.events.LogError(ctx, "Failed to publish reversed event", err, log.ComponentLedger, log.OpReverse,
			log.NewFields().WithTransaction(txn.ID, txn.AccountID, txn.Amount.Amount().String(), txn.Amount.Currency()))
	}
}
