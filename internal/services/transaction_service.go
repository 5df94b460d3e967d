package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"bookkeep/internal/core"
	"bookkeep/internal/ledger"
	"bookkeep/internal/log"
	"bookkeep/internal/money"
	"bookkeep/internal/schedule"
	"bookkeep/internal/split"
	"bookkeep/internal/storage"
)

// TransactionService orchestrates intent validation, currency
// conversion, split resolution and the ledger commit for one request.
type TransactionService struct {
	repo      *storage.Repository
	ledger    *ledger.Ledger
	converter *money.Converter
}

func NewTransactionService(repo *storage.Repository, l *ledger.Ledger, converter *money.Converter) *TransactionService {
	return &TransactionService{
		repo:      repo,
		ledger:    l,
		converter: converter,
	}
}

// Create validates the intent, converts its amount into the account
// currency when they differ, resolves the split and commits through the
// ledger. For recurring intents the committed transaction doubles as
// the template: its next occurrence is scheduled from the intent date.
func (s *TransactionService) Create(ctx context.Context, intent core.TransactionIntent) (core.Transaction, error) {
	account, category, err := s.lookupRefs(ctx, intent)
	if err != nil {
		return core.Transaction{}, err
	}

	now := time.Now().UTC()
	if intent.IsRecurring {
		intent.AllowFuture = true
	}
	if err := core.ValidateIntent(intent, account, category, now); err != nil {
		return core.Transaction{}, err
	}

	txn, err := s.buildTransaction(ctx, intent, account, now)
	if err != nil {
		return core.Transaction{}, err
	}
	return s.ledger.Commit(ctx, txn)
}

// Update replaces an existing transaction with a re-validated intent.
// The reversal of the old record and the commit of the new one happen
// in one atomic unit.
func (s *TransactionService) Update(ctx context.Context, id string, intent core.TransactionIntent) (core.Transaction, error) {
	account, category, err := s.lookupRefs(ctx, intent)
	if err != nil {
		return core.Transaction{}, err
	}

	now := time.Now().UTC()
	if intent.IsRecurring {
		intent.AllowFuture = true
	}
	if err := core.ValidateIntent(intent, account, category, now); err != nil {
		return core.Transaction{}, err
	}

	replacement, err := s.buildTransaction(ctx, intent, account, now)
	if err != nil {
		return core.Transaction{}, err
	}
	return s.ledger.Edit(ctx, id, replacement)
}

// Delete reverses a committed transaction, restoring the account
// balance it moved.
func (s *TransactionService) Delete(ctx context.Context, id string) error {
	return s.ledger.Reverse(ctx, id)
}

// ProcessDue materializes every due recurring template.
func (s *TransactionService) ProcessDue(ctx context.Context, now time.Time) (schedule.Result, error) {
	return schedule.NewProcessor(s.repo, s.ledger).ProcessDue(ctx, now)
}

func (s *TransactionService) lookupRefs(ctx context.Context, intent core.TransactionIntent) (*core.Account, *core.Category, error) {
	account, err := s.repo.GetAccount(ctx, intent.AccountID)
	if err != nil && !core.IsNotFound(err) {
		return nil, nil, fmt.Errorf("lookup account: %w", err)
	}
	category, err := s.repo.GetCategory(ctx, intent.CategoryID)
	if err != nil && !core.IsNotFound(err) {
		return nil, nil, fmt.Errorf("lookup category: %w", err)
	}
	// Nil references fail validation with a NotFoundError.
	return account, category, nil
}

func (s *TransactionService) buildTransaction(ctx context.Context, intent core.TransactionIntent, account *core.Account, now time.Time) (core.Transaction, error) {
	amount := intent.Amount
	// An intent without an explicit currency takes the account's.
	if amount.Currency() == "" {
		amount = money.New(amount.Amount(), account.Currency)
	}
	if amount.Currency() != account.Currency {
		if s.converter == nil {
			return core.Transaction{}, &money.RateUnavailableError{From: amount.Currency(), To: account.Currency}
		}
		converted, err := s.converter.Convert(ctx, amount, account.Currency)
		if err != nil {
			return core.Transaction{}, err
		}
		log.FromContext(ctx).InfoContext(ctx, "Converted transaction amount",
			log.FieldOperation, log.OpConvert,
			"from", amount.String(),
			"to", converted.String())
		amount = converted
	}

	txn := core.Transaction{
		ID:          uuid.NewString(),
		AccountID:   account.ID,
		UserID:      intent.UserID,
		Type:        intent.Type,
		Amount:      amount,
		CategoryID:  intent.CategoryID,
		Description: intent.Description,
		OccurredAt:  intent.OccurredAt,
		IsRecurring: intent.IsRecurring,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if intent.IsRecurring {
		next, err := schedule.NextDate(intent.RecurringInterval, intent.OccurredAt, intent.OccurredAt)
		if err != nil {
			return core.Transaction{}, err
		}
		txn.RecurringInterval = intent.RecurringInterval
		txn.NextRecurringDate = next
	}

	if intent.IsSplitExpense {
		resolution, err := split.Resolve(amount, intent.Participants)
		if err != nil {
			return core.Transaction{}, err
		}
		txn.IsSplitExpense = true
		txn.Participants = len(intent.Participants)
		txn.PerShare = resolution.PerShare
		txn.Amount = resolution.SettledAmount
	}

	return txn, nil
}
