package core

import (
	"strings"
	"time"
)

// EpochFloor is the earliest date a transaction may carry.
var EpochFloor = time.Date(1900, time.January, 1, 0, 0, 0, 0, time.UTC)

// ValidateIntent checks a transaction intent against its referenced
// account and category. It returns a ValidationError naming the offending
// field, or a NotFoundError when a referenced entity is nil. No state is
// applied on failure.
func ValidateIntent(intent TransactionIntent, account *Account, category *Category, now time.Time) error {
	if account == nil {
		return &NotFoundError{Kind: "account", ID: intent.AccountID}
	}
	if account.UserID != intent.UserID {
		return &ValidationError{Field: "accountId", Err: ErrNotAccountOwner}
	}

	if !intent.Type.Valid() {
		return &ValidationError{Field: "type", Err: ErrInvalidType}
	}

	if !intent.Amount.IsPositive() {
		return &ValidationError{Field: "amount", Err: ErrInvalidAmount}
	}

	if category == nil {
		return &NotFoundError{Kind: "category", ID: intent.CategoryID}
	}
	if category.Type != intent.Type {
		return &ValidationError{Field: "category", Err: ErrCategoryTypeMismatch}
	}

	if strings.TrimSpace(intent.Description) == "" {
		return &ValidationError{Field: "description", Err: ErrEmptyDescription}
	}

	if intent.OccurredAt.IsZero() || intent.OccurredAt.Before(EpochFloor) {
		return &ValidationError{Field: "date", Err: ErrDateBeforeEpoch}
	}
	if !intent.AllowFuture && intent.OccurredAt.After(now) {
		return &ValidationError{Field: "date", Err: ErrDateInFuture}
	}

	if intent.IsRecurring && !intent.RecurringInterval.Valid() {
		return &ValidationError{Field: "recurringInterval", Err: ErrInvalidInterval}
	}

	if intent.IsSplitExpense {
		if len(intent.Participants) < 2 {
			return &ValidationError{Field: "participants", Err: ErrTooFewParticipants}
		}
		hasSelf := false
		for _, p := range intent.Participants {
			if p.Fixed && p.ID == SelfParticipantID {
				hasSelf = true
				break
			}
		}
		if !hasSelf {
			return &ValidationError{Field: "participants", Err: ErrMissingSelf}
		}
	}

	return nil
}
