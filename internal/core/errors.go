package core

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidAmount      = errors.New("amount must be a positive decimal")
	ErrInvalidType        = errors.New("type must be INCOME or EXPENSE")
	ErrInvalidInterval    = errors.New("recurring interval must be DAILY, WEEKLY, MONTHLY or YEARLY")
	ErrEmptyDescription   = errors.New("empty description")
	ErrCategoryTypeMismatch = errors.New("category type does not match transaction type")
	ErrNotAccountOwner    = errors.New("account is not owned by the requesting user")
	ErrDateBeforeEpoch    = errors.New("date is before 1900-01-01")
	ErrDateInFuture       = errors.New("date is in the future")
	ErrTooFewParticipants = errors.New("split expense needs at least 2 participants")
	ErrMissingSelf        = errors.New("split participants must include the fixed payer")
	ErrFixedParticipant   = errors.New("fixed participant cannot be removed")
)

// ValidationError names the offending field of a rejected intent. It is
// user-correctable and never partially applied.
type ValidationError struct {
	Field string
	Err   error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %v", e.Field, e.Err)
}

func (e *ValidationError) Unwrap() error { return e.Err }

// NotFoundError reports a missing referenced entity.
type NotFoundError struct {
	Kind string // "account", "category", "transaction", "budget"
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Kind, e.ID)
}

// IsNotFound reports whether err is (or wraps) a NotFoundError.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// IsValidation reports whether err is (or wraps) a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
