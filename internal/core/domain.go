package core

import (
	"time"

	"bookkeep/internal/money"
)

const (
	Income  TransactionType = "INCOME"
	Expense TransactionType = "EXPENSE"
)

const (
	Daily   RecurringInterval = "DAILY"
	Weekly  RecurringInterval = "WEEKLY"
	Monthly RecurringInterval = "MONTHLY"
	Yearly  RecurringInterval = "YEARLY"
)

const (
	Checking AccountType = "CHECKING"
	Savings  AccountType = "SAVINGS"
	Credit   AccountType = "CREDIT"
)

// SelfParticipantID identifies the fixed "myself" participant that every
// split expense must contain and that cannot be removed.
const SelfParticipantID = "myself"

type (
	TransactionType   string
	RecurringInterval string
	AccountType       string

	// Account holds a balance in a single currency. The balance is
	// mutated only by the ledger, never directly.
	Account struct {
		ID        string
		UserID    string
		Name      string
		Type      AccountType
		Currency  string
		Balance   money.Money
		IsDefault bool
		CreatedAt time.Time
		UpdatedAt time.Time
	}

	// Category is shared, read-mostly reference data. A transaction's
	// category type must match the transaction type.
	Category struct {
		ID   string
		Name string
		Type TransactionType
	}

	// Participant is one member of a split expense. A Fixed participant
	// (the payer) cannot be removed from the set.
	Participant struct {
		ID    string
		Name  string
		Fixed bool
	}

	// Transaction is a committed ledger record. A record with
	// IsRecurring set acts as a template that periodically materializes
	// concrete transactions. Amount, account and type are immutable
	// after commit except through an explicit edit that reverses and
	// re-applies the balance delta.
	Transaction struct {
		ID                string
		AccountID         string
		UserID            string
		Type              TransactionType
		Amount            money.Money
		CategoryID        string
		Description       string
		OccurredAt        time.Time
		IsRecurring       bool
		RecurringInterval RecurringInterval
		NextRecurringDate time.Time
		LastProcessedAt   time.Time
		IsSplitExpense    bool
		Participants      int
		PerShare          money.Money
		CreatedAt         time.Time
		UpdatedAt         time.Time
	}

	// Budget is a per-user monthly expense limit. LastAlertPeriod and
	// LastAlertThreshold track which alert was last emitted so that a
	// threshold fires at most once per calendar month.
	Budget struct {
		ID                 string
		UserID             string
		Amount             money.Money
		LastAlertPeriod    string // "2006-01" of the last alert, empty if none
		LastAlertThreshold int    // percent threshold of the last alert
		CreatedAt          time.Time
		UpdatedAt          time.Time
	}

	// TransactionIntent is a user-submitted (or extractor- or
	// scheduler-produced) request to record a transaction. It carries no
	// committed state until it passes validation and the ledger.
	TransactionIntent struct {
		UserID            string
		AccountID         string
		Type              TransactionType
		Amount            money.Money
		CategoryID        string
		Description       string
		OccurredAt        time.Time
		IsRecurring       bool
		RecurringInterval RecurringInterval
		IsSplitExpense    bool
		Participants      []Participant

		// AllowFuture permits an OccurredAt after "now" for scheduled
		// entries; recurring templates set it implicitly.
		AllowFuture bool
	}
)

// Valid reports whether t is one of the two transaction types.
func (t TransactionType) Valid() bool {
	return t == Income || t == Expense
}

// Valid reports whether i is one of the four recurring intervals.
func (i RecurringInterval) Valid() bool {
	switch i {
	case Daily, Weekly, Monthly, Yearly:
		return true
	}
	return false
}

// SelfParticipant returns the fixed payer participant.
func SelfParticipant() Participant {
	return Participant{ID: SelfParticipantID, Name: "Myself", Fixed: true}
}

// Period returns the calendar-month bounds containing t, in t's
// location: [first of month 00:00, first of next month 00:00).
func Period(t time.Time) (start, end time.Time) {
	start = time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location())
	return start, start.AddDate(0, 1, 0)
}

// PeriodKey returns the "2006-01" key of the calendar month containing t,
// used to scope budget alert state to a period.
func PeriodKey(t time.Time) string {
	return t.Format("2006-01")
}
