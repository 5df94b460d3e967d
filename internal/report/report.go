package report

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"bookkeep/internal/core"
	"bookkeep/internal/money"
	"bookkeep/internal/storage"
)

// Granularity selects the bucket width of a time series.
type Granularity string

const (
	Day   Granularity = "day"
	Week  Granularity = "week"
	Month Granularity = "month"
)

var ErrInvalidGranularity = errors.New("granularity must be day, week or month")

const recentLimit = 10

// Bucket holds the income and expense totals of one time-series slot.
// Start marks the beginning of the slot in the requested range.
type Bucket struct {
	Start   time.Time
	Income  money.Money
	Expense money.Money
}

// AccountSummary pairs an account with its committed transaction count.
type AccountSummary struct {
	Account          core.Account
	TransactionCount int
}

// Dashboard aggregates a user's accounts and most recent activity.
type Dashboard struct {
	Accounts []AccountSummary
	Recent   []core.Transaction
}

// Reporter builds read-only views over committed transactions. Reads
// take no locks, so series spanning concurrently mutating accounts may
// mix pre- and post-commit state.
type Reporter struct {
	repo *storage.Repository
}

func New(repo *storage.Repository) *Reporter {
	return &Reporter{repo: repo}
}

// Series buckets an account's transactions between from (inclusive) and
// to (exclusive), summing income and expense separately per bucket.
// Buckets that fall inside the range but contain no transactions are
// emitted with zero totals.
func (r *Reporter) Series(ctx context.Context, accountID string, from, to time.Time, g Granularity) ([]Bucket, error) {
	if g != Day && g != Week && g != Month {
		return nil, &core.ValidationError{Field: "granularity", Err: ErrInvalidGranularity}
	}

	account, err := r.repo.GetAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}
	txns, err := r.repo.TransactionsInRange(ctx, accountID, from, to)
	if err != nil {
		return nil, err
	}

	type totals struct{ income, expense decimal.Decimal }
	byBucket := make(map[time.Time]*totals)
	for _, txn := range txns {
		start := bucketStart(txn.OccurredAt, g)
		tot, ok := byBucket[start]
		if !ok {
			tot = &totals{income: decimal.Zero, expense: decimal.Zero}
			byBucket[start] = tot
		}
		switch txn.Type {
		case core.Income:
			tot.income = tot.income.Add(txn.Amount.Amount())
		case core.Expense:
			tot.expense = tot.expense.Add(txn.Amount.Amount())
		}
	}

	var buckets []Bucket
	for start := bucketStart(from, g); start.Before(to); start = advance(start, g) {
		income, expense := decimal.Zero, decimal.Zero
		if tot, ok := byBucket[start]; ok {
			income, expense = tot.income, tot.expense
		}
		buckets = append(buckets, Bucket{
			Start:   start,
			Income:  money.New(income, account.Currency),
			Expense: money.New(expense, account.Currency),
		})
	}
	return buckets, nil
}

// bucketStart truncates t to the beginning of its bucket. Weeks start
// on Monday.
func bucketStart(t time.Time, g Granularity) time.Time {
	switch g {
	case Week:
		day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
		offset := (int(day.Weekday()) + 6) % 7
		return day.AddDate(0, 0, -offset)
	case Month:
		return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location())
	default:
		return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
	}
}

func advance(start time.Time, g Granularity) time.Time {
	switch g {
	case Week:
		return start.AddDate(0, 0, 7)
	case Month:
		return start.AddDate(0, 1, 0)
	default:
		return start.AddDate(0, 0, 1)
	}
}

// Dashboard returns every account of the user with its transaction
// count, plus the most recent transactions across all accounts ordered
// by occurrence descending with the id as tie-break.
func (r *Reporter) Dashboard(ctx context.Context, userID string) (*Dashboard, error) {
	accounts, err := r.repo.ListAccounts(ctx, userID)
	if err != nil {
		return nil, err
	}

	summaries := make([]AccountSummary, 0, len(accounts))
	for _, account := range accounts {
		count, err := r.repo.CountTransactions(ctx, account.ID)
		if err != nil {
			return nil, err
		}
		summaries = append(summaries, AccountSummary{Account: account, TransactionCount: count})
	}

	recent, err := r.repo.RecentTransactions(ctx, userID, recentLimit)
	if err != nil {
		return nil, err
	}
	return &Dashboard{Accounts: summaries, Recent: recent}, nil
}
