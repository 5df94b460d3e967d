package budget

import (
	"context"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"bookkeep/internal/core"
	"bookkeep/internal/money"
	"bookkeep/internal/storage"
)

// Alert reports a crossed budget threshold for a user's current month.
type Alert struct {
	UserID    string
	Period    string
	Threshold int
	Spent     money.Money
	Limit     money.Money
}

// AlertPublisher delivers budget alerts to interested consumers.
type AlertPublisher interface {
	PublishBudgetAlert(ctx context.Context, alert Alert) error
}

// Status describes how a user's spending in the current month compares
// to their budget. UsedPercent is 0 when the budget limit is not positive.
type Status struct {
	Budget      core.Budget
	Spent       money.Money
	Remaining   money.Money
	UsedPercent decimal.Decimal
}

// Checker reconciles a user's monthly expenses against their budget.
// Budgets are kept in the currency of the user's default account, so
// amounts compare without conversion.
type Checker struct {
	repo      *storage.Repository
	publisher AlertPublisher
	logger    *slog.Logger
}

// Descending so that the highest crossed threshold wins.
var thresholds = []int{100, 80}

var hundred = decimal.NewFromInt(100)

func NewChecker(repo *storage.Repository, publisher AlertPublisher, logger *slog.Logger) *Checker {
	return &Checker{repo: repo, publisher: publisher, logger: logger}
}

// CurrentExpenses sums the expense transactions on the user's default
// account for the calendar month containing now. Sums are computed in
// Go so no precision is lost to the storage layer.
func (c *Checker) CurrentExpenses(ctx context.Context, userID string, now time.Time) (money.Money, error) {
	accounts, err := c.repo.ListAccounts(ctx, userID)
	if err != nil {
		return money.Money{}, err
	}
	var defaultAccount *core.Account
	for i := range accounts {
		if accounts[i].IsDefault {
			defaultAccount = &accounts[i]
			break
		}
	}
	if defaultAccount == nil {
		return money.Zero(""), nil
	}

	start, end := core.Period(now)
	txns, err := c.repo.TransactionsInRange(ctx, defaultAccount.ID, start, end)
	if err != nil {
		return money.Money{}, err
	}

	total := decimal.Zero
	for _, txn := range txns {
		if txn.Type == core.Expense {
			total = total.Add(txn.Amount.Amount())
		}
	}
	return money.New(total, defaultAccount.Currency), nil
}

// CurrentStatus returns the user's budget alongside the spending of the
// month containing now. Returns a NotFoundError when no budget is set.
func (c *Checker) CurrentStatus(ctx context.Context, userID string, now time.Time) (*Status, error) {
	b, err := c.repo.GetBudget(ctx, userID)
	if err != nil {
		return nil, err
	}
	spent, err := c.CurrentExpenses(ctx, userID, now)
	if err != nil {
		return nil, err
	}
	return &Status{
		Budget:      *b,
		Spent:       spent,
		Remaining:   money.New(b.Amount.Amount().Sub(spent.Amount()), b.Amount.Currency()),
		UsedPercent: usedPercent(spent.Amount(), b.Amount.Amount()),
	}, nil
}

func usedPercent(spent, limit decimal.Decimal) decimal.Decimal {
	if !limit.IsPositive() {
		return decimal.Zero
	}
	return spent.Mul(hundred).Div(limit)
}

// CheckThresholds evaluates the user's budget for the month containing
// now and emits at most one alert: the highest threshold crossed that
// has not already been alerted this period. A month rollover clears the
// alert state implicitly because the period key changes. Users without
// a budget are skipped.
func (c *Checker) CheckThresholds(ctx context.Context, userID string, now time.Time) (*Alert, error) {
	b, err := c.repo.GetBudget(ctx, userID)
	if err != nil {
		if core.IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}

	spent, err := c.CurrentExpenses(ctx, userID, now)
	if err != nil {
		return nil, err
	}

	percent := usedPercent(spent.Amount(), b.Amount.Amount())
	period := core.PeriodKey(now)
	for _, threshold := range thresholds {
		if percent.LessThan(decimal.NewFromInt(int64(threshold))) {
			continue
		}
		if b.LastAlertPeriod == period && b.LastAlertThreshold >= threshold {
			// Already alerted at this level or higher this month.
			return nil, nil
		}
		if err := c.repo.MarkAlertSent(ctx, userID, period, threshold); err != nil {
			return nil, err
		}
		alert := Alert{
			UserID:    userID,
			Period:    period,
			Threshold: threshold,
			Spent:     spent,
			Limit:     b.Amount,
		}
		c.publishAlert(ctx, alert)
		return &alert, nil
	}
	return nil, nil
}

func (c *Checker) publishAlert(ctx context.Context, alert Alert) {
	if c.publisher == nil {
		return
	}
	if err := c.publisher.PublishBudgetAlert(ctx, alert); err != nil {
		c.logger.ErrorContext(ctx, "Failed to publish budget alert",
			"user_id", alert.UserID,
			"threshold", alert.Threshold,
			"error", err)
	}
}
