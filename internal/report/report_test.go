package report

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"bookkeep/internal/core"
	"bookkeep/internal/money"
	"bookkeep/internal/storage"
)

func newTestRepo(t *testing.T) *storage.Repository {
	t.Helper()
	repo, err := storage.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo
}

func seedAccount(t *testing.T, repo *storage.Repository, id, userID string) core.Account {
	t.Helper()
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	account := core.Account{
		ID:        id,
		UserID:    userID,
		Name:      "Main",
		Type:      core.Checking,
		Currency:  "EUR",
		Balance:   money.Zero("EUR"),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := repo.CreateAccount(context.Background(), account); err != nil {
		t.Fatalf("create account: %v", err)
	}
	return account
}

func seedTxn(t *testing.T, repo *storage.Repository, account core.Account, id string, typ core.TransactionType, amount string, occurredAt time.Time) {
	t.Helper()
	m, err := money.Parse(amount, account.Currency)
	if err != nil {
		t.Fatal(err)
	}
	categoryID := "groceries"
	if typ == core.Income {
		categoryID = "salary"
	}
	txn := core.Transaction{
		ID:          id,
		AccountID:   account.ID,
		UserID:      account.UserID,
		Type:        typ,
		Amount:      m,
		CategoryID:  categoryID,
		Description: "seed",
		OccurredAt:  occurredAt,
		CreatedAt:   occurredAt,
		UpdatedAt:   occurredAt,
	}
	err = repo.WithTx(context.Background(), func(tx *storage.Tx) error {
		return tx.InsertTransaction(context.Background(), txn)
	})
	if err != nil {
		t.Fatalf("insert transaction: %v", err)
	}
}

func TestSeriesDayBuckets(t *testing.T) {
	repo := newTestRepo(t)
	account := seedAccount(t, repo, "acc-1", "user-1")
	reporter := New(repo)

	day1 := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	day3 := time.Date(2025, 3, 12, 18, 30, 0, 0, time.UTC)
	seedTxn(t, repo, account, "t1", core.Expense, "20.00", day1)
	seedTxn(t, repo, account, "t2", core.Expense, "5.00", day1)
	seedTxn(t, repo, account, "t3", core.Income, "100.00", day3)

	from := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)
	to := time.Date(2025, 3, 13, 0, 0, 0, 0, time.UTC)
	buckets, err := reporter.Series(context.Background(), account.ID, from, to, Day)
	if err != nil {
		t.Fatalf("Series: %v", err)
	}
	if len(buckets) != 3 {
		t.Fatalf("expected 3 day buckets, got %d", len(buckets))
	}

	wantExpense, _ := money.Parse("25.00", "EUR")
	if !buckets[0].Expense.Equal(wantExpense) {
		t.Fatalf("day 1 expense: expected %s, got %s", wantExpense, buckets[0].Expense)
	}
	if !buckets[0].Income.Equal(money.Zero("EUR")) {
		t.Fatalf("day 1 income must be zero, got %s", buckets[0].Income)
	}

	// The empty middle day still appears.
	if !buckets[1].Income.Equal(money.Zero("EUR")) || !buckets[1].Expense.Equal(money.Zero("EUR")) {
		t.Fatalf("empty bucket must carry zero totals, got %+v", buckets[1])
	}

	wantIncome, _ := money.Parse("100.00", "EUR")
	if !buckets[2].Income.Equal(wantIncome) {
		t.Fatalf("day 3 income: expected %s, got %s", wantIncome, buckets[2].Income)
	}
}

func TestSeriesWeekBucketsStartMonday(t *testing.T) {
	repo := newTestRepo(t)
	account := seedAccount(t, repo, "acc-1", "user-1")
	reporter := New(repo)

	// 2025-03-12 is a Wednesday; its week starts Monday 2025-03-10.
	seedTxn(t, repo, account, "t1", core.Expense, "30.00", time.Date(2025, 3, 12, 12, 0, 0, 0, time.UTC))
	seedTxn(t, repo, account, "t2", core.Expense, "10.00", time.Date(2025, 3, 18, 12, 0, 0, 0, time.UTC))

	from := time.Date(2025, 3, 12, 0, 0, 0, 0, time.UTC)
	to := time.Date(2025, 3, 19, 0, 0, 0, 0, time.UTC)
	buckets, err := reporter.Series(context.Background(), account.ID, from, to, Week)
	if err != nil {
		t.Fatalf("Series: %v", err)
	}
	if len(buckets) != 2 {
		t.Fatalf("expected 2 week buckets, got %d", len(buckets))
	}
	if want := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC); !buckets[0].Start.Equal(want) {
		t.Fatalf("first week must start Monday %v, got %v", want, buckets[0].Start)
	}
	wantExpense, _ := money.Parse("30.00", "EUR")
	if !buckets[0].Expense.Equal(wantExpense) {
		t.Fatalf("first week expense: expected %s, got %s", wantExpense, buckets[0].Expense)
	}
}

func TestSeriesMonthBuckets(t *testing.T) {
	repo := newTestRepo(t)
	account := seedAccount(t, repo, "acc-1", "user-1")
	reporter := New(repo)

	seedTxn(t, repo, account, "t1", core.Income, "500.00", time.Date(2025, 1, 15, 0, 0, 0, 0, time.UTC))
	seedTxn(t, repo, account, "t2", core.Expense, "200.00", time.Date(2025, 3, 2, 0, 0, 0, 0, time.UTC))

	from := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC)
	buckets, err := reporter.Series(context.Background(), account.ID, from, to, Month)
	if err != nil {
		t.Fatalf("Series: %v", err)
	}
	if len(buckets) != 3 {
		t.Fatalf("expected 3 month buckets, got %d", len(buckets))
	}
	wantIncome, _ := money.Parse("500.00", "EUR")
	if !buckets[0].Income.Equal(wantIncome) {
		t.Fatalf("January income: expected %s, got %s", wantIncome, buckets[0].Income)
	}
	if !buckets[1].Income.Equal(money.Zero("EUR")) || !buckets[1].Expense.Equal(money.Zero("EUR")) {
		t.Fatalf("February must be zero, got %+v", buckets[1])
	}
	wantExpense, _ := money.Parse("200.00", "EUR")
	if !buckets[2].Expense.Equal(wantExpense) {
		t.Fatalf("March expense: expected %s, got %s", wantExpense, buckets[2].Expense)
	}
}

func TestSeriesInvalidGranularity(t *testing.T) {
	repo := newTestRepo(t)
	account := seedAccount(t, repo, "acc-1", "user-1")
	reporter := New(repo)

	_, err := reporter.Series(context.Background(), account.ID, time.Now().AddDate(0, 0, -7), time.Now(), Granularity("hour"))
	if !core.IsValidation(err) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
}

func TestDashboard(t *testing.T) {
	repo := newTestRepo(t)
	first := seedAccount(t, repo, "acc-1", "user-1")
	second := seedAccount(t, repo, "acc-2", "user-1")

	at := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	seedTxn(t, repo, first, "t1", core.Expense, "10.00", at.AddDate(0, 0, -2))
	seedTxn(t, repo, first, "t2", core.Income, "50.00", at.AddDate(0, 0, -1))
	// Equal timestamps resolve by id descending.
	seedTxn(t, repo, second, "t3", core.Expense, "5.00", at)
	seedTxn(t, repo, second, "t4", core.Expense, "7.00", at)

	dashboard, err := New(repo).Dashboard(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("Dashboard: %v", err)
	}
	if len(dashboard.Accounts) != 2 {
		t.Fatalf("expected 2 accounts, got %d", len(dashboard.Accounts))
	}
	counts := map[string]int{}
	for _, s := range dashboard.Accounts {
		counts[s.Account.ID] = s.TransactionCount
	}
	if counts["acc-1"] != 2 || counts["acc-2"] != 2 {
		t.Fatalf("unexpected transaction counts: %v", counts)
	}

	if len(dashboard.Recent) != 4 {
		t.Fatalf("expected 4 recent transactions, got %d", len(dashboard.Recent))
	}
	wantOrder := []string{"t4", "t3", "t2", "t1"}
	for i, want := range wantOrder {
		if dashboard.Recent[i].ID != want {
			t.Fatalf("recent[%d]: expected %s, got %s", i, want, dashboard.Recent[i].ID)
		}
	}
}
