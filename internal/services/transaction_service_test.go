package services

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"bookkeep/internal/core"
	"bookkeep/internal/ledger"
	"bookkeep/internal/money"
	"bookkeep/internal/storage"
)

type staticRates struct {
	rates map[string]map[string]decimal.Decimal
}

func (s *staticRates) GetRates(_ context.Context, base string) (map[string]decimal.Decimal, error) {
	rates, ok := s.rates[base]
	if !ok {
		return nil, errors.New("unknown base")
	}
	return rates, nil
}

func newService(t *testing.T) (*TransactionService, *storage.Repository) {
	t.Helper()
	repo, err := storage.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })

	provider := &staticRates{rates: map[string]map[string]decimal.Decimal{
		// One EUR buys 1.08 USD.
		"EUR": {"USD": decimal.RequireFromString("1.08")},
	}}
	svc := NewTransactionService(repo, ledger.New(repo, nil), money.NewConverter(provider))
	return svc, repo
}

func seedAccount(t *testing.T, repo *storage.Repository, balance string) core.Account {
	t.Helper()
	b, err := money.Parse(balance, "EUR")
	if err != nil {
		t.Fatal(err)
	}
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	account := core.Account{
		ID:        uuid.NewString(),
		UserID:    "user-1",
		Name:      "Main",
		Type:      core.Checking,
		Currency:  "EUR",
		Balance:   b,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := repo.CreateAccount(context.Background(), account); err != nil {
		t.Fatalf("create account: %v", err)
	}
	return account
}

func expenseIntent(account core.Account, amount string) core.TransactionIntent {
	m, _ := money.Parse(amount, account.Currency)
	return core.TransactionIntent{
		UserID:      account.UserID,
		AccountID:   account.ID,
		Type:        core.Expense,
		Amount:      m,
		CategoryID:  "groceries",
		Description: "groceries run",
		OccurredAt:  time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC),
	}
}

func TestCreateWithoutCurrencyUsesAccountCurrency(t *testing.T) {
	svc, repo := newService(t)
	account := seedAccount(t, repo, "500.00")

	intent := expenseIntent(account, "60.00")
	intent.Amount, _ = money.Parse("60.00", "")

	txn, err := svc.Create(context.Background(), intent)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if txn.Amount.Currency() != "EUR" {
		t.Fatalf("expected the account currency EUR, got %q", txn.Amount.Currency())
	}

	got, err := repo.GetAccount(context.Background(), account.ID)
	if err != nil {
		t.Fatal(err)
	}
	want, _ := money.Parse("440.00", "EUR")
	if !got.Balance.Equal(want) {
		t.Fatalf("balance = %s, want 440.00 EUR", got.Balance)
	}
}

func TestCreateCommitsAndAdjustsBalance(t *testing.T) {
	svc, repo := newService(t)
	account := seedAccount(t, repo, "500.00")

	txn, err := svc.Create(context.Background(), expenseIntent(account, "120.00"))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if txn.ID == "" {
		t.Fatal("committed transaction must carry an id")
	}

	updated, err := repo.GetAccount(context.Background(), account.ID)
	if err != nil {
		t.Fatal(err)
	}
	want, _ := money.Parse("380.00", "EUR")
	if !updated.Balance.Equal(want) {
		t.Fatalf("expected balance %s, got %s", want, updated.Balance)
	}
}

func TestCreateConvertsForeignCurrency(t *testing.T) {
	svc, repo := newService(t)
	account := seedAccount(t, repo, "500.00")

	intent := expenseIntent(account, "0")
	intent.Amount, _ = money.Parse("108.00", "USD")

	txn, err := svc.Create(context.Background(), intent)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	// 108 USD at 1.08 USD per EUR is exactly 100 EUR.
	want, _ := money.Parse("100.00", "EUR")
	if !txn.Amount.Equal(want) {
		t.Fatalf("expected converted amount %s, got %s", want, txn.Amount)
	}
	if txn.Amount.Currency() != "EUR" {
		t.Fatalf("committed currency must match the account, got %s", txn.Amount.Currency())
	}
}

func TestCreateConversionFailureBlocksNothingElse(t *testing.T) {
	svc, repo := newService(t)
	account := seedAccount(t, repo, "500.00")

	intent := expenseIntent(account, "0")
	intent.Amount, _ = money.Parse("50.00", "GBP") // no GBP rate configured

	_, err := svc.Create(context.Background(), intent)
	var rateErr *money.RateUnavailableError
	if !errors.As(err, &rateErr) {
		t.Fatalf("expected RateUnavailableError, got %v", err)
	}

	// A plain same-currency commit still goes through.
	if _, err := svc.Create(context.Background(), expenseIntent(account, "10.00")); err != nil {
		t.Fatalf("non-converted commit must not be affected: %v", err)
	}
}

func TestCreateValidationFailureCommitsNothing(t *testing.T) {
	svc, repo := newService(t)
	account := seedAccount(t, repo, "500.00")

	intent := expenseIntent(account, "10.00")
	intent.Description = "   "

	_, err := svc.Create(context.Background(), intent)
	if !core.IsValidation(err) {
		t.Fatalf("expected ValidationError, got %v", err)
	}

	updated, _ := repo.GetAccount(context.Background(), account.ID)
	want, _ := money.Parse("500.00", "EUR")
	if !updated.Balance.Equal(want) {
		t.Fatalf("balance must be untouched, got %s", updated.Balance)
	}
}

func TestCreateRecurringSchedulesNextDate(t *testing.T) {
	svc, repo := newService(t)
	account := seedAccount(t, repo, "500.00")

	intent := expenseIntent(account, "15.00")
	intent.IsRecurring = true
	intent.RecurringInterval = core.Monthly
	intent.OccurredAt = time.Date(2025, 1, 31, 0, 0, 0, 0, time.UTC)

	txn, err := svc.Create(context.Background(), intent)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	// January 31st recurs on the last day of February.
	want := time.Date(2025, 2, 28, 0, 0, 0, 0, time.UTC)
	if !txn.NextRecurringDate.Equal(want) {
		t.Fatalf("expected next date %v, got %v", want, txn.NextRecurringDate)
	}

	stored, err := repo.GetTransaction(context.Background(), txn.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !stored.IsRecurring || stored.RecurringInterval != core.Monthly {
		t.Fatalf("recurring fields must persist, got %+v", stored)
	}
}

func TestCreateSplitExpense(t *testing.T) {
	svc, repo := newService(t)
	account := seedAccount(t, repo, "500.00")

	intent := expenseIntent(account, "250.00")
	intent.IsSplitExpense = true
	intent.Participants = []core.Participant{
		core.SelfParticipant(),
		{ID: "friend1", Name: "Friend 1"},
		{ID: "friend2", Name: "Friend 2"},
	}

	txn, err := svc.Create(context.Background(), intent)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	wantGross, _ := money.Parse("250.00", "EUR")
	if !txn.Amount.Equal(wantGross) {
		t.Fatalf("the payer settles the full gross, got %s", txn.Amount)
	}
	wantShare, _ := money.Parse("83.33", "EUR")
	if !txn.PerShare.Equal(wantShare) {
		t.Fatalf("expected per-share %s, got %s", wantShare, txn.PerShare)
	}
	if txn.Participants != 3 {
		t.Fatalf("expected 3 participants, got %d", txn.Participants)
	}
}

func TestUpdateReplacesAtomically(t *testing.T) {
	svc, repo := newService(t)
	account := seedAccount(t, repo, "500.00")
	ctx := context.Background()

	old, err := svc.Create(ctx, expenseIntent(account, "100.00"))
	if err != nil {
		t.Fatal(err)
	}

	updated, err := svc.Update(ctx, old.ID, expenseIntent(account, "40.00"))
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if updated.ID == old.ID {
		t.Fatal("replacement must be a new record")
	}

	acc, _ := repo.GetAccount(ctx, account.ID)
	want, _ := money.Parse("460.00", "EUR")
	if !acc.Balance.Equal(want) {
		t.Fatalf("expected balance %s, got %s", want, acc.Balance)
	}
	if _, err := repo.GetTransaction(ctx, old.ID); !core.IsNotFound(err) {
		t.Fatalf("old record must be gone, got %v", err)
	}
}

func TestDeleteReverses(t *testing.T) {
	svc, repo := newService(t)
	account := seedAccount(t, repo, "500.00")
	ctx := context.Background()

	txn, err := svc.Create(ctx, expenseIntent(account, "100.00"))
	if err != nil {
		t.Fatal(err)
	}
	if err := svc.Delete(ctx, txn.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	acc, _ := repo.GetAccount(ctx, account.ID)
	want, _ := money.Parse("500.00", "EUR")
	if !acc.Balance.Equal(want) {
		t.Fatalf("expected restored balance %s, got %s", want, acc.Balance)
	}
}

func TestProcessDueMaterializes(t *testing.T) {
	svc, repo := newService(t)
	account := seedAccount(t, repo, "500.00")
	ctx := context.Background()

	intent := expenseIntent(account, "20.00")
	intent.IsRecurring = true
	intent.RecurringInterval = core.Weekly
	intent.OccurredAt = time.Date(2025, 3, 3, 0, 0, 0, 0, time.UTC)

	if _, err := svc.Create(ctx, intent); err != nil {
		t.Fatal(err)
	}
	// Template commits 20 and schedules 2025-03-10; two occurrences are
	// due by the 17th.
	now := time.Date(2025, 3, 17, 12, 0, 0, 0, time.UTC)
	res, err := svc.ProcessDue(ctx, now)
	if err != nil {
		t.Fatalf("ProcessDue: %v", err)
	}
	if res.Processed != 2 || res.Failed != 0 {
		t.Fatalf("expected 2 processed, 0 failed, got %+v", res)
	}

	acc, _ := repo.GetAccount(ctx, account.ID)
	want, _ := money.Parse("440.00", "EUR")
	if !acc.Balance.Equal(want) {
		t.Fatalf("expected balance %s, got %s", want, acc.Balance)
	}
}
