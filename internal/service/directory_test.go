package service_test

import (
	"context"
	"errors"
	"io"
	"log"
	"log/slog"
	"os"
	"sync"
	"testing"

	"github.com/abkawan/banking-directory/internal/db"
	"github.com/abkawan/banking-directory/internal/models"
	"github.com/abkawan/banking-directory/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	slog.SetDefault(slog.New(slog.NewTextHandler(io.Discard, nil)))
	log.SetOutput(io.Discard)

	exitVal := m.Run()
	os.Exit(exitVal)
}

func newDirectory(t *testing.T, opts ...service.Option) *service.Directory {
	t.Helper()
	store, err := db.NewSQLite(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	require.NoError(t, store.InitSchema(context.Background()))
	return service.NewDirectory(store, opts...)
}

// numbers returns a generator that yields nums in order and then repeats the last one.
func numbers(nums ...int) func() int {
	var mu sync.Mutex
	i := 0
	return func() int {
		mu.Lock()
		defer mu.Unlock()
		n := nums[i]
		if i < len(nums)-1 {
			i++
		}
		return n
	}
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []models.LedgerEvent
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, ev models.LedgerEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, ev)
	return nil
}

func openCustomer(t *testing.T, d *service.Directory, name, email string) *models.Customer {
	t.Helper()
	c, _, err := d.OpenOrReuseCustomer(context.Background(), name, email)
	require.NoError(t, err)
	return c
}

func openAccount(t *testing.T, d *service.Directory, c *models.Customer, initial int64) *models.Account {
	t.Helper()
	a, err := d.CreateAccount(context.Background(), c, initial)
	require.NoError(t, err)
	return a
}

func TestOpenOrReuseCustomer(t *testing.T) {
	d := newDirectory(t)
	ctx := context.Background()

	first, reused, err := d.OpenOrReuseCustomer(ctx, "  Jane  Doe ", "Jane@X.com")
	require.NoError(t, err)
	assert.False(t, reused)
	assert.NotZero(t, first.ID)
	assert.Equal(t, "JANE DOE", first.Name)
	assert.Equal(t, "jane@x.com", first.Email)

	again, reused, err := d.OpenOrReuseCustomer(ctx, "Janet Other", "jane@x.com")
	require.NoError(t, err)
	assert.True(t, reused)
	assert.Equal(t, first.ID, again.ID)
	assert.Equal(t, "JANE DOE", again.Name)

	customers, err := d.ListCustomers(ctx)
	require.NoError(t, err)
	assert.Len(t, customers, 1)
}

func TestOpenOrReuseCustomer_Invalid(t *testing.T) {
	d := newDirectory(t)
	ctx := context.Background()
	openCustomer(t, d, "Jane Doe", "jane@x.com")

	tests := []struct {
		name, email string
		want        error
	}{
		{"J4ne", "j4ne@x.com", models.ErrInvalidName},
		{"", "empty@x.com", models.ErrInvalidName},
		{"Jane Doe", "jane.x.com", models.ErrInvalidEmail},
		{"Jane Doe", "jane@localhost", models.ErrInvalidEmail},
		// validation runs before the lookup, so a known email does not rescue a bad name
		{"Jane_Doe", "jane@x.com", models.ErrInvalidName},
	}
	for _, tt := range tests {
		t.Run(tt.name+"/"+tt.email, func(t *testing.T) {
			c, _, err := d.OpenOrReuseCustomer(ctx, tt.name, tt.email)
			assert.ErrorIs(t, err, tt.want)
			assert.Nil(t, c)
		})
	}

	customers, err := d.ListCustomers(ctx)
	require.NoError(t, err)
	assert.Len(t, customers, 1)
}

func TestFindCustomer(t *testing.T) {
	d := newDirectory(t)
	ctx := context.Background()
	c := openCustomer(t, d, "Jane Doe", "jane@x.com")
	a := openAccount(t, d, c, 10)

	found, err := d.FindCustomer(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, []int{a.AccountNumber}, found.AccountNumbers())

	byEmail, err := d.FindCustomerByEmail(ctx, " JANE@X.COM ")
	require.NoError(t, err)
	assert.Equal(t, c.ID, byEmail.ID)
	assert.Equal(t, int64(10), byEmail.TotalBalance())

	_, err = d.FindCustomer(ctx, c.ID+100)
	assert.ErrorIs(t, err, models.ErrCustomerNotFound)
	_, err = d.FindCustomerByEmail(ctx, "nobody@x.com")
	assert.ErrorIs(t, err, models.ErrCustomerNotFound)
}

func TestWorkedExample(t *testing.T) {
	d := newDirectory(t, service.WithNumberGenerator(numbers(12345)))
	ctx := context.Background()

	c := openCustomer(t, d, "John Smith", "john@x.com")
	a := openAccount(t, d, c, 500)
	assert.Equal(t, 12345, a.AccountNumber)
	assert.Equal(t, "JOHN SMITH", a.AccountName)
	assert.Equal(t, int64(500), a.Balance)

	_, err := d.Withdraw(ctx, a.AccountNumber, 200)
	require.NoError(t, err)

	balance, err := d.Balance(ctx, a.AccountNumber)
	require.NoError(t, err)
	assert.Equal(t, int64(300), balance)

	entries, err := d.TransactionsFor(ctx, a.AccountNumber)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "Deposit: 500 Ksh", entries[0].String())
	assert.Equal(t, "Withdrawal: 200 Ksh", entries[1].String())
	assert.Equal(t, int64(300), entries[1].BalanceAfter)
}

func TestCreateAccount(t *testing.T) {
	d := newDirectory(t)
	ctx := context.Background()
	c := openCustomer(t, d, "Jane Doe", "jane@x.com")

	a := openAccount(t, d, c, 0)
	assert.True(t, models.ValidAccountNumber(a.AccountNumber))
	assert.Equal(t, c.ID, a.CustomerID)
	assert.Zero(t, a.Balance)

	entries, err := d.TransactionsFor(ctx, a.AccountNumber)
	require.NoError(t, err)
	assert.NotNil(t, entries)
	assert.Empty(t, entries)

	_, err = d.CreateAccount(ctx, c, -1)
	assert.ErrorIs(t, err, models.ErrInvalidAmount)

	_, err = d.CreateAccount(ctx, nil, 10)
	assert.ErrorIs(t, err, models.ErrCustomerNotFound)

	_, err = d.CreateAccount(ctx, &models.Customer{ID: c.ID + 100, Name: "GHOST"}, 10)
	assert.ErrorIs(t, err, models.ErrCustomerNotFound)

	found, err := d.FindCustomer(ctx, c.ID)
	require.NoError(t, err)
	assert.Len(t, found.Accounts, 1)
}

func TestCreateAccount_RedrawsTakenNumbers(t *testing.T) {
	d := newDirectory(t, service.WithNumberGenerator(numbers(11111, 11111, 11111, 22222)))
	c := openCustomer(t, d, "Jane Doe", "jane@x.com")
	other := openCustomer(t, d, "John Smith", "john@x.com")

	first := openAccount(t, d, c, 0)
	second := openAccount(t, d, other, 0)

	assert.Equal(t, 11111, first.AccountNumber)
	assert.Equal(t, 22222, second.AccountNumber)
}

func TestCreateAccount_Exhausted(t *testing.T) {
	d := newDirectory(t,
		service.WithNumberGenerator(numbers(11111)),
		service.WithMaxNumberAttempts(3),
	)
	c := openCustomer(t, d, "Jane Doe", "jane@x.com")
	openAccount(t, d, c, 0)

	_, err := d.CreateAccount(context.Background(), c, 50)
	assert.ErrorIs(t, err, models.ErrAccountNumbersExhausted)

	found, err := d.FindCustomer(context.Background(), c.ID)
	require.NoError(t, err)
	assert.Len(t, found.Accounts, 1)
}

func TestCreateAccount_RandomNumbersAreUnique(t *testing.T) {
	if testing.Short() {
		t.Skip("creates 2000 accounts")
	}
	d := newDirectory(t)
	c := openCustomer(t, d, "Jane Doe", "jane@x.com")

	seen := make(map[int]struct{}, 2000)
	for i := 0; i < 2000; i++ {
		a := openAccount(t, d, c, 0)
		require.True(t, models.ValidAccountNumber(a.AccountNumber), "number %d out of range", a.AccountNumber)
		_, dup := seen[a.AccountNumber]
		require.False(t, dup, "number %d issued twice", a.AccountNumber)
		seen[a.AccountNumber] = struct{}{}
	}

	found, err := d.FindCustomer(context.Background(), c.ID)
	require.NoError(t, err)
	assert.Len(t, found.Accounts, 2000)
}

func TestCreateAccount_GeneratorOutOfRange(t *testing.T) {
	d := newDirectory(t, service.WithNumberGenerator(numbers(5)))
	c := openCustomer(t, d, "Jane Doe", "jane@x.com")

	_, err := d.CreateAccount(context.Background(), c, 10)
	assert.ErrorIs(t, err, models.ErrAccountNumberOutOfRange)

	found, err := d.FindCustomer(context.Background(), c.ID)
	require.NoError(t, err)
	assert.Empty(t, found.Accounts)
}

func TestDepositWithdraw_InvalidAmounts(t *testing.T) {
	d := newDirectory(t)
	ctx := context.Background()
	a := openAccount(t, d, openCustomer(t, d, "Jane Doe", "jane@x.com"), 100)

	for _, amount := range []int64{0, -5} {
		_, err := d.Deposit(ctx, a.AccountNumber, amount)
		assert.ErrorIs(t, err, models.ErrInvalidAmount)
		_, err = d.Withdraw(ctx, a.AccountNumber, amount)
		assert.ErrorIs(t, err, models.ErrInvalidAmount)
	}

	entries, err := d.TransactionsFor(ctx, a.AccountNumber)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestWithdraw_InsufficientBalance(t *testing.T) {
	d := newDirectory(t)
	ctx := context.Background()
	a := openAccount(t, d, openCustomer(t, d, "Jane Doe", "jane@x.com"), 100)

	_, err := d.Withdraw(ctx, a.AccountNumber, 101)
	assert.ErrorIs(t, err, models.ErrInsufficientBalance)

	balance, err := d.Balance(ctx, a.AccountNumber)
	require.NoError(t, err)
	assert.Equal(t, int64(100), balance)

	entries, err := d.TransactionsFor(ctx, a.AccountNumber)
	require.NoError(t, err)
	assert.Len(t, entries, 1)

	// draining to exactly zero is allowed
	_, err = d.Withdraw(ctx, a.AccountNumber, 100)
	require.NoError(t, err)
	balance, err = d.Balance(ctx, a.AccountNumber)
	require.NoError(t, err)
	assert.Zero(t, balance)
}

func TestUnknownAccount(t *testing.T) {
	d := newDirectory(t)
	ctx := context.Background()

	_, err := d.Deposit(ctx, 54321, 10)
	assert.ErrorIs(t, err, models.ErrAccountNotFound)
	_, err = d.Withdraw(ctx, 54321, 10)
	assert.ErrorIs(t, err, models.ErrAccountNotFound)
	_, err = d.Balance(ctx, 54321)
	assert.ErrorIs(t, err, models.ErrAccountNotFound)
	_, err = d.TransactionsFor(ctx, 54321)
	assert.ErrorIs(t, err, models.ErrAccountNotFound)
	_, err = d.AccountDetails(ctx, 54321)
	assert.ErrorIs(t, err, models.ErrAccountNotFound)
	_, err = d.FindAccountByNumber(ctx, 54321)
	assert.ErrorIs(t, err, models.ErrAccountNotFound)
	_, err = d.DeleteAccount(ctx, models.DeleteAccountRequest{AccountNumber: 54321, Confirmed: true})
	assert.ErrorIs(t, err, models.ErrAccountNotFound)
}

func TestBalanceMatchesLedger(t *testing.T) {
	d := newDirectory(t)
	ctx := context.Background()
	a := openAccount(t, d, openCustomer(t, d, "Jane Doe", "jane@x.com"), 40)

	ops := []struct {
		deposit bool
		amount  int64
	}{
		{true, 60}, {false, 30}, {false, 80}, {true, 5}, {false, 100}, {false, 1},
	}
	for _, op := range ops {
		if op.deposit {
			_, _ = d.Deposit(ctx, a.AccountNumber, op.amount)
		} else {
			_, _ = d.Withdraw(ctx, a.AccountNumber, op.amount)
		}
	}

	details, err := d.AccountDetails(ctx, a.AccountNumber)
	require.NoError(t, err)

	var sum int64
	for _, e := range details.Entries {
		if e.Type == models.Deposit {
			sum += e.Amount
		} else {
			sum -= e.Amount
		}
		assert.GreaterOrEqual(t, e.BalanceAfter, int64(0))
		assert.Equal(t, sum, e.BalanceAfter)
	}
	assert.Equal(t, sum, details.Account.Balance)
	// the 80 and 100 withdrawals overdraw and leave no entry
	assert.Len(t, details.Entries, 5)
	assert.Equal(t, int64(74), sum)
}

func TestDeleteAccount(t *testing.T) {
	d := newDirectory(t, service.WithNumberGenerator(numbers(11111, 22222)))
	ctx := context.Background()
	c := openCustomer(t, d, "Jane Doe", "jane@x.com")
	first := openAccount(t, d, c, 100)
	second := openAccount(t, d, c, 0)
	_, err := d.Deposit(ctx, first.AccountNumber, 5)
	require.NoError(t, err)

	_, err = d.DeleteAccount(ctx, models.DeleteAccountRequest{AccountNumber: first.AccountNumber})
	assert.ErrorIs(t, err, models.ErrDeletionNotConfirmed)
	_, err = d.FindAccountByNumber(ctx, first.AccountNumber)
	require.NoError(t, err)

	outcome, err := d.DeleteAccount(ctx, models.DeleteAccountRequest{AccountNumber: first.AccountNumber, Confirmed: true})
	require.NoError(t, err)
	assert.Equal(t, models.AccountDeleted, outcome)

	_, err = d.TransactionsFor(ctx, first.AccountNumber)
	assert.ErrorIs(t, err, models.ErrAccountNotFound)

	customers, err := d.ListCustomers(ctx)
	require.NoError(t, err)
	require.Len(t, customers, 1)
	assert.Equal(t, []int{second.AccountNumber}, customers[0].AccountNumbers())

	outcome, err = d.DeleteAccount(ctx, models.DeleteAccountRequest{AccountNumber: second.AccountNumber, Confirmed: true})
	require.NoError(t, err)
	assert.Equal(t, models.AccountAndCustomerDeleted, outcome)

	customers, err = d.ListCustomers(ctx)
	require.NoError(t, err)
	assert.Empty(t, customers)

	_, err = d.FindCustomerByEmail(ctx, "jane@x.com")
	assert.ErrorIs(t, err, models.ErrCustomerNotFound)

	// the email is free again and yields a fresh customer
	again, reused, err := d.OpenOrReuseCustomer(ctx, "Jane Doe", "jane@x.com")
	require.NoError(t, err)
	assert.False(t, reused)
	assert.NotEqual(t, c.ID, again.ID)
}

func TestDeleteCustomer(t *testing.T) {
	d := newDirectory(t)
	ctx := context.Background()
	c := openCustomer(t, d, "Jane Doe", "jane@x.com")
	a := openAccount(t, d, c, 0)

	err := d.DeleteCustomer(ctx, c.ID)
	assert.ErrorIs(t, err, models.ErrCustomerHasAccounts)

	_, err = d.DeleteAccount(ctx, models.DeleteAccountRequest{AccountNumber: a.AccountNumber, Confirmed: true})
	require.NoError(t, err)

	err = d.DeleteCustomer(ctx, c.ID)
	assert.ErrorIs(t, err, models.ErrCustomerNotFound)

	lone := openCustomer(t, d, "John Smith", "john@x.com")
	require.NoError(t, d.DeleteCustomer(ctx, lone.ID))
	_, err = d.FindCustomer(ctx, lone.ID)
	assert.ErrorIs(t, err, models.ErrCustomerNotFound)
}

func TestListCustomersAndSummary(t *testing.T) {
	d := newDirectory(t, service.WithNumberGenerator(numbers(11111, 22222, 33333)))
	ctx := context.Background()

	customers, err := d.ListCustomers(ctx)
	require.NoError(t, err)
	assert.NotNil(t, customers)
	assert.Empty(t, customers)

	jane := openCustomer(t, d, "Jane Doe", "jane@x.com")
	john := openCustomer(t, d, "John Smith", "john@x.com")
	openAccount(t, d, jane, 100)
	openAccount(t, d, jane, 0)
	openAccount(t, d, john, 7)
	_, err = d.Withdraw(ctx, 11111, 40)
	require.NoError(t, err)

	customers, err = d.ListCustomers(ctx)
	require.NoError(t, err)
	require.Len(t, customers, 2)
	assert.Equal(t, []int{11111, 22222}, customers[0].AccountNumbers())
	assert.Equal(t, int64(60), customers[0].TotalBalance())
	assert.Equal(t, []int{33333}, customers[1].AccountNumbers())

	summary, err := d.CustomerSummary(ctx, jane.ID)
	require.NoError(t, err)
	assert.Equal(t, map[int]models.AccountSummary{
		11111: {Balance: 60, Transactions: 2},
		22222: {Balance: 0, Transactions: 0},
	}, summary)

	_, err = d.CustomerSummary(ctx, john.ID+100)
	assert.ErrorIs(t, err, models.ErrCustomerNotFound)
}

func TestPublishesCommittedEntries(t *testing.T) {
	pub := &recordingPublisher{}
	d := newDirectory(t, service.WithPublisher(pub), service.WithNumberGenerator(numbers(12345)))
	ctx := context.Background()

	a := openAccount(t, d, openCustomer(t, d, "John Smith", "john@x.com"), 500)
	_, err := d.Withdraw(ctx, a.AccountNumber, 200)
	require.NoError(t, err)
	_, err = d.Withdraw(ctx, a.AccountNumber, 1000)
	require.Error(t, err)

	require.Len(t, pub.events, 2)
	assert.Equal(t, models.Deposit, pub.events[0].Type)
	assert.Equal(t, int64(500), pub.events[0].Amount)
	assert.Equal(t, models.Withdrawal, pub.events[1].Type)
	assert.Equal(t, int64(300), pub.events[1].BalanceAfter)
	assert.Equal(t, 12345, pub.events[1].AccountNumber)
	assert.Equal(t, "JOHN SMITH", pub.events[1].AccountName)
}

func TestPublishFailureDoesNotFailOperation(t *testing.T) {
	pub := &recordingPublisher{err: errors.New("broker down")}
	d := newDirectory(t, service.WithPublisher(pub))
	ctx := context.Background()

	a := openAccount(t, d, openCustomer(t, d, "Jane Doe", "jane@x.com"), 10)
	_, err := d.Deposit(ctx, a.AccountNumber, 5)
	require.NoError(t, err)

	balance, err := d.Balance(ctx, a.AccountNumber)
	require.NoError(t, err)
	assert.Equal(t, int64(15), balance)
}

func TestConcurrentTransactions(t *testing.T) {
	d := newDirectory(t)
	ctx := context.Background()
	a := openAccount(t, d, openCustomer(t, d, "Jane Doe", "jane@x.com"), 1000)

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
	)
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, err := d.Deposit(ctx, a.AccountNumber, 10)
			assert.NoError(t, err)
		}()
		go func() {
			defer wg.Done()
			_, err := d.Withdraw(ctx, a.AccountNumber, 100)
			if err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
				return
			}
			assert.ErrorIs(t, err, models.ErrInsufficientBalance)
		}()
	}
	wg.Wait()

	balance, err := d.Balance(ctx, a.AccountNumber)
	require.NoError(t, err)
	assert.Equal(t, int64(1000+20*10-succeeded*100), balance)
	assert.GreaterOrEqual(t, balance, int64(0))

	entries, err := d.TransactionsFor(ctx, a.AccountNumber)
	require.NoError(t, err)
	assert.Len(t, entries, 1+20+succeeded)
}

func TestConcurrentCustomerCreation(t *testing.T) {
	d := newDirectory(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	ids := make([]int64, 10)
	for i := range ids {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			c, _, err := d.OpenOrReuseCustomer(ctx, "Jane Doe", "jane@x.com")
			if assert.NoError(t, err) {
				ids[i] = c.ID
			}
		}(i)
	}
	wg.Wait()

	for _, id := range ids {
		assert.Equal(t, ids[0], id)
	}
	customers, err := d.ListCustomers(ctx)
	require.NoError(t, err)
	assert.Len(t, customers, 1)
}
