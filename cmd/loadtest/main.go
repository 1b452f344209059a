package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"sync"
	"time"

	"github.com/abkawan/banking-directory/internal/db"
	"github.com/abkawan/banking-directory/internal/models"
	"github.com/abkawan/banking-directory/internal/service"
	"github.com/fatih/color"
)

const (
	numAccounts     = 100   // Number of accounts to create
	numTransactions = 10000 // Total number of transactions
	maxConcurrency  = 200   // Maximum number of concurrent operations
	initialBalance  = 10000 // Opening deposit for each account
	maxAmount       = 1000  // Maximum transaction amount
)

var (
	success = color.New(color.FgGreen)
	failure = color.New(color.FgRed)
	info    = color.New(color.FgBlue)
)

// loadtest hammers a directory with concurrent deposits and withdrawals and
// then checks that every balance still equals its ledger.
func main() {
	driver := flag.String("driver", "sqlite", "store driver: sqlite or postgres")
	dsn := flag.String("dsn", ":memory:", "sqlite path or postgres URI; use a scratch database")
	flag.Parse()

	ctx := context.Background()

	store, err := db.Open(*driver, *dsn)
	if err != nil {
		failure.Printf("Failed to open store: %v\n", err)
		os.Exit(1)
	}
	defer store.Close()
	if err := store.InitSchema(ctx); err != nil {
		failure.Printf("Failed to create schema: %v\n", err)
		os.Exit(1)
	}

	directory := service.NewDirectory(store)

	info.Printf("starting a heavy load test with %d accounts and %d transactions\n", numAccounts, numTransactions)

	accounts := createAccounts(ctx, directory, numAccounts)
	success.Printf("Created %d accounts\n", len(accounts))
	if len(accounts) == 0 {
		os.Exit(1)
	}

	// Create semaphore for limiting concurrency
	sem := make(chan struct{}, maxConcurrency)
	var wg sync.WaitGroup

	startTime := time.Now()
	var (
		mu           sync.Mutex
		successCount int
		rejectCount  int
		errorCount   int
	)

	info.Printf("launching %d transactions with max concurrency of %d\n", numTransactions, maxConcurrency)

	for i := 0; i < numTransactions; i++ {
		wg.Add(1)
		sem <- struct{}{}

		go func(txNum int) {
			defer wg.Done()
			defer func() { <-sem }()

			account := accounts[rand.Intn(len(accounts))]
			amount := 1 + rand.Int63n(maxAmount)

			op := directory.Deposit
			if rand.Intn(2) == 1 {
				op = directory.Withdraw
			}
			entry, err := op(ctx, account.AccountNumber, amount)

			mu.Lock()
			defer mu.Unlock()
			switch {
			case errors.Is(err, models.ErrInsufficientBalance):
				rejectCount++
			case err != nil:
				errorCount++
				if txNum%100 == 0 {
					failure.Printf("Transaction failed: %v\n", err)
				}
			default:
				successCount++
				if txNum%500 == 0 {
					success.Printf("Transaction %d: %s on account %d (ref: %s)\n",
						txNum, entry, account.AccountNumber, entry.Reference)
				}
			}
		}(i)
	}

	wg.Wait()
	duration := time.Since(startTime)

	info.Println("\n=== heavy load Test Results ===")
	fmt.Printf("Total number of transactions: %d\n", numTransactions)
	success.Printf("Recorded: %d (%.1f%%)\n", successCount, percent(successCount))
	fmt.Printf("Rejected for insufficient balance: %d (%.1f%%)\n", rejectCount, percent(rejectCount))
	failure.Printf("Failed: %d (%.1f%%)\n", errorCount, percent(errorCount))
	fmt.Printf("Duration: %.2f seconds\n", duration.Seconds())
	fmt.Printf("Throughput: %.2f transactions/second\n", float64(numTransactions)/duration.Seconds())

	info.Println("\nChecking final account balances...")
	if !checkAccounts(ctx, directory, accounts) || errorCount > 0 {
		os.Exit(1)
	}
}

func createAccounts(ctx context.Context, d *service.Directory, count int) []models.Account {
	accounts := make([]models.Account, 0, count)
	for i := 0; i < count; i++ {
		customer, _, err := d.OpenOrReuseCustomer(ctx, "Load Tester", fmt.Sprintf("load%d@example.com", i))
		if err != nil {
			failure.Printf("Failed to create customer: %v\n", err)
			continue
		}
		account, err := d.CreateAccount(ctx, customer, initialBalance)
		if err != nil {
			failure.Printf("Failed to create account: %v\n", err)
			continue
		}
		accounts = append(accounts, *account)
		if i%10 == 0 || i == count-1 {
			success.Printf("created account %d/%d: %d with balance %d\n", i+1, count, account.AccountNumber, account.Balance)
		}
	}
	return accounts
}

// checkAccounts replays every ledger and compares it with the stored balance.
func checkAccounts(ctx context.Context, d *service.Directory, accounts []models.Account) bool {
	ok := true
	for _, a := range accounts {
		details, err := d.AccountDetails(ctx, a.AccountNumber)
		if err != nil {
			failure.Printf("Error retrieving account %d: %v\n", a.AccountNumber, err)
			ok = false
			continue
		}

		var sum int64
		deposits, withdrawals := 0, 0
		for _, e := range details.Entries {
			if e.Type == models.Deposit {
				sum += e.Amount
				deposits++
			} else {
				sum -= e.Amount
				withdrawals++
			}
		}

		if sum != details.Account.Balance || details.Account.Balance < 0 {
			failure.Printf("Account %d: balance %d Ksh but ledger sums to %d Ksh\n", a.AccountNumber, details.Account.Balance, sum)
			ok = false
			continue
		}
		if a.AccountNumber%10 == 0 {
			fmt.Printf("  Account %d: %d Ksh, %d deposits, %d withdrawals\n",
				a.AccountNumber, details.Account.Balance, deposits, withdrawals)
		}
	}
	if ok {
		success.Printf("All %d balances match their ledgers\n", len(accounts))
	}
	return ok
}

func percent(n int) float64 {
	return float64(n) / float64(numTransactions) * 100
}
