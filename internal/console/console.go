package console

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"strconv"
	"strings"

	"github.com/abkawan/banking-directory/internal/models"
	"github.com/fatih/color"
)

const banner = "WELCOME TO LUXE LADY BANK"

// Bank is the set of directory operations the console drives.
type Bank interface {
	OpenOrReuseCustomer(ctx context.Context, name, email string) (*models.Customer, bool, error)
	CreateAccount(ctx context.Context, customer *models.Customer, initialBalance int64) (*models.Account, error)
	FindAccountByNumber(ctx context.Context, number int) (*models.Account, error)
	Deposit(ctx context.Context, number int, amount int64) (*models.LedgerEntry, error)
	Withdraw(ctx context.Context, number int, amount int64) (*models.LedgerEntry, error)
	Balance(ctx context.Context, number int) (int64, error)
	TransactionsFor(ctx context.Context, number int) ([]models.LedgerEntry, error)
	DeleteAccount(ctx context.Context, req models.DeleteAccountRequest) (models.DeleteOutcome, error)
	ListCustomers(ctx context.Context) ([]models.Customer, error)
}

// Handler runs the interactive menu. It holds no bank state of its own; every
// answer comes from the Bank.
type Handler struct {
	bank   Bank
	in     *bufio.Scanner
	out    io.Writer
	logger *slog.Logger

	ok   *color.Color
	fail *color.Color
	menu *color.Color
}

func NewHandler(bank Bank, in io.Reader, out io.Writer, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Handler{
		bank:   bank,
		in:     bufio.NewScanner(in),
		out:    out,
		logger: logger,
		ok:     color.New(color.FgGreen),
		fail:   color.New(color.FgRed),
		menu:   color.New(color.FgCyan),
	}
}

// Run shows the main menu until the user quits, the input ends or ctx is done.
func (h *Handler) Run(ctx context.Context) error {
	h.println(banner)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		h.menu.Fprintln(h.out, "(c) - Create account")
		h.menu.Fprintln(h.out, "(o) - Open Account")
		h.menu.Fprintln(h.out, "(v) - View Customers")
		h.menu.Fprintln(h.out, "(q) - Quit")
		choice, err := h.prompt("Enter your choice (c)/(o)/(v) or 'q' to quit: ")
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}

		switch strings.ToLower(choice) {
		case "c":
			err = h.createAccount(ctx)
		case "o":
			err = h.openAccount(ctx)
		case "v":
			err = h.viewCustomers(ctx)
		case "q":
			return nil
		default:
			h.fail.Fprintln(h.out, "Invalid choice. Please select 'c', 'o', 'v', or 'q'.")
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
	}
}

func (h *Handler) createAccount(ctx context.Context) error {
	first, err := h.prompt("Enter Your First Name: ")
	if err != nil {
		return err
	}
	last, err := h.prompt("Enter Your Last Name: ")
	if err != nil {
		return err
	}
	email, err := h.prompt("Enter your email: ")
	if err != nil {
		return err
	}
	initial, err := h.prompt("Enter an opening deposit (leave empty for 0): ")
	if err != nil {
		return err
	}

	// each part is a single word; the joined name is checked again by the bank
	if !singleWord(first) || !singleWord(last) {
		h.fail.Fprintln(h.out, "Name must contain only letters.")
		return nil
	}

	var amount int64
	if initial != "" {
		if amount, err = strconv.ParseInt(initial, 10, 64); err != nil {
			h.fail.Fprintln(h.out, "Invalid amount. Amount must be a whole number.")
			return nil
		}
	}

	customer, reused, err := h.bank.OpenOrReuseCustomer(ctx, first+" "+last, email)
	if err != nil {
		return h.report(err)
	}
	if reused {
		h.println("Customer already exists. Using existing profile.")
	} else {
		h.ok.Fprintf(h.out, "Customer %s created successfully!\n", customer.Name)
	}

	account, err := h.bank.CreateAccount(ctx, customer, amount)
	if err != nil {
		return h.report(err)
	}
	h.ok.Fprintf(h.out, "Account for %s created successfully!\n", account.AccountName)
	h.printf("Please note down your account number: %d\n", account.AccountNumber)
	return nil
}

func (h *Handler) openAccount(ctx context.Context) error {
	raw, err := h.prompt("Enter your account number: ")
	if err != nil {
		return err
	}
	number, err := strconv.Atoi(raw)
	if err != nil {
		h.fail.Fprintln(h.out, "Invalid input. Account number must be a number.")
		return nil
	}

	account, err := h.bank.FindAccountByNumber(ctx, number)
	if err != nil {
		return h.report(err)
	}

	h.menu.Fprintln(h.out, "(d) - Deposit")
	h.menu.Fprintln(h.out, "(w) - Withdraw")
	h.menu.Fprintln(h.out, "(c) - Check Balance")
	h.menu.Fprintln(h.out, "(del) - Delete Account")
	h.menu.Fprintln(h.out, "(v) - View Transactions")
	action, err := h.prompt("Enter any of the operations (c)/(d)/(w)/(del)/(v): ")
	if err != nil {
		return err
	}

	switch strings.ToLower(action) {
	case "d":
		return h.move(ctx, account, "deposit", h.bank.Deposit)
	case "w":
		return h.move(ctx, account, "withdraw", h.bank.Withdraw)
	case "c":
		return h.checkBalance(ctx, account)
	case "del":
		return h.deleteAccount(ctx, account)
	case "v":
		return h.viewTransactions(ctx, account)
	default:
		h.fail.Fprintln(h.out, "Invalid option. Please select 'c', 'd', 'w', 'del', or 'v'.")
		return nil
	}
}

func (h *Handler) move(ctx context.Context, account *models.Account, verb string,
	op func(context.Context, int, int64) (*models.LedgerEntry, error)) error {
	raw, err := h.prompt(fmt.Sprintf("Enter the amount to %s: ", verb))
	if err != nil {
		return err
	}
	amount, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		h.fail.Fprintln(h.out, "Invalid amount. Amount must be a whole number.")
		return nil
	}

	entry, err := op(ctx, account.AccountNumber, amount)
	if err != nil {
		return h.report(err)
	}

	past := "Deposited"
	if entry.Type == models.Withdrawal {
		past = "Withdrawn"
	}
	h.ok.Fprintf(h.out, "%s %d Ksh. New balance: %d Ksh\n", past, entry.Amount, entry.BalanceAfter)
	return nil
}

func (h *Handler) checkBalance(ctx context.Context, account *models.Account) error {
	balance, err := h.bank.Balance(ctx, account.AccountNumber)
	if err != nil {
		return h.report(err)
	}
	h.printf("Account balance: %d Ksh\n", balance)
	h.printf("Account Holder: %s, Balance: %d Ksh\n", account.AccountName, balance)
	return nil
}

func (h *Handler) deleteAccount(ctx context.Context, account *models.Account) error {
	answer, err := h.prompt(fmt.Sprintf(
		"Are you sure you want to delete the account %s (Account No: %d)? (yes/no): ",
		account.AccountName, account.AccountNumber))
	if err != nil {
		return err
	}

	outcome, err := h.bank.DeleteAccount(ctx, models.DeleteAccountRequest{
		AccountNumber: account.AccountNumber,
		Confirmed:     strings.ToLower(answer) == "yes",
	})
	if errors.Is(err, models.ErrDeletionNotConfirmed) {
		h.println("Account deletion canceled.")
		return nil
	}
	if err != nil {
		return h.report(err)
	}

	if outcome == models.AccountAndCustomerDeleted {
		h.ok.Fprintf(h.out, "Customer %s deleted successfully since they have no more accounts.\n", account.AccountName)
		return nil
	}
	h.ok.Fprintf(h.out, "Account %s deleted successfully.\n", account.AccountName)
	return nil
}

func (h *Handler) viewTransactions(ctx context.Context, account *models.Account) error {
	entries, err := h.bank.TransactionsFor(ctx, account.AccountNumber)
	if err != nil {
		return h.report(err)
	}
	if len(entries) == 0 {
		h.println("No transactions found for this account.")
		return nil
	}
	h.printf("Transactions for Account No: %d\n", account.AccountNumber)
	for _, e := range entries {
		h.println(e.String())
	}
	return nil
}

func (h *Handler) viewCustomers(ctx context.Context) error {
	customers, err := h.bank.ListCustomers(ctx)
	if err != nil {
		return h.report(err)
	}
	if len(customers) == 0 {
		h.println("No customers found.")
		return nil
	}
	h.println("Customer List:")
	for _, c := range customers {
		h.printf("Name: %s, Email: %s\n", c.Name, c.Email)
		for _, a := range c.Accounts {
			h.printf("  Account No: %d, Balance: %d Ksh\n", a.AccountNumber, a.Balance)
		}
	}
	return nil
}

// report prints the user-facing message for err and returns nil so the menu
// keeps running. Unexpected errors are logged.
func (h *Handler) report(err error) error {
	msg, known := messageFor(err)
	if known {
		h.fail.Fprintln(h.out, msg)
		return nil
	}
	h.logger.Error("Operation failed", "error", err)
	h.fail.Fprintln(h.out, "Something went wrong. Please try again later.")
	return nil
}

func messageFor(err error) (string, bool) {
	switch {
	case errors.Is(err, models.ErrInvalidName):
		return "Name must contain only letters.", true
	case errors.Is(err, models.ErrInvalidEmail):
		return "Invalid email address.", true
	case errors.Is(err, models.ErrInvalidAmount):
		return "Invalid amount. Amount must be positive.", true
	case errors.Is(err, models.ErrInsufficientBalance):
		return "Invalid amount. Insufficient balance.", true
	case errors.Is(err, models.ErrBalanceOverflow):
		return "Invalid amount. Balance would exceed the maximum.", true
	case errors.Is(err, models.ErrAccountNotFound):
		return "Account not found. Please check your account number and try again.", true
	case errors.Is(err, models.ErrCustomerNotFound):
		return "Customer not found.", true
	case errors.Is(err, models.ErrAccountNumbersExhausted), errors.Is(err, models.ErrAccountNumberOutOfRange):
		return "No account numbers are available right now. Please try again later.", true
	default:
		return "", false
	}
}

func singleWord(s string) bool {
	return len(strings.Fields(s)) == 1
}

// prompt writes label and reads one trimmed line. A closed input yields io.EOF.
func (h *Handler) prompt(label string) (string, error) {
	fmt.Fprint(h.out, label)
	if !h.in.Scan() {
		if err := h.in.Err(); err != nil && !errors.Is(err, fs.ErrClosed) {
			return "", fmt.Errorf("failed to read input: %w", err)
		}
		fmt.Fprintln(h.out)
		return "", io.EOF
	}
	return strings.TrimSpace(h.in.Text()), nil
}

func (h *Handler) println(a ...any) {
	fmt.Fprintln(h.out, a...)
}

func (h *Handler) printf(format string, a ...any) {
	fmt.Fprintf(h.out, format, a...)
}
