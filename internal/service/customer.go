package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/abkawan/banking-directory/internal/db"
	"github.com/abkawan/banking-directory/internal/models"
)

// OpenOrReuseCustomer returns the customer stored under email, or creates one.
// On reuse the supplied name is ignored and reused is true.
func (d *Directory) OpenOrReuseCustomer(ctx context.Context, name, email string) (customer *models.Customer, reused bool, err error) {
	candidate, err := models.NewCustomer(name, email)
	if err != nil {
		return nil, false, err
	}

	unlock := d.locks.lock(emailKey(candidate.Email))
	defer unlock()

	existing, err := d.store.CustomerByEmail(ctx, candidate.Email)
	switch {
	case err == nil:
		d.logReuse(existing, candidate)
		return existing, true, nil
	case !errors.Is(err, models.ErrCustomerNotFound):
		return nil, false, fmt.Errorf("failed to look up customer: %w", err)
	}

	err = d.store.InsertCustomer(ctx, candidate)
	if errors.Is(err, models.ErrDuplicateEmail) {
		// another writer created it between the lookup and the insert
		existing, err = d.store.CustomerByEmail(ctx, candidate.Email)
		if err != nil {
			return nil, false, fmt.Errorf("failed to look up customer: %w", err)
		}
		d.logReuse(existing, candidate)
		return existing, true, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to create customer: %w", err)
	}

	d.logger.Info("Customer created", "customer_id", candidate.ID, "name", candidate.Name)
	return candidate, false, nil
}

func (d *Directory) logReuse(existing, requested *models.Customer) {
	if existing.Name != requested.Name {
		d.logger.Info("Customer already exists under a different name, reusing profile",
			"customer_id", existing.ID,
			"stored_name", existing.Name,
			"requested_name", requested.Name,
		)
		return
	}
	d.logger.Debug("Customer already exists, reusing profile", "customer_id", existing.ID)
}

// FindCustomer loads a customer with its accounts.
func (d *Directory) FindCustomer(ctx context.Context, id int64) (*models.Customer, error) {
	c, err := d.store.CustomerByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if c.Accounts, err = d.store.AccountsByCustomer(ctx, c.ID); err != nil {
		return nil, fmt.Errorf("failed to load accounts: %w", err)
	}
	return c, nil
}

func (d *Directory) FindCustomerByEmail(ctx context.Context, email string) (*models.Customer, error) {
	c, err := d.store.CustomerByEmail(ctx, models.NormalizeEmail(email))
	if err != nil {
		return nil, err
	}
	if c.Accounts, err = d.store.AccountsByCustomer(ctx, c.ID); err != nil {
		return nil, fmt.Errorf("failed to load accounts: %w", err)
	}
	return c, nil
}

// DeleteCustomer removes a customer that owns no accounts.
func (d *Directory) DeleteCustomer(ctx context.Context, id int64) error {
	unlock := d.locks.lock(customerKey(id))
	defer unlock()

	err := d.store.WithTx(ctx, func(tx *db.Tx) error {
		if _, err := tx.CustomerByIDForUpdate(ctx, id); err != nil {
			return err
		}
		n, err := tx.CountAccounts(ctx, id)
		if err != nil {
			return err
		}
		if n > 0 {
			return fmt.Errorf("%w: %d remaining", models.ErrCustomerHasAccounts, n)
		}
		return tx.DeleteCustomer(ctx, id)
	})
	if err != nil {
		return err
	}

	d.logger.Info("Customer deleted", "customer_id", id)
	return nil
}

// ListCustomers reports every customer with their accounts and balances.
// The result is built from the store on every call.
func (d *Directory) ListCustomers(ctx context.Context) ([]models.Customer, error) {
	customers, err := d.store.ListCustomers(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list customers: %w", err)
	}
	accounts, err := d.store.ListAccounts(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}

	index := make(map[int64]int, len(customers))
	for i := range customers {
		customers[i].Accounts = make([]models.Account, 0)
		index[customers[i].ID] = i
	}
	for _, a := range accounts {
		// accounts created after the customer read are skipped
		if i, ok := index[a.CustomerID]; ok {
			customers[i].Accounts = append(customers[i].Accounts, a)
		}
	}
	return customers, nil
}

// CustomerSummary maps each of the customer's account numbers to its balance
// and number of ledger entries.
func (d *Directory) CustomerSummary(ctx context.Context, id int64) (map[int]models.AccountSummary, error) {
	c, err := d.FindCustomer(ctx, id)
	if err != nil {
		return nil, err
	}

	summary := make(map[int]models.AccountSummary, len(c.Accounts))
	for _, a := range c.Accounts {
		n, err := d.store.CountEntries(ctx, a.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to count transactions: %w", err)
		}
		summary[a.AccountNumber] = models.AccountSummary{Balance: a.Balance, Transactions: n}
	}
	return summary, nil
}
