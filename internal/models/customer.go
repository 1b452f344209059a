package models

import (
	"errors"
	"fmt"
	"strings"
	"unicode"

	"github.com/go-playground/validator/v10"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("personname", func(fl validator.FieldLevel) bool {
		return isPersonName(fl.Field().String())
	})
	_ = v.RegisterValidation("dotdomain", func(fl validator.FieldLevel) bool {
		_, domain, ok := strings.Cut(fl.Field().String(), "@")
		if !ok {
			return false
		}
		i := strings.LastIndex(domain, ".")
		return i > 0 && i < len(domain)-1
	})
	return v
}

// Customer owns an identity and zero or more accounts.
// Accounts is filled in by directory reads and is never the source of truth.
type Customer struct {
	ID       int64     `json:"id"`
	Name     string    `json:"name" validate:"required,personname"`
	Email    string    `json:"email" validate:"required,email,dotdomain"`
	Accounts []Account `json:"accounts,omitempty"`
}

// NewCustomer normalizes and validates a customer identity. It does not check
// whether the email is already taken.
func NewCustomer(name, email string) (*Customer, error) {
	c := &Customer{
		Name:  NormalizeName(name),
		Email: NormalizeEmail(email),
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Validate maps validator failures onto the name and email error kinds.
func (c *Customer) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return fmt.Errorf("failed to validate customer: %w", err)
	}
	// name is checked first, the way the console asks for it
	for _, fe := range fieldErrs {
		if fe.Field() == "Name" {
			return ErrInvalidName
		}
	}
	return ErrInvalidEmail
}

// AccountNumbers lists the numbers of the loaded accounts.
func (c *Customer) AccountNumbers() []int {
	numbers := make([]int, 0, len(c.Accounts))
	for _, a := range c.Accounts {
		numbers = append(numbers, a.AccountNumber)
	}
	return numbers
}

func (c *Customer) TotalBalance() int64 {
	var total int64
	for _, a := range c.Accounts {
		total += a.Balance
	}
	return total
}

// NormalizeName trims, collapses inner whitespace and upper-cases a name.
func NormalizeName(name string) string {
	return strings.ToUpper(strings.Join(strings.Fields(name), " "))
}

func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// isPersonName accepts letter-only words separated by single spaces.
func isPersonName(s string) bool {
	if s == "" || strings.TrimSpace(s) != s {
		return false
	}
	prevSpace := false
	for _, r := range s {
		switch {
		case r == ' ':
			if prevSpace {
				return false
			}
			prevSpace = true
		case unicode.IsLetter(r):
			prevSpace = false
		default:
			return false
		}
	}
	return true
}
