package db

import (
	"errors"
	"strings"

	"github.com/lib/pq"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// postgres SQLSTATE for unique_violation
const pqUniqueViolation = "23505"

var uniqueColumns = []string{"account_number", "email", "reference"}

// uniqueViolation reports whether err is a unique-constraint failure and, if
// so, which of the known unique columns it hit.
func uniqueViolation(err error) (string, bool) {
	var detail string

	var pqErr *pq.Error
	var liteErr *sqlite.Error
	switch {
	case errors.As(err, &pqErr) && string(pqErr.Code) == pqUniqueViolation:
		detail = pqErr.Constraint + " " + pqErr.Message
	case errors.As(err, &liteErr) && liteErr.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE:
		detail = liteErr.Error()
	default:
		return "", false
	}

	for _, column := range uniqueColumns {
		if strings.Contains(detail, column) {
			return column, true
		}
	}
	return "", true
}
