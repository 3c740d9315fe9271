package db

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

// ErrVersionConflict is returned by compare-and-set updates when the row's
// version no longer matches the one the caller read.
var ErrVersionConflict = errors.New("row version conflict")

const uniqueViolationCode = "23505"

// IsUniqueViolation reports whether err is a Postgres unique-constraint violation.
func IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolationCode
}
