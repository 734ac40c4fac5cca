package db

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

// Postgres SQLSTATE codes we react to
const (
	codeUniqueViolation     = "23505"
	codeForeignKeyViolation = "23503"
	codeLockNotAvailable    = "55P03"
)

// PgErrorCode returns the SQLSTATE of a Postgres error, or ""
func PgErrorCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

// IsUniqueViolation reports a unique constraint violation
func IsUniqueViolation(err error) bool {
	return PgErrorCode(err) == codeUniqueViolation
}

// IsForeignKeyViolation reports a foreign key violation
func IsForeignKeyViolation(err error) bool {
	return PgErrorCode(err) == codeForeignKeyViolation
}

// IsLockNotAvailable reports a NOWAIT lock failure
func IsLockNotAvailable(err error) bool {
	return PgErrorCode(err) == codeLockNotAvailable
}
