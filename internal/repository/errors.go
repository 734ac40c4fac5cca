package repository

import (
	"github.com/pkg/errors"

	"example.com/premeepro/production/internal/db"
)

// Common repository errors
var (
	ErrNotFound     = errors.New("record not found")
	ErrCreateFailed = errors.New("failed to create record")
	ErrUpdateFailed = errors.New("failed to update record")
	ErrDeleteFailed = errors.New("failed to delete record")
	ErrDuplicateKey = errors.New("duplicate key violation")
	ErrForeignKey   = errors.New("foreign key violation")
)

// translate maps driver errors onto the repository sentinels, wrapping with msg
func translate(err error, fallback error, msg string) error {
	switch {
	case err == nil:
		return nil
	case db.IsRecordNotFoundError(err):
		return ErrNotFound
	case db.IsUniqueViolation(err):
		return errors.Wrap(ErrDuplicateKey, msg)
	case db.IsForeignKeyViolation(err):
		return errors.Wrap(ErrForeignKey, msg)
	case fallback != nil:
		return errors.Wrapf(fallback, "%s: %v", msg, err)
	default:
		return errors.Wrap(err, msg)
	}
}
