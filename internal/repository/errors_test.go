package repository

import (
	"errors"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	pkgerrors "github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"gorm.io/gorm"
)

func TestTranslate(t *testing.T) {
	boom := errors.New("connection reset")

	tests := []struct {
		name     string
		err      error
		fallback error
		want     error
	}{
		{name: "nil", err: nil, want: nil},
		{name: "not found", err: gorm.ErrRecordNotFound, want: ErrNotFound},
		{name: "unique violation", err: &pgconn.PgError{Code: "23505"}, want: ErrDuplicateKey},
		{name: "foreign key violation", err: &pgconn.PgError{Code: "23503"}, want: ErrForeignKey},
		{name: "fallback sentinel", err: boom, fallback: ErrCreateFailed, want: ErrCreateFailed},
		{name: "plain error", err: boom, want: boom},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := translate(tt.err, tt.fallback, "op")
			if tt.want == nil {
				assert.NoError(t, got)
				return
			}
			assert.True(t, errors.Is(got, tt.want) || pkgerrors.Cause(got) == tt.want, "got %v", got)
		})
	}
}
