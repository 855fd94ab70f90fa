package store

import (
	"database/sql"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{"no rows", sql.ErrNoRows, ErrNotFound},
		{"serialization failure", &pgconn.PgError{Code: "40001"}, ErrWriteConflict},
		{"deadlock", &pgconn.PgError{Code: "40P01"}, ErrWriteConflict},
		{"unique violation", &pgconn.PgError{Code: "23505"}, ErrDuplicate},
		{"foreign key violation", &pgconn.PgError{Code: "23503"}, ErrNotFound},
		{"wrapped serialization failure", fmt.Errorf("commit: %w", &pgconn.PgError{Code: "40001"}), ErrWriteConflict},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := classify(tt.err)
			assert.ErrorIs(t, got, tt.want)
			assert.ErrorIs(t, got, tt.err)
		})
	}
}

func TestClassifyLeavesOtherErrorsAlone(t *testing.T) {
	plain := errors.New("boom")
	assert.Same(t, plain, classify(plain))
	assert.Nil(t, classify(nil))

	check := &pgconn.PgError{Code: "23514"}
	got := classify(check)
	assert.False(t, errors.Is(got, ErrNotFound))
	assert.False(t, IsWriteConflict(got))
}

func TestIsWriteConflict(t *testing.T) {
	assert.True(t, IsWriteConflict(fmt.Errorf("move: %w", ErrWriteConflict)))
	assert.False(t, IsWriteConflict(ErrNotFound))
}
