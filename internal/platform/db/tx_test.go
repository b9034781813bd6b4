package db

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

func TestClassifyConcurrentUpdates(t *testing.T) {
	for _, code := range []string{codeSerializationFailure, codeDeadlockDetected} {
		t.Run(code, func(t *testing.T) {
			pgErr := &pgconn.PgError{Code: code, Message: "could not serialize access due to concurrent update"}
			err := classify(fmt.Errorf("insert journal entry: %w", pgErr))
			require.ErrorIs(t, err, shared.ErrBusy)

			var got *pgconn.PgError
			require.ErrorAs(t, err, &got)
			require.Equal(t, code, got.Code)
			require.NotEqual(t, "internal error", shared.UserSafeMessage(err))
		})
	}
}

func TestClassifyLeavesOtherErrors(t *testing.T) {
	unique := &pgconn.PgError{Code: "23505"}
	require.Same(t, error(unique), classify(unique))
	require.NotErrorIs(t, classify(unique), shared.ErrBusy)

	plain := errors.New("boom")
	require.Equal(t, plain, classify(plain))
}
