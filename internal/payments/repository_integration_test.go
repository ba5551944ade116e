//go:build integration

package payments

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rentdesk/rentdesk/internal/shared"
	"github.com/rentdesk/rentdesk/internal/testing/pgtest"
)

func TestClaimKeyAgainstPostgres(t *testing.T) {
	pool := pgtest.Pool(t)
	repo := NewRepository(pool)
	ctx := context.Background()

	claim := func(key string) error {
		return repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
			return tx.ClaimKey(ctx, key)
		})
	}
	require.NoError(t, claim("form-1"))
	assert.ErrorIs(t, claim("form-1"), shared.ErrIdempotencyConflict)

	rollback := errors.New("rollback")
	err := repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		require.NoError(t, tx.ClaimKey(ctx, "form-2"))
		return rollback
	})
	assert.ErrorIs(t, err, rollback)
	require.NoError(t, claim("form-2"))

	store := shared.NewIdempotencyStore(pool)
	_, err = pool.Exec(ctx, `UPDATE idempotency_keys SET created_at = NOW() - INTERVAL '10 days' WHERE key = 'form-1'`)
	require.NoError(t, err)
	deleted, err := store.Cleanup(ctx, 7*24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)
	require.NoError(t, claim("form-1"))
}
