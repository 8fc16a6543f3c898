package postgres

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"royalty-ledger/internal/domain"
	"royalty-ledger/internal/storage"
)

func TestAgreementStore(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewAgreementStore(pool)

	t.Run("rotate closes previous version", func(t *testing.T) {
		truncateAll(t, pool)

		_, err := store.GetActive(ctx, "m1")
		require.ErrorIs(t, err, storage.ErrNotFound)

		v1 := &domain.AgreementVersion{
			VersionID:      "v1",
			Mint:           "m1",
			PlatformFeeBps: 1000,
			EffectiveFrom:  1000,
			Shares: []domain.AgreementShare{
				{EarnerWallet: "B", Bps: 3000, Position: 1},
				{EarnerWallet: "A", Bps: 6000, Position: 0},
			},
		}
		require.NoError(t, store.Rotate(ctx, v1))

		active, err := store.GetActive(ctx, "m1")
		require.NoError(t, err)
		assert.Equal(t, uint32(1000), active.PlatformFeeBps)
		require.Len(t, active.Shares, 2)
		assert.Equal(t, "A", active.Shares[0].EarnerWallet)
		assert.Equal(t, uint32(6000), active.Shares[0].Bps)

		v2 := &domain.AgreementVersion{
			VersionID:      "v2",
			Mint:           "m1",
			PlatformFeeBps: 2000,
			EffectiveFrom:  5000,
			Shares:         []domain.AgreementShare{{EarnerWallet: "A", Bps: 8000}},
		}
		require.NoError(t, store.Rotate(ctx, v2))

		history, err := store.GetHistory(ctx, "m1")
		require.NoError(t, err)
		require.Len(t, history, 2)
		require.NotNil(t, history[0].EffectiveTo)
		assert.Equal(t, int64(5000), *history[0].EffectiveTo)
		assert.True(t, history[1].IsActive())
		assert.Len(t, history[0].Shares, 2)
	})

	t.Run("backdated version rejected", func(t *testing.T) {
		truncateAll(t, pool)

		require.NoError(t, store.Rotate(ctx, &domain.AgreementVersion{VersionID: "v1", Mint: "m1", PlatformFeeBps: 10000, EffectiveFrom: 1000}))
		err := store.Rotate(ctx, &domain.AgreementVersion{VersionID: "v0", Mint: "m1", PlatformFeeBps: 10000, EffectiveFrom: 10})
		require.ErrorIs(t, err, storage.ErrInvalidInput)

		active, err := store.GetActive(ctx, "m1")
		require.NoError(t, err)
		assert.Equal(t, "v1", active.VersionID)
	})
}
