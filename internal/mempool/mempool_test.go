package mempool_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lasagna-chain/lasagna/internal/core"
	"github.com/lasagna-chain/lasagna/internal/keys"
	"github.com/lasagna-chain/lasagna/internal/mempool"
)

func mustTx(t *testing.T, nonce uint64) core.Transaction {
	t.Helper()
	sk, err := keys.Generate()
	require.NoError(t, err)
	return core.NewTransaction([]keys.SecretKey{sk}, nil, nonce)
}

func TestAddAndContains(t *testing.T) {
	mp := mempool.New()
	tx := mustTx(t, 1)

	require.NoError(t, mp.Add(tx))
	require.True(t, mp.Contains(tx.Hash))
	require.Equal(t, 1, mp.Count())
}

func TestAddRejectsDuplicate(t *testing.T) {
	mp := mempool.New()
	tx := mustTx(t, 1)
	require.NoError(t, mp.Add(tx))
	require.ErrorIs(t, mp.Add(tx), mempool.ErrAlreadyBuffered)
}

func TestRemove(t *testing.T) {
	mp := mempool.New()
	tx := mustTx(t, 1)
	require.NoError(t, mp.Add(tx))
	mp.Remove(tx.Hash)
	require.False(t, mp.Contains(tx.Hash))
	require.Equal(t, 0, mp.Count())
}

func TestSnapshotReturnsAllBuffered(t *testing.T) {
	mp := mempool.New()
	tx1, tx2 := mustTx(t, 1), mustTx(t, 2)
	require.NoError(t, mp.Add(tx1))
	require.NoError(t, mp.Add(tx2))

	snap := mp.Snapshot()
	require.Len(t, snap, 2)
}
