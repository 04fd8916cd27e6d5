// Package mempool buffers transactions that have been accepted by the
// dynamic ledger but not yet included in a block. The spec's
// transaction_buffer is a set; this package additionally stores the actual
// Transaction objects, since a reorg needs to reinsert the transactions of
// rolled-back blocks.
package mempool

import (
	"fmt"
	"sync"

	"github.com/lasagna-chain/lasagna/internal/core"
	"github.com/lasagna-chain/lasagna/internal/types"
)

// ErrAlreadyBuffered is returned by Add when the transaction's hash is
// already present.
var ErrAlreadyBuffered = fmt.Errorf("transaction already buffered")

// Mempool is a set of pending transactions keyed by hash.
type Mempool struct {
	mu           sync.RWMutex
	transactions map[types.Hash]core.Transaction
}

// New returns an empty Mempool.
func New() *Mempool {
	return &Mempool{transactions: make(map[types.Hash]core.Transaction)}
}

// Add inserts tx, failing if its hash is already buffered.
func (mp *Mempool) Add(tx core.Transaction) error {
	mp.mu.Lock()
	defer mp.mu.Unlock()

	if _, exists := mp.transactions[tx.Hash]; exists {
		return fmt.Errorf("%w: %s", ErrAlreadyBuffered, tx.Hash)
	}
	mp.transactions[tx.Hash] = tx
	return nil
}

// Remove evicts a transaction, typically once its block has been applied.
// It is a no-op if hash is not present.
func (mp *Mempool) Remove(hash types.Hash) {
	mp.mu.Lock()
	defer mp.mu.Unlock()
	delete(mp.transactions, hash)
}

// Contains reports whether hash is currently buffered.
func (mp *Mempool) Contains(hash types.Hash) bool {
	mp.mu.RLock()
	defer mp.mu.RUnlock()
	_, ok := mp.transactions[hash]
	return ok
}

// Snapshot returns every buffered transaction, in unspecified order. The
// caller owns the returned slice.
func (mp *Mempool) Snapshot() []core.Transaction {
	mp.mu.RLock()
	defer mp.mu.RUnlock()
	txs := make([]core.Transaction, 0, len(mp.transactions))
	for _, tx := range mp.transactions {
		txs = append(txs, tx)
	}
	return txs
}

// Count returns the number of buffered transactions.
func (mp *Mempool) Count() int {
	mp.mu.RLock()
	defer mp.mu.RUnlock()
	return len(mp.transactions)
}
