// Package ledger implements the account balance table, replay protection,
// and stake-publication bookkeeping (spec component C5). A blockchain keeps
// two Ledgers: the dynamic ledger that tracks the live chain head, and a
// clone of it, the static ledger lagged by params.SeedAge blocks, which is
// the sole input to leader-election draws.
package ledger

import (
	"fmt"

	"github.com/lasagna-chain/lasagna/internal/core"
	"github.com/lasagna-chain/lasagna/internal/keys"
	"github.com/lasagna-chain/lasagna/internal/nodeerrors"
	"github.com/lasagna-chain/lasagna/internal/params"
	"github.com/lasagna-chain/lasagna/internal/types"
)

// Ledger holds account balances, the replay-protection set of processed
// transaction hashes, and the depth at which each staking-eligible account
// was published.
type Ledger struct {
	balances             map[keys.PublicKey]uint64
	previousTransactions map[types.Hash]struct{}
	publishedAccounts    map[keys.PublicKey]int64
	rootAccounts         []keys.PublicKey
}

// New builds an empty ledger over rootAccounts. Root accounts are published
// at depth 0 and can stake immediately; they still need to be credited via
// RewardWinner to receive their genesis balance.
func New(rootAccounts []keys.PublicKey) *Ledger {
	l := &Ledger{
		balances:             make(map[keys.PublicKey]uint64),
		previousTransactions: make(map[types.Hash]struct{}),
		publishedAccounts:    make(map[keys.PublicKey]int64, len(rootAccounts)),
		rootAccounts:         append([]keys.PublicKey(nil), rootAccounts...),
	}
	for _, ra := range rootAccounts {
		l.publishedAccounts[ra] = 0
	}
	return l
}

// Clone returns a deep copy so the dynamic and static ledgers can diverge
// independently.
func (l *Ledger) Clone() *Ledger {
	c := &Ledger{
		balances:             make(map[keys.PublicKey]uint64, len(l.balances)),
		previousTransactions: make(map[types.Hash]struct{}, len(l.previousTransactions)),
		publishedAccounts:    make(map[keys.PublicKey]int64, len(l.publishedAccounts)),
		rootAccounts:         append([]keys.PublicKey(nil), l.rootAccounts...),
	}
	for k, v := range l.balances {
		c.balances[k] = v
	}
	for k := range l.previousTransactions {
		c.previousTransactions[k] = struct{}{}
	}
	for k, v := range l.publishedAccounts {
		c.publishedAccounts[k] = v
	}
	return c
}

// Balance returns account's balance, or 0 if it has never been touched.
func (l *Ledger) Balance(account keys.PublicKey) uint64 {
	return l.balances[account]
}

// TotalMoney sums every tracked balance; it is the denominator used by the
// stake-weighted winning predicate.
func (l *Ledger) TotalMoney() uint64 {
	var total uint64
	for _, bal := range l.balances {
		total += bal
	}
	return total
}

func (l *Ledger) addAccountIfAbsent(pk keys.PublicKey) {
	if _, ok := l.balances[pk]; !ok {
		l.balances[pk] = 0
	}
}

func (l *Ledger) isRootAccount(account keys.PublicKey) bool {
	for _, ra := range l.rootAccounts {
		if ra == account {
			return true
		}
	}
	return false
}

// CanStake reports whether account may be a block's draw.signed_by: it must
// either be a root account or have been published for longer than
// 2*params.SeedAge blocks as of atDepth (resolving OQ-1 — publication age is
// enforced here, against the depth the caller is evaluating the draw at).
func (l *Ledger) CanStake(account keys.PublicKey, atDepth int64) bool {
	if l.isRootAccount(account) {
		return true
	}
	publishedAt, ok := l.publishedAccounts[account]
	if !ok {
		return false
	}
	return atDepth-publishedAt > 2*params.SeedAge
}

// IsTransactionValid checks tx's own invariants and that it has not already
// been applied.
func (l *Ledger) IsTransactionValid(tx core.Transaction) error {
	if err := tx.Validate(); err != nil {
		return err
	}
	if err := tx.VerifySignatures(); err != nil {
		return err
	}
	if _, seen := l.previousTransactions[tx.Hash]; seen {
		return fmt.Errorf("%w: %s", nodeerrors.ErrDuplicateTransaction, tx.Hash)
	}
	return nil
}

// ProcessTransaction applies tx at depth atomically: on any instruction
// failure every balance touched by the transaction (including the fee
// withheld from the payer) is restored to its pre-transaction value, and the
// hash is removed from previousTransactions — the net effect is a full
// revert, not merely an undo of the individual transfers.
func (l *Ledger) ProcessTransaction(tx core.Transaction, depth int64) error {
	if err := l.IsTransactionValid(tx); err != nil {
		return err
	}

	snap := newSnapshot()
	for _, pk := range tx.Message.Accounts {
		snap.record(pk, l.balances)
	}

	payer := tx.Message.Accounts[0]
	l.addAccountIfAbsent(payer)
	if l.balances[payer] <= params.TransactionFee {
		return fmt.Errorf("%w: payer %s does not have enough MiniLas to pay the transaction fee", nodeerrors.ErrInsufficientFunds, payer)
	}
	l.balances[payer] -= params.TransactionFee

	l.previousTransactions[tx.Hash] = struct{}{}

	for i, ix := range tx.Message.Instructions {
		if err := l.processInstruction(ix, tx.Message, depth); err != nil {
			l.rollbackToSnapshot(snap, tx.Hash)
			return fmt.Errorf("instruction %d: %w", i, err)
		}
	}

	return nil
}

func (l *Ledger) processInstruction(ix core.CompiledInstruction, message core.Message, depth int64) error {
	from := message.Accounts[ix.SenderIndex()]
	to := message.Accounts[ix.ReceiverIndex()]

	l.addAccountIfAbsent(from)
	l.addAccountIfAbsent(to)

	if l.balances[from] < ix.Amount {
		return fmt.Errorf("%w: sender %s does not have enough MiniLas for the instruction", nodeerrors.ErrInsufficientFunds, from)
	}
	l.balances[from] -= ix.Amount
	l.balances[to] += ix.Amount

	if _, published := l.publishedAccounts[to]; !published && l.balances[to] >= params.MinimumStakeAmount {
		l.publishedAccounts[to] = depth
	}

	return nil
}

func (l *Ledger) rollbackToSnapshot(snap *snapshot, hash types.Hash) {
	for pk, bal := range snap.balances {
		if bal != nil {
			l.balances[pk] = *bal
		} else {
			l.deleteAccount(pk)
		}
	}
	delete(l.previousTransactions, hash)
}

func (l *Ledger) deleteAccount(pk keys.PublicKey) {
	delete(l.balances, pk)
	delete(l.publishedAccounts, pk)
}

// RollbackTransaction undoes an already-applied transaction: each
// instruction is reversed in order, the fee is restored to the payer, the
// hash is forgotten, and any account published at exactly depth is
// unpublished.
func (l *Ledger) RollbackTransaction(tx core.Transaction, depth int64) {
	for _, ix := range tx.Message.Instructions {
		l.rollbackInstruction(ix, tx.Message)
	}

	delete(l.previousTransactions, tx.Hash)
	l.balances[tx.Message.Accounts[0]] += params.TransactionFee

	for _, pk := range tx.Message.Accounts {
		if publishedAt, ok := l.publishedAccounts[pk]; ok && publishedAt == depth {
			delete(l.publishedAccounts, pk)
		}
	}
}

func (l *Ledger) rollbackInstruction(ix core.CompiledInstruction, message core.Message) {
	from := message.Accounts[ix.SenderIndex()]
	to := message.Accounts[ix.ReceiverIndex()]
	l.balances[from] += ix.Amount
	l.balances[to] -= ix.Amount
}

// RewardWinner credits amount to winner, creating the account at 0 first if
// it is new.
func (l *Ledger) RewardWinner(winner keys.PublicKey, amount uint64) {
	l.balances[winner] += amount
}

// RollbackReward reverses a previously applied RewardWinner.
func (l *Ledger) RollbackReward(winner keys.PublicKey, amount uint64) {
	l.addAccountIfAbsent(winner)
	l.balances[winner] -= amount
}
