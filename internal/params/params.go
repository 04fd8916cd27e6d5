// Package params holds the constants every peer must agree on (spec.md §6)
// so the ledger, draw, block, and blockchain packages share a single
// source of truth instead of redeclaring them.
package params

import "github.com/holiman/uint256"

const (
	// SeedAge is the lag, in blocks, between a block's depth and the depth
	// of the block whose hash seeds its lottery draw.
	SeedAge int64 = 50

	// BlockReward is the fixed MiniLas reward paid to a block's proposer,
	// on top of the fees collected from its transactions.
	BlockReward uint64 = 3_000_000

	// TransactionFee is the fixed MiniLas fee every transfer instruction
	// must clear, and the fee withheld from the payer's account.
	TransactionFee uint64 = 10_000

	// RootAmount is the MiniLas balance every root (genesis) account starts
	// with.
	RootAmount uint64 = 100_000_000

	// MinimumStakeAmount is the balance a non-root account must reach before
	// it is recorded in the published-accounts set.
	MinimumStakeAmount uint64 = 10_000_000

	// SlotLengthProd is the production timeslot length, in microseconds.
	SlotLengthProd int64 = 1_000_000

	// StartTime is the production genesis epoch, in Unix microseconds.
	StartTime int64 = 1_761_384_740_000_000
)

// Hardness is the leader-election difficulty constant, 10421 * 10^73. It is
// deliberately left byte-for-byte as specified: at full relative stake
// (balance == total_money) it caps the network's per-timeslot win
// probability at (2^256 - Hardness) / 2^256, a little over 10%. The
// original source's own commentary describes this figure differently, but
// peers must agree on the literal constant, not on the prose describing it.
var Hardness = mustHardness()

func mustHardness() *uint256.Int {
	h, err := uint256.FromDecimal("104210000000000000000000000000000000000000000000000000000000000000000000000000")
	if err != nil {
		panic("params: invalid HARDNESS literal: " + err.Error())
	}
	return h
}
