// Package nodeerrors collects the sentinel errors surfaced by the consensus
// core, so callers can distinguish error kinds with errors.Is instead of
// string matching.
package nodeerrors

import "errors"

var (
	// ErrBadSignature is returned on an Ed25519 verification failure for a
	// transaction, block, or draw.
	ErrBadSignature = errors.New("signature verification failed")

	// ErrBadHash is returned when a recomputed hash does not match the
	// stored hash.
	ErrBadHash = errors.New("recomputed hash does not match stored hash")

	// ErrBadTimeslot is returned when a block's timeslot is not strictly
	// after its parent's, or is ahead of the current timeslot.
	ErrBadTimeslot = errors.New("block timeslot is invalid")

	// ErrBadSeed is returned when a block's draw seed does not match the
	// block at best_path[depth - SEED_AGE] (or the genesis seed near
	// genesis).
	ErrBadSeed = errors.New("block seed does not match the expected historical block")

	// ErrNotWinner is returned when is_winner rejects the block's draw.
	ErrNotWinner = errors.New("draw did not win its timeslot")

	// ErrOrphan names the case of a block whose parent is not yet known
	// locally. Blockchain.AddBlock does not return it: such a block is
	// stashed in the orphan pool and AddBlock returns nil.
	ErrOrphan = errors.New("parent block not known locally")

	// ErrDuplicateTransaction is returned when a transaction's hash is
	// already recorded as processed.
	ErrDuplicateTransaction = errors.New("transaction was already processed")

	// ErrInsufficientFunds is returned when a payer cannot cover the
	// transaction fee, or a sender cannot cover a transfer.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrMalformedTransaction is returned for signature-count, account-
	// count, or instruction-arity mismatches, or an amount below the
	// transaction fee.
	ErrMalformedTransaction = errors.New("malformed transaction")

	// ErrNoCommonAncestor is returned when two branches share no common
	// ancestor within the known block tree.
	ErrNoCommonAncestor = errors.New("branches share no common ancestor")

	// ErrUnknownParent is returned internally when a block references a
	// parent hash absent from the block tree.
	ErrUnknownParent = errors.New("parent block is unknown")
)
