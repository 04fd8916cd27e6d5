// Package block implements the block structure, its hash/signature
// invariants, and the strict total order used to break ties between
// same-depth candidates (spec component C7).
package block

import (
	"bytes"
	"fmt"

	"github.com/lasagna-chain/lasagna/internal/codec"
	"github.com/lasagna-chain/lasagna/internal/core"
	"github.com/lasagna-chain/lasagna/internal/draw"
	"github.com/lasagna-chain/lasagna/internal/keys"
	"github.com/lasagna-chain/lasagna/internal/nodeerrors"
	"github.com/lasagna-chain/lasagna/internal/types"
)

// Block is a single entry in the block tree. Hash commits to every field
// except Signature; Signature is produced over Hash by Draw.SignedBy.
type Block struct {
	Timeslot     uint64
	PrevHash     types.Hash
	Depth        int64
	Transactions []core.Transaction
	Draw         draw.Draw
	Signature    keys.Signature
	Hash         types.Hash
}

// contentEncoding is (timeslot, prev_hash, depth, draw, transactions), the
// tuple hashed to produce a block's identity.
type contentEncoding struct {
	timeslot     uint64
	prevHash     types.Hash
	depth        int64
	draw         draw.Draw
	transactions []core.Transaction
}

func (c contentEncoding) EncodeTo(e *codec.Encoder) {
	e.Uint64(c.timeslot)
	e.Bytes32(c.prevHash)
	e.Int64(c.depth)
	e.Sub(c.draw)
	e.Slice(len(c.transactions), func(i int) { e.Sub(c.transactions[i]) })
}

func contentHash(timeslot uint64, prevHash types.Hash, depth int64, d draw.Draw, txs []core.Transaction) types.Hash {
	return codec.Hash(contentEncoding{timeslot: timeslot, prevHash: prevHash, depth: depth, draw: d, transactions: txs})
}

// New builds a block at depth, with prevHash as its parent, signed by sk,
// carrying transactions, with a freshly computed draw for timeslot and
// seed.
func New(sk keys.SecretKey, timeslot uint64, prevHash types.Hash, depth int64, transactions []core.Transaction, seed draw.Seed) Block {
	d := draw.New(timeslot, seed, sk)
	hash := contentHash(timeslot, prevHash, depth, d, transactions)
	signature := sk.Sign(hash[:])

	return Block{
		Timeslot:     timeslot,
		PrevHash:     prevHash,
		Depth:        depth,
		Transactions: transactions,
		Draw:         d,
		Signature:    signature,
		Hash:         hash,
	}
}

// VerifySignature recomputes the block's content hash and checks it against
// the stored hash, then verifies the signature over that hash under the
// draw's signer.
func (b Block) VerifySignature() error {
	recomputed := contentHash(b.Timeslot, b.PrevHash, b.Depth, b.Draw, b.Transactions)
	if recomputed != b.Hash {
		return fmt.Errorf("%w: block hash %s does not match recomputed %s", nodeerrors.ErrBadHash, b.Hash, recomputed)
	}
	if !b.Draw.SignedBy.Verify(recomputed[:], b.Signature) {
		return fmt.Errorf("%w: block signature does not verify", nodeerrors.ErrBadSignature)
	}
	return nil
}

// VerifyGenesis checks that b is a valid genesis block for rootAccounts: no
// transactions, its declared parent is the genesis hash derived from
// rootAccounts, and its signature verifies.
func (b Block) VerifyGenesis(rootAccounts []keys.PublicKey) error {
	if len(b.Transactions) != 0 {
		return fmt.Errorf("genesis block must carry no transactions")
	}
	want := GenesisHash(rootAccounts)
	if b.PrevHash != want {
		return fmt.Errorf("genesis parent hash %s does not match root accounts hash %s", b.PrevHash, want)
	}
	return b.VerifySignature()
}

// IsGenesis reports whether b is the depth-0 genesis block.
func (b Block) IsGenesis() bool {
	return b.Depth == 0
}

// GenesisHash derives the deterministic identity of a chain's root account
// set: H(concat(bytes(pk) for pk in rootAccounts)).
func GenesisHash(rootAccounts []keys.PublicKey) types.Hash {
	e := codec.NewEncoder()
	for _, pk := range rootAccounts {
		e.Sub(pk)
	}
	return codec.HashBytes(e.Bytes())
}

// Ptr returns the BlockPtr identifying b.
func (b Block) Ptr() types.BlockPtr {
	return types.BlockPtr{Hash: b.Hash, Depth: b.Depth}
}

// Compare implements the strict total order used to break ties between
// same-depth candidates: earlier timeslot wins; then larger transaction
// count wins; then lexicographically larger hash wins. It returns a
// positive value if a is ordered ahead of b, negative if behind, zero only
// when a and b are the same block.
func Compare(a, b Block) int {
	if a.Timeslot != b.Timeslot {
		if a.Timeslot < b.Timeslot {
			return 1
		}
		return -1
	}
	if len(a.Transactions) != len(b.Transactions) {
		if len(a.Transactions) > len(b.Transactions) {
			return 1
		}
		return -1
	}
	return bytes.Compare(a.Hash[:], b.Hash[:])
}
