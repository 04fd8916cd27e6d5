// Package draw implements the stake-weighted leader-election lottery (spec
// component C6): a Draw proves that its signer may produce a block at a
// given timeslot for a given seed, and the winning predicate decides whether
// that proof is strong enough to actually win the slot.
package draw

import (
	"fmt"

	"github.com/holiman/uint256"

	"github.com/lasagna-chain/lasagna/internal/codec"
	"github.com/lasagna-chain/lasagna/internal/keys"
	"github.com/lasagna-chain/lasagna/internal/types"
)

// Seed names the historical block whose hash seeds a draw. Naming it by
// block rather than by raw hash keeps the seed's depth available for the
// age checks a Blockchain runs when validating a candidate block's seed.
type Seed struct {
	BlockPtr types.BlockPtr
}

func (s Seed) EncodeTo(e *codec.Encoder) {
	e.Bytes32(s.BlockPtr.Hash)
	e.Int64(s.BlockPtr.Depth)
}

// lotteryTag is the fixed domain-separation string mixed into every signed
// and hashed draw payload, so a draw signature can never be replayed as a
// signature over an unrelated message.
const lotteryTag = "Lottery"

// signedPayload is ("Lottery", timeslot, seed) — what signed_by signs.
type signedPayload struct {
	timeslot uint64
	seed     Seed
}

func (p signedPayload) EncodeTo(e *codec.Encoder) {
	e.String(lotteryTag)
	e.Uint64(p.timeslot)
	e.Sub(p.seed)
}

// hashedPayload is ("Lottery", seed, timeslot, signed_by, signature) — what
// is hashed to produce the draw's value. Note the field order differs from
// signedPayload (seed and timeslot are swapped): this is locked to match the
// original implementation's byte-for-byte layout (OQ-5), since peers must
// reproduce the identical value from the identical inputs.
type hashedPayload struct {
	seed      Seed
	timeslot  uint64
	signedBy  keys.PublicKey
	signature keys.Signature
}

func (p hashedPayload) EncodeTo(e *codec.Encoder) {
	e.String(lotteryTag)
	e.Sub(p.seed)
	e.Uint64(p.timeslot)
	e.Sub(p.signedBy)
	e.Sub(p.signature)
}

// Draw proves that SignedBy may produce a block at Timeslot for Seed. Value
// is the big-endian interpretation of H(hashedPayload), and is what the
// winning predicate compares against the network's stake-weighted
// threshold.
type Draw struct {
	Value     *uint256.Int
	Timeslot  uint64
	Signature keys.Signature
	SignedBy  keys.PublicKey
	Seed      Seed
}

func (d Draw) EncodeTo(e *codec.Encoder) {
	e.Bytes32(d.Value.Bytes32())
	e.Uint64(d.Timeslot)
	e.Sub(d.Signature)
	e.Sub(d.SignedBy)
	e.Sub(d.Seed)
}

// New produces a draw for timeslot and seed, signed by sk.
func New(timeslot uint64, seed Seed, sk keys.SecretKey) Draw {
	signMsg := codec.Bytes(signedPayload{timeslot: timeslot, seed: seed})
	signature := sk.Sign(signMsg)
	signedBy := sk.PublicKey()

	hash := codec.Hash(hashedPayload{seed: seed, timeslot: timeslot, signedBy: signedBy, signature: signature})

	return Draw{
		Value:     new(uint256.Int).SetBytes(hash[:]),
		Timeslot:  timeslot,
		Signature: signature,
		SignedBy:  signedBy,
		Seed:      seed,
	}
}

// Verify checks that the draw's value was honestly recomputed and that its
// signature is valid over the signed payload.
func (d Draw) Verify() error {
	recomputedHash := codec.Hash(hashedPayload{seed: d.Seed, timeslot: d.Timeslot, signedBy: d.SignedBy, signature: d.Signature})
	recomputed := new(uint256.Int).SetBytes(recomputedHash[:])
	if !recomputed.Eq(d.Value) {
		return fmt.Errorf("draw value %s does not match recomputed %s", d.Value, recomputed)
	}

	signMsg := codec.Bytes(signedPayload{timeslot: d.Timeslot, seed: d.Seed})
	if !d.SignedBy.Verify(signMsg, d.Signature) {
		return fmt.Errorf("draw signature does not verify")
	}
	return nil
}
