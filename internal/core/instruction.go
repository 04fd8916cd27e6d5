// Package core implements the transfer instruction and message/transaction
// envelope that carries it (spec components C3, C4): account interning,
// multi-signature validation, and the deterministic hash identity used for
// replay protection.
package core

import (
	"github.com/lasagna-chain/lasagna/internal/codec"
	"github.com/lasagna-chain/lasagna/internal/keys"
)

// Instruction is the logical (from, to, amount) transfer a caller asks for.
// It never travels on the wire by itself — NewMessage compiles it into a
// CompiledInstruction referencing interned account indices.
type Instruction struct {
	From   keys.PublicKey
	To     keys.PublicKey
	Amount uint64
}

// CompiledInstruction references its sender and receiver by index into the
// enclosing message's accounts list: index 0 is the sender, index 1 the
// receiver.
type CompiledInstruction struct {
	AccountIndices [2]uint16
	Amount         uint64
}

func (ci CompiledInstruction) EncodeTo(e *codec.Encoder) {
	e.Uint16(ci.AccountIndices[0])
	e.Uint16(ci.AccountIndices[1])
	e.Uint64(ci.Amount)
}

func (ci CompiledInstruction) SenderIndex() uint16   { return ci.AccountIndices[0] }
func (ci CompiledInstruction) ReceiverIndex() uint16 { return ci.AccountIndices[1] }
