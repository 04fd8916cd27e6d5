package core

import (
	"fmt"

	"github.com/lasagna-chain/lasagna/internal/codec"
	"github.com/lasagna-chain/lasagna/internal/keys"
	"github.com/lasagna-chain/lasagna/internal/nodeerrors"
	"github.com/lasagna-chain/lasagna/internal/params"
)

// MessageHeader records how many of a message's accounts must sign it, and
// how many accounts it carries in total.
type MessageHeader struct {
	NumRequiredSignatures uint8
	NumRequiredAccounts   uint8
}

func (h MessageHeader) EncodeTo(e *codec.Encoder) {
	e.Uint8(h.NumRequiredSignatures)
	e.Uint8(h.NumRequiredAccounts)
}

// Message is the compiled, account-interned body of a transaction. Accounts
// 0..header.NumRequiredSignatures are exactly the signers, in the order they
// were supplied to NewMessage; any remaining accounts are receiver-only keys
// first seen while compiling the instructions.
type Message struct {
	Header       MessageHeader
	Accounts     []keys.PublicKey
	Instructions []CompiledInstruction
}

func (m Message) EncodeTo(e *codec.Encoder) {
	e.Sub(m.Header)
	e.Slice(len(m.Accounts), func(i int) { e.Sub(m.Accounts[i]) })
	e.Slice(len(m.Instructions), func(i int) { e.Sub(m.Instructions[i]) })
}

// NewMessage interns signers (in order) followed by any new keys encountered
// while compiling instructions, and compiles each Instruction into a
// CompiledInstruction referencing the interned indices.
func NewMessage(signers []keys.PublicKey, instructions []Instruction) Message {
	accounts := make([]keys.PublicKey, 0, len(signers)+2*len(instructions))
	index := make(map[keys.PublicKey]int, len(signers)+2*len(instructions))

	intern := func(pk keys.PublicKey) int {
		if i, ok := index[pk]; ok {
			return i
		}
		i := len(accounts)
		accounts = append(accounts, pk)
		index[pk] = i
		return i
	}

	for _, signer := range signers {
		intern(signer)
	}

	compiled := make([]CompiledInstruction, 0, len(instructions))
	for _, ix := range instructions {
		fromIdx := intern(ix.From)
		toIdx := intern(ix.To)
		compiled = append(compiled, CompiledInstruction{
			AccountIndices: [2]uint16{uint16(fromIdx), uint16(toIdx)},
			Amount:         ix.Amount,
		})
	}

	return Message{
		Header: MessageHeader{
			NumRequiredSignatures: uint8(len(signers)),
			NumRequiredAccounts:   uint8(len(accounts)),
		},
		Accounts:     accounts,
		Instructions: compiled,
	}
}

// ValidateAccounts checks the header's account count against the actual
// accounts list.
func (m Message) ValidateAccounts() error {
	if int(m.Header.NumRequiredAccounts) != len(m.Accounts) {
		return fmt.Errorf("%w: message declares %d accounts but carries %d", nodeerrors.ErrMalformedTransaction, m.Header.NumRequiredAccounts, len(m.Accounts))
	}
	return nil
}

// Validate checks the message's account bookkeeping and every instruction's
// arity and fee floor.
func (m Message) Validate() error {
	if err := m.ValidateAccounts(); err != nil {
		return err
	}
	for i, ix := range m.Instructions {
		if int(ix.SenderIndex()) >= len(m.Accounts) || int(ix.ReceiverIndex()) >= len(m.Accounts) {
			return fmt.Errorf("%w: instruction %d references an account index out of range", nodeerrors.ErrMalformedTransaction, i)
		}
		if ix.Amount < params.TransactionFee {
			return fmt.Errorf("%w: instruction %d amount %d is below the transaction fee %d", nodeerrors.ErrMalformedTransaction, i, ix.Amount, params.TransactionFee)
		}
	}
	return nil
}
