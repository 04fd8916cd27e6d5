package core

import (
	"fmt"

	"github.com/lasagna-chain/lasagna/internal/codec"
	"github.com/lasagna-chain/lasagna/internal/keys"
	"github.com/lasagna-chain/lasagna/internal/nodeerrors"
	"github.com/lasagna-chain/lasagna/internal/types"
)

// Transaction is a signed envelope over a Message. Its hash is the identity
// used for replay protection (Ledger.PreviousTransactions).
type Transaction struct {
	Hash       types.Hash
	Nonce      uint64
	Message    Message
	Signatures []keys.Signature
}

// EncodeTo writes the transaction's full wire form — its own hash
// included — so that anything hashing a sequence of transactions (the
// block content hash) commits to their identity as well as their content.
func (tx Transaction) EncodeTo(e *codec.Encoder) {
	e.Bytes32(tx.Hash)
	e.Uint64(tx.Nonce)
	e.Sub(tx.Message)
	e.Slice(len(tx.Signatures), func(i int) { e.Sub(tx.Signatures[i]) })
}

// nonceEncoding is the (message, nonce) tuple signed by every required
// signer and hashed, alongside the signatures, to produce the transaction
// hash.
type nonceEncoding struct {
	Message Message
	Nonce   uint64
}

func (n nonceEncoding) EncodeTo(e *codec.Encoder) {
	e.Sub(n.Message)
	e.Uint64(n.Nonce)
}

// hashEncoding is (message_bytes, signatures, nonce), matching the hash
// definition in the data model.
type hashEncoding struct {
	MessageBytes []byte
	Signatures   []keys.Signature
	Nonce        uint64
}

func (h hashEncoding) EncodeTo(e *codec.Encoder) {
	e.VarBytes(h.MessageBytes)
	e.Slice(len(h.Signatures), func(i int) { e.Sub(h.Signatures[i]) })
	e.Uint64(h.Nonce)
}

// NewTransaction builds the message from signers and instructions, signs the
// (message, nonce) payload with every signer in order, and derives the
// transaction hash from the signed payload plus the resulting signatures.
func NewTransaction(signers []keys.SecretKey, instructions []Instruction, nonce uint64) Transaction {
	signerKeys := make([]keys.PublicKey, len(signers))
	for i, sk := range signers {
		signerKeys[i] = sk.PublicKey()
	}

	message := NewMessage(signerKeys, instructions)
	messageBytes := codec.Bytes(nonceEncoding{Message: message, Nonce: nonce})

	signatures := make([]keys.Signature, len(signers))
	for i, sk := range signers {
		signatures[i] = sk.Sign(messageBytes)
	}

	hash := codec.Hash(hashEncoding{MessageBytes: messageBytes, Signatures: signatures, Nonce: nonce})

	return Transaction{
		Hash:       hash,
		Nonce:      nonce,
		Message:    message,
		Signatures: signatures,
	}
}

// Validate checks the transaction's signature count and delegates to the
// message's own validation.
func (tx Transaction) Validate() error {
	if len(tx.Signatures) != int(tx.Message.Header.NumRequiredSignatures) {
		return fmt.Errorf("%w: transaction has %d signatures but requires %d", nodeerrors.ErrMalformedTransaction, len(tx.Signatures), tx.Message.Header.NumRequiredSignatures)
	}
	return tx.Message.Validate()
}

// VerifySignatures recomputes the signed payload and checks the payer's
// signature plus every instruction sender's signature against it. Because
// NewMessage interns signers before any instruction account, a sender's
// signature is only present (and checked) when the sender was supplied as a
// signer — an unsigned sender therefore fails verification.
func (tx Transaction) VerifySignatures() error {
	required := int(tx.Message.Header.NumRequiredSignatures)
	if len(tx.Signatures) != required {
		return fmt.Errorf("%w: transaction requires %d signatures, has %d", nodeerrors.ErrMalformedTransaction, required, len(tx.Signatures))
	}
	if len(tx.Message.Accounts) == 0 {
		return fmt.Errorf("%w: transaction message has no accounts", nodeerrors.ErrMalformedTransaction)
	}

	messageBytes := codec.Bytes(nonceEncoding{Message: tx.Message, Nonce: tx.Nonce})

	payer := tx.Message.Accounts[0]
	if !payer.Verify(messageBytes, tx.Signatures[0]) {
		return fmt.Errorf("%w: payer signature does not verify", nodeerrors.ErrBadSignature)
	}

	for i, ix := range tx.Message.Instructions {
		senderIdx := int(ix.SenderIndex())
		if senderIdx >= len(tx.Message.Accounts) {
			return fmt.Errorf("%w: instruction %d has no account for its sender index", nodeerrors.ErrMalformedTransaction, i)
		}
		if senderIdx >= len(tx.Signatures) {
			return fmt.Errorf("%w: instruction %d sender at index %d did not sign the transaction", nodeerrors.ErrMalformedTransaction, i, senderIdx)
		}
		sender := tx.Message.Accounts[senderIdx]
		if !sender.Verify(messageBytes, tx.Signatures[senderIdx]) {
			return fmt.Errorf("%w: instruction %d sender signature does not verify", nodeerrors.ErrBadSignature, i)
		}
	}

	return nil
}
