// Package codec implements the deterministic, field-order-preserving byte
// encoding every hashed or signed value in the system is built on (spec
// component C2). The contract mirrors the original: structurally equal
// values encode to identical bytes, variable-length sequences carry an
// explicit length prefix, and the encoding never depends on in-memory
// layout (no reflection, no map iteration order).
package codec

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"

	"github.com/lasagna-chain/lasagna/internal/types"
)

// Encodable is implemented by every value that participates in a hash or a
// signed payload. EncodeTo appends the value's canonical bytes to e.
type Encodable interface {
	EncodeTo(e *Encoder)
}

// Encoder accumulates a canonical byte stream.
type Encoder struct {
	buf bytes.Buffer
}

// NewEncoder returns an empty Encoder.
func NewEncoder() *Encoder {
	return &Encoder{}
}

// Bytes returns the accumulated encoding.
func (e *Encoder) Bytes() []byte {
	return e.buf.Bytes()
}

// Raw appends b verbatim, with no length prefix. Use only for fixed-size
// values (hashes, public keys, signatures) whose length is already implied
// by the type.
func (e *Encoder) Raw(b []byte) {
	e.buf.Write(b)
}

// Uint8 appends a single byte.
func (e *Encoder) Uint8(v uint8) {
	e.buf.WriteByte(v)
}

// Uint64 appends v as 8 big-endian bytes.
func (e *Encoder) Uint64(v uint64) {
	var tmp [8]byte
	binary.BigEndian.PutUint64(tmp[:], v)
	e.buf.Write(tmp[:])
}

// Int64 appends v as 8 big-endian bytes (two's complement).
func (e *Encoder) Int64(v int64) {
	e.Uint64(uint64(v))
}

// Uint16 appends v as 2 big-endian bytes.
func (e *Encoder) Uint16(v uint16) {
	var tmp [2]byte
	binary.BigEndian.PutUint16(tmp[:], v)
	e.buf.Write(tmp[:])
}

// Bytes32 appends a fixed 32-byte value verbatim.
func (e *Encoder) Bytes32(v [32]byte) {
	e.buf.Write(v[:])
}

// String appends a length-prefixed UTF-8 string.
func (e *Encoder) String(s string) {
	e.Uint64(uint64(len(s)))
	e.buf.WriteString(s)
}

// VarBytes appends a length-prefixed byte slice.
func (e *Encoder) VarBytes(b []byte) {
	e.Uint64(uint64(len(b)))
	e.buf.Write(b)
}

// Slice writes the length prefix for n elements, then invokes write once per
// index in order; write is responsible for encoding element i.
func (e *Encoder) Slice(n int, write func(i int)) {
	e.Uint64(uint64(n))
	for i := 0; i < n; i++ {
		write(i)
	}
}

// Sub encodes v's own EncodeTo into this encoder — the way nested structs
// (and tuples built for one-off signed/hashed payloads) compose.
func (e *Encoder) Sub(v Encodable) {
	v.EncodeTo(e)
}

// Bytes returns the canonical encoding of v.
func Bytes(v Encodable) []byte {
	e := NewEncoder()
	v.EncodeTo(e)
	return e.Bytes()
}

// Hash returns H(bytes(v)) — SHA-256 over the canonical encoding of v.
func Hash(v Encodable) types.Hash {
	return HashBytes(Bytes(v))
}

// HashBytes returns SHA-256(b).
func HashBytes(b []byte) types.Hash {
	return sha256.Sum256(b)
}
