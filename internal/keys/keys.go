// Package keys wraps Ed25519 key generation, signing, and verification
// (spec component C1). Public keys hash and compare by their raw 32-byte
// wire form, so they are usable directly as map keys in the ledger's
// balance tables.
package keys

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"

	"golang.org/x/crypto/ed25519"

	"github.com/lasagna-chain/lasagna/internal/codec"
)

// PublicKey is the raw 32-byte Ed25519 public key.
type PublicKey [ed25519.PublicKeySize]byte

// EncodeTo writes the public key's raw bytes.
func (pk PublicKey) EncodeTo(e *codec.Encoder) {
	e.Raw(pk[:])
}

func (pk PublicKey) String() string {
	return fmt.Sprintf("%x", pk[:4])
}

// Signature is a 64-byte Ed25519 signature.
type Signature [ed25519.SignatureSize]byte

// EncodeTo writes the signature's raw bytes.
func (s Signature) EncodeTo(e *codec.Encoder) {
	e.Raw(s[:])
}

// SecretKey is an Ed25519 private key.
type SecretKey struct {
	raw ed25519.PrivateKey
}

// Generate creates a fresh random keypair.
func Generate() (SecretKey, error) {
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return SecretKey{}, fmt.Errorf("generate ed25519 key: %w", err)
	}
	return SecretKey{raw: priv}, nil
}

// PublicKey derives the public key belonging to sk.
func (sk SecretKey) PublicKey() PublicKey {
	var pk PublicKey
	copy(pk[:], sk.raw.Public().(ed25519.PublicKey))
	return pk
}

// Sign returns the Ed25519 signature of msg under sk.
func (sk SecretKey) Sign(msg []byte) Signature {
	var sig Signature
	copy(sig[:], ed25519.Sign(sk.raw, msg))
	return sig
}

// Verify reports whether sig is a valid Ed25519 signature of msg under pk.
func (pk PublicKey) Verify(msg []byte, sig Signature) bool {
	return ed25519.Verify(ed25519.PublicKey(pk[:]), msg, sig[:])
}

// ParsePublicKeyHex decodes a hex-encoded 32-byte Ed25519 public key, as
// supplied on the command line or in a config file.
func ParsePublicKeyHex(s string) (PublicKey, error) {
	raw, err := hex.DecodeString(strings.TrimSpace(s))
	if err != nil {
		return PublicKey{}, fmt.Errorf("decode public key hex: %w", err)
	}
	if len(raw) != ed25519.PublicKeySize {
		return PublicKey{}, fmt.Errorf("public key has %d bytes, want %d", len(raw), ed25519.PublicKeySize)
	}
	var pk PublicKey
	copy(pk[:], raw)
	return pk, nil
}

// ParseSecretKeyHex decodes a hex-encoded Ed25519 private key, as read from
// a node's listen-key file.
func ParseSecretKeyHex(s string) (SecretKey, error) {
	raw, err := hex.DecodeString(strings.TrimSpace(s))
	if err != nil {
		return SecretKey{}, fmt.Errorf("decode secret key hex: %w", err)
	}
	if len(raw) != ed25519.PrivateKeySize {
		return SecretKey{}, fmt.Errorf("secret key has %d bytes, want %d", len(raw), ed25519.PrivateKeySize)
	}
	return SecretKey{raw: ed25519.PrivateKey(raw)}, nil
}
