package core

import (
	"crypto/sha256"
	"encoding/hex"
)

const (
	// HashSize is the width in bytes of every digest used across BaaLS.
	HashSize = 32
	// PublicKeySize is the width of an Ed25519 public key.
	PublicKeySize = 32
	// SignatureSize is the width of an Ed25519 signature.
	SignatureSize = 64
)

// Hash is the single digest type used for block hashes, transaction hashes,
// trie nodes and account addresses. BaaLS never mixes digest algorithms:
// every Hash is SHA-256.
type Hash [HashSize]byte

func (h Hash) String() string { return hex.EncodeToString(h[:]) }

// IsZero reports whether h is the all-zero digest, the sentinel used for
// the genesis block's PrevHash.
func (h Hash) IsZero() bool { return h == Hash{} }

func HashBytes(b []byte) Hash { return sha256.Sum256(b) }

// PublicKey is a raw Ed25519 public key.
type PublicKey [PublicKeySize]byte

func (p PublicKey) String() string { return hex.EncodeToString(p[:]) }

// Address is the canonical account identifier: the digest of a public key.
// Wallets, deployed contracts and transaction senders are all addressed
// uniformly this way, so a contract id and a wallet address are
// interchangeable in every namespace key.
type Address [HashSize]byte

func (a Address) String() string { return hex.EncodeToString(a[:]) }

func (a Address) IsZero() bool { return a == Address{} }

// AddressFromPublicKey derives the canonical wallet address for a signer.
func AddressFromPublicKey(pk PublicKey) Address {
	return Address(HashBytes(pk[:]))
}

// Signature is a raw Ed25519 signature.
type Signature [SignatureSize]byte
