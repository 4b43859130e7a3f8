package core

import (
	"fmt"

	"golang.org/x/crypto/ed25519"
)

// RecipientKind tags whether a transaction's Recipient names a Wallet or a
// Contract. A Transfer to a Contract address and a Call to a Wallet address
// are both structurally invalid and rejected at the ledger layer.
type RecipientKind byte

const (
	RecipientNone RecipientKind = iota
	RecipientWallet
	RecipientContract
)

// PayloadKind tags the transaction's tagged-variant payload.
type PayloadKind byte

const (
	PayloadTransfer PayloadKind = iota + 1
	PayloadDeploy
	PayloadCall
	PayloadData
)

func (k PayloadKind) String() string {
	switch k {
	case PayloadTransfer:
		return "Transfer"
	case PayloadDeploy:
		return "Deploy"
	case PayloadCall:
		return "Call"
	case PayloadData:
		return "Data"
	default:
		return "Unknown"
	}
}

// Transaction is the fundamental unit of state change. Only the fields
// relevant to PayloadKind are meaningful for a given transaction; the rest
// sit at their zero value, but are still part of the canonical encoding so
// hashing stays unambiguous regardless of payload.
type Transaction struct {
	Sender        PublicKey
	Nonce         uint64
	Timestamp     int64
	RecipientKind RecipientKind
	Recipient     Address
	PayloadKind   PayloadKind

	// Transfer
	Amount uint64

	// Deploy
	Wasm     []byte
	InitArgs []byte

	// Call
	Method string
	Args   []byte

	// Data
	Data []byte

	GasLimit uint64
	Priority uint8

	Signature Signature
	Hash      Hash
}

// SenderAddress derives the canonical wallet address of the signer.
func (tx *Transaction) SenderAddress() Address { return AddressFromPublicKey(tx.Sender) }

// encodePreimage canonically encodes every field except Hash and Signature;
// this is what ComputeHash digests and what Sign/Verify authenticate.
func (tx *Transaction) encodePreimage() []byte {
	e := newEncoder()
	e.fixed(tx.Sender[:])
	e.u64(tx.Nonce)
	e.i64(tx.Timestamp)
	e.byte(byte(tx.RecipientKind))
	e.fixed(tx.Recipient[:])
	e.byte(byte(tx.PayloadKind))
	e.u64(tx.Amount)
	e.bytesField(tx.Wasm)
	e.bytesField(tx.InitArgs)
	e.stringField(tx.Method)
	e.bytesField(tx.Args)
	e.bytesField(tx.Data)
	e.u64(tx.GasLimit)
	e.byte(tx.Priority)
	return e.bytes()
}

// ComputeHash recomputes tx.Hash from the current field values and returns
// it. Callers must call this (or Sign, which calls it) before relying on
// tx.Hash matching the fields.
func (tx *Transaction) ComputeHash() Hash {
	tx.Hash = HashBytes(tx.encodePreimage())
	return tx.Hash
}

// Sign computes the transaction hash and signs it with sk, which must
// correspond to tx.Sender.
func (tx *Transaction) Sign(sk ed25519.PrivateKey) error {
	if len(sk) != ed25519.PrivateKeySize {
		return fmt.Errorf("%w: invalid private key size %d", ErrCodec, len(sk))
	}
	tx.ComputeHash()
	sig := ed25519.Sign(sk, tx.Hash[:])
	copy(tx.Signature[:], sig)
	return nil
}

// Verify checks that tx.Hash matches the current field values and that
// Signature is a valid Ed25519 signature over it by tx.Sender.
func (tx *Transaction) Verify() bool {
	want := HashBytes(tx.encodePreimage())
	if want != tx.Hash {
		return false
	}
	return ed25519.Verify(tx.Sender[:], tx.Hash[:], tx.Signature[:])
}

// Encode returns the full canonical wire form: preimage, signature, hash.
func (tx *Transaction) Encode() []byte {
	e := newEncoder()
	e.fixed(tx.encodePreimage())
	e.fixed(tx.Signature[:])
	e.fixed(tx.Hash[:])
	return e.bytes()
}

func DecodeTransaction(b []byte) (Transaction, error) {
	d := newDecoder(b)
	var tx Transaction

	sender, err := d.requireFixed(PublicKeySize)
	if err != nil {
		return Transaction{}, err
	}
	copy(tx.Sender[:], sender)

	if tx.Nonce, err = d.requireU64(); err != nil {
		return Transaction{}, err
	}
	if tx.Timestamp, err = d.requireI64(); err != nil {
		return Transaction{}, err
	}
	rk, err := d.requireByte()
	if err != nil {
		return Transaction{}, err
	}
	tx.RecipientKind = RecipientKind(rk)

	recipient, err := d.requireFixed(HashSize)
	if err != nil {
		return Transaction{}, err
	}
	copy(tx.Recipient[:], recipient)

	pk, err := d.requireByte()
	if err != nil {
		return Transaction{}, err
	}
	tx.PayloadKind = PayloadKind(pk)

	if tx.Amount, err = d.requireU64(); err != nil {
		return Transaction{}, err
	}
	if tx.Wasm, err = d.requireBytesField(); err != nil {
		return Transaction{}, err
	}
	if tx.InitArgs, err = d.requireBytesField(); err != nil {
		return Transaction{}, err
	}
	if tx.Method, err = d.requireStringField(); err != nil {
		return Transaction{}, err
	}
	if tx.Args, err = d.requireBytesField(); err != nil {
		return Transaction{}, err
	}
	if tx.Data, err = d.requireBytesField(); err != nil {
		return Transaction{}, err
	}
	if tx.GasLimit, err = d.requireU64(); err != nil {
		return Transaction{}, err
	}
	priority, err := d.requireByte()
	if err != nil {
		return Transaction{}, err
	}
	tx.Priority = priority

	sig, err := d.requireFixed(SignatureSize)
	if err != nil {
		return Transaction{}, err
	}
	copy(tx.Signature[:], sig)

	hash, err := d.requireFixed(HashSize)
	if err != nil {
		return Transaction{}, err
	}
	copy(tx.Hash[:], hash)

	if err := d.finish(); err != nil {
		return Transaction{}, err
	}
	return tx, nil
}
