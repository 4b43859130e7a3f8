package main

import (
	"encoding/hex"
	"fmt"

	"github.com/kdsmith18542/baals/internal/core"
)

// txDoc is the on-disk/CLI-argument JSON shape of a transaction, with
// every byte field hex-encoded. wallet sign, tx inspect and dev
// validate-tx all exchange transactions in this shape.
type txDoc struct {
	Sender        string `json:"sender"`
	Nonce         uint64 `json:"nonce"`
	Timestamp     int64  `json:"timestamp"`
	RecipientKind string `json:"recipient_kind"`
	Recipient     string `json:"recipient,omitempty"`
	PayloadKind   string `json:"payload_kind"`
	Amount        uint64 `json:"amount,omitempty"`
	Wasm          string `json:"wasm,omitempty"`
	InitArgs      string `json:"init_args,omitempty"`
	Method        string `json:"method,omitempty"`
	Args          string `json:"args,omitempty"`
	Data          string `json:"data,omitempty"`
	GasLimit      uint64 `json:"gas_limit"`
	Priority      uint8  `json:"priority"`
	Signature     string `json:"signature,omitempty"`
	Hash          string `json:"hash,omitempty"`
}

func parseRecipientKind(s string) (core.RecipientKind, error) {
	switch s {
	case "", "none":
		return core.RecipientNone, nil
	case "wallet":
		return core.RecipientWallet, nil
	case "contract":
		return core.RecipientContract, nil
	default:
		return 0, fmt.Errorf("unknown recipient kind %q", s)
	}
}

func parsePayloadKind(s string) (core.PayloadKind, error) {
	switch s {
	case "transfer", "Transfer":
		return core.PayloadTransfer, nil
	case "deploy", "Deploy":
		return core.PayloadDeploy, nil
	case "call", "Call":
		return core.PayloadCall, nil
	case "data", "Data":
		return core.PayloadData, nil
	default:
		return 0, fmt.Errorf("unknown payload kind %q", s)
	}
}

func decodeHexField(name, s string) ([]byte, error) {
	if s == "" {
		return nil, nil
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("malformed %s hex: %w", name, err)
	}
	return b, nil
}

// toTransaction builds a core.Transaction from d. Signature
// and Hash, if present, are decoded but not verified here; callers that
// need the authenticated form should call tx.Verify() themselves.
func (d txDoc) toTransaction() (core.Transaction, error) {
	var tx core.Transaction

	senderRaw, err := decodeHexField("sender", d.Sender)
	if err != nil || len(senderRaw) != core.PublicKeySize {
		return tx, fmt.Errorf("malformed sender public key")
	}
	copy(tx.Sender[:], senderRaw)

	rk, err := parseRecipientKind(d.RecipientKind)
	if err != nil {
		return tx, err
	}
	tx.RecipientKind = rk

	if d.Recipient != "" {
		recRaw, err := decodeHexField("recipient", d.Recipient)
		if err != nil || len(recRaw) != core.HashSize {
			return tx, fmt.Errorf("malformed recipient address")
		}
		copy(tx.Recipient[:], recRaw)
	}

	pk, err := parsePayloadKind(d.PayloadKind)
	if err != nil {
		return tx, err
	}
	tx.PayloadKind = pk

	tx.Nonce = d.Nonce
	tx.Timestamp = d.Timestamp
	tx.Amount = d.Amount
	tx.Method = d.Method
	tx.GasLimit = d.GasLimit
	tx.Priority = d.Priority

	if tx.Wasm, err = decodeHexField("wasm", d.Wasm); err != nil {
		return tx, err
	}
	if tx.InitArgs, err = decodeHexField("init_args", d.InitArgs); err != nil {
		return tx, err
	}
	if tx.Args, err = decodeHexField("args", d.Args); err != nil {
		return tx, err
	}
	if tx.Data, err = decodeHexField("data", d.Data); err != nil {
		return tx, err
	}

	if d.Signature != "" {
		sigRaw, err := decodeHexField("signature", d.Signature)
		if err != nil || len(sigRaw) != core.SignatureSize {
			return tx, fmt.Errorf("malformed signature")
		}
		copy(tx.Signature[:], sigRaw)
	}
	if d.Hash != "" {
		hashRaw, err := decodeHexField("hash", d.Hash)
		if err != nil || len(hashRaw) != core.HashSize {
			return tx, fmt.Errorf("malformed hash")
		}
		copy(tx.Hash[:], hashRaw)
	}

	return tx, nil
}

func fromTransaction(tx core.Transaction) txDoc {
	d := txDoc{
		Sender:      hex.EncodeToString(tx.Sender[:]),
		Nonce:       tx.Nonce,
		Timestamp:   tx.Timestamp,
		PayloadKind: tx.PayloadKind.String(),
		GasLimit:    tx.GasLimit,
		Priority:    tx.Priority,
		Signature:   hex.EncodeToString(tx.Signature[:]),
		Hash:        tx.Hash.String(),
	}
	switch tx.RecipientKind {
	case core.RecipientWallet:
		d.RecipientKind = "wallet"
	case core.RecipientContract:
		d.RecipientKind = "contract"
	default:
		d.RecipientKind = "none"
	}
	if tx.RecipientKind != core.RecipientNone {
		d.Recipient = tx.Recipient.String()
	}
	switch tx.PayloadKind {
	case core.PayloadTransfer:
		d.Amount = tx.Amount
	case core.PayloadDeploy:
		d.Wasm = hex.EncodeToString(tx.Wasm)
		d.InitArgs = hex.EncodeToString(tx.InitArgs)
	case core.PayloadCall:
		d.Method = tx.Method
		d.Args = hex.EncodeToString(tx.Args)
	case core.PayloadData:
		d.Data = hex.EncodeToString(tx.Data)
	}
	return d
}
