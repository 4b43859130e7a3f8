// Package rpc provides the query-and-submit API surface the CLI and any
// embedding application drive a Runtime through. It is a thin, JSON-shaped
// view: every method delegates to runtime.Runtime and only reshapes the
// result into hex-friendly DTOs for `--json` output.
package rpc

import (
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/kdsmith18542/baals/internal/core"
	internalerrors "github.com/kdsmith18542/baals/internal/errors"
	"github.com/kdsmith18542/baals/internal/runtime"
)

// Service wraps a Runtime with the query/submit surface spec'd for
// external collaborators (CLI, language bindings). It adds no state of
// its own beyond the Runtime handle.
type Service struct {
	rt *runtime.Runtime
}

func NewService(rt *runtime.Runtime) *Service { return &Service{rt: rt} }

// ChainStateView is the JSON shape of core.ChainState.
type ChainStateView struct {
	LatestHash      string `json:"latest_hash"`
	LatestHeight    uint64 `json:"latest_height"`
	LatestTimestamp int64  `json:"latest_timestamp"`
	AccountsRoot    string `json:"accounts_root"`
	TrackSupply     bool   `json:"track_supply,omitempty"`
	TotalSupply     uint64 `json:"total_supply,omitempty"`
}

// AccountView is the JSON shape of core.Account.
type AccountView struct {
	Kind        string `json:"kind"`
	Balance     uint64 `json:"balance"`
	Nonce       uint64 `json:"nonce"`
	CodeHash    string `json:"code_hash,omitempty"`
	StorageRoot string `json:"storage_root,omitempty"`
}

// TransactionView is the JSON shape of core.Transaction.
type TransactionView struct {
	Hash          string `json:"hash"`
	Sender        string `json:"sender"`
	Nonce         uint64 `json:"nonce"`
	Timestamp     int64  `json:"timestamp"`
	RecipientKind string `json:"recipient_kind"`
	Recipient     string `json:"recipient,omitempty"`
	PayloadKind   string `json:"payload_kind"`
	Amount        uint64 `json:"amount,omitempty"`
	Method        string `json:"method,omitempty"`
	GasLimit      uint64 `json:"gas_limit"`
	Priority      uint8  `json:"priority"`
}

// BlockView is the JSON shape of core.Block.
type BlockView struct {
	Height       uint64            `json:"height"`
	Timestamp    int64             `json:"timestamp"`
	PrevHash     string            `json:"prev_hash"`
	TxRoot       string            `json:"tx_root"`
	AccountsRoot string            `json:"accounts_root"`
	Signer       string            `json:"signer"`
	Hash         string            `json:"hash"`
	Transactions []TransactionView `json:"transactions"`
}

// EventView is the JSON shape of one emitted contract event.
type EventView struct {
	Topic string `json:"topic"`
	Data  string `json:"data"`
}

// ContractCallView is the JSON shape of a read-only contract-call result.
type ContractCallView struct {
	FuelUsed   uint64      `json:"fuel_used"`
	Reverted   bool        `json:"reverted"`
	RevertData string      `json:"revert_data,omitempty"`
	Events     []EventView `json:"events,omitempty"`
}

func accountKindString(k core.AccountKind) string {
	switch k {
	case core.AccountWallet:
		return "wallet"
	case core.AccountContract:
		return "contract"
	default:
		return "unknown"
	}
}

func recipientKindString(k core.RecipientKind) string {
	switch k {
	case core.RecipientWallet:
		return "wallet"
	case core.RecipientContract:
		return "contract"
	default:
		return "none"
	}
}

func toAccountView(a core.Account) AccountView {
	v := AccountView{Kind: accountKindString(a.Kind), Balance: a.Balance, Nonce: a.Nonce}
	if a.Kind == core.AccountContract {
		v.CodeHash = a.CodeHash.String()
		v.StorageRoot = a.StorageRoot.String()
	}
	return v
}

func toTransactionView(tx core.Transaction) TransactionView {
	v := TransactionView{
		Hash: tx.Hash.String(), Sender: hex.EncodeToString(tx.Sender[:]),
		Nonce: tx.Nonce, Timestamp: tx.Timestamp,
		RecipientKind: recipientKindString(tx.RecipientKind),
		PayloadKind:   tx.PayloadKind.String(),
		GasLimit:      tx.GasLimit, Priority: tx.Priority,
	}
	if tx.RecipientKind != core.RecipientNone {
		v.Recipient = tx.Recipient.String()
	}
	if tx.PayloadKind == core.PayloadTransfer {
		v.Amount = tx.Amount
	}
	if tx.PayloadKind == core.PayloadCall {
		v.Method = tx.Method
	}
	return v
}

func toBlockView(b core.Block) BlockView {
	v := BlockView{
		Height: b.Header.Height, Timestamp: b.Header.Timestamp,
		PrevHash: b.Header.PrevHash.String(), TxRoot: b.Header.TxRoot.String(),
		AccountsRoot: b.Header.AccountsRoot.String(), Signer: hex.EncodeToString(b.Header.Signer[:]),
		Hash: b.Header.Hash.String(),
	}
	v.Transactions = make([]TransactionView, len(b.Transactions))
	for i, tx := range b.Transactions {
		v.Transactions[i] = toTransactionView(tx)
	}
	return v
}

// QueryHead returns the current chain tip.
func (s *Service) QueryHead() (ChainStateView, error) {
	head, err := s.rt.Head()
	if err != nil {
		return ChainStateView{}, err
	}
	return ChainStateView{
		LatestHash: head.LatestHash.String(), LatestHeight: head.LatestHeight,
		LatestTimestamp: head.LatestTimestamp, AccountsRoot: head.AccountsRoot.String(),
		TrackSupply: head.TrackSupply, TotalSupply: head.TotalSupply,
	}, nil
}

// QueryBlockByHeight returns a committed block by height.
func (s *Service) QueryBlockByHeight(height uint64) (BlockView, error) {
	block, err := s.rt.GetBlockByHeight(height)
	if err != nil {
		return BlockView{}, err
	}
	return toBlockView(block), nil
}

// QueryBlockByHash returns a committed block by hash, given as hex.
func (s *Service) QueryBlockByHash(hashHex string) (BlockView, error) {
	hash, err := parseHash(hashHex)
	if err != nil {
		return BlockView{}, err
	}
	block, err := s.rt.GetBlockByHash(hash)
	if err != nil {
		return BlockView{}, err
	}
	return toBlockView(block), nil
}

// QueryTransaction returns a committed transaction and its block height,
// given the transaction hash as hex.
func (s *Service) QueryTransaction(hashHex string) (TransactionView, uint64, error) {
	hash, err := parseHash(hashHex)
	if err != nil {
		return TransactionView{}, 0, err
	}
	tx, height, err := s.rt.GetTransaction(hash)
	if err != nil {
		return TransactionView{}, 0, err
	}
	return toTransactionView(tx), height, nil
}

// QueryAccount returns an account's state, given its address as hex.
func (s *Service) QueryAccount(addrHex string) (AccountView, error) {
	addr, err := parseAddress(addrHex)
	if err != nil {
		return AccountView{}, err
	}
	acct, ok, err := s.rt.GetAccount(addr)
	if err != nil {
		return AccountView{}, err
	}
	if !ok {
		return AccountView{}, internalerrors.ErrLedgerAccountNotFound
	}
	return toAccountView(acct), nil
}

// QueryContractState reads a single key from a deployed contract's storage.
func (s *Service) QueryContractState(contractHex string, key []byte) ([]byte, bool, error) {
	addr, err := parseAddress(contractHex)
	if err != nil {
		return nil, false, err
	}
	return s.rt.GetContractStorageValue(addr, key)
}

// CallContract executes a contract method read-only and reports its
// outcome without persisting any writes.
func (s *Service) CallContract(contractHex, method string, args []byte, fuelLimit uint64) (ContractCallView, error) {
	addr, err := parseAddress(contractHex)
	if err != nil {
		return ContractCallView{}, err
	}
	result, err := s.rt.CallContractReadOnly(addr, method, args, fuelLimit)
	if err != nil {
		return ContractCallView{}, err
	}
	view := ContractCallView{FuelUsed: result.FuelUsed, Reverted: result.Reverted}
	if result.Reverted {
		view.RevertData = hex.EncodeToString(result.RevertData)
	}
	for _, evt := range result.Events {
		view.Events = append(view.Events, EventView{Topic: evt.Topic, Data: hex.EncodeToString(evt.Data)})
	}
	return view, nil
}

// SubmitTransaction admits a fully-formed, already-signed transaction.
func (s *Service) SubmitTransaction(tx core.Transaction) error {
	return s.rt.Submit(tx)
}

// ProduceBlock triggers immediate block production, bypassing the timer.
func (s *Service) ProduceBlock() (BlockView, error) {
	block, err := s.rt.ProduceBlock()
	if err != nil {
		return BlockView{}, err
	}
	return toBlockView(block), nil
}

var errMalformed = errors.New("rpc: malformed identifier")

func parseHash(s string) (core.Hash, error) {
	raw, err := hex.DecodeString(s)
	if err != nil || len(raw) != core.HashSize {
		return core.Hash{}, fmt.Errorf("%w: malformed hash %q", errMalformed, s)
	}
	var h core.Hash
	copy(h[:], raw)
	return h, nil
}

func parseAddress(s string) (core.Address, error) {
	raw, err := hex.DecodeString(s)
	if err != nil || len(raw) != core.HashSize {
		return core.Address{}, fmt.Errorf("%w: malformed address %q", errMalformed, s)
	}
	var a core.Address
	copy(a[:], raw)
	return a, nil
}

// ExitCode maps an error returned by this package (or the layers beneath
// it) to the CLI's documented exit-code taxonomy: 0 success, 1 user error,
// 2 validation failure, 3 I/O failure.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, errMalformed),
		errors.Is(err, internalerrors.ErrLedgerAccountNotFound):
		return 1
	case errors.Is(err, internalerrors.ErrConsensusBadSignature),
		errors.Is(err, internalerrors.ErrConsensusUnauthorizedSigner),
		errors.Is(err, internalerrors.ErrConsensusBadLinkage),
		errors.Is(err, internalerrors.ErrLedgerBadHeader),
		errors.Is(err, internalerrors.ErrLedgerStateRootMismatch),
		errors.Is(err, internalerrors.ErrLedgerTxApplyFailed),
		errors.Is(err, internalerrors.ErrContractReverted),
		errors.Is(err, internalerrors.ErrContractOutOfFuel),
		errors.Is(err, internalerrors.ErrMempoolBadSignature),
		errors.Is(err, internalerrors.ErrMempoolNonceTooLow),
		errors.Is(err, internalerrors.ErrMempoolNonceGap),
		errors.Is(err, internalerrors.ErrMempoolDuplicate):
		return 2
	case errors.Is(err, internalerrors.ErrStorageIO),
		errors.Is(err, internalerrors.ErrStorageCorruption),
		errors.Is(err, internalerrors.ErrStorageNotFound):
		return 3
	default:
		return 1
	}
}
