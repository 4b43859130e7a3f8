// Package internalerrors collects the sentinel errors every other BaaLS
// package wraps with context via fmt.Errorf("...: %w", ...). Grouping them
// here, by component, is what lets a caller use errors.Is against a stable
// identity regardless of which package actually returned the wrapped error.
package internalerrors

import "errors"

// Storage errors.
var (
	ErrStorageNotFound   = errors.New("storage: key not found")
	ErrStorageCorruption = errors.New("storage: corrupted record")
	ErrStorageIO         = errors.New("storage: io error")
)

// Mempool errors.
var (
	ErrMempoolBadSignature = errors.New("mempool: invalid transaction signature")
	ErrMempoolNonceTooLow  = errors.New("mempool: nonce already used")
	ErrMempoolNonceGap     = errors.New("mempool: nonce gap not permitted")
	ErrMempoolDuplicate    = errors.New("mempool: transaction already present")
	ErrMempoolFull         = errors.New("mempool: capacity exceeded")
	ErrMempoolMalformed    = errors.New("mempool: malformed transaction")
)

// Consensus errors.
var (
	ErrConsensusUnauthorizedSigner = errors.New("consensus: block signer is not an authorized signer")
	ErrConsensusBadSignature       = errors.New("consensus: invalid block signature")
	ErrConsensusBadTimestamp       = errors.New("consensus: block timestamp out of acceptable range")
	ErrConsensusBadLinkage         = errors.New("consensus: block does not link to the expected parent")
)

// Ledger errors.
var (
	ErrLedgerBadHeader         = errors.New("ledger: malformed or inconsistent block header")
	ErrLedgerTxApplyFailed     = errors.New("ledger: transaction application failed")
	ErrLedgerStateRootMismatch = errors.New("ledger: computed state root does not match header")
	ErrLedgerAccountNotFound   = errors.New("ledger: account does not exist")
	ErrLedgerInsufficientBalance = errors.New("ledger: insufficient balance")
)

// Contract sandbox errors.
var (
	ErrContractValidation = errors.New("contract: module failed validation")
	ErrContractOutOfFuel  = errors.New("contract: execution ran out of fuel")
	ErrContractTrap       = errors.New("contract: execution trapped")
	ErrContractReverted   = errors.New("contract: execution explicitly reverted")
	ErrContractHostAbuse  = errors.New("contract: host call violated sandbox constraints")
)
