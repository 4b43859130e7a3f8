package ledger

import (
	"errors"
	"fmt"
	"time"

	"github.com/kdsmith18542/baals/internal/core"
	internalerrors "github.com/kdsmith18542/baals/internal/errors"
	"github.com/kdsmith18542/baals/internal/storage"
	"github.com/kdsmith18542/baals/internal/trie"
	"github.com/kdsmith18542/baals/internal/vm"
)

// overlay stages the changes ApplyBlock commits in a single storage.Batch:
// contract code, per-contract storage writes, and the resulting roots. The
// trie nodes behind those roots are written to the trie_nodes namespace as
// they are created, outside that batch; being content-addressed, they are
// reachable only once the batch commits the new chain state.
type overlay struct {
	accountsRoot core.Hash
	storageRoots map[core.Address]core.Hash // contract address -> new StorageRoot
	storageWrites map[core.Address]map[string][]byte
	contractCode map[core.Address][]byte
}

func newOverlay(accountsRoot core.Hash) *overlay {
	return &overlay{
		accountsRoot:  accountsRoot,
		storageRoots:  make(map[core.Address]core.Hash),
		storageWrites: make(map[core.Address]map[string][]byte),
		contractCode:  make(map[core.Address][]byte),
	}
}

// ApplyBlock validates block against the current chain head and, if valid,
// commits its effects atomically: every account/contract update, the new
// chain state, and the block's own indices land together or not at all.
//
// This is used both for externally received blocks (where Header.AccountsRoot
// must match what recomputing produces) and, via applyTransactions directly,
// by the consensus engine's produce path.
func (l *Ledger) ApplyBlock(block core.Block) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	head, err := l.Head()
	if err != nil {
		return err
	}

	if block.Header.Height != head.LatestHeight+1 {
		return fmt.Errorf("%w: expected height %d, got %d", internalerrors.ErrLedgerBadHeader, head.LatestHeight+1, block.Header.Height)
	}
	if block.Header.PrevHash != head.LatestHash {
		return fmt.Errorf("%w: block does not link to current head", internalerrors.ErrConsensusBadLinkage)
	}
	if block.Header.Timestamp <= head.LatestTimestamp {
		return fmt.Errorf("%w: timestamp %d does not exceed previous block's timestamp %d", internalerrors.ErrConsensusBadTimestamp, block.Header.Timestamp, head.LatestTimestamp)
	}
	if maxTimestamp := time.Now().Add(l.cfg.TimestampSkewTolerance).Unix(); block.Header.Timestamp > maxTimestamp {
		return fmt.Errorf("%w: timestamp %d is more than %s ahead of the local clock", internalerrors.ErrConsensusBadTimestamp, block.Header.Timestamp, l.cfg.TimestampSkewTolerance)
	}
	if !block.Header.VerifySignature() {
		return internalerrors.ErrConsensusBadSignature
	}
	if !block.Header.VerifyHash() {
		return fmt.Errorf("%w: block hash does not match its signed header", internalerrors.ErrLedgerBadHeader)
	}
	wantTxRoot := core.ComputeTxRoot(block.Transactions)
	if wantTxRoot != block.Header.TxRoot {
		return fmt.Errorf("%w: computed tx root does not match header", internalerrors.ErrLedgerBadHeader)
	}

	ov, writes, err := l.applyTransactions(head.AccountsRoot, block.Transactions, block.Header.Height, block.Header.Timestamp)
	if err != nil {
		return err
	}
	if ov.accountsRoot != block.Header.AccountsRoot {
		return internalerrors.ErrLedgerStateRootMismatch
	}

	return l.commit(block, head, ov, writes)
}

// ProduceBlockBody runs the same transaction-application pipeline a
// produced block's transactions must satisfy, without requiring a
// pre-built header: the consensus engine uses this to learn the resulting
// AccountsRoot and TxRoot before it signs anything.
func (l *Ledger) ProduceBlockBody(txs []core.Transaction, height uint64, timestamp int64) (core.Hash, core.Hash, []core.Transaction, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	head, err := l.Head()
	if err != nil {
		return core.Hash{}, core.Hash{}, nil, err
	}

	var accepted []core.Transaction
	ov := newOverlay(head.AccountsRoot)
	root := head.AccountsRoot
	for _, tx := range txs {
		next, txOv, reverted, err := l.applyOneTx(root, tx, height, timestamp)
		if err != nil {
			l.log.WithError(err).WithField("tx", tx.Hash).Warn("dropping transaction from produced block")
			continue
		}
		root = next
		if reverted {
			l.log.WithField("tx", tx.Hash).Info("transaction reverted; keeping nonce advance, discarding its effects")
		} else {
			mergeOverlay(ov, txOv)
		}
		accepted = append(accepted, tx)
	}
	ov.accountsRoot = root

	return root, core.ComputeTxRoot(accepted), accepted, nil
}

// Commit persists a block the consensus engine has just signed. It
// re-applies block.Transactions against the current head and rejects the
// block if the resulting accounts root differs from Header.AccountsRoot, so
// callers must not mutate txs or the chain between ProduceBlockBody and
// Commit.
func (l *Ledger) Commit(block core.Block) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	head, err := l.Head()
	if err != nil {
		return err
	}
	ov, writes, err := l.applyTransactions(head.AccountsRoot, block.Transactions, block.Header.Height, block.Header.Timestamp)
	if err != nil {
		return err
	}
	if ov.accountsRoot != block.Header.AccountsRoot {
		return internalerrors.ErrLedgerStateRootMismatch
	}
	return l.commit(block, head, ov, writes)
}

func (l *Ledger) commit(block core.Block, head core.ChainState, ov *overlay, txWrites []storage.Write) error {
	newState := core.ChainState{
		LatestHash:      block.Header.Hash,
		LatestHeight:    block.Header.Height,
		LatestTimestamp: block.Header.Timestamp,
		AccountsRoot:    ov.accountsRoot,
		TrackSupply:     head.TrackSupply,
		TotalSupply:     head.TotalSupply,
	}

	writes := append([]storage.Write{}, txWrites...)
	writes = append(writes,
		storage.Write{Namespace: storage.NamespaceBlocksByHash, Key: block.Header.Hash[:], Value: block.Encode()},
		storage.Write{Namespace: storage.NamespaceBlocksByHeight, Key: storage.HeightKey(block.Header.Height), Value: block.Header.Hash[:]},
		storage.Write{Namespace: storage.NamespaceChainState, Key: storage.ChainStateKey, Value: newState.Encode()},
	)
	for _, tx := range block.Transactions {
		writes = append(writes, storage.Write{
			Namespace: storage.NamespaceTxIndex,
			Key:       tx.Hash[:],
			Value:     beBytes(block.Header.Height),
		})
	}

	if err := l.store.Batch(writes); err != nil {
		return fmt.Errorf("%w: %v", internalerrors.ErrStorageIO, err)
	}
	l.log.WithFields(map[string]interface{}{
		"height": block.Header.Height,
		"txs":    len(block.Transactions),
	}).Info("committed block")
	return nil
}

func beBytes(v uint64) []byte {
	b := make([]byte, 8)
	for i := 7; i >= 0; i-- {
		b[i] = byte(v)
		v >>= 8
	}
	return b
}

// applyTransactions walks txs against root in order, staging account and
// contract-storage writes, and returns the resulting overlay plus the
// storage.Write batch to commit it. It aborts the whole block on a
// pre-dispatch rejection (bad signature, bad nonce, insufficient intrinsic
// gas, and the like): a block containing one of those is itself invalid. A
// transaction-level revert (insufficient balance, a sandbox trap or
// out-of-fuel, an explicit contract revert) does not abort anything here;
// applyOneTx already confined it to that transaction's own nonce-only
// effect.
func (l *Ledger) applyTransactions(root core.Hash, txs []core.Transaction, height uint64, timestamp int64) (*overlay, []storage.Write, error) {
	ov := newOverlay(root)
	cur := root
	for _, tx := range txs {
		next, txOv, reverted, err := l.applyOneTx(cur, tx, height, timestamp)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: tx %s: %v", internalerrors.ErrLedgerTxApplyFailed, tx.Hash, err)
		}
		cur = next
		if !reverted {
			mergeOverlay(ov, txOv)
		}
	}
	ov.accountsRoot = cur

	var writes []storage.Write
	for addr, code := range ov.contractCode {
		writes = append(writes, storage.Write{Namespace: storage.NamespaceContractCode, Key: addr[:], Value: code})
	}
	for addr, kv := range ov.storageWrites {
		for k, v := range kv {
			key := append(append([]byte{}, addr[:]...), []byte(k)...)
			writes = append(writes, storage.Write{Namespace: storage.NamespaceContractStore, Key: key, Value: v})
		}
	}
	return ov, writes, nil
}

func mergeOverlay(dst, src *overlay) {
	for addr, code := range src.contractCode {
		dst.contractCode[addr] = code
	}
	for addr, kv := range src.storageWrites {
		if dst.storageWrites[addr] == nil {
			dst.storageWrites[addr] = make(map[string][]byte)
		}
		for k, v := range kv {
			dst.storageWrites[addr][k] = v
		}
	}
	for addr, root := range src.storageRoots {
		dst.storageRoots[addr] = root
	}
}

// applyOneTx applies a single transaction against the accounts trie rooted
// at root, returning the new accounts root, the overlay fragment it
// produced (contract code/storage writes this tx caused), and whether the
// transaction reverted.
//
// A non-nil error here means a pre-dispatch rejection (bad signature, bad
// nonce, insufficient intrinsic gas, a malformed Deploy module, a Call
// target that isn't a contract, or a storage I/O failure): the caller must
// treat the whole block as invalid. reverted==true with a nil error means a
// transaction-level revert (insufficient balance, a sandbox trap or
// out-of-fuel, or an explicit contract revert): only the sender's nonce
// increment is kept, every other effect is discarded, and the rest of the
// block proceeds unaffected.
func (l *Ledger) applyOneTx(root core.Hash, tx core.Transaction, height uint64, timestamp int64) (core.Hash, *overlay, bool, error) {
	if !tx.Verify() {
		return core.Hash{}, nil, false, internalerrors.ErrConsensusBadSignature
	}
	if err := checkPayloadRecipientPairing(tx); err != nil {
		return core.Hash{}, nil, false, err
	}

	sender := tx.SenderAddress()
	senderAcct, ok, err := l.getAccountAt(root, sender)
	if err != nil {
		return core.Hash{}, nil, false, err
	}
	if !ok {
		if !l.cfg.AllowImplicitWalletCreation {
			return core.Hash{}, nil, false, internalerrors.ErrLedgerAccountNotFound
		}
		senderAcct = core.NewWallet()
	}
	if tx.Nonce != senderAcct.Nonce+1 {
		return core.Hash{}, nil, false, fmt.Errorf("%w: expected nonce %d, got %d", internalerrors.ErrLedgerBadHeader, senderAcct.Nonce+1, tx.Nonce)
	}
	if tx.GasLimit < l.cfg.IntrinsicGas {
		return core.Hash{}, nil, false, fmt.Errorf("%w: gas limit below intrinsic cost", internalerrors.ErrLedgerTxApplyFailed)
	}

	// DeriveContractID binds the sender's nonce as it stood *before* this
	// transaction, so capture it before the increment below.
	preTxNonce := senderAcct.Nonce
	senderAcct.Nonce++

	nonceRoot, err := trie.Put(l.nodes, root, core.Hash(sender), senderAcct.Encode())
	if err != nil {
		return core.Hash{}, nil, false, err
	}
	root = nonceRoot

	// revert confines a transaction-level failure to this tx: the nonce
	// bump above is kept, everything else this tx would have staged is
	// dropped, and the block continues.
	revert := func() (core.Hash, *overlay, bool, error) {
		l.cfg.Metrics.ObserveTransactionReverted()
		return nonceRoot, newOverlay(core.Hash{}), true, nil
	}

	ov := newOverlay(core.Hash{})

	switch tx.PayloadKind {
	case core.PayloadTransfer:
		if senderAcct.Balance < tx.Amount {
			return revert()
		}
		senderAcct.Balance -= tx.Amount

		root, err = trie.Put(l.nodes, root, core.Hash(sender), senderAcct.Encode())
		if err != nil {
			return core.Hash{}, nil, false, err
		}

		recvAcct, ok, err := l.getAccountAt(root, tx.Recipient)
		if err != nil {
			return core.Hash{}, nil, false, err
		}
		if !ok {
			if !l.cfg.AllowImplicitWalletCreation {
				return core.Hash{}, nil, false, internalerrors.ErrLedgerAccountNotFound
			}
			recvAcct = core.NewWallet()
		}
		recvAcct.Balance += tx.Amount
		root, err = trie.Put(l.nodes, root, core.Hash(tx.Recipient), recvAcct.Encode())
		if err != nil {
			return core.Hash{}, nil, false, err
		}
		l.cfg.Metrics.ObserveTransactionApplied()
		return root, ov, false, nil

	case core.PayloadDeploy:
		codeHash := core.HashBytes(tx.Wasm)
		contractID := core.DeriveContractID(sender, preTxNonce, codeHash)
		if err := vm.Validate(tx.Wasm, "init"); err != nil {
			return core.Hash{}, nil, false, err
		}

		contractAcct := core.NewContract(codeHash)
		storageTrieRoot := trie.EmptyRoot()

		ov.contractCode[contractID] = tx.Wasm
		stagedStorage := make(map[string][]byte)
		hctx := &vm.HostContext{
			Sender: sender, ContractID: contractID,
			BlockHeight: height, BlockTime: timestamp, Input: tx.InitArgs,
			StorageRead: func(k []byte) ([]byte, bool) {
				v, ok := stagedStorage[string(k)]
				if ok {
					return v, true
				}
				v2, ok2, _ := trie.Get(l.nodes, storageTrieRoot, keyToHash(k))
				return v2, ok2
			},
			StorageWrite: func(k, v []byte) { stagedStorage[string(k)] = v },
			StorageRemove: func(k []byte) { stagedStorage[string(k)] = nil },
			CallContract: func(core.Address, string, []byte, uint64) ([]byte, error) {
				return nil, fmt.Errorf("%w: contract calls not permitted during init", internalerrors.ErrContractHostAbuse)
			},
		}
		result, err := vm.Execute(tx.Wasm, "init", tx.GasLimit-l.cfg.IntrinsicGas, hctx)
		if err != nil {
			// Covers both OutOfFuel and Trap: confined to this tx, not a
			// block-aborting failure.
			return revert()
		}
		l.cfg.Metrics.ObserveSandboxFuel(result.FuelUsed)
		if result.Reverted {
			return revert()
		}

		for k, v := range stagedStorage {
			storageTrieRoot, err = applyStorageWrite(storageTrieRoot, l.nodes, k, v)
			if err != nil {
				return core.Hash{}, nil, false, err
			}
		}
		if len(stagedStorage) > 0 {
			ov.storageWrites[contractID] = stagedStorage
		}
		contractAcct.StorageRoot = storageTrieRoot
		ov.storageRoots[contractID] = storageTrieRoot

		root, err = trie.Put(l.nodes, root, core.Hash(contractID), contractAcct.Encode())
		if err != nil {
			return core.Hash{}, nil, false, err
		}
		l.cfg.Metrics.ObserveTransactionApplied()
		return root, ov, false, nil

	case core.PayloadCall:
		contractAcct, ok, err := l.getAccountAt(root, tx.Recipient)
		if err != nil {
			return core.Hash{}, nil, false, err
		}
		if !ok || contractAcct.Kind != core.AccountContract {
			return core.Hash{}, nil, false, fmt.Errorf("%w: call target is not a contract", internalerrors.ErrLedgerTxApplyFailed)
		}
		code, err := l.store.Get(storage.NamespaceContractCode, tx.Recipient[:])
		if err != nil {
			return core.Hash{}, nil, false, err
		}

		stagedStorage := make(map[string][]byte)
		storageRoot := contractAcct.StorageRoot
		hctx := &vm.HostContext{
			Sender: sender, ContractID: tx.Recipient,
			BlockHeight: height, BlockTime: timestamp, Input: tx.Args,
			StorageRead: func(k []byte) ([]byte, bool) {
				if v, ok := stagedStorage[string(k)]; ok {
					return v, v != nil
				}
				v, ok, _ := trie.Get(l.nodes, storageRoot, keyToHash(k))
				return v, ok
			},
			StorageWrite: func(k, v []byte) { stagedStorage[string(k)] = v },
			StorageRemove: func(k []byte) { stagedStorage[string(k)] = nil },
			CallContract: func(core.Address, string, []byte, uint64) ([]byte, error) {
				return nil, fmt.Errorf("%w: nested calls not yet supported", internalerrors.ErrContractHostAbuse)
			},
		}
		result, err := vm.Execute(code, tx.Method, tx.GasLimit-l.cfg.IntrinsicGas, hctx)
		if err != nil {
			return revert()
		}
		l.cfg.Metrics.ObserveSandboxFuel(result.FuelUsed)
		if result.Reverted {
			return revert()
		}

		newRoot := storageRoot
		for k, v := range stagedStorage {
			newRoot, err = applyStorageWrite(newRoot, l.nodes, k, v)
			if err != nil {
				return core.Hash{}, nil, false, err
			}
		}
		if len(stagedStorage) > 0 {
			ov.storageWrites[tx.Recipient] = stagedStorage
			ov.storageRoots[tx.Recipient] = newRoot
			contractAcct.StorageRoot = newRoot
			root, err = trie.Put(l.nodes, root, core.Hash(tx.Recipient), contractAcct.Encode())
			if err != nil {
				return core.Hash{}, nil, false, err
			}
		}
		l.cfg.Metrics.ObserveTransactionApplied()
		return root, ov, false, nil

	case core.PayloadData:
		l.cfg.Metrics.ObserveTransactionApplied()
		return root, ov, false, nil

	default:
		return core.Hash{}, nil, false, fmt.Errorf("%w: unknown payload kind %d", internalerrors.ErrLedgerBadHeader, tx.PayloadKind)
	}
}

func applyStorageWrite(root core.Hash, nodes trie.StorageNodeStore, key string, value []byte) (core.Hash, error) {
	if value == nil {
		// the sparse trie has no explicit tombstone: a removal is stored
		// as a zero-length leaf, which Get then reports as present with an
		// empty value, the same as a key written with an empty value.
		return trie.Put(nodes, root, keyToHash([]byte(key)), nil)
	}
	return trie.Put(nodes, root, keyToHash([]byte(key)), value)
}

func keyToHash(k []byte) core.Hash { return core.HashBytes(k) }

func checkPayloadRecipientPairing(tx core.Transaction) error {
	switch tx.PayloadKind {
	case core.PayloadTransfer:
		if tx.RecipientKind != core.RecipientWallet {
			return fmt.Errorf("%w: transfer requires a wallet recipient", core.ErrMismatchedRecipientKind)
		}
	case core.PayloadCall:
		if tx.RecipientKind != core.RecipientContract {
			return fmt.Errorf("%w: call requires a contract recipient", core.ErrMismatchedRecipientKind)
		}
	case core.PayloadDeploy, core.PayloadData:
		// Deploy derives its own contract address; Data carries no
		// recipient semantics. Neither constrains RecipientKind.
	default:
		return errors.New("unknown payload kind")
	}
	return nil
}
