// Package ledger implements BaaLS's state-transition pipeline: applying a
// block's transactions against the account trie and contract sandbox,
// staging every write in memory, and committing the result atomically.
package ledger

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/kdsmith18542/baals/internal/core"
	internalerrors "github.com/kdsmith18542/baals/internal/errors"
	"github.com/kdsmith18542/baals/internal/metrics"
	"github.com/kdsmith18542/baals/internal/storage"
	"github.com/kdsmith18542/baals/internal/trie"
	"github.com/kdsmith18542/baals/internal/vm"
)

// Config tunes policy decisions the spec leaves to the embedder.
type Config struct {
	// AllowImplicitWalletCreation creates a zero-balance wallet the first
	// time an address is credited or otherwise referenced; when false, a
	// transaction targeting an unknown wallet is rejected outright.
	AllowImplicitWalletCreation bool

	// IntrinsicGas is charged against every transaction's GasLimit before
	// its payload runs, the flat cost of including it at all.
	IntrinsicGas uint64

	// TimestampSkewTolerance bounds how far into the future a block's
	// header timestamp may sit ahead of this node's local clock before
	// ApplyBlock rejects it.
	TimestampSkewTolerance time.Duration

	// TrackSupply mirrors core.ChainState.TrackSupply for a freshly
	// bootstrapped chain.
	TrackSupply bool

	// Metrics, if set, receives counters for applied/reverted transactions
	// and sandbox fuel consumption. A nil Collector is a safe no-op.
	Metrics *metrics.Collector
}

func (c Config) withDefaults() Config {
	if c.IntrinsicGas == 0 {
		c.IntrinsicGas = 1000
	}
	if c.TimestampSkewTolerance == 0 {
		c.TimestampSkewTolerance = 10 * time.Second
	}
	return c
}

// Ledger owns the account trie, per-contract storage tries, and the chain
// head, all persisted through a shared storage.Store.
type Ledger struct {
	mu     sync.Mutex
	store  *storage.Store
	nodes  trie.StorageNodeStore
	cfg    Config
	log    *logrus.Entry
}

// Open bootstraps the ledger against store, writing a genesis chain state
// if none exists yet.
func Open(store *storage.Store, cfg Config) (*Ledger, error) {
	cfg = cfg.withDefaults()
	l := &Ledger{
		store: store,
		nodes: trie.StorageNodeStore{Store: store},
		cfg:   cfg,
		log:   logrus.WithField("component", "ledger"),
	}

	_, err := store.Get(storage.NamespaceChainState, storage.ChainStateKey)
	if errors.Is(err, internalerrors.ErrStorageNotFound) {
		genesis := core.Genesis(trie.EmptyRoot(), cfg.TrackSupply)
		if err := store.Put(storage.NamespaceChainState, storage.ChainStateKey, genesis.Encode()); err != nil {
			return nil, fmt.Errorf("%w: writing genesis chain state: %v", internalerrors.ErrStorageIO, err)
		}
		l.log.Info("initialized genesis chain state")
		return l, nil
	}
	if err != nil {
		return nil, err
	}
	return l, nil
}

// Head returns the current chain state.
func (l *Ledger) Head() (core.ChainState, error) {
	raw, err := l.store.Get(storage.NamespaceChainState, storage.ChainStateKey)
	if err != nil {
		return core.ChainState{}, err
	}
	return core.DecodeChainState(raw)
}

// GetAccount looks up an account by address in the current accounts trie.
func (l *Ledger) GetAccount(addr core.Address) (core.Account, bool, error) {
	head, err := l.Head()
	if err != nil {
		return core.Account{}, false, err
	}
	return l.getAccountAt(head.AccountsRoot, addr)
}

func (l *Ledger) getAccountAt(root core.Hash, addr core.Address) (core.Account, bool, error) {
	raw, ok, err := trie.Get(l.nodes, root, core.Hash(addr))
	if err != nil {
		return core.Account{}, false, fmt.Errorf("%w: %v", internalerrors.ErrStorageIO, err)
	}
	if !ok {
		return core.Account{}, false, nil
	}
	acct, err := core.DecodeAccount(raw)
	if err != nil {
		return core.Account{}, false, fmt.Errorf("%w: account at %s: %v", internalerrors.ErrStorageCorruption, addr, err)
	}
	return acct, true, nil
}

// AccountNonce implements mempool.AccountView.
func (l *Ledger) AccountNonce(addr core.Address) (uint64, bool) {
	acct, ok, err := l.GetAccount(addr)
	if err != nil || !ok {
		return 0, false
	}
	return acct.Nonce, true
}

// GetBlockByHeight/GetBlockByHash/GetBlockByHeight read persisted blocks.
func (l *Ledger) GetBlockByHash(hash core.Hash) (core.Block, error) {
	raw, err := l.store.Get(storage.NamespaceBlocksByHash, hash[:])
	if err != nil {
		return core.Block{}, err
	}
	return core.DecodeBlock(raw)
}

func (l *Ledger) GetBlockByHeight(height uint64) (core.Block, error) {
	hash, err := l.store.Get(storage.NamespaceBlocksByHeight, storage.HeightKey(height))
	if err != nil {
		return core.Block{}, err
	}
	var h core.Hash
	copy(h[:], hash)
	return l.GetBlockByHash(h)
}

// GetTransaction finds a committed transaction and the height of the block
// that included it, via the tx_index namespace.
func (l *Ledger) GetTransaction(hash core.Hash) (core.Transaction, uint64, error) {
	raw, err := l.store.Get(storage.NamespaceTxIndex, hash[:])
	if err != nil {
		return core.Transaction{}, 0, err
	}
	if len(raw) < 8 {
		return core.Transaction{}, 0, fmt.Errorf("%w: truncated tx index entry", internalerrors.ErrStorageCorruption)
	}
	height := beUint64(raw[:8])
	block, err := l.GetBlockByHeight(height)
	if err != nil {
		return core.Transaction{}, 0, err
	}
	for _, tx := range block.Transactions {
		if tx.Hash == hash {
			return tx, height, nil
		}
	}
	return core.Transaction{}, 0, internalerrors.ErrStorageNotFound
}

// GetContractStorageValue reads a single key from a deployed contract's
// storage trie as it stands at the current head, without staging any
// write. It is used by read-only queries, never by transaction application.
func (l *Ledger) GetContractStorageValue(addr core.Address, key []byte) ([]byte, bool, error) {
	acct, ok, err := l.GetAccount(addr)
	if err != nil {
		return nil, false, err
	}
	if !ok || acct.Kind != core.AccountContract {
		return nil, false, fmt.Errorf("%w: %s is not a contract", internalerrors.ErrLedgerAccountNotFound, addr)
	}
	v, ok, err := trie.Get(l.nodes, acct.StorageRoot, keyToHash(key))
	if err != nil {
		return nil, false, fmt.Errorf("%w: %v", internalerrors.ErrStorageIO, err)
	}
	return v, ok, nil
}

// CallContractReadOnly executes method against a deployed contract using
// the head's committed state, discarding any writes it stages. It is meant
// for query-path inspection (the CLI's `query contract-call`), never for
// state-changing transactions.
func (l *Ledger) CallContractReadOnly(addr core.Address, method string, args []byte, fuelLimit uint64) (vm.Result, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	head, err := l.Head()
	if err != nil {
		return vm.Result{}, err
	}
	acct, ok, err := l.getAccountAt(head.AccountsRoot, addr)
	if err != nil {
		return vm.Result{}, err
	}
	if !ok || acct.Kind != core.AccountContract {
		return vm.Result{}, fmt.Errorf("%w: %s is not a contract", internalerrors.ErrLedgerAccountNotFound, addr)
	}
	code, err := l.store.Get(storage.NamespaceContractCode, addr[:])
	if err != nil {
		return vm.Result{}, err
	}

	staged := make(map[string][]byte)
	hctx := &vm.HostContext{
		ContractID: addr, BlockHeight: head.LatestHeight, BlockTime: head.LatestTimestamp, Input: args,
		StorageRead: func(k []byte) ([]byte, bool) {
			if v, ok := staged[string(k)]; ok {
				return v, v != nil
			}
			v, ok, _ := trie.Get(l.nodes, acct.StorageRoot, keyToHash(k))
			return v, ok
		},
		StorageWrite:  func(k, v []byte) { staged[string(k)] = v },
		StorageRemove: func(k []byte) { staged[string(k)] = nil },
		CallContract: func(core.Address, string, []byte, uint64) ([]byte, error) {
			return nil, fmt.Errorf("%w: nested calls not permitted in a read-only query", internalerrors.ErrContractHostAbuse)
		},
	}
	return vm.Execute(code, method, fuelLimit, hctx)
}

func beUint64(b []byte) uint64 {
	var v uint64
	for _, c := range b[:8] {
		v = v<<8 | uint64(c)
	}
	return v
}
