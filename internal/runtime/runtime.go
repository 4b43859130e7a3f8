// Package runtime is BaaLS's orchestrator: it owns the storage handle,
// ledger, mempool and consensus engine for one embedded node, and is the
// single entry point embedders call against.
package runtime

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/ed25519"

	"github.com/kdsmith18542/baals/internal/consensus"
	"github.com/kdsmith18542/baals/internal/core"
	"github.com/kdsmith18542/baals/internal/ledger"
	"github.com/kdsmith18542/baals/internal/mempool"
	"github.com/kdsmith18542/baals/internal/metrics"
	"github.com/kdsmith18542/baals/internal/storage"
	"github.com/kdsmith18542/baals/internal/vm"
)

// Config collects everything a Runtime needs to boot a node.
type Config struct {
	DataDir string

	// AuthorityPublicKey/AuthoritySigningKey identify the single signer
	// trusted to produce blocks. SigningKey is nil for a node that only
	// validates externally-produced blocks rather than proposing its own.
	AuthorityPublicKey core.PublicKey
	AuthoritySigningKey ed25519.PrivateKey

	BlockInterval   time.Duration
	MaxTxsPerBlock  int
	MempoolLimits   mempool.Limits
	MempoolExpiry   time.Duration
	Ledger          ledger.Config

	// MetricsEnabled starts a Prometheus /metrics endpoint on
	// MetricsListenAddr for the lifetime of this Runtime.
	MetricsEnabled    bool
	MetricsListenAddr string
}

func (c Config) withDefaults() Config {
	if c.BlockInterval <= 0 {
		c.BlockInterval = consensus.DefaultBlockInterval
	}
	if c.MaxTxsPerBlock <= 0 {
		c.MaxTxsPerBlock = consensus.DefaultMaxTxsPerBlock
	}
	if c.MempoolExpiry <= 0 {
		c.MempoolExpiry = 1 * time.Minute
	}
	return c
}

// Runtime wires together storage, ledger, mempool and consensus into one
// running node. A Runtime with a nil signing key can still validate and
// apply externally-produced blocks; it just never proposes its own.
type Runtime struct {
	cfg     Config
	store   *storage.Store
	ledger  *ledger.Ledger
	mempool *mempool.Mempool
	bus     *EventBus
	log     *logrus.Entry

	proposer  *consensus.Proposer
	validator *consensus.Validator
	engine    *consensus.Engine

	metrics       *metrics.Collector
	metricsServer *http.Server

	stopExpiry chan struct{}
	wg         sync.WaitGroup
}

// Open boots a Runtime against cfg, opening storage and the ledger and
// wiring up the consensus engine. It does not start the production loop;
// call Start for that.
func Open(cfg Config) (*Runtime, error) {
	cfg = cfg.withDefaults()

	var collector *metrics.Collector
	if cfg.MetricsEnabled {
		collector = metrics.NewCollector()
		cfg.Ledger.Metrics = collector
	}

	store, err := storage.Open(cfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}
	l, err := ledger.Open(store, cfg.Ledger)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("open ledger: %w", err)
	}

	mp := mempool.NewMempool(cfg.MempoolLimits)
	authority := consensus.Authority{PublicKey: cfg.AuthorityPublicKey}
	validator := consensus.NewValidator(authority, l)

	r := &Runtime{
		cfg: cfg, store: store, ledger: l, mempool: mp,
		bus: NewEventBus(), log: logrus.WithField("component", "runtime"),
		validator:  validator,
		metrics:    collector,
		stopExpiry: make(chan struct{}),
	}

	if cfg.AuthoritySigningKey != nil {
		r.proposer = consensus.NewProposer(cfg.AuthoritySigningKey, cfg.AuthorityPublicKey, l, mp, cfg.MaxTxsPerBlock)
		r.engine = consensus.NewEngine(r.proposer, cfg.BlockInterval, r.onBlockProduced)
	}

	if collector != nil {
		addr := cfg.MetricsListenAddr
		if addr == "" {
			addr = "127.0.0.1:9090"
		}
		r.metricsServer = collector.StartServer(addr)
	}

	return r, nil
}

func (r *Runtime) onBlockProduced(block core.Block) {
	r.metrics.ObserveBlockProduced(len(block.Transactions))
	r.metrics.SetMempoolSize(r.mempool.Count())
	r.bus.Publish(Event{Kind: EventBlockCommitted, Payload: block})
}

// Start begins background work: the consensus production loop (if this
// node has a signing key) and periodic mempool expiry sweeps.
func (r *Runtime) Start() {
	if r.engine != nil {
		r.engine.Start()
	}
	r.wg.Add(1)
	go r.expiryLoop()
}

// Stop halts background work and closes storage. The Runtime must not be
// used again afterward.
func (r *Runtime) Stop() error {
	if r.engine != nil {
		r.engine.Stop()
	}
	close(r.stopExpiry)
	r.wg.Wait()
	if r.metricsServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := r.metrics.Shutdown(ctx, r.metricsServer); err != nil {
			r.log.WithError(err).Warn("metrics server shutdown")
		}
	}
	return r.store.Close()
}

func (r *Runtime) expiryLoop() {
	defer r.wg.Done()
	ticker := time.NewTicker(r.cfg.MempoolExpiry)
	defer ticker.Stop()
	for {
		select {
		case <-r.stopExpiry:
			return
		case <-ticker.C:
			if n := r.mempool.Expire(); n > 0 {
				r.log.WithField("count", n).Debug("expired stale mempool transactions")
			}
			r.metrics.SetMempoolSize(r.mempool.Count())
		}
	}
}

// Submit admits tx into the mempool for inclusion in a future block.
func (r *Runtime) Submit(tx core.Transaction) error {
	if err := r.mempool.Admit(tx, r.ledger); err != nil {
		return err
	}
	r.metrics.SetMempoolSize(r.mempool.Count())
	r.bus.Publish(Event{Kind: EventTxAdmitted, Payload: tx})
	return nil
}

// ProduceBlock triggers immediate block generation outside the regular
// interval. It requires this Runtime to have been opened with a signing
// key.
func (r *Runtime) ProduceBlock() (core.Block, error) {
	if r.proposer == nil {
		return core.Block{}, fmt.Errorf("runtime: this node has no authority signing key and cannot propose blocks")
	}
	block, err := r.proposer.GenerateBlock()
	if err != nil {
		return core.Block{}, err
	}
	r.onBlockProduced(block)
	return block, nil
}

// ApplyExternalBlock validates and commits a block this node did not
// produce itself (e.g. fetched from another node sharing the same
// authority).
func (r *Runtime) ApplyExternalBlock(block core.Block) error {
	if err := r.validator.ValidateBlock(block); err != nil {
		return err
	}
	r.onBlockProduced(block)
	return nil
}

// Subscribe registers a new EventBus listener.
func (r *Runtime) Subscribe(buffer int) (uint64, <-chan Event) { return r.bus.Subscribe(buffer) }

// Unsubscribe removes an EventBus listener.
func (r *Runtime) Unsubscribe(id uint64) { r.bus.Unsubscribe(id) }

// Head returns the current chain state.
func (r *Runtime) Head() (core.ChainState, error) { return r.ledger.Head() }

// GetAccount looks up an account by address.
func (r *Runtime) GetAccount(addr core.Address) (core.Account, bool, error) {
	return r.ledger.GetAccount(addr)
}

// GetBlockByHeight returns a committed block by height.
func (r *Runtime) GetBlockByHeight(height uint64) (core.Block, error) {
	return r.ledger.GetBlockByHeight(height)
}

// GetBlockByHash returns a committed block by hash.
func (r *Runtime) GetBlockByHash(hash core.Hash) (core.Block, error) {
	return r.ledger.GetBlockByHash(hash)
}

// GetTransaction returns a committed transaction and the height of the
// block that included it.
func (r *Runtime) GetTransaction(hash core.Hash) (core.Transaction, uint64, error) {
	return r.ledger.GetTransaction(hash)
}

// MempoolCount returns the number of transactions currently queued.
func (r *Runtime) MempoolCount() int { return r.mempool.Count() }

// GetContractStorageValue reads a single key from a deployed contract's
// storage at the current head.
func (r *Runtime) GetContractStorageValue(addr core.Address, key []byte) ([]byte, bool, error) {
	return r.ledger.GetContractStorageValue(addr, key)
}

// CallContractReadOnly executes a contract method against committed state
// without persisting any resulting writes.
func (r *Runtime) CallContractReadOnly(addr core.Address, method string, args []byte, fuelLimit uint64) (vm.Result, error) {
	return r.ledger.CallContractReadOnly(addr, method, args, fuelLimit)
}
