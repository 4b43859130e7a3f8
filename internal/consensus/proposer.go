package consensus

import (
	"fmt"
	"time"

	"golang.org/x/crypto/ed25519"

	"github.com/kdsmith18542/baals/internal/core"
	"github.com/kdsmith18542/baals/internal/ledger"
	"github.com/kdsmith18542/baals/internal/mempool"
)

// Proposer builds and signs new blocks: pull a candidate set from the
// mempool, run them through the ledger's produce path to learn the
// resulting roots, then sign a header over the result.
type Proposer struct {
	signKey        ed25519.PrivateKey
	authority      core.PublicKey
	ledger         *ledger.Ledger
	mempool        *mempool.Mempool
	maxTxsPerBlock int
}

// NewProposer builds a Proposer. signKey must correspond to authority.
func NewProposer(signKey ed25519.PrivateKey, authority core.PublicKey, l *ledger.Ledger, mp *mempool.Mempool, maxTxsPerBlock int) *Proposer {
	if maxTxsPerBlock <= 0 {
		maxTxsPerBlock = DefaultMaxTxsPerBlock
	}
	return &Proposer{
		signKey: signKey, authority: authority,
		ledger: l, mempool: mp, maxTxsPerBlock: maxTxsPerBlock,
	}
}

// GenerateBlock selects mempool candidates, applies them through the
// ledger's produce path, and returns a signed, committed block. An empty
// mempool still produces a block with zero transactions: BaaLS's block
// interval is a heartbeat, not a pure batching trigger.
func (p *Proposer) GenerateBlock() (core.Block, error) {
	head, err := p.ledger.Head()
	if err != nil {
		return core.Block{}, fmt.Errorf("read chain head: %w", err)
	}

	candidates := p.mempool.Select(p.maxTxsPerBlock)
	height := head.LatestHeight + 1
	timestamp := time.Now().Unix()

	accountsRoot, txRoot, accepted, err := p.ledger.ProduceBlockBody(candidates, height, timestamp)
	if err != nil {
		return core.Block{}, fmt.Errorf("produce block body: %w", err)
	}

	header := core.BlockHeader{
		Height:       height,
		Timestamp:    timestamp,
		PrevHash:     head.LatestHash,
		TxRoot:       txRoot,
		AccountsRoot: accountsRoot,
		Signer:       p.authority,
	}
	header.Sign(p.signKey)
	block := core.Block{Header: header, Transactions: accepted}

	if err := p.ledger.Commit(block); err != nil {
		return core.Block{}, fmt.Errorf("commit produced block: %w", err)
	}
	for _, tx := range accepted {
		p.mempool.Remove(tx.Hash)
	}
	return block, nil
}
