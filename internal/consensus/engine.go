package consensus

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/kdsmith18542/baals/internal/core"
)

// Engine drives block production on a timer: each tick, it asks the
// Proposer for a new block regardless of whether the mempool has anything
// queued, since BaaLS's block interval is also its liveness heartbeat.
type Engine struct {
	proposer *Proposer
	interval time.Duration
	log      *logrus.Entry

	onBlock func(core.Block)

	stopChan chan struct{}
	wg       sync.WaitGroup
}

// NewEngine builds an Engine around proposer. interval <= 0 falls back to
// DefaultBlockInterval. onBlock, if non-nil, is called synchronously from
// the production loop after each successfully generated block, letting the
// runtime publish it to subscribers without the engine knowing about an
// event bus.
func NewEngine(proposer *Proposer, interval time.Duration, onBlock func(core.Block)) *Engine {
	if interval <= 0 {
		interval = DefaultBlockInterval
	}
	return &Engine{
		proposer: proposer,
		interval: interval,
		onBlock:  onBlock,
		log:      logrus.WithField("component", "consensus"),
		stopChan: make(chan struct{}),
	}
}

// Start begins the engine's production loop in a background goroutine.
func (e *Engine) Start() {
	e.log.Info("starting consensus engine")
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		ticker := time.NewTicker(e.interval)
		defer ticker.Stop()

		for {
			select {
			case <-e.stopChan:
				e.log.Info("consensus engine stopping")
				return
			case <-ticker.C:
				e.produce()
			}
		}
	}()
}

// Stop signals the production loop to exit and waits for it to finish.
func (e *Engine) Stop() {
	close(e.stopChan)
	e.wg.Wait()
}

func (e *Engine) produce() {
	block, err := e.proposer.GenerateBlock()
	if err != nil {
		e.log.WithError(err).Error("block generation failed")
		return
	}
	e.log.WithFields(logrus.Fields{
		"height": block.Header.Height,
		"txs":    len(block.Transactions),
	}).Info("produced block")
	if e.onBlock != nil {
		e.onBlock(block)
	}
}

// ProduceNow triggers block generation outside the regular timer, for
// callers that want an immediate block (e.g. a submission that should not
// wait a full interval) rather than waiting on the next tick.
func (e *Engine) ProduceNow() (core.Block, error) {
	return e.proposer.GenerateBlock()
}
