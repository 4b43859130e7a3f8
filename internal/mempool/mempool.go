// Package mempool holds transactions waiting to be included in a block: an
// admission pipeline that screens incoming transactions, and a selection
// routine the consensus engine pulls candidates from.
package mempool

import (
	"bytes"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/kdsmith18542/baals/internal/core"
	internalerrors "github.com/kdsmith18542/baals/internal/errors"
)

// Limits bounds what the mempool will admit. Zero values fall back to
// sensible defaults via NewMempool.
type Limits struct {
	MaxTransactions int
	MaxGasLimit     uint64
	MaxTxSize       int
	MaxNonceGap     uint64 // 0 disallows any gap: only the next expected nonce is admitted
	Expiry          time.Duration
}

func (l Limits) withDefaults() Limits {
	if l.MaxTransactions == 0 {
		l.MaxTransactions = 10_000
	}
	if l.MaxGasLimit == 0 {
		l.MaxGasLimit = 10_000_000
	}
	if l.MaxTxSize == 0 {
		l.MaxTxSize = 256 * 1024
	}
	if l.Expiry == 0 {
		l.Expiry = 1 * time.Hour
	}
	return l
}

// AccountView is the narrow read-only slice of ledger state the mempool
// needs to admit a transaction: the sender's current on-chain nonce, so it
// can tell a replay from a legitimately queued follow-up.
type AccountView interface {
	AccountNonce(addr core.Address) (uint64, bool)
}

type entry struct {
	tx       core.Transaction
	admitted time.Time
}

// Mempool is a map from tx hash to the pending transaction, plus a
// sender-indexed view so Select can walk each sender's queue in nonce
// order.
type Mempool struct {
	mu      sync.RWMutex
	limits  Limits
	byHash  map[core.Hash]*entry
	bySender map[core.Address]map[uint64]core.Hash // sender -> nonce -> tx hash
}

func NewMempool(limits Limits) *Mempool {
	return &Mempool{
		limits:   limits.withDefaults(),
		byHash:   make(map[core.Hash]*entry),
		bySender: make(map[core.Address]map[uint64]core.Hash),
	}
}

// Admit runs a new transaction through the admission pipeline: signature
// verification, size/gas caps, duplicate rejection, nonce-gap policy
// against the account view's current chain nonce, and — only once a
// transaction has cleared every other check — capacity eviction.
func (mp *Mempool) Admit(tx core.Transaction, accounts AccountView) error {
	if len(tx.Encode()) > mp.limits.MaxTxSize {
		return fmt.Errorf("%w: transaction exceeds max size", internalerrors.ErrMempoolMalformed)
	}
	if tx.GasLimit == 0 || tx.GasLimit > mp.limits.MaxGasLimit {
		return fmt.Errorf("%w: gas limit out of range", internalerrors.ErrMempoolMalformed)
	}
	if !tx.Verify() {
		return internalerrors.ErrMempoolBadSignature
	}

	mp.mu.Lock()
	defer mp.mu.Unlock()

	if _, exists := mp.byHash[tx.Hash]; exists {
		return internalerrors.ErrMempoolDuplicate
	}

	sender := tx.SenderAddress()
	chainNonce, _ := accounts.AccountNonce(sender)
	expected := chainNonce + 1
	if tx.Nonce < expected {
		return internalerrors.ErrMempoolNonceTooLow
	}
	gap := tx.Nonce - expected
	if gap > mp.limits.MaxNonceGap {
		return internalerrors.ErrMempoolNonceGap
	}
	if queue, ok := mp.bySender[sender]; ok {
		if _, taken := queue[tx.Nonce]; taken {
			return fmt.Errorf("%w: nonce %d already queued for sender", internalerrors.ErrMempoolDuplicate, tx.Nonce)
		}
	}

	if len(mp.byHash) >= mp.limits.MaxTransactions {
		victimHash, victimTx, ok := mp.worstQueuedLocked()
		if !ok || !lowerEvictionKey(victimTx, tx) {
			// The incoming transaction would itself be the lowest-ranked
			// entry once admitted: reject it instead of evicting anything.
			return internalerrors.ErrMempoolFull
		}
		mp.removeLocked(victimHash)
	}

	mp.byHash[tx.Hash] = &entry{tx: tx, admitted: time.Now()}
	if mp.bySender[sender] == nil {
		mp.bySender[sender] = make(map[uint64]core.Hash)
	}
	mp.bySender[sender][tx.Nonce] = tx.Hash
	return nil
}

// worstQueuedLocked returns the currently queued transaction with the
// lowest (priority, -timestamp) key: the eviction candidate when the
// mempool is at capacity. Caller must hold mp.mu.
func (mp *Mempool) worstQueuedLocked() (core.Hash, core.Transaction, bool) {
	var worstHash core.Hash
	var worst core.Transaction
	found := false
	for h, e := range mp.byHash {
		if !found || lowerEvictionKey(e.tx, worst) {
			worstHash, worst, found = h, e.tx, true
		}
	}
	return worstHash, worst, found
}

// lowerEvictionKey reports whether a ranks below b under spec's eviction
// order: (priority, -timestamp) ascending. Lower priority always loses;
// among equal priorities, the more recently created transaction (the
// larger Timestamp, i.e. the smaller -timestamp) loses, so an established
// queue is not displaced by a fresh burst of same-priority arrivals.
func lowerEvictionKey(a, b core.Transaction) bool {
	if a.Priority != b.Priority {
		return a.Priority < b.Priority
	}
	return a.Timestamp > b.Timestamp
}

// Remove drops a transaction, typically after it has been included in a
// block.
func (mp *Mempool) Remove(hash core.Hash) {
	mp.mu.Lock()
	defer mp.mu.Unlock()
	mp.removeLocked(hash)
}

func (mp *Mempool) removeLocked(hash core.Hash) {
	e, ok := mp.byHash[hash]
	if !ok {
		return
	}
	delete(mp.byHash, hash)
	sender := e.tx.SenderAddress()
	if queue, ok := mp.bySender[sender]; ok {
		delete(queue, e.tx.Nonce)
		if len(queue) == 0 {
			delete(mp.bySender, sender)
		}
	}
}

// ExpireOlderThan drops every transaction admitted before the cutoff and
// returns how many were swept. The runtime's expiry loop calls this (via
// Expire) on a timer
// so a sender that never follows up with a contiguous nonce run doesn't
// hold a permanent slot.
func (mp *Mempool) ExpireOlderThan(cutoff time.Time) int {
	mp.mu.Lock()
	defer mp.mu.Unlock()
	var expired []core.Hash
	for h, e := range mp.byHash {
		if e.admitted.Before(cutoff) {
			expired = append(expired, h)
		}
	}
	for _, h := range expired {
		mp.removeLocked(h)
	}
	return len(expired)
}

// Expire sweeps transactions older than the configured expiry duration,
// measured from now.
func (mp *Mempool) Expire() int {
	return mp.ExpireOlderThan(time.Now().Add(-mp.limits.Expiry))
}

// Select returns up to limit candidate transactions for the next block:
// each sender's own queue is walked in strict nonce order (a later nonce
// is never selected ahead of an earlier one from the same sender), and
// senders are interleaved by priority descending, then each transaction's
// own creation timestamp ascending, then sender address lexicographically.
func (mp *Mempool) Select(limit int) []core.Transaction {
	mp.mu.RLock()
	defer mp.mu.RUnlock()

	type senderQueue struct {
		sender core.Address
		nonces []uint64
		next   int
	}
	queues := make([]*senderQueue, 0, len(mp.bySender))
	for sender, byNonce := range mp.bySender {
		nonces := make([]uint64, 0, len(byNonce))
		for n := range byNonce {
			nonces = append(nonces, n)
		}
		sort.Slice(nonces, func(i, j int) bool { return nonces[i] < nonces[j] })
		queues = append(queues, &senderQueue{sender: sender, nonces: nonces})
	}

	type candidate struct {
		q  *senderQueue
		tx core.Transaction
	}

	var out []core.Transaction
	for len(out) < limit {
		var best *candidate
		for _, q := range queues {
			if q.next >= len(q.nonces) {
				continue
			}
			h := mp.bySender[q.sender][q.nonces[q.next]]
			e := mp.byHash[h]
			if e == nil {
				q.next++
				continue
			}
			if best == nil || higherPriority(e.tx, best.tx) {
				best = &candidate{q: q, tx: e.tx}
			}
		}
		if best == nil {
			break
		}
		out = append(out, best.tx)
		best.q.next++
	}
	return out
}

// higherPriority reports whether a should be selected before b: primary key
// Priority descending, secondary key each transaction's own creation
// Timestamp ascending, tertiary key sender address lexicographic.
func higherPriority(a, b core.Transaction) bool {
	if a.Priority != b.Priority {
		return a.Priority > b.Priority
	}
	if a.Timestamp != b.Timestamp {
		return a.Timestamp < b.Timestamp
	}
	aSender, bSender := a.SenderAddress(), b.SenderAddress()
	return bytes.Compare(aSender[:], bSender[:]) < 0
}

// Count returns the number of transactions currently queued.
func (mp *Mempool) Count() int {
	mp.mu.RLock()
	defer mp.mu.RUnlock()
	return len(mp.byHash)
}

// Get returns a queued transaction by hash, for query and re-broadcast
// purposes.
func (mp *Mempool) Get(hash core.Hash) (core.Transaction, bool) {
	mp.mu.RLock()
	defer mp.mu.RUnlock()
	e, ok := mp.byHash[hash]
	if !ok {
		return core.Transaction{}, false
	}
	return e.tx, true
}
