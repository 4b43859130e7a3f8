package mempool_test

import (
	"errors"
	"testing"

	"github.com/kdsmith18542/baals/internal/core"
	internalerrors "github.com/kdsmith18542/baals/internal/errors"
	"github.com/kdsmith18542/baals/internal/mempool"
	"golang.org/x/crypto/ed25519"
)

type fakeAccounts struct {
	nonces map[core.Address]uint64
}

func (f fakeAccounts) AccountNonce(addr core.Address) (uint64, bool) {
	n, ok := f.nonces[addr]
	return n, ok
}

func signedTx(t *testing.T, nonce uint64, priority uint8) (core.Transaction, core.Address) {
	t.Helper()
	return signedTxAt(t, nonce, priority, 0)
}

func signedTxAt(t *testing.T, nonce uint64, priority uint8, timestamp int64) (core.Transaction, core.Address) {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(nil)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	var sender core.PublicKey
	copy(sender[:], pub)
	tx := core.Transaction{
		Sender:        sender,
		Nonce:         nonce,
		Timestamp:     timestamp,
		RecipientKind: core.RecipientWallet,
		Recipient:     core.Address{0x01},
		PayloadKind:   core.PayloadTransfer,
		Amount:        1,
		GasLimit:      21000,
		Priority:      priority,
	}
	if err := tx.Sign(priv); err != nil {
		t.Fatalf("sign: %v", err)
	}
	return tx, core.AddressFromPublicKey(sender)
}

func TestAdmitAndSelect(t *testing.T) {
	mp := mempool.NewMempool(mempool.Limits{})
	tx, sender := signedTx(t, 1, 1)
	accounts := fakeAccounts{nonces: map[core.Address]uint64{sender: 0}}

	if err := mp.Admit(tx, accounts); err != nil {
		t.Fatalf("admit: %v", err)
	}
	if mp.Count() != 1 {
		t.Fatalf("expected count 1, got %d", mp.Count())
	}
	selected := mp.Select(10)
	if len(selected) != 1 || selected[0].Hash != tx.Hash {
		t.Fatalf("expected selected to contain tx, got %+v", selected)
	}
}

func TestAdmitRejectsDuplicate(t *testing.T) {
	mp := mempool.NewMempool(mempool.Limits{})
	tx, sender := signedTx(t, 1, 1)
	accounts := fakeAccounts{nonces: map[core.Address]uint64{sender: 0}}

	if err := mp.Admit(tx, accounts); err != nil {
		t.Fatalf("first admit: %v", err)
	}
	if err := mp.Admit(tx, accounts); !errors.Is(err, internalerrors.ErrMempoolDuplicate) {
		t.Fatalf("expected ErrMempoolDuplicate, got %v", err)
	}
}

func TestAdmitRejectsNonceTooLow(t *testing.T) {
	mp := mempool.NewMempool(mempool.Limits{})
	tx, sender := signedTx(t, 2, 1)
	accounts := fakeAccounts{nonces: map[core.Address]uint64{sender: 5}}

	if err := mp.Admit(tx, accounts); !errors.Is(err, internalerrors.ErrMempoolNonceTooLow) {
		t.Fatalf("expected ErrMempoolNonceTooLow, got %v", err)
	}
}

func TestAdmitRejectsNonceGap(t *testing.T) {
	mp := mempool.NewMempool(mempool.Limits{MaxNonceGap: 0})
	tx, sender := signedTx(t, 5, 1)
	accounts := fakeAccounts{nonces: map[core.Address]uint64{sender: 0}}

	if err := mp.Admit(tx, accounts); !errors.Is(err, internalerrors.ErrMempoolNonceGap) {
		t.Fatalf("expected ErrMempoolNonceGap, got %v", err)
	}
}

func TestAdmitRejectsBadSignature(t *testing.T) {
	mp := mempool.NewMempool(mempool.Limits{})
	tx, sender := signedTx(t, 1, 1)
	tx.Amount = 999 // invalidates the signature
	accounts := fakeAccounts{nonces: map[core.Address]uint64{sender: 0}}

	if err := mp.Admit(tx, accounts); !errors.Is(err, internalerrors.ErrMempoolBadSignature) {
		t.Fatalf("expected ErrMempoolBadSignature, got %v", err)
	}
}

func TestSelectRespectsPerSenderNonceOrder(t *testing.T) {
	mp := mempool.NewMempool(mempool.Limits{MaxNonceGap: 5})

	pub, priv, err := ed25519.GenerateKey(nil)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	var sender core.PublicKey
	copy(sender[:], pub)
	senderAddr := core.AddressFromPublicKey(sender)
	accounts := fakeAccounts{nonces: map[core.Address]uint64{senderAddr: 0}}

	mk := func(nonce uint64) core.Transaction {
		tx := core.Transaction{
			Sender: sender, Nonce: nonce, RecipientKind: core.RecipientWallet,
			Recipient: core.Address{0x01}, PayloadKind: core.PayloadTransfer,
			Amount: 1, GasLimit: 21000, Priority: 1,
		}
		if err := tx.Sign(priv); err != nil {
			t.Fatalf("sign: %v", err)
		}
		return tx
	}

	// Admit out of nonce order (2 before 1); Select must still return them
	// in ascending nonce order regardless of admission order.
	tx2, tx1 := mk(2), mk(1)
	if err := mp.Admit(tx2, accounts); err != nil {
		t.Fatalf("admit tx2: %v", err)
	}
	if err := mp.Admit(tx1, accounts); err != nil {
		t.Fatalf("admit tx1: %v", err)
	}

	selected := mp.Select(10)
	if len(selected) != 2 {
		t.Fatalf("expected 2 selected, got %d", len(selected))
	}
	if selected[0].Nonce != 1 || selected[1].Nonce != 2 {
		t.Fatalf("expected nonce order 1,2, got %d,%d", selected[0].Nonce, selected[1].Nonce)
	}
}

// TestSelectOrdersByTimestamp exercises Select's secondary key: among
// equal-priority transactions, the earlier creation Timestamp wins.
func TestSelectOrdersByTimestamp(t *testing.T) {
	mp := mempool.NewMempool(mempool.Limits{})

	later, senderLater := signedTxAt(t, 1, 1, 200)
	earlier, senderEarlier := signedTxAt(t, 1, 1, 100)
	accounts := fakeAccounts{nonces: map[core.Address]uint64{senderLater: 0, senderEarlier: 0}}

	if err := mp.Admit(later, accounts); err != nil {
		t.Fatalf("admit later: %v", err)
	}
	if err := mp.Admit(earlier, accounts); err != nil {
		t.Fatalf("admit earlier: %v", err)
	}

	selected := mp.Select(10)
	if len(selected) != 2 {
		t.Fatalf("expected 2 selected, got %d", len(selected))
	}
	if selected[0].Hash != earlier.Hash {
		t.Fatalf("expected the earlier-timestamped tx first, got %+v", selected[0])
	}
}

func TestRemove(t *testing.T) {
	mp := mempool.NewMempool(mempool.Limits{})
	tx, sender := signedTx(t, 1, 1)
	accounts := fakeAccounts{nonces: map[core.Address]uint64{sender: 0}}
	if err := mp.Admit(tx, accounts); err != nil {
		t.Fatalf("admit: %v", err)
	}
	mp.Remove(tx.Hash)
	if mp.Count() != 0 {
		t.Fatalf("expected count 0 after remove, got %d", mp.Count())
	}
}

// TestMempoolFullRejectsWhenIncomingWouldBeItsOwnVictim covers the case
// where every queued transaction shares the same (priority, timestamp)
// rank as the incoming one: the incoming transaction would itself be the
// eviction victim, so it is rejected rather than displacing anything.
func TestMempoolFullRejectsWhenIncomingWouldBeItsOwnVictim(t *testing.T) {
	mp := mempool.NewMempool(mempool.Limits{MaxTransactions: 1})
	tx1, sender1 := signedTx(t, 1, 1)
	tx2, sender2 := signedTx(t, 1, 1)
	accounts := fakeAccounts{nonces: map[core.Address]uint64{sender1: 0, sender2: 0}}

	if err := mp.Admit(tx1, accounts); err != nil {
		t.Fatalf("admit tx1: %v", err)
	}
	if err := mp.Admit(tx2, accounts); !errors.Is(err, internalerrors.ErrMempoolFull) {
		t.Fatalf("expected ErrMempoolFull, got %v", err)
	}
	if mp.Count() != 1 {
		t.Fatalf("expected the original tx to remain queued, got count %d", mp.Count())
	}
	if _, ok := mp.Get(tx1.Hash); !ok {
		t.Fatalf("expected tx1 to still be queued")
	}
}

// TestMempoolFullEvictsLowerPriorityTransaction covers spec's required
// eviction path: a higher-priority incoming transaction displaces the
// lowest-ranked queued one instead of being rejected outright.
func TestMempoolFullEvictsLowerPriorityTransaction(t *testing.T) {
	mp := mempool.NewMempool(mempool.Limits{MaxTransactions: 1})
	low, senderLow := signedTx(t, 1, 1)
	high, senderHigh := signedTx(t, 1, 9)
	accounts := fakeAccounts{nonces: map[core.Address]uint64{senderLow: 0, senderHigh: 0}}

	if err := mp.Admit(low, accounts); err != nil {
		t.Fatalf("admit low: %v", err)
	}
	if err := mp.Admit(high, accounts); err != nil {
		t.Fatalf("expected high-priority tx to evict low-priority tx, got %v", err)
	}
	if mp.Count() != 1 {
		t.Fatalf("expected count to stay at capacity 1, got %d", mp.Count())
	}
	if _, ok := mp.Get(low.Hash); ok {
		t.Fatalf("expected low-priority tx to have been evicted")
	}
	if _, ok := mp.Get(high.Hash); !ok {
		t.Fatalf("expected high-priority tx to be admitted")
	}
}
