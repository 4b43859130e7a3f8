package runtime_test

import (
	"testing"
	"time"

	"golang.org/x/crypto/ed25519"

	"github.com/kdsmith18542/baals/internal/core"
	"github.com/kdsmith18542/baals/internal/ledger"
	"github.com/kdsmith18542/baals/internal/runtime"
)

func genKey(t *testing.T) (core.PublicKey, ed25519.PrivateKey) {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(nil)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	var pk core.PublicKey
	copy(pk[:], pub)
	return pk, priv
}

func newTestRuntime(t *testing.T, withAuthority bool) *runtime.Runtime {
	t.Helper()
	authPub, authPriv := genKey(t)
	cfg := runtime.Config{
		DataDir:       t.TempDir(),
		BlockInterval: 20 * time.Millisecond,
		Ledger:        ledger.Config{AllowImplicitWalletCreation: true},
	}
	if withAuthority {
		cfg.AuthorityPublicKey = authPub
		cfg.AuthoritySigningKey = authPriv
	}
	r, err := runtime.Open(cfg)
	if err != nil {
		t.Fatalf("open runtime: %v", err)
	}
	t.Cleanup(func() { r.Stop() })
	return r
}

func TestRuntimeProduceBlockOnDemand(t *testing.T) {
	r := newTestRuntime(t, true)

	block, err := r.ProduceBlock()
	if err != nil {
		t.Fatalf("produce block: %v", err)
	}
	if block.Header.Height != 1 {
		t.Fatalf("expected height 1, got %d", block.Header.Height)
	}

	head, err := r.Head()
	if err != nil {
		t.Fatalf("head: %v", err)
	}
	if head.LatestHeight != 1 {
		t.Fatalf("expected head height 1, got %d", head.LatestHeight)
	}
}

func TestRuntimeWithoutAuthorityCannotPropose(t *testing.T) {
	r := newTestRuntime(t, false)
	if _, err := r.ProduceBlock(); err == nil {
		t.Fatal("expected error producing a block without a signing key")
	}
}

func TestRuntimeSubmitAndEventBus(t *testing.T) {
	r := newTestRuntime(t, true)
	_, events := r.Subscribe(8)

	senderPub, senderPriv := genKey(t)
	tx := core.Transaction{
		Sender: senderPub, Nonce: 1, RecipientKind: core.RecipientWallet,
		Recipient: core.Address{0xCC}, PayloadKind: core.PayloadTransfer,
		Amount: 0, GasLimit: 21000, Priority: 1,
	}
	if err := tx.Sign(senderPriv); err != nil {
		t.Fatalf("sign: %v", err)
	}
	if err := r.Submit(tx); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if r.MempoolCount() != 1 {
		t.Fatalf("expected mempool count 1, got %d", r.MempoolCount())
	}

	select {
	case evt := <-events:
		if evt.Kind != runtime.EventTxAdmitted {
			t.Fatalf("expected EventTxAdmitted, got %v", evt.Kind)
		}
	case <-time.After(time.Second):
		t.Fatal("expected tx-admitted event")
	}

	block, err := r.ProduceBlock()
	if err != nil {
		t.Fatalf("produce block: %v", err)
	}
	if len(block.Transactions) != 1 {
		t.Fatalf("expected 1 tx in block, got %d", len(block.Transactions))
	}

	select {
	case evt := <-events:
		if evt.Kind != runtime.EventBlockCommitted {
			t.Fatalf("expected EventBlockCommitted, got %v", evt.Kind)
		}
	case <-time.After(time.Second):
		t.Fatal("expected block-committed event")
	}
}

func TestRuntimeStartProducesBlocksOnTimer(t *testing.T) {
	r := newTestRuntime(t, true)
	r.Start()

	deadline := time.After(2 * time.Second)
	for {
		head, err := r.Head()
		if err != nil {
			t.Fatalf("head: %v", err)
		}
		if head.LatestHeight >= 1 {
			return
		}
		select {
		case <-deadline:
			t.Fatal("expected at least one block to be produced via the timer loop")
		case <-time.After(10 * time.Millisecond):
		}
	}
}
