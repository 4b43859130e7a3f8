package rpc_test

import (
	"testing"
	"time"

	"golang.org/x/crypto/ed25519"

	"github.com/kdsmith18542/baals/internal/core"
	"github.com/kdsmith18542/baals/internal/ledger"
	"github.com/kdsmith18542/baals/internal/rpc"
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

func newTestService(t *testing.T) *rpc.Service {
	t.Helper()
	authPub, authPriv := genKey(t)
	r, err := runtime.Open(runtime.Config{
		DataDir: t.TempDir(), BlockInterval: 20 * time.Millisecond,
		AuthorityPublicKey: authPub, AuthoritySigningKey: authPriv,
		Ledger: ledger.Config{AllowImplicitWalletCreation: true},
	})
	if err != nil {
		t.Fatalf("open runtime: %v", err)
	}
	t.Cleanup(func() { r.Stop() })
	return rpc.NewService(r)
}

func TestQueryHeadReflectsGenesis(t *testing.T) {
	s := newTestService(t)
	head, err := s.QueryHead()
	if err != nil {
		t.Fatalf("query head: %v", err)
	}
	if head.LatestHeight != 0 {
		t.Fatalf("expected genesis height 0, got %d", head.LatestHeight)
	}
}

func TestProduceAndQueryBlock(t *testing.T) {
	s := newTestService(t)
	block, err := s.ProduceBlock()
	if err != nil {
		t.Fatalf("produce block: %v", err)
	}
	if block.Height != 1 {
		t.Fatalf("expected height 1, got %d", block.Height)
	}

	fetched, err := s.QueryBlockByHeight(1)
	if err != nil {
		t.Fatalf("query block: %v", err)
	}
	if fetched.Hash != block.Hash {
		t.Fatalf("expected hash %s, got %s", block.Hash, fetched.Hash)
	}
}

func TestQueryAccountMalformedAddressMapsToExitCodeOne(t *testing.T) {
	s := newTestService(t)
	_, err := s.QueryAccount("00000000000000000000000000000000000000000000000000000000000000")
	if err == nil {
		t.Fatal("expected malformed-address error for a wrong-length hex string")
	}
	if rpc.ExitCode(err) != 1 {
		t.Fatalf("expected exit code 1, got %d", rpc.ExitCode(err))
	}
}

func TestQueryAccountForUnknownAddress(t *testing.T) {
	s := newTestService(t)
	var addr core.Address
	addr[0] = 0xAB
	_, err := s.QueryAccount(addr.String())
	if err == nil {
		t.Fatal("expected an error for an unknown account")
	}
	if rpc.ExitCode(err) != 1 {
		t.Fatalf("expected exit code 1, got %d", rpc.ExitCode(err))
	}
}

func TestSubmitAndQueryTransaction(t *testing.T) {
	s := newTestService(t)
	senderPub, senderPriv := genKey(t)
	tx := core.Transaction{
		Sender: senderPub, Nonce: 1, RecipientKind: core.RecipientWallet,
		Recipient: core.Address{0xDD}, PayloadKind: core.PayloadTransfer,
		Amount: 0, GasLimit: 21000, Priority: 1,
	}
	if err := tx.Sign(senderPriv); err != nil {
		t.Fatalf("sign: %v", err)
	}
	if err := s.SubmitTransaction(tx); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if _, err := s.ProduceBlock(); err != nil {
		t.Fatalf("produce block: %v", err)
	}

	view, height, err := s.QueryTransaction(tx.Hash.String())
	if err != nil {
		t.Fatalf("query tx: %v", err)
	}
	if height != 1 {
		t.Fatalf("expected height 1, got %d", height)
	}
	if view.PayloadKind != "Transfer" {
		t.Fatalf("expected payload kind Transfer, got %s", view.PayloadKind)
	}
}

func TestExitCodeMapping(t *testing.T) {
	if rpc.ExitCode(nil) != 0 {
		t.Fatal("expected nil error to map to exit code 0")
	}
}
