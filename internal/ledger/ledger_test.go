package ledger_test

import (
	"errors"
	"testing"
	"time"

	"golang.org/x/crypto/ed25519"

	"github.com/kdsmith18542/baals/internal/core"
	internalerrors "github.com/kdsmith18542/baals/internal/errors"
	"github.com/kdsmith18542/baals/internal/ledger"
	"github.com/kdsmith18542/baals/internal/storage"
)

func openTestLedger(t *testing.T, cfg ledger.Config) *ledger.Ledger {
	t.Helper()
	store, err := storage.Open(t.TempDir())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	l, err := ledger.Open(store, cfg)
	if err != nil {
		t.Fatalf("open ledger: %v", err)
	}
	return l
}

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

// signedBlock builds and signs a block atop prev, containing txs, using the
// authority key authPriv/authPub as both proposer and (trivially) the only
// consensus participant.
func signedBlock(authPub core.PublicKey, authPriv ed25519.PrivateKey, prev core.ChainState, accountsRoot, txRoot core.Hash, txs []core.Transaction) core.Block {
	header := core.BlockHeader{
		Height:       prev.LatestHeight + 1,
		Timestamp:    time.Now().Unix(),
		PrevHash:     prev.LatestHash,
		TxRoot:       txRoot,
		AccountsRoot: accountsRoot,
		Signer:       authPub,
	}
	header.Sign(authPriv)
	return core.Block{Header: header, Transactions: txs}
}

func TestOpenBootstrapsGenesis(t *testing.T) {
	l := openTestLedger(t, ledger.Config{})
	head, err := l.Head()
	if err != nil {
		t.Fatalf("head: %v", err)
	}
	if head.LatestHeight != 0 || !head.LatestHash.IsZero() {
		t.Fatalf("expected genesis state, got %+v", head)
	}
}

func TestApplyBlockTransferRoundTrip(t *testing.T) {
	l := openTestLedger(t, ledger.Config{AllowImplicitWalletCreation: true})
	authPub, authPriv := genKey(t)
	senderPub, senderPriv := genKey(t)
	sender := core.AddressFromPublicKey(senderPub)
	recipient := core.Address{0xAA}

	// Credit the sender out-of-band isn't possible without a mint path, so
	// exercise a zero-amount transfer: it still drives nonce advancement
	// and account creation through the full pipeline.
	tx := core.Transaction{
		Sender: senderPub, Nonce: 1, RecipientKind: core.RecipientWallet,
		Recipient: recipient, PayloadKind: core.PayloadTransfer,
		Amount: 0, GasLimit: 21000, Priority: 1,
	}
	if err := tx.Sign(senderPriv); err != nil {
		t.Fatalf("sign: %v", err)
	}

	head, _ := l.Head()
	accountsRoot, txRoot, accepted, err := l.ProduceBlockBody([]core.Transaction{tx}, head.LatestHeight+1, time.Now().Unix())
	if err != nil {
		t.Fatalf("produce: %v", err)
	}
	if len(accepted) != 1 {
		t.Fatalf("expected tx accepted, got %d", len(accepted))
	}

	block := signedBlock(authPub, authPriv, head, accountsRoot, txRoot, accepted)
	if err := l.Commit(block); err != nil {
		t.Fatalf("commit: %v", err)
	}

	newHead, err := l.Head()
	if err != nil {
		t.Fatalf("head: %v", err)
	}
	if newHead.LatestHeight != 1 {
		t.Fatalf("expected height 1, got %d", newHead.LatestHeight)
	}

	senderAcct, ok, err := l.GetAccount(sender)
	if err != nil || !ok {
		t.Fatalf("expected sender account to exist, err=%v ok=%v", err, ok)
	}
	if senderAcct.Nonce != 1 {
		t.Fatalf("expected nonce 1, got %d", senderAcct.Nonce)
	}

	got, err := l.GetBlockByHash(block.Header.Hash)
	if err != nil {
		t.Fatalf("get block by hash: %v", err)
	}
	if got.Header.Height != 1 {
		t.Fatalf("unexpected block height %d", got.Header.Height)
	}

	_, _, err = l.GetTransaction(tx.Hash)
	if err != nil {
		t.Fatalf("get transaction: %v", err)
	}
}

func TestApplyBlockRejectsBadLinkage(t *testing.T) {
	l := openTestLedger(t, ledger.Config{})
	authPub, authPriv := genKey(t)

	head, _ := l.Head()
	header := core.BlockHeader{
		Height:       head.LatestHeight + 1,
		Timestamp:    time.Now().Unix(),
		PrevHash:     core.Hash{0x01}, // wrong
		TxRoot:       core.ComputeTxRoot(nil),
		AccountsRoot: head.AccountsRoot,
		Signer:       authPub,
	}
	header.Sign(authPriv)
	block := core.Block{Header: header}

	if err := l.ApplyBlock(block); !errors.Is(err, internalerrors.ErrConsensusBadLinkage) {
		t.Fatalf("expected ErrConsensusBadLinkage, got %v", err)
	}
}

func TestApplyBlockRejectsBadSignature(t *testing.T) {
	l := openTestLedger(t, ledger.Config{})
	authPub, _ := genKey(t)
	_, otherPriv := genKey(t)

	head, _ := l.Head()
	header := core.BlockHeader{
		Height:       head.LatestHeight + 1,
		Timestamp:    time.Now().Unix(),
		PrevHash:     head.LatestHash,
		TxRoot:       core.ComputeTxRoot(nil),
		AccountsRoot: head.AccountsRoot,
		Signer:       authPub, // signer field says authPub...
	}
	header.Sign(otherPriv) // ...but it was signed by someone else
	block := core.Block{Header: header}

	if err := l.ApplyBlock(block); !errors.Is(err, internalerrors.ErrConsensusBadSignature) {
		t.Fatalf("expected ErrConsensusBadSignature, got %v", err)
	}
}

func TestApplyBlockRejectsWrongHeight(t *testing.T) {
	l := openTestLedger(t, ledger.Config{})
	authPub, authPriv := genKey(t)

	head, _ := l.Head()
	header := core.BlockHeader{
		Height:       head.LatestHeight + 5, // wrong
		Timestamp:    time.Now().Unix(),
		PrevHash:     head.LatestHash,
		TxRoot:       core.ComputeTxRoot(nil),
		AccountsRoot: head.AccountsRoot,
		Signer:       authPub,
	}
	header.Sign(authPriv)
	block := core.Block{Header: header}

	if err := l.ApplyBlock(block); !errors.Is(err, internalerrors.ErrLedgerBadHeader) {
		t.Fatalf("expected ErrLedgerBadHeader, got %v", err)
	}
}

func TestApplyOneTxRejectsUnknownAccountWithoutImplicitCreation(t *testing.T) {
	l := openTestLedger(t, ledger.Config{AllowImplicitWalletCreation: false})
	authPub, authPriv := genKey(t)
	senderPub, senderPriv := genKey(t)

	tx := core.Transaction{
		Sender: senderPub, Nonce: 1, RecipientKind: core.RecipientWallet,
		Recipient: core.Address{0xAA}, PayloadKind: core.PayloadTransfer,
		Amount: 0, GasLimit: 21000,
	}
	if err := tx.Sign(senderPriv); err != nil {
		t.Fatalf("sign: %v", err)
	}

	head, _ := l.Head()
	_, txRoot, accepted, err := l.ProduceBlockBody([]core.Transaction{tx}, head.LatestHeight+1, time.Now().Unix())
	if err != nil {
		t.Fatalf("produce: %v", err)
	}
	if len(accepted) != 0 {
		t.Fatalf("expected tx to be dropped by producer, got %d accepted", len(accepted))
	}
	if txRoot != core.ComputeTxRoot(nil) {
		t.Fatalf("expected empty tx root when nothing admitted")
	}
	_ = authPub
	_ = authPriv
}

// TestApplyBlockConfinesInsufficientBalanceRevert exercises spec's revert
// confinement: a transaction that reverts (here, for insufficient balance)
// still advances the sender's nonce, but every other tx in the same block
// applies normally.
func TestApplyBlockConfinesInsufficientBalanceRevert(t *testing.T) {
	l := openTestLedger(t, ledger.Config{AllowImplicitWalletCreation: true})
	authPub, authPriv := genKey(t)
	brokePub, brokePriv := genKey(t)
	okPub, okPriv := genKey(t)
	broke := core.AddressFromPublicKey(brokePub)
	ok2 := core.AddressFromPublicKey(okPub)

	brokeTx := core.Transaction{
		Sender: brokePub, Nonce: 1, RecipientKind: core.RecipientWallet,
		Recipient: core.Address{0xAA}, PayloadKind: core.PayloadTransfer,
		Amount: 500, GasLimit: 21000,
	}
	if err := brokeTx.Sign(brokePriv); err != nil {
		t.Fatalf("sign: %v", err)
	}
	okTx := core.Transaction{
		Sender: okPub, Nonce: 1, RecipientKind: core.RecipientWallet,
		Recipient: core.Address{0xBB}, PayloadKind: core.PayloadTransfer,
		Amount: 0, GasLimit: 21000,
	}
	if err := okTx.Sign(okPriv); err != nil {
		t.Fatalf("sign: %v", err)
	}

	head, _ := l.Head()
	accountsRoot, txRoot, accepted, err := l.ProduceBlockBody([]core.Transaction{brokeTx, okTx}, head.LatestHeight+1, time.Now().Unix())
	if err != nil {
		t.Fatalf("produce: %v", err)
	}
	if len(accepted) != 2 {
		t.Fatalf("expected both txs in the produced block, got %d", len(accepted))
	}

	block := signedBlock(authPub, authPriv, head, accountsRoot, txRoot, accepted)
	if err := l.Commit(block); err != nil {
		t.Fatalf("commit: %v", err)
	}

	brokeAcct, ok, err := l.GetAccount(broke)
	if err != nil || !ok {
		t.Fatalf("expected broke account to exist, err=%v ok=%v", err, ok)
	}
	if brokeAcct.Nonce != 1 {
		t.Fatalf("expected reverted tx's nonce increment to persist, got %d", brokeAcct.Nonce)
	}
	if brokeAcct.Balance != 0 {
		t.Fatalf("expected reverted transfer to leave balance untouched, got %d", brokeAcct.Balance)
	}

	okAcct, ok, err := l.GetAccount(ok2)
	if err != nil || !ok {
		t.Fatalf("expected ok account to exist, err=%v ok=%v", err, ok)
	}
	if okAcct.Nonce != 1 {
		t.Fatalf("expected the following tx to apply normally, got nonce %d", okAcct.Nonce)
	}
}

func TestApplyOneTxRejectsBadNonce(t *testing.T) {
	l := openTestLedger(t, ledger.Config{AllowImplicitWalletCreation: true})
	senderPub, senderPriv := genKey(t)

	tx := core.Transaction{
		Sender: senderPub, Nonce: 0, RecipientKind: core.RecipientWallet,
		Recipient: core.Address{0xAA}, PayloadKind: core.PayloadTransfer,
		Amount: 0, GasLimit: 21000,
	}
	if err := tx.Sign(senderPriv); err != nil {
		t.Fatalf("sign: %v", err)
	}

	head, _ := l.Head()
	_, _, accepted, err := l.ProduceBlockBody([]core.Transaction{tx}, head.LatestHeight+1, time.Now().Unix())
	if err != nil {
		t.Fatalf("produce: %v", err)
	}
	if len(accepted) != 0 {
		t.Fatalf("expected a fresh account's first tx with nonce 0 to be rejected (nonces start at 1), got %d accepted", len(accepted))
	}
}

func TestApplyBlockRejectsNonMonotonicTimestamp(t *testing.T) {
	l := openTestLedger(t, ledger.Config{})
	authPub, authPriv := genKey(t)

	head, _ := l.Head()
	header := core.BlockHeader{
		Height:       head.LatestHeight + 1,
		Timestamp:    head.LatestTimestamp, // not strictly greater
		PrevHash:     head.LatestHash,
		TxRoot:       core.ComputeTxRoot(nil),
		AccountsRoot: head.AccountsRoot,
		Signer:       authPub,
	}
	header.Sign(authPriv)
	block := core.Block{Header: header}

	if err := l.ApplyBlock(block); !errors.Is(err, internalerrors.ErrConsensusBadTimestamp) {
		t.Fatalf("expected ErrConsensusBadTimestamp, got %v", err)
	}
}

func TestApplyBlockRejectsTimestampBeyondSkewTolerance(t *testing.T) {
	l := openTestLedger(t, ledger.Config{})
	authPub, authPriv := genKey(t)

	head, _ := l.Head()
	header := core.BlockHeader{
		Height:       head.LatestHeight + 1,
		Timestamp:    time.Now().Add(time.Hour).Unix(), // far beyond default skew tolerance
		PrevHash:     head.LatestHash,
		TxRoot:       core.ComputeTxRoot(nil),
		AccountsRoot: head.AccountsRoot,
		Signer:       authPub,
	}
	header.Sign(authPriv)
	block := core.Block{Header: header}

	if err := l.ApplyBlock(block); !errors.Is(err, internalerrors.ErrConsensusBadTimestamp) {
		t.Fatalf("expected ErrConsensusBadTimestamp, got %v", err)
	}
}

func TestAccountNonceImplementsMempoolView(t *testing.T) {
	l := openTestLedger(t, ledger.Config{AllowImplicitWalletCreation: true})
	senderPub, _ := genKey(t)
	sender := core.AddressFromPublicKey(senderPub)

	if _, ok := l.AccountNonce(sender); ok {
		t.Fatal("expected unknown account to report not-found")
	}
}
