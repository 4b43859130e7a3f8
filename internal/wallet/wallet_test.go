package wallet_test

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/kdsmith18542/baals/internal/wallet"
)

func TestGenerateProducesValidKeypair(t *testing.T) {
	w, err := wallet.Generate()
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if len(w.PrivateKey) == 0 {
		t.Fatal("expected non-empty private key")
	}
	if w.Address().IsZero() {
		t.Fatal("expected non-zero derived address")
	}
}

func TestSaveAndLoadRoundTrip(t *testing.T) {
	w, err := wallet.Generate()
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	path := filepath.Join(t.TempDir(), "wallet.json")
	if err := w.Save(path, "correct horse battery staple"); err != nil {
		t.Fatalf("save: %v", err)
	}

	loaded, err := wallet.Load(path, "correct horse battery staple")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded.PublicKey != w.PublicKey {
		t.Fatal("expected loaded public key to match original")
	}
	if !bytes.Equal(loaded.PrivateKey, w.PrivateKey) {
		t.Fatal("expected loaded private key to match original")
	}
}

func TestLoadRejectsWrongPassphrase(t *testing.T) {
	w, err := wallet.Generate()
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	path := filepath.Join(t.TempDir(), "wallet.json")
	if err := w.Save(path, "correct passphrase"); err != nil {
		t.Fatalf("save: %v", err)
	}
	if _, err := wallet.Load(path, "wrong passphrase"); err == nil {
		t.Fatal("expected an error loading with the wrong passphrase")
	}
}
