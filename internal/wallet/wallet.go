// Package wallet handles Ed25519 key lifecycle for BaaLS: generating
// signing keys, and persisting them to disk as a passphrase-encrypted
// keystore file rather than plaintext.
package wallet

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"

	"golang.org/x/crypto/ed25519"
	"golang.org/x/crypto/scrypt"

	"github.com/kdsmith18542/baals/internal/core"
)

const keystoreVersion = "BAALSKSv1"

// scrypt cost parameters. N is the 2013-era "interactive" recommendation;
// raised here since a wallet file is opened rarely, not per-request.
const (
	scryptN = 1 << 15
	scryptR = 8
	scryptP = 1
)

// KeyStore is the on-disk JSON shape for an encrypted wallet key. The
// private key never appears in plaintext outside of Load.
type KeyStore struct {
	Version    string `json:"version"`
	PublicKey  string `json:"public_key_hex"`
	Salt       string `json:"salt_hex"`
	Nonce      string `json:"nonce_hex"`
	Ciphertext string `json:"ciphertext_hex"`
}

// Wallet is an unlocked Ed25519 keypair plus its derived address.
type Wallet struct {
	PublicKey  core.PublicKey
	PrivateKey ed25519.PrivateKey
}

// Address returns the canonical wallet address for this key.
func (w Wallet) Address() core.Address { return core.AddressFromPublicKey(w.PublicKey) }

// Generate creates a fresh random Ed25519 keypair.
func Generate() (Wallet, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return Wallet{}, fmt.Errorf("wallet: generate key: %w", err)
	}
	var pk core.PublicKey
	copy(pk[:], pub)
	return Wallet{PublicKey: pk, PrivateKey: priv}, nil
}

// Save encrypts w's private key under passphrase and writes it to path as
// a KeyStore JSON document.
func (w Wallet) Save(path, passphrase string) error {
	salt := make([]byte, 16)
	if _, err := rand.Read(salt); err != nil {
		return fmt.Errorf("wallet: generate salt: %w", err)
	}
	key, err := deriveKey(passphrase, salt)
	if err != nil {
		return err
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return fmt.Errorf("wallet: init cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return fmt.Errorf("wallet: init gcm: %w", err)
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return fmt.Errorf("wallet: generate nonce: %w", err)
	}
	ciphertext := gcm.Seal(nil, nonce, w.PrivateKey, w.PublicKey[:])

	ks := KeyStore{
		Version:    keystoreVersion,
		PublicKey:  hex.EncodeToString(w.PublicKey[:]),
		Salt:       hex.EncodeToString(salt),
		Nonce:      hex.EncodeToString(nonce),
		Ciphertext: hex.EncodeToString(ciphertext),
	}
	raw, err := json.MarshalIndent(ks, "", "  ")
	if err != nil {
		return fmt.Errorf("wallet: marshal keystore: %w", err)
	}
	return os.WriteFile(path, raw, 0o600)
}

// Load reads a KeyStore from path and decrypts it with passphrase. A wrong
// passphrase fails the GCM authentication check rather than silently
// producing garbage key material.
func Load(path, passphrase string) (Wallet, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Wallet{}, fmt.Errorf("wallet: read keystore: %w", err)
	}
	var ks KeyStore
	if err := json.Unmarshal(raw, &ks); err != nil {
		return Wallet{}, fmt.Errorf("wallet: parse keystore: %w", err)
	}
	if ks.Version != keystoreVersion {
		return Wallet{}, fmt.Errorf("wallet: unsupported keystore version %q", ks.Version)
	}

	pub, err := hex.DecodeString(ks.PublicKey)
	if err != nil || len(pub) != core.PublicKeySize {
		return Wallet{}, fmt.Errorf("wallet: malformed public_key_hex")
	}
	salt, err := hex.DecodeString(ks.Salt)
	if err != nil {
		return Wallet{}, fmt.Errorf("wallet: malformed salt_hex")
	}
	nonce, err := hex.DecodeString(ks.Nonce)
	if err != nil {
		return Wallet{}, fmt.Errorf("wallet: malformed nonce_hex")
	}
	ciphertext, err := hex.DecodeString(ks.Ciphertext)
	if err != nil {
		return Wallet{}, fmt.Errorf("wallet: malformed ciphertext_hex")
	}

	key, err := deriveKey(passphrase, salt)
	if err != nil {
		return Wallet{}, err
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return Wallet{}, fmt.Errorf("wallet: init cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return Wallet{}, fmt.Errorf("wallet: init gcm: %w", err)
	}
	plain, err := gcm.Open(nil, nonce, ciphertext, pub)
	if err != nil {
		return Wallet{}, fmt.Errorf("wallet: decrypt keystore: incorrect passphrase or corrupted file")
	}

	var pk core.PublicKey
	copy(pk[:], pub)
	return Wallet{PublicKey: pk, PrivateKey: ed25519.PrivateKey(plain)}, nil
}

func deriveKey(passphrase string, salt []byte) ([]byte, error) {
	key, err := scrypt.Key([]byte(passphrase), salt, scryptN, scryptR, scryptP, 32)
	if err != nil {
		return nil, fmt.Errorf("wallet: derive key: %w", err)
	}
	return key, nil
}
