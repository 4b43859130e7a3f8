package main

import (
	"encoding/hex"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/crypto/ed25519"

	"github.com/kdsmith18542/baals/internal/core"
	"github.com/kdsmith18542/baals/internal/wallet"
)

var walletCmd = &cobra.Command{Use: "wallet", Short: "Manage Ed25519 signing keys"}

var walletCreateCmd = &cobra.Command{
	Use:   "create <keystore-path>",
	Short: "Generate a new keypair and save it as an encrypted keystore",
	Args:  cobra.ExactArgs(1),
	RunE:  runWalletCreate,
}

var walletListCmd = &cobra.Command{
	Use:   "list <dir>",
	Short: "List keystore files in a directory",
	Args:  cobra.ExactArgs(1),
	RunE:  runWalletList,
}

var walletImportCmd = &cobra.Command{
	Use:   "import <keystore-path> <private-key-hex>",
	Short: "Save an existing Ed25519 private key as an encrypted keystore",
	Args:  cobra.ExactArgs(2),
	RunE:  runWalletImport,
}

var walletExportCmd = &cobra.Command{
	Use:   "export <keystore-path>",
	Short: "Print a keystore's address and public key",
	Args:  cobra.ExactArgs(1),
	RunE:  runWalletExport,
}

var walletSignCmd = &cobra.Command{
	Use:   "sign <keystore-path> <tx-json-path>",
	Short: "Sign an unsigned transaction document with a keystore's key",
	Args:  cobra.ExactArgs(2),
	RunE:  runWalletSign,
}

func init() {
	walletExportCmd.Flags().Bool("reveal-private-key", false, "print the raw private key hex (dangerous)")
	walletCmd.AddCommand(walletCreateCmd, walletListCmd, walletImportCmd, walletExportCmd, walletSignCmd)
}

func walletPassphrase(cmd *cobra.Command) (string, error) {
	pass, _ := cmd.Flags().GetString("passphrase")
	if pass == "" {
		pass = os.Getenv("BAALS_WALLET_PASSPHRASE")
	}
	if pass == "" {
		return "", fmt.Errorf("no passphrase supplied (--passphrase or BAALS_WALLET_PASSPHRASE)")
	}
	return pass, nil
}

type walletView struct {
	Address   string `json:"address"`
	PublicKey string `json:"public_key"`
}

func runWalletCreate(cmd *cobra.Command, args []string) error {
	pass, err := walletPassphrase(cmd)
	if err != nil {
		return err
	}
	w, err := wallet.Generate()
	if err != nil {
		return err
	}
	if err := w.Save(args[0], pass); err != nil {
		return err
	}
	return printResult(cmd, walletView{Address: w.Address().String(), PublicKey: hex.EncodeToString(w.PublicKey[:])})
}

func runWalletList(cmd *cobra.Command, args []string) error {
	entries, err := os.ReadDir(args[0])
	if err != nil {
		return err
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return printResult(cmd, names)
}

func runWalletImport(cmd *cobra.Command, args []string) error {
	path, keyHex := args[0], args[1]
	pass, err := walletPassphrase(cmd)
	if err != nil {
		return err
	}
	raw, err := hex.DecodeString(keyHex)
	if err != nil {
		return fmt.Errorf("malformed private key hex: %w", err)
	}
	var priv ed25519.PrivateKey
	switch len(raw) {
	case ed25519.SeedSize:
		priv = ed25519.NewKeyFromSeed(raw)
	case ed25519.PrivateKeySize:
		priv = ed25519.PrivateKey(raw)
	default:
		return fmt.Errorf("private key hex must decode to %d (seed) or %d (full key) bytes, got %d",
			ed25519.SeedSize, ed25519.PrivateKeySize, len(raw))
	}
	pub := priv.Public().(ed25519.PublicKey)
	var pk core.PublicKey
	copy(pk[:], pub)
	w := wallet.Wallet{PublicKey: pk, PrivateKey: priv}
	if err := w.Save(path, pass); err != nil {
		return err
	}
	return printResult(cmd, walletView{Address: w.Address().String(), PublicKey: hex.EncodeToString(w.PublicKey[:])})
}

func runWalletExport(cmd *cobra.Command, args []string) error {
	pass, err := walletPassphrase(cmd)
	if err != nil {
		return err
	}
	w, err := wallet.Load(args[0], pass)
	if err != nil {
		return err
	}
	reveal, _ := cmd.Flags().GetBool("reveal-private-key")
	if !reveal {
		return printResult(cmd, walletView{Address: w.Address().String(), PublicKey: hex.EncodeToString(w.PublicKey[:])})
	}
	return printResult(cmd, struct {
		walletView
		PrivateKey string `json:"private_key"`
	}{
		walletView: walletView{Address: w.Address().String(), PublicKey: hex.EncodeToString(w.PublicKey[:])},
		PrivateKey: hex.EncodeToString(w.PrivateKey),
	})
}

func runWalletSign(cmd *cobra.Command, args []string) error {
	keystorePath, txPath := args[0], args[1]
	pass, err := walletPassphrase(cmd)
	if err != nil {
		return err
	}
	w, err := wallet.Load(keystorePath, pass)
	if err != nil {
		return err
	}

	var doc txDoc
	if err := readJSONFile(txPath, &doc); err != nil {
		return err
	}
	tx, err := doc.toTransaction()
	if err != nil {
		return err
	}
	if tx.Sender != w.PublicKey {
		return fmt.Errorf("transaction sender does not match keystore public key")
	}
	if err := tx.Sign(w.PrivateKey); err != nil {
		return err
	}
	return writeJSONFile(txPath, fromTransaction(tx))
}
