// Command baalsd is BaaLS's operator CLI: it starts a node, manages
// wallets, builds and submits transactions, and queries chain state. It
// is a thin shell over internal/runtime and internal/rpc, matching the
// spec's "out of scope" collaborator boundary: all the hard engineering
// lives in the internal packages this binary wires together.
package main

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/crypto/ed25519"

	"github.com/kdsmith18542/baals/internal/config"
	"github.com/kdsmith18542/baals/internal/core"
	"github.com/kdsmith18542/baals/internal/ledger"
	"github.com/kdsmith18542/baals/internal/mempool"
	"github.com/kdsmith18542/baals/internal/runtime"
	"github.com/kdsmith18542/baals/internal/wallet"
)

func resolveConfigPath(cmd *cobra.Command) string {
	if v, _ := cmd.Flags().GetString("config"); v != "" {
		return v
	}
	return os.Getenv("BAALS_CONFIG")
}

func resolveHome(cmd *cobra.Command) string {
	if v, _ := cmd.Flags().GetString("home"); v != "" {
		return v
	}
	return os.Getenv("BAALS_HOME")
}

func jsonOutput(cmd *cobra.Command) bool {
	v, _ := cmd.Flags().GetBool("json")
	return v
}

// loadConfig applies the documented precedence: flags, then BAALS_HOME /
// BAALS_CONFIG, then the config file, then defaults.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	cfg, err := config.Load(resolveConfigPath(cmd))
	if err != nil {
		return config.Config{}, err
	}
	if home := resolveHome(cmd); home != "" {
		cfg.Node.DataDir = home
	}
	return cfg, nil
}

// unlockSigningKey loads the authority signing key for commands that
// propose blocks (node start). The passphrase comes
// from --passphrase or BAALS_WALLET_PASSPHRASE; neither is appropriate for
// interactive production use, but both suit scripted/dev workflows.
func unlockSigningKey(cmd *cobra.Command, cfg config.Config) (ed25519.PrivateKey, error) {
	if cfg.Authority.KeystorePath == "" {
		return nil, nil
	}
	pass, _ := cmd.Flags().GetString("passphrase")
	if pass == "" {
		pass = os.Getenv("BAALS_WALLET_PASSPHRASE")
	}
	if pass == "" {
		return nil, fmt.Errorf("authority keystore is configured but no passphrase was supplied (--passphrase or BAALS_WALLET_PASSPHRASE)")
	}
	w, err := wallet.Load(cfg.Authority.KeystorePath, pass)
	if err != nil {
		return nil, err
	}
	return w.PrivateKey, nil
}

func toRuntimeConfig(cfg config.Config, signingKey ed25519.PrivateKey) (runtime.Config, error) {
	rc := runtime.Config{
		DataDir:        cfg.Node.DataDir,
		BlockInterval:  cfg.BlockInterval(),
		MaxTxsPerBlock: cfg.Consensus.MaxTxsPerBlock,
		MempoolLimits: mempool.Limits{
			MaxTransactions: cfg.Mempool.MaxTransactions,
			MaxGasLimit:     cfg.Mempool.MaxGasLimit,
			MaxTxSize:       cfg.Mempool.MaxTxSizeBytes,
			MaxNonceGap:     cfg.Mempool.MaxNonceGap,
			Expiry:          cfg.MempoolExpiry(),
		},
		MempoolExpiry: cfg.MempoolExpiry(),
		Ledger: ledger.Config{
			AllowImplicitWalletCreation: cfg.Authority.AllowImplicitWalletCreation,
			IntrinsicGas:                cfg.Consensus.IntrinsicGas,
			TimestampSkewTolerance:      cfg.TimestampSkewTolerance(),
		},
		MetricsEnabled:    cfg.Metrics.Enabled,
		MetricsListenAddr: cfg.Metrics.ListenAddr,
	}

	if cfg.Authority.PublicKeyHex != "" {
		raw, err := hex.DecodeString(cfg.Authority.PublicKeyHex)
		if err != nil || len(raw) != core.PublicKeySize {
			return runtime.Config{}, fmt.Errorf("authority.public_key_hex is malformed")
		}
		copy(rc.AuthorityPublicKey[:], raw)
	}
	if signingKey != nil {
		rc.AuthoritySigningKey = signingKey
		if cfg.Authority.PublicKeyHex == "" {
			pub := signingKey.Public().(ed25519.PublicKey)
			copy(rc.AuthorityPublicKey[:], pub)
		}
	}
	return rc, nil
}

// openRuntime opens a Runtime against cfg. withAuthority requests the
// signing key be unlocked, letting this node propose blocks; query-only
// commands pass false and get a Runtime that can still read and validate.
func openRuntime(cmd *cobra.Command, cfg config.Config, withAuthority bool) (*runtime.Runtime, error) {
	var signingKey ed25519.PrivateKey
	if withAuthority {
		key, err := unlockSigningKey(cmd, cfg)
		if err != nil {
			return nil, err
		}
		signingKey = key
	}
	rc, err := toRuntimeConfig(cfg, signingKey)
	if err != nil {
		return nil, err
	}
	return runtime.Open(rc)
}

// printResult renders v as indented JSON when --json is set, or as Go's
// default struct formatting otherwise. Every query/tx command shares this
// so `--json` behaves uniformly across the whole CLI surface.
func printResult(cmd *cobra.Command, v interface{}) error {
	if jsonOutput(cmd) {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%+v\n", v)
	return nil
}

// readJSONFile decodes the JSON document at path into v.
func readJSONFile(path string, v interface{}) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}

// writeJSONFile encodes v as indented JSON and writes it to path.
func writeJSONFile(path string, v interface{}) error {
	raw, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, raw, 0o644)
}

func addCommonFlags(cmd *cobra.Command) {
	cmd.PersistentFlags().String("home", "", "node data directory (overrides BAALS_HOME)")
	cmd.PersistentFlags().String("config", "", "config file path (overrides BAALS_CONFIG)")
	cmd.PersistentFlags().Bool("json", false, "emit machine-readable JSON output")
	cmd.PersistentFlags().String("passphrase", "", "authority keystore passphrase (overrides BAALS_WALLET_PASSPHRASE)")
}
