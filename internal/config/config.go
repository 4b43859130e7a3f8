// Package config loads BaaLS node configuration from defaults, a YAML file,
// and environment variables, in that increasing order of precedence (flags
// set by the CLI layer take precedence over all three).
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the full configuration surface for one embedded BaaLS node.
type Config struct {
	Node struct {
		DataDir string `mapstructure:"data_dir"`
	} `mapstructure:"node"`

	Authority struct {
		// KeystorePath points at an encrypted wallet.KeyStore file holding
		// this node's block-signing key. Empty means this node only
		// validates externally-produced blocks.
		KeystorePath string `mapstructure:"keystore_path"`
		// PublicKeyHex identifies the chain's authority even on a node
		// that never unlocks the signing key itself.
		PublicKeyHex string `mapstructure:"public_key_hex"`
		// AllowImplicitWalletCreation lets a Transfer or Call create a
		// zero-balance wallet the first time an address is referenced,
		// rather than requiring accounts to be provisioned up front.
		AllowImplicitWalletCreation bool `mapstructure:"allow_implicit_wallet_creation"`
	} `mapstructure:"authority"`

	Consensus struct {
		BlockIntervalMS int `mapstructure:"block_interval_ms"`
		MaxTxsPerBlock  int `mapstructure:"max_txs_per_block"`
		IntrinsicGas    uint64 `mapstructure:"intrinsic_gas"`
		// TimestampSkewToleranceMS bounds how far into the future a
		// received block's header timestamp may sit ahead of this node's
		// local clock before it is rejected.
		TimestampSkewToleranceMS int `mapstructure:"timestamp_skew_tolerance_ms"`
	} `mapstructure:"consensus"`

	Mempool struct {
		MaxTransactions int    `mapstructure:"max_transactions"`
		MaxGasLimit     uint64 `mapstructure:"max_gas_limit"`
		MaxTxSizeBytes  int    `mapstructure:"max_tx_size_bytes"`
		MaxNonceGap     uint64 `mapstructure:"max_nonce_gap"`
		ExpiryMinutes   int    `mapstructure:"expiry_minutes"`
	} `mapstructure:"mempool"`

	Sandbox struct {
		MaxCallDepth int `mapstructure:"max_call_depth"`
	} `mapstructure:"sandbox"`

	Logging struct {
		Level  string `mapstructure:"level"`
		Format string `mapstructure:"format"` // "text" or "json"
	} `mapstructure:"logging"`

	Metrics struct {
		Enabled bool   `mapstructure:"enabled"`
		ListenAddr string `mapstructure:"listen_addr"`
	} `mapstructure:"metrics"`
}

// BlockInterval is Consensus.BlockIntervalMS as a time.Duration.
func (c Config) BlockInterval() time.Duration {
	return time.Duration(c.Consensus.BlockIntervalMS) * time.Millisecond
}

// MempoolExpiry is Mempool.ExpiryMinutes as a time.Duration.
func (c Config) MempoolExpiry() time.Duration {
	return time.Duration(c.Mempool.ExpiryMinutes) * time.Minute
}

// TimestampSkewTolerance is Consensus.TimestampSkewToleranceMS as a
// time.Duration.
func (c Config) TimestampSkewTolerance() time.Duration {
	return time.Duration(c.Consensus.TimestampSkewToleranceMS) * time.Millisecond
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("node.data_dir", "./baals-data")
	v.SetDefault("authority.allow_implicit_wallet_creation", false)
	v.SetDefault("consensus.block_interval_ms", 2000)
	v.SetDefault("consensus.max_txs_per_block", 500)
	v.SetDefault("consensus.intrinsic_gas", 1000)
	v.SetDefault("consensus.timestamp_skew_tolerance_ms", 10_000)
	v.SetDefault("mempool.max_transactions", 10_000)
	v.SetDefault("mempool.max_gas_limit", 10_000_000)
	v.SetDefault("mempool.max_tx_size_bytes", 256*1024)
	v.SetDefault("mempool.max_nonce_gap", 16)
	v.SetDefault("mempool.expiry_minutes", 60)
	v.SetDefault("sandbox.max_call_depth", 8)
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.listen_addr", "127.0.0.1:9090")
}

// Load reads configFile (if non-empty) as YAML, overlays BAALS_-prefixed
// environment variables, and falls back to defaults for anything neither
// sets. configFile may point at a nonexistent path only when it is empty;
// an explicitly named file that cannot be read is an error.
func Load(configFile string) (Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("BAALS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("config: reading %s: %w", configFile, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("config: unmarshal: %w", err)
	}
	return cfg, nil
}

// DefaultSettings returns the built-in defaults as a nested map keyed
// exactly the way the YAML file on disk is: by `node config init` to
// produce a file whose keys viper (and thus Load) will recognize, rather
// than re-marshaling the Config struct and risking a field-naming
// mismatch against the mapstructure tags.
func DefaultSettings() map[string]interface{} {
	v := viper.New()
	setDefaults(v)
	return v.AllSettings()
}
