package main

import (
	"encoding/hex"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/kdsmith18542/baals/internal/core"
	"github.com/kdsmith18542/baals/internal/rpc"
	"github.com/kdsmith18542/baals/internal/wallet"
)

var txCmd = &cobra.Command{Use: "tx", Short: "Build, sign and submit transactions"}

var txTransferCmd = &cobra.Command{
	Use:   "transfer <keystore-path> <recipient-address> <amount>",
	Short: "Sign and submit a Transfer transaction",
	Args:  cobra.ExactArgs(3),
	RunE:  runTxTransfer,
}

var txDeployCmd = &cobra.Command{
	Use:   "deploy-contract <keystore-path> <wasm-path> [init-args-hex]",
	Short: "Sign and submit a Deploy transaction",
	Args:  cobra.RangeArgs(2, 3),
	RunE:  runTxDeploy,
}

var txCallCmd = &cobra.Command{
	Use:   "call-contract <keystore-path> <contract-address> <method> [args-hex]",
	Short: "Sign and submit a Call transaction",
	Args:  cobra.RangeArgs(3, 4),
	RunE:  runTxCall,
}

var txDataCmd = &cobra.Command{
	Use:   "data <keystore-path> <data-hex>",
	Short: "Sign and submit a Data transaction",
	Args:  cobra.ExactArgs(2),
	RunE:  runTxData,
}

var txInspectCmd = &cobra.Command{
	Use:   "inspect <tx-json-path>",
	Short: "Decode a transaction document and print its derived hash and validity",
	Args:  cobra.ExactArgs(1),
	RunE:  runTxInspect,
}

func init() {
	for _, c := range []*cobra.Command{txTransferCmd, txDeployCmd, txCallCmd, txDataCmd} {
		c.Flags().Uint64("nonce", 0, "sender account nonce")
		c.Flags().Uint64("gas-limit", 21000, "gas limit for this transaction")
		c.Flags().Uint8("priority", 0, "mempool selection priority, higher runs first")
	}
	txCmd.AddCommand(txTransferCmd, txDeployCmd, txCallCmd, txDataCmd, txInspectCmd)
}

func unlockWallet(cmd *cobra.Command, keystorePath string) (wallet.Wallet, error) {
	pass, err := walletPassphrase(cmd)
	if err != nil {
		return wallet.Wallet{}, err
	}
	return wallet.Load(keystorePath, pass)
}

func commonTxFields(cmd *cobra.Command, tx *core.Transaction) {
	tx.Nonce, _ = cmd.Flags().GetUint64("nonce")
	tx.GasLimit, _ = cmd.Flags().GetUint64("gas-limit")
	tx.Priority, _ = cmd.Flags().GetUint8("priority")
}

func submitSigned(cmd *cobra.Command, tx core.Transaction) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	rt, err := openRuntime(cmd, cfg, false)
	if err != nil {
		return err
	}
	defer rt.Stop()

	svc := rpc.NewService(rt)
	if err := svc.SubmitTransaction(tx); err != nil {
		return err
	}
	return printResult(cmd, fromTransaction(tx))
}

func parseAddressArg(s string) (core.Address, error) {
	raw, err := hex.DecodeString(s)
	if err != nil || len(raw) != core.HashSize {
		return core.Address{}, fmt.Errorf("malformed address %q", s)
	}
	var a core.Address
	copy(a[:], raw)
	return a, nil
}

func runTxTransfer(cmd *cobra.Command, args []string) error {
	w, err := unlockWallet(cmd, args[0])
	if err != nil {
		return err
	}
	recipient, err := parseAddressArg(args[1])
	if err != nil {
		return err
	}
	var amount uint64
	if _, err := fmt.Sscanf(args[2], "%d", &amount); err != nil {
		return fmt.Errorf("malformed amount %q: %w", args[2], err)
	}

	tx := core.Transaction{
		Sender: w.PublicKey, RecipientKind: core.RecipientWallet, Recipient: recipient,
		PayloadKind: core.PayloadTransfer, Amount: amount,
	}
	commonTxFields(cmd, &tx)
	if err := tx.Sign(w.PrivateKey); err != nil {
		return err
	}
	return submitSigned(cmd, tx)
}

func runTxDeploy(cmd *cobra.Command, args []string) error {
	w, err := unlockWallet(cmd, args[0])
	if err != nil {
		return err
	}
	code, err := os.ReadFile(args[1])
	if err != nil {
		return err
	}
	var initArgs []byte
	if len(args) == 3 {
		if initArgs, err = hex.DecodeString(args[2]); err != nil {
			return fmt.Errorf("malformed init-args hex: %w", err)
		}
	}

	tx := core.Transaction{
		Sender: w.PublicKey, RecipientKind: core.RecipientNone,
		PayloadKind: core.PayloadDeploy, Wasm: code, InitArgs: initArgs,
	}
	commonTxFields(cmd, &tx)
	if err := tx.Sign(w.PrivateKey); err != nil {
		return err
	}
	return submitSigned(cmd, tx)
}

func runTxCall(cmd *cobra.Command, args []string) error {
	w, err := unlockWallet(cmd, args[0])
	if err != nil {
		return err
	}
	contract, err := parseAddressArg(args[1])
	if err != nil {
		return err
	}
	var callArgs []byte
	if len(args) == 4 {
		if callArgs, err = hex.DecodeString(args[3]); err != nil {
			return fmt.Errorf("malformed args hex: %w", err)
		}
	}

	tx := core.Transaction{
		Sender: w.PublicKey, RecipientKind: core.RecipientContract, Recipient: contract,
		PayloadKind: core.PayloadCall, Method: args[2], Args: callArgs,
	}
	commonTxFields(cmd, &tx)
	if err := tx.Sign(w.PrivateKey); err != nil {
		return err
	}
	return submitSigned(cmd, tx)
}

func runTxData(cmd *cobra.Command, args []string) error {
	w, err := unlockWallet(cmd, args[0])
	if err != nil {
		return err
	}
	data, err := hex.DecodeString(args[1])
	if err != nil {
		return fmt.Errorf("malformed data hex: %w", err)
	}

	tx := core.Transaction{
		Sender: w.PublicKey, RecipientKind: core.RecipientNone,
		PayloadKind: core.PayloadData, Data: data,
	}
	commonTxFields(cmd, &tx)
	if err := tx.Sign(w.PrivateKey); err != nil {
		return err
	}
	return submitSigned(cmd, tx)
}

func runTxInspect(cmd *cobra.Command, args []string) error {
	var doc txDoc
	if err := readJSONFile(args[0], &doc); err != nil {
		return err
	}
	tx, err := doc.toTransaction()
	if err != nil {
		return err
	}
	return printResult(cmd, struct {
		Hash  string `json:"hash"`
		Valid bool   `json:"valid"`
	}{Hash: tx.ComputeHash().String(), Valid: tx.Verify()})
}
