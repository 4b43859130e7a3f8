package main

import (
	"encoding/hex"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/kdsmith18542/baals/internal/core"
	"github.com/kdsmith18542/baals/internal/vm"
	"github.com/kdsmith18542/baals/internal/wallet"
)

var devCmd = &cobra.Command{Use: "dev", Short: "Development helpers not meant for production nodes"}

var devGenerateKeysCmd = &cobra.Command{
	Use:   "generate-keys",
	Short: "Print a fresh Ed25519 keypair without saving it anywhere",
	Args:  cobra.NoArgs,
	RunE:  runDevGenerateKeys,
}

var devSimulateContractCmd = &cobra.Command{
	Use:   "simulate-contract <wasm-path> <export> [input-hex]",
	Short: "Run a WASM export in an ephemeral sandbox, outside of any ledger",
	Args:  cobra.RangeArgs(2, 3),
	RunE:  runDevSimulateContract,
}

var devValidateTxCmd = &cobra.Command{
	Use:   "validate-tx <tx-json-path>",
	Short: "Check a transaction document's hash and signature without submitting it",
	Args:  cobra.ExactArgs(1),
	RunE:  runDevValidateTx,
}

func init() {
	devSimulateContractCmd.Flags().Uint64("fuel-limit", 10_000_000, "fuel budget for the simulated call")
	devCmd.AddCommand(devGenerateKeysCmd, devSimulateContractCmd, devValidateTxCmd)
}

func runDevGenerateKeys(cmd *cobra.Command, _ []string) error {
	w, err := wallet.Generate()
	if err != nil {
		return err
	}
	return printResult(cmd, struct {
		Address    string `json:"address"`
		PublicKey  string `json:"public_key"`
		PrivateKey string `json:"private_key"`
	}{
		Address:    w.Address().String(),
		PublicKey:  hex.EncodeToString(w.PublicKey[:]),
		PrivateKey: hex.EncodeToString(w.PrivateKey),
	})
}

func runDevSimulateContract(cmd *cobra.Command, args []string) error {
	code, err := os.ReadFile(args[0])
	if err != nil {
		return err
	}
	export := args[1]
	var input []byte
	if len(args) == 3 {
		if input, err = hex.DecodeString(args[2]); err != nil {
			return fmt.Errorf("malformed input hex: %w", err)
		}
	}
	fuelLimit, _ := cmd.Flags().GetUint64("fuel-limit")

	staged := make(map[string][]byte)
	hctx := &vm.HostContext{
		Input: input,
		StorageRead: func(k []byte) ([]byte, bool) {
			v, ok := staged[string(k)]
			return v, ok
		},
		StorageWrite:  func(k, v []byte) { staged[string(k)] = v },
		StorageRemove: func(k []byte) { delete(staged, string(k)) },
		CallContract: func(core.Address, string, []byte, uint64) ([]byte, error) {
			return nil, fmt.Errorf("simulate-contract runs a single contract, nested calls are not available")
		},
	}

	result, err := vm.Execute(code, export, fuelLimit, hctx)
	if err != nil {
		return err
	}

	view := struct {
		FuelUsed   uint64 `json:"fuel_used"`
		Reverted   bool   `json:"reverted"`
		RevertData string `json:"revert_data,omitempty"`
	}{FuelUsed: result.FuelUsed, Reverted: result.Reverted}
	if result.Reverted {
		view.RevertData = hex.EncodeToString(result.RevertData)
	}
	return printResult(cmd, view)
}

func runDevValidateTx(cmd *cobra.Command, args []string) error {
	var doc txDoc
	if err := readJSONFile(args[0], &doc); err != nil {
		return err
	}
	tx, err := doc.toTransaction()
	if err != nil {
		return err
	}

	view := struct {
		Hash           string `json:"hash"`
		SignatureValid bool   `json:"signature_valid"`
	}{Hash: tx.Hash.String()}

	if tx.PayloadKind == core.PayloadDeploy {
		if valErr := vm.Validate(tx.Wasm, "init"); valErr != nil {
			return valErr
		}
	}
	view.SignatureValid = tx.Verify()
	return printResult(cmd, view)
}
