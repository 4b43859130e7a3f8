package main

import (
	"encoding/hex"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/kdsmith18542/baals/internal/rpc"
)

var queryCmd = &cobra.Command{Use: "query", Short: "Read chain state without submitting anything"}

var queryHeadCmd = &cobra.Command{
	Use:   "head",
	Short: "Print the current chain tip",
	Args:  cobra.NoArgs,
	RunE:  runQueryHead,
}

var queryBlockCmd = &cobra.Command{
	Use:   "block <height-or-hash>",
	Short: "Print a committed block by height or hex hash",
	Args:  cobra.ExactArgs(1),
	RunE:  runQueryBlock,
}

var queryTxCmd = &cobra.Command{
	Use:   "tx <hash>",
	Short: "Print a committed transaction and its block height",
	Args:  cobra.ExactArgs(1),
	RunE:  runQueryTx,
}

var queryAccountCmd = &cobra.Command{
	Use:   "account <address>",
	Short: "Print an account's balance, nonce and kind",
	Args:  cobra.ExactArgs(1),
	RunE:  runQueryAccount,
}

var queryContractStateCmd = &cobra.Command{
	Use:   "contract-state <contract-address> <key-hex>",
	Short: "Read a single key from a deployed contract's storage",
	Args:  cobra.ExactArgs(2),
	RunE:  runQueryContractState,
}

var queryContractCallCmd = &cobra.Command{
	Use:   "contract-call <contract-address> <method> [args-hex]",
	Short: "Execute a contract method read-only, discarding all writes",
	Args:  cobra.RangeArgs(2, 3),
	RunE:  runQueryContractCall,
}

func init() {
	queryContractCallCmd.Flags().Uint64("fuel-limit", 10_000_000, "fuel budget for the read-only call")
	queryCmd.AddCommand(queryHeadCmd, queryBlockCmd, queryTxCmd, queryAccountCmd, queryContractStateCmd, queryContractCallCmd)
}

func openQueryService(cmd *cobra.Command) (*rpc.Service, func(), error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, nil, err
	}
	rt, err := openRuntime(cmd, cfg, false)
	if err != nil {
		return nil, nil, err
	}
	return rpc.NewService(rt), func() { rt.Stop() }, nil
}

func runQueryHead(cmd *cobra.Command, _ []string) error {
	svc, closeFn, err := openQueryService(cmd)
	if err != nil {
		return err
	}
	defer closeFn()
	head, err := svc.QueryHead()
	if err != nil {
		return err
	}
	return printResult(cmd, head)
}

func runQueryBlock(cmd *cobra.Command, args []string) error {
	svc, closeFn, err := openQueryService(cmd)
	if err != nil {
		return err
	}
	defer closeFn()

	var (
		block interface{}
	)
	if height, convErr := strconv.ParseUint(args[0], 10, 64); convErr == nil {
		block, err = svc.QueryBlockByHeight(height)
	} else {
		block, err = svc.QueryBlockByHash(args[0])
	}
	if err != nil {
		return err
	}
	return printResult(cmd, block)
}

func runQueryTx(cmd *cobra.Command, args []string) error {
	svc, closeFn, err := openQueryService(cmd)
	if err != nil {
		return err
	}
	defer closeFn()
	view, height, err := svc.QueryTransaction(args[0])
	if err != nil {
		return err
	}
	return printResult(cmd, struct {
		Height      uint64 `json:"height"`
		Transaction interface{} `json:"transaction"`
	}{Height: height, Transaction: view})
}

func runQueryAccount(cmd *cobra.Command, args []string) error {
	svc, closeFn, err := openQueryService(cmd)
	if err != nil {
		return err
	}
	defer closeFn()
	acct, err := svc.QueryAccount(args[0])
	if err != nil {
		return err
	}
	return printResult(cmd, acct)
}

func runQueryContractState(cmd *cobra.Command, args []string) error {
	svc, closeFn, err := openQueryService(cmd)
	if err != nil {
		return err
	}
	defer closeFn()
	key, err := hex.DecodeString(args[1])
	if err != nil {
		return fmt.Errorf("malformed key hex: %w", err)
	}
	value, ok, err := svc.QueryContractState(args[0], key)
	if err != nil {
		return err
	}
	return printResult(cmd, struct {
		Found bool   `json:"found"`
		Value string `json:"value,omitempty"`
	}{Found: ok, Value: hex.EncodeToString(value)})
}

func runQueryContractCall(cmd *cobra.Command, args []string) error {
	svc, closeFn, err := openQueryService(cmd)
	if err != nil {
		return err
	}
	defer closeFn()
	var argBytes []byte
	if len(args) == 3 {
		argBytes, err = hex.DecodeString(args[2])
		if err != nil {
			return fmt.Errorf("malformed args hex: %w", err)
		}
	}
	fuelLimit, _ := cmd.Flags().GetUint64("fuel-limit")
	result, err := svc.CallContract(args[0], args[1], argBytes, fuelLimit)
	if err != nil {
		return err
	}
	return printResult(cmd, result)
}
