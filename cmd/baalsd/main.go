package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/kdsmith18542/baals/internal/rpc"
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "baalsd",
		Short:         "BaaLS node daemon and operator CLI",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	addCommonFlags(rootCmd)
	rootCmd.AddCommand(nodeCmd, walletCmd, txCmd, queryCmd, devCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "baalsd:", err)
		os.Exit(rpc.ExitCode(err))
	}
}
