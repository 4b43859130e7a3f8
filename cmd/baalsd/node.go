package main

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/kdsmith18542/baals/internal/config"
	"github.com/kdsmith18542/baals/internal/rpc"
)

var nodeCmd = &cobra.Command{Use: "node", Short: "Manage a BaaLS node"}

var nodeStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Run the node in the foreground until interrupted",
	RunE:  runNodeStart,
}

var nodeStopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Signal a running node (started with node start) to shut down",
	RunE:  runNodeStop,
}

var nodeStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Print the current chain head without starting block production",
	RunE:  runNodeStatus,
}

var nodeConfigCmd = &cobra.Command{Use: "config", Short: "Inspect or edit node configuration"}

var nodeConfigInitCmd = &cobra.Command{
	Use:   "init <path>",
	Short: "Write a default configuration file",
	Args:  cobra.ExactArgs(1),
	RunE:  runNodeConfigInit,
}

var nodeConfigSetCmd = &cobra.Command{
	Use:   "set <path> <dotted.key> <value>",
	Short: "Set a single key in a configuration file, creating it if needed",
	Args:  cobra.ExactArgs(3),
	RunE:  runNodeConfigSet,
}

func init() {
	nodeConfigCmd.AddCommand(nodeConfigInitCmd, nodeConfigSetCmd)
	nodeCmd.AddCommand(nodeStartCmd, nodeStopCmd, nodeStatusCmd, nodeConfigCmd)
}

func pidFilePath(cfg config.Config) string {
	return filepath.Join(cfg.Node.DataDir, "baalsd.pid")
}

func runNodeStart(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(cfg.Node.DataDir, 0o755); err != nil {
		return err
	}

	rt, err := openRuntime(cmd, cfg, true)
	if err != nil {
		return err
	}
	defer rt.Stop()

	pidPath := pidFilePath(cfg)
	if err := os.WriteFile(pidPath, []byte(strconv.Itoa(os.Getpid())), 0o644); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(pidPath)

	rt.Start()
	fmt.Fprintf(cmd.OutOrStdout(), "baalsd started (pid %d, data dir %s)\n", os.Getpid(), cfg.Node.DataDir)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	sig := <-sigCh
	fmt.Fprintf(cmd.OutOrStdout(), "received %v, shutting down\n", sig)
	return nil
}

func runNodeStop(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	raw, err := os.ReadFile(pidFilePath(cfg))
	if err != nil {
		return fmt.Errorf("no running node found at %s: %w", cfg.Node.DataDir, err)
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(raw)))
	if err != nil {
		return fmt.Errorf("malformed pid file: %w", err)
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return err
	}
	if err := proc.Signal(syscall.SIGTERM); err != nil {
		return fmt.Errorf("signal pid %d: %w", pid, err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "sent SIGTERM to pid %d\n", pid)
	return nil
}

func runNodeStatus(cmd *cobra.Command, _ []string) error {
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
	head, err := svc.QueryHead()
	if err != nil {
		return err
	}
	return printResult(cmd, head)
}

func runNodeConfigInit(cmd *cobra.Command, args []string) error {
	path := args[0]
	raw, err := yaml.Marshal(config.DefaultSettings())
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "wrote default config to %s\n", path)
	return nil
}

func runNodeConfigSet(cmd *cobra.Command, args []string) error {
	path, key, value := args[0], args[1], args[2]

	doc := map[string]interface{}{}
	if raw, err := os.ReadFile(path); err == nil {
		if err := yaml.Unmarshal(raw, &doc); err != nil {
			return fmt.Errorf("parse existing config: %w", err)
		}
	} else if !os.IsNotExist(err) {
		return err
	}

	setDottedKey(doc, strings.Split(key, "."), value)

	raw, err := yaml.Marshal(doc)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "set %s in %s\n", key, path)
	return nil
}

// setDottedKey walks doc by successive map levels, creating intermediate
// maps as needed, and sets the leaf to value.
func setDottedKey(doc map[string]interface{}, parts []string, value string) {
	if len(parts) == 1 {
		doc[parts[0]] = value
		return
	}
	next, ok := doc[parts[0]].(map[string]interface{})
	if !ok {
		next = map[string]interface{}{}
		doc[parts[0]] = next
	}
	setDottedKey(next, parts[1:], value)
}
