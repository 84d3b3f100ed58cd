// Package main is the entry point for the hardshell CLI.
package main

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/hardshell/hardshell/internal/config"
	"github.com/hardshell/hardshell/internal/telemetry"
)

// Version information set at build time.
var version = "0.4.0"

// Global flags.
var (
	policyFile     string
	inventoryFile  string
	knownHostsFile string
	connectTimeout time.Duration
	verbose        bool
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "hardshell",
		Short: "Declarative baseline hardening for small server fleets",
		Long: `Hardshell reconciles hosts against a declared hardening policy:
packages, services, firewall posture, administrative users, and sshd
configuration. Each run probes live state over SSH, plans the minimal
set of changes, orders them so administrative access is never lost,
and applies them idempotently.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&policyFile, "policy", "policy.yaml", "Path to the hardening policy")
	root.PersistentFlags().StringVar(&inventoryFile, "inventory", "inventory.yaml", "Path to the host inventory")
	root.PersistentFlags().StringVar(&knownHostsFile, "known-hosts", "", "known_hosts file for strict host key checking")
	root.PersistentFlags().DurationVar(&connectTimeout, "connect-timeout", 10*time.Second, "SSH connect timeout")
	root.PersistentFlags().BoolVar(&verbose, "verbose", false, "Enable debug logging")

	root.AddCommand(newVersionCmd())
	root.AddCommand(newValidateCmd())
	root.AddCommand(newPlanCmd())
	root.AddCommand(newRunCmd())
	root.AddCommand(newWatchCmd())

	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newLogger() *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return telemetry.NewLogger(os.Stderr, level)
}

// loadInputs reads and validates the policy and inventory files.
func loadInputs() (*config.Policy, *config.Inventory, error) {
	policy, err := config.LoadPolicy(policyFile)
	if err != nil {
		return nil, nil, err
	}
	inventory, err := config.LoadInventory(inventoryFile)
	if err != nil {
		return nil, nil, err
	}
	return policy, inventory, nil
}
