// hotswapctl drives a running hotswapd over its admin gRPC API.
//
// Usage:
//
//	hotswapctl status
//	hotswapctl stage --engine sha256d [--name sha256d-canary --version 2.0.0 --fail-rate 0]
//	hotswapctl start | advance | rollback
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
)

var rootFlags struct {
	addr    string
	timeout time.Duration
	json    bool
}

var rootCmd = &cobra.Command{
	Use:           "hotswapctl",
	Short:         "Control engine migrations on a hotswapd instance",
	SilenceUsage:  true,
	SilenceErrors: true,
	CompletionOptions: cobra.CompletionOptions{
		HiddenDefaultCmd: true,
	},
}

func init() {
	f := rootCmd.PersistentFlags()
	f.StringVar(&rootFlags.addr, "addr", envOr("HOTSWAP_ADMIN_ADDR", "127.0.0.1:50061"), "hotswapd admin address")
	f.DurationVar(&rootFlags.timeout, "timeout", 30*time.Second, "per-call deadline")
	f.BoolVar(&rootFlags.json, "json", false, "print JSON instead of a table")

	rootCmd.AddCommand(statusCmd, stageCmd, startCmd, advanceCmd, rollbackCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
