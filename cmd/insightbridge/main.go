// Package main is the entry point for the insightbridge binary.
// It provides a CLI for running the authorization gateway and for the
// supporting key generation and token minting utilities.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// version is stamped at build time via -ldflags.
var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// newRootCmd creates the root command for insightbridge
func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "insightbridge",
		Short: "Request-time authorization gateway",
		Long: `InsightBridge evaluates bearer tokens at request time and produces an
ALLOW, MONITOR, or DENY decision for each one.

Every request passes through rate limiting, signature verification, replay
detection, and trust score classification. Any failure along the way denies
the request.`,
		Version: version,
	}

	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newKeygenCmd())
	rootCmd.AddCommand(newMintCmd())

	return rootCmd
}
