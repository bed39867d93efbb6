package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/insightbridge/insightbridge/pkg/token"
)

func newMintCmd() *cobra.Command {
	mintCmd := &cobra.Command{
		Use:   "mint",
		Short: "Mint a signed token for testing",
		Long: `Mint signs a token with the given private key and prints it to stdout.

Intended for local testing against a running gateway:
  insightbridge mint --key keys/private_key.pem --subject agent-1 | \
    xargs -I{} curl -s localhost:8080/validate -d '{"token":"{}"}'`,
		RunE: runMint,
	}

	mintCmd.Flags().StringP("key", "k", "keys/private_key.pem", "Path to the PEM-encoded private key")
	mintCmd.Flags().String("algorithm", "RS256", "Signature algorithm")
	mintCmd.Flags().StringP("subject", "s", "", "Token subject (required)")
	mintCmd.Flags().Duration("ttl", 15*time.Minute, "Token lifetime")
	mintCmd.Flags().Duration("nbf-offset", 0, "Shift nbf relative to now (positive delays validity)")
	mintCmd.Flags().String("jti", "", "Token identifier (random when empty)")

	if err := mintCmd.MarkFlagRequired("subject"); err != nil {
		panic(err)
	}

	return mintCmd
}

func runMint(cmd *cobra.Command, _ []string) error {
	keyPath, err := cmd.Flags().GetString("key")
	if err != nil {
		return fmt.Errorf("failed to get key flag: %w", err)
	}
	algorithm, err := cmd.Flags().GetString("algorithm")
	if err != nil {
		return fmt.Errorf("failed to get algorithm flag: %w", err)
	}
	subject, err := cmd.Flags().GetString("subject")
	if err != nil {
		return fmt.Errorf("failed to get subject flag: %w", err)
	}
	ttl, err := cmd.Flags().GetDuration("ttl")
	if err != nil {
		return fmt.Errorf("failed to get ttl flag: %w", err)
	}
	nbfOffset, err := cmd.Flags().GetDuration("nbf-offset")
	if err != nil {
		return fmt.Errorf("failed to get nbf-offset flag: %w", err)
	}
	jti, err := cmd.Flags().GetString("jti")
	if err != nil {
		return fmt.Errorf("failed to get jti flag: %w", err)
	}

	keyPEM, err := os.ReadFile(keyPath) //nolint:gosec // Key path comes from the operator
	if err != nil {
		return fmt.Errorf("failed to read private key %s: %w", keyPath, err)
	}

	signer, err := token.NewSigner(keyPEM, algorithm)
	if err != nil {
		return fmt.Errorf("signer setup: %w", err)
	}

	signed, err := signer.Mint(token.MintOptions{
		Subject:         subject,
		TTL:             ttl,
		NotBeforeOffset: nbfOffset,
		TokenID:         jti,
	})
	if err != nil {
		return fmt.Errorf("minting failed: %w", err)
	}

	fmt.Fprintln(cmd.OutOrStdout(), signed)
	return nil
}
