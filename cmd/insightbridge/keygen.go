package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/insightbridge/insightbridge/pkg/token"
)

func newKeygenCmd() *cobra.Command {
	keygenCmd := &cobra.Command{
		Use:   "keygen",
		Short: "Generate an RSA keypair for token signing",
		RunE:  runKeygen,
	}

	keygenCmd.Flags().StringP("out-dir", "o", "keys", "Directory to write the keypair into")
	keygenCmd.Flags().Int("bits", 2048, "RSA key size in bits")

	return keygenCmd
}

func runKeygen(cmd *cobra.Command, _ []string) error {
	outDir, err := cmd.Flags().GetString("out-dir")
	if err != nil {
		return fmt.Errorf("failed to get out-dir flag: %w", err)
	}
	bits, err := cmd.Flags().GetInt("bits")
	if err != nil {
		return fmt.Errorf("failed to get bits flag: %w", err)
	}
	if bits < 2048 {
		return fmt.Errorf("key size %d is too small, use at least 2048 bits", bits)
	}

	privatePEM, publicPEM, err := token.GenerateRSAKeyPair(bits)
	if err != nil {
		return fmt.Errorf("key generation failed: %w", err)
	}

	if err := os.MkdirAll(outDir, 0o750); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	privatePath := filepath.Join(outDir, "private_key.pem")
	publicPath := filepath.Join(outDir, "public_key.pem")

	if err := os.WriteFile(privatePath, privatePEM, 0o600); err != nil {
		return fmt.Errorf("failed to write private key: %w", err)
	}
	if err := os.WriteFile(publicPath, publicPEM, 0o644); err != nil { //nolint:gosec // Public key is not a secret
		return fmt.Errorf("failed to write public key: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s and %s\n", privatePath, publicPath)
	return nil
}
