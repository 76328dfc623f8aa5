// Copyright 2026 Jeremy Hahn
// SPDX-License-Identifier: MIT

package main

import (
	"encoding/hex"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/eagletech/eaglelink/pkg/monitor"
)

// defaultKeyFile is the default path for the monitor static key.
const defaultKeyFile = "eaglelink-monitor.key"

var (
	keygenOutput  string
	keygenShowKey string
)

// keygenCmd generates the monitor server's static keypair.
var keygenCmd = &cobra.Command{
	Use:   "keygen",
	Short: "Generate a monitor static keypair",
	Long: `Generate a new Curve25519 static keypair for the encrypted monitor.
The private key is written hex-encoded to --key-file with 0600 permissions;
an existing file is never overwritten. The public key, which observers pass
to "eaglelink monitor --server-key", is printed on stdout.`,
	RunE: runKeygen,
}

// keygenShowCmd prints the public half of an existing key file.
var keygenShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the public key from a key file",
	RunE:  runKeygenShow,
}

func init() {
	keygenCmd.Flags().StringVar(&keygenOutput, "key-file", defaultKeyFile, "output path for the private key")
	keygenShowCmd.Flags().StringVar(&keygenShowKey, "key-file", defaultKeyFile, "path to a hex-encoded private key file")
	keygenCmd.AddCommand(keygenShowCmd)
}

func runKeygen(cmd *cobra.Command, args []string) error {
	slog.Debug("generating Curve25519 static keypair")

	key, err := monitor.GenerateStaticKey()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrKeyOperation, err)
	}
	defer monitor.WipeDHKey(key)

	if err := monitor.WriteKeyFile(keygenOutput, key); err != nil {
		return fmt.Errorf("%w: %w", ErrFileOperation, err)
	}

	slog.Info("private key written", "path", keygenOutput)
	fmt.Fprintf(cmd.OutOrStdout(), "Public key: %s\n", hex.EncodeToString(key.Public))
	return nil
}

func runKeygenShow(cmd *cobra.Command, args []string) error {
	if keygenShowKey == "" {
		return fmt.Errorf("%w: --key-file is required", ErrInvalidInput)
	}

	key, err := monitor.ReadKeyFile(keygenShowKey)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrKeyOperation, err)
	}
	defer monitor.WipeDHKey(key)

	fmt.Fprintf(cmd.OutOrStdout(), "Public key: %s\n", hex.EncodeToString(key.Public))
	return nil
}
