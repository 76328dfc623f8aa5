// Copyright 2026 Jeremy Hahn
// SPDX-License-Identifier: MIT

package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/eagletech/eaglelink/pkg/monitor"
)

const defaultMonitorConnectTimeout = 15 * time.Second

var (
	monitorServerAddr string
	monitorServerKey  string
)

// monitorCmd streams events from a running link.
var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Watch a running link over the encrypted monitor stream",
	Long: `Connect to the monitor of a running "eaglelink run" and print link events
(state changes, frames sent, send failures and received lines) until
interrupted. The server's Curve25519 static public key is required for the
Noise_NK handshake; print it with "eaglelink keygen show".`,
	RunE: runMonitor,
}

func init() {
	monitorCmd.Flags().StringVar(&monitorServerAddr, "server-addr", "", "monitor address (host:port) (required)")
	monitorCmd.Flags().StringVar(&monitorServerKey, "server-key", "", "hex-encoded server static public key (required)")
}

func runMonitor(cmd *cobra.Command, args []string) error {
	if monitorServerAddr == "" {
		return fmt.Errorf("%w: --server-addr is required", ErrInvalidInput)
	}
	if monitorServerKey == "" {
		return fmt.Errorf("%w: --server-key is required", ErrInvalidInput)
	}
	if format != "text" && format != "json" {
		return fmt.Errorf("%w: unsupported format %q", ErrInvalidInput, format)
	}

	pub, err := monitor.DecodePublicKey(monitorServerKey)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return watchMonitor(ctx, monitorServerAddr, pub, cmd.OutOrStdout())
}

// watchMonitor prints messages until ctx ends or the server goes away.
func watchMonitor(ctx context.Context, addr string, serverKey []byte, out io.Writer) error {
	client, err := monitor.NewClient(&monitor.ClientConfig{
		ServerAddr:      addr,
		ServerStaticKey: serverKey,
		ConnectTimeout:  defaultMonitorConnectTimeout,
		Logger:          slog.Default(),
	})
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}
	defer client.Close()

	if err := client.Connect(ctx); err != nil {
		return fmt.Errorf("%w: %w", ErrMonitorFailed, err)
	}
	slog.Info("monitor connected", "addr", addr)

	for {
		msg, err := client.Next(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil
			}
			return fmt.Errorf("%w: %w", ErrMonitorFailed, err)
		}
		if err := printMessage(out, msg); err != nil {
			return fmt.Errorf("%w: %w", ErrFileOperation, err)
		}
	}
}

func printMessage(out io.Writer, msg *monitor.Message) error {
	if format == "json" {
		data, err := json.Marshal(msg)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintf(out, "%s\n", data)
		return err
	}

	line := fmt.Sprintf("%s #%d %-12s state=%s",
		msg.Time.Format(time.TimeOnly), msg.Seq, msg.Type, msg.State)
	if msg.Text != "" {
		line += fmt.Sprintf(" text=%q", msg.Text)
	}
	if msg.Bytes != 0 {
		line += fmt.Sprintf(" bytes=%d", msg.Bytes)
	}
	if msg.Error != "" {
		line += fmt.Sprintf(" error=%q", msg.Error)
	}
	_, err := fmt.Fprintln(out, line)
	return err
}
