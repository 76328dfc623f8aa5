// Copyright 2026 Jeremy Hahn
// SPDX-License-Identifier: MIT

package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/eagletech/eaglelink/pkg/config"
	"github.com/eagletech/eaglelink/pkg/eagle"
	"github.com/eagletech/eaglelink/pkg/linebuf"
	"github.com/eagletech/eaglelink/pkg/link"
	"github.com/eagletech/eaglelink/pkg/link/bluez"
	"github.com/eagletech/eaglelink/pkg/monitor"
	"github.com/eagletech/eaglelink/pkg/statusapi"
)

const (
	defaultRunRate       = 10.0
	defaultDrainInterval = 100 * time.Millisecond
	shutdownTimeout      = 10 * time.Second
	maxSnapshotLine      = 1 << 20
)

var (
	runInput         string
	runRate          float64
	runTestPattern   bool
	runDrainInterval time.Duration
	runDuration      time.Duration
)

// newTransport builds the BLE transport. Tests replace it with a fake.
var newTransport = func(cfg *config.Config) (link.Transport, error) {
	bc, err := cfg.BluezConfig(slog.Default())
	if err != nil {
		return nil, err
	}
	return bluez.New(bc)
}

// runCmd connects to the robot and streams frames.
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Connect to the robot and stream frames",
	Long: `Start the BLE link to the configured peer and stream Eagle frames to it.

Frames come from one of:
  --input FILE     newline-delimited snapshot JSON (- for stdin); each line
                   replaces the pending frame
  --test-pattern   a fixed A-Z pattern ending in CRLF, for bench testing
  (default)        the default world for the configured colour

--rate sets how often the test pattern or default world is resent. Lines
received from the robot are printed on stdout every --drain-interval. The optional
status API and encrypted monitor are started from the configuration.
The link reconnects forever; stop it with SIGINT or SIGTERM.`,
	RunE: runRun,
}

func init() {
	runCmd.Flags().StringVarP(&runInput, "input", "i", "", "newline-delimited snapshot JSON (- for stdin)")
	runCmd.Flags().Float64Var(&runRate, "rate", defaultRunRate, "frames per second for generated frames (0 sends once)")
	runCmd.Flags().BoolVar(&runTestPattern, "test-pattern", false, "send the A-Z bench test pattern")
	runCmd.Flags().DurationVar(&runDuration, "duration", 0, "stop after this long (0 runs until interrupted)")
	runCmd.Flags().DurationVar(&runDrainInterval, "drain-interval", defaultDrainInterval, "how often received lines are printed")
}

func runRun(cmd *cobra.Command, args []string) error {
	if runInput != "" && runTestPattern {
		return fmt.Errorf("%w: --input and --test-pattern are mutually exclusive", ErrInvalidInput)
	}
	if runRate < 0 {
		return fmt.Errorf("%w: --rate must not be negative", ErrInvalidInput)
	}
	if runDrainInterval <= 0 {
		return fmt.Errorf("%w: --drain-interval must be positive", ErrInvalidInput)
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	transport, err := newTransport(cfg)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrLinkFailed, err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if runDuration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, runDuration)
		defer cancel()
	}

	var input io.Reader
	switch runInput {
	case "":
	case "-":
		input = cmd.InOrStdin()
	default:
		f, err := os.Open(runInput)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrFileOperation, err)
		}
		defer f.Close()
		input = f
	}

	return runLink(ctx, cfg, transport, input, cmd.OutOrStdout())
}

// runLink runs the link and its observers until ctx ends.
func runLink(ctx context.Context, cfg *config.Config, transport link.Transport, input io.Reader, out io.Writer) error {
	logger := slog.Default()

	h, err := link.Start(ctx, cfg.LinkConfig(logger), transport)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrLinkFailed, err)
	}
	defer h.Close()

	if cfg.Status.Enabled {
		srv, err := statusapi.New(h, statusapi.Config{ListenAddr: cfg.Status.Listen, Logger: logger})
		if err != nil {
			return fmt.Errorf("%w: %w", ErrServerStart, err)
		}
		if err := srv.Start(); err != nil {
			return fmt.Errorf("%w: %w", ErrServerStart, err)
		}
		defer stopWithTimeout("status API", srv.Stop)
	}

	if cfg.Monitor.Enabled {
		srv, err := startMonitor(cfg.Monitor, h, logger)
		if err != nil {
			return err
		}
		defer stopWithTimeout("monitor", srv.Stop)
	}

	drained := make(chan struct{})
	go func() {
		defer close(drained)
		drainLines(ctx, h, runDrainInterval, out)
	}()

	switch {
	case input != nil:
		feedSnapshots(ctx, h, input)
	case runTestPattern:
		frame := testPatternFrame()
		slog.Info("sending test pattern", "rate", runRate)
		repeat(ctx, runRate, func() error { return h.Send(frame) })
	default:
		snapshot := eagle.NewSnapshot(cfg.TeamColour())
		slog.Info("sending default world", "colour", snapshot.Colour, "rate", runRate)
		repeat(ctx, runRate, func() error { return h.SendSnapshot(snapshot) })
	}

	<-ctx.Done()
	<-drained
	slog.Info("shutting down")
	return nil
}

func startMonitor(mc config.MonitorConfig, src monitor.EventSource, logger *slog.Logger) (*monitor.Server, error) {
	key, created, err := monitor.LoadOrGenerateKeyFile(mc.KeyFile)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrKeyOperation, err)
	}
	if created {
		slog.Info("monitor key generated", "path", mc.KeyFile)
	}
	slog.Info("monitor public key", "key", hex.EncodeToString(key.Public))

	srv, err := monitor.NewServer(&monitor.ServerConfig{
		ListenAddr:     mc.Listen,
		StaticKey:      key,
		Source:         src,
		MaxConnections: mc.MaxConnections,
		WriteTimeout:   mc.WriteTimeout,
		RateLimit:      mc.RateLimit,
		RateBurst:      mc.RateBurst,
		Logger:         logger,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrServerStart, err)
	}
	if err := srv.Start(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrServerStart, err)
	}
	return srv, nil
}

func stopWithTimeout(name string, stop func(context.Context) error) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := stop(ctx); err != nil {
		slog.Warn("shutdown failed", "server", name, "error", err)
	}
}

// repeat calls send now and then rate times per second until ctx ends.
// A zero rate sends once.
func repeat(ctx context.Context, rate float64, send func() error) {
	if err := send(); err != nil {
		slog.Warn("send rejected", "error", err)
	}
	if rate <= 0 {
		return
	}

	ticker := time.NewTicker(time.Duration(float64(time.Second) / rate))
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := send(); err != nil {
				slog.Warn("send rejected", "error", err)
			}
		}
	}
}

// frameSender is the part of *link.Handle that feedSnapshots uses.
type frameSender interface {
	SendSnapshot(s *eagle.WorldSnapshot) error
}

// feedSnapshots sends one frame per JSON line until input ends or ctx is
// done. Lines that do not parse or encode are logged and skipped. Reads
// happen on a separate goroutine so an idle stdin or FIFO cannot hold up
// shutdown; that goroutine exits at the next line or at EOF.
func feedSnapshots(ctx context.Context, h frameSender, input io.Reader) (sent int) {
	lines := make(chan []byte)
	scanErr := make(chan error, 1)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(input)
		scanner.Buffer(make([]byte, 0, 64*1024), maxSnapshotLine)
		for scanner.Scan() {
			select {
			case lines <- bytes.Clone(scanner.Bytes()):
			case <-ctx.Done():
				return
			}
		}
		scanErr <- scanner.Err()
	}()

	lineNo := 0
	for {
		select {
		case <-ctx.Done():
			slog.Info("snapshot input stopped", "lines", lineNo, "sent", sent)
			return sent
		case line, ok := <-lines:
			if ctx.Err() != nil {
				return sent
			}
			if !ok {
				select {
				case err := <-scanErr:
					if err != nil {
						slog.Warn("snapshot input failed", "error", err)
					}
				default:
				}
				slog.Info("snapshot input finished", "lines", lineNo, "sent", sent)
				return sent
			}
			lineNo++
			if len(line) == 0 {
				continue
			}

			snapshot, err := parseSnapshot(line)
			if err != nil {
				slog.Warn("skipping snapshot", "line", lineNo, "error", err)
				continue
			}
			if err := h.SendSnapshot(snapshot); err != nil {
				slog.Warn("skipping snapshot", "line", lineNo, "error", err)
				continue
			}
			sent++
		}
	}
}

// lineDrainer is the part of *link.Handle that drainLines uses.
type lineDrainer interface {
	DrainLines() []linebuf.Entry
}

// drainLines prints received lines every interval until ctx ends, then
// flushes whatever is left.
func drainLines(ctx context.Context, h lineDrainer, interval time.Duration, out io.Writer) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			printLines(out, h.DrainLines())
			return
		case <-ticker.C:
			printLines(out, h.DrainLines())
		}
	}
}

func printLines(out io.Writer, entries []linebuf.Entry) {
	for _, e := range entries {
		ts := e.Time.Format("15:04:05.000")
		if e.Kind == linebuf.KindHex {
			fmt.Fprintf(out, "%s [hex] %s\n", ts, e.Text)
			continue
		}
		fmt.Fprintf(out, "%s %s\n", ts, e.Text)
	}
}

// testPatternFrame returns a full-length frame of repeating A-Z ending in
// CRLF, as used on the bench to check the link without a robot decoder.
func testPatternFrame() []byte {
	frame := make([]byte, eagle.FrameLen)
	for i := 0; i < eagle.FrameLen-2; i++ {
		frame[i] = byte('A' + i%26)
	}
	frame[eagle.FrameLen-2] = '\r'
	frame[eagle.FrameLen-1] = '\n'
	return frame
}
