// Copyright 2026 Jeremy Hahn
// SPDX-License-Identifier: MIT

package main

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/eagletech/eaglelink/pkg/eagle"
)

var (
	encodeInput string
	encodeRaw   bool
	decodeInput string
)

// encodeCmd encodes a snapshot into a frame.
var encodeCmd = &cobra.Command{
	Use:   "encode",
	Short: "Encode a snapshot into an Eagle frame",
	Long: `Read a world snapshot as JSON and print the 130-byte Eagle frame as hex.

Example snapshot:
  {"colour":"yellow",
   "self":{"detected":true,"pose":{"x":1.2,"y":0.8,"heading":1.57}},
   "objects":[{"type":"bleacher","pose":{"x":2.925,"y":1.325,"heading":1.5708}}]}

With --format json the quantized values are printed alongside the hex.`,
	RunE: runEncode,
}

// decodeCmd decodes a frame into readable form.
var decodeCmd = &cobra.Command{
	Use:   "decode [hex]",
	Short: "Decode an Eagle frame",
	Long: `Decode a 130-byte Eagle frame given as hex (argument, --input file or
stdin). Whitespace in the hex is ignored. The frame is validated: start
byte, checksum and object count must all be correct.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runDecode,
}

func init() {
	encodeCmd.Flags().StringVarP(&encodeInput, "input", "i", "-", "snapshot JSON file (- for stdin)")
	encodeCmd.Flags().BoolVar(&encodeRaw, "raw", false, "write the binary frame instead of hex")
	decodeCmd.Flags().StringVarP(&decodeInput, "input", "i", "-", "hex frame file (- for stdin)")
}

// encodeResult is the JSON form of the encode command's output.
type encodeResult struct {
	Hex       string         `json:"hex"`
	Quantized *eagle.Decoded `json:"quantized"`
}

func runEncode(cmd *cobra.Command, args []string) error {
	data, err := readInput(encodeInput)
	if err != nil {
		return err
	}

	snapshot, err := parseSnapshot(data)
	if err != nil {
		return err
	}

	frame, err := eagle.EncodeFrame(snapshot)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrCodec, err)
	}
	slog.Debug("snapshot encoded", "objects", len(snapshot.Objects), "checksum", frame[len(frame)-1])

	if encodeRaw {
		return writeOutput(frame)
	}

	switch format {
	case "text":
		return writeOutput([]byte(hex.EncodeToString(frame) + "\n"))
	case "json":
		quantized, err := eagle.Quantize(snapshot)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrCodec, err)
		}
		return writeJSON(encodeResult{Hex: hex.EncodeToString(frame), Quantized: quantized})
	default:
		return fmt.Errorf("%w: unsupported format %q", ErrInvalidInput, format)
	}
}

func runDecode(cmd *cobra.Command, args []string) error {
	var text string
	if len(args) == 1 {
		text = args[0]
	} else {
		data, err := readInput(decodeInput)
		if err != nil {
			return err
		}
		text = string(data)
	}

	frame, err := parseHexFrame(text)
	if err != nil {
		return err
	}

	decoded, err := eagle.Decode(frame)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrCodec, err)
	}

	switch format {
	case "text":
		return writeOutput([]byte(decoded.String() + "\n"))
	case "json":
		return writeJSON(decoded)
	default:
		return fmt.Errorf("%w: unsupported format %q", ErrInvalidInput, format)
	}
}

// parseSnapshot decodes one snapshot, rejecting unknown fields.
func parseSnapshot(data []byte) (*eagle.WorldSnapshot, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()

	var s eagle.WorldSnapshot
	if err := dec.Decode(&s); err != nil {
		return nil, fmt.Errorf("%w: snapshot JSON: %w", ErrInvalidInput, err)
	}
	return &s, nil
}

// parseHexFrame strips whitespace and an optional 0x prefix.
func parseHexFrame(text string) ([]byte, error) {
	cleaned := strings.Join(strings.Fields(text), "")
	cleaned = strings.TrimPrefix(strings.TrimPrefix(cleaned, "0x"), "0X")
	if cleaned == "" {
		return nil, fmt.Errorf("%w: no frame given", ErrInvalidInput)
	}

	frame, err := hex.DecodeString(cleaned)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid hex: %w", ErrInvalidInput, err)
	}
	return frame, nil
}

func writeJSON(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: %w", ErrCodec, err)
	}
	return writeOutput(append(data, '\n'))
}
