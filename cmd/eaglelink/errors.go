// Copyright 2026 Jeremy Hahn
// SPDX-License-Identifier: MIT

package main

import "errors"

// Exit codes for the CLI.
const (
	// ExitSuccess indicates the command completed successfully.
	ExitSuccess = 0

	// ExitFailure indicates a link, codec or monitor operation failed.
	ExitFailure = 1

	// ExitConfigError indicates a configuration or input validation error.
	ExitConfigError = 2
)

// Sentinel errors for CLI operations.
var (
	// ErrInvalidInput is returned when flags or input data are missing or invalid.
	ErrInvalidInput = errors.New("invalid input")

	// ErrConfig is returned when the configuration file cannot be loaded.
	ErrConfig = errors.New("configuration error")

	// ErrCodec is returned when a frame cannot be encoded or decoded.
	ErrCodec = errors.New("codec failed")

	// ErrLinkFailed is returned when the BLE link cannot be started.
	ErrLinkFailed = errors.New("link failed")

	// ErrServerStart is returned when the status API or monitor cannot start.
	ErrServerStart = errors.New("server start failed")

	// ErrMonitorFailed is returned when the monitor stream cannot be read.
	ErrMonitorFailed = errors.New("monitor failed")

	// ErrKeyOperation is returned when a key generation or decoding operation fails.
	ErrKeyOperation = errors.New("key operation failed")

	// ErrFileOperation is returned when a file read or write operation fails.
	ErrFileOperation = errors.New("file operation failed")
)

// exitCode maps err onto the process exit status.
func exitCode(err error) int {
	switch {
	case err == nil:
		return ExitSuccess
	case errors.Is(err, ErrInvalidInput), errors.Is(err, ErrConfig):
		return ExitConfigError
	default:
		return ExitFailure
	}
}
