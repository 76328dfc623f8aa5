// Copyright 2026 Jeremy Hahn
// SPDX-License-Identifier: MIT

package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitLogging_Default(t *testing.T) {
	quiet = false
	debug = false
	logFormat = "text"
	initLogging()
}

func TestInitLogging_Debug(t *testing.T) {
	debug = true
	quiet = false
	logFormat = "text"
	initLogging()
	debug = false
}

func TestInitLogging_Quiet(t *testing.T) {
	quiet = true
	debug = false
	logFormat = "text"
	initLogging()
	quiet = false
}

func TestInitLogging_JSONFormat(t *testing.T) {
	quiet = false
	debug = false
	logFormat = "json"
	initLogging()
	logFormat = "text"
}

func TestInitLogging_InvalidFormat(t *testing.T) {
	quiet = false
	debug = false
	logFormat = "invalid"
	initLogging() // falls back to text
	logFormat = "text"
}

func TestWriteOutput_Stdout(t *testing.T) {
	outputFile = ""
	err := writeOutput([]byte("test data\n"))
	assert.NoError(t, err)
}

func TestWriteOutput_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "frame.hex")
	outputFile = path
	defer func() { outputFile = "" }()

	err := writeOutput([]byte("ff00"))
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "ff00", string(data))
}

func TestWriteOutput_InvalidPath(t *testing.T) {
	outputFile = "/nonexistent/dir/frame.hex"
	defer func() { outputFile = "" }()

	err := writeOutput([]byte("test"))
	assert.ErrorIs(t, err, ErrFileOperation)
}

func TestReadInput_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "in.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"colour":"blue"}`), 0o600))

	data, err := readInput(path)
	require.NoError(t, err)
	assert.Equal(t, `{"colour":"blue"}`, string(data))

	_, err = readInput(filepath.Join(t.TempDir(), "missing.json"))
	assert.ErrorIs(t, err, ErrFileOperation)
}

func TestLoadConfig(t *testing.T) {
	configFile = ""
	cfg, err := loadConfig()
	require.NoError(t, err)
	assert.Equal(t, "robot", cfg.Link.Peer)

	path := filepath.Join(t.TempDir(), "eaglelink.yaml")
	require.NoError(t, os.WriteFile(path, []byte("colour: purple\n"), 0o600))
	configFile = path
	defer func() { configFile = "" }()

	_, err = loadConfig()
	assert.ErrorIs(t, err, ErrConfig)
	assert.Equal(t, ExitConfigError, exitCode(err))
}

func TestRootCmd_HasExpectedSubcommands(t *testing.T) {
	names := make(map[string]bool)
	for _, cmd := range rootCmd.Commands() {
		names[cmd.Name()] = true
	}
	for _, want := range []string{"version", "run", "encode", "decode", "monitor", "keygen", "config"} {
		assert.True(t, names[want], "missing subcommand %s", want)
	}
}

func TestRootCmd_HasExpectedFlags(t *testing.T) {
	for _, name := range []string{"quiet", "debug", "format", "output", "log-format", "config"} {
		assert.NotNil(t, rootCmd.PersistentFlags().Lookup(name), "missing flag %s", name)
	}
}

func TestRootCmd_PersistentPreRun(t *testing.T) {
	oldVersion := version
	version = "test-prerun"
	defer func() { version = oldVersion }()

	rootCmd.SetArgs([]string{"version"})
	err := rootCmd.Execute()
	assert.NoError(t, err)
	rootCmd.SetArgs(nil)
}

func TestConfigShow(t *testing.T) {
	path := filepath.Join(t.TempDir(), "effective.yaml")
	outputFile = path
	configFile = ""
	defer func() { outputFile = "" }()

	require.NoError(t, runConfigShow(configShowCmd, nil))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "peer: robot")
	assert.Contains(t, string(data), "max_frame_rate: 20")
}
