// Copyright 2026 Jeremy Hahn
// SPDX-License-Identifier: MIT

package monitor

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/flynn/noise"
	"golang.org/x/crypto/curve25519"
)

// GenerateStaticKey generates a new Curve25519 static key pair for the
// monitor server.
func GenerateStaticKey() (*noise.DHKey, error) {
	key, err := noise.DH25519.GenerateKeypair(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("%w: generate: %w", ErrInvalidKey, err)
	}
	return &key, nil
}

// LoadStaticKey builds a DHKey from raw private key bytes, deriving the
// public half by scalar base multiplication.
func LoadStaticKey(privateKey []byte) (*noise.DHKey, error) {
	if len(privateKey) != KeySize {
		return nil, fmt.Errorf("%w: private key must be %d bytes, got %d",
			ErrInvalidKey, KeySize, len(privateKey))
	}

	priv := make([]byte, KeySize)
	copy(priv, privateKey)

	pub, err := curve25519.X25519(priv, curve25519.Basepoint)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidKey, err)
	}

	return &noise.DHKey{Private: priv, Public: pub}, nil
}

// EncodeStaticKey hex-encodes the private half of key.
func EncodeStaticKey(key *noise.DHKey) string {
	return hex.EncodeToString(key.Private)
}

// DecodeStaticKey reverses EncodeStaticKey.
func DecodeStaticKey(encoded string) (*noise.DHKey, error) {
	privateKey, err := hex.DecodeString(strings.TrimSpace(encoded))
	if err != nil {
		return nil, fmt.Errorf("%w: invalid hex encoding: %w", ErrInvalidKey, err)
	}
	return LoadStaticKey(privateKey)
}

// DecodePublicKey parses a hex-encoded 32-byte public key as printed by
// "eaglelink keygen show".
func DecodePublicKey(encoded string) ([]byte, error) {
	pub, err := hex.DecodeString(strings.TrimSpace(encoded))
	if err != nil {
		return nil, fmt.Errorf("%w: invalid hex encoding: %w", ErrInvalidKey, err)
	}
	if len(pub) != KeySize {
		return nil, fmt.Errorf("%w: public key must be %d bytes, got %d",
			ErrInvalidKey, KeySize, len(pub))
	}
	return pub, nil
}

// ReadKeyFile loads a static key written by WriteKeyFile.
func ReadKeyFile(path string) (*noise.DHKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("monitor: read key file: %w", err)
	}
	defer WipeBytes(data)
	return DecodeStaticKey(string(data))
}

// WriteKeyFile stores the hex-encoded private key with owner-only
// permissions. An existing file is never overwritten.
func WriteKeyFile(path string, key *noise.DHKey) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return fmt.Errorf("monitor: create key directory: %w", err)
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return fmt.Errorf("monitor: create key file: %w", err)
	}
	if _, err := f.WriteString(EncodeStaticKey(key) + "\n"); err != nil {
		f.Close()
		return fmt.Errorf("monitor: write key file: %w", err)
	}
	return f.Close()
}

// LoadOrGenerateKeyFile reads the key at path, generating and storing a
// new one when the file does not exist. created reports which happened.
func LoadOrGenerateKeyFile(path string) (key *noise.DHKey, created bool, err error) {
	key, err = ReadKeyFile(path)
	if err == nil {
		return key, false, nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return nil, false, err
	}

	key, err = GenerateStaticKey()
	if err != nil {
		return nil, false, err
	}
	if err := WriteKeyFile(path, key); err != nil {
		WipeDHKey(key)
		return nil, false, err
	}
	return key, true, nil
}

// WipeBytes zeros b in place.
func WipeBytes(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

// WipeDHKey zeros both halves of key.
func WipeDHKey(key *noise.DHKey) {
	if key == nil {
		return
	}
	WipeBytes(key.Private)
	WipeBytes(key.Public)
}
