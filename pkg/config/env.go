// Copyright 2026 Jeremy Hahn
// SPDX-License-Identifier: MIT

package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "EAGLELINK_"

// applyEnv overrides fields from environ, or from the process environment
// when environ is nil. Unset keys leave the current value alone.
func (c *Config) applyEnv(environ map[string]string) error {
	err := env.ParseWithOptions(c, env.Options{
		Environment: environ,
		Prefix:      EnvPrefix,
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return nil
}
