// Copyright 2026 The go-bkboot Contributors.
// SPDX-License-Identifier: Apache-2.0
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// config holds the file-backed defaults. Flags override everything
// here; the file only spares retyping the same port and rates.
type config struct {
	Port         string `toml:"port"`
	BaudRate     int    `toml:"baud_rate"`
	FastBaudRate int    `toml:"fast_baud_rate"`
	Retries      int    `toml:"retries"`
	LogLevel     string `toml:"log_level"`
}

func defaultConfig() *config {
	return &config{
		BaudRate:     115200,
		FastBaudRate: 921600,
		Retries:      20,
		LogLevel:     "info",
	}
}

// defaultConfigPath returns the conventional config location, or ""
// when the user config dir cannot be determined.
func defaultConfigPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "bkflash", "config.toml")
}

// loadConfig reads TOML defaults from path. An explicitly given path
// must exist; the implicit default path is allowed to be absent.
func loadConfig(path string, explicit bool) (*config, error) {
	cfg := defaultConfig()
	if path == "" {
		return cfg, nil
	}

	meta, err := toml.DecodeFile(path, cfg)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) && !explicit {
			return defaultConfig(), nil
		}
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("config %s: unknown key %q", path, undecoded[0].String())
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

func (c *config) validate() error {
	if c.BaudRate <= 0 {
		return fmt.Errorf("baud_rate must be positive, got %d", c.BaudRate)
	}
	if c.FastBaudRate < 0 {
		return fmt.Errorf("fast_baud_rate must not be negative, got %d", c.FastBaudRate)
	}
	if c.Retries <= 0 {
		return fmt.Errorf("retries must be positive, got %d", c.Retries)
	}
	switch c.LogLevel {
	case "trace", "debug", "info", "warn", "error":
		return nil
	default:
		return fmt.Errorf("unknown log_level %q", c.LogLevel)
	}
}
