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
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/haivivi/go-bkboot/transport/uart"
)

// runMonitor dumps raw serial output, typically to watch a board boot
// right after flashing. Printable text passes through; anything else
// is shown as a hex escape so binary bursts don't wreck the terminal.
func runMonitor(args []string) error {
	fs := flag.NewFlagSet("monitor", flag.ExitOnError)
	var cf commonFlags
	registerCommonFlags(fs, &cf)
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := resolveConfig(&cf)
	if err != nil {
		return err
	}
	logger := newLogger(cfg.LogLevel)

	ctx, cancel := signalContext()
	defer cancel()

	port, err := resolvePort(ctx, cfg, logger)
	if err != nil {
		return err
	}
	transport, err := uart.NewWithBaudRate(port, cfg.BaudRate)
	if err != nil {
		return fmt.Errorf("open %s: %w", port, err)
	}
	defer func() { _ = transport.Close() }()

	logger.Info().Str("port", port).Int("baud", cfg.BaudRate).Msg("monitoring, ctrl-c to stop")

	for {
		select {
		case <-ctx.Done():
			fmt.Println()
			return nil
		default:
		}

		chunk, err := transport.Read(256, 100*time.Millisecond)
		if err != nil {
			return fmt.Errorf("monitor read: %w", err)
		}
		writePrintable(os.Stdout, chunk)
	}
}

// writePrintable passes ASCII text and common whitespace through and
// hex-escapes the rest.
func writePrintable(out *os.File, chunk []byte) {
	for _, b := range chunk {
		switch {
		case b == '\n' || b == '\r' || b == '\t':
			fmt.Fprintf(out, "%c", b)
		case b >= 0x20 && b < 0x7F:
			fmt.Fprintf(out, "%c", b)
		default:
			fmt.Fprintf(out, "[%02X]", b)
		}
	}
}
