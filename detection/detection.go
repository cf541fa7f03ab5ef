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

// Package detection enumerates serial ports and ranks how likely each
// one is to have a Beken board behind it, using USB metadata where the
// platform exposes it. Enumeration never opens a port; probing is
// opt-in because it writes to the line.
package detection

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/haivivi/go-bkboot"
	"github.com/haivivi/go-bkboot/transport/uart"
)

// ErrNoPortsFound means enumeration completed but found nothing usable.
var ErrNoPortsFound = errors.New("no serial ports found")

// Confidence ranks how likely a port is to be a Beken board.
type Confidence int

const (
	// Low means a serial port with no evidence either way.
	Low Confidence = iota
	// Medium means the USB identifiers match an adapter commonly found
	// on Beken development boards.
	Medium
	// High means the boot ROM acknowledged a link probe on this port.
	High
)

func (c Confidence) String() string {
	switch c {
	case Low:
		return "low"
	case Medium:
		return "medium"
	case High:
		return "high"
	default:
		return "unknown"
	}
}

// Port is one enumerated serial port with whatever USB metadata the
// platform could supply.
type Port struct {
	Path         string
	Name         string
	VIDPID       string
	Manufacturer string
	Product      string
	SerialNumber string
	Confidence   Confidence
}

// Options tunes a Detect run.
type Options struct {
	// Probe opens each candidate port and sends a link-check. Only
	// boards currently sitting in the boot ROM answer, so a failed
	// probe does not rule a port out; a successful one is decisive.
	Probe bool
	// ProbeTimeout is the per-port probe window. Zero means 300ms.
	ProbeTimeout time.Duration
	// BaudRate overrides the probe baud rate. Zero means 115200.
	BaudRate int
	// IgnorePaths lists device paths to skip entirely.
	IgnorePaths []string
}

// ListPorts enumerates serial ports and ranks them by USB metadata.
// No port is opened.
func ListPorts(ctx context.Context) ([]Port, error) {
	ports, err := enumeratePorts(ctx)
	if err != nil {
		return nil, err
	}
	if len(ports) == 0 {
		return nil, ErrNoPortsFound
	}
	for i := range ports {
		if isLikelyBoard(&ports[i]) {
			ports[i].Confidence = Medium
		}
	}
	return ports, nil
}

// Detect enumerates ports and, when opts.Probe is set, verifies each
// candidate with a single link-check. Probing stops early on context
// cancellation and returns whatever was found so far.
func Detect(ctx context.Context, opts Options) ([]Port, error) {
	ports, err := ListPorts(ctx)
	if err != nil {
		return nil, err
	}

	var out []Port
	for i := range ports {
		if isPathIgnored(ports[i].Path, opts.IgnorePaths) {
			continue
		}
		if opts.Probe {
			select {
			case <-ctx.Done():
				return out, nil
			default:
			}
			if probePort(ports[i].Path, opts) {
				ports[i].Confidence = High
			}
		}
		out = append(out, ports[i])
	}
	if len(out) == 0 {
		return nil, ErrNoPortsFound
	}
	return out, nil
}

func isPathIgnored(path string, ignore []string) bool {
	for _, p := range ignore {
		if p == path {
			return true
		}
	}
	return false
}

// knownAdapters maps USB VID:PID pairs of the serial bridges shipped
// on Beken development boards and modules.
var knownAdapters = []string{
	"1A86:7523", // QinHeng CH340
	"1A86:55D4", // QinHeng CH9102
	"10C4:EA60", // Silicon Labs CP210x
	"0403:6001", // FTDI FT232
	"067B:2303", // Prolific PL2303
}

// isLikelyBoard checks USB identifiers and descriptor strings against
// the adapters Beken boards actually ship with.
func isLikelyBoard(port *Port) bool {
	upper := strings.ToUpper(port.VIDPID)
	for _, known := range knownAdapters {
		if upper == known {
			return true
		}
	}

	lowerProduct := strings.ToLower(port.Product)
	lowerManuf := strings.ToLower(port.Manufacturer)
	for _, keyword := range []string{"ch340", "ch910", "cp210", "ft232", "uart", "beken"} {
		if strings.Contains(lowerProduct, keyword) || strings.Contains(lowerManuf, keyword) {
			return true
		}
	}
	return false
}

// probePort opens the port and sends one link-check. Single attempt
// only: the ROM either answers inside its listening window or it
// doesn't, and hammering arbitrary serial devices during detection is
// worse than a false negative.
func probePort(path string, opts Options) bool {
	baud := opts.BaudRate
	if baud == 0 {
		baud = uart.DefaultBaudRate
	}
	timeout := opts.ProbeTimeout
	if timeout == 0 {
		timeout = 300 * time.Millisecond
	}

	transport, err := uart.NewWithBaudRate(path, baud)
	if err != nil {
		return false
	}
	defer func() { _ = transport.Close() }()

	dev, err := bkboot.New(transport)
	if err != nil {
		return false
	}
	result, err := dev.Probe(timeout)
	return err == nil && result == bkboot.ProbeAck
}
