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

// Package uart implements the bkboot.Transport interface over a serial
// port using go.bug.st/serial.
package uart

import (
	"fmt"
	"strings"
	"time"

	"github.com/haivivi/go-bkboot"
	"github.com/haivivi/go-bkboot/internal/syncutil"
	"go.bug.st/serial"
)

// DefaultBaudRate is the rate the boot ROM listens at after power-on.
const DefaultBaudRate = 115200

const maxReadTimeout = 100 * time.Millisecond

// Transport implements bkboot.Transport for UART communication.
type Transport struct {
	port     serial.Port
	portName string
	baudRate int
	mu       syncutil.Mutex
}

// New opens a UART transport at the default 115200 8N1.
func New(portName string) (*Transport, error) {
	return NewWithBaudRate(portName, DefaultBaudRate)
}

// NewWithBaudRate opens a UART transport at an explicit initial rate.
func NewWithBaudRate(portName string, baudRate int) (*Transport, error) {
	port, err := serial.Open(portName, &serial.Mode{
		BaudRate: baudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open UART port %s: %w", portName, err)
	}

	if err := port.SetReadTimeout(maxReadTimeout); err != nil {
		_ = port.Close()
		return nil, fmt.Errorf("failed to set UART read timeout: %w", err)
	}

	return &Transport{
		port:     port,
		portName: portName,
		baudRate: baudRate,
	}, nil
}

// PortName returns the device path this transport was opened on.
func (t *Transport) PortName() string {
	return t.portName
}

// BaudRate returns the current line rate.
func (t *Transport) BaudRate() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.baudRate
}

// Write sends raw bytes and drains the output buffer so the frame is
// actually on the wire before the response window starts.
func (t *Transport) Write(data []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.port == nil {
		return bkboot.ErrTransportClosed
	}

	n, err := t.port.Write(data)
	if err != nil {
		return fmt.Errorf("UART write failed: %w", err)
	} else if n != len(data) {
		return bkboot.NewTransportWriteError("Write", t.portName)
	}

	return t.drainWithRetry("write")
}

// Read returns up to n bytes, best effort. A quiet line yields an
// empty result after the timeout, never an error.
func (t *Transport) Read(n int, timeout time.Duration) ([]byte, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.port == nil {
		return nil, bkboot.ErrTransportClosed
	}
	if n <= 0 {
		return nil, nil
	}

	if timeout > maxReadTimeout {
		timeout = maxReadTimeout
	}
	if err := t.port.SetReadTimeout(timeout); err != nil {
		return nil, fmt.Errorf("UART set read timeout failed: %w", err)
	}

	buf := make([]byte, n)
	read, err := t.port.Read(buf)
	if err != nil {
		return nil, fmt.Errorf("UART read failed: %w", err)
	}
	return buf[:read], nil
}

// SetBaudRate changes the live line rate. Only call after the device
// acknowledged the corresponding set-baud command; switching on a
// mismatched pair of ends corrupts every frame that follows.
func (t *Transport) SetBaudRate(rate int) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.port == nil {
		return bkboot.ErrTransportClosed
	}

	err := t.port.SetMode(&serial.Mode{
		BaudRate: rate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		return fmt.Errorf("UART baud change to %d failed: %w", rate, err)
	}
	t.baudRate = rate
	return nil
}

// FlushInput discards any pending unread input, typically boot-time
// console chatter sitting in the OS buffer.
func (t *Transport) FlushInput() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.port == nil {
		return bkboot.ErrTransportClosed
	}
	if err := t.port.ResetInputBuffer(); err != nil {
		return fmt.Errorf("UART input flush failed: %w", err)
	}
	return nil
}

// Close closes the serial port.
func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.port == nil {
		return nil
	}
	err := t.port.Close()
	t.port = nil
	if err != nil {
		return fmt.Errorf("UART close failed: %w", err)
	}
	return nil
}

// Type returns the transport type.
func (*Transport) Type() bkboot.TransportType {
	return bkboot.TransportUART
}

// isInterruptedSystemCall checks if an error is caused by an interrupted
// system call
func isInterruptedSystemCall(err error) bool {
	if err == nil {
		return false
	}
	errStr := strings.ToLower(err.Error())
	return strings.Contains(errStr, "interrupted system call") ||
		strings.Contains(errStr, "eintr")
}

// drainWithRetry performs port drain with retry logic for interrupted
// system calls
func (t *Transport) drainWithRetry(operation string) error {
	const maxRetries = 3
	baseDelay := 2 * time.Millisecond

	for attempt := 0; attempt < maxRetries; attempt++ {
		err := t.port.Drain()
		if err == nil {
			return nil
		}

		if isInterruptedSystemCall(err) {
			if attempt < maxRetries-1 {
				delay := baseDelay * time.Duration(1<<attempt) // 2ms, 4ms, 8ms
				time.Sleep(delay)
				continue
			}
		}

		return fmt.Errorf("UART %s drain failed: %w", operation, err)
	}

	return fmt.Errorf("UART %s drain failed after %d retries", operation, maxRetries)
}

// Ensure Transport implements bkboot.Transport
var _ bkboot.Transport = (*Transport)(nil)
