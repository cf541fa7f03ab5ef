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

package bkboot

import (
	"bytes"
	"time"

	"github.com/haivivi/go-bkboot/internal/frame"
	"github.com/haivivi/go-bkboot/internal/syncutil"
)

// Transport is the byte-level serial connection to the boot ROM.
// Implementations must be best-effort on reads: a timeout yields a
// short (possibly empty) result, never an error. The protocol has no
// request ids, so exactly one command may be outstanding at a time;
// Transport users must never pipeline.
type Transport interface {
	// Write sends raw bytes to the device.
	Write(data []byte) error

	// Read returns up to n bytes, returning early with whatever has
	// arrived once timeout elapses. Timeouts are not errors.
	Read(n int, timeout time.Duration) ([]byte, error)

	// SetBaudRate changes the live line rate. Callers must only switch
	// after the device acknowledged the corresponding protocol command,
	// and must allow a short settling delay before sending again.
	SetBaudRate(rate int) error

	// FlushInput discards any pending unread input.
	FlushInput() error

	// Close closes the transport connection.
	Close() error

	// Type returns the transport type.
	Type() TransportType
}

// TransportType represents the type of transport
type TransportType string

const (
	// TransportUART represents UART/serial transport.
	TransportUART TransportType = "uart"
	// TransportMock represents a mock transport for testing
	TransportMock TransportType = "mock"
)

// MockHandler produces the raw response bytes for one decoded command.
// Returning nil means the device stays silent. call counts from 1 for
// each command id separately, so a handler can answer differently on
// retries (e.g. startup notification first, ack second).
type MockHandler func(call int, params []byte) []byte

type mockKey struct {
	flash bool
	id    byte
}

// MockTransport simulates a boot ROM at the wire level for testing.
// Outgoing frames are decoded and dispatched to per-command handlers;
// whatever they return is queued as pending read bytes, fragmented or
// prefixed with chatter however the test configured.
type MockTransport struct {
	handlers   map[mockKey]MockHandler
	callCount  map[mockKey]int
	writes     [][]byte
	rx         bytes.Buffer
	writeErr   error
	readErr    error
	baudRates  []int
	flushCount int
	closed     bool
	mu         syncutil.Mutex
}

// NewMockTransport creates a mock transport with no scripted responses.
func NewMockTransport() *MockTransport {
	return &MockTransport{
		handlers:  make(map[mockKey]MockHandler),
		callCount: make(map[mockKey]int),
	}
}

// Handle installs a handler for a common command id.
func (m *MockTransport) Handle(cmdID byte, h MockHandler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[mockKey{id: cmdID}] = h
}

// HandleFlash installs a handler for a flash subcommand id.
func (m *MockTransport) HandleFlash(subID byte, h MockHandler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[mockKey{flash: true, id: subID}] = h
}

// Respond installs a fixed common response for a command id.
func (m *MockTransport) Respond(cmdID byte, payload []byte) {
	m.Handle(cmdID, func(_ int, _ []byte) []byte {
		return frame.EncodeCommonResponse(cmdID, payload)
	})
}

// RespondFlash installs a fixed flash response for a subcommand id.
func (m *MockTransport) RespondFlash(subID, status byte, payload []byte) {
	m.HandleFlash(subID, func(_ int, _ []byte) []byte {
		return frame.EncodeFlashResponse(subID, status, payload)
	})
}

// EnqueueRaw queues raw bytes for reading, independent of any command.
// Use for boot chatter and unsolicited frames.
func (m *MockTransport) EnqueueRaw(data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rx.Write(data)
}

// SetWriteError makes subsequent writes fail with err.
func (m *MockTransport) SetWriteError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writeErr = err
}

// SetReadError makes subsequent reads fail with err.
func (m *MockTransport) SetReadError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.readErr = err
}

// Write implements Transport. The frame is decoded and dispatched.
func (m *MockTransport) Write(data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.writeErr != nil {
		return m.writeErr
	}
	if m.closed {
		return ErrTransportClosed
	}

	cp := make([]byte, len(data))
	copy(cp, data)
	m.writes = append(m.writes, cp)

	cmdID, params, flash, err := frame.DecodeCommand(data)
	if err != nil {
		// Malformed host frame: a real device would stay silent.
		return nil
	}

	key := mockKey{flash: flash, id: cmdID}
	m.callCount[key]++
	if h, ok := m.handlers[key]; ok {
		if resp := h(m.callCount[key], params); resp != nil {
			m.rx.Write(resp)
		}
	}
	return nil
}

// Read implements Transport with best-effort semantics.
func (m *MockTransport) Read(n int, timeout time.Duration) ([]byte, error) {
	m.mu.Lock()
	if m.readErr != nil {
		err := m.readErr
		m.mu.Unlock()
		return nil, err
	}
	if m.rx.Len() > 0 {
		out := m.rx.Next(n)
		cp := make([]byte, len(out))
		copy(cp, out)
		m.mu.Unlock()
		return cp, nil
	}
	m.mu.Unlock()

	// Nothing pending: behave like a quiet port within the timeout.
	if timeout > 2*time.Millisecond {
		timeout = 2 * time.Millisecond
	}
	time.Sleep(timeout)
	return nil, nil
}

// SetBaudRate implements Transport, recording the requested rates.
func (m *MockTransport) SetBaudRate(rate int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.baudRates = append(m.baudRates, rate)
	return nil
}

// FlushInput implements Transport, discarding pending read bytes.
func (m *MockTransport) FlushInput() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.flushCount++
	m.rx.Reset()
	return nil
}

// Close implements Transport.
func (m *MockTransport) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// Type implements Transport.
func (*MockTransport) Type() TransportType {
	return TransportMock
}

// Test inspection helpers

// CallCount returns how many times a common command was received.
func (m *MockTransport) CallCount(cmdID byte) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.callCount[mockKey{id: cmdID}]
}

// FlashCallCount returns how many times a flash subcommand was received.
func (m *MockTransport) FlashCallCount(subID byte) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.callCount[mockKey{flash: true, id: subID}]
}

// BaudRates returns the sequence of SetBaudRate calls.
func (m *MockTransport) BaudRates() []int {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]int, len(m.baudRates))
	copy(out, m.baudRates)
	return out
}

// FlushCount returns how many times FlushInput was called.
func (m *MockTransport) FlushCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.flushCount
}

// Writes returns copies of all raw frames written so far.
func (m *MockTransport) Writes() [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([][]byte, len(m.writes))
	copy(out, m.writes)
	return out
}

// Ensure MockTransport implements Transport
var _ Transport = (*MockTransport)(nil)
