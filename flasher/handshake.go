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

package flasher

import (
	"context"
	"fmt"
	"time"

	"github.com/haivivi/go-bkboot"
	"github.com/rs/zerolog"
)

// State is the connection handshake state.
type State int

const (
	// StateIdle means no connection attempt has started.
	StateIdle State = iota
	// StateProbing means link-checks are being sent.
	StateProbing
	// StateStartupSeen means the device's power-on notification arrived
	// while probing; a follow-up link-check is in flight.
	StateStartupSeen
	// StateConnected means the device acknowledged a link-check.
	StateConnected
	// StateFailed means the retry budget was exhausted.
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateProbing:
		return "probing"
	case StateStartupSeen:
		return "startup-seen"
	case StateConnected:
		return "connected"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Handshake establishes a session with a boot ROM that may already be
// running or may power-cycle asynchronously. The ROM only listens for
// commands in a short window after power-on or the previous exchange,
// so the handshake resends link-checks rather than waiting once.
type Handshake struct {
	dev    *bkboot.Device
	logger zerolog.Logger
	state  State
}

// NewHandshake creates a handshake driver for dev.
func NewHandshake(dev *bkboot.Device) *Handshake {
	return &Handshake{
		dev:    dev,
		logger: dev.Logger(),
		state:  StateIdle,
	}
}

// State returns the current handshake state.
func (h *Handshake) State() State {
	return h.state
}

// Connect probes until the device acknowledges a link-check or the
// retry budget (the device's RetryConfig) is exhausted. A startup
// notification racing a probe is handled as its own state: the probe
// is re-issued immediately with the longer steady-state window, since
// the ROM is known to be listening right after announcing itself.
func (h *Handshake) Connect(ctx context.Context) error {
	h.state = StateProbing

	cfg := h.dev.Config()
	err := bkboot.RetryWithConfig(ctx, cfg.RetryConfig, func() error {
		return h.probeOnce(cfg.Timeouts.Probe)
	})
	if err != nil {
		h.state = StateFailed
		return fmt.Errorf("handshake failed: %w", err)
	}

	h.state = StateConnected
	h.logger.Info().Msg("connected to boot ROM")
	return nil
}

// probeOnce performs one probe cycle. Returning ErrNoResponse (which
// is retryable) keeps the retry loop going; nil means connected.
func (h *Handshake) probeOnce(timeout time.Duration) error {
	result, err := h.dev.Probe(timeout)
	if err != nil {
		return err
	}

	switch result {
	case bkboot.ProbeAck:
		return nil

	case bkboot.ProbeStartup:
		h.state = StateStartupSeen
		h.logger.Debug().Msg("startup notification received, re-probing")

		ok, err := h.dev.LinkCheck()
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		h.state = StateProbing
		return bkboot.ErrNoResponse

	case bkboot.ProbeOther:
		h.logger.Debug().Msg("unexpected response while probing")
		return bkboot.ErrNoResponse

	case bkboot.ProbeNone:
		return bkboot.ErrNoResponse

	default:
		return bkboot.ErrNoResponse
	}
}
