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

// Package bkboot talks to the Beken boot ROM over a serial transport
// using the BK HCI framed protocol: link probing, baud negotiation,
// flash erase/program and CRC verification.
package bkboot

import (
	"encoding/binary"
	"fmt"
	"time"

	"github.com/haivivi/go-bkboot/internal/frame"
	"github.com/rs/zerolog"
)

// Timeouts contains the per-command response deadlines. Probes are
// short because the handshake resends anyway; full-chip CRC over a
// large region is the slowest operation the ROM performs.
type Timeouts struct {
	Probe  time.Duration // link-check window during the handshake
	Common time.Duration // stay-ROM, set-baud, reg access
	Erase  time.Duration // single sector erase
	Write  time.Duration // single sector write
	CRC    time.Duration // whole-region CRC
}

// DefaultTimeouts returns the deadlines proven against BK7258 boards.
func DefaultTimeouts() Timeouts {
	return Timeouts{
		Probe:  300 * time.Millisecond,
		Common: 2 * time.Second,
		Erase:  5 * time.Second,
		Write:  10 * time.Second,
		CRC:    30 * time.Second,
	}
}

// DeviceConfig contains configuration options for the Device
type DeviceConfig struct {
	// Timeouts are the per-command response deadlines
	Timeouts Timeouts
	// RetryConfig configures the connection handshake retry behavior
	RetryConfig *RetryConfig
}

// DefaultDeviceConfig returns default device configuration
func DefaultDeviceConfig() *DeviceConfig {
	return &DeviceConfig{
		Timeouts:    DefaultTimeouts(),
		RetryConfig: DefaultRetryConfig(),
	}
}

// Device is a command-level session with the boot ROM.
//
// Thread safety: Device is NOT thread-safe. The protocol correlates
// responses to commands purely by arrival order, so all methods must
// be called from a single goroutine with strict request/response
// alternation.
type Device struct {
	transport Transport
	dec       *frame.Decoder
	config    *DeviceConfig
	logger    zerolog.Logger
}

// Option configures a Device.
type Option func(*Device) error

// WithConfig replaces the whole device configuration.
func WithConfig(cfg *DeviceConfig) Option {
	return func(d *Device) error {
		if cfg == nil {
			return fmt.Errorf("%w: nil config", ErrInvalidParameter)
		}
		d.config = cfg
		return nil
	}
}

// WithTimeouts overrides the per-command deadlines.
func WithTimeouts(t Timeouts) Option {
	return func(d *Device) error {
		d.config.Timeouts = t
		return nil
	}
}

// WithRetryConfig overrides the handshake retry configuration.
func WithRetryConfig(rc *RetryConfig) Option {
	return func(d *Device) error {
		d.config.RetryConfig = rc
		return nil
	}
}

// WithLogger attaches a structured logger. The default discards.
func WithLogger(logger zerolog.Logger) Option {
	return func(d *Device) error {
		d.logger = logger
		return nil
	}
}

// New creates a Device on the given transport.
func New(transport Transport, opts ...Option) (*Device, error) {
	device := &Device{
		transport: transport,
		dec:       frame.NewDecoder(transportReader{transport}),
		config:    DefaultDeviceConfig(),
		logger:    zerolog.Nop(),
	}
	for _, opt := range opts {
		if err := opt(device); err != nil {
			return nil, err
		}
	}
	return device, nil
}

// transportReader adapts Transport to the codec's byte source.
type transportReader struct {
	t Transport
}

func (r transportReader) Read(n int, timeout time.Duration) ([]byte, error) {
	return r.t.Read(n, timeout)
}

// Transport returns the underlying transport.
func (d *Device) Transport() Transport {
	return d.transport
}

// Config returns the device configuration.
func (d *Device) Config() *DeviceConfig {
	return d.config
}

// Logger returns the device logger.
func (d *Device) Logger() zerolog.Logger {
	return d.logger
}

// Close closes the underlying transport.
func (d *Device) Close() error {
	if err := d.transport.Close(); err != nil {
		return fmt.Errorf("failed to close transport: %w", err)
	}
	return nil
}

// FlushInput drops pending transport input and any partially
// reassembled frame, so a fresh command cannot pair with stale bytes.
func (d *Device) FlushInput() error {
	if err := d.transport.FlushInput(); err != nil {
		return fmt.Errorf("flush input failed: %w", err)
	}
	d.dec.Reset()
	return nil
}

// sendCommon sends one common command and decodes at most one
// response. A nil response means the device stayed silent; that is
// reported as a value, not an error. A mismatched command id in the
// response is logged and tolerated, since some ROM revisions echo an
// unrelated in-flight response.
func (d *Device) sendCommon(cmdID byte, params []byte, expectID byte, timeout time.Duration) (*frame.Response, error) {
	if err := d.transport.Write(frame.EncodeCommon(cmdID, params)); err != nil {
		return nil, fmt.Errorf("send command 0x%02X: %w", cmdID, err)
	}
	resp, err := d.dec.ReadResponse(timeout)
	if err != nil {
		return nil, fmt.Errorf("response to command 0x%02X: %w", cmdID, err)
	}
	if resp != nil && resp.Kind == frame.KindCommon && resp.CmdID != expectID {
		d.logger.Warn().
			Hex("expected", []byte{expectID}).
			Hex("got", []byte{resp.CmdID}).
			Msg("response command id mismatch")
	}
	return resp, nil
}

// sendFlash sends one flash subcommand and decodes at most one response.
func (d *Device) sendFlash(subID byte, params []byte, timeout time.Duration) (*frame.Response, error) {
	if err := d.transport.Write(frame.EncodeFlash(subID, params)); err != nil {
		return nil, fmt.Errorf("send flash command 0x%02X: %w", subID, err)
	}
	resp, err := d.dec.ReadResponse(timeout)
	if err != nil {
		return nil, fmt.Errorf("response to flash command 0x%02X: %w", subID, err)
	}
	return resp, nil
}

// ProbeResult classifies the response to a link probe. The boot ROM's
// power-on notification can race the probe, so the caller needs more
// than a yes/no answer.
type ProbeResult int

const (
	// ProbeNone means no response arrived within the window.
	ProbeNone ProbeResult = iota
	// ProbeAck means the device acknowledged the link-check.
	ProbeAck
	// ProbeStartup means the unsolicited power-on notification arrived
	// instead of (or racing) the acknowledgment.
	ProbeStartup
	// ProbeOther means some unrelated response arrived.
	ProbeOther
)

// Probe flushes stale input, sends a link-check and classifies
// whatever single response arrives within the window. The connection
// handshake drives its state machine off this; steady-state callers
// should use LinkCheck.
func (d *Device) Probe(timeout time.Duration) (ProbeResult, error) {
	if err := d.FlushInput(); err != nil {
		return ProbeNone, err
	}
	if err := d.transport.Write(frame.EncodeCommon(cmdLinkCheck, nil)); err != nil {
		return ProbeNone, fmt.Errorf("link probe: %w", err)
	}
	resp, err := d.dec.ReadResponse(timeout)
	if err != nil {
		return ProbeNone, fmt.Errorf("link probe response: %w", err)
	}

	switch {
	case resp == nil:
		return ProbeNone, nil
	case resp.Kind == frame.KindCommon && resp.CmdID == rspLinkCheck:
		return ProbeAck, nil
	case resp.Kind == frame.KindCommon && resp.CmdID == cmdStartup:
		return ProbeStartup, nil
	default:
		return ProbeOther, nil
	}
}

// LinkCheck sends a link-check and reports whether any correctly
// shaped response arrived in time.
func (d *Device) LinkCheck() (bool, error) {
	resp, err := d.sendCommon(cmdLinkCheck, nil, rspLinkCheck, d.config.Timeouts.Common)
	if err != nil {
		return false, err
	}
	return resp != nil, nil
}

// StayROM asks the bootloader to stay resident instead of jumping to
// the application. Some ROM revisions never acknowledge this; callers
// treat a false result as a warning, not a failure.
func (d *Device) StayROM() (bool, error) {
	resp, err := d.sendCommon(cmdStayROM, []byte{paramStayROM}, cmdStayROM, d.config.Timeouts.Common)
	if err != nil {
		return false, err
	}
	return resp != nil, nil
}

// SetBaudRate negotiates a new line rate. The local transport rate is
// switched only after the device acknowledged, then the settle delay
// is observed before any further traffic. Returns false (with no
// local switch) when the device did not answer.
func (d *Device) SetBaudRate(rate int, delayMS uint8) (bool, error) {
	if rate <= 0 {
		return false, fmt.Errorf("%w: baud rate %d", ErrInvalidParameter, rate)
	}

	params := binary.LittleEndian.AppendUint32(nil, uint32(rate))
	params = append(params, delayMS)
	resp, err := d.sendCommon(cmdSetBaudRate, params, cmdSetBaudRate, d.config.Timeouts.Common)
	if err != nil {
		return false, err
	}
	if resp == nil {
		return false, nil
	}

	// Switching with an unconfirmed peer corrupts every frame after
	// this point, hence the ack gate above.
	time.Sleep(time.Duration(delayMS)*time.Millisecond + 50*time.Millisecond)
	if err := d.transport.SetBaudRate(rate); err != nil {
		return false, fmt.Errorf("local baud switch to %d: %w", rate, err)
	}
	d.dec.Reset()
	return true, nil
}

// Reboot sends the reboot command. Fire-and-forget: the device resets
// immediately, so no response is awaited.
func (d *Device) Reboot() error {
	if err := d.transport.Write(frame.EncodeCommon(cmdReboot, []byte{paramReboot})); err != nil {
		return fmt.Errorf("reboot: %w", err)
	}
	return nil
}

// ReadFlashID reads the flash chip's JEDEC id via the SPI passthrough
// subcommand. Returns 0 (unknown) when the response is missing or too
// short to carry an id.
func (d *Device) ReadFlashID() (uint32, error) {
	resp, err := d.sendFlash(flashCmdSPIOperate, jedecReadID, d.config.Timeouts.Common)
	if err != nil {
		return 0, err
	}
	if resp == nil || !resp.IsFlash() || len(resp.Payload) < 4 {
		return 0, nil
	}
	// The id bytes come back in SPI shift order, assembled big-endian.
	return binary.BigEndian.Uint32(resp.Payload[:4]), nil
}

// SectorErase erases the 4096-byte sector at addr. Returns a
// *StatusError when the device reports failure or stays silent.
func (d *Device) SectorErase(addr uint32) error {
	params := binary.LittleEndian.AppendUint32(nil, addr)
	resp, err := d.sendFlash(flashCmdSectorErase, params, d.config.Timeouts.Erase)
	if err != nil {
		return err
	}
	if resp == nil || !resp.IsFlash() {
		return &StatusError{Op: "sector erase", SubCmd: flashCmdSectorErase, Addr: addr, NoReply: true}
	}
	if resp.Status != 0 {
		return &StatusError{Op: "sector erase", SubCmd: flashCmdSectorErase, Addr: addr, Status: resp.Status}
	}
	return nil
}

// SectorWrite writes exactly one sector (4096 bytes) at addr.
func (d *Device) SectorWrite(addr uint32, data []byte) error {
	if len(data) != SectorSize {
		return fmt.Errorf("%w: got %d bytes", ErrSectorSize, len(data))
	}

	params := binary.LittleEndian.AppendUint32(make([]byte, 0, 4+SectorSize), addr)
	params = append(params, data...)
	resp, err := d.sendFlash(flashCmdSectorWrite, params, d.config.Timeouts.Write)
	if err != nil {
		return err
	}
	if resp == nil || !resp.IsFlash() {
		return &StatusError{Op: "sector write", SubCmd: flashCmdSectorWrite, Addr: addr, NoReply: true}
	}
	if resp.Status != 0 {
		return &StatusError{Op: "sector write", SubCmd: flashCmdSectorWrite, Addr: addr, Status: resp.Status}
	}
	return nil
}

// ChipErase erases the entire flash. Slow; uses the CRC deadline since
// it is the longest-running class of operation the ROM has.
func (d *Device) ChipErase() error {
	resp, err := d.sendFlash(flashCmdChipErase, nil, d.config.Timeouts.CRC)
	if err != nil {
		return err
	}
	if resp == nil || !resp.IsFlash() {
		return &StatusError{Op: "chip erase", SubCmd: flashCmdChipErase, NoReply: true}
	}
	if resp.Status != 0 {
		return &StatusError{Op: "chip erase", SubCmd: flashCmdChipErase, Status: resp.Status}
	}
	return nil
}

// CheckCRC32 asks the device for the CRC-32 of flash [start, end],
// bounds inclusive. ok is false when no usable response arrived; a
// device CRC that happens to be zero is still ok=true, so the two
// cases cannot be conflated.
func (d *Device) CheckCRC32(start, end uint32) (crc uint32, ok bool, err error) {
	params := binary.LittleEndian.AppendUint32(nil, start)
	params = binary.LittleEndian.AppendUint32(params, end)
	resp, err := d.sendCommon(cmdCheckCRC32, params, cmdCheckCRC32, d.config.Timeouts.CRC)
	if err != nil {
		return 0, false, err
	}
	if resp == nil || len(resp.Payload) < 4 {
		return 0, false, nil
	}
	return binary.LittleEndian.Uint32(resp.Payload[:4]), true, nil
}

// RegWrite writes a 32-bit SoC register over the boot ROM link.
// Acknowledgment-only: ok reports whether the device answered.
func (d *Device) RegWrite(addr, value uint32) (bool, error) {
	params := binary.LittleEndian.AppendUint32(nil, addr)
	params = binary.LittleEndian.AppendUint32(params, value)
	resp, err := d.sendCommon(cmdRegWrite, params, cmdRegWrite, d.config.Timeouts.Common)
	if err != nil {
		return false, err
	}
	return resp != nil, nil
}

// RegRead reads a 32-bit SoC register. The response echoes the address
// followed by the value, both little-endian.
func (d *Device) RegRead(addr uint32) (value uint32, ok bool, err error) {
	params := binary.LittleEndian.AppendUint32(nil, addr)
	resp, err := d.sendCommon(cmdRegRead, params, cmdRegRead, d.config.Timeouts.Common)
	if err != nil {
		return 0, false, err
	}
	if resp == nil || len(resp.Payload) < 8 {
		return 0, false, nil
	}
	return binary.LittleEndian.Uint32(resp.Payload[4:8]), true, nil
}
