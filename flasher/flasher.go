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

// Package flasher orchestrates the end-to-end flashing procedure:
// handshake, stay-in-ROM, baud upgrade, per-sector erase/write with
// empty-sector skipping, and whole-image CRC verification.
package flasher

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/haivivi/go-bkboot"
	"github.com/rs/zerolog"
)

// Status is the final outcome of a flashing run.
type Status int

const (
	// StatusVerified means the device CRC matched the local reference.
	StatusVerified Status = iota
	// StatusMismatched means the write completed but the CRCs disagree.
	StatusMismatched
	// StatusInconclusive means the device CRC response was absent or
	// malformed, so verification could not be performed either way.
	StatusInconclusive
	// StatusAborted means the run stopped before verification.
	StatusAborted
)

func (s Status) String() string {
	switch s {
	case StatusVerified:
		return "verified"
	case StatusMismatched:
		return "crc-mismatch"
	case StatusInconclusive:
		return "verification-inconclusive"
	case StatusAborted:
		return "aborted"
	default:
		return "unknown"
	}
}

// Step identifies where an aborted run stopped.
type Step int

const (
	// StepConnect is the connection handshake.
	StepConnect Step = iota
	// StepStayROM is the stay-in-ROM request.
	StepStayROM
	// StepSetBaud is the baud-rate upgrade.
	StepSetBaud
	// StepFlashID is the JEDEC id read.
	StepFlashID
	// StepErase is a sector erase.
	StepErase
	// StepWrite is a sector write.
	StepWrite
	// StepVerify is the CRC comparison.
	StepVerify
	// StepReboot is the final reboot.
	StepReboot
)

func (s Step) String() string {
	switch s {
	case StepConnect:
		return "connect"
	case StepStayROM:
		return "stay-rom"
	case StepSetBaud:
		return "set-baud"
	case StepFlashID:
		return "flash-id"
	case StepErase:
		return "erase"
	case StepWrite:
		return "write"
	case StepVerify:
		return "verify"
	case StepReboot:
		return "reboot"
	default:
		return "unknown"
	}
}

// Result is the per-run outcome handed back to the caller.
type Result struct {
	Elapsed        time.Duration
	BytesWritten   int
	SectorsWritten int
	SectorsSkipped int
	FlashID        uint32 // 0 when the device did not report one
	LocalCRC       uint32
	DeviceCRC      uint32 // valid only for Verified/Mismatched
	FailedAddr     uint32 // valid only when aborted in erase/write
	Status         Status
	FailedStep     Step // valid only when Status is StatusAborted
}

// Progress is called once per sector, after it was written or skipped.
type Progress func(sector, total int, addr uint32, skipped bool)

// Options tune a single flashing run.
type Options struct {
	// Progress, when set, receives per-sector notifications.
	Progress Progress
	// FastBaudRate, when non-zero, is negotiated after the handshake.
	// Failure to negotiate is not fatal; the run continues at the
	// current rate.
	FastBaudRate int
	// BaudDelayMS is the settle delay the device is told to apply
	// before switching.
	BaudDelayMS uint8
}

// baudReporter is implemented by transports that know their line rate.
type baudReporter interface {
	BaudRate() int
}

// Flasher programs firmware images through a boot ROM session.
type Flasher struct {
	dev    *bkboot.Device
	logger zerolog.Logger
}

// New creates a Flasher on an established device session.
func New(dev *bkboot.Device) *Flasher {
	return &Flasher{
		dev:    dev,
		logger: dev.Logger(),
	}
}

// Connect runs only the connection handshake, for callers that want a
// link test without flashing anything.
func (f *Flasher) Connect(ctx context.Context) error {
	return NewHandshake(f.dev).Connect(ctx)
}

// Flash runs the full flashing procedure for img. Each step gates the
// next; a sector failure aborts the run with the failing address in
// the result. A CRC mismatch does not abort: the data is already
// committed, so the outcome is reported and the device still reboots
// for diagnosis.
func (f *Flasher) Flash(ctx context.Context, img *Image, opts Options) (*Result, error) {
	start := time.Now()
	res := &Result{LocalCRC: img.CRC32()}

	abort := func(step Step, err error) (*Result, error) {
		res.Status = StatusAborted
		res.FailedStep = step
		res.Elapsed = time.Since(start)
		var se *bkboot.StatusError
		if errors.As(err, &se) {
			res.FailedAddr = se.Addr
		}
		return res, fmt.Errorf("%s: %w", step, err)
	}

	f.logger.Info().
		Int("size", img.Size()).
		Int("sectors", img.NumSectors()).
		Uint32("start_addr", img.StartAddr()).
		Msg("starting flash run")

	// Step 1: handshake.
	if err := f.Connect(ctx); err != nil {
		return abort(StepConnect, err)
	}

	// Step 2: stay-in-ROM. Some ROM revisions never acknowledge this.
	if ok, err := f.dev.StayROM(); err != nil {
		return abort(StepStayROM, err)
	} else if !ok {
		f.logger.Warn().Msg("no response to stay-ROM, continuing")
	}

	// Step 3: optional baud upgrade, local switch gated on device ack.
	if err := f.upgradeBaud(opts); err != nil {
		return abort(StepSetBaud, err)
	}

	// Step 4: flash id, informational only.
	id, err := f.dev.ReadFlashID()
	if err != nil {
		return abort(StepFlashID, err)
	}
	res.FlashID = id
	if id == 0 {
		f.logger.Warn().Msg("could not read flash id")
	} else {
		f.logger.Info().Str("flash_id", fmt.Sprintf("0x%08X", id)).Msg("flash id")
	}

	// Step 5: per-sector erase/write with empty-sector skipping.
	if step, err := f.writeSectors(ctx, img, opts, res); err != nil {
		return abort(step, err)
	}

	// Steps 6-7: CRC verification, local against device.
	deviceCRC, ok, err := f.dev.CheckCRC32(img.StartAddr(), img.EndAddr())
	if err != nil {
		return abort(StepVerify, err)
	}
	switch {
	case !ok:
		res.Status = StatusInconclusive
		f.logger.Warn().
			Str("local_crc", fmt.Sprintf("0x%08X", res.LocalCRC)).
			Msg("device CRC unavailable, verification inconclusive")
	case deviceCRC == res.LocalCRC:
		res.DeviceCRC = deviceCRC
		res.Status = StatusVerified
		f.logger.Info().Str("crc", fmt.Sprintf("0x%08X", deviceCRC)).Msg("CRC verified")
	default:
		res.DeviceCRC = deviceCRC
		res.Status = StatusMismatched
		f.logger.Error().
			Str("local_crc", fmt.Sprintf("0x%08X", res.LocalCRC)).
			Str("device_crc", fmt.Sprintf("0x%08X", deviceCRC)).
			Msg("CRC mismatch")
	}

	// Step 8: reboot, fire-and-forget. The image is already committed,
	// so a failed reboot write downgrades to a warning.
	if err := f.dev.Reboot(); err != nil {
		f.logger.Warn().Err(err).Msg("reboot command failed")
	}

	res.Elapsed = time.Since(start)
	return res, nil
}

// upgradeBaud negotiates opts.FastBaudRate when it differs from the
// transport's current rate. Negotiation failure is tolerated; only
// transport errors abort.
func (f *Flasher) upgradeBaud(opts Options) error {
	if opts.FastBaudRate <= 0 {
		return nil
	}
	if br, ok := f.dev.Transport().(baudReporter); ok && br.BaudRate() == opts.FastBaudRate {
		return nil
	}

	delay := opts.BaudDelayMS
	if delay == 0 {
		delay = 5
	}
	ok, err := f.dev.SetBaudRate(opts.FastBaudRate, delay)
	if err != nil {
		return err
	}
	if !ok {
		f.logger.Warn().Int("rate", opts.FastBaudRate).Msg("baud upgrade refused, staying at current rate")
		return nil
	}
	f.logger.Info().Int("rate", opts.FastBaudRate).Msg("baud rate upgraded")
	return nil
}

// writeSectors runs the erase/write loop in ascending address order.
// Cancellation is honored between sectors only: an in-flight sector
// erase or write cannot be safely interrupted.
func (f *Flasher) writeSectors(ctx context.Context, img *Image, opts Options, res *Result) (Step, error) {
	total := img.NumSectors()
	loopStart := time.Now()

	for i := 0; i < total; i++ {
		if err := ctx.Err(); err != nil {
			return StepWrite, fmt.Errorf("cancelled before sector %d: %w", i, err)
		}

		addr, sector := img.Sector(i)

		if IsErased(sector) {
			res.SectorsSkipped++
			f.logger.Debug().Str("addr", fmt.Sprintf("0x%08X", addr)).Msg("skipping empty sector")
			if opts.Progress != nil {
				opts.Progress(i+1, total, addr, true)
			}
			continue
		}

		if err := f.dev.SectorErase(addr); err != nil {
			return StepErase, err
		}
		if err := f.dev.SectorWrite(addr, sector); err != nil {
			return StepWrite, err
		}

		res.SectorsWritten++
		res.BytesWritten += bkboot.SectorSize

		elapsed := time.Since(loopStart).Seconds()
		var throughput float64
		if elapsed > 0 {
			throughput = float64(res.BytesWritten) / elapsed / 1024
		}
		f.logger.Debug().
			Str("addr", fmt.Sprintf("0x%08X", addr)).
			Int("sector", i+1).
			Int("total", total).
			Float64("kb_per_s", throughput).
			Msg("sector written")

		if opts.Progress != nil {
			opts.Progress(i+1, total, addr, false)
		}
	}
	return 0, nil
}
