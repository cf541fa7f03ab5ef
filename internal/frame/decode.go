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

package frame

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"time"
)

// Kind discriminates the two structurally different response shapes.
type Kind int

const (
	// KindCommon is the short response shape used by link/session commands.
	KindCommon Kind = iota
	// KindFlash is the long response shape used by flash subcommands.
	KindFlash
)

// Response is one reassembled device response.
type Response struct {
	Payload []byte // parameter bytes after the fixed header
	Raw     []byte // complete frame including the 04 0E marker
	Kind    Kind
	CmdID   byte // common command id, or flash subcommand id for KindFlash
	Status  byte // flash status byte; meaningless for KindCommon
}

// IsFlash reports whether the response uses the flash subsystem shape.
func (r *Response) IsFlash() bool {
	return r.Kind == KindFlash
}

// ByteReader is the byte source a Decoder reassembles frames from.
// Read returns up to n bytes, returning fewer (or none) once the
// timeout elapses. A timeout is not an error.
type ByteReader interface {
	Read(n int, timeout time.Duration) ([]byte, error)
}

var respMarker = []byte{RespMarker0, RespMarker1}

const (
	readChunk    = 64
	pollInterval = 50 * time.Millisecond
)

// Decoder incrementally reassembles response frames from a byte stream.
// Bytes trailing a completed frame are retained for the next call, so
// back-to-back responses survive arbitrary fragmentation.
type Decoder struct {
	src ByteReader
	buf []byte
}

// NewDecoder creates a decoder reading from src.
func NewDecoder(src ByteReader) *Decoder {
	return &Decoder{src: src}
}

// Reset discards any buffered bytes. Call after flushing the transport
// input so stale fragments cannot pair with a fresh response.
func (d *Decoder) Reset() {
	d.buf = d.buf[:0]
}

// ReadResponse reads until one complete response is buffered or the
// timeout elapses. A timeout returns (nil, nil): response absence is a
// value the caller checks, not an error. Only transport failures error.
func (d *Decoder) ReadResponse(timeout time.Duration) (*Response, error) {
	deadline := time.Now().Add(timeout)
	for {
		if resp := d.extract(); resp != nil {
			return resp, nil
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil, nil
		}
		if remaining > pollInterval {
			remaining = pollInterval
		}

		chunk, err := d.src.Read(readChunk, remaining)
		if err != nil {
			return nil, fmt.Errorf("frame read failed: %w", err)
		}
		d.buf = append(d.buf, chunk...)
	}
}

// extract attempts to pull one complete frame out of the buffer.
// Returns nil when more bytes are needed.
func (d *Decoder) extract() *Response {
	for {
		idx := bytes.Index(d.buf, respMarker)
		if idx < 0 {
			// No marker: cap buffer growth from boot-log chatter, keeping
			// the final byte since it may be the start of a marker.
			if len(d.buf) > MaxScanBuffer {
				d.buf = append(d.buf[:0], d.buf[len(d.buf)-1])
			}
			return nil
		}
		d.buf = d.buf[idx:]

		if len(d.buf) < 3 {
			return nil
		}

		declared := d.buf[2]
		if declared == FlashLenSentinel {
			resp, again := d.extractFlash()
			if again {
				continue
			}
			return resp
		}

		resp, again := d.extractCommon(int(declared))
		if again {
			continue
		}
		return resp
	}
}

func (d *Decoder) extractCommon(declared int) (resp *Response, resync bool) {
	if declared < minCommonLength {
		d.resync()
		return nil, true
	}
	if len(d.buf) < 6 {
		return nil, false
	}
	if !d.echoValid() {
		d.resync()
		return nil, true
	}
	total := 3 + declared
	if len(d.buf) < total {
		return nil, false
	}

	raw := d.consume(total)
	return &Response{
		Kind:    KindCommon,
		CmdID:   raw[commonCmdOffset],
		Payload: raw[commonPayloadOffset:],
		Raw:     raw,
	}, false
}

func (d *Decoder) extractFlash() (resp *Response, resync bool) {
	if len(d.buf) < 7 {
		return nil, false
	}
	if !d.echoValid() || d.buf[6] != FlashOuterCmd {
		d.resync()
		return nil, true
	}
	if len(d.buf) < flashHeaderLen {
		return nil, false
	}
	inner := int(binary.LittleEndian.Uint16(d.buf[flashInnerLenOffset:]))
	if inner < 3 || inner > MaxInnerLength {
		d.resync()
		return nil, true
	}

	// The inner length double-counts the two bytes of the length field
	// itself, hence the -2.
	total := flashHeaderLen + inner - 2
	if len(d.buf) < total {
		return nil, false
	}

	raw := d.consume(total)
	return &Response{
		Kind:    KindFlash,
		CmdID:   raw[flashSubOffset],
		Status:  raw[flashStatusOffset],
		Payload: raw[flashPayloadOffset:],
		Raw:     raw,
	}, false
}

// echoValid checks the 01 E0 FC echo at offsets 3..5. The protocol has
// no checksum, so this echo is the only guard against a stray 04 0E in
// console output being mistaken for a frame.
func (d *Decoder) echoValid() bool {
	return d.buf[3] == CmdHeader0 && d.buf[4] == CmdHeader1 && d.buf[5] == CmdHeader2
}

// resync skips past a false marker match so scanning can continue.
func (d *Decoder) resync() {
	d.buf = d.buf[1:]
}

// consume removes and returns the first total bytes of the buffer.
func (d *Decoder) consume(total int) []byte {
	raw := make([]byte, total)
	copy(raw, d.buf[:total])
	d.buf = d.buf[total:]
	return raw
}

// Errors returned by DecodeCommand.
var (
	ErrShortFrame  = errors.New("frame too short")
	ErrBadHeader   = errors.New("bad command header")
	ErrLengthField = errors.New("length field does not match frame size")
)

// DecodeCommand parses a host-to-device frame back into its command id
// and parameters. The wire simulator and codec tests use this to verify
// round-trips; it is the inverse of EncodeCommon/EncodeFlash.
func DecodeCommand(raw []byte) (cmdID byte, params []byte, flash bool, err error) {
	if len(raw) < 5 {
		return 0, nil, false, ErrShortFrame
	}
	if raw[0] != CmdHeader0 || raw[1] != CmdHeader1 || raw[2] != CmdHeader2 {
		return 0, nil, false, ErrBadHeader
	}

	if raw[3] == FlashLenSentinel {
		if len(raw) < 8 || raw[4] != FlashOuterCmd {
			return 0, nil, false, ErrBadHeader
		}
		inner := int(binary.LittleEndian.Uint16(raw[5:7]))
		if inner != len(raw)-7 {
			return 0, nil, false, ErrLengthField
		}
		return raw[7], raw[8:], true, nil
	}

	if int(raw[3]) != len(raw)-4 {
		return 0, nil, false, ErrLengthField
	}
	return raw[4], raw[5:], false, nil
}
