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

// Package frame implements the BK HCI wire format: command frame
// construction and response frame reassembly from a raw byte stream.
package frame

// Command frame header bytes - every host-to-device frame starts with these
const (
	CmdHeader0 = 0x01
	CmdHeader1 = 0xE0
	CmdHeader2 = 0xFC
)

// Flash subcommand framing - flash operations are nested inside one
// outer command id with a sentinel length byte and a 16-bit inner length
const (
	FlashLenSentinel = 0xFF // outer length byte marking the flash shape
	FlashOuterCmd    = 0xF4 // outer command id carrying all flash subcommands
)

// Response frame markers
const (
	RespMarker0 = 0x04
	RespMarker1 = 0x0E
)

// Fixed offsets within a reassembled response buffer
const (
	commonCmdOffset     = 6  // command id in a common response
	commonPayloadOffset = 7  // first payload byte in a common response
	flashHeaderLen      = 10 // bytes through the flash subcommand id
	flashInnerLenOffset = 7  // 16-bit little-endian inner length
	flashSubOffset      = 9  // flash subcommand id
	flashStatusOffset   = 10 // status byte
	flashPayloadOffset  = 11 // first payload byte in a flash response
)

// Size limits
const (
	// MaxScanBuffer caps buffer growth while hunting for the response
	// marker in boot-time console chatter. Once exceeded, everything but
	// the final byte is dropped (it may be the first marker byte).
	MaxScanBuffer = 256

	// MaxInnerLength bounds the flash inner length field. The largest
	// legitimate flash response carries a full 4096-byte sector read
	// plus addressing overhead; anything bigger is a corrupt length.
	MaxInnerLength = 4096 + 64

	minCommonLength = 4 // 01 E0 FC + cmd id, the smallest declared length
)
