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

// Common command ids (BK HCI over UART)
const (
	cmdLinkCheck   = 0x00
	rspLinkCheck   = 0x01 // link check is acknowledged with cmd id + 1
	cmdRegWrite    = 0x01
	cmdRegRead     = 0x03
	cmdReboot      = 0x0E
	cmdSetBaudRate = 0x0F
	cmdCheckCRC32  = 0x10
	cmdReset       = 0x70
	cmdStayROM     = 0xAA
	cmdStartup     = 0xFE // unsolicited power-on notification
)

// Flash subcommand ids, carried inside outer command 0xF4
const (
	flashCmdWrite       = 0x06
	flashCmdSectorWrite = 0x07
	flashCmdRead        = 0x08
	flashCmdSectorRead  = 0x09
	flashCmdChipErase   = 0x0A
	flashCmdSectorErase = 0x0B
	flashCmdRegRead     = 0x0C
	flashCmdRegWrite    = 0x0D
	flashCmdSPIOperate  = 0x0E
	flashCmdSizeErase   = 0x0F
)

// Extended command ids. The boot ROM accepts these in either frame
// shape; they are listed for completeness of the command table.
const (
	extCmdRAMWrite = 0x21
	extCmdRAMRead  = 0x23
	extCmdJump     = 0x25
)

// Fixed parameter bytes
const (
	paramReboot  = 0xA5 // reboot magic
	paramStayROM = 0x55 // stay-in-ROM magic
)

// jedecReadID is the raw SPI sequence for the standard "read JEDEC ID"
// opcode, passed through to the flash chip via flashCmdSPIOperate.
var jedecReadID = []byte{0x9F, 0x00, 0x00, 0x00}

// SectorSize is the erase/write granularity of the target flash.
const SectorSize = 4096

// ErasedByte is the value erased flash reads back as.
const ErasedByte = 0xFF
