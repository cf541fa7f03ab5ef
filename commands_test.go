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
	"testing"

	"github.com/stretchr/testify/assert"
)

// The ids below are fixed by the boot ROM; pin them so a refactor
// cannot silently renumber the wire protocol.
func TestCommandIDs(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		got  byte
		want byte
	}{
		{"link check", cmdLinkCheck, 0x00},
		{"link check ack", rspLinkCheck, 0x01},
		{"reg write", cmdRegWrite, 0x01},
		{"reg read", cmdRegRead, 0x03},
		{"reboot", cmdReboot, 0x0E},
		{"set baud rate", cmdSetBaudRate, 0x0F},
		{"check crc32", cmdCheckCRC32, 0x10},
		{"reset", cmdReset, 0x70},
		{"stay rom", cmdStayROM, 0xAA},
		{"startup notification", cmdStartup, 0xFE},
		{"flash sector write", flashCmdSectorWrite, 0x07},
		{"flash sector read", flashCmdSectorRead, 0x09},
		{"flash chip erase", flashCmdChipErase, 0x0A},
		{"flash sector erase", flashCmdSectorErase, 0x0B},
		{"flash spi operate", flashCmdSPIOperate, 0x0E},
		{"flash size erase", flashCmdSizeErase, 0x0F},
		{"ram write", extCmdRAMWrite, 0x21},
		{"ram read", extCmdRAMRead, 0x23},
		{"jump", extCmdJump, 0x25},
		{"reboot magic", paramReboot, 0xA5},
		{"stay rom magic", paramStayROM, 0x55},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, tt.got)
		})
	}
}

func TestFlashGeometry(t *testing.T) {
	t.Parallel()
	assert.Equal(t, 4096, SectorSize)
	assert.Equal(t, byte(0xFF), byte(ErasedByte))
	assert.Equal(t, []byte{0x9F, 0x00, 0x00, 0x00}, jedecReadID)
}
