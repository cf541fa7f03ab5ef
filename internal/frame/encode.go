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

import "encoding/binary"

// EncodeCommon builds a common command frame:
//
//	01 E0 FC <len> <cmd_id> [params...]
//
// where len = 1 + len(params). The length byte is always computed here,
// never supplied by the caller.
func EncodeCommon(cmdID byte, params []byte) []byte {
	buf := make([]byte, 0, 5+len(params))
	buf = append(buf, CmdHeader0, CmdHeader1, CmdHeader2, byte(1+len(params)), cmdID)
	return append(buf, params...)
}

// EncodeFlash builds a flash subcommand frame:
//
//	01 E0 FC FF F4 <len_lo> <len_hi> <flash_cmd_id> [params...]
//
// with a 16-bit little-endian inner length of 1 + len(params).
func EncodeFlash(subID byte, params []byte) []byte {
	buf := make([]byte, 0, 8+len(params))
	buf = append(buf, CmdHeader0, CmdHeader1, CmdHeader2, FlashLenSentinel, FlashOuterCmd)
	buf = binary.LittleEndian.AppendUint16(buf, uint16(1+len(params)))
	buf = append(buf, subID)
	return append(buf, params...)
}

// EncodeCommonResponse builds a device-to-host common response:
//
//	04 0E <len> 01 E0 FC <cmd_id> [payload...]
//
// Used by the wire simulator and codec tests.
func EncodeCommonResponse(cmdID byte, payload []byte) []byte {
	buf := make([]byte, 0, 7+len(payload))
	buf = append(buf, RespMarker0, RespMarker1, byte(minCommonLength+len(payload)),
		CmdHeader0, CmdHeader1, CmdHeader2, cmdID)
	return append(buf, payload...)
}

// EncodeFlashResponse builds a device-to-host flash response:
//
//	04 0E FF 01 E0 FC F4 <len_lo> <len_hi> <flash_cmd_id> <status> [payload...]
//
// The inner length is 3 + len(payload), so that the reassembly formula
// total = 10 + inner - 2 lands exactly on the end of the payload.
func EncodeFlashResponse(subID, status byte, payload []byte) []byte {
	buf := make([]byte, 0, 11+len(payload))
	buf = append(buf, RespMarker0, RespMarker1, FlashLenSentinel,
		CmdHeader0, CmdHeader1, CmdHeader2, FlashOuterCmd)
	buf = binary.LittleEndian.AppendUint16(buf, uint16(3+len(payload)))
	buf = append(buf, subID, status)
	return append(buf, payload...)
}
