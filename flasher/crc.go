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

import "hash/crc32"

// CRCSeed is the initial fold value the device firmware uses. This is
// the "resume" convention: each chunk folds the previous result, so
// the final value is independent of chunk boundaries.
const CRCSeed uint32 = 0xFFFFFFFF

const crcChunkSize = 256

// UpdateCRC32 folds one chunk into a running checksum, zlib-style:
// the crc argument is the previous output, not a raw register value.
func UpdateCRC32(crc uint32, chunk []byte) uint32 {
	return crc32.Update(crc, crc32.IEEETable, chunk)
}

// CRC32 computes the device-compatible checksum of data from CRCSeed,
// folding in fixed chunks the way the reference host tool does.
func CRC32(data []byte) uint32 {
	crc := CRCSeed
	for len(data) > 0 {
		n := crcChunkSize
		if n > len(data) {
			n = len(data)
		}
		crc = UpdateCRC32(crc, data[:n])
		data = data[n:]
	}
	return crc
}
