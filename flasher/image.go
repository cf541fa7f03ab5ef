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
	"errors"

	"github.com/haivivi/go-bkboot"
)

// ErrEmptyImage is returned when constructing an image with no bytes.
var ErrEmptyImage = errors.New("firmware image is empty")

// Image is an immutable firmware buffer plus its target start address,
// logically partitioned into fixed 4096-byte sectors. The final sector
// is right-padded with the erased-flash fill byte.
type Image struct {
	data      []byte
	startAddr uint32
}

// NewImage copies data into an immutable image targeting startAddr.
func NewImage(data []byte, startAddr uint32) (*Image, error) {
	if len(data) == 0 {
		return nil, ErrEmptyImage
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	return &Image{data: cp, startAddr: startAddr}, nil
}

// Size returns the unpadded image length in bytes.
func (i *Image) Size() int {
	return len(i.data)
}

// StartAddr returns the target flash address of the first byte.
func (i *Image) StartAddr() uint32 {
	return i.startAddr
}

// EndAddr returns the target address of the last byte, inclusive.
func (i *Image) EndAddr() uint32 {
	return i.startAddr + uint32(len(i.data)) - 1
}

// NumSectors returns ceil(size / 4096).
func (i *Image) NumSectors() int {
	return (len(i.data) + bkboot.SectorSize - 1) / bkboot.SectorSize
}

// Sector returns the flash address and padded contents of sector idx.
// The returned slice is always exactly 4096 bytes; the tail of the
// final sector is filled with 0xFF.
func (i *Image) Sector(idx int) (addr uint32, data []byte) {
	addr = i.startAddr + uint32(idx)*bkboot.SectorSize

	data = make([]byte, bkboot.SectorSize)
	start := idx * bkboot.SectorSize
	n := copy(data, i.data[start:])
	for j := n; j < bkboot.SectorSize; j++ {
		data[j] = bkboot.ErasedByte
	}
	return addr, data
}

// CRC32 returns the checksum of the exact (unpadded) image bytes,
// seeded the way the device firmware computes it.
func (i *Image) CRC32() uint32 {
	return CRC32(i.data)
}

// IsErased reports whether a sector is entirely 0xFF. Erased flash
// reads back as all-ones, so writing such a sector is a no-op.
func IsErased(sector []byte) bool {
	for _, b := range sector {
		if b != bkboot.ErasedByte {
			return false
		}
	}
	return true
}
