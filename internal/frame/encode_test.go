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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeCommonWireFormat(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name   string
		params []byte
		want   []byte
		cmdID  byte
	}{
		{
			name:  "link check no params",
			cmdID: 0x00,
			want:  []byte{0x01, 0xE0, 0xFC, 0x01, 0x00},
		},
		{
			name:   "stay rom",
			cmdID:  0xAA,
			params: []byte{0x55},
			want:   []byte{0x01, 0xE0, 0xFC, 0x02, 0xAA, 0x55},
		},
		{
			name:   "set baudrate 921600 delay 5ms",
			cmdID:  0x0F,
			params: []byte{0x00, 0x10, 0x0E, 0x00, 0x05},
			want:   []byte{0x01, 0xE0, 0xFC, 0x06, 0x0F, 0x00, 0x10, 0x0E, 0x00, 0x05},
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, EncodeCommon(tt.cmdID, tt.params))
		})
	}
}

func TestEncodeFlashWireFormat(t *testing.T) {
	t.Parallel()
	// Sector erase at 0x00011000: 01 E0 FC FF F4 <len16=5> 0B <addr LE>
	got := EncodeFlash(0x0B, []byte{0x00, 0x10, 0x01, 0x00})
	want := []byte{0x01, 0xE0, 0xFC, 0xFF, 0xF4, 0x05, 0x00, 0x0B, 0x00, 0x10, 0x01, 0x00}
	assert.Equal(t, want, got)
}

func TestCommonRoundTrip(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name   string
		params []byte
		cmdID  byte
	}{
		{"no params", nil, 0x00},
		{"one param", []byte{0xA5}, 0x0E},
		{"crc range", []byte{0, 0, 0, 0, 0xFF, 0x0F, 0, 0}, 0x10},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			raw := EncodeCommon(tt.cmdID, tt.params)
			cmdID, params, flash, err := DecodeCommand(raw)
			require.NoError(t, err)
			assert.False(t, flash)
			assert.Equal(t, tt.cmdID, cmdID)
			assert.Equal(t, len(tt.params), len(params))
			if len(tt.params) > 0 {
				assert.Equal(t, tt.params, params)
			}
		})
	}
}

func TestFlashRoundTrip(t *testing.T) {
	t.Parallel()
	sector := make([]byte, 4+4096)
	for i := range sector {
		sector[i] = byte(i)
	}

	tests := []struct {
		name   string
		params []byte
		subID  byte
	}{
		{"spi passthrough", []byte{0x9F, 0x00, 0x00, 0x00}, 0x0E},
		{"sector erase", []byte{0x00, 0x10, 0x00, 0x00}, 0x0B},
		{"sector write full", sector, 0x07},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			raw := EncodeFlash(tt.subID, tt.params)
			// Inner length is 1 + params, little-endian at offset 5.
			innerLen := int(raw[5]) | int(raw[6])<<8
			assert.Equal(t, 1+len(tt.params), innerLen)

			subID, params, flash, err := DecodeCommand(raw)
			require.NoError(t, err)
			assert.True(t, flash)
			assert.Equal(t, tt.subID, subID)
			assert.Equal(t, tt.params, params)
		})
	}
}

func TestDecodeCommandRejectsCorruptFrames(t *testing.T) {
	t.Parallel()
	tests := []struct {
		wantErr error
		name    string
		raw     []byte
	}{
		{ErrShortFrame, "too short", []byte{0x01, 0xE0}},
		{ErrBadHeader, "wrong header", []byte{0x02, 0xE0, 0xFC, 0x01, 0x00}},
		{ErrLengthField, "length mismatch", []byte{0x01, 0xE0, 0xFC, 0x05, 0x00}},
		{ErrBadHeader, "flash without outer cmd", []byte{0x01, 0xE0, 0xFC, 0xFF, 0xF5, 0x01, 0x00, 0x0B}},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, _, _, err := DecodeCommand(tt.raw)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}
