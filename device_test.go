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
	"bytes"
	"encoding/binary"
	"testing"
	"time"

	"github.com/haivivi/go-bkboot/internal/frame"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastDevice(t *testing.T, mock *MockTransport) *Device {
	t.Helper()
	dev, err := New(mock, WithTimeouts(Timeouts{
		Probe:  20 * time.Millisecond,
		Common: 40 * time.Millisecond,
		Erase:  40 * time.Millisecond,
		Write:  40 * time.Millisecond,
		CRC:    40 * time.Millisecond,
	}))
	require.NoError(t, err)
	return dev
}

func TestProbeClassification(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name     string
		response []byte // nil means silence
		want     ProbeResult
	}{
		{
			name:     "acknowledged",
			response: frame.EncodeCommonResponse(rspLinkCheck, nil),
			want:     ProbeAck,
		},
		{
			name:     "startup notification",
			response: frame.EncodeCommonResponse(cmdStartup, []byte{0x01}),
			want:     ProbeStartup,
		},
		{
			name:     "unrelated response",
			response: frame.EncodeCommonResponse(0x55, nil),
			want:     ProbeOther,
		},
		{
			name:     "silence",
			response: nil,
			want:     ProbeNone,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			mock := NewMockTransport()
			mock.Handle(cmdLinkCheck, func(_ int, _ []byte) []byte {
				return tt.response
			})
			dev := fastDevice(t, mock)

			result, err := dev.Probe(20 * time.Millisecond)
			require.NoError(t, err)
			assert.Equal(t, tt.want, result)
			assert.Equal(t, 1, mock.FlushCount(), "probe must flush stale input first")
		})
	}
}

func TestLinkCheck(t *testing.T) {
	t.Parallel()
	mock := NewMockTransport()
	mock.Handle(cmdLinkCheck, func(call int, _ []byte) []byte {
		if call == 1 {
			return nil
		}
		return frame.EncodeCommonResponse(rspLinkCheck, nil)
	})
	dev := fastDevice(t, mock)

	ok, err := dev.LinkCheck()
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = dev.LinkCheck()
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestStayROMSendsMagicByte(t *testing.T) {
	t.Parallel()
	mock := NewMockTransport()
	var got []byte
	mock.Handle(cmdStayROM, func(_ int, params []byte) []byte {
		got = append([]byte(nil), params...)
		return frame.EncodeCommonResponse(cmdStayROM, nil)
	})
	dev := fastDevice(t, mock)

	ok, err := dev.StayROM()
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []byte{paramStayROM}, got)
}

func TestSetBaudRateAckGatesLocalSwitch(t *testing.T) {
	t.Parallel()
	mock := NewMockTransport()
	var got []byte
	mock.Handle(cmdSetBaudRate, func(_ int, params []byte) []byte {
		got = append([]byte(nil), params...)
		return frame.EncodeCommonResponse(cmdSetBaudRate, params)
	})
	dev := fastDevice(t, mock)

	ok, err := dev.SetBaudRate(921600, 5)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []int{921600}, mock.BaudRates())

	want := binary.LittleEndian.AppendUint32(nil, 921600)
	want = append(want, 5)
	assert.Equal(t, want, got)
}

func TestSetBaudRateSilenceMeansNoSwitch(t *testing.T) {
	t.Parallel()
	mock := NewMockTransport()
	dev := fastDevice(t, mock)

	ok, err := dev.SetBaudRate(921600, 5)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Empty(t, mock.BaudRates(), "transport rate must not change without a device ack")
}

func TestSetBaudRateRejectsInvalidRate(t *testing.T) {
	t.Parallel()
	dev := fastDevice(t, NewMockTransport())
	_, err := dev.SetBaudRate(0, 5)
	assert.ErrorIs(t, err, ErrInvalidParameter)
}

func TestRebootIsFireAndForget(t *testing.T) {
	t.Parallel()
	mock := NewMockTransport()
	dev := fastDevice(t, mock)

	start := time.Now()
	require.NoError(t, dev.Reboot())
	assert.Less(t, time.Since(start), 20*time.Millisecond, "reboot must not wait for a response")

	writes := mock.Writes()
	require.Len(t, writes, 1)
	assert.Equal(t, frame.EncodeCommon(cmdReboot, []byte{paramReboot}), writes[0])
}

func TestReadFlashID(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name     string
		response []byte
		want     uint32
	}{
		{
			name:     "gd25q16 id",
			response: frame.EncodeFlashResponse(flashCmdSPIOperate, 0, []byte{0xC8, 0x40, 0x15, 0x00}),
			want:     0xC8401500,
		},
		{
			name:     "short payload",
			response: frame.EncodeFlashResponse(flashCmdSPIOperate, 0, []byte{0xC8}),
			want:     0,
		},
		{
			name:     "silence",
			response: nil,
			want:     0,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			mock := NewMockTransport()
			var got []byte
			mock.HandleFlash(flashCmdSPIOperate, func(_ int, params []byte) []byte {
				got = append([]byte(nil), params...)
				return tt.response
			})
			dev := fastDevice(t, mock)

			id, err := dev.ReadFlashID()
			require.NoError(t, err)
			assert.Equal(t, tt.want, id)
			assert.True(t, bytes.Equal(got, jedecReadID), "SPI passthrough must carry the JEDEC read sequence")
		})
	}
}

func TestSectorEraseStatusHandling(t *testing.T) {
	t.Parallel()

	t.Run("success", func(t *testing.T) {
		t.Parallel()
		mock := NewMockTransport()
		mock.RespondFlash(flashCmdSectorErase, 0, nil)
		dev := fastDevice(t, mock)
		assert.NoError(t, dev.SectorErase(0x2000))
	})

	t.Run("non-zero status", func(t *testing.T) {
		t.Parallel()
		mock := NewMockTransport()
		mock.RespondFlash(flashCmdSectorErase, 0x02, nil)
		dev := fastDevice(t, mock)

		err := dev.SectorErase(0x2000)
		var se *StatusError
		require.ErrorAs(t, err, &se)
		assert.Equal(t, uint32(0x2000), se.Addr)
		assert.Equal(t, byte(0x02), se.Status)
		assert.False(t, se.NoReply)
	})

	t.Run("silence", func(t *testing.T) {
		t.Parallel()
		mock := NewMockTransport()
		dev := fastDevice(t, mock)

		err := dev.SectorErase(0x2000)
		var se *StatusError
		require.ErrorAs(t, err, &se)
		assert.True(t, se.NoReply)
	})
}

func TestSectorWriteRequiresExactSector(t *testing.T) {
	t.Parallel()
	dev := fastDevice(t, NewMockTransport())

	assert.ErrorIs(t, dev.SectorWrite(0, make([]byte, 100)), ErrSectorSize)
	assert.ErrorIs(t, dev.SectorWrite(0, make([]byte, SectorSize+1)), ErrSectorSize)
	assert.ErrorIs(t, dev.SectorWrite(0, nil), ErrSectorSize)
}

func TestSectorWriteWireLayout(t *testing.T) {
	t.Parallel()
	mock := NewMockTransport()
	var got []byte
	mock.HandleFlash(flashCmdSectorWrite, func(_ int, params []byte) []byte {
		got = append([]byte(nil), params...)
		return frame.EncodeFlashResponse(flashCmdSectorWrite, 0, nil)
	})
	dev := fastDevice(t, mock)

	data := make([]byte, SectorSize)
	data[0] = 0xAB
	require.NoError(t, dev.SectorWrite(0x11000, data))

	require.Len(t, got, 4+SectorSize)
	assert.Equal(t, uint32(0x11000), binary.LittleEndian.Uint32(got[:4]))
	assert.Equal(t, data, got[4:])
}

func TestChipErase(t *testing.T) {
	t.Parallel()
	mock := NewMockTransport()
	mock.RespondFlash(flashCmdChipErase, 0, nil)
	dev := fastDevice(t, mock)
	assert.NoError(t, dev.ChipErase())
}

func TestCheckCRC32(t *testing.T) {
	t.Parallel()

	t.Run("value returned", func(t *testing.T) {
		t.Parallel()
		mock := NewMockTransport()
		var got []byte
		mock.Handle(cmdCheckCRC32, func(_ int, params []byte) []byte {
			got = append([]byte(nil), params...)
			return frame.EncodeCommonResponse(cmdCheckCRC32,
				binary.LittleEndian.AppendUint32(nil, 0x12345678))
		})
		dev := fastDevice(t, mock)

		crc, ok, err := dev.CheckCRC32(0x1000, 0x1FFF)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, uint32(0x12345678), crc)

		require.Len(t, got, 8)
		assert.Equal(t, uint32(0x1000), binary.LittleEndian.Uint32(got[:4]))
		assert.Equal(t, uint32(0x1FFF), binary.LittleEndian.Uint32(got[4:8]))
	})

	t.Run("zero CRC is still conclusive", func(t *testing.T) {
		t.Parallel()
		mock := NewMockTransport()
		mock.Respond(cmdCheckCRC32, []byte{0, 0, 0, 0})
		dev := fastDevice(t, mock)

		crc, ok, err := dev.CheckCRC32(0, 100)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Zero(t, crc)
	})

	t.Run("silence is inconclusive", func(t *testing.T) {
		t.Parallel()
		mock := NewMockTransport()
		dev := fastDevice(t, mock)

		_, ok, err := dev.CheckCRC32(0, 100)
		require.NoError(t, err)
		assert.False(t, ok)
	})
}

func TestRegAccess(t *testing.T) {
	t.Parallel()
	mock := NewMockTransport()
	mock.Handle(cmdRegRead, func(_ int, params []byte) []byte {
		// Response echoes the address, then carries the value.
		payload := append([]byte(nil), params[:4]...)
		payload = binary.LittleEndian.AppendUint32(payload, 0xCAFEF00D)
		return frame.EncodeCommonResponse(cmdRegRead, payload)
	})
	mock.Respond(cmdRegWrite, nil)
	dev := fastDevice(t, mock)

	value, ok, err := dev.RegRead(0x44010004)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, uint32(0xCAFEF00D), value)

	ok, err = dev.RegWrite(0x44010004, 1)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestMismatchedResponseIDTolerated(t *testing.T) {
	t.Parallel()
	// Some ROM revisions answer with an unrelated in-flight id; the
	// session logs it but still counts the response.
	mock := NewMockTransport()
	mock.Handle(cmdStayROM, func(_ int, _ []byte) []byte {
		return frame.EncodeCommonResponse(0x0E, nil)
	})
	dev := fastDevice(t, mock)

	ok, err := dev.StayROM()
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestFlushInputDropsPartialFrame(t *testing.T) {
	t.Parallel()
	mock := NewMockTransport()
	mock.Handle(cmdLinkCheck, func(_ int, _ []byte) []byte {
		return frame.EncodeCommonResponse(rspLinkCheck, nil)
	})
	dev := fastDevice(t, mock)

	// A truncated response marker left over from a previous session
	// must not pair with the next command.
	mock.EnqueueRaw([]byte{0x04, 0x0E, 0x10})
	require.NoError(t, dev.FlushInput())

	ok, err := dev.LinkCheck()
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestCloseClosesTransport(t *testing.T) {
	t.Parallel()
	mock := NewMockTransport()
	dev := fastDevice(t, mock)
	require.NoError(t, dev.Close())
	assert.ErrorIs(t, mock.Write([]byte{0x01}), ErrTransportClosed)
}
