// Copyright 2014 Quoc-Viet Nguyen. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD license. See the LICENSE file for details.

package modbus

import "testing"

func TestCRC16(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want uint16
	}{
		{
			name: "read holding registers request, canonical Modbus example",
			data: []byte{0x11, 0x03, 0x00, 0x6B, 0x00, 0x03},
			want: 0x8776,
		},
		{
			name: "empty input",
			data: []byte{},
			want: 0xFFFF,
		},
		{
			name: "single byte",
			data: []byte{0x01},
			want: 0x807E,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := crc16(tt.data); got != tt.want {
				t.Errorf("crc16(% x) = %04X, want %04X", tt.data, got, tt.want)
			}
		})
	}
}

func TestCRC16ExportedMatchesInternal(t *testing.T) {
	data := []byte{0x01, 0x03, 0x00, 0x00, 0x00, 0x0A}
	if got, want := CRC16(data), crc16(data); got != want {
		t.Errorf("CRC16(% x) = %04X, want %04X matching crc16", data, got, want)
	}
}

// TestCRC16FullFrameIsZero checks the invariant verifyCRC relies on: CRC-16
// computed over a frame that already carries its own trailing CRC bytes is
// zero.
func TestCRC16FullFrameIsZero(t *testing.T) {
	payload := []byte{0x11, 0x03, 0x00, 0x6B, 0x00, 0x03}
	checksum := crc16(payload)
	frame := append(append([]byte{}, payload...), byte(checksum), byte(checksum>>8))

	var c crc
	c.reset().pushBytes(frame)
	if got := c.value(); got != 0 {
		t.Errorf("crc over self-terminated frame = %04X, want 0", got)
	}
}

func TestCRCIncrementalMatchesBulk(t *testing.T) {
	data := []byte{0x01, 0x0F, 0x00, 0x13, 0x00, 0x0A, 0x02, 0xCD, 0x01}

	var bulk crc
	bulk.reset().pushBytes(data)

	var incremental crc
	incremental.reset()
	for _, b := range data {
		incremental.pushByte(b)
	}

	if bulk.value() != incremental.value() {
		t.Errorf("pushBytes result %04X != pushByte-by-byte result %04X", bulk.value(), incremental.value())
	}
}
