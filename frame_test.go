// Copyright 2014 Quoc-Viet Nguyen. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD license. See the LICENSE file for details.

package modbus

import "testing"

func TestBuildRequest(t *testing.T) {
	b := &Bus{slaveID: 0x11}
	n, err := b.buildRequest(FuncCodeReadHoldingRegisters, dataBlock(0x006B, 0x0003))
	if err != nil {
		t.Fatalf("buildRequest: %v", err)
	}
	want := []byte{0x11, 0x03, 0x00, 0x6B, 0x00, 0x03, 0x76, 0x87}
	if n != len(want) {
		t.Fatalf("length = %d, want %d", n, len(want))
	}
	for i := range want {
		if b.buf[i] != want[i] {
			t.Errorf("buf[%d] = %#02x, want %#02x", i, b.buf[i], want[i])
		}
	}
}

func TestBuildRequestTooLong(t *testing.T) {
	b := &Bus{slaveID: 1}
	_, err := b.buildRequest(FuncCodeWriteMultipleRegisters, make([]byte, 300))
	if err == nil {
		t.Fatal("expected an error for an oversized payload, got nil")
	}
}

func TestVerifyCRC(t *testing.T) {
	good := []byte{0x11, 0x03, 0x00, 0x6B, 0x00, 0x03, 0x76, 0x87}
	if !verifyCRC(good) {
		t.Error("verifyCRC(good frame) = false, want true")
	}

	bad := append([]byte{}, good...)
	bad[len(bad)-1] ^= 0xFF
	if verifyCRC(bad) {
		t.Error("verifyCRC(corrupted frame) = true, want false")
	}
}

func TestDataBlock(t *testing.T) {
	tests := []struct {
		name   string
		values []uint16
		want   []byte
	}{
		{"single", []uint16{0x1234}, []byte{0x12, 0x34}},
		{"multiple", []uint16{0x1234, 0x5678}, []byte{0x12, 0x34, 0x56, 0x78}},
		{"empty", nil, []byte{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := dataBlock(tt.values...)
			if len(got) != len(tt.want) {
				t.Fatalf("length = %d, want %d", len(got), len(tt.want))
			}
			for i := range tt.want {
				if got[i] != tt.want[i] {
					t.Errorf("byte %d = %#02x, want %#02x", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestPackUnpackCoils(t *testing.T) {
	values := []byte{1, 0, 1, 1, 0, 0, 1, 1, 1, 0}
	packed := packCoils(values)
	want := []byte{0xCD, 0x01} // canonical 10-coil write-multiple-coils example
	if len(packed) != len(want) {
		t.Fatalf("packed length = %d, want %d", len(packed), len(want))
	}
	for i := range want {
		if packed[i] != want[i] {
			t.Errorf("packed[%d] = %#02x, want %#02x", i, packed[i], want[i])
		}
	}

	unpacked := unpackCoils(packed, len(values))
	for i, v := range values {
		wantByte := byte(0x00)
		if v != 0 {
			wantByte = 0xFF
		}
		if unpacked[i] != wantByte {
			t.Errorf("unpacked[%d] = %#02x, want %#02x", i, unpacked[i], wantByte)
		}
	}
}

func TestWriteMultipleCoilsPayload(t *testing.T) {
	payload := writeMultipleCoilsPayload(0x0013, []byte{1, 0, 1, 1, 0, 0, 1, 1, 1, 0})
	want := []byte{0x00, 0x13, 0x00, 0x0A, 0x02, 0xCD, 0x01}
	if len(payload) != len(want) {
		t.Fatalf("length = %d, want %d", len(payload), len(want))
	}
	for i := range want {
		if payload[i] != want[i] {
			t.Errorf("payload[%d] = %#02x, want %#02x", i, payload[i], want[i])
		}
	}
}

func TestWriteMultipleRegistersPayload(t *testing.T) {
	payload := writeMultipleRegistersPayload(0x0001, dataBlock(0x000A, 0x0102))
	want := []byte{0x00, 0x01, 0x00, 0x02, 0x04, 0x00, 0x0A, 0x01, 0x02}
	if len(payload) != len(want) {
		t.Fatalf("length = %d, want %d", len(payload), len(want))
	}
	for i := range want {
		if payload[i] != want[i] {
			t.Errorf("payload[%d] = %#02x, want %#02x", i, payload[i], want[i])
		}
	}
}
