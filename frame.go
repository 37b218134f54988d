// Copyright 2014 Quoc-Viet Nguyen. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD license. See the LICENSE file for details.

package modbus

import (
	"encoding/binary"
	"fmt"
)

const (
	rtuMinSize = 4   // addr + fncode + crc(2)
	rtuMaxSize = 256 // protocol ADU limit
	rtuMaxPDU  = 253 // rtuMaxSize - addr(1) - crc(2)

	maxRegisters = 123
	maxCoils     = 1968
)

// buildRequest lays out a full RTU frame for fncode/payload into b.buf and
// returns its length: address at offset 0, fncode at 1, payload at 2..,
// CRC at the last two bytes. This is the generic send-side half of the
// template in the transaction driver: callers supply only the PDU.
func (b *Bus) buildRequest(fncode byte, payload []byte) (int, error) {
	length := len(payload) + 4
	if length > rtuMaxSize {
		return 0, fmt.Errorf("%w: payload length %d exceeds frame limit", ErrInvalidData, len(payload))
	}
	b.buf[0] = b.slaveID
	b.buf[1] = fncode
	copy(b.buf[2:], payload)

	var c crc
	c.reset().pushBytes(b.buf[:length-2])
	checksum := c.value()
	b.buf[length-2] = byte(checksum)
	b.buf[length-1] = byte(checksum >> 8)
	return length, nil
}

// verifyCRC reports whether CRC-16 over the full received ADU (address
// through the trailing CRC bytes) is zero, per §4.1.
func verifyCRC(adu []byte) bool {
	var c crc
	c.reset().pushBytes(adu)
	return c.value() == 0
}

// dataBlock packs a sequence of big-endian uint16 values, mirroring the
// teacher's helper of the same name.
func dataBlock(values ...uint16) []byte {
	data := make([]byte, 2*len(values))
	for i, v := range values {
		binary.BigEndian.PutUint16(data[i*2:], v)
	}
	return data
}

// packCoils packs one byte per coil (zero=off, non-zero=on) into the
// ⌈len(values)/8⌉-byte little-endian-within-byte bitfield the wire uses,
// least-significant bit first per coil 0.
func packCoils(values []byte) []byte {
	out := make([]byte, (len(values)+7)/8)
	for i, v := range values {
		if v != 0 {
			out[i/8] |= 1 << uint(i%8)
		}
	}
	return out
}

// unpackCoils expands a packed coil bitfield into one byte per coil: 0xFF
// when set, 0x00 when clear, per §4.2's decode rule.
func unpackCoils(packed []byte, count int) []byte {
	out := make([]byte, count)
	for i := 0; i < count; i++ {
		if packed[i/8]&(1<<uint(i%8)) != 0 {
			out[i] = 0xFF
		}
	}
	return out
}

// readRequestPayload builds the function-specific payload (everything between
// fncode and CRC) for the read/write operations. Fixed-shape requests for
// 0x07 and 0x11 carry no payload at all.
func readRequestPayload(address, quantity uint16) []byte {
	return dataBlock(address, quantity)
}

func writeSinglePayload(address, value uint16) []byte {
	return dataBlock(address, value)
}

// writeMultipleCoilsPayload lays out start/count/bytecount/packed-bits for
// function 0x0F.
func writeMultipleCoilsPayload(address uint16, values []byte) []byte {
	packed := packCoils(values)
	payload := make([]byte, 5+len(packed))
	binary.BigEndian.PutUint16(payload, address)
	binary.BigEndian.PutUint16(payload[2:], uint16(len(values)))
	payload[4] = byte(len(packed))
	copy(payload[5:], packed)
	return payload
}

// writeMultipleRegistersPayload lays out start/count/bytecount/registers
// for function 0x10. regs is big-endian-packed register data, 2 bytes each.
func writeMultipleRegistersPayload(address uint16, regs []byte) []byte {
	quantity := len(regs) / 2
	payload := make([]byte, 5+len(regs))
	binary.BigEndian.PutUint16(payload, address)
	binary.BigEndian.PutUint16(payload[2:], uint16(quantity))
	payload[4] = byte(len(regs))
	copy(payload[5:], regs)
	return payload
}
