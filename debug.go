// Copyright 2014 Quoc-Viet Nguyen. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD license. See the LICENSE file for details.

package modbus

import "strings"

// traceSent renders a request frame as "[HH][HH]..." for the debug trace,
// mirroring the teacher's serialPort.logf hex-dump style but using the
// per-byte bracket notation this package's debug output specifies.
func traceSent(frame []byte) string {
	return traceBytes(frame, '[', ']')
}

// traceReceived renders a reply frame as "<HH><HH>...".
func traceReceived(frame []byte) string {
	return traceBytes(frame, '<', '>')
}

func traceBytes(frame []byte, open, shut byte) string {
	const hex = "0123456789abcdef"
	var sb strings.Builder
	sb.Grow(len(frame) * 4)
	for _, b := range frame {
		sb.WriteByte(open)
		sb.WriteByte(hex[b>>4])
		sb.WriteByte(hex[b&0x0f])
		sb.WriteByte(shut)
	}
	return sb.String()
}
