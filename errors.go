// Copyright 2014 Quoc-Viet Nguyen. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD license. See the LICENSE file for details.

package modbus

import (
	"errors"
	"fmt"
)

// Sentinel errors returned (wrapped with fmt.Errorf("%w: ...")) by argument
// validation and reply-shape checks throughout the package.
var (
	ErrInvalidQuantity = errors.New("modbus: invalid quantity")
	ErrInvalidData     = errors.New("modbus: invalid data")
	ErrInvalidResponse = errors.New("modbus: invalid response")
	ErrShortFrame      = errors.New("modbus: short frame")
	ErrProtocolError   = errors.New("modbus: protocol error")

	// serialInitErr is wrapped, together with whatever error the serial
	// adapter returned, into the error Open reports when the port cannot be
	// opened, so callers can still errors.Is the adapter's error.
	serialInitErr = errors.New("modbus: serial init failed")
)

// Outcome is the closed enumeration of transaction results. Numeric values
// are preserved for compatibility with the wire-level exception codes and
// the negative error-band convention used throughout the package.
type Outcome int16

const (
	// OK indicates a normal, fully decoded reply.
	OK Outcome = 0

	// Slave exception outcomes, negative of the 1-byte exception code
	// carried in an exception reply (function code with the high bit set).
	ExIllegalFunction    Outcome = -1
	ExIllegalDataAddress Outcome = -2
	ExIllegalDataValue   Outcome = -3
	ExSlaveDeviceFailure Outcome = -4
	ExAcknowledge        Outcome = -5
	ExSlaveDeviceBusy    Outcome = -6
	ExMemoryParityError  Outcome = -8

	// CRCError indicates the CRC-16 computed over the received ADU
	// (address through trailing CRC) was non-zero.
	CRCError Outcome = -256
	// Timeout indicates a poll returned no readable event, or a read
	// returned zero bytes after a readable poll, within the configured
	// budget.
	Timeout Outcome = -257
	// InvalidByteCount indicates a byte-count field that didn't match
	// the bytes actually carried, or a reply that would overflow the
	// 256-byte frame buffer.
	InvalidByteCount Outcome = -258
	// SerialInitFailed indicates the serial adapter refused to open the
	// configured device.
	SerialInitFailed Outcome = -259
	// TooManyItems indicates a caller-supplied register or coil count
	// exceeded the per-function maximum.
	TooManyItems Outcome = -260
)

// exceptionOutcome maps a 1..8 wire exception code to its Outcome. Codes
// 7, 9, 10 and 11 are not individually distinguished by this package and
// surface as their raw negated value, per the protocol's exception
// taxonomy for codes this package does not special-case.
func exceptionOutcome(code byte) Outcome {
	switch code {
	case 1:
		return ExIllegalFunction
	case 2:
		return ExIllegalDataAddress
	case 3:
		return ExIllegalDataValue
	case 4:
		return ExSlaveDeviceFailure
	case 5:
		return ExAcknowledge
	case 6:
		return ExSlaveDeviceBusy
	case 8:
		return ExMemoryParityError
	default:
		return Outcome(-int16(code))
	}
}

// ErrorText returns a human-readable description of an Outcome.
func ErrorText(o Outcome) string {
	switch o {
	case OK:
		return "ok"
	case ExIllegalFunction:
		return "illegal function"
	case ExIllegalDataAddress:
		return "illegal data address"
	case ExIllegalDataValue:
		return "illegal data value"
	case ExSlaveDeviceFailure:
		return "slave device failure"
	case ExAcknowledge:
		return "acknowledge"
	case ExSlaveDeviceBusy:
		return "slave device busy"
	case ExMemoryParityError:
		return "memory parity error"
	case CRCError:
		return "crc error"
	case Timeout:
		return "timeout"
	case InvalidByteCount:
		return "invalid byte count"
	case SerialInitFailed:
		return "serial init failed"
	case TooManyItems:
		return "too many registers or coils"
	default:
		if o < 0 && o >= -8 {
			return fmt.Sprintf("slave exception %d", -o)
		}
		return fmt.Sprintf("unknown outcome %d", int16(o))
	}
}

// ModbusError reports a transaction outcome that is not OK, carrying the
// wire-compatible Outcome code alongside the echoed function code where
// known. It satisfies errors.As for callers that need the numeric code.
type ModbusError struct {
	FunctionCode byte
	Outcome      Outcome
}

func (e *ModbusError) Error() string {
	return fmt.Sprintf("modbus: function %#x: %s", e.FunctionCode, ErrorText(e.Outcome))
}
