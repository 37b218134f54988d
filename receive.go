// Copyright 2014 Quoc-Viet Nguyen. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD license. See the LICENSE file for details.

package modbus

import (
	"context"
	"fmt"
	"time"
)

// rxState is a state of the receive state machine described in the frame
// codec's design: ADDR and FUNC identify the reply, GETBYTECOUNT only runs
// for variable-length replies, DATA/CRC consume the remainder, and
// READEXCEPTION short-circuits an exception reply without reading its CRC.
type rxState int

const (
	rxAddr rxState = iota
	rxFunc
	rxGetByteCount
	rxData
	rxCRC
	rxReadException
	rxDone
)

// receive runs the state machine against b.transport, filling b.buf from
// offset 0, and returns the number of bytes accumulated and the outcome.
// It polls the transport for readability before every read, each poll
// bounded by what remains of the bus's configured timeout, measured from
// the start of receive; a poll that reports nothing ready, or a read
// that returns zero bytes after a ready poll, ends the transaction with
// Timeout. Every non-OK outcome flushes the transport's input queue
// before returning so the next transaction starts from a clean receive
// state. ctx is checked before every state transition and bounds the
// poll wait alongside b.timeout, so a cancelled or expired context aborts
// the wait without having to interrupt a blocking Transport call; the
// returned error is non-nil only in that case; a nil error always
// accompanies a plain protocol Outcome.
func (b *Bus) receive(ctx context.Context) (int, Outcome, error) {
	deadline := time.Now().Add(b.timeout)

	pos := 0
	state := rxAddr
	need := 1

	fail := func(o Outcome) (int, Outcome, error) {
		b.transport.FlushInput()
		return pos, o, nil
	}

	for state != rxDone {
		if err := ctx.Err(); err != nil {
			b.transport.FlushInput()
			return pos, Timeout, fmt.Errorf("modbus: receive cancelled: %w", err)
		}

		if pos+need > rtuMaxSize {
			return fail(InvalidByteCount)
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			return fail(Timeout)
		}
		if ctxDeadline, ok := ctx.Deadline(); ok {
			if untilCtx := time.Until(ctxDeadline); untilCtx < remaining {
				remaining = untilCtx
			}
		}
		ready, err := b.transport.Poll(remaining)
		if err != nil {
			return fail(Timeout)
		}
		if !ready {
			return fail(Timeout)
		}

		n, err := b.transport.Read(b.buf[pos : pos+need])
		if err != nil {
			return fail(Timeout)
		}
		if n == 0 {
			return fail(Timeout)
		}
		pos += n
		need -= n
		if need > 0 {
			// Partial read: stay in the same state and keep polling for
			// the rest of the chunk.
			continue
		}

		switch state {
		case rxAddr:
			state = rxFunc
			need = 1

		case rxFunc:
			fn := b.buf[1]
			switch {
			case fn&exceptionBit != 0:
				state = rxReadException
				need = 1
			case fn == FuncCodeReadCoils, fn == FuncCodeReadDiscreteInputs,
				fn == FuncCodeReadHoldingRegisters, fn == FuncCodeReadInputRegisters,
				fn == FuncCodeReportSlaveID:
				state = rxGetByteCount
				need = 1
			case fn == FuncCodeWriteSingleCoil, fn == FuncCodeWriteSingleRegister,
				fn == FuncCodeWriteMultipleCoils, fn == FuncCodeWriteMultipleRegisters:
				state = rxData
				need = 4
			case fn == FuncCodeReadExceptionStatus:
				state = rxData
				need = 1
			default:
				return fail(ExIllegalFunction)
			}

		case rxGetByteCount:
			count := int(b.buf[pos-1])
			if b.slaveIDQuirk && b.buf[1] == FuncCodeReportSlaveID {
				count--
			}
			if count < 0 || count > rtuMaxPDU {
				return fail(InvalidByteCount)
			}
			state = rxData
			need = count

		case rxData:
			state = rxCRC
			need = 2

		case rxCRC:
			state = rxDone

		case rxReadException:
			return fail(exceptionOutcome(b.buf[pos-1]))
		}
	}

	if !verifyCRC(b.buf[:pos]) {
		return fail(CRCError)
	}
	return pos, OK, nil
}
