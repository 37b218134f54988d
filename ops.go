// Copyright 2014 Quoc-Viet Nguyen. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD license. See the LICENSE file for details.

package modbus

import (
	"context"
	"encoding/binary"
	"fmt"
)

// Every exported operation locks b.mu for its entire body — build, send,
// receive, and decode — so a Bus truly allows only one transaction in
// flight at a time, including the decode step that reads back out of the
// shared scratch buffer after transact returns.

// transact runs the generic send/receive half of the transaction
// template shared by every public operation: build the frame, write it,
// and run the receive state machine. Callers hold b.mu and still own
// steps (1) argument validation, (5) reply-shape validation and (6)
// decode. It assumes the caller already holds b.mu. A non-nil error is
// returned only when ctx is done; it is independent of the Outcome,
// which always reports a plain protocol result.
func (b *Bus) transact(ctx context.Context, fncode byte, payload []byte) (int, Outcome, error) {
	if b.transport == nil {
		return 0, b.setLastError(SerialInitFailed), nil
	}
	if err := ctx.Err(); err != nil {
		return 0, b.setLastError(Timeout), err
	}

	length, buildErr := b.buildRequest(fncode, payload)
	if buildErr != nil {
		return 0, b.setLastError(InvalidByteCount), nil
	}
	if b.debug {
		b.debugf("modbus: sending %s", traceSent(b.buf[:length]))
	}
	if err := b.transport.FlushInput(); err != nil {
		b.debugf("modbus: flush before send failed: %v", err)
	}
	if _, err := b.transport.Write(b.buf[:length]); err != nil {
		return 0, b.setLastError(Timeout), nil
	}
	if err := ctx.Err(); err != nil {
		return 0, b.setLastError(Timeout), err
	}

	n, outcome, err := b.receive(ctx)
	if err != nil {
		return n, b.setLastError(Timeout), err
	}
	if b.debug && n > 0 && b.buf[0] != b.slaveID {
		b.debugf("modbus: reply address %#02x differs from slave %#02x", b.buf[0], b.slaveID)
	}
	if outcome == OK && b.buf[1] != fncode {
		outcome = InvalidByteCount
	}
	if b.debug {
		b.debugf("modbus: received %s (%s)", traceReceived(b.buf[:n]), ErrorText(outcome))
	}
	return n, b.setLastError(outcome), nil
}

// ReadCoils reads quantity coils starting at address and returns one byte
// per coil (0xFF set, 0x00 clear).
func (b *Bus) ReadCoils(ctx context.Context, address, quantity uint16) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.readBits(ctx, FuncCodeReadCoils, address, quantity)
}

// ReadDiscreteInputs reads quantity discrete inputs starting at address.
func (b *Bus) ReadDiscreteInputs(ctx context.Context, address, quantity uint16) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.readBits(ctx, FuncCodeReadDiscreteInputs, address, quantity)
}

func (b *Bus) readBits(ctx context.Context, fncode byte, address, quantity uint16) ([]byte, error) {
	if quantity < 1 || quantity > maxCoils {
		return nil, b.newOpError(fncode, TooManyItems, fmt.Errorf("%w: quantity %d out of range 1..%d", ErrInvalidQuantity, quantity, maxCoils))
	}
	n, outcome, err := b.transact(ctx, fncode, readRequestPayload(address, quantity))
	if err != nil {
		return nil, b.newOpError(fncode, outcome, err)
	}
	if outcome != OK {
		return nil, b.newOpError(fncode, outcome, nil)
	}
	payload := b.buf[2 : n-2]
	count := int(payload[0])
	want := (int(quantity) + 7) / 8
	if count != want || len(payload)-1 != count {
		return nil, b.newOpError(fncode, InvalidByteCount, ErrInvalidResponse)
	}
	return unpackCoils(payload[1:1+count], int(quantity)), nil
}

// ReadHoldingRegisters reads quantity 16-bit holding registers starting at
// address, returned as quantity big-endian uint16 values.
func (b *Bus) ReadHoldingRegisters(ctx context.Context, address, quantity uint16) ([]uint16, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.readRegisters(ctx, FuncCodeReadHoldingRegisters, address, quantity)
}

// ReadInputRegisters reads quantity 16-bit input registers starting at
// address.
func (b *Bus) ReadInputRegisters(ctx context.Context, address, quantity uint16) ([]uint16, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.readRegisters(ctx, FuncCodeReadInputRegisters, address, quantity)
}

func (b *Bus) readRegisters(ctx context.Context, fncode byte, address, quantity uint16) ([]uint16, error) {
	if quantity < 1 || quantity > maxRegisters {
		return nil, b.newOpError(fncode, TooManyItems, fmt.Errorf("%w: quantity %d out of range 1..%d", ErrInvalidQuantity, quantity, maxRegisters))
	}
	n, outcome, err := b.transact(ctx, fncode, readRequestPayload(address, quantity))
	if err != nil {
		return nil, b.newOpError(fncode, outcome, err)
	}
	if outcome != OK {
		return nil, b.newOpError(fncode, outcome, nil)
	}
	payload := b.buf[2 : n-2]
	count := int(payload[0])
	if count != int(quantity)*2 || len(payload)-1 != count {
		return nil, b.newOpError(fncode, InvalidByteCount, ErrInvalidResponse)
	}
	regs := make([]uint16, quantity)
	for i := range regs {
		regs[i] = binary.BigEndian.Uint16(payload[1+2*i:])
	}
	return regs, nil
}

// WriteSingleCoil writes on (true) or off (false) to the coil at address.
// The wire value is 0xFF00 for on and 0x0000 for off; no other literal is
// ever produced.
func (b *Bus) WriteSingleCoil(ctx context.Context, address uint16, on bool) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	value := uint16(0x0000)
	if on {
		value = 0xFF00
	}
	n, outcome, err := b.transact(ctx, FuncCodeWriteSingleCoil, writeSinglePayload(address, value))
	if err != nil {
		return b.newOpError(FuncCodeWriteSingleCoil, outcome, err)
	}
	if outcome != OK {
		return b.newOpError(FuncCodeWriteSingleCoil, outcome, nil)
	}
	return b.verifyEcho(FuncCodeWriteSingleCoil, b.buf[2:n-2], address, value)
}

// WriteSingleRegister writes value to the holding register at address.
func (b *Bus) WriteSingleRegister(ctx context.Context, address, value uint16) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	n, outcome, err := b.transact(ctx, FuncCodeWriteSingleRegister, writeSinglePayload(address, value))
	if err != nil {
		return b.newOpError(FuncCodeWriteSingleRegister, outcome, err)
	}
	if outcome != OK {
		return b.newOpError(FuncCodeWriteSingleRegister, outcome, nil)
	}
	return b.verifyEcho(FuncCodeWriteSingleRegister, b.buf[2:n-2], address, value)
}

// verifyEcho checks a 4-byte address+value echo reply, the shape shared
// by WriteSingleCoil and WriteSingleRegister.
func (b *Bus) verifyEcho(fncode byte, payload []byte, address, value uint16) error {
	if len(payload) != 4 {
		return b.newOpError(fncode, InvalidByteCount, ErrInvalidResponse)
	}
	if binary.BigEndian.Uint16(payload) != address || binary.BigEndian.Uint16(payload[2:]) != value {
		return b.newOpError(fncode, InvalidByteCount, ErrInvalidResponse)
	}
	return nil
}

// WriteMultipleCoils writes one coil per entry of values (zero=off,
// non-zero=on) starting at address.
func (b *Bus) WriteMultipleCoils(ctx context.Context, address uint16, values []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	quantity := len(values)
	if quantity < 1 || quantity > maxCoils {
		return b.newOpError(FuncCodeWriteMultipleCoils, TooManyItems, fmt.Errorf("%w: quantity %d out of range 1..%d", ErrInvalidQuantity, quantity, maxCoils))
	}
	n, outcome, err := b.transact(ctx, FuncCodeWriteMultipleCoils, writeMultipleCoilsPayload(address, values))
	if err != nil {
		return b.newOpError(FuncCodeWriteMultipleCoils, outcome, err)
	}
	if outcome != OK {
		return b.newOpError(FuncCodeWriteMultipleCoils, outcome, nil)
	}
	return b.verifyEcho(FuncCodeWriteMultipleCoils, b.buf[2:n-2], address, uint16(quantity))
}

// WriteMultipleRegisters writes len(regs) holding registers starting at
// address.
func (b *Bus) WriteMultipleRegisters(ctx context.Context, address uint16, regs []uint16) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	quantity := len(regs)
	if quantity < 1 || quantity > maxRegisters {
		return b.newOpError(FuncCodeWriteMultipleRegisters, TooManyItems, fmt.Errorf("%w: quantity %d out of range 1..%d", ErrInvalidQuantity, quantity, maxRegisters))
	}
	raw := make([]byte, 2*quantity)
	for i, v := range regs {
		binary.BigEndian.PutUint16(raw[2*i:], v)
	}
	n, outcome, err := b.transact(ctx, FuncCodeWriteMultipleRegisters, writeMultipleRegistersPayload(address, raw))
	if err != nil {
		return b.newOpError(FuncCodeWriteMultipleRegisters, outcome, err)
	}
	if outcome != OK {
		return b.newOpError(FuncCodeWriteMultipleRegisters, outcome, nil)
	}
	return b.verifyEcho(FuncCodeWriteMultipleRegisters, b.buf[2:n-2], address, uint16(quantity))
}

// ReadExceptionStatus reads the slave's 8 exception-status bits.
func (b *Bus) ReadExceptionStatus(ctx context.Context) (byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	n, outcome, err := b.transact(ctx, FuncCodeReadExceptionStatus, nil)
	if err != nil {
		return 0, b.newOpError(FuncCodeReadExceptionStatus, outcome, err)
	}
	if outcome != OK {
		return 0, b.newOpError(FuncCodeReadExceptionStatus, outcome, nil)
	}
	payload := b.buf[2 : n-2]
	if len(payload) != 1 {
		return 0, b.newOpError(FuncCodeReadExceptionStatus, InvalidByteCount, ErrInvalidResponse)
	}
	return payload[0], nil
}

// SlaveID is the decoded reply to ReportSlaveID: the identification byte,
// the run indicator, and any vendor-specific extra bytes.
type SlaveID struct {
	ID           byte
	RunIndicator bool
	Extra        []byte
}

// ReportSlaveID requests the slave's identification, run indicator, and
// any vendor-specific extra bytes. The extra-data length delivered is
// bytecount-2, per the transaction driver's detail for this function.
func (b *Bus) ReportSlaveID(ctx context.Context) (SlaveID, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	n, outcome, err := b.transact(ctx, FuncCodeReportSlaveID, nil)
	if err != nil {
		return SlaveID{}, b.newOpError(FuncCodeReportSlaveID, outcome, err)
	}
	if outcome != OK {
		return SlaveID{}, b.newOpError(FuncCodeReportSlaveID, outcome, nil)
	}
	payload := b.buf[2 : n-2]
	// count is the byte count actually delivered, derived from the reply
	// length rather than trusted from the wire: under the slave-ID quirk
	// (SetSlaveIDQuirk) receive already dropped one byte from what the
	// wire byte-count claims, so payload[0] cannot be compared against
	// len(payload)-1 directly.
	count := len(payload) - 1
	if count < 2 {
		return SlaveID{}, b.newOpError(FuncCodeReportSlaveID, InvalidByteCount, ErrInvalidResponse)
	}
	id := SlaveID{
		ID:           payload[1],
		RunIndicator: payload[2] != 0,
	}
	if extraLen := count - 2; extraLen > 0 {
		id.Extra = append([]byte(nil), payload[3:3+extraLen]...)
	}
	return id, nil
}

// newOpError records outcome in the bus's last-error slot — step (7) of
// the transaction template applies even to argument-validation failures
// that never reach transact — and builds the error returned to the
// caller: a ModbusError carrying outcome, with cause (when non-nil)
// wrapped alongside it so errors.As and errors.Is both reach their
// targets. Assumes the caller already holds b.mu.
func (b *Bus) newOpError(fncode byte, outcome Outcome, cause error) error {
	b.lastError = outcome
	opErr := &ModbusError{FunctionCode: fncode, Outcome: outcome}
	if cause != nil {
		return fmt.Errorf("%w: %w", opErr, cause)
	}
	return opErr
}
