// Copyright 2014 Quoc-Viet Nguyen. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD license. See the LICENSE file for details.

package modbus

import "testing"

func TestErrorTextKnownOutcomes(t *testing.T) {
	tests := []struct {
		outcome Outcome
		want    string
	}{
		{OK, "ok"},
		{ExIllegalFunction, "illegal function"},
		{ExIllegalDataAddress, "illegal data address"},
		{ExIllegalDataValue, "illegal data value"},
		{ExSlaveDeviceFailure, "slave device failure"},
		{ExAcknowledge, "acknowledge"},
		{ExSlaveDeviceBusy, "slave device busy"},
		{ExMemoryParityError, "memory parity error"},
		{CRCError, "crc error"},
		{Timeout, "timeout"},
		{InvalidByteCount, "invalid byte count"},
		{SerialInitFailed, "serial init failed"},
		{TooManyItems, "too many registers or coils"},
	}
	for _, tt := range tests {
		if got := ErrorText(tt.outcome); got != tt.want {
			t.Errorf("ErrorText(%d) = %q, want %q", tt.outcome, got, tt.want)
		}
	}
}

func TestErrorTextUncategorizedSlaveException(t *testing.T) {
	// Codes 7, 9, 10 and 11 surface as their raw negated value rather than a
	// named Outcome constant.
	for _, code := range []int16{-7} {
		want := "slave exception 7"
		if got := ErrorText(Outcome(code)); got != want {
			t.Errorf("ErrorText(%d) = %q, want %q", code, got, want)
		}
	}
}

func TestErrorTextUnknownOutcome(t *testing.T) {
	got := ErrorText(Outcome(-9999))
	want := "unknown outcome -9999"
	if got != want {
		t.Errorf("ErrorText(-9999) = %q, want %q", got, want)
	}
}

func TestExceptionOutcome(t *testing.T) {
	tests := []struct {
		code byte
		want Outcome
	}{
		{1, ExIllegalFunction},
		{2, ExIllegalDataAddress},
		{3, ExIllegalDataValue},
		{4, ExSlaveDeviceFailure},
		{5, ExAcknowledge},
		{6, ExSlaveDeviceBusy},
		{8, ExMemoryParityError},
		{7, Outcome(-7)},
		{9, Outcome(-9)},
		{10, Outcome(-10)},
		{11, Outcome(-11)},
	}
	for _, tt := range tests {
		if got := exceptionOutcome(tt.code); got != tt.want {
			t.Errorf("exceptionOutcome(%d) = %d, want %d", tt.code, got, tt.want)
		}
	}
}

func TestModbusErrorMessage(t *testing.T) {
	err := &ModbusError{FunctionCode: FuncCodeReadHoldingRegisters, Outcome: ExIllegalDataAddress}
	want := "modbus: function 0x3: illegal data address"
	if got := err.Error(); got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}
