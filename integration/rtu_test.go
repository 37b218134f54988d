// Copyright 2014 Quoc-Viet Nguyen. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD license. See the LICENSE file for details.

package integration

import (
	"context"
	"testing"
	"time"

	"github.com/openrtu/modbus"
	"github.com/openrtu/modbus/internal/simulator"
	"github.com/openrtu/modbus/internal/testutil"
)

func openBus(t *testing.T, devicePath string, slaveID byte, opts ...modbus.Option) *modbus.Bus {
	t.Helper()
	allOpts := append([]modbus.Option{
		modbus.WithSlaveID(slaveID),
		modbus.WithBaudRate(19200),
		modbus.WithTimeout(5 * time.Second),
	}, opts...)
	bus, err := modbus.Open(devicePath, allOpts...)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { bus.Close() })
	return bus
}

func TestRTUReadHoldingRegisters(t *testing.T) {
	config := &simulator.DataStoreConfig{
		NamedHoldingRegs: map[uint16]simulator.RegisterConfig{
			0: {Name: "TEMP", Value: 0x1234},
			1: {Name: "HUMIDITY", Value: 0x5678},
		},
	}
	cleanup, devicePath := testutil.StartRTUSimulator(t, testutil.WithSlaveID(1), testutil.WithDataStoreConfig(config))
	defer cleanup()

	bus := openBus(t, devicePath, 1)

	regs, err := bus.ReadHoldingRegisters(context.Background(), 0, 2)
	if err != nil {
		t.Fatalf("ReadHoldingRegisters: %v", err)
	}
	if len(regs) != 2 || regs[0] != 0x1234 || regs[1] != 0x5678 {
		t.Errorf("regs = %#v, want [0x1234 0x5678]", regs)
	}
}

func TestRTUReadCoils(t *testing.T) {
	config := &simulator.DataStoreConfig{
		NamedCoils: map[uint16]simulator.CoilConfig{
			0: {Name: "RELAY0", Value: true},
			1: {Name: "RELAY1", Value: false},
			2: {Name: "RELAY2", Value: true},
		},
	}
	cleanup, devicePath := testutil.StartRTUSimulator(t, testutil.WithSlaveID(1), testutil.WithDataStoreConfig(config))
	defer cleanup()

	bus := openBus(t, devicePath, 1)

	coils, err := bus.ReadCoils(context.Background(), 0, 3)
	if err != nil {
		t.Fatalf("ReadCoils: %v", err)
	}
	want := []byte{0xFF, 0x00, 0xFF}
	if len(coils) != len(want) {
		t.Fatalf("length = %d, want %d", len(coils), len(want))
	}
	for i := range want {
		if coils[i] != want[i] {
			t.Errorf("coils[%d] = %#02x, want %#02x", i, coils[i], want[i])
		}
	}
}

func TestRTUWriteSingleCoilRoundTrip(t *testing.T) {
	cleanup, devicePath := testutil.StartRTUSimulator(t, testutil.WithSlaveID(1))
	defer cleanup()

	bus := openBus(t, devicePath, 1)

	if err := bus.WriteSingleCoil(context.Background(), 5, true); err != nil {
		t.Fatalf("WriteSingleCoil: %v", err)
	}
	coils, err := bus.ReadCoils(context.Background(), 5, 1)
	if err != nil {
		t.Fatalf("ReadCoils: %v", err)
	}
	if coils[0] != 0xFF {
		t.Errorf("coil 5 = %#02x, want 0xFF after write", coils[0])
	}
}

func TestRTUWriteMultipleRegistersRoundTrip(t *testing.T) {
	cleanup, devicePath := testutil.StartRTUSimulator(t, testutil.WithSlaveID(1))
	defer cleanup()

	bus := openBus(t, devicePath, 1)

	values := []uint16{0x000A, 0x0B0C, 0xFFFF}
	if err := bus.WriteMultipleRegisters(context.Background(), 10, values); err != nil {
		t.Fatalf("WriteMultipleRegisters: %v", err)
	}
	regs, err := bus.ReadHoldingRegisters(context.Background(), 10, 3)
	if err != nil {
		t.Fatalf("ReadHoldingRegisters: %v", err)
	}
	for i, v := range values {
		if regs[i] != v {
			t.Errorf("regs[%d] = %#04x, want %#04x", i, regs[i], v)
		}
	}
}

func TestRTUReadExceptionStatus(t *testing.T) {
	config := &simulator.DataStoreConfig{
		ExceptionStatus: 0x6C,
	}
	cleanup, devicePath := testutil.StartRTUSimulator(t, testutil.WithSlaveID(1), testutil.WithDataStoreConfig(config))
	defer cleanup()

	bus := openBus(t, devicePath, 1)

	status, err := bus.ReadExceptionStatus(context.Background())
	if err != nil {
		t.Fatalf("ReadExceptionStatus: %v", err)
	}
	if status != 0x6C {
		t.Errorf("status = %#02x, want 0x6C", status)
	}
}

func TestRTUReportSlaveID(t *testing.T) {
	config := &simulator.DataStoreConfig{
		SlaveIdentifier: 0x42,
		RunIndicator:    true,
		SlaveIDExtra:    []byte("openrtu"),
	}
	cleanup, devicePath := testutil.StartRTUSimulator(t, testutil.WithSlaveID(1), testutil.WithDataStoreConfig(config))
	defer cleanup()

	bus := openBus(t, devicePath, 1)

	id, err := bus.ReportSlaveID(context.Background())
	if err != nil {
		t.Fatalf("ReportSlaveID: %v", err)
	}
	if id.ID != 0x42 || !id.RunIndicator {
		t.Errorf("id = %+v, want ID=0x42 RunIndicator=true", id)
	}
	if string(id.Extra) != "openrtu" {
		t.Errorf("extra = %q, want %q", id.Extra, "openrtu")
	}
}

func TestRTUIllegalDataAddress(t *testing.T) {
	cleanup, devicePath := testutil.StartRTUSimulator(t, testutil.WithSlaveID(1))
	defer cleanup()

	bus := openBus(t, devicePath, 1)

	// Address + quantity spilling past the simulator's address space raises
	// an illegal-data-address exception.
	_, err := bus.ReadHoldingRegisters(context.Background(), 65530, 123)
	if err == nil {
		t.Fatal("expected an illegal-data-address error, got nil")
	}
}

func TestRTUWithDelay(t *testing.T) {
	config := &simulator.DataStoreConfig{
		NamedInputRegs: map[uint16]simulator.RegisterConfig{
			0: {Name: "SENSOR", Value: 999},
		},
		Delays: &simulator.DelayConfigSet{
			InputRegs: map[uint16]simulator.DelayConfig{
				0: {
					Delay:  "150ms",
					Jitter: 0,
				},
			},
		},
	}
	cleanup, devicePath := testutil.StartRTUSimulator(t, testutil.WithSlaveID(1), testutil.WithDataStoreConfig(config))
	defer cleanup()

	bus := openBus(t, devicePath, 1)

	start := time.Now()
	regs, err := bus.ReadInputRegisters(context.Background(), 0, 1)
	elapsed := time.Since(start)

	if err != nil {
		t.Fatalf("ReadInputRegisters: %v", err)
	}
	if regs[0] != 999 {
		t.Errorf("regs[0] = %d, want 999", regs[0])
	}

	expectedDelay := 150 * time.Millisecond
	if elapsed < expectedDelay-50*time.Millisecond {
		t.Errorf("delay too short: expected ~%v, got %v", expectedDelay, elapsed)
	}
}

func TestRTUTimeout(t *testing.T) {
	config := &simulator.DataStoreConfig{
		NamedHoldingRegs: map[uint16]simulator.RegisterConfig{
			0: {Name: "FLAKY", Value: 1},
		},
		Delays: &simulator.DelayConfigSet{
			HoldingRegs: map[uint16]simulator.DelayConfig{
				0: {TimeoutProbability: 1.0},
			},
		},
	}
	cleanup, devicePath := testutil.StartRTUSimulator(t, testutil.WithSlaveID(1), testutil.WithDataStoreConfig(config))
	defer cleanup()

	bus := openBus(t, devicePath, 1, modbus.WithTimeout(500*time.Millisecond))

	start := time.Now()
	_, err := bus.ReadHoldingRegisters(context.Background(), 0, 1)
	elapsed := time.Since(start)

	if err == nil {
		t.Fatal("expected a timeout error, got nil")
	}
	if bus.LastError() != modbus.Timeout {
		t.Errorf("LastError() = %v, want Timeout", bus.LastError())
	}
	if elapsed < 400*time.Millisecond {
		t.Errorf("returned before the configured timeout: %v", elapsed)
	}
}

func TestRTUWrongSlaveIDIsIgnored(t *testing.T) {
	// The simulator only answers its own slave address; a client configured
	// for a different one should see its request go unanswered.
	cleanup, devicePath := testutil.StartRTUSimulator(t, testutil.WithSlaveID(1))
	defer cleanup()

	bus := openBus(t, devicePath, 2, modbus.WithTimeout(500*time.Millisecond))

	if _, err := bus.ReadHoldingRegisters(context.Background(), 0, 1); err == nil {
		t.Fatal("expected no reply from a simulator addressed to a different slave ID")
	}
}
