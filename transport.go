// Copyright 2014 Quoc-Viet Nguyen. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD license. See the LICENSE file for details.

package modbus

import (
	"fmt"
	"time"

	"go.bug.st/serial"
)

// Parity mirrors the wire-level parity setting of a serial link.
type Parity int

const (
	EvenParity Parity = iota
	OddParity
	NoParity
)

// StopBits mirrors the wire-level stop-bit count of a serial link.
type StopBits int

const (
	OneStopBit StopBits = iota
	TwoStopBits
)

// Transport is the narrow contract a Bus needs from its serial adapter:
// write a request, read response bytes as they arrive, poll for
// readability with a bound on how long to wait, discard anything sitting
// unread in the input buffer, and release the underlying descriptor.
// go.bug.st/serial backs the production implementation; tests substitute a
// fake that drives the receive state machine without real I/O.
type Transport interface {
	Write(p []byte) (n int, err error)
	Read(p []byte) (n int, err error)
	// Poll blocks until at least one byte is readable or d elapses,
	// returning true if data became available.
	Poll(d time.Duration) (ready bool, err error)
	FlushInput() error
	Close() error
}

// serialTransport backs Transport with go.bug.st/serial, the same library
// the teacher's serialPort used directly.
type serialTransport struct {
	port serial.Port
	// pending holds a byte pulled out of the driver by Poll while probing
	// for readability; Read drains it before issuing a real driver read.
	pending []byte
}

// openSerial opens the named device at the given mode and returns a ready
// Transport, or the driver's error wrapped with the device name.
func openSerial(name string, baud, dataBits int, parity Parity, stopBits StopBits) (Transport, error) {
	mode := &serial.Mode{
		BaudRate: baud,
		DataBits: dataBits,
		Parity:   toSerialParity(parity),
		StopBits: toSerialStopBits(stopBits),
	}
	port, err := serial.Open(name, mode)
	if err != nil {
		return nil, fmt.Errorf("modbus: opening %s: %w", name, err)
	}
	// A small fixed read deadline lets Read return on a schedule so Poll's
	// own timer, not the driver's, governs how long the receive loop waits.
	if err := port.SetReadTimeout(50 * time.Millisecond); err != nil {
		port.Close()
		return nil, fmt.Errorf("modbus: setting read timeout on %s: %w", name, err)
	}
	return &serialTransport{port: port}, nil
}

func (t *serialTransport) Write(p []byte) (int, error) { return t.port.Write(p) }

func (t *serialTransport) Read(p []byte) (int, error) {
	if len(t.pending) > 0 && len(p) > 0 {
		n := copy(p, t.pending)
		t.pending = t.pending[n:]
		return n, nil
	}
	return t.port.Read(p)
}

func (t *serialTransport) FlushInput() error {
	t.pending = nil
	return t.port.ResetInputBuffer()
}

func (t *serialTransport) Close() error { return t.port.Close() }

// Poll reports readability by attempting a zero-or-more-byte Read bounded
// by the port's own read timeout, repeated until d has elapsed. go.bug.st/
// serial exposes no select/poll primitive of its own, so this is built on
// top of its blocking Read with a short fixed per-call timeout (see
// openSerial) and an explicit deadline loop, the same "poll via short
// reads" shape the teacher's rtuSerialTransporter.Send uses to stay
// responsive to context cancellation between reads.
func (t *serialTransport) Poll(d time.Duration) (bool, error) {
	deadline := time.Now().Add(d)
	var probe [1]byte
	for {
		n, err := t.port.Read(probe[:])
		if err != nil {
			return false, err
		}
		if n > 0 {
			// Stash the byte back: callers read via Read afterward, so
			// surface it through a one-byte pushback.
			t.pending = append(t.pending, probe[0])
			return true, nil
		}
		if time.Now().After(deadline) {
			return false, nil
		}
	}
}

// toSerialStopBits converts modbus StopBits to serial library StopBits.
func toSerialStopBits(sb StopBits) serial.StopBits {
	switch sb {
	case TwoStopBits:
		return serial.TwoStopBits
	default:
		return serial.OneStopBit
	}
}

// toSerialParity converts modbus Parity to serial library Parity.
func toSerialParity(p Parity) serial.Parity {
	switch p {
	case NoParity:
		return serial.NoParity
	case OddParity:
		return serial.OddParity
	default:
		return serial.EvenParity
	}
}
