// Copyright 2014 Quoc-Viet Nguyen. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD license. See the LICENSE file for details.

package modbus

import (
	"fmt"
	"log"
	"sync"
	"time"
)

const (
	defaultBaudRate = 19200
	defaultDataBits = 8
	defaultTimeout  = time.Second
	maxDeviceName   = 63
)

// Bus is a handle to one RTU slave reachable over one serial port. It owns
// the serial descriptor, the configured timeout, the debug flag, the
// outcome of the most recent transaction, and a fixed scratch buffer
// reused by every transaction. A Bus is single-threaded: exactly one
// transaction may be in flight at a time, enforced here with a mutex
// rather than left as an unchecked caller obligation.
type Bus struct {
	mu sync.Mutex

	transport  Transport
	deviceName string
	baudRate   int
	parity     Parity
	stopBits   StopBits
	timeout    time.Duration
	debug      bool
	logger     *log.Logger

	slaveID      byte
	slaveIDQuirk bool

	lastError Outcome

	// buf is the per-transaction scratch buffer: request is built into it,
	// then overwritten in place by the reply.
	buf [rtuMaxSize]byte
}

// Option configures a Bus at construction time.
type Option func(*Bus)

// WithBaudRate overrides the default 19200 baud.
func WithBaudRate(baud int) Option {
	return func(b *Bus) { b.baudRate = baud }
}

// WithParity overrides the default even parity.
func WithParity(p Parity) Option {
	return func(b *Bus) { b.parity = p }
}

// WithStopBits overrides the default one stop bit.
func WithStopBits(sb StopBits) Option {
	return func(b *Bus) { b.stopBits = sb }
}

// WithTimeout overrides the default 1 second per-transaction timeout.
func WithTimeout(d time.Duration) Option {
	return func(b *Bus) { b.timeout = d }
}

// WithSlaveID sets the slave address written into every request's first
// byte. Defaults to 0 (broadcast), which almost every caller should
// override.
func WithSlaveID(id byte) Option {
	return func(b *Bus) { b.slaveID = id }
}

// WithDebug enables trace logging at construction time; equivalent to
// calling SetDebug(true) after Open.
func WithDebug(logger *log.Logger) Option {
	return func(b *Bus) {
		b.debug = true
		b.logger = logger
	}
}

// Open delegates to the serial adapter with the composed port settings and
// returns a ready Bus, or a "serial init failed" error wrapping the
// adapter's own error if the adapter refused. The port is opened under the
// full device name; only the stored copy is truncated to 63 characters.
func Open(device string, opts ...Option) (*Bus, error) {
	b := &Bus{
		baudRate: defaultBaudRate,
		parity:   EvenParity,
		stopBits: OneStopBit,
		timeout:  defaultTimeout,
	}
	for _, opt := range opts {
		opt(b)
	}
	name := device
	if len(name) > maxDeviceName {
		name = name[:maxDeviceName]
	}
	b.deviceName = name

	transport, err := openSerial(device, b.baudRate, defaultDataBits, b.parity, b.stopBits)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", serialInitErr, err)
	}
	b.transport = transport
	return b, nil
}

// Close releases the serial descriptor. The Bus remains readable (LastError
// still reports the prior transaction's outcome) but no longer usable for
// transactions.
func (b *Bus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.transport == nil {
		return nil
	}
	err := b.transport.Close()
	b.transport = nil
	return err
}

// SetTimeout changes the per-transaction receive timeout.
func (b *Bus) SetTimeout(d time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.timeout = d
}

// SetDebug toggles hex trace output. Enabling it when no logger was
// supplied via WithDebug installs log.Default().
func (b *Bus) SetDebug(on bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.debug = on
	if on && b.logger == nil {
		b.logger = log.Default()
	}
}

// SetSlaveID changes the destination address written into future requests.
func (b *Bus) SetSlaveID(id byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.slaveID = id
}

// SetSlaveIDQuirk toggles the report-slave-id byte-count quirk described in
// the receive state machine: some slaves include the slave_id byte itself
// in the function 0x11 byte count, others don't. Off by default.
func (b *Bus) SetSlaveIDQuirk(on bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.slaveIDQuirk = on
}

// LastError reports the outcome of the most recently completed
// transaction. Every transaction sets this before returning, success or
// not.
func (b *Bus) LastError() Outcome {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.lastError
}

func (b *Bus) setLastError(o Outcome) Outcome {
	b.lastError = o
	return o
}

func (b *Bus) debugf(format string, v ...interface{}) {
	if b.debug && b.logger != nil {
		b.logger.Printf(format, v...)
	}
}
