// Copyright 2014 Quoc-Viet Nguyen. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD license. See the LICENSE file for details.

package modbus

import (
	"io"
	"time"
)

// fakeTransport is a Transport that serves bytes from a canned reply buffer
// without touching real I/O, the same role the teacher's mockTransporter
// plays for its Packager/Transporter pair.
type fakeTransport struct {
	reply   []byte
	pos     int
	written []byte

	// timeout, when set, makes Poll report no readability forever so the
	// receive loop exercises the Timeout outcome.
	timeout bool

	flushed bool
	closed  bool
}

func (f *fakeTransport) Write(p []byte) (int, error) {
	f.written = append(f.written, p...)
	return len(p), nil
}

func (f *fakeTransport) Read(p []byte) (int, error) {
	if f.pos >= len(f.reply) {
		return 0, io.EOF
	}
	n := copy(p, f.reply[f.pos:])
	f.pos += n
	return n, nil
}

func (f *fakeTransport) Poll(d time.Duration) (bool, error) {
	if f.timeout {
		return false, nil
	}
	return f.pos < len(f.reply), nil
}

func (f *fakeTransport) FlushInput() error {
	f.flushed = true
	return nil
}

func (f *fakeTransport) Close() error {
	f.closed = true
	return nil
}

// newTestBus builds a Bus wired to a fakeTransport carrying reply as the
// canned response, ready to drive transact()/receive() without a real
// serial port.
func newTestBus(reply []byte) (*Bus, *fakeTransport) {
	ft := &fakeTransport{reply: reply}
	b := &Bus{
		transport: ft,
		slaveID:   0x11,
		timeout:   time.Second,
	}
	return b, ft
}
