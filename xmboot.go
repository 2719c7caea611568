// Copyright 2017 OpenChirp. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package xmboot implements the device side of a serial bootloader that
// receives a firmware image with the Xmodem protocol (CRC-16 variant, 128
// and 1024 byte packets) and programs it into non-volatile memory, verifying
// every written word by reading it back.
//
// The package also carries the host side of the same link (Sender), so the
// two halves can be exercised against each other without hardware.
package xmboot

import (
	"errors"
	"time"
)

// Xmodem control bytes
const (
	SOH byte = 0x01
	STX byte = 0x02
	EOT byte = 0x04
	ACK byte = 0x06
	NAK byte = 0x15
	CAN byte = 0x18
	// CRCProbe is sent by the receiver to ask for CRC-16 mode.
	CRCProbe byte = 'C'
	// PadByte fills the tail of the last packet.
	PadByte byte = 0x1A
)

const (
	ShortPayloadSize = 128
	LongPayloadSize  = 1024
	// WordSize is the programming granularity of the memory.
	WordSize = 4
)

var ErrTimeout = errors.New("timed out waiting for data")

var ErrCancelled = errors.New("transfer cancelled by peer")

var ErrTooManyErrors = errors.New("too many consecutive errors")

var ErrEraseFailed = errors.New("flash erase failed")

var ErrWriteFailed = errors.New("flash write failed")

var ErrReadbackMismatch = errors.New("flash readback mismatch")

var ErrBinaryTooLarge = errors.New("binary does not fit the application region")

var ErrUnaligned = errors.New("address or length is not word aligned")

var ErrLocked = errors.New("flash is locked")

var ErrBadArguments = errors.New("the arguments supplied are invalid")

// Transport is the byte link between the bootloader and the host.
//
// Receive blocks until len(buf) bytes have arrived or timeout elapses. It
// returns nil on success, ErrTimeout when the link stayed quiet, and any
// other error when the link itself failed.
type Transport interface {
	Receive(buf []byte, timeout time.Duration) error
	Send(p []byte) error
}

// Jumper hands execution to the freshly written application.
// On hardware JumpToApp does not return.
type Jumper interface {
	JumpToApp(s Session)
}

// JumperFunc adapts a function to the Jumper interface.
type JumperFunc func(s Session)

func (f JumperFunc) JumpToApp(s Session) { f(s) }
