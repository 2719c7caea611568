// Copyright 2017 OpenChirp. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package xmboot

import (
	"context"
	"errors"
	"fmt"

	"github.com/golang/glog"
)

// Session is the state of one transfer. The Receiver never keeps it; every
// Step takes a session and returns the next one.
type Session struct {
	// Sequence is the sequence number the next packet must carry.
	Sequence byte
	// Cursor is where the next accepted payload is written.
	Cursor uint32
	// Erased is set once the application region has been erased.
	Erased bool
	// Errors counts consecutive errors.
	Errors int
	// Accepted counts packets written and acknowledged.
	Accepted int

	State State
	// Kind is the data packet pending in ReceivePacket.
	Kind HeaderKind
	// Err is the reason for Abort.
	Err error

	// Start is the address the image begins at.
	Start uint32
}

// Written is the number of image bytes programmed so far.
func (s Session) Written() uint32 {
	return s.Cursor - s.Start
}

// Receiver is the Xmodem receive engine. It is not safe for concurrent
// use; one Receiver serves one transport.
type Receiver struct {
	t    Transport
	prog *Programmer
	jump Jumper
	cfg  Config
}

// NewReceiver creates a receive engine writing through prog and handing
// over to jump when a transfer completes.
func NewReceiver(t Transport, prog *Programmer, jump Jumper, opts ...Option) *Receiver {
	if t == nil || prog == nil || jump == nil {
		panic("transport, programmer and jumper are required")
	}

	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Receiver{t: t, prog: prog, jump: jump, cfg: cfg}
}

// NewSession returns the initial session of a transfer.
func (r *Receiver) NewSession() Session {
	start := r.prog.Geometry().Start
	return Session{
		Sequence: 1,
		Cursor:   start,
		State:    AwaitHeader,
		Start:    start,
	}
}

// Run drives a session from the initial state until it terminates. On
// success it hands control to the Jumper; if that returns, Run returns the
// final session and nil. On abort it returns the session and the reason.
func (r *Receiver) Run(ctx context.Context) (Session, error) {
	s := r.NewSession()
	for !s.State.Terminal() {
		if err := ctx.Err(); err != nil {
			r.send(CAN, CAN)
			s.State = Abort
			s.Err = fmt.Errorf("cancelled: %w", err)
			break
		}
		s = r.Step(s)
	}

	if s.State == Abort {
		glog.Errorf("transfer aborted after %d packets: %v", s.Accepted, s.Err)
		return s, s.Err
	}
	glog.Infof("transfer complete: %d packets, %d bytes", s.Accepted, s.Written())
	r.jump.JumpToApp(s)
	return s, nil
}

// Step performs one transition of the state machine.
func (r *Receiver) Step(s Session) Session {
	switch s.State {
	case AwaitHeader:
		return r.awaitHeader(s)
	case ReceivePacket:
		return r.receivePacket(s)
	default:
		return s
	}
}

func (r *Receiver) awaitHeader(s Session) Session {
	hdr := make([]byte, 1)
	if err := r.t.Receive(hdr, r.cfg.HeaderTimeout); err != nil {
		if errors.Is(err, ErrTimeout) && !s.Erased {
			r.send(CRCProbe)
			return s
		}
		return r.handleError(s, fmt.Errorf("%v: %w", FaultComm, err), false)
	}

	switch kind := KindOf(hdr[0]); kind {
	case KindShort, KindLong:
		s.State = ReceivePacket
		s.Kind = kind
	case KindEOT:
		r.send(ACK)
		if r.cfg.CompletionNotice != "" {
			if err := r.t.Send([]byte(r.cfg.CompletionNotice)); err != nil {
				glog.Warningf("send completion notice: %v", err)
			}
		}
		s.State = Success
	case KindCancel:
		glog.Warningf("host cancelled the transfer")
		s.State = Abort
		s.Err = ErrCancelled
	default:
		s = r.handleError(s, fmt.Errorf("unexpected header 0x%02X", hdr[0]), false)
	}
	return s
}

func (r *Receiver) receivePacket(s Session) Session {
	p := Packet{Kind: s.Kind, Payload: make([]byte, s.Kind.PayloadSize())}
	s.State = AwaitHeader
	s.Kind = KindUnknown

	seq := make([]byte, 2)
	crc := make([]byte, 2)
	for _, buf := range [][]byte{seq, p.Payload, crc} {
		if err := r.t.Receive(buf, r.cfg.PacketTimeout); err != nil {
			return r.handleError(s, fmt.Errorf("%v: %w", FaultComm, err), false)
		}
	}
	p.Sequence, p.Complement = seq[0], seq[1]
	p.CRC = uint16(crc[0])<<8 | uint16(crc[1])

	if !s.Erased {
		if err := r.prog.Erase(r.prog.Geometry().Start); err != nil {
			return r.flashFailure(s, err)
		}
		s.Erased = true
	}

	if f := p.Validate(s.Sequence); f != 0 {
		glog.Warningf("rejected %v, expected seq %d: %v", p, s.Sequence, f)
		return r.handleError(s, f, false)
	}

	next, err := r.prog.Write(s.Cursor, p.Payload)
	if err != nil {
		return r.flashFailure(s, err)
	}

	s.Errors = 0
	s.Sequence++
	s.Cursor = next
	s.Accepted++
	glog.V(1).Infof("accepted %v, cursor 0x%08X", p, s.Cursor)
	r.send(ACK)
	if r.cfg.Progress != nil {
		r.cfg.Progress(s)
	}
	return s
}

// flashFailure forces the error budget to its limit so that the error
// handler aborts: a region that failed to erase or verify is never written
// again in this session.
func (r *Receiver) flashFailure(s Session, err error) Session {
	glog.Errorf("flash failure (%v): %v", flashFaultsOf(err, FaultWrite), err)
	s.Errors = r.cfg.MaxErrors
	return r.handleError(s, fmt.Errorf("unrecoverable flash failure: %w", err), true)
}

// handleError counts an error and either asks for a retransmission or
// gives up.
func (r *Receiver) handleError(s Session, cause error, fatal bool) Session {
	s.Errors++
	if s.Errors >= r.cfg.MaxErrors {
		r.send(CAN, CAN)
		s.State = Abort
		if fatal {
			s.Err = cause
		} else {
			s.Err = fmt.Errorf("%w: %w", ErrTooManyErrors, cause)
		}
		return s
	}
	glog.V(1).Infof("NAK (%d/%d): %v", s.Errors, r.cfg.MaxErrors, cause)
	r.send(NAK)
	return s
}

func (r *Receiver) send(b ...byte) {
	if err := r.t.Send(b); err != nil {
		glog.Warningf("send % X: %v", b, err)
	}
}
