// Copyright 2017 OpenChirp. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package xmboot

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang/glog"
)

const (
	// defaultSendRetries is the error budget of a whole upload.
	defaultSendRetries = 32
	defaultSendTimeout = 10 * time.Second
)

// Sender is the host side of a transfer: it uploads an image to a
// Receiver with Xmodem/CRC-16.
type Sender struct {
	t Transport

	// Kind selects 128 (KindShort) or 1024 (KindLong) byte packets.
	Kind HeaderKind
	// Retries is the number of NAKs, timeouts and stray replies tolerated
	// over the whole upload.
	Retries int
	// Timeout bounds the wait for every reply of the receiver.
	Timeout time.Duration
	// Progress is called after every acknowledged packet (optional)
	Progress func(sent, total int)

	failures int
}

// NewSender returns a sender using 1024 byte packets.
func NewSender(t Transport) *Sender {
	return &Sender{
		t:       t,
		Kind:    KindLong,
		Retries: defaultSendRetries,
		Timeout: defaultSendTimeout,
	}
}

// Send uploads image. It waits for the receiver's CRC probe, sends the
// image in packets padded with PadByte, and finishes with EOT.
func (s *Sender) Send(ctx context.Context, image []byte) error {
	size := s.Kind.PayloadSize()
	if size == 0 {
		return fmt.Errorf("packet kind %v: %w", s.Kind, ErrBadArguments)
	}
	s.failures = 0

	if err := s.waitProbe(ctx); err != nil {
		return err
	}

	seq := byte(1)
	for off := 0; off < len(image); off += size {
		end := min(off+size, len(image))
		p, err := NewPacket(s.Kind, seq, image[off:end])
		if err != nil {
			return err
		}
		if err := s.sendPacket(ctx, &p); err != nil {
			return fmt.Errorf("packet %d: %w", seq, err)
		}
		if s.Progress != nil {
			s.Progress(end, len(image))
		}
		seq++
	}

	return s.finish(ctx)
}

// waitProbe waits for the receiver to ask for CRC mode.
func (s *Sender) waitProbe(ctx context.Context) error {
	cancel := false
	for {
		if err := ctx.Err(); err != nil {
			s.abort()
			return err
		}
		b, err := s.recvByte()
		switch {
		case err != nil && !errors.Is(err, ErrTimeout):
			return err
		case err == nil && b == CRCProbe:
			return nil
		case err == nil && b == CAN:
			if cancel {
				return ErrCancelled
			}
			cancel = true
			continue
		case err == nil && b == NAK:
			glog.Warningf("receiver asked for checksum mode, waiting for CRC mode")
		case err == nil:
			glog.V(1).Infof("expected CRC probe, got 0x%02X", b)
		}
		if err := s.countError(); err != nil {
			return err
		}
	}
}

func (s *Sender) sendPacket(ctx context.Context, p *Packet) error {
	frame := p.Marshal()
	for {
		if err := ctx.Err(); err != nil {
			s.abort()
			return err
		}
		if err := s.t.Send(frame); err != nil {
			return err
		}

		ack, err := s.awaitReply()
		if err != nil {
			return err
		}
		if ack {
			return nil
		}
		if err := s.countError(); err != nil {
			return err
		}
	}
}

// awaitReply reads until the receiver answers. It reports true for ACK and
// false for anything that asks for a retransmission.
func (s *Sender) awaitReply() (bool, error) {
	for {
		b, err := s.recvByte()
		if errors.Is(err, ErrTimeout) {
			glog.V(1).Info("no reply, resending")
			return false, nil
		}
		if err != nil {
			return false, err
		}
		switch b {
		case ACK:
			return true, nil
		case NAK:
			return false, nil
		case CAN:
			return false, ErrCancelled
		case CRCProbe:
			// a probe sent before the receiver saw the packet
			continue
		default:
			glog.Warningf("not ACK, not NAK: 0x%02X", b)
			return false, nil
		}
	}
}

func (s *Sender) finish(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			s.abort()
			return err
		}
		if err := s.t.Send([]byte{EOT}); err != nil {
			return err
		}
		b, err := s.recvByte()
		if err == nil && b == ACK {
			return nil
		}
		if err != nil && !errors.Is(err, ErrTimeout) {
			return err
		}
		if err := s.countError(); err != nil {
			return fmt.Errorf("EOT was not acknowledged: %w", err)
		}
	}
}

func (s *Sender) countError() error {
	s.failures++
	if s.failures >= s.Retries {
		s.abort()
		return ErrTooManyErrors
	}
	return nil
}

func (s *Sender) recvByte() (byte, error) {
	buf := make([]byte, 1)
	if err := s.t.Receive(buf, s.Timeout); err != nil {
		return 0, err
	}
	return buf[0], nil
}

func (s *Sender) abort() {
	if err := s.t.Send([]byte{CAN, CAN}); err != nil {
		glog.Warningf("send abort: %v", err)
	}
}
