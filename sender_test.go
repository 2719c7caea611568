// Copyright 2017 OpenChirp. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package xmboot

import (
	"bytes"
	"context"
	"errors"
	"math/rand"
	"net"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"golang.org/x/sync/errgroup"
)

func TestUploadEndToEnd(t *testing.T) {
	image := make([]byte, 3000)
	rand.New(rand.NewSource(7)).Read(image)

	for _, kind := range []HeaderKind{KindLong, KindShort} {
		t.Run(kind.String(), func(t *testing.T) {
			dev, host := net.Pipe()
			defer dev.Close()
			defer host.Close()

			prog, fl := newTestProgrammer(t, 4096)
			jump := &jumpRecorder{}
			recv := NewReceiver(NewStreamTransport(dev), prog, jump,
				WithTimeouts(20*time.Millisecond, time.Second))

			snd := NewSender(NewStreamTransport(host))
			snd.Kind = kind
			snd.Timeout = time.Second
			var sent, total int
			snd.Progress = func(n, of int) { sent, total = n, of }

			var s Session
			g, ctx := errgroup.WithContext(context.Background())
			g.Go(func() error {
				var err error
				s, err = recv.Run(ctx)
				return err
			})
			g.Go(func() error {
				return snd.Send(ctx, image)
			})
			if err := g.Wait(); err != nil {
				t.Fatalf("upload: %v", err)
			}

			size := kind.PayloadSize()
			packets := (len(image) + size - 1) / size
			if s.Accepted != packets {
				t.Errorf("accepted %d packets, want %d", s.Accepted, packets)
			}
			if sent != len(image) || total != len(image) {
				t.Errorf("progress = %d/%d, want %d/%d", sent, total, len(image), len(image))
			}
			if jump.calls != 1 {
				t.Errorf("jumped %d times, want 1", jump.calls)
			}

			padded := packets * size
			want := append(append([]byte(nil), image...), bytes.Repeat([]byte{PadByte}, padded-len(image))...)
			got, err := fl.Bytes(testBase, padded)
			if err != nil {
				t.Fatalf("Bytes: %v", err)
			}
			if !bytes.Equal(got, want) {
				t.Error("flash contents differ from the padded image")
			}
			rest, err := fl.Bytes(testBase+uint32(padded), 4096-padded)
			if err != nil {
				t.Fatalf("Bytes: %v", err)
			}
			if !bytes.Equal(rest, bytes.Repeat([]byte{0xFF}, len(rest))) {
				t.Error("flash past the image is not erased")
			}
		})
	}
}

func TestUploadRejectedByReceiver(t *testing.T) {
	dev, host := net.Pipe()
	defer dev.Close()
	defer host.Close()

	prog, _ := newTestProgrammer(t, 256)
	jump := JumperFunc(func(Session) { t.Error("jumped to a partial image") })
	recv := NewReceiver(NewStreamTransport(dev), prog, jump,
		WithTimeouts(20*time.Millisecond, time.Second))
	snd := NewSender(NewStreamTransport(host))
	snd.Kind = KindShort
	snd.Timeout = time.Second

	var recvErr, sendErr error
	var g errgroup.Group
	g.Go(func() error {
		_, recvErr = recv.Run(context.Background())
		return nil
	})
	g.Go(func() error {
		sendErr = snd.Send(context.Background(), make([]byte, 400))
		return nil
	})
	g.Wait()

	if !errors.Is(recvErr, ErrBinaryTooLarge) {
		t.Errorf("receiver: %v, want ErrBinaryTooLarge", recvErr)
	}
	if !errors.Is(sendErr, ErrCancelled) {
		t.Errorf("sender: %v, want ErrCancelled", sendErr)
	}
}

func TestSenderGivesUp(t *testing.T) {
	link := newFakeLink([]byte{CRCProbe}, []byte{NAK}, []byte{NAK}, []byte{NAK})
	snd := NewSender(link)
	snd.Kind = KindShort
	snd.Retries = 3

	err := snd.Send(context.Background(), []byte("app"))
	if !errors.Is(err, ErrTooManyErrors) {
		t.Fatalf("Send = %v, want ErrTooManyErrors", err)
	}
	p, _ := NewPacket(KindShort, 1, []byte("app"))
	frame := p.Marshal()
	want := append(bytes.Repeat(frame, 3), CAN, CAN)
	if diff := cmp.Diff(want, link.sent.Bytes()); diff != "" {
		t.Errorf("sent diff (-want +got):\n%s", diff)
	}
}

func TestSenderSkipsStaleProbes(t *testing.T) {
	link := newFakeLink([]byte{CRCProbe, CRCProbe, CRCProbe}, []byte{ACK}, []byte{ACK})
	snd := NewSender(link)
	snd.Kind = KindShort

	if err := snd.Send(context.Background(), []byte("app")); err != nil {
		t.Fatalf("Send: %v", err)
	}
	p, _ := NewPacket(KindShort, 1, []byte("app"))
	want := append(p.Marshal(), EOT)
	if diff := cmp.Diff(want, link.sent.Bytes()); diff != "" {
		t.Errorf("sent diff (-want +got):\n%s", diff)
	}
}

func TestSenderRetransmits(t *testing.T) {
	link := newFakeLink([]byte{CRCProbe}, silence, []byte{'?'}, []byte{NAK}, []byte{ACK}, []byte{ACK})
	snd := NewSender(link)
	snd.Kind = KindShort

	if err := snd.Send(context.Background(), []byte{1, 2, 3}); err != nil {
		t.Fatalf("Send: %v", err)
	}
	p, _ := NewPacket(KindShort, 1, []byte{1, 2, 3})
	want := append(bytes.Repeat(p.Marshal(), 4), EOT)
	if diff := cmp.Diff(want, link.sent.Bytes()); diff != "" {
		t.Errorf("sent diff (-want +got):\n%s", diff)
	}
}

func TestSenderCancelledWhileWaiting(t *testing.T) {
	link := newFakeLink(silence, []byte{CAN}, []byte{CAN})
	err := NewSender(link).Send(context.Background(), []byte("app"))
	if !errors.Is(err, ErrCancelled) {
		t.Fatalf("Send = %v, want ErrCancelled", err)
	}
	if link.sent.Len() != 0 {
		t.Errorf("sent % X, want nothing", link.sent.Bytes())
	}
}

func TestSenderEOTNotAcknowledged(t *testing.T) {
	link := newFakeLink([]byte{CRCProbe}, []byte{ACK}, silence, silence)
	snd := NewSender(link)
	snd.Kind = KindShort
	snd.Retries = 2

	err := snd.Send(context.Background(), []byte("app"))
	if !errors.Is(err, ErrTooManyErrors) {
		t.Fatalf("Send = %v, want ErrTooManyErrors", err)
	}
	if got := link.sent.Bytes(); !bytes.HasSuffix(got, []byte{EOT, EOT, CAN, CAN}) {
		t.Errorf("sent ends with % X, want EOT EOT CAN CAN", got[len(got)-4:])
	}
}

func TestSenderEmptyImage(t *testing.T) {
	link := newFakeLink([]byte{CRCProbe}, []byte{ACK})
	if err := NewSender(link).Send(context.Background(), nil); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if diff := cmp.Diff([]byte{EOT}, link.sent.Bytes()); diff != "" {
		t.Errorf("sent diff (-want +got):\n%s", diff)
	}
}

func TestSenderBadKind(t *testing.T) {
	snd := NewSender(newFakeLink())
	snd.Kind = KindEOT
	if err := snd.Send(context.Background(), []byte("app")); !errors.Is(err, ErrBadArguments) {
		t.Errorf("Send = %v, want ErrBadArguments", err)
	}
}

func TestSenderContextCancelled(t *testing.T) {
	link := newFakeLink([]byte{CRCProbe})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := NewSender(link).Send(ctx, []byte("app"))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Send = %v, want context.Canceled", err)
	}
	if diff := cmp.Diff([]byte{CAN, CAN}, link.sent.Bytes()); diff != "" {
		t.Errorf("sent diff (-want +got):\n%s", diff)
	}
}
