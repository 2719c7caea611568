// Copyright 2017 OpenChirp. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package xmboot

import (
	"bytes"
	"context"
	"errors"
	"time"

	"github.com/golang/glog"
)

const (
	// triggerBufferSize limits how many bytes the entry window inspects.
	triggerBufferSize = 20

	bootBanner  = "bootloader\r\n"
	errorBanner = "\n\rerror\r\n"
)

// DefaultMagic is the byte sequence that requests the bootloader.
var DefaultMagic = []byte("bl1\n")

// Pin is a physical input that requests the bootloader while asserted.
type Pin interface {
	Asserted() bool
}

// Trigger decides, right after reset, whether to enter the bootloader.
type Trigger struct {
	// Window is how long after reset a request is accepted.
	Window time.Duration
	// Magic is matched against the tail of the received bytes.
	Magic []byte
	// Pin is optional.
	Pin Pin
	// PinHold is how long Pin must stay asserted.
	PinHold time.Duration
	// Poll bounds each wait for a byte.
	Poll time.Duration

	now func() time.Time
}

// DefaultTrigger returns a three second window listening for DefaultMagic,
// with one second on the boot pin.
func DefaultTrigger() Trigger {
	return Trigger{
		Window:  3 * time.Second,
		Magic:   DefaultMagic,
		PinHold: time.Second,
		Poll:    100 * time.Millisecond,
	}
}

// Wait watches the transport and the pin for the entry window and reports
// whether the bootloader was requested. A cancelled ctx closes the window.
func (tr Trigger) Wait(ctx context.Context, t Transport) bool {
	now := tr.now
	if now == nil {
		now = time.Now
	}
	end := now().Add(tr.Window)

	var pressed time.Time
	buf := make([]byte, 0, triggerBufferSize)
	b := make([]byte, 1)
	for now().Before(end) && len(buf) < triggerBufferSize {
		if err := ctx.Err(); err != nil {
			glog.Warningf("entry window interrupted: %v", err)
			return false
		}
		if tr.Pin != nil {
			if tr.Pin.Asserted() {
				if pressed.IsZero() {
					pressed = now()
				}
				if now().Sub(pressed) >= tr.PinHold {
					glog.Info("boot pin held")
					return true
				}
			} else {
				pressed = time.Time{}
			}
		}

		err := t.Receive(b, tr.Poll)
		if errors.Is(err, ErrTimeout) {
			continue
		}
		if err != nil {
			glog.Warningf("entry window closed early: %v", err)
			return false
		}
		buf = append(buf, b[0])
		if len(tr.Magic) > 0 && bytes.HasSuffix(buf, tr.Magic) {
			glog.Info("boot sequence received")
			return true
		}
	}
	return false
}

// Boot runs the entry window and then either starts a transfer or jumps
// straight to the application already in memory. It only returns when a
// transfer was aborted, ctx was cancelled, or the Jumper returned.
func (r *Receiver) Boot(ctx context.Context, tr Trigger) error {
	if !tr.Wait(ctx, r.t) {
		if err := ctx.Err(); err != nil {
			return err
		}
		glog.Info("no boot request, starting application")
		r.jump.JumpToApp(r.NewSession())
		return nil
	}

	if err := r.t.Send([]byte(bootBanner)); err != nil {
		glog.Warningf("send banner: %v", err)
	}
	_, err := r.Run(ctx)
	if err != nil {
		if serr := r.t.Send([]byte(errorBanner)); serr != nil {
			glog.Warningf("send error banner: %v", serr)
		}
	}
	return err
}
