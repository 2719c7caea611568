// Copyright 2017 OpenChirp. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package impl is the implementation of a util to upload a firmware image
// to a device running the xmboot bootloader.
package impl

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	backoff "github.com/cenkalti/backoff/v4"
	"github.com/golang/glog"
	"github.com/jacobsa/go-serial/serial"
	"github.com/openchirp/xmboot"
)

// UploadOpts encapsulates uploader parameters.
type UploadOpts struct {
	Port     string
	BaudRate uint
	File     string
	// Mode is "xmodem" (128 byte packets) or "xmodem1k".
	Mode  string
	Magic string
	// Handshake bounds the time spent trying to enter the bootloader.
	// Zero skips the handshake, for devices already waiting for a transfer.
	Handshake time.Duration
}

// Main uploads opts.File over the serial port opts.Port.
func Main(ctx context.Context, opts UploadOpts) error {
	kind, err := packetKind(opts.Mode)
	if err != nil {
		return err
	}
	image, err := os.ReadFile(opts.File)
	if err != nil {
		return fmt.Errorf("failed to read firmware file: %w", err)
	}

	port, err := serial.Open(serial.OpenOptions{
		PortName:              opts.Port,
		BaudRate:              opts.BaudRate,
		DataBits:              8,
		StopBits:              1,
		MinimumReadSize:       0,
		InterCharacterTimeout: 100,
	})
	if err != nil {
		return fmt.Errorf("serial.Open(%q): %w", opts.Port, err)
	}

	return upload(ctx, port, kind, image, opts)
}

// upload runs the handshake and the transfer over an open port, and closes
// the port.
func upload(ctx context.Context, port io.ReadWriteCloser, kind xmboot.HeaderKind, image []byte, opts UploadOpts) error {
	t := xmboot.NewSerialTransport(port)
	defer t.Close()
	if opts.Handshake > 0 {
		if err := enterBootloader(ctx, t, []byte(opts.Magic), opts.Handshake); err != nil {
			return fmt.Errorf("device not detected: %w", err)
		}
		glog.Info("bootloader detected")
	}

	s := xmboot.NewSender(t)
	s.Kind = kind
	last := -1
	s.Progress = func(sent, total int) {
		if pct := sent * 100 / total; pct != last {
			last = pct
			glog.Infof("%d%%", pct)
		}
	}
	if err := s.Send(ctx, image); err != nil {
		return fmt.Errorf("upload failed: %w", err)
	}
	glog.Infof("uploaded %d bytes", len(image))
	return nil
}

func packetKind(mode string) (xmboot.HeaderKind, error) {
	switch mode {
	case "xmodem":
		return xmboot.KindShort, nil
	case "xmodem1k", "":
		return xmboot.KindLong, nil
	default:
		return xmboot.KindUnknown, fmt.Errorf("mode must be one of: 'xmodem', 'xmodem1k'")
	}
}

// enterBootloader sends the magic sequence until the device answers with
// its bootloader banner. The device only listens for a short window after
// reset, so attempts are repeated with backoff until limit expires.
func enterBootloader(ctx context.Context, t *xmboot.StreamTransport, magic []byte, limit time.Duration) error {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = 200 * time.Millisecond
	eb.MaxElapsedTime = limit

	operation := func() error {
		t.Drain()
		if err := t.Send(magic); err != nil {
			return backoff.Permanent(err)
		}
		line, err := readLine(t, time.Second)
		if err != nil {
			glog.V(1).Infof("handshake: %v", err)
			return err
		}
		if !strings.HasSuffix(strings.TrimSpace(line), "bootloader") {
			return fmt.Errorf("unexpected reply %q", line)
		}
		return nil
	}
	return backoff.Retry(operation, backoff.WithContext(eb, ctx))
}

// readLine reads up to and including '\n'.
func readLine(t xmboot.Transport, timeout time.Duration) (string, error) {
	var sb strings.Builder
	b := make([]byte, 1)
	for sb.Len() < 256 {
		if err := t.Receive(b, timeout); err != nil {
			return sb.String(), err
		}
		sb.WriteByte(b[0])
		if b[0] == '\n' {
			return sb.String(), nil
		}
	}
	return sb.String(), fmt.Errorf("line too long")
}
