// Copyright 2017 OpenChirp. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package impl runs the bootloader against a simulated flash whose
// contents persist in an image file, talking to a host over a serial port.
package impl

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/golang/glog"
	"github.com/jacobsa/go-serial/serial"
	"github.com/openchirp/xmboot"
	"github.com/openchirp/xmboot/memflash"
)

// SimOpts encapsulates simulator parameters.
type SimOpts struct {
	Port     string
	BaudRate uint
	// Image is the file holding the application region.
	Image string
	// PinFile, when set, is a file whose presence holds the boot pin.
	PinFile       string
	Window        time.Duration
	Magic         string
	MaxErrors     int
	HeaderTimeout time.Duration
}

// Main runs one boot of the simulated device.
func Main(ctx context.Context, opts SimOpts) error {
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

	return run(ctx, port, opts)
}

// run boots the simulated device on an open port, and closes the port.
func run(ctx context.Context, port io.ReadWriteCloser, opts SimOpts) error {
	t := xmboot.NewSerialTransport(port)
	defer t.Close()

	g := xmboot.DefaultGeometry
	fl, err := memflash.Load(opts.Image, g.Start, g.Size(), g.PageSize)
	if err != nil {
		return err
	}
	prog, err := xmboot.NewProgrammer(fl, g)
	if err != nil {
		return err
	}

	r := xmboot.NewReceiver(t, prog, &imageJumper{flash: fl, prog: prog, path: opts.Image},
		xmboot.WithMaxErrors(opts.MaxErrors),
		xmboot.WithTimeouts(opts.HeaderTimeout, 0),
		xmboot.WithProgress(func(s xmboot.Session) {
			glog.V(1).Infof("packet %d written, %d bytes", s.Accepted, s.Written())
		}),
	)

	trig := xmboot.DefaultTrigger()
	if opts.Window > 0 {
		trig.Window = opts.Window
	}
	if opts.Magic != "" {
		trig.Magic = []byte(opts.Magic)
	}
	if opts.PinFile != "" {
		trig.Pin = filePin(opts.PinFile)
	}
	return r.Boot(ctx, trig)
}

// imageJumper stands in for the jump to the application: it persists the
// flash and reports the vector table the real jump would use.
type imageJumper struct {
	flash *memflash.Flash
	prog  *xmboot.Programmer
	path  string
}

func (j *imageJumper) JumpToApp(s xmboot.Session) {
	if s.Accepted > 0 {
		if err := j.flash.Save(j.path); err != nil {
			glog.Errorf("%v", err)
			return
		}
		glog.Infof("stored %d byte image in %q", s.Written(), j.path)
	}
	sp, reset, err := j.prog.ReadVectors(s.Start)
	if err != nil {
		glog.Errorf("%v", err)
		return
	}
	if sp == memflash.Erased && reset == memflash.Erased {
		glog.Warning("no application in flash")
		return
	}
	glog.Infof("jumping to application: sp=0x%08X reset=0x%08X", sp, reset)
}

type filePin string

func (p filePin) Asserted() bool {
	_, err := os.Stat(string(p))
	return err == nil
}
