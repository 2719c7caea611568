// Copyright 2017 OpenChirp. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// uploadfw uploads a firmware image to a device running the xmboot
// bootloader over a serial port.
//
// Usage:
//
//	go run ./cmd/uploadfw --logtostderr --port=/dev/ttyUSB0 --file=app.bin
//
// The device must be reset shortly before or while the tool runs: the
// bootloader only accepts the entry sequence for a few seconds after reset.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"time"

	"github.com/golang/glog"
	"github.com/openchirp/xmboot/cmd/uploadfw/impl"
)

var (
	port      = flag.String("port", "/dev/ttyUSB0", "Serial port the device is connected to")
	baud      = flag.Uint("baud", 115200, "Baud rate")
	file      = flag.String("file", "", "Firmware image to upload")
	mode      = flag.String("mode", "xmodem1k", "One of [xmodem, xmodem1k]")
	magic     = flag.String("magic", "bl1\n", "Sequence that makes the device enter the bootloader")
	handshake = flag.Duration("handshake", 30*time.Second, "How long to try entering the bootloader, 0 to skip")
)

func main() {
	flag.Parse()
	defer glog.Flush()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := impl.Main(ctx, impl.UploadOpts{
		Port:      *port,
		BaudRate:  *baud,
		File:      *file,
		Mode:      *mode,
		Magic:     *magic,
		Handshake: *handshake,
	}); err != nil {
		glog.Exit(err.Error())
	}
}
