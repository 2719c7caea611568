// Copyright 2017 OpenChirp. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// xmboot-sim simulates a device running the xmboot bootloader on a serial
// port, for example one end of a socat pty pair, so that uploadfw can be
// exercised without hardware.
//
// Usage:
//
//	socat -d -d pty,raw,echo=0 pty,raw,echo=0
//	go run ./cmd/xmboot-sim --logtostderr --port=/dev/pts/3 --image=/tmp/flash.bin
//	go run ./cmd/uploadfw --logtostderr --port=/dev/pts/4 --file=app.bin
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"time"

	"github.com/golang/glog"
	"github.com/openchirp/xmboot/cmd/xmboot-sim/impl"
)

var (
	port          = flag.String("port", "", "Serial port the host is connected to")
	baud          = flag.Uint("baud", 115200, "Baud rate")
	image         = flag.String("image", "flash.bin", "File holding the simulated application flash")
	pinFile       = flag.String("boot_pin_file", "", "If this file exists the boot pin is held")
	window        = flag.Duration("window", 3*time.Second, "Entry window after reset")
	magic         = flag.String("magic", "bl1\n", "Sequence that selects the bootloader")
	maxErrors     = flag.Int("max_errors", 3, "Consecutive errors before the transfer is aborted")
	headerTimeout = flag.Duration("header_timeout", time.Second, "Wait for a packet header")
)

func main() {
	flag.Parse()
	defer glog.Flush()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := impl.Main(ctx, impl.SimOpts{
		Port:          *port,
		BaudRate:      *baud,
		Image:         *image,
		PinFile:       *pinFile,
		Window:        *window,
		Magic:         *magic,
		MaxErrors:     *maxErrors,
		HeaderTimeout: *headerTimeout,
	}); err != nil {
		glog.Exit(err.Error())
	}
}
