// Copyright 2017 OpenChirp. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package xmboot

import (
	"errors"
	"io"
	"sync"
	"time"

	"github.com/golang/glog"
)

var ErrSerial = errors.New("error interacting with reader or writer")

var ErrClosed = errors.New("transport closed")

// rxBufferSize holds a full 1K packet plus some slack for probes.
const rxBufferSize = 4096

// StreamTransport turns a byte stream (a serial port, a pipe) into a
// Transport with per-call timeouts.
//
// A single goroutine keeps reading the stream until it fails or the
// transport is closed. Reads that return no data are retried.
type StreamTransport struct {
	w  io.Writer
	c  io.Closer
	rx chan byte

	mu   sync.Mutex
	err  error
	done chan struct{}

	quit      chan struct{}
	closeOnce sync.Once
}

// NewStreamTransport starts reading rw in the background. An io.EOF from
// rw ends the stream.
func NewStreamTransport(rw io.ReadWriter) *StreamTransport {
	return newStreamTransport(rw, rw)
}

// NewSerialTransport is NewStreamTransport for a serial port opened with an
// inter-character timeout. Such a port reports silence as a read of zero
// bytes with io.EOF, so that is retried instead of ending the stream. The
// stream ends when the port is closed.
func NewSerialTransport(port io.ReadWriteCloser) *StreamTransport {
	return newStreamTransport(silentEOF{port}, port)
}

func newStreamTransport(r io.Reader, w io.Writer) *StreamTransport {
	t := &StreamTransport{
		w:    w,
		rx:   make(chan byte, rxBufferSize),
		done: make(chan struct{}),
		quit: make(chan struct{}),
	}
	if c, ok := w.(io.Closer); ok {
		t.c = c
	}
	go t.readLoop(r)
	return t
}

// silentEOF maps a zero byte io.EOF to an empty read.
type silentEOF struct {
	io.Reader
}

func (s silentEOF) Read(p []byte) (int, error) {
	n, err := s.Reader.Read(p)
	if n == 0 && err == io.EOF {
		return 0, nil
	}
	return n, err
}

func (t *StreamTransport) readLoop(r io.Reader) {
	defer close(t.done)
	buf := make([]byte, 256)
	for {
		n, err := r.Read(buf)
		for _, b := range buf[:n] {
			select {
			case t.rx <- b:
			case <-t.quit:
				t.setErr(ErrClosed)
				return
			}
		}
		if t.closed() {
			t.setErr(ErrClosed)
			return
		}
		if err != nil {
			if err != io.EOF {
				glog.V(1).Infof("stream read: %v", err)
			}
			t.setErr(err)
			return
		}
	}
}

// Close stops the reader and closes the underlying stream if it is an
// io.Closer. Bytes already received can still be read.
func (t *StreamTransport) Close() error {
	var err error
	t.closeOnce.Do(func() {
		close(t.quit)
		if t.c != nil {
			err = t.c.Close()
		}
	})
	return err
}

func (t *StreamTransport) closed() bool {
	select {
	case <-t.quit:
		return true
	default:
		return false
	}
}

func (t *StreamTransport) setErr(err error) {
	t.mu.Lock()
	t.err = err
	t.mu.Unlock()
}

// Receive fills buf within timeout. Bytes already read stay consumed when
// it fails.
func (t *StreamTransport) Receive(buf []byte, timeout time.Duration) error {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for i := range buf {
		select {
		case b := <-t.rx:
			buf[i] = b
			continue
		default:
		}
		select {
		case b := <-t.rx:
			buf[i] = b
		case <-t.done:
			// drain what arrived before the stream ended
			select {
			case b := <-t.rx:
				buf[i] = b
				continue
			default:
			}
			return t.streamErr()
		case <-timer.C:
			return ErrTimeout
		}
	}
	return nil
}

// Drain discards everything received so far.
func (t *StreamTransport) Drain() {
	for {
		select {
		case <-t.rx:
		default:
			return
		}
	}
}

// Send writes p in full.
func (t *StreamTransport) Send(p []byte) error {
	n, err := t.w.Write(p)
	if err != nil {
		return err
	}
	if n != len(p) {
		return ErrSerial
	}
	return nil
}

func (t *StreamTransport) streamErr() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.err == nil || t.err == io.EOF {
		return io.ErrUnexpectedEOF
	}
	return t.err
}
