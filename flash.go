// Copyright 2017 OpenChirp. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package xmboot

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/golang/glog"
)

// Flash is the non-volatile memory peripheral. Erase and program calls are
// only accepted between Unlock and Lock.
type Flash interface {
	Unlock() error
	Lock() error
	ErasePage(addr uint32) error
	ProgramWord(addr, word uint32) error
	ReadWord(addr uint32) (uint32, error)
}

// Geometry describes the application region [Start, End).
type Geometry struct {
	Start    uint32
	End      uint32
	PageSize uint32
}

// DefaultGeometry is the application region of the STM32L0 target the
// bootloader was written for: 16 KiB reserved for the bootloader, 128 byte
// pages.
var DefaultGeometry = Geometry{
	Start:    0x08004000,
	End:      0x08030000,
	PageSize: 128,
}

// Size is the number of bytes in the region.
func (g Geometry) Size() uint32 {
	return g.End - g.Start
}

// Validate checks that the region is non-empty and aligned to its pages.
func (g Geometry) Validate() error {
	if g.PageSize == 0 || g.PageSize%WordSize != 0 {
		return fmt.Errorf("page size %d: %w", g.PageSize, ErrBadArguments)
	}
	if g.End <= g.Start {
		return fmt.Errorf("empty region [0x%08X, 0x%08X): %w", g.Start, g.End, ErrBadArguments)
	}
	if g.Start%g.PageSize != 0 || g.Size()%g.PageSize != 0 {
		return fmt.Errorf("region [0x%08X, 0x%08X) not aligned to %d byte pages: %w", g.Start, g.End, g.PageSize, ErrBadArguments)
	}
	return nil
}

// FlashError reports a failed erase or write and the address at which it
// happened.
type FlashError struct {
	Op     string
	Addr   uint32
	Faults Faults
	Err    error
}

func (e *FlashError) Error() string {
	msg := fmt.Sprintf("flash %s at 0x%08X: %v", e.Op, e.Addr, e.Faults)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *FlashError) Unwrap() error { return e.Err }

// Is matches the sentinel error of every fault in the set.
func (e *FlashError) Is(target error) bool {
	switch target {
	case ErrEraseFailed:
		return e.Faults.Has(FaultErase)
	case ErrWriteFailed:
		return e.Faults.Has(FaultWrite)
	case ErrReadbackMismatch:
		return e.Faults.Has(FaultReadback)
	case ErrBinaryTooLarge:
		return e.Faults.Has(FaultTooLarge)
	}
	return false
}

// Programmer erases and writes the application region, verifying every
// written word.
type Programmer struct {
	flash Flash
	geom  Geometry
}

// NewProgrammer returns a programmer for the region g of f.
func NewProgrammer(f Flash, g Geometry) (*Programmer, error) {
	if f == nil {
		return nil, fmt.Errorf("nil flash: %w", ErrBadArguments)
	}
	if err := g.Validate(); err != nil {
		return nil, err
	}
	return &Programmer{flash: f, geom: g}, nil
}

// Geometry returns the region the programmer works on.
func (p *Programmer) Geometry() Geometry {
	return p.geom
}

// unlocked runs fn with the peripheral unlocked and always locks it again.
func (p *Programmer) unlocked(fn func() error) (err error) {
	if err := p.flash.Unlock(); err != nil {
		return fmt.Errorf("unlock flash: %w: %w", ErrLocked, err)
	}
	defer func() {
		if lerr := p.flash.Lock(); lerr != nil {
			glog.Errorf("flash lock failed: %v", lerr)
			if err == nil {
				err = fmt.Errorf("lock flash: %w", lerr)
			}
		}
	}()
	return fn()
}

// Erase erases every page from start to the end of the region.
func (p *Programmer) Erase(start uint32) error {
	if start < p.geom.Start || start >= p.geom.End || (start-p.geom.Start)%p.geom.PageSize != 0 {
		return fmt.Errorf("erase start 0x%08X: %w", start, ErrBadArguments)
	}
	pages := (p.geom.End - start) / p.geom.PageSize
	glog.V(1).Infof("erasing %d pages from 0x%08X", pages, start)

	return p.unlocked(func() error {
		addr := start
		for i := uint32(0); i < pages; i++ {
			if err := p.flash.ErasePage(addr); err != nil {
				return &FlashError{Op: "erase", Addr: addr, Faults: FaultErase, Err: err}
			}
			addr += p.geom.PageSize
		}
		return nil
	})
}

// Write programs data at addr one little-endian word at a time and reads
// every word back. It stops at the first failing word and returns the
// address it reached, which is the address of that word.
func (p *Programmer) Write(addr uint32, data []byte) (uint32, error) {
	if addr%WordSize != 0 || len(data)%WordSize != 0 {
		return addr, fmt.Errorf("write %d bytes at 0x%08X: %w", len(data), addr, ErrUnaligned)
	}
	if addr < p.geom.Start {
		return addr, fmt.Errorf("write at 0x%08X below region start: %w", addr, ErrBadArguments)
	}

	err := p.unlocked(func() error {
		for off := 0; off < len(data); off += WordSize {
			if addr >= p.geom.End {
				return &FlashError{Op: "write", Addr: addr, Faults: FaultTooLarge}
			}
			word := binary.LittleEndian.Uint32(data[off:])
			if err := p.flash.ProgramWord(addr, word); err != nil {
				return &FlashError{Op: "write", Addr: addr, Faults: FaultWrite, Err: err}
			}
			got, err := p.flash.ReadWord(addr)
			if err != nil {
				return &FlashError{Op: "readback", Addr: addr, Faults: FaultReadback, Err: err}
			}
			if got != word {
				return &FlashError{
					Op:     "readback",
					Addr:   addr,
					Faults: FaultReadback,
					Err:    fmt.Errorf("wrote 0x%08X, read 0x%08X", word, got),
				}
			}
			addr += WordSize
		}
		return nil
	})
	return addr, err
}

// ReadVectors returns the initial stack pointer and the reset handler
// address from the vector table of the image at base.
func (p *Programmer) ReadVectors(base uint32) (sp, reset uint32, err error) {
	if base < p.geom.Start || base+2*WordSize > p.geom.End {
		return 0, 0, fmt.Errorf("vector table at 0x%08X: %w", base, ErrBadArguments)
	}
	if sp, err = p.flash.ReadWord(base); err != nil {
		return 0, 0, fmt.Errorf("read stack pointer: %w", err)
	}
	if reset, err = p.flash.ReadWord(base + WordSize); err != nil {
		return 0, 0, fmt.Errorf("read reset vector: %w", err)
	}
	return sp, reset, nil
}

// flashFaultsOf extracts the fault set of a programmer error. Errors that
// carry no fault set still count as a write failure.
func flashFaultsOf(err error, fallback Faults) Faults {
	var fe *FlashError
	if errors.As(err, &fe) {
		return fe.Faults
	}
	return fallback
}
