// Copyright 2017 OpenChirp. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package memflash provides a simulated NOR flash for running the
// bootloader off target.
//
// Erasing sets a page to all ones and programming can only clear bits, so
// writing a word twice without an erase in between fails verification the
// same way real flash does.
package memflash

import (
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"sync"
)

var ErrLocked = errors.New("flash is locked")

var ErrOutOfRange = errors.New("address out of range")

var ErrUnaligned = errors.New("unaligned address")

// Erased is the value of an erased word.
const Erased uint32 = 0xFFFFFFFF

const wordSize = 4

// Flash is an in-memory flash array starting at Base.
type Flash struct {
	Base     uint32
	PageSize uint32

	// EraseErr, when set, is returned by every ErasePage call.
	EraseErr error
	// ProgramErr, when set, is returned by every ProgramWord call.
	ProgramErr error

	mu     sync.Mutex
	mem    []byte
	locked bool
	stuck  map[uint32]uint32
	stats  Stats
}

// Stats counts the operations performed on a Flash.
type Stats struct {
	Unlocks, Locks int
	PageErases     int
	WordPrograms   int
	WordReads      int
}

// New returns a locked, fully erased flash of size bytes.
func New(base, size, pageSize uint32) (*Flash, error) {
	if pageSize == 0 || size%pageSize != 0 || base%wordSize != 0 {
		return nil, fmt.Errorf("bad geometry: base 0x%08X, size %d, page %d", base, size, pageSize)
	}
	mem := make([]byte, size)
	for i := range mem {
		mem[i] = 0xFF
	}
	return &Flash{
		Base:     base,
		PageSize: pageSize,
		mem:      mem,
		locked:   true,
		stuck:    make(map[uint32]uint32),
	}, nil
}

// Load creates a flash whose contents come from the image file at path.
// A missing file gives an erased flash. A shorter file leaves the rest
// erased.
func Load(path string, base, size, pageSize uint32) (*Flash, error) {
	f, err := New(base, size, pageSize)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return f, nil
		}
		return nil, fmt.Errorf("failed to read flash image %q: %w", path, err)
	}
	if len(data) > len(f.mem) {
		return nil, fmt.Errorf("flash image %q is %d bytes, flash holds %d", path, len(data), len(f.mem))
	}
	copy(f.mem, data)
	return f, nil
}

// Save writes the whole flash contents to path.
func (f *Flash) Save(path string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := os.WriteFile(path, f.mem, 0o644); err != nil {
		return fmt.Errorf("failed to write flash image %q: %w", path, err)
	}
	return nil
}

func (f *Flash) Unlock() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.locked = false
	f.stats.Unlocks++
	return nil
}

func (f *Flash) Lock() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.locked = true
	f.stats.Locks++
	return nil
}

// Locked reports whether the flash is locked against erase and program.
func (f *Flash) Locked() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.locked
}

func (f *Flash) ErasePage(addr uint32) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.locked {
		return ErrLocked
	}
	if f.EraseErr != nil {
		return f.EraseErr
	}
	if (addr-f.Base)%f.PageSize != 0 {
		return fmt.Errorf("erase 0x%08X: %w", addr, ErrUnaligned)
	}
	off, err := f.offset(addr, f.PageSize)
	if err != nil {
		return err
	}
	for i := off; i < off+int(f.PageSize); i++ {
		f.mem[i] = 0xFF
	}
	f.stats.PageErases++
	return nil
}

// ProgramWord clears the bits of the word at addr that are zero in word.
func (f *Flash) ProgramWord(addr, word uint32) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.locked {
		return ErrLocked
	}
	if f.ProgramErr != nil {
		return f.ProgramErr
	}
	off, err := f.offset(addr, wordSize)
	if err != nil {
		return err
	}
	cur := binary.LittleEndian.Uint32(f.mem[off:])
	binary.LittleEndian.PutUint32(f.mem[off:], cur&word&^f.stuck[addr])
	f.stats.WordPrograms++
	return nil
}

func (f *Flash) ReadWord(addr uint32) (uint32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	off, err := f.offset(addr, wordSize)
	if err != nil {
		return 0, err
	}
	f.stats.WordReads++
	return binary.LittleEndian.Uint32(f.mem[off:]), nil
}

// StickBits makes the bits of mask in the word at addr read as zero after
// the next program, simulating a worn cell.
func (f *Flash) StickBits(addr, mask uint32) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stuck[addr] |= mask
}

// Bytes returns a copy of n bytes starting at addr.
func (f *Flash) Bytes(addr uint32, n int) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	off, err := f.offset(addr, uint32(n))
	if err != nil {
		return nil, err
	}
	out := make([]byte, n)
	copy(out, f.mem[off:])
	return out, nil
}

// Stats returns the operation counters.
func (f *Flash) Stats() Stats {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stats
}

func (f *Flash) offset(addr, n uint32) (int, error) {
	if addr%wordSize != 0 {
		return 0, fmt.Errorf("0x%08X: %w", addr, ErrUnaligned)
	}
	if addr < f.Base || uint64(addr-f.Base)+uint64(n) > uint64(len(f.mem)) {
		return 0, fmt.Errorf("0x%08X+%d: %w", addr, n, ErrOutOfRange)
	}
	return int(addr - f.Base), nil
}
