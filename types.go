package xmboot

import (
	"fmt"
	"strings"
)

// HeaderKind is the meaning of the first byte of a packet.
type HeaderKind byte

const (
	KindUnknown HeaderKind = iota
	KindShort
	KindLong
	KindEOT
	KindCancel
)

var kind2String = map[HeaderKind]string{
	KindUnknown: "UNKNOWN",
	KindShort:   "SOH",
	KindLong:    "STX",
	KindEOT:     "EOT",
	KindCancel:  "CAN",
}

func (k HeaderKind) String() string {
	if str, ok := kind2String[k]; ok {
		return str
	}
	return fmt.Sprintf("0x%X", byte(k))
}

// KindOf classifies a header byte.
func KindOf(header byte) HeaderKind {
	switch header {
	case SOH:
		return KindShort
	case STX:
		return KindLong
	case EOT:
		return KindEOT
	case CAN:
		return KindCancel
	default:
		return KindUnknown
	}
}

// PayloadSize is the payload length carried by a data packet of this kind,
// or 0 for control headers.
func (k HeaderKind) PayloadSize() int {
	switch k {
	case KindShort:
		return ShortPayloadSize
	case KindLong:
		return LongPayloadSize
	default:
		return 0
	}
}

// Header is the wire byte of a data packet kind.
func (k HeaderKind) Header() byte {
	if k == KindLong {
		return STX
	}
	return SOH
}

// State is the position of a session in the receive state machine.
type State byte

const (
	AwaitHeader State = iota
	ReceivePacket
	Success
	Abort
)

var state2String = map[State]string{
	AwaitHeader:   "AWAIT_HEADER",
	ReceivePacket: "RECEIVE_PACKET",
	Success:       "TERMINAL_SUCCESS",
	Abort:         "TERMINAL_ABORT",
}

func (s State) String() string {
	if str, ok := state2String[s]; ok {
		return str
	}
	return fmt.Sprintf("0x%X", byte(s))
}

// Terminal reports whether no further step is possible.
func (s State) Terminal() bool {
	return s == Success || s == Abort
}

// Faults is the set of reasons a packet was refused. The zero value means
// the packet was accepted. Several faults can be present at once.
type Faults uint8

const (
	FaultSequence Faults = 1 << iota
	FaultCRC
	FaultComm
	FaultErase
	FaultWrite
	FaultReadback
	FaultTooLarge
)

// flashFaults are the faults that make further writes unsafe.
const flashFaults = FaultErase | FaultWrite | FaultReadback | FaultTooLarge

var faultNames = []struct {
	f    Faults
	name string
}{
	{FaultSequence, "sequence"},
	{FaultCRC, "crc"},
	{FaultComm, "communication"},
	{FaultErase, "erase"},
	{FaultWrite, "write"},
	{FaultReadback, "readback"},
	{FaultTooLarge, "binary size"},
}

// Has reports whether every fault in x is present in f.
func (f Faults) Has(x Faults) bool {
	return x != 0 && f&x == x
}

// Fatal reports whether f contains a non-volatile memory fault.
func (f Faults) Fatal() bool {
	return f&flashFaults != 0
}

func (f Faults) String() string {
	if f == 0 {
		return "none"
	}
	var names []string
	for _, n := range faultNames {
		if f.Has(n.f) {
			names = append(names, n.name)
		}
	}
	return strings.Join(names, "|")
}

func (f Faults) Error() string {
	return "packet rejected: " + f.String()
}
