package xmboot

import "fmt"

// Packet is one Xmodem data packet.
type Packet struct {
	Kind       HeaderKind
	Sequence   byte
	Complement byte
	Payload    []byte
	CRC        uint16
}

// NewPacket builds a well formed data packet carrying data, padded with
// PadByte up to the payload size of kind.
func NewPacket(kind HeaderKind, seq byte, data []byte) (Packet, error) {
	size := kind.PayloadSize()
	if size == 0 || len(data) > size {
		return Packet{}, fmt.Errorf("%d bytes in a %v packet: %w", len(data), kind, ErrBadArguments)
	}
	payload := make([]byte, size)
	n := copy(payload, data)
	for i := n; i < size; i++ {
		payload[i] = PadByte
	}
	return Packet{
		Kind:       kind,
		Sequence:   seq,
		Complement: 255 - seq,
		Payload:    payload,
		CRC:        CRC16(payload),
	}, nil
}

// Marshal encodes the packet in wire order, CRC high byte first.
func (p *Packet) Marshal() []byte {
	buf := make([]byte, 0, 3+len(p.Payload)+2)
	buf = append(buf, p.Kind.Header(), p.Sequence, p.Complement)
	buf = append(buf, p.Payload...)
	return append(buf, byte(p.CRC>>8), byte(p.CRC))
}

// Validate checks the packet against the expected sequence number. Every
// check runs, so the result may hold more than one fault. Zero means the
// packet is acceptable.
func (p *Packet) Validate(expected byte) Faults {
	var f Faults
	if p.Sequence != expected {
		f |= FaultSequence
	}
	if p.Sequence+p.Complement != 255 {
		f |= FaultSequence
	}
	if CRC16(p.Payload) != p.CRC {
		f |= FaultCRC
	}
	return f
}

func (p Packet) String() string {
	return fmt.Sprintf("%v (seq=%d, cmpl=%d, len=%d, crc=0x%04X)", p.Kind, p.Sequence, p.Complement, len(p.Payload), p.CRC)
}
