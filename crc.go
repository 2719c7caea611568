package xmboot

import "github.com/sigurn/crc16"

var crcTable = crc16.MakeTable(crc16.CRC16_XMODEM)

// CRC16 computes the CRC-16/XMODEM of data (poly 0x1021, init 0, no
// reflection). An empty input yields 0.
func CRC16(data []byte) uint16 {
	return crc16.Checksum(data, crcTable)
}
