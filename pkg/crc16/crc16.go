// Package crc16 implements the CRC-16/CCITT (XMODEM) checksum used by the
// Davis Vantage console protocol.
package crc16

import "encoding/binary"

const poly = 0x1021

var table = makeTable()

func makeTable() [256]uint16 {
	var t [256]uint16
	for i := range t {
		crc := uint16(i) << 8
		for j := 0; j < 8; j++ {
			if crc&0x8000 != 0 {
				crc = crc<<1 ^ poly
			} else {
				crc <<= 1
			}
		}
		t[i] = crc
	}
	return t
}

// Crc16 returns the checksum of d with a zero initial value.
func Crc16(d []byte) uint16 {
	var crc uint16
	for _, b := range d {
		crc = table[byte(crc>>8)^b] ^ crc<<8
	}
	return crc
}

// Append returns d with its checksum appended in big-endian order. The console
// expects the high byte first regardless of host byte order.
func Append(d []byte) []byte {
	return binary.BigEndian.AppendUint16(d, Crc16(d))
}

// Verify reports whether a frame that ends in its own big-endian checksum is
// intact. A valid frame checksums to zero.
func Verify(frame []byte) bool {
	return len(frame) >= 2 && Crc16(frame) == 0
}
