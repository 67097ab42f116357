package flarm

import (
	"encoding/binary"

	"github.com/sigurn/crc16"
)

// syncPrefix is the tail of the radio sync word. It is covered by the CRC but
// never appears in the frame.
var syncPrefix = []byte{0x31, 0xFA, 0xB6}

var crcTable = crc16.MakeTable(crc16.CRC16_CCITT_FALSE)

// Checksum returns the CRC16/CCITT of the implicit sync prefix followed by b.
func Checksum(b []byte) uint16 {
	crc := crc16.Init(crcTable)
	crc = crc16.Update(crc, syncPrefix, crcTable)
	crc = crc16.Update(crc, b, crcTable)
	return crc16.Complete(crc, crcTable)
}

// AppendChecksum appends the big-endian CRC trailer for packet.
func AppendChecksum(dst []byte, packet []byte) []byte {
	return binary.BigEndian.AppendUint16(dst, Checksum(packet))
}

// ValidChecksum reports whether frame carries a correct CRC trailer.
func ValidChecksum(frame []byte) bool {
	if len(frame) != FrameSize {
		return false
	}
	return Checksum(frame[:PacketSize]) == binary.BigEndian.Uint16(frame[PacketSize:])
}

// parity8 XOR-folds b into a single byte.
func parity8(b []byte) byte {
	var p byte
	for _, v := range b {
		p ^= v
	}
	return p
}
