package flarm

import (
	"encoding/binary"
	"fmt"
)

const (
	// PacketSize is the header word plus the five encrypted payload words.
	PacketSize = 24
	// FrameSize is the packet plus its CRC trailer.
	FrameSize = PacketSize + 2

	payloadWords = 5

	// parityEnd is the number of leading packet bytes covered by the parity
	// byte: the header, the flags word, the position word and the longitude
	// bits of word 3.
	parityEnd = 15
)

// Packet is the plaintext content of a FLARM v7 packet. Fields hold raw wire
// values; Encoder and Decoder convert to and from physical units.
//
// Layout (little-endian words):
//
//	word 0  bits 0-23  address         (clear)
//	        bit  24    zero flag
//	        bits 25-26 address type
//	word 1  bits 0-9   vertical speed (signed)
//	        bits 10-11 speed scale
//	        bits 12-14 turn code
//	        bit  15    stealth
//	        bit  16    no-track
//	        bits 17-18 vertical accuracy
//	        bits 19-21 horizontal accuracy
//	        bits 22-25 aircraft type
//	word 2  bits 0-18  latitude
//	        bits 19-31 altitude
//	word 3  bits 0-19  longitude
//	        bits 20-23 reserved (zero)
//	        bits 24-31 parity
//	word 4  north velocity history, 4 x int8
//	word 5  east velocity history, 4 x int8
type Packet struct {
	Address  uint32
	ZeroFlag bool
	AddrType uint8

	VS           uint16 // 10-bit two's complement
	SpeedScale   uint8
	TurnCode     uint8
	Stealth      bool
	NoTrack      bool
	VAccuracy    uint8
	HAccuracy    uint8
	AircraftType AircraftType

	Lat uint32 // 19 bits
	Alt uint16 // 13 bits
	Lon uint32 // 20 bits

	Reserved uint8 // 4 bits
	Parity   uint8

	NS [4]int8
	EW [4]int8
}

// ZeroField combines the zero flag (bit 0) with the reserved nibble.
func (p Packet) ZeroField() uint8 {
	z := p.Reserved << 1
	if p.ZeroFlag {
		z |= 0x01
	}
	return z
}

func boolBit(b bool, shift uint) uint32 {
	if b {
		return 1 << shift
	}
	return 0
}

// AppendBinary appends the 24-byte plaintext layout to dst.
func (p Packet) AppendBinary(dst []byte) []byte {
	w0 := p.Address&0xFFFFFF |
		boolBit(p.ZeroFlag, 24) |
		uint32(p.AddrType&0x03)<<25

	w1 := uint32(p.VS&0x3FF) |
		uint32(p.SpeedScale&0x03)<<10 |
		uint32(p.TurnCode&0x07)<<12 |
		boolBit(p.Stealth, 15) |
		boolBit(p.NoTrack, 16) |
		uint32(p.VAccuracy&0x03)<<17 |
		uint32(p.HAccuracy&0x07)<<19 |
		uint32(p.AircraftType&0x0F)<<22

	w2 := p.Lat&0x7FFFF | uint32(p.Alt&0x1FFF)<<19

	w3 := p.Lon&0xFFFFF |
		uint32(p.Reserved&0x0F)<<20 |
		uint32(p.Parity)<<24

	dst = binary.LittleEndian.AppendUint32(dst, w0)
	dst = binary.LittleEndian.AppendUint32(dst, w1)
	dst = binary.LittleEndian.AppendUint32(dst, w2)
	dst = binary.LittleEndian.AppendUint32(dst, w3)
	for _, v := range p.NS {
		dst = append(dst, byte(v))
	}
	for _, v := range p.EW {
		dst = append(dst, byte(v))
	}
	return dst
}

// MarshalBinary returns the plaintext packet bytes.
func (p Packet) MarshalBinary() ([]byte, error) {
	b := p.AppendBinary(make([]byte, 0, PacketSize))
	if len(b) != PacketSize {
		return nil, fmt.Errorf("flarm: packet layout is %d bytes, want %d", len(b), PacketSize)
	}
	return b, nil
}

// UnmarshalPacket parses plaintext packet bytes.
func UnmarshalPacket(b []byte) (Packet, error) {
	if len(b) != PacketSize {
		return Packet{}, fmt.Errorf("%w: packet is %d bytes", ErrFrameLength, len(b))
	}
	w0 := binary.LittleEndian.Uint32(b[0:4])
	w1 := binary.LittleEndian.Uint32(b[4:8])
	w2 := binary.LittleEndian.Uint32(b[8:12])
	w3 := binary.LittleEndian.Uint32(b[12:16])

	p := Packet{
		Address:  w0 & 0xFFFFFF,
		ZeroFlag: w0&(1<<24) != 0,
		AddrType: uint8(w0>>25) & 0x03,

		VS:           uint16(w1 & 0x3FF),
		SpeedScale:   uint8(w1>>10) & 0x03,
		TurnCode:     uint8(w1>>12) & 0x07,
		Stealth:      w1&(1<<15) != 0,
		NoTrack:      w1&(1<<16) != 0,
		VAccuracy:    uint8(w1>>17) & 0x03,
		HAccuracy:    uint8(w1>>19) & 0x07,
		AircraftType: AircraftType(w1>>22) & 0x0F,

		Lat: w2 & 0x7FFFF,
		Alt: uint16(w2>>19) & 0x1FFF,
		Lon: w3 & 0xFFFFF,

		Reserved: uint8(w3>>20) & 0x0F,
		Parity:   uint8(w3 >> 24),
	}
	for i := 0; i < 4; i++ {
		p.NS[i] = int8(b[16+i])
		p.EW[i] = int8(b[20+i])
	}
	return p, nil
}

// HeaderAddress reads the clear address from a packet or frame.
func HeaderAddress(b []byte) uint32 {
	return binary.LittleEndian.Uint32(b[0:4]) & 0xFFFFFF
}

// sealPayload encrypts words 1..5 of buf in place.
func sealPayload(buf []byte, k Key) {
	v := loadWords(buf)
	encryptBlock(v[:], &k)
	storeWords(buf, v)
}

// openPayload decrypts words 1..5 of buf in place.
func openPayload(buf []byte, k Key) {
	v := loadWords(buf)
	decryptBlock(v[:], &k)
	storeWords(buf, v)
}

func loadWords(buf []byte) [payloadWords]uint32 {
	var v [payloadWords]uint32
	for i := range v {
		v[i] = binary.LittleEndian.Uint32(buf[4+4*i:])
	}
	return v
}

func storeWords(buf []byte, v [payloadWords]uint32) {
	for i := range v {
		binary.LittleEndian.PutUint32(buf[4+4*i:], v[i])
	}
}

// signExtend interprets the low width bits of v as two's complement.
func signExtend(v uint32, width uint) int32 {
	shift := 32 - width
	return int32(v<<shift) >> shift
}
