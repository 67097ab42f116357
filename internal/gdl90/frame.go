// Package gdl90 encodes the GDL90 messages an EFB needs to show FLARM
// traffic: heartbeat, ownship, geometric altitude, traffic reports and the
// ForeFlight ID extension.
package gdl90

import (
	"encoding/binary"
	"errors"
)

const (
	flagByte   = 0x7E
	escapeByte = 0x7D
	escapeXor  = 0x20
)

var (
	ErrFrameShort  = errors.New("gdl90: frame too short")
	ErrFrameFlags  = errors.New("gdl90: missing start/end flag")
	ErrFrameEscape = errors.New("gdl90: truncated escape")
)

// crcTable is the CCITT (0x1021) table. GDL90 folds each data byte in after
// the table lookup, so results differ from CRC-16/XMODEM.
var crcTable = func() (t [256]uint16) {
	for i := range t {
		c := uint16(i) << 8
		for range 8 {
			if c&0x8000 != 0 {
				c = c<<1 ^ 0x1021
			} else {
				c <<= 1
			}
		}
		t[i] = c
	}
	return t
}()

func crc(msg []byte) uint16 {
	var c uint16
	for _, b := range msg {
		c = crcTable[c>>8] ^ c<<8 ^ uint16(b)
	}
	return c
}

// Frame appends the little-endian CRC to msg (message ID + payload), byte
// stuffs flag and escape bytes and wraps the result in 0x7E flags.
func Frame(msg []byte) []byte {
	body := make([]byte, 0, len(msg)+2)
	body = append(body, msg...)
	body = binary.LittleEndian.AppendUint16(body, crc(msg))

	out := make([]byte, 0, 2*len(body)+2)
	out = append(out, flagByte)
	for _, b := range body {
		if b == flagByte || b == escapeByte {
			out = append(out, escapeByte, b^escapeXor)
		} else {
			out = append(out, b)
		}
	}
	return append(out, flagByte)
}

// Unframe reverses Frame. It returns the message without CRC and whether the
// CRC matched; err is set only for malformed framing.
func Unframe(frame []byte) (msg []byte, crcOK bool, err error) {
	if len(frame) < 4 {
		return nil, false, ErrFrameShort
	}
	if frame[0] != flagByte || frame[len(frame)-1] != flagByte {
		return nil, false, ErrFrameFlags
	}

	inner := frame[1 : len(frame)-1]
	raw := make([]byte, 0, len(inner))
	for i := 0; i < len(inner); i++ {
		b := inner[i]
		if b == escapeByte {
			i++
			if i == len(inner) {
				return nil, false, ErrFrameEscape
			}
			b = inner[i] ^ escapeXor
		}
		raw = append(raw, b)
	}
	if len(raw) < 3 {
		return nil, false, ErrFrameShort
	}

	n := len(raw) - 2
	msg = raw[:n]
	return msg, binary.LittleEndian.Uint16(raw[n:]) == crc(msg), nil
}
