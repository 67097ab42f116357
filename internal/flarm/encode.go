package flarm

import (
	"math"
	"time"
)

// Vertical speed travels in 0.1 m/s units before the speed-scale shift.
const vsUnitsPerMps = 10

// TurnConfig holds the thresholds used to pick the turn code.
type TurnConfig struct {
	// MaxGroundSpeedMps: above this, circling is not reported.
	MaxGroundSpeedMps float64
	// MinTurnRateDps: below this magnitude the aircraft is flying straight.
	MinTurnRateDps float64
}

// DefaultTurnConfig reports turns below 36 m/s ground speed at 14°/s or more.
func DefaultTurnConfig() TurnConfig {
	return TurnConfig{MaxGroundSpeedMps: 36, MinTurnRateDps: 14}
}

// Turn codes.
const (
	TurnOnGround uint8 = 1
	TurnRight    uint8 = 4
	TurnStraight uint8 = 5
	TurnLeft     uint8 = 7
)

// SpeedScale returns the smallest scale whose exclusive thresholds exceed
// both the vertical speed magnitude and the ground speed (m/s).
func SpeedScale(vsAbsMps, groundMps float64) uint8 {
	switch {
	case vsAbsMps < 24 && groundMps < 30:
		return 0
	case vsAbsMps < 48 && groundMps < 62:
		return 1
	case vsAbsMps < 100 && groundMps < 124:
		return 2
	default:
		return 3
	}
}

// TurnState returns the turn code for o.
func TurnState(o Ownship, cfg TurnConfig) uint8 {
	if !o.Airborne {
		return TurnOnGround
	}
	if o.AircraftType != AircraftGlider || o.GroundSpeedMps > cfg.MaxGroundSpeedMps {
		return TurnStraight
	}
	if math.Abs(o.TurnRateDps) < cfg.MinTurnRateDps {
		return TurnStraight
	}
	if o.TurnRateDps < 0 {
		return TurnLeft
	}
	return TurnRight
}

// Encoder builds transmit frames for own ship.
type Encoder struct {
	Turn TurnConfig
}

// Packet builds the plaintext packet for o. Velocity history is included;
// parity covers only the bytes ahead of it.
func (e Encoder) Packet(o Ownship) Packet {
	ss := SpeedScale(math.Abs(o.VerticalSpeedMps), o.GroundSpeedMps)

	p := Packet{
		Address:      o.Address & 0xFFFFFF,
		AddrType:     wireAddressType(o.AddressType),
		VS:           encodeVS(o.VerticalSpeedMps, ss),
		SpeedScale:   ss,
		TurnCode:     TurnState(o, e.Turn),
		Stealth:      o.Stealth,
		NoTrack:      o.NoTrack,
		VAccuracy:    o.VAccuracy & 0x03,
		HAccuracy:    o.HAccuracy & 0x07,
		AircraftType: o.AircraftType & 0x0F,
		Lat:          encodeLat(o.LatDeg),
		Lon:          encodeLon(o.LonDeg),
		Alt:          encodeAlt(o.AltM),
	}

	head := p.AppendBinary(make([]byte, 0, PacketSize))
	p.Parity = parity8(head[:parityEnd])

	delta := o.TurnRateDps * math.Pi / 180 * ExtrapolationStepSec
	p.NS, p.EW = ExtrapolateVelocity(delta, o.NorthMps, o.EastMps, ss)
	return p
}

// Encode returns the encrypted 26-byte radio frame for o at now.
func (e Encoder) Encode(o Ownship, now time.Time) ([]byte, error) {
	buf, err := e.Packet(o).MarshalBinary()
	if err != nil {
		return nil, err
	}
	sealPayload(buf, DeriveKey(uint32(now.Unix()), o.Address))
	return AppendChecksum(buf, buf), nil
}

func encodeVS(mps float64, ss uint8) uint16 {
	v := int32(math.Round(mps*vsUnitsPerMps)) >> ss
	if v > 511 {
		v = 511
	}
	if v < -512 {
		v = -512
	}
	return uint16(v) & 0x3FF
}

// encodeAlt saturates to the 13-bit field.
func encodeAlt(m float64) uint16 {
	v := math.Round(m)
	if v < 0 {
		return 0
	}
	if v > 0x1FFF {
		return 0x1FFF
	}
	return uint16(v)
}
