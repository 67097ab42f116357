package flarm

import (
	"fmt"
	"math"
	"time"
)

// Decoder turns received frames into positions relative to own ship.
type Decoder struct {
	// IgnoreDistanceM drops targets farther than this. Zero disables the
	// filter, which lets modulo wrap-around produce far-away ghosts.
	IgnoreDistanceM float64
}

// Reception carries the radio metadata of a frame.
type Reception struct {
	At          time.Time
	RSSI        float64
	FrequencyHz uint32
}

// Notes reports soft anomalies that do not reject a frame.
type Notes struct {
	UnknownAddrType bool
	BadParity       bool
}

// Decode validates, decrypts and interprets a 26-byte frame. Rejections are
// reported with the package's sentinel errors.
func (d Decoder) Decode(frame []byte, own Ownship, rx Reception) (Position, Notes, error) {
	var notes Notes
	if len(frame) != FrameSize {
		return Position{}, notes, fmt.Errorf("%w: got %d bytes", ErrFrameLength, len(frame))
	}
	if !ValidChecksum(frame) {
		return Position{}, notes, ErrChecksum
	}

	buf := append([]byte(nil), frame[:PacketSize]...)
	openPayload(buf, DeriveKey(uint32(rx.At.Unix()), HeaderAddress(buf)))

	p, err := UnmarshalPacket(buf)
	if err != nil {
		return Position{}, notes, err
	}
	if z := p.ZeroField(); z&0x01 != 0 {
		return Position{}, notes, ErrZeroFlag
	} else if z != 0 {
		return Position{}, notes, fmt.Errorf("%w: 0x%02x", ErrZeroField, z)
	}
	notes.BadParity = parity8(buf[:parityEnd]) != p.Parity

	addrType, ok := ClassifyAddressType(p.AddrType)
	notes.UnknownAddrType = !ok

	pos := Position{
		Address:      p.Address,
		AddressType:  addrType,
		AircraftType: p.AircraftType,
		LatDeg:       reconstructLat(p.Lat, own.LatDeg),
		LonDeg:       reconstructLon(p.Lon, own.LonDeg),
		AltM:         int(p.Alt),
		Airborne:     p.TurnCode != TurnOnGround,
		Stealth:      p.Stealth,
		NoTrack:      p.NoTrack,
		TurnCode:     p.TurnCode,
		HAccuracy:    p.HAccuracy,
		VAccuracy:    p.VAccuracy,
		RSSI:         rx.RSSI,
		FrequencyHz:  rx.FrequencyHz,
		ReceivedAt:   rx.At,
	}

	v := Relative(own.LatDeg, own.LonDeg, pos.LatDeg, pos.LonDeg)
	if d.IgnoreDistanceM > 0 && v.DistanceM > d.IgnoreDistanceM {
		return Position{}, notes, fmt.Errorf("%w: %.0f m", ErrOutOfDistance, v.DistanceM)
	}
	pos.NorthM, pos.EastM = v.NorthM, v.EastM
	pos.BearingDeg, pos.DistanceM = v.BearingDeg, v.DistanceM

	vs := signExtend(uint32(p.VS), 10) << p.SpeedScale
	pos.VerticalSpeedMps = float64(vs) / vsUnitsPerMps

	pos.GroundSpeedMps, pos.TrackDeg, pos.TrackValid = groundVelocity(p.NS, p.EW, p.SpeedScale)
	return pos, notes, nil
}

// groundVelocity averages the history buckets. The buckets are in meters per
// four seconds at the packet's speed scale.
func groundVelocity(ns, ew [4]int8, ss uint8) (speedMps, trackDeg float64, ok bool) {
	var sumN, sumE int
	for i := 0; i < 4; i++ {
		sumN += int(ns[i])
		sumE += int(ew[i])
	}
	n, e := sumN/4, sumE/4

	speed := math.Hypot(float64(n), float64(e)) * float64(int(1)<<ss)
	if speed <= 0 {
		return 0, 0, false
	}
	raw := math.Atan2(float64(n), float64(e)) * 180 / math.Pi
	trackDeg = 90 - raw
	if trackDeg < 0 {
		trackDeg += 360
	}
	return speed / 4, trackDeg, true
}
