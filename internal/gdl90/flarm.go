package gdl90

import (
	"fmt"
	"math"

	"flarm-ng/internal/flarm"
)

const (
	feetPerMeter = 3.28084
	ktPerMps     = 1.943844
	fpmPerMps    = 196.8504
)

// Emitter categories used for FLARM aircraft types.
const (
	EmitterNone          byte = 0
	EmitterLight         byte = 1
	EmitterLarge         byte = 3
	EmitterRotorcraft    byte = 7
	EmitterGlider        byte = 9
	EmitterLighterAir    byte = 10
	EmitterParachutist   byte = 11
	EmitterUltralight    byte = 12
	EmitterUAV           byte = 14
	EmitterPointObstacle byte = 19
)

// EmitterCategory maps a FLARM aircraft type onto the nearest GDL90 emitter
// category. Powered fixed-wing types without a better fit are "light".
func EmitterCategory(t flarm.AircraftType) byte {
	switch t {
	case flarm.AircraftGlider:
		return EmitterGlider
	case flarm.AircraftTowPlane, flarm.AircraftDropPlane, flarm.AircraftPiston:
		return EmitterLight
	case flarm.AircraftHelicopter:
		return EmitterRotorcraft
	case flarm.AircraftSkydiver:
		return EmitterParachutist
	case flarm.AircraftHangGlider, flarm.AircraftParaglider:
		return EmitterUltralight
	case flarm.AircraftJet:
		return EmitterLarge
	case flarm.AircraftBalloon, flarm.AircraftAirship:
		return EmitterLighterAir
	case flarm.AircraftUAV:
		return EmitterUAV
	case flarm.AircraftStatic:
		return EmitterPointObstacle
	default:
		return EmitterNone
	}
}

// tailPrefix tags non-ICAO identities so an EFB does not show them as a
// registration lookup.
func tailPrefix(t flarm.AddressType) string {
	switch t {
	case flarm.AddressFLARM:
		return "FL"
	case flarm.AddressOGN:
		return "OG"
	case flarm.AddressRandom:
		return "RN"
	default:
		return ""
	}
}

func addressBytes(addr uint32) [3]byte {
	return [3]byte{byte(addr >> 16), byte(addr >> 8), byte(addr)}
}

// TrafficFromPosition converts a decoded FLARM position into a traffic
// report. Only ICAO addresses are reported as address type 0.
func TrafficFromPosition(p flarm.Position) Traffic {
	addrType := byte(1)
	if p.AddressType == flarm.AddressICAO {
		addrType = 0
	}
	return Traffic{
		AddrType:        addrType,
		ICAO:            addressBytes(p.Address),
		LatDeg:          p.LatDeg,
		LonDeg:          p.LonDeg,
		AltFeet:         int(math.Round(float64(p.AltM) * feetPerMeter)),
		NIC:             8,
		NACp:            8,
		GroundKt:        int(math.Round(p.GroundSpeedMps * ktPerMps)),
		TrackDeg:        p.TrackDeg,
		NoTrack:         !p.TrackValid,
		VvelFpm:         int(math.Round(p.VerticalSpeedMps * fpmPerMps)),
		OnGround:        !p.Airborne,
		EmitterCategory: EmitterCategory(p.AircraftType),
		Tail:            fmt.Sprintf("%s%06X", tailPrefix(p.AddressType), p.Address&0xFFFFFF),
	}
}

// OwnshipFromFlarm converts the local FLARM ownship into an ownship report.
func OwnshipFromFlarm(o flarm.Ownship, callsign string) Ownship {
	track := math.Atan2(o.EastMps, o.NorthMps) * 180 / math.Pi
	if track < 0 {
		track += 360
	}
	return Ownship{
		ICAO:      addressBytes(o.Address),
		NIC:       8,
		NACp:      8,
		LatDeg:    o.LatDeg,
		LonDeg:    o.LonDeg,
		AltFeet:   int(math.Round(o.AltM * feetPerMeter)),
		GroundKt:  int(math.Round(o.GroundSpeedMps * ktPerMps)),
		TrackDeg:  track,
		OnGround:  !o.Airborne,
		VvelFpm:   int(math.Round(o.VerticalSpeedMps * fpmPerMps)),
		VvelValid: true,
		Callsign:  callsign,
		Emitter:   EmitterCategory(o.AircraftType),
	}
}
