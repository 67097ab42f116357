package gdl90

import (
	"math"
	"strings"
)

const (
	latLonLSB = 180.0 / (1 << 23)
	trackLSB  = 360.0 / 256
	vvelLSB   = 64.0 // ft/min

	altUnknown  = 0xFFF
	vvelUnknown = 0x800
	vvelLimit   = 510 // +-32640 ft/min

	defaultCallsign = "FLARMNG"
)

// Misc nibble of ownship and traffic reports.
const (
	miscTrackValid   = 0x01
	miscExtrapolated = 0x04
	miscAirborne     = 0x08
)

const trafficAlert = 0x10

// Ownship is the Ownship Report (0x0A) content. GDL90 ownship always carries
// address type 0.
type Ownship struct {
	ICAO      [3]byte
	LatDeg    float64
	LonDeg    float64
	AltFeet   int
	NIC       byte
	NACp      byte
	GroundKt  int
	TrackDeg  float64
	OnGround  bool
	VvelFpm   int
	VvelValid bool
	Callsign  string
	Emitter   byte
}

// Traffic is one Traffic Report (0x14).
type Traffic struct {
	AddrType        byte // 0 ICAO, 1 self-assigned
	ICAO            [3]byte
	LatDeg          float64
	LonDeg          float64
	AltFeet         int
	NIC             byte
	NACp            byte
	GroundKt        int
	TrackDeg        float64
	NoTrack         bool
	VvelFpm         int
	OnGround        bool
	Alert           bool
	EmitterCategory byte
	Tail            string
}

// report is the 27-byte body shared by 0x0A and 0x14.
type report struct {
	status   byte // alert nibble | address type
	addr     [3]byte
	lat, lon float64
	altFeet  int
	misc     byte
	nic      byte
	nacp     byte
	groundKt int
	vvel     uint16
	track    float64
	emitter  byte
	callsign string
}

func (r report) message(id byte) []byte {
	msg := make([]byte, 28)
	msg[0] = id
	msg[1] = r.status
	copy(msg[2:5], r.addr[:])
	putLatLon24(msg[5:8], r.lat)
	putLatLon24(msg[8:11], r.lon)

	alt := altitude12(r.altFeet)
	msg[11] = byte(alt >> 4)
	msg[12] = byte(alt<<4) | r.misc&0x0F
	msg[13] = (r.nic&0x0F)<<4 | r.nacp&0x0F

	gs := unsigned12(r.groundKt)
	msg[14] = byte(gs >> 4)
	msg[15] = byte(gs<<4) | byte(r.vvel>>8)&0x0F
	msg[16] = byte(r.vvel)

	msg[17] = track8(r.track)
	msg[18] = r.emitter
	if msg[18] == 0 {
		msg[18] = EmitterLight
	}
	copy(msg[19:27], r.callsign)
	// msg[27]: emergency/priority code, always "no emergency".
	return msg
}

// OwnshipReportFrame builds the Ownship Report (0x0A).
func OwnshipReportFrame(o Ownship) []byte {
	r := report{
		addr:     o.ICAO,
		lat:      o.LatDeg,
		lon:      o.LonDeg,
		altFeet:  o.AltFeet,
		misc:     miscTrackValid,
		nic:      o.NIC,
		nacp:     o.NACp,
		groundKt: o.GroundKt,
		vvel:     vvelUnknown,
		track:    o.TrackDeg,
		emitter:  o.Emitter,
		callsign: callsign8(o.Callsign, defaultCallsign),
	}
	if !o.OnGround {
		r.misc |= miscAirborne
	}
	if o.VvelValid {
		r.vvel = vvel12(o.VvelFpm)
	}
	return Frame(r.message(msgOwnship))
}

// TrafficReportFrame builds the Traffic Report (0x14).
func TrafficReportFrame(t Traffic) []byte {
	r := report{
		status:   t.AddrType & 0x0F,
		addr:     t.ICAO,
		lat:      t.LatDeg,
		lon:      t.LonDeg,
		altFeet:  t.AltFeet,
		nic:      t.NIC,
		nacp:     t.NACp,
		groundKt: t.GroundKt,
		vvel:     vvel12(t.VvelFpm),
		track:    t.TrackDeg,
		emitter:  t.EmitterCategory,
		callsign: callsign8(t.Tail, ""),
	}
	if t.Alert {
		r.status |= trafficAlert
	}
	if !t.NoTrack {
		r.misc |= miscTrackValid
	}
	if !t.OnGround {
		r.misc |= miscAirborne
	}
	return Frame(r.message(msgTraffic))
}

// putLatLon24 writes a signed 24-bit semicircle fraction, truncated toward
// zero.
func putLatLon24(dst []byte, deg float64) {
	v := uint32(int32(deg/latLonLSB)) & 0xFFFFFF
	dst[0], dst[1], dst[2] = byte(v>>16), byte(v>>8), byte(v)
}

// altitude12 is pressure-style altitude: 25 ft steps offset by 1000 ft.
func altitude12(feet int) uint16 {
	if feet < -1000 || feet > 101350 {
		return altUnknown
	}
	return uint16((feet + 1000) / 25)
}

func unsigned12(v int) uint16 {
	return uint16(clampInt(v, 0, 0xFFF))
}

func vvel12(fpm int) uint16 {
	v := clampInt(roundDiv(fpm, vvelLSB), -vvelLimit, vvelLimit)
	return uint16(int16(v)) & 0x0FFF
}

func track8(deg float64) byte {
	deg = math.Mod(deg, 360)
	if deg < 0 {
		deg += 360
	}
	return byte(int(math.Floor(deg/trackLSB+0.5)) & 0xFF)
}

// callsign8 upper-cases s, maps anything outside [0-9A-Z ] to a space and
// pads to 8 bytes.
func callsign8(s, def string) string {
	if s == "" {
		s = def
	}
	s = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z':
			return r - 'a' + 'A'
		case r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		default:
			return ' '
		}
	}, s)
	if len(s) > 8 {
		s = s[:8]
	}
	return s + strings.Repeat(" ", 8-len(s))
}

func roundDiv(v int, d float64) int {
	return int(math.Round(float64(v) / d))
}

func clampInt(v, lo, hi int) int {
	return max(lo, min(v, hi))
}
