package flarm

import (
	"errors"
	"strings"
	"time"
)

var (
	ErrFrameLength   = errors.New("flarm: bad frame length")
	ErrChecksum      = errors.New("flarm: checksum mismatch")
	ErrZeroFlag      = errors.New("flarm: zero flag set")
	ErrZeroField     = errors.New("flarm: reserved bits set")
	ErrOutOfDistance = errors.New("flarm: position beyond ignore distance")
)

// AddressType is the internal address kind. Only the first three exist on
// the FLARM wire; the rest belong to protocols handled elsewhere.
type AddressType uint8

const (
	AddressRandom AddressType = iota
	AddressICAO
	AddressFLARM
	AddressOGN
)

func (t AddressType) String() string {
	switch t {
	case AddressRandom:
		return "random"
	case AddressICAO:
		return "icao"
	case AddressFLARM:
		return "flarm"
	case AddressOGN:
		return "ogn"
	default:
		return "unknown"
	}
}

func (t AddressType) MarshalText() ([]byte, error) { return []byte(t.String()), nil }

// ParseAddressType accepts the names produced by String.
func ParseAddressType(s string) (AddressType, bool) {
	for t := AddressRandom; t <= AddressOGN; t++ {
		if t.String() == s {
			return t, true
		}
	}
	return AddressRandom, false
}

// ClassifyAddressType maps a wire code to an address type. Unknown codes
// degrade to random; ok is false so callers can count them.
func ClassifyAddressType(code uint8) (t AddressType, ok bool) {
	switch code {
	case 0x02:
		return AddressFLARM, true
	case 0x01:
		return AddressICAO, true
	case 0x00:
		return AddressRandom, true
	default:
		return AddressRandom, false
	}
}

// wireAddressType is the inverse of ClassifyAddressType. Types the FLARM
// wire cannot carry are sent as random.
func wireAddressType(t AddressType) uint8 {
	if t > AddressFLARM {
		return 0
	}
	return uint8(t)
}

// AircraftType is the 4-bit FLARM aircraft category.
type AircraftType uint8

const (
	AircraftUnknown AircraftType = iota
	AircraftGlider
	AircraftTowPlane
	AircraftHelicopter
	AircraftSkydiver
	AircraftDropPlane
	AircraftHangGlider
	AircraftParaglider
	AircraftPiston
	AircraftJet
	AircraftReserved10
	AircraftBalloon
	AircraftAirship
	AircraftUAV
	AircraftReserved14
	AircraftStatic
)

var aircraftTypeNames = [16]string{
	"UKN", "GLID", "TOW", "HEL", "SKYD", "DROP", "HANG", "PARA",
	"PLN", "JET", "UKN", "BAL", "SHIP", "UAV", "UKN", "STAT",
}

var aircraftTypeLongNames = [16]string{
	"unknown", "glider", "towplane", "helicopter", "skydiver", "dropplane", "hangglider", "paraglider",
	"piston", "jet", "", "balloon", "airship", "uav", "", "static",
}

func (t AircraftType) String() string {
	return aircraftTypeNames[t&0x0F]
}

func (t AircraftType) MarshalText() ([]byte, error) { return []byte(t.String()), nil }

// ParseAircraftType accepts a short name ("GLID") or a long name ("glider"),
// case-insensitively.
func ParseAircraftType(s string) (AircraftType, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return AircraftUnknown, false
	}
	for i := range aircraftTypeLongNames {
		if strings.EqualFold(s, aircraftTypeLongNames[i]) || strings.EqualFold(s, aircraftTypeNames[i]) {
			return AircraftType(i), true
		}
	}
	return AircraftUnknown, false
}

// Ownship is a read-only snapshot of the local aircraft.
type Ownship struct {
	LatDeg float64
	LonDeg float64
	// AltM is WGS84 altitude in meters.
	AltM float64

	GroundSpeedMps   float64
	VerticalSpeedMps float64
	NorthMps         float64
	EastMps          float64
	// TurnRateDps is positive for right turns.
	TurnRateDps float64

	Airborne     bool
	Address      uint32
	AddressType  AddressType
	AircraftType AircraftType
	Stealth      bool
	NoTrack      bool

	HAccuracy uint8 // 3-bit code
	VAccuracy uint8 // 2-bit code
}

// Position is a decoded remote aircraft relative to own ship.
type Position struct {
	Address      uint32       `json:"address"`
	AddressType  AddressType  `json:"address_type"`
	AircraftType AircraftType `json:"aircraft_type"`

	LatDeg           float64 `json:"lat_deg"`
	LonDeg           float64 `json:"lon_deg"`
	AltM             int     `json:"alt_m"`
	VerticalSpeedMps float64 `json:"vertical_speed_mps"`
	GroundSpeedMps   float64 `json:"ground_speed_mps"`
	TrackDeg         float64 `json:"track_deg"`
	TrackValid       bool    `json:"track_valid"`

	NorthM     float64 `json:"north_m"`
	EastM      float64 `json:"east_m"`
	BearingDeg float64 `json:"bearing_deg"`
	DistanceM  float64 `json:"distance_m"`

	Airborne bool  `json:"airborne"`
	Stealth  bool  `json:"stealth"`
	NoTrack  bool  `json:"no_track"`
	TurnCode uint8 `json:"turn_code"`

	HAccuracy uint8 `json:"h_accuracy"`
	VAccuracy uint8 `json:"v_accuracy"`

	RSSI        float64   `json:"rssi"`
	FrequencyHz uint32    `json:"frequency_hz"`
	ReceivedAt  time.Time `json:"received_at"`
}
